package permissions

import (
	"fmt"

	"github.com/platinummonkey/httpusers/pkg/apierrors"
)

// Allow merges value into grants for the catalog permission p and returns
// the updated copy.
//
// Boolean permissions take an optional boolean (default true). Array
// permissions take a pattern which is appended when not already present.
func Allow(grants Grants, p *Permission, value Value) (Grants, error) {
	out := grants.Clone()

	switch p.Type {
	case TypeBoolean:
		if value.IsSet() && !value.IsBool() {
			return nil, typeMismatch(p, value)
		}
		allowed := true
		if value.IsSet() {
			allowed = value.Bool()
		}
		out[p.Name] = BoolGrant(allowed)

	case TypeArray:
		if !value.IsSet() || value.IsBool() {
			return nil, typeMismatch(p, value)
		}
		current := out[p.Name]
		patterns := current.patterns
		if !current.isArray {
			patterns = nil
		}
		if !contains(patterns, value.String()) {
			patterns = append(patterns, value.String())
		}
		out[p.Name] = PatternGrant(patterns...)

	default:
		return nil, apierrors.Validation(fmt.Sprintf("permission %q has unknown type %q", p.Name, p.Type))
	}

	return out, nil
}

// Disallow removes value from grants for p. A boolean permission, or an
// array permission without a value, becomes false. Removing the last
// pattern collapses the grant to false.
func Disallow(grants Grants, p *Permission, value Value) (Grants, error) {
	out := grants.Clone()

	switch p.Type {
	case TypeBoolean:
		if value.IsSet() && !value.IsBool() {
			return nil, typeMismatch(p, value)
		}
		out[p.Name] = BoolGrant(false)

	case TypeArray:
		if value.IsBool() {
			return nil, typeMismatch(p, value)
		}
		current := out[p.Name]
		if !value.IsSet() || !current.isArray {
			out[p.Name] = BoolGrant(false)
			break
		}
		remaining := make([]string, 0, len(current.patterns))
		for _, pattern := range current.patterns {
			if pattern != value.String() {
				remaining = append(remaining, pattern)
			}
		}
		if len(remaining) == 0 {
			out[p.Name] = BoolGrant(false)
		} else {
			out[p.Name] = PatternGrant(remaining...)
		}

	default:
		return nil, apierrors.Validation(fmt.Sprintf("permission %q has unknown type %q", p.Name, p.Type))
	}

	return out, nil
}

func typeMismatch(p *Permission, value Value) error {
	got := "string"
	if value.IsBool() {
		got = "boolean"
	}
	if !value.IsSet() {
		got = "nothing"
	}
	return apierrors.Validation(fmt.Sprintf("permission %q expects a %s value, got %s", p.Name, expected(p.Type), got))
}

func expected(t Type) string {
	if t == TypeArray {
		return "string"
	}
	return "boolean"
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
