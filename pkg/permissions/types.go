package permissions

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Type is the declared value type of a catalog permission
type Type string

const (
	// TypeBoolean permissions are granted or not
	TypeBoolean Type = "boolean"
	// TypeArray permissions carry a list of wildcard patterns
	TypeArray Type = "array"
)

// Valid reports whether t is a known type
func (t Type) Valid() bool {
	return t == TypeBoolean || t == TypeArray
}

// Well-known permission names
const (
	Superuser         = "superuser"
	ModifyUsers       = "modify users"
	ModifyPermissions = "modify permissions"
	ConfirmUsers      = "confirm users"
	ViewAllUsers      = "view all users"
	Search            = "search"
	AccessApp         = "access app"
)

// Permission is a catalog entry. Grants live on the subject, not here.
type Permission struct {
	Name        string    `json:"name"`
	Type        Type      `json:"type"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"ctime"`
	UpdatedAt   time.Time `json:"mtime"`
}

// Grant is the value held by a subject for one permission: either a
// boolean or a list of patterns. It marshals to true/false or ["a/*"].
type Grant struct {
	isArray  bool
	allowed  bool
	patterns []string
}

// BoolGrant returns a boolean grant
func BoolGrant(allowed bool) Grant {
	return Grant{allowed: allowed}
}

// PatternGrant returns an array grant holding patterns
func PatternGrant(patterns ...string) Grant {
	return Grant{isArray: true, patterns: append([]string{}, patterns...)}
}

// IsArray reports whether the grant is a pattern list
func (g Grant) IsArray() bool { return g.isArray }

// Patterns returns a copy of the pattern list
func (g Grant) Patterns() []string {
	return append([]string{}, g.patterns...)
}

// Truthy reports whether the grant authorizes anything at all. A pattern
// list is truthy even when empty.
func (g Grant) Truthy() bool {
	return g.isArray || g.allowed
}

// MarshalJSON implements json.Marshaler
func (g Grant) MarshalJSON() ([]byte, error) {
	if g.isArray {
		if g.patterns == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(g.patterns)
	}
	return json.Marshal(g.allowed)
}

// UnmarshalJSON implements json.Unmarshaler
func (g *Grant) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*g = Grant{}
	case len(data) > 0 && data[0] == '[':
		var patterns []string
		if err := json.Unmarshal(data, &patterns); err != nil {
			return fmt.Errorf("invalid permission grant: %w", err)
		}
		*g = PatternGrant(patterns...)
	default:
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return fmt.Errorf("invalid permission grant: %w", err)
		}
		*g = BoolGrant(b)
	}
	return nil
}

// Grants maps permission names to grants
type Grants map[string]Grant

// Clone returns a deep copy
func (g Grants) Clone() Grants {
	out := make(Grants, len(g))
	for name, grant := range g {
		out[name] = Grant{isArray: grant.isArray, allowed: grant.allowed, patterns: grant.Patterns()}
	}
	return out
}

// Value is the optional value of an allow/disallow/can request: nothing,
// a boolean or a pattern string.
type Value struct {
	set     bool
	isBool  bool
	boolean bool
	str     string
}

// NoValue is the unspecified value
var NoValue = Value{}

// BoolValue wraps a boolean
func BoolValue(b bool) Value { return Value{set: true, isBool: true, boolean: b} }

// StringValue wraps a pattern or scope string
func StringValue(s string) Value { return Value{set: true, str: s} }

// IsSet reports whether a value was supplied
func (v Value) IsSet() bool { return v.set }

// IsBool reports whether the value is a boolean
func (v Value) IsBool() bool { return v.set && v.isBool }

// Bool returns the boolean value
func (v Value) Bool() bool { return v.boolean }

// String returns the string value
func (v Value) String() string { return v.str }

// ParseValue decodes a JSON value which may be absent, null, a boolean or
// a string.
func ParseValue(raw json.RawMessage) (Value, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return NoValue, nil
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return BoolValue(b), nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if s == "" {
			return NoValue, nil
		}
		return StringValue(s), nil
	}
	return NoValue, fmt.Errorf("permission value must be a boolean or a string")
}
