package permissions

import (
	"regexp"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// Evaluator decides whether a set of grants authorizes a permission.
// Compiled patterns are cached; an Evaluator is safe for concurrent use.
type Evaluator struct {
	patterns *lru.LRU[string, *regexp.Regexp]
}

// NewEvaluator returns an evaluator caching up to size compiled patterns
func NewEvaluator(size int) *Evaluator {
	if size <= 0 {
		size = 512
	}
	return &Evaluator{
		patterns: lru.NewLRU[string, *regexp.Regexp](size, nil, time.Hour),
	}
}

// Can reports whether grants authorize name, optionally scoped by value.
//
// A boolean true superuser grant authorizes every permission. Otherwise a
// missing or false grant denies, a boolean true grant authorizes any value,
// a pattern grant authorizes an unscoped request and a scoped request when
// one pattern matches the value.
func (e *Evaluator) Can(grants Grants, name string, value Value) bool {
	if su, ok := grants[Superuser]; ok && !su.isArray && su.allowed {
		return true
	}

	grant, ok := grants[name]
	if !ok || !grant.Truthy() {
		return false
	}
	if !grant.isArray {
		return true
	}
	if !value.IsSet() || value.IsBool() {
		return true
	}

	for _, pattern := range grant.patterns {
		if e.compile(pattern).MatchString(value.String()) {
			return true
		}
	}
	return false
}

func (e *Evaluator) compile(pattern string) *regexp.Regexp {
	if re, ok := e.patterns.Get(pattern); ok {
		return re
	}
	re := CompilePattern(pattern)
	e.patterns.Add(pattern, re)
	return re
}

// CompilePattern turns a wildcard pattern into an anchored, case
// insensitive expression where * matches any sequence.
func CompilePattern(pattern string) *regexp.Regexp {
	parts := strings.Split(pattern, "*")
	for i, part := range parts {
		parts[i] = regexp.QuoteMeta(part)
	}
	return regexp.MustCompile("(?is)^" + strings.Join(parts, ".*") + "$")
}
