// Package authz classifies request paths as public or protected.
//
// Rules are evaluated in declaration order and the first match wins. The
// matcher never looks for the most specific rule: a broad rule declared
// early shadows every narrower rule after it. Put carve-outs such as
// "/admin/**" before a broad "/**" permit, never after.
package authz

import (
	"fmt"
	"path"
	"strings"

	apperrors "github.com/jrsteele09/go-session-gate/internal/errors"
)

// Access is the outcome of classifying a path
type Access int

const (
	RequiresAuth Access = iota
	Public
)

func (a Access) String() string {
	switch a {
	case Public:
		return "public"
	case RequiresAuth:
		return "requires-auth"
	}
	return fmt.Sprintf("Access(%d)", int(a))
}

// CatchAll matches every path. Exactly one catch-all exists in a matcher and
// it is always the last rule.
const CatchAll = "*"

// Rule maps a path pattern to an access level. Patterns are either
//   - an exact path: "/home"
//   - a path with single-segment wildcards: "/api/*/status"
//   - a recursive suffix: "/h2-console/**" matches "/h2-console" and
//     everything beneath it
//   - the catch-all "*"
type Rule struct {
	Pattern string
	Access  Access

	segments []string
}

func PermitAll(patterns ...string) []Rule {
	return rules(Public, patterns)
}

func Authenticated(patterns ...string) []Rule {
	return rules(RequiresAuth, patterns)
}

func rules(access Access, patterns []string) []Rule {
	out := make([]Rule, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, Rule{Pattern: p, Access: access})
	}
	return out
}

// Matcher is immutable after construction and safe for concurrent use.
type Matcher struct {
	rules []Rule
}

// NewMatcher validates the ordered rule list. When the list does not end in
// a catch-all, "*" -> RequiresAuth is appended. A catch-all anywhere but last,
// or one that grants public access, is rejected.
func NewMatcher(ordered ...Rule) (*Matcher, error) {
	m := &Matcher{rules: make([]Rule, 0, len(ordered)+1)}
	for i, r := range ordered {
		if r.Pattern == CatchAll {
			if i != len(ordered)-1 {
				return nil, apperrors.Wrapf(apperrors.ErrInvalidRule, "catch-all at position %d must be the last rule", i)
			}
			if r.Access != RequiresAuth {
				return nil, apperrors.Wrapf(apperrors.ErrInvalidRule, "catch-all must require authentication")
			}
			m.rules = append(m.rules, r)
			continue
		}
		segments, err := compile(r.Pattern)
		if err != nil {
			return nil, err
		}
		r.segments = segments
		m.rules = append(m.rules, r)
	}
	if len(m.rules) == 0 || m.rules[len(m.rules)-1].Pattern != CatchAll {
		m.rules = append(m.rules, Rule{Pattern: CatchAll, Access: RequiresAuth})
	}
	return m, nil
}

func compile(pattern string) ([]string, error) {
	if !strings.HasPrefix(pattern, "/") {
		return nil, apperrors.Wrapf(apperrors.ErrInvalidRule, "pattern %q must start with /", pattern)
	}
	segments := splitPath(pattern)
	for i, s := range segments {
		if s == "**" && i != len(segments)-1 {
			return nil, apperrors.Wrapf(apperrors.ErrInvalidRule, "pattern %q: ** is only allowed as the final segment", pattern)
		}
		if s != "*" && s != "**" && strings.Contains(s, "*") {
			return nil, apperrors.Wrapf(apperrors.ErrInvalidRule, "pattern %q: wildcards must span a whole segment", pattern)
		}
	}
	return segments, nil
}

// Classify returns the access level of the first rule matching p. The path
// is cleaned first so dot segments and doubled slashes cannot dodge a rule.
func (m *Matcher) Classify(p string) Access {
	segments := splitPath(cleanPath(p))
	for _, r := range m.rules {
		if r.Pattern == CatchAll || matchSegments(r.segments, segments) {
			return r.Access
		}
	}
	// unreachable: the catch-all is always present
	return RequiresAuth
}

// Rules returns a copy of the effective rule list, catch-all included
func (m *Matcher) Rules() []Rule {
	out := make([]Rule, len(m.rules))
	copy(out, m.rules)
	return out
}

func matchSegments(pattern, segments []string) bool {
	for i, ps := range pattern {
		if ps == "**" {
			return true
		}
		if i >= len(segments) {
			return false
		}
		if ps != "*" && ps != segments[i] {
			return false
		}
	}
	return len(pattern) == len(segments)
}

func cleanPath(p string) string {
	if p == "" {
		return "/"
	}
	if p[0] != '/' {
		p = "/" + p
	}
	return path.Clean(p)
}

// splitPath turns "/a/b" into ["a", "b"] and "/" into [].
func splitPath(p string) []string {
	trimmed := strings.Trim(p, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}
