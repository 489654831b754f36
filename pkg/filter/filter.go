// Package filter matches entry names against the glob style patterns used by
// blacklists and whitelists.
package filter

import (
	"regexp"
	"strings"
)

// Compile turns a pattern into an anchored, case-insensitive regular
// expression. "*" matches any run of characters, everything else is literal.
func Compile(pattern string) *regexp.Regexp {
	parts := strings.Split(pattern, "*")
	for i, part := range parts {
		parts[i] = regexp.QuoteMeta(part)
	}
	return regexp.MustCompile("(?is)^" + strings.Join(parts, ".*") + "$")
}

// Matches reports whether name matches at least one of the patterns.
func Matches(name string, patterns []string) bool {
	for _, pattern := range patterns {
		if Compile(pattern).MatchString(name) {
			return true
		}
	}
	return false
}

// Matcher is a precompiled pattern set.
type Matcher struct {
	patterns []string
	res      []*regexp.Regexp
}

// NewMatcher compiles the given patterns, dropping duplicates.
func NewMatcher(patterns ...[]string) Matcher {
	m := Matcher{}
	seen := map[string]bool{}
	for _, list := range patterns {
		for _, pattern := range list {
			if seen[pattern] {
				continue
			}
			seen[pattern] = true
			m.patterns = append(m.patterns, pattern)
			m.res = append(m.res, Compile(pattern))
		}
	}
	return m
}

func (m Matcher) Match(name string) bool {
	for _, re := range m.res {
		if re.MatchString(name) {
			return true
		}
	}
	return false
}

func (m Matcher) Empty() bool {
	return len(m.res) == 0
}

// Patterns returns the source patterns in first-seen order.
func (m Matcher) Patterns() []string {
	return append([]string(nil), m.patterns...)
}

// Filter applies one category's whitelist and blacklist.
type Filter struct {
	Whitelist Matcher
	Blacklist Matcher
}

// Passes decides whether name is shown. A non-empty whitelist is the only
// thing consulted; otherwise the name passes unless blacklisted.
func (f Filter) Passes(name string) bool {
	if !f.Whitelist.Empty() {
		return f.Whitelist.Match(name)
	}
	return !f.Blacklist.Match(name)
}
