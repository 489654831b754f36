package filter_test

import (
	"testing"

	"github.com/koblas/swbrowse/pkg/filter"
	"github.com/stretchr/testify/assert"
)

func TestMatches(t *testing.T) {
	tests := []struct {
		name     string
		patterns []string
		expect   bool
	}{
		{"abc", []string{"a*"}, true},
		{"ABC", []string{"a*"}, true},
		{"xyz", []string{"a*"}, false},
		{"report.PDF", []string{"*.pdf"}, true},
		{"report.pdf.bak", []string{"*.pdf"}, false},
		{"a.b", []string{"a?b"}, false},
		{"a?b", []string{"a?b"}, true},
		{"axb", []string{"a.b"}, false},
		{"anything", []string{}, false},
		{"anything", nil, false},
		{"", []string{"*"}, true},
		{"thumbs.db", []string{"desktop.ini", "Thumbs.db"}, true},
	}

	for _, item := range tests {
		if filter.Matches(item.name, item.patterns) != item.expect {
			t.Errorf("Matches(%q, %v) != %v", item.name, item.patterns, item.expect)
		}
		if filter.NewMatcher(item.patterns).Match(item.name) != item.expect {
			t.Errorf("Matcher(%v).Match(%q) != %v", item.patterns, item.name, item.expect)
		}
	}
}

func TestWhitelistOverridesBlacklist(t *testing.T) {
	f := filter.Filter{
		Whitelist: filter.NewMatcher([]string{"a*"}),
		Blacklist: filter.NewMatcher([]string{"*"}),
	}

	assert.True(t, f.Passes("abc"))
	assert.False(t, f.Passes("xyz"))
}

func TestBlacklistOnly(t *testing.T) {
	f := filter.Filter{Blacklist: filter.NewMatcher([]string{"*.tmp"})}

	assert.True(t, f.Passes("a.txt"))
	assert.False(t, f.Passes("a.TMP"))
}

func TestEmptyFilterPassesEverything(t *testing.T) {
	assert.True(t, filter.Filter{}.Passes("whatever"))
}

func TestNewMatcherDeduplicates(t *testing.T) {
	m := filter.NewMatcher([]string{"a", "b"}, []string{"b", "c"}, nil)
	assert.Equal(t, []string{"a", "b", "c"}, m.Patterns())
}
