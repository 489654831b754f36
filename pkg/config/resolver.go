package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/koblas/swbrowse/pkg/filter"
	"github.com/koblas/swbrowse/pkg/pathutil"
	"go.uber.org/zap"
)

// DirectorySettings are the effective settings for one directory.
type DirectorySettings struct {
	Path string
	// RuleDirectory is the configured directory whose rule was applied.
	RuleDirectory string
	Display       Display
	Webpages      filter.Filter
	Directories   filter.Filter
	Files         filter.Filter
	Description   string
	Archivable    bool
}

// Resolver computes DirectorySettings from a Config and remembers them per
// directory. Build one per request, or per configuration reload; it is not
// safe for concurrent use.
type Resolver struct {
	config *Config
	logger *zap.Logger
	cache  map[string]*DirectorySettings
}

func NewResolver(config *Config, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		config: config,
		logger: logger,
		cache:  map[string]*DirectorySettings{},
	}
}

func (r *Resolver) Config() *Config {
	return r.config
}

// IsAccessible is the boolean form of Resolve.
func (r *Resolver) IsAccessible(directory string) bool {
	_, err := r.Resolve(directory)
	return err == nil
}

// Resolve returns the settings of an absolute directory path. The nearest
// configured rule (the directory itself or its closest configured ancestor)
// is the only rule that applies. Directories without any rule, covered only
// by a non-recursive ancestor, or displaying nothing fail with an
// *AccessError.
func (r *Resolver) Resolve(directory string) (*DirectorySettings, error) {
	canonical, err := pathutil.Canonical(directory)
	if err != nil {
		return nil, r.deny(directory, "directory does not exist")
	}

	if settings, found := r.cache[canonical]; found {
		return settings, nil
	}

	root := r.config.Root
	rel, err := pathutil.Relative(canonical, root)
	if err != nil {
		return nil, r.deny(directory, "directory is outside the root")
	}
	if info, err := os.Stat(canonical); err != nil || !info.IsDir() {
		return nil, r.deny(directory, "not a directory")
	}

	segments := []string{}
	if rel != "" {
		segments = strings.Split(rel, "/")
	}

	var (
		rule      DirectoryRule
		ruleDir   string
		foundRule bool
	)
	for i := len(segments); i >= 0; i-- {
		ruleDir = filepath.Join(append([]string{root}, segments[:i]...)...)
		if rule, foundRule = r.config.Directories[ruleDir]; foundRule {
			break
		}
	}

	if !foundRule {
		return nil, r.deny(directory, "no configuration applies to this directory")
	}

	exactMatch := ruleDir == canonical
	if !exactMatch && !rule.Recursive {
		return nil, r.deny(directory, "closest configured parent is not recursive")
	}
	if !rule.Display.Any() {
		return nil, r.deny(directory, "directory does not display anything")
	}

	global := r.config
	settings := &DirectorySettings{
		Path:          canonical,
		RuleDirectory: ruleDir,
		Display:       rule.Display,
		Webpages: filter.Filter{
			Whitelist: filter.NewMatcher(global.Whitelist.All, global.Whitelist.Webpages, rule.Whitelist.All, rule.Whitelist.Webpages),
			Blacklist: filter.NewMatcher(global.Blacklist.All, global.Blacklist.Webpages, rule.Blacklist.All, rule.Blacklist.Webpages),
		},
		Directories: filter.Filter{
			Whitelist: filter.NewMatcher(global.Whitelist.All, global.Whitelist.Directories, rule.Whitelist.All, rule.Whitelist.Directories),
			Blacklist: filter.NewMatcher(global.Blacklist.All, global.Blacklist.Directories, rule.Blacklist.All, rule.Blacklist.Directories),
		},
		Files: filter.Filter{
			Whitelist: filter.NewMatcher(global.Whitelist.All, global.Whitelist.Files, rule.Whitelist.All, rule.Whitelist.Files),
			Blacklist: filter.NewMatcher(global.Blacklist.All, global.Blacklist.Files, rule.Blacklist.All, rule.Blacklist.Files),
		},
		Archivable: resolveArchivable(rule.Archivable, global.Archivable),
	}
	if exactMatch {
		settings.Description = rule.Description
	}

	r.cache[canonical] = settings
	return settings, nil
}

func (r *Resolver) deny(directory, reason string) error {
	r.logger.Debug("directory denied",
		zap.String("directory", directory),
		zap.String("reason", reason))
	return &AccessError{Path: directory, Reason: reason}
}

func resolveArchivable(values ...*bool) bool {
	for _, value := range values {
		if value != nil {
			return *value
		}
	}
	return false
}
