package config

import "time"

const (
	DefaultTheme           = "dark"
	DefaultTitle           = "Viller's web file browser"
	DefaultArchiveLifetime = 14 * 24 * time.Hour
	DefaultWebroot         = "/"
)

// DefaultIndexFiles mark a subdirectory as a webpage when no indexFiles are
// configured.
var DefaultIndexFiles = []string{"index.html", "index.htm"}

// FilterSet holds glob patterns per entry category. All applies to every
// category.
type FilterSet struct {
	All         []string `yaml:"all"`
	Webpages    []string `yaml:"webpages"`
	Directories []string `yaml:"directories"`
	Files       []string `yaml:"files"`
}

// Display selects which entry categories a directory shows.
type Display struct {
	Webpages    bool `yaml:"webpages" json:"webpages"`
	Directories bool `yaml:"directories" json:"directories"`
	Files       bool `yaml:"files" json:"files"`
}

// Any reports whether at least one category is displayed.
func (d Display) Any() bool {
	return d.Webpages || d.Directories || d.Files
}

// DirectoryRule is the configuration for one directory, and for its
// descendants when Recursive is set.
type DirectoryRule struct {
	Recursive   bool      `yaml:"recursive"`
	Display     Display   `yaml:"display"`
	Blacklist   FilterSet `yaml:"blacklist"`
	Whitelist   FilterSet `yaml:"whitelist"`
	Description string    `yaml:"description"`
	Archivable  *bool     `yaml:"archivable"`
}

// Configuration file format. Everything lives under a top level "config" key.
type fileConfiguration = struct {
	Config *rawConfiguration `yaml:"config" validate:"required"`
}

type rawConfiguration = struct {
	Root            string                   `yaml:"root" validate:"required"`
	Webroot         string                   `yaml:"webroot"`
	CacheRoot       string                   `yaml:"cacheRoot"`
	IndexFiles      []string                 `yaml:"indexFiles" validate:"dive,min=1"`
	ArchiveLifetime *int64                   `yaml:"archiveLifetime" validate:"omitempty,min=0"`
	Archivable      *bool                    `yaml:"archivable"`
	Theme           string                   `yaml:"theme" validate:"max=64"`
	Title           string                   `yaml:"title" validate:"max=256"`
	Blacklist       FilterSet                `yaml:"blacklist"`
	Whitelist       FilterSet                `yaml:"whitelist"`
	Directories     map[string]DirectoryRule `yaml:"directories"`
}

// Config is the loaded configuration with every path resolved. Root is
// canonical (absolute, symlinks resolved) and Directories is keyed by
// canonical absolute directory paths.
type Config struct {
	Root            string
	Webroot         string
	CacheRoot       string
	IndexFiles      []string
	ArchiveLifetime time.Duration
	Archivable      *bool
	Theme           string
	Title           string
	Blacklist       FilterSet
	Whitelist       FilterSet
	Directories     map[string]DirectoryRule
}
