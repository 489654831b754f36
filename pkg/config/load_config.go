package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/koblas/swbrowse/pkg/pathutil"
	"github.com/pkg/errors"
	validator "gopkg.in/go-playground/validator.v9"
	"gopkg.in/yaml.v3"
)

var validate = validator.New()

// Load reads and resolves the YAML configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Reason: "could not read " + path, Err: err}
	}
	return Parse(data)
}

// Parse resolves a configuration from its YAML source. Relative root and
// cacheRoot values are taken relative to the working directory.
func Parse(data []byte) (*Config, error) {
	file := fileConfiguration{}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, &ConfigError{Reason: "could not parse configuration", Err: err}
	}
	if err := validate.Struct(file); err != nil {
		return nil, &ConfigError{Reason: "invalid configuration", Err: err}
	}
	raw := file.Config

	root, err := pathutil.Canonical(raw.Root)
	if err != nil {
		return nil, &ConfigError{Reason: "root does not point to a valid directory", Err: err}
	}
	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		return nil, &ConfigError{Reason: "root does not point to a valid directory", Err: err}
	}

	config := &Config{
		Root:            root,
		Webroot:         DefaultWebroot,
		IndexFiles:      DefaultIndexFiles,
		ArchiveLifetime: DefaultArchiveLifetime,
		Archivable:      raw.Archivable,
		Theme:           DefaultTheme,
		Title:           DefaultTitle,
		Blacklist:       raw.Blacklist,
		Whitelist:       raw.Whitelist,
		Directories:     map[string]DirectoryRule{},
	}

	if raw.Webroot != "" {
		config.Webroot = raw.Webroot
	}
	config.Webroot = pathutil.EncodeURI(pathutil.FormatURLDirectory(config.Webroot))

	if raw.IndexFiles != nil {
		config.IndexFiles = raw.IndexFiles
	}
	if raw.ArchiveLifetime != nil {
		config.ArchiveLifetime = time.Duration(*raw.ArchiveLifetime) * time.Second
	}
	if raw.Theme != "" {
		config.Theme = raw.Theme
	}
	if raw.Title != "" {
		config.Title = raw.Title
	}

	cacheRoot := raw.CacheRoot
	if cacheRoot == "" {
		cacheRoot = "."
	}
	if config.CacheRoot, err = filepath.Abs(cacheRoot); err != nil {
		return nil, &ConfigError{Reason: "invalid cacheRoot", Err: err}
	}

	entries := map[string]string{}
	for directory, rule := range raw.Directories {
		key, err := ruleKey(root, directory)
		if err != nil {
			return nil, &ConfigError{Reason: "invalid directory entry " + directory, Err: err}
		}
		if other, found := entries[key]; found {
			return nil, &ConfigError{
				Reason: fmt.Sprintf("directory entries %q and %q name the same directory %s", other, directory, key),
			}
		}
		entries[key] = directory
		config.Directories[key] = rule
	}

	return config, nil
}

// ruleKey turns a root relative directory entry into its canonical absolute
// path. Entries for directories that do not exist yet are only cleaned.
func ruleKey(root, directory string) (string, error) {
	joined := filepath.Join(root, filepath.FromSlash(strings.TrimPrefix(directory, "/")))
	if !pathutil.IsInside(joined, root) {
		return "", errors.Errorf("%s escapes the root directory", directory)
	}
	if canonical, err := pathutil.Canonical(joined); err == nil {
		if !pathutil.IsInside(canonical, root) {
			return "", errors.Errorf("%s resolves outside the root directory", directory)
		}
		return canonical, nil
	}
	return joined, nil
}
