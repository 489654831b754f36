package config

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	root := t.TempDir()
	config, err := Load(writeConfig(t, fmt.Sprintf("config:\n  root: %s\n", root)))
	require.NoError(t, err)

	canonicalRoot, err := filepath.EvalSymlinks(root)
	require.NoError(t, err)

	assert.Equal(t, canonicalRoot, config.Root)
	assert.Equal(t, "/", config.Webroot)
	assert.Equal(t, DefaultTheme, config.Theme)
	assert.Equal(t, DefaultTitle, config.Title)
	assert.Equal(t, DefaultArchiveLifetime, config.ArchiveLifetime)
	assert.Equal(t, DefaultIndexFiles, config.IndexFiles)
	assert.Nil(t, config.Archivable)
	assert.Empty(t, config.Directories)
}

func TestParseOptions(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "sub"), 0o755))
	canonicalRoot, err := filepath.EvalSymlinks(root)
	require.NoError(t, err)

	config, err := Parse([]byte(fmt.Sprintf(`
config:
  root: %s
  webroot: "my files"
  indexFiles: [index.php]
  archiveLifetime: 60
  archivable: true
  theme: light
  title: Files
  blacklist:
    all: ["*.bak"]
  directories:
    /:
      display: {files: true}
    sub/:
      recursive: true
      display: {directories: true}
      description: Sub
    not/there:
      display: {files: true}
`, root)))
	require.NoError(t, err)

	assert.Equal(t, "/my%20files/", config.Webroot)
	assert.Equal(t, []string{"index.php"}, config.IndexFiles)
	assert.Equal(t, time.Minute, config.ArchiveLifetime)
	require.NotNil(t, config.Archivable)
	assert.True(t, *config.Archivable)
	assert.Equal(t, "light", config.Theme)
	assert.Equal(t, []string{"*.bak"}, config.Blacklist.All)

	require.Contains(t, config.Directories, canonicalRoot)
	require.Contains(t, config.Directories, filepath.Join(canonicalRoot, "sub"))
	require.Contains(t, config.Directories, filepath.Join(canonicalRoot, "not", "there"))
	assert.True(t, config.Directories[filepath.Join(canonicalRoot, "sub")].Recursive)
}

func TestLoadErrors(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "file.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	tests := map[string]string{
		"missing root":      "config:\n  title: x\n",
		"missing section":   "other: {}\n",
		"root is a file":    fmt.Sprintf("config:\n  root: %s\n", file),
		"root is missing":   fmt.Sprintf("config:\n  root: %s\n", filepath.Join(root, "nope")),
		"unparsable":        "config: [\n",
		"negative lifetime": fmt.Sprintf("config:\n  root: %s\n  archiveLifetime: -1\n", root),
		"escaping rule":     fmt.Sprintf("config:\n  root: %s\n  directories:\n    ../..:\n      display: {files: true}\n", root),
		"same rule twice":   fmt.Sprintf("config:\n  root: %s\n  directories:\n    /:\n      display: {files: true}\n    \"\":\n      display: {directories: true}\n", root),
		"same subdirectory": fmt.Sprintf("config:\n  root: %s\n  directories:\n    sub:\n      display: {files: true}\n    sub/:\n      display: {directories: true}\n", root),
	}

	for name, body := range tests {
		_, err := Parse([]byte(body))
		if assert.Error(t, err, name) {
			assert.True(t, IsConfigError(err), name)
		}
	}

	_, err := Load(filepath.Join(root, "absent.yml"))
	assert.True(t, IsConfigError(err))
}
