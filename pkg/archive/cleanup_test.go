package archive

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cacheEntry(t *testing.T, cacheRoot, name, file string, modified time.Time) string {
	t.Helper()
	dir := filepath.Join(cacheRoot, cacheDirName, name)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	path := filepath.Join(dir, file)
	require.NoError(t, os.WriteFile(path, []byte("zip"), 0o644))
	require.NoError(t, os.Chtimes(path, modified, modified))
	return dir
}

func TestDeleteObsoleteVersions(t *testing.T) {
	f := newFixture(t)
	a := f.archiver(f.directory(t, "docs", map[string]string{"a.txt": "alpha"}))
	require.NoError(t, a.CreateArchive(context.Background()))

	dirSum, contentSum, err := a.Checksums()
	require.NoError(t, err)
	require.NotEqual(t, "00000000", contentSum)
	require.NotEqual(t, "11111111", contentSum)

	now := time.Now()
	obsolete := cacheEntry(t, f.cache, dirSum+"00000000", "docs.zip", now)
	inProgress := cacheEntry(t, f.cache, dirSum+"11111111", "docs.zip.lock", now)
	otherDirSum := "ffffffff"
	if dirSum == otherDirSum {
		otherDirSum = "eeeeeeee"
	}
	unrelated := cacheEntry(t, f.cache, otherDirSum+"00000000", "other.zip", now)

	removed, err := a.DeleteObsoleteVersions()
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	assert.NoDirExists(t, obsolete)
	assert.DirExists(t, inProgress)
	assert.DirExists(t, unrelated)

	ready, err := a.IsArchiveReady()
	require.NoError(t, err)
	assert.True(t, ready)
}

func TestDeleteObsoleteVersionsWithoutCache(t *testing.T) {
	f := newFixture(t)
	a := f.archiver(f.directory(t, "docs", map[string]string{"a.txt": "alpha"}))

	removed, err := a.DeleteObsoleteVersions()
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestDeleteExpiredArchives(t *testing.T) {
	cache := t.TempDir()
	now := time.Now()

	expired := cacheEntry(t, cache, "0000000000000000", "old.zip", now.Add(-3*time.Hour))
	fresh := cacheEntry(t, cache, "1111111111111111", "new.zip", now.Add(-time.Minute))
	locked := cacheEntry(t, cache, "2222222222222222", "busy.zip.lock", now.Add(-3*time.Hour))
	recreating := cacheEntry(t, cache, "3333333333333333", "docs.zip", now.Add(-3*time.Hour))
	require.NoError(t, os.WriteFile(filepath.Join(recreating, "docs.zip.lock"), []byte("partial"), 0o644))

	removed, err := DeleteExpiredArchives(cache, time.Hour, now, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	assert.NoDirExists(t, expired)
	assert.DirExists(t, fresh)
	assert.DirExists(t, locked)
	assert.FileExists(t, filepath.Join(recreating, "docs.zip.lock"))
}

func TestDeleteExpiredSparesRequestedArchives(t *testing.T) {
	f := newFixture(t)
	a := f.archiver(f.directory(t, "docs", map[string]string{"a.txt": "alpha"}))
	require.NoError(t, a.CreateArchive(context.Background()))

	path, err := a.ArchivePath()
	require.NoError(t, err)
	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(path, old, old))

	ready, err := a.IsArchiveReady()
	require.NoError(t, err)
	require.True(t, ready)

	removed, err := a.DeleteExpiredArchives()
	require.NoError(t, err)
	assert.Zero(t, removed)
	assert.FileExists(t, path)
}
