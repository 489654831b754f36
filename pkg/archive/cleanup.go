package archive

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/koblas/swbrowse/pkg/metrics"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const checksumLength = 8

// DeleteObsoleteVersions removes cached archives of this directory whose
// content checksum no longer matches. Entries with a live lock are left for
// their creator.
func (a *Archiver) DeleteObsoleteVersions() (int, error) {
	dirSum, contentSum, err := a.Checksums()
	if err != nil {
		return 0, err
	}

	entries, err := os.ReadDir(a.cacheDir())
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, errors.Wrap(err, "read cache directory")
	}

	current := dirSum + contentSum
	removed := 0
	for _, entry := range entries {
		name := entry.Name()
		if !entry.IsDir() || name == current {
			continue
		}
		if len(name) != 2*checksumLength || !strings.HasPrefix(name, dirSum) {
			continue
		}

		entryPath := filepath.Join(a.cacheDir(), name)
		if hasLiveLock(entryPath, a.CreationTimeLimit) {
			continue
		}
		if err := removeCacheEntry(entryPath); err != nil {
			return removed, err
		}
		a.opts.Logger.Debug("removed obsolete archive", zap.String("entry", entryPath))
		removed++
	}

	metrics.RecordArchivesRemoved(metrics.ReasonObsolete, removed)
	return removed, nil
}

// DeleteExpiredArchives removes archives not requested within the configured
// lifetime.
func (a *Archiver) DeleteExpiredArchives() (int, error) {
	return DeleteExpiredArchives(a.opts.CacheRoot, a.opts.ArchiveLifetime, time.Now(), a.opts.Logger)
}

// DeleteExpiredArchives removes every cache entry holding an archive last
// modified before now minus lifetime. IsArchiveReady refreshes the
// modification time, so only archives nobody asked for expire. Entries with
// a live lock are left to their creator.
func DeleteExpiredArchives(cacheRoot string, lifetime time.Duration, now time.Time, logger *zap.Logger) (int, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cacheDir := CacheDir(cacheRoot)
	entries, err := os.ReadDir(cacheDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, errors.Wrap(err, "read cache directory")
	}

	cutoff := now.Add(-lifetime)
	removed := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		entryPath := filepath.Join(cacheDir, entry.Name())
		expired, err := holdsExpiredArchive(entryPath, cutoff)
		if err != nil {
			logger.Warn("could not inspect cache entry", zap.String("entry", entryPath), zap.Error(err))
			continue
		}
		if !expired || hasLiveLock(entryPath, CreationTimeLimit) {
			continue
		}
		if err := removeCacheEntry(entryPath); err != nil {
			return removed, err
		}
		logger.Debug("removed expired archive", zap.String("entry", entryPath))
		removed++
	}

	metrics.RecordArchivesRemoved(metrics.ReasonExpired, removed)
	return removed, nil
}

func holdsExpiredArchive(entryPath string, cutoff time.Time) (bool, error) {
	files, err := os.ReadDir(entryPath)
	if err != nil {
		return false, err
	}
	for _, file := range files {
		if file.IsDir() || filepath.Ext(file.Name()) != ".zip" {
			continue
		}
		info, err := file.Info()
		if err != nil {
			return false, err
		}
		if info.ModTime().Before(cutoff) {
			return true, nil
		}
	}
	return false, nil
}

// hasLiveLock reports whether entryPath holds a lock younger than limit.
func hasLiveLock(entryPath string, limit time.Duration) bool {
	locks, err := filepath.Glob(filepath.Join(entryPath, "*"+lockSuffix))
	if err != nil {
		return false
	}
	for _, lock := range locks {
		if info, err := os.Stat(lock); err == nil && time.Since(info.ModTime()) <= limit {
			return true
		}
	}
	return false
}

// removeCacheEntry deletes the files of a cache entry, then the entry itself.
func removeCacheEntry(entryPath string) error {
	files, err := os.ReadDir(entryPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrap(err, "read cache entry")
	}
	for _, file := range files {
		if err := os.Remove(filepath.Join(entryPath, file.Name())); err != nil && !os.IsNotExist(err) {
			return errors.Wrap(err, "remove cached file")
		}
	}
	if err := os.Remove(entryPath); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "remove cache entry")
	}
	return nil
}
