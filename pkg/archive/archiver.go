// Package archive keeps a content addressed cache of ZIP archives of listed
// directories.
//
// Archives live at <cacheRoot>/cache/<dirsum><contentsum>/<basename>.zip,
// where dirsum is the CRC32 of the directory's root relative path and
// contentsum the CRC32 over the name, size and modification time of every
// file. A changed file yields a new cache key, so stale archives are never
// served. Creation writes into <archive>.lock, created exclusively, and
// renames it into place when complete. The lock file is the only mutual
// exclusion: creators may be separate processes.
package archive

import (
	"archive/zip"
	"context"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"time"

	"github.com/koblas/swbrowse/pkg/listing"
	"github.com/koblas/swbrowse/pkg/metrics"
	"github.com/koblas/swbrowse/pkg/pathutil"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	// CreationTimeLimit is how long a lock is honoured before it is
	// considered abandoned.
	CreationTimeLimit = 5 * time.Minute
	// PollInterval is the delay between checks in WaitForCreation.
	PollInterval = 3 * time.Second

	cacheDirName = "cache"
	lockSuffix   = ".lock"
	rootBasename = "root"
)

// Lister is the part of a listing.Directory the archiver uses.
type Lister interface {
	Path() string
	Archivable() bool
	Files() ([]listing.Entry, error)
}

type Options struct {
	// Root is the configured root directory.
	Root string
	// CacheRoot holds the "cache" directory.
	CacheRoot       string
	ArchiveLifetime time.Duration
	Logger          *zap.Logger
}

// Status is the archive state reported to clients.
type Status struct {
	Ready     bool   `json:"ready"`
	Archiving bool   `json:"archiving"`
	URL       string `json:"url,omitempty"`
	// Path is the archive path relative to the cache directory.
	Path string `json:"-"`
}

// Archiver manages the cached archive of one directory. Checksums are
// computed on first use and kept, so an Archiver reflects the directory
// contents at that moment.
type Archiver struct {
	dir  Lister
	opts Options

	CreationTimeLimit time.Duration
	PollInterval      time.Duration

	checksummed       bool
	directoryChecksum string
	contentChecksum   string
	basename          string
}

func New(dir Lister, opts Options) *Archiver {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Archiver{
		dir:               dir,
		opts:              opts,
		CreationTimeLimit: CreationTimeLimit,
		PollInterval:      PollInterval,
	}
}

// CanArchive reports whether the directory is archivable and has at least one
// visible file.
func (a *Archiver) CanArchive() (bool, error) {
	if !a.dir.Archivable() {
		return false, nil
	}
	files, err := a.dir.Files()
	if err != nil {
		return false, err
	}
	return len(files) > 0, nil
}

// Checksums returns the directory and content checksums as 8 digit lowercase
// hex strings.
func (a *Archiver) Checksums() (string, string, error) {
	if err := a.checksum(); err != nil {
		return "", "", err
	}
	return a.directoryChecksum, a.contentChecksum, nil
}

func (a *Archiver) checksum() error {
	if a.checksummed {
		return nil
	}

	rel, err := pathutil.Relative(a.dir.Path(), a.opts.Root)
	if err != nil {
		return errors.Wrap(err, "archive checksum")
	}
	files, err := a.dir.Files()
	if err != nil {
		return err
	}

	contentHash := crc32.NewIEEE()
	for _, file := range files {
		io.WriteString(contentHash, file.Name)
		if file.File != nil {
			io.WriteString(contentHash, strconv.FormatInt(file.File.Bytes, 10))
			io.WriteString(contentHash, strconv.FormatInt(file.File.Modified.Unix(), 10))
		}
	}

	a.directoryChecksum = fmt.Sprintf("%08x", crc32.ChecksumIEEE([]byte("/"+rel)))
	a.contentChecksum = fmt.Sprintf("%08x", contentHash.Sum32())
	// Never expose the name of the root directory itself
	a.basename = rootBasename
	if rel != "" {
		a.basename = path.Base(rel)
	}
	a.checksummed = true
	return nil
}

// RelativeArchivePath is the archive path below the cache directory, slash
// separated, for building URLs.
func (a *Archiver) RelativeArchivePath() (string, error) {
	if err := a.checksum(); err != nil {
		return "", err
	}
	return a.directoryChecksum + a.contentChecksum + "/" + a.basename + ".zip", nil
}

// ArchivePath is the absolute path of the finished archive.
func (a *Archiver) ArchivePath() (string, error) {
	rel, err := a.RelativeArchivePath()
	if err != nil {
		return "", err
	}
	return filepath.Join(a.cacheDir(), filepath.FromSlash(rel)), nil
}

func (a *Archiver) lockPath() (string, error) {
	archivePath, err := a.ArchivePath()
	if err != nil {
		return "", err
	}
	return archivePath + lockSuffix, nil
}

func (a *Archiver) cacheDir() string {
	return CacheDir(a.opts.CacheRoot)
}

// CacheDir is the directory holding every cached archive below cacheRoot.
func CacheDir(cacheRoot string) string {
	return filepath.Join(cacheRoot, cacheDirName)
}

// IsArchiveReady reports whether the archive exists. A ready archive has its
// modification time moved to now, which keeps requested archives alive in
// the expiry sweep.
func (a *Archiver) IsArchiveReady() (bool, error) {
	archivePath, err := a.ArchivePath()
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(archivePath); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, errors.Wrap(err, "archive status")
	}

	now := time.Now()
	if err := os.Chtimes(archivePath, now, now); err != nil {
		a.opts.Logger.Warn("could not touch archive", zap.String("archive", archivePath), zap.Error(err))
	}
	return true, nil
}

// IsArchiving reports whether a live lock exists. A lock older than
// CreationTimeLimit belonged to a creator that died; it is removed.
func (a *Archiver) IsArchiving() (bool, error) {
	lockPath, err := a.lockPath()
	if err != nil {
		return false, err
	}
	return a.liveLock(lockPath)
}

func (a *Archiver) liveLock(lockPath string) (bool, error) {
	info, err := os.Stat(lockPath)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, errors.Wrap(err, "lock status")
	}

	if time.Since(info.ModTime()) <= a.CreationTimeLimit {
		return true, nil
	}

	a.opts.Logger.Warn("removing abandoned archive lock",
		zap.String("lock", lockPath),
		zap.Time("modified", info.ModTime()))
	if err := os.Remove(lockPath); err != nil && !os.IsNotExist(err) {
		return false, errors.Wrap(err, "remove abandoned lock")
	}
	metrics.RecordStaleLock()
	return false, nil
}

// CreateArchive writes the archive. It fails with ErrAlreadyArchiving while
// another creator holds the lock. The lock is released on every failure.
func (a *Archiver) CreateArchive(ctx context.Context) error {
	start := time.Now()
	err := a.createArchive(ctx)

	switch {
	case err == nil:
		metrics.RecordArchiveCreation(metrics.ResultSuccess, time.Since(start))
		a.opts.Logger.Info("archive created",
			zap.String("directory", a.dir.Path()),
			zap.Duration("duration", time.Since(start)))
	case errors.Is(err, ErrAlreadyArchiving):
		metrics.RecordArchiveCreation(metrics.ResultBusy, 0)
	default:
		metrics.RecordArchiveCreation(metrics.ResultError, 0)
		a.opts.Logger.Error("archive creation failed",
			zap.String("directory", a.dir.Path()),
			zap.Error(err))
	}
	return err
}

func (a *Archiver) createArchive(ctx context.Context) error {
	archiving, err := a.IsArchiving()
	if err != nil {
		return err
	}
	if archiving {
		return ErrAlreadyArchiving
	}

	archivePath, err := a.ArchivePath()
	if err != nil {
		return err
	}
	files, err := a.dir.Files()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(archivePath), 0o755); err != nil {
		return &ArchiveError{Op: "create archive directory", Err: err}
	}

	lockPath := archivePath + lockSuffix
	lock, err := os.OpenFile(lockPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return ErrAlreadyArchiving
		}
		return &ArchiveError{Op: "create lock file", Err: err}
	}
	owned, err := lock.Stat()
	if err != nil {
		lock.Close()
		os.Remove(lockPath)
		return &ArchiveError{Op: "create lock file", Err: err}
	}

	committed := false
	closed := false
	defer func() {
		if !closed {
			lock.Close()
		}
		// A lock taken over as abandoned belongs to its new creator
		if !committed && ownsLock(lockPath, owned) {
			if err := os.Remove(lockPath); err != nil && !os.IsNotExist(err) {
				a.opts.Logger.Error("could not release archive lock", zap.String("lock", lockPath), zap.Error(err))
			}
		}
	}()

	zw := zip.NewWriter(lock)
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			zw.Close()
			return &ArchiveError{Op: "create archive", Err: err}
		}
		if err := addFile(zw, file); err != nil {
			zw.Close()
			return &ArchiveError{Op: "could not add to archive", File: file.Name, Err: err}
		}
	}

	if err := zw.Close(); err != nil {
		return &ArchiveError{Op: "finalize archive", Err: err}
	}
	closed = true
	if err := lock.Close(); err != nil {
		return &ArchiveError{Op: "finalize archive", Err: err}
	}
	if !ownsLock(lockPath, owned) {
		return &ArchiveError{Op: "commit archive", Err: ErrLockLost}
	}
	if err := os.Rename(lockPath, archivePath); err != nil {
		return &ArchiveError{Op: "commit archive", Err: err}
	}
	committed = true
	return nil
}

// ownsLock reports whether the file at lockPath is still the lock described
// by owned.
func ownsLock(lockPath string, owned os.FileInfo) bool {
	current, err := os.Stat(lockPath)
	if err != nil {
		return false
	}
	return os.SameFile(current, owned)
}

func addFile(zw *zip.Writer, file listing.Entry) error {
	src, err := os.Open(file.Path)
	if err != nil {
		return err
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return err
	}
	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	header.Name = file.Name
	header.Method = zip.Deflate

	writer, err := zw.CreateHeader(header)
	if err != nil {
		return err
	}
	_, err = io.Copy(writer, src)
	return err
}

// WaitForCreation blocks until the archive exists. It gives up after
// CreationTimeLimit, when ctx is done, or when the creator went away without
// producing the archive.
func (a *Archiver) WaitForCreation(ctx context.Context) error {
	archivePath, err := a.ArchivePath()
	if err != nil {
		return err
	}

	archiving, err := a.IsArchiving()
	if err != nil {
		return err
	}
	ready, err := a.IsArchiveReady()
	if err != nil {
		return err
	}
	if !archiving && !ready {
		return ErrNothingToWait
	}

	deadline := time.NewTimer(a.CreationTimeLimit)
	defer deadline.Stop()
	ticker := time.NewTicker(a.PollInterval)
	defer ticker.Stop()

	for {
		if fileExists(archivePath) {
			return nil
		}
		if archiving, err = a.IsArchiving(); err != nil {
			return err
		}
		// The rename may have happened after the first check
		if !archiving && !fileExists(archivePath) {
			return ErrNothingToWait
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return ErrWaitTimeout
		case <-ticker.C:
		}
	}
}

// Status reports the archive state without starting anything.
func (a *Archiver) Status() (Status, error) {
	rel, err := a.RelativeArchivePath()
	if err != nil {
		return Status{}, err
	}
	ready, err := a.IsArchiveReady()
	if err != nil {
		return Status{}, err
	}
	archiving, err := a.IsArchiving()
	if err != nil {
		return Status{}, err
	}
	return Status{Ready: ready, Archiving: archiving, Path: rel}, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
