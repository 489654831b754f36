//go:build !windows

package archive

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// A creator whose lock was removed as abandoned must neither publish nor
// delete the lock file that a second creator now owns.
func TestSlowCreatorDoesNotCommitTakenOverLock(t *testing.T) {
	f := newFixture(t)
	dir := f.directory(t, "docs", map[string]string{"a.txt": "alpha"})

	fifo := filepath.Join(dir.path, "slow")
	require.NoError(t, syscall.Mkfifo(fifo, 0o644))
	dir.files = append(dir.files, entryFor(t, fifo))

	slow := f.archiver(dir)
	archivePath, err := slow.ArchivePath()
	require.NoError(t, err)
	lock := archivePath + lockSuffix

	done := make(chan error, 1)
	go func() {
		done <- slow.CreateArchive(context.Background())
	}()

	require.Eventually(t, func() bool {
		_, err := os.Stat(lock)
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)

	old := time.Now().Add(-10 * time.Minute)
	require.NoError(t, os.Chtimes(lock, old, old))

	other := f.archiver(dir)
	archiving, err := other.IsArchiving()
	require.NoError(t, err)
	require.False(t, archiving)
	require.NoError(t, os.WriteFile(lock, []byte("PARTIAL-FROM-OTHER"), 0o644))

	// Unblock the slow creator
	writer, err := os.OpenFile(fifo, os.O_WRONLY, 0)
	require.NoError(t, err)
	writer.Write([]byte("slow data"))
	writer.Close()

	var createErr error
	select {
	case createErr = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("creator did not finish")
	}

	var archiveErr *ArchiveError
	require.True(t, errors.As(createErr, &archiveErr), "unexpected error %v", createErr)
	assert.True(t, errors.Is(createErr, ErrLockLost))

	assert.NoFileExists(t, archivePath)
	data, err := os.ReadFile(lock)
	require.NoError(t, err)
	assert.Equal(t, "PARTIAL-FROM-OTHER", string(data))
}

func TestCreatorWithOwnLockCommitsFifoContent(t *testing.T) {
	f := newFixture(t)
	dir := f.directory(t, "docs", nil)

	fifo := filepath.Join(dir.path, "stream")
	require.NoError(t, syscall.Mkfifo(fifo, 0o644))
	dir.files = append(dir.files, entryFor(t, fifo))

	a := f.archiver(dir)
	done := make(chan error, 1)
	go func() {
		done <- a.CreateArchive(context.Background())
	}()

	writer, err := os.OpenFile(fifo, os.O_WRONLY, 0)
	require.NoError(t, err)
	writer.Write([]byte("streamed"))
	writer.Close()
	require.NoError(t, <-done)

	archivePath, err := a.ArchivePath()
	require.NoError(t, err)
	reader, err := zip.OpenReader(archivePath)
	require.NoError(t, err)
	defer reader.Close()
	require.Len(t, reader.File, 1)
	assert.Equal(t, "stream", reader.File[0].Name)
}
