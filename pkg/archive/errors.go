package archive

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrAlreadyArchiving means another creator holds a live lock. Callers
	// should poll or wait instead of retrying.
	ErrAlreadyArchiving = errors.New("archive is already being created")
	ErrNothingToWait    = errors.New("archive is neither ready nor being created")
	ErrWaitTimeout      = errors.New("timed out waiting for the archive")

	// ErrLockLost means the lock was removed as abandoned while this creator
	// was still writing, and possibly taken by another creator.
	ErrLockLost = errors.New("archive lock was taken over")
)

// ArchiveError is a failed archive creation step. File names the source file
// when adding it to the archive failed.
type ArchiveError struct {
	Op   string
	File string
	Err  error
}

func (e *ArchiveError) Error() string {
	if e.File != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.File, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ArchiveError) Unwrap() error { return e.Err }
func (e *ArchiveError) Cause() error  { return e.Err }
