package handler

import (
	"context"
	"net/http"

	"github.com/koblas/swbrowse/pkg/archive"
	"github.com/koblas/swbrowse/pkg/listing"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	archiveStatus = "status"
	archiveWait   = "wait"
)

// archive answers ?archive, ?archive=status and ?archive=wait for dir.
func (state HandlerState) archive(w http.ResponseWriter, r *http.Request, dir *listing.Directory, mode string) {
	archiver := archive.New(dir, archive.Options{
		Root:            state.config.Root,
		CacheRoot:       state.config.CacheRoot,
		ArchiveLifetime: state.config.ArchiveLifetime,
		Logger:          state.requestLogger(r),
	})

	ok, err := archiver.CanArchive()
	if err != nil {
		state.sendFailure(w, r, err)
		return
	}
	if !ok {
		state.sendError(w, r, http.StatusNotFound)
		return
	}
	// Settle the cache key before anything runs in the background
	if _, err := archiver.RelativeArchivePath(); err != nil {
		state.sendFailure(w, r, err)
		return
	}

	switch mode {
	case archiveStatus:
		state.archiveStatus(w, r, archiver)
	case archiveWait:
		state.archiveWait(w, r, archiver)
	default:
		state.archiveRequest(w, r, archiver)
	}
}

func (state HandlerState) status(archiver *archive.Archiver) (archive.Status, error) {
	status, err := archiver.Status()
	if err != nil {
		return status, err
	}
	if status.Ready {
		status.URL = state.urls.CacheURL(status.Path)
	}
	return status, nil
}

func (state HandlerState) archiveStatus(w http.ResponseWriter, r *http.Request, archiver *archive.Archiver) {
	status, err := state.status(archiver)
	if err != nil {
		state.sendFailure(w, r, err)
		return
	}
	state.sendJSON(w, r, http.StatusOK, status)
}

// archiveRequest redirects to a ready archive, otherwise starts creating it
// in the background and reports the status.
func (state HandlerState) archiveRequest(w http.ResponseWriter, r *http.Request, archiver *archive.Archiver) {
	ready, err := archiver.IsArchiveReady()
	if err != nil {
		state.sendFailure(w, r, err)
		return
	}
	if ready {
		state.redirectToArchive(w, r, archiver)
		return
	}

	archiving, err := archiver.IsArchiving()
	if err != nil {
		state.sendFailure(w, r, err)
		return
	}
	if !archiving {
		state.startArchive(archiver, state.requestLogger(r))
	}

	status, err := state.status(archiver)
	if err != nil {
		state.sendFailure(w, r, err)
		return
	}
	if !status.Ready {
		status.Archiving = true
	}
	state.sendJSON(w, r, http.StatusAccepted, status)
}

// archiveWait creates the archive, or waits for whoever is creating it, and
// redirects to it.
func (state HandlerState) archiveWait(w http.ResponseWriter, r *http.Request, archiver *archive.Archiver) {
	logger := state.requestLogger(r)

	ready, err := archiver.IsArchiveReady()
	if err != nil {
		state.sendFailure(w, r, err)
		return
	}
	if ready {
		state.redirectToArchive(w, r, archiver)
		return
	}

	archiving, err := archiver.IsArchiving()
	if err != nil {
		state.sendFailure(w, r, err)
		return
	}
	if !archiving {
		// A client that goes away must not abandon a half written archive
		ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), archiver.CreationTimeLimit)
		err := state.createArchive(ctx, archiver, logger)
		cancel()
		if err == nil {
			state.redirectToArchive(w, r, archiver)
			return
		}
		if !errors.Is(err, archive.ErrAlreadyArchiving) {
			state.sendFailure(w, r, err)
			return
		}
	}

	err = archiver.WaitForCreation(r.Context())
	switch {
	case err == nil:
		state.redirectToArchive(w, r, archiver)
	case errors.Is(err, archive.ErrWaitTimeout):
		state.sendError(w, r, http.StatusGatewayTimeout)
	case errors.Is(err, archive.ErrNothingToWait):
		state.sendError(w, r, http.StatusServiceUnavailable)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		logger.Debug("client stopped waiting for archive", zap.Error(err))
	default:
		state.sendFailure(w, r, err)
	}
}

func (state HandlerState) startArchive(archiver *archive.Archiver, logger *zap.Logger) {
	state.jobs.Add(1)
	go func() {
		defer state.jobs.Done()

		ctx, cancel := context.WithTimeout(context.Background(), archiver.CreationTimeLimit)
		defer cancel()
		if err := state.createArchive(ctx, archiver, logger); err != nil && !errors.Is(err, archive.ErrAlreadyArchiving) {
			logger.Warn("background archive creation failed", zap.Error(err))
		}
	}()
}

func (state HandlerState) createArchive(ctx context.Context, archiver *archive.Archiver, logger *zap.Logger) error {
	if err := archiver.CreateArchive(ctx); err != nil {
		return err
	}
	if _, err := archiver.DeleteObsoleteVersions(); err != nil {
		logger.Warn("could not remove obsolete archives", zap.Error(err))
	}
	return nil
}

func (state HandlerState) redirectToArchive(w http.ResponseWriter, r *http.Request, archiver *archive.Archiver) {
	if _, err := archiver.DeleteObsoleteVersions(); err != nil {
		state.requestLogger(r).Warn("could not remove obsolete archives", zap.Error(err))
	}
	rel, err := archiver.RelativeArchivePath()
	if err != nil {
		state.sendFailure(w, r, err)
		return
	}
	http.Redirect(w, r, state.urls.CacheURL(rel), http.StatusSeeOther)
}
