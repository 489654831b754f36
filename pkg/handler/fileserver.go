package handler

import (
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/koblas/swbrowse/pkg/archive"
	"github.com/koblas/swbrowse/pkg/pathutil"
	"go.uber.org/zap"
)

// sendArchive serves finished archives from the cache directory. Lock files
// and anything else that is not a .zip stay hidden.
func (state HandlerState) sendArchive(w http.ResponseWriter, r *http.Request) {
	rel := strings.TrimPrefix(r.URL.Path, "/cache/")

	if pathutil.HasTraversal(rel) {
		state.sendError(w, r, http.StatusBadRequest)
		return
	}
	if path.Ext(rel) != ".zip" {
		state.sendError(w, r, http.StatusNotFound)
		return
	}

	cacheDir := archive.CacheDir(state.config.CacheRoot)
	archivePath := filepath.Join(cacheDir, filepath.FromSlash(rel))
	if !pathutil.IsInside(archivePath, cacheDir) {
		state.sendError(w, r, http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{
		"filename": path.Base(rel),
	}))
	state.serveFile(w, r, archivePath)
}

func (state HandlerState) serveFile(w http.ResponseWriter, r *http.Request, name string) {
	f, err := os.Open(name)
	if err != nil {
		w.Header().Del("Content-Disposition")
		if os.IsNotExist(err) {
			state.sendError(w, r, http.StatusNotFound)
			return
		}
		state.requestLogger(r).Error("could not open file", zap.String("file", name), zap.Error(err))
		state.sendError(w, r, http.StatusInternalServerError)
		return
	}
	defer f.Close()

	d, err := f.Stat()
	if err != nil || d.IsDir() {
		w.Header().Del("Content-Disposition")
		state.sendError(w, r, http.StatusNotFound)
		return
	}

	http.ServeContent(w, r, d.Name(), d.ModTime(), f)
}
