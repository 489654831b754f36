package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"path/filepath"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/koblas/swbrowse/pkg/config"
	"github.com/koblas/swbrowse/pkg/listing"
	"github.com/koblas/swbrowse/pkg/logging"
	"github.com/koblas/swbrowse/pkg/pathutil"
	"github.com/koblas/swbrowse/pkg/swhttp"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type HandlerState struct {
	config *config.Config
	logger *zap.Logger
	urls   pathutil.URLGenerator

	// background archive creations
	jobs *sync.WaitGroup
}

func NewHandler(cfg *config.Config, logger *zap.Logger) HandlerState {
	if logger == nil {
		logger = zap.NewNop()
	}
	return HandlerState{
		config: cfg,
		logger: logger,
		urls: pathutil.URLGenerator{
			Root:        cfg.Root,
			Webroot:     cfg.Webroot,
			BrowserBase: "/",
		},
		jobs: &sync.WaitGroup{},
	}
}

// Wait blocks until every archive creation started in the background is done.
func (state HandlerState) Wait() {
	state.jobs.Wait()
}

func acceptJSON(r *http.Request) bool {
	accept := r.Header[http.CanonicalHeaderKey("accept")]

	for _, value := range accept {
		if strings.Contains(strings.ToLower(value), "application/json") {
			return true
		}
	}

	return false
}

func (state HandlerState) requestLogger(r *http.Request) *zap.Logger {
	return logging.WithContext(r.Context(), state.logger)
}

func (state HandlerState) sendJSON(w http.ResponseWriter, r *http.Request, statusCode int, body interface{}) {
	data, err := json.Marshal(body)
	if err != nil {
		state.requestLogger(r).Error("could not encode response", zap.Error(err))
		state.sendError(w, r, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(statusCode)
	w.Write(append(data, '\n'))
}

func (state HandlerState) sendError(w http.ResponseWriter, r *http.Request, statusCode int) {
	type errorBodyType = struct {
		StatusCode int    `json:"-"`
		Code       string `json:"code"`
		Message    string `json:"message"`
	}
	type errorInfo = struct {
		Error errorBodyType `json:"error"`
	}

	errorBody := errorBodyType{StatusCode: statusCode}
	switch statusCode {
	case http.StatusBadRequest:
		errorBody.Code = "bad_request"
		errorBody.Message = "Bad request"
	case http.StatusNotFound:
		errorBody.Code = "not_found"
		errorBody.Message = "The requested path could not be found"
	case http.StatusServiceUnavailable:
		errorBody.Code = "archive_unavailable"
		errorBody.Message = "The archive is not being created, request it again"
	case http.StatusGatewayTimeout:
		errorBody.Code = "archive_timeout"
		errorBody.Message = "The archive took too long to create"
	default:
		errorBody.StatusCode = http.StatusInternalServerError
		errorBody.Code = "internal_server_error"
		errorBody.Message = "A server error has occurred"
	}

	if acceptJSON(r) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(errorBody.StatusCode)

		if err := json.NewEncoder(w).Encode(errorInfo{errorBody}); err != nil {
			state.requestLogger(r).Warn("could not write error", zap.Error(err))
		}

		return
	}

	var buf bytes.Buffer
	err := swhttp.RenderError(&buf, swhttp.ErrorPage{
		Title:      state.config.Title,
		Theme:      state.config.Theme,
		StatusCode: errorBody.StatusCode,
		Code:       errorBody.Code,
		Message:    errorBody.Message,
	})
	if err != nil {
		state.requestLogger(r).Error("could not render error page", zap.Error(err))
		http.Error(w, errorBody.Message, errorBody.StatusCode)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(errorBody.StatusCode)
	w.Write(buf.Bytes())
}

// sendFailure maps errors from resolving, listing and archiving to a response.
func (state HandlerState) sendFailure(w http.ResponseWriter, r *http.Request, err error) {
	logger := state.requestLogger(r)

	if config.IsAccessError(err) {
		logger.Debug("access denied", zap.Error(err))
		state.sendError(w, r, http.StatusNotFound)
		return
	}

	var fsErr *listing.FilesystemError
	if errors.As(err, &fsErr) {
		logger.Error("could not list directory", zap.String("directory", fsErr.Path), zap.Error(fsErr.Err))
	} else {
		logger.Error("request failed", zap.Error(err))
	}
	state.sendError(w, r, http.StatusInternalServerError)
}

func (state HandlerState) browse(w http.ResponseWriter, r *http.Request) {
	logger := state.requestLogger(r)
	requestPath := r.URL.Path

	if pathutil.HasTraversal(requestPath) {
		state.sendError(w, r, http.StatusBadRequest)
		return
	}
	absolutePath := filepath.Join(state.config.Root, filepath.FromSlash(requestPath))
	if !pathutil.IsInside(absolutePath, state.config.Root) {
		state.sendError(w, r, http.StatusBadRequest)
		return
	}

	// Rule lookups are cached per resolver, which lives as long as the request
	resolver := config.NewResolver(state.config, logger)
	settings, err := resolver.Resolve(absolutePath)
	if err != nil {
		state.sendFailure(w, r, err)
		return
	}

	if !strings.HasSuffix(requestPath, "/") {
		target := r.URL.EscapedPath() + "/"
		if r.URL.RawQuery != "" {
			target += "?" + r.URL.RawQuery
		}
		http.Redirect(w, r, target, http.StatusMovedPermanently)
		return
	}

	dir := listing.New(settings, listing.Options{
		Root:       state.config.Root,
		IndexFiles: state.config.IndexFiles,
		Access:     resolver,
		URLs:       state.urls,
		Logger:     logger,
	})

	query := r.URL.Query()
	if _, ok := query["archive"]; ok {
		state.archive(w, r, dir, query.Get("archive"))
		return
	}

	page, err := state.directoryPage(dir, resolver)
	if err != nil {
		state.sendFailure(w, r, err)
		return
	}

	if acceptJSON(r) {
		state.sendJSON(w, r, http.StatusOK, page)
		return
	}

	var buf bytes.Buffer
	if err := swhttp.RenderDirectory(&buf, page); err != nil {
		state.sendFailure(w, r, errors.Wrap(err, "render directory"))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
}

func (state HandlerState) directoryPage(dir *listing.Directory, resolver *config.Resolver) (swhttp.DirectoryPage, error) {
	webpages, err := dir.Webpages()
	if err != nil {
		return swhttp.DirectoryPage{}, err
	}
	directories, err := dir.Directories()
	if err != nil {
		return swhttp.DirectoryPage{}, err
	}
	files, err := dir.Files()
	if err != nil {
		return swhttp.DirectoryPage{}, err
	}

	rel, err := pathutil.Relative(dir.Path(), state.config.Root)
	if err != nil {
		return swhttp.DirectoryPage{}, err
	}
	browserURL, err := state.urls.BrowserURL(dir.Path())
	if err != nil {
		return swhttp.DirectoryPage{}, err
	}

	page := swhttp.DirectoryPage{
		Title:       state.config.Title,
		Theme:       state.config.Theme,
		Path:        pathutil.FormatURLDirectory(rel),
		Description: dir.Description(),
		Breadcrumbs: state.breadcrumbs(rel, resolver),
		Webpages:    webpages,
		Directories: directories,
		Files:       files,
	}
	if dir.Archivable() && len(files) > 0 {
		page.ArchiveURL = browserURL + "?archive"
	}
	return page, nil
}

// breadcrumbs links every ancestor of rel that may be browsed. The root is
// always called "root".
func (state HandlerState) breadcrumbs(rel string, resolver *config.Resolver) []swhttp.Breadcrumb {
	crumbs := []swhttp.Breadcrumb{{Name: "root"}}
	current := state.config.Root
	if resolver.IsAccessible(current) {
		crumbs[0].URL, _ = state.urls.BrowserURL(current)
	}
	if rel == "" {
		return crumbs
	}

	for _, segment := range strings.Split(rel, "/") {
		current = filepath.Join(current, segment)
		crumb := swhttp.Breadcrumb{Name: segment}
		if resolver.IsAccessible(current) {
			crumb.URL, _ = state.urls.BrowserURL(current)
		}
		crumbs = append(crumbs, crumb)
	}
	return crumbs
}

func (state HandlerState) AttachRoutes(router chi.Router) {
	router.Get("/cache/*", state.sendArchive)
	router.Get("/*", state.browse)
}
