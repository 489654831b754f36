// Package listing builds the filtered view of a single directory.
package listing

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/koblas/swbrowse/pkg/config"
	"github.com/koblas/swbrowse/pkg/metrics"
	"github.com/koblas/swbrowse/pkg/pathutil"
	"go.uber.org/zap"
)

// FilesystemError is returned when a directory cannot be read while listing.
type FilesystemError struct {
	Path string
	Err  error
}

func (e *FilesystemError) Error() string {
	return fmt.Sprintf("could not read directory %s: %v", e.Path, e.Err)
}

func (e *FilesystemError) Unwrap() error { return e.Err }
func (e *FilesystemError) Cause() error  { return e.Err }

// Access decides whether a subdirectory may be linked to.
type Access interface {
	IsAccessible(directory string) bool
}

// URLs builds the links attached to entries.
type URLs interface {
	DataURL(abs string, isDir bool) (string, error)
	BrowserURL(abs string) (string, error)
}

type Options struct {
	// Root, when set, hides symlinked children whose target lies outside it.
	Root       string
	IndexFiles []string
	Access     Access
	URLs       URLs
	Logger     *zap.Logger
}

// Directory is the view of one directory. Entries are read from disk on the
// first call to any accessor and kept for the lifetime of the value, so a
// Directory must not outlive the request it was built for.
type Directory struct {
	settings *config.DirectorySettings
	opts     Options

	fetched     bool
	err         error
	webpages    []Entry
	directories []Entry
	files       []Entry
}

func New(settings *config.DirectorySettings, opts Options) *Directory {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Directory{settings: settings, opts: opts}
}

func (d *Directory) Path() string                        { return d.settings.Path }
func (d *Directory) Settings() *config.DirectorySettings { return d.settings }
func (d *Directory) Description() string                 { return d.settings.Description }
func (d *Directory) Archivable() bool                    { return d.settings.Archivable }

func (d *Directory) Webpages() ([]Entry, error) {
	if err := d.fetchEntries(); err != nil {
		return nil, err
	}
	return d.webpages, nil
}

func (d *Directory) Directories() ([]Entry, error) {
	if err := d.fetchEntries(); err != nil {
		return nil, err
	}
	return d.directories, nil
}

func (d *Directory) Files() ([]Entry, error) {
	if err := d.fetchEntries(); err != nil {
		return nil, err
	}
	return d.files, nil
}

// IsEmpty reports whether nothing survived filtering.
func (d *Directory) IsEmpty() (bool, error) {
	if err := d.fetchEntries(); err != nil {
		return false, err
	}
	return len(d.webpages)+len(d.directories)+len(d.files) == 0, nil
}

func (d *Directory) fetchEntries() error {
	if d.fetched {
		return d.err
	}
	d.fetched = true

	start := time.Now()
	d.err = d.scan()
	metrics.RecordListing(time.Since(start), d.err == nil)

	if d.err != nil {
		d.webpages, d.directories, d.files = nil, nil, nil
		d.opts.Logger.Error("directory listing failed",
			zap.String("directory", d.settings.Path),
			zap.Error(d.err))
	}
	return d.err
}

func (d *Directory) scan() error {
	path := d.settings.Path
	children, err := os.ReadDir(path)
	if err != nil {
		return &FilesystemError{Path: path, Err: err}
	}

	d.webpages = []Entry{}
	d.directories = []Entry{}
	d.files = []Entry{}

	display := d.settings.Display

	for _, child := range children {
		name := child.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}

		childPath := filepath.Join(path, name)
		if child.Type()&os.ModeSymlink != 0 && !d.insideRoot(childPath) {
			continue
		}
		info, err := os.Stat(childPath)
		if err != nil || !isReadable(childPath) {
			continue
		}

		if info.IsDir() {
			if display.Webpages && d.settings.Webpages.Passes(name) && d.hasIndexFile(childPath) {
				d.webpages = append(d.webpages, Entry{
					Kind: KindWebpage,
					Name: name,
					Path: childPath,
					URL:  d.dataURL(childPath, true),
				})
			}

			if display.Directories && d.settings.Directories.Passes(name) && d.accessible(childPath) {
				d.directories = append(d.directories, Entry{
					Kind: KindDirectory,
					Name: name,
					Path: childPath,
					URL:  d.browserURL(childPath),
				})
			}
		} else if info.Mode().IsRegular() && display.Files && d.settings.Files.Passes(name) {
			d.files = append(d.files, Entry{
				Kind: KindFile,
				Name: name,
				Path: childPath,
				URL:  d.dataURL(childPath, false),
				File: &FileDetails{
					Size:     FormatByteSize(info.Size()),
					Bytes:    info.Size(),
					Modified: info.ModTime(),
				},
			})
		}
	}

	sortEntries(d.webpages)
	sortEntries(d.directories)
	sortEntries(d.files)

	return nil
}

func (d *Directory) insideRoot(link string) bool {
	if d.opts.Root == "" {
		return true
	}
	target, err := filepath.EvalSymlinks(link)
	if err != nil {
		return false
	}
	return pathutil.IsInside(target, d.opts.Root)
}

func (d *Directory) hasIndexFile(dir string) bool {
	for _, indexFile := range d.opts.IndexFiles {
		if _, err := os.Stat(filepath.Join(dir, indexFile)); err == nil {
			return true
		}
	}
	return false
}

func (d *Directory) accessible(dir string) bool {
	if d.opts.Access == nil {
		return false
	}
	return d.opts.Access.IsAccessible(dir)
}

func (d *Directory) dataURL(abs string, isDir bool) string {
	if d.opts.URLs == nil {
		return ""
	}
	u, err := d.opts.URLs.DataURL(abs, isDir)
	if err != nil {
		d.opts.Logger.Warn("no data url", zap.String("path", abs), zap.Error(err))
	}
	return u
}

func (d *Directory) browserURL(abs string) string {
	if d.opts.URLs == nil {
		return ""
	}
	u, err := d.opts.URLs.BrowserURL(abs)
	if err != nil {
		d.opts.Logger.Warn("no browser url", zap.String("path", abs), zap.Error(err))
	}
	return u
}

func isReadable(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	f.Close()
	return true
}

func sortEntries(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return naturalLess(entries[i].Name, entries[j].Name)
	})
}
