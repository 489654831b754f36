// Package swhttp holds the HTML pages rendered by the browser.
package swhttp

import (
	_ "embed"
	"html/template"
	"io"

	"github.com/koblas/swbrowse/pkg/listing"
)

//go:embed error.html
var errorHtml string

//go:embed directory.html
var directoryHtml string

var errorTemplate = template.Must(template.New("error").Parse(errorHtml))
var directoryTemplate = template.Must(template.New("directory").Parse(directoryHtml))

type Breadcrumb struct {
	Name string `json:"name"`
	// URL is empty for ancestors that may not be browsed.
	URL string `json:"url,omitempty"`
}

// DirectoryPage is the listing of one directory. It is also the JSON body
// sent to clients asking for application/json.
type DirectoryPage struct {
	Title       string          `json:"title"`
	Theme       string          `json:"theme"`
	Path        string          `json:"path"`
	Description string          `json:"description,omitempty"`
	Breadcrumbs []Breadcrumb    `json:"breadcrumbs"`
	Webpages    []listing.Entry `json:"webpages"`
	Directories []listing.Entry `json:"directories"`
	Files       []listing.Entry `json:"files"`
	ArchiveURL  string          `json:"archiveUrl,omitempty"`
}

type ErrorPage struct {
	Title      string
	Theme      string
	StatusCode int
	Code       string
	Message    string
}

func RenderDirectory(w io.Writer, page DirectoryPage) error {
	return directoryTemplate.Execute(w, page)
}

func RenderError(w io.Writer, page ErrorPage) error {
	return errorTemplate.Execute(w, page)
}
