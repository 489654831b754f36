package pathutil

import (
	"net/url"
	"strings"
)

// EncodeURI percent-encodes every segment of a slash separated path while
// keeping the separators and a leading "scheme://host" intact.
func EncodeURI(p string) string {
	prefix := ""
	if idx := strings.Index(p, "://"); idx > 0 {
		rest := p[idx+3:]
		host := rest
		if slash := strings.IndexByte(rest, '/'); slash >= 0 {
			host = rest[:slash]
		}
		prefix = p[:idx+3] + host
		p = p[len(prefix):]
	}

	segments := strings.Split(p, "/")
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}
	return prefix + strings.Join(segments, "/")
}

// FormatURLDirectory makes sure a URL path starts and ends with a slash. Full
// URLs keep their scheme and only get the trailing slash.
func FormatURLDirectory(u string) string {
	if !strings.Contains(u, "://") && !strings.HasPrefix(u, "/") {
		u = "/" + u
	}
	if !strings.HasSuffix(u, "/") {
		u += "/"
	}
	return u
}

// URLGenerator maps absolute filesystem paths below Root to the two URL
// spaces: data URLs (raw files, served from Webroot by someone else) and
// browser URLs (listings served by this program).
type URLGenerator struct {
	Root        string
	Webroot     string
	BrowserBase string
}

// DataURL returns the URL of the raw file or directory at abs.
func (g URLGenerator) DataURL(abs string, isDir bool) (string, error) {
	rel, err := Relative(abs, g.Root)
	if err != nil {
		return "", err
	}
	return joinURL(FormatURLDirectory(g.Webroot), rel, isDir), nil
}

// BrowserURL returns the listing URL for the directory at abs.
func (g URLGenerator) BrowserURL(abs string) (string, error) {
	rel, err := Relative(abs, g.Root)
	if err != nil {
		return "", err
	}
	return joinURL(g.browserBase(), rel, true), nil
}

// CacheURL returns the URL an archive below the cache directory is served at.
func (g URLGenerator) CacheURL(rel string) string {
	return joinURL(g.browserBase(), "cache/"+strings.TrimPrefix(rel, "/"), false)
}

func (g URLGenerator) browserBase() string {
	if g.BrowserBase == "" {
		return "/"
	}
	return FormatURLDirectory(g.BrowserBase)
}

// joinURL appends an unencoded relative path to an already encoded base.
func joinURL(base, rel string, isDir bool) string {
	if rel == "" {
		return base
	}
	out := base + EncodeURI(rel)
	if isDir && !strings.HasSuffix(out, "/") {
		out += "/"
	}
	return out
}
