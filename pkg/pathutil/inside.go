package pathutil

import (
	"path/filepath"
	"runtime"
	"strings"

	"github.com/pkg/errors"
)

// IsInside reports whether thePath is potentialParent or one of its
// descendants. Trailing separators on either side are ignored.
func IsInside(thePath, potentialParent string) bool {
	thePath = stripTrailingSep(thePath)
	potentialParent = stripTrailingSep(potentialParent)

	if runtime.GOOS == "windows" {
		thePath = strings.ToLower(thePath)
		potentialParent = strings.ToLower(potentialParent)
	}

	// The filesystem root strips down to "", every absolute path is inside it
	if potentialParent == "" {
		return strings.HasPrefix(thePath, string(filepath.Separator)) || thePath == ""
	}

	plen := len(potentialParent)
	return strings.HasPrefix(thePath, potentialParent) && (len(thePath) == plen || thePath[plen] == filepath.Separator)
}

func stripTrailingSep(thePath string) string {
	return strings.TrimRight(thePath, string(filepath.Separator))
}

// Canonical returns the absolute, cleaned form of path with every symlink
// resolved. The path must exist.
func Canonical(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", errors.Wrapf(err, "absolute path of %s", path)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", errors.Wrapf(err, "resolve %s", path)
	}
	return filepath.Clean(resolved), nil
}

// Relative returns the slash separated path of target below root, or "" when
// target is root itself.
func Relative(target, root string) (string, error) {
	if !IsInside(target, root) {
		return "", errors.Errorf("%s is not inside %s", target, root)
	}
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return "", errors.Wrapf(err, "relative path of %s", target)
	}
	if rel == "." {
		return "", nil
	}
	return filepath.ToSlash(rel), nil
}

// HasTraversal reports whether a slash separated request path contains a
// ".." segment.
func HasTraversal(requestPath string) bool {
	for _, segment := range strings.Split(requestPath, "/") {
		if segment == ".." {
			return true
		}
	}
	return false
}
