package api

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var (
	errBadPath     = errors.New("invalid path")
	errIsDirectory = errors.New("path is a directory")
)

// resolvePath joins a client-supplied, slash-separated path onto root. It
// rejects absolute paths, ".." components and NUL bytes, and guarantees the
// result stays lexically under root. An empty path resolves to root.
func resolvePath(root, raw string) (string, error) {
	if strings.ContainsRune(raw, 0) {
		return "", fmt.Errorf("%w: contains NUL", errBadPath)
	}
	if strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, `\`) || filepath.IsAbs(raw) || filepath.VolumeName(raw) != "" {
		return "", fmt.Errorf("%w: absolute path %q", errBadPath, raw)
	}
	for _, seg := range strings.FieldsFunc(raw, func(r rune) bool { return r == '/' || r == '\\' }) {
		if seg == ".." {
			return "", fmt.Errorf("%w: parent reference in %q", errBadPath, raw)
		}
	}

	full := filepath.Join(root, filepath.FromSlash(raw))
	if full != root && !strings.HasPrefix(full, strings.TrimSuffix(root, string(os.PathSeparator))+string(os.PathSeparator)) {
		return "", fmt.Errorf("%w: %q escapes the served directory", errBadPath, raw)
	}
	return full, nil
}
