package vol

import (
	"path/filepath"
	"strings"
)

// Extension is the conventional file extension of the container
const Extension = ".vol"

// HasExtension reports whether path names a .vol file
func HasExtension(path string) bool {
	return strings.EqualFold(filepath.Ext(path), Extension)
}

// WithExtension appends .vol to path unless it already ends with it
func WithExtension(path string) string {
	if HasExtension(path) {
		return path
	}
	return path + Extension
}
