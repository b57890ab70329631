package indexer

import (
	"io/fs"
	"path/filepath"
	"strings"
)

// FilterConfig decides which files the indexer will touch.
type FilterConfig struct {
	// Extensions lists the note file extensions, with leading dot.
	Extensions []string
	// MaxFileSize is the per-file size ceiling in bytes. Zero disables
	// the check.
	MaxFileSize int64
	// ExcludeGlobs are slash-separated glob patterns matched against the
	// mosaic-relative path. `*` matches within one path segment, `**`
	// matches across segments.
	ExcludeGlobs []string
	// IncludeHidden indexes dotfiles and files inside dot-directories.
	IncludeHidden bool
}

// DefaultFilterConfig returns the filter used when none is configured.
func DefaultFilterConfig() FilterConfig {
	return FilterConfig{
		Extensions:   []string{".md", ".markdown"},
		MaxFileSize:  10 << 20,
		ExcludeGlobs: []string{"**/*.tmp", "**/.tessera-tmp-*"},
	}
}

// ShouldIndexFile reports whether the file at relPath (mosaic-relative,
// slash-separated) with the given file info is eligible for indexing.
func (c FilterConfig) ShouldIndexFile(relPath string, info fs.FileInfo) bool {
	if info == nil || !info.Mode().IsRegular() {
		return false
	}
	if !c.hasNoteExtension(relPath) {
		return false
	}
	if !c.IncludeHidden && isHidden(relPath) {
		return false
	}
	if c.MaxFileSize > 0 && info.Size() > c.MaxFileSize {
		return false
	}
	for _, pattern := range c.ExcludeGlobs {
		if globMatch(pattern, relPath) {
			return false
		}
	}
	return true
}

func (c FilterConfig) hasNoteExtension(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, want := range c.Extensions {
		if ext == want {
			return true
		}
	}
	return false
}

func isHidden(relPath string) bool {
	for _, seg := range strings.Split(relPath, "/") {
		if len(seg) > 1 && strings.HasPrefix(seg, ".") {
			return true
		}
	}
	return false
}

// globMatch matches a slash-separated path against a glob pattern where
// `*` and `?` stay within a single segment and `**` spans any number of
// segments (including zero).
func globMatch(pattern, path string) bool {
	return matchSegments(strings.Split(pattern, "/"), strings.Split(path, "/"))
}

func matchSegments(pattern, path []string) bool {
	if len(pattern) == 0 {
		return len(path) == 0
	}
	if pattern[0] == "**" {
		// `**` absorbs zero or more leading segments.
		for skip := 0; skip <= len(path); skip++ {
			if matchSegments(pattern[1:], path[skip:]) {
				return true
			}
		}
		return false
	}
	if len(path) == 0 {
		return false
	}
	ok, err := filepath.Match(pattern[0], path[0])
	if err != nil || !ok {
		return false
	}
	return matchSegments(pattern[1:], path[1:])
}
