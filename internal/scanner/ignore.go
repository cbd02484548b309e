package scanner

import (
	"path/filepath"
	"strings"
)

// IgnorePattern is a single parsed gitignore-style pattern.
type IgnorePattern struct {
	isNegation  bool // pattern started with !
	isDirectory bool // pattern ended with /, matches everything under it
	isAnchored  bool // pattern started with /, matches from the root only
	segments    []string
}

// ParseIgnorePattern parses a gitignore-style pattern string.
func ParseIgnorePattern(pattern string) IgnorePattern {
	var p IgnorePattern

	if strings.HasPrefix(pattern, "!") {
		p.isNegation = true
		pattern = pattern[1:]
	}
	if strings.HasSuffix(pattern, "/") {
		p.isDirectory = true
		pattern = strings.TrimSuffix(pattern, "/")
	}
	if strings.HasPrefix(pattern, "/") {
		p.isAnchored = true
		pattern = pattern[1:]
	}

	p.segments = strings.Split(pattern, "/")
	return p
}

// IsNegation reports whether this pattern un-ignores matching paths.
func (p IgnorePattern) IsNegation() bool {
	return p.isNegation
}

// Match reports whether the slash-separated relative path matches.
func (p IgnorePattern) Match(path string) bool {
	parts := strings.Split(filepath.ToSlash(path), "/")

	if p.isAnchored {
		return matchSegments(p.segments, parts, p.isDirectory)
	}
	// Unanchored patterns can start at any path depth
	for i := range parts {
		if matchSegments(p.segments, parts[i:], p.isDirectory) {
			return true
		}
	}
	return false
}

// matchSegments matches pattern segments against the leading path segments.
// Directory patterns accept any suffix below the matched prefix; file
// patterns must consume the whole path.

func matchSegments(pat, parts []string, prefixOK bool) bool {
	if len(pat) == 0 {
		return prefixOK || len(parts) == 0
	}
	if pat[0] == "**" {
		if len(pat) == 1 {
			return true
		}
		for i := 0; i <= len(parts); i++ {
			if matchSegments(pat[1:], parts[i:], prefixOK) {
				return true
			}
		}
		return false
	}
	if len(parts) == 0 {
		return false
	}
	if ok, err := filepath.Match(pat[0], parts[0]); err != nil || !ok {
		return false
	}
	return matchSegments(pat[1:], parts[1:], prefixOK)
}
