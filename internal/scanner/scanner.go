// Package scanner walks a directory tree and discovers the C translation
// units to analyze. It respects .cvetignore files with gitignore-style
// patterns and skips build output and VCS metadata by default.
package scanner

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileInfo represents one discovered source file.
type FileInfo struct {
	Path     string // Relative path from root
	FullPath string // Absolute path
	Size     int64  // File size in bytes
}

// Options configures the scanner behavior.
type Options struct {
	SkipHidden     bool     // Skip hidden files and directories (starting with .)
	FollowSymlinks bool     // Follow symlinks (within root only)
	Extensions     []string // File extensions to collect
	Excludes       []string // Directory names to exclude
	IgnoreFileName string   // Name of the ignore file (default: .cvetignore)
}

// DefaultOptions returns scanner options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		SkipHidden:     true,
		FollowSymlinks: false,
		Extensions:     []string{".c", ".h"},
		IgnoreFileName: ".cvetignore",
		Excludes: []string{
			".git",
			".hg",
			".svn",
			"build",
			"out",
			"obj",
			"third_party",
			"vendor",
		},
	}
}

// Scanner provides file tree scanning capabilities.
type Scanner struct {
	opts Options
	root string
}

// New creates a new Scanner with the given options.
func New(opts Options) *Scanner {
	return &Scanner{opts: opts}
}

// Scan recursively scans the directory at root and returns the C sources
// found under it, respecting .cvetignore patterns and default exclusions.
func (s *Scanner) Scan(root string) ([]FileInfo, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("getting absolute path: %w", err)
	}
	s.root = absRoot

	ignorePatterns, err := s.loadIgnorePatterns(absRoot)
	if err != nil {
		return nil, fmt.Errorf("loading ignore patterns: %w", err)
	}

	var files []FileInfo

	err = filepath.Walk(absRoot, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			// Unreadable entries are skipped, not fatal
			return nil
		}

		relPath, err := filepath.Rel(absRoot, path)
		if err != nil {
			return nil
		}
		if relPath == "." {
			return nil
		}
		relPathSlash := filepath.ToSlash(relPath)

		if s.opts.SkipHidden && strings.HasPrefix(info.Name(), ".") {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if info.IsDir() {
			if s.isExcluded(info.Name()) {
				return filepath.SkipDir
			}
			// Nested .cvetignore files add to the pattern set
			nested, err := s.loadIgnorePatterns(path)
			if err == nil && len(nested) > 0 {
				ignorePatterns = append(ignorePatterns, nested...)
			}
			return nil
		}

		if matchesIgnorePatterns(relPathSlash, ignorePatterns) {
			return nil
		}

		if info.Mode()&os.ModeSymlink != 0 {
			target, ok := s.resolveSymlink(path, absRoot)
			if !ok {
				return nil
			}
			info = target
		}

		if !s.isSource(path) {
			return nil
		}

		files = append(files, FileInfo{
			Path:     relPathSlash,
			FullPath: path,
			Size:     info.Size(),
		})

		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("walking directory: %w", err)
	}

	return files, nil
}

// resolveSymlink follows a file symlink when FollowSymlinks is set, refusing
// targets outside the scan root and directory links.
func (s *Scanner) resolveSymlink(path, absRoot string) (os.FileInfo, bool) {
	if !s.opts.FollowSymlinks {
		return nil, false
	}
	realPath, err := filepath.EvalSymlinks(path)
	if err != nil {
		return nil, false
	}
	realAbs, err := filepath.Abs(realPath)
	if err != nil {
		return nil, false
	}
	if !strings.HasPrefix(realAbs, absRoot+string(filepath.Separator)) && realAbs != absRoot {
		return nil, false
	}
	target, err := os.Stat(realPath)
	if err != nil || target.IsDir() {
		return nil, false
	}
	return target, true
}

func (s *Scanner) isSource(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, want := range s.opts.Extensions {
		if ext == want {
			return true
		}
	}
	return false
}

func (s *Scanner) isExcluded(name string) bool {
	for _, exclude := range s.opts.Excludes {
		if strings.EqualFold(name, exclude) {
			return true
		}
	}
	return false
}

// loadIgnorePatterns reads the ignore file in dir, if present.
func (s *Scanner) loadIgnorePatterns(dir string) ([]IgnorePattern, error) {
	ignorePath := filepath.Join(dir, s.opts.IgnoreFileName)
	file, err := os.Open(ignorePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer file.Close()

	var patterns []IgnorePattern
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, ParseIgnorePattern(line))
	}

	return patterns, scanner.Err()
}

// matchesIgnorePatterns applies gitignore semantics: patterns are checked in
// order, and negation patterns override previous positive matches.
func matchesIgnorePatterns(relPath string, patterns []IgnorePattern) bool {
	ignored := false
	for _, pattern := range patterns {
		if pattern.Match(relPath) {
			ignored = !pattern.IsNegation()
		}
	}
	return ignored
}

// Scan is a convenience function that scans a directory with default options.
func Scan(root string) ([]FileInfo, error) {
	return New(DefaultOptions()).Scan(root)
}
