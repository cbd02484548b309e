package scanner

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for path, content := range files {
		fullPath := filepath.Join(root, path)
		if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
			t.Fatalf("Failed to create directory: %v", err)
		}
		if err := os.WriteFile(fullPath, []byte(content), 0644); err != nil {
			t.Fatalf("Failed to create file: %v", err)
		}
	}
}

func TestScannerScan(t *testing.T) {
	tmpDir := t.TempDir()

	writeTree(t, tmpDir, map[string]string{
		"main.c":            "int main(void) { return 0; }",
		"include/util.h":    "void helper(void);",
		"src/util.c":        "void helper(void) {}",
		"README.md":         "# Test",
		"Makefile":          "all:",
		".hidden/secret.c":  "int hidden;",
		"build/generated.c": "int generated;",
		".git/config":       "[core]",
	})

	results, err := New(DefaultOptions()).Scan(tmpDir)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}

	foundFiles := make(map[string]bool)
	for _, f := range results {
		foundFiles[f.Path] = true
	}

	for _, expected := range []string{"main.c", "include/util.h", "src/util.c"} {
		if !foundFiles[expected] {
			t.Errorf("Expected to find %s, but it wasn't found", expected)
		}
	}

	for _, excluded := range []string{"README.md", "Makefile", ".hidden/secret.c", "build/generated.c", ".git/config"} {
		if foundFiles[excluded] {
			t.Errorf("Expected %s to be excluded, but it was found", excluded)
		}
	}
}

func TestScannerWithCvetignore(t *testing.T) {
	tmpDir := t.TempDir()

	ignoreContent := `# Generated parser
parser.c
# Test harness
tests/
*_gen.c
`
	if err := os.WriteFile(filepath.Join(tmpDir, ".cvetignore"), []byte(ignoreContent), 0644); err != nil {
		t.Fatalf("Failed to create .cvetignore: %v", err)
	}

	writeTree(t, tmpDir, map[string]string{
		"main.c":         "int main(void) { return 0; }",
		"parser.c":       "int parse;",
		"lexer_gen.c":    "int lex;",
		"tests/check.c":  "int check;",
		"src/handlers.c": "int handle;",
	})

	results, err := New(DefaultOptions()).Scan(tmpDir)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}

	foundFiles := make(map[string]bool)
	for _, f := range results {
		foundFiles[f.Path] = true
	}

	for _, expected := range []string{"main.c", "src/handlers.c"} {
		if !foundFiles[expected] {
			t.Errorf("Expected to find %s", expected)
		}
	}

	for _, ignored := range []string{"parser.c", "lexer_gen.c", "tests/check.c"} {
		if foundFiles[ignored] {
			t.Errorf("Expected %s to be ignored", ignored)
		}
	}
}

func TestScannerSkipHidden(t *testing.T) {
	tmpDir := t.TempDir()

	writeTree(t, tmpDir, map[string]string{
		"visible.c":   "int v;",
		".hidden/x.c": "int h;",
		".config.c":   "int c;",
	})

	opts := DefaultOptions()
	results, err := New(opts).Scan(tmpDir)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	for _, f := range results {
		if f.Path == ".hidden/x.c" || f.Path == ".config.c" {
			t.Errorf("Should skip hidden entry %s when SkipHidden=true", f.Path)
		}
	}

	opts.SkipHidden = false
	results, err = New(opts).Scan(tmpDir)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	found := false
	for _, f := range results {
		if f.Path == ".config.c" {
			found = true
		}
	}
	if !found {
		t.Error("Should find .config.c when SkipHidden=false")
	}
}

func TestIgnorePattern(t *testing.T) {
	tests := []struct {
		pattern string
		path    string
		match   bool
	}{
		// Simple patterns
		{"*.o", "file.o", true},
		{"*.o", "dir/file.o", true},
		{"*.o", "file.c", false},
		{"build/", "build/file.c", true},
		{"build/", "other/build/file.c", true},
		{"build/", "builder.c", false},

		// Anchored patterns
		{"/build/", "build/file.c", true},
		{"/build/", "src/build/file.c", false},

		// Glob patterns
		{"*_test.c", "cfg_test.c", true},
		{"*_test.c", "deep/cfg_test.c", true},
		{"src/*.c", "src/app.c", true},
		{"src/*.c", "src/deep/app.c", false},

		// Double asterisk
		{"**/gen/**", "gen/file.c", true},
		{"**/gen/**", "src/gen/file.c", true},
		{"**/gen/**", "src/deep/gen/file.c", true},
		{"**/gen/**", "generated/file.c", false},

		// Question mark
		{"file?.c", "file1.c", true},
		{"file?.c", "file12.c", false},

		// Negation patterns still report a match; the caller flips the state
		{"!*.c", "file.c", true},
	}

	for _, tt := range tests {
		pattern := ParseIgnorePattern(tt.pattern)
		result := pattern.Match(tt.path)
		if result != tt.match {
			t.Errorf("Pattern %q matching %q: got %v, want %v", tt.pattern, tt.path, result, tt.match)
		}
	}
}
