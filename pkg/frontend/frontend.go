// Package frontend lowers C source into the analyzer's program model. It
// parses with tree-sitter and reduces the syntax tree to the statement and
// expression variants the analyses consume; constructs outside that model
// come through as unsupported statements and fail only the enclosing
// function, never the run.
package frontend

import (
	"fmt"
	"os"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/c"

	"github.com/quarle/cvet/pkg/program"
)

// cParserPool is a pool of reusable tree-sitter parsers for C.
var cParserPool = sync.Pool{
	New: func() interface{} {
		parser := sitter.NewParser()
		parser.SetLanguage(c.GetLanguage())
		return parser
	},
}

// File is the lowered form of one translation unit.
type File struct {
	Path      string
	Functions []*program.Function
	Globals   []program.GlobalDecl
}

// FileExtensions returns the file extensions the frontend accepts.
func FileExtensions() []string {
	return []string{".c", ".h"}
}

// ParseFile reads and lowers one C file.
func ParseFile(path string) (*File, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading file %s: %w", path, err)
	}
	return ParseSource(content, path)
}

// ParseSource lowers C source bytes. The path is recorded on every function
// and global for findings output.
func ParseSource(content []byte, path string) (*File, error) {
	parser := cParserPool.Get().(*sitter.Parser)
	defer cParserPool.Put(parser)

	tree := parser.Parse(nil, content)
	if tree == nil {
		return nil, fmt.Errorf("parsing file %s failed", path)
	}
	defer tree.Close()

	l := &lowerer{content: content, path: path, fnPtrTypes: make(map[string]bool)}
	root := tree.RootNode()

	// Typedef pass first so later declarations can recognize function
	// pointer type names wherever they appear in the unit.
	l.collectTypedefs(root)

	f := &File{Path: path}
	for i := 0; i < int(root.ChildCount()); i++ {
		child := root.Child(i)
		if child == nil {
			continue
		}
		switch child.Type() {
		case "function_definition":
			if fn := l.lowerFunction(child); fn != nil {
				f.Functions = append(f.Functions, fn)
			}
		case "declaration":
			f.Globals = append(f.Globals, l.lowerGlobals(child)...)
		}
	}
	return f, nil
}

// Load merges lowered files into one program. Ingestion order fixes symbol
// IDs, so callers should pass files in a stable order.
func Load(files ...*File) *program.Program {
	var functions []*program.Function
	var globals []program.GlobalDecl
	for _, f := range files {
		functions = append(functions, f.Functions...)
		globals = append(globals, f.Globals...)
	}
	return program.NewProgram(functions, globals)
}
