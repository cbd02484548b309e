// Package program defines the typed in-memory representation of analyzed C
// code: functions, statements, expressions, and the catalog of recognized
// primitive operations. The front-end produces it; every analysis pass
// consumes it. Values are treated as immutable once ingested.
package program

import "fmt"

// SymbolID uniquely identifies a function symbol within a Program.
type SymbolID int

// Param is a single function parameter.
type Param struct {
	Name string
	Type string
}

// Function is one ingested function definition.
type Function struct {
	Name   string
	Symbol SymbolID
	Params []Param
	Body   *Stmt // block statement; nil only for declarations without bodies
	File   string
	Line   int
}

// GlobalDecl is a file-scope variable declaration. Function-pointer tables and
// plain globals both land here. Process-wide state in the analyzed program is
// modeled as ordinary storage just like any local.
type GlobalDecl struct {
	Name      string
	Type      string
	ArraySize int64 // declared element count for arrays, 0 otherwise
	IsFuncPtr bool
	File      string
	Line      int
}

// Program is the unit of analysis: every function and global visible to the
// run. Symbols outside this set are external.
type Program struct {
	Functions []*Function
	Globals   []GlobalDecl

	byName       map[string]*Function
	bySymbol     map[SymbolID]*Function
	globalByName map[string]*GlobalDecl
}

// NewProgram assembles a Program and assigns symbol IDs in ingestion order,
// which keeps downstream output order stable across runs.
func NewProgram(functions []*Function, globals []GlobalDecl) *Program {
	p := &Program{
		Functions:    functions,
		Globals:      globals,
		byName:       make(map[string]*Function, len(functions)),
		bySymbol:     make(map[SymbolID]*Function, len(functions)),
		globalByName: make(map[string]*GlobalDecl, len(globals)),
	}
	for i := range globals {
		g := &p.Globals[i]
		if _, dup := p.globalByName[g.Name]; !dup {
			p.globalByName[g.Name] = g
		}
	}
	for i, fn := range functions {
		fn.Symbol = SymbolID(i)
		if _, dup := p.byName[fn.Name]; !dup {
			p.byName[fn.Name] = fn
		}
		p.bySymbol[fn.Symbol] = fn
	}
	return p
}

// FunctionByName returns the function with the given name, if ingested.
func (p *Program) FunctionByName(name string) (*Function, bool) {
	fn, ok := p.byName[name]
	return fn, ok
}

// FunctionBySymbol returns the function with the given symbol ID.
func (p *Program) FunctionBySymbol(id SymbolID) (*Function, bool) {
	fn, ok := p.bySymbol[id]
	return fn, ok
}

// GlobalByName returns the file-scope declaration with the given name.
func (p *Program) GlobalByName(name string) (*GlobalDecl, bool) {
	g, ok := p.globalByName[name]
	return g, ok
}

// IsFunctionName reports whether name refers to an ingested function symbol.
func (p *Program) IsFunctionName(name string) bool {
	_, ok := p.byName[name]
	return ok
}

// ParamIndex returns the position of the named parameter of fn, or -1.
func (fn *Function) ParamIndex(name string) int {
	for i, p := range fn.Params {
		if p.Name == name {
			return i
		}
	}
	return -1
}

func (fn *Function) String() string {
	return fmt.Sprintf("%s (%s:%d)", fn.Name, fn.File, fn.Line)
}
