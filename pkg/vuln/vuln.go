// Package vuln implements the vulnerability pattern rules: unsafe copies,
// overflow-prone allocation sizes, format-string injection, and TOCTOU file
// races. Rules are intraprocedural, operate over call sites and their
// argument dataflow, and emit at most one finding per rule per call site.
package vuln

import (
	"github.com/quarle/cvet/pkg/cfg"
	"github.com/quarle/cvet/pkg/findings"
	"github.com/quarle/cvet/pkg/program"
)

// Detector runs every rule over one function's CFG. A single Detector serves
// a whole run; it holds no per-function state.
type Detector struct {
	prog *program.Program
	cat  *program.Catalog
}

// New returns a detector matching primitives against cat. prog supplies
// global declarations so fixed-capacity global buffers are recognized too.
func New(prog *program.Program, cat *program.Catalog) *Detector {
	return &Detector{prog: prog, cat: cat}
}

// Analyze applies all rules to one function.
func (d *Detector) Analyze(g *cfg.Graph) []findings.Finding {
	fx := d.newFuncContext(g)
	var out []findings.Finding
	out = append(out, d.checkCopies(g, fx)...)
	out = append(out, d.checkAllocs(g, fx)...)
	out = append(out, d.checkFormats(g, fx)...)
	out = append(out, d.checkToctou(g)...)
	return out
}

// funcContext caches the per-function facts the rules share: declared buffer
// capacities, the parameter set, and every assignment in the body.
type funcContext struct {
	caps    map[string]int64
	params  map[string]bool
	assigns []cfg.Operation
}

func (d *Detector) newFuncContext(g *cfg.Graph) *funcContext {
	fx := &funcContext{
		caps:   make(map[string]int64),
		params: make(map[string]bool),
	}
	for _, p := range g.Function.Params {
		fx.params[p.Name] = true
	}
	for _, gd := range d.prog.Globals {
		if gd.ArraySize > 0 {
			fx.caps[gd.Name] = gd.ArraySize
		}
	}
	for _, n := range g.Nodes {
		for _, op := range n.Ops {
			switch op.Kind {
			case cfg.OpDecl:
				if op.Decl.ArraySize > 0 {
					fx.caps[op.Decl.DeclName] = op.Decl.ArraySize
				}
			case cfg.OpAssign:
				fx.assigns = append(fx.assigns, op)
			}
		}
	}
	return fx
}

// primAt returns the catalog entry for a call operation's callee, matching
// simple named callees only; indirect calls are never primitives.
func (d *Detector) primAt(op cfg.Operation) (program.Primitive, bool) {
	if op.Kind != cfg.OpCall || op.Call.Callee.Kind != program.ExprIdent {
		return program.Primitive{}, false
	}
	return d.cat.Lookup(op.Call.Callee.Name)
}

// argAt returns the idx-th argument of a call, nil when out of range.
func argAt(call *program.Expr, idx int) *program.Expr {
	if idx < 0 || idx >= len(call.Args) {
		return nil
	}
	return call.Args[idx]
}
