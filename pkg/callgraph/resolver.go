package callgraph

import (
	"fmt"
	"sync"

	"github.com/quarle/cvet/pkg/cfg"
	"github.com/quarle/cvet/pkg/findings"
	"github.com/quarle/cvet/pkg/program"
)

// PointsTo is the flow-sensitive state at a program point: for each storage
// location, the set of function symbols it may hold. Sets grow monotonically
// along a path and are unioned at joins; over-approximating keeps the call
// graph sound at the cost of possible ambiguous-call reports.
type PointsTo map[LocID]SymbolSet

func (p PointsTo) clone() PointsTo {
	c := make(PointsTo, len(p))
	for loc, set := range p {
		c[loc] = set.Clone()
	}
	return c
}

// merge unions other into p, reporting growth.
func (p PointsTo) merge(other PointsTo) bool {
	grew := false
	for loc, set := range other {
		dst, ok := p[loc]
		if !ok {
			p[loc] = set.Clone()
			grew = true
			continue
		}
		if dst.AddAll(set) {
			grew = true
		}
	}
	return grew
}

// Resolver performs points-to resolution across a program. Binding
// collection may run concurrently per function; resolution must wait for
// every function's bindings (the engine's barrier enforces this).
type Resolver struct {
	prog  *program.Program
	arena *Arena

	mu   sync.Mutex
	base map[LocID]SymbolSet // program-wide bindings to globals/fields/slots
}

// NewResolver creates a resolver over prog.
func NewResolver(prog *program.Program) *Resolver {
	return &Resolver{
		prog:  prog,
		arena: NewArena(),
		base:  make(map[LocID]SymbolSet),
	}
}

// Arena exposes the storage-location arena (lock identities reuse it).
func (r *Resolver) Arena() *Arena { return r.arena }

// CollectBindings records every function-symbol binding g makes to storage
// that outlives the function: globals and the fields and array slots rooted
// in them. All four assignment shapes (direct name, address-of, field, slot)
// land in the same machinery; a typedef on the pointer type never reaches
// this layer at all.
func (r *Resolver) CollectBindings(g *cfg.Graph) {
	locals := g.LocalNames()
	isLocal := func(name string) bool { return locals[name] }
	fn := g.Function

	for _, n := range g.Nodes {
		for _, op := range n.Ops {
			if op.Kind != cfg.OpAssign {
				continue
			}
			targets := r.directTargets(op.RHS, isLocal)
			if len(targets) == 0 {
				continue
			}
			// Local destinations stay out of the base: transfer tracks them
			// per path, and a program-wide entry would bleed one branch's
			// binding into the other.
			if isLocal(op.LHS.RootIdent()) {
				continue
			}
			key, ok := StorageKey(fn.Name, isLocal, op.LHS)
			if !ok {
				continue
			}
			loc := r.arena.Intern(key)
			r.mu.Lock()
			set, exists := r.base[loc]
			if !exists {
				set = make(SymbolSet)
				r.base[loc] = set
			}
			set.AddAll(targets)
			r.mu.Unlock()
		}
	}
}

// directTargets evaluates an RHS to function symbols without consulting
// flow state: a function name, or the address of one. Copies through other
// locations are handled flow-sensitively during Resolve.
func (r *Resolver) directTargets(e *program.Expr, isLocal func(string) bool) SymbolSet {
	switch e.Kind {
	case program.ExprIdent:
		if !isLocal(e.Name) {
			if fn, ok := r.prog.FunctionByName(e.Name); ok {
				return SymbolSet{fn.Symbol: {}}
			}
		}
	case program.ExprAddrOf:
		return r.directTargets(e.Base, isLocal)
	}
	return nil
}

// Resolve runs the flow-sensitive pass over one function: a fixpoint over
// the CFG computing per-node points-to state, then per-operation call-site
// resolution. Resolution gaps surface as diagnostics, never as findings.
func (r *Resolver) Resolve(g *cfg.Graph) ([]CallSite, []findings.Diagnostic) {
	locals := g.LocalNames()
	isLocal := func(name string) bool { return locals[name] }
	fn := g.Function

	in := make(map[int]PointsTo, len(g.Nodes))
	for _, n := range g.Nodes {
		in[n.ID] = make(PointsTo)
	}

	// Monotone worklist fixpoint: out(n) = transfer(in(n)); in(n) grows by
	// union over predecessors, so termination is bounded by the finite
	// location × symbol lattice.
	work := make([]*cfg.Node, len(g.Nodes))
	copy(work, g.Nodes)
	for len(work) > 0 {
		n := work[0]
		work = work[1:]

		out := in[n.ID].clone()
		r.transfer(fn, isLocal, n, out, nil, nil)

		for _, e := range n.Succs {
			if in[e.To.ID].merge(out) {
				work = append(work, e.To)
			}
		}
	}

	// Second sweep with stable state: resolve each call at its exact
	// program point by replaying the node's operations.
	var sites []CallSite
	var diags []findings.Diagnostic
	for _, n := range g.Nodes {
		st := in[n.ID].clone()
		r.transfer(fn, isLocal, n, st, &sites, &diags)
	}
	return sites, diags
}

// transfer replays a node's operations over st. When sites is non-nil,
// calls are resolved and recorded as they are encountered, so each call
// sees the points-to state at its own program point, not the node summary.
func (r *Resolver) transfer(fn *program.Function, isLocal func(string) bool, n *cfg.Node, st PointsTo, sites *[]CallSite, diags *[]findings.Diagnostic) {
	for opIdx, op := range n.Ops {
		switch op.Kind {
		case cfg.OpAssign:
			targets := r.evalTargets(fn, isLocal, st, op.RHS)
			if len(targets) == 0 {
				continue
			}
			key, ok := StorageKey(fn.Name, isLocal, op.LHS)
			if !ok {
				continue
			}
			loc := r.arena.Intern(key)
			set, exists := st[loc]
			if !exists {
				set = make(SymbolSet)
				st[loc] = set
			}
			set.AddAll(targets)

		case cfg.OpCall:
			if sites == nil {
				continue
			}
			site := r.resolveCall(fn, isLocal, st, n, opIdx, op)
			*sites = append(*sites, site)
			switch site.Resolution.Kind {
			case Unresolved:
				*diags = append(*diags, findings.Diagnostic{
					Kind:     findings.UnresolvedCall,
					Function: fn.Name,
					File:     fn.File,
					Line:     op.Line,
					Message:  fmt.Sprintf("indirect call through %q has no known targets", site.Callee),
				})
			case Ambiguous:
				*diags = append(*diags, findings.Diagnostic{
					Kind:     findings.AmbiguousCall,
					Function: fn.Name,
					File:     fn.File,
					Line:     op.Line,
					Message:  fmt.Sprintf("indirect call through %q has %d candidate targets", site.Callee, len(site.Resolution.Candidates)),
				})
			}
		}
	}
}

// evalTargets evaluates an expression to the function symbols it may
// denote under st, falling back to the program-wide binding base for
// locations this function never wrote.
func (r *Resolver) evalTargets(fn *program.Function, isLocal func(string) bool, st PointsTo, e *program.Expr) SymbolSet {
	switch e.Kind {
	case program.ExprIdent:
		if !isLocal(e.Name) {
			if f, ok := r.prog.FunctionByName(e.Name); ok {
				return SymbolSet{f.Symbol: {}}
			}
		}
		return r.lookupLoc(fn, isLocal, st, e)
	case program.ExprAddrOf:
		return r.evalTargets(fn, isLocal, st, e.Base)
	case program.ExprField, program.ExprIndex, program.ExprUnary:
		return r.lookupLoc(fn, isLocal, st, e)
	default:
		return nil
	}
}

func (r *Resolver) lookupLoc(fn *program.Function, isLocal func(string) bool, st PointsTo, e *program.Expr) SymbolSet {
	key, ok := StorageKey(fn.Name, isLocal, e)
	if !ok {
		return nil
	}
	loc := r.arena.Intern(key)
	out := make(SymbolSet)
	out.AddAll(st[loc])
	r.mu.Lock()
	out.AddAll(r.base[loc])
	r.mu.Unlock()
	if len(out) == 0 {
		return nil
	}
	return out
}

// resolveCall classifies one call site. Direct calls to ingested functions
// and named external calls bypass points-to entirely; everything else is an
// indirect call resolved through the current state.
func (r *Resolver) resolveCall(fn *program.Function, isLocal func(string) bool, st PointsTo, n *cfg.Node, opIdx int, op cfg.Operation) CallSite {
	callee := op.Call.Callee
	site := CallSite{
		Caller: fn,
		NodeID: n.ID,
		OpIdx:  opIdx,
		Line:   op.Line,
		Expr:   op.Call,
		Callee: callee.Render(),
	}

	if callee.Kind == program.ExprIdent && !isLocal(callee.Name) {
		if f, ok := r.prog.FunctionByName(callee.Name); ok {
			site.Resolution = Resolution{Kind: Direct, Candidates: []program.SymbolID{f.Symbol}}
			return site
		}
		// A known global variable is an indirect callee even when nothing
		// was ever bound to it (that is an unresolved call, below). A name
		// that is neither ingested nor declared is external, like printf.
		if _, declared := r.prog.GlobalByName(callee.Name); !declared {
			site.Resolution = Resolution{Kind: External}
			return site
		}
	}

	targets := r.evalTargets(fn, isLocal, st, callee)
	switch len(targets) {
	case 0:
		site.Resolution = Resolution{Kind: Unresolved}
	case 1:
		site.Resolution = Resolution{Kind: Single, Candidates: targets.Sorted()}
	default:
		site.Resolution = Resolution{Kind: Ambiguous, Candidates: targets.Sorted()}
	}
	return site
}
