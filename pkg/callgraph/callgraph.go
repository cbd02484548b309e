package callgraph

import (
	"sort"
	"sync"

	"github.com/yourbasic/graph"

	"github.com/quarle/cvet/pkg/program"
)

// ResolutionKind classifies how a call site was resolved.
type ResolutionKind int

const (
	// Direct is a call to an ingested function by name.
	Direct ResolutionKind = iota
	// External is a call to a named symbol outside the analyzed program.
	External
	// Single is an indirect call with exactly one points-to candidate.
	Single
	// Ambiguous is an indirect call with more than one candidate.
	Ambiguous
	// Unresolved is an indirect call with no known candidates.
	Unresolved
)

func (k ResolutionKind) String() string {
	switch k {
	case Direct:
		return "direct"
	case External:
		return "external"
	case Single:
		return "single"
	case Ambiguous:
		return "ambiguous"
	case Unresolved:
		return "unresolved"
	default:
		return "unknown"
	}
}

// Resolution is the outcome of resolving one call site. Candidates is sorted
// by symbol ID and populated for Direct, Single and Ambiguous calls.
type Resolution struct {
	Kind       ResolutionKind
	Candidates []program.SymbolID
}

// Resolved reports whether the call has at least one in-program target.
func (r Resolution) Resolved() bool {
	return len(r.Candidates) > 0
}

// CallSite is one call operation inside a caller's control flow graph,
// addressed by node and operation index so later passes can line findings up
// with the exact program point.
type CallSite struct {
	Caller     *program.Function
	NodeID     int
	OpIdx      int
	Line       int
	Expr       *program.Expr
	Callee     string
	Resolution Resolution
}

// Graph is the program call graph. Edges go from caller symbol to every
// candidate of every resolved site; ambiguous sites contribute one edge per
// candidate. Safe for concurrent AddSites during the per-function phase.
type Graph struct {
	prog *program.Program

	mu    sync.Mutex
	sites map[program.SymbolID][]CallSite
	succs map[program.SymbolID]SymbolSet
}

// NewGraph returns an empty call graph over the given program.
func NewGraph(prog *program.Program) *Graph {
	return &Graph{
		prog:  prog,
		sites: make(map[program.SymbolID][]CallSite),
		succs: make(map[program.SymbolID]SymbolSet),
	}
}

// AddSites records the resolved call sites of one caller and extends the edge
// set with their candidates.
func (g *Graph) AddSites(caller *program.Function, sites []CallSite) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sites[caller.Symbol] = append(g.sites[caller.Symbol], sites...)
	for _, s := range sites {
		for _, target := range s.Resolution.Candidates {
			set, ok := g.succs[caller.Symbol]
			if !ok {
				set = make(SymbolSet)
				g.succs[caller.Symbol] = set
			}
			set.Add(target)
		}
	}
}

// Sites returns the call sites recorded for the given caller, in control flow
// order.
func (g *Graph) Sites(caller program.SymbolID) []CallSite {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.sites[caller]
}

// Callees returns the direct successor symbols of the caller, sorted.
func (g *Graph) Callees(caller program.SymbolID) []program.SymbolID {
	g.mu.Lock()
	set := g.succs[caller]
	g.mu.Unlock()
	return set.Sorted()
}

// Dense converts the edge set into an adjacency-list graph with one vertex
// per ingested symbol so component and path queries can run over it.
func (g *Graph) Dense() *graph.Mutable {
	g.mu.Lock()
	defer g.mu.Unlock()
	d := graph.New(len(g.prog.Functions))
	for caller, set := range g.succs {
		for target := range set {
			d.Add(int(caller), int(target))
		}
	}
	return d
}

// StronglyConnected returns the strongly connected components of the call
// graph. Components are used to localize recursion when propagating
// transitive acquire sets.
func (g *Graph) StronglyConnected() [][]program.SymbolID {
	comps := graph.StrongComponents(g.Dense())
	out := make([][]program.SymbolID, 0, len(comps))
	for _, c := range comps {
		sort.Ints(c)
		ids := make([]program.SymbolID, len(c))
		for i, v := range c {
			ids[i] = program.SymbolID(v)
		}
		out = append(out, ids)
	}
	return out
}

// AllSites returns every recorded call site grouped by caller symbol in
// symbol order. The engine uses it to surface unresolved and ambiguous calls
// after the parallel phase.
func (g *Graph) AllSites() []CallSite {
	g.mu.Lock()
	defer g.mu.Unlock()
	callers := make([]int, 0, len(g.sites))
	for sym := range g.sites {
		callers = append(callers, int(sym))
	}
	sort.Ints(callers)
	var out []CallSite
	for _, sym := range callers {
		out = append(out, g.sites[program.SymbolID(sym)]...)
	}
	return out
}
