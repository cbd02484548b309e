package callgraph

import (
	"reflect"
	"testing"

	"github.com/quarle/cvet/pkg/program"
)

func site(caller *program.Function, kind ResolutionKind, targets ...program.SymbolID) CallSite {
	return CallSite{
		Caller:     caller,
		Resolution: Resolution{Kind: kind, Candidates: targets},
	}
}

func testProgram(names ...string) (*program.Program, []*program.Function) {
	fns := make([]*program.Function, len(names))
	for i, n := range names {
		fns[i] = &program.Function{Name: n, File: "test.c"}
	}
	return program.NewProgram(fns, nil), fns
}

func TestGraphCalleesSorted(t *testing.T) {
	prog, fns := testProgram("a", "b", "c", "d")
	g := NewGraph(prog)

	g.AddSites(fns[0], []CallSite{
		site(fns[0], Direct, fns[3].Symbol),
		site(fns[0], Direct, fns[1].Symbol),
		site(fns[0], Ambiguous, fns[2].Symbol, fns[1].Symbol),
	})

	got := g.Callees(fns[0].Symbol)
	want := []program.SymbolID{fns[1].Symbol, fns[2].Symbol, fns[3].Symbol}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Callees = %v, want %v", got, want)
	}
}

func TestStronglyConnectedPartitionsProgram(t *testing.T) {
	prog, fns := testProgram("main", "mid", "leaf", "island")
	g := NewGraph(prog)
	g.AddSites(fns[0], []CallSite{site(fns[0], Direct, fns[1].Symbol)})
	g.AddSites(fns[1], []CallSite{site(fns[1], Direct, fns[2].Symbol)})

	// Every ingested function lands in exactly one component, including
	// functions with no edges at all; acquire-set propagation walks this
	// partition and must be able to place any callee.
	seen := make(map[program.SymbolID]int)
	for _, comp := range g.StronglyConnected() {
		for _, sym := range comp {
			seen[sym]++
		}
	}
	if len(seen) != len(fns) {
		t.Fatalf("components cover %d symbols, want %d", len(seen), len(fns))
	}
	for _, fn := range fns {
		if seen[fn.Symbol] != 1 {
			t.Errorf("%s appears in %d components, want 1", fn.Name, seen[fn.Symbol])
		}
	}
}

func TestStronglyConnected(t *testing.T) {
	prog, fns := testProgram("a", "b", "c")
	g := NewGraph(prog)
	// a <-> b form a component; c is alone.
	g.AddSites(fns[0], []CallSite{site(fns[0], Direct, fns[1].Symbol)})
	g.AddSites(fns[1], []CallSite{site(fns[1], Direct, fns[0].Symbol)})
	g.AddSites(fns[2], []CallSite{site(fns[2], Direct, fns[0].Symbol)})

	comps := g.StronglyConnected()
	var sizes []int
	for _, c := range comps {
		sizes = append(sizes, len(c))
	}

	found := false
	for _, c := range comps {
		if len(c) == 2 {
			found = true
			if c[0] != fns[0].Symbol || c[1] != fns[1].Symbol {
				t.Errorf("two-member component = %v", c)
			}
		}
	}
	if !found {
		t.Errorf("no two-member component in %v (sizes %v)", comps, sizes)
	}
}

func TestAllSitesGroupedBySymbolOrder(t *testing.T) {
	prog, fns := testProgram("z_last", "a_first")
	g := NewGraph(prog)

	// Insertion order is reversed relative to symbol order.
	g.AddSites(fns[1], []CallSite{site(fns[1], External)})
	g.AddSites(fns[0], []CallSite{site(fns[0], External)})

	all := g.AllSites()
	if len(all) != 2 {
		t.Fatalf("expected 2 sites, got %d", len(all))
	}
	if all[0].Caller != fns[0] || all[1].Caller != fns[1] {
		t.Error("AllSites must group by ascending caller symbol, not insertion order")
	}

	// Determinism across calls.
	again := g.AllSites()
	if !reflect.DeepEqual(all, again) {
		t.Error("AllSites must be stable across calls")
	}
}

func TestResolvedPredicate(t *testing.T) {
	if (Resolution{Kind: External}).Resolved() {
		t.Error("external should not count as resolved")
	}
	if !(Resolution{Kind: Single, Candidates: []program.SymbolID{1}}).Resolved() {
		t.Error("single with a candidate should count as resolved")
	}
}
