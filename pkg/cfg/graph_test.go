package cfg

import "testing"

func TestLocalNames(t *testing.T) {
	g := buildFromSource(t, `
void f(int a, char *b) {
    int x;
    if (a) {
        int y;
        y = 1;
        x = y;
    }
}
`, "f")

	locals := g.LocalNames()
	for _, want := range []string{"a", "b", "x", "y"} {
		if !locals[want] {
			t.Errorf("local %q not recognized", want)
		}
	}
	if locals["f"] || locals["missing"] {
		t.Error("unrelated names must not be locals")
	}
}

func TestSnapshot(t *testing.T) {
	g := buildFromSource(t, `
int f(int a) {
    if (a) {
        return 1;
    }
    return 0;
}
`, "f")

	s := g.Snapshot()
	if s.Function != "f" {
		t.Errorf("function = %q", s.Function)
	}
	if s.Entry != g.Entry.ID {
		t.Errorf("entry = %d", s.Entry)
	}
	if len(s.Blocks) != len(g.Nodes) {
		t.Errorf("blocks = %d, want %d", len(s.Blocks), len(g.Nodes))
	}
	if len(s.Terminals) != 2 {
		t.Errorf("terminals = %v", s.Terminals)
	}

	edges := 0
	for _, n := range g.Nodes {
		edges += len(n.Succs)
	}
	if len(s.Edges) != edges {
		t.Errorf("edges = %d, want %d", len(s.Edges), edges)
	}

	var hasGuard bool
	for _, b := range s.Blocks {
		if b.Guard != "" {
			hasGuard = true
		}
	}
	if !hasGuard {
		t.Error("condition block should carry its guard expression")
	}
}
