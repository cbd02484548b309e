package cfg

// LocalNames returns the set of names declared inside the function plus its
// parameters. Resolvers use it to split locals from globals when forming
// storage-location keys.
func (g *Graph) LocalNames() map[string]bool {
	locals := make(map[string]bool)
	for _, p := range g.Function.Params {
		locals[p.Name] = true
	}
	for _, n := range g.Nodes {
		for _, op := range n.Ops {
			if op.Kind == OpDecl {
				locals[op.Decl.DeclName] = true
			}
		}
	}
	return locals
}

// Snapshot is a serializable view of a graph, used by the CLI dump command
// and by tests that assert on shape without chasing pointers.
type Snapshot struct {
	Function  string         `json:"function"`
	Entry     int            `json:"entry"`
	Terminals []int          `json:"terminals"`
	Blocks    []BlockSnap    `json:"blocks"`
	Edges     []EdgeSnap     `json:"edges"`
}

// BlockSnap is one block in a Snapshot.
type BlockSnap struct {
	ID    int      `json:"id"`
	Line  int      `json:"line"`
	Ops   []string `json:"ops,omitempty"`
	Guard string   `json:"guard,omitempty"`
}

// EdgeSnap is one edge in a Snapshot.
type EdgeSnap struct {
	From  int      `json:"from"`
	To    int      `json:"to"`
	Type  EdgeType `json:"type"`
	Label string   `json:"label,omitempty"`
}

// Snapshot flattens the graph into a stable, ordered view.
func (g *Graph) Snapshot() Snapshot {
	s := Snapshot{Function: g.Function.Name, Entry: g.Entry.ID}
	for _, t := range g.Terminals {
		s.Terminals = append(s.Terminals, t.ID)
	}
	for _, n := range g.Nodes {
		b := BlockSnap{ID: n.ID, Line: n.Line}
		if n.Cond != nil {
			b.Guard = n.Cond.Render()
		}
		for _, op := range n.Ops {
			b.Ops = append(b.Ops, opString(op))
		}
		s.Blocks = append(s.Blocks, b)
		for _, e := range n.Succs {
			s.Edges = append(s.Edges, EdgeSnap{From: n.ID, To: e.To.ID, Type: e.Type, Label: e.Label})
		}
	}
	return s
}

func opString(op Operation) string {
	switch op.Kind {
	case OpCall:
		return "call " + op.Call.Render()
	case OpAssign:
		return op.LHS.Render() + " = " + op.RHS.Render()
	case OpDecl:
		return "decl " + op.Decl.DeclName
	case OpReturn:
		return "return"
	default:
		return string(op.Kind)
	}
}
