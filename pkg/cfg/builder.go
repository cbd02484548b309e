package cfg

import (
	"github.com/quarle/cvet/pkg/program"
)

// Build converts a function's statement tree into its control-flow graph.
// Failures are *BuildError values: MalformedProgram for inputs the model
// requires but does not have, UnsupportedConstruct for control flow that
// cannot be modeled (goto and friends). Either excludes only this function.
func Build(fn *program.Function) (*Graph, error) {
	if fn.Body == nil {
		return nil, malformed(fn.Line, "function has no body")
	}
	if fn.Body.Kind != program.StmtBlock {
		return nil, malformed(fn.Body.Line, "function body is not a block")
	}

	b := &builder{g: &Graph{Function: fn}}
	entry := b.node(fn.Line)
	b.g.Entry = entry

	last, err := b.lowerStmt(fn.Body, entry)
	if err != nil {
		return nil, err
	}
	_ = last // an open tail block is a fall-off-end terminal, found below

	b.prune()
	return b.g, nil
}

// breakCtx is one enclosing break target. Loops also carry a continue
// target; switch contexts leave it nil so continue skips past them.
type breakCtx struct {
	brk  *Node
	cont *Node
}

type builder struct {
	g      *Graph
	nextID int
	stack  []breakCtx
}

func (b *builder) node(line int) *Node {
	return b.adopt(&Node{Line: line})
}

// adopt numbers and registers a node. Join and loop-exit nodes are created
// unregistered so edges can target them early, then adopted once the blocks
// that run before them are in place; node order then follows control flow,
// which Sites relies on.
func (b *builder) adopt(n *Node) *Node {
	n.ID = b.nextID
	b.nextID++
	b.g.Nodes = append(b.g.Nodes, n)
	return n
}

func (b *builder) edge(from, to *Node, t EdgeType, label string) {
	from.Succs = append(from.Succs, Edge{To: to, Type: t, Label: label})
	to.Preds = append(to.Preds, from)
}

// continueTarget walks outward past switch contexts to the nearest loop.
func (b *builder) continueTarget() *Node {
	for i := len(b.stack) - 1; i >= 0; i-- {
		if b.stack[i].cont != nil {
			return b.stack[i].cont
		}
	}
	return nil
}

// lowerStmt appends s to cur, returning the block where control continues.
// A sealed return value means control already transferred.
func (b *builder) lowerStmt(s *program.Stmt, cur *Node) (*Node, error) {
	switch s.Kind {
	case program.StmtBlock:
		var err error
		for _, child := range s.Stmts {
			if cur.sealed {
				// Dead code after return/break/continue: nothing to model.
				break
			}
			cur, err = b.lowerStmt(child, cur)
			if err != nil {
				return nil, err
			}
		}
		return cur, nil

	case program.StmtExpr:
		b.lowerExpr(cur, s.Expr)
		return cur, nil

	case program.StmtDecl:
		cur.Ops = append(cur.Ops, Operation{Kind: OpDecl, Line: s.Line, Decl: s})
		if s.Init != nil {
			b.lowerExpr(cur, s.Init)
			lhs := &program.Expr{Kind: program.ExprIdent, Name: s.DeclName, Line: s.Line}
			cur.Ops = append(cur.Ops, Operation{Kind: OpAssign, Line: s.Line, LHS: lhs, RHS: s.Init})
		}
		return cur, nil

	case program.StmtReturn:
		if s.Value != nil {
			b.lowerExpr(cur, s.Value)
		}
		cur.Ops = append(cur.Ops, Operation{Kind: OpReturn, Line: s.Line})
		cur.sealed = true
		return cur, nil

	case program.StmtBreak:
		if len(b.stack) == 0 {
			return nil, malformed(s.Line, "break outside loop or switch")
		}
		b.edge(cur, b.stack[len(b.stack)-1].brk, EdgeUnconditional, "")
		cur.sealed = true
		return cur, nil

	case program.StmtContinue:
		target := b.continueTarget()
		if target == nil {
			return nil, malformed(s.Line, "continue outside loop")
		}
		b.edge(cur, target, EdgeUnconditional, "")
		cur.sealed = true
		return cur, nil

	case program.StmtIf:
		return b.lowerIf(s, cur)

	case program.StmtSwitch:
		return b.lowerSwitch(s, cur)

	case program.StmtLoop:
		return b.lowerLoop(s, cur)

	case program.StmtUnsupported:
		return nil, unsupported(s.Line, s.Construct)

	default:
		return nil, malformed(s.Line, "unknown statement kind "+string(s.Kind))
	}
}

func (b *builder) lowerIf(s *program.Stmt, cur *Node) (*Node, error) {
	cond := b.node(s.Line)
	b.edge(cur, cond, EdgeUnconditional, "")
	b.lowerExpr(cond, s.Cond)
	cond.Cond = s.Cond

	thenEntry := b.node(thenLine(s))
	b.edge(cond, thenEntry, EdgeTrue, "")
	thenExit, err := b.lowerStmt(s.Then, thenEntry)
	if err != nil {
		return nil, err
	}

	var elseExit *Node
	if s.Else != nil {
		// else-if chains arrive here as a nested if in the false branch.
		elseEntry := b.node(s.Else.Line)
		b.edge(cond, elseEntry, EdgeFalse, "")
		elseExit, err = b.lowerStmt(s.Else, elseEntry)
		if err != nil {
			return nil, err
		}
	}

	join := b.adopt(&Node{Line: s.Line})
	if !thenExit.sealed {
		b.edge(thenExit, join, EdgeUnconditional, "")
	}
	if elseExit != nil {
		if !elseExit.sealed {
			b.edge(elseExit, join, EdgeUnconditional, "")
		}
	} else {
		// No else: the implicit empty false branch merges at the join.
		b.edge(cond, join, EdgeFalse, "")
	}
	return join, nil
}

func thenLine(s *program.Stmt) int {
	if s.Then != nil {
		return s.Then.Line
	}
	return s.Line
}

func (b *builder) lowerSwitch(s *program.Stmt, cur *Node) (*Node, error) {
	dispatch := b.node(s.Line)
	b.edge(cur, dispatch, EdgeUnconditional, "")
	b.lowerExpr(dispatch, s.Cond)
	dispatch.Cond = s.Cond

	// The exit is registered after every case body so code following the
	// switch comes later in node order; break edges may target it before then.
	exit := &Node{Line: s.Line}
	b.stack = append(b.stack, breakCtx{brk: exit})
	defer func() { b.stack = b.stack[:len(b.stack)-1] }()

	entries := make([]*Node, len(s.Cases))
	hasDefault := false
	for i, cs := range s.Cases {
		entries[i] = b.node(cs.Line)
		if cs.IsDefault {
			hasDefault = true
			b.edge(dispatch, entries[i], EdgeDefault, "")
		} else {
			b.edge(dispatch, entries[i], EdgeCase, cs.Value)
		}
	}
	if !hasDefault {
		// No default label: a non-matching value falls through to the exit.
		b.edge(dispatch, exit, EdgeDefault, "")
	}

	for i, cs := range s.Cases {
		caseExit := entries[i]
		var err error
		for _, child := range cs.Body {
			if caseExit.sealed {
				break
			}
			caseExit, err = b.lowerStmt(child, caseExit)
			if err != nil {
				return nil, err
			}
		}
		if caseExit.sealed {
			continue
		}
		if i+1 < len(s.Cases) {
			// Unterminated case: execution continues into the next case
			// block, and the edge must be modeled because it changes which
			// lock and call sequences are reachable.
			b.edge(caseExit, entries[i+1], EdgeFallthrough, "")
		} else {
			b.edge(caseExit, exit, EdgeUnconditional, "")
		}
	}
	return b.adopt(exit), nil
}

func (b *builder) lowerLoop(s *program.Stmt, cur *Node) (*Node, error) {
	if s.Loop == program.LoopDoWhile {
		return b.lowerDoWhile(s, cur)
	}

	cond := b.node(s.Line)
	b.edge(cur, cond, EdgeUnconditional, "")
	if s.Cond != nil {
		b.lowerExpr(cond, s.Cond)
		cond.Cond = s.Cond
	}

	exit := &Node{Line: s.Line}
	if s.Cond != nil {
		b.edge(cond, exit, EdgeLoopExit, "")
	}

	bodyEntry := b.node(bodyLine(s))
	b.edge(cond, bodyEntry, EdgeTrue, "")

	// continue targets the update node when the for-loop has one, else the
	// condition itself. The update runs after the body, so it is registered
	// after it too.
	var update *Node
	cont := cond
	if s.Update != nil {
		update = &Node{Line: s.Line}
		b.lowerExpr(update, s.Update)
		cont = update
	}

	b.stack = append(b.stack, breakCtx{brk: exit, cont: cont})
	bodyExit, err := b.lowerStmt(s.Body, bodyEntry)
	b.stack = b.stack[:len(b.stack)-1]
	if err != nil {
		return nil, err
	}

	if update != nil {
		if !bodyExit.sealed {
			b.edge(bodyExit, update, EdgeUnconditional, "")
		}
		b.adopt(update)
		b.edge(update, cond, EdgeLoopBack, "")
	} else if !bodyExit.sealed {
		b.edge(bodyExit, cond, EdgeLoopBack, "")
	}
	return b.adopt(exit), nil
}

func (b *builder) lowerDoWhile(s *program.Stmt, cur *Node) (*Node, error) {
	bodyEntry := b.node(bodyLine(s))
	b.edge(cur, bodyEntry, EdgeUnconditional, "")

	cond := &Node{Line: s.Line}
	exit := &Node{Line: s.Line}

	b.stack = append(b.stack, breakCtx{brk: exit, cont: cond})
	bodyExit, err := b.lowerStmt(s.Body, bodyEntry)
	b.stack = b.stack[:len(b.stack)-1]
	if err != nil {
		return nil, err
	}

	if !bodyExit.sealed {
		b.edge(bodyExit, cond, EdgeUnconditional, "")
	}
	b.adopt(cond)
	if s.Cond != nil {
		b.lowerExpr(cond, s.Cond)
		cond.Cond = s.Cond
	}
	b.edge(cond, bodyEntry, EdgeLoopBack, "")
	b.edge(cond, exit, EdgeLoopExit, "")
	return b.adopt(exit), nil
}

func bodyLine(s *program.Stmt) int {
	if s.Body != nil {
		return s.Body.Line
	}
	return s.Line
}

// lowerExpr appends the effectful operations of an expression in evaluation
// order: arguments before their call, right-hand sides before the store.
func (b *builder) lowerExpr(n *Node, e *program.Expr) {
	if e == nil {
		return
	}
	switch e.Kind {
	case program.ExprCall:
		for _, arg := range e.Args {
			b.lowerExpr(n, arg)
		}
		n.Ops = append(n.Ops, Operation{Kind: OpCall, Line: e.Line, Call: e})
	case program.ExprAssign:
		b.lowerExpr(n, e.RHS)
		n.Ops = append(n.Ops, Operation{Kind: OpAssign, Line: e.Line, LHS: e.LHS, RHS: e.RHS})
	case program.ExprBinary:
		b.lowerExpr(n, e.L)
		b.lowerExpr(n, e.R)
	case program.ExprUnary, program.ExprAddrOf, program.ExprField, program.ExprSizeof:
		b.lowerExpr(n, e.Base)
	case program.ExprIndex:
		b.lowerExpr(n, e.Base)
		b.lowerExpr(n, e.Index)
	}
}

// prune removes blocks unreachable from the entry (dead joins, code after
// unconditional transfers), renumbers the survivors in creation order, and
// records the terminal set. Every surviving non-entry node has at least one
// predecessor afterwards.
func (b *builder) prune() {
	reachable := make(map[*Node]bool, len(b.g.Nodes))
	worklist := []*Node{b.g.Entry}
	reachable[b.g.Entry] = true
	for len(worklist) > 0 {
		n := worklist[0]
		worklist = worklist[1:]
		for _, e := range n.Succs {
			if !reachable[e.To] {
				reachable[e.To] = true
				worklist = append(worklist, e.To)
			}
		}
	}

	kept := b.g.Nodes[:0]
	for _, n := range b.g.Nodes {
		if !reachable[n] {
			continue
		}
		preds := n.Preds[:0]
		for _, p := range n.Preds {
			if reachable[p] {
				preds = append(preds, p)
			}
		}
		n.Preds = preds
		n.ID = len(kept)
		kept = append(kept, n)
	}
	b.g.Nodes = kept

	for _, n := range b.g.Nodes {
		if len(n.Succs) == 0 {
			b.g.Terminals = append(b.g.Terminals, n)
		}
	}
}
