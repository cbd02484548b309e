// Package cfg builds per-function control-flow graphs from the program model.
// Nodes are basic blocks holding ordered effectful operations; edges are typed
// execution transitions. Every node is reachable from the entry node; the
// builder prunes dead blocks so downstream passes can rely on it.
package cfg

import (
	"fmt"

	"github.com/quarle/cvet/pkg/findings"
	"github.com/quarle/cvet/pkg/program"
)

// EdgeType classifies a successor edge.
type EdgeType string

const (
	EdgeUnconditional EdgeType = "unconditional"
	EdgeTrue          EdgeType = "true"
	EdgeFalse         EdgeType = "false"
	EdgeCase          EdgeType = "case"
	EdgeDefault       EdgeType = "default"
	EdgeFallthrough   EdgeType = "fallthrough"
	EdgeLoopBack      EdgeType = "loop_back"
	EdgeLoopExit      EdgeType = "loop_exit"
)

// OpKind classifies an effectful operation within a block.
type OpKind string

const (
	OpCall   OpKind = "call"
	OpAssign OpKind = "assign"
	OpDecl   OpKind = "decl"
	OpReturn OpKind = "return"
)

// Operation is one effectful step. Calls keep the full call expression so
// resolvers and detectors can inspect callee and arguments; assignments keep
// both sides; declarations keep the declaring statement (capacity, type).
type Operation struct {
	Kind OpKind
	Line int

	Call *program.Expr // OpCall
	LHS  *program.Expr // OpAssign
	RHS  *program.Expr // OpAssign
	Decl *program.Stmt // OpDecl
}

// Edge is a typed transition to a successor block. Case edges carry their
// label value.
type Edge struct {
	To    *Node
	Type  EdgeType
	Label string
}

// Node is one basic block.
type Node struct {
	ID    int
	Line  int
	Ops   []Operation
	Cond  *program.Expr // guard expression for condition/dispatch nodes
	Succs []Edge
	Preds []*Node

	// sealed marks blocks whose control already transferred (return, break,
	// continue); the builder must not fall through out of them.
	sealed bool
}

// Graph is the CFG of a single function.
type Graph struct {
	Function  *program.Function
	Entry     *Node
	Nodes     []*Node
	Terminals []*Node // explicit returns plus the fall-off-end block
}

// IsJoin reports whether the node merges two or more incoming paths.
func (n *Node) IsJoin() bool { return len(n.Preds) >= 2 }

// BuildError is a builder failure local to one function. The function is
// excluded from further passes; the run continues.
type BuildError struct {
	Kind      findings.DiagnosticKind
	Construct string
	Line      int
	Reason    string
}

func (e *BuildError) Error() string {
	if e.Construct != "" {
		return fmt.Sprintf("%s: %s at line %d", e.Kind, e.Construct, e.Line)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

func malformed(line int, reason string) *BuildError {
	return &BuildError{Kind: findings.MalformedProgram, Line: line, Reason: reason}
}

func unsupported(line int, construct string) *BuildError {
	return &BuildError{Kind: findings.UnsupportedConstruct, Line: line, Construct: construct, Reason: "cannot model control flow"}
}
