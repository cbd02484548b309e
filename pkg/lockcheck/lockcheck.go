// Package lockcheck implements lock discipline analysis: per-function lock
// balance checking over the CFG and, after every function has been analyzed,
// a process-wide lock-order graph searched for deadlock cycles.
package lockcheck

import (
	"fmt"
	"sort"
	"strings"

	"github.com/quarle/cvet/pkg/callgraph"
	"github.com/quarle/cvet/pkg/cfg"
	"github.com/quarle/cvet/pkg/findings"
	"github.com/quarle/cvet/pkg/program"
)

// Checker runs the per-function lock pass. One Checker serves a whole run;
// it holds no per-function state.
type Checker struct {
	cat *program.Catalog
}

// New returns a checker matching lock and blocking primitives against cat.
func New(cat *program.Catalog) *Checker {
	return &Checker{cat: cat}
}

// OrderEdge is one acquired-while-holding fact: To was acquired while From
// was held.
type OrderEdge struct {
	From string
	To   string
	Line int
}

// HeldCall records a call made to an in-program function while locks were
// held. The global phase expands it against the callee's may-acquire set.
type HeldCall struct {
	Held   []string // sorted lock keys held at the call
	Callee program.SymbolID
	Line   int
}

// Summary is a function's contribution to the global lock-order phase.
type Summary struct {
	Fn *program.Function

	// Acquires holds every lock key the function may acquire locally,
	// regardless of path.
	Acquires map[string]bool

	Pairs []OrderEdge
	Calls []HeldCall
}

// lockState is the per-point analysis state. held is the set of lock keys
// known held on every path reaching the point. poisoned holds keys whose
// held-ness diverged at an earlier join: the imbalance was already reported
// there, so later releases and terminals stay quiet about them.
type lockState struct {
	held     map[string]bool
	poisoned map[string]bool
}

func newLockState() *lockState {
	return &lockState{held: make(map[string]bool), poisoned: make(map[string]bool)}
}

func (s *lockState) clone() *lockState {
	c := newLockState()
	for k := range s.held {
		c.held[k] = true
	}
	for k := range s.poisoned {
		c.poisoned[k] = true
	}
	return c
}

// mergeFrom folds other into s: held intersects, poison unions, and any key
// the two sides disagree on moves to the poison set. It reports growth of
// the poison set or shrinkage of the held set, which bounds the fixpoint.
func (s *lockState) mergeFrom(other *lockState) bool {
	changed := false
	for k := range s.held {
		if !other.held[k] {
			delete(s.held, k)
			s.poisoned[k] = true
			changed = true
		}
	}
	for k := range other.held {
		if !s.held[k] && !s.poisoned[k] {
			s.poisoned[k] = true
			changed = true
		}
	}
	for k := range other.poisoned {
		if !s.poisoned[k] {
			s.poisoned[k] = true
			changed = true
		}
	}
	return changed
}

func (s *lockState) heldKeys() []string {
	keys := make([]string, 0, len(s.held))
	for k := range s.held {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Analyze runs the per-function pass. sites are the function's resolved call
// sites; candidate callees of ambiguous calls all contribute their effects,
// trading false positives for soundness.
func (c *Checker) Analyze(g *cfg.Graph, sites []callgraph.CallSite) (*Summary, []findings.Finding) {
	fn := g.Function
	locals := g.LocalNames()
	isLocal := func(name string) bool { return locals[name] }

	siteAt := make(map[[2]int]*callgraph.CallSite, len(sites))
	for i := range sites {
		siteAt[[2]int{sites[i].NodeID, sites[i].OpIdx}] = &sites[i]
	}

	sum := &Summary{Fn: fn, Acquires: make(map[string]bool)}

	// Fixpoint for per-node in-states. The lattice is finite (held shrinks,
	// poison grows), so the worklist terminates.
	in := make(map[int]*lockState, len(g.Nodes))
	in[g.Entry.ID] = newLockState()
	out := make(map[int]*lockState, len(g.Nodes))

	work := []*cfg.Node{g.Entry}
	for len(work) > 0 {
		n := work[0]
		work = work[1:]

		st := in[n.ID].clone()
		c.replay(fn, isLocal, n, st, siteAt, nil, nil)
		out[n.ID] = st

		for _, e := range n.Succs {
			succIn, ok := in[e.To.ID]
			if !ok {
				in[e.To.ID] = st.clone()
				work = append(work, e.To)
				continue
			}
			if succIn.mergeFrom(st) {
				work = append(work, e.To)
			}
		}
	}

	var found []findings.Finding

	// Joins: predecessors whose held sets disagree on a not-yet-poisoned key
	// produce exactly one inconsistency finding at the join.
	for _, n := range g.Nodes {
		if !n.IsJoin() {
			continue
		}
		disputed := joinDisputes(n, out)
		if len(disputed) == 0 {
			continue
		}
		found = append(found, findings.Finding{
			Kind:     findings.InconsistentLockState,
			Severity: findings.SeverityMedium,
			Function: fn.Name,
			File:     fn.File,
			Line:     n.Line,
			Node:     n.ID,
			Message: fmt.Sprintf("lock state differs across paths joining here: %s held on some paths only",
				strings.Join(disputed, ", ")),
		})
	}

	// Emission sweep over stable states, in node order for determinism.
	for _, n := range g.Nodes {
		st, ok := in[n.ID]
		if !ok {
			continue
		}
		st = st.clone()
		c.replay(fn, isLocal, n, st, siteAt, &found, sum)

		if len(n.Succs) == 0 {
			for _, key := range st.heldKeys() {
				found = append(found, findings.Finding{
					Kind:     findings.LockLeak,
					Severity: findings.SeverityHigh,
					Function: fn.Name,
					File:     fn.File,
					Line:     n.Line,
					Node:     n.ID,
					Lock:     key,
					Message:  fmt.Sprintf("%s still held when the function exits here", key),
				})
			}
		}
	}
	return sum, found
}

// joinDisputes returns the lock keys the join's predecessors disagree on,
// excluding keys already poisoned upstream, sorted.
func joinDisputes(n *cfg.Node, out map[int]*lockState) []string {
	union := make(map[string]bool)
	poisoned := make(map[string]bool)
	states := make([]*lockState, 0, len(n.Preds))
	for _, p := range n.Preds {
		st, ok := out[p.ID]
		if !ok {
			continue
		}
		states = append(states, st)
		for k := range st.held {
			union[k] = true
		}
		for k := range st.poisoned {
			poisoned[k] = true
		}
	}
	var disputed []string
	for k := range union {
		if poisoned[k] {
			continue
		}
		for _, st := range states {
			if !st.held[k] {
				disputed = append(disputed, k)
				break
			}
		}
	}
	sort.Strings(disputed)
	return disputed
}

// replay walks a node's operations over st. With found/sum nil it only
// computes the state transition (fixpoint mode); otherwise it also emits
// findings and summary facts at each operation's own program point.
func (c *Checker) replay(fn *program.Function, isLocal func(string) bool, n *cfg.Node, st *lockState, siteAt map[[2]int]*callgraph.CallSite, found *[]findings.Finding, sum *Summary) {
	for opIdx, op := range n.Ops {
		if op.Kind != cfg.OpCall {
			continue
		}
		callee := op.Call.Callee
		if callee.Kind == program.ExprIdent {
			if p, ok := c.cat.Lookup(callee.Name); ok {
				c.applyPrimitive(fn, isLocal, n, op, p, st, found, sum)
				continue
			}
		}

		site, ok := siteAt[[2]int{n.ID, opIdx}]
		if !ok || sum == nil {
			continue
		}
		if len(site.Resolution.Candidates) > 0 && len(st.held) > 0 {
			held := st.heldKeys()
			for _, cand := range site.Resolution.Candidates {
				sum.Calls = append(sum.Calls, HeldCall{Held: held, Callee: cand, Line: op.Line})
			}
		}
	}
}

func (c *Checker) applyPrimitive(fn *program.Function, isLocal func(string) bool, n *cfg.Node, op cfg.Operation, p program.Primitive, st *lockState, found *[]findings.Finding, sum *Summary) {
	switch p.Category {
	case program.PrimLockAcquire:
		key, ok := lockKey(fn, isLocal, op.Call, p)
		if !ok {
			return
		}
		if st.held[key] {
			if found != nil {
				*found = append(*found, findings.Finding{
					Kind:     findings.DoubleAcquire,
					Severity: findings.SeverityHigh,
					Function: fn.Name,
					File:     fn.File,
					Line:     op.Line,
					Node:     n.ID,
					Lock:     key,
					Callee:   p.Name,
					Message:  fmt.Sprintf("%s acquired again while already held", key),
				})
			}
			return
		}
		if sum != nil {
			sum.Acquires[key] = true
			for _, held := range st.heldKeys() {
				sum.Pairs = append(sum.Pairs, OrderEdge{From: held, To: key, Line: op.Line})
			}
		}
		st.held[key] = true
		delete(st.poisoned, key)

	case program.PrimLockRelease:
		key, ok := lockKey(fn, isLocal, op.Call, p)
		if !ok {
			return
		}
		if st.held[key] {
			delete(st.held, key)
			return
		}
		if st.poisoned[key] {
			// imbalance already reported at the join upstream
			delete(st.poisoned, key)
			return
		}
		if found != nil {
			*found = append(*found, findings.Finding{
				Kind:     findings.UnbalancedRelease,
				Severity: findings.SeverityMedium,
				Function: fn.Name,
				File:     fn.File,
				Line:     op.Line,
				Node:     n.ID,
				Lock:     key,
				Callee:   p.Name,
				Message:  fmt.Sprintf("%s released but not held on this path", key),
			})
		}

	case program.PrimBlocking:
		if found == nil || len(st.held) == 0 {
			return
		}
		held := st.heldKeys()
		*found = append(*found, findings.Finding{
			Kind:     findings.BlockingWhileHeld,
			Severity: findings.SeverityHigh,
			Function: fn.Name,
			File:     fn.File,
			Line:     op.Line,
			Node:     n.ID,
			Lock:     strings.Join(held, ", "),
			Callee:   p.Name,
			Message:  fmt.Sprintf("blocking call %s while holding %s", p.Name, strings.Join(held, ", ")),
		})
	}
}

// lockKey derives the stable identity of the lock argument. Locks share the
// resolver's storage-key scheme so a global mutex keys identically in every
// function that touches it.
func lockKey(fn *program.Function, isLocal func(string) bool, call *program.Expr, p program.Primitive) (string, bool) {
	if p.LockArg < 0 || p.LockArg >= len(call.Args) {
		return "", false
	}
	return callgraph.StorageKey(fn.Name, isLocal, call.Args[p.LockArg])
}
