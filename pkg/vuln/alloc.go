package vuln

import (
	"fmt"

	"github.com/quarle/cvet/pkg/cfg"
	"github.com/quarle/cvet/pkg/findings"
	"github.com/quarle/cvet/pkg/program"
)

// checkAllocs flags allocation sizes built as a product of two non-constant
// operands with no overflow guard on any path leading to the allocation. The
// recognized guard shape compares one operand against a maximum divided by
// the other, like `count > SIZE_MAX / size`.
func (d *Detector) checkAllocs(g *cfg.Graph, fx *funcContext) []findings.Finding {
	fn := g.Function
	var out []findings.Finding
	for _, n := range g.Nodes {
		for _, op := range n.Ops {
			p, ok := d.primAt(op)
			if !ok || p.SizeArg < 0 {
				continue
			}
			size := resolveSize(argAt(op.Call, p.SizeArg), fx)
			a, b, ok := unguardedProduct(size)
			if !ok {
				continue
			}
			if guardedAgainstOverflow(g, n, a, b) {
				continue
			}
			out = append(out, findings.Finding{
				Kind:     findings.IntegerOverflowAlloc,
				Severity: findings.SeverityHigh,
				Function: fn.Name,
				File:     fn.File,
				Line:     op.Line,
				Node:     n.ID,
				Callee:   p.Name,
				Message:  fmt.Sprintf("%s size is %s * %s with no overflow check before it", p.Name, a.Render(), b.Render()),
			})
		}
	}
	return out
}

// resolveSize follows a size argument one assignment back when it is a plain
// variable written exactly once, so `total = a * b; malloc(total)` is seen as
// the product it is.
func resolveSize(e *program.Expr, fx *funcContext) *program.Expr {
	if e == nil || e.Kind != program.ExprIdent {
		return e
	}
	var def *program.Expr
	for _, op := range fx.assigns {
		if op.LHS.Kind == program.ExprIdent && op.LHS.Name == e.Name {
			if def != nil {
				return e // multiple definitions, stay with the variable
			}
			def = op.RHS
		}
	}
	if def == nil {
		return e
	}
	return def
}

// unguardedProduct matches a multiplication of two operands neither of which
// is a compile-time constant.
func unguardedProduct(e *program.Expr) (a, b *program.Expr, ok bool) {
	if e == nil || e.Kind != program.ExprBinary || e.Op != "*" {
		return nil, nil, false
	}
	if e.L.IsConstant() || e.R.IsConstant() {
		return nil, nil, false
	}
	return e.L, e.R, true
}

// guardedAgainstOverflow walks backward from the allocation node looking for
// a branch condition of the form `x cmp max / y` over the two operands.
func guardedAgainstOverflow(g *cfg.Graph, alloc *cfg.Node, a, b *program.Expr) bool {
	seen := make(map[int]bool)
	work := []*cfg.Node{alloc}
	for len(work) > 0 {
		n := work[len(work)-1]
		work = work[:len(work)-1]
		if seen[n.ID] {
			continue
		}
		seen[n.ID] = true
		if n != alloc && n.Cond != nil && condGuards(n.Cond, a, b) {
			return true
		}
		work = append(work, n.Preds...)
	}
	return false
}

// condGuards matches the guard shape in a condition, recursing through
// logical connectives and negation.
func condGuards(cond *program.Expr, a, b *program.Expr) bool {
	if cond == nil {
		return false
	}
	switch cond.Kind {
	case program.ExprBinary:
		switch cond.Op {
		case "&&", "||":
			return condGuards(cond.L, a, b) || condGuards(cond.R, a, b)
		case ">", ">=", "<", "<=":
			return comparesAgainstQuotient(cond.L, cond.R, a, b) ||
				comparesAgainstQuotient(cond.R, cond.L, a, b)
		}
	case program.ExprUnary:
		return condGuards(cond.Base, a, b)
	}
	return false
}

// comparesAgainstQuotient reports whether lhs is one product operand and rhs
// is a division whose divisor is the other operand.
func comparesAgainstQuotient(lhs, rhs, a, b *program.Expr) bool {
	if rhs == nil || rhs.Kind != program.ExprBinary || rhs.Op != "/" {
		return false
	}
	l := lhs.Render()
	div := rhs.R.Render()
	return (l == a.Render() && div == b.Render()) || (l == b.Render() && div == a.Render())
}
