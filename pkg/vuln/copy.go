package vuln

import (
	"fmt"
	"strconv"

	"github.com/quarle/cvet/pkg/cfg"
	"github.com/quarle/cvet/pkg/findings"
	"github.com/quarle/cvet/pkg/program"
)

// checkCopies flags writes into fixed-capacity buffers with no length bound
// tied to the destination's declared size. The rule sees every primitive
// carrying destination metadata, so sprintf participates alongside strcpy.
func (d *Detector) checkCopies(g *cfg.Graph, fx *funcContext) []findings.Finding {
	fn := g.Function
	var out []findings.Finding
	for _, n := range g.Nodes {
		for _, op := range n.Ops {
			p, ok := d.primAt(op)
			if !ok || !p.WritesDest() {
				continue
			}
			dest := argAt(op.Call, p.DestArg)
			if dest == nil {
				continue
			}
			root := dest.RootIdent()
			cap, known := fx.caps[root]
			if !known {
				// destination capacity unknown: not this rule's pattern
				continue
			}
			if boundedToCapacity(op.Call, p, root, cap, fx) {
				continue
			}
			out = append(out, findings.Finding{
				Kind:     findings.UnsafeCopy,
				Severity: findings.SeverityHigh,
				Function: fn.Name,
				File:     fn.File,
				Line:     op.Line,
				Node:     n.ID,
				Callee:   p.Name,
				Message:  fmt.Sprintf("%s writes into %s (capacity %d) without a bound tied to its size", p.Name, root, cap),
			})
		}
	}
	return out
}

// boundedToCapacity reports whether the call's length argument provably keeps
// the write within the destination's declared capacity.
func boundedToCapacity(call *program.Expr, p program.Primitive, root string, cap int64, fx *funcContext) bool {
	if !p.Bounded() {
		return false
	}
	length := argAt(call, p.LenArg)
	if length == nil {
		return false
	}

	if base, offset, ok := sizeofBound(length); ok && base == root {
		if offset >= 1 {
			return true
		}
		// exact-capacity bound: fine for self-terminating format writers,
		// otherwise only with an explicit later null termination
		return p.Category == program.PrimFormat || hasNullTermination(root, fx)
	}

	if v, ok := intValue(length); ok {
		if v < cap {
			return true
		}
		if v == cap {
			return p.Category == program.PrimFormat || hasNullTermination(root, fx)
		}
	}
	return false
}

// sizeofBound recognizes length expressions of the form sizeof(x) minus a
// constant, returning the sizeof operand's root and the subtracted amount.
func sizeofBound(e *program.Expr) (root string, offset int64, ok bool) {
	switch e.Kind {
	case program.ExprSizeof:
		return e.Base.RootIdent(), 0, true
	case program.ExprBinary:
		if e.Op != "-" {
			return "", 0, false
		}
		base, off, ok := sizeofBound(e.L)
		if !ok {
			return "", 0, false
		}
		v, ok := intValue(e.R)
		if !ok {
			return "", 0, false
		}
		return base, off + v, true
	default:
		return "", 0, false
	}
}

// hasNullTermination reports whether the function stores a terminator into
// the buffer anywhere, like buf[sizeof(buf) - 1] = '\0'.
func hasNullTermination(root string, fx *funcContext) bool {
	for _, op := range fx.assigns {
		lhs := op.LHS
		if lhs.Kind != program.ExprIndex || lhs.Base.RootIdent() != root {
			continue
		}
		if op.RHS.Kind == program.ExprIntLit {
			return true
		}
	}
	return false
}

// intValue evaluates an integer literal expression.
func intValue(e *program.Expr) (int64, bool) {
	if e == nil || e.Kind != program.ExprIntLit {
		return 0, false
	}
	v, err := strconv.ParseInt(e.Value, 0, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
