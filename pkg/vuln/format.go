package vuln

import (
	"fmt"

	"github.com/quarle/cvet/pkg/cfg"
	"github.com/quarle/cvet/pkg/findings"
	"github.com/quarle/cvet/pkg/program"
)

// checkFormats flags format-interpreting calls whose format argument is not
// a literal and traces back, within the function, to a parameter or a call
// result. A literal format with separate value arguments never triggers,
// whatever the arguments carry.
func (d *Detector) checkFormats(g *cfg.Graph, fx *funcContext) []findings.Finding {
	fn := g.Function
	tainted := formatTaint(fx)

	var out []findings.Finding
	for _, n := range g.Nodes {
		for _, op := range n.Ops {
			p, ok := d.primAt(op)
			if !ok || !p.InterpretsFormat() {
				continue
			}
			format := argAt(op.Call, p.FmtArg)
			if format == nil || format.Kind == program.ExprStrLit {
				continue
			}
			root := format.RootIdent()
			if root == "" || !tainted[root] {
				continue
			}
			source := "a parameter"
			if !fx.params[root] {
				source = "a call result"
			}
			out = append(out, findings.Finding{
				Kind:     findings.FormatStringInjection,
				Severity: findings.SeverityHigh,
				Function: fn.Name,
				File:     fn.File,
				Line:     op.Line,
				Node:     n.ID,
				Callee:   p.Name,
				Message:  fmt.Sprintf("%s format argument %q is not a literal and derives from %s", p.Name, root, source),
			})
		}
	}
	return out
}

// formatTaint computes the flow-insensitive taint set for the format rule:
// parameters and call results seed it, and plain variable copies propagate
// it to a fixed point.
func formatTaint(fx *funcContext) map[string]bool {
	tainted := make(map[string]bool, len(fx.params))
	for name := range fx.params {
		tainted[name] = true
	}
	for _, op := range fx.assigns {
		if op.LHS.Kind == program.ExprIdent && op.RHS.Kind == program.ExprCall {
			tainted[op.LHS.Name] = true
		}
	}
	for changed := true; changed; {
		changed = false
		for _, op := range fx.assigns {
			if op.LHS.Kind != program.ExprIdent || tainted[op.LHS.Name] {
				continue
			}
			if root := op.RHS.RootIdent(); root != "" && tainted[root] {
				tainted[op.LHS.Name] = true
				changed = true
			}
		}
	}
	return tainted
}
