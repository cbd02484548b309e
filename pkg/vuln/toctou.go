package vuln

import (
	"fmt"

	"github.com/quarle/cvet/pkg/callgraph"
	"github.com/quarle/cvet/pkg/cfg"
	"github.com/quarle/cvet/pkg/findings"
	"github.com/quarle/cvet/pkg/program"
)

// checkToctou flags a path-based filesystem check followed, on some path
// through the function, by an open or mutation that names the same path
// variable again. Descriptor-based validation (open first, fstat the result)
// never re-specifies the path and never triggers.
func (d *Detector) checkToctou(g *cfg.Graph) []findings.Finding {
	fn := g.Function
	locals := g.LocalNames()
	isLocal := func(name string) bool { return locals[name] }

	// Forward may-analysis: the set of path keys checked on at least one
	// path into each node. Joins union, so a check on either branch arms
	// the rule for uses after the merge.
	in := make(map[int]map[string]bool, len(g.Nodes))
	in[g.Entry.ID] = make(map[string]bool)
	work := []*cfg.Node{g.Entry}
	for len(work) > 0 {
		n := work[0]
		work = work[1:]

		out := make(map[string]bool, len(in[n.ID]))
		for k := range in[n.ID] {
			out[k] = true
		}
		d.applyChecks(fn, isLocal, n, out, nil)

		for _, e := range n.Succs {
			succ, ok := in[e.To.ID]
			if !ok {
				succ = make(map[string]bool)
				in[e.To.ID] = succ
				work = append(work, e.To)
			}
			grew := false
			for k := range out {
				if !succ[k] {
					succ[k] = true
					grew = true
				}
			}
			if grew {
				work = append(work, e.To)
			}
		}
	}

	var found []findings.Finding
	for _, n := range g.Nodes {
		checked, ok := in[n.ID]
		if !ok {
			continue
		}
		st := make(map[string]bool, len(checked))
		for k := range checked {
			st[k] = true
		}
		d.applyChecks(fn, isLocal, n, st, &found)
	}
	return found
}

// applyChecks replays one node: fs_check calls arm their path key, fs_open
// and fs_mutate calls on an armed key emit (when found is non-nil).
func (d *Detector) applyChecks(fn *program.Function, isLocal func(string) bool, n *cfg.Node, checked map[string]bool, found *[]findings.Finding) {
	for _, op := range n.Ops {
		p, ok := d.primAt(op)
		if !ok || p.PathArg < 0 {
			continue
		}
		path := argAt(op.Call, p.PathArg)
		if path == nil {
			continue
		}
		key, ok := callgraph.StorageKey(fn.Name, isLocal, path)
		if !ok {
			continue
		}
		switch p.Category {
		case program.PrimFsCheck:
			checked[key] = true
		case program.PrimFsOpen, program.PrimFsMutate:
			if !checked[key] || found == nil {
				continue
			}
			*found = append(*found, findings.Finding{
				Kind:     findings.ToctouRace,
				Severity: findings.SeverityMedium,
				Function: fn.Name,
				File:     fn.File,
				Line:     op.Line,
				Node:     n.ID,
				Callee:   p.Name,
				Message:  fmt.Sprintf("%s re-specifies %s by path after a check on the same path; the file can change in between", p.Name, path.Render()),
			})
		}
	}
}
