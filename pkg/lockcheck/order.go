package lockcheck

import (
	"fmt"
	"sort"
	"strings"

	"github.com/yourbasic/graph"

	"github.com/quarle/cvet/pkg/callgraph"
	"github.com/quarle/cvet/pkg/findings"
	"github.com/quarle/cvet/pkg/program"
)

// edgeInfo aggregates every observation of one lock-order edge.
type edgeInfo struct {
	fns  map[string]bool
	line int
	file string
}

// OrderGraph is the process-wide lock-order graph: nodes are lock keys, an
// edge A->B means some function acquired B while holding A, directly or
// through a call chain. Built once after the per-function phase; a cycle is
// a potential deadlock even when the contributing functions never call each
// other, since concurrent execution is assumed.
type OrderGraph struct {
	locks []string       // index -> key, sorted
	index map[string]int // key -> index
	edges map[int]map[int]*edgeInfo
}

// BuildOrder assembles the lock-order graph from every function's summary.
// Acquire sets close transitively over the call graph, so holding A while
// calling a function that (eventually) takes B contributes A->B.
func BuildOrder(sums []*Summary, cg *callgraph.Graph) *OrderGraph {
	bySym := make(map[program.SymbolID]*Summary, len(sums))
	for _, s := range sums {
		bySym[s.Fn.Symbol] = s
	}

	mayAcquire := closeAcquires(sums, bySym, cg)

	og := &OrderGraph{index: make(map[string]int), edges: make(map[int]map[int]*edgeInfo)}
	intern := func(key string) int {
		if i, ok := og.index[key]; ok {
			return i
		}
		i := len(og.locks)
		og.index[key] = i
		og.locks = append(og.locks, key)
		return i
	}

	for _, s := range sums {
		for _, p := range s.Pairs {
			og.addEdge(intern(p.From), intern(p.To), s.Fn.Name, s.Fn.File, p.Line)
		}
		for _, hc := range s.Calls {
			for to := range mayAcquire[hc.Callee] {
				for _, from := range hc.Held {
					if from == to {
						continue
					}
					og.addEdge(intern(from), intern(to), s.Fn.Name, s.Fn.File, hc.Line)
				}
			}
		}
	}
	return og
}

// closeAcquires computes each function's transitive may-acquire set by
// folding callee sets over the call graph's strongly connected components.
// Members of a recursion cycle share one set, so the walk never revisits a
// component.
func closeAcquires(sums []*Summary, bySym map[program.SymbolID]*Summary, cg *callgraph.Graph) map[program.SymbolID]map[string]bool {
	mayAcquire := make(map[program.SymbolID]map[string]bool, len(sums))
	if cg == nil || len(sums) == 0 {
		return mayAcquire
	}

	comps := cg.StronglyConnected()
	compOf := make(map[program.SymbolID]int)
	for ci, comp := range comps {
		for _, sym := range comp {
			compOf[sym] = ci
		}
	}

	compMay := make([]map[string]bool, len(comps))
	var fold func(ci int) map[string]bool
	fold = func(ci int) map[string]bool {
		if compMay[ci] != nil {
			return compMay[ci]
		}
		may := make(map[string]bool)
		compMay[ci] = may
		for _, sym := range comps[ci] {
			if s, ok := bySym[sym]; ok {
				for k := range s.Acquires {
					may[k] = true
				}
			}
			for _, target := range cg.Callees(sym) {
				tc, ok := compOf[target]
				if !ok || tc == ci {
					continue
				}
				for k := range fold(tc) {
					may[k] = true
				}
			}
		}
		return may
	}

	for _, s := range sums {
		if ci, ok := compOf[s.Fn.Symbol]; ok {
			mayAcquire[s.Fn.Symbol] = fold(ci)
		}
	}
	return mayAcquire
}

func (og *OrderGraph) addEdge(from, to int, fn, file string, line int) {
	m, ok := og.edges[from]
	if !ok {
		m = make(map[int]*edgeInfo)
		og.edges[from] = m
	}
	e, ok := m[to]
	if !ok {
		e = &edgeInfo{fns: make(map[string]bool), line: line, file: file}
		m[to] = e
	}
	e.fns[fn] = true
	if line < e.line {
		e.line = line
		e.file = file
	}
}

// Cycles searches the lock-order graph for deadlock cycles: one finding per
// strongly connected component of two or more locks, naming the lock cycle
// and the functions whose acquisition orders form it.
func (og *OrderGraph) Cycles() []findings.Finding {
	if len(og.locks) == 0 {
		return nil
	}
	g := graph.New(len(og.locks))
	for from, m := range og.edges {
		for to := range m {
			g.Add(from, to)
		}
	}

	var found []findings.Finding
	for _, comp := range graph.StrongComponents(g) {
		if len(comp) < 2 {
			continue
		}
		cycle := og.componentCycle(comp)
		if len(cycle) == 0 {
			continue
		}

		lockCycle := make([]string, len(cycle))
		for i, v := range cycle {
			lockCycle[i] = og.locks[v]
		}

		var fns []string
		seen := make(map[string]bool)
		line := 0
		file := ""
		for i, v := range cycle {
			next := cycle[(i+1)%len(cycle)]
			e := og.edges[v][next]
			if e == nil {
				continue
			}
			if line == 0 || e.line < line {
				line = e.line
				file = e.file
			}
			for _, fn := range sortedKeys(e.fns) {
				if !seen[fn] {
					seen[fn] = true
					fns = append(fns, fn)
				}
			}
		}

		found = append(found, findings.Finding{
			Kind:      findings.DeadlockCycle,
			Severity:  findings.SeverityHigh,
			Function:  fns[0],
			File:      file,
			Line:      line,
			Lock:      lockCycle[0],
			Cycle:     fns,
			LockCycle: lockCycle,
			Message: fmt.Sprintf("lock ordering cycle %s across %s",
				strings.Join(append(append([]string{}, lockCycle...), lockCycle[0]), " -> "),
				strings.Join(fns, ", ")),
		})
	}
	return found
}

// componentCycle extracts one deterministic simple cycle from a strongly
// connected component: a depth-first walk from the smallest lock key taking
// successors in key order until it closes back on the start.
func (og *OrderGraph) componentCycle(comp []int) []int {
	inComp := make(map[int]bool, len(comp))
	for _, v := range comp {
		inComp[v] = true
	}

	start := comp[0]
	for _, v := range comp[1:] {
		if og.locks[v] < og.locks[start] {
			start = v
		}
	}

	onPath := make(map[int]bool)
	var path []int
	var walk func(v int) bool
	walk = func(v int) bool {
		path = append(path, v)
		onPath[v] = true
		for _, next := range og.succsSorted(v) {
			if !inComp[next] {
				continue
			}
			if next == start && len(path) > 1 {
				return true
			}
			if onPath[next] {
				continue
			}
			if walk(next) {
				return true
			}
		}
		path = path[:len(path)-1]
		delete(onPath, v)
		return false
	}
	if !walk(start) {
		return nil
	}
	return path
}

func (og *OrderGraph) succsSorted(v int) []int {
	m := og.edges[v]
	out := make([]int, 0, len(m))
	for to := range m {
		out = append(out, to)
	}
	sort.Slice(out, func(i, j int) bool { return og.locks[out[i]] < og.locks[out[j]] })
	return out
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
