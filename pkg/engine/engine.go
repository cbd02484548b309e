// Package engine orchestrates an analysis run: per-function passes fan out
// over a bounded worker pool, a barrier waits for every function, then the
// global lock-order phase runs and everything aggregates into one ordered
// result. Functions in flight share no mutable state; the aggregation pass
// is the single writer of the findings collection.
package engine

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/quarle/cvet/pkg/callgraph"
	"github.com/quarle/cvet/pkg/cfg"
	"github.com/quarle/cvet/pkg/findings"
	"github.com/quarle/cvet/pkg/lockcheck"
	"github.com/quarle/cvet/pkg/program"
	"github.com/quarle/cvet/pkg/vuln"
)

// Options configures a run.
type Options struct {
	// Workers bounds the per-function worker pool; 0 means GOMAXPROCS.
	Workers int
	// Catalog is the primitive catalog; nil means the default catalog.
	Catalog *program.Catalog
}

// Result is everything a run produced. Partial results are normal: functions
// that failed to build appear in Diagnostics and nowhere else, the rest
// analyze fully.
type Result struct {
	Findings    []findings.Finding
	Diagnostics []findings.Diagnostic

	CallGraph *callgraph.Graph
	CFGs      map[string]*cfg.Graph // by function name, built functions only
}

// Analyze runs the full pipeline over prog. The returned error is non-nil
// only for cancellation or a program so malformed it cannot be ingested;
// per-function failures are diagnostics inside the result.
func Analyze(ctx context.Context, prog *program.Program, opts Options) (*Result, error) {
	if prog == nil {
		return nil, fmt.Errorf("analyze: no program")
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	cat := opts.Catalog
	if cat == nil {
		cat = program.DefaultCatalog()
	}

	res := &Result{
		CallGraph: callgraph.NewGraph(prog),
		CFGs:      make(map[string]*cfg.Graph, len(prog.Functions)),
	}
	resolver := callgraph.NewResolver(prog)

	// Phase one: build every CFG and collect function-pointer bindings.
	// Binding collection must finish program-wide before any resolution
	// starts, so this phase ends at a barrier.
	var mu sync.Mutex
	built := make([]*cfg.Graph, 0, len(prog.Functions))
	err := forEachFunction(ctx, workers, prog.Functions, func(fn *program.Function) {
		g, buildErr := cfg.Build(fn)
		if buildErr != nil {
			mu.Lock()
			res.Diagnostics = append(res.Diagnostics, buildDiagnostic(fn, buildErr))
			mu.Unlock()
			return
		}
		resolver.CollectBindings(g)
		mu.Lock()
		built = append(built, g)
		res.CFGs[fn.Name] = g
		mu.Unlock()
	})
	if err != nil {
		return res, err
	}

	// Phase two: resolution, lock discipline, and vulnerability rules per
	// function. Findings and summaries collect under the same mutex and are
	// ordered afterwards, so scheduling never shows through.
	checker := lockcheck.New(cat)
	detector := vuln.New(prog, cat)

	var sums []*lockcheck.Summary
	err = forEachFunction(ctx, workers, built, func(g *cfg.Graph) {
		sites, diags := resolver.Resolve(g)
		sum, lockFindings := checker.Analyze(g, sites)
		vulnFindings := detector.Analyze(g)

		mu.Lock()
		res.CallGraph.AddSites(g.Function, sites)
		res.Diagnostics = append(res.Diagnostics, diags...)
		res.Findings = append(res.Findings, lockFindings...)
		res.Findings = append(res.Findings, vulnFindings...)
		sums = append(sums, sum)
		mu.Unlock()
	})
	if err != nil {
		return res, err
	}

	// Global phase, after the barrier: every function's contributed edges
	// are visible to the lock-order graph.
	order := lockcheck.BuildOrder(sums, res.CallGraph)
	res.Findings = append(res.Findings, order.Cycles()...)

	findings.Sort(res.Findings)
	findings.SortDiagnostics(res.Diagnostics)
	return res, nil
}

func buildDiagnostic(fn *program.Function, err error) findings.Diagnostic {
	d := findings.Diagnostic{
		Kind:     findings.MalformedProgram,
		Function: fn.Name,
		File:     fn.File,
		Line:     fn.Line,
		Message:  err.Error(),
	}
	if be, ok := err.(*cfg.BuildError); ok {
		d.Kind = be.Kind
		if be.Line > 0 {
			d.Line = be.Line
		}
	}
	return d
}

// forEachFunction fans work over a bounded pool and waits for all of it, the
// barrier between phases. Cancellation drains the remaining jobs without
// running them and surfaces the context error.
func forEachFunction[T any](ctx context.Context, workers int, items []T, work func(T)) error {
	if len(items) == 0 {
		return ctx.Err()
	}
	if workers > len(items) {
		workers = len(items)
	}

	jobs := make(chan T)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range jobs {
				if ctx.Err() != nil {
					continue
				}
				work(item)
			}
		}()
	}
	for _, item := range items {
		jobs <- item
	}
	close(jobs)
	wg.Wait()
	return ctx.Err()
}
