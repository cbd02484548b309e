package lockcheck

import (
	"testing"

	"github.com/quarle/cvet/pkg/callgraph"
	"github.com/quarle/cvet/pkg/cfg"
	"github.com/quarle/cvet/pkg/findings"
	"github.com/quarle/cvet/pkg/frontend"
	"github.com/quarle/cvet/pkg/program"
)

// checkSource runs the full per-function pipeline over src the way the
// engine does: build every CFG, collect bindings everywhere, resolve, then
// check each function. It returns all summaries and all findings.
func checkSource(t *testing.T, src string) (map[string]*Summary, []findings.Finding, *callgraph.Graph) {
	t.Helper()
	unit, err := frontend.ParseSource([]byte(src), "test.c")
	if err != nil {
		t.Fatalf("ParseSource failed: %v", err)
	}
	prog := frontend.Load(unit)

	graphs := make([]*cfg.Graph, 0, len(prog.Functions))
	for _, fn := range prog.Functions {
		g, err := cfg.Build(fn)
		if err != nil {
			t.Fatalf("Build(%s) failed: %v", fn.Name, err)
		}
		graphs = append(graphs, g)
	}

	r := callgraph.NewResolver(prog)
	for _, g := range graphs {
		r.CollectBindings(g)
	}
	cg := callgraph.NewGraph(prog)
	perFn := make(map[string][]callgraph.CallSite, len(graphs))
	for _, g := range graphs {
		sites, _ := r.Resolve(g)
		cg.AddSites(g.Function, sites)
		perFn[g.Function.Name] = sites
	}

	checker := New(program.DefaultCatalog())
	sums := make(map[string]*Summary, len(graphs))
	var all []findings.Finding
	for _, g := range graphs {
		sum, fs := checker.Analyze(g, perFn[g.Function.Name])
		sums[g.Function.Name] = sum
		all = append(all, fs...)
	}
	return sums, all, cg
}

func byKind(fs []findings.Finding, kind findings.Kind) []findings.Finding {
	var out []findings.Finding
	for _, f := range fs {
		if f.Kind == kind {
			out = append(out, f)
		}
	}
	return out
}

func TestBalancedLockClean(t *testing.T) {
	_, fs, _ := checkSource(t, `
pthread_mutex_t m;

void f(void) {
    pthread_mutex_lock(&m);
    work();
    pthread_mutex_unlock(&m);
}
`)
	if len(fs) != 0 {
		t.Errorf("balanced acquire/release should be clean, got %v", fs)
	}
}

func TestDoubleAcquire(t *testing.T) {
	_, fs, _ := checkSource(t, `
pthread_mutex_t m;

void f(void) {
    pthread_mutex_lock(&m);
    pthread_mutex_lock(&m);
    pthread_mutex_unlock(&m);
}
`)
	got := byKind(fs, findings.DoubleAcquire)
	if len(got) != 1 {
		t.Fatalf("expected 1 double-acquire, got %d (%v)", len(got), fs)
	}
	if got[0].Lock != "m" {
		t.Errorf("lock key = %q, want m", got[0].Lock)
	}
	if got[0].Severity != findings.SeverityHigh {
		t.Errorf("severity = %s", got[0].Severity)
	}
}

func TestUnbalancedRelease(t *testing.T) {
	_, fs, _ := checkSource(t, `
pthread_mutex_t m;

void f(void) {
    pthread_mutex_unlock(&m);
}
`)
	got := byKind(fs, findings.UnbalancedRelease)
	if len(got) != 1 {
		t.Fatalf("expected 1 unbalanced release, got %d (%v)", len(got), fs)
	}
	if got[0].Lock != "m" {
		t.Errorf("lock key = %q", got[0].Lock)
	}
}

func TestLockLeakOnEarlyReturn(t *testing.T) {
	_, fs, _ := checkSource(t, `
pthread_mutex_t m;

int f(int err) {
    pthread_mutex_lock(&m);
    if (err) {
        return -1;
    }
    pthread_mutex_unlock(&m);
    return 0;
}
`)
	got := byKind(fs, findings.LockLeak)
	if len(got) != 1 {
		t.Fatalf("expected exactly 1 lock leak at the early return, got %d (%v)", len(got), fs)
	}
	if got[0].Lock != "m" {
		t.Errorf("lock key = %q", got[0].Lock)
	}
	if len(byKind(fs, findings.InconsistentLockState)) != 0 {
		t.Error("a sealed early return does not join back, so no inconsistency applies")
	}
}

func TestConditionalAcquireReportedOnceAtJoin(t *testing.T) {
	// The lock is taken on one arm only. The join is the single point of
	// inconsistency; the release below must not pile an unbalanced-release
	// report on top, and the exit must not pile a leak report on top.
	_, fs, _ := checkSource(t, `
pthread_mutex_t m;

void f(int flag) {
    if (flag) {
        pthread_mutex_lock(&m);
    }
    work();
    pthread_mutex_unlock(&m);
}
`)
	if got := byKind(fs, findings.InconsistentLockState); len(got) != 1 {
		t.Fatalf("expected exactly 1 inconsistency at the join, got %d (%v)", len(got), fs)
	}
	if got := byKind(fs, findings.UnbalancedRelease); len(got) != 0 {
		t.Errorf("release of a poisoned lock must stay quiet, got %v", got)
	}
	if got := byKind(fs, findings.LockLeak); len(got) != 0 {
		t.Errorf("no leak applies after the inconsistency was reported, got %v", got)
	}
	if len(fs) != 1 {
		t.Errorf("expected the single join finding, got %v", fs)
	}
}

func TestBothArmsAcquireIsConsistent(t *testing.T) {
	_, fs, _ := checkSource(t, `
pthread_mutex_t m;

void f(int flag) {
    if (flag) {
        pthread_mutex_lock(&m);
    } else {
        pthread_mutex_lock(&m);
    }
    pthread_mutex_unlock(&m);
}
`)
	if len(fs) != 0 {
		t.Errorf("agreeing arms are consistent, got %v", fs)
	}
}

func TestBlockingWhileHeld(t *testing.T) {
	_, fs, _ := checkSource(t, `
pthread_mutex_t m;

void f(int fd, char *buf) {
    pthread_mutex_lock(&m);
    recv(fd, buf, 128, 0);
    pthread_mutex_unlock(&m);
}
`)
	got := byKind(fs, findings.BlockingWhileHeld)
	if len(got) != 1 {
		t.Fatalf("expected 1 blocking-while-held, got %d (%v)", len(got), fs)
	}
	if got[0].Callee != "recv" {
		t.Errorf("callee = %q", got[0].Callee)
	}
	if got[0].Lock != "m" {
		t.Errorf("held locks = %q", got[0].Lock)
	}
}

func TestBlockingAfterReleaseClean(t *testing.T) {
	_, fs, _ := checkSource(t, `
pthread_mutex_t m;

void f(int fd, char *buf) {
    pthread_mutex_lock(&m);
    pthread_mutex_unlock(&m);
    recv(fd, buf, 128, 0);
}
`)
	if len(fs) != 0 {
		t.Errorf("blocking with nothing held is fine, got %v", fs)
	}
}

func TestDistinctLockObjects(t *testing.T) {
	// Locals in different functions must never alias; globals must.
	_, fs, _ := checkSource(t, `
pthread_mutex_t a;
pthread_mutex_t b;

void f(void) {
    pthread_mutex_lock(&a);
    pthread_mutex_lock(&b);
    pthread_mutex_unlock(&b);
    pthread_mutex_unlock(&a);
}
`)
	if len(fs) != 0 {
		t.Errorf("nested distinct locks are balanced, got %v", fs)
	}
}

func TestSummaryRecordsAcquiresAndPairs(t *testing.T) {
	sums, _, _ := checkSource(t, `
pthread_mutex_t a;
pthread_mutex_t b;

void f(void) {
    pthread_mutex_lock(&a);
    pthread_mutex_lock(&b);
    pthread_mutex_unlock(&b);
    pthread_mutex_unlock(&a);
}
`)
	sum := sums["f"]
	if !sum.Acquires["a"] || !sum.Acquires["b"] {
		t.Errorf("acquire set = %v", sum.Acquires)
	}
	if len(sum.Pairs) != 1 {
		t.Fatalf("expected one order pair, got %v", sum.Pairs)
	}
	if sum.Pairs[0].From != "a" || sum.Pairs[0].To != "b" {
		t.Errorf("pair = %+v, want a -> b", sum.Pairs[0])
	}
}

func TestSummaryRecordsHeldCalls(t *testing.T) {
	sums, _, _ := checkSource(t, `
pthread_mutex_t m;

void callee(void) {
}

void f(void) {
    pthread_mutex_lock(&m);
    callee();
    pthread_mutex_unlock(&m);
}
`)
	sum := sums["f"]
	if len(sum.Calls) != 1 {
		t.Fatalf("expected one held call, got %v", sum.Calls)
	}
	hc := sum.Calls[0]
	if len(hc.Held) != 1 || hc.Held[0] != "m" {
		t.Errorf("held set = %v", hc.Held)
	}
}

func TestLoopAcquireReleaseBalanced(t *testing.T) {
	_, fs, _ := checkSource(t, `
pthread_mutex_t m;

void f(int n) {
    while (n > 0) {
        pthread_mutex_lock(&m);
        work();
        pthread_mutex_unlock(&m);
        n = n - 1;
    }
}
`)
	if len(fs) != 0 {
		t.Errorf("per-iteration balance is clean, got %v", fs)
	}
}

func TestLoopCarryHeldAcrossBackEdge(t *testing.T) {
	// Acquire inside the loop without release: the back edge merges a held
	// state with the not-held entry state, which is an inconsistency, and the
	// second iteration's acquire no longer fires as a double acquire because
	// the key was poisoned at the loop head.
	_, fs, _ := checkSource(t, `
pthread_mutex_t m;

void f(int n) {
    while (n > 0) {
        pthread_mutex_lock(&m);
        n = n - 1;
    }
}
`)
	if got := byKind(fs, findings.InconsistentLockState); len(got) != 1 {
		t.Errorf("expected 1 inconsistency at the loop head, got %v", fs)
	}
}
