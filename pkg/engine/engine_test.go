package engine

import (
	"context"
	"reflect"
	"testing"

	"github.com/quarle/cvet/pkg/findings"
	"github.com/quarle/cvet/pkg/frontend"
	"github.com/quarle/cvet/pkg/program"
)

const mixedSource = `
pthread_mutex_t lock_a;
pthread_mutex_t lock_b;

void worker_one(void) {
    pthread_mutex_lock(&lock_a);
    pthread_mutex_lock(&lock_b);
    pthread_mutex_unlock(&lock_b);
    pthread_mutex_unlock(&lock_a);
}

void worker_two(void) {
    pthread_mutex_lock(&lock_b);
    pthread_mutex_lock(&lock_a);
    pthread_mutex_unlock(&lock_a);
    pthread_mutex_unlock(&lock_b);
}

void copy_name(char *src) {
    char buf[32];
    strcpy(buf, src);
}

void log_raw(char *msg) {
    printf(msg);
}

int check_then_open(char *path) {
    if (access(path, 0) != 0) {
        return -1;
    }
    return open(path, 0);
}
`

func loadSource(t *testing.T, src string) *program.Program {
	t.Helper()
	unit, err := frontend.ParseSource([]byte(src), "test.c")
	if err != nil {
		t.Fatalf("ParseSource failed: %v", err)
	}
	return frontend.Load(unit)
}

func countKinds(fs []findings.Finding) map[findings.Kind]int {
	out := make(map[findings.Kind]int)
	for _, f := range fs {
		out[f.Kind]++
	}
	return out
}

func TestAnalyzeFullPipeline(t *testing.T) {
	prog := loadSource(t, mixedSource)
	res, err := Analyze(context.Background(), prog, Options{Workers: 2})
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	kinds := countKinds(res.Findings)
	want := map[findings.Kind]int{
		findings.DeadlockCycle:         1,
		findings.UnsafeCopy:            1,
		findings.FormatStringInjection: 1,
		findings.ToctouRace:            1,
	}
	for kind, n := range want {
		if kinds[kind] != n {
			t.Errorf("%s: got %d, want %d (all: %v)", kind, kinds[kind], n, kinds)
		}
	}
	if len(res.Findings) != 4 {
		t.Errorf("expected 4 findings total, got %d: %v", len(res.Findings), res.Findings)
	}

	if len(res.CFGs) != len(prog.Functions) {
		t.Errorf("expected a CFG per function, got %d of %d", len(res.CFGs), len(prog.Functions))
	}
	if res.CallGraph == nil {
		t.Fatal("call graph missing from result")
	}
}

func TestAnalyzeDeterministic(t *testing.T) {
	first, err := Analyze(context.Background(), loadSource(t, mixedSource), Options{Workers: 4})
	if err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	second, err := Analyze(context.Background(), loadSource(t, mixedSource), Options{Workers: 1})
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}

	if !reflect.DeepEqual(first.Findings, second.Findings) {
		t.Errorf("findings differ across runs:\n%v\n%v", first.Findings, second.Findings)
	}
	if !reflect.DeepEqual(first.Diagnostics, second.Diagnostics) {
		t.Errorf("diagnostics differ across runs:\n%v\n%v", first.Diagnostics, second.Diagnostics)
	}
}

func TestAnalyzeBuildFailureIsDiagnostic(t *testing.T) {
	prog := loadSource(t, `
void broken(void) {
    goto out;
out:
    return;
}

void fine(char *src) {
    char buf[16];
    strcpy(buf, src);
}
`)
	res, err := Analyze(context.Background(), prog, Options{})
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	var fatal []findings.Diagnostic
	for _, d := range res.Diagnostics {
		if d.Fatal() {
			fatal = append(fatal, d)
		}
	}
	if len(fatal) != 1 || fatal[0].Function != "broken" {
		t.Fatalf("expected one fatal diagnostic for broken, got %v", res.Diagnostics)
	}
	if fatal[0].Kind != findings.UnsupportedConstruct {
		t.Errorf("kind = %s", fatal[0].Kind)
	}

	// The failing function is excluded; the rest still analyze.
	if _, ok := res.CFGs["broken"]; ok {
		t.Error("broken must not have a CFG")
	}
	kinds := countKinds(res.Findings)
	if kinds[findings.UnsafeCopy] != 1 {
		t.Errorf("fine should still report, got %v", res.Findings)
	}
}

func TestAnalyzeCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Analyze(ctx, loadSource(t, mixedSource), Options{})
	if err != context.Canceled {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestAnalyzeNilProgram(t *testing.T) {
	if _, err := Analyze(context.Background(), nil, Options{}); err == nil {
		t.Error("expected an error for a nil program")
	}
}

func TestAnalyzeEmptyProgram(t *testing.T) {
	prog := program.NewProgram(nil, nil)
	res, err := Analyze(context.Background(), prog, Options{})
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if len(res.Findings) != 0 || len(res.Diagnostics) != 0 {
		t.Errorf("empty program should produce nothing, got %v / %v", res.Findings, res.Diagnostics)
	}
}

func TestCustomCatalogExtension(t *testing.T) {
	// A project-specific lock wrapper registered in the catalog participates
	// in the lock rules like the builtin primitives.
	cat := program.DefaultCatalog()
	acquire := program.Primitive{Name: "app_lock", Category: program.PrimLockAcquire,
		LockArg: 0, PathArg: -1, DestArg: -1, LenArg: -1, FmtArg: -1, SizeArg: -1}
	cat.Add(acquire)

	prog := loadSource(t, `
pthread_mutex_t m;

void f(void) {
    app_lock(&m);
    app_lock(&m);
}
`)
	res, err := Analyze(context.Background(), prog, Options{Catalog: cat})
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	kinds := countKinds(res.Findings)
	if kinds[findings.DoubleAcquire] != 1 {
		t.Errorf("custom acquire primitive not honored: %v", res.Findings)
	}
	if kinds[findings.LockLeak] != 1 {
		t.Errorf("held custom lock should leak at exit: %v", res.Findings)
	}
}

func TestFindingsSortedByLocation(t *testing.T) {
	res, err := Analyze(context.Background(), loadSource(t, mixedSource), Options{})
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	for i := 1; i < len(res.Findings); i++ {
		a, b := res.Findings[i-1], res.Findings[i]
		if a.File > b.File || (a.File == b.File && a.Function > b.Function) {
			t.Fatalf("findings out of order at %d: %v before %v", i, a, b)
		}
	}
}
