package vuln

import (
	"testing"

	"github.com/quarle/cvet/pkg/cfg"
	"github.com/quarle/cvet/pkg/findings"
	"github.com/quarle/cvet/pkg/frontend"
	"github.com/quarle/cvet/pkg/program"
)

// detectSource lowers src, builds every function's CFG, and runs the rules,
// returning all findings.
func detectSource(t *testing.T, src string) []findings.Finding {
	t.Helper()
	unit, err := frontend.ParseSource([]byte(src), "test.c")
	if err != nil {
		t.Fatalf("ParseSource failed: %v", err)
	}
	prog := frontend.Load(unit)
	d := New(prog, program.DefaultCatalog())

	var out []findings.Finding
	for _, fn := range prog.Functions {
		g, err := cfg.Build(fn)
		if err != nil {
			t.Fatalf("Build(%s) failed: %v", fn.Name, err)
		}
		out = append(out, d.Analyze(g)...)
	}
	return out
}

func findingsOfKind(fs []findings.Finding, kind findings.Kind) []findings.Finding {
	var out []findings.Finding
	for _, f := range fs {
		if f.Kind == kind {
			out = append(out, f)
		}
	}
	return out
}

func assertOne(t *testing.T, fs []findings.Finding, kind findings.Kind) findings.Finding {
	t.Helper()
	got := findingsOfKind(fs, kind)
	if len(got) != 1 {
		t.Fatalf("expected exactly 1 %s, got %d (%v)", kind, len(got), fs)
	}
	return got[0]
}

func assertNone(t *testing.T, fs []findings.Finding, kind findings.Kind) {
	t.Helper()
	if got := findingsOfKind(fs, kind); len(got) != 0 {
		t.Fatalf("expected no %s, got %v", kind, got)
	}
}
