package vuln

import (
	"strings"
	"testing"

	"github.com/quarle/cvet/pkg/findings"
)

func TestUncheckedProductAllocation(t *testing.T) {
	fs := detectSource(t, `
void *f(int count, int size) {
    return malloc(count * size);
}
`)
	got := assertOne(t, fs, findings.IntegerOverflowAlloc)
	if got.Callee != "malloc" {
		t.Errorf("callee = %q", got.Callee)
	}
	if !strings.Contains(got.Message, "count") || !strings.Contains(got.Message, "size") {
		t.Errorf("message should name both operands, got %q", got.Message)
	}
}

func TestGuardedProductAllocation(t *testing.T) {
	fs := detectSource(t, `
void *f(int count, int size) {
    if (count > SIZE_MAX / size) {
        return 0;
    }
    return malloc(count * size);
}
`)
	assertNone(t, fs, findings.IntegerOverflowAlloc)
}

func TestGuardWithSwappedOperands(t *testing.T) {
	fs := detectSource(t, `
void *f(int count, int size) {
    if (size > SIZE_MAX / count) {
        return 0;
    }
    return malloc(count * size);
}
`)
	assertNone(t, fs, findings.IntegerOverflowAlloc)
}

func TestProductThroughVariable(t *testing.T) {
	fs := detectSource(t, `
void *f(int count, int size) {
    int total;
    total = count * size;
    return malloc(total);
}
`)
	assertOne(t, fs, findings.IntegerOverflowAlloc)
}

func TestConstantFactorNotFlagged(t *testing.T) {
	fs := detectSource(t, `
void *f(int count) {
    return malloc(count * 8);
}
`)
	assertNone(t, fs, findings.IntegerOverflowAlloc)
}

func TestSizeofFactorNotFlagged(t *testing.T) {
	fs := detectSource(t, `
struct entry { int a; int b; };

void *f(int count) {
    return malloc(count * sizeof(struct entry));
}
`)
	assertNone(t, fs, findings.IntegerOverflowAlloc)
}

func TestReallocSizePosition(t *testing.T) {
	fs := detectSource(t, `
void *f(void *p, int count, int size) {
    return realloc(p, count * size);
}
`)
	got := assertOne(t, fs, findings.IntegerOverflowAlloc)
	if got.Callee != "realloc" {
		t.Errorf("callee = %q", got.Callee)
	}
}

func TestCallocNotInRule(t *testing.T) {
	// calloc performs its own overflow check on the product.
	fs := detectSource(t, `
void *f(int count, int size) {
    return calloc(count, size);
}
`)
	assertNone(t, fs, findings.IntegerOverflowAlloc)
}

func TestGuardOnOtherBranchStillCounts(t *testing.T) {
	// The backward walk only needs the guard on the path into the
	// allocation, wherever the early return lives.
	fs := detectSource(t, `
void *f(int count, int size) {
    void *p;
    p = 0;
    if (count > SIZE_MAX / size) {
        log_error();
    } else {
        p = malloc(count * size);
    }
    return p;
}
`)
	assertNone(t, fs, findings.IntegerOverflowAlloc)
}
