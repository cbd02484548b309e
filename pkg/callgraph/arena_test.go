package callgraph

import (
	"testing"

	"github.com/quarle/cvet/pkg/program"
)

func TestArenaIntern(t *testing.T) {
	a := NewArena()

	first := a.Intern("main::cb")
	again := a.Intern("main::cb")
	if first != again {
		t.Errorf("interning the same key twice gave %d and %d", first, again)
	}

	other := a.Intern("table[]")
	if other == first {
		t.Error("distinct keys interned to the same ID")
	}
	if a.Key(first) != "main::cb" || a.Key(other) != "table[]" {
		t.Error("Key does not round-trip")
	}
}

func TestStorageKey(t *testing.T) {
	ident := func(name string) *program.Expr {
		return &program.Expr{Kind: program.ExprIdent, Name: name}
	}
	isLocal := func(name string) bool { return name == "cb" || name == "ops" }

	tests := []struct {
		name string
		expr *program.Expr
		want string
		ok   bool
	}{
		{
			name: "local qualified by function",
			expr: ident("cb"),
			want: "handler::cb",
			ok:   true,
		},
		{
			name: "global keeps bare name",
			expr: ident("current_handler"),
			want: "current_handler",
			ok:   true,
		},
		{
			name: "address-of is identity",
			expr: &program.Expr{Kind: program.ExprAddrOf, Base: ident("cb")},
			want: "handler::cb",
			ok:   true,
		},
		{
			name: "struct field chains",
			expr: &program.Expr{Kind: program.ExprField, Name: "process", Base: ident("ops")},
			want: "handler::ops.process",
			ok:   true,
		},
		{
			name: "array index smashed",
			expr: &program.Expr{
				Kind:  program.ExprIndex,
				Base:  ident("table"),
				Index: &program.Expr{Kind: program.ExprIntLit, Value: "3"},
			},
			want: "table[]",
			ok:   true,
		},
		{
			name: "every index lands on one slot",
			expr: &program.Expr{
				Kind:  program.ExprIndex,
				Base:  ident("table"),
				Index: ident("i"),
			},
			want: "table[]",
			ok:   true,
		},
		{
			name: "pointer deref passes through",
			expr: &program.Expr{Kind: program.ExprUnary, Op: "*", Base: ident("cb")},
			want: "handler::cb",
			ok:   true,
		},
		{
			name: "call expression is not storage",
			expr: &program.Expr{Kind: program.ExprCall, Callee: ident("f")},
			want: "",
			ok:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := StorageKey("handler", isLocal, tt.expr)
			if ok != tt.ok || got != tt.want {
				t.Errorf("StorageKey = %q, %v; want %q, %v", got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestSymbolSet(t *testing.T) {
	s := make(SymbolSet)
	if !s.Add(2) {
		t.Error("first Add should grow the set")
	}
	if s.Add(2) {
		t.Error("repeated Add should not grow the set")
	}

	other := SymbolSet{1: {}, 2: {}, 5: {}}
	if !s.AddAll(other) {
		t.Error("AddAll with new members should report growth")
	}
	if s.AddAll(other) {
		t.Error("AddAll with no new members should not report growth")
	}

	got := s.Sorted()
	want := []program.SymbolID{1, 2, 5}
	if len(got) != len(want) {
		t.Fatalf("Sorted = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Sorted = %v, want %v", got, want)
		}
	}

	clone := s.Clone()
	clone.Add(9)
	if _, leaked := s[9]; leaked {
		t.Error("Clone should be independent of the original")
	}
}
