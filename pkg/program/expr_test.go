package program

import "testing"

func ident(name string) *Expr { return &Expr{Kind: ExprIdent, Name: name} }

func TestRender(t *testing.T) {
	tests := []struct {
		name string
		expr *Expr
		want string
	}{
		{"ident", ident("cb"), "cb"},
		{"field", &Expr{Kind: ExprField, Base: ident("ops"), Name: "process"}, "ops.process"},
		{"index", &Expr{Kind: ExprIndex, Base: ident("table"), Index: ident("i")}, "table[i]"},
		{"addr-of collapses", &Expr{Kind: ExprAddrOf, Base: ident("f")}, "f"},
		{"deref", &Expr{Kind: ExprUnary, Op: "*", Base: ident("p")}, "*p"},
		{"int literal", &Expr{Kind: ExprIntLit, Value: "64"}, "64"},
		{"sizeof", &Expr{Kind: ExprSizeof, Base: ident("buf")}, "sizeof(buf)"},
		{"binary", &Expr{Kind: ExprBinary, Op: "*", L: ident("count"), R: ident("size")}, "count*size"},
		{"call", &Expr{Kind: ExprCall, Callee: ident("f"), Args: []*Expr{ident("x")}}, "f(x)"},
		{"opaque", &Expr{Kind: ExprOpaque}, "?"},
		{"nil", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.expr.Render(); got != tt.want {
				t.Errorf("Render() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRootIdent(t *testing.T) {
	tests := []struct {
		name string
		expr *Expr
		want string
	}{
		{"plain", ident("x"), "x"},
		{"field chain", &Expr{Kind: ExprField, Name: "f", Base: &Expr{Kind: ExprField, Name: "g", Base: ident("x")}}, "x"},
		{"index", &Expr{Kind: ExprIndex, Base: ident("x"), Index: ident("i")}, "x"},
		{"addr-of", &Expr{Kind: ExprAddrOf, Base: ident("x")}, "x"},
		{"literal has none", &Expr{Kind: ExprIntLit, Value: "3"}, ""},
		{"call has none", &Expr{Kind: ExprCall, Callee: ident("f")}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.expr.RootIdent(); got != tt.want {
				t.Errorf("RootIdent() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIsConstant(t *testing.T) {
	lit := &Expr{Kind: ExprIntLit, Value: "8"}
	size := &Expr{Kind: ExprSizeof, Base: ident("buf")}

	if !lit.IsConstant() || !size.IsConstant() {
		t.Error("literals and sizeof are constants")
	}
	if ident("n").IsConstant() {
		t.Error("identifiers are not constants")
	}
	combo := &Expr{Kind: ExprBinary, Op: "-", L: size, R: lit}
	if !combo.IsConstant() {
		t.Error("constant binary combinations are constants")
	}
	mixed := &Expr{Kind: ExprBinary, Op: "*", L: ident("n"), R: lit}
	if mixed.IsConstant() {
		t.Error("a non-constant operand spoils the expression")
	}
	if (*Expr)(nil).IsConstant() {
		t.Error("nil is not a constant")
	}
}
