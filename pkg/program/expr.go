package program

import "strings"

// ExprKind discriminates the expression variant.
type ExprKind string

const (
	ExprCall    ExprKind = "call"
	ExprAssign  ExprKind = "assign"
	ExprIdent   ExprKind = "ident"
	ExprField   ExprKind = "field"
	ExprIndex   ExprKind = "index"
	ExprAddrOf  ExprKind = "addr_of"
	ExprBinary  ExprKind = "binary"
	ExprUnary   ExprKind = "unary"
	ExprSizeof  ExprKind = "sizeof"
	ExprIntLit  ExprKind = "int_lit"
	ExprStrLit  ExprKind = "str_lit"
	ExprOpaque  ExprKind = "opaque" // anything the front-end does not model
)

// Expr is the tagged expression variant.
type Expr struct {
	Kind ExprKind
	Line int

	// ExprCall: Callee + Args
	Callee *Expr
	Args   []*Expr

	// ExprAssign: LHS = RHS (compound assignments lower to plain assigns)
	LHS *Expr
	RHS *Expr

	// ExprIdent / ExprField (Name holds the field) / ExprStrLit / ExprIntLit
	Name  string // identifier or field name
	Value string // literal text (int literals keep their source spelling)

	// ExprField / ExprIndex / ExprAddrOf / ExprUnary / ExprSizeof
	Base *Expr

	// ExprIndex
	Index *Expr

	// ExprBinary / ExprUnary
	Op string
	L  *Expr
	R  *Expr
}

// IsConstant reports whether the expression is a compile-time constant for
// the purposes of the overflow rules: integer literals and sizeof both
// qualify, as do constant binary combinations of them.
func (e *Expr) IsConstant() bool {
	if e == nil {
		return false
	}
	switch e.Kind {
	case ExprIntLit, ExprSizeof:
		return true
	case ExprBinary:
		return e.L.IsConstant() && e.R.IsConstant()
	case ExprUnary:
		return e.Base.IsConstant()
	default:
		return false
	}
}

// RootIdent returns the identifier at the base of an lvalue chain
// (x, x.f, x[i], &x all root at "x"), or "" when there is none.
func (e *Expr) RootIdent() string {
	for e != nil {
		switch e.Kind {
		case ExprIdent:
			return e.Name
		case ExprField, ExprIndex, ExprAddrOf, ExprUnary:
			e = e.Base
		default:
			return ""
		}
	}
	return ""
}

// Render produces a canonical source-like spelling used for storage-location
// keys and finding messages: stable across runs and insensitive to address-of
// (&f and f name the same target).
func (e *Expr) Render() string {
	if e == nil {
		return ""
	}
	switch e.Kind {
	case ExprIdent:
		return e.Name
	case ExprField:
		return e.Base.Render() + "." + e.Name
	case ExprIndex:
		return e.Base.Render() + "[" + e.Index.Render() + "]"
	case ExprAddrOf:
		return e.Base.Render()
	case ExprUnary:
		return e.Op + e.Base.Render()
	case ExprIntLit:
		return e.Value
	case ExprStrLit:
		return "\"" + e.Value + "\""
	case ExprSizeof:
		return "sizeof(" + e.Base.Render() + ")"
	case ExprBinary:
		return e.L.Render() + e.Op + e.R.Render()
	case ExprCall:
		args := make([]string, len(e.Args))
		for i, a := range e.Args {
			args[i] = a.Render()
		}
		return e.Callee.Render() + "(" + strings.Join(args, ",") + ")"
	case ExprAssign:
		return e.LHS.Render() + "=" + e.RHS.Render()
	default:
		return "?"
	}
}
