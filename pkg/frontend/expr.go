package frontend

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/quarle/cvet/pkg/program"
)

// lowerExpr reduces an expression node to the model's tagged variant. Forms
// with no bearing on the analyses come through as opaque leaves so enclosing
// expressions still lower.
func (l *lowerer) lowerExpr(node *sitter.Node) *program.Expr {
	if node == nil {
		return nil
	}
	line := l.line(node)

	switch node.Type() {
	case "parenthesized_expression":
		if node.NamedChildCount() > 0 {
			return l.lowerExpr(node.NamedChild(0))
		}
		return &program.Expr{Kind: program.ExprOpaque, Line: line}

	case "cast_expression":
		return l.lowerExpr(node.ChildByFieldName("value"))

	case "identifier", "true", "false", "null":
		return &program.Expr{Kind: program.ExprIdent, Name: l.text(node), Line: line}

	case "call_expression":
		e := &program.Expr{
			Kind:   program.ExprCall,
			Line:   line,
			Callee: l.lowerExpr(node.ChildByFieldName("function")),
		}
		if args := node.ChildByFieldName("arguments"); args != nil {
			for i := 0; i < int(args.NamedChildCount()); i++ {
				child := args.NamedChild(i)
				if child == nil || child.Type() == "comment" {
					continue
				}
				e.Args = append(e.Args, l.lowerExpr(child))
			}
		}
		return e

	case "assignment_expression":
		// Compound assignments keep only the store shape; the old value of
		// the target is not a function pointer source worth modeling.
		return &program.Expr{
			Kind: program.ExprAssign,
			Line: line,
			LHS:  l.lowerExpr(node.ChildByFieldName("left")),
			RHS:  l.lowerExpr(node.ChildByFieldName("right")),
		}

	case "field_expression":
		return &program.Expr{
			Kind: program.ExprField,
			Line: line,
			Base: l.lowerExpr(node.ChildByFieldName("argument")),
			Name: l.text(node.ChildByFieldName("field")),
		}

	case "subscript_expression":
		return &program.Expr{
			Kind:  program.ExprIndex,
			Line:  line,
			Base:  l.lowerExpr(node.ChildByFieldName("argument")),
			Index: l.lowerExpr(node.ChildByFieldName("index")),
		}

	case "pointer_expression":
		base := l.lowerExpr(node.ChildByFieldName("argument"))
		if op := node.ChildByFieldName("operator"); op != nil && l.text(op) == "&" {
			return &program.Expr{Kind: program.ExprAddrOf, Line: line, Base: base}
		}
		return &program.Expr{Kind: program.ExprUnary, Op: "*", Line: line, Base: base}

	case "unary_expression":
		return &program.Expr{
			Kind: program.ExprUnary,
			Line: line,
			Op:   l.text(node.ChildByFieldName("operator")),
			Base: l.lowerExpr(node.ChildByFieldName("argument")),
		}

	case "update_expression":
		return &program.Expr{
			Kind: program.ExprUnary,
			Line: line,
			Op:   l.text(node.ChildByFieldName("operator")),
			Base: l.lowerExpr(node.ChildByFieldName("argument")),
		}

	case "binary_expression":
		return &program.Expr{
			Kind: program.ExprBinary,
			Line: line,
			Op:   l.text(node.ChildByFieldName("operator")),
			L:    l.lowerExpr(node.ChildByFieldName("left")),
			R:    l.lowerExpr(node.ChildByFieldName("right")),
		}

	case "sizeof_expression":
		base := node.ChildByFieldName("value")
		if base != nil {
			return &program.Expr{Kind: program.ExprSizeof, Line: line, Base: l.lowerExpr(base)}
		}
		// sizeof(type): keep the type spelling as the operand
		typ := node.ChildByFieldName("type")
		return &program.Expr{
			Kind: program.ExprSizeof,
			Line: line,
			Base: &program.Expr{Kind: program.ExprIdent, Name: l.text(typ), Line: line},
		}

	case "number_literal", "char_literal":
		return &program.Expr{Kind: program.ExprIntLit, Value: l.text(node), Line: line}

	case "string_literal", "concatenated_string":
		return &program.Expr{Kind: program.ExprStrLit, Value: stripQuotes(l.text(node)), Line: line}

	default:
		return &program.Expr{Kind: program.ExprOpaque, Line: line}
	}
}

func stripQuotes(s string) string {
	s = strings.TrimPrefix(s, `"`)
	return strings.TrimSuffix(s, `"`)
}
