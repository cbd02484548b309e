package frontend

import (
	"strconv"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/quarle/cvet/pkg/program"
)

// lowerer reduces one parsed translation unit to the program model.
type lowerer struct {
	content    []byte
	path       string
	fnPtrTypes map[string]bool // typedef names that alias function pointer types
}

func (l *lowerer) text(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	start := n.StartByte()
	end := n.EndByte()
	if start >= uint32(len(l.content)) || end > uint32(len(l.content)) {
		return ""
	}
	return string(l.content[start:end])
}

func (l *lowerer) line(n *sitter.Node) int {
	return int(n.StartPoint().Row) + 1
}

// collectTypedefs walks the unit for typedefs of function pointer types so
// later declarations written against the alias are still recognized as
// function pointer storage.
func (l *lowerer) collectTypedefs(node *sitter.Node) {
	if node == nil {
		return
	}
	if node.Type() == "type_definition" {
		if fd := findDescendant(node, "function_declarator"); fd != nil {
			if name := findDescendant(fd, "type_identifier"); name != nil {
				l.fnPtrTypes[l.text(name)] = true
			}
		}
		return
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		l.collectTypedefs(node.Child(i))
	}
}

// findDescendant returns the first node of the given type in pre-order.
func findDescendant(node *sitter.Node, nodeType string) *sitter.Node {
	if node == nil {
		return nil
	}
	if node.Type() == nodeType {
		return node
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		if found := findDescendant(node.Child(i), nodeType); found != nil {
			return found
		}
	}
	return nil
}

// lowerFunction reduces a function_definition to a Function, or nil when the
// definition has no recoverable name.
func (l *lowerer) lowerFunction(node *sitter.Node) *program.Function {
	declarator := node.ChildByFieldName("declarator")
	fd := findDescendant(declarator, "function_declarator")
	if fd == nil {
		return nil
	}
	nameNode := findDescendant(fd.ChildByFieldName("declarator"), "identifier")
	if nameNode == nil {
		return nil
	}

	fn := &program.Function{
		Name: l.text(nameNode),
		File: l.path,
		Line: l.line(node),
	}

	if params := fd.ChildByFieldName("parameters"); params != nil {
		fn.Params = l.lowerParams(params)
	}
	if body := node.ChildByFieldName("body"); body != nil {
		fn.Body = l.lowerBlock(body)
	}
	return fn
}

func (l *lowerer) lowerParams(list *sitter.Node) []program.Param {
	var params []program.Param
	for i := 0; i < int(list.NamedChildCount()); i++ {
		child := list.NamedChild(i)
		if child == nil || child.Type() != "parameter_declaration" {
			continue
		}
		typ := l.text(child.ChildByFieldName("type"))
		nameNode := findDescendant(child.ChildByFieldName("declarator"), "identifier")
		if nameNode == nil {
			// bare "void" or an abstract declarator
			continue
		}
		params = append(params, program.Param{Name: l.text(nameNode), Type: typ})
	}
	return params
}

func (l *lowerer) lowerBlock(node *sitter.Node) *program.Stmt {
	block := &program.Stmt{Kind: program.StmtBlock, Line: l.line(node)}
	for i := 0; i < int(node.NamedChildCount()); i++ {
		block.Stmts = append(block.Stmts, l.lowerStmt(node.NamedChild(i))...)
	}
	return block
}

// lowerStmt reduces one statement node. Declarations expand to one statement
// per declarator, so the result is a slice.
func (l *lowerer) lowerStmt(node *sitter.Node) []*program.Stmt {
	if node == nil {
		return nil
	}
	switch node.Type() {
	case "compound_statement":
		return []*program.Stmt{l.lowerBlock(node)}

	case "if_statement":
		return []*program.Stmt{l.lowerIf(node)}

	case "while_statement":
		return []*program.Stmt{{
			Kind: program.StmtLoop,
			Loop: program.LoopWhile,
			Line: l.line(node),
			Cond: l.lowerCondition(node.ChildByFieldName("condition")),
			Body: l.stmtOrBlock(l.bodyOf(node)),
		}}

	case "do_statement":
		return []*program.Stmt{{
			Kind: program.StmtLoop,
			Loop: program.LoopDoWhile,
			Line: l.line(node),
			Cond: l.lowerCondition(node.ChildByFieldName("condition")),
			Body: l.stmtOrBlock(l.bodyOf(node)),
		}}

	case "for_statement":
		return l.lowerFor(node)

	case "switch_statement":
		return []*program.Stmt{l.lowerSwitch(node)}

	case "return_statement":
		ret := &program.Stmt{Kind: program.StmtReturn, Line: l.line(node)}
		if node.NamedChildCount() > 0 {
			ret.Value = l.lowerExpr(node.NamedChild(0))
		}
		return []*program.Stmt{ret}

	case "break_statement":
		return []*program.Stmt{{Kind: program.StmtBreak, Line: l.line(node)}}

	case "continue_statement":
		return []*program.Stmt{{Kind: program.StmtContinue, Line: l.line(node)}}

	case "expression_statement":
		if node.NamedChildCount() == 0 {
			return nil
		}
		return []*program.Stmt{{
			Kind: program.StmtExpr,
			Line: l.line(node),
			Expr: l.lowerExpr(node.NamedChild(0)),
		}}

	case "declaration":
		return l.lowerDecl(node)

	case "goto_statement", "labeled_statement":
		return []*program.Stmt{{
			Kind:      program.StmtUnsupported,
			Line:      l.line(node),
			Construct: node.Type(),
		}}

	case "comment", "preproc_call", "preproc_def", "preproc_if", "preproc_ifdef":
		return nil

	default:
		return nil
	}
}

func (l *lowerer) lowerIf(node *sitter.Node) *program.Stmt {
	s := &program.Stmt{
		Kind: program.StmtIf,
		Line: l.line(node),
		Cond: l.lowerCondition(node.ChildByFieldName("condition")),
		Then: l.stmtOrBlock(node.ChildByFieldName("consequence")),
	}
	if alt := node.ChildByFieldName("alternative"); alt != nil {
		// Newer grammars wrap the else branch in an else_clause node.
		if alt.Type() == "else_clause" {
			for i := 0; i < int(alt.NamedChildCount()); i++ {
				if child := alt.NamedChild(i); child != nil && child.Type() != "comment" {
					alt = child
					break
				}
			}
		}
		s.Else = l.stmtOrBlock(alt)
	}
	return s
}

func (l *lowerer) lowerFor(node *sitter.Node) []*program.Stmt {
	loop := &program.Stmt{
		Kind: program.StmtLoop,
		Loop: program.LoopFor,
		Line: l.line(node),
		Body: l.stmtOrBlock(l.bodyOf(node)),
	}
	if cond := node.ChildByFieldName("condition"); cond != nil {
		loop.Cond = l.lowerCondition(cond)
	}
	if update := node.ChildByFieldName("update"); update != nil {
		loop.Update = l.lowerExpr(update)
	}

	init := node.ChildByFieldName("initializer")
	if init == nil {
		return []*program.Stmt{loop}
	}

	// The init clause runs once before the guard, so it lowers as ordinary
	// statements ahead of the loop inside a wrapping block.
	wrap := &program.Stmt{Kind: program.StmtBlock, Line: l.line(node)}
	if init.Type() == "declaration" {
		wrap.Stmts = append(wrap.Stmts, l.lowerDecl(init)...)
	} else {
		wrap.Stmts = append(wrap.Stmts, &program.Stmt{
			Kind: program.StmtExpr,
			Line: l.line(init),
			Expr: l.lowerExpr(init),
		})
	}
	wrap.Stmts = append(wrap.Stmts, loop)
	return []*program.Stmt{wrap}
}

func (l *lowerer) lowerSwitch(node *sitter.Node) *program.Stmt {
	s := &program.Stmt{
		Kind: program.StmtSwitch,
		Line: l.line(node),
		Cond: l.lowerCondition(node.ChildByFieldName("condition")),
	}
	body := node.ChildByFieldName("body")
	if body == nil {
		return s
	}
	for i := 0; i < int(body.NamedChildCount()); i++ {
		child := body.NamedChild(i)
		if child == nil || child.Type() != "case_statement" {
			continue
		}
		s.Cases = append(s.Cases, l.lowerCase(child))
	}
	return s
}

func (l *lowerer) lowerCase(node *sitter.Node) program.SwitchCase {
	cs := program.SwitchCase{Line: l.line(node)}
	value := node.ChildByFieldName("value")
	if value == nil {
		cs.IsDefault = true
	} else {
		cs.Value = l.text(value)
	}
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		if child == nil || child == value || child.Type() == "comment" {
			continue
		}
		cs.Body = append(cs.Body, l.lowerStmt(child)...)
	}
	cs.Terminated = endsControl(cs.Body)
	return cs
}

// endsControl reports whether the statement list cannot run off its end:
// the arm either transfers out or breaks, so no fallthrough edge is needed.
func endsControl(stmts []*program.Stmt) bool {
	if len(stmts) == 0 {
		return false
	}
	switch last := stmts[len(stmts)-1]; last.Kind {
	case program.StmtBreak, program.StmtContinue, program.StmtReturn:
		return true
	case program.StmtBlock:
		return endsControl(last.Stmts)
	default:
		return false
	}
}

// bodyOf returns a loop's body statement, tolerating grammars without a body
// field by falling back to the last named child.
func (l *lowerer) bodyOf(node *sitter.Node) *sitter.Node {
	if body := node.ChildByFieldName("body"); body != nil {
		return body
	}
	n := int(node.NamedChildCount())
	if n == 0 {
		return nil
	}
	return node.NamedChild(n - 1)
}

// stmtOrBlock lowers a node that syntactically is one statement, wrapping
// multi-statement expansions (declarations) in a block so the result is
// always a single Stmt.
func (l *lowerer) stmtOrBlock(node *sitter.Node) *program.Stmt {
	stmts := l.lowerStmt(node)
	switch len(stmts) {
	case 0:
		return &program.Stmt{Kind: program.StmtBlock, Line: l.line(node)}
	case 1:
		return stmts[0]
	default:
		return &program.Stmt{Kind: program.StmtBlock, Line: l.line(node), Stmts: stmts}
	}
}

// lowerCondition unwraps the parentheses around control-flow guards.
func (l *lowerer) lowerCondition(node *sitter.Node) *program.Expr {
	if node == nil {
		return nil
	}
	if node.Type() == "parenthesized_expression" && node.NamedChildCount() > 0 {
		return l.lowerExpr(node.NamedChild(0))
	}
	return l.lowerExpr(node)
}

// lowerDecl expands a declaration into one StmtDecl per declarator.
func (l *lowerer) lowerDecl(node *sitter.Node) []*program.Stmt {
	typ := l.text(node.ChildByFieldName("type"))
	line := l.line(node)

	var out []*program.Stmt
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		if child == nil {
			continue
		}
		switch child.Type() {
		case "init_declarator":
			d := l.declFromDeclarator(child.ChildByFieldName("declarator"), typ, line)
			if d == nil {
				continue
			}
			d.Init = l.lowerExpr(child.ChildByFieldName("value"))
			out = append(out, d)
		case "identifier", "pointer_declarator", "array_declarator", "function_declarator", "parenthesized_declarator":
			if d := l.declFromDeclarator(child, typ, line); d != nil {
				out = append(out, d)
			}
		}
	}
	return out
}

// declFromDeclarator reads the name, array size, and function pointer shape
// out of one declarator. Plain function prototypes are not storage and lower
// to nothing.
func (l *lowerer) declFromDeclarator(node *sitter.Node, typ string, line int) *program.Stmt {
	if node == nil {
		return nil
	}
	d := &program.Stmt{Kind: program.StmtDecl, DeclType: typ, Line: line}

	cur := node
	for cur != nil {
		switch cur.Type() {
		case "identifier", "field_identifier":
			d.DeclName = l.text(cur)
			cur = nil
		case "pointer_declarator", "parenthesized_declarator":
			cur = declaratorChild(cur)
		case "array_declarator":
			if size := cur.ChildByFieldName("size"); size != nil {
				if v, err := strconv.ParseInt(l.text(size), 0, 64); err == nil {
					d.ArraySize = v
				}
			}
			cur = cur.ChildByFieldName("declarator")
		case "function_declarator":
			inner := cur.ChildByFieldName("declarator")
			if inner == nil || inner.Type() == "identifier" {
				// a prototype, not function pointer storage
				return nil
			}
			d.IsFuncPtr = true
			cur = inner
		default:
			cur = nil
		}
	}
	if d.DeclName == "" {
		return nil
	}
	if l.fnPtrTypes[strings.TrimSuffix(typ, " ")] || l.fnPtrTypes[typ] {
		d.IsFuncPtr = true
	}
	return d
}

// declaratorChild returns the declarator nested inside a pointer or
// parenthesized declarator.
func declaratorChild(node *sitter.Node) *sitter.Node {
	if inner := node.ChildByFieldName("declarator"); inner != nil {
		return inner
	}
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		if child != nil && child.Type() != "comment" {
			return child
		}
	}
	return nil
}

// lowerGlobals reduces a file-scope declaration to global decls. Prototypes
// contribute nothing.
func (l *lowerer) lowerGlobals(node *sitter.Node) []program.GlobalDecl {
	var out []program.GlobalDecl
	for _, d := range l.lowerDecl(node) {
		out = append(out, program.GlobalDecl{
			Name:      d.DeclName,
			Type:      d.DeclType,
			ArraySize: d.ArraySize,
			IsFuncPtr: d.IsFuncPtr,
			File:      l.path,
			Line:      d.Line,
		})
	}
	return out
}
