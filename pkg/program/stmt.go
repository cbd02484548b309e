package program

// StmtKind discriminates the statement variant.
type StmtKind string

const (
	StmtBlock       StmtKind = "block"
	StmtIf          StmtKind = "if"
	StmtSwitch      StmtKind = "switch"
	StmtLoop        StmtKind = "loop"
	StmtBreak       StmtKind = "break"
	StmtContinue    StmtKind = "continue"
	StmtReturn      StmtKind = "return"
	StmtExpr        StmtKind = "expr"
	StmtDecl        StmtKind = "decl"
	StmtUnsupported StmtKind = "unsupported"
)

// LoopKind distinguishes the three C loop forms. Only do-while changes CFG
// shape (body before the guard).
type LoopKind string

const (
	LoopFor     LoopKind = "for"
	LoopWhile   LoopKind = "while"
	LoopDoWhile LoopKind = "do_while"
)

// SwitchCase is one labeled arm of a switch. Terminated is the explicit
// fallthrough marker: false means control runs off the end of the arm into
// the next one, and the CFG must model that edge rather than eliding it.
type SwitchCase struct {
	Value      string // label expression text; empty for default
	IsDefault  bool
	Body       []*Stmt
	Terminated bool
	Line       int
}

// Stmt is the tagged statement variant. Exactly the fields implied by Kind
// are set; the rest stay zero.
type Stmt struct {
	Kind StmtKind
	Line int

	// StmtBlock
	Stmts []*Stmt

	// StmtIf
	Cond *Expr
	Then *Stmt
	Else *Stmt // nil for a bare if

	// StmtSwitch (Cond doubles as the dispatch expression)
	Cases []SwitchCase

	// StmtLoop (Cond doubles as the guard; nil means an unconditional loop)
	Loop   LoopKind
	Body   *Stmt
	Update *Expr // for-loop update expression, nil otherwise

	// StmtReturn
	Value *Expr // nil for a bare return

	// StmtExpr
	Expr *Expr

	// StmtDecl
	DeclName  string
	DeclType  string
	ArraySize int64 // declared element count (e.g. char buf[64] -> 64)
	IsFuncPtr bool
	Init      *Expr // nil when uninitialized

	// StmtUnsupported
	Construct string // the source construct, e.g. "goto_statement"
}
