package ast

// Loc is the source location of a node. Line and Column are one-based; Start,
// End and Divot are byte offsets into the source text. Divot is the offset an
// error message should point at (the operator of a binary expression, the dot
// of a property access).
type Loc struct {
	Line    int
	Column  int
	EndLine int
	Start   int
	End     int
	Divot   int
}

// LastLine returns the last line covered by the location.
func (l Loc) LastLine() int {
	if l.EndLine < l.Line {
		return l.Line
	}
	return l.EndLine
}

// Node is any AST node.
type Node interface {
	Location() Loc
}

// Expr is an expression node.
type Expr interface {
	Node
	exprNode()
}

// Stmt is a statement node.
type Stmt interface {
	Node
	stmtNode()
}

type ExprBase struct {
	Loc Loc
}

func (b *ExprBase) Location() Loc { return b.Loc }
func (b *ExprBase) exprNode()     {}

type StmtBase struct {
	Loc Loc
}

func (b *StmtBase) Location() Loc { return b.Loc }
func (b *StmtBase) stmtNode()     {}

/* expressions {{{ */

type NullLiteral struct {
	ExprBase
}

type BooleanLiteral struct {
	ExprBase
	Value bool
}

type NumberLiteral struct {
	ExprBase
	Value float64
}

type StringLiteral struct {
	ExprBase
	Value string
}

type RegExpLiteral struct {
	ExprBase
	Pattern string
	Flags   string
}

type ThisExpr struct {
	ExprBase
}

type Identifier struct {
	ExprBase
	Name string
}

// ArrayLiteral elements may be nil for elisions.
type ArrayLiteral struct {
	ExprBase
	Elements []Expr
}

type PropertyKind int

const (
	PropertyValue PropertyKind = iota
	PropertyGetter
	PropertySetter
)

// Property is one entry of an object literal. For getters and setters Value
// is a *FunctionExpr.
type Property struct {
	Kind  PropertyKind
	Key   string
	Value Expr
	Loc   Loc
}

type ObjectLiteral struct {
	ExprBase
	Properties []Property
}

type BracketExpr struct {
	ExprBase
	Object    Expr
	Subscript Expr
}

type DotExpr struct {
	ExprBase
	Object Expr
	Name   string
}

type NewExpr struct {
	ExprBase
	Callee Expr
	Args   []Expr
}

type CallExpr struct {
	ExprBase
	Callee Expr
	Args   []Expr
}

// PostfixExpr is x++ or x--.
type PostfixExpr struct {
	ExprBase
	Op     string
	Target Expr
}

// PrefixExpr is ++x or --x.
type PrefixExpr struct {
	ExprBase
	Op     string
	Target Expr
}

// UnaryExpr covers - + ! ~ typeof void delete.
type UnaryExpr struct {
	ExprBase
	Op      string
	Operand Expr
}

type BinaryExpr struct {
	ExprBase
	Op    string
	Left  Expr
	Right Expr
}

// LogicalExpr is && or ||.
type LogicalExpr struct {
	ExprBase
	Op    string
	Left  Expr
	Right Expr
}

type ConditionalExpr struct {
	ExprBase
	Test       Expr
	Consequent Expr
	Alternate  Expr
}

// AssignExpr is = or a compound assignment such as +=.
type AssignExpr struct {
	ExprBase
	Op     string
	Target Expr
	Value  Expr
}

type CommaExpr struct {
	ExprBase
	List []Expr
}

type FunctionExpr struct {
	ExprBase
	Func *FunctionLiteral
}

/* }}} */

/* statements {{{ */

type BlockStmt struct {
	StmtBase
	List []Stmt
}

type EmptyStmt struct {
	StmtBase
}

type DebuggerStmt struct {
	StmtBase
}

type ExprStmt struct {
	StmtBase
	Expr Expr
}

type VarDeclarator struct {
	Name string
	Init Expr
	Loc  Loc
}

type VarStmt struct {
	StmtBase
	List []VarDeclarator
}

type ConstStmt struct {
	StmtBase
	List []VarDeclarator
}

type IfStmt struct {
	StmtBase
	Test Expr
	Then Stmt
	Else Stmt
}

type DoWhileStmt struct {
	StmtBase
	Body Stmt
	Test Expr
}

type WhileStmt struct {
	StmtBase
	Test Expr
	Body Stmt
}

// ForStmt Init is nil, an *ExprStmt or a *VarStmt.
type ForStmt struct {
	StmtBase
	Init   Stmt
	Test   Expr
	Update Expr
	Body   Stmt
}

// ForInStmt with Declare set is `for (var x [= Init] in Object)`.
type ForInStmt struct {
	StmtBase
	Declare bool
	Target  Expr
	Init    Expr
	Object  Expr
	Body    Stmt
}

type ContinueStmt struct {
	StmtBase
	Label string
}

type BreakStmt struct {
	StmtBase
	Label string
}

type ReturnStmt struct {
	StmtBase
	Value Expr
}

type WithStmt struct {
	StmtBase
	Object Expr
	Body   Stmt
}

// CaseClause with a nil Test is the default clause.
type CaseClause struct {
	Test Expr
	Body []Stmt
	Loc  Loc
}

type SwitchStmt struct {
	StmtBase
	Discriminant Expr
	Cases        []CaseClause
}

type LabeledStmt struct {
	StmtBase
	Label string
	Body  Stmt
}

type ThrowStmt struct {
	StmtBase
	Value Expr
}

// TryStmt has at least one of Catch and Finally.
type TryStmt struct {
	StmtBase
	Block   *BlockStmt
	Param   string
	Catch   *BlockStmt
	Finally *BlockStmt
}

type FunctionDecl struct {
	StmtBase
	Func *FunctionLiteral
}

/* }}} */

/* functions {{{ */

type Features uint8

const (
	UsesEval Features = 1 << iota
	UsesArguments
	UsesThis
	ContainsWith
	ContainsCatch
)

func (f Features) Has(flag Features) bool { return f&flag != 0 }

type VarDecl struct {
	Name  string
	Const bool
}

// FunctionBody carries the statements of a program or function together with
// the declaration lists and feature flags a parser records while parsing.
// Annotate computes them for trees built by hand.
type FunctionBody struct {
	Params     []string
	Statements []Stmt
	Vars       []VarDecl
	Functions  []*FunctionLiteral
	Captured   []string
	Features   Features
	Strict     bool
	Loc        Loc
}

type FunctionLiteral struct {
	Name         string
	Body         *FunctionBody
	IsExpression bool
	Loc          Loc
}

type Program struct {
	SourceName string
	Body       *FunctionBody
}

/* }}} */
