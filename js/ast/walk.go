package ast

// A Visitor's Visit method is invoked for each node encountered by Walk.
// If the result visitor w is not nil, Walk visits each of the children of
// node with the visitor w, followed by a call of w.Visit(nil).
type Visitor interface {
	Visit(node Node) (w Visitor)
}

func walkExprList(v Visitor, list []Expr) {
	for _, x := range list {
		if x != nil {
			Walk(v, x)
		}
	}
}

func walkStmtList(v Visitor, list []Stmt) {
	for _, x := range list {
		if x != nil {
			Walk(v, x)
		}
	}
}

// Walk traverses an AST in depth-first order. Function literals are entered;
// visitors that only care about one function body stop at *FunctionExpr and
// *FunctionDecl.
func Walk(v Visitor, node Node) {
	if v = v.Visit(node); v == nil {
		return
	}

	switch n := node.(type) {
	case *NullLiteral, *BooleanLiteral, *NumberLiteral, *StringLiteral,
		*RegExpLiteral, *ThisExpr, *Identifier:
		// leaves

	case *ArrayLiteral:
		walkExprList(v, n.Elements)
	case *ObjectLiteral:
		for _, p := range n.Properties {
			if p.Value != nil {
				Walk(v, p.Value)
			}
		}
	case *BracketExpr:
		Walk(v, n.Object)
		Walk(v, n.Subscript)
	case *DotExpr:
		Walk(v, n.Object)
	case *NewExpr:
		Walk(v, n.Callee)
		walkExprList(v, n.Args)
	case *CallExpr:
		Walk(v, n.Callee)
		walkExprList(v, n.Args)
	case *PostfixExpr:
		Walk(v, n.Target)
	case *PrefixExpr:
		Walk(v, n.Target)
	case *UnaryExpr:
		Walk(v, n.Operand)
	case *BinaryExpr:
		Walk(v, n.Left)
		Walk(v, n.Right)
	case *LogicalExpr:
		Walk(v, n.Left)
		Walk(v, n.Right)
	case *ConditionalExpr:
		Walk(v, n.Test)
		Walk(v, n.Consequent)
		Walk(v, n.Alternate)
	case *AssignExpr:
		Walk(v, n.Target)
		Walk(v, n.Value)
	case *CommaExpr:
		walkExprList(v, n.List)
	case *FunctionExpr:
		if n.Func != nil && n.Func.Body != nil {
			walkStmtList(v, n.Func.Body.Statements)
		}

	case *BlockStmt:
		walkStmtList(v, n.List)
	case *EmptyStmt, *DebuggerStmt, *ContinueStmt, *BreakStmt:
		// leaves
	case *ExprStmt:
		Walk(v, n.Expr)
	case *VarStmt:
		for _, d := range n.List {
			if d.Init != nil {
				Walk(v, d.Init)
			}
		}
	case *ConstStmt:
		for _, d := range n.List {
			if d.Init != nil {
				Walk(v, d.Init)
			}
		}
	case *IfStmt:
		Walk(v, n.Test)
		Walk(v, n.Then)
		if n.Else != nil {
			Walk(v, n.Else)
		}
	case *DoWhileStmt:
		Walk(v, n.Body)
		Walk(v, n.Test)
	case *WhileStmt:
		Walk(v, n.Test)
		Walk(v, n.Body)
	case *ForStmt:
		if n.Init != nil {
			Walk(v, n.Init)
		}
		if n.Test != nil {
			Walk(v, n.Test)
		}
		if n.Update != nil {
			Walk(v, n.Update)
		}
		Walk(v, n.Body)
	case *ForInStmt:
		Walk(v, n.Target)
		if n.Init != nil {
			Walk(v, n.Init)
		}
		Walk(v, n.Object)
		Walk(v, n.Body)
	case *ReturnStmt:
		if n.Value != nil {
			Walk(v, n.Value)
		}
	case *WithStmt:
		Walk(v, n.Object)
		Walk(v, n.Body)
	case *SwitchStmt:
		Walk(v, n.Discriminant)
		for _, c := range n.Cases {
			if c.Test != nil {
				Walk(v, c.Test)
			}
			walkStmtList(v, c.Body)
		}
	case *LabeledStmt:
		Walk(v, n.Body)
	case *ThrowStmt:
		Walk(v, n.Value)
	case *TryStmt:
		Walk(v, n.Block)
		if n.Catch != nil {
			Walk(v, n.Catch)
		}
		if n.Finally != nil {
			Walk(v, n.Finally)
		}
	case *FunctionDecl:
		if n.Func != nil && n.Func.Body != nil {
			walkStmtList(v, n.Func.Body.Statements)
		}
	}

	v.Visit(nil)
}

type inspector func(Node) bool

func (f inspector) Visit(node Node) Visitor {
	if f(node) {
		return f
	}
	return nil
}

// Inspect traverses an AST in depth-first order: It starts by calling
// f(node); node must not be nil. If f returns true, Inspect invokes f
// recursively for each of the non-nil children of node, followed by a
// call of f(nil).
func Inspect(node Node, f func(Node) bool) {
	Walk(inspector(f), node)
}
