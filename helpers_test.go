package bytecomp

import (
	"context"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/tos-network/bytecomp/js/ast"
)

func testOptions(t *testing.T) Options {
	t.Helper()
	opts := DefaultOptions()
	opts.Logger = zaptest.NewLogger(t)
	return opts
}

func ident(name string) *ast.Identifier { return &ast.Identifier{Name: name} }
func num(v float64) *ast.NumberLiteral { return &ast.NumberLiteral{Value: v} }
func str(s string) *ast.StringLiteral { return &ast.StringLiteral{Value: s} }
func exprStmt(e ast.Expr) *ast.ExprStmt { return &ast.ExprStmt{Expr: e} }
func ret(e ast.Expr) *ast.ReturnStmt { return &ast.ReturnStmt{Value: e} }
func block(list ...ast.Stmt) *ast.BlockStmt { return &ast.BlockStmt{List: list} }
func binop(op string, l, r ast.Expr) ast.Expr { return &ast.BinaryExpr{Op: op, Left: l, Right: r} }

func call(name string, args ...ast.Expr) *ast.CallExpr {
	return &ast.CallExpr{Callee: ident(name), Args: args}
}

func assign(target ast.Expr, value ast.Expr) *ast.ExprStmt {
	return exprStmt(&ast.AssignExpr{Op: "=", Target: target, Value: value})
}

func varStmt(name string, init ast.Expr) *ast.VarStmt {
	return &ast.VarStmt{List: []ast.VarDeclarator{{Name: name, Init: init}}}
}

func function(name string, params []string, stmts ...ast.Stmt) *ast.FunctionLiteral {
	return &ast.FunctionLiteral{Name: name, Body: &ast.FunctionBody{Params: params, Statements: stmts}}
}

func program(stmts ...ast.Stmt) *ast.Program {
	prog := &ast.Program{SourceName: "test.js", Body: &ast.FunctionBody{Statements: stmts}}
	ast.Annotate(prog.Body)
	return prog
}

func compileProgramWith(t *testing.T, opts Options, stmts ...ast.Stmt) *Unit {
	t.Helper()
	u, err := Compile(context.Background(), program(stmts...), opts)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if err := u.Verify(); err != nil {
		t.Fatalf("verify: %v\n%s", err, u.Code)
	}
	return u
}

func compileProgram(t *testing.T, stmts ...ast.Stmt) *Unit {
	t.Helper()
	return compileProgramWith(t, testOptions(t), stmts...)
}

func compileFunctionWith(t *testing.T, opts Options, params []string, stmts ...ast.Stmt) *UnlinkedCodeBlock {
	t.Helper()
	fn := function("f", params, stmts...)
	ast.Annotate(fn.Body)
	u, err := CompileFunction(context.Background(), fn, nil, opts)
	if err != nil {
		t.Fatalf("compile function: %v", err)
	}
	if err := u.Verify(); err != nil {
		t.Fatalf("verify: %v\n%s", err, u.Code)
	}
	return u.Code
}

func compileFunctionBody(t *testing.T, params []string, stmts ...ast.Stmt) *UnlinkedCodeBlock {
	t.Helper()
	return compileFunctionWith(t, testOptions(t), params, stmts...)
}

func countOpcode(cb *UnlinkedCodeBlock, op OpcodeID) int {
	n := 0
	for _, in := range cb.DecodeInstructions() {
		if in.Op == op {
			n++
		}
	}
	return n
}

func findInstruction(cb *UnlinkedCodeBlock, op OpcodeID) (Instruction, bool) {
	for _, in := range cb.DecodeInstructions() {
		if in.Op == op {
			return in, true
		}
	}
	return Instruction{}, false
}

func opcodesOf(words []int32) []OpcodeID {
	cb := &UnlinkedCodeBlock{Instructions: words}
	var ops []OpcodeID
	for _, in := range cb.DecodeInstructions() {
		ops = append(ops, in.Op)
	}
	return ops
}

func containsOpcode(ops []OpcodeID, op OpcodeID) bool {
	for _, o := range ops {
		if o == op {
			return true
		}
	}
	return false
}
