package bytecomp

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/tos-network/bytecomp/js/ast"
	"github.com/tos-network/bytecomp/js/diag"
)

// nestedProgram is
//
//	function f() { return function g() { return 1; }; }
//	var h = function () { return 2; };
func nestedProgram() *ast.Program {
	g := function("g", nil, ret(num(1)))
	g.IsExpression = true
	anon := function("", nil, ret(num(2)))
	anon.IsExpression = true
	return program(
		&ast.FunctionDecl{Func: function("f", nil, ret(&ast.FunctionExpr{Func: g}))},
		varStmt("h", &ast.FunctionExpr{Func: anon}),
	)
}

func TestCompileNestedUnits(t *testing.T) {
	u, err := Compile(context.Background(), nestedProgram(), testOptions(t))
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if err := u.Verify(); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if got := u.Count(); got != 4 {
		t.Fatalf("unit count: got=%d want=4", got)
	}
	if got := len(u.Code.FunctionDecls); got != 1 {
		t.Fatalf("function decls: got=%d want=1", got)
	}
	if got := len(u.Code.FunctionExprs); got != 1 {
		t.Fatalf("function exprs: got=%d want=1", got)
	}
	ref := u.Code.FunctionDecls[0]
	f := u.Functions[ref.Nested]
	if ref.Name != "f" || f.Code.Name != "f" {
		t.Fatalf("declared function: got=%q/%q want=f", ref.Name, f.Code.Name)
	}
	if f.Code.Kind != KindFunction {
		t.Fatalf("nested kind: got=%s want=%s", f.Code.Kind, KindFunction)
	}
	if got := len(f.Functions); got != 1 || f.Functions[0].Code.Name != "g" {
		t.Fatalf("functions of f: got=%d want=[g]", got)
	}
	if got := countOpcode(u.Code, OpNewFunc); got != 1 {
		t.Fatalf("new_func count: got=%d want=1\n%s", got, u.Code)
	}
	if got := countOpcode(u.Code, OpNewFuncExp); got != 1 {
		t.Fatalf("new_func_exp count: got=%d want=1\n%s", got, u.Code)
	}
}

func TestCompileSequentialMatchesParallel(t *testing.T) {
	seq := testOptions(t)
	seq.Parallelism = 1
	par := testOptions(t)
	par.Parallelism = 0

	a, err := Compile(context.Background(), nestedProgram(), seq)
	if err != nil {
		t.Fatalf("compile sequential: %v", err)
	}
	b, err := Compile(context.Background(), nestedProgram(), par)
	if err != nil {
		t.Fatalf("compile parallel: %v", err)
	}
	fa, err := Fingerprint(a)
	if err != nil {
		t.Fatalf("fingerprint: %v", err)
	}
	fb, err := Fingerprint(b)
	if err != nil {
		t.Fatalf("fingerprint: %v", err)
	}
	if fa != fb {
		t.Fatalf("fingerprints differ: got=%s want=%s", fb, fa)
	}
}

func TestNestedFunctionsInheritStrictness(t *testing.T) {
	prog := nestedProgram()
	prog.Body.Strict = true
	u, err := Compile(context.Background(), prog, testOptions(t))
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	u.Walk(func(unit *Unit) error {
		if !unit.Code.Strict {
			t.Fatalf("unit %q: strict got=false want=true", unit.Code.Name)
		}
		return nil
	})
}

func TestLazyFunctions(t *testing.T) {
	opts := testOptions(t)
	opts.LazyFunctions = true
	u, err := Compile(context.Background(), nestedProgram(), opts)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if got := len(u.Functions); got != 2 {
		t.Fatalf("nested units: got=%d want=2", got)
	}
	for i, child := range u.Functions {
		if !child.IsPending() {
			t.Fatalf("unit %d: pending got=false want=true", i)
		}
	}
	if _, err := EncodeUnit(u); err == nil || !strings.Contains(err.Error(), "pending function f") {
		t.Fatalf("encode pending: got=%v want=pending function error", err)
	}

	f := u.Functions[u.Code.FunctionDecls[0].Nested]
	if err := f.Materialize(context.Background(), opts); err != nil {
		t.Fatalf("materialize: %v", err)
	}
	if f.IsPending() || f.Code == nil {
		t.Fatalf("materialized unit still pending")
	}
	if got := len(f.Functions); got != 1 || !f.Functions[0].IsPending() {
		t.Fatalf("functions of f after materialize: got=%d want=1 pending", got)
	}

	if err := u.MaterializeAll(context.Background(), opts); err != nil {
		t.Fatalf("materialize all: %v", err)
	}
	if got := u.Count(); got != 4 {
		t.Fatalf("unit count: got=%d want=4", got)
	}
	u.Walk(func(unit *Unit) error {
		if unit.IsPending() {
			t.Fatalf("unit still pending after materialize all")
		}
		return nil
	})
	if err := u.Verify(); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if _, err := EncodeUnit(u); err != nil {
		t.Fatalf("encode: %v", err)
	}
}

func TestCompileCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Compile(ctx, nestedProgram(), testOptions(t))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error: got=%v want=%v", err, context.Canceled)
	}
}

func TestCompileRejectsFunctionKind(t *testing.T) {
	opts := testOptions(t)
	opts.Kind = KindFunction
	_, err := Compile(context.Background(), nestedProgram(), opts)
	var cerr *CompileError
	if !errors.As(err, &cerr) {
		t.Fatalf("error: got=%v want=*CompileError", err)
	}
	if cerr.Code() != diag.CodeConfigInvalidKind {
		t.Fatalf("code: got=%s want=%s", cerr.Code(), diag.CodeConfigInvalidKind)
	}
}

func TestCompileInvalidOptions(t *testing.T) {
	opts := testOptions(t)
	opts.MaxExpressionDepth = 0
	_, err := Compile(context.Background(), nestedProgram(), opts)
	var d diag.Diagnostic
	if !errors.As(err, &d) || d.Code != diag.CodeConfigInvalidDepth {
		t.Fatalf("error: got=%v want=%s", err, diag.CodeConfigInvalidDepth)
	}
}

func TestCompileNilProgram(t *testing.T) {
	_, err := Compile(context.Background(), nil, testOptions(t))
	var cerr *CompileError
	if !errors.As(err, &cerr) || cerr.Code() != diag.CodeEmitInvalidBody {
		t.Fatalf("error: got=%v want=%s", err, diag.CodeEmitInvalidBody)
	}
}

func TestCompileEval(t *testing.T) {
	opts := testOptions(t)
	opts.Kind = KindEval
	u, err := Compile(context.Background(), nestedProgram(), opts)
	if err != nil {
		t.Fatalf("compile eval: %v", err)
	}
	if u.Code.Kind != KindEval {
		t.Fatalf("kind: got=%s want=%s", u.Code.Kind, KindEval)
	}
	if got := u.Code.EvalVars; len(got) != 1 || got[0] != "h" {
		t.Fatalf("eval vars: got=%v want=[h]", got)
	}
	if got := len(u.Code.EvalFunctions); got != 1 {
		t.Fatalf("eval functions: got=%d want=1", got)
	}
	if err := u.Verify(); err != nil {
		t.Fatalf("verify: %v", err)
	}
}

func TestCompileProgramRecordsVars(t *testing.T) {
	u := compileProgram(t,
		varStmt("x", num(1)),
		&ast.ConstStmt{List: []ast.VarDeclarator{{Name: "c", Init: num(2)}}},
	)
	want := []VarDeclaration{{Name: "x"}, {Name: "c", Const: true}}
	if len(u.Code.ProgramVars) != len(want) {
		t.Fatalf("program vars: got=%v want=%v", u.Code.ProgramVars, want)
	}
	for i := range want {
		if u.Code.ProgramVars[i] != want[i] {
			t.Fatalf("program var %d: got=%v want=%v", i, u.Code.ProgramVars[i], want[i])
		}
	}
}
