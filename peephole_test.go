package bytecomp

import (
	"testing"

	"github.com/tos-network/bytecomp/js/ast"
)

func TestIfLessFusesIntoJNLess(t *testing.T) {
	// function f(a, b) { if (a < b) return 1; return 2; }
	cb := compileFunctionBody(t, []string{"a", "b"},
		&ast.IfStmt{Test: binop("<", ident("a"), ident("b")), Then: ret(num(1))},
		ret(num(2)),
	)
	if got := countOpcode(cb, OpJNLess); got != 1 {
		t.Fatalf("jnless count: got=%d want=1\n%s", got, cb)
	}
	if got := countOpcode(cb, OpLess); got != 0 {
		t.Fatalf("less count: got=%d want=0\n%s", got, cb)
	}
}

func TestWhileLessFusesBothJumps(t *testing.T) {
	// function f(a, b) { while (a < b) a++; }
	cb := compileFunctionBody(t, []string{"a", "b"},
		&ast.WhileStmt{
			Test: binop("<", ident("a"), ident("b")),
			Body: exprStmt(&ast.PostfixExpr{Op: "++", Target: ident("a")}),
		},
	)
	if got := countOpcode(cb, OpJNLess); got != 1 {
		t.Fatalf("jnless count: got=%d want=1\n%s", got, cb)
	}
	if got := countOpcode(cb, OpJLess); got != 1 {
		t.Fatalf("jless count: got=%d want=1\n%s", got, cb)
	}
	if got := countOpcode(cb, OpLess); got != 0 {
		t.Fatalf("less count: got=%d want=0\n%s", got, cb)
	}
}

func TestNegatedCompareFlipsBranch(t *testing.T) {
	// function f(a, b) { if (!(a < b)) return 1; }
	cb := compileFunctionBody(t, []string{"a", "b"},
		&ast.IfStmt{
			Test: &ast.UnaryExpr{Op: "!", Operand: binop("<", ident("a"), ident("b"))},
			Then: ret(num(1)),
		},
	)
	if got := countOpcode(cb, OpJLess); got != 1 {
		t.Fatalf("jless count: got=%d want=1\n%s", got, cb)
	}
	if got := countOpcode(cb, OpNot); got != 0 {
		t.Fatalf("not count: got=%d want=0\n%s", got, cb)
	}
}

func TestLabelBlocksFusion(t *testing.T) {
	emit := func(withLabel bool) []OpcodeID {
		fn := function("f", nil)
		ast.Annotate(fn.Body)
		g := newFunctionGenerator(fn, GlobalScopeChain(), testOptions(t))
		a := g.newTemporary().retain()
		b := g.newTemporary().retain()
		mark := len(g.code.words)

		cond := g.newTemporary()
		g.emitBinaryOp(OpLess, cond, a, b, 0)
		if withLabel {
			g.emitLabel(g.newLabel())
		}
		target := g.newLabel()
		g.emitJumpIfFalse(cond, target)
		g.emitLabel(target)
		return opcodesOf(g.code.words[mark:])
	}

	fused := emit(false)
	if !containsOpcode(fused, OpJNLess) || containsOpcode(fused, OpLess) {
		t.Fatalf("without label: got=%v want=[jnless]", fused)
	}
	blocked := emit(true)
	if !containsOpcode(blocked, OpLess) || !containsOpcode(blocked, OpJFalse) {
		t.Fatalf("with label: got=%v want=[less jfalse]", blocked)
	}
}

func TestRetainedConditionIsNotFused(t *testing.T) {
	fn := function("f", nil)
	ast.Annotate(fn.Body)
	g := newFunctionGenerator(fn, GlobalScopeChain(), testOptions(t))
	a := g.newTemporary().retain()
	b := g.newTemporary().retain()
	mark := len(g.code.words)

	cond := g.newTemporary().retain()
	g.emitBinaryOp(OpLess, cond, a, b, 0)
	target := g.newLabel()
	g.emitJumpIfFalse(cond, target)
	g.emitLabel(target)

	ops := opcodesOf(g.code.words[mark:])
	if !containsOpcode(ops, OpLess) || !containsOpcode(ops, OpJFalse) {
		t.Fatalf("live condition: got=%v want=[less jfalse]", ops)
	}
}

func TestTypeofUndefinedBecomesIsUndefined(t *testing.T) {
	// function f(x) { return typeof x == "undefined"; }
	cb := compileFunctionBody(t, []string{"x"},
		ret(binop("==", &ast.UnaryExpr{Op: "typeof", Operand: ident("x")}, str("undefined"))),
	)
	if got := countOpcode(cb, OpIsUndefined); got != 1 {
		t.Fatalf("is_undefined count: got=%d want=1\n%s", got, cb)
	}
	if got := countOpcode(cb, OpTypeof); got != 0 {
		t.Fatalf("typeof count: got=%d want=0\n%s", got, cb)
	}
}

func TestTypeofNotEqualNegatesTest(t *testing.T) {
	// function f(x) { return typeof x != "string"; }
	cb := compileFunctionBody(t, []string{"x"},
		ret(binop("!=", &ast.UnaryExpr{Op: "typeof", Operand: ident("x")}, str("string"))),
	)
	if got := countOpcode(cb, OpIsString); got != 1 {
		t.Fatalf("is_string count: got=%d want=1\n%s", got, cb)
	}
	if got := countOpcode(cb, OpNot); got != 1 {
		t.Fatalf("not count: got=%d want=1\n%s", got, cb)
	}
}

func TestEqualNullBecomesEqNull(t *testing.T) {
	// function f(x) { return x == null; }
	cb := compileFunctionBody(t, []string{"x"},
		ret(binop("==", ident("x"), &ast.NullLiteral{})),
	)
	if got := countOpcode(cb, OpEqNull); got != 1 {
		t.Fatalf("eq_null count: got=%d want=1\n%s", got, cb)
	}
	if got := countOpcode(cb, OpEq); got != 0 {
		t.Fatalf("eq count: got=%d want=0\n%s", got, cb)
	}
}
