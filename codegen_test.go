package bytecomp

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/tos-network/bytecomp/js/ast"
	"github.com/tos-network/bytecomp/js/diag"
)

func switchOn(tests ...ast.Expr) *ast.SwitchStmt {
	s := &ast.SwitchStmt{Discriminant: ident("x")}
	for i, test := range tests {
		s.Cases = append(s.Cases, ast.CaseClause{Test: test, Body: []ast.Stmt{ret(num(float64(i)))}})
	}
	s.Cases = append(s.Cases, ast.CaseClause{Body: []ast.Stmt{ret(num(-1))}})
	return s
}

func TestSwitchDenseIntegersUseImmediateTable(t *testing.T) {
	cb := compileFunctionBody(t, []string{"x"}, switchOn(num(1), num(2), num(3)))
	if got := countOpcode(cb, OpSwitchImm); got != 1 {
		t.Fatalf("switch_imm count: got=%d want=1\n%s", got, cb)
	}
	if len(cb.ImmediateSwitchTables) != 1 {
		t.Fatalf("immediate tables: got=%d want=1", len(cb.ImmediateSwitchTables))
	}
	table := cb.ImmediateSwitchTables[0]
	if table.Min != 1 || len(table.Offsets) != 3 {
		t.Fatalf("table: got=min %d len %d want=min 1 len 3", table.Min, len(table.Offsets))
	}
	for i, off := range table.Offsets {
		if off == 0 {
			t.Fatalf("table slot %d: got=0 want=bound offset", i)
		}
	}
	if got := countOpcode(cb, OpStrictEq); got != 0 {
		t.Fatalf("stricteq count: got=%d want=0", got)
	}
}

func TestSwitchSparseIntegersUseCompareChain(t *testing.T) {
	cb := compileFunctionBody(t, []string{"x"}, switchOn(num(1), num(100000), num(7)))
	for _, op := range []OpcodeID{OpSwitchImm, OpSwitchChar, OpSwitchString} {
		if got := countOpcode(cb, op); got != 0 {
			t.Fatalf("%s count: got=%d want=0\n%s", op, got, cb)
		}
	}
	if got := countOpcode(cb, OpStrictEq); got != 3 {
		t.Fatalf("stricteq count: got=%d want=3\n%s", got, cb)
	}
}

func TestSwitchSingleCharactersUseCharacterTable(t *testing.T) {
	cb := compileFunctionBody(t, []string{"x"}, switchOn(str("a"), str("c"), str("b")))
	if got := countOpcode(cb, OpSwitchChar); got != 1 {
		t.Fatalf("switch_char count: got=%d want=1\n%s", got, cb)
	}
	table := cb.CharacterSwitchTables[0]
	if table.Min != 'a' || len(table.Offsets) != 3 {
		t.Fatalf("table: got=min %d len %d want=min %d len 3", table.Min, len(table.Offsets), 'a')
	}
}

func TestSwitchStringsUseStringTable(t *testing.T) {
	cb := compileFunctionBody(t, []string{"x"}, switchOn(str("foo"), str("bar"), str("baz"), str("foo")))
	if got := countOpcode(cb, OpSwitchString); got != 1 {
		t.Fatalf("switch_string count: got=%d want=1\n%s", got, cb)
	}
	if got := len(cb.StringSwitchTables[0].Offsets); got != 3 {
		t.Fatalf("string table keys: got=%d want=3", got)
	}
}

func TestSwitchWithTooFewCasesUsesCompareChain(t *testing.T) {
	cb := compileFunctionBody(t, []string{"x"}, switchOn(num(1), num(2)))
	if got := countOpcode(cb, OpSwitchImm); got != 0 {
		t.Fatalf("switch_imm count: got=%d want=0", got)
	}
	if got := countOpcode(cb, OpStrictEq); got != 2 {
		t.Fatalf("stricteq count: got=%d want=2", got)
	}
}

func TestReturnInsideFinallyRunsFinallyInline(t *testing.T) {
	// function f() { try { return g(); } finally { h(); } }
	cb := compileFunctionBody(t, nil, &ast.TryStmt{
		Block:   block(ret(call("g"))),
		Finally: block(exprStmt(call("h"))),
	})
	// g once, h on the return path, the normal path and the throw path.
	if got := countOpcode(cb, OpCall); got != 4 {
		t.Fatalf("call count: got=%d want=4\n%s", got, cb)
	}
	if len(cb.ExceptionHandlers) == 0 {
		t.Fatalf("handlers: got=0 want>0")
	}
	catch, ok := findInstruction(cb, OpCatch)
	if !ok {
		t.Fatalf("no catch instruction\n%s", cb)
	}
	for i, h := range cb.ExceptionHandlers {
		if h.Target != catch.Offset {
			t.Fatalf("handler %d target: got=%d want=%d", i, h.Target, catch.Offset)
		}
		if h.ScopeDepth != 0 {
			t.Fatalf("handler %d depth: got=%d want=0", i, h.ScopeDepth)
		}
	}
}

func TestNestedTryHandlers(t *testing.T) {
	// function f() { try { try { g(); } finally { h(); } } catch (e) { k(e); } }
	cb := compileFunctionBody(t, nil, &ast.TryStmt{
		Block: block(&ast.TryStmt{
			Block:   block(exprStmt(call("g"))),
			Finally: block(exprStmt(call("h"))),
		}),
		Param: "e",
		Catch: block(exprStmt(call("k", ident("e")))),
	})
	if got := countOpcode(cb, OpCatch); got != 2 {
		t.Fatalf("catch count: got=%d want=2\n%s", got, cb)
	}
	if len(cb.ExceptionHandlers) < 2 {
		t.Fatalf("handlers: got=%d want>=2", len(cb.ExceptionHandlers))
	}
	if got := countOpcode(cb, OpPushNameScope); got != 1 {
		t.Fatalf("push_name_scope count: got=%d want=1", got)
	}
}

func TestHandlerScopeDepthInsideWith(t *testing.T) {
	// function f(o) { with (o) { try { g(); } catch (e) {} } }
	cb := compileFunctionBody(t, []string{"o"}, &ast.WithStmt{
		Object: ident("o"),
		Body: block(&ast.TryStmt{
			Block: block(exprStmt(call("g"))),
			Param: "e",
			Catch: block(),
		}),
	})
	if len(cb.ExceptionHandlers) != 1 {
		t.Fatalf("handlers: got=%d want=1\n%s", len(cb.ExceptionHandlers), cb)
	}
	if got := cb.ExceptionHandlers[0].ScopeDepth; got != 1 {
		t.Fatalf("handler depth: got=%d want=1", got)
	}
}

func TestExpressionTooDeepStillCompiles(t *testing.T) {
	opts := testOptions(t)
	opts.MaxExpressionDepth = 4
	var e ast.Expr = ident("a")
	for i := 0; i < 10; i++ {
		e = binop("+", ident("a"), e)
	}
	cb := compileFunctionWith(t, opts, []string{"a"}, ret(e))
	if !cb.ExpressionTooDeep {
		t.Fatalf("expression too deep: got=false want=true")
	}
	if got := countOpcode(cb, OpThrowStaticError); got == 0 {
		t.Fatalf("throw_static_error count: got=0 want>0\n%s", cb)
	}
}

func TestPropertyAnalyzerSizesNewObject(t *testing.T) {
	// function f() { var o = {}; o.a = 1; o.b = 2; o.a = 3; return o; }
	dot := func(name string) ast.Expr { return &ast.DotExpr{Object: ident("o"), Name: name} }
	cb := compileFunctionBody(t, nil,
		varStmt("o", &ast.ObjectLiteral{}),
		assign(dot("a"), num(1)),
		assign(dot("b"), num(2)),
		assign(dot("a"), num(3)),
		ret(ident("o")),
	)
	in, ok := findInstruction(cb, OpNewObject)
	if !ok {
		t.Fatalf("no new_object\n%s", cb)
	}
	if got := in.Operands[1]; got != 2 {
		t.Fatalf("property hint: got=%d want=2\n%s", got, cb)
	}
}

func TestConstAssignmentOutsideAndInsideWith(t *testing.T) {
	// const c = 1; c = 2; with (o) { c = 3; }
	u := compileProgram(t,
		&ast.ConstStmt{List: []ast.VarDeclarator{{Name: "c", Init: num(1)}}},
		assign(ident("c"), num(2)),
		&ast.WithStmt{Object: ident("o"), Body: block(assign(ident("c"), num(3)))},
	)
	cb := u.Code
	if got := countOpcode(cb, OpInitGlobalConst); got != 1 {
		t.Fatalf("init_global_const count: got=%d want=1\n%s", got, cb)
	}
	if got := countOpcode(cb, OpThrowStaticError); got != 1 {
		t.Fatalf("throw_static_error count: got=%d want=1\n%s", got, cb)
	}
	if got := countOpcode(cb, OpPutToBase); got != 1 {
		t.Fatalf("put_to_base count: got=%d want=1\n%s", got, cb)
	}
}

func TestLocalConstAssignmentThrows(t *testing.T) {
	// function f() { const c = 1; c = 2; return c; }
	cb := compileFunctionBody(t, nil,
		&ast.ConstStmt{List: []ast.VarDeclarator{{Name: "c", Init: num(1)}}},
		assign(ident("c"), num(2)),
		ret(ident("c")),
	)
	if got := countOpcode(cb, OpThrowStaticError); got != 1 {
		t.Fatalf("throw_static_error count: got=%d want=1\n%s", got, cb)
	}
}

func TestTemporariesAreReclaimed(t *testing.T) {
	fn := function("f", nil)
	ast.Annotate(fn.Body)
	g := newFunctionGenerator(fn, GlobalScopeChain(), testOptions(t))

	r := g.newTemporary().retain()
	s := g.newTemporary()
	if s.Index() != r.Index()+1 {
		t.Fatalf("second temporary: got=r%d want=r%d", s.Index(), r.Index()+1)
	}
	if again := g.newTemporary(); again.Index() != s.Index() {
		t.Fatalf("free temporary reuse: got=r%d want=r%d", again.Index(), s.Index())
	}
	r.release()
	low := g.newTemporary()
	if low.Index() != r.Index() {
		t.Fatalf("reclaimed temporary: got=r%d want=r%d", low.Index(), r.Index())
	}
	if g.frameSize < r.Index()+2 {
		t.Fatalf("frame size: got=%d want>=%d", g.frameSize, r.Index()+2)
	}
}

func TestStaticErrors(t *testing.T) {
	cases := []struct {
		name string
		body []ast.Stmt
		code string
	}{
		{"return outside function", []ast.Stmt{ret(num(1))}, diag.CodeEmitReturnOutside},
		{"break without target", []ast.Stmt{&ast.BreakStmt{}}, diag.CodeEmitUnresolvedTarget},
		{"continue to unknown label", []ast.Stmt{
			&ast.WhileStmt{Test: &ast.BooleanLiteral{Value: true}, Body: &ast.ContinueStmt{Label: "nope"}},
		}, diag.CodeEmitUnresolvedTarget},
		{"duplicate label", []ast.Stmt{
			&ast.LabeledStmt{Label: "a", Body: &ast.LabeledStmt{Label: "a", Body: &ast.EmptyStmt{}}},
		}, diag.CodeEmitDuplicateLabel},
		{"unknown operator", []ast.Stmt{exprStmt(binop("**", num(1), num(2)))}, diag.CodeEmitInvalidOperator},
	}
	for _, c := range cases {
		_, err := Compile(context.Background(), program(c.body...), testOptions(t))
		var cerr *CompileError
		if !errors.As(err, &cerr) {
			t.Fatalf("%s: error got=%v want=*CompileError", c.name, err)
		}
		if cerr.Code() != c.code {
			t.Fatalf("%s: code got=%s want=%s", c.name, cerr.Code(), c.code)
		}
	}
}

func TestInvalidRegExpThrowsAtRuntime(t *testing.T) {
	u := compileProgram(t, varStmt("r", &ast.RegExpLiteral{Pattern: "(", Flags: "g"}))
	if got := countOpcode(u.Code, OpNewRegExp); got != 0 {
		t.Fatalf("new_regexp count: got=%d want=0", got)
	}
	if got := countOpcode(u.Code, OpThrowStaticError); got != 1 {
		t.Fatalf("throw_static_error count: got=%d want=1\n%s", got, u.Code)
	}

	u = compileProgram(t, varStmt("r", &ast.RegExpLiteral{Pattern: "a+b", Flags: "gi"}))
	if got := countOpcode(u.Code, OpNewRegExp); got != 1 {
		t.Fatalf("valid new_regexp count: got=%d want=1", got)
	}
	if len(u.Code.RegExps) != 1 || u.Code.RegExps[0].Pattern != "a+b" {
		t.Fatalf("regexp table: got=%v", u.Code.RegExps)
	}
}

// instructionsBefore returns the instructions that precede the first
// occurrence of op.
func instructionsBefore(cb *UnlinkedCodeBlock, op OpcodeID) []Instruction {
	var out []Instruction
	for _, in := range cb.DecodeInstructions() {
		if in.Op == op {
			return out
		}
		out = append(out, in)
	}
	return out
}

func countIn(list []Instruction, op OpcodeID) int {
	n := 0
	for _, in := range list {
		if in.Op == op {
			n++
		}
	}
	return n
}

func jumpsOf(cb *UnlinkedCodeBlock) []Instruction {
	var out []Instruction
	for _, in := range cb.DecodeInstructions() {
		if in.Op == OpJmp {
			out = append(out, in)
		}
	}
	return out
}

func TestBreakOutOfEndlessFor(t *testing.T) {
	// function f() { for (;;) { break; } }
	cb := compileFunctionBody(t, nil, &ast.ForStmt{Body: block(&ast.BreakStmt{})})
	jumps := jumpsOf(cb)
	if len(jumps) != 2 {
		t.Fatalf("jmp count: got=%d want=2\n%s", len(jumps), cb)
	}
	brk, back := jumps[0], jumps[1]
	if got, want := brk.Offset+int(brk.Operands[0]), back.Offset+OpJmp.Length(); got != want {
		t.Fatalf("break target: got=%d want=%d\n%s", got, want, cb)
	}
	hint, ok := findInstruction(cb, OpLoopHint)
	if !ok {
		t.Fatalf("no loop_hint\n%s", cb)
	}
	if got := back.Offset + int(back.Operands[0]); got != hint.Offset {
		t.Fatalf("back edge target: got=%d want=%d", got, hint.Offset)
	}
	if got := countOpcode(cb, OpPopScope); got != 0 {
		t.Fatalf("pop_scope count: got=%d want=0", got)
	}
}

func TestReturnOutOfNestedWithPopsEachScope(t *testing.T) {
	// function f(o) { with (o) { with (o) { return 1; } } }
	cb := compileFunctionBody(t, []string{"o"}, &ast.WithStmt{
		Object: ident("o"),
		Body: &ast.WithStmt{
			Object: ident("o"),
			Body:   block(ret(num(1))),
		},
	})
	if got := countIn(instructionsBefore(cb, OpRet), OpPopScope); got != 2 {
		t.Fatalf("pop_scope before ret: got=%d want=2\n%s", got, cb)
	}
	if got := countOpcode(cb, OpPopScope); got != 4 {
		t.Fatalf("pop_scope count: got=%d want=4\n%s", got, cb)
	}
}

func TestBreakAndContinueOutOfWith(t *testing.T) {
	for _, jump := range []ast.Stmt{&ast.BreakStmt{}, &ast.ContinueStmt{}} {
		// function f(o) { for (;;) { with (o) { break; } } }
		cb := compileFunctionBody(t, []string{"o"}, &ast.ForStmt{
			Body: block(&ast.WithStmt{Object: ident("o"), Body: block(jump)}),
		})
		if got := countIn(instructionsBefore(cb, OpJmp), OpPopScope); got != 1 {
			t.Fatalf("%T: pop_scope before jmp: got=%d want=1\n%s", jump, got, cb)
		}
	}
}

func TestBreakOutOfWithAndFinally(t *testing.T) {
	// function f(o) { for (;;) { with (o) { try { break; } finally { h(); } } } }
	cb := compileFunctionBody(t, []string{"o"}, &ast.ForStmt{
		Body: block(&ast.WithStmt{
			Object: ident("o"),
			Body: block(&ast.TryStmt{
				Block:   block(&ast.BreakStmt{}),
				Finally: block(exprStmt(call("h"))),
			}),
		}),
	})
	before := instructionsBefore(cb, OpJmp)
	if got := countIn(before, OpCall); got != 1 {
		t.Fatalf("finally calls on the break path: got=%d want=1\n%s", got, cb)
	}
	if got := countIn(before, OpPopScope); got != 1 {
		t.Fatalf("pop_scope on the break path: got=%d want=1\n%s", got, cb)
	}
	var callAt, popAt int
	for _, in := range before {
		switch in.Op {
		case OpCall:
			callAt = in.Offset
		case OpPopScope:
			popAt = in.Offset
		}
	}
	if callAt > popAt {
		t.Fatalf("finally ran after leaving the with scope: call=%d pop_scope=%d\n%s", callAt, popAt, cb)
	}
}

func TestNumberConstantsAreKeyedByBits(t *testing.T) {
	nan1 := math.Float64frombits(0x7ff8000000000001)
	nan2 := math.Float64frombits(0x7ff8000000000002)
	cb := compileFunctionBody(t, nil,
		varStmt("a", num(3.5)),
		varStmt("b", num(3.5)),
		varStmt("z", num(0)),
		varStmt("nz", num(math.Copysign(0, -1))),
		varStmt("n1", num(nan1)),
		varStmt("n2", num(nan2)),
	)
	seen := map[uint64]int{}
	for _, v := range cb.Constants {
		if v.Kind == KindNumber {
			seen[math.Float64bits(v.Number)]++
		}
	}
	want := []float64{3.5, 0, math.Copysign(0, -1), nan1, nan2}
	if len(seen) != len(want) {
		t.Fatalf("number constants: got=%d want=%d (%v)", len(seen), len(want), cb.Constants)
	}
	for _, n := range want {
		if seen[math.Float64bits(n)] != 1 {
			t.Fatalf("constant %x: got=%d slots want=1", math.Float64bits(n), seen[math.Float64bits(n)])
		}
	}
}

func TestFinallyRunsOnBothPaths(t *testing.T) {
	// function f() { try { f(); } finally { g(); } }
	cb := compileFunctionBody(t, nil, &ast.TryStmt{
		Block:   block(exprStmt(call("f"))),
		Finally: block(exprStmt(call("g"))),
	})
	if got := countOpcode(cb, OpCall); got != 3 {
		t.Fatalf("call count: got=%d want=3 (f once, g twice)\n%s", got, cb)
	}
	if len(cb.ExceptionHandlers) != 1 {
		t.Fatalf("handlers: got=%d want=1\n%s", len(cb.ExceptionHandlers), cb)
	}
	first, _ := findInstruction(cb, OpCall)
	h := cb.ExceptionHandlers[0]
	if first.Offset < h.Start || first.Offset >= h.End {
		t.Fatalf("handler [%d, %d) does not cover the try block call at %d", h.Start, h.End, first.Offset)
	}
	if h.Target < h.End {
		t.Fatalf("handler target %d inside its range [%d, %d)", h.Target, h.Start, h.End)
	}
}

func TestPropertyNamesOperandsEndTracking(t *testing.T) {
	fn := function("f", nil)
	ast.Annotate(fn.Body)
	g := newFunctionGenerator(fn, GlobalScopeChain(), testOptions(t))

	obj := g.newTemporary().retain()
	g.emitNewObject(obj)
	hint := g.code.Len() - 1
	value := g.emitLoad(nil, NumberValue(1))
	g.emitPutByID(obj, "a", value)

	base := g.newTemporary().retain()
	size := g.newTemporary().retain()
	g.emitGetPropertyNames(g.newTemporary(), base, obj, size, g.newLabel())
	// obj now holds an iteration index, so this store is not the object's.
	g.emitPutByID(obj, "b", value)
	g.analyzer.killAll()

	if got := g.code.words[hint]; got != 1 {
		t.Fatalf("property hint: got=%d want=1", got)
	}
}

// deepAddition builds ((v + v) + v) + ... with depth additions and the
// given leaf at the bottom left.
func deepAddition(leaf ast.Expr, depth int) ast.Expr {
	e := leaf
	for i := 0; i < depth; i++ {
		e = binop("+", e, num(1))
	}
	return e
}

func TestExpressionFactsAreComputedOncePerNode(t *testing.T) {
	const depth = 50000
	fn := function("f", nil)
	ast.Annotate(fn.Body)
	g := newFunctionGenerator(fn, GlobalScopeChain(), testOptions(t))

	chain := deepAddition(str("s"), depth)
	if !g.resultTypeOf(chain).definitelyIsString() {
		t.Fatalf("deep string addition is not a string")
	}
	if got := len(g.resultTypes); got != depth {
		t.Fatalf("cached result types: got=%d want=%d", got, depth)
	}
	if !g.isStringAdd(chain) {
		t.Fatalf("deep string addition is not a string add")
	}
	if got := len(g.resultTypes); got != depth {
		t.Fatalf("cached result types after reuse: got=%d want=%d", got, depth)
	}

	assigned := deepAddition(&ast.AssignExpr{Op: "=", Target: ident("x"), Value: num(1)}, depth)
	if !g.hasAssignments(assigned) {
		t.Fatalf("assignment at the bottom not found")
	}
	if g.hasAssignments(chain) {
		t.Fatalf("assignment found in a pure chain")
	}
	if got := len(g.assignments); got != 2*depth {
		t.Fatalf("cached assignment answers: got=%d want=%d", got, 2*depth)
	}
}

func TestDeepAdditionHitsDepthGuard(t *testing.T) {
	opts := testOptions(t)
	opts.MaxExpressionDepth = 200
	cb := compileFunctionWith(t, opts, []string{"y"}, ret(deepAddition(ident("y"), 20000)))
	if !cb.ExpressionTooDeep {
		t.Fatalf("expression too deep: got=false want=true")
	}
}
