package bytecomp

import (
	"math"
	"unicode/utf16"

	"github.com/tos-network/bytecomp/js/ast"
	"github.com/tos-network/bytecomp/js/diag"
)

// tableSwitchMinimum is the smallest number of case clauses worth a jump
// table.
const tableSwitchMinimum = 3

func (g *Generator) statementHook(s ast.Stmt) {
	loc := s.Location()
	g.emitDebugHook(WillExecuteStatement, loc.Line, loc.LastLine(), loc.Column)
}

func (g *Generator) emitStatements(dst *Register, list []ast.Stmt) {
	for _, s := range list {
		g.emitNode(dst, s)
	}
}

// emitStmt dispatches on the statement kind. Statements return nil; dst
// receives the completion value where one is produced.
func (g *Generator) emitStmt(dst *Register, s ast.Stmt) *Register { // {{{
	switch x := s.(type) {
	case *ast.BlockStmt:
		g.emitStatements(dst, x.List)
	case *ast.EmptyStmt:
		g.statementHook(s)
	case *ast.DebuggerStmt:
		g.emitDebugHook(DidReachBreakpoint, x.Loc.Line, x.Loc.LastLine(), x.Loc.Column)
	case *ast.ExprStmt:
		g.statementHook(s)
		g.emitNode(dst, x.Expr)
	case *ast.VarStmt:
		g.statementHook(s)
		g.emitVarDeclarators(x.List)
	case *ast.ConstStmt:
		g.statementHook(s)
		for _, d := range x.List {
			g.emitConstDecl(d)
		}
	case *ast.FunctionDecl:
		// Declarations are hoisted by the prologue.
	case *ast.IfStmt:
		g.emitIf(dst, x)
	case *ast.DoWhileStmt:
		g.emitDoWhile(dst, x)
	case *ast.WhileStmt:
		g.emitWhile(dst, x)
	case *ast.ForStmt:
		g.emitFor(dst, x)
	case *ast.ForInStmt:
		g.emitForIn(dst, x)
	case *ast.ContinueStmt:
		g.statementHook(s)
		scope := g.continueTarget(x.Label)
		if scope == nil {
			raiseCompileError(g, diag.CodeEmitUnresolvedTarget, x.Loc, "continue target %q not found", x.Label)
		}
		g.emitPopScopes(scope.ScopeDepth)
		g.emitJump(scope.ContinueTarget)
	case *ast.BreakStmt:
		g.statementHook(s)
		scope := g.breakTarget(x.Label)
		if scope == nil {
			raiseCompileError(g, diag.CodeEmitUnresolvedTarget, x.Loc, "break target %q not found", x.Label)
		}
		g.emitPopScopes(scope.ScopeDepth)
		g.emitJump(scope.BreakTarget)
	case *ast.ReturnStmt:
		g.emitReturnStmt(dst, x)
	case *ast.WithStmt:
		g.statementHook(s)
		scope := g.emitNode(nil, x.Object).retain()
		g.emitExpressionInfo(x.Object.Location())
		g.emitPushWithScope(scope)
		g.emitNode(dst, x.Body)
		g.emitPopScope()
		scope.release()
	case *ast.SwitchStmt:
		g.emitSwitch(dst, x)
	case *ast.LabeledStmt:
		g.statementHook(s)
		if g.breakTarget(x.Label) != nil {
			raiseCompileError(g, diag.CodeEmitDuplicateLabel, x.Loc, "label %q is already declared", x.Label)
		}
		scope := g.newLabelScope(LabelScopeNamed, x.Label)
		g.emitNode(dst, x.Body)
		g.emitLabel(scope.BreakTarget)
		g.popLabelScope(scope)
	case *ast.ThrowStmt:
		g.statementHook(s)
		value := g.emitNode(nil, x.Value).retain()
		g.emitExpressionInfo(x.Loc)
		g.emitThrow(value)
		value.release()
	case *ast.TryStmt:
		g.emitTry(dst, x)
	default:
		raiseCompileError(g, diag.CodeEmitUnsupportedNode, s.Location(), "unsupported statement %T", s)
	}
	return nil
} // }}}

func (g *Generator) emitVarDeclarators(list []ast.VarDeclarator) {
	for _, d := range list {
		if d.Init != nil {
			g.emitAssignResolve(g.ignored, d.Name, d.Init, d.Loc)
		}
	}
}

/* branches and loops {{{ */

// singleStatement unwraps a block of exactly one statement. It returns nil
// for any other block.
func singleStatement(s ast.Stmt) ast.Stmt {
	if b, ok := s.(*ast.BlockStmt); ok {
		if len(b.List) == 1 {
			return b.List[0]
		}
		return nil
	}
	return s
}

// trivialJumpTarget returns the label a lone break or continue can jump to
// straight from a condition, or nil when leaving needs scope cleanup.
func (g *Generator) trivialJumpTarget(s ast.Stmt) *Label {
	if g.opts.EmitDebugHooks {
		return nil
	}
	var scope *LabelScope
	var target func(*LabelScope) *Label
	switch x := s.(type) {
	case *ast.BreakStmt:
		scope = g.breakTarget(x.Label)
		target = func(s *LabelScope) *Label { return s.BreakTarget }
	case *ast.ContinueStmt:
		scope = g.continueTarget(x.Label)
		target = func(s *LabelScope) *Label { return s.ContinueTarget }
	default:
		return nil
	}
	if scope == nil || scope.ScopeDepth != g.scopeDepth() {
		return nil
	}
	return target(scope)
}

func (g *Generator) emitIf(dst *Register, x *ast.IfStmt) {
	g.statementHook(x)
	beforeThen, beforeElse, afterElse := g.newLabel(), g.newLabel(), g.newLabel()

	trueTarget, fallThroughMeansTrue := beforeThen, true
	folded := false
	if single := singleStatement(x.Then); single != nil {
		if target := g.trivialJumpTarget(single); target != nil {
			trueTarget, fallThroughMeansTrue, folded = target, false, true
		}
	}

	g.emitNodeInConditionContext(x.Test, trueTarget, beforeElse, fallThroughMeansTrue)
	g.emitLabel(beforeThen)
	if !folded {
		g.emitNode(dst, x.Then)
		if x.Else != nil {
			g.emitJump(afterElse)
		}
	}
	g.emitLabel(beforeElse)
	if x.Else != nil {
		g.emitNode(dst, x.Else)
	}
	g.emitLabel(afterElse)
}

func (g *Generator) emitDoWhile(dst *Register, x *ast.DoWhileStmt) {
	scope := g.newLabelScope(LabelScopeLoop, "")
	last := x.Loc.LastLine()

	top := g.emitLabel(g.newLabel())
	g.emitLoopHint()
	g.emitDebugHook(WillExecuteStatement, last, last, x.Loc.Column)
	g.emitNode(dst, x.Body)

	g.emitLabel(scope.ContinueTarget)
	g.emitDebugHook(WillExecuteStatement, last, last, x.Loc.Column)
	g.emitNodeInConditionContext(x.Test, top, scope.BreakTarget, false)
	g.emitLabel(scope.BreakTarget)
	g.popLabelScope(scope)
}

func (g *Generator) emitWhile(dst *Register, x *ast.WhileStmt) {
	scope := g.newLabelScope(LabelScopeLoop, "")
	top := g.newLabel()

	test := x.Test.Location()
	g.emitDebugHook(WillExecuteStatement, test.Line, test.Line, test.Column)
	g.emitNodeInConditionContext(x.Test, top, scope.BreakTarget, true)

	g.emitLabel(top)
	g.emitLoopHint()
	g.emitNode(dst, x.Body)

	g.emitLabel(scope.ContinueTarget)
	g.statementHook(x)
	g.emitNodeInConditionContext(x.Test, top, scope.BreakTarget, false)
	g.emitLabel(scope.BreakTarget)
	g.popLabelScope(scope)
}

func (g *Generator) emitFor(dst *Register, x *ast.ForStmt) {
	scope := g.newLabelScope(LabelScopeLoop, "")
	g.statementHook(x)

	switch init := x.Init.(type) {
	case nil:
	case *ast.ExprStmt:
		g.emitNode(g.ignored, init.Expr)
	case *ast.VarStmt:
		g.emitVarDeclarators(init.List)
	default:
		raiseCompileError(g, diag.CodeEmitUnsupportedNode, init.Location(), "unsupported for initializer %T", init)
	}

	top := g.newLabel()
	if x.Test != nil {
		g.emitNodeInConditionContext(x.Test, top, scope.BreakTarget, true)
	}
	g.emitLabel(top)
	g.emitLoopHint()
	g.emitNode(dst, x.Body)

	g.emitLabel(scope.ContinueTarget)
	g.statementHook(x)
	if x.Update != nil {
		g.emitNode(g.ignored, x.Update)
	}
	if x.Test != nil {
		g.emitNodeInConditionContext(x.Test, top, scope.BreakTarget, false)
	} else {
		g.emitJump(top)
	}
	g.emitLabel(scope.BreakTarget)
	g.popLabelScope(scope)
}

func (g *Generator) emitForIn(dst *Register, x *ast.ForInStmt) {
	scope := g.newLabelScope(LabelScopeLoop, "")
	if !isLocation(x.Target) {
		g.emitThrowReferenceErrorAt(x.Loc, "Left side of for-in statement is not a reference.")
		g.popLabelScope(scope)
		return
	}
	g.statementHook(x)

	if x.Init != nil {
		id, ok := x.Target.(*ast.Identifier)
		if !ok {
			raiseCompileError(g, diag.CodeEmitUnsupportedNode, x.Loc, "for-in initializer needs a declared variable")
		}
		g.emitAssignResolve(g.ignored, id.Name, x.Init, x.Loc)
	}

	var owned []*Register
	defer func() { releaseAll(owned) }()
	keep := func(r *Register) *Register {
		owned = append(owned, r.retain())
		return r
	}

	base := keep(g.newTemporary())
	g.emitNode(base, x.Object)
	index := keep(g.newTemporary())
	size := keep(g.newTemporary())
	iter := keep(g.emitGetPropertyNames(g.newTemporary(), base, index, size, scope.BreakTarget))
	g.emitJump(scope.ContinueTarget)

	loopStart := g.emitLabel(g.newLabel())
	g.emitLoopHint()

	var property *Register
	optimized := false
	switch target := x.Target.(type) {
	case *ast.Identifier:
		res := g.resolve(target.Name)
		if reg := local(res); reg != nil {
			property = reg
			expected := keep(g.emitMove(g.newTemporary(), reg))
			g.pushOptimisedForIn(expected, iter, index, property)
			optimized = true
			break
		}
		property = keep(g.newTemporary())
		if g.strict {
			g.emitExpressionInfo(x.Loc)
		}
		putBase := g.emitResolveBaseForPut(g.newTemporary(), target.Name)
		g.emitExpressionInfo(x.Loc)
		g.emitPutToBase(putBase, target.Name, property)
	case *ast.DotExpr:
		property = keep(g.newTemporary())
		object := g.emitNode(nil, target.Object)
		g.emitExpressionInfo(target.Loc)
		g.emitPutByID(object, target.Name, property)
	case *ast.BracketExpr:
		property = keep(g.newTemporary())
		object := keep(g.emitNode(nil, target.Object))
		subscript := g.emitNode(nil, target.Subscript)
		g.emitExpressionInfo(target.Loc)
		g.emitPutByVal(object, subscript, property)
	}

	g.emitNode(dst, x.Body)
	if optimized {
		g.popOptimisedForIn()
	}

	g.emitLabel(scope.ContinueTarget)
	g.emitNextPropertyName(property, base, index, size, iter, loopStart)
	g.statementHook(x)
	g.emitLabel(scope.BreakTarget)
	g.popLabelScope(scope)
}

/* }}} */

/* return {{{ */

func (g *Generator) emitReturnStmt(dst *Register, x *ast.ReturnStmt) {
	g.statementHook(x)
	if !g.kind.isFunction() {
		raiseCompileError(g, diag.CodeEmitReturnOutside, x.Loc, "return outside of a function body")
	}
	if dst == g.ignored {
		dst = nil
	}
	var result *Register
	if x.Value != nil {
		result = g.emitNode(dst, x.Value)
	} else {
		result = g.emitLoad(dst, UndefinedValue())
	}
	result.retain()
	if g.scopeDepth() > 0 {
		moved := g.emitMove(g.newTemporary(), result).retain()
		result.release()
		result = moved
		g.emitPopScopes(0)
	}
	g.emitDebugHook(WillLeaveCallFrame, x.Loc.Line, x.Loc.LastLine(), x.Loc.Column)
	g.emitReturn(result)
	result.release()
}

// emitFunctionBody emits the statements of a function and the implicit
// return when the body does not end in one.
func (g *Generator) emitFunctionBody() {
	body := g.body
	g.emitDebugHook(DidEnterCallFrame, body.Loc.Line, body.Loc.Line, body.Loc.Column)
	g.emitStatements(g.ignored, body.Statements)

	ret := trailingReturn(body.Statements)
	if ret == nil {
		var r0 *Register
		if g.isConstructor() {
			r0 = g.thisRegister
		} else {
			r0 = g.emitLoad(nil, UndefinedValue())
		}
		g.emitDebugHook(WillLeaveCallFrame, body.Loc.LastLine(), body.Loc.LastLine(), body.Loc.Column)
		g.emitReturn(r0)
		return
	}
	g.isNumericCompareFunction = g.isNumericCompare(body.Statements)
}

// trailingReturn finds a return that ends the body, either as its last
// statement or as the last statement of a body made of one block.
func trailingReturn(list []ast.Stmt) *ast.ReturnStmt {
	if len(list) == 0 {
		return nil
	}
	last := list[len(list)-1]
	if len(list) == 1 {
		if b, ok := last.(*ast.BlockStmt); ok {
			if len(b.List) == 0 {
				return nil
			}
			last = b.List[len(b.List)-1]
		}
	}
	ret, _ := last.(*ast.ReturnStmt)
	return ret
}

// isNumericCompare matches a body that is exactly `return a - b` over the
// first two parameters.
func (g *Generator) isNumericCompare(list []ast.Stmt) bool {
	if len(list) != 1 {
		return false
	}
	ret, ok := singleStatement(list[0]).(*ast.ReturnStmt)
	if !ok || ret == nil {
		return false
	}
	sub, ok := ret.Value.(*ast.BinaryExpr)
	if !ok || sub.Op != "-" {
		return false
	}
	lhs, ok1 := sub.Left.(*ast.Identifier)
	rhs, ok2 := sub.Right.(*ast.Identifier)
	return ok1 && ok2 && g.isArgumentNumber(lhs.Name, 0) && g.isArgumentNumber(rhs.Name, 1)
}

/* }}} */

/* switch {{{ */

type switchShape int

const (
	shapeUnset switchShape = iota
	shapeNumber
	shapeString
	shapeNeither
)

// tryTableSwitch decides whether the case values allow a jump table and
// returns them with their range. Clauses without a test are skipped.
func tryTableSwitch(cases []ast.CaseClause) (kind SwitchKind, keys []Value, min, max int32, ok bool) {
	var tests []ast.Expr
	for _, c := range cases {
		if c.Test != nil {
			tests = append(tests, c.Test)
		}
	}
	if len(tests) < tableSwitchMinimum {
		return 0, nil, 0, 0, false
	}

	shape := shapeUnset
	singleChar := true
	lo, hi := int64(math.MaxInt32), int64(math.MinInt32)
	for _, t := range tests {
		switch lit := t.(type) {
		case *ast.NumberLiteral:
			v := lit.Value
			if shape&^shapeNumber != 0 || v != math.Trunc(v) || v < math.MinInt32 || v > math.MaxInt32 {
				return 0, nil, 0, 0, false
			}
			n := int64(v)
			lo, hi = minInt64(lo, n), maxInt64(hi, n)
			shape = shapeNumber
			keys = append(keys, NumberValue(float64(n)))
		case *ast.StringLiteral:
			if shape&^shapeString != 0 {
				return 0, nil, 0, 0, false
			}
			units := utf16.Encode([]rune(lit.Value))
			if singleChar = singleChar && len(units) == 1; singleChar {
				n := int64(units[0])
				lo, hi = minInt64(lo, n), maxInt64(hi, n)
			}
			shape = shapeString
			keys = append(keys, StringValue(lit.Value))
		default:
			return 0, nil, 0, 0, false
		}
	}

	dense := func() bool {
		span := hi - lo
		return lo <= hi && span <= 1000 && span/int64(len(keys)) < 10
	}
	switch shape {
	case shapeNumber:
		if dense() {
			return SwitchImmediate, keys, int32(lo), int32(hi), true
		}
		return 0, nil, 0, 0, false
	case shapeString:
		if singleChar && dense() {
			return SwitchCharacter, keys, int32(lo), int32(hi), true
		}
		return SwitchString, keys, 0, 0, true
	}
	return 0, nil, 0, 0, false
}

func minInt64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func (g *Generator) emitSwitch(dst *Register, x *ast.SwitchStmt) {
	g.statementHook(x)
	scope := g.newLabelScope(LabelScopeSwitch, "")

	scrutinee := g.emitNode(nil, x.Discriminant).retain()
	g.emitCaseBlock(scrutinee, x.Cases, dst)
	scrutinee.release()

	g.emitLabel(scope.BreakTarget)
	g.popLabelScope(scope)
}

// emitCaseBlock lays the clause bodies out in source order. With a table
// the default clause is reached through the table's fallback; otherwise
// every test is compared with === in order before jumping to the default.
func (g *Generator) emitCaseBlock(scrutinee *Register, cases []ast.CaseClause, dst *Register) {
	kind, keys, min, max, table := tryTableSwitch(cases)

	var labels []*Label
	var defaultLabel *Label
	if table {
		for range keys {
			labels = append(labels, g.newLabel())
		}
		defaultLabel = g.newLabel()
		g.beginSwitch(scrutinee, kind)
	} else {
		// Clauses before the default are tested first, then the ones after.
		var order []int
		defaultAt := -1
		for i, c := range cases {
			if c.Test == nil {
				if defaultAt < 0 {
					defaultAt = i
				}
				continue
			}
			order = append(order, i)
		}
		for _, i := range order {
			clauseVal := g.newTemporary().retain()
			g.emitNode(clauseVal, cases[i].Test)
			g.emitBinaryOp(OpStrictEq, clauseVal, clauseVal, scrutinee, 0)
			l := g.newLabel()
			labels = append(labels, l)
			g.emitJumpIfTrue(clauseVal, l)
			clauseVal.release()
		}
		defaultLabel = g.newLabel()
		g.emitJump(defaultLabel)
	}

	next := 0
	hasDefault := false
	for _, c := range cases {
		if c.Test == nil && !hasDefault {
			hasDefault = true
			g.emitLabel(defaultLabel)
		} else if c.Test != nil {
			g.emitLabel(labels[next])
			next++
		}
		g.emitStatements(dst, c.Body)
	}
	if !hasDefault {
		g.emitLabel(defaultLabel)
	}
	if next != len(labels) {
		raiseInternalError("switch bound %d of %d clause labels", next, len(labels))
	}
	if table {
		g.endSwitch(labels, keys, defaultLabel, min, max)
	}
}

/* }}} */

/* try {{{ */

func (g *Generator) emitTry(dst *Register, x *ast.TryStmt) {
	g.statementHook(x)
	if x.Catch == nil && x.Finally == nil {
		raiseCompileError(g, diag.CodeEmitUnsupportedNode, x.Loc, "try without catch or finally")
	}

	tryStart := g.emitLabel(g.newLabel())
	if x.Finally != nil {
		g.pushFinallyContext(x.Finally)
	}
	data := g.pushTry(tryStart)

	g.emitNode(dst, x.Block)

	if x.Catch != nil {
		catchEnd := g.newLabel()
		g.emitJump(catchEnd)

		here := g.emitLabel(g.newLabel())
		exc := g.popTryAndEmitCatch(data, g.newTemporary(), here).retain()
		if x.Finally != nil {
			data = g.pushTry(here)
		}
		g.emitPushNameScope(x.Param, exc, AttrDontDelete)
		g.emitNode(dst, x.Catch)
		g.emitPopScope()
		g.emitLabel(catchEnd)
		exc.release()
	}

	if x.Finally != nil {
		preFinally := g.emitLabel(g.newLabel())
		g.popFinallyContext()

		finallyEnd := g.newLabel()
		g.emitNode(dst, x.Finally)
		g.emitJump(finallyEnd)

		exc := g.popTryAndEmitCatch(data, g.newTemporary(), preFinally).retain()
		g.emitNode(dst, x.Finally)
		g.emitThrow(exc)
		exc.release()

		g.emitLabel(finallyEnd)
	}
}

/* }}} */
