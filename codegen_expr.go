package bytecomp

import (
	"go.uber.org/zap"

	"github.com/tos-network/bytecomp/js/ast"
	"github.com/tos-network/bytecomp/js/diag"
)

var binaryOpcodes = map[string]OpcodeID{
	"+":          OpAdd,
	"-":          OpSub,
	"*":          OpMul,
	"/":          OpDiv,
	"%":          OpMod,
	"<<":         OpLShift,
	">>":         OpRShift,
	">>>":        OpURShift,
	"&":          OpBitAnd,
	"|":          OpBitOr,
	"^":          OpBitXor,
	"==":         OpEq,
	"!=":         OpNeq,
	"===":        OpStrictEq,
	"!==":        OpNStrictEq,
	"<":          OpLess,
	"<=":         OpLessEq,
	">":          OpGreater,
	">=":         OpGreaterEq,
	"in":         OpIn,
	"instanceof": OpInstanceOf,
}

var readModifyOpcodes = map[string]OpcodeID{
	"+=":   OpAdd,
	"-=":   OpSub,
	"*=":   OpMul,
	"/=":   OpDiv,
	"%=":   OpMod,
	"<<=":  OpLShift,
	">>=":  OpRShift,
	">>>=": OpURShift,
	"&=":   OpBitAnd,
	"|=":   OpBitOr,
	"^=":   OpBitXor,
}

// emitExpr dispatches on the expression kind. The returned register holds
// the value; it is nil only when dst is the ignored register.
func (g *Generator) emitExpr(dst *Register, e ast.Expr) *Register { // {{{
	switch x := e.(type) {
	case *ast.NullLiteral, *ast.BooleanLiteral, *ast.NumberLiteral, *ast.StringLiteral:
		if dst == g.ignored {
			return nil
		}
		v, _ := constantOf(x)
		return g.emitLoad(dst, v)
	case *ast.RegExpLiteral:
		if dst == g.ignored {
			return nil
		}
		return g.emitNewRegExp(g.finalDestination(dst, nil), x.Pattern, x.Flags)
	case *ast.ThisExpr:
		if dst == g.ignored {
			return nil
		}
		return g.moveToDestinationIfNeeded(dst, g.thisRegister)
	case *ast.Identifier:
		return g.emitIdentifierExpr(dst, x)
	case *ast.ArrayLiteral:
		return g.emitArrayLiteral(dst, x)
	case *ast.ObjectLiteral:
		return g.emitObjectLiteral(dst, x)
	case *ast.BracketExpr:
		base := g.emitNodeForLeftHandSide(x.Object, g.hasAssignments(x.Subscript), g.isPure(x.Subscript)).retain()
		defer base.release()
		property := g.emitNode(nil, x.Subscript)
		g.emitExpressionInfo(x.Loc)
		return g.emitGetByVal(g.finalDestination(dst, nil), base, property)
	case *ast.DotExpr:
		base := g.emitNode(nil, x.Object)
		g.emitExpressionInfo(x.Loc)
		return g.emitGetByID(g.finalDestination(dst, nil), base, x.Name)
	case *ast.NewExpr:
		fn := g.emitNode(nil, x.Callee).retain()
		defer fn.release()
		args := g.newCallArguments(x.Args)
		defer args.release()
		return g.emitConstruct(g.finalDestinationOrIgnored(dst, nil), fn, args, x.Loc)
	case *ast.CallExpr:
		return g.emitCallExpr(dst, x)
	case *ast.PostfixExpr:
		return g.emitPostfix(dst, x)
	case *ast.PrefixExpr:
		return g.emitPrefix(dst, x)
	case *ast.UnaryExpr:
		return g.emitUnary(dst, x)
	case *ast.BinaryExpr:
		return g.emitBinary(dst, x)
	case *ast.LogicalExpr:
		temp := g.tempDestination(dst).retain()
		defer temp.release()
		target := g.newLabel()
		g.emitNode(temp, x.Left)
		if x.Op == "&&" {
			g.emitJumpIfFalse(temp, target)
		} else {
			g.emitJumpIfTrue(temp, target)
		}
		g.emitNode(temp, x.Right)
		g.emitLabel(target)
		return g.moveToDestinationIfNeeded(dst, temp)
	case *ast.ConditionalExpr:
		newDst := g.finalDestination(dst, nil).retain()
		defer newDst.release()
		beforeElse, afterElse, beforeThen := g.newLabel(), g.newLabel(), g.newLabel()
		g.emitNodeInConditionContext(x.Test, beforeThen, beforeElse, true)
		g.emitLabel(beforeThen)
		g.emitNode(newDst, x.Consequent)
		g.emitJump(afterElse)
		g.emitLabel(beforeElse)
		g.emitNode(newDst, x.Alternate)
		g.emitLabel(afterElse)
		return newDst
	case *ast.AssignExpr:
		return g.emitAssign(dst, x)
	case *ast.CommaExpr:
		if len(x.List) == 0 {
			raiseCompileError(g, diag.CodeEmitUnsupportedNode, x.Loc, "empty comma expression")
		}
		for _, item := range x.List[:len(x.List)-1] {
			g.emitNode(g.ignored, item)
		}
		return g.emitNode(dst, x.List[len(x.List)-1])
	case *ast.FunctionExpr:
		return g.emitNewFunctionExpression(g.finalDestination(dst, nil), x.Func)
	}
	raiseCompileError(g, diag.CodeEmitUnsupportedNode, e.Location(), "unsupported expression %T", e)
	return nil
} // }}}

func (g *Generator) emitExprInConditionContext(e ast.Expr, trueTarget, falseTarget *Label, fallThroughMeansTrue bool) {
	switch x := e.(type) {
	case *ast.NullLiteral, *ast.BooleanLiteral, *ast.NumberLiteral, *ast.StringLiteral:
		v, _ := constantOf(x)
		switch v.pureToBoolean() {
		case trueTriState:
			if !fallThroughMeansTrue {
				g.emitJump(trueTarget)
			}
			return
		case falseTriState:
			if fallThroughMeansTrue {
				g.emitJump(falseTarget)
			}
			return
		}
	case *ast.UnaryExpr:
		if x.Op == "!" {
			g.emitNodeInConditionContext(x.Operand, falseTarget, trueTarget, !fallThroughMeansTrue)
			return
		}
	case *ast.LogicalExpr:
		afterLeft := g.newLabel()
		if x.Op == "&&" {
			g.emitNodeInConditionContext(x.Left, afterLeft, falseTarget, true)
		} else {
			g.emitNodeInConditionContext(x.Left, trueTarget, afterLeft, false)
		}
		g.emitLabel(afterLeft)
		g.emitNodeInConditionContext(x.Right, trueTarget, falseTarget, fallThroughMeansTrue)
		return
	case *ast.BinaryExpr:
		switch cond, branch := g.tryFoldToBranch(x); cond {
		case trueTriState:
			g.emitNodeInConditionContext(branch, trueTarget, falseTarget, fallThroughMeansTrue)
			return
		case falseTriState:
			g.emitNodeInConditionContext(branch, falseTarget, trueTarget, !fallThroughMeansTrue)
			return
		}
	}
	result := g.emitNode(nil, e)
	if fallThroughMeansTrue {
		g.emitJumpIfFalse(result, falseTarget)
	} else {
		g.emitJumpIfTrue(result, trueTarget)
	}
}

/* condition folding {{{ */

func (g *Generator) canFoldToBranch(op OpcodeID, branch ast.Expr, constant Value) bool {
	t := g.resultTypeOf(branch)
	switch {
	case t.definitelyIsBoolean() && constant.Kind == KindBool:
		return true
	case t.definitelyIsBoolean() && constant.IsInt32() && (constant.Number == 0 || constant.Number == 1):
		// Strict equality is false on a type mismatch.
		return op == OpEq || op == OpNeq
	case t.isInt32() && constant.IsInt32() && constant.Number == 0:
		return true
	}
	return false
}

// tryFoldToBranch reports whether an equality against a constant can
// branch on the other operand directly, and which way.
func (g *Generator) tryFoldToBranch(x *ast.BinaryExpr) (triState, ast.Expr) {
	op, ok := binaryOpcodes[x.Op]
	if !ok {
		return mixedTriState, nil
	}
	constant, ok := constantOf(x.Left)
	branch := x.Right
	if !ok {
		if constant, ok = constantOf(x.Right); !ok {
			return mixedTriState, nil
		}
		branch = x.Left
	}
	if !g.canFoldToBranch(op, branch, constant) {
		return mixedTriState, nil
	}
	cond := constant.pureToBoolean()
	switch op {
	case OpEq, OpStrictEq:
		return cond, branch
	case OpNeq, OpNStrictEq:
		if cond == trueTriState {
			return falseTriState, branch
		}
		return trueTriState, branch
	}
	return mixedTriState, nil
}

/* }}} */

/* left hand sides {{{ */

func (g *Generator) leftHandSideNeedsCopy(rightHasAssignments, rightIsPure bool) bool {
	return (!g.kind.isFunction() || g.needsFullScopeChain || rightHasAssignments) && !rightIsPure
}

// emitNodeForLeftHandSide evaluates the left operand so that evaluating
// the right one cannot change it underneath.
func (g *Generator) emitNodeForLeftHandSide(n ast.Expr, rightHasAssignments, rightIsPure bool) *Register {
	if g.leftHandSideNeedsCopy(rightHasAssignments, rightIsPure) {
		dst := g.newTemporary()
		g.emitNode(dst, n)
		return dst
	}
	return g.emitNode(nil, n)
}

func (g *Generator) emitThrowReferenceErrorAt(loc ast.Loc, msg string) *Register {
	g.emitExpressionInfo(loc)
	g.emitThrowReferenceError(msg)
	return g.newTemporary()
}

/* }}} */

/* names {{{ */

func (g *Generator) emitIdentifierExpr(dst *Register, x *ast.Identifier) *Register {
	res := g.resolve(x.Name)
	if reg := local(res); reg != nil {
		if dst == g.ignored {
			return nil
		}
		return g.moveToDestinationIfNeeded(dst, reg)
	}
	g.emitExpressionInfo(x.Loc)
	return g.emitResolve(g.finalDestination(dst, nil), res, x.Name)
}

/* }}} */

/* literals {{{ */

func (g *Generator) emitArrayLiteral(dst *Register, x *ast.ArrayLiteral) *Register {
	firstPut := len(x.Elements)
	for i, e := range x.Elements {
		if e == nil {
			firstPut = i
			break
		}
	}
	if firstPut == len(x.Elements) {
		return g.emitNewArray(g.finalDestination(dst, nil), x.Elements)
	}

	array := g.emitNewArray(g.tempDestination(dst), x.Elements).retain()
	defer array.release()
	length := firstPut
	for _, e := range x.Elements[firstPut:] {
		if e == nil {
			length++
			continue
		}
		value := g.emitNode(nil, e)
		g.emitPutByIndex(array, length, value)
		length++
	}
	if x.Elements[len(x.Elements)-1] == nil {
		value := g.emitLoad(nil, NumberValue(float64(len(x.Elements))))
		g.emitPutByID(array, "length", value)
	}
	return g.moveToDestinationIfNeeded(dst, array)
}

type accessorPair struct {
	first, second *ast.Property
}

func (g *Generator) emitObjectLiteral(dst *Register, x *ast.ObjectLiteral) *Register {
	if len(x.Properties) == 0 {
		if dst == g.ignored {
			return nil
		}
		return g.emitNewObject(g.finalDestination(dst, nil))
	}

	obj := g.tempDestination(dst).retain()
	defer obj.release()
	g.emitNewObject(obj)

	props := x.Properties
	i := 0
	for ; i < len(props) && props[i].Kind == ast.PropertyValue; i++ {
		g.emitDirectPutByID(obj, props[i].Key, g.emitNode(nil, props[i].Value))
	}
	if i == len(props) {
		return g.moveToDestinationIfNeeded(dst, obj)
	}

	pairs := map[string]*accessorPair{}
	for j := i; j < len(props); j++ {
		p := &props[j]
		if p.Kind == ast.PropertyValue {
			continue
		}
		if pair, ok := pairs[p.Key]; ok {
			pair.second = p
		} else {
			pairs[p.Key] = &accessorPair{first: p}
		}
	}

	for ; i < len(props); i++ {
		p := &props[i]
		if p.Kind == ast.PropertyValue {
			g.emitDirectPutByID(obj, p.Key, g.emitNode(nil, p.Value))
			continue
		}
		pair := pairs[p.Key]
		if pair.second == p && pair.first.Kind != p.Kind {
			continue
		}
		var partner *ast.Property
		if pair.first == p && pair.second != nil && pair.second.Kind != p.Kind {
			partner = pair.second
		}

		value := g.emitNode(nil, p.Value).retain()
		var other *Register
		if partner != nil {
			other = g.emitNode(nil, partner.Value).retain()
		} else {
			other = g.newTemporary().retain()
			g.emitLoad(other, UndefinedValue())
		}
		if p.Kind == ast.PropertyGetter {
			g.emitPutGetterSetter(obj, p.Key, value, other)
		} else {
			g.emitPutGetterSetter(obj, p.Key, other, value)
		}
		other.release()
		value.release()
	}
	return g.moveToDestinationIfNeeded(dst, obj)
}

/* }}} */

/* calls {{{ */

func (g *Generator) emitCallExpr(dst *Register, x *ast.CallExpr) *Register {
	switch callee := x.Callee.(type) {
	case *ast.Identifier:
		if callee.Name == "eval" {
			return g.emitEvalCall(dst, x)
		}
		return g.emitResolveCall(dst, x, callee)
	case *ast.DotExpr:
		fn := g.tempDestination(dst).retain()
		defer fn.release()
		args := g.newCallArguments(x.Args)
		defer args.release()
		g.emitNode(args.thisRegister(), callee.Object)
		g.emitExpressionInfo(callee.Loc)
		g.emitGetByID(fn, args.thisRegister(), callee.Name)
		return g.emitCall(OpCall, g.finalDestinationOrIgnored(dst, fn), fn, args, x.Loc)
	case *ast.BracketExpr:
		base := g.emitNode(nil, callee.Object).retain()
		defer base.release()
		property := g.emitNode(nil, callee.Subscript)
		g.emitExpressionInfo(callee.Loc)
		fn := g.emitGetByVal(g.tempDestination(dst), base, property).retain()
		defer fn.release()
		args := g.newCallArguments(x.Args)
		defer args.release()
		g.emitMove(args.thisRegister(), base)
		return g.emitCall(OpCall, g.finalDestinationOrIgnored(dst, fn), fn, args, x.Loc)
	}
	fn := g.emitNode(nil, x.Callee).retain()
	defer fn.release()
	args := g.newCallArguments(x.Args)
	defer args.release()
	g.emitLoad(args.thisRegister(), UndefinedValue())
	return g.emitCall(OpCall, g.finalDestinationOrIgnored(dst, fn), fn, args, x.Loc)
}

func (g *Generator) emitEvalCall(dst *Register, x *ast.CallExpr) *Register {
	fn := g.tempDestination(dst).retain()
	defer fn.release()
	args := g.newCallArguments(x.Args)
	defer args.release()
	g.emitExpressionInfo(x.Callee.Location())
	g.emitResolveWithThis(args.thisRegister(), fn, g.resolve("eval"), "eval")
	return g.emitCall(OpCallEval, g.finalDestination(dst, fn), fn, args, x.Loc)
}

func (g *Generator) emitResolveCall(dst *Register, x *ast.CallExpr, callee *ast.Identifier) *Register {
	res := g.resolve(callee.Name)
	if reg := local(res); reg != nil {
		fn := g.emitMove(g.tempDestination(dst), reg).retain()
		defer fn.release()
		args := g.newCallArguments(x.Args)
		defer args.release()
		g.emitLoad(args.thisRegister(), UndefinedValue())
		return g.emitCall(OpCall, g.finalDestinationOrIgnored(dst, args.thisRegister()), fn, args, x.Loc)
	}

	fn := g.newTemporary().retain()
	defer fn.release()
	args := g.newCallArguments(x.Args)
	defer args.release()
	if isStatic(res) {
		g.emitGetStaticVar(fn, res)
		g.emitLoad(args.thisRegister(), UndefinedValue())
	} else {
		g.emitExpressionInfo(callee.Loc)
		g.emitResolveWithThis(args.thisRegister(), fn, res, callee.Name)
	}
	return g.emitCall(OpCall, g.finalDestinationOrIgnored(dst, fn), fn, args, x.Loc)
}

/* }}} */

/* increment and decrement {{{ */

func (g *Generator) emitIncOrDec(srcDst *Register, op string) *Register {
	if op == "++" {
		return g.emitInc(srcDst)
	}
	return g.emitDec(srcDst)
}

// emitPostIncOrDec leaves the numeric old value in dst and updates srcDst.
func (g *Generator) emitPostIncOrDec(dst, srcDst *Register, op string) *Register {
	if dst == srcDst {
		return g.emitUnaryOp(OpToNumber, g.finalDestination(dst, nil), srcDst)
	}
	tmp := g.emitUnaryOp(OpToNumber, g.tempDestination(dst), srcDst).retain()
	defer tmp.release()
	g.emitIncOrDec(srcDst, op)
	return g.moveToDestinationIfNeeded(dst, tmp)
}

func updateErrorMessage(kind, op string) string {
	return kind + " " + op + " operator applied to value that is not a reference."
}

func (g *Generator) emitPostfix(dst *Register, x *ast.PostfixExpr) *Register {
	if dst == g.ignored {
		return g.emitPrefix(dst, &ast.PrefixExpr{ExprBase: x.ExprBase, Op: x.Op, Target: x.Target})
	}
	switch target := x.Target.(type) {
	case *ast.Identifier:
		name := target.Name
		res := g.resolve(name)
		if reg := local(res); reg != nil {
			if g.isReadOnly(res, name) {
				g.emitReadOnlyExceptionIfNeeded()
				copied := g.emitMove(g.tempDestination(dst), reg).retain()
				defer copied.release()
				return g.emitPostIncOrDec(g.finalDestination(dst, nil), copied, x.Op)
			}
			g.invalidateForInContextForLocal(reg)
			return g.emitPostIncOrDec(g.finalDestination(dst, nil), reg, x.Op)
		}
		if g.isReadOnly(res, name) {
			g.emitReadOnlyExceptionIfNeeded()
			value := g.emitResolve(g.newTemporary(), res, name).retain()
			defer value.release()
			return g.emitPostIncOrDec(g.finalDestination(dst, nil), value, x.Op)
		}
		if isStatic(res) {
			value := g.emitGetStaticVar(g.newTemporary(), res).retain()
			defer value.release()
			old := g.emitPostIncOrDec(g.finalDestination(dst, nil), value, x.Op)
			g.emitPutStaticVar(res, value)
			return old
		}
		g.emitExpressionInfo(x.Loc)
		value := g.newTemporary().retain()
		defer value.release()
		base := g.emitResolveWithBase(g.newTemporary(), value, name).retain()
		defer base.release()
		old := g.emitPostIncOrDec(g.finalDestination(dst, nil), value, x.Op).retain()
		defer old.release()
		g.emitPutToBase(base, name, value)
		return old
	case *ast.BracketExpr:
		base := g.emitNodeForLeftHandSide(target.Object, g.hasAssignments(target.Subscript), g.isPure(target.Subscript)).retain()
		defer base.release()
		property := g.emitNode(nil, target.Subscript).retain()
		defer property.release()
		g.emitExpressionInfo(target.Loc)
		value := g.emitGetByVal(g.newTemporary(), base, property).retain()
		defer value.release()
		old := g.emitPostIncOrDec(g.tempDestination(dst), value, x.Op)
		g.emitExpressionInfo(x.Loc)
		g.emitPutByVal(base, property, value)
		return g.moveToDestinationIfNeeded(dst, old)
	case *ast.DotExpr:
		base := g.emitNode(nil, target.Object).retain()
		defer base.release()
		g.emitExpressionInfo(target.Loc)
		value := g.emitGetByID(g.newTemporary(), base, target.Name).retain()
		defer value.release()
		old := g.emitPostIncOrDec(g.tempDestination(dst), value, x.Op)
		g.emitExpressionInfo(x.Loc)
		g.emitPutByID(base, target.Name, value)
		return g.moveToDestinationIfNeeded(dst, old)
	}
	return g.emitThrowReferenceErrorAt(x.Loc, updateErrorMessage("Postfix", x.Op))
}

func (g *Generator) emitPrefix(dst *Register, x *ast.PrefixExpr) *Register {
	switch target := x.Target.(type) {
	case *ast.Identifier:
		name := target.Name
		res := g.resolve(name)
		if reg := local(res); reg != nil {
			if g.isReadOnly(res, name) {
				g.emitReadOnlyExceptionIfNeeded()
				copied := g.emitMove(g.tempDestination(dst), reg).retain()
				defer copied.release()
				g.emitIncOrDec(copied, x.Op)
				return g.moveToDestinationIfNeeded(dst, copied)
			}
			g.invalidateForInContextForLocal(reg)
			g.emitIncOrDec(reg, x.Op)
			return g.moveToDestinationIfNeeded(dst, reg)
		}
		if g.isReadOnly(res, name) {
			g.emitReadOnlyExceptionIfNeeded()
			value := g.emitResolve(g.tempDestination(dst), res, name).retain()
			defer value.release()
			g.emitIncOrDec(value, x.Op)
			return g.moveToDestinationIfNeeded(dst, value)
		}
		if isStatic(res) {
			value := g.emitGetStaticVar(g.tempDestination(dst), res).retain()
			defer value.release()
			g.emitIncOrDec(value, x.Op)
			g.emitPutStaticVar(res, value)
			return g.moveToDestinationIfNeeded(dst, value)
		}
		g.emitExpressionInfo(x.Loc)
		value := g.tempDestination(dst).retain()
		defer value.release()
		base := g.emitResolveWithBase(g.newTemporary(), value, name).retain()
		defer base.release()
		g.emitIncOrDec(value, x.Op)
		g.emitPutToBase(base, name, value)
		return g.moveToDestinationIfNeeded(dst, value)
	case *ast.BracketExpr:
		base := g.emitNodeForLeftHandSide(target.Object, g.hasAssignments(target.Subscript), g.isPure(target.Subscript)).retain()
		defer base.release()
		property := g.emitNode(nil, target.Subscript).retain()
		defer property.release()
		value := g.tempDestination(dst).retain()
		defer value.release()
		g.emitExpressionInfo(target.Loc)
		g.emitGetByVal(value, base, property)
		g.emitIncOrDec(value, x.Op)
		g.emitExpressionInfo(x.Loc)
		g.emitPutByVal(base, property, value)
		return g.moveToDestinationIfNeeded(dst, value)
	case *ast.DotExpr:
		base := g.emitNode(nil, target.Object).retain()
		defer base.release()
		value := g.tempDestination(dst).retain()
		defer value.release()
		g.emitExpressionInfo(target.Loc)
		g.emitGetByID(value, base, target.Name)
		g.emitIncOrDec(value, x.Op)
		g.emitExpressionInfo(x.Loc)
		g.emitPutByID(base, target.Name, value)
		return g.moveToDestinationIfNeeded(dst, value)
	}
	return g.emitThrowReferenceErrorAt(x.Loc, updateErrorMessage("Prefix", x.Op))
}

/* }}} */

/* unary operators {{{ */

func (g *Generator) emitUnary(dst *Register, x *ast.UnaryExpr) *Register {
	switch x.Op {
	case "-", "+", "!":
		op := OpNegate
		if x.Op == "+" {
			op = OpToNumber
		} else if x.Op == "!" {
			op = OpNot
		}
		src := g.emitNode(nil, x.Operand)
		g.emitExpressionInfo(x.Loc)
		return g.emitUnaryOp(op, g.finalDestination(dst, nil), src)
	case "~":
		minusOne := g.emitLoad(g.newTemporary(), NumberValue(-1)).retain()
		defer minusOne.release()
		src := g.emitNode(nil, x.Operand)
		types := operandTypes(g.resultTypeOf(x.Operand), numberTypeIsInt32)
		return g.emitBinaryOp(OpBitXor, g.finalDestination(dst, src), src, minusOne, types)
	case "void":
		if dst == g.ignored {
			g.emitNode(g.ignored, x.Operand)
			return nil
		}
		g.emitNode(nil, x.Operand)
		return g.emitLoad(dst, UndefinedValue())
	case "typeof":
		if id, ok := x.Operand.(*ast.Identifier); ok {
			return g.emitTypeofResolve(dst, id)
		}
		if dst == g.ignored {
			g.emitNode(g.ignored, x.Operand)
			return nil
		}
		src := g.emitNode(nil, x.Operand).retain()
		defer src.release()
		return g.emitUnaryOp(OpTypeof, g.finalDestination(dst, nil), src)
	case "delete":
		return g.emitDelete(dst, x)
	}
	raiseCompileError(g, diag.CodeEmitInvalidOperator, x.Loc, "unknown unary operator %q", x.Op)
	return nil
}

func (g *Generator) emitTypeofResolve(dst *Register, x *ast.Identifier) *Register {
	res := g.resolve(x.Name)
	if reg := local(res); reg != nil {
		if dst == g.ignored {
			return nil
		}
		return g.emitUnaryOp(OpTypeof, g.finalDestination(dst, nil), reg)
	}
	if isStatic(res) {
		scratch := g.emitGetStaticVar(g.tempDestination(dst), res).retain()
		defer scratch.release()
		return g.emitUnaryOp(OpTypeof, g.finalDestination(dst, scratch), scratch)
	}
	scratch := g.emitResolveBase(g.tempDestination(dst), x.Name).retain()
	defer scratch.release()
	g.emitGetByID(scratch, scratch, x.Name)
	if dst == g.ignored {
		return nil
	}
	return g.emitUnaryOp(OpTypeof, g.finalDestination(dst, scratch), scratch)
}

func (g *Generator) emitDelete(dst *Register, x *ast.UnaryExpr) *Register {
	switch target := x.Operand.(type) {
	case *ast.Identifier:
		res := g.resolve(target.Name)
		if local(res) != nil {
			return g.emitLoad(g.finalDestination(dst, nil), BoolValue(false))
		}
		g.emitExpressionInfo(x.Loc)
		base := g.emitResolveBase(g.tempDestination(dst), target.Name)
		return g.emitDeleteByID(g.finalDestination(dst, base), base, target.Name)
	case *ast.BracketExpr:
		base := g.emitNode(nil, target.Object).retain()
		defer base.release()
		property := g.emitNode(nil, target.Subscript)
		g.emitExpressionInfo(x.Loc)
		return g.emitDeleteByVal(g.finalDestination(dst, nil), base, property)
	case *ast.DotExpr:
		base := g.emitNode(nil, target.Object)
		g.emitExpressionInfo(x.Loc)
		return g.emitDeleteByID(g.finalDestination(dst, nil), base, target.Name)
	}
	// Deleting a value that is not a reference evaluates it and yields true.
	g.emitNode(g.ignored, x.Operand)
	return g.emitLoad(g.finalDestination(dst, nil), BoolValue(true))
}

/* }}} */

/* binary operators {{{ */

func (g *Generator) emitBinary(dst *Register, x *ast.BinaryExpr) *Register {
	op, ok := binaryOpcodes[x.Op]
	if !ok {
		raiseCompileError(g, diag.CodeEmitInvalidOperator, x.Loc, "unknown binary operator %q", x.Op)
	}
	switch op {
	case OpEq:
		return g.emitEqual(dst, x, OpEq, OpEqNull)
	case OpStrictEq:
		return g.emitEqual(dst, x, OpStrictEq, opNone)
	case OpInstanceOf:
		return g.emitInstanceOfExpr(dst, x)
	case OpIn:
		src1 := g.emitNodeForLeftHandSide(x.Left, g.hasAssignments(x.Right), g.isPure(x.Right)).retain()
		defer src1.release()
		src2 := g.emitNode(nil, x.Right)
		g.emitExpressionInfo(x.Loc)
		return g.emitBinaryOp(op, g.finalDestination(dst, src1), src1, src2, operandTypes(g.resultTypeOf(x.Left), g.resultTypeOf(x.Right)))
	}

	if op == OpAdd && g.isStringAdd(x.Left) {
		g.emitExpressionInfo(x.Loc)
		return g.emitStrcatChain(dst, x, nil, nil)
	}

	if op == OpNeq && (isNullLiteral(x.Left) || isNullLiteral(x.Right)) {
		operand := x.Left
		if isNullLiteral(x.Left) {
			operand = x.Right
		}
		src := g.tempDestination(dst).retain()
		defer src.release()
		g.emitNode(src, operand)
		return g.emitUnaryOp(OpNeqNull, g.finalDestination(dst, src), src)
	}

	left, right := x.Left, x.Right
	if (op == OpNeq || op == OpNStrictEq) && isStringLiteral(left) {
		left, right = right, left
	}

	src1 := g.emitNodeForLeftHandSide(left, g.hasAssignments(x.Right), g.isPure(right)).retain()
	defer src1.release()
	wasTypeof := g.code.Last() == OpTypeof
	src2 := g.emitNode(nil, right)
	g.emitExpressionInfo(x.Loc)
	if wasTypeof && (op == OpNeq || op == OpNStrictEq) {
		tmp := g.tempDestination(dst).retain()
		defer tmp.release()
		eq := OpEq
		if op == OpNStrictEq {
			eq = OpStrictEq
		}
		g.emitEqualityOp(eq, g.finalDestination(tmp, src1), src1, src2)
		return g.emitUnaryOp(OpNot, g.finalDestination(dst, tmp), tmp)
	}
	return g.emitBinaryOp(op, g.finalDestination(dst, src1), src1, src2, operandTypes(g.resultTypeOf(left), g.resultTypeOf(right)))
}

// emitEqual compiles == and ===. A loose comparison with a null literal
// becomes eq_null on the other operand.
func (g *Generator) emitEqual(dst *Register, x *ast.BinaryExpr, op, nullOp OpcodeID) *Register {
	if nullOp != opNone && (isNullLiteral(x.Left) || isNullLiteral(x.Right)) {
		operand := x.Left
		if isNullLiteral(x.Left) {
			operand = x.Right
		}
		src := g.tempDestination(dst).retain()
		defer src.release()
		g.emitNode(src, operand)
		return g.emitUnaryOp(nullOp, g.finalDestination(dst, src), src)
	}

	left, right := x.Left, x.Right
	if isStringLiteral(left) {
		left, right = right, left
	}
	src1 := g.emitNodeForLeftHandSide(left, g.hasAssignments(x.Right), g.isPure(x.Right)).retain()
	defer src1.release()
	src2 := g.emitNode(nil, right)
	return g.emitEqualityOp(op, g.finalDestination(dst, src1), src1, src2)
}

func (g *Generator) emitInstanceOfExpr(dst *Register, x *ast.BinaryExpr) *Register {
	src1 := g.emitNodeForLeftHandSide(x.Left, g.hasAssignments(x.Right), g.isPure(x.Right)).retain()
	defer src1.release()
	src2 := g.emitNode(nil, x.Right).retain()
	defer src2.release()
	prototype := g.newTemporary().retain()
	defer prototype.release()
	result := g.finalDestination(dst, src1).retain()
	defer result.release()
	target := g.newLabel()

	g.emitExpressionInfo(x.Loc)
	g.emitCheckHasInstance(result, src1, src2, target)
	g.emitExpressionInfo(x.Loc)
	g.emitGetByID(prototype, src2, "prototype")
	g.emitExpressionInfo(x.Loc)
	g.emitInstanceOf(result, src1, prototype)
	g.emitLabel(target)
	return result
}

// emitStrcatChain flattens a left-leaning chain of string additions into a
// single strcat. Operands are converted with to_primitive in the order the
// additions would have converted them. lhs is the target of a += whose
// right side is the chain.
func (g *Generator) emitStrcatChain(dst *Register, root *ast.BinaryExpr, lhs *Register, info *ast.Loc) *Register {
	reverse := []ast.Expr{root.Right}
	leftMost := root.Left
	for g.isStringAdd(leftMost) {
		add := leftMost.(*ast.BinaryExpr)
		reverse = append(reverse, add.Right)
		leftMost = add.Left
	}

	var temps []*Register
	defer func() { releaseAll(temps) }()
	next := func() *Register {
		r := g.newTemporary().retain()
		if n := len(temps); n > 0 && r.index != temps[n-1].index+1 {
			raiseInternalError("strcat operands not in consecutive registers")
		}
		temps = append(temps, r)
		return r
	}

	if lhs != nil {
		next()
	}
	pending := next()
	g.emitNode(pending, leftMost)
	if isStringLiteral(leftMost) {
		pending = nil
	}

	for i := len(reverse) - 1; i >= 0; i-- {
		node := reverse[i]
		r := next()
		g.emitNode(r, node)
		if pending != nil {
			g.emitToPrimitive(pending, pending)
			pending = nil
		}
		if !isStringLiteral(node) {
			g.emitToPrimitive(r, r)
		}
	}

	if info != nil {
		g.emitExpressionInfo(*info)
	}
	if lhs != nil {
		g.emitToPrimitive(temps[0], lhs)
	}
	return g.emitStrcat(g.finalDestination(dst, temps[0]), temps[0], len(temps))
}

/* }}} */

/* assignment {{{ */

func (g *Generator) emitAssign(dst *Register, x *ast.AssignExpr) *Register {
	if x.Op != "=" {
		if _, ok := readModifyOpcodes[x.Op]; !ok {
			raiseCompileError(g, diag.CodeEmitInvalidOperator, x.Loc, "unknown assignment operator %q", x.Op)
		}
	}
	switch target := x.Target.(type) {
	case *ast.Identifier:
		if x.Op == "=" {
			return g.emitAssignResolve(dst, target.Name, x.Value, x.Loc)
		}
		return g.emitReadModifyResolve(dst, target.Name, x)
	case *ast.DotExpr:
		base := g.emitNodeForLeftHandSide(target.Object, g.hasAssignments(x.Value), g.isPure(x.Value)).retain()
		defer base.release()
		if x.Op != "=" {
			g.emitExpressionInfo(target.Loc)
			value := g.emitGetByID(g.tempDestination(dst), base, target.Name).retain()
			defer value.release()
			updated := g.emitReadModifyAssignment(g.finalDestination(dst, value), value, x.Value, x.Op, nil)
			g.emitExpressionInfo(x.Loc)
			return g.emitPutByID(base, target.Name, updated)
		}
		resultDst := g.destinationForAssignResult(dst).retain()
		defer resultDst.release()
		result := g.emitNode(resultDst, x.Value)
		g.emitExpressionInfo(x.Loc)
		forward := g.forwardAssignResult(dst, result)
		g.emitPutByID(base, target.Name, forward)
		return g.moveToDestinationIfNeeded(dst, forward)
	case *ast.BracketExpr:
		rightHasAssignments := g.hasAssignments(x.Value)
		rightIsPure := g.isPure(x.Value)
		base := g.emitNodeForLeftHandSide(target.Object,
			g.hasAssignments(target.Subscript) || rightHasAssignments,
			g.isPure(target.Subscript) && rightIsPure).retain()
		defer base.release()
		property := g.emitNodeForLeftHandSide(target.Subscript, rightHasAssignments, rightIsPure).retain()
		defer property.release()
		if x.Op != "=" {
			g.emitExpressionInfo(target.Loc)
			value := g.emitGetByVal(g.tempDestination(dst), base, property).retain()
			defer value.release()
			updated := g.emitReadModifyAssignment(g.finalDestination(dst, value), value, x.Value, x.Op, nil)
			g.emitExpressionInfo(x.Loc)
			g.emitPutByVal(base, property, updated)
			return updated
		}
		resultDst := g.destinationForAssignResult(dst).retain()
		defer resultDst.release()
		result := g.emitNode(resultDst, x.Value)
		g.emitExpressionInfo(x.Loc)
		forward := g.forwardAssignResult(dst, result)
		g.emitPutByVal(base, property, forward)
		return g.moveToDestinationIfNeeded(dst, forward)
	}
	return g.emitThrowReferenceErrorAt(x.Loc, "Left side of assignment is not a reference.")
}

// forwardAssignResult keeps the assigned value in a temporary when the
// assignment's own value is used, so the store cannot clobber it.
func (g *Generator) forwardAssignResult(dst, result *Register) *Register {
	if dst == g.ignored {
		return result
	}
	return g.moveToDestinationIfNeeded(g.tempDestination(result), result)
}

func (g *Generator) emitAssignResolve(dst *Register, name string, value ast.Expr, loc ast.Loc) *Register {
	res := g.resolve(name)
	if reg := local(res); reg != nil {
		if g.isReadOnly(res, name) {
			g.emitReadOnlyExceptionIfNeeded()
			return g.emitNode(dst, value)
		}
		g.invalidateForInContextForLocal(reg)
		result := g.emitNode(reg, value)
		return g.moveToDestinationIfNeeded(dst, result)
	}
	if g.isReadOnly(res, name) {
		g.emitReadOnlyExceptionIfNeeded()
		return g.emitNode(dst, value)
	}
	if dst == g.ignored {
		dst = nil
	}
	if isStatic(res) {
		v := g.emitNode(dst, value)
		g.emitPutStaticVar(res, v)
		return v
	}

	if g.strict {
		g.emitExpressionInfo(loc)
	}
	base := g.emitResolveBaseForPut(g.newTemporary(), name).retain()
	defer base.release()
	v := g.emitNode(dst, value)
	g.emitExpressionInfo(loc)
	return g.emitPutToBase(base, name, v)
}

func (g *Generator) emitReadModifyResolve(dst *Register, name string, x *ast.AssignExpr) *Register {
	res := g.resolve(name)
	if reg := local(res); reg != nil {
		if g.isReadOnly(res, name) {
			g.emitReadOnlyExceptionIfNeeded()
			return g.emitReadModifyAssignment(g.finalDestination(dst, nil), reg, x.Value, x.Op, nil)
		}
		g.invalidateForInContextForLocal(reg)
		if g.leftHandSideNeedsCopy(g.hasAssignments(x.Value), g.isPure(x.Value)) {
			result := g.newTemporary().retain()
			defer result.release()
			g.emitMove(result, reg)
			g.emitReadModifyAssignment(result, result, x.Value, x.Op, nil)
			g.emitMove(reg, result)
			return g.moveToDestinationIfNeeded(dst, result)
		}
		result := g.emitReadModifyAssignment(reg, reg, x.Value, x.Op, nil)
		return g.moveToDestinationIfNeeded(dst, result)
	}

	if g.isReadOnly(res, name) {
		g.emitReadOnlyExceptionIfNeeded()
		src1 := g.emitResolve(g.tempDestination(dst), res, name).retain()
		defer src1.release()
		return g.emitReadModifyAssignment(g.finalDestination(dst, src1), src1, x.Value, x.Op, nil)
	}
	if isStatic(res) {
		src1 := g.emitGetStaticVar(g.tempDestination(dst), res).retain()
		defer src1.release()
		result := g.emitReadModifyAssignment(g.finalDestination(dst, src1), src1, x.Value, x.Op, nil)
		g.emitPutStaticVar(res, result)
		return result
	}

	src1 := g.tempDestination(dst).retain()
	defer src1.release()
	g.emitExpressionInfo(x.Loc)
	base := g.emitResolveWithBase(g.newTemporary(), src1, name).retain()
	defer base.release()
	loc := x.Loc
	result := g.emitReadModifyAssignment(g.finalDestination(dst, src1), src1, x.Value, x.Op, &loc)
	return g.emitPutToBase(base, name, result)
}

// emitReadModifyAssignment computes src1 op= right into dst. info, when
// set, is recorded after the right side has been emitted.
func (g *Generator) emitReadModifyAssignment(dst, src1 *Register, right ast.Expr, op string, info *ast.Loc) *Register {
	opcode, ok := readModifyOpcodes[op]
	if !ok {
		raiseCompileError(g, diag.CodeEmitInvalidOperator, right.Location(), "unknown assignment operator %q", op)
	}
	if opcode == OpAdd && g.isStringAdd(right) {
		return g.emitStrcatChain(dst, right.(*ast.BinaryExpr), src1, info)
	}
	src2 := g.emitNode(nil, right)
	if info != nil {
		g.emitExpressionInfo(*info)
	}
	return g.emitBinaryOp(opcode, dst, src1, src2, operandTypes(unknownType, g.resultTypeOf(right)))
}

/* }}} */

/* constants {{{ */

// emitConstDecl initializes one const binding.
func (g *Generator) emitConstDecl(d ast.VarDeclarator) *Register {
	res := g.resolveConstDecl(d.Name)
	if reg := local(res); reg != nil {
		if d.Init == nil {
			return reg
		}
		return g.emitNode(reg, d.Init)
	}

	var value *Register
	if d.Init != nil {
		value = g.emitNode(nil, d.Init)
	} else {
		value = g.emitLoad(nil, UndefinedValue())
	}
	value.retain()
	defer value.release()

	switch g.kind {
	case KindProgram:
		return g.emitInitGlobalConst(d.Name, value)
	case KindEval:
		base := g.emitResolveBase(g.newTemporary(), d.Name).retain()
		defer base.release()
		return g.emitPutByID(base, d.Name, value)
	}
	g.logger.Debug("const without a register binding", zap.String("name", d.Name))
	return value
}

/* }}} */
