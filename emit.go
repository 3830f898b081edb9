package bytecomp

import (
	"strings"

	"github.com/dlclark/regexp2"

	"github.com/tos-network/bytecomp/js/ast"
)

/* operands {{{ */

func (g *Generator) emitOpcode(op OpcodeID) int {
	return g.code.beginInstruction(op)
}

// emitReg appends a register operand.
func (g *Generator) emitReg(r *Register) {
	if r == nil || r == g.ignored {
		raiseInternalError("%s used as an operand of %s", r, g.code.Last())
	}
	g.code.append(int32(r.index))
}

// emitDst appends a destination register operand. Whatever object the
// register referred to is no longer tracked by the property analyzer.
func (g *Generator) emitDst(r *Register) {
	g.emitReg(r)
	g.analyzer.kill(r.index)
}

func (g *Generator) emitImm(v int) { g.code.append(int32(v)) }

func (g *Generator) emitBool(b bool) {
	if b {
		g.code.append(1)
	} else {
		g.code.append(0)
	}
}

func (g *Generator) emitIdentifier(name string) {
	g.code.append(int32(g.addIdentifier(name)))
}

// emitJumpOperand appends the offset of target relative to the instruction
// that starts at begin.
func (g *Generator) emitJumpOperand(target *Label, begin int) {
	g.code.append(target.bind(begin, g.code.Len()))
}

/* }}} */

/* moves and simple ops {{{ */

func (g *Generator) emitMove(dst, src *Register) *Register {
	g.analyzer.mov(dst.index, src.index)
	g.emitOpcode(OpMov)
	g.emitReg(dst)
	g.emitReg(src)
	return dst
}

func (g *Generator) emitUnaryOp(op OpcodeID, dst, src *Register) *Register {
	g.emitOpcode(op)
	g.emitDst(dst)
	g.emitReg(src)
	return dst
}

func (g *Generator) emitInc(srcDst *Register) *Register {
	g.emitOpcode(OpInc)
	g.emitDst(srcDst)
	return srcDst
}

func (g *Generator) emitDec(srcDst *Register) *Register {
	g.emitOpcode(OpDec)
	g.emitDst(srcDst)
	return srcDst
}

func (g *Generator) emitToPrimitive(dst, src *Register) {
	g.emitOpcode(OpToPrimitive)
	g.emitDst(dst)
	g.emitReg(src)
}

func (g *Generator) emitStrcat(dst, src *Register, count int) *Register {
	g.emitOpcode(OpStrcat)
	g.emitDst(dst)
	g.emitReg(src)
	g.emitImm(count)
	return dst
}

func hasOperandTypes(op OpcodeID) bool {
	switch op {
	case OpAdd, OpMul, OpDiv, OpSub, OpBitAnd, OpBitOr, OpBitXor:
		return true
	}
	return false
}

func (g *Generator) emitBinaryOp(op OpcodeID, dst, src1, src2 *Register, types int32) *Register {
	g.emitOpcode(op)
	g.emitDst(dst)
	g.emitReg(src1)
	g.emitReg(src2)
	if hasOperandTypes(op) {
		g.code.append(types)
	}
	return dst
}

var typeofTests = map[string]OpcodeID{
	"undefined": OpIsUndefined,
	"boolean":   OpIsBoolean,
	"number":    OpIsNumber,
	"string":    OpIsString,
	"object":    OpIsObject,
	"function":  OpIsFunction,
}

// emitEqualityOp emits eq or stricteq. A comparison of a fresh typeof
// result against a type name collapses into the matching is_* test.
func (g *Generator) emitEqualityOp(op OpcodeID, dst, src1, src2 *Register) *Register {
	if g.code.Last() == OpTypeof {
		typeofDst, typeofSrc := g.retrieveLastUnaryOp()
		if src1.index == typeofDst && src1.temporary {
			if v, ok := g.constantValue(src2); ok && v.IsString() {
				if test, ok := typeofTests[v.Str]; ok {
					g.rewindLast()
					g.emitOpcode(test)
					g.emitDst(dst)
					g.emitImm(typeofSrc)
					return dst
				}
			}
		}
	}
	g.emitOpcode(op)
	g.emitDst(dst)
	g.emitReg(src1)
	g.emitReg(src2)
	return dst
}

func (g *Generator) emitInitLazyRegister(r *Register) *Register {
	g.emitOpcode(OpInitLazyReg)
	g.emitDst(r)
	return r
}

func (g *Generator) emitCheckHasInstance(dst, value, base *Register, target *Label) {
	begin := g.emitOpcode(OpCheckHasInstance)
	g.emitDst(dst)
	g.emitReg(value)
	g.emitReg(base)
	g.emitJumpOperand(target, begin)
}

func (g *Generator) emitInstanceOf(dst, value, basePrototype *Register) *Register {
	g.emitOpcode(OpInstanceOf)
	g.emitDst(dst)
	g.emitReg(value)
	g.emitReg(basePrototype)
	return dst
}

/* }}} */

/* name resolution {{{ */

func (g *Generator) emitResolve(dst *Register, res ResolveResult, name string) *Register {
	if isStatic(res) {
		return g.emitGetStaticVar(dst, res)
	}
	g.emitOpcode(OpResolve)
	g.emitDst(dst)
	g.emitIdentifier(name)
	return dst
}

func (g *Generator) emitGetStaticVar(dst *Register, res ResolveResult) *Register {
	if reg := local(res); reg != nil {
		if dst == g.ignored {
			return nil
		}
		return g.moveToDestinationIfNeeded(dst, reg)
	}
	index, depth, ok := lexical(res)
	if !ok {
		raiseInternalError("static read of a dynamic resolution")
	}
	g.emitOpcode(OpGetScopedVar)
	g.emitDst(dst)
	g.emitImm(index)
	g.emitImm(depth)
	return dst
}

func (g *Generator) emitPutStaticVar(res ResolveResult, value *Register) *Register {
	if reg := local(res); reg != nil {
		return g.moveToDestinationIfNeeded(reg, value)
	}
	index, depth, ok := lexical(res)
	if !ok {
		raiseInternalError("static write of a dynamic resolution")
	}
	g.emitOpcode(OpPutScopedVar)
	g.emitImm(index)
	g.emitImm(depth)
	g.emitReg(value)
	return value
}

func (g *Generator) emitResolveBase(dst *Register, name string) *Register {
	g.emitOpcode(OpResolveBase)
	g.emitDst(dst)
	g.emitIdentifier(name)
	g.emitBool(false)
	return dst
}

// emitResolveBaseForPut resolves the object a write to name lands on. In
// strict code a missing binding throws instead of creating a global.
func (g *Generator) emitResolveBaseForPut(dst *Register, name string) *Register {
	g.emitOpcode(OpResolveBase)
	g.emitDst(dst)
	g.emitIdentifier(name)
	g.emitBool(g.strict)
	return dst
}

func (g *Generator) emitResolveWithBase(baseDst, propDst *Register, name string) *Register {
	g.emitOpcode(OpResolveWithBase)
	g.emitDst(baseDst)
	g.emitDst(propDst)
	g.emitIdentifier(name)
	return baseDst
}

func (g *Generator) emitResolveWithThis(baseDst, propDst *Register, res ResolveResult, name string) *Register {
	if isStatic(res) {
		g.emitLoad(baseDst, UndefinedValue())
		g.emitGetStaticVar(propDst, res)
		return baseDst
	}
	g.emitOpcode(OpResolveWithThis)
	g.emitDst(baseDst)
	g.emitDst(propDst)
	g.emitIdentifier(name)
	return baseDst
}

func (g *Generator) emitInitGlobalConst(name string, value *Register) *Register {
	g.emitOpcode(OpInitGlobalConst)
	g.emitIdentifier(name)
	g.emitReg(value)
	return value
}

func (g *Generator) emitPutToBase(base *Register, name string, value *Register) *Register {
	g.emitOpcode(OpPutToBase)
	g.emitReg(base)
	g.emitIdentifier(name)
	g.emitReg(value)
	return value
}

/* }}} */

/* property access {{{ */

func (g *Generator) emitGetByID(dst, base *Register, name string) *Register {
	g.emitOpcode(OpGetByID)
	g.emitDst(dst)
	g.emitReg(base)
	g.emitIdentifier(name)
	return dst
}

func (g *Generator) emitPutByID(base *Register, name string, value *Register) *Register {
	ident := g.addIdentifier(name)
	g.analyzer.putByID(base.index, ident)
	g.emitOpcode(OpPutByID)
	g.emitReg(base)
	g.emitImm(ident)
	g.emitReg(value)
	return value
}

// emitDirectPutByID defines an own property, as an object literal does.
func (g *Generator) emitDirectPutByID(base *Register, name string, value *Register) *Register {
	ident := g.addIdentifier(name)
	g.analyzer.putByID(base.index, ident)
	g.emitOpcode(OpPutByIDDirect)
	g.emitReg(base)
	g.emitImm(ident)
	g.emitReg(value)
	return value
}

func (g *Generator) emitPutGetterSetter(base *Register, name string, getter, setter *Register) {
	ident := g.addIdentifier(name)
	g.analyzer.putByID(base.index, ident)
	g.emitOpcode(OpPutGetterSetter)
	g.emitReg(base)
	g.emitImm(ident)
	g.emitReg(getter)
	g.emitReg(setter)
}

func (g *Generator) emitDeleteByID(dst, base *Register, name string) *Register {
	g.emitOpcode(OpDelByID)
	g.emitDst(dst)
	g.emitReg(base)
	g.emitIdentifier(name)
	return dst
}

// emitGetByVal uses the enumeration cache of an enclosing for-in loop when
// property is that loop's variable.
func (g *Generator) emitGetByVal(dst, base, property *Register) *Register {
	for i := len(g.forInContextStack) - 1; i >= 0; i-- {
		ctx := g.forInContextStack[i]
		if ctx.property == property {
			g.emitOpcode(OpGetByPName)
			g.emitDst(dst)
			g.emitReg(base)
			g.emitReg(property)
			g.emitReg(ctx.expectedSubscript)
			g.emitReg(ctx.iter)
			g.emitReg(ctx.index)
			return dst
		}
	}
	g.emitOpcode(OpGetByVal)
	g.emitDst(dst)
	g.emitReg(base)
	g.emitReg(property)
	return dst
}

func (g *Generator) emitPutByVal(base, property, value *Register) *Register {
	g.emitOpcode(OpPutByVal)
	g.emitReg(base)
	g.emitReg(property)
	g.emitReg(value)
	return value
}

func (g *Generator) emitDeleteByVal(dst, base, property *Register) *Register {
	g.emitOpcode(OpDelByVal)
	g.emitDst(dst)
	g.emitReg(base)
	g.emitReg(property)
	return dst
}

func (g *Generator) emitPutByIndex(base *Register, index int, value *Register) *Register {
	g.emitOpcode(OpPutByIndex)
	g.emitReg(base)
	g.emitImm(index)
	g.emitReg(value)
	return value
}

/* }}} */

/* allocation {{{ */

func (g *Generator) emitCreateThis() {
	callee := g.newTemporary().retain()
	defer callee.release()
	g.emitOpcode(OpGetCallee)
	g.emitDst(callee)

	begin := g.emitOpcode(OpCreateThis)
	g.emitReg(g.thisRegister)
	g.emitReg(callee)
	g.emitImm(0)
	g.analyzer.newObject(g.thisRegister.index, begin+3)
}

func (g *Generator) emitNewObject(dst *Register) *Register {
	begin := g.emitOpcode(OpNewObject)
	g.emitReg(dst)
	g.emitImm(0)
	g.analyzer.newObject(dst.index, begin+2)
	return dst
}

// emitNewArray evaluates the leading elements up to the first elision into
// consecutive temporaries and allocates the array from them.
func (g *Generator) emitNewArray(dst *Register, elements []ast.Expr) *Register {
	var argv []*Register
	for _, e := range elements {
		if e == nil {
			break
		}
		r := g.newTemporary().retain()
		if len(argv) > 0 && r.index != argv[len(argv)-1].index+1 {
			raiseInternalError("array elements not in consecutive registers")
		}
		argv = append(argv, r)
		g.emitNode(r, e)
	}
	g.emitOpcode(OpNewArray)
	g.emitDst(dst)
	if len(argv) > 0 {
		g.emitImm(argv[0].index)
	} else {
		g.emitImm(0)
	}
	g.emitImm(len(argv))
	for _, r := range argv {
		r.release()
	}
	return dst
}

// emitNewRegExp validates the literal at compile time. An invalid pattern
// becomes a guaranteed runtime throw.
func (g *Generator) emitNewRegExp(dst *Register, pattern, flags string) *Register {
	if msg := validateRegExp(pattern, flags); msg != "" {
		g.emitThrowStaticError(msg, false)
		return dst
	}
	g.emitOpcode(OpNewRegExp)
	g.emitDst(dst)
	g.emitImm(g.constants.addRegExp(pattern, flags))
	return dst
}

func validateRegExp(pattern, flags string) string {
	opts := regexp2.RegexOptions(regexp2.ECMAScript)
	seen := map[rune]bool{}
	for _, f := range flags {
		if seen[f] {
			return "Invalid regular expression: duplicate flag " + string(f)
		}
		seen[f] = true
		switch f {
		case 'g':
		case 'i':
			opts |= regexp2.IgnoreCase
		case 'm':
			opts |= regexp2.Multiline
		default:
			return "Invalid regular expression: invalid flags"
		}
	}
	if _, err := regexp2.Compile(pattern, opts); err != nil {
		msg := err.Error()
		if i := strings.LastIndex(msg, ": "); i >= 0 {
			msg = msg[i+2:]
		}
		return "Invalid regular expression: " + msg
	}
	return ""
}

/* }}} */

/* static errors {{{ */

// emitThrowStaticError emits a guaranteed throw. isReference selects a
// ReferenceError over a TypeError.
func (g *Generator) emitThrowStaticError(msg string, isReference bool) {
	k := g.addConstantValue(StringValue(msg))
	g.emitOpcode(OpThrowStaticError)
	g.emitReg(k)
	g.emitBool(isReference)
}

func (g *Generator) emitThrowReferenceError(msg string) {
	g.emitThrowStaticError(msg, true)
}

const readOnlyPropertyWriteError = "Attempted to assign to readonly property."

func (g *Generator) emitReadOnlyExceptionIfNeeded() {
	g.emitThrowStaticError(readOnlyPropertyWriteError, false)
}

/* }}} */
