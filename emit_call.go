package bytecomp

import "github.com/tos-network/bytecomp/js/ast"

// callArguments owns the contiguous registers a call passes to the callee:
// this followed by one register per argument. The registers stay retained
// until release.
type callArguments struct {
	args        []ast.Expr
	argv        []*Register
	profileHook *Register
}

func (g *Generator) newCallArguments(args []ast.Expr) *callArguments {
	ca := &callArguments{args: args}
	if g.opts.EmitProfileHooks {
		ca.profileHook = g.newTemporary().retain()
	}
	for i := 0; i <= len(args); i++ {
		r := g.newTemporary().retain()
		if i > 0 && r.index != ca.argv[i-1].index+1 {
			raiseInternalError("call arguments not in consecutive registers")
		}
		ca.argv = append(ca.argv, r)
	}
	return ca
}

func (ca *callArguments) thisRegister() *Register { return ca.argv[0] }

func (ca *callArguments) argumentRegister(i int) *Register { return ca.argv[i+1] }

func (ca *callArguments) argumentCountIncludingThis() int { return len(ca.argv) }

// registerOffset is where the callee frame starts, just past the header
// that follows the last argument.
func (ca *callArguments) registerOffset() int {
	return ca.argv[0].index + len(ca.argv) + CallFrameHeaderSize
}

func (ca *callArguments) release() {
	for _, r := range ca.argv {
		r.release()
	}
	ca.profileHook.release()
}

/* calls {{{ */

func (g *Generator) reserveCallFrame() []*Register {
	frame := make([]*Register, CallFrameHeaderSize)
	for i := range frame {
		frame[i] = g.newTemporary().retain()
	}
	return frame
}

func releaseAll(regs []*Register) {
	for _, r := range regs {
		r.release()
	}
}

func (g *Generator) emitProfileHook(op OpcodeID, args *callArguments) {
	if args.profileHook == nil {
		return
	}
	g.emitOpcode(op)
	g.emitReg(args.profileHook)
}

func (g *Generator) emitArguments(args *callArguments) {
	for i, e := range args.args {
		g.emitNode(args.argumentRegister(i), e)
	}
}

func (g *Generator) emitCallInstruction(op OpcodeID, dst, fn *Register, args *callArguments) {
	g.emitOpcode(op)
	g.emitReg(fn)
	g.emitImm(args.argumentCountIncludingThis())
	g.emitImm(args.registerOffset())
	if dst != g.ignored {
		g.emitOpcode(OpCallPutResult)
		g.emitDst(dst)
	}
}

// emitCall emits call or call_eval. The this register of args must already
// hold the receiver.
func (g *Generator) emitCall(op OpcodeID, dst, fn *Register, args *callArguments, loc ast.Loc) *Register {
	fn.retain()
	defer fn.release()
	if args.profileHook != nil {
		g.emitMove(args.profileHook, fn)
	}
	g.emitArguments(args)

	frame := g.reserveCallFrame()
	defer releaseAll(frame)

	g.emitProfileHook(OpProfileWillCall, args)
	g.emitExpressionInfo(loc)
	g.emitCallInstruction(op, dst, fn, args)
	g.emitProfileHook(OpProfileDidCall, args)
	return dst
}

func (g *Generator) emitConstruct(dst, fn *Register, args *callArguments, loc ast.Loc) *Register {
	fn.retain()
	defer fn.release()
	if args.profileHook != nil {
		g.emitMove(args.profileHook, fn)
	}
	g.emitArguments(args)
	g.emitProfileHook(OpProfileWillCall, args)

	frame := g.reserveCallFrame()
	defer releaseAll(frame)

	g.emitExpressionInfo(loc)
	g.emitCallInstruction(OpConstruct, dst, fn, args)
	g.emitProfileHook(OpProfileDidCall, args)
	return dst
}

/* }}} */

/* functions {{{ */

func (g *Generator) emitNewFunction(dst *Register, lit *ast.FunctionLiteral) *Register {
	return g.emitNewFunctionInternal(dst, g.addFunctionDecl(lit), false)
}

// emitLazyNewFunction creates a lazily declared function the first time
// its register is read. The null check makes repeated emission harmless.
func (g *Generator) emitLazyNewFunction(dst *Register, lit *ast.FunctionLiteral) *Register {
	return g.emitNewFunctionInternal(dst, g.addFunctionDecl(lit), true)
}

func (g *Generator) emitNewFunctionInternal(dst *Register, index int, doNullCheck bool) *Register {
	g.createActivationIfNecessary()
	g.emitOpcode(OpNewFunc)
	g.emitDst(dst)
	g.emitImm(index)
	g.emitBool(doNullCheck)
	return dst
}

func (g *Generator) emitNewFunctionExpression(dst *Register, lit *ast.FunctionLiteral) *Register {
	index := g.addFunctionExpr(lit)
	g.createActivationIfNecessary()
	g.emitOpcode(OpNewFuncExp)
	g.emitDst(dst)
	g.emitImm(index)
	return dst
}

func (g *Generator) createActivationIfNecessary() {
	if g.hasCreatedActivation || !g.needsFullScopeChain || g.activationRegister == nil {
		return
	}
	g.emitOpcode(OpCreateActivation)
	g.emitReg(g.activationRegister)
}

// createArgumentsIfNecessary materializes the arguments object before the
// first read through a register. Strict code creates it on entry.
func (g *Generator) createArgumentsIfNecessary() {
	if !g.kind.isFunction() || !g.usesArguments || g.strict || g.argumentsRegister == nil {
		return
	}
	g.emitOpcode(OpCreateArguments)
	g.emitReg(g.argumentsRegister)
}

func (g *Generator) createLazyRegisterIfNecessary(r *Register) *Register {
	if r.index < g.firstLazyFunction || r.index >= g.lastLazyFunction {
		return r
	}
	lit, ok := g.lazyFunctions[r.index]
	if !ok {
		return r
	}
	return g.emitLazyNewFunction(r, lit)
}

/* }}} */

/* return {{{ */

func (g *Generator) emitReturn(src *Register) *Register {
	if g.activationRegister != nil {
		g.emitOpcode(OpTearOffActivation)
		g.emitReg(g.activationRegister)
	}
	if g.usesArguments && len(g.parameters) > 0 && !g.strict && g.argumentsRegister != nil {
		g.emitOpcode(OpTearOffArguments)
		g.emitReg(g.argumentsRegister)
		if g.activationRegister != nil {
			g.emitReg(g.activationRegister)
		} else {
			g.emitReg(g.emitLoad(nil, EmptyValue()))
		}
	}
	if g.isConstructor() && src.index != g.thisRegister.index {
		g.emitOpcode(OpRetObjectOrThis)
		g.emitReg(src)
		g.emitReg(g.thisRegister)
		return src
	}
	g.emitOpcode(OpRet)
	g.emitReg(src)
	return src
}

func (g *Generator) emitEnd(src *Register) *Register {
	g.emitOpcode(OpEnd)
	g.emitReg(src)
	return src
}

/* }}} */
