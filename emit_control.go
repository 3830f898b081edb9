package bytecomp

import "github.com/tos-network/bytecomp/js/ast"

/* jumps {{{ */

var fusedJumpIfTrue = map[OpcodeID]OpcodeID{
	OpLess:      OpJLess,
	OpLessEq:    OpJLessEq,
	OpGreater:   OpJGreater,
	OpGreaterEq: OpJGreaterEq,
}

var fusedJumpIfFalse = map[OpcodeID]OpcodeID{
	OpLess:      OpJNLess,
	OpLessEq:    OpJNLessEq,
	OpGreater:   OpJNGreater,
	OpGreaterEq: OpJNGreaterEq,
}

func (g *Generator) emitJump(target *Label) *Label {
	begin := g.emitOpcode(OpJmp)
	g.emitJumpOperand(target, begin)
	return target
}

func (g *Generator) emitLoopHint() {
	g.emitOpcode(OpLoopHint)
}

func (g *Generator) emitCompareJump(op OpcodeID, src1, src2 int, target *Label) {
	begin := g.emitOpcode(op)
	g.emitImm(src1)
	g.emitImm(src2)
	g.emitJumpOperand(target, begin)
}

func (g *Generator) emitConditionJump(op OpcodeID, cond *Register, target *Label) {
	begin := g.emitOpcode(op)
	g.emitReg(cond)
	g.emitJumpOperand(target, begin)
}

// operandRegister returns the register behind an operand of the last
// instruction. A temporary that has already been dropped from the pool is
// returned as a plain handle, which is never fused again.
func (g *Generator) operandRegister(index int) *Register {
	if index >= len(g.calleeRegisters) && index < FirstConstantRegisterIndex {
		return &Register{index: index}
	}
	return g.registerFor(index)
}

func (g *Generator) emitJumpIfTrue(cond *Register, target *Label) *Label {
	switch last := g.code.Last(); last {
	case OpLess, OpLessEq, OpGreater, OpGreaterEq:
		dst, src1, src2 := g.retrieveLastBinaryOp()
		if g.canFuse(cond, dst) {
			g.rewindLast()
			g.emitCompareJump(fusedJumpIfTrue[last], src1, src2, target)
			return target
		}
	case OpEqNull, OpNeqNull:
		dst, src := g.retrieveLastUnaryOp()
		if g.canFuse(cond, dst) && target.IsForward() {
			g.rewindLast()
			op := OpJEqNull
			if last == OpNeqNull {
				op = OpJNeqNull
			}
			g.emitConditionJump(op, g.operandRegister(src), target)
			return target
		}
	case OpNot:
		dst, src := g.retrieveLastUnaryOp()
		if g.canFuse(cond, dst) {
			g.rewindLast()
			return g.emitJumpIfFalse(g.operandRegister(src), target)
		}
	}
	g.emitConditionJump(OpJTrue, cond, target)
	return target
}

// emitJumpIfFalse fuses only into forward jumps for the compare forms,
// since the negated compares are not loop back edges.
func (g *Generator) emitJumpIfFalse(cond *Register, target *Label) *Label {
	switch last := g.code.Last(); last {
	case OpLess, OpLessEq, OpGreater, OpGreaterEq:
		dst, src1, src2 := g.retrieveLastBinaryOp()
		if g.canFuse(cond, dst) && target.IsForward() {
			g.rewindLast()
			g.emitCompareJump(fusedJumpIfFalse[last], src1, src2, target)
			return target
		}
	case OpNot:
		dst, src := g.retrieveLastUnaryOp()
		if g.canFuse(cond, dst) {
			g.rewindLast()
			return g.emitJumpIfTrue(g.operandRegister(src), target)
		}
	case OpEqNull, OpNeqNull:
		dst, src := g.retrieveLastUnaryOp()
		if g.canFuse(cond, dst) && target.IsForward() {
			g.rewindLast()
			op := OpJNeqNull
			if last == OpNeqNull {
				op = OpJEqNull
			}
			g.emitConditionJump(op, g.operandRegister(src), target)
			return target
		}
	}
	g.emitConditionJump(OpJFalse, cond, target)
	return target
}

/* }}} */

/* scopes {{{ */

func (g *Generator) emitPushWithScope(scope *Register) {
	g.pushScopeContext()
	g.emitOpcode(OpPushWithScope)
	g.emitReg(scope)
}

func (g *Generator) emitPushNameScope(name string, value *Register, attributes int) {
	g.pushScopeContext()
	g.emitOpcode(OpPushNameScope)
	g.emitIdentifier(name)
	g.emitReg(value)
	g.emitImm(attributes)
}

func (g *Generator) emitPopScope() {
	g.emitOpcode(OpPopScope)
	g.popScopeContext()
}

// emitPopScopes leaves every runtime scope above targetScopeDepth, running
// the finally blocks in the way.
func (g *Generator) emitPopScopes(targetScopeDepth int) {
	delta := g.scopeDepth() - targetScopeDepth
	if delta < 0 || delta > len(g.scopeContextStack) {
		raiseInternalError("pop to scope depth %d from %d", targetScopeDepth, g.scopeDepth())
	}
	if delta == 0 {
		return
	}
	if g.finallyDepth == 0 {
		for ; delta > 0; delta-- {
			g.emitOpcode(OpPopScope)
		}
		return
	}
	top := len(g.scopeContextStack) - 1
	g.emitComplexPopScopes(top, top-delta)
}

// emitComplexPopScopes unwinds the contexts in (bottom, top]. bottom may
// be -1.
func (g *Generator) emitComplexPopScopes(top, bottom int) {
	for top > bottom {
		normal := 0
		for top > bottom && !g.scopeContextStack[top].isFinallyBlock {
			normal++
			top--
		}
		for ; normal > 0; normal-- {
			g.emitOpcode(OpPopScope)
		}
		if top == bottom {
			return
		}

		for top > bottom && g.scopeContextStack[top].isFinallyBlock {
			beforeFinally := g.emitLabel(g.newLabel())
			fc := g.scopeContextStack[top].finally

			flipScopes := fc.scopeContextStackSize != len(g.scopeContextStack)
			flipSwitches := fc.switchContextStackSize != len(g.switchContextStack)
			flipForIns := fc.forInContextStackSize != len(g.forInContextStack)
			flipTries := fc.tryContextStackSize != len(g.tryContextStack)
			flipLabelScopes := fc.labelScopesSize != len(g.labelScopes)

			var (
				savedScopes      []ControlFlowContext
				savedSwitches    []switchInfo
				savedForIns      []forInContext
				savedLabelScopes []*LabelScope
				poppedTries      []tryContext
			)
			if flipScopes {
				savedScopes = append([]ControlFlowContext(nil), g.scopeContextStack...)
				g.scopeContextStack = g.scopeContextStack[:fc.scopeContextStackSize]
			}
			if flipSwitches {
				savedSwitches = append([]switchInfo(nil), g.switchContextStack...)
				g.switchContextStack = g.switchContextStack[:fc.switchContextStackSize]
			}
			if flipForIns {
				savedForIns = append([]forInContext(nil), g.forInContextStack...)
				g.forInContextStack = g.forInContextStack[:fc.forInContextStackSize]
			}
			if flipTries {
				for len(g.tryContextStack) > fc.tryContextStackSize {
					n := len(g.tryContextStack)
					ctx := g.tryContextStack[n-1]
					g.tryContextStack = g.tryContextStack[:n-1]
					g.tryRanges = append(g.tryRanges, tryRange{start: ctx.start, end: beforeFinally, tryData: ctx.tryData})
					poppedTries = append(poppedTries, ctx)
				}
			}
			if flipLabelScopes {
				savedLabelScopes = append([]*LabelScope(nil), g.labelScopes...)
				g.labelScopes = g.labelScopes[:fc.labelScopesSize]
			}
			savedFinallyDepth, savedDynamicScopeDepth := g.finallyDepth, g.dynamicScopeDepth
			g.finallyDepth = fc.finallyDepth
			g.dynamicScopeDepth = fc.dynamicScopeDepth

			g.emitNode(nil, fc.finallyBlock)

			afterFinally := g.emitLabel(g.newLabel())

			if flipScopes {
				g.scopeContextStack = savedScopes
			}
			if flipSwitches {
				g.switchContextStack = savedSwitches
			}
			if flipForIns {
				g.forInContextStack = savedForIns
			}
			if flipTries {
				if len(g.tryContextStack) != fc.tryContextStackSize {
					raiseInternalError("try stack changed while emitting a finally block")
				}
				for i := len(poppedTries) - 1; i >= 0; i-- {
					ctx := poppedTries[i]
					ctx.start = afterFinally
					g.tryContextStack = append(g.tryContextStack, ctx)
				}
			}
			if flipLabelScopes {
				g.labelScopes = savedLabelScopes
			}
			g.finallyDepth = savedFinallyDepth
			g.dynamicScopeDepth = savedDynamicScopeDepth

			top--
		}
	}
}

/* }}} */

/* exceptions {{{ */

// popTryAndEmitCatch closes the innermost try at end and starts its
// handler with a catch into dst.
func (g *Generator) popTryAndEmitCatch(data *TryData, dst *Register, end *Label) *Register {
	if popped := g.popTry(end); popped != data {
		raiseInternalError("try stack out of order")
	}
	g.emitLabel(data.target)
	data.targetScopeDepth = g.dynamicScopeDepth
	g.emitOpcode(OpCatch)
	g.emitDst(dst)
	return dst
}

func (g *Generator) emitThrow(exc *Register) {
	g.emitOpcode(OpThrow)
	g.emitReg(exc)
}

/* }}} */

/* switch {{{ */

var switchOpcodes = [...]OpcodeID{
	SwitchImmediate: OpSwitchImm,
	SwitchCharacter: OpSwitchChar,
	SwitchString:    OpSwitchString,
}

// beginSwitch reserves the table and default operands; endSwitch fills them
// in once every clause label is bound.
func (g *Generator) beginSwitch(scrutinee *Register, kind SwitchKind) {
	begin := g.emitOpcode(switchOpcodes[kind])
	g.emitImm(0)
	g.emitImm(0)
	g.emitReg(scrutinee)
	g.switchContextStack = append(g.switchContextStack, switchInfo{bytecodeOffset: begin, kind: kind})
}

func boundOffset(l *Label, from int) int32 {
	if l.IsForward() {
		raiseInternalError("switch target not bound")
	}
	return int32(l.Location() - from)
}

// endSwitch builds the jump table of the innermost switch. Keys are the
// clause values in source order; the first clause with a given key wins.
func (g *Generator) endSwitch(labels []*Label, keys []Value, defaultLabel *Label, min, max int32) {
	n := len(g.switchContextStack)
	if n == 0 {
		raiseInternalError("end of a switch that was never begun")
	}
	info := g.switchContextStack[n-1]
	g.switchContextStack = g.switchContextStack[:n-1]
	off := info.bytecodeOffset
	words := g.code.words
	words[off+2] = boundOffset(defaultLabel, off)

	switch info.kind {
	case SwitchImmediate, SwitchCharacter:
		table := SimpleJumpTable{Min: min, Offsets: make([]int32, int(max-min)+1)}
		for i, k := range keys {
			var v int32
			if info.kind == SwitchImmediate {
				v = int32(k.Number)
			} else {
				v = int32(firstCodeUnit(k.Str))
			}
			if slot := &table.Offsets[v-min]; *slot == 0 {
				*slot = boundOffset(labels[i], off)
			}
		}
		if info.kind == SwitchImmediate {
			words[off+1] = int32(len(g.immediateSwitchTables))
			g.immediateSwitchTables = append(g.immediateSwitchTables, table)
		} else {
			words[off+1] = int32(len(g.characterSwitchTables))
			g.characterSwitchTables = append(g.characterSwitchTables, table)
		}
	case SwitchString:
		table := StringJumpTable{Offsets: make(map[string]int32, len(keys))}
		for i, k := range keys {
			if _, ok := table.Offsets[k.Str]; !ok {
				table.Offsets[k.Str] = boundOffset(labels[i], off)
			}
		}
		words[off+1] = int32(len(g.stringSwitchTables))
		g.stringSwitchTables = append(g.stringSwitchTables, table)
	}
}

// firstCodeUnit returns the UTF-16 code unit of a one character string.
func firstCodeUnit(s string) rune {
	for _, r := range s {
		return r
	}
	return 0
}

/* }}} */

/* for-in {{{ */

func (g *Generator) emitGetPropertyNames(dst, base, index, size *Register, breakTarget *Label) *Register {
	begin := g.emitOpcode(OpGetPNames)
	g.emitDst(dst)
	g.emitReg(base)
	g.emitDst(index)
	g.emitDst(size)
	g.emitJumpOperand(breakTarget, begin)
	return dst
}

func (g *Generator) emitNextPropertyName(dst, base, index, size, iter *Register, target *Label) *Register {
	begin := g.emitOpcode(OpNextPName)
	g.emitDst(dst)
	g.emitReg(base)
	g.emitReg(index)
	g.emitReg(size)
	g.emitReg(iter)
	g.emitJumpOperand(target, begin)
	return dst
}

/* }}} */

func (g *Generator) emitDebugHook(id DebugHookID, firstLine, lastLine, column int) {
	if !g.opts.EmitDebugHooks {
		return
	}
	g.emitExpressionInfo(ast.Loc{Line: firstLine, Column: column})
	g.emitOpcode(OpDebug)
	g.emitImm(int(id))
	g.emitImm(firstLine)
	g.emitImm(lastLine)
	g.emitImm(column)
}
