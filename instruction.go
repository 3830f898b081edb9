package bytecomp

// instructionStream is the flat instruction buffer of one body together
// with a two-entry window over the most recent instructions. The window is
// what the peephole optimizer looks at; it is cleared whenever a label is
// bound so nothing that may be a jump target is ever rewritten.
type instructionStream struct {
	words []int32

	lastOp  OpcodeID
	lastPos int
	prevOp  OpcodeID
	prevPos int
}

func newInstructionStream() *instructionStream {
	cs := &instructionStream{}
	cs.resetPeephole()
	return cs
}

func (cs *instructionStream) Len() int { return len(cs.words) }

func (cs *instructionStream) beginInstruction(op OpcodeID) int {
	pos := len(cs.words)
	cs.prevOp, cs.prevPos = cs.lastOp, cs.lastPos
	cs.lastOp, cs.lastPos = op, pos
	cs.words = append(cs.words, int32(op))
	return pos
}

func (cs *instructionStream) append(w int32) {
	cs.words = append(cs.words, w)
}

func (cs *instructionStream) resetPeephole() {
	cs.lastOp, cs.lastPos = opNone, -1
	cs.prevOp, cs.prevPos = opNone, -1
}

func (cs *instructionStream) Last() OpcodeID { return cs.lastOp }

// operand returns operand i (zero based) of the last instruction.
func (cs *instructionStream) operand(i int) int {
	return int(cs.words[cs.lastPos+1+i])
}

// Rewind drops the last instruction. The window slides back to the one
// before it.
func (cs *instructionStream) Rewind() {
	if cs.lastOp == opNone {
		raiseInternalError("peephole rewind with no candidate instruction")
	}
	cs.words = cs.words[:cs.lastPos]
	cs.lastOp, cs.lastPos = cs.prevOp, cs.prevPos
	cs.prevOp, cs.prevPos = opNone, -1
}

/* peephole {{{ */

func (g *Generator) retrieveLastBinaryOp() (dst, src1, src2 int) {
	return g.code.operand(0), g.code.operand(1), g.code.operand(2)
}

func (g *Generator) retrieveLastUnaryOp() (dst, src int) {
	return g.code.operand(0), g.code.operand(1)
}

// canFuse reports whether cond is the dead temporary produced by the last
// instruction.
func (g *Generator) canFuse(cond *Register, dstIndex int) bool {
	return cond.index == dstIndex && cond.temporary && cond.refCount == 0
}

/* }}} */
