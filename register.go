package bytecomp

import "fmt"

// Register is a handle to one virtual register of the frame being compiled.
// Callee registers have non-negative indices, parameters and this sit at
// negative indices and constants start at FirstConstantRegisterIndex.
//
// Holders of a register that must survive the allocation of further
// temporaries retain it and release it when done.
type Register struct {
	index     int
	refCount  int
	temporary bool
}

func (r *Register) Index() int        { return r.index }
func (r *Register) IsTemporary() bool { return r.temporary }
func (r *Register) RefCount() int     { return r.refCount }

func (r *Register) isConstant() bool { return r.index >= FirstConstantRegisterIndex }

func (r *Register) retain() *Register {
	if r != nil {
		r.refCount++
	}
	return r
}

func (r *Register) release() {
	if r == nil {
		return
	}
	if r.refCount <= 0 {
		raiseInternalError("release of unreferenced register %s", r)
	}
	r.refCount--
}

func (r *Register) String() string {
	if r == nil {
		return "<nil>"
	}
	return fmt.Sprintf("r%d", r.index)
}

/* register pool {{{ */

// newRegister appends a callee register and grows the frame if needed.
func (g *Generator) newRegister(temporary bool) *Register {
	r := &Register{index: len(g.calleeRegisters), temporary: temporary}
	g.calleeRegisters = append(g.calleeRegisters, r)
	if len(g.calleeRegisters) > g.frameSize {
		g.frameSize = len(g.calleeRegisters)
	}
	return r
}

// reclaimFreeRegisters drops unreferenced temporaries from the top of the
// register stack. Named locals are never reclaimed.
func (g *Generator) reclaimFreeRegisters() {
	for n := len(g.calleeRegisters); n > 0; n-- {
		last := g.calleeRegisters[n-1]
		if !last.temporary || last.refCount > 0 {
			break
		}
		g.calleeRegisters = g.calleeRegisters[:n-1]
	}
}

func (g *Generator) newTemporary() *Register {
	g.reclaimFreeRegisters()
	return g.newRegister(true)
}

// addAnonymousVar reserves a named, never reclaimed register without a
// symbol table entry.
func (g *Generator) addAnonymousVar() *Register {
	g.reclaimFreeRegisters()
	if n := len(g.calleeRegisters); n > 0 && g.calleeRegisters[n-1].temporary {
		raiseInternalError("local allocated above a live temporary")
	}
	g.numVars++
	return g.newRegister(false)
}

// addVar returns the register bound to name, allocating one and recording
// it in the symbol table when the name is new. The boolean is true when a
// register was allocated.
func (g *Generator) addVar(name string, isConst bool) (*Register, bool) {
	if entry, ok := g.symbolTable[name]; ok {
		return g.registerFor(entry.Index), false
	}
	r := g.addAnonymousVar()
	g.symbolTable[name] = SymbolEntry{Index: r.index, ReadOnly: isConst}
	return r, true
}

// addParameter binds a parameter name. Parameters overwrite var entries but
// not function declarations.
func (g *Generator) addParameter(name string, index int) {
	if !g.functions[name] {
		g.symbolTable[name] = SymbolEntry{Index: index}
	}
}

func (g *Generator) registerFor(index int) *Register {
	switch {
	case index >= FirstConstantRegisterIndex:
		return g.constantRegisters[index-FirstConstantRegisterIndex]
	case index >= 0:
		return g.calleeRegisters[index]
	case index == g.thisRegister.index:
		return g.thisRegister
	}
	i := index - g.thisRegister.index - 1
	if i < 0 || i >= len(g.parameters) {
		raiseInternalError("register index %d out of range", index)
	}
	return g.parameters[i]
}

func (g *Generator) ignoredResult() *Register { return g.ignored }

func (g *Generator) tempDestination(dst *Register) *Register {
	if dst != nil && dst != g.ignored && dst.temporary {
		return dst
	}
	return g.newTemporary()
}

func (g *Generator) finalDestination(originalDst, tempDst *Register) *Register {
	if originalDst != nil && originalDst != g.ignored {
		return originalDst
	}
	if tempDst != nil && tempDst.temporary {
		return tempDst
	}
	return g.newTemporary()
}

func (g *Generator) finalDestinationOrIgnored(originalDst, tempDst *Register) *Register {
	if originalDst != nil {
		return originalDst
	}
	if tempDst != nil && tempDst.temporary {
		return tempDst
	}
	return g.newTemporary()
}

// destinationForAssignResult returns where an assignment should leave its
// result, or nil when the value may go straight to the target.
func (g *Generator) destinationForAssignResult(dst *Register) *Register {
	if dst != nil && dst != g.ignored && g.needsFullScopeChain {
		if dst.temporary {
			return dst
		}
		return g.newTemporary()
	}
	return nil
}

func (g *Generator) moveToDestinationIfNeeded(dst, src *Register) *Register {
	if dst == g.ignored {
		return nil
	}
	if dst != nil && dst != src {
		return g.emitMove(dst, src)
	}
	return src
}

/* }}} */
