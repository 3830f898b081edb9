package bytecomp

import "github.com/tos-network/bytecomp/js/ast"

// FinallyContext snapshots the generator state at the point a try with a
// finally block was entered. Non-local exits replay the finally block with
// this state reinstated.
type FinallyContext struct {
	finallyBlock           *ast.BlockStmt
	scopeContextStackSize  int
	switchContextStackSize int
	forInContextStackSize  int
	tryContextStackSize    int
	labelScopesSize        int
	finallyDepth           int
	dynamicScopeDepth      int
}

// ControlFlowContext is either a runtime scope (with, catch) or an open
// finally block.
type ControlFlowContext struct {
	isFinallyBlock bool
	finally        FinallyContext
}

// TryData is shared by every range of one try block; the handler target is
// the same for all of them.
type TryData struct {
	target           *Label
	targetScopeDepth int
}

type tryContext struct {
	start   *Label
	tryData *TryData
}

type tryRange struct {
	start   *Label
	end     *Label
	tryData *TryData
}

// forInContext does not own its registers; the loop that pushed it keeps
// them retained until the context is popped.
type forInContext struct {
	expectedSubscript *Register
	iter              *Register
	index             *Register
	property          *Register
}

type SwitchKind int

const (
	SwitchImmediate SwitchKind = iota
	SwitchCharacter
	SwitchString
)

type switchInfo struct {
	bytecodeOffset int
	kind           SwitchKind
}

const targetScopeDepthUnset = -1

/* context stacks {{{ */

func (g *Generator) scopeDepth() int { return g.dynamicScopeDepth + g.finallyDepth }

func (g *Generator) pushFinallyContext(block *ast.BlockStmt) {
	g.scopeContextStack = append(g.scopeContextStack, ControlFlowContext{
		isFinallyBlock: true,
		finally: FinallyContext{
			finallyBlock:           block,
			scopeContextStackSize:  len(g.scopeContextStack),
			switchContextStackSize: len(g.switchContextStack),
			forInContextStackSize:  len(g.forInContextStack),
			tryContextStackSize:    len(g.tryContextStack),
			labelScopesSize:        len(g.labelScopes),
			finallyDepth:           g.finallyDepth,
			dynamicScopeDepth:      g.dynamicScopeDepth,
		},
	})
	g.finallyDepth++
}

func (g *Generator) popFinallyContext() {
	n := len(g.scopeContextStack)
	if n == 0 || !g.scopeContextStack[n-1].isFinallyBlock || g.finallyDepth == 0 {
		raiseInternalError("pop of a finally context that is not open")
	}
	g.scopeContextStack = g.scopeContextStack[:n-1]
	g.finallyDepth--
}

func (g *Generator) pushScopeContext() {
	g.scopeContextStack = append(g.scopeContextStack, ControlFlowContext{})
	g.dynamicScopeDepth++
}

func (g *Generator) popScopeContext() {
	n := len(g.scopeContextStack)
	if n == 0 || g.scopeContextStack[n-1].isFinallyBlock || g.dynamicScopeDepth == 0 {
		raiseInternalError("pop of a scope context that is not open")
	}
	g.scopeContextStack = g.scopeContextStack[:n-1]
	g.dynamicScopeDepth--
}

func (g *Generator) pushTry(start *Label) *TryData {
	data := &TryData{target: g.newLabel(), targetScopeDepth: targetScopeDepthUnset}
	g.tryData = append(g.tryData, data)
	g.tryContextStack = append(g.tryContextStack, tryContext{start: start, tryData: data})
	return data
}

func (g *Generator) popTry(end *Label) *TryData {
	n := len(g.tryContextStack)
	if n == 0 {
		raiseInternalError("pop of an empty try stack")
	}
	ctx := g.tryContextStack[n-1]
	g.tryContextStack = g.tryContextStack[:n-1]
	g.tryRanges = append(g.tryRanges, tryRange{start: ctx.start, end: end, tryData: ctx.tryData})
	return ctx.tryData
}

func (g *Generator) pushOptimisedForIn(expected, iter, index, property *Register) {
	g.forInContextStack = append(g.forInContextStack, forInContext{
		expectedSubscript: expected,
		iter:              iter,
		index:             index,
		property:          property,
	})
}

func (g *Generator) popOptimisedForIn() {
	n := len(g.forInContextStack)
	if n == 0 {
		raiseInternalError("pop of an empty for-in stack")
	}
	g.forInContextStack = g.forInContextStack[:n-1]
}

// invalidateForInContextForLocal stops using the fast property path for
// every loop whose property variable is reg, because it was assigned to.
func (g *Generator) invalidateForInContextForLocal(reg *Register) {
	for i := range g.forInContextStack {
		ctx := &g.forInContextStack[i]
		if ctx.property != nil && ctx.property.index == reg.index {
			ctx.property = nil
		}
	}
}

func (g *Generator) checkContextStacks() {
	switch {
	case len(g.scopeContextStack) != 0:
		raiseInternalError("%d scope contexts left open", len(g.scopeContextStack))
	case len(g.switchContextStack) != 0:
		raiseInternalError("%d switch contexts left open", len(g.switchContextStack))
	case len(g.forInContextStack) != 0:
		raiseInternalError("%d for-in contexts left open", len(g.forInContextStack))
	case len(g.tryContextStack) != 0:
		raiseInternalError("%d try contexts left open", len(g.tryContextStack))
	case len(g.labelScopes) != 0:
		raiseInternalError("%d label scopes left open", len(g.labelScopes))
	case g.dynamicScopeDepth != 0 || g.finallyDepth != 0:
		raiseInternalError("scope depth not balanced: dynamic=%d finally=%d", g.dynamicScopeDepth, g.finallyDepth)
	}
}

/* }}} */
