package bytecomp

// SymbolEntry is a symbol table slot: the register index a name is bound to
// and whether it was declared const.
type SymbolEntry struct {
	Index    int
	ReadOnly bool
}

type StaticScopeKind int

const (
	// ScopeActivation is the materialized variable object of an enclosing
	// function.
	ScopeActivation StaticScopeKind = iota
	// ScopeDynamic is a with or catch scope whose contents are unknown
	// until runtime.
	ScopeDynamic
	// ScopeGlobal is the global object. Names found there are still
	// resolved at runtime.
	ScopeGlobal
)

func (k StaticScopeKind) String() string {
	switch k {
	case ScopeActivation:
		return "activation"
	case ScopeDynamic:
		return "dynamic"
	default:
		return "global"
	}
}

// StaticScope is one entry of the compile-time model of the runtime scope
// chain, innermost first.
type StaticScope struct {
	Kind    StaticScopeKind
	Symbols map[string]SymbolEntry
	// UsesEval marks an activation whose function calls eval, so names may
	// be added to it at runtime.
	UsesEval bool
}

// GlobalScopeChain is the scope chain of top-level program code.
func GlobalScopeChain() []StaticScope {
	return []StaticScope{{Kind: ScopeGlobal}}
}

// ResolveResult is how a name reference is compiled.
type ResolveResult interface {
	resolveResult()
}

// RegisterResult is a name living in a register of the current frame.
type RegisterResult struct{ Reg *Register }

// ReadOnlyRegisterResult is a const or this in a register of the current frame.
type ReadOnlyRegisterResult struct{ Reg *Register }

// LexicalResult is a name in an enclosing activation Depth scopes out.
type LexicalResult struct{ Index, Depth int }

// ReadOnlyLexicalResult is a const in an enclosing activation.
type ReadOnlyLexicalResult struct{ Index, Depth int }

// DynamicResult is a name looked up by the runtime.
type DynamicResult struct{}

func (RegisterResult) resolveResult()         {}
func (ReadOnlyRegisterResult) resolveResult() {}
func (LexicalResult) resolveResult()          {}
func (ReadOnlyLexicalResult) resolveResult()  {}
func (DynamicResult) resolveResult()          {}

// local returns the register of a register result, or nil.
func local(res ResolveResult) *Register {
	switch r := res.(type) {
	case RegisterResult:
		return r.Reg
	case ReadOnlyRegisterResult:
		return r.Reg
	}
	return nil
}

func isStatic(res ResolveResult) bool {
	_, dynamic := res.(DynamicResult)
	return !dynamic
}

func lexical(res ResolveResult) (index, depth int, ok bool) {
	switch r := res.(type) {
	case LexicalResult:
		return r.Index, r.Depth, true
	case ReadOnlyLexicalResult:
		return r.Index, r.Depth, true
	}
	return 0, 0, false
}

/* scope resolution {{{ */

func (g *Generator) shouldOptimizeLocals() bool {
	return g.dynamicScopeDepth == 0 && g.kind.isFunction()
}

func (g *Generator) canOptimizeNonLocals() bool {
	if g.dynamicScopeDepth > 0 || g.kind == KindEval {
		return false
	}
	return !(g.kind.isFunction() && g.usesEval)
}

func (g *Generator) resolve(name string) ResolveResult {
	if name == "this" {
		return ReadOnlyRegisterResult{Reg: g.thisRegister}
	}

	if g.kind.isFunction() && g.shouldOptimizeLocals() {
		if entry, ok := g.symbolTable[name]; ok {
			if name == "arguments" {
				g.createArgumentsIfNecessary()
			}
			reg := g.createLazyRegisterIfNecessary(g.registerFor(entry.Index))
			if entry.ReadOnly {
				return ReadOnlyRegisterResult{Reg: reg}
			}
			return RegisterResult{Reg: reg}
		}
	}

	if name == "arguments" || !g.canOptimizeNonLocals() {
		return DynamicResult{}
	}
	if len(g.scopeChain) == 0 || !g.kind.isFunction() || g.opts.EmitDebugHooks {
		return DynamicResult{}
	}

	depth := 0
	if g.needsFullScopeChain {
		depth = 1
	}
	for i, scope := range g.scopeChain {
		if scope.Kind == ScopeDynamic {
			return DynamicResult{}
		}
		if entry, ok := scope.Symbols[name]; ok {
			if scope.Kind == ScopeGlobal || i == len(g.scopeChain)-1 {
				return DynamicResult{}
			}
			if entry.ReadOnly {
				return ReadOnlyLexicalResult{Index: entry.Index, Depth: depth}
			}
			return LexicalResult{Index: entry.Index, Depth: depth}
		}
		if scope.UsesEval {
			break
		}
		depth++
	}
	return DynamicResult{}
}

// resolveConstDecl resolves the target of a const initializer. Unlike
// resolve it never treats the binding as read-only.
func (g *Generator) resolveConstDecl(name string) ResolveResult {
	if g.kind.isFunction() {
		if entry, ok := g.symbolTable[name]; ok {
			return RegisterResult{Reg: g.registerFor(entry.Index)}
		}
	}
	return DynamicResult{}
}

// isReadOnly reports whether a write through res must throw. Dynamic writes
// to a program-level const are caught here as long as no with or catch
// scope could shadow the const.
func (g *Generator) isReadOnly(res ResolveResult, name string) bool {
	switch res.(type) {
	case ReadOnlyRegisterResult, ReadOnlyLexicalResult:
		return true
	case DynamicResult:
		return g.isProgramConst(name)
	}
	return false
}

func (g *Generator) isProgramConst(name string) bool {
	if g.dynamicScopeDepth > 0 {
		return false
	}
	switch g.kind {
	case KindProgram:
		return g.programConsts[name]
	case KindEval:
		return false
	}
	if g.usesEval {
		return false
	}
	for _, scope := range g.scopeChain {
		if scope.Kind == ScopeDynamic {
			return false
		}
		if entry, ok := scope.Symbols[name]; ok {
			return scope.Kind == ScopeGlobal && entry.ReadOnly
		}
		if scope.UsesEval {
			return false
		}
	}
	return false
}

func (g *Generator) isLocal(name string) bool {
	if name == "this" {
		return true
	}
	_, ok := g.symbolTable[name]
	return ok && g.shouldOptimizeLocals()
}

func (g *Generator) isLocalConstant(name string) bool {
	entry, ok := g.symbolTable[name]
	return ok && entry.ReadOnly
}

// isArgumentNumber reports whether name is bound to parameter argumentNumber
// (zero based).
func (g *Generator) isArgumentNumber(name string, argumentNumber int) bool {
	res := g.resolve(name)
	reg := local(res)
	if reg == nil {
		return false
	}
	return reg.index == g.thisRegister.index+1+argumentNumber
}

func (g *Generator) willResolveToArguments(name string) bool {
	if name != "arguments" || !g.shouldOptimizeLocals() {
		return false
	}
	entry, ok := g.symbolTable[name]
	return ok && g.argumentsRegister != nil && entry.Index == g.argumentsRegister.index
}

/* }}} */
