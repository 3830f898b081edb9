package bytecomp

// Label is a jump target. Jumps emitted before the label is bound are
// remembered and patched when it is.
type Label struct {
	location   int
	unresolved []jumpRef
}

type jumpRef struct {
	opcode  int
	operand int
}

// IsForward reports whether the label has not been bound yet.
func (l *Label) IsForward() bool { return l.location < 0 }

// Location returns the bound offset, or -1.
func (l *Label) Location() int { return l.location }

// bind returns the jump offset for an operand at operandOffset of the
// instruction starting at opcodeOffset, or records the operand for
// patching and returns 0.
func (l *Label) bind(opcodeOffset, operandOffset int) int32 {
	if l.location >= 0 {
		return int32(l.location - opcodeOffset)
	}
	l.unresolved = append(l.unresolved, jumpRef{opcode: opcodeOffset, operand: operandOffset})
	return 0
}

func (l *Label) setLocation(location int, code []int32) {
	if l.location >= 0 {
		raiseInternalError("label bound twice (at %d and %d)", l.location, location)
	}
	l.location = location
	for _, ref := range l.unresolved {
		code[ref.operand] = int32(location - ref.opcode)
	}
	l.unresolved = nil
}

type LabelScopeKind int

const (
	LabelScopeLoop LabelScopeKind = iota
	LabelScopeSwitch
	LabelScopeNamed
)

func (k LabelScopeKind) String() string {
	switch k {
	case LabelScopeLoop:
		return "loop"
	case LabelScopeSwitch:
		return "switch"
	default:
		return "label"
	}
}

// LabelScope is a break/continue target: a loop, a switch or a labeled
// statement. Only loops carry a continue target.
type LabelScope struct {
	Kind           LabelScopeKind
	Name           string
	ScopeDepth     int
	BreakTarget    *Label
	ContinueTarget *Label
}

/* labels and label scopes {{{ */

func (g *Generator) newLabel() *Label {
	l := &Label{location: -1}
	g.labels = append(g.labels, l)
	return l
}

// emitLabel binds l to the current offset. Instructions emitted before a
// bound label are never rewritten by the peephole optimizer.
func (g *Generator) emitLabel(l *Label) *Label {
	loc := len(g.code.words)
	l.setLocation(loc, g.code.words)
	if n := len(g.jumpTargets); n == 0 || g.jumpTargets[n-1] != loc {
		g.jumpTargets = append(g.jumpTargets, loc)
	}
	g.code.resetPeephole()
	return l
}

func (g *Generator) newLabelScope(kind LabelScopeKind, name string) *LabelScope {
	scope := &LabelScope{
		Kind:        kind,
		Name:        name,
		ScopeDepth:  g.scopeDepth(),
		BreakTarget: g.newLabel(),
	}
	if kind == LabelScopeLoop {
		scope.ContinueTarget = g.newLabel()
	}
	g.labelScopes = append(g.labelScopes, scope)
	return scope
}

func (g *Generator) popLabelScope(scope *LabelScope) {
	n := len(g.labelScopes)
	if n == 0 || g.labelScopes[n-1] != scope {
		raiseInternalError("label scope stack out of order")
	}
	g.labelScopes = g.labelScopes[:n-1]
}

// breakTarget returns the scope an unlabeled break leaves (the innermost
// loop or switch) or the scope carrying name.
func (g *Generator) breakTarget(name string) *LabelScope {
	if name == "" {
		for i := len(g.labelScopes) - 1; i >= 0; i-- {
			if s := g.labelScopes[i]; s.Kind != LabelScopeNamed {
				return s
			}
		}
		return nil
	}
	for i := len(g.labelScopes) - 1; i >= 0; i-- {
		if s := g.labelScopes[i]; s.Name == name {
			return s
		}
	}
	return nil
}

// continueTarget returns the innermost loop, or for a named continue the
// innermost loop directly labeled by name. It returns nil when the label
// does not name a loop.
func (g *Generator) continueTarget(name string) *LabelScope {
	if name == "" {
		for i := len(g.labelScopes) - 1; i >= 0; i-- {
			if s := g.labelScopes[i]; s.Kind == LabelScopeLoop {
				return s
			}
		}
		return nil
	}
	var loop *LabelScope
	for i := len(g.labelScopes) - 1; i >= 0; i-- {
		s := g.labelScopes[i]
		if s.Kind == LabelScopeLoop {
			loop = s
		}
		if s.Name == name {
			return loop
		}
	}
	return nil
}

/* }}} */
