package bytecomp

import (
	"math"

	"go.uber.org/zap"

	"github.com/tos-network/bytecomp/js/ast"
	"github.com/tos-network/bytecomp/js/diag"
)

// nestedFunction is a function literal queued for compilation after the
// body that declares it, together with the static scope chain it sees.
type nestedFunction struct {
	lit   *ast.FunctionLiteral
	chain []StaticScope
}

// Generator compiles exactly one program, eval or function body. It is not
// safe for concurrent use; nested bodies get their own Generator.
type Generator struct { // {{{
	opts   Options
	kind   CodeKind
	strict bool
	logger *zap.Logger

	body       *ast.FunctionBody
	fn         *ast.FunctionLiteral
	scopeChain []StaticScope

	code      *instructionStream
	constants *constantPool
	analyzer  *propertyAnalyzer

	calleeRegisters             []*Register
	parameters                  []*Register
	constantRegisters           []*Register
	thisRegister                *Register
	ignored                     *Register
	activationRegister          *Register
	argumentsRegister           *Register
	unmodifiedArgumentsRegister *Register
	frameSize                   int
	numVars                     int

	symbolTable   map[string]SymbolEntry
	functions     map[string]bool
	captured      map[string]bool
	programConsts map[string]bool

	lazyFunctions     map[int]*ast.FunctionLiteral
	firstLazyFunction int
	lastLazyFunction  int

	nested              []nestedFunction
	functionDecls       []FunctionRef
	functionExprs       []FunctionRef
	functionDeclOffsets map[*ast.FunctionLiteral]int
	functionExprOffsets map[*ast.FunctionLiteral]int

	resultTypes map[ast.Expr]resultType
	assignments map[ast.Expr]bool

	labels      []*Label
	labelScopes []*LabelScope
	jumpTargets []int

	scopeContextStack  []ControlFlowContext
	switchContextStack []switchInfo
	forInContextStack  []forInContext
	tryContextStack    []tryContext
	tryRanges          []tryRange
	tryData            []*TryData
	dynamicScopeDepth  int
	finallyDepth       int

	immediateSwitchTables []SimpleJumpTable
	characterSwitchTables []SimpleJumpTable
	stringSwitchTables    []StringJumpTable

	exprInfo []ExpressionRangeInfo
	lineInfo []LineInfo

	programVars   []VarDeclaration
	evalVars      []string
	evalFunctions []int

	usesEval                 bool
	usesArguments            bool
	usesThis                 bool
	needsFullScopeChain      bool
	hasCreatedActivation     bool
	isNumericCompareFunction bool
	expressionTooDeep        bool
	emitNodeDepth            int
} // }}}

func newGenerator(kind CodeKind, body *ast.FunctionBody, chain []StaticScope, opts Options) *Generator {
	if body == nil {
		raiseCompileError(nil, diag.CodeEmitInvalidBody, ast.Loc{}, "%s code has no body", kind)
	}
	g := &Generator{
		opts:                opts,
		kind:                kind,
		strict:              opts.Strict || body.Strict,
		logger:              opts.logger().Named("bytecomp"),
		body:                body,
		scopeChain:          chain,
		code:                newInstructionStream(),
		constants:           newConstantPool(),
		ignored:             &Register{index: math.MinInt32},
		symbolTable:         map[string]SymbolEntry{},
		functions:           map[string]bool{},
		captured:            map[string]bool{},
		programConsts:       map[string]bool{},
		lazyFunctions:       map[int]*ast.FunctionLiteral{},
		functionDeclOffsets: map[*ast.FunctionLiteral]int{},
		functionExprOffsets: map[*ast.FunctionLiteral]int{},
		resultTypes:         map[ast.Expr]resultType{},
		assignments:         map[ast.Expr]bool{},
		usesEval:            body.Features.Has(ast.UsesEval),
		usesArguments:       body.Features.Has(ast.UsesArguments),
		usesThis:            body.Features.Has(ast.UsesThis),
	}
	g.analyzer = newPropertyAnalyzer(g.code)
	for _, name := range body.Captured {
		g.captured[name] = true
	}
	g.needsFullScopeChain = len(body.Captured) > 0 ||
		g.needsActivationForMoreThanVariables() ||
		opts.EmitDebugHooks

	numParams := 0
	if kind.isFunction() {
		numParams = len(body.Params)
	}
	g.thisRegister = &Register{index: -(numParams + 1) - CallFrameHeaderSize}
	return g
}

func newProgramGenerator(prog *ast.Program, opts Options) *Generator {
	if prog == nil {
		raiseCompileError(nil, diag.CodeEmitInvalidBody, ast.Loc{}, "program is nil")
	}
	g := newGenerator(KindProgram, prog.Body, GlobalScopeChain(), opts)
	g.programPrologue()
	return g
}

func newEvalGenerator(body *ast.FunctionBody, chain []StaticScope, opts Options) *Generator {
	g := newGenerator(KindEval, body, chain, opts)
	g.evalPrologue()
	return g
}

func newFunctionGenerator(fn *ast.FunctionLiteral, chain []StaticScope, opts Options) *Generator {
	if fn == nil {
		raiseCompileError(nil, diag.CodeEmitInvalidBody, ast.Loc{}, "function literal is nil")
	}
	kind := opts.Kind
	if !kind.isFunction() {
		kind = KindFunction
	}
	g := newGenerator(kind, fn.Body, chain, opts)
	g.fn = fn
	g.functionPrologue()
	return g
}

func (g *Generator) needsActivationForMoreThanVariables() bool {
	f := g.body.Features
	return f.Has(ast.UsesEval) || f.Has(ast.ContainsWith) || f.Has(ast.ContainsCatch)
}

func (g *Generator) captures(name string) bool { return g.captured[name] }

func (g *Generator) isConstructor() bool { return g.kind == KindConstructor }

/* prologues {{{ */

func (g *Generator) programPrologue() {
	g.emitOpcode(OpEnter)
	for _, fn := range g.body.Functions {
		value := g.newTemporary().retain()
		g.emitNewFunction(value, fn)
		base := g.newTemporary().retain()
		g.emitResolveBase(base, fn.Name)
		g.emitPutByID(base, fn.Name, value)
		base.release()
		value.release()
	}
	for _, v := range g.body.Vars {
		g.addIdentifier(v.Name)
		g.programVars = append(g.programVars, VarDeclaration{Name: v.Name, Const: v.Const})
		if v.Const {
			g.programConsts[v.Name] = true
		}
	}
}

func (g *Generator) evalPrologue() {
	g.emitOpcode(OpEnter)
	for _, fn := range g.body.Functions {
		g.evalFunctions = append(g.evalFunctions, g.addFunctionDecl(fn))
	}
	for _, v := range g.body.Vars {
		g.evalVars = append(g.evalVars, v.Name)
	}
}

func (g *Generator) functionPrologue() {
	body := g.body
	debug := g.opts.EmitDebugHooks

	g.emitOpcode(OpEnter)
	if g.needsFullScopeChain {
		g.activationRegister = g.addAnonymousVar()
		g.emitInitLazyRegister(g.activationRegister)
	}

	if g.usesArguments || g.usesEval || debug {
		g.unmodifiedArgumentsRegister = g.addAnonymousVar()
		g.argumentsRegister, _ = g.addVar("arguments", false)
		g.emitInitLazyRegister(g.argumentsRegister)
		g.emitInitLazyRegister(g.unmodifiedArgumentsRegister)
		if g.strict {
			g.emitOpcode(OpCreateArguments)
			g.emitReg(g.argumentsRegister)
		}
		if debug {
			g.emitOpcode(OpCreateArguments)
			g.emitReg(g.argumentsRegister)
		}
	}

	captureAll := debug || g.usesEval
	capturedArgs := make([]*Register, len(body.Params))
	if len(body.Captured) > 0 || captureAll {
		for i, p := range body.Params {
			if g.captures(p) || captureAll {
				capturedArgs[i] = g.addAnonymousVar()
			}
		}
	}

	callee := g.resolveCallee()

	// Captured functions and vars come first so they sit at the bottom of
	// the activation.
	if len(body.Captured) > 0 {
		for _, fn := range body.Functions {
			if !g.captures(fn.Name) {
				continue
			}
			if !g.hasCreatedActivation {
				g.hasCreatedActivation = true
				g.emitOpcode(OpCreateActivation)
				g.emitReg(g.activationRegister)
			}
			g.functions[fn.Name] = true
			reg, _ := g.addVar(fn.Name, false)
			g.emitNewFunction(reg, fn)
		}
		for _, v := range body.Vars {
			if g.captures(v.Name) {
				g.addVar(v.Name, v.Const)
			}
		}
	}

	canLazilyCreateFunctions := !g.needsActivationForMoreThanVariables() && !debug
	if !canLazilyCreateFunctions && !g.hasCreatedActivation {
		g.hasCreatedActivation = true
		g.emitOpcode(OpCreateActivation)
		g.emitReg(g.activationRegister)
	}

	g.firstLazyFunction = g.numVars
	for _, fn := range body.Functions {
		if g.captures(fn.Name) {
			continue
		}
		g.functions[fn.Name] = true
		reg, _ := g.addVar(fn.Name, false)
		if !canLazilyCreateFunctions || fn.Name == "arguments" {
			g.emitNewFunction(reg, fn)
		} else {
			g.emitInitLazyRegister(reg)
			g.lazyFunctions[reg.index] = fn
		}
	}
	g.lastLazyFunction = g.firstLazyFunction
	if canLazilyCreateFunctions {
		g.lastLazyFunction = g.numVars
	}
	for _, v := range body.Vars {
		if !g.captures(v.Name) {
			g.addVar(v.Name, v.Const)
		}
	}

	g.parameters = make([]*Register, len(body.Params))
	for i, p := range body.Params {
		original := &Register{index: g.thisRegister.index + 1 + i}
		g.parameters[i] = original
		index := original.index
		if capturedArgs[i] != nil {
			index = capturedArgs[i].index
			g.emitMove(capturedArgs[i], original)
		}
		g.addParameter(p, index)
	}

	// The callee's own name loses to vars, functions and parameters.
	g.addCallee(callee)

	if g.isConstructor() {
		g.emitCreateThis()
	} else if !g.strict && (g.usesThis || g.usesEval || debug) {
		g.emitOpcode(OpConvertThis)
		g.emitDst(g.thisRegister)
	}
}

// resolveCallee binds the name of a named function expression. With
// non-strict eval or debug hooks the name goes into its own scope object.
func (g *Generator) resolveCallee() *Register {
	if g.fn == nil || !g.fn.IsExpression || g.fn.Name == "" {
		return nil
	}
	if (g.usesEval && !g.strict) || g.opts.EmitDebugHooks {
		callee := g.newTemporary().retain()
		g.emitOpcode(OpGetCallee)
		g.emitDst(callee)
		g.emitOpcode(OpPushNameScope)
		g.emitIdentifier(g.fn.Name)
		g.emitReg(callee)
		g.emitImm(AttrReadOnly | AttrDontDelete)
		callee.release()
		return nil
	}
	reg := g.addAnonymousVar()
	g.emitOpcode(OpGetCallee)
	g.emitDst(reg)
	return reg
}

func (g *Generator) addCallee(reg *Register) {
	if reg == nil {
		return
	}
	if _, ok := g.symbolTable[g.fn.Name]; !ok {
		g.symbolTable[g.fn.Name] = SymbolEntry{Index: reg.index, ReadOnly: true}
	}
}

/* }}} */

/* nested functions {{{ */

// nestedScopeChain is the static scope chain a function literal declared at
// the current point sees.
func (g *Generator) nestedScopeChain() []StaticScope {
	chain := make([]StaticScope, 0, g.dynamicScopeDepth+1+len(g.scopeChain))
	for i := 0; i < g.dynamicScopeDepth; i++ {
		chain = append(chain, StaticScope{Kind: ScopeDynamic})
	}
	switch {
	case g.kind == KindProgram:
		global := StaticScope{Kind: ScopeGlobal, Symbols: map[string]SymbolEntry{}}
		for _, fn := range g.body.Functions {
			global.Symbols[fn.Name] = SymbolEntry{Index: -1}
		}
		for _, v := range g.body.Vars {
			global.Symbols[v.Name] = SymbolEntry{Index: -1, ReadOnly: v.Const}
		}
		return append(chain, global)
	case g.kind.isFunction() && g.needsFullScopeChain:
		activation := StaticScope{Kind: ScopeActivation, Symbols: map[string]SymbolEntry{}, UsesEval: g.usesEval}
		for name := range g.captured {
			if entry, ok := g.symbolTable[name]; ok {
				activation.Symbols[name] = entry
			}
		}
		chain = append(chain, activation)
	}
	return append(chain, g.scopeChain...)
}

func (g *Generator) makeFunction(lit *ast.FunctionLiteral) int {
	g.nested = append(g.nested, nestedFunction{lit: lit, chain: g.nestedScopeChain()})
	g.logger.Debug("queued nested function",
		zap.String("name", lit.Name),
		zap.Int("line", lit.Loc.Line),
		zap.Int("depth", g.dynamicScopeDepth),
	)
	return len(g.nested) - 1
}

func (g *Generator) addFunctionDecl(lit *ast.FunctionLiteral) int {
	if index, ok := g.functionDeclOffsets[lit]; ok {
		return index
	}
	index := len(g.functionDecls)
	g.functionDecls = append(g.functionDecls, FunctionRef{Name: lit.Name, Nested: g.makeFunction(lit)})
	g.functionDeclOffsets[lit] = index
	return index
}

func (g *Generator) addFunctionExpr(lit *ast.FunctionLiteral) int {
	if index, ok := g.functionExprOffsets[lit]; ok {
		return index
	}
	index := len(g.functionExprs)
	g.functionExprs = append(g.functionExprs, FunctionRef{Name: lit.Name, Nested: g.makeFunction(lit)})
	g.functionExprOffsets[lit] = index
	return index
}

/* }}} */

/* node emission {{{ */

// emitNode emits n with its result in dst. A nil dst lets the node pick a
// register; ignoredResult() means the value is not needed.
func (g *Generator) emitNode(dst *Register, n ast.Node) *Register {
	g.addLineInfo(n.Location().Line)
	if g.emitNodeDepth >= g.opts.MaxExpressionDepth {
		return g.emitThrowExpressionTooDeepException()
	}
	g.emitNodeDepth++
	var r *Register
	switch x := n.(type) {
	case ast.Expr:
		r = g.emitExpr(dst, x)
	case ast.Stmt:
		r = g.emitStmt(dst, x)
	default:
		raiseCompileError(g, diag.CodeEmitUnsupportedNode, n.Location(), "unsupported node %T", n)
	}
	g.emitNodeDepth--
	return r
}

func (g *Generator) emitNodeInConditionContext(n ast.Expr, trueTarget, falseTarget *Label, fallThroughMeansTrue bool) {
	g.addLineInfo(n.Location().Line)
	if g.emitNodeDepth >= g.opts.MaxExpressionDepth {
		g.emitThrowExpressionTooDeepException()
		return
	}
	g.emitNodeDepth++
	g.emitExprInConditionContext(n, trueTarget, falseTarget, fallThroughMeansTrue)
	g.emitNodeDepth--
}

func (g *Generator) emitThrowExpressionTooDeepException() *Register {
	if !g.expressionTooDeep {
		g.logger.Warn("expression nesting too deep",
			zap.String("source", g.opts.SourceName),
			zap.Int("max_depth", g.opts.MaxExpressionDepth),
		)
	}
	g.expressionTooDeep = true
	g.emitThrowStaticError("Expression too deep", false)
	return g.newTemporary()
}

func (g *Generator) addLineInfo(line int) {
	if line <= 0 {
		return
	}
	offset := g.code.Len()
	if n := len(g.lineInfo); n > 0 {
		last := &g.lineInfo[n-1]
		if last.Line == line {
			return
		}
		if last.InstructionOffset == offset {
			last.Line = line
			return
		}
	}
	g.lineInfo = append(g.lineInfo, LineInfo{InstructionOffset: offset, Line: line})
}

func (g *Generator) emitExpressionInfo(loc ast.Loc) {
	if !g.opts.RichSourceInfo {
		return
	}
	divot := loc.Divot
	if divot < loc.Start {
		divot = loc.Start
	}
	end := loc.End
	if end < divot {
		end = divot
	}
	g.exprInfo = append(g.exprInfo, ExpressionRangeInfo{
		InstructionOffset: g.code.Len(),
		Divot:             divot,
		StartOffset:       divot - loc.Start,
		EndOffset:         end - divot,
		Line:              loc.Line,
		Column:            loc.Column,
	})
}

// rewindLast drops the last instruction along with any source info that
// pointed past it.
func (g *Generator) rewindLast() {
	g.code.Rewind()
	end := g.code.Len()
	for n := len(g.lineInfo); n > 0 && g.lineInfo[n-1].InstructionOffset > end; n-- {
		g.lineInfo = g.lineInfo[:n-1]
	}
	for n := len(g.exprInfo); n > 0 && g.exprInfo[n-1].InstructionOffset > end; n-- {
		g.exprInfo = g.exprInfo[:n-1]
	}
}

/* }}} */

/* generate {{{ */

// generate emits the body and assembles the code block. Errors are raised
// as panics and recovered by the caller.
func (g *Generator) generate() *UnlinkedCodeBlock {
	switch g.kind {
	case KindProgram, KindEval:
		g.emitDebugHook(WillExecuteProgram, g.body.Loc.Line, g.body.Loc.Line, g.body.Loc.Column)
		dst := g.newTemporary().retain()
		g.emitLoad(dst, UndefinedValue())
		g.emitStatements(dst, g.body.Statements)
		g.emitDebugHook(DidExecuteProgram, g.body.Loc.LastLine(), g.body.Loc.LastLine(), g.body.Loc.Column)
		g.emitEnd(dst)
		dst.release()
	default:
		g.emitFunctionBody()
	}

	g.checkContextStacks()
	g.analyzer.killAll()

	var handlers []HandlerInfo
	for _, r := range g.tryRanges {
		start, end := r.start.Location(), r.end.Location()
		if start < 0 || end < 0 || r.tryData.target.IsForward() {
			raiseInternalError("try range with unbound label")
		}
		if end <= start {
			continue
		}
		if r.tryData.targetScopeDepth == targetScopeDepthUnset {
			raiseInternalError("try handler without a scope depth")
		}
		handlers = append(handlers, HandlerInfo{
			Start:      start,
			End:        end,
			Target:     r.tryData.target.Location(),
			ScopeDepth: r.tryData.targetScopeDepth,
		})
	}
	for _, l := range g.labels {
		if len(l.unresolved) > 0 {
			raiseInternalError("label with %d unresolved jumps", len(l.unresolved))
		}
	}

	block := &UnlinkedCodeBlock{
		Kind:                     g.kind,
		SourceName:               g.opts.SourceName,
		Strict:                   g.strict,
		IsConstructor:            g.isConstructor(),
		Instructions:             g.code.words,
		FrameSize:                g.frameSize,
		NumVars:                  g.numVars,
		NumParameters:            len(g.parameters) + 1,
		ThisRegister:             g.thisRegister.index,
		ActivationRegister:       NoRegister,
		ArgumentsRegister:        NoRegister,
		Constants:                g.constants.values,
		Identifiers:              g.constants.identifiers,
		RegExps:                  g.constants.regexps,
		FunctionDecls:            g.functionDecls,
		FunctionExprs:            g.functionExprs,
		ExceptionHandlers:        handlers,
		JumpTargets:              g.jumpTargets,
		ImmediateSwitchTables:    g.immediateSwitchTables,
		CharacterSwitchTables:    g.characterSwitchTables,
		StringSwitchTables:       g.stringSwitchTables,
		ExpressionInfo:           g.exprInfo,
		LineInfo:                 g.lineInfo,
		SymbolTable:              g.symbolTable,
		CapturedVars:             g.body.Captured,
		ProgramVars:              g.programVars,
		EvalVars:                 g.evalVars,
		EvalFunctions:            g.evalFunctions,
		NeedsFullScopeChain:      g.needsFullScopeChain,
		UsesArguments:            g.usesArguments,
		UsesEval:                 g.usesEval,
		ExpressionTooDeep:        g.expressionTooDeep,
		IsNumericCompareFunction: g.isNumericCompareFunction,
	}
	if g.fn != nil {
		block.Name = g.fn.Name
	}
	if g.activationRegister != nil {
		block.ActivationRegister = g.activationRegister.index
	}
	if g.argumentsRegister != nil {
		block.ArgumentsRegister = g.argumentsRegister.index
	}

	g.logger.Debug("unit finalized",
		zap.Stringer("kind", g.kind),
		zap.String("name", block.Name),
		zap.Int("instructions", len(block.Instructions)),
		zap.Int("frame_size", block.FrameSize),
		zap.Int("constants", len(block.Constants)),
		zap.Int("handlers", len(block.ExceptionHandlers)),
	)
	return block
}

/* }}} */
