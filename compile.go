package bytecomp

import (
	"context"
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tos-network/bytecomp/js/ast"
	"github.com/tos-network/bytecomp/js/diag"
)

// Unit is a compiled body and the nested functions it declared, in the
// order its function tables refer to them.
type Unit struct {
	Code      *UnlinkedCodeBlock
	Functions []*Unit

	// Pending is the function literal of a unit left uncompiled under
	// LazyFunctions. Materialize compiles it.
	Pending *ast.FunctionLiteral `cbor:"-"`
	chain   []StaticScope
	strict  bool
}

// IsPending reports whether the unit still has to be materialized.
func (u *Unit) IsPending() bool { return u.Code == nil && u.Pending != nil }

// Walk calls fn for u and every unit below it, parents first.
func (u *Unit) Walk(fn func(*Unit) error) error {
	if err := fn(u); err != nil {
		return err
	}
	for _, child := range u.Functions {
		if err := child.Walk(fn); err != nil {
			return err
		}
	}
	return nil
}

// Count returns the number of units in the tree.
func (u *Unit) Count() int {
	n := 0
	u.Walk(func(*Unit) error { n++; return nil })
	return n
}

// Verify checks every compiled code block of the tree.
func (u *Unit) Verify() error {
	var err error
	u.Walk(func(unit *Unit) error {
		if unit.Code == nil {
			return nil
		}
		name := unit.Code.Name
		if name == "" {
			name = "<" + unit.Code.Kind.String() + ">"
		}
		if verr := unit.Code.Verify(); verr != nil {
			err = multierr.Append(err, fmt.Errorf("unit %s: %w", name, verr))
		}
		for _, ref := range append(append([]FunctionRef(nil), unit.Code.FunctionDecls...), unit.Code.FunctionExprs...) {
			if ref.Nested < 0 || ref.Nested >= len(unit.Functions) {
				err = multierr.Append(err, fmt.Errorf("unit %s: function %q refers to nested unit %d of %d",
					name, ref.Name, ref.Nested, len(unit.Functions)))
			}
		}
		return nil
	})
	return err
}

// Materialize compiles a pending unit in place. Units that are already
// compiled are left alone. Functions nested in the materialized body follow
// opts.LazyFunctions again.
func (u *Unit) Materialize(ctx context.Context, opts Options) error {
	if !u.IsPending() {
		return nil
	}
	opts = nestedOptions(opts, u.strict)
	compiled, err := compileFunction(ctx, u.Pending, u.chain, opts)
	if err != nil {
		return err
	}
	u.Code, u.Functions = compiled.Code, compiled.Functions
	u.Pending, u.chain = nil, nil
	return nil
}

// MaterializeAll compiles every pending unit of the tree.
func (u *Unit) MaterializeAll(ctx context.Context, opts Options) error {
	opts.LazyFunctions = false
	return u.Walk(func(unit *Unit) error {
		return unit.Materialize(ctx, opts)
	})
}

/* entry points {{{ */

// Compile compiles a program, or eval code when opts.Kind is KindEval,
// together with every function nested in it.
func Compile(ctx context.Context, prog *ast.Program, opts Options) (*Unit, error) {
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("compile: %w", err)
	}
	if prog == nil {
		return nil, compileError(diag.CodeEmitInvalidBody, opts.SourceName, "program is nil")
	}
	if opts.SourceName == "" {
		opts.SourceName = prog.SourceName
	}
	switch opts.Kind {
	case KindProgram:
		return compileUnit(ctx, opts, func() *Generator { return newProgramGenerator(prog, opts) })
	case KindEval:
		return CompileEval(ctx, prog, GlobalScopeChain(), opts)
	}
	return nil, compileError(diag.CodeConfigInvalidKind, opts.SourceName, "%s code is compiled with CompileFunction", opts.Kind)
}

// CompileEval compiles eval code against the static scope chain of the
// code that calls eval.
func CompileEval(ctx context.Context, prog *ast.Program, chain []StaticScope, opts Options) (*Unit, error) {
	opts.Kind = KindEval
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("compile eval: %w", err)
	}
	if prog == nil {
		return nil, compileError(diag.CodeEmitInvalidBody, opts.SourceName, "eval program is nil")
	}
	if chain == nil {
		chain = GlobalScopeChain()
	}
	return compileUnit(ctx, opts, func() *Generator { return newEvalGenerator(prog.Body, chain, opts) })
}

// CompileFunction compiles one function body. chain is the static scope
// chain at the point the function was declared; nil means global code.
func CompileFunction(ctx context.Context, fn *ast.FunctionLiteral, chain []StaticScope, opts Options) (*Unit, error) {
	if !opts.Kind.isFunction() {
		opts.Kind = KindFunction
	}
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("compile function: %w", err)
	}
	if chain == nil {
		chain = GlobalScopeChain()
	}
	return compileFunction(ctx, fn, chain, opts)
}

func compileFunction(ctx context.Context, fn *ast.FunctionLiteral, chain []StaticScope, opts Options) (*Unit, error) {
	return compileUnit(ctx, opts, func() *Generator { return newFunctionGenerator(fn, chain, opts) })
}

func compileError(code, source, format string, args ...interface{}) error {
	return &CompileError{Diagnostic: diag.New(code, source, 0, 0, format, args...)}
}

/* }}} */

/* unit queue {{{ */

// generateUnit runs one Generator to completion. Static errors raised while
// building or emitting come back as err.
func generateUnit(build func() *Generator) (g *Generator, cb *UnlinkedCodeBlock, err error) {
	defer recoverCompileError(&err)
	g = build()
	cb = g.generate()
	return g, cb, nil
}

func compileUnit(ctx context.Context, opts Options, build func() *Generator) (*Unit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g, cb, err := generateUnit(build)
	if err != nil {
		return nil, err
	}
	u := &Unit{Code: cb, Functions: make([]*Unit, len(g.nested))}
	if len(g.nested) == 0 {
		return u, nil
	}

	child := nestedOptions(opts, g.strict)
	if opts.LazyFunctions {
		for i, n := range g.nested {
			u.Functions[i] = &Unit{Pending: n.lit, chain: n.chain, strict: g.strict}
		}
		return u, nil
	}

	eg, ctx := errgroup.WithContext(ctx)
	if opts.Parallelism > 0 {
		eg.SetLimit(opts.Parallelism)
	}
	for i, n := range g.nested {
		i, n := i, n
		eg.Go(func() error {
			compiled, err := compileFunction(ctx, n.lit, n.chain, child)
			if err != nil {
				return err
			}
			u.Functions[i] = compiled
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	opts.logger().Named("bytecomp").Debug("compiled nested functions",
		zap.String("unit", cb.Name),
		zap.Int("count", len(g.nested)),
	)
	return u, nil
}

// nestedOptions derives the options of a function nested in a body
// compiled with opts. Strictness is inherited.
func nestedOptions(opts Options, strict bool) Options {
	opts.Kind = KindFunction
	opts.Strict = opts.Strict || strict
	return opts
}

/* }}} */
