package bytecomp

import (
	"fmt"

	"github.com/tos-network/bytecomp/js/ast"
	"github.com/tos-network/bytecomp/js/diag"
)

// CompileError is a static error found while emitting a body. Compilation
// stops at the first one and no partial unit is returned.
type CompileError struct { // {{{
	Diagnostic diag.Diagnostic
}

func (e *CompileError) Error() string {
	return e.Diagnostic.Error()
}

// Code returns the diagnostic code, for example BC1003.
func (e *CompileError) Code() string {
	return e.Diagnostic.Code
} // }}}

// InternalError reports a broken generator invariant. It is never converted
// into a CompileError; reaching one means the generator has a bug.
type InternalError struct { // {{{
	Message string
}

func (e *InternalError) Error() string {
	return "bytecomp: internal error: " + e.Message
} // }}}

func raiseCompileError(g *Generator, code string, loc ast.Loc, format string, args ...interface{}) {
	source := ""
	if g != nil {
		source = g.opts.SourceName
	}
	panic(&CompileError{Diagnostic: diag.New(code, source, loc.Line, loc.Column, format, args...)})
}

func raiseInternalError(format string, args ...interface{}) {
	panic(&InternalError{Message: fmt.Sprintf(format, args...)})
}

// recoverCompileError turns a CompileError panic into an error return and
// re-panics anything else.
func recoverCompileError(err *error) {
	if rcv := recover(); rcv != nil {
		if cerr, ok := rcv.(*CompileError); ok {
			*err = cerr
		} else {
			panic(rcv)
		}
	}
}
