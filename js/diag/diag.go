package diag

import "fmt"

const (
	CodeEmitInvalidBody       = "BC1001"
	CodeEmitReturnOutside     = "BC1002"
	CodeEmitUnresolvedTarget  = "BC1003"
	CodeEmitDuplicateLabel    = "BC1004"
	CodeEmitUnsupportedNode   = "BC1005"
	CodeEmitInvalidOperator   = "BC1006"
	CodeConfigInvalidKind     = "BC2001"
	CodeConfigInvalidDepth    = "BC2002"
	CodeConfigInvalidParallel = "BC2003"
	CodeConfigParse           = "BC2004"
	CodeInputDecode           = "BC3001"
	CodeInputUnknownNode      = "BC3002"
)

// Position describes a line/column position in a source file.
type Position struct {
	Line   int
	Column int
}

// Span describes a source range.
type Span struct {
	File  string
	Start Position
	End   Position
}

// Diagnostic is a structured compile-time error.
type Diagnostic struct {
	Code    string
	Message string
	Span    Span
}

// New returns a diagnostic anchored at a single position.
func New(code, file string, line, column int, format string, args ...interface{}) Diagnostic {
	pos := Position{Line: line, Column: column}
	return Diagnostic{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Span:    Span{File: file, Start: pos, End: pos},
	}
}

func (d Diagnostic) Error() string {
	if d.Span.File == "" || d.Span.Start.Line <= 0 || d.Span.Start.Column <= 0 {
		return fmt.Sprintf("[%s] %s", d.Code, d.Message)
	}
	return fmt.Sprintf("%s:%d:%d: [%s] %s",
		d.Span.File,
		d.Span.Start.Line,
		d.Span.Start.Column,
		d.Code,
		d.Message,
	)
}

// Diagnostics is an ordered diagnostic list.
type Diagnostics []Diagnostic

func (ds Diagnostics) Error() string {
	if len(ds) == 0 {
		return ""
	}
	if len(ds) == 1 {
		return ds[0].Error()
	}
	return fmt.Sprintf("%s (and %d more error(s))", ds[0].Error(), len(ds)-1)
}

func (ds Diagnostics) HasErrors() bool { return len(ds) > 0 }
