package bytecomp

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/tos-network/bytecomp/js/diag"
)

const (
	PackageName    = "bytecomp"
	PackageVersion = "0.1.0"
)

// CodeKind selects which prologue and resolution rules a body is compiled
// with.
type CodeKind int

const (
	KindProgram CodeKind = iota
	KindEval
	KindFunction
	KindConstructor
)

var codeKindNames = [...]string{"program", "eval", "function", "constructor"}

func (k CodeKind) String() string {
	if k < 0 || int(k) >= len(codeKindNames) {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return codeKindNames[k]
}

func (k CodeKind) isFunction() bool { return k == KindFunction || k == KindConstructor }

func (k CodeKind) valid() bool { return k >= KindProgram && k <= KindConstructor }

// ParseCodeKind parses the textual name of a code kind.
func ParseCodeKind(s string) (CodeKind, error) {
	for i, name := range codeKindNames {
		if name == s {
			return CodeKind(i), nil
		}
	}
	return 0, fmt.Errorf("unknown code kind %q", s)
}

func (k CodeKind) MarshalText() ([]byte, error) {
	if !k.valid() {
		return nil, fmt.Errorf("unknown code kind %d", int(k))
	}
	return []byte(k.String()), nil
}

func (k *CodeKind) UnmarshalText(text []byte) error {
	v, err := ParseCodeKind(string(text))
	if err != nil {
		return err
	}
	*k = v
	return nil
}

// DefaultMaxExpressionDepth bounds the recursion of expression emission.
const DefaultMaxExpressionDepth = 5000

// Options configures one compilation.
type Options struct {
	Kind               CodeKind `toml:"kind"`
	Strict             bool     `toml:"strict"`
	EmitDebugHooks     bool     `toml:"debug_hooks"`
	EmitProfileHooks   bool     `toml:"profile_hooks"`
	RichSourceInfo     bool     `toml:"rich_source_info"`
	MaxExpressionDepth int      `toml:"max_expression_depth"`
	LazyFunctions      bool     `toml:"lazy_functions"`
	// Parallelism bounds how many nested functions compile at once. Zero
	// means no limit.
	Parallelism        int      `toml:"parallelism"`

	SourceName string      `toml:"-"`
	Logger     *zap.Logger `toml:"-"`
}

func DefaultOptions() Options {
	return Options{
		Kind:               KindProgram,
		MaxExpressionDepth: DefaultMaxExpressionDepth,
		Parallelism:        4,
	}
}

// Validate reports every problem with the options at once.
func (o Options) Validate() error {
	var err error
	if !o.Kind.valid() {
		err = multierr.Append(err, diag.Diagnostic{
			Code:    diag.CodeConfigInvalidKind,
			Message: fmt.Sprintf("invalid code kind %d", int(o.Kind)),
		})
	}
	if o.MaxExpressionDepth <= 0 {
		err = multierr.Append(err, diag.Diagnostic{
			Code:    diag.CodeConfigInvalidDepth,
			Message: fmt.Sprintf("max_expression_depth must be positive: got=%d", o.MaxExpressionDepth),
		})
	}
	if o.Parallelism < 0 {
		err = multierr.Append(err, diag.Diagnostic{
			Code:    diag.CodeConfigInvalidParallel,
			Message: fmt.Sprintf("parallelism must not be negative: got=%d", o.Parallelism),
		})
	}
	return err
}

func (o Options) logger() *zap.Logger {
	if o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger
}

// ParseOptions reads TOML options on top of DefaultOptions. Unknown keys
// are rejected.
func ParseOptions(data []byte) (Options, error) {
	opts := DefaultOptions()
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&opts); err != nil {
		d := diag.Diagnostic{Code: diag.CodeConfigParse, Message: err.Error()}
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			row, col := derr.Position()
			d.Span.Start = diag.Position{Line: row, Column: col}
			d.Span.End = d.Span.Start
		}
		return Options{}, d
	}
	if err := opts.Validate(); err != nil {
		return Options{}, err
	}
	return opts, nil
}

// LoadOptions reads options from a TOML file.
func LoadOptions(path string) (Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Options{}, fmt.Errorf("load options: %w", err)
	}
	opts, err := ParseOptions(data)
	if err != nil {
		return Options{}, fmt.Errorf("load options %s: %w", path, err)
	}
	return opts, nil
}
