package bytecomp

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/multierr"

	"github.com/tos-network/bytecomp/js/diag"
)

func TestParseOptions(t *testing.T) {
	opts, err := ParseOptions([]byte(`
kind = "eval"
strict = true
debug_hooks = true
max_expression_depth = 100
parallelism = 2
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if opts.Kind != KindEval || !opts.Strict || !opts.EmitDebugHooks {
		t.Fatalf("options: got=%+v", opts)
	}
	if opts.MaxExpressionDepth != 100 || opts.Parallelism != 2 {
		t.Fatalf("limits: got=%d/%d want=100/2", opts.MaxExpressionDepth, opts.Parallelism)
	}
	if opts.RichSourceInfo || opts.LazyFunctions {
		t.Fatalf("unset flags changed: got=%+v", opts)
	}
}

func TestParseOptionsKeepsDefaults(t *testing.T) {
	opts, err := ParseOptions(nil)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	def := DefaultOptions()
	if opts.Kind != def.Kind || opts.MaxExpressionDepth != def.MaxExpressionDepth || opts.Parallelism != def.Parallelism {
		t.Fatalf("defaults: got=%+v want=%+v", opts, def)
	}
}

func TestParseOptionsReportsEveryProblem(t *testing.T) {
	_, err := ParseOptions([]byte("max_expression_depth = 0\nparallelism = -1\n"))
	errs := multierr.Errors(err)
	if len(errs) != 2 {
		t.Fatalf("errors: got=%d want=2 (%v)", len(errs), err)
	}
	want := []string{diag.CodeConfigInvalidDepth, diag.CodeConfigInvalidParallel}
	for i, e := range errs {
		d, ok := e.(diag.Diagnostic)
		if !ok || d.Code != want[i] {
			t.Fatalf("error %d: got=%v want=%s", i, e, want[i])
		}
	}
}

func TestParseOptionsRejectsBadInput(t *testing.T) {
	for _, src := range []string{
		"strict = true\nunknown_key = 1\n",
		`kind = "module"`,
		"strict = \n",
	} {
		_, err := ParseOptions([]byte(src))
		var d diag.Diagnostic
		if !errors.As(err, &d) || d.Code != diag.CodeConfigParse {
			t.Fatalf("%q: error got=%v want=%s", src, err, diag.CodeConfigParse)
		}
	}
}

func TestLoadOptions(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bytecomp.toml")
	if err := os.WriteFile(path, []byte("lazy_functions = true\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	opts, err := LoadOptions(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !opts.LazyFunctions {
		t.Fatalf("lazy_functions: got=false want=true")
	}

	_, err = LoadOptions(filepath.Join(dir, "missing.toml"))
	if err == nil || !strings.Contains(err.Error(), "load options") {
		t.Fatalf("missing file: got=%v want=load options error", err)
	}
}

func TestParseCodeKind(t *testing.T) {
	k, err := ParseCodeKind("constructor")
	if err != nil || k != KindConstructor {
		t.Fatalf("parse: got=%v err=%v want=%v", k, err, KindConstructor)
	}
	if _, err := ParseCodeKind("module"); err == nil {
		t.Fatalf("parse module: got=nil want=error")
	}
	if got := CodeKind(9).String(); got != "kind(9)" {
		t.Fatalf("string: got=%s want=kind(9)", got)
	}
}

func TestNewLogger(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error"} {
		logger, err := NewLogger(level)
		if err != nil {
			t.Fatalf("%s: %v", level, err)
		}
		logger.Sync()
	}
	if _, err := NewLogger("loud"); err == nil {
		t.Fatalf("loud: got=nil want=error")
	}
}
