package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/segmentio/encoding/json"
	"go.uber.org/zap"

	"github.com/tos-network/bytecomp"
	"github.com/tos-network/bytecomp/js/ast"
	"github.com/tos-network/bytecomp/js/astjson"
)

func dispatchSubcommand(args []string) (bool, int) {
	if len(args) == 0 {
		return false, 0
	}
	switch args[0] {
	case "compile":
		return true, cmdCompile(args[1:])
	case "dump":
		return true, cmdDump(args[1:])
	case "inspect":
		return true, cmdInspect(args[1:])
	case "verify":
		return true, cmdVerify(args[1:])
	case "repl":
		return true, cmdRepl(args[1:])
	case "--version", "-v", "version":
		fmt.Println(bytecomp.PackageName + " " + bytecomp.PackageVersion)
		return true, 0
	case "--help", "-h", "help":
		printRootSubcommandUsage()
		return true, 0
	default:
		return false, 0
	}
}

func printRootSubcommandUsage() {
	fmt.Print(`Usage:
  bytecomp <subcommand> [flags] <input>

Subcommands:
  compile   compile a JSON AST to a .jsbc unit
  dump      disassemble a JSON AST or a .jsbc unit
  inspect   print .jsbc header and unit metadata
  verify    decode and verify a .jsbc unit
  repl      read JSON ASTs interactively and print their bytecode

Global:
  --version print version
  --help    print this help
`)
}

// compileFlags are the options shared by every subcommand that compiles.
type compileFlags struct {
	config         string
	kind           string
	logLevel       string
	strict         bool
	debugHooks     bool
	profileHooks   bool
	richSourceInfo bool
	lazy           bool
	parallelism    int
}

func (cf *compileFlags) register(fs *flag.FlagSet, withLazy bool) {
	def := bytecomp.DefaultOptions()
	fs.StringVar(&cf.config, "config", "", "TOML options file")
	fs.StringVar(&cf.kind, "kind", def.Kind.String(), "code kind: program|eval")
	fs.StringVar(&cf.logLevel, "log-level", "warn", "log level: debug|info|warn|error")
	fs.BoolVar(&cf.strict, "strict", def.Strict, "compile as strict mode code")
	fs.BoolVar(&cf.debugHooks, "debug-hooks", def.EmitDebugHooks, "emit debugger hooks")
	fs.BoolVar(&cf.profileHooks, "profile-hooks", def.EmitProfileHooks, "emit profiler hooks")
	fs.BoolVar(&cf.richSourceInfo, "rich-source-info", def.RichSourceInfo, "record expression ranges for every instruction")
	fs.IntVar(&cf.parallelism, "j", def.Parallelism, "nested functions compiled in parallel (0 = unlimited)")
	if withLazy {
		fs.BoolVar(&cf.lazy, "lazy", false, "leave nested functions uncompiled")
	}
}

// options loads -config, then applies the flags given on the command line
// on top of it.
func (cf *compileFlags) options(fs *flag.FlagSet) (bytecomp.Options, error) {
	opts := bytecomp.DefaultOptions()
	if cf.config != "" {
		loaded, err := bytecomp.LoadOptions(cf.config)
		if err != nil {
			return opts, err
		}
		opts = loaded
	}
	var err error
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "kind":
			var kind bytecomp.CodeKind
			kind, err = bytecomp.ParseCodeKind(cf.kind)
			opts.Kind = kind
		case "strict":
			opts.Strict = cf.strict
		case "debug-hooks":
			opts.EmitDebugHooks = cf.debugHooks
		case "profile-hooks":
			opts.EmitProfileHooks = cf.profileHooks
		case "rich-source-info":
			opts.RichSourceInfo = cf.richSourceInfo
		case "lazy":
			opts.LazyFunctions = cf.lazy
		case "j":
			opts.Parallelism = cf.parallelism
		}
	})
	if err != nil {
		return opts, err
	}
	logger, err := bytecomp.NewLogger(cf.logLevel)
	if err != nil {
		return opts, err
	}
	opts.Logger = logger
	return opts, nil
}

func loadProgram(path string) (*ast.Program, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return astjson.Decode(f, path)
}

func compileFile(ctx context.Context, input string, opts bytecomp.Options) (*bytecomp.Unit, error) {
	prog, err := loadProgram(input)
	if err != nil {
		return nil, err
	}
	unit, err := bytecomp.Compile(ctx, prog, opts)
	if err != nil {
		return nil, err
	}
	opts.Logger.Info("compiled",
		zap.String("input", input),
		zap.Int("units", unit.Count()),
		zap.Bool("lazy", opts.LazyFunctions),
	)
	return unit, nil
}

func cmdCompile(args []string) int {
	fs := flag.NewFlagSet("compile", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var cf compileFlags
	var output string
	cf.register(fs, false)
	fs.StringVar(&output, "o", "", "output unit path")
	fs.StringVar(&output, "output", "", "output unit path")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: bytecomp compile [-o <output.jsbc>] [options] <input.json>")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		return 1
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "compile requires exactly one input .json file")
		fs.Usage()
		return 1
	}
	input := fs.Arg(0)
	opts, err := cf.options(fs)
	if err != nil {
		fmt.Println(err.Error())
		return 1
	}
	defer opts.Logger.Sync()

	unit, err := compileFile(context.Background(), input, opts)
	if err != nil {
		fmt.Println(err.Error())
		return 1
	}
	data, err := bytecomp.EncodeUnit(unit)
	if err != nil {
		fmt.Println(err.Error())
		return 1
	}
	if output == "" {
		output = defaultUnitPath(input)
	}
	if err := os.WriteFile(output, data, 0o644); err != nil {
		fmt.Println(err.Error())
		return 1
	}
	return 0
}

func cmdDump(args []string) int {
	fs := flag.NewFlagSet("dump", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var cf compileFlags
	cf.register(fs, true)
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: bytecomp dump [options] <input.json|input.jsbc>")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		return 1
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "dump requires exactly one input file")
		fs.Usage()
		return 1
	}
	input := fs.Arg(0)
	body, err := os.ReadFile(input)
	if err != nil {
		fmt.Println(err.Error())
		return 1
	}

	var unit *bytecomp.Unit
	if bytecomp.IsEncodedUnit(body) {
		unit, err = bytecomp.DecodeUnit(body)
	} else {
		var opts bytecomp.Options
		opts, err = cf.options(fs)
		if err == nil {
			defer opts.Logger.Sync()
			unit, err = compileFile(context.Background(), input, opts)
		}
	}
	if err != nil {
		fmt.Println(err.Error())
		return 1
	}
	fmt.Print(dumpUnit(unit))
	return 0
}

func dumpUnit(unit *bytecomp.Unit) string {
	var buf strings.Builder
	first := true
	unit.Walk(func(u *bytecomp.Unit) error {
		if !first {
			buf.WriteByte('\n')
		}
		first = false
		if u.IsPending() {
			name := u.Pending.Name
			if name == "" {
				name = "<anonymous>"
			}
			fmt.Fprintf(&buf, "function %s: pending\n", name)
			return nil
		}
		buf.WriteString(u.Code.String())
		return nil
	})
	return buf.String()
}

type unitSummary struct {
	Kind         string `json:"kind"`
	Name         string `json:"name"`
	Instructions int    `json:"instructions"`
	Registers    int    `json:"registers"`
}

type inspectReport struct {
	Version      uint16        `json:"version"`
	Compiler     string        `json:"compiler"`
	Fingerprint  string        `json:"fingerprint"`
	PayloadBytes int           `json:"payload_bytes"`
	Units        []unitSummary `json:"units"`
}

func cmdInspect(args []string) int {
	fs := flag.NewFlagSet("inspect", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var asJSON bool
	fs.BoolVar(&asJSON, "json", false, "output JSON")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: bytecomp inspect [--json] <input.jsbc>")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		return 1
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "inspect requires exactly one input .jsbc file")
		fs.Usage()
		return 1
	}
	body, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		fmt.Println(err.Error())
		return 1
	}
	header, err := bytecomp.InspectUnit(body)
	if err != nil {
		fmt.Println(err.Error())
		return 1
	}
	unit, err := bytecomp.DecodeUnit(body)
	if err != nil {
		fmt.Println(err.Error())
		return 1
	}

	report := inspectReport{
		Version:      header.Version,
		Compiler:     header.CompilerID,
		Fingerprint:  header.Fingerprint,
		PayloadBytes: header.PayloadSize,
	}
	unit.Walk(func(u *bytecomp.Unit) error {
		name := u.Code.Name
		if name == "" {
			name = "<anonymous>"
		}
		report.Units = append(report.Units, unitSummary{
			Kind:         u.Code.Kind.String(),
			Name:         name,
			Instructions: u.Code.InstructionCount(),
			Registers:    u.Code.FrameSize,
		})
		return nil
	})

	if asJSON {
		out, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			fmt.Println(err.Error())
			return 1
		}
		fmt.Println(string(out))
		return 0
	}
	fmt.Printf("Unit version: %d\n", report.Version)
	fmt.Printf("Compiler: %s\n", report.Compiler)
	fmt.Printf("Fingerprint: %s\n", report.Fingerprint)
	fmt.Printf("Payload bytes: %d\n", report.PayloadBytes)
	fmt.Printf("Units: %d\n", len(report.Units))
	for i, s := range report.Units {
		fmt.Printf("  [%d] %s %s: %d instructions, %d registers\n", i, s.Kind, s.Name, s.Instructions, s.Registers)
	}
	return 0
}

func cmdVerify(args []string) int {
	fs := flag.NewFlagSet("verify", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: bytecomp verify <input.jsbc>")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		return 1
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "verify requires exactly one input .jsbc file")
		fs.Usage()
		return 1
	}
	body, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		fmt.Println(err.Error())
		return 1
	}
	if _, err := bytecomp.DecodeUnit(body); err != nil {
		fmt.Println(err.Error())
		return 1
	}
	fmt.Println("unit: ok")
	return 0
}

func defaultUnitPath(input string) string {
	ext := filepath.Ext(input)
	if ext == "" {
		return input + ".jsbc"
	}
	return strings.TrimSuffix(input, ext) + ".jsbc"
}
