package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/chzyer/readline"

	"github.com/tos-network/bytecomp"
	"github.com/tos-network/bytecomp/js/astjson"
)

func cmdRepl(args []string) int {
	fs := flag.NewFlagSet("repl", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var cf compileFlags
	cf.register(fs, true)
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		return 1
	}
	opts, err := cf.options(fs)
	if err != nil {
		fmt.Println(err.Error())
		return 1
	}
	defer opts.Logger.Sync()

	fmt.Println(bytecomp.PackageName + " " + bytecomp.PackageVersion)
	rl, err := readline.New("> ")
	if err != nil {
		fmt.Println(err.Error())
		return 1
	}
	defer rl.Close()
	for {
		src, err := loadline(rl)
		if err != nil { // EOF or interrupt
			return 0
		}
		if out, err := compileSnippet(src, opts); err != nil {
			fmt.Println(err)
		} else {
			fmt.Print(out)
		}
	}
}

func compileSnippet(src string, opts bytecomp.Options) (string, error) {
	prog, err := astjson.DecodeBytes([]byte(src), "<repl>")
	if err != nil {
		return "", err
	}
	unit, err := bytecomp.Compile(context.Background(), prog, opts)
	if err != nil {
		return "", err
	}
	return dumpUnit(unit), nil
}

func loadline(rl *readline.Instance) (string, error) {
	rl.SetPrompt("> ")
	line, err := rl.Readline()
	if err != nil {
		return "", err
	}
	return multiline(line, rl)
}

func multiline(ml string, rl *readline.Instance) (string, error) {
	for incomplete(ml) {
		rl.SetPrompt(">> ")
		line, err := rl.Readline()
		if err != nil {
			return "", err
		}
		ml = ml + "\n" + line
	}
	return ml, nil
}

// incomplete reports whether src ends inside a string or an unclosed object
// or array. Malformed input counts as complete so the decoder reports it.
func incomplete(src string) bool {
	depth := 0
	inString, escaped := false, false
	for _, c := range src {
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{' || c == '[':
			depth++
		case c == '}' || c == ']':
			depth--
		}
	}
	return inString || depth > 0
}
