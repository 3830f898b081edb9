package bytecomp

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"go.uber.org/multierr"
)

// NoRegister marks an absent optional register in a code block.
const NoRegister = math.MinInt32

// FunctionRef is an entry of the function declaration or expression table.
// Nested indexes the nested functions of the enclosing Unit.
type FunctionRef struct {
	Name   string
	Nested int
}

// SimpleJumpTable maps Min+i to Offsets[i]. A zero offset falls through to
// the default target of the switch.
type SimpleJumpTable struct {
	Min     int32
	Offsets []int32
}

type StringJumpTable struct {
	Offsets map[string]int32
}

// ExpressionRangeInfo maps an instruction to the source range an error
// raised by it should report.
type ExpressionRangeInfo struct {
	InstructionOffset int
	Divot             int
	StartOffset       int
	EndOffset         int
	Line              int
	Column            int
}

type LineInfo struct {
	InstructionOffset int
	Line              int
}

// HandlerInfo covers the instructions in [Start, End). ScopeDepth is the
// dynamic scope depth the handler runs at.
type HandlerInfo struct {
	Start      int
	End        int
	Target     int
	ScopeDepth int
}

type VarDeclaration struct {
	Name  string
	Const bool
}

// UnlinkedCodeBlock is the compiled form of one body, independent of any
// runtime. Jump operands are relative to the start of their instruction.
type UnlinkedCodeBlock struct { // {{{
	Kind          CodeKind
	Name          string
	SourceName    string
	Strict        bool
	IsConstructor bool

	Instructions  []int32
	FrameSize     int
	NumVars       int
	NumParameters int

	ThisRegister       int
	ActivationRegister int
	ArgumentsRegister  int

	Constants     []Value
	Identifiers   []string
	RegExps       []RegExpLiteral
	FunctionDecls []FunctionRef
	FunctionExprs []FunctionRef

	ExceptionHandlers     []HandlerInfo
	JumpTargets           []int
	ImmediateSwitchTables []SimpleJumpTable
	CharacterSwitchTables []SimpleJumpTable
	StringSwitchTables    []StringJumpTable

	ExpressionInfo []ExpressionRangeInfo
	LineInfo       []LineInfo

	SymbolTable   map[string]SymbolEntry
	CapturedVars  []string
	ProgramVars   []VarDeclaration
	EvalVars      []string
	EvalFunctions []int

	NeedsFullScopeChain      bool
	UsesArguments            bool
	UsesEval                 bool
	ExpressionTooDeep        bool
	IsNumericCompareFunction bool
} // }}}

// Instruction is one decoded instruction.
type Instruction struct {
	Offset   int
	Op       OpcodeID
	Operands []int32
}

// DecodeInstructions decodes the instruction stream. Decoding stops at the first
// invalid opcode or truncated instruction; Verify reports those.
func (cb *UnlinkedCodeBlock) DecodeInstructions() []Instruction {
	var out []Instruction
	words := cb.Instructions
	for pc := 0; pc < len(words); {
		op := OpcodeID(words[pc])
		n := op.Length()
		if !op.valid() || pc+n > len(words) {
			break
		}
		out = append(out, Instruction{Offset: pc, Op: op, Operands: words[pc+1 : pc+n]})
		pc += n
	}
	return out
}

// InstructionCount returns the number of decodable instructions.
func (cb *UnlinkedCodeBlock) InstructionCount() int { return len(cb.DecodeInstructions()) }

/* disassembler {{{ */

func (cb *UnlinkedCodeBlock) registerName(index int) string {
	switch {
	case index == NoRegister:
		return "<none>"
	case index >= FirstConstantRegisterIndex:
		k := index - FirstConstantRegisterIndex
		if k < len(cb.Constants) {
			return fmt.Sprintf("k%d(%s)", k, cb.Constants[k])
		}
		return fmt.Sprintf("k%d(?)", k)
	case index == cb.ThisRegister:
		return "this"
	case index < 0:
		return fmt.Sprintf("arg%d", index-cb.ThisRegister-1)
	}
	return fmt.Sprintf("r%d", index)
}

func (cb *UnlinkedCodeBlock) formatOperand(in Instruction, kind byte, v int32) string {
	switch kind {
	case 'r':
		return cb.registerName(int(v))
	case 'n':
		if int(v) >= 0 && int(v) < len(cb.Identifiers) {
			return fmt.Sprintf("id%d(%q)", v, cb.Identifiers[v])
		}
		return fmt.Sprintf("id%d(?)", v)
	case 'j':
		return fmt.Sprintf("%+d(->%d)", v, in.Offset+int(v))
	case 't':
		return fmt.Sprintf("t%d", v)
	case 'f':
		return fmt.Sprintf("f%d", v)
	case 'e':
		return fmt.Sprintf("e%d", v)
	case 'x':
		if int(v) >= 0 && int(v) < len(cb.RegExps) {
			re := cb.RegExps[v]
			return fmt.Sprintf("re%d(/%s/%s)", v, re.Pattern, re.Flags)
		}
		return fmt.Sprintf("re%d(?)", v)
	case 'o':
		return fmt.Sprintf("types(%d)", v)
	case 'h':
		return fmt.Sprintf("hint(%d)", v)
	case 'b':
		return fmt.Sprintf("%t", v != 0)
	}
	return fmt.Sprintf("%d", v)
}

func (cb *UnlinkedCodeBlock) formatInstruction(in Instruction) string {
	kinds := in.Op.OperandKinds()
	parts := make([]string, len(in.Operands))
	for i, v := range in.Operands {
		if in.Op == OpDebug && i == 0 {
			parts[i] = DebugHookID(v).String()
			continue
		}
		parts[i] = cb.formatOperand(in, kinds[i], v)
	}
	return fmt.Sprintf("[%4d] %-20s %s", in.Offset, in.Op, strings.Join(parts, ", "))
}

// String disassembles the code block.
func (cb *UnlinkedCodeBlock) String() string {
	var buf strings.Builder
	name := cb.Name
	if name == "" {
		name = "<anonymous>"
	}
	fmt.Fprintf(&buf, "%s %s: %d instructions, %d registers, %d vars, %d parameters\n",
		cb.Kind, name, cb.InstructionCount(), cb.FrameSize, cb.NumVars, cb.NumParameters)
	for _, in := range cb.DecodeInstructions() {
		buf.WriteString(strings.TrimRight(cb.formatInstruction(in), " "))
		buf.WriteByte('\n')
	}

	if len(cb.Constants) > 0 {
		buf.WriteString("\nconstants:\n")
		for i, v := range cb.Constants {
			fmt.Fprintf(&buf, "  k%d = %s\n", i, v)
		}
	}
	if len(cb.Identifiers) > 0 {
		buf.WriteString("\nidentifiers:\n")
		for i, id := range cb.Identifiers {
			fmt.Fprintf(&buf, "  id%d = %q\n", i, id)
		}
	}
	if len(cb.ExceptionHandlers) > 0 {
		buf.WriteString("\nexception handlers:\n")
		for i, h := range cb.ExceptionHandlers {
			fmt.Fprintf(&buf, "  %d: [%4d, %4d) -> %d depth=%d\n", i, h.Start, h.End, h.Target, h.ScopeDepth)
		}
	}
	writeSimpleTables := func(title string, tables []SimpleJumpTable) {
		for i, t := range tables {
			fmt.Fprintf(&buf, "\n%s t%d (min %d):\n", title, i, t.Min)
			for j, off := range t.Offsets {
				if off != 0 {
					fmt.Fprintf(&buf, "  %d: %+d\n", t.Min+int32(j), off)
				}
			}
		}
	}
	writeSimpleTables("immediate switch", cb.ImmediateSwitchTables)
	writeSimpleTables("character switch", cb.CharacterSwitchTables)
	for i, t := range cb.StringSwitchTables {
		fmt.Fprintf(&buf, "\nstring switch t%d:\n", i)
		keys := make([]string, 0, len(t.Offsets))
		for k := range t.Offsets {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&buf, "  %q: %+d\n", k, t.Offsets[k])
		}
	}
	return buf.String()
}

/* }}} */

/* verification {{{ */

// Verify checks the structural soundness of the code block and reports
// every violation found.
func (cb *UnlinkedCodeBlock) Verify() error {
	var err error
	words := cb.Instructions
	boundary := map[int]bool{}
	var insts []Instruction
	for pc := 0; pc < len(words); {
		op := OpcodeID(words[pc])
		if !op.valid() {
			err = multierr.Append(err, fmt.Errorf("[%d] invalid opcode %d", pc, words[pc]))
			break
		}
		n := op.Length()
		if pc+n > len(words) {
			err = multierr.Append(err, fmt.Errorf("[%d] %s: truncated instruction", pc, op))
			break
		}
		boundary[pc] = true
		insts = append(insts, Instruction{Offset: pc, Op: op, Operands: words[pc+1 : pc+n]})
		pc += n
	}

	checkTarget := func(in Instruction, rel int32) {
		if target := in.Offset + int(rel); !boundary[target] {
			err = multierr.Append(err, fmt.Errorf("[%d] %s: jump target %d is not an instruction", in.Offset, in.Op, target))
		}
	}
	inRange := func(in Instruction, what string, v int32, n int) {
		if v < 0 || int(v) >= n {
			err = multierr.Append(err, fmt.Errorf("[%d] %s: %s index %d out of range [0,%d)", in.Offset, in.Op, what, v, n))
		}
	}

	for _, in := range insts {
		kinds := in.Op.OperandKinds()
		for i, v := range in.Operands {
			switch kinds[i] {
			case 'r':
				if e := cb.checkRegister(int(v)); e != nil {
					err = multierr.Append(err, fmt.Errorf("[%d] %s: %w", in.Offset, in.Op, e))
				}
			case 'n':
				inRange(in, "identifier", v, len(cb.Identifiers))
			case 'j':
				checkTarget(in, v)
			case 'f':
				inRange(in, "function declaration", v, len(cb.FunctionDecls))
			case 'e':
				inRange(in, "function expression", v, len(cb.FunctionExprs))
			case 'x':
				inRange(in, "regexp", v, len(cb.RegExps))
			case 't':
				switch in.Op {
				case OpSwitchImm:
					inRange(in, "immediate switch table", v, len(cb.ImmediateSwitchTables))
					if int(v) >= 0 && int(v) < len(cb.ImmediateSwitchTables) {
						for _, off := range cb.ImmediateSwitchTables[v].Offsets {
							if off != 0 {
								checkTarget(in, off)
							}
						}
					}
				case OpSwitchChar:
					inRange(in, "character switch table", v, len(cb.CharacterSwitchTables))
					if int(v) >= 0 && int(v) < len(cb.CharacterSwitchTables) {
						for _, off := range cb.CharacterSwitchTables[v].Offsets {
							if off != 0 {
								checkTarget(in, off)
							}
						}
					}
				case OpSwitchString:
					inRange(in, "string switch table", v, len(cb.StringSwitchTables))
					if int(v) >= 0 && int(v) < len(cb.StringSwitchTables) {
						for _, off := range cb.StringSwitchTables[v].Offsets {
							checkTarget(in, off)
						}
					}
				}
			}
		}
	}

	for i, h := range cb.ExceptionHandlers {
		switch {
		case h.Start < 0 || h.End <= h.Start || h.End > len(words):
			err = multierr.Append(err, fmt.Errorf("handler %d: bad range [%d, %d)", i, h.Start, h.End))
		case !boundary[h.Start] || (h.End != len(words) && !boundary[h.End]):
			err = multierr.Append(err, fmt.Errorf("handler %d: range [%d, %d) splits an instruction", i, h.Start, h.End))
		}
		if !boundary[h.Target] {
			err = multierr.Append(err, fmt.Errorf("handler %d: target %d is not an instruction", i, h.Target))
		}
		if h.ScopeDepth < 0 {
			err = multierr.Append(err, fmt.Errorf("handler %d: negative scope depth %d", i, h.ScopeDepth))
		}
	}
	return err
}

func (cb *UnlinkedCodeBlock) checkRegister(index int) error {
	switch {
	case index >= FirstConstantRegisterIndex:
		if k := index - FirstConstantRegisterIndex; k >= len(cb.Constants) {
			return fmt.Errorf("constant k%d out of range [0,%d)", k, len(cb.Constants))
		}
	case index >= 0:
		if index >= cb.FrameSize {
			return fmt.Errorf("register r%d outside frame of %d", index, cb.FrameSize)
		}
	case index < cb.ThisRegister:
		return fmt.Errorf("register %d below this (%d)", index, cb.ThisRegister)
	case index > cb.ThisRegister && index-cb.ThisRegister-1 >= cb.NumParameters-1:
		return fmt.Errorf("register %d is not a parameter", index)
	}
	return nil
}

/* }}} */
