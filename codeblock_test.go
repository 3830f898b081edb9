package bytecomp

import (
	"strings"
	"testing"
)

func TestVerifyReportsBrokenBlocks(t *testing.T) {
	cases := []struct {
		name string
		cb   *UnlinkedCodeBlock
		want string
	}{
		{"invalid opcode", &UnlinkedCodeBlock{Instructions: []int32{int32(opcodeMax) + 3}}, "invalid opcode"},
		{"truncated", &UnlinkedCodeBlock{Instructions: []int32{int32(OpMov), 0}, FrameSize: 1}, "truncated instruction"},
		{"jump target", &UnlinkedCodeBlock{Instructions: []int32{int32(OpJmp), 100}}, "jump target"},
		{"register", &UnlinkedCodeBlock{Instructions: []int32{int32(OpMov), 0, 5}, FrameSize: 1}, "outside frame"},
		{"constant", &UnlinkedCodeBlock{
			Instructions: []int32{int32(OpMov), 0, int32(FirstConstantRegisterIndex)},
			FrameSize:    1,
		}, "constant k0"},
		{"identifier", &UnlinkedCodeBlock{Instructions: []int32{int32(OpInitGlobalConst), 0, 0}, FrameSize: 1}, "identifier index"},
		{"handler", &UnlinkedCodeBlock{
			Instructions:      []int32{int32(OpEnter)},
			ExceptionHandlers: []HandlerInfo{{Start: 0, End: 5, Target: 0}},
		}, "bad range"},
	}
	for _, c := range cases {
		err := c.cb.Verify()
		if err == nil || !strings.Contains(err.Error(), c.want) {
			t.Fatalf("%s: error got=%v want containing %q", c.name, err, c.want)
		}
	}
}

func TestVerifyAcceptsJumps(t *testing.T) {
	cb := &UnlinkedCodeBlock{
		Instructions: []int32{int32(OpEnter), int32(OpJmp), 2, int32(OpMov), 0, 0, int32(OpEnd), 0},
		FrameSize:    1,
	}
	if err := cb.Verify(); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if got := cb.InstructionCount(); got != 4 {
		t.Fatalf("instructions: got=%d want=4", got)
	}
}

func TestDisassembly(t *testing.T) {
	u := compileProgram(t, varStmt("x", num(1)), exprStmt(call("f", ident("x"))))
	out := u.Code.String()
	if !strings.HasPrefix(out, "program <anonymous>: ") {
		t.Fatalf("header: got=%q", strings.SplitN(out, "\n", 2)[0])
	}
	for _, want := range []string{"enter", "call", "end", "constants:", "identifiers:", `"x"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("disassembly missing %q:\n%s", want, out)
		}
	}
}
