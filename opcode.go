package bytecomp

import "fmt"

// OpcodeID identifies one instruction of the register machine. An
// instruction occupies Length() words: the opcode followed by its operands.
type OpcodeID int32

/*
operand kinds, one letter per operand:

	r  register (callee register, parameter or constant)
	n  identifier table index
	i  immediate integer
	j  jump offset relative to the start of the instruction
	t  switch jump table index
	f  function declaration table index
	e  function expression table index
	x  regexp table index
	o  operand types word
	h  property count hint written by the static property analyzer
	b  boolean immediate
*/

const (
	OpEnter OpcodeID = iota
	OpCreateActivation
	OpInitLazyReg
	OpCreateArguments
	OpCreateThis
	OpGetCallee
	OpConvertThis

	OpNewObject
	OpNewArray
	OpNewRegExp

	OpMov
	OpNot
	OpNegate
	OpToNumber
	OpToPrimitive
	OpTypeof
	OpIsUndefined
	OpIsBoolean
	OpIsNumber
	OpIsString
	OpIsObject
	OpIsFunction
	OpEqNull
	OpNeqNull
	OpInc
	OpDec

	OpAdd
	OpMul
	OpDiv
	OpSub
	OpBitAnd
	OpBitOr
	OpBitXor
	OpMod
	OpLShift
	OpRShift
	OpURShift
	OpEq
	OpNeq
	OpStrictEq
	OpNStrictEq
	OpLess
	OpLessEq
	OpGreater
	OpGreaterEq
	OpIn
	OpInstanceOf
	OpCheckHasInstance

	OpResolve
	OpResolveBase
	OpResolveWithBase
	OpResolveWithThis
	OpGetScopedVar
	OpPutScopedVar
	OpInitGlobalConst
	OpPutToBase

	OpGetByID
	OpPutByID
	OpPutByIDDirect
	OpDelByID
	OpGetByVal
	OpPutByVal
	OpDelByVal
	OpPutByIndex
	OpPutGetterSetter

	OpGetByPName
	OpGetPNames
	OpNextPName

	OpJmp
	OpJTrue
	OpJFalse
	OpJEqNull
	OpJNeqNull
	OpJLess
	OpJLessEq
	OpJGreater
	OpJGreaterEq
	OpJNLess
	OpJNLessEq
	OpJNGreater
	OpJNGreaterEq
	OpLoopHint

	OpSwitchImm
	OpSwitchChar
	OpSwitchString

	OpNewFunc
	OpNewFuncExp
	OpCall
	OpCallEval
	OpConstruct
	OpCallPutResult

	OpTearOffActivation
	OpTearOffArguments
	OpRet
	OpRetObjectOrThis
	OpEnd

	OpThrow
	OpThrowStaticError
	OpCatch
	OpPushWithScope
	OpPushNameScope
	OpPopScope

	OpStrcat
	OpDebug
	OpProfileWillCall
	OpProfileDidCall

	opcodeMax
)

// opNone marks an empty peephole slot.
const opNone OpcodeID = -1

type opcodeInfo struct {
	name     string
	operands string
}

var opcodeTable = [opcodeMax]opcodeInfo{
	OpEnter:            {"enter", ""},
	OpCreateActivation: {"create_activation", "r"},
	OpInitLazyReg:      {"init_lazy_reg", "r"},
	OpCreateArguments:  {"create_arguments", "r"},
	OpCreateThis:       {"create_this", "rrh"},
	OpGetCallee:        {"get_callee", "r"},
	OpConvertThis:      {"convert_this", "r"},

	OpNewObject: {"new_object", "rh"},
	OpNewArray:  {"new_array", "rri"},
	OpNewRegExp: {"new_regexp", "rx"},

	OpMov:         {"mov", "rr"},
	OpNot:         {"not", "rr"},
	OpNegate:      {"negate", "rr"},
	OpToNumber:    {"to_number", "rr"},
	OpToPrimitive: {"to_primitive", "rr"},
	OpTypeof:      {"typeof", "rr"},
	OpIsUndefined: {"is_undefined", "rr"},
	OpIsBoolean:   {"is_boolean", "rr"},
	OpIsNumber:    {"is_number", "rr"},
	OpIsString:    {"is_string", "rr"},
	OpIsObject:    {"is_object", "rr"},
	OpIsFunction:  {"is_function", "rr"},
	OpEqNull:      {"eq_null", "rr"},
	OpNeqNull:     {"neq_null", "rr"},
	OpInc:         {"inc", "r"},
	OpDec:         {"dec", "r"},

	OpAdd:              {"add", "rrro"},
	OpMul:              {"mul", "rrro"},
	OpDiv:              {"div", "rrro"},
	OpSub:              {"sub", "rrro"},
	OpBitAnd:           {"bitand", "rrro"},
	OpBitOr:            {"bitor", "rrro"},
	OpBitXor:           {"bitxor", "rrro"},
	OpMod:              {"mod", "rrr"},
	OpLShift:           {"lshift", "rrr"},
	OpRShift:           {"rshift", "rrr"},
	OpURShift:          {"urshift", "rrr"},
	OpEq:               {"eq", "rrr"},
	OpNeq:              {"neq", "rrr"},
	OpStrictEq:         {"stricteq", "rrr"},
	OpNStrictEq:        {"nstricteq", "rrr"},
	OpLess:             {"less", "rrr"},
	OpLessEq:           {"lesseq", "rrr"},
	OpGreater:          {"greater", "rrr"},
	OpGreaterEq:        {"greatereq", "rrr"},
	OpIn:               {"in", "rrr"},
	OpInstanceOf:       {"instanceof", "rrr"},
	OpCheckHasInstance: {"check_has_instance", "rrrj"},

	OpResolve:         {"resolve", "rn"},
	OpResolveBase:     {"resolve_base", "rnb"},
	OpResolveWithBase: {"resolve_with_base", "rrn"},
	OpResolveWithThis: {"resolve_with_this", "rrn"},
	OpGetScopedVar:    {"get_scoped_var", "rii"},
	OpPutScopedVar:    {"put_scoped_var", "iir"},
	OpInitGlobalConst: {"init_global_const", "nr"},
	OpPutToBase:       {"put_to_base", "rnr"},

	OpGetByID:         {"get_by_id", "rrn"},
	OpPutByID:         {"put_by_id", "rnr"},
	OpPutByIDDirect:   {"put_by_id_direct", "rnr"},
	OpDelByID:         {"del_by_id", "rrn"},
	OpGetByVal:        {"get_by_val", "rrr"},
	OpPutByVal:        {"put_by_val", "rrr"},
	OpDelByVal:        {"del_by_val", "rrr"},
	OpPutByIndex:      {"put_by_index", "rir"},
	OpPutGetterSetter: {"put_getter_setter", "rnrr"},

	OpGetByPName: {"get_by_pname", "rrrrrr"},
	OpGetPNames:  {"get_pnames", "rrrrj"},
	OpNextPName:  {"next_pname", "rrrrrj"},

	OpJmp:         {"jmp", "j"},
	OpJTrue:       {"jtrue", "rj"},
	OpJFalse:      {"jfalse", "rj"},
	OpJEqNull:     {"jeq_null", "rj"},
	OpJNeqNull:    {"jneq_null", "rj"},
	OpJLess:       {"jless", "rrj"},
	OpJLessEq:     {"jlesseq", "rrj"},
	OpJGreater:    {"jgreater", "rrj"},
	OpJGreaterEq:  {"jgreatereq", "rrj"},
	OpJNLess:      {"jnless", "rrj"},
	OpJNLessEq:    {"jnlesseq", "rrj"},
	OpJNGreater:   {"jngreater", "rrj"},
	OpJNGreaterEq: {"jngreatereq", "rrj"},
	OpLoopHint:    {"loop_hint", ""},

	OpSwitchImm:    {"switch_imm", "tjr"},
	OpSwitchChar:   {"switch_char", "tjr"},
	OpSwitchString: {"switch_string", "tjr"},

	OpNewFunc:       {"new_func", "rfb"},
	OpNewFuncExp:    {"new_func_exp", "re"},
	OpCall:          {"call", "rii"},
	OpCallEval:      {"call_eval", "rii"},
	OpConstruct:     {"construct", "rii"},
	OpCallPutResult: {"call_put_result", "r"},

	OpTearOffActivation: {"tear_off_activation", "r"},
	OpTearOffArguments:  {"tear_off_arguments", "rr"},
	OpRet:               {"ret", "r"},
	OpRetObjectOrThis:   {"ret_object_or_this", "rr"},
	OpEnd:               {"end", "r"},

	OpThrow:            {"throw", "r"},
	OpThrowStaticError: {"throw_static_error", "rb"},
	OpCatch:            {"catch", "r"},
	OpPushWithScope:    {"push_with_scope", "r"},
	OpPushNameScope:    {"push_name_scope", "nri"},
	OpPopScope:         {"pop_scope", ""},

	OpStrcat:          {"strcat", "rri"},
	OpDebug:           {"debug", "iiii"},
	OpProfileWillCall: {"profile_will_call", "r"},
	OpProfileDidCall:  {"profile_did_call", "r"},
}

var opcodeByName map[string]OpcodeID

func init() {
	opcodeByName = make(map[string]OpcodeID, len(opcodeTable))
	for op, info := range opcodeTable {
		opcodeByName[info.name] = OpcodeID(op)
	}
}

func (op OpcodeID) valid() bool { return op >= 0 && op < opcodeMax }

func (op OpcodeID) String() string {
	if !op.valid() {
		return fmt.Sprintf("op(%d)", int32(op))
	}
	return opcodeTable[op].name
}

// Length is the number of instruction words the opcode occupies, including
// the opcode itself.
func (op OpcodeID) Length() int {
	if !op.valid() {
		return 1
	}
	return 1 + len(opcodeTable[op].operands)
}

// OperandKinds returns the operand kind letters of the opcode.
func (op OpcodeID) OperandKinds() string {
	if !op.valid() {
		return ""
	}
	return opcodeTable[op].operands
}

// IsJump reports whether any operand of op is a relative jump offset.
func (op OpcodeID) IsJump() bool {
	for _, k := range op.OperandKinds() {
		if k == 'j' {
			return true
		}
	}
	return false
}

// LookupOpcode returns the opcode with the given mnemonic.
func LookupOpcode(name string) (OpcodeID, bool) {
	op, ok := opcodeByName[name]
	return op, ok
}

// Calling convention constants shared with the interpreter.
const (
	FirstConstantRegisterIndex = 0x40000000
	CallFrameHeaderSize        = 6
)

// DebugHookID is the first operand of a debug instruction.
type DebugHookID int

const (
	WillExecuteProgram DebugHookID = iota
	DidExecuteProgram
	DidEnterCallFrame
	DidReachBreakpoint
	WillLeaveCallFrame
	WillExecuteStatement
)

var debugHookNames = [...]string{
	"willExecuteProgram",
	"didExecuteProgram",
	"didEnterCallFrame",
	"didReachBreakpoint",
	"willLeaveCallFrame",
	"willExecuteStatement",
}

func (id DebugHookID) String() string {
	if id < 0 || int(id) >= len(debugHookNames) {
		return fmt.Sprintf("hook(%d)", int(id))
	}
	return debugHookNames[id]
}

// Property attributes carried by push_name_scope.
const (
	AttrReadOnly   = 1 << 1
	AttrDontEnum   = 1 << 2
	AttrDontDelete = 1 << 3
)
