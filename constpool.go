package bytecomp

import (
	"math"
	"strconv"
)

type ValueKind uint8

const (
	KindUndefined ValueKind = iota
	KindNull
	KindBool
	KindNumber
	KindString
	KindEmpty
)

// Value is a compile-time constant.
type Value struct {
	Kind   ValueKind
	Bool   bool
	Number float64
	Str    string
}

func UndefinedValue() Value       { return Value{Kind: KindUndefined} }
func NullValue() Value            { return Value{Kind: KindNull} }
func EmptyValue() Value           { return Value{Kind: KindEmpty} }
func BoolValue(b bool) Value      { return Value{Kind: KindBool, Bool: b} }
func NumberValue(n float64) Value { return Value{Kind: KindNumber, Number: n} }
func StringValue(s string) Value  { return Value{Kind: KindString, Str: s} }

func (v Value) IsString() bool { return v.Kind == KindString }
func (v Value) IsNumber() bool { return v.Kind == KindNumber }

// IsInt32 reports whether v is a number that is exactly an int32 and not -0.
func (v Value) IsInt32() bool {
	if v.Kind != KindNumber {
		return false
	}
	n := v.Number
	if n != math.Trunc(n) || n < math.MinInt32 || n > math.MaxInt32 {
		return false
	}
	return n != 0 || !math.Signbit(n)
}

type triState int

const (
	falseTriState triState = iota
	trueTriState
	mixedTriState
)

// pureToBoolean is the ToBoolean conversion when it has no side effects.
func (v Value) pureToBoolean() triState {
	var b bool
	switch v.Kind {
	case KindUndefined, KindNull:
		b = false
	case KindBool:
		b = v.Bool
	case KindNumber:
		b = v.Number != 0 && !math.IsNaN(v.Number)
	case KindString:
		b = v.Str != ""
	default:
		return mixedTriState
	}
	if b {
		return trueTriState
	}
	return falseTriState
}

func (v Value) String() string {
	switch v.Kind {
	case KindUndefined:
		return "undefined"
	case KindNull:
		return "null"
	case KindBool:
		return strconv.FormatBool(v.Bool)
	case KindNumber:
		if math.IsInf(v.Number, 1) {
			return "Infinity"
		} else if math.IsInf(v.Number, -1) {
			return "-Infinity"
		} else if math.IsNaN(v.Number) {
			return "NaN"
		} else if v.Number == 0 && math.Signbit(v.Number) {
			return "-0"
		}
		return strconv.FormatFloat(v.Number, 'g', -1, 64)
	case KindString:
		return strconv.Quote(v.Str)
	case KindEmpty:
		return "<empty>"
	}
	return "?"
}

// RegExpLiteral is an entry of the regexp table.
type RegExpLiteral struct {
	Pattern string
	Flags   string
}

/* constant pool {{{ */

type constantPool struct {
	values  []Value
	numbers map[uint64]int
	strings map[string]int
	tags    map[Value]int

	identifiers []string
	identMap    map[string]int

	regexps   []RegExpLiteral
	regexpMap map[RegExpLiteral]int
}

func newConstantPool() *constantPool {
	return &constantPool{
		numbers:   map[uint64]int{},
		strings:   map[string]int{},
		tags:      map[Value]int{},
		identMap:  map[string]int{},
		regexpMap: map[RegExpLiteral]int{},
	}
}

// add returns the pool offset of v, adding it on first use.
func (cp *constantPool) add(v Value) (int, bool) {
	var index int
	var ok bool
	switch v.Kind {
	case KindNumber:
		index, ok = cp.numbers[math.Float64bits(v.Number)]
	case KindString:
		index, ok = cp.strings[v.Str]
	default:
		key := Value{Kind: v.Kind, Bool: v.Bool}
		index, ok = cp.tags[key]
	}
	if ok {
		return index, false
	}
	index = len(cp.values)
	cp.values = append(cp.values, v)
	switch v.Kind {
	case KindNumber:
		cp.numbers[math.Float64bits(v.Number)] = index
	case KindString:
		cp.strings[v.Str] = index
	default:
		cp.tags[Value{Kind: v.Kind, Bool: v.Bool}] = index
	}
	return index, true
}

func (cp *constantPool) addIdentifier(name string) int {
	if index, ok := cp.identMap[name]; ok {
		return index
	}
	index := len(cp.identifiers)
	cp.identifiers = append(cp.identifiers, name)
	cp.identMap[name] = index
	return index
}

func (cp *constantPool) addRegExp(pattern, flags string) int {
	key := RegExpLiteral{Pattern: pattern, Flags: flags}
	if index, ok := cp.regexpMap[key]; ok {
		return index
	}
	index := len(cp.regexps)
	cp.regexps = append(cp.regexps, key)
	cp.regexpMap[key] = index
	return index
}

// addConstantValue returns the constant register holding v.
func (g *Generator) addConstantValue(v Value) *Register {
	index, added := g.constants.add(v)
	if added {
		g.constantRegisters = append(g.constantRegisters, &Register{index: FirstConstantRegisterIndex + index})
	}
	return g.constantRegisters[index]
}

func (g *Generator) addIdentifier(name string) int { return g.constants.addIdentifier(name) }

func (g *Generator) constantValue(r *Register) (Value, bool) {
	if r == nil || !r.isConstant() {
		return Value{}, false
	}
	return g.constants.values[r.index-FirstConstantRegisterIndex], true
}

// emitLoad materializes v. With a nil dst the constant register itself is
// returned and nothing is emitted.
func (g *Generator) emitLoad(dst *Register, v Value) *Register {
	k := g.addConstantValue(v)
	if dst != nil && dst != g.ignored {
		return g.emitMove(dst, k)
	}
	return k
}

/* }}} */
