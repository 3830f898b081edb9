package bytecomp

import "github.com/tos-network/bytecomp/js/ast"

// resultType is a static description of the values an expression may
// produce. The bits are packed into the operand types word of arithmetic
// instructions.
type resultType uint8

const (
	typeInt32       resultType = 0x01
	typeMaybeNumber resultType = 0x04
	typeMaybeString resultType = 0x08
	typeMaybeNull   resultType = 0x10
	typeMaybeBool   resultType = 0x20
	typeMaybeOther  resultType = 0x40

	typeBits = typeMaybeNumber | typeMaybeString | typeMaybeNull | typeMaybeBool | typeMaybeOther
)

const (
	unknownType        = typeBits
	numberType         = typeMaybeNumber
	numberTypeIsInt32  = typeInt32 | typeMaybeNumber
	stringType         = typeMaybeString
	booleanType        = typeMaybeBool
	nullType           = typeMaybeNull
	stringOrNumberType = typeMaybeNumber | typeMaybeString
)

func (t resultType) isInt32() bool             { return t&typeInt32 != 0 }
func (t resultType) definitelyIsNumber() bool  { return t&typeBits == typeMaybeNumber }
func (t resultType) definitelyIsString() bool  { return t&typeBits == typeMaybeString }
func (t resultType) definitelyIsBoolean() bool { return t&typeBits == typeMaybeBool }

func addResultType(a, b resultType) resultType {
	if a.definitelyIsNumber() && b.definitelyIsNumber() {
		return numberType
	}
	if a.definitelyIsString() || b.definitelyIsString() {
		return stringType
	}
	return stringOrNumberType
}

func logicalResultType(a, b resultType) resultType {
	switch {
	case a.definitelyIsBoolean() && b.definitelyIsBoolean():
		return booleanType
	case a.definitelyIsNumber() && b.definitelyIsNumber():
		return numberType
	case a.definitelyIsString() && b.definitelyIsString():
		return stringType
	}
	return unknownType
}

// operandTypes packs the result types of both operands of a binary
// instruction.
func operandTypes(first, second resultType) int32 {
	return int32(first) | int32(second)<<8
}

// resultTypeOf returns the static result type of an expression. Types of
// inner nodes are computed once per Generator.
func (g *Generator) resultTypeOf(e ast.Expr) resultType {
	switch x := e.(type) {
	case *ast.NumberLiteral:
		if NumberValue(x.Value).IsInt32() {
			return numberTypeIsInt32
		}
		return numberType
	case *ast.StringLiteral:
		return stringType
	case *ast.BooleanLiteral:
		return booleanType
	case *ast.NullLiteral:
		return nullType
	case *ast.PostfixExpr, *ast.PrefixExpr:
		return numberType
	case *ast.UnaryExpr:
		switch x.Op {
		case "-", "+":
			return numberType
		case "~":
			return numberTypeIsInt32
		case "!", "delete":
			return booleanType
		case "typeof":
			return stringType
		}
	case *ast.BinaryExpr:
		switch x.Op {
		case "+":
			if t, ok := g.resultTypes[e]; ok {
				return t
			}
			t := addResultType(g.resultTypeOf(x.Left), g.resultTypeOf(x.Right))
			g.resultTypes[e] = t
			return t
		case "-", "*", "/", "%", ">>>":
			return numberType
		case "&", "|", "^", "<<", ">>":
			return numberTypeIsInt32
		case "==", "!=", "===", "!==", "<", "<=", ">", ">=", "in", "instanceof":
			return booleanType
		}
	case *ast.LogicalExpr:
		if t, ok := g.resultTypes[e]; ok {
			return t
		}
		t := logicalResultType(g.resultTypeOf(x.Left), g.resultTypeOf(x.Right))
		g.resultTypes[e] = t
		return t
	}
	return unknownType
}

// isStringAdd reports whether e is an addition statically known to produce
// a string, the precondition for strcat chaining.
func (g *Generator) isStringAdd(e ast.Expr) bool {
	b, ok := e.(*ast.BinaryExpr)
	return ok && b.Op == "+" && g.resultTypeOf(b).definitelyIsString()
}

func isStringLiteral(e ast.Expr) bool {
	_, ok := e.(*ast.StringLiteral)
	return ok
}

func isNullLiteral(e ast.Expr) bool {
	_, ok := e.(*ast.NullLiteral)
	return ok
}

// constantOf returns the compile-time value of a literal expression.
func constantOf(e ast.Expr) (Value, bool) {
	switch x := e.(type) {
	case *ast.NumberLiteral:
		return NumberValue(x.Value), true
	case *ast.StringLiteral:
		return StringValue(x.Value), true
	case *ast.BooleanLiteral:
		return BoolValue(x.Value), true
	case *ast.NullLiteral:
		return NullValue(), true
	}
	return Value{}, false
}

// hasAssignments reports whether evaluating e may write a variable. Bodies
// of nested function expressions are not looked at. Answers for inner
// nodes are remembered per Generator.
func (g *Generator) hasAssignments(e ast.Expr) bool {
	switch e.(type) {
	case nil, *ast.NullLiteral, *ast.BooleanLiteral, *ast.NumberLiteral, *ast.StringLiteral,
		*ast.RegExpLiteral, *ast.ThisExpr, *ast.Identifier, *ast.FunctionExpr:
		return false
	case *ast.AssignExpr, *ast.PostfixExpr, *ast.PrefixExpr:
		return true
	}
	if found, ok := g.assignments[e]; ok {
		return found
	}
	found := false
	visit := func(list ...ast.Expr) {
		for _, sub := range list {
			if found {
				return
			}
			found = g.hasAssignments(sub)
		}
	}
	switch x := e.(type) {
	case *ast.ArrayLiteral:
		visit(x.Elements...)
	case *ast.ObjectLiteral:
		for _, p := range x.Properties {
			visit(p.Value)
		}
	case *ast.BracketExpr:
		visit(x.Object, x.Subscript)
	case *ast.DotExpr:
		visit(x.Object)
	case *ast.NewExpr:
		visit(x.Callee)
		visit(x.Args...)
	case *ast.CallExpr:
		visit(x.Callee)
		visit(x.Args...)
	case *ast.UnaryExpr:
		visit(x.Operand)
	case *ast.BinaryExpr:
		visit(x.Left, x.Right)
	case *ast.LogicalExpr:
		visit(x.Left, x.Right)
	case *ast.ConditionalExpr:
		visit(x.Test, x.Consequent, x.Alternate)
	case *ast.CommaExpr:
		visit(x.List...)
	}
	g.assignments[e] = found
	return found
}

// isPure reports whether evaluating e has no side effects and cannot
// observe any.
func (g *Generator) isPure(e ast.Expr) bool {
	switch x := e.(type) {
	case *ast.NumberLiteral, *ast.StringLiteral, *ast.BooleanLiteral, *ast.NullLiteral, *ast.ThisExpr:
		return true
	case *ast.Identifier:
		return g.isLocal(x.Name)
	}
	return false
}

func isLocation(e ast.Expr) bool {
	switch e.(type) {
	case *ast.Identifier, *ast.DotExpr, *ast.BracketExpr:
		return true
	}
	return false
}
