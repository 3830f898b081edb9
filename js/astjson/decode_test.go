package astjson

import (
	"errors"
	"strings"
	"testing"

	"golang.org/x/text/encoding/unicode"

	"github.com/tos-network/bytecomp/js/ast"
	"github.com/tos-network/bytecomp/js/diag"
)

const sample = `{
  "type": "Program",
  "body": [
    {"type": "ExpressionStatement", "directive": "use strict",
     "expression": {"type": "Literal", "value": "use strict"}},
    {"type": "VariableDeclaration", "kind": "var", "declarations": [
      {"type": "VariableDeclarator", "id": {"type": "Identifier", "name": "x"},
       "init": {"type": "BinaryExpression", "operator": "+",
                "left": {"type": "Literal", "value": 1, "start": 8, "end": 9},
                "right": {"type": "Literal", "value": 2}}}
    ]},
    {"type": "FunctionDeclaration", "id": {"type": "Identifier", "name": "f"},
     "params": [{"type": "Identifier", "name": "a"}],
     "body": {"type": "BlockStatement", "body": [
       {"type": "ReturnStatement", "argument": {"type": "Identifier", "name": "x"}}
     ]}}
  ]
}`

func TestDecodeProgram(t *testing.T) {
	prog, err := Decode(strings.NewReader(sample), "sample.json")
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if prog.SourceName != "sample.json" {
		t.Fatalf("source name: got=%q want=%q", prog.SourceName, "sample.json")
	}
	body := prog.Body
	if !body.Strict {
		t.Fatalf("strict: got=false want=true")
	}
	if len(body.Statements) != 3 {
		t.Fatalf("statements: got=%d want=3", len(body.Statements))
	}
	vs, ok := body.Statements[1].(*ast.VarStmt)
	if !ok || len(vs.List) != 1 || vs.List[0].Name != "x" {
		t.Fatalf("var statement: got=%#v", body.Statements[1])
	}
	bin, ok := vs.List[0].Init.(*ast.BinaryExpr)
	if !ok || bin.Op != "+" {
		t.Fatalf("initializer: got=%#v", vs.List[0].Init)
	}
	if bin.Loc.Divot != 9 {
		t.Fatalf("divot: got=%d want=9", bin.Loc.Divot)
	}
	if len(body.Vars) != 1 || body.Vars[0].Name != "x" {
		t.Fatalf("annotated vars: got=%v", body.Vars)
	}
	if len(body.Functions) != 1 || body.Functions[0].Name != "f" {
		t.Fatalf("annotated functions: got=%v", body.Functions)
	}
	if got := body.Functions[0].Body.Params; len(got) != 1 || got[0] != "a" {
		t.Fatalf("params: got=%v want=[a]", got)
	}
}

func TestDecodeUTF16WithBOM(t *testing.T) {
	for _, endian := range []unicode.Endianness{unicode.LittleEndian, unicode.BigEndian} {
		enc := unicode.UTF16(endian, unicode.UseBOM).NewEncoder()
		data, err := enc.String(sample)
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		prog, err := DecodeBytes([]byte(data), "utf16.json")
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if got := len(prog.Body.Statements); got != 3 {
			t.Fatalf("statements: got=%d want=3", got)
		}
	}
}

func TestDecodeUTF8WithBOM(t *testing.T) {
	prog, err := DecodeBytes(append([]byte{0xEF, 0xBB, 0xBF}, sample...), "bom.json")
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got := len(prog.Body.Statements); got != 3 {
		t.Fatalf("statements: got=%d want=3", got)
	}
}

func TestDecodeUnknownNode(t *testing.T) {
	src := `{"type": "Program", "body": [
	  {"type": "ExpressionStatement", "expression": {"type": "YieldExpression",
	   "loc": {"start": {"line": 1, "column": 4}, "end": {"line": 1, "column": 9}}}}
	]}`
	_, err := DecodeBytes([]byte(src), "bad.json")
	var d diag.Diagnostic
	if !errors.As(err, &d) {
		t.Fatalf("error type: got=%T want=diag.Diagnostic", err)
	}
	if d.Code != diag.CodeInputUnknownNode {
		t.Fatalf("code: got=%s want=%s", d.Code, diag.CodeInputUnknownNode)
	}
	if !strings.Contains(d.Message, "$.body[0].expression") {
		t.Fatalf("message: got=%q want path $.body[0].expression", d.Message)
	}
	if d.Span.Start.Line != 1 || d.Span.Start.Column != 5 {
		t.Fatalf("position: got=%v want=1:5", d.Span.Start)
	}
}

func TestDecodeMalformedJSON(t *testing.T) {
	_, err := DecodeBytes([]byte(`{"type": "Program", "body": [`), "trunc.json")
	var d diag.Diagnostic
	if !errors.As(err, &d) || d.Code != diag.CodeInputDecode {
		t.Fatalf("error: got=%v want code %s", err, diag.CodeInputDecode)
	}
}

func TestDecodeStatementsAndExpressions(t *testing.T) {
	src := `{"type": "Program", "body": [
	  {"type": "ForInStatement",
	   "left": {"type": "VariableDeclaration", "kind": "var", "declarations": [
	     {"type": "VariableDeclarator", "id": {"type": "Identifier", "name": "k"}}]},
	   "right": {"type": "Identifier", "name": "o"},
	   "body": {"type": "EmptyStatement"}},
	  {"type": "ExpressionStatement", "expression": {"type": "ObjectExpression", "properties": [
	    {"type": "Property", "kind": "get", "key": {"type": "Identifier", "name": "a"},
	     "value": {"type": "FunctionExpression", "params": [],
	               "body": {"type": "BlockStatement", "body": []}}},
	    {"type": "Property", "kind": "init", "key": {"type": "Literal", "value": 1},
	     "value": {"type": "ArrayExpression", "elements": [null, {"type": "Literal", "value": null}]}}
	  ]}},
	  {"type": "TryStatement", "block": {"type": "BlockStatement", "body": []},
	   "handler": {"type": "CatchClause", "param": {"type": "Identifier", "name": "e"},
	               "body": {"type": "BlockStatement", "body": []}}},
	  {"type": "ExpressionStatement", "expression": {"type": "UpdateExpression", "operator": "++",
	   "prefix": false, "argument": {"type": "MemberExpression", "computed": true,
	     "object": {"type": "Identifier", "name": "o"}, "property": {"type": "Literal", "value": "p"}}}}
	]}`
	prog, err := DecodeBytes([]byte(src), "mixed.json")
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	stmts := prog.Body.Statements

	forIn, ok := stmts[0].(*ast.ForInStmt)
	if !ok || !forIn.Declare {
		t.Fatalf("for-in: got=%#v", stmts[0])
	}
	if id, ok := forIn.Target.(*ast.Identifier); !ok || id.Name != "k" {
		t.Fatalf("for-in target: got=%#v", forIn.Target)
	}

	obj := stmts[1].(*ast.ExprStmt).Expr.(*ast.ObjectLiteral)
	if len(obj.Properties) != 2 {
		t.Fatalf("properties: got=%d want=2", len(obj.Properties))
	}
	if p := obj.Properties[0]; p.Kind != ast.PropertyGetter || p.Key != "a" {
		t.Fatalf("getter: got=%+v", p)
	}
	if p := obj.Properties[1]; p.Kind != ast.PropertyValue || p.Key != "1" {
		t.Fatalf("numeric key: got=%+v", p)
	}
	arr := obj.Properties[1].Value.(*ast.ArrayLiteral)
	if arr.Elements[0] != nil {
		t.Fatalf("hole: got=%#v want=nil", arr.Elements[0])
	}
	if _, ok := arr.Elements[1].(*ast.NullLiteral); !ok {
		t.Fatalf("null element: got=%#v", arr.Elements[1])
	}

	try := stmts[2].(*ast.TryStmt)
	if try.Param != "e" || try.Catch == nil || try.Finally != nil {
		t.Fatalf("try: got=%+v", try)
	}
	if !prog.Body.Features.Has(ast.ContainsCatch) {
		t.Fatalf("features: got=%b want ContainsCatch", prog.Body.Features)
	}

	post := stmts[3].(*ast.ExprStmt).Expr.(*ast.PostfixExpr)
	if _, ok := post.Target.(*ast.BracketExpr); !ok || post.Op != "++" {
		t.Fatalf("postfix: got=%#v", post)
	}
}

func TestDecodeRejectsLet(t *testing.T) {
	src := `{"type": "Program", "body": [{"type": "VariableDeclaration", "kind": "let", "declarations": []}]}`
	_, err := DecodeBytes([]byte(src), "let.json")
	var d diag.Diagnostic
	if !errors.As(err, &d) || d.Code != diag.CodeInputUnknownNode {
		t.Fatalf("error: got=%v want code %s", err, diag.CodeInputUnknownNode)
	}
}
