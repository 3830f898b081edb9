package ast

import (
	"reflect"
	"testing"
)

func ident(name string) *Identifier { return &Identifier{Name: name} }

func TestAnnotateHoistsVarsAndFunctions(t *testing.T) {
	inner := &FunctionLiteral{Name: "g", Body: &FunctionBody{}}
	body := &FunctionBody{
		Statements: []Stmt{
			&VarStmt{List: []VarDeclarator{{Name: "a"}}},
			&BlockStmt{List: []Stmt{
				&ConstStmt{List: []VarDeclarator{{Name: "b", Init: &NumberLiteral{Value: 1}}}},
				&FunctionDecl{Func: inner},
			}},
			&ForInStmt{Declare: true, Target: ident("k"), Object: ident("o"), Body: &EmptyStmt{}},
			&VarStmt{List: []VarDeclarator{{Name: "a"}}},
		},
	}
	Annotate(body)

	want := []VarDecl{{Name: "a"}, {Name: "b", Const: true}, {Name: "k"}}
	if !reflect.DeepEqual(body.Vars, want) {
		t.Fatalf("vars: got=%v want=%v", body.Vars, want)
	}
	if len(body.Functions) != 1 || body.Functions[0] != inner {
		t.Fatalf("functions: got=%v want=[g]", body.Functions)
	}
	if len(body.Captured) != 0 {
		t.Fatalf("captured: got=%v want=[]", body.Captured)
	}
}

func TestAnnotateFeatures(t *testing.T) {
	body := &FunctionBody{
		Statements: []Stmt{
			&ExprStmt{Expr: &CallExpr{Callee: ident("eval"), Args: []Expr{&StringLiteral{Value: "1"}}}},
			&ExprStmt{Expr: &ThisExpr{}},
			&ExprStmt{Expr: ident("arguments")},
			&WithStmt{Object: ident("o"), Body: &EmptyStmt{}},
		},
	}
	Annotate(body)
	for _, f := range []Features{UsesEval, UsesThis, UsesArguments, ContainsWith} {
		if !body.Features.Has(f) {
			t.Fatalf("feature %d: got=false want=true", f)
		}
	}
}

func TestAnnotateCapturedVariables(t *testing.T) {
	// function outer(p) { var x, y; return function () { return x + q; }; }
	closure := &FunctionLiteral{IsExpression: true, Body: &FunctionBody{
		Statements: []Stmt{
			&ReturnStmt{Value: &BinaryExpr{Op: "+", Left: ident("x"), Right: ident("q")}},
		},
	}}
	outer := &FunctionBody{
		Params: []string{"p"},
		Statements: []Stmt{
			&VarStmt{List: []VarDeclarator{{Name: "x"}, {Name: "y"}}},
			&ReturnStmt{Value: &FunctionExpr{Func: closure}},
		},
	}
	Annotate(outer)
	if want := []string{"x"}; !reflect.DeepEqual(outer.Captured, want) {
		t.Fatalf("captured: got=%v want=%v", outer.Captured, want)
	}
}

func TestAnnotateEvalInNestedFunctionCapturesEverything(t *testing.T) {
	closure := &FunctionLiteral{IsExpression: true, Body: &FunctionBody{
		Statements: []Stmt{
			&ExprStmt{Expr: &CallExpr{Callee: ident("eval"), Args: []Expr{ident("s")}}},
		},
	}}
	outer := &FunctionBody{
		Params: []string{"s"},
		Statements: []Stmt{
			&VarStmt{List: []VarDeclarator{{Name: "x"}}},
			&ExprStmt{Expr: &FunctionExpr{Func: closure}},
		},
	}
	Annotate(outer)
	if want := []string{"s", "x"}; !reflect.DeepEqual(outer.Captured, want) {
		t.Fatalf("captured: got=%v want=%v", outer.Captured, want)
	}
	if outer.Features.Has(UsesEval) {
		t.Fatalf("outer uses eval: got=true want=false")
	}
}

func TestInspectVisitsChildren(t *testing.T) {
	expr := &BinaryExpr{Op: "+", Left: ident("a"), Right: &CallExpr{Callee: ident("f"), Args: []Expr{ident("b")}}}
	var names []string
	Inspect(expr, func(n Node) bool {
		if id, ok := n.(*Identifier); ok {
			names = append(names, id.Name)
		}
		return n != nil
	})
	if want := []string{"a", "f", "b"}; !reflect.DeepEqual(names, want) {
		t.Fatalf("names: got=%v want=%v", names, want)
	}
}
