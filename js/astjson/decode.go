// Package astjson decodes ESTree-shaped JSON into js/ast trees.
package astjson

import (
	"bytes"
	"fmt"
	"io"
	"strconv"

	"github.com/segmentio/encoding/json"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/tos-network/bytecomp/js/ast"
	"github.com/tos-network/bytecomp/js/diag"
)

type rawPos struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

type rawLoc struct {
	Start rawPos `json:"start"`
	End   rawPos `json:"end"`
}

type rawRegex struct {
	Pattern string `json:"pattern"`
	Flags   string `json:"flags"`
}

// rawNode is the union of every node shape the decoder understands. Fields
// whose shape depends on the node type stay raw.
type rawNode struct {
	Type  string  `json:"type"`
	Loc   *rawLoc `json:"loc"`
	Start *int    `json:"start"`
	End   *int    `json:"end"`
	Range []int   `json:"range"`
	Divot *int    `json:"divot"`

	Body         json.RawMessage `json:"body"`
	Consequent   json.RawMessage `json:"consequent"`
	Value        json.RawMessage `json:"value"`
	Expression   *rawNode        `json:"expression"`
	Directive    string          `json:"directive"`
	Kind         string          `json:"kind"`
	Name         string          `json:"name"`
	Operator     string          `json:"operator"`
	Prefix       bool            `json:"prefix"`
	Computed     bool            `json:"computed"`
	Regex        *rawRegex       `json:"regex"`
	ID           *rawNode        `json:"id"`
	Init         *rawNode        `json:"init"`
	Test         *rawNode        `json:"test"`
	Alternate    *rawNode        `json:"alternate"`
	Update       *rawNode        `json:"update"`
	Left         *rawNode        `json:"left"`
	Right        *rawNode        `json:"right"`
	Argument     *rawNode        `json:"argument"`
	Object       *rawNode        `json:"object"`
	Property     *rawNode        `json:"property"`
	Callee       *rawNode        `json:"callee"`
	Key          *rawNode        `json:"key"`
	Label        *rawNode        `json:"label"`
	Discriminant *rawNode        `json:"discriminant"`
	Block        *rawNode        `json:"block"`
	Handler      *rawNode        `json:"handler"`
	Finalizer    *rawNode        `json:"finalizer"`
	Param        *rawNode        `json:"param"`
	Arguments    []*rawNode      `json:"arguments"`
	Elements     []*rawNode      `json:"elements"`
	Properties   []*rawNode      `json:"properties"`
	Declarations []*rawNode      `json:"declarations"`
	Cases        []*rawNode      `json:"cases"`
	Params       []*rawNode      `json:"params"`
	Expressions  []*rawNode      `json:"expressions"`
}

// Decode reads one Program node. UTF-8 input is accepted with or without a
// BOM; UTF-16 input needs a BOM. Every body of the result is annotated.
func Decode(r io.Reader, name string) (prog *ast.Program, err error) {
	data, err := io.ReadAll(transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder())))
	if err != nil {
		return nil, diag.New(diag.CodeInputDecode, name, 0, 0, "read: %v", err)
	}
	var root rawNode
	if err := json.Unmarshal(data, &root); err != nil {
		return nil, diag.New(diag.CodeInputDecode, name, 0, 0, "%v", err)
	}

	d := &decoder{name: name}
	defer func() {
		if rec := recover(); rec != nil {
			de, ok := rec.(decodeError)
			if !ok {
				panic(rec)
			}
			prog, err = nil, de.Diagnostic
		}
	}()
	prog = d.program("$", &root)
	ast.Annotate(prog.Body)
	return prog, nil
}

// DecodeBytes is Decode over an in-memory document.
func DecodeBytes(data []byte, name string) (*ast.Program, error) {
	return Decode(bytes.NewReader(data), name)
}

type decodeError struct {
	diag.Diagnostic
}

type decoder struct {
	name string
}

func (d *decoder) fail(code, path string, n *rawNode, format string, args ...interface{}) {
	line, col := 0, 0
	if n != nil && n.Loc != nil {
		line, col = n.Loc.Start.Line, n.Loc.Start.Column+1
	}
	msg := fmt.Sprintf(format, args...)
	panic(decodeError{diag.New(code, d.name, line, col, "%s: %s", path, msg)})
}

func (d *decoder) require(path string, parent, n *rawNode, field string) *rawNode {
	if n == nil {
		d.fail(diag.CodeInputDecode, path, parent, "missing %s", field)
	}
	return n
}

func (d *decoder) loc(n *rawNode) ast.Loc {
	var l ast.Loc
	if n == nil {
		return l
	}
	if n.Loc != nil {
		l.Line = n.Loc.Start.Line
		l.Column = n.Loc.Start.Column + 1
		l.EndLine = n.Loc.End.Line
	}
	switch {
	case n.Start != nil && n.End != nil:
		l.Start, l.End = *n.Start, *n.End
	case len(n.Range) == 2:
		l.Start, l.End = n.Range[0], n.Range[1]
	}
	l.Divot = l.Start
	if n.Divot != nil {
		l.Divot = *n.Divot
	}
	return l
}

// locAfter anchors the divot at the end of the operand an error is reported
// against, unless the input names one itself.
func (d *decoder) locAfter(n, operand *rawNode) ast.Loc {
	l := d.loc(n)
	if n.Divot == nil && operand != nil {
		l.Divot = d.loc(operand).End
	}
	return l
}

func (d *decoder) rawList(path string, n *rawNode, raw json.RawMessage, field string) []*rawNode {
	var list []*rawNode
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, &list); err != nil {
		d.fail(diag.CodeInputDecode, path, n, "%s: %v", field, err)
	}
	return list
}

func (d *decoder) rawOne(path string, n *rawNode, raw json.RawMessage, field string) *rawNode {
	if len(raw) == 0 || string(raw) == "null" {
		d.fail(diag.CodeInputDecode, path, n, "missing %s", field)
	}
	var one rawNode
	if err := json.Unmarshal(raw, &one); err != nil {
		d.fail(diag.CodeInputDecode, path, n, "%s: %v", field, err)
	}
	return &one
}

func (d *decoder) identName(path string, n *rawNode) string {
	if n == nil || n.Type != "Identifier" {
		typ := "<nil>"
		if n != nil {
			typ = n.Type
		}
		d.fail(diag.CodeInputDecode, path, n, "expected Identifier, got %s", typ)
	}
	return n.Name
}

/* bodies {{{ */

func (d *decoder) program(path string, n *rawNode) *ast.Program {
	if n.Type != "Program" {
		d.fail(diag.CodeInputUnknownNode, path, n, "expected Program, got %q", n.Type)
	}
	list := d.rawList(path, n, n.Body, "body")
	return &ast.Program{
		SourceName: d.name,
		Body: &ast.FunctionBody{
			Statements: d.stmts(path+".body", n, list),
			Strict:     hasUseStrict(list),
			Loc:        d.loc(n),
		},
	}
}

// hasUseStrict scans the directive prologue. Inputs without a directive
// field are matched on the literal value.
func hasUseStrict(list []*rawNode) bool {
	for _, s := range list {
		if s == nil || s.Type != "ExpressionStatement" || s.Expression == nil || s.Expression.Type != "Literal" {
			return false
		}
		var v string
		if json.Unmarshal(s.Expression.Value, &v) != nil {
			return false
		}
		if s.Directive == "use strict" || (s.Directive == "" && v == "use strict") {
			return true
		}
	}
	return false
}

func (d *decoder) function(path string, n *rawNode, isExpr bool) *ast.FunctionLiteral {
	fn := &ast.FunctionLiteral{IsExpression: isExpr, Loc: d.loc(n)}
	if n.ID != nil {
		fn.Name = d.identName(path+".id", n.ID)
	}
	body := d.rawOne(path, n, n.Body, "body")
	if body.Type != "BlockStatement" {
		d.fail(diag.CodeInputUnknownNode, path+".body", body, "expected BlockStatement, got %q", body.Type)
	}
	list := d.rawList(path+".body", body, body.Body, "body")
	fb := &ast.FunctionBody{
		Statements: d.stmts(path+".body.body", body, list),
		Strict:     hasUseStrict(list),
		Loc:        d.loc(body),
	}
	for i, p := range n.Params {
		fb.Params = append(fb.Params, d.identName(fmt.Sprintf("%s.params[%d]", path, i), p))
	}
	fn.Body = fb
	return fn
}

/* }}} */

/* statements {{{ */

func (d *decoder) stmts(path string, parent *rawNode, list []*rawNode) []ast.Stmt {
	out := make([]ast.Stmt, 0, len(list))
	for i, s := range list {
		out = append(out, d.stmt(fmt.Sprintf("%s[%d]", path, i), d.require(path, parent, s, "statement")))
	}
	return out
}

func (d *decoder) optStmt(path string, n *rawNode) ast.Stmt {
	if n == nil {
		return nil
	}
	return d.stmt(path, n)
}

func (d *decoder) block(path string, n *rawNode) *ast.BlockStmt {
	if n == nil {
		return nil
	}
	if n.Type != "BlockStatement" {
		d.fail(diag.CodeInputUnknownNode, path, n, "expected BlockStatement, got %q", n.Type)
	}
	return &ast.BlockStmt{
		StmtBase: ast.StmtBase{Loc: d.loc(n)},
		List:     d.stmts(path+".body", n, d.rawList(path, n, n.Body, "body")),
	}
}

func (d *decoder) declarators(path string, n *rawNode) []ast.VarDeclarator {
	out := make([]ast.VarDeclarator, 0, len(n.Declarations))
	for i, decl := range n.Declarations {
		p := fmt.Sprintf("%s.declarations[%d]", path, i)
		d.require(p, n, decl, "declarator")
		out = append(out, ast.VarDeclarator{
			Name: d.identName(p+".id", decl.ID),
			Init: d.optExpr(p+".init", decl.Init),
			Loc:  d.loc(decl),
		})
	}
	return out
}

func (d *decoder) declaration(path string, n *rawNode) ast.Stmt {
	base := ast.StmtBase{Loc: d.loc(n)}
	switch n.Kind {
	case "var":
		return &ast.VarStmt{StmtBase: base, List: d.declarators(path, n)}
	case "const":
		return &ast.ConstStmt{StmtBase: base, List: d.declarators(path, n)}
	}
	d.fail(diag.CodeInputUnknownNode, path, n, "unsupported declaration kind %q", n.Kind)
	return nil
}

func (d *decoder) stmt(path string, n *rawNode) ast.Stmt { // {{{
	base := ast.StmtBase{Loc: d.loc(n)}
	switch n.Type {
	case "ExpressionStatement":
		return &ast.ExprStmt{StmtBase: base, Expr: d.expr(path+".expression", d.require(path, n, n.Expression, "expression"))}
	case "BlockStatement":
		return d.block(path, n)
	case "EmptyStatement":
		return &ast.EmptyStmt{StmtBase: base}
	case "DebuggerStatement":
		return &ast.DebuggerStmt{StmtBase: base}
	case "VariableDeclaration":
		return d.declaration(path, n)
	case "FunctionDeclaration":
		return &ast.FunctionDecl{StmtBase: base, Func: d.function(path, n, false)}
	case "IfStatement":
		return &ast.IfStmt{
			StmtBase: base,
			Test:     d.expr(path+".test", d.require(path, n, n.Test, "test")),
			Then:     d.stmt(path+".consequent", d.rawOne(path, n, n.Consequent, "consequent")),
			Else:     d.optStmt(path+".alternate", n.Alternate),
		}
	case "DoWhileStatement":
		return &ast.DoWhileStmt{
			StmtBase: base,
			Body:     d.stmt(path+".body", d.rawOne(path, n, n.Body, "body")),
			Test:     d.expr(path+".test", d.require(path, n, n.Test, "test")),
		}
	case "WhileStatement":
		return &ast.WhileStmt{
			StmtBase: base,
			Test:     d.expr(path+".test", d.require(path, n, n.Test, "test")),
			Body:     d.stmt(path+".body", d.rawOne(path, n, n.Body, "body")),
		}
	case "ForStatement":
		s := &ast.ForStmt{
			StmtBase: base,
			Test:     d.optExpr(path+".test", n.Test),
			Update:   d.optExpr(path+".update", n.Update),
			Body:     d.stmt(path+".body", d.rawOne(path, n, n.Body, "body")),
		}
		if n.Init != nil {
			if n.Init.Type == "VariableDeclaration" {
				s.Init = d.declaration(path+".init", n.Init)
			} else {
				s.Init = &ast.ExprStmt{StmtBase: ast.StmtBase{Loc: d.loc(n.Init)}, Expr: d.expr(path+".init", n.Init)}
			}
		}
		return s
	case "ForInStatement":
		s := &ast.ForInStmt{
			StmtBase: base,
			Object:   d.expr(path+".right", d.require(path, n, n.Right, "right")),
			Body:     d.stmt(path+".body", d.rawOne(path, n, n.Body, "body")),
		}
		left := d.require(path, n, n.Left, "left")
		if left.Type == "VariableDeclaration" {
			if left.Kind != "var" || len(left.Declarations) != 1 || left.Declarations[0] == nil {
				d.fail(diag.CodeInputDecode, path+".left", left, "for-in declares exactly one var")
			}
			decl := left.Declarations[0]
			s.Declare = true
			s.Target = &ast.Identifier{ExprBase: ast.ExprBase{Loc: d.loc(decl.ID)}, Name: d.identName(path+".left.declarations[0].id", decl.ID)}
			s.Init = d.optExpr(path+".left.declarations[0].init", decl.Init)
		} else {
			s.Target = d.expr(path+".left", left)
		}
		return s
	case "ContinueStatement":
		s := &ast.ContinueStmt{StmtBase: base}
		if n.Label != nil {
			s.Label = d.identName(path+".label", n.Label)
		}
		return s
	case "BreakStatement":
		s := &ast.BreakStmt{StmtBase: base}
		if n.Label != nil {
			s.Label = d.identName(path+".label", n.Label)
		}
		return s
	case "ReturnStatement":
		return &ast.ReturnStmt{StmtBase: base, Value: d.optExpr(path+".argument", n.Argument)}
	case "WithStatement":
		return &ast.WithStmt{
			StmtBase: base,
			Object:   d.expr(path+".object", d.require(path, n, n.Object, "object")),
			Body:     d.stmt(path+".body", d.rawOne(path, n, n.Body, "body")),
		}
	case "SwitchStatement":
		s := &ast.SwitchStmt{
			StmtBase:     base,
			Discriminant: d.expr(path+".discriminant", d.require(path, n, n.Discriminant, "discriminant")),
		}
		for i, c := range n.Cases {
			p := fmt.Sprintf("%s.cases[%d]", path, i)
			d.require(p, n, c, "case")
			if c.Type != "SwitchCase" {
				d.fail(diag.CodeInputUnknownNode, p, c, "expected SwitchCase, got %q", c.Type)
			}
			s.Cases = append(s.Cases, ast.CaseClause{
				Test: d.optExpr(p+".test", c.Test),
				Body: d.stmts(p+".consequent", c, d.rawList(p, c, c.Consequent, "consequent")),
				Loc:  d.loc(c),
			})
		}
		return s
	case "LabeledStatement":
		return &ast.LabeledStmt{
			StmtBase: base,
			Label:    d.identName(path+".label", n.Label),
			Body:     d.stmt(path+".body", d.rawOne(path, n, n.Body, "body")),
		}
	case "ThrowStatement":
		return &ast.ThrowStmt{StmtBase: base, Value: d.expr(path+".argument", d.require(path, n, n.Argument, "argument"))}
	case "TryStatement":
		s := &ast.TryStmt{
			StmtBase: base,
			Block:    d.block(path+".block", d.require(path, n, n.Block, "block")),
			Finally:  d.block(path+".finalizer", n.Finalizer),
		}
		if h := n.Handler; h != nil {
			s.Param = d.identName(path+".handler.param", h.Param)
			s.Catch = d.block(path+".handler.body", d.rawOne(path+".handler", h, h.Body, "body"))
		}
		if s.Catch == nil && s.Finally == nil {
			d.fail(diag.CodeInputDecode, path, n, "try without catch or finally")
		}
		return s
	}
	d.fail(diag.CodeInputUnknownNode, path, n, "unknown statement type %q", n.Type)
	return nil
} // }}}

/* }}} */

/* expressions {{{ */

func (d *decoder) optExpr(path string, n *rawNode) ast.Expr {
	if n == nil {
		return nil
	}
	return d.expr(path, n)
}

func (d *decoder) exprs(path string, list []*rawNode, holes bool) []ast.Expr {
	out := make([]ast.Expr, 0, len(list))
	for i, e := range list {
		p := fmt.Sprintf("%s[%d]", path, i)
		if e == nil {
			if !holes {
				d.fail(diag.CodeInputDecode, p, nil, "missing expression")
			}
			out = append(out, nil)
			continue
		}
		out = append(out, d.expr(p, e))
	}
	return out
}

func (d *decoder) literal(path string, n *rawNode, base ast.ExprBase) ast.Expr {
	if n.Regex != nil {
		return &ast.RegExpLiteral{ExprBase: base, Pattern: n.Regex.Pattern, Flags: n.Regex.Flags}
	}
	raw := bytes.TrimSpace(n.Value)
	switch {
	case len(raw) == 0 || string(raw) == "null":
		return &ast.NullLiteral{ExprBase: base}
	case string(raw) == "true" || string(raw) == "false":
		return &ast.BooleanLiteral{ExprBase: base, Value: string(raw) == "true"}
	case raw[0] == '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			d.fail(diag.CodeInputDecode, path+".value", n, "%v", err)
		}
		return &ast.StringLiteral{ExprBase: base, Value: s}
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		d.fail(diag.CodeInputDecode, path+".value", n, "unsupported literal %s", raw)
	}
	return &ast.NumberLiteral{ExprBase: base, Value: f}
}

func (d *decoder) propertyKey(path string, n *rawNode) string {
	d.require(path, nil, n, "key")
	switch n.Type {
	case "Identifier":
		return n.Name
	case "Literal":
		switch lit := d.literal(path, n, ast.ExprBase{}).(type) {
		case *ast.StringLiteral:
			return lit.Value
		case *ast.NumberLiteral:
			return strconv.FormatFloat(lit.Value, 'g', -1, 64)
		}
	}
	d.fail(diag.CodeInputDecode, path, n, "unsupported property key %q", n.Type)
	return ""
}

func (d *decoder) property(path string, n *rawNode) ast.Property {
	key := d.propertyKey(path+".key", n.Key)
	value := d.expr(path+".value", d.rawOne(path, n, n.Value, "value"))
	kind := ast.PropertyValue
	switch n.Kind {
	case "", "init":
	case "get":
		kind = ast.PropertyGetter
	case "set":
		kind = ast.PropertySetter
	default:
		d.fail(diag.CodeInputDecode, path, n, "unknown property kind %q", n.Kind)
	}
	return ast.Property{Kind: kind, Key: key, Value: value, Loc: d.loc(n)}
}

func (d *decoder) expr(path string, n *rawNode) ast.Expr { // {{{
	base := ast.ExprBase{Loc: d.loc(n)}
	switch n.Type {
	case "Literal":
		return d.literal(path, n, base)
	case "Identifier":
		return &ast.Identifier{ExprBase: base, Name: n.Name}
	case "ThisExpression":
		return &ast.ThisExpr{ExprBase: base}
	case "ArrayExpression":
		return &ast.ArrayLiteral{ExprBase: base, Elements: d.exprs(path+".elements", n.Elements, true)}
	case "ObjectExpression":
		x := &ast.ObjectLiteral{ExprBase: base}
		for i, p := range n.Properties {
			pp := fmt.Sprintf("%s.properties[%d]", path, i)
			x.Properties = append(x.Properties, d.property(pp, d.require(pp, n, p, "property")))
		}
		return x
	case "FunctionExpression":
		return &ast.FunctionExpr{ExprBase: base, Func: d.function(path, n, true)}
	case "MemberExpression":
		obj := d.require(path, n, n.Object, "object")
		prop := d.require(path, n, n.Property, "property")
		base.Loc = d.locAfter(n, obj)
		if n.Computed {
			return &ast.BracketExpr{ExprBase: base, Object: d.expr(path+".object", obj), Subscript: d.expr(path+".property", prop)}
		}
		return &ast.DotExpr{ExprBase: base, Object: d.expr(path+".object", obj), Name: d.identName(path+".property", prop)}
	case "NewExpression":
		callee := d.require(path, n, n.Callee, "callee")
		base.Loc = d.locAfter(n, callee)
		return &ast.NewExpr{ExprBase: base, Callee: d.expr(path+".callee", callee), Args: d.exprs(path+".arguments", n.Arguments, false)}
	case "CallExpression":
		callee := d.require(path, n, n.Callee, "callee")
		base.Loc = d.locAfter(n, callee)
		return &ast.CallExpr{ExprBase: base, Callee: d.expr(path+".callee", callee), Args: d.exprs(path+".arguments", n.Arguments, false)}
	case "UpdateExpression":
		target := d.expr(path+".argument", d.require(path, n, n.Argument, "argument"))
		if n.Prefix {
			return &ast.PrefixExpr{ExprBase: base, Op: n.Operator, Target: target}
		}
		return &ast.PostfixExpr{ExprBase: base, Op: n.Operator, Target: target}
	case "UnaryExpression":
		return &ast.UnaryExpr{ExprBase: base, Op: n.Operator, Operand: d.expr(path+".argument", d.require(path, n, n.Argument, "argument"))}
	case "BinaryExpression":
		left := d.require(path, n, n.Left, "left")
		base.Loc = d.locAfter(n, left)
		return &ast.BinaryExpr{ExprBase: base, Op: n.Operator,
			Left: d.expr(path+".left", left), Right: d.expr(path+".right", d.require(path, n, n.Right, "right"))}
	case "LogicalExpression":
		return &ast.LogicalExpr{ExprBase: base, Op: n.Operator,
			Left:  d.expr(path+".left", d.require(path, n, n.Left, "left")),
			Right: d.expr(path+".right", d.require(path, n, n.Right, "right"))}
	case "ConditionalExpression":
		return &ast.ConditionalExpr{
			ExprBase:   base,
			Test:       d.expr(path+".test", d.require(path, n, n.Test, "test")),
			Consequent: d.expr(path+".consequent", d.rawOne(path, n, n.Consequent, "consequent")),
			Alternate:  d.expr(path+".alternate", d.require(path, n, n.Alternate, "alternate")),
		}
	case "AssignmentExpression":
		left := d.require(path, n, n.Left, "left")
		base.Loc = d.locAfter(n, left)
		return &ast.AssignExpr{ExprBase: base, Op: n.Operator,
			Target: d.expr(path+".left", left), Value: d.expr(path+".right", d.require(path, n, n.Right, "right"))}
	case "SequenceExpression":
		return &ast.CommaExpr{ExprBase: base, List: d.exprs(path+".expressions", n.Expressions, false)}
	}
	d.fail(diag.CodeInputUnknownNode, path, n, "unknown expression type %q", n.Type)
	return nil
} // }}}

/* }}} */
