package ast

import "sort"

// Annotate fills in the declaration lists, feature flags and captured
// variable sets of a program body and of every function nested in it. Trees
// produced by a parser already carry this information; trees built by hand or
// decoded from JSON do not.
func Annotate(body *FunctionBody) {
	if body == nil {
		return
	}
	annotate(body, "")
}

type scopeInfo struct {
	free map[string]bool
	// anyFree is set when the body or one nested in it calls eval, so any
	// enclosing name may be referenced at runtime.
	anyFree bool
}

func annotate(body *FunctionBody, calleeName string) scopeInfo {
	declared := map[string]bool{}
	for _, p := range body.Params {
		declared[p] = true
	}

	vars := []VarDecl{}
	seenVar := map[string]int{}
	addVar := func(name string, isConst bool) {
		if idx, ok := seenVar[name]; ok {
			if isConst {
				vars[idx].Const = true
			}
			return
		}
		seenVar[name] = len(vars)
		vars = append(vars, VarDecl{Name: name, Const: isConst})
		declared[name] = true
	}

	var functions []*FunctionLiteral
	var features Features
	referenced := map[string]bool{}
	nestedRefs := map[string]bool{}
	info := scopeInfo{free: map[string]bool{}}

	visitNested := func(fn *FunctionLiteral) {
		if fn == nil || fn.Body == nil {
			return
		}
		own := ""
		if fn.IsExpression {
			own = fn.Name
		}
		child := annotate(fn.Body, own)
		if child.anyFree {
			info.anyFree = true
		}
		for name := range child.free {
			nestedRefs[name] = true
		}
	}

	f := func(n Node) bool {
		switch x := n.(type) {
		case nil:
			return false
		case *FunctionDecl:
			if x.Func != nil {
				functions = append(functions, x.Func)
				if x.Func.Name != "" {
					declared[x.Func.Name] = true
				}
				visitNested(x.Func)
			}
			return false
		case *FunctionExpr:
			visitNested(x.Func)
			return false
		case *VarStmt:
			for _, d := range x.List {
				addVar(d.Name, false)
			}
		case *ConstStmt:
			for _, d := range x.List {
				addVar(d.Name, true)
			}
		case *ForInStmt:
			if x.Declare {
				if id, ok := x.Target.(*Identifier); ok {
					addVar(id.Name, false)
				}
			}
		case *WithStmt:
			features |= ContainsWith
		case *TryStmt:
			if x.Catch != nil {
				features |= ContainsCatch
			}
		case *ThisExpr:
			features |= UsesThis
		case *Identifier:
			if x.Name == "arguments" {
				features |= UsesArguments
			}
			referenced[x.Name] = true
		case *CallExpr:
			if id, ok := x.Callee.(*Identifier); ok && id.Name == "eval" {
				features |= UsesEval
			}
		}
		return true
	}
	for _, s := range body.Statements {
		if s != nil {
			Inspect(s, f)
		}
	}

	if features.Has(UsesEval) {
		info.anyFree = true
	}

	captured := []string{}
	for name := range declared {
		if info.anyFree || nestedRefs[name] {
			captured = append(captured, name)
		}
	}
	sort.Strings(captured)

	for name := range referenced {
		if !declared[name] && name != calleeName && name != "arguments" {
			info.free[name] = true
		}
	}
	for name := range nestedRefs {
		if !declared[name] && name != calleeName {
			info.free[name] = true
		}
	}

	body.Vars = vars
	body.Functions = functions
	body.Features = features
	body.Captured = captured
	return info
}
