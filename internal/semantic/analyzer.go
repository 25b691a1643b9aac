package semantic

import (
	"strconv"
	"strings"

	"lcc/internal/ast"
	"lcc/internal/diag"
	"lcc/internal/symbol"
)

// Result is everything downstream passes (irgen) need after a
// successful-enough analysis: the resolved symbol for every
// identifier-bearing AST node, keyed by node pointer identity, plus
// the function table.
type Result struct {
	Functions map[string]*FuncInfo
	Globals   []*symbol.Symbol

	// VarOf resolves the symbol bound to a given *ast.LVal or
	// declaration's VarDef at the time it was visited: irgen re-walks
	// the same tree and needs the identical resolution the analyzer
	// made, including shadowing.
	VarOf map[interface{}]*symbol.Symbol
}

// FuncInfo is a function's resolved signature plus its AST body, for
// both call-site checking and irgen.
type FuncInfo struct {
	Sym    *symbol.Symbol
	Def    *ast.FuncDef
	Params []*symbol.Symbol
}

// Analyzer performs one pass of name resolution and type checking
// over a CompUnit.
type Analyzer struct {
	reporter  *diag.Reporter
	functions map[string]*FuncInfo
	globals   []*symbol.Symbol
	varOf     map[interface{}]*symbol.Symbol

	nextSymID int
	loopDepth int
	curFunc   *FuncInfo
	curRet    bool // true if current function's declared return type is int
}

// New creates an Analyzer that reports into reporter.
func New(reporter *diag.Reporter) *Analyzer {
	return &Analyzer{
		reporter:  reporter,
		functions: map[string]*FuncInfo{},
		varOf:     map[interface{}]*symbol.Symbol{},
	}
}

// Analyze walks unit, reporting every diagnostic it finds, and
// returns the resolution Result for use by irgen. Analysis continues
// past individual errors so that one mistake doesn't hide the rest --
// the same best-effort-continue discipline the spec's testable
// properties require of testfile.txt runs with multiple errors.
func (a *Analyzer) Analyze(unit *ast.CompUnit) *Result {
	global := newScope(nil)

	for _, item := range unit.Items {
		if item.Func != nil {
			a.declareFunction(item.Func)
		}
	}

	for _, item := range unit.Items {
		switch {
		case item.Decl != nil:
			a.analyzeGlobalDecl(global, item.Decl)
		case item.Func != nil:
			a.analyzeFunction(global, item.Func)
		}
	}

	return &Result{
		Functions: a.functions,
		Globals:   a.globals,
		VarOf:     a.varOf,
	}
}

func (a *Analyzer) allocID() int {
	a.nextSymID++
	return a.nextSymID
}

func (a *Analyzer) declareFunction(fn *ast.FuncDef) {
	if _, exists := a.functions[fn.Name]; exists {
		a.reporter.Report(fn.Pos.Line, diag.RedefinedName, "function '"+fn.Name+"' redefined")
		return
	}
	var paramTypes []*symbol.Type
	var paramSyms []*symbol.Symbol
	for _, p := range fn.Params {
		var t *symbol.Type
		if p.IsArray {
			t = symbol.NewArray(0)
		} else {
			t = symbol.NewBasic()
		}
		paramTypes = append(paramTypes, t)
		paramSyms = append(paramSyms, &symbol.Symbol{ID: a.allocID(), Name: p.Name, Type: t})
	}
	var ret *symbol.Type
	if fn.RetType == "int" {
		ret = symbol.NewBasic()
	}
	funcType := symbol.NewFunction(ret, paramTypes)
	sym := &symbol.Symbol{ID: a.allocID(), Name: fn.Name, GlobalName: fn.Name, Type: funcType, IsGlobal: true}
	a.functions[fn.Name] = &FuncInfo{Sym: sym, Def: fn, Params: paramSyms}
}

func (a *Analyzer) analyzeGlobalDecl(scope *Scope, decl *ast.Decl) {
	for _, def := range decl.Defs {
		a.declareVar(scope, decl, def, true)
	}
}

func (a *Analyzer) declareVar(scope *Scope, decl *ast.Decl, def *ast.VarDef, global bool) *symbol.Symbol {
	if scope.defineLocal(def.Name) {
		a.reporter.Report(def.Pos.Line, diag.RedefinedName, "'"+def.Name+"' redefined")
		return scope.lookup(def.Name)
	}

	var t *symbol.Type
	if len(def.Dims) > 0 {
		length := 0
		if n, ok := evalConstDim(scope, def.Dims[0]); ok {
			length = n
		}
		t = symbol.NewArray(length)
	} else {
		t = symbol.NewBasic()
	}

	sym := &symbol.Symbol{
		ID:       a.allocID(),
		Name:     def.Name,
		Type:     t,
		IsConst:  decl.Const,
		IsGlobal: global,
	}
	if global {
		sym.GlobalName = "g_" + def.Name
	}
	scope.define(sym)
	a.varOf[def] = sym
	if global {
		a.globals = append(a.globals, sym)
	}

	// A global's initializer must be a compile-time constant regardless
	// of "const" -- this language, like the C subset it resembles, has
	// no runtime startup code to execute a non-constant initializer.
	// "const" itself only governs whether later assignment is rejected.
	if global && def.Init != nil {
		sym.ConstValues = flattenConstInit(scope, def.Init)
	}
	return sym
}

// flattenConstInit evaluates a const initializer into a flat value
// list: a single element for a scalar, or the brace-list's elements in
// source order for an array (this language has no multi-dimensional
// arrays, so the list is never nested more than one level deep).
func flattenConstInit(scope *Scope, v *ast.InitVal) []int {
	if v.Expr != nil {
		n, ok := evalExprConst(scope, v.Expr)
		if !ok {
			return nil
		}
		return []int{n}
	}
	var out []int
	for _, elem := range v.List {
		out = append(out, flattenConstInit(scope, elem)...)
	}
	return out
}

// evalConstDim is a minimal compile-time constant folder over the
// expression grammar, used for array dimensions and const initializers
// -- the two places the surface grammar requires a compile-time-known
// integer. It resolves identifiers that name already-declared const
// scalars against scope; anything else (a non-const name, a function
// call, a non-constant operator chain) is reported as "not constant".
func evalConstDim(scope *Scope, c *ast.ConstExpr) (int, bool) {
	return evalExprConst(scope, c.Expr)
}

func evalExprConst(scope *Scope, e *ast.Expr) (int, bool) {
	if len(e.Rest) > 0 {
		return 0, false // || in a constant expression is not folded
	}
	return evalAndConst(scope, e.Left)
}

func evalAndConst(scope *Scope, e *ast.AndExpr) (int, bool) {
	if len(e.Rest) > 0 {
		return 0, false
	}
	return evalEqConst(scope, e.Left)
}

func evalEqConst(scope *Scope, e *ast.EqExpr) (int, bool) {
	if len(e.Rest) > 0 {
		return 0, false
	}
	return evalRelConst(scope, e.Left)
}

func evalRelConst(scope *Scope, e *ast.RelExpr) (int, bool) {
	if len(e.Rest) > 0 {
		return 0, false
	}
	return evalAddConst(scope, e.Left)
}

func evalAddConst(scope *Scope, e *ast.AddExpr) (int, bool) {
	v, ok := evalMulConst(scope, e.Left)
	if !ok {
		return 0, false
	}
	for _, t := range e.Rest {
		r, ok := evalMulConst(scope, t.Right)
		if !ok {
			return 0, false
		}
		switch t.Op {
		case "+":
			v += r
		case "-":
			v -= r
		}
	}
	return v, true
}

func evalMulConst(scope *Scope, e *ast.MulExpr) (int, bool) {
	v, ok := evalUnaryConst(scope, e.Left)
	if !ok {
		return 0, false
	}
	for _, t := range e.Rest {
		r, ok := evalUnaryConst(scope, t.Right)
		if !ok {
			return 0, false
		}
		switch t.Op {
		case "*":
			v *= r
		case "/":
			if r == 0 {
				return 0, false
			}
			v /= r
		case "%":
			if r == 0 {
				return 0, false
			}
			v %= r
		}
	}
	return v, true
}

func evalUnaryConst(scope *Scope, e *ast.UnaryExpr) (int, bool) {
	if e.Number != nil {
		return parseIntLiteral(*e.Number), true
	}
	if e.Op != "" && e.Inner != nil {
		v, ok := evalUnaryConst(scope, e.Inner)
		if !ok {
			return 0, false
		}
		switch e.Op {
		case "-":
			return -v, true
		case "+":
			return v, true
		}
		return 0, false
	}
	if e.Paren != nil {
		return evalExprConst(scope, e.Paren)
	}
	if e.LVal != nil && len(e.LVal.Index) == 0 {
		sym := scope.lookup(e.LVal.Name)
		if sym != nil && sym.IsConst && sym.Type.Kind == symbol.Basic && len(sym.ConstValues) == 1 {
			return sym.ConstValues[0], true
		}
	}
	return 0, false
}

func parseIntLiteral(s string) int {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		v, _ := strconv.ParseInt(s[2:], 16, 64)
		return int(v)
	}
	v, _ := strconv.Atoi(s)
	return int(v)
}
