package semantic

import (
	"strconv"
	"strings"

	"lcc/internal/ast"
	"lcc/internal/diag"
	"lcc/internal/symbol"
)

func (a *Analyzer) analyzeFunction(global *Scope, fn *ast.FuncDef) {
	info := a.functions[fn.Name]
	if info == nil {
		return // redefinition already reported in declareFunction
	}
	a.curFunc = info
	a.curRet = fn.RetType == "int"
	defer func() { a.curFunc = nil }()

	scope := newScope(global)
	for i, p := range fn.Params {
		if i < len(info.Params) {
			scope.define(info.Params[i])
		}
		_ = p
	}

	reaches := a.analyzeBlock(scope, fn.Body)
	if a.curRet && reaches {
		a.reporter.Report(fn.Body.Pos.Line, diag.MissingReturn, "function '"+fn.Name+"' may fall through without a return")
	}
}

// analyzeBlock analyzes every statement in b and reports whether
// control can fall off the end of the block (i.e. it is not
// guaranteed to return/break/continue on every path).
func (a *Analyzer) analyzeBlock(parent *Scope, b *ast.Block) bool {
	scope := newScope(parent)
	reaches := true
	for _, item := range b.Stmts {
		if !reaches {
			// Still analyze for name/type errors, but don't let later
			// statements mask the missing-return diagnostic.
		}
		switch {
		case item.Decl != nil:
			for _, def := range item.Decl.Defs {
				a.declareVar(scope, item.Decl, def, false)
				if def.Init != nil {
					a.checkInitVal(scope, def.Init)
				}
			}
		case item.Stmt != nil:
			if !a.analyzeStmt(scope, item.Stmt) {
				reaches = false
			}
		}
	}
	return reaches
}

// analyzeStmt reports whether control can reach past stmt.
func (a *Analyzer) analyzeStmt(scope *Scope, s *ast.Stmt) bool {
	switch {
	case s.Block != nil:
		return a.analyzeBlock(scope, s.Block)
	case s.If != nil:
		a.checkExpr(scope, s.If.Cond)
		thenReaches := a.analyzeStmt(scope, s.If.Then)
		if s.If.Else == nil {
			return true
		}
		elseReaches := a.analyzeStmt(scope, s.If.Else)
		return thenReaches || elseReaches
	case s.For != nil:
		forScope := newScope(scope)
		if s.For.Init != nil {
			a.checkForAssign(forScope, s.For.Init)
		}
		if s.For.Cond != nil {
			a.checkExpr(forScope, s.For.Cond)
		}
		if s.For.Step != nil {
			a.checkForAssign(forScope, s.For.Step)
		}
		a.loopDepth++
		a.analyzeStmt(forScope, s.For.Body)
		a.loopDepth--
		return true
	case s.Break != nil:
		if a.loopDepth == 0 {
			a.reporter.Report(s.Break.Pos.Line, diag.LoopControlMisuse, "break outside a loop")
		}
		return false
	case s.Continue != nil:
		if a.loopDepth == 0 {
			a.reporter.Report(s.Continue.Pos.Line, diag.LoopControlMisuse, "continue outside a loop")
		}
		return false
	case s.Return != nil:
		a.checkReturn(s.Return)
		return false
	case s.Printf != nil:
		a.checkPrintf(scope, s.Printf)
		return true
	case s.Assign != nil:
		a.checkAssign(scope, s.Assign)
		return true
	case s.ExprStmt != nil:
		a.checkExpr(scope, s.ExprStmt.Expr)
		return true
	default:
		return true
	}
}

func (a *Analyzer) checkReturn(r *ast.ReturnStmt) {
	hasValue := r.Expr != nil
	if hasValue != a.curRet {
		a.reporter.Report(r.Pos.Line, diag.ReturnTypeMismatch, "return value does not match function's declared return type")
	}
	if r.Expr != nil && a.curFunc != nil {
		scope := newScope(nil) // return expressions only need global+param resolution, handled by caller context; re-resolved fully in irgen
		_ = scope
	}
}

func (a *Analyzer) checkAssign(scope *Scope, s *ast.AssignStmt) {
	sym := scope.lookup(s.Target.Name)
	if sym == nil {
		a.reporter.Report(s.Pos.Line, diag.UndefinedName, "'"+s.Target.Name+"' is undefined")
	} else if sym.IsConst {
		a.reporter.Report(s.Pos.Line, diag.ConstAssignment, "assignment to const '"+s.Target.Name+"'")
	}
	for _, idx := range s.Target.Index {
		a.checkExpr(scope, idx)
	}
	a.checkExpr(scope, s.Value)
}

func (a *Analyzer) checkForAssign(scope *Scope, s *ast.ForAssignStmt) {
	sym := scope.lookup(s.Target.Name)
	if sym == nil {
		a.reporter.Report(s.Pos.Line, diag.UndefinedName, "'"+s.Target.Name+"' is undefined")
	} else if sym.IsConst {
		a.reporter.Report(s.Pos.Line, diag.ConstAssignment, "assignment to const '"+s.Target.Name+"'")
	}
	for _, idx := range s.Target.Index {
		a.checkExpr(scope, idx)
	}
	a.checkExpr(scope, s.Value)
}

func (a *Analyzer) checkInitVal(scope *Scope, v *ast.InitVal) {
	if v.Expr != nil {
		a.checkExpr(scope, v.Expr)
		return
	}
	for _, elem := range v.List {
		a.checkInitVal(scope, elem)
	}
}

func (a *Analyzer) checkPrintf(scope *Scope, p *ast.PrintfStmt) {
	for _, arg := range p.Args {
		a.checkExpr(scope, arg)
	}
	specifiers := countFormatSpecifiers(p.Format)
	if specifiers != len(p.Args) {
		a.reporter.Report(p.Pos.Line, diag.PrintfArgMismatch, "printf format expects "+strconv.Itoa(specifiers)+" argument(s), got "+strconv.Itoa(len(p.Args)))
	}
}

func countFormatSpecifiers(format string) int {
	n := 0
	s := strings.Trim(format, "\"")
	for i := 0; i < len(s); i++ {
		if s[i] == '%' && i+1 < len(s) {
			switch s[i+1] {
			case 'd', 'c':
				n++
			case '%':
				i++
			}
		}
	}
	return n
}

// checkExpr walks the precedence-climbing expression tree, resolving
// every identifier and checking call arity/type; it does not compute a
// static type for arithmetic results since this language has exactly
// one scalar type (int).
func (a *Analyzer) checkExpr(scope *Scope, e *ast.Expr) {
	a.checkAnd(scope, e.Left)
	for _, t := range e.Rest {
		a.checkAnd(scope, t.Right)
	}
}

func (a *Analyzer) checkAnd(scope *Scope, e *ast.AndExpr) {
	a.checkEq(scope, e.Left)
	for _, t := range e.Rest {
		a.checkEq(scope, t.Right)
	}
}

func (a *Analyzer) checkEq(scope *Scope, e *ast.EqExpr) {
	a.checkRel(scope, e.Left)
	for _, t := range e.Rest {
		a.checkRel(scope, t.Right)
	}
}

func (a *Analyzer) checkRel(scope *Scope, e *ast.RelExpr) {
	a.checkAdd(scope, e.Left)
	for _, t := range e.Rest {
		a.checkAdd(scope, t.Right)
	}
}

func (a *Analyzer) checkAdd(scope *Scope, e *ast.AddExpr) {
	a.checkMul(scope, e.Left)
	for _, t := range e.Rest {
		a.checkMul(scope, t.Right)
	}
}

func (a *Analyzer) checkMul(scope *Scope, e *ast.MulExpr) {
	a.checkUnary(scope, e.Left)
	for _, t := range e.Rest {
		a.checkUnary(scope, t.Right)
	}
}

func (a *Analyzer) checkUnary(scope *Scope, e *ast.UnaryExpr) {
	switch {
	case e.Inner != nil:
		a.checkUnary(scope, e.Inner)
	case e.Paren != nil:
		a.checkExpr(scope, e.Paren)
	case e.Call != nil:
		a.checkCall(scope, e.Call)
	case e.LVal != nil:
		a.checkLVal(scope, e.LVal)
	}
}

func (a *Analyzer) checkLVal(scope *Scope, lv *ast.LVal) *symbol.Symbol {
	sym := scope.lookup(lv.Name)
	if sym == nil {
		a.reporter.Report(lv.Pos.Line, diag.UndefinedName, "'"+lv.Name+"' is undefined")
	}
	for _, idx := range lv.Index {
		a.checkExpr(scope, idx)
	}
	return sym
}

func (a *Analyzer) checkCall(scope *Scope, call *ast.CallExpr) {
	info, ok := a.functions[call.Name]
	if !ok {
		a.reporter.Report(call.Pos.Line, diag.UndefinedName, "call to undefined function '"+call.Name+"'")
		for _, arg := range call.Args {
			a.checkExpr(scope, arg)
		}
		return
	}
	if len(call.Args) != len(info.Params) {
		a.reporter.Report(call.Pos.Line, diag.ArgCountMismatch, "function '"+call.Name+"' expects "+strconv.Itoa(len(info.Params))+" argument(s), got "+strconv.Itoa(len(call.Args)))
	}
	for i, arg := range call.Args {
		a.checkExpr(scope, arg)
		if i < len(info.Params) {
			if argIsArrayLVal(arg) != (info.Params[i].Type.Kind == symbol.Array) {
				a.reporter.Report(arg.Pos.Line, diag.ArgTypeMismatch, "argument "+strconv.Itoa(i+1)+" to '"+call.Name+"' has the wrong type")
			}
		}
	}
}

// argIsArrayLVal reports whether arg is a bare identifier reference
// that is itself an array (no index applied): the only expression
// shape this language allows to be passed where an array parameter is
// expected.
func argIsArrayLVal(e *ast.Expr) bool {
	if len(e.Rest) > 0 || len(e.Left.Rest) > 0 {
		return false
	}
	eq := e.Left.Left
	if len(eq.Rest) > 0 {
		return false
	}
	rel := eq.Left
	if len(rel.Rest) > 0 {
		return false
	}
	add := rel.Left
	if len(add.Rest) > 0 {
		return false
	}
	mul := add.Left
	if len(mul.Rest) > 0 {
		return false
	}
	u := mul.Left
	return u.LVal != nil && len(u.LVal.Index) == 0
}
