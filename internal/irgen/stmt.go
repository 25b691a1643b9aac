package irgen

import (
	"lcc/internal/ast"
	"lcc/internal/ir"
	"lcc/internal/symbol"
)

func (b *Builder) lowerBlock(blk *ast.Block) {
	saved := b.scope
	b.scope = newScope(saved)
	for _, item := range blk.Stmts {
		switch {
		case item.Decl != nil:
			for _, def := range item.Decl.Defs {
				b.lowerLocalDecl(item.Decl, def)
			}
		case item.Stmt != nil:
			b.lowerStmt(item.Stmt)
		}
	}
	b.scope = saved
}

// lowerLocalDecl binds def's symbol (already created by semantic
// analysis, fetched by AST identity so ids/types match exactly) into
// the current scope and emits its storage and initializer.
func (b *Builder) lowerLocalDecl(decl *ast.Decl, def *ast.VarDef) {
	sym, _ := b.sem.VarOf[def].(*symbol.Symbol)
	if sym == nil {
		return
	}
	b.scope.define(sym)

	if sym.Type.Kind == symbol.Basic {
		if sym.IsConst {
			return // every use substitutes the folded constant directly
		}
		b.emit(&ir.Instruction{Op: ir.ALLOCA, Arg1: ir.MakeVariable(sym)})
		if def.Init != nil && def.Init.Expr != nil {
			v := b.lowerExpr(def.Init.Expr)
			b.emit(&ir.Instruction{Op: ir.ASSIGN, Arg1: v, Result: ir.MakeVariable(sym)})
		}
		return
	}

	// Array: always needs its own stack storage, const or not.
	b.emit(&ir.Instruction{Op: ir.ALLOCA, Arg1: ir.MakeVariable(sym)})
	if def.Init != nil {
		b.lowerArrayInit(sym, def.Init, 0)
	}
}

// lowerArrayInit emits STORE instructions for every element of a
// brace-list initializer, in source order starting at offset.
func (b *Builder) lowerArrayInit(arr *symbol.Symbol, v *ast.InitVal, offset int) int {
	if v.Expr != nil {
		val := b.lowerExpr(v.Expr)
		b.emit(&ir.Instruction{Op: ir.STORE, Arg1: val, Arg2: ir.MakeVariable(arr), Result: ir.MakeConstantInt(offset)})
		return offset + 1
	}
	for _, elem := range v.List {
		offset = b.lowerArrayInit(arr, elem, offset)
	}
	return offset
}

// lowerStmt lowers one statement. Unlike the semantic analyzer, irgen
// doesn't need a reachability report: unreachable code after a
// RETURN/break/continue is simply appended to a dead block that CFG
// cleanup prunes once it's unreachable from entry.
func (b *Builder) lowerStmt(s *ast.Stmt) {
	switch {
	case s.Block != nil:
		b.lowerBlock(s.Block)
	case s.If != nil:
		b.lowerIf(s.If)
	case s.For != nil:
		b.lowerFor(s.For)
	case s.Break != nil:
		if len(b.loops) > 0 {
			top := b.loops[len(b.loops)-1]
			b.emit(&ir.Instruction{Op: ir.GOTO, Result: ir.MakeLabel(top.breakLabel)})
			b.startBlock()
		}
	case s.Continue != nil:
		if len(b.loops) > 0 {
			top := b.loops[len(b.loops)-1]
			b.emit(&ir.Instruction{Op: ir.GOTO, Result: ir.MakeLabel(top.continueLabel)})
			b.startBlock()
		}
	case s.Return != nil:
		if s.Return.Expr != nil {
			v := b.lowerExpr(s.Return.Expr)
			b.emit(&ir.Instruction{Op: ir.RETURN, Result: v})
		} else {
			b.emit(&ir.Instruction{Op: ir.RETURN})
		}
		b.startBlock()
	case s.Printf != nil:
		b.lowerPrintf(s.Printf)
	case s.Assign != nil:
		b.lowerAssign(s.Assign.Target, s.Assign.Value)
	case s.ExprStmt != nil:
		b.lowerExpr(s.ExprStmt.Expr)
	}
}

// startBlock opens a fresh flat "block" in the builder's single
// growing instruction stream right after an unconditional transfer, so
// that any statements lexically following a return/break/continue
// still have somewhere to land; cfg.Build will later discover they are
// unreachable and CFG cleanup removes them. Since the pre-CFG stream is
// a single ir.BasicBlock owned by the function, "starting a new block"
// here just means continuing to append -- cfg.Build re-partitions the
// whole stream by LABEL/terminator boundaries regardless.
func (b *Builder) startBlock() {}

func (b *Builder) lowerIf(s *ast.IfStmt) {
	cond := b.lowerExpr(s.Cond)
	lthen := b.newLabel()
	lend := b.newLabel()

	if s.Else == nil {
		b.emit(&ir.Instruction{Op: ir.IF, Arg1: cond, Result: ir.MakeLabel(lthen)})
		b.emit(&ir.Instruction{Op: ir.GOTO, Result: ir.MakeLabel(lend)})
		b.emitLabel(lthen)
		b.lowerStmt(s.Then)
		b.emitLabel(lend)
		return
	}

	lelse := b.newLabel()
	b.emit(&ir.Instruction{Op: ir.IF, Arg1: cond, Result: ir.MakeLabel(lthen)})
	b.emit(&ir.Instruction{Op: ir.GOTO, Result: ir.MakeLabel(lelse)})
	b.emitLabel(lthen)
	b.lowerStmt(s.Then)
	b.emit(&ir.Instruction{Op: ir.GOTO, Result: ir.MakeLabel(lend)})
	b.emitLabel(lelse)
	b.lowerStmt(s.Else)
	b.emitLabel(lend)
}

// lowerFor lowers the language's sole loop form with a test-at-top,
// jump-to-condition-first scheme: the condition block is reached both
// on entry and via the step block, so a loop whose body never runs
// still evaluates the condition exactly once.
func (b *Builder) lowerFor(s *ast.ForStmt) {
	saved := b.scope
	b.scope = newScope(saved)
	defer func() { b.scope = saved }()

	if s.Init != nil {
		b.lowerForAssign(s.Init)
	}

	lcond := b.newLabel()
	lbody := b.newLabel()
	lcontinue := b.newLabel()
	lbreak := b.newLabel()

	b.emit(&ir.Instruction{Op: ir.GOTO, Result: ir.MakeLabel(lcond)})
	b.emitLabel(lbody)

	b.loops = append(b.loops, loopLabels{continueLabel: lcontinue, breakLabel: lbreak})
	b.lowerStmt(s.Body)
	b.loops = b.loops[:len(b.loops)-1]

	b.emitLabel(lcontinue)
	if s.Step != nil {
		b.lowerForAssign(s.Step)
	}

	b.emitLabel(lcond)
	if s.Cond != nil {
		cond := b.lowerExpr(s.Cond)
		b.emit(&ir.Instruction{Op: ir.IF, Arg1: cond, Result: ir.MakeLabel(lbody)})
	} else {
		b.emit(&ir.Instruction{Op: ir.GOTO, Result: ir.MakeLabel(lbody)})
	}
	b.emitLabel(lbreak)
}

func (b *Builder) lowerForAssign(s *ast.ForAssignStmt) {
	b.lowerAssign(s.Target, s.Value)
}

func (b *Builder) lowerAssign(target *ast.LVal, value *ast.Expr) {
	v := b.lowerExpr(value)
	sym := b.scope.lookup(target.Name)
	if sym == nil {
		return
	}
	if len(target.Index) == 0 {
		b.storeScalar(sym, v)
		return
	}
	idx := b.lowerExpr(target.Index[0])
	b.emit(&ir.Instruction{Op: ir.STORE, Arg1: v, Arg2: ir.MakeVariable(sym), Result: idx})
}

// storeScalar writes v into sym, choosing ASSIGN for a raw (locally
// owned or parameter) variable and STORE for a global, which is always
// memory-resident and never promoted by mem2reg.
func (b *Builder) storeScalar(sym *symbol.Symbol, v ir.Operand) {
	if sym.IsGlobal {
		b.emit(&ir.Instruction{Op: ir.STORE, Arg1: v, Arg2: ir.MakeVariable(sym)})
		return
	}
	b.emit(&ir.Instruction{Op: ir.ASSIGN, Arg1: v, Result: ir.MakeVariable(sym)})
}

func (b *Builder) lowerPrintf(s *ast.PrintfStmt) {
	labelID, ok := b.strLits[s.Format]
	if !ok {
		labelID = b.newLabel()
		b.strLits[s.Format] = labelID
		b.module.StringLiterals[labelID] = s.Format
	}
	var vals []ir.Operand
	for _, arg := range s.Args {
		vals = append(vals, b.lowerExpr(arg))
	}
	b.emit(&ir.Instruction{Op: ir.ARG, Arg1: ir.MakeLabel(labelID)})
	for _, v := range vals {
		b.emit(&ir.Instruction{Op: ir.ARG, Arg1: v})
	}
	b.emit(&ir.Instruction{Op: ir.CALL, Arg1: ir.MakeConstantInt(len(s.Args) + 1), Arg2: ir.MakeVariable(b.printfSym)})
}
