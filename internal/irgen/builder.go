package irgen

import (
	"lcc/internal/ast"
	"lcc/internal/ir"
	"lcc/internal/semantic"
	"lcc/internal/symbol"
)

// loopLabels is the pair of jump targets break/continue resolve
// against for the loop currently being lowered.
type loopLabels struct {
	continueLabel int
	breakLabel    int
}

// Builder holds the lowering state for one compilation unit: the
// module under construction, the function currently being filled, and
// the scope/loop-nesting context that tracks where the AST walk is.
type Builder struct {
	sem    *semantic.Result
	module *ir.Module

	global *scope

	fn    *ir.Function
	block *ir.BasicBlock
	scope *scope
	loops []loopLabels

	printfSym *symbol.Symbol
	strLits   map[string]int
}

// Build lowers unit into a pre-CFG ir.Module: every Function's Blocks
// field holds a single block with the flat, linear instruction stream;
// cfg.Build must be run per function before any other middle-end pass.
func Build(unit *ast.CompUnit, sem *semantic.Result) *ir.Module {
	b := &Builder{
		sem:     sem,
		module:  &ir.Module{StringLiterals: map[int]string{}},
		global:  newScope(nil),
		strLits: map[string]int{},
	}
	for _, sym := range sem.Globals {
		b.global.define(sym)
	}
	b.printfSym = &symbol.Symbol{Name: "printf", GlobalName: "printf", IsGlobal: true,
		Type: symbol.NewFunction(nil, nil)}

	b.module.Globals = b.buildGlobals()

	for _, item := range unit.Items {
		if item.Func == nil {
			continue
		}
		info := sem.Functions[item.Func.Name]
		if info == nil {
			continue
		}
		b.module.Functions = append(b.module.Functions, b.buildFunction(item.Func, info))
	}

	return b.module
}

// buildGlobals lowers every global symbol's storage and initializer
// into the flat ALLOCA/ASSIGN/STORE stream the back end's data-segment
// pass consumes. Scalar consts need no storage at all -- every use is
// substituted with their folded ConstantInt -- but const arrays still
// need memory, since they may be indexed dynamically.
func (b *Builder) buildGlobals() []*ir.Instruction {
	var out []*ir.Instruction
	emit := func(inst *ir.Instruction) { out = append(out, inst) }

	for _, sym := range b.sem.Globals {
		if sym.Type.Kind == symbol.Basic {
			if sym.IsConst {
				continue
			}
			emit(&ir.Instruction{Op: ir.ALLOCA, Arg1: ir.MakeVariable(sym)})
			if len(sym.ConstValues) > 0 {
				emit(&ir.Instruction{Op: ir.ASSIGN, Arg1: ir.MakeConstantInt(sym.ConstValues[0]), Result: ir.MakeVariable(sym)})
			}
			continue
		}
		// Array: always needs storage, const or not.
		emit(&ir.Instruction{Op: ir.ALLOCA, Arg1: ir.MakeVariable(sym)})
		for i, v := range sym.ConstValues {
			emit(&ir.Instruction{Op: ir.STORE, Arg1: ir.MakeConstantInt(v), Arg2: ir.MakeVariable(sym), Result: ir.MakeConstantInt(i)})
		}
	}
	return out
}

func (b *Builder) emit(inst *ir.Instruction) {
	b.block.Add(inst)
}

func (b *Builder) newTemp() ir.Operand {
	return ir.MakeTemporary(b.fn.AllocTemp())
}

func (b *Builder) newLabel() int {
	return b.fn.AllocLabel()
}

func (b *Builder) emitLabel(id int) {
	b.emit(&ir.Instruction{Op: ir.LABEL, Result: ir.MakeLabel(id)})
}

// buildFunction lowers one function definition. Parameters bind
// through PARAM directly into their own Variable operand and are never
// ALLOCA'd: per the hard contract between the IR builder and the
// global constant evaluator (a PARAM is the only formal-binding
// mechanism the evaluator trusts), so parameters stay un-promoted,
// memory-style Variable operands for their whole lifetime, exactly
// like globals. Only genuinely local scalars go through ALLOCA and are
// later promoted to SSA by mem2reg.
func (b *Builder) buildFunction(def *ast.FuncDef, info *semantic.FuncInfo) *ir.Function {
	fn := ir.NewFunction(def.Name)
	fn.Sym = info.Sym

	b.fn = fn
	b.block = fn.NewBlock()
	b.scope = newScope(b.global)
	b.loops = nil

	for i, p := range info.Params {
		b.scope.define(p)
		b.emit(&ir.Instruction{Op: ir.PARAM, Arg1: ir.MakeConstantInt(i), Result: ir.MakeVariable(p)})
	}

	b.lowerBlock(def.Body)

	if last := b.block.Terminator(); last == nil || !last.Op.IsTerminator() {
		b.emit(&ir.Instruction{Op: ir.RETURN})
	}

	return fn
}
