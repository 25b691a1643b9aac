// Package localopt performs within-block constant folding and
// local/global dead-code elimination over straight-line instruction
// sequences, without needing dominance or loop information.
//
// Grounded on original_source/src/codegen/QuadOptimizer.cpp: constant
// folding for all binary/unary arithmetic and comparison opcodes,
// algebraic identities (x+0, x*1, x*0, etc.), constant IF resolution,
// and a liveness-free "never used anywhere, has no side effect" DCE
// sweep repeated to a fixpoint. propagateConstants extends that fold
// one hop further than the original: a temporary with exactly one
// defining ASSIGN whose source is a constant is a safe substitution
// everywhere it's read, which lets a constant that reaches a use
// through an intervening copy (the kind mem2reg's phi elimination or
// loop unrolling introduces) still fold instead of surviving as a
// spurious ADD/compare of a named temporary.
package localopt

import "lcc/internal/ir"

// Run folds constant expressions and removes dead instructions across
// fn, repeating every pass until none makes progress. It reports
// whether anything changed.
func Run(fn *ir.Function) bool {
	changed := false
	for {
		local := false
		if propagateConstants(fn) {
			local = true
		}
		if foldConstants(fn) {
			local = true
		}
		if eliminateDeadCode(fn) {
			local = true
		}
		if !local {
			break
		}
		changed = true
	}
	return changed
}

// propagateConstants substitutes reads of a temporary for its value
// when that temporary is assigned a constant exactly once in the
// whole function. A temporary written more than once (the shape a
// loop-carried variable has before and immediately after unrolling, a
// preheader definition and a closing one) is left alone: which write
// reaches a given read depends on control flow this pass doesn't
// track, so substituting either unconditionally could be wrong.
func propagateConstants(fn *ir.Function) bool {
	values := map[ir.Operand]ir.Operand{}
	writes := map[ir.Operand]int{}
	for _, b := range fn.Blocks {
		for _, inst := range b.Insts {
			if inst.Op != ir.ASSIGN || inst.Result.Kind != ir.Temporary {
				continue
			}
			writes[inst.Result]++
			if inst.Arg1.Kind == ir.ConstantInt {
				values[inst.Result] = inst.Arg1
			}
		}
	}

	single := func(op ir.Operand) (ir.Operand, bool) {
		if writes[op] != 1 {
			return ir.Operand{}, false
		}
		v, ok := values[op]
		return v, ok
	}

	changed := false
	for _, b := range fn.Blocks {
		for _, inst := range b.Insts {
			if inst.Op == ir.PHI {
				continue
			}
			if v, ok := single(inst.Arg1); ok {
				inst.Arg1 = v
				changed = true
			}
			if v, ok := single(inst.Arg2); ok {
				inst.Arg2 = v
				changed = true
			}
			if inst.Op == ir.RETURN {
				if v, ok := single(inst.Result); ok {
					inst.Result = v
					changed = true
				}
			}
		}
	}
	return changed
}

func foldConstants(fn *ir.Function) bool {
	changed := false
	for _, b := range fn.Blocks {
		for _, inst := range b.Insts {
			if foldInstruction(inst) {
				changed = true
			}
		}
	}
	return changed
}

func foldInstruction(inst *ir.Instruction) bool {
	switch inst.Op {
	case ir.ADD, ir.SUB, ir.MUL, ir.DIV, ir.MOD, ir.AND, ir.OR:
		return foldBinaryArithLogic(inst)
	case ir.EQ, ir.NEQ, ir.LT, ir.LE, ir.GT, ir.GE:
		return foldCompare(inst)
	case ir.IF:
		return foldIf(inst)
	case ir.NEG:
		if inst.Arg1.Kind == ir.ConstantInt {
			v := -inst.Arg1.AsInt()
			inst.Op = ir.ASSIGN
			inst.Arg1 = ir.MakeConstantInt(v)
			return true
		}
	case ir.NOT:
		if inst.Arg1.Kind == ir.ConstantInt {
			v := 0
			if inst.Arg1.AsInt() == 0 {
				v = 1
			}
			inst.Op = ir.ASSIGN
			inst.Arg1 = ir.MakeConstantInt(v)
			return true
		}
	}
	return identities(inst)
}

func foldBinaryArithLogic(inst *ir.Instruction) bool {
	if inst.Arg1.Kind != ir.ConstantInt || inst.Arg2.Kind != ir.ConstantInt {
		return false
	}
	a, b := inst.Arg1.AsInt(), inst.Arg2.AsInt()
	var v int
	switch inst.Op {
	case ir.ADD:
		v = a + b
	case ir.SUB:
		v = a - b
	case ir.MUL:
		v = a * b
	case ir.DIV:
		if b == 0 {
			return false
		}
		v = a / b
	case ir.MOD:
		if b == 0 {
			return false
		}
		v = a % b
	case ir.AND:
		v = boolInt(a != 0 && b != 0)
	case ir.OR:
		v = boolInt(a != 0 || b != 0)
	}
	inst.Op = ir.ASSIGN
	inst.Arg1 = ir.MakeConstantInt(v)
	inst.Arg2 = ir.MakeEmpty()
	return true
}

func foldCompare(inst *ir.Instruction) bool {
	if inst.Arg1.Kind != ir.ConstantInt || inst.Arg2.Kind != ir.ConstantInt {
		return false
	}
	a, b := inst.Arg1.AsInt(), inst.Arg2.AsInt()
	var v bool
	switch inst.Op {
	case ir.EQ:
		v = a == b
	case ir.NEQ:
		v = a != b
	case ir.LT:
		v = a < b
	case ir.LE:
		v = a <= b
	case ir.GT:
		v = a > b
	case ir.GE:
		v = a >= b
	}
	inst.Op = ir.ASSIGN
	inst.Arg1 = ir.MakeConstantInt(boolInt(v))
	inst.Arg2 = ir.MakeEmpty()
	return true
}

// foldIf resolves a branch on a known constant: a zero condition can
// never take the jump, so the block falls straight through and the
// instruction becomes NOP; a nonzero condition always takes it, so the
// instruction becomes an unconditional GOTO and the fallthrough edge is
// cut.
func foldIf(inst *ir.Instruction) bool {
	if inst.Arg1.Kind != ir.ConstantInt {
		return false
	}
	b := inst.Parent
	if inst.Arg1.AsInt() == 0 {
		inst.Op = ir.NOP
		inst.Arg1 = ir.MakeEmpty()
		inst.Result = ir.MakeEmpty()
		if b != nil {
			b.Jump = nil
		}
		return true
	}
	inst.Op = ir.GOTO
	inst.Arg1 = ir.MakeEmpty()
	if b != nil {
		b.Next = nil
	}
	return true
}

// identities rewrites a handful of algebraic simplifications that
// don't require both operands to be constant: x+0, 0+x, x-0, x*1,
// 1*x, x*0, 0*x.
func identities(inst *ir.Instruction) bool {
	isZero := func(op ir.Operand) bool { return op.Kind == ir.ConstantInt && op.AsInt() == 0 }
	isOne := func(op ir.Operand) bool { return op.Kind == ir.ConstantInt && op.AsInt() == 1 }

	switch inst.Op {
	case ir.ADD:
		if isZero(inst.Arg2) {
			inst.Op, inst.Arg2 = ir.ASSIGN, ir.MakeEmpty()
			return true
		}
		if isZero(inst.Arg1) {
			inst.Op, inst.Arg1, inst.Arg2 = ir.ASSIGN, inst.Arg2, ir.MakeEmpty()
			return true
		}
	case ir.SUB:
		if isZero(inst.Arg2) {
			inst.Op, inst.Arg2 = ir.ASSIGN, ir.MakeEmpty()
			return true
		}
	case ir.MUL:
		if isZero(inst.Arg1) || isZero(inst.Arg2) {
			inst.Op, inst.Arg1, inst.Arg2 = ir.ASSIGN, ir.MakeConstantInt(0), ir.MakeEmpty()
			return true
		}
		if isOne(inst.Arg2) {
			inst.Op, inst.Arg2 = ir.ASSIGN, ir.MakeEmpty()
			return true
		}
		if isOne(inst.Arg1) {
			inst.Op, inst.Arg1, inst.Arg2 = ir.ASSIGN, inst.Arg2, ir.MakeEmpty()
			return true
		}
	case ir.DIV:
		if isOne(inst.Arg2) {
			inst.Op, inst.Arg2 = ir.ASSIGN, ir.MakeEmpty()
			return true
		}
	}
	return false
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// eliminateDeadCode removes instructions whose result is never used
// anywhere in fn and that have no side effect. Like the original, this
// is liveness-free: a single used-anywhere scan, not a per-block
// backward walk, since globals/escaping stores are excluded via
// HasSideEffect.
func eliminateDeadCode(fn *ir.Function) bool {
	used := map[ir.Operand]bool{}
	mark := func(op ir.Operand) {
		if op.Kind == ir.Temporary || op.Kind == ir.Variable {
			used[op] = true
		}
	}
	for _, b := range fn.Blocks {
		for _, inst := range b.Insts {
			mark(inst.Arg1)
			mark(inst.Arg2)
			if inst.Op == ir.RETURN || inst.Op == ir.STORE {
				// RETURN's value and STORE's index sit in Result.
				mark(inst.Result)
			}
			for _, arg := range inst.PhiArgs {
				mark(arg.Value)
			}
		}
	}

	changed := false
	for _, b := range fn.Blocks {
		var kept []*ir.Instruction
		for _, inst := range b.Insts {
			if inst.Op.HasSideEffect() || inst.Result.IsEmpty() {
				kept = append(kept, inst)
				continue
			}
			if used[inst.Result] {
				kept = append(kept, inst)
				continue
			}
			changed = true
		}
		b.Insts = kept
	}
	return changed
}
