// Package licm hoists loop-invariant pure instructions to a
// pre-header insertion site: any block outside the loop whose Next or
// Jump targets the header.
//
// Grounded on original_source/src/optimize/LICM.cpp, including its
// conservative treatment of LOAD (never hoisted, due to aliasing) and
// its "is this result redefined elsewhere in the loop" guard before
// moving an instruction.
package licm

import (
	"lcc/internal/domtree"
	"lcc/internal/ir"
	"lcc/internal/loopanalysis"
)

// Run hoists loop-invariant instructions for every loop in fn. The
// dominator tree argument is accepted for interface symmetry with the
// other passes even though this pass, like the original, does not
// itself need dominance facts beyond the loop body/header.
func Run(fn *ir.Function, dt *domtree.Tree, loops []*loopanalysis.Loop) bool {
	if len(loops) == 0 {
		return false
	}

	tempDefs := map[int]*ir.Instruction{}
	varDefs := map[int]*ir.Instruction{}
	for _, b := range fn.Blocks {
		for _, inst := range b.Insts {
			switch inst.Result.Kind {
			case ir.Temporary:
				tempDefs[inst.Result.AsInt()] = inst
			case ir.Variable:
				varDefs[inst.Result.AsSymbol().ID] = inst
			}
		}
	}

	changed := false
	for _, loop := range loops {
		if hoistLoop(fn, loop, tempDefs, varDefs) {
			changed = true
		}
	}
	return changed
}

func hoistLoop(fn *ir.Function, loop *loopanalysis.Loop, tempDefs map[int]*ir.Instruction, varDefs map[int]*ir.Instruction) bool {
	var insertBlock *ir.BasicBlock
	for _, b := range fn.Blocks {
		if loop.Contains(b) {
			continue
		}
		if b.Jump == loop.Header || b.Next == loop.Header {
			insertBlock = b
			break
		}
	}
	if insertBlock == nil {
		return false
	}

	invariant := map[*ir.Instruction]bool{}
	changed := true
	for changed {
		changed = false
		for b := range loop.Blocks {
			for _, inst := range b.Insts {
				if invariant[inst] {
					continue
				}
				if isInvariant(inst, loop, invariant, tempDefs, varDefs, fn) {
					invariant[inst] = true
					changed = true
				}
			}
		}
	}
	if len(invariant) == 0 {
		return false
	}

	// Guard: don't move an invariant instruction whose result is
	// redefined elsewhere in the loop.
	toMove := map[*ir.Instruction]bool{}
	for inst := range invariant {
		redefined := false
		for b := range loop.Blocks {
			for _, other := range b.Insts {
				if other == inst {
					continue
				}
				if other.Result == inst.Result && !inst.Result.IsEmpty() {
					redefined = true
					break
				}
			}
			if redefined {
				break
			}
		}
		if !redefined {
			toMove[inst] = true
		}
	}
	if len(toMove) == 0 {
		return false
	}

	// Collect in original relative order, then remove from the loop.
	var moved []*ir.Instruction
	for _, b := range orderedLoopBlocks(fn, loop) {
		var kept []*ir.Instruction
		for _, inst := range b.Insts {
			if toMove[inst] {
				moved = append(moved, inst)
				continue
			}
			kept = append(kept, inst)
		}
		b.Insts = kept
	}

	insertPos := len(insertBlock.Insts)
	if n := insertPos; n > 0 {
		switch insertBlock.Insts[n-1].Op {
		case ir.GOTO, ir.IF:
			insertPos = n - 1
		}
	}
	newInsts := make([]*ir.Instruction, 0, len(insertBlock.Insts)+len(moved))
	newInsts = append(newInsts, insertBlock.Insts[:insertPos]...)
	for _, inst := range moved {
		inst.Parent = insertBlock
	}
	newInsts = append(newInsts, moved...)
	newInsts = append(newInsts, insertBlock.Insts[insertPos:]...)
	insertBlock.Insts = newInsts

	return true
}

// orderedLoopBlocks returns the loop's blocks in the function's stable
// block order, so hoisted instructions preserve their original
// relative order regardless of map iteration order.
func orderedLoopBlocks(fn *ir.Function, loop *loopanalysis.Loop) []*ir.BasicBlock {
	var out []*ir.BasicBlock
	for _, b := range fn.Blocks {
		if loop.Contains(b) {
			out = append(out, b)
		}
	}
	return out
}

func isInvariant(inst *ir.Instruction, loop *loopanalysis.Loop, invariant map[*ir.Instruction]bool, tempDefs, varDefs map[int]*ir.Instruction, fn *ir.Function) bool {
	checkOperand := func(op ir.Operand) bool {
		switch op.Kind {
		case ir.ConstantInt, ir.Empty, ir.Label:
			return true
		case ir.Temporary:
			def, ok := tempDefs[op.AsInt()]
			if !ok {
				return true
			}
			return !loop.Contains(def.Parent) || invariant[def]
		case ir.Variable:
			def, ok := varDefs[op.AsSymbol().ID]
			if !ok {
				return true
			}
			return !loop.Contains(def.Parent) || invariant[def]
		}
		return true
	}

	switch inst.Op {
	case ir.STORE, ir.CALL, ir.IF, ir.GOTO, ir.RETURN, ir.ALLOCA, ir.PARAM, ir.LABEL, ir.LOAD, ir.PHI, ir.ARG, ir.NOP:
		return false
	case ir.ASSIGN:
		return checkOperand(inst.Arg1)
	case ir.NEG, ir.NOT:
		return checkOperand(inst.Arg1)
	default:
		if !inst.Op.IsBinaryArith() {
			return false
		}
		return checkOperand(inst.Arg1) && checkOperand(inst.Arg2)
	}
}
