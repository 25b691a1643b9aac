// Package mem2reg promotes scalar locals to SSA temporaries: it inserts
// phi nodes at dominance frontiers, renames definitions/uses via a
// dominator-tree preorder walk, then eliminates the phis by inserting
// copies at predecessor blocks.
//
// Grounded on original_source/src/optimize/Mem2Reg.cpp and
// PhiElimination.cpp, carried over step for step (the def-block
// discovery, the iterated dominance-frontier computation walking each
// predecessor up the idom chain, the worklist phi-insertion, and the
// preorder renamer with a per-block push-count so the stack unwinds
// exactly what that block pushed).
package mem2reg

import (
	"lcc/internal/domtree"
	"lcc/internal/ir"
	"lcc/internal/symbol"
)

type allocaInfo struct {
	varID      int
	defBlocks  map[*ir.BasicBlock]bool
}

// Run promotes every scalar (non-array) ALLOCA in fn to SSA form. It
// reports whether any promotion happened.
func Run(fn *ir.Function, dt *domtree.Tree) bool {
	allocas := collectPromotable(fn)
	if len(allocas) == 0 {
		return false
	}

	frontiers := dominanceFrontiers(fn, dt)
	phiToVar := insertPhis(fn, allocas, frontiers)

	if entry := fn.Entry(); entry != nil {
		varStacks := map[int][]ir.Operand{}
		rename(fn, entry, dt, allocas, phiToVar, varStacks)
	}

	removePromotedAllocas(fn, allocas)
	eliminatePhis(fn)
	return true
}

func collectPromotable(fn *ir.Function) map[int]*allocaInfo {
	allocas := map[int]*allocaInfo{}
	for _, b := range fn.Blocks {
		for _, inst := range b.Insts {
			if inst.Op != ir.ALLOCA {
				continue
			}
			if inst.Arg1.Kind != ir.Variable {
				continue
			}
			sym := inst.Arg1.AsSymbol()
			if sym.Type.Kind != symbol.Basic {
				continue
			}
			allocas[sym.ID] = &allocaInfo{varID: sym.ID, defBlocks: map[*ir.BasicBlock]bool{}}
		}
	}
	for _, b := range fn.Blocks {
		for _, inst := range b.Insts {
			switch inst.Op {
			case ir.ASSIGN:
				if inst.Result.Kind == ir.Variable {
					if info, ok := allocas[inst.Result.AsSymbol().ID]; ok {
						info.defBlocks[b] = true
					}
				}
			case ir.STORE:
				if inst.Arg2.Kind == ir.Variable && inst.Result.IsEmpty() {
					if info, ok := allocas[inst.Arg2.AsSymbol().ID]; ok {
						info.defBlocks[b] = true
					}
				}
			}
		}
	}
	return allocas
}

// dominanceFrontiers implements DF(x) = { y | exists p in preds(y): x
// dom p and x != idom(y) } by walking each predecessor up the idom
// chain.
func dominanceFrontiers(fn *ir.Function, dt *domtree.Tree) map[*ir.BasicBlock]map[*ir.BasicBlock]bool {
	preds := map[*ir.BasicBlock][]*ir.BasicBlock{}
	for _, b := range fn.Blocks {
		if b.Next != nil {
			preds[b.Next] = append(preds[b.Next], b)
		}
		if b.Jump != nil {
			preds[b.Jump] = append(preds[b.Jump], b)
		}
	}

	df := map[*ir.BasicBlock]map[*ir.BasicBlock]bool{}
	for _, b := range fn.Blocks {
		ps := preds[b]
		if len(ps) < 2 {
			continue
		}
		idom := dt.ImmediateDominator(b)
		for _, p := range ps {
			runner := p
			for runner != idom {
				if df[runner] == nil {
					df[runner] = map[*ir.BasicBlock]bool{}
				}
				df[runner][b] = true
				runner = dt.ImmediateDominator(runner)
				if runner == nil {
					break
				}
			}
		}
	}
	return df
}

func insertPhis(fn *ir.Function, allocas map[int]*allocaInfo, df map[*ir.BasicBlock]map[*ir.BasicBlock]bool) map[*ir.Instruction]int {
	phiToVar := map[*ir.Instruction]int{}

	for varID, info := range allocas {
		var worklist []*ir.BasicBlock
		for b := range info.defBlocks {
			worklist = append(worklist, b)
		}
		visited := map[*ir.BasicBlock]bool{}
		hasPhi := map[*ir.BasicBlock]bool{}

		for i := 0; i < len(worklist); i++ {
			x := worklist[i]
			for y := range df[x] {
				if hasPhi[y] {
					continue
				}
				phi := &ir.Instruction{Op: ir.PHI, Result: ir.MakeTemporary(fn.AllocTemp())}
				phi.Parent = y
				y.Insts = append([]*ir.Instruction{phi}, y.Insts...)
				phiToVar[phi] = varID
				hasPhi[y] = true
				if !visited[y] {
					visited[y] = true
					worklist = append(worklist, y)
				}
			}
		}
	}
	return phiToVar
}

func rename(fn *ir.Function, b *ir.BasicBlock, dt *domtree.Tree, allocas map[int]*allocaInfo, phiToVar map[*ir.Instruction]int, stacks map[int][]ir.Operand) {
	pushCount := map[int]int{}

	for _, inst := range b.Insts {
		if inst.Op != ir.PHI {
			continue
		}
		if varID, ok := phiToVar[inst]; ok {
			stacks[varID] = append(stacks[varID], inst.Result)
			pushCount[varID]++
		}
	}

	top := func(varID int) ir.Operand {
		s := stacks[varID]
		if len(s) == 0 {
			return ir.MakeConstantInt(0)
		}
		return s[len(s)-1]
	}

	tryReplace := func(op ir.Operand) ir.Operand {
		if op.Kind != ir.Variable {
			return op
		}
		if _, ok := allocas[op.AsSymbol().ID]; !ok {
			return op
		}
		return top(op.AsSymbol().ID)
	}

	for _, inst := range b.Insts {
		op := inst.Op
		if op == ir.PHI || op == ir.ALLOCA {
			continue
		}

		inst.Arg1 = tryReplace(inst.Arg1)
		if op != ir.STORE {
			inst.Arg2 = tryReplace(inst.Arg2)
		}
		if op == ir.RETURN || op == ir.STORE {
			// RETURN's value and STORE's array index sit in Result.
			inst.Result = tryReplace(inst.Result)
		}

		switch op {
		case ir.ASSIGN:
			if inst.Result.Kind == ir.Variable {
				if _, ok := allocas[inst.Result.AsSymbol().ID]; ok {
					varID := inst.Result.AsSymbol().ID
					stacks[varID] = append(stacks[varID], inst.Arg1)
					pushCount[varID]++
					inst.Op = ir.ALLOCA
					inst.Arg1 = ir.MakeEmpty()
				}
			}
		case ir.STORE:
			if inst.Arg2.Kind == ir.Variable && inst.Result.IsEmpty() {
				if _, ok := allocas[inst.Arg2.AsSymbol().ID]; ok {
					varID := inst.Arg2.AsSymbol().ID
					stacks[varID] = append(stacks[varID], inst.Arg1)
					pushCount[varID]++
					inst.Op = ir.ALLOCA
					inst.Arg1 = ir.MakeEmpty()
				}
			}
		}
	}

	for _, succ := range b.Successors() {
		for _, inst := range succ.Insts {
			if inst.Op != ir.PHI {
				continue
			}
			if varID, ok := phiToVar[inst]; ok {
				inst.PhiArgs = append(inst.PhiArgs, ir.PhiArg{Value: top(varID), Pred: b})
			}
		}
	}

	for _, child := range dt.DominatedBlocks(b) {
		rename(fn, child, dt, allocas, phiToVar, stacks)
	}

	for varID, n := range pushCount {
		s := stacks[varID]
		stacks[varID] = s[:len(s)-n]
	}
}

func removePromotedAllocas(fn *ir.Function, allocas map[int]*allocaInfo) {
	for _, b := range fn.Blocks {
		var kept []*ir.Instruction
		for _, inst := range b.Insts {
			if inst.Op == ir.ALLOCA && inst.Arg1.IsEmpty() {
				// A tombstone rename left where a promoted write was.
				continue
			}
			if inst.Op == ir.ALLOCA && inst.Arg1.Kind == ir.Variable {
				if _, ok := allocas[inst.Arg1.AsSymbol().ID]; ok {
					continue
				}
			}
			kept = append(kept, inst)
		}
		b.Insts = kept
	}
}

// eliminatePhis replaces each leading run of PHI instructions in a
// block with ASSIGN copies inserted at the end of each predecessor
// (before its terminator), then drops the phis.
func eliminatePhis(fn *ir.Function) {
	for _, b := range fn.Blocks {
		var phis []*ir.Instruction
		i := 0
		for i < len(b.Insts) && b.Insts[i].Op == ir.PHI {
			phis = append(phis, b.Insts[i])
			i++
		}
		if len(phis) == 0 {
			continue
		}
		b.Insts = b.Insts[i:]

		for _, phi := range phis {
			for _, arg := range phi.PhiArgs {
				copyInst := &ir.Instruction{Op: ir.ASSIGN, Arg1: arg.Value, Result: phi.Result}
				insertBeforeTerminator(arg.Pred, copyInst)
			}
		}
	}
}

func insertBeforeTerminator(b *ir.BasicBlock, inst *ir.Instruction) {
	inst.Parent = b
	n := len(b.Insts)
	insertAt := n
	if n > 0 {
		switch b.Insts[n-1].Op {
		case ir.GOTO, ir.IF, ir.RETURN:
			insertAt = n - 1
		}
	}
	b.Insts = append(b.Insts, nil)
	copy(b.Insts[insertAt+1:], b.Insts[insertAt:n])
	b.Insts[insertAt] = inst
}
