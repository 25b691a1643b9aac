// Package cfgclean removes unreachable blocks, merges linear chains of
// single-predecessor blocks, and drops NOP tombstones, iterated to a
// fixpoint.
//
// Grounded on original_source/src/optimize/CFGCleanup.cpp.
package cfgclean

import "lcc/internal/ir"

// Run applies (a) unreachable-block removal, (b) block merging, and (c)
// NOP removal repeatedly until none of the three make further progress.
// Reports whether anything changed.
func Run(fn *ir.Function) bool {
	changed := false
	for {
		local := false
		if removeUnreachable(fn) {
			local = true
		}
		if mergeBlocks(fn) {
			local = true
		}
		if removeNops(fn) {
			local = true
		}
		if !local {
			break
		}
		changed = true
	}
	return changed
}

func removeNops(fn *ir.Function) bool {
	changed := false
	for _, b := range fn.Blocks {
		var kept []*ir.Instruction
		for _, inst := range b.Insts {
			if inst.Op == ir.NOP {
				changed = true
				continue
			}
			kept = append(kept, inst)
		}
		b.Insts = kept
	}
	return changed
}

func removeUnreachable(fn *ir.Function) bool {
	if len(fn.Blocks) == 0 {
		return false
	}
	entry := fn.Blocks[0]
	visited := map[*ir.BasicBlock]bool{entry: true}
	worklist := []*ir.BasicBlock{entry}
	for len(worklist) > 0 {
		b := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]
		for _, succ := range b.Successors() {
			if !visited[succ] {
				visited[succ] = true
				worklist = append(worklist, succ)
			}
		}
	}

	var kept []*ir.BasicBlock
	changed := false
	for _, b := range fn.Blocks {
		if visited[b] {
			kept = append(kept, b)
		} else {
			changed = true
		}
	}
	fn.Blocks = kept
	return changed
}

// mergeBlocks performs at most one merge per call (mirroring the
// original's "restart to be safe" discipline); Run's outer loop calls
// it repeatedly until it reports no change.
func mergeBlocks(fn *ir.Function) bool {
	preds := map[*ir.BasicBlock][]*ir.BasicBlock{}
	for _, b := range fn.Blocks {
		if b.Next != nil {
			preds[b.Next] = append(preds[b.Next], b)
		}
		if b.Jump != nil {
			preds[b.Jump] = append(preds[b.Jump], b)
		}
	}

	entry := fn.Blocks[0]

	onlyPred := func(succ, b *ir.BasicBlock) bool {
		ps := preds[succ]
		return len(ps) == 1 && ps[0] == b
	}

	absorb := func(b, succ *ir.BasicBlock) {
		for _, inst := range succ.Insts {
			if inst.Op == ir.LABEL {
				continue
			}
			inst.Parent = b
			b.Insts = append(b.Insts, inst)
		}
		b.Next = succ.Next
		b.Jump = succ.Jump
		removeBlock(fn, succ)
	}

	for _, b := range fn.Blocks {
		if b.Next != nil && b.Jump == nil {
			succ := b.Next
			if succ != entry && onlyPred(succ, b) {
				absorb(b, succ)
				return true
			}
		}
		if b.Jump != nil && b.Next == nil {
			succ := b.Jump
			if succ != entry && onlyPred(succ, b) {
				if n := len(b.Insts); n > 0 && b.Insts[n-1].Op == ir.GOTO {
					b.Insts = b.Insts[:n-1]
				}
				absorb(b, succ)
				return true
			}
		}
	}
	return false
}

func removeBlock(fn *ir.Function, target *ir.BasicBlock) {
	var kept []*ir.BasicBlock
	for _, b := range fn.Blocks {
		if b != target {
			kept = append(kept, b)
		}
	}
	fn.Blocks = kept
}
