// Package inline replaces a CALL to a small, non-recursive, single-
// return-point function with a copy of that function's blocks spliced
// directly into the caller, remapping every temporary, label, local
// variable and block id the copy introduces so it can never collide
// with anything already in the caller.
//
// Grounded on original_source/src/optimize/Inliner.cpp: the same
// candidate filter (body size cap, no direct self-recursion, single
// RETURN), the same block-splitting strategy at the call site (the
// call's block is split into a head ending in a GOTO to the inlined
// entry and a tail receiving control after the callee's RETURN is
// rewritten to a GOTO), and the same full id-remapping discipline.
package inline

import (
	"lcc/internal/ir"
	"lcc/internal/symbol"
)

// maxInlineBody bounds the instruction count of a function eligible
// for inlining, mirroring the original's size cap on code growth.
const maxInlineBody = 40

// cloneSymbolCounter mints fresh negative symbol ids for cloned
// locals across every call to cloneFunction in this process.
var cloneSymbolCounter = 0

// candidate reports whether fn may ever be inlined: small enough, with
// at most one RETURN, and not directly recursive into itself.
func candidate(fn *ir.Function) bool {
	n, returns := 0, 0
	for _, b := range fn.Blocks {
		n += len(b.Insts)
		for _, inst := range b.Insts {
			if inst.Op == ir.RETURN {
				returns++
			}
		}
	}
	if n == 0 || n > maxInlineBody || returns > 1 {
		return false
	}
	for _, b := range fn.Blocks {
		for _, inst := range b.Insts {
			if inst.Op == ir.CALL && inst.Arg2.Kind == ir.Variable && inst.Arg2.Sym != nil && inst.Arg2.Sym.Name == fn.Name {
				return false
			}
		}
	}
	return true
}

// Run inlines eligible calls in caller, given the full module (to
// resolve callee functions by name). It reports whether any call was
// inlined. Callers should re-run CFG/dominator analysis afterwards,
// since block identities change.
func Run(module *ir.Module, caller *ir.Function) bool {
	changed := false
	for {
		call, block, idx, callee := findInlinableCall(module, caller)
		if call == nil {
			break
		}
		inlineCallAt(caller, block, idx, call, callee)
		changed = true
	}
	return changed
}

func findInlinableCall(module *ir.Module, caller *ir.Function) (*ir.Instruction, *ir.BasicBlock, int, *ir.Function) {
	byName := map[string]*ir.Function{}
	for _, fn := range module.Functions {
		byName[fn.Name] = fn
	}
	for _, b := range caller.Blocks {
		for i, inst := range b.Insts {
			if inst.Op != ir.CALL {
				continue
			}
			if inst.Arg2.Kind != ir.Variable || inst.Arg2.Sym == nil {
				continue
			}
			callee, ok := byName[inst.Arg2.Sym.Name]
			if !ok || callee == caller {
				continue
			}
			if !candidate(callee) {
				continue
			}
			return inst, b, i, callee
		}
	}
	return nil, nil, -1, nil
}

// inlineCallAt splices a fresh, fully remapped copy of callee into
// caller at block b, instruction index idx.
func inlineCallAt(caller *ir.Function, b *ir.BasicBlock, idx int, call *ir.Instruction, callee *ir.Function) {
	args := collectArgOperands(b, idx)
	clonedEntry, clonedBlocks, returnValue := cloneFunction(caller, callee, args)

	argStart := idx
	for argStart > 0 && b.Insts[argStart-1].Op == ir.ARG {
		argStart--
	}
	head := b.Insts[:argStart]
	tailInsts := append([]*ir.Instruction{}, b.Insts[idx+1:]...)

	tail := caller.NewBlock()
	// Move tail from the end of the block list to right behind b, so a
	// later cfg.Build, which wires fall-through edges by block order,
	// still finds b's old fall-through successor right after it.
	reordered := make([]*ir.BasicBlock, 0, len(caller.Blocks))
	for _, blk := range caller.Blocks[:len(caller.Blocks)-1] {
		reordered = append(reordered, blk)
		if blk == b {
			reordered = append(reordered, tail)
		}
	}
	caller.Blocks = reordered
	for _, inst := range tailInsts {
		inst.Parent = tail
		tail.Insts = append(tail.Insts, inst)
	}
	tail.Next = b.Next
	tail.Jump = b.Jump

	if !call.Result.IsEmpty() && returnValue != nil {
		assign := &ir.Instruction{Op: ir.ASSIGN, Arg1: *returnValue, Result: call.Result}
		tail.Insts = append([]*ir.Instruction{assign}, tail.Insts...)
		assign.Parent = tail
	}

	for _, cb := range clonedBlocks {
		if cb.Terminator() != nil && cb.Terminator().Op == ir.RETURN {
			term := cb.Terminator()
			term.Op = ir.GOTO
			term.Result = ir.MakeLabel(ensureLabel(caller, tail))
			term.Arg1 = ir.MakeEmpty()
			cb.Next = nil
			cb.Jump = tail
		}
	}

	b.Insts = head
	b.Insts = append(b.Insts, &ir.Instruction{Op: ir.GOTO, Result: ir.MakeLabel(ensureLabel(caller, clonedEntry)), Parent: b})
	b.Next = nil
	b.Jump = clonedEntry
}

func ensureLabel(fn *ir.Function, b *ir.BasicBlock) int {
	if id := b.LabelID(); id >= 0 {
		return id
	}
	// Blocks produced by cloning/splitting may lack a LABEL lead
	// instruction. cfg.Build resolves a GOTO target only through a
	// LABEL instruction, and the CFG is rebuilt after inlining, so such
	// a block gets a LABEL with a fresh id from fn.
	id := fn.AllocLabel()
	b.Insts = append([]*ir.Instruction{{Op: ir.LABEL, Result: ir.MakeLabel(id), Parent: b}}, b.Insts...)
	return id
}

func collectArgOperands(b *ir.BasicBlock, callIdx int) []ir.Operand {
	start := callIdx
	for start > 0 && b.Insts[start-1].Op == ir.ARG {
		start--
	}
	var args []ir.Operand
	for i := start; i < callIdx; i++ {
		args = append(args, b.Insts[i].Arg1)
	}
	return args
}

// cloneFunction deep-copies callee's blocks into caller's block list
// with every temp/label/block id freshly allocated from caller's
// counters, binds its parameters to args via leading ASSIGNs, and
// returns the cloned entry block, the full set of cloned blocks, and
// (if callee returns a value) the remapped operand of the first valued
// RETURN found, or nil when there is none. candidate admits only
// callees with at most one RETURN, so that operand is the only value
// the callee can return.
func cloneFunction(caller *ir.Function, callee *ir.Function, args []ir.Operand) (*ir.BasicBlock, []*ir.BasicBlock, *ir.Operand) {
	tempMap := map[int]int{}
	labelMap := map[int]int{}
	symMap := map[*symbol.Symbol]*symbol.Symbol{}
	blockMap := map[*ir.BasicBlock]*ir.BasicBlock{}

	// remapSymbol gives each clone of an inlined call its own copy of
	// the callee's local variable symbols, so that two call sites
	// inlining the same function never alias each other's locals under
	// mem2reg (which keys promotion state by symbol id). Globals are
	// shared, never cloned.
	remapSymbol := func(sym *symbol.Symbol) *symbol.Symbol {
		if sym == nil || sym.IsGlobal {
			return sym
		}
		if cloned, ok := symMap[sym]; ok {
			return cloned
		}
		cp := *sym
		// Negative, monotonically decreasing ids can never collide
		// with a real symbol-table id (those are assigned >= 0 by the
		// semantic analyzer), so clones of the same callee's locals
		// stay distinct across independent inline sites without
		// needing to coordinate with the global symbol table.
		cloneSymbolCounter--
		cp.ID = cloneSymbolCounter
		symMap[sym] = &cp
		return &cp
	}

	remapOperand := func(op ir.Operand) ir.Operand {
		switch op.Kind {
		case ir.Temporary:
			if _, ok := tempMap[op.AsInt()]; !ok {
				tempMap[op.AsInt()] = caller.AllocTemp()
			}
			return ir.MakeTemporary(tempMap[op.AsInt()])
		case ir.Label:
			if _, ok := labelMap[op.AsInt()]; !ok {
				labelMap[op.AsInt()] = caller.AllocLabel()
			}
			return ir.MakeLabel(labelMap[op.AsInt()])
		case ir.Variable:
			return ir.MakeVariable(remapSymbol(op.AsSymbol()))
		default:
			return op
		}
	}

	for _, cb := range callee.Blocks {
		blockMap[cb] = caller.NewBlock()
	}

	paramIdx := 0
	var clonedBlocks []*ir.BasicBlock
	for _, cb := range callee.Blocks {
		nb := blockMap[cb]
		clonedBlocks = append(clonedBlocks, nb)
		for _, inst := range cb.Insts {
			ni := &ir.Instruction{Op: inst.Op, Parent: nb}
			switch inst.Op {
			case ir.LABEL:
				ni.Result = ir.MakeLabel(remapOperand(ir.MakeLabel(inst.Result.AsInt())).AsInt())
			case ir.GOTO:
				ni.Result = remapOperand(inst.Result)
			case ir.IF:
				ni.Arg1 = remapOperand(inst.Arg1)
				ni.Result = remapOperand(inst.Result)
			case ir.PARAM:
				if paramIdx < len(args) {
					ni.Op = ir.ASSIGN
					ni.Arg1 = args[paramIdx]
					ni.Result = remapOperand(inst.Result)
				}
				paramIdx++
			case ir.PHI:
				ni.Result = remapOperand(inst.Result)
				for _, pa := range inst.PhiArgs {
					ni.PhiArgs = append(ni.PhiArgs, ir.PhiArg{Value: remapOperand(pa.Value), Pred: blockMap[pa.Pred]})
				}
			default:
				ni.Arg1 = remapOperand(inst.Arg1)
				ni.Arg2 = remapOperand(inst.Arg2)
				ni.Result = remapOperand(inst.Result)
			}
			nb.Insts = append(nb.Insts, ni)
		}
		if cb.Next != nil {
			nb.Next = blockMap[cb.Next]
		}
		if cb.Jump != nil {
			nb.Jump = blockMap[cb.Jump]
		}
	}

	// term.Result was already remapped while cloning (RETURN falls
	// through to the default remap case above); reading it again here
	// must not call remapOperand a second time, or a fresh temp would
	// be allocated instead of reusing the one already bound.
	var retOperand *ir.Operand
	for _, cb := range clonedBlocks {
		if term := cb.Terminator(); term != nil && term.Op == ir.RETURN && !term.Result.IsEmpty() {
			v := term.Result
			retOperand = &v
			break
		}
	}

	return clonedBlocks[0], clonedBlocks, retOperand
}
