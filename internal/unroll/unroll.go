// Package unroll fully unrolls small counted loops whose trip count
// can be determined statically: a single induction variable, a
// constant bound, a constant step, and a body free of calls.
//
// Grounded on original_source/src/optimize/LoopUnroll.cpp's
// isSimpleLoop/tryUnrollLoop pair: find the induction variable through
// the compare feeding the header's branch, derive its initial value
// and step from the two definitions that merge into it (one from
// outside the loop, one from the back edge), then replicate the body
// trip_count times with the induction variable folded to its
// per-iteration literal and every other temporary rewritten through a
// fresh-id map so iterations never alias each other's values. Since
// mem2reg has already run by the time this pass does (runMem2Reg
// precedes runUnroll in passmgr.NewStandardPipeline), the induction
// variable is a plain SSA temporary here, not the ir.Variable the
// original's raw PHI nodes would carry -- recognition is adapted to
// read it back out of the ASSIGN copies mem2reg's phi elimination
// leaves behind instead.
package unroll

import (
	"lcc/internal/domtree"
	"lcc/internal/ir"
	"lcc/internal/loopanalysis"
)

// maxUnrollBody bounds how many instructions the fully replicated body
// may contain before Run gives up, mirroring the original's guard
// against code-size blowup.
const maxUnrollBody = 256

// maxTripCount bounds the trip count Run will actually replicate.
const maxTripCount = 64

// induction describes a simple counted loop: an induction variable
// compared against a constant bound with a constant step.
type induction struct {
	iv    ir.Operand
	init  int
	bound int
	step  int
	cmp   ir.Opcode
}

// Run attempts to fully unroll every loop in loops whose trip count is
// statically known and small. It reports whether any loop was
// unrolled.
func Run(fn *ir.Function, dt *domtree.Tree, loops []*loopanalysis.Loop) bool {
	changed := false
	for _, loop := range loops {
		if unrollOne(fn, loop) {
			changed = true
		}
	}
	return changed
}

func unrollOne(fn *ir.Function, loop *loopanalysis.Loop) bool {
	if len(loop.Blocks) == 0 || loop.Header == nil {
		return false
	}

	// Every non-header loop block must be a plain fallthrough link in
	// the latch chain: an explicit IF/GOTO/RETURN there means the body
	// has its own control flow (an if, a break, a nested loop) that
	// filterBody would silently drop instead of preserving.
	for b := range loop.Blocks {
		if b == loop.Header {
			continue
		}
		if term := b.Terminator(); term != nil && term.Op.IsTerminator() {
			return false
		}
	}

	merges := mergeTemps(fn, loop)
	ind := findInduction(fn, loop, merges)
	if ind == nil {
		return false
	}

	trip := tripCount(ind)
	if trip < 0 || trip > maxTripCount {
		return false
	}

	body := orderedBody(loop)
	if len(body)*trip > maxUnrollBody {
		return false
	}
	for _, inst := range body {
		if inst.Op == ir.CALL {
			return false
		}
	}

	return replicate(fn, loop, ind, trip, body, merges)
}

// mergeTemps finds every temporary that is written both by a
// definition outside the loop and by a definition inside it: exactly
// the shape mem2reg's phi elimination leaves for a loop-carried
// variable (one ASSIGN copy in the preheader for the initial value,
// one in the latch for the back-edge value). The induction variable is
// one of these; any other loop-carried scalar (an accumulator, say) is
// too, and replicate needs to know about those as well to thread their
// values between unrolled iterations.
func mergeTemps(fn *ir.Function, loop *loopanalysis.Loop) map[ir.Operand]bool {
	outside := map[ir.Operand]bool{}
	for _, b := range fn.Blocks {
		if loop.Contains(b) {
			continue
		}
		for _, inst := range b.Insts {
			if inst.Op == ir.ASSIGN && inst.Result.Kind == ir.Temporary {
				outside[inst.Result] = true
			}
		}
	}
	merges := map[ir.Operand]bool{}
	for b := range loop.Blocks {
		for _, inst := range b.Insts {
			if inst.Op == ir.ASSIGN && inst.Result.Kind == ir.Temporary && outside[inst.Result] {
				merges[inst.Result] = true
			}
		}
	}
	return merges
}

// findInduction locates the induction variable through the compare
// feeding the header's IF (the IV or the next-value temp may sit on
// either side), then resolves its initial value and per-iteration step
// from the merge definitions mergeTemps already found.
func findInduction(fn *ir.Function, loop *loopanalysis.Loop, merges map[ir.Operand]bool) *induction {
	header := loop.Header
	term := header.Terminator()
	if term == nil || term.Op != ir.IF {
		return nil
	}

	boundInst := defOf(header, term.Arg1)
	if boundInst == nil || !boundInst.Op.IsCompare() {
		return nil
	}

	iv, boundOp, cmp := boundInst.Arg1, boundInst.Arg2, boundInst.Op
	switch {
	case boundOp.Kind == ir.ConstantInt && merges[iv]:
		// iv CMP constant already, nothing to normalize.
	case iv.Kind == ir.ConstantInt && merges[boundOp]:
		iv, boundOp = boundOp, iv
		cmp = mirror(cmp)
	default:
		return nil
	}

	init, ok := mergeInit(fn, loop, iv)
	if !ok {
		return nil
	}
	step, ok := mergeStep(loop, iv)
	if !ok || step == 0 {
		return nil
	}

	return &induction{iv: iv, init: init, bound: boundOp.AsInt(), step: step, cmp: cmp}
}

// mirror flips a comparison for operand-order normalization: `bound CMP
// iv` becomes `iv mirror(CMP) bound`.
func mirror(cmp ir.Opcode) ir.Opcode {
	switch cmp {
	case ir.LT:
		return ir.GT
	case ir.LE:
		return ir.GE
	case ir.GT:
		return ir.LT
	case ir.GE:
		return ir.LE
	default:
		return cmp
	}
}

// defOf finds the instruction in b whose Result is op.
func defOf(b *ir.BasicBlock, op ir.Operand) *ir.Instruction {
	for _, inst := range b.Insts {
		if inst.Result == op {
			return inst
		}
	}
	return nil
}

// mergeInit looks for the unique definition of iv in a block outside
// the loop that assigns it a constant value. Multiple candidate
// definitions, or a non-constant one, are reported as "unknown" since
// the real reaching definition can't be resolved without full
// reaching-definitions analysis.
func mergeInit(fn *ir.Function, loop *loopanalysis.Loop, iv ir.Operand) (int, bool) {
	value, found := 0, false
	for _, b := range fn.Blocks {
		if loop.Contains(b) {
			continue
		}
		for _, inst := range b.Insts {
			if inst.Op != ir.ASSIGN || inst.Result != iv {
				continue
			}
			if inst.Arg1.Kind != ir.ConstantInt {
				return 0, false
			}
			if found && value != inst.Arg1.AsInt() {
				return 0, false
			}
			value, found = inst.Arg1.AsInt(), true
		}
	}
	return value, found
}

// mergeStep finds the back-edge definition of iv inside the loop (the
// copy mem2reg's phi elimination leaves in the latch), then the
// instruction computing the value that copy carries: an ADD or SUB of
// iv and a constant.
func mergeStep(loop *loopanalysis.Loop, iv ir.Operand) (int, bool) {
	var next ir.Operand
	found := false
	for b := range loop.Blocks {
		for _, inst := range b.Insts {
			if inst.Op != ir.ASSIGN || inst.Result != iv {
				continue
			}
			if found {
				return 0, false
			}
			next, found = inst.Arg1, true
		}
	}
	if !found {
		return 0, false
	}

	for b := range loop.Blocks {
		for _, inst := range b.Insts {
			if inst.Result != next {
				continue
			}
			if inst.Op != ir.ADD && inst.Op != ir.SUB {
				return 0, false
			}
			switch {
			case inst.Arg1 == iv && inst.Arg2.Kind == ir.ConstantInt:
				step := inst.Arg2.AsInt()
				if inst.Op == ir.SUB {
					step = -step
				}
				return step, true
			case inst.Op == ir.ADD && inst.Arg2 == iv && inst.Arg1.Kind == ir.ConstantInt:
				return inst.Arg1.AsInt(), true
			default:
				return 0, false
			}
		}
	}
	return 0, false
}

// tripCount returns the number of iterations the induction variable
// runs for, or -1 if it cannot be determined to be finite and
// non-negative from static information alone. LE/GE are normalized to
// the exclusive LT/GT form before the division so an inclusive bound
// doesn't undercount by one.
func tripCount(ind *induction) int {
	if ind.step == 0 {
		return -1
	}
	bound, cmp := ind.bound, ind.cmp
	switch cmp {
	case ir.LE:
		bound++
		cmp = ir.LT
	case ir.GE:
		bound--
		cmp = ir.GT
	case ir.LT, ir.GT:
	default:
		return -1
	}
	if cmp == ir.LT && ind.step <= 0 {
		return -1
	}
	if cmp == ir.GT && ind.step >= 0 {
		return -1
	}

	diff := bound - ind.init
	if cmp == ir.LT {
		if diff <= 0 {
			return 0
		}
		return (diff + ind.step - 1) / ind.step
	}
	if diff >= 0 {
		return 0
	}
	return (-diff - ind.step - 1) / (-ind.step)
}

// orderedBody returns the loop's real-work instructions in execution
// order, with LABEL/GOTO/IF/ALLOCA/NOP dropped: control-flow markers
// and mem2reg tombstones carry no data and would only bloat or
// misorder the replicated copies. When the loop is a single
// self-looping block, that block (minus its own terminator) is the
// whole body; otherwise the body is every other loop block, walked
// from the header's in-loop successor to the latch.
func orderedBody(loop *loopanalysis.Loop) []*ir.Instruction {
	header := loop.Header
	if len(loop.Blocks) == 1 {
		return filterBody(header.Insts[:len(header.Insts)-1])
	}
	var out []*ir.Instruction
	for _, b := range latchChain(loop) {
		out = append(out, filterBody(b.Insts)...)
	}
	return out
}

func filterBody(insts []*ir.Instruction) []*ir.Instruction {
	var out []*ir.Instruction
	for _, inst := range insts {
		switch inst.Op {
		case ir.LABEL, ir.GOTO, ir.IF, ir.ALLOCA, ir.NOP:
			continue
		}
		out = append(out, inst)
	}
	return out
}

// latchChain walks the loop's blocks other than the header, in
// execution order, starting from whichever of the header's successors
// stays in the loop.
func latchChain(loop *loopanalysis.Loop) []*ir.BasicBlock {
	header := loop.Header
	var start *ir.BasicBlock
	switch {
	case header.Jump != nil && header.Jump != header && loop.Contains(header.Jump):
		start = header.Jump
	case header.Next != nil && header.Next != header && loop.Contains(header.Next):
		start = header.Next
	}

	var order []*ir.BasicBlock
	seen := map[*ir.BasicBlock]bool{}
	for cur := start; cur != nil && cur != header && !seen[cur]; {
		seen[cur] = true
		order = append(order, cur)
		switch {
		case cur.Next != nil && loop.Contains(cur.Next):
			cur = cur.Next
		case cur.Jump != nil && loop.Contains(cur.Jump):
			cur = cur.Jump
		default:
			cur = nil
		}
	}
	return order
}

// replicate rewrites the header block into trip straight-line copies
// of body, folding every occurrence of the induction variable to its
// current-iteration literal and renaming every other temporary result
// through a fresh id per iteration so the copies can't alias. The
// merge temps other than the induction variable (loop-carried scalars
// like an accumulator) get one closing copy back onto their original
// id after the last iteration, since code after the loop still
// references them by that id. The now-empty latch/body blocks are
// dropped and the header jumps straight to the loop's exit.
func replicate(fn *ir.Function, loop *loopanalysis.Loop, ind *induction, trip int, body []*ir.Instruction, merges map[ir.Operand]bool) bool {
	header := loop.Header
	term := header.Terminator()
	if term == nil || term.Op != ir.IF {
		return false
	}

	var exit *ir.BasicBlock
	switch {
	case header.Next != nil && !loop.Contains(header.Next):
		exit = header.Next
	case header.Jump != nil && !loop.Contains(header.Jump):
		exit = header.Jump
	}
	if exit == nil {
		return false
	}

	varMap := map[int]int{}
	rename := func(op ir.Operand) ir.Operand {
		if op.Kind != ir.Temporary {
			return op
		}
		if id, ok := varMap[op.Num]; ok {
			return ir.MakeTemporary(id)
		}
		return op
	}

	var out []*ir.Instruction
	if header.LabelID() >= 0 {
		out = append(out, header.Insts[0])
	}

	currentIV := ind.init
	for iter := 0; iter < trip; iter++ {
		for _, inst := range body {
			if inst.Op == ir.ASSIGN && inst.Result == ind.iv {
				// The induction variable's back-edge copy carries no
				// further meaning once every use is a literal.
				continue
			}

			a1, a2 := inst.Arg1, inst.Arg2
			if a1 == ind.iv {
				a1 = ir.MakeConstantInt(currentIV)
			} else {
				a1 = rename(a1)
			}
			if a2 == ind.iv {
				a2 = ir.MakeConstantInt(currentIV)
			} else {
				a2 = rename(a2)
			}

			result := inst.Result
			if result.Kind == ir.Temporary {
				id := fn.AllocTemp()
				varMap[result.Num] = id
				result = ir.MakeTemporary(id)
			}
			out = append(out, ir.NewInstruction(inst.Op, a1, a2, result))
		}
		currentIV += ind.step
	}

	for t := range merges {
		if t == ind.iv {
			continue
		}
		if id, ok := varMap[t.Num]; ok {
			out = append(out, ir.NewInstruction(ir.ASSIGN, ir.MakeTemporary(id), ir.MakeEmpty(), t))
		}
	}

	out = append(out, ir.NewInstruction(ir.GOTO, ir.MakeEmpty(), ir.MakeEmpty(), ir.MakeLabel(exit.LabelID())))

	header.Insts = nil
	for _, inst := range out {
		header.Add(inst)
	}
	for b := range loop.Blocks {
		if b != header {
			dropBlock(fn, b)
		}
	}
	header.Next = nil
	header.Jump = exit
	return true
}

func dropBlock(fn *ir.Function, target *ir.BasicBlock) {
	var kept []*ir.BasicBlock
	for _, b := range fn.Blocks {
		if b != target {
			kept = append(kept, b)
		}
	}
	fn.Blocks = kept
}
