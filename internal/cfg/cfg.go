// Package cfg partitions a Function's flat pre-CFG instruction stream
// into basic blocks and wires fall-through/jump edges between them.
//
// Grounded on original_source/src/codegen/ (Function/BasicBlock) and the
// teacher's internal/ir.Program.CFG construction, generalized from the
// EVM terminator model (Branch/Jump/Return) to this IR's LABEL/GOTO/IF/
// RETURN markers.
package cfg

import (
	"lcc/internal/ir"
)

// Build replaces fn.Blocks (assumed to hold a single block with the
// flat instruction stream produced by the IR builder) with the
// partitioned, edge-wired block list. It is also safe to call again on
// an already-built Function (e.g. after inlining splices fresh flat
// instructions into a block) since it starts by re-flattening.
func Build(fn *ir.Function) {
	flat := flatten(fn)
	fn.Blocks = nil

	blocks := partition(fn, flat)
	wireEdges(fn, blocks)
}

// flatten concatenates every instruction currently owned by fn's
// blocks, in block order, into one slice. Called both for the initial
// pre-CFG build (a single block holding everything) and for a rebuild
// after mutation (inlining) that leaves multiple blocks with flat
// content in each.
func flatten(fn *ir.Function) []*ir.Instruction {
	var out []*ir.Instruction
	for _, b := range fn.Blocks {
		out = append(out, b.Insts...)
	}
	return out
}

// partition starts a new block at the very beginning, at every LABEL,
// and immediately after every GOTO/IF/RETURN. The LABEL instruction
// that opens a block stays its first instruction.
func partition(fn *ir.Function, flat []*ir.Instruction) []*ir.BasicBlock {
	var blocks []*ir.BasicBlock
	var cur *ir.BasicBlock

	startBlock := func() *ir.BasicBlock {
		b := fn.NewBlock()
		blocks = append(blocks, b)
		return b
	}

	cur = startBlock()
	prevWasTerminator := false

	for _, inst := range flat {
		needNew := prevWasTerminator
		if inst.Op == ir.LABEL && len(cur.Insts) > 0 {
			needNew = true
		}
		if needNew {
			cur = startBlock()
		}
		cur.Add(inst)
		prevWasTerminator = inst.Op.IsTerminator()
	}
	return blocks
}

// wireEdges is the second pass: resolve each block's terminator into
// Next/Jump edges against the partitioned block list.
func wireEdges(fn *ir.Function, blocks []*ir.BasicBlock) {
	labelBlock := func(id int) *ir.BasicBlock {
		for _, b := range blocks {
			if b.LabelID() == id {
				return b
			}
		}
		panic(ir.Fault{Msg: "cfg: unresolved label in GOTO/IF"})
	}

	for idx, b := range blocks {
		var following *ir.BasicBlock
		if idx+1 < len(blocks) {
			following = blocks[idx+1]
		}

		term := b.Terminator()
		if term == nil {
			b.Next = following
			continue
		}

		switch term.Op {
		case GOTOOp:
			b.Jump = labelBlock(term.Result.AsInt())
			b.Next = nil
		case IFOp:
			b.Jump = labelBlock(term.Result.AsInt())
			b.Next = following
		case RETURNOp:
			b.Next = nil
			b.Jump = nil
		default:
			b.Next = following
		}
	}
}

// Local aliases kept for readability of the switch above; avoids
// stuttering ir.GOTO / ir.IF / ir.RETURN three times each.
const (
	GOTOOp   = ir.GOTO
	IFOp     = ir.IF
	RETURNOp = ir.RETURN
)
