// Package loopanalysis finds natural loops from CFG back edges: an
// edge u -> h is a back edge when h dominates u, and the natural loop
// is the set of blocks that can reach u without passing through h.
//
// Grounded on original_source/src/optimize/LoopAnalysis.cpp.
package loopanalysis

import (
	"lcc/internal/domtree"
	"lcc/internal/ir"
)

// Loop is one natural loop: its header, its body (including the
// header), and its exit blocks (successors of body blocks that are
// themselves outside the body).
type Loop struct {
	Header *ir.BasicBlock
	Blocks map[*ir.BasicBlock]bool
	Exits  map[*ir.BasicBlock]bool
}

func (l *Loop) Contains(b *ir.BasicBlock) bool { return l.Blocks[b] }

// Find returns the flat list of natural loops in fn, given its
// dominator tree. Multiple back edges into the same header are
// reported as separate Loop values (per spec.md, which only requires a
// flat list and does not mandate de-duplication of shared headers).
func Find(fn *ir.Function, dt *domtree.Tree) []*Loop {
	var loops []*Loop
	for _, b := range fn.Blocks {
		for _, succ := range b.Successors() {
			if dt.Dominates(succ, b) {
				loop := &Loop{Header: succ, Blocks: map[*ir.BasicBlock]bool{}}
				findLoopBlocks(fn, succ, b, loop.Blocks)
				loop.Exits = exitsOf(loop)
				loops = append(loops, loop)
			}
		}
	}
	return loops
}

// findLoopBlocks does a reverse (predecessor) traversal from the back
// edge's source, within the subgraph, collecting every block that can
// reach backEdgeSrc. The header is always included.
func findLoopBlocks(fn *ir.Function, header, backEdgeSrc *ir.BasicBlock, out map[*ir.BasicBlock]bool) {
	out[header] = true
	if backEdgeSrc == header {
		return
	}
	var worklist []*ir.BasicBlock
	worklist = append(worklist, backEdgeSrc)
	for len(worklist) > 0 {
		cur := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]
		if out[cur] {
			continue
		}
		out[cur] = true
		for _, p := range fn.Predecessors(cur) {
			worklist = append(worklist, p)
		}
	}
}

func exitsOf(l *Loop) map[*ir.BasicBlock]bool {
	exits := map[*ir.BasicBlock]bool{}
	for b := range l.Blocks {
		for _, succ := range b.Successors() {
			if !l.Blocks[succ] {
				exits[succ] = true
			}
		}
	}
	return exits
}
