// Package domtree computes dominator sets, immediate dominators and
// the dominator tree's children relation for a Function's CFG, by
// classical iterative data-flow.
//
// Grounded on original_source/src/optimize/DominatorTree.cpp, carried
// over algorithm-for-algorithm (same predecessor-by-scan discovery, same
// tie-break-by-largest-dominator-set immediate-dominator rule).
package domtree

import "lcc/internal/ir"

// Tree holds the three published maps: Dom, IDom and Children (the
// inverse of IDom).
type Tree struct {
	Dom      map[*ir.BasicBlock]map[*ir.BasicBlock]bool
	IDom     map[*ir.BasicBlock]*ir.BasicBlock
	Children map[*ir.BasicBlock][]*ir.BasicBlock
}

// Build runs the fixpoint dominator computation over fn's current CFG.
func Build(fn *ir.Function) *Tree {
	t := &Tree{
		Dom:      make(map[*ir.BasicBlock]map[*ir.BasicBlock]bool),
		IDom:     make(map[*ir.BasicBlock]*ir.BasicBlock),
		Children: make(map[*ir.BasicBlock][]*ir.BasicBlock),
	}
	blocks := fn.Blocks
	if len(blocks) == 0 {
		return t
	}
	entry := blocks[0]

	t.Dom[entry] = map[*ir.BasicBlock]bool{entry: true}
	for _, b := range blocks {
		if b == entry {
			continue
		}
		all := make(map[*ir.BasicBlock]bool, len(blocks))
		for _, o := range blocks {
			all[o] = true
		}
		t.Dom[b] = all
	}

	changed := true
	for changed {
		changed = false
		for _, b := range blocks {
			if b == entry {
				continue
			}
			preds := fn.Predecessors(b)
			if len(preds) == 0 {
				if len(t.Dom[b]) != 0 {
					t.Dom[b] = map[*ir.BasicBlock]bool{}
					changed = true
				}
				continue
			}

			var newDom map[*ir.BasicBlock]bool
			first := true
			for _, p := range preds {
				if len(t.Dom[p]) == 0 {
					continue
				}
				if first {
					newDom = copySet(t.Dom[p])
					first = false
					continue
				}
				newDom = intersect(newDom, t.Dom[p])
			}
			if first {
				if len(t.Dom[b]) != 0 {
					t.Dom[b] = map[*ir.BasicBlock]bool{}
					changed = true
				}
				continue
			}
			newDom[b] = true

			if !setsEqual(newDom, t.Dom[b]) {
				t.Dom[b] = newDom
				changed = true
			}
		}
	}

	for _, b := range blocks {
		if b == entry {
			t.IDom[b] = nil
			continue
		}
		var best *ir.BasicBlock
		maxDoms := -1
		// Deterministic tie-break: iterate blocks in their stable
		// (creation) order rather than map iteration order.
		for _, cand := range blocks {
			if cand == b || !t.Dom[b][cand] {
				continue
			}
			if len(t.Dom[cand]) > maxDoms {
				maxDoms = len(t.Dom[cand])
				best = cand
			}
		}
		t.IDom[b] = best
		if best != nil {
			t.Children[best] = append(t.Children[best], b)
		}
	}

	return t
}

// Dominates reports whether a dominates b (a ∈ Dom(b)).
func (t *Tree) Dominates(a, b *ir.BasicBlock) bool {
	return t.Dom[b][a]
}

// ImmediateDominator returns b's immediate dominator, or nil for the
// entry block or an unreachable block.
func (t *Tree) ImmediateDominator(b *ir.BasicBlock) *ir.BasicBlock {
	return t.IDom[b]
}

// DominatedBlocks returns b's immediate children in the dominator tree.
func (t *Tree) DominatedBlocks(b *ir.BasicBlock) []*ir.BasicBlock {
	return t.Children[b]
}

func copySet(s map[*ir.BasicBlock]bool) map[*ir.BasicBlock]bool {
	out := make(map[*ir.BasicBlock]bool, len(s))
	for k := range s {
		out[k] = true
	}
	return out
}

func intersect(a, b map[*ir.BasicBlock]bool) map[*ir.BasicBlock]bool {
	out := make(map[*ir.BasicBlock]bool)
	for k := range a {
		if b[k] {
			out[k] = true
		}
	}
	return out
}

func setsEqual(a, b map[*ir.BasicBlock]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if !b[k] {
			return false
		}
	}
	return true
}
