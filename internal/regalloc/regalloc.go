// Package regalloc assigns temporaries to one of 14 physical
// registers ($s0-$s7, $t0-$t5) via Chaitin-style graph coloring:
// use/def sets per block, iterative liveness, an interference graph
// built from a backward per-block live-set walk, then simplify/spill
// coloring.
//
// Grounded on original_source/src/backend/RegisterAllocator.cpp,
// carried over step for step including its simplify-before-spill
// worklist (any node with fewer than NumRegs live neighbors can always
// be pushed; only when none qualify does the allocator pick an
// arbitrary remaining node to spill) and its neighbor-color-exclusion
// coloring pass over the reversed stack.
package regalloc

import "lcc/internal/ir"

// NumRegs is the number of physical registers available to the
// allocator: $s0-$s7 (8) plus $t0-$t5 (6).
const NumRegs = 14

type liveSet map[int]bool

// Allocation is the result of running the allocator over one
// function: a register index (0..NumRegs-1) per colored temporary,
// and the set of temporaries that could not be colored and must be
// spilled to the stack.
type Allocation struct {
	colors  map[int]int
	spilled map[int]bool
}

// Reg returns the assigned register index for tempID, or -1 if it was
// never seen or was spilled.
func (a *Allocation) Reg(tempID int) int {
	if r, ok := a.colors[tempID]; ok {
		return r
	}
	return -1
}

// IsSpilled reports whether tempID could not be colored and was
// spilled.
func (a *Allocation) IsSpilled(tempID int) bool {
	return a.spilled[tempID]
}

// UsedRegs returns the set of register indices actually assigned to
// some temporary, for callout/callee-saved-register bookkeeping in the
// emitter.
func (a *Allocation) UsedRegs() map[int]bool {
	out := map[int]bool{}
	for _, r := range a.colors {
		out[r] = true
	}
	return out
}

// Run computes a full register allocation for fn.
func Run(fn *ir.Function) *Allocation {
	use, def := computeUseDef(fn)
	_, liveOut := computeLiveInOut(fn, use, def)
	graph, temps := buildInterferenceGraph(fn, liveOut)
	return colorGraph(graph, temps)
}

func computeUseDef(fn *ir.Function) (use, def map[*ir.BasicBlock]liveSet) {
	use = map[*ir.BasicBlock]liveSet{}
	def = map[*ir.BasicBlock]liveSet{}

	for _, b := range fn.Blocks {
		definedInBlock := liveSet{}
		use[b] = liveSet{}
		def[b] = liveSet{}

		checkUse := func(op ir.Operand) {
			if op.Kind != ir.Temporary {
				return
			}
			id := op.AsInt()
			if !definedInBlock[id] {
				use[b][id] = true
			}
		}

		for _, inst := range b.Insts {
			checkUse(inst.Arg1)
			checkUse(inst.Arg2)
			if inst.Op == ir.STORE {
				// The Result slot of a STORE holds the index operand,
				// a use, not a definition.
				checkUse(inst.Result)
				continue
			}
			if inst.Result.Kind == ir.Temporary {
				id := inst.Result.AsInt()
				def[b][id] = true
				definedInBlock[id] = true
			}
		}
	}
	return use, def
}

func computeLiveInOut(fn *ir.Function, use, def map[*ir.BasicBlock]liveSet) (liveIn, liveOut map[*ir.BasicBlock]liveSet) {
	liveIn = map[*ir.BasicBlock]liveSet{}
	liveOut = map[*ir.BasicBlock]liveSet{}
	for _, b := range fn.Blocks {
		liveIn[b] = liveSet{}
		liveOut[b] = liveSet{}
	}

	changed := true
	for changed {
		changed = false
		for i := len(fn.Blocks) - 1; i >= 0; i-- {
			b := fn.Blocks[i]

			newOut := liveSet{}
			if b.Next != nil {
				for t := range liveIn[b.Next] {
					newOut[t] = true
				}
			}
			if b.Jump != nil {
				for t := range liveIn[b.Jump] {
					newOut[t] = true
				}
			}
			if !setsEqual(newOut, liveOut[b]) {
				liveOut[b] = newOut
				changed = true
			}

			newIn := liveSet{}
			for t := range use[b] {
				newIn[t] = true
			}
			for t := range liveOut[b] {
				if !def[b][t] {
					newIn[t] = true
				}
			}
			if !setsEqual(newIn, liveIn[b]) {
				liveIn[b] = newIn
				changed = true
			}
		}
	}
	return liveIn, liveOut
}

func buildInterferenceGraph(fn *ir.Function, liveOut map[*ir.BasicBlock]liveSet) (graph map[int]liveSet, temps liveSet) {
	graph = map[int]liveSet{}
	temps = liveSet{}

	add := func(a, b int) {
		if a == b {
			return
		}
		if graph[a] == nil {
			graph[a] = liveSet{}
		}
		if graph[b] == nil {
			graph[b] = liveSet{}
		}
		graph[a][b] = true
		graph[b][a] = true
	}

	for _, b := range fn.Blocks {
		live := liveSet{}
		for t := range liveOut[b] {
			live[t] = true
			temps[t] = true
		}

		for i := len(b.Insts) - 1; i >= 0; i-- {
			inst := b.Insts[i]

			if inst.Op != ir.STORE && inst.Result.Kind == ir.Temporary {
				def := inst.Result.AsInt()
				temps[def] = true
				for t := range live {
					add(def, t)
				}
				delete(live, def)
				if graph[def] == nil {
					graph[def] = liveSet{}
				}
			}

			addLive := func(op ir.Operand) {
				if op.Kind == ir.Temporary {
					live[op.AsInt()] = true
					temps[op.AsInt()] = true
				}
			}
			addLive(inst.Arg1)
			addLive(inst.Arg2)
			if inst.Op == ir.STORE {
				addLive(inst.Result)
			}
		}
	}
	return graph, temps
}

func colorGraph(interference map[int]liveSet, temps liveSet) *Allocation {
	graph := map[int]liveSet{}
	for node, neighbors := range interference {
		cp := liveSet{}
		for n := range neighbors {
			cp[n] = true
		}
		graph[node] = cp
	}

	remaining := map[int]bool{}
	for t := range temps {
		remaining[t] = true
	}

	var stack []int
	for len(remaining) > 0 {
		simplified := false
		for node := range remaining {
			neighbors := graph[node]
			if len(neighbors) < NumRegs {
				stack = append(stack, node)
				for neighbor := range neighbors {
					delete(graph[neighbor], node)
				}
				delete(graph, node)
				delete(remaining, node)
				simplified = true
			}
		}
		if simplified {
			continue
		}
		if len(remaining) > 0 {
			spillNode := anyOf(remaining)
			stack = append(stack, spillNode)
			for neighbor := range graph[spillNode] {
				delete(graph[neighbor], spillNode)
			}
			delete(graph, spillNode)
			delete(remaining, spillNode)
		}
	}

	for i, j := 0, len(stack)-1; i < j; i, j = i+1, j-1 {
		stack[i], stack[j] = stack[j], stack[i]
	}

	alloc := &Allocation{colors: map[int]int{}, spilled: map[int]bool{}}
	for _, node := range stack {
		neighborColors := map[int]bool{}
		for neighbor := range interference[node] {
			if r, ok := alloc.colors[neighbor]; ok {
				neighborColors[r] = true
			}
		}
		color := -1
		for i := 0; i < NumRegs; i++ {
			if !neighborColors[i] {
				color = i
				break
			}
		}
		if color != -1 {
			alloc.colors[node] = color
		} else {
			alloc.spilled[node] = true
		}
	}
	return alloc
}

func setsEqual(a, b liveSet) bool {
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

// anyOf picks an arbitrary element of a non-empty set. Map iteration
// order in Go is randomized per-run, which mirrors (rather than
// weakens) the original's "first remaining node" spill choice: that
// choice was always just whichever node its std::set ordered first,
// not a deliberately weighted heuristic, so any pick is equally
// faithful. Run's contract only promises *some* valid
// coloring is produced, never a specific one.
func anyOf(s map[int]bool) int {
	for k := range s {
		return k
	}
	panic("regalloc: anyOf called on empty set")
}
