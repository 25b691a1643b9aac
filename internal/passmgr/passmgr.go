// Package passmgr sequences the middle-end's analyses and transforms
// over a function (and, for whole-program passes, a module), re-running
// to a fixpoint and recomputing invalidated analyses between rounds.
//
// Grounded on the teacher's phased-pipeline style of wiring independent
// passes behind one driver entry point, generalized from a fixed
// compile pipeline to a data-driven one so new passes can be added
// without touching Pipeline.Run's control flow.
package passmgr

import (
	"lcc/internal/cfg"
	"lcc/internal/cfgclean"
	"lcc/internal/consteval"
	"lcc/internal/domtree"
	"lcc/internal/inline"
	"lcc/internal/ir"
	"lcc/internal/licm"
	"lcc/internal/localopt"
	"lcc/internal/loopanalysis"
	"lcc/internal/mem2reg"
	"lcc/internal/unroll"
)

// FunctionPass is a transform that mutates a single function in place
// and reports whether it changed anything.
type FunctionPass func(fn *ir.Function) bool

// Pipeline is an ordered list of function passes run to a fixpoint:
// each round runs every pass in order, and the pipeline repeats until
// a full round makes no further progress, or maxRounds is reached.
type Pipeline struct {
	Passes    []FunctionPass
	MaxRounds int
}

// DefaultMaxRounds bounds fixpoint iteration so a pass-interaction bug
// can never hang the compiler; legitimate functions converge in a
// handful of rounds.
const DefaultMaxRounds = 50

// NewStandardPipeline builds the pass sequence SPEC_FULL.md's
// middle-end names: CFG build, then the fixpoint loop of mem2reg,
// LICM, loop unrolling, constant folding/DCE, and CFG cleanup, each
// re-deriving the dominator tree and loop set it depends on since
// earlier passes in the same round may have changed the CFG shape.
func NewStandardPipeline() *Pipeline {
	return &Pipeline{
		MaxRounds: DefaultMaxRounds,
		Passes: []FunctionPass{
			runMem2Reg,
			runLICM,
			runUnroll,
			localopt.Run,
			cfgclean.Run,
		},
	}
}

func runMem2Reg(fn *ir.Function) bool {
	dt := domtree.Build(fn)
	return mem2reg.Run(fn, dt)
}

func runLICM(fn *ir.Function) bool {
	dt := domtree.Build(fn)
	loops := loopanalysis.Find(fn, dt)
	return licm.Run(fn, dt, loops)
}

func runUnroll(fn *ir.Function) bool {
	dt := domtree.Build(fn)
	loops := loopanalysis.Find(fn, dt)
	return unroll.Run(fn, dt, loops)
}

// Run builds the CFG for fn, then iterates the pipeline's passes to a
// fixpoint (or MaxRounds, whichever comes first).
func (p *Pipeline) Run(fn *ir.Function) {
	cfg.Build(fn)

	rounds := p.MaxRounds
	if rounds <= 0 {
		rounds = DefaultMaxRounds
	}
	for round := 0; round < rounds; round++ {
		changed := false
		for _, pass := range p.Passes {
			if pass(fn) {
				changed = true
			}
		}
		if !changed {
			break
		}
	}
}

// RunInterprocedural applies the module-level passes -- inlining and
// global constant evaluation of CALL sites -- across every function in
// module, then re-runs the standard per-function pipeline on every
// function touched, since inlining and folding both introduce new
// local optimization opportunities.
func RunInterprocedural(module *ir.Module, pipeline *Pipeline) {
	for _, fn := range module.Functions {
		for inline.Run(module, fn) {
		}
	}

	interp := consteval.New(module)
	for _, fn := range module.Functions {
		foldConstCalls(fn, interp)
	}

	for _, fn := range module.Functions {
		pipeline.Run(fn)
	}
}

// foldConstCalls replaces CALL instructions whose callee and arguments
// are all statically known with an ASSIGN of the evaluated constant,
// leaving the call (and its ARG setup) in place when evaluation fails.
func foldConstCalls(fn *ir.Function, interp *consteval.Interpreter) bool {
	changed := false
	for _, b := range fn.Blocks {
		for _, inst := range b.Insts {
			if inst.Op != ir.CALL {
				continue
			}
			if inst.Arg2.Kind != ir.Variable || inst.Arg2.Sym == nil {
				continue
			}
			args, ok := constArgsOf(b, inst)
			if !ok {
				continue
			}
			v, ok := interp.Eval(inst.Arg2.Sym.Name, args)
			if !ok {
				continue
			}
			inst.Op = ir.ASSIGN
			inst.Arg1 = ir.MakeConstantInt(v)
			inst.Arg2 = ir.MakeEmpty()
			nopArgsOf(b, inst)
			changed = true
		}
	}
	return changed
}

// nopArgsOf turns the run of ARG instructions feeding call into NOPs,
// mirroring constArgsOf's backward walk. ARG has a side effect, so
// without this the dead loads would survive cfgclean/DCE, reach
// codegen, and leave fr.argIndex advanced with no CALL to reset it.
func nopArgsOf(b *ir.BasicBlock, call *ir.Instruction) {
	idx := -1
	for i, inst := range b.Insts {
		if inst == call {
			idx = i
			break
		}
	}
	for i := idx - 1; i >= 0 && b.Insts[i].Op == ir.ARG; i-- {
		b.Insts[i].Op = ir.NOP
		b.Insts[i].Arg1 = ir.MakeEmpty()
		b.Insts[i].Arg2 = ir.MakeEmpty()
		b.Insts[i].Result = ir.MakeEmpty()
	}
}

func constArgsOf(b *ir.BasicBlock, call *ir.Instruction) ([]int, bool) {
	idx := -1
	for i, inst := range b.Insts {
		if inst == call {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, false
	}
	start := idx
	for start > 0 && b.Insts[start-1].Op == ir.ARG {
		start--
	}
	var args []int
	for i := start; i < idx; i++ {
		if b.Insts[i].Arg1.Kind != ir.ConstantInt {
			return nil, false
		}
		args = append(args, b.Insts[i].Arg1.AsInt())
	}
	return args, true
}
