// Package codegen lowers a fully-optimized, register-allocated
// ir.Module into MIPS assembly text.
//
// Grounded on original_source/src/backend/AsmGen.cpp, carried over
// instruction-by-instruction (the data-section constant folding, the
// $fp-relative frame layout, the ensureInReg scratch-register
// discipline, the save-all-temporaries-around-a-call convention) but
// adapted to this module's richer 14-register allocation
// ($s0-$s7, $t0-$t5 from internal/regalloc) instead of the original's
// ten interchangeable $t-registers: callee-saved $s registers are
// preserved in the prologue/epilogue instead of around every call.
package codegen

import (
	"fmt"
	"sort"
	"strings"

	"lcc/internal/ir"
	"lcc/internal/regalloc"
	"lcc/internal/symbol"
)

// physRegs is the name for each of regalloc's 14 color indices, in
// index order: $s0-$s7 (callee-saved) then $t0-$t5 (caller-saved).
var physRegs = []string{
	"$s0", "$s1", "$s2", "$s3", "$s4", "$s5", "$s6", "$s7",
	"$t0", "$t1", "$t2", "$t3", "$t4", "$t5",
}

// callerSavedFrom is the first index into physRegs that is
// caller-saved ($t0); registers before it ($s0-$s7) are callee-saved.
const callerSavedFrom = 8

// argRegs is the MIPS argument-register convention: the first four
// integer/pointer arguments go in registers, the rest spill to the
// caller's outgoing stack area.
var argRegs = []string{"$a0", "$a1", "$a2", "$a3"}

// slot is one local's $fp-relative frame location, in words.
type slot struct {
	offset int
	words  int
}

// frame holds the per-function emission state that lowerInstruction
// needs: the register allocation, spill/local offsets, and the
// bookkeeping for the current call's outgoing arguments.
type frame struct {
	fn    *ir.Function
	alloc *regalloc.Allocation

	locals       map[*symbol.Symbol]slot
	spillOffsets map[int]int
	frameSize    int

	usedSRegs []int // sorted, for deterministic save/restore order

	epilogue string
	labelPfx string

	pendingArgs []ir.Operand // 5th+ call argument, queued by ARG
	argIndex    int          // next argument register/stack slot index
}

// Generate lowers mod into a complete MIPS assembly source text.
func Generate(mod *ir.Module) string {
	var out strings.Builder
	emitDataSection(&out, mod)
	emitTextSection(&out, mod)
	return out.String()
}

func emitDataSection(out *strings.Builder, mod *ir.Module) {
	out.WriteString(".data\n")

	// StringLiterals is keyed by label id, not name, so string labels
	// get their own namespace distinct from $-prefixed symbol names.
	ids := make([]int, 0, len(mod.StringLiterals))
	for id := range mod.StringLiterals {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		raw := mod.StringLiterals[id]
		fmt.Fprintf(out, "%s: .asciiz %s\n", strLabel(id), quoteLiteral(raw))
	}

	for _, g := range collectGlobalWords(mod.Globals) {
		fmt.Fprintf(out, "%s: .word ", g.sym.DisplayName())
		for i, v := range g.words {
			if i > 0 {
				out.WriteString(",")
			}
			fmt.Fprintf(out, "%d", v)
		}
		out.WriteString("\n")
	}
	out.WriteString("\n")
}

// strLabel names a string-literal label distinctly from any user
// symbol, since both share the .data segment.
func strLabel(id int) string {
	return fmt.Sprintf("__str%d", id)
}

// quoteLiteral passes the format string through unchanged: the parser
// already captured it including its surrounding quotes.
func quoteLiteral(raw string) string {
	if strings.HasPrefix(raw, "\"") && strings.HasSuffix(raw, "\"") {
		return raw
	}
	return "\"" + raw + "\""
}

type globalWords struct {
	sym   *symbol.Symbol
	words []int
}

// collectGlobalWords replays the flat ALLOCA/ASSIGN/STORE stream
// irgen.buildGlobals produced into a per-symbol initial-value array,
// the same two-pass fold AsmGen.cpp's emitDataSection performs.
func collectGlobalWords(insts []*ir.Instruction) []globalWords {
	order := []*symbol.Symbol{}
	sizes := map[*symbol.Symbol]int{}
	values := map[*symbol.Symbol][]int{}

	ensure := func(sym *symbol.Symbol, size int) {
		if _, ok := sizes[sym]; !ok {
			order = append(order, sym)
			sizes[sym] = size
			values[sym] = make([]int, size)
		}
	}

	for _, inst := range insts {
		switch inst.Op {
		case ir.ALLOCA:
			if inst.Arg1.Kind == ir.Variable {
				sz := symbolWords(inst.Arg1.Sym)
				ensure(inst.Arg1.Sym, sz)
			}
		case ir.ASSIGN:
			if inst.Result.Kind == ir.Variable && inst.Arg1.Kind == ir.ConstantInt {
				sym := inst.Result.Sym
				ensure(sym, symbolWords(sym))
				values[sym][0] = inst.Arg1.AsInt()
			}
		case ir.STORE:
			if inst.Arg2.Kind == ir.Variable && inst.Result.Kind == ir.ConstantInt && inst.Arg1.Kind == ir.ConstantInt {
				sym := inst.Arg2.Sym
				ensure(sym, symbolWords(sym))
				idx := inst.Result.AsInt()
				if idx >= 0 && idx < len(values[sym]) {
					values[sym][idx] = inst.Arg1.AsInt()
				}
			}
		}
	}

	out := make([]globalWords, 0, len(order))
	for _, sym := range order {
		out = append(out, globalWords{sym: sym, words: values[sym]})
	}
	return out
}

func symbolWords(sym *symbol.Symbol) int {
	if sym.Type != nil && sym.Type.Kind == symbol.Array {
		if sym.Type.Length > 0 {
			return sym.Type.Length
		}
		return 1
	}
	return 1
}

func emitTextSection(out *strings.Builder, mod *ir.Module) {
	out.WriteString(".text\n")
	for _, fn := range mod.Functions {
		fmt.Fprintf(out, ".globl %s\n", fn.Name)
	}

	var main *ir.Function
	for _, fn := range mod.Functions {
		if fn.Name == "main" {
			main = fn
			break
		}
	}
	if main != nil {
		emitFunction(out, main)
	}
	for _, fn := range mod.Functions {
		if fn == main {
			continue
		}
		emitFunction(out, fn)
	}

	emitPrintfIntrinsic(out)
}

// emitFunction lowers one function's body, wrapping it in a
// standard save-$ra/$fp frame.
func emitFunction(out *strings.Builder, fn *ir.Function) {
	alloc := regalloc.Run(fn)
	fr := buildFrame(fn, alloc)

	fmt.Fprintf(out, "%s:\n", fn.Name)
	fmt.Fprintf(out, "  addiu $sp, $sp, -%d\n", fr.frameSize)
	out.WriteString("  sw $ra, 0($sp)\n")
	out.WriteString("  sw $fp, 4($sp)\n")
	out.WriteString("  move $fp, $sp\n")
	for i, r := range fr.usedSRegs {
		fmt.Fprintf(out, "  sw %s, %d($fp)\n", physRegs[r], 8+i*4)
	}

	bindIncomingParams(out, fn, fr)

	for _, blk := range fn.Blocks {
		for _, inst := range blk.Insts {
			lowerInstruction(out, fr, inst)
		}
	}

	fmt.Fprintf(out, "%s:\n", fr.epilogue)
	for i, r := range fr.usedSRegs {
		fmt.Fprintf(out, "  lw %s, %d($fp)\n", physRegs[r], 8+i*4)
	}
	out.WriteString("  lw $ra, 0($fp)\n")
	out.WriteString("  lw $fp, 4($fp)\n")
	fmt.Fprintf(out, "  addiu $sp, $sp, %d\n", fr.frameSize)
	if fn.Name == "main" {
		out.WriteString("  li $v0, 10\n")
		out.WriteString("  syscall\n")
	} else {
		out.WriteString("  jr $ra\n")
	}
	out.WriteString("\n")
}

// buildFrame lays out every PARAM-bound and ALLOCA'd Variable the
// function touches into $fp-relative stack slots, the same scan
// AsmGen.cpp's analyzeFunctionLocals performs, then appends a slot per
// spilled temporary.
func buildFrame(fn *ir.Function, alloc *regalloc.Allocation) *frame {
	fr := &frame{
		fn:           fn,
		alloc:        alloc,
		locals:       map[*symbol.Symbol]slot{},
		spillOffsets: map[int]int{},
		epilogue:     fn.Name + "_end",
		labelPfx:     fn.Name,
	}

	for r := range alloc.UsedRegs() {
		if r >= callerSavedFrom {
			continue // caller-saved, nothing to preserve across calls here
		}
		fr.usedSRegs = append(fr.usedSRegs, r)
	}
	sort.Ints(fr.usedSRegs)

	next := 8 + len(fr.usedSRegs)*4

	for _, blk := range fn.Blocks {
		for _, inst := range blk.Insts {
			switch inst.Op {
			case ir.PARAM:
				if inst.Arg1.Kind == ir.ConstantInt && inst.Result.Kind == ir.Variable {
					sym := inst.Result.Sym
					if _, ok := fr.locals[sym]; !ok {
						fr.locals[sym] = slot{offset: next, words: symbolWords(sym)}
						next += 4
					}
				}
			case ir.ALLOCA:
				if inst.Arg1.Kind == ir.Variable {
					sym := inst.Arg1.Sym
					if _, ok := fr.locals[sym]; !ok {
						w := symbolWords(sym)
						fr.locals[sym] = slot{offset: next, words: w}
						next += w * 4
					}
				}
			}
		}
	}

	spilled := collectSpillCandidates(fn, alloc)
	ids := make([]int, 0, len(spilled))
	for id := range spilled {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		fr.spillOffsets[id] = next
		next += 4
	}

	if next < 8 {
		next = 8
	}
	if rem := next % 8; rem != 0 {
		next += 8 - rem
	}
	fr.frameSize = next
	return fr
}

// collectSpillCandidates walks every temporary the function defines
// and keeps the ones the allocator could not color.
func collectSpillCandidates(fn *ir.Function, alloc *regalloc.Allocation) map[int]bool {
	out := map[int]bool{}
	note := func(op ir.Operand) {
		if op.Kind == ir.Temporary && alloc.IsSpilled(op.AsInt()) {
			out[op.AsInt()] = true
		}
	}
	for _, blk := range fn.Blocks {
		for _, inst := range blk.Insts {
			note(inst.Arg1)
			note(inst.Arg2)
			note(inst.Result)
			for _, pa := range inst.PhiArgs {
				note(pa.Value)
			}
		}
	}
	return out
}

// bindIncomingParams copies each formal parameter out of its argument
// register (or the caller's outgoing stack area, past the fourth) into
// its frame slot, mirroring AsmGen.cpp's prologue parameter spill.
func bindIncomingParams(out *strings.Builder, fn *ir.Function, fr *frame) {
	if len(fn.Blocks) == 0 {
		return
	}
	for _, inst := range fn.Blocks[0].Insts {
		if inst.Op != ir.PARAM || inst.Arg1.Kind != ir.ConstantInt || inst.Result.Kind != ir.Variable {
			continue
		}
		idx := inst.Arg1.AsInt()
		sl, ok := fr.locals[inst.Result.Sym]
		if !ok {
			continue
		}
		if idx < 4 {
			fmt.Fprintf(out, "  sw %s, %d($fp)\n", argRegs[idx], sl.offset)
		} else {
			callerOff := fr.frameSize + (idx-4)*4
			fmt.Fprintf(out, "  lw $t6, %d($fp)\n", callerOff)
			fmt.Fprintf(out, "  sw $t6, %d($fp)\n", sl.offset)
		}
	}
}
