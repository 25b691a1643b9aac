package codegen

import (
	"fmt"
	"strings"

	"lcc/internal/ir"
)

// callerSavedRegs is the caller-saved subset of physRegs ($t0-$t5),
// always preserved around a CALL since this package has no
// across-call liveness analysis: conservative but correct, the same
// trade AsmGen.cpp makes by saving all ten of its registers on every
// call.
var callerSavedRegs = physRegs[callerSavedFrom:]

// lowerArg places one call argument into its argument register (or
// queues it for the caller's outgoing stack area past the fourth),
// immediately, the same per-ARG marshalling discipline AsmGen.cpp's
// PARAM case uses at a call site.
func lowerArg(out *strings.Builder, fr *frame, val ir.Operand) {
	idx := fr.argIndex
	fr.argIndex++
	if idx >= 4 {
		fr.pendingArgs = append(fr.pendingArgs, val)
		return
	}
	placeArgValue(out, fr, val, argRegs[idx])
}

// placeArgValue computes val directly into dest, the one case where a
// temporary already resident in its own register still needs an extra
// move (into the fixed argument register the calling convention
// requires).
func placeArgValue(out *strings.Builder, fr *frame, val ir.Operand, dest string) {
	switch val.Kind {
	case ir.Label:
		fmt.Fprintf(out, "  la %s, %s\n", dest, strLabel(val.AsInt()))
	case ir.ConstantInt:
		fmt.Fprintf(out, "  li %s, %d\n", dest, val.AsInt())
	case ir.Temporary:
		if fr.alloc.IsSpilled(val.AsInt()) {
			fmt.Fprintf(out, "  lw %s, %d($fp)\n", dest, fr.spillOffsets[val.AsInt()])
			return
		}
		if r := regForTemp(fr, val.AsInt()); r != "" && r != dest {
			fmt.Fprintf(out, "  move %s, %s\n", dest, r)
		}
	case ir.Variable:
		loadBase(out, fr, val.Sym, dest)
	default:
		fmt.Fprintf(out, "  move %s, $zero\n", dest)
	}
}

// lowerCall spills caller-saved registers across the call (no
// across-call liveness analysis backs a narrower choice), marshals any
// 5th-and-beyond argument onto the callee's incoming stack area, and
// retrieves $v0 into the result's home afterward.
func lowerCall(out *strings.Builder, fr *frame, inst *ir.Instruction) {
	saveBytes := len(callerSavedRegs) * 4
	fmt.Fprintf(out, "  addiu $sp, $sp, -%d\n", saveBytes)
	for i, r := range callerSavedRegs {
		fmt.Fprintf(out, "  sw %s, %d($sp)\n", r, i*4)
	}

	extra := fr.pendingArgs
	if len(extra) > 0 {
		bytes := len(extra) * 4
		fmt.Fprintf(out, "  addiu $sp, $sp, -%d\n", bytes)
		for i, arg := range extra {
			r := ensureInReg(out, fr, arg, "$t7", "$t7")
			fmt.Fprintf(out, "  sw %s, %d($sp)\n", r, i*4)
		}
		// printf reads its own 4th-and-beyond format argument straight
		// off this pointer, rather than through the normal frame-offset
		// convention bindIncomingParams sets up for ordinary callees.
		out.WriteString("  addiu $t6, $sp, 0\n")
	} else {
		out.WriteString("  move $t6, $zero\n")
	}

	calleeName := "func"
	if inst.Arg2.Kind == ir.Variable && inst.Arg2.Sym != nil {
		calleeName = inst.Arg2.Sym.DisplayName()
	}
	fmt.Fprintf(out, "  jal %s\n", calleeName)

	if len(extra) > 0 {
		fmt.Fprintf(out, "  addiu $sp, $sp, %d\n", len(extra)*4)
	}

	for i, r := range callerSavedRegs {
		fmt.Fprintf(out, "  lw %s, %d($sp)\n", r, i*4)
	}
	fmt.Fprintf(out, "  addiu $sp, $sp, %d\n", saveBytes)

	if inst.Result.Kind == ir.Temporary {
		rd := destReg(fr, inst.Result)
		fmt.Fprintf(out, "  move %s, $v0\n", rd)
		storeResult(out, fr, inst.Result, rd)
	}

	fr.argIndex = 0
	fr.pendingArgs = nil
}

// emitPrintfIntrinsic writes the single library routine this language
// exposes: a byte-at-a-time scanner over its %d/%c-format string that
// switches to the matching argument register (or, past the third
// argument, the caller's outgoing stack slot $t6 was left pointing at)
// each time it consumes a specifier.
func emitPrintfIntrinsic(out *strings.Builder) {
	out.WriteString(`printf:
  move $t4, $a0
  li   $t5, 0
printf_loop:
  lbu  $t0, 0($t4)
  beq  $t0, $zero, printf_end
  addiu $t4, $t4, 1
  li   $t1, '%'
  bne  $t0, $t1, printf_emit_char
  lbu  $t2, 0($t4)
  addiu $t4, $t4, 1
  li   $t1, 'd'
  beq  $t2, $t1, printf_emit_int
  move $a0, $t2
  li   $v0, 11
  syscall
  j printf_loop
printf_emit_char:
  move $a0, $t0
  li   $v0, 11
  syscall
  j printf_loop
printf_emit_int:
  beq  $t5, $zero, printf_use_a1
  li   $t1, 1
  beq  $t5, $t1, printf_use_a2
  li   $t1, 2
  beq  $t5, $t1, printf_use_a3
  addiu $t1, $t5, -3
  sll  $t1, $t1, 2
  addu $t7, $t6, $t1
  lw   $a0, 0($t7)
  j printf_print_int
printf_use_a1:
  move $a0, $a1
  j printf_print_int
printf_use_a2:
  move $a0, $a2
  j printf_print_int
printf_use_a3:
  move $a0, $a3
printf_print_int:
  addiu $t5, $t5, 1
  li   $v0, 1
  syscall
  j printf_loop
printf_end:
  move $v0, $zero
  jr   $ra

`)
}
