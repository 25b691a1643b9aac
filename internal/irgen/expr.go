package irgen

import (
	"lcc/internal/ast"
	"lcc/internal/ir"
	"lcc/internal/symbol"
)

// lowerExpr lowers the top of the precedence ladder, logical-or.
func (b *Builder) lowerExpr(e *ast.Expr) ir.Operand {
	v := b.lowerAnd(e.Left)
	for _, t := range e.Rest {
		r := b.lowerAnd(t.Right)
		dst := b.newTemp()
		b.emit(&ir.Instruction{Op: ir.OR, Arg1: v, Arg2: r, Result: dst})
		v = dst
	}
	return v
}

func (b *Builder) lowerAnd(e *ast.AndExpr) ir.Operand {
	v := b.lowerEq(e.Left)
	for _, t := range e.Rest {
		r := b.lowerEq(t.Right)
		dst := b.newTemp()
		b.emit(&ir.Instruction{Op: ir.AND, Arg1: v, Arg2: r, Result: dst})
		v = dst
	}
	return v
}

func (b *Builder) lowerEq(e *ast.EqExpr) ir.Operand {
	v := b.lowerRel(e.Left)
	for _, t := range e.Rest {
		r := b.lowerRel(t.Right)
		op := ir.EQ
		if t.Op == "!=" {
			op = ir.NEQ
		}
		dst := b.newTemp()
		b.emit(&ir.Instruction{Op: op, Arg1: v, Arg2: r, Result: dst})
		v = dst
	}
	return v
}

func (b *Builder) lowerRel(e *ast.RelExpr) ir.Operand {
	v := b.lowerAdd(e.Left)
	for _, t := range e.Rest {
		r := b.lowerAdd(t.Right)
		var op ir.Opcode
		switch t.Op {
		case "<":
			op = ir.LT
		case "<=":
			op = ir.LE
		case ">":
			op = ir.GT
		case ">=":
			op = ir.GE
		}
		dst := b.newTemp()
		b.emit(&ir.Instruction{Op: op, Arg1: v, Arg2: r, Result: dst})
		v = dst
	}
	return v
}

func (b *Builder) lowerAdd(e *ast.AddExpr) ir.Operand {
	v := b.lowerMul(e.Left)
	for _, t := range e.Rest {
		r := b.lowerMul(t.Right)
		op := ir.ADD
		if t.Op == "-" {
			op = ir.SUB
		}
		dst := b.newTemp()
		b.emit(&ir.Instruction{Op: op, Arg1: v, Arg2: r, Result: dst})
		v = dst
	}
	return v
}

func (b *Builder) lowerMul(e *ast.MulExpr) ir.Operand {
	v := b.lowerUnary(e.Left)
	for _, t := range e.Rest {
		r := b.lowerUnary(t.Right)
		var op ir.Opcode
		switch t.Op {
		case "*":
			op = ir.MUL
		case "/":
			op = ir.DIV
		case "%":
			op = ir.MOD
		}
		dst := b.newTemp()
		b.emit(&ir.Instruction{Op: op, Arg1: v, Arg2: r, Result: dst})
		v = dst
	}
	return v
}

func (b *Builder) lowerUnary(e *ast.UnaryExpr) ir.Operand {
	switch {
	case e.Inner != nil:
		v := b.lowerUnary(e.Inner)
		switch e.Op {
		case "-":
			dst := b.newTemp()
			b.emit(&ir.Instruction{Op: ir.NEG, Arg1: v, Result: dst})
			return dst
		case "!":
			dst := b.newTemp()
			b.emit(&ir.Instruction{Op: ir.NOT, Arg1: v, Result: dst})
			return dst
		default: // unary "+"
			return v
		}
	case e.Paren != nil:
		return b.lowerExpr(e.Paren)
	case e.Call != nil:
		return b.lowerCall(e.Call)
	case e.LVal != nil:
		return b.lowerLVal(e.LVal)
	case e.Number != nil:
		return ir.MakeConstantInt(parseIntLiteral(*e.Number))
	}
	return ir.MakeConstantInt(0)
}

// lowerLVal reads the value an lvalue names. A const scalar substitutes
// its folded value directly -- it never has storage. A global scalar is
// memory-resident and needs a LOAD; a local or parameter scalar is a
// raw Variable operand read in place, since mem2reg later promotes it
// to SSA form. Any array element, regardless of storage class, goes
// through LOAD with the index operand.
func (b *Builder) lowerLVal(lv *ast.LVal) ir.Operand {
	sym := b.scope.lookup(lv.Name)
	if sym == nil {
		return ir.MakeConstantInt(0)
	}

	if len(lv.Index) > 0 {
		idx := b.lowerExpr(lv.Index[0])
		dst := b.newTemp()
		b.emit(&ir.Instruction{Op: ir.LOAD, Arg1: ir.MakeVariable(sym), Arg2: idx, Result: dst})
		return dst
	}

	if sym.Type.Kind == symbol.Array {
		// Bare array name: passed by reference, never loaded.
		return ir.MakeVariable(sym)
	}

	if sym.IsConst {
		v := 0
		if len(sym.ConstValues) > 0 {
			v = sym.ConstValues[0]
		}
		return ir.MakeConstantInt(v)
	}

	if sym.IsGlobal {
		dst := b.newTemp()
		b.emit(&ir.Instruction{Op: ir.LOAD, Arg1: ir.MakeVariable(sym), Result: dst})
		return dst
	}

	return ir.MakeVariable(sym)
}

// lowerCall lowers a call's arguments through ARG instructions
// immediately followed by CALL, the contiguous-ARGs-before-CALL
// convention internal/consteval and internal/inline already depend on.
// A bare array-name argument passes its Variable operand directly,
// matching lowerLVal's by-reference treatment of arrays.
func (b *Builder) lowerCall(call *ast.CallExpr) ir.Operand {
	info := b.sem.Functions[call.Name]
	if info == nil {
		// Undefined function: semantic analysis already reported this;
		// codegen is never reached for a unit with source errors.
		return ir.MakeConstantInt(0)
	}

	// Lower every argument before emitting any ARG, so a call nested in
	// a later argument cannot land between this call's ARGs.
	var vals []ir.Operand
	for _, arg := range call.Args {
		vals = append(vals, b.lowerExpr(arg))
	}
	for _, v := range vals {
		b.emit(&ir.Instruction{Op: ir.ARG, Arg1: v})
	}

	dst := ir.MakeEmpty()
	if info.Sym.Type.Return != nil {
		dst = b.newTemp()
	}
	b.emit(&ir.Instruction{Op: ir.CALL, Arg1: ir.MakeConstantInt(len(call.Args)), Arg2: ir.MakeVariable(info.Sym), Result: dst})
	return dst
}
