package ir_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lcc/internal/ir"
	"lcc/internal/symbol"
)

func TestOperandAsIntPanicsOnWrongKind(t *testing.T) {
	op := ir.MakeVariable(&symbol.Symbol{Name: "x"})
	assert.Panics(t, func() { op.AsInt() })
}

func TestOperandAsSymbolPanicsOnWrongKind(t *testing.T) {
	op := ir.MakeConstantInt(3)
	assert.Panics(t, func() { op.AsSymbol() })
}

func TestOperandIsEmpty(t *testing.T) {
	assert.True(t, ir.MakeEmpty().IsEmpty())
	assert.False(t, ir.MakeConstantInt(0).IsEmpty())
}

func TestOpcodeIsTerminator(t *testing.T) {
	assert.True(t, ir.IF.IsTerminator())
	assert.True(t, ir.GOTO.IsTerminator())
	assert.True(t, ir.RETURN.IsTerminator())
	assert.False(t, ir.ADD.IsTerminator())
}

func TestFunctionAllocTempNeverReuses(t *testing.T) {
	fn := ir.NewFunction("f")
	a := fn.AllocTemp()
	b := fn.AllocTemp()
	assert.NotEqual(t, a, b)
}

func TestFunctionReserveTempAdvancesPastID(t *testing.T) {
	fn := ir.NewFunction("f")
	fn.ReserveTemp(10)
	next := fn.AllocTemp()
	assert.Equal(t, 11, next)
}

func TestBasicBlockLabelID(t *testing.T) {
	b := &ir.BasicBlock{}
	labelInst := ir.NewInstruction(ir.LABEL, ir.MakeEmpty(), ir.MakeEmpty(), ir.MakeLabel(7))
	b.Add(labelInst)
	assert.Equal(t, 7, b.LabelID())
}

func TestBasicBlockLabelIDIsMinusOneWithoutLabel(t *testing.T) {
	b := &ir.BasicBlock{}
	b.Add(ir.NewInstruction(ir.ADD, ir.MakeConstantInt(1), ir.MakeConstantInt(2), ir.MakeTemporary(0)))
	assert.Equal(t, -1, b.LabelID())
}

func TestBasicBlockSuccessorsSkipsNils(t *testing.T) {
	a := &ir.BasicBlock{}
	b := &ir.BasicBlock{}
	a.Next = b
	assert.Equal(t, []*ir.BasicBlock{b}, a.Successors())
}

func TestFunctionEntryIsFirstBlock(t *testing.T) {
	fn := ir.NewFunction("f")
	require.Nil(t, fn.Entry())
	entry := fn.NewBlock()
	assert.Same(t, entry, fn.Entry())
}

func TestFunctionPredecessorsDeduplicatesBothEdges(t *testing.T) {
	fn := ir.NewFunction("f")
	a := fn.NewBlock()
	b := fn.NewBlock()
	a.Next = b
	a.Jump = b

	preds := fn.Predecessors(b)
	require.Len(t, preds, 1)
	assert.Same(t, a, preds[0])
}
