package regalloc_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lcc/internal/ast"
	"lcc/internal/cfg"
	"lcc/internal/diag"
	"lcc/internal/domtree"
	"lcc/internal/ir"
	"lcc/internal/irgen"
	"lcc/internal/mem2reg"
	"lcc/internal/regalloc"
	"lcc/internal/semantic"
)

func buildFunc(t *testing.T, src, fnName string) *ir.Function {
	t.Helper()
	unit, err := ast.ParseSource("t.c", src)
	require.NoError(t, err)
	rep := diag.New("t.c", src)
	sem := semantic.New(rep).Analyze(unit)
	require.False(t, rep.HasErrors(), "diagnostics: %v", rep.Diagnostics())

	mod := irgen.Build(unit, sem)
	for _, fn := range mod.Functions {
		cfg.Build(fn)
		if fn.Name == fnName {
			dt := domtree.Build(fn)
			mem2reg.Run(fn, dt)
			cfg.Build(fn)
			return fn
		}
	}
	t.Fatalf("function %s not found", fnName)
	return nil
}

func allTemps(fn *ir.Function) map[int]bool {
	temps := map[int]bool{}
	record := func(op ir.Operand) {
		if op.Kind == ir.Temporary {
			temps[op.AsInt()] = true
		}
	}
	for _, b := range fn.Blocks {
		for _, inst := range b.Insts {
			record(inst.Arg1)
			record(inst.Arg2)
			record(inst.Result)
		}
	}
	return temps
}

func TestRunAssignsDistinctRegistersToFewInterferingTemps(t *testing.T) {
	fn := buildFunc(t, `int main(){int a = 1; int b = 2; return a + b;}`, "main")

	alloc := regalloc.Run(fn)

	for id := range allTemps(fn) {
		assert.False(t, alloc.IsSpilled(id), "temp %d unexpectedly spilled with so few live values", id)
		assert.GreaterOrEqual(t, alloc.Reg(id), 0)
		assert.Less(t, alloc.Reg(id), regalloc.NumRegs)
	}
}

func TestRunSpillsWhenLiveRangesExceedRegisterBudget(t *testing.T) {
	// Each v is computed from the parameter, so after mem2reg it is a
	// temporary that stays live until the final sum reads it.
	fn := buildFunc(t, `int f(int n){
		int v0=n+1; int v1=n+2; int v2=n+3; int v3=n+4; int v4=n+5;
		int v5=n+6; int v6=n+7; int v7=n+8; int v8=n+9; int v9=n+10;
		int v10=n+11; int v11=n+12; int v12=n+13; int v13=n+14; int v14=n+15;
		int v15=n+16;
		return v0+v1+v2+v3+v4+v5+v6+v7+v8+v9+v10+v11+v12+v13+v14+v15;
	}
	int main(){return f(1);}`, "f")

	alloc := regalloc.Run(fn)

	spilled := false
	for id := range allTemps(fn) {
		if alloc.IsSpilled(id) {
			spilled = true
		}
	}
	assert.True(t, spilled, "16 simultaneously-live values must exceed the 14-register budget")
}

func TestUsedRegsReflectsColoring(t *testing.T) {
	fn := buildFunc(t, `int main(){int a = 1; return a;}`, "main")

	alloc := regalloc.Run(fn)
	used := alloc.UsedRegs()

	for r := range used {
		assert.GreaterOrEqual(t, r, 0)
		assert.Less(t, r, regalloc.NumRegs)
	}
}
