package localopt_test

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
	"lcc/internal/localopt"
	"lcc/internal/mem2reg"
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

func countOp(fn *ir.Function, op ir.Opcode) int {
	n := 0
	for _, b := range fn.Blocks {
		for _, inst := range b.Insts {
			if inst.Op == op {
				n++
			}
		}
	}
	return n
}

func TestRunFoldsConstantArithmetic(t *testing.T) {
	fn := buildFunc(t, `int main(){int x = 3; int y = 4; return x + y;}`, "main")

	changed := localopt.Run(fn)

	assert.True(t, changed)
	assert.Zero(t, countOp(fn, ir.ADD), "the additions should have folded to literals")
}

func TestRunEliminatesDeadTemporary(t *testing.T) {
	fn := buildFunc(t, `int main(){int x = 1; int unused = x + 1; return x;}`, "main")

	localopt.Run(fn)

	assert.Zero(t, countOp(fn, ir.ADD), "the dead computation feeding 'unused' should be removed")
}

func TestRunIsNoOpOnAlreadyFoldedFunction(t *testing.T) {
	fn := buildFunc(t, `int main(){return 7;}`, "main")
	localopt.Run(fn)

	changed := localopt.Run(fn)
	assert.False(t, changed)
}
