package cfgclean_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lcc/internal/ast"
	"lcc/internal/cfg"
	"lcc/internal/cfgclean"
	"lcc/internal/diag"
	"lcc/internal/ir"
	"lcc/internal/irgen"
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
			return fn
		}
	}
	t.Fatalf("function %s not found", fnName)
	return nil
}

func TestRunRemovesUnreachableBlockAfterUnconditionalReturn(t *testing.T) {
	fn := buildFunc(t, `int main(){
		return 1;
		return 2;
	}`, "main")
	before := len(fn.Blocks)

	changed := cfgclean.Run(fn)

	assert.True(t, changed)
	assert.Less(t, len(fn.Blocks), before)
}

func TestRunMergesLinearChain(t *testing.T) {
	fn := buildFunc(t, `int main(){int x = 1; int y = 2; return x + y;}`, "main")
	require.Len(t, fn.Blocks, 1)

	// Split the single block into a two-block fall-through chain.
	entry := fn.Blocks[0]
	last := entry.Insts[len(entry.Insts)-1]
	entry.Insts = entry.Insts[:len(entry.Insts)-1]
	tail := fn.NewBlock()
	tail.Add(last)
	entry.Next = tail
	require.Len(t, fn.Blocks, 2)

	cfgclean.Run(fn)

	assert.Len(t, fn.Blocks, 1, "a straight-line function should merge to a single block")
}

func TestRunRemovesNopInstructions(t *testing.T) {
	fn := buildFunc(t, `int main(){return 0;}`, "main")
	fn.Blocks[0].Insts = append(fn.Blocks[0].Insts, &ir.Instruction{Op: ir.NOP})

	cfgclean.Run(fn)

	for _, b := range fn.Blocks {
		for _, inst := range b.Insts {
			assert.NotEqual(t, ir.NOP, inst.Op)
		}
	}
}

func TestRunIsNoOpOnAlreadyCleanFunction(t *testing.T) {
	fn := buildFunc(t, `int main(){return 0;}`, "main")
	cfgclean.Run(fn)

	changed := cfgclean.Run(fn)
	assert.False(t, changed)
}
