package licm_test

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
	"lcc/internal/licm"
	"lcc/internal/loopanalysis"
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

func TestRunHoistsInvariantComputationOutOfLoop(t *testing.T) {
	fn := buildFunc(t, `int main(int n){
		int a = 2;
		int b = 3;
		int s = 0;
		for (int i = 0; i < n; i = i + 1) {
			int inv = a + b;
			s = s + inv;
		}
		return s;
	}`, "main")

	dt := domtree.Build(fn)
	loops := loopanalysis.Find(fn, dt)
	require.NotEmpty(t, loops, "expected at least one natural loop")

	before := countAdds(loops[0])
	changed := licm.Run(fn, dt, loops)
	assert.True(t, changed)

	after := countAdds(loops[0])
	assert.Less(t, after, before, "the invariant a+b computation should have been hoisted out")
}

func countAdds(l *loopanalysis.Loop) int {
	n := 0
	for b := range l.Blocks {
		for _, inst := range b.Insts {
			if inst.Op == ir.ADD {
				n++
			}
		}
	}
	return n
}

func TestRunNoOpWithoutLoops(t *testing.T) {
	fn := buildFunc(t, `int main(){int a = 1; int b = 2; return a + b;}`, "main")
	dt := domtree.Build(fn)
	loops := loopanalysis.Find(fn, dt)
	require.Empty(t, loops)

	changed := licm.Run(fn, dt, loops)
	assert.False(t, changed)
}
