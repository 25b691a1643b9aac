package unroll_test

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
	"lcc/internal/loopanalysis"
	"lcc/internal/semantic"
	"lcc/internal/unroll"
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

func TestRunUnrollsConstantTripCountLoop(t *testing.T) {
	fn := buildFunc(t, `int main(){int s = 0; for (int i = 0; i < 4; i = i + 1) s = s + i; return s;}`, "main")
	dt := domtree.Build(fn)
	loops := loopanalysis.Find(fn, dt)
	require.NotEmpty(t, loops)

	changed := unroll.Run(fn, dt, loops)

	assert.True(t, changed)
}

func TestRunLeavesUnboundedLoopAlone(t *testing.T) {
	fn := buildFunc(t, `int main(int n){int s = 0; for (int i = 0; i < n; i = i + 1) s = s + i; return s;}`, "main")
	dt := domtree.Build(fn)
	loops := loopanalysis.Find(fn, dt)
	require.NotEmpty(t, loops)

	changed := unroll.Run(fn, dt, loops)

	assert.False(t, changed, "a loop bounded by a parameter has no statically known trip count")
}
