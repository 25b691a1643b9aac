package consteval_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lcc/internal/ast"
	"lcc/internal/cfg"
	"lcc/internal/consteval"
	"lcc/internal/diag"
	"lcc/internal/ir"
	"lcc/internal/irgen"
	"lcc/internal/semantic"
)

func buildModule(t *testing.T, src string) *ir.Module {
	t.Helper()
	unit, err := ast.ParseSource("t.c", src)
	require.NoError(t, err)
	rep := diag.New("t.c", src)
	sem := semantic.New(rep).Analyze(unit)
	require.False(t, rep.HasErrors(), "diagnostics: %v", rep.Diagnostics())

	mod := irgen.Build(unit, sem)
	for _, fn := range mod.Functions {
		cfg.Build(fn)
	}
	return mod
}

func TestEvalRecursiveFactorial(t *testing.T) {
	mod := buildModule(t, `
int fact(int n) {
	if (n <= 1) return 1;
	return n * fact(n - 1);
}
int main() { return fact(5); }`)

	in := consteval.New(mod)
	v, ok := in.Eval("fact", []int{5})

	require.True(t, ok)
	assert.Equal(t, 120, v)
}

func TestEvalMemoizesRepeatedCalls(t *testing.T) {
	mod := buildModule(t, `
int sq(int n) { return n * n; }
int main() { return sq(3) + sq(3); }`)

	in := consteval.New(mod)
	v1, ok1 := in.Eval("sq", []int{3})
	v2, ok2 := in.Eval("sq", []int{3})

	require.True(t, ok1)
	require.True(t, ok2)
	assert.Equal(t, 9, v1)
	assert.Equal(t, v1, v2)
}

func TestEvalFailsOnDivisionByZero(t *testing.T) {
	mod := buildModule(t, `
int bad(int n) { return 10 / n; }
int main() { return bad(0); }`)

	in := consteval.New(mod)
	_, ok := in.Eval("bad", []int{0})

	assert.False(t, ok)
}

func TestEvalFailsOnUnknownFunction(t *testing.T) {
	mod := buildModule(t, `int main() { return 0; }`)

	in := consteval.New(mod)
	_, ok := in.Eval("nonexistent", nil)

	assert.False(t, ok)
}
