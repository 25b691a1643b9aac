package semantic_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lcc/internal/ast"
	"lcc/internal/diag"
	"lcc/internal/semantic"
)

func analyze(t *testing.T, src string) (*semantic.Result, *diag.Reporter) {
	t.Helper()
	unit, err := ast.ParseSource("t.c", src)
	require.NoError(t, err)
	rep := diag.New("t.c", src)
	return semantic.New(rep).Analyze(unit), rep
}

func TestUndefinedNameReported(t *testing.T) {
	_, rep := analyze(t, `int main(){return missing;}`)
	require.True(t, rep.HasErrors())
	assert.Equal(t, diag.UndefinedName, rep.Diagnostics()[0].Code)
}

func TestRedefinedNameReported(t *testing.T) {
	_, rep := analyze(t, `int main(){int x; int x; return 0;}`)
	require.True(t, rep.HasErrors())
	assert.Equal(t, diag.RedefinedName, rep.Diagnostics()[0].Code)
}

func TestConstAssignmentReported(t *testing.T) {
	_, rep := analyze(t, `const int k = 1; int main(){k = 2; return k;}`)
	require.True(t, rep.HasErrors())
	found := false
	for _, d := range rep.Diagnostics() {
		if d.Code == diag.ConstAssignment {
			found = true
		}
	}
	assert.True(t, found)
}

func TestArgCountMismatchReported(t *testing.T) {
	_, rep := analyze(t, `int f(int a){return a;} int main(){return f(1,2);}`)
	require.True(t, rep.HasErrors())
	assert.Equal(t, diag.ArgCountMismatch, rep.Diagnostics()[0].Code)
}

func TestLoopControlOutsideLoopReported(t *testing.T) {
	_, rep := analyze(t, `int main(){break; return 0;}`)
	require.True(t, rep.HasErrors())
	assert.Equal(t, diag.LoopControlMisuse, rep.Diagnostics()[0].Code)
}

func TestWellFormedProgramHasNoDiagnostics(t *testing.T) {
	_, rep := analyze(t, `
int a[3];
int sum(int n) {
	int i;
	int total = 0;
	for (i = 0; i < n; i = i + 1) total = total + a[i];
	return total;
}
int main() {
	a[0] = 1;
	return sum(1);
}`)
	assert.False(t, rep.HasErrors(), "diagnostics: %v", rep.Diagnostics())
}

func TestGlobalConstArrayFoldsInitializer(t *testing.T) {
	sem, rep := analyze(t, `const int xs[3] = {1, 2, 3}; int main(){return xs[0];}`)
	require.False(t, rep.HasErrors())
	for _, g := range sem.Globals {
		if g.Name == "xs" {
			assert.Equal(t, []int{1, 2, 3}, g.ConstValues)
			return
		}
	}
	t.Fatal("global xs not found")
}
