package diag_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lcc/internal/diag"
)

func TestWireFormatSortsByLineThenCode(t *testing.T) {
	r := diag.New("f.c", "")
	r.Report(5, diag.UndefinedName, "")
	r.Report(2, diag.RedefinedName, "")
	r.Report(2, diag.ArgCountMismatch, "")

	want := "2 b\n2 d\n5 c\n"
	assert.Equal(t, want, r.WireFormat())
}

func TestDiagnosticsDeduplicatesExactRepeats(t *testing.T) {
	r := diag.New("f.c", "")
	r.Report(3, diag.UndefinedName, "first mention")
	r.Report(3, diag.UndefinedName, "second mention")

	diags := r.Diagnostics()
	require.Len(t, diags, 1)
	assert.Equal(t, 3, diags[0].Line)
}

func TestHasErrorsFalseOnFreshReporter(t *testing.T) {
	r := diag.New("f.c", "int main(){}")
	assert.False(t, r.HasErrors())
	assert.Empty(t, r.WireFormat())
}

func TestDescribeUnknownCodeFallsBack(t *testing.T) {
	assert.Equal(t, "unknown error", diag.Describe(diag.Code('z')))
	assert.NotEqual(t, "unknown error", diag.Describe(diag.UndefinedName))
}
