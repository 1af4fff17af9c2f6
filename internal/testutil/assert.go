// Package testutil provides shared test infrastructure used across this
// module's package tests: floating-point tolerance assertions and
// temp-file YAML fixture helpers. Grounded on the teacher's
// sim/internal/testutil/golden.go, adapted from LLM-metrics comparison
// to spatial-simulation comparison.
package testutil

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"
)

// AssertFloat64Equal compares two float64 values with relative
// tolerance, treating an exact 0/0 match as equal to avoid a spurious
// divide-by-zero.
func AssertFloat64Equal(t *testing.T, name string, want, got, relTol float64) {
	t.Helper()
	if want == 0 && got == 0 {
		return
	}
	diff := math.Abs(want - got)
	maxVal := math.Max(math.Abs(want), math.Abs(got))
	if diff/maxVal > relTol {
		t.Errorf("%s: got %v, want %v (diff=%v, relDiff=%v)", name, got, want, diff, diff/maxVal)
	}
}

// AssertVecEqual compares two r3.Vec values component-wise with relative
// tolerance.
func AssertVecEqual(t *testing.T, name string, want, got r3.Vec, relTol float64) {
	t.Helper()
	AssertFloat64Equal(t, name+".X", want.X, got.X, relTol)
	AssertFloat64Equal(t, name+".Y", want.Y, got.Y, relTol)
	AssertFloat64Equal(t, name+".Z", want.Z, got.Z, relTol)
}

// WriteTempYAML writes contents to a temp file named name under t's
// temp directory and returns its path, for tests that exercise
// config.Load against an in-memory fixture rather than a committed one.
func WriteTempYAML(t *testing.T, name, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("writing temp fixture %s: %v", name, err)
	}
	return path
}
