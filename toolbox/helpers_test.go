package toolbox

import (
	"errors"
	"math/rand/v2"
	"testing"
)

func newTestRand() *rand.Rand {
	return rand.New(rand.NewPCG(12345, 67890))
}

func randomMatrix(r *rand.Rand, rows, cols int) *Matrix {
	m := NewMatrix(rows, cols)
	for i := range m.V {
		m.V[i] = r.Float32()*2 - 1
	}
	return m
}

// expectPanicIs fails the test unless f panics with an error wrapping target.
func expectPanicIs(t *testing.T, target error, f func()) {
	t.Helper()
	defer func() {
		t.Helper()
		r := recover()
		if r == nil {
			t.Fatalf("expected a panic wrapping %v", target)
		}
		err, ok := r.(error)
		if !ok || !errors.Is(err, target) {
			t.Fatalf("got panic %v, want one wrapping %v", r, target)
		}
	}()
	f()
}

// generateSeparableDataset returns m points in the unit cube labelled 1 when
// they lie above the plane x0 + x1 + x2 = 1.5, and 0 otherwise.
func generateSeparableDataset(m int) (x, y *Matrix) {
	r := newTestRand()

	x = NewMatrix(m, 3)
	y = NewMatrix(m, 1)
	for k := 0; k < m; k++ {
		var sum float32
		for j := 0; j < 3; j++ {
			v := r.Float32()
			x.Set(k, j, v)
			sum += v
		}
		if sum > 1.5 {
			y.Set(k, 0, 1)
		}
	}
	return x, y
}
