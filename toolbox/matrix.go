package toolbox

import (
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
	"gonum.org/v1/gonum/mat"
)

// Matrix is a dense row-major float32 matrix.  len(V) == Rows*Cols.
//
// Operations that combine two matrices check their shapes and panic with an
// error wrapping ErrDimensionMismatch; a mismatch there is a programming
// error.  Every operation that produces a matrix allocates fresh storage.
type Matrix struct {
	Rows, Cols int
	V          []float32
}

func NewMatrix(rows, cols int) *Matrix {
	if rows <= 0 || cols <= 0 {
		panic(fmt.Sprintf("invalid shape: %dx%d", rows, cols))
	}
	return &Matrix{
		Rows: rows,
		Cols: cols,
		V:    make([]float32, rows*cols),
	}
}

// MatrixFromRows copies a slice of equal-length rows into a new Matrix.
func MatrixFromRows(rows [][]float32) *Matrix {
	if len(rows) == 0 {
		panic("MatrixFromRows() needs at least one row")
	}
	m := NewMatrix(len(rows), len(rows[0]))
	for i, row := range rows {
		if len(row) != m.Cols {
			panic(fmt.Errorf("%w: row %d has %d columns, want %d", ErrDimensionMismatch, i, len(row), m.Cols))
		}
		copy(m.V[i*m.Cols:(i+1)*m.Cols], row)
	}
	return m
}

// MatrixFromDense converts a gonum matrix, narrowing to float32.
func MatrixFromDense(d mat.Matrix) *Matrix {
	r, c := d.Dims()
	m := NewMatrix(r, c)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			m.Set(i, j, float32(d.At(i, j)))
		}
	}
	return m
}

func Identity(n int) *Matrix {
	m := NewMatrix(n, n)
	for i := 0; i < n; i++ {
		m.Set(i, i, 1)
	}
	return m
}

func (m *Matrix) At(i, j int) float32 {
	return m.V[i*m.Cols+j]
}

func (m *Matrix) Set(i, j int, v float32) {
	m.V[i*m.Cols+j] = v
}

// Row returns row i, sharing storage with m.
func (m *Matrix) Row(i int) []float32 {
	return m.V[i*m.Cols : (i+1)*m.Cols]
}

func (m *Matrix) Clone() *Matrix {
	out := &Matrix{
		Rows: m.Rows,
		Cols: m.Cols,
		V:    make([]float32, len(m.V)),
	}
	copy(out.V, m.V)
	return out
}

func (m *Matrix) SameShape(o *Matrix) bool {
	return m.Rows == o.Rows && m.Cols == o.Cols
}

// Equal reports whether m and o have the same shape and identical values.
func (m *Matrix) Equal(o *Matrix) bool {
	if !m.SameShape(o) {
		return false
	}
	for i := range m.V {
		if m.V[i] != o.V[i] {
			return false
		}
	}
	return true
}

// ToDense converts m to a gonum matrix.
func (m *Matrix) ToDense() *mat.Dense {
	data := make([]float64, len(m.V))
	for i, v := range m.V {
		data[i] = float64(v)
	}
	return mat.NewDense(m.Rows, m.Cols, data)
}

func (m *Matrix) String() string {
	return fmt.Sprintf("Matrix(%dx%d)%v", m.Rows, m.Cols, m.V)
}

func (m *Matrix) general() blas32.General {
	return blas32.General{
		Rows:   m.Rows,
		Cols:   m.Cols,
		Stride: m.Cols,
		Data:   m.V,
	}
}

func mismatch(op string, a, b *Matrix) error {
	return fmt.Errorf("%w: %s of %dx%d and %dx%d", ErrDimensionMismatch, op, a.Rows, a.Cols, b.Rows, b.Cols)
}

func requireSameShape(op string, a, b *Matrix) {
	if !a.SameShape(b) {
		panic(mismatch(op, a, b))
	}
}

// Multiply returns the matrix product a·b.  Shape (a.Rows, b.Cols)
func Multiply(a, b *Matrix) *Matrix {
	if a.Cols != b.Rows {
		panic(mismatch("multiply", a, b))
	}
	out := NewMatrix(a.Rows, b.Cols)
	blas32.Gemm(blas.NoTrans, blas.NoTrans, 1, a.general(), b.general(), 0, out.general())
	return out
}

func Add(a, b *Matrix) *Matrix {
	requireSameShape("add", a, b)
	out := a.Clone()
	for i := range out.V {
		out.V[i] += b.V[i]
	}
	return out
}

func Sub(a, b *Matrix) *Matrix {
	requireSameShape("sub", a, b)
	out := a.Clone()
	for i := range out.V {
		out.V[i] -= b.V[i]
	}
	return out
}

// MulElem returns the elementwise (Hadamard) product of a and b.
func MulElem(a, b *Matrix) *Matrix {
	requireSameShape("elementwise multiply", a, b)
	out := a.Clone()
	for i := range out.V {
		out.V[i] *= b.V[i]
	}
	return out
}

// AddRowVector adds the 1 x a.Cols row v to every row of a.
func AddRowVector(a, v *Matrix) *Matrix {
	if v.Rows != 1 || v.Cols != a.Cols {
		panic(mismatch("row broadcast add", a, v))
	}
	out := a.Clone()
	for k := 0; k < out.Rows; k++ {
		row := out.Row(k)
		for j := range row {
			row[j] += v.V[j]
		}
	}
	return out
}

// ColumnSums returns the 1 x a.Cols row of per-column totals.
func ColumnSums(a *Matrix) *Matrix {
	out := NewMatrix(1, a.Cols)
	for k := 0; k < a.Rows; k++ {
		for j, v := range a.Row(k) {
			out.V[j] += v
		}
	}
	return out
}

func Transpose(a *Matrix) *Matrix {
	out := NewMatrix(a.Cols, a.Rows)
	for i := 0; i < a.Rows; i++ {
		for j := 0; j < a.Cols; j++ {
			out.Set(j, i, a.At(i, j))
		}
	}
	return out
}

// MeanSquaredError is the mean over every element of (predicted - target)^2.
func MeanSquaredError(predicted, target *Matrix) float32 {
	requireSameShape("mean squared error", predicted, target)
	var sum float32
	for i := range predicted.V {
		diff := predicted.V[i] - target.V[i]
		sum += diff * diff
	}
	return sum / float32(len(predicted.V))
}

// MeanSquaredErrorDerivative is the gradient of MeanSquaredError with respect
// to predicted: 2*(predicted - target)/count, elementwise.
func MeanSquaredErrorDerivative(predicted, target *Matrix) *Matrix {
	requireSameShape("mean squared error derivative", predicted, target)
	out := NewMatrix(predicted.Rows, predicted.Cols)
	count := float32(len(predicted.V))
	for i := range out.V {
		out.V[i] = 2 * (predicted.V[i] - target.V[i]) / count
	}
	return out
}

// ShuffleRows returns m with its rows in a uniformly random order, together
// with the permutation used.  Pass the permutation to PermuteRows to reorder a
// paired matrix the same way.
func ShuffleRows(m *Matrix, r *rand.Rand) (*Matrix, []int) {
	perm := r.Perm(m.Rows)
	return PermuteRows(m, perm), perm
}

// PermuteRows returns a copy of m whose row i is row perm[i] of m.
func PermuteRows(m *Matrix, perm []int) *Matrix {
	if len(perm) != m.Rows {
		panic(fmt.Errorf("%w: permutation of length %d for %d rows", ErrDimensionMismatch, len(perm), m.Rows))
	}
	out := NewMatrix(m.Rows, m.Cols)
	for i, src := range perm {
		copy(out.Row(i), m.Row(src))
	}
	return out
}

// SplitRows partitions m into rows [0, k) and [k, m.Rows).
//
// A Matrix always has at least one row, so k must satisfy 1 <= k < m.Rows.
// Any other k, including 0 and m.Rows, panics with an error wrapping
// ErrDimensionMismatch.
func SplitRows(m *Matrix, k int) (head, tail *Matrix) {
	if k < 1 || k >= m.Rows {
		panic(fmt.Errorf("%w: cannot split %d rows at %d; both halves need a row", ErrDimensionMismatch, m.Rows, k))
	}
	head = NewMatrix(k, m.Cols)
	copy(head.V, m.V[:k*m.Cols])
	tail = NewMatrix(m.Rows-k, m.Cols)
	copy(tail.V, m.V[k*m.Cols:])
	return head, tail
}
