package toolbox

import (
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/blas/blas32"
	"gonum.org/v1/gonum/stat/distuv"
)

// Layer is one dense layer: a = act(x·W + b).
type Layer struct {
	Activation Activation

	W *Matrix // Shape (InputSize, OutputSize)
	B *Matrix // Shape (1, OutputSize)
}

// NewLayer returns a layer with weights drawn from N(0, 0.1^2) and biases set
// to 0.1.  A nil src uses the global random source.
func NewLayer(activation Activation, inputSize, outputSize int, src rand.Source) *Layer {
	l := &Layer{
		Activation: activation,
		W:          NewMatrix(inputSize, outputSize),
		B:          NewMatrix(1, outputSize),
	}

	dist := distuv.Normal{Mu: 0, Sigma: 0.1, Src: src}
	for i := range l.W.V {
		l.W.V[i] = float32(dist.Rand())
	}
	for i := range l.B.V {
		l.B.V[i] = 0.1
	}

	return l
}

func (l *Layer) InputSize() int {
	return l.W.Rows
}

func (l *Layer) OutputSize() int {
	return l.W.Cols
}

func (l *Layer) Clone() *Layer {
	return &Layer{
		Activation: l.Activation,
		W:          l.W.Clone(),
		B:          l.B.Clone(),
	}
}

// Validate checks the layer's internal shape invariants.
func (l *Layer) Validate() error {
	if !l.Activation.Valid() {
		return fmt.Errorf("unknown activation %d", uint8(l.Activation))
	}
	if l.W == nil || l.B == nil {
		return fmt.Errorf("layer is missing weights or biases")
	}
	if l.B.Rows != 1 || l.B.Cols != l.W.Cols {
		return fmt.Errorf("%w: bias is %dx%d, want 1x%d", ErrDimensionMismatch, l.B.Rows, l.B.Cols, l.W.Cols)
	}
	return nil
}

// Apply runs the layer forward.
//
// x is the layer input.  Shape (batchSize, InputSize)
// Returns the activated output.  Shape (batchSize, OutputSize)
func (l *Layer) Apply(x *Matrix) *Matrix {
	z := AddRowVector(Multiply(x, l.W), l.B)
	return l.Activation.Apply(z)
}

// StepWeights applies one gradient descent step, W <- W - lr*djdw.
func (l *Layer) StepWeights(djdw *Matrix, lr float32) {
	requireSameShape("weight step", l.W, djdw)
	axpy(-lr, djdw, l.W)
}

// StepBias applies one gradient descent step, B <- B - lr*djdb.
func (l *Layer) StepBias(djdb *Matrix, lr float32) {
	requireSameShape("bias step", l.B, djdb)
	axpy(-lr, djdb, l.B)
}

// axpy computes y += alpha*x in place.
func axpy(alpha float32, x, y *Matrix) {
	blas32.Axpy(alpha,
		blas32.Vector{N: len(x.V), Inc: 1, Data: x.V},
		blas32.Vector{N: len(y.V), Inc: 1, Data: y.V},
	)
}
