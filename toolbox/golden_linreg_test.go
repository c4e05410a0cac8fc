package toolbox

import (
	"context"
	"math/rand/v2"
	"testing"

	"github.com/chewxy/math32"
)

func linearNetwork(inputs int) *Network {
	net, err := NewNetworkFromLayers([]*Layer{
		{Activation: None, W: NewMatrix(inputs, 1), B: NewMatrix(1, 1)},
	}, "linreg")
	if err != nil {
		panic(err)
	}
	return net
}

func TestAgreesWithHandcodedLinreg(t *testing.T) {
	alpha := float32(0.1)
	steps := 2000

	batchSize := 1000
	x, y := generate1DLinRegDataset(batchSize)

	net := linearNetwork(1)
	if _, err := Train(context.Background(), net, x, y, TrainConfig{Epochs: steps, LearningRate: alpha}); err != nil {
		t.Fatalf("Unexpected error while training: %v", err)
	}
	gotM, gotB := net.Layers.At(0).W.At(0, 0), net.Layers.At(0).B.At(0, 0)
	t.Logf("toolkit m=%v b=%v", gotM, gotB)

	m, b := gradientDescentLinReg(x, y, alpha, steps)
	t.Logf("handcoded m=%v b=%v", m, b)

	if math32.Abs(gotM-m) > 0.01 {
		t.Errorf("Disagreement on m parameter; got %v, want %v", gotM, m)
	}
	if math32.Abs(gotB-b) > 0.01 {
		t.Errorf("Disagreement on b parameter; got %v, want %v", gotB, b)
	}
}

func TestAgreesWithHandcoded2DLinreg(t *testing.T) {
	alpha := float32(0.1)
	steps := 4000

	batchSize := 1000
	x, y := generate2DLinRegDataset(batchSize)

	net := linearNetwork(2)
	if _, err := Train(context.Background(), net, x, y, TrainConfig{Epochs: steps, LearningRate: alpha}); err != nil {
		t.Fatalf("Unexpected error while training: %v", err)
	}
	w := net.Layers.At(0).W
	gotB := net.Layers.At(0).B.At(0, 0)

	m0, m1, b := gradientDescent2DLinReg(x, y, alpha, steps)
	t.Logf("toolkit m0=%v m1=%v b=%v", w.At(0, 0), w.At(1, 0), gotB)
	t.Logf("handcoded m0=%v m1=%v b=%v", m0, m1, b)

	if math32.Abs(w.At(0, 0)-m0) > 0.01 {
		t.Errorf("Disagreement on m0 parameter; got %v, want %v", w.At(0, 0), m0)
	}
	if math32.Abs(w.At(1, 0)-m1) > 0.01 {
		t.Errorf("Disagreement on m1 parameter; got %v, want %v", w.At(1, 0), m1)
	}
	if math32.Abs(gotB-b) > 0.01 {
		t.Errorf("Disagreement on b parameter; got %v, want %v", gotB, b)
	}
}

func generate1DLinRegDataset(m int) (x, y *Matrix) {
	r := rand.New(rand.NewPCG(12345, 0))

	x = NewMatrix(m, 1)
	y = NewMatrix(m, 1)

	for i := 0; i < m; i++ {
		// Keep x in [0, 1); large inputs blow the model up at this learning
		// rate.
		x1 := r.Float32()
		y1 := 10*x1 + 30

		// Perturb the point a little bit
		y1 += (r.Float32() - 0.5) * 10

		x.Set(i, 0, x1)
		y.Set(i, 0, y1)
	}

	return x, y
}

// The handcoded gradients below are for the mean squared error without the
// conventional 1/2 factor, hence the 2.

func gradientDescentLinReg(x, y *Matrix, learningRate float32, steps int) (m, b float32) {
	n := float32(x.Rows)
	for i := 0; i < steps; i++ {
		var gradM, gradB float32
		for k := 0; k < x.Rows; k++ {
			pred := m*x.At(k, 0) + b
			gradM += 2 * (pred - y.At(k, 0)) * x.At(k, 0) / n
			gradB += 2 * (pred - y.At(k, 0)) / n
		}
		m -= learningRate * gradM
		b -= learningRate * gradB
	}
	return m, b
}

func generate2DLinRegDataset(m int) (x, y *Matrix) {
	r := rand.New(rand.NewPCG(12345, 1))

	x = NewMatrix(m, 2)
	y = NewMatrix(m, 1)

	for k := 0; k < m; k++ {
		x0 := r.Float32()
		x1 := r.Float32()
		y0 := 10*x0 + 3*x1 + 30

		y0 += (r.Float32() - 0.5) * 0.1

		x.Set(k, 0, x0)
		x.Set(k, 1, x1)
		y.Set(k, 0, y0)
	}

	return x, y
}

func gradientDescent2DLinReg(x, y *Matrix, learningRate float32, steps int) (m0, m1, b float32) {
	n := float32(x.Rows)
	for i := 0; i < steps; i++ {
		var gradM0, gradM1, gradB float32
		for k := 0; k < x.Rows; k++ {
			pred := m0*x.At(k, 0) + m1*x.At(k, 1) + b
			gradM0 += 2 * (pred - y.At(k, 0)) * x.At(k, 0) / n
			gradM1 += 2 * (pred - y.At(k, 0)) * x.At(k, 1) / n
			gradB += 2 * (pred - y.At(k, 0)) / n
		}
		m0 -= learningRate * gradM0
		m1 -= learningRate * gradM1
		b -= learningRate * gradB
	}
	return m0, m1, b
}

func BenchmarkLinReg(b *testing.B) {
	x, y := generate2DLinRegDataset(1000)
	for b.Loop() {
		net := linearNetwork(2)
		if _, err := Train(context.Background(), net, x, y, TrainConfig{Epochs: 100, LearningRate: 0.1}); err != nil {
			b.Fatalf("Unexpected error while training: %v", err)
		}
	}
}
