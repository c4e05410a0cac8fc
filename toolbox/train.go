package toolbox

import (
	"context"
	"fmt"
	"log"
	"math"
	"math/rand/v2"
	"time"
)

// DefaultTrainFraction is the share of rows kept for training when training
// with overfitting detection.  The rest is held out.
const DefaultTrainFraction = 0.8

// MinTrainingRows is the exclusive lower bound on the number of training rows.
const MinTrainingRows = 10

type TrainConfig struct {
	Epochs       int
	LearningRate float32

	// EarlyStop holds out part of the data and stops as soon as the
	// holdout error rises between two measurements.
	EarlyStop bool

	// TrainFraction is the share of rows used for training when EarlyStop is
	// set.  Zero means DefaultTrainFraction.
	TrainFraction float32

	// Rand shuffles the rows before the holdout split.  Nil means a randomly
	// seeded generator.
	Rand *rand.Rand

	// If Logger is set, progress is logged every LogEvery epochs.
	Logger   *log.Logger
	LogEvery int
}

type TrainTimings struct {
	Overall         time.Duration
	Forward         time.Duration
	Backpropagation time.Duration
	WeightUpdate    time.Duration
}

type TrainResult struct {
	InitMSE float32 // Training error before the first update.
	EndMSE  float32 // Training error after the last update.
	MinMSE  float32 // Lowest training error observed.

	EpochsCompleted int

	// Stopped is set when training ended early because the holdout error
	// started rising.
	Stopped bool

	Timings TrainTimings
}

// Train fits net to (x, y) by full-batch gradient descent on the mean squared
// error, mutating net in place.
//
// x is the input.  Shape (rows, net.NumInputs)
// y is the ground truth output.  Shape (rows, net.NumOutputs)
//
// The context is checked between epochs; if it is done, Train returns the
// result so far together with ctx.Err().
func Train(ctx context.Context, net *Network, x, y *Matrix, cfg TrainConfig) (TrainResult, error) {
	if err := validateTraining(net, x, y, &cfg); err != nil {
		return TrainResult{}, err
	}

	t := newTrainer(net, cfg)
	start := time.Now()

	var err error
	if cfg.EarlyStop {
		xTrain, yTrain, xHold, yHold := holdoutSplit(x, y, cfg.TrainFraction, cfg.Rand)
		err = t.trainEarlyStop(ctx, xTrain, yTrain, xHold, yHold)
	} else {
		err = t.trainFixed(ctx, x, y)
	}

	t.result.Timings.Overall = time.Since(start)
	return t.result, err
}

func validateTraining(net *Network, x, y *Matrix, cfg *TrainConfig) error {
	if x.Rows <= MinTrainingRows {
		return fmt.Errorf("%w: input has %d rows, need more than %d", ErrPrecondition, x.Rows, MinTrainingRows)
	}
	if !(cfg.LearningRate > 0 && cfg.LearningRate <= 1) {
		return fmt.Errorf("%w: learning rate %v is outside (0, 1]", ErrPrecondition, cfg.LearningRate)
	}
	if x.Rows != y.Rows {
		return fmt.Errorf("%w: input has %d rows but output has %d", ErrPrecondition, x.Rows, y.Rows)
	}
	if cfg.Epochs < 0 {
		return fmt.Errorf("%w: negative epoch count %d", ErrPrecondition, cfg.Epochs)
	}
	if cfg.TrainFraction == 0 {
		cfg.TrainFraction = DefaultTrainFraction
	}
	if !(cfg.TrainFraction > 0 && cfg.TrainFraction < 1) {
		return fmt.Errorf("%w: train fraction %v is outside (0, 1)", ErrPrecondition, cfg.TrainFraction)
	}
	if x.Cols != net.NumInputs {
		return fmt.Errorf("%w: input has %d columns, network takes %d", ErrDimensionMismatch, x.Cols, net.NumInputs)
	}
	if y.Cols != net.NumOutputs {
		return fmt.Errorf("%w: output has %d columns, network produces %d", ErrDimensionMismatch, y.Cols, net.NumOutputs)
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return nil
}

// holdoutSplit shuffles the rows of x and y with one shared permutation and
// splits both into a training and a holdout partition.
func holdoutSplit(x, y *Matrix, fraction float32, r *rand.Rand) (xTrain, yTrain, xHold, yHold *Matrix) {
	nTrain := int(fraction * float32(x.Rows))
	if nTrain == 0 {
		nTrain = 1
	}
	if nTrain >= x.Rows {
		nTrain = x.Rows - 1
	}

	xShuffled, perm := ShuffleRows(x, r)
	yShuffled := PermuteRows(y, perm)

	xTrain, xHold = SplitRows(xShuffled, nTrain)
	yTrain, yHold = SplitRows(yShuffled, nTrain)
	return xTrain, yTrain, xHold, yHold
}

// alphaEpoch is the number of epochs between two holdout evaluations.
func alphaEpoch(epochs int) int {
	alpha := int(math.Round(0.1 * float64(epochs)))
	return min(max(alpha, 1), 250)
}

type trainer struct {
	net    *Network
	cfg    TrainConfig
	result TrainResult

	// holdoutMSE, if set, replaces the holdout evaluation.  epoch is the
	// number of completed epochs.
	holdoutMSE func(epoch int, xHold, yHold *Matrix) float32
}

func newTrainer(net *Network, cfg TrainConfig) *trainer {
	return &trainer{net: net, cfg: cfg}
}

func (t *trainer) forward(x *Matrix) *Trace {
	start := time.Now()
	trace := t.net.Forward(x)
	t.result.Timings.Forward += time.Since(start)
	return trace
}

func (t *trainer) evalHoldout(epoch int, xHold, yHold *Matrix) float32 {
	if t.holdoutMSE != nil {
		return t.holdoutMSE(epoch, xHold, yHold)
	}
	trace := t.forward(xHold)
	defer trace.Release()
	return MeanSquaredError(trace.Last(), yHold)
}

// record folds the training error after an epoch into the result.
func (t *trainer) record(mse float32) {
	t.result.EpochsCompleted++
	t.result.EndMSE = mse
	if mse < t.result.MinMSE {
		t.result.MinMSE = mse
	}
}

func (t *trainer) start(mse float32) {
	t.result.InitMSE = mse
	t.result.EndMSE = mse
	t.result.MinMSE = mse
}

func (t *trainer) logf(epoch int, format string, args ...any) {
	if t.cfg.Logger == nil || t.cfg.LogEvery <= 0 || epoch%t.cfg.LogEvery != 0 {
		return
	}
	t.cfg.Logger.Printf("epoch=%d "+format, append([]any{epoch}, args...)...)
}

// trainFixed runs exactly cfg.Epochs epochs over the whole data set.
func (t *trainer) trainFixed(ctx context.Context, x, y *Matrix) error {
	trace := t.forward(x)
	defer func() { trace.Release() }()
	t.start(MeanSquaredError(trace.Last(), y))

	for epoch := 0; epoch < t.cfg.Epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		t.step(trace, y)
		trace.Release()

		trace = t.forward(x)
		mse := MeanSquaredError(trace.Last(), y)
		t.record(mse)
		t.logf(epoch+1, "training-mse=%f", mse)
	}
	return nil
}

// trainEarlyStop trains on the training partition and re-measures the holdout
// error every alphaEpoch epochs.  It stops once the latest holdout error is
// above the previous one, or when the epoch budget runs out.
func (t *trainer) trainEarlyStop(ctx context.Context, xTrain, yTrain, xHold, yHold *Matrix) error {
	alpha := alphaEpoch(t.cfg.Epochs)

	prev := t.evalHoldout(0, xHold, yHold)
	curr := prev

	trace := t.forward(xTrain)
	defer func() { trace.Release() }()
	t.start(MeanSquaredError(trace.Last(), yTrain))

	for epoch := 0; epoch < t.cfg.Epochs && curr-prev <= 0; epoch++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		t.step(trace, yTrain)
		trace.Release()

		if (epoch+1)%alpha == 0 {
			prev, curr = curr, t.evalHoldout(epoch+1, xHold, yHold)
		}

		trace = t.forward(xTrain)
		mse := MeanSquaredError(trace.Last(), yTrain)
		t.record(mse)
		t.logf(epoch+1, "training-mse=%f holdout-mse=%f", mse, curr)
	}

	t.result.Stopped = curr-prev > 0
	return nil
}

// step performs one backpropagation pass over trace and updates every layer.
func (t *trainer) step(trace *Trace, y *Matrix) {
	backpropStart := time.Now()
	grads := t.net.gradients(trace, y)
	t.result.Timings.Backpropagation += time.Since(backpropStart)

	updateStart := time.Now()
	for j, g := range grads {
		lay := t.net.Layers.At(j)
		lay.StepWeights(g.djdw, t.cfg.LearningRate)
		lay.StepBias(g.djdb, t.cfg.LearningRate)
	}
	t.result.Timings.WeightUpdate += time.Since(updateStart)
}

type layerGradient struct {
	djdw *Matrix // Shape (InputSize, OutputSize)
	djdb *Matrix // Shape (1, OutputSize)
}

// gradients backpropagates the mean squared error of trace against y and
// returns the gradient for every layer.  The network is not modified, so
// every delta is computed from the pre-update weights.
//
// trace is the activation trace of a forward pass.  Length NumLayers
// y is the ground truth output.  Shape (batchSize, NumOutputs)
func (net *Network) gradients(trace *Trace, y *Matrix) []layerGradient {
	n := net.Layers.Len()
	grads := make([]layerGradient, n)

	out := trace.At(n)
	lastLayer := net.Layers.At(n - 1)
	delta := MulElem(MeanSquaredErrorDerivative(out, y), lastLayer.Activation.Derivative(out))

	// With a single layer the loop body runs once and never propagates.
	for j := n - 1; j >= 0; j-- {
		lay := net.Layers.At(j)
		x := trace.At(j) // Input of layer j, output of layer j-1.

		grads[j] = layerGradient{
			djdw: Multiply(Transpose(x), delta),
			djdb: ColumnSums(delta),
		}

		if j > 0 {
			prev := net.Layers.At(j - 1)
			delta = MulElem(Multiply(delta, Transpose(lay.W)), prev.Activation.Derivative(x))
		}
	}

	return grads
}
