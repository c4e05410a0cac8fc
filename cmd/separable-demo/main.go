// Command separable-demo trains a small network on a synthetic, linearly
// separable data set, once for a fixed number of epochs and once with
// holdout-based early stopping, and reports how each run did.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand/v2"
	"os"
	"os/signal"

	"github.com/ahmedtd/densenet/toolbox"
)

var (
	rows         = flag.Int("rows", 1000, "Number of generated points")
	epochs       = flag.Int("epochs", 2000, "Epoch budget for each run")
	learningRate = flag.Float64("lr", 0.5, "Learning rate")
	seed         = flag.Uint64("seed", 12345, "Seed for the data set and the weights")
	output       = flag.String("output", "", "If set, save the early-stopped network here (.aic)")
)

func main() {
	flag.Parse()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("Error: %v", err)
	}
}

func run(ctx context.Context) error {
	r := rand.New(rand.NewPCG(*seed, *seed))
	x, y := generateDataset(*rows, r)

	num1s := 0
	for k := 0; k < y.Rows; k++ {
		if y.At(k, 0) == 1 {
			num1s++
		}
	}
	log.Printf("data set has %d 1s and %d 0s", num1s, y.Rows-num1s)

	initial, err := toolbox.NewNetwork(
		[]int{2, 4, 1},
		[]toolbox.Activation{toolbox.Tanh, toolbox.Sigmoid},
		"separable demo: class 1 above x1 = x0",
		r,
	)
	if err != nil {
		return fmt.Errorf("while building network: %w", err)
	}

	for _, earlyStop := range []bool{false, true} {
		net := initial.Clone()
		res, err := toolbox.Train(ctx, net, x, y, toolbox.TrainConfig{
			Epochs:       *epochs,
			LearningRate: float32(*learningRate),
			EarlyStop:    earlyStop,
			Rand:         rand.New(rand.NewPCG(*seed, 1)),
			Logger:       log.Default(),
			LogEvery:     max(*epochs/10, 1),
		})
		if err != nil {
			return fmt.Errorf("while training (early-stop=%v): %w", earlyStop, err)
		}

		pred, err := toolbox.Predict(net, x)
		if err != nil {
			return err
		}
		wrong := mispredictions(pred, y)

		log.Printf("early-stop=%v epochs=%d stopped=%v init-mse=%f end-mse=%f min-mse=%f",
			earlyStop, res.EpochsCompleted, res.Stopped, res.InitMSE, res.EndMSE, res.MinMSE)
		log.Printf("early-stop=%v had %d mispredictions (%v%%)",
			earlyStop, wrong, float32(wrong)/float32(y.Rows)*100)

		if earlyStop && *output != "" {
			if err := toolbox.SaveFile(*output, net); err != nil {
				return fmt.Errorf("while saving network: %w", err)
			}
			log.Printf("network written to %s", *output)
		}
	}

	return nil
}

// generateDataset draws m points in the unit square and labels them 1 when
// they lie above the line x1 = x0.
func generateDataset(m int, r *rand.Rand) (x, y *toolbox.Matrix) {
	x = toolbox.NewMatrix(m, 2)
	y = toolbox.NewMatrix(m, 1)

	for i := 0; i < m; i++ {
		x0 := r.Float32()
		x1 := r.Float32()
		if x1 > x0 {
			y.Set(i, 0, 1)
		}
		x.Set(i, 0, x0)
		x.Set(i, 1, x1)
	}

	return x, y
}

func mispredictions(pred, y *toolbox.Matrix) int {
	n := 0
	for k := 0; k < pred.Rows; k++ {
		if (pred.At(k, 0) > 0.5) != (y.At(k, 0) == 1) {
			n++
		}
	}
	return n
}
