package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/google/subcommands"
	"github.com/sbinet/npyio"

	"github.com/ahmedtd/densenet/toolbox"
)

type PredictCommand struct {
	netFile    string
	dataFile   string
	outputFile string
	threshold  float64
}

var _ subcommands.Command = (*PredictCommand)(nil)

func (*PredictCommand) Name() string {
	return "predict"
}

func (*PredictCommand) Synopsis() string {
	return "Run a trained network over a data set"
}

func (*PredictCommand) Usage() string {
	return ``
}

func (c *PredictCommand) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.netFile, "net", "net.aic", "Path to the network produced by the train command")
	f.StringVar(&c.dataFile, "data-file", "", "Path to the npz data set (array x, optionally y)")
	f.StringVar(&c.outputFile, "output", "", "Path to write the predictions as an npy array")
	f.Float64Var(&c.threshold, "threshold", 0.5, "Decision threshold used to count mispredictions when y is present")
}

func (c *PredictCommand) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if err := c.executeErr(ctx); err != nil {
		log.Printf("Error: %v", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func (c *PredictCommand) executeErr(ctx context.Context) error {
	net, err := toolbox.LoadFile(c.netFile)
	if err != nil {
		return fmt.Errorf("while loading network: %w", err)
	}

	x, y, err := loadDataset(c.dataFile)
	if err != nil {
		return fmt.Errorf("while loading data set: %w", err)
	}

	pred, err := toolbox.Predict(net, x)
	if err != nil {
		return fmt.Errorf("while predicting: %w", err)
	}

	if y != nil {
		if y.Cols != pred.Cols {
			return fmt.Errorf("y has %d columns, network produces %d", y.Cols, pred.Cols)
		}
		wrong := countMispredictions(pred, y, float32(c.threshold))
		log.Printf("mse=%f mispredictions=%d (%.1f%%)",
			toolbox.MeanSquaredError(pred, y),
			wrong,
			float32(wrong)/float32(y.Rows)*100,
		)
	}

	if c.outputFile == "" {
		for k := 0; k < pred.Rows; k++ {
			fmt.Println(pred.Row(k))
		}
		return nil
	}

	f, err := os.Create(c.outputFile)
	if err != nil {
		return fmt.Errorf("while creating output file: %w", err)
	}
	defer f.Close()

	if err := npyio.Write(f, pred.ToDense()); err != nil {
		return fmt.Errorf("while writing predictions: %w", err)
	}
	return f.Close()
}

// countMispredictions compares thresholded predictions with targets, row by
// row.  A row is wrong if any of its outputs lands on the other side of the
// threshold from its target.
func countMispredictions(pred, y *toolbox.Matrix, threshold float32) int {
	wrong := 0
	for k := 0; k < pred.Rows; k++ {
		for j := 0; j < pred.Cols; j++ {
			if (pred.At(k, j) > threshold) != (y.At(k, j) > threshold) {
				wrong++
				break
			}
		}
	}
	return wrong
}
