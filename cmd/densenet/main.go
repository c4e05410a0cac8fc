// Command densenet trains and runs dense feed-forward networks stored in .aic
// files.
//
// To train: `go run ./cmd/densenet train --data-file=data.npz --layers=3,4,1 --activations=tanh,sigmoid`
//
// To predict: `go run ./cmd/densenet predict --net=net.aic --data-file=data.npz --output=pred.npy`
//
// Data files are npz archives holding float64 arrays x.npy, shape (rows,
// inputs), and y.npy, shape (rows, outputs) or (rows).
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"

	"github.com/google/subcommands"
)

func main() {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(subcommands.CommandsCommand(), "")

	subcommands.Register(&TrainCommand{}, "")
	subcommands.Register(&PredictCommand{}, "")
	subcommands.Register(&InspectCommand{}, "")
	subcommands.Register(&ExportCommand{}, "")

	flag.Parse()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	status := subcommands.Execute(ctx)
	stop()
	os.Exit(int(status))
}
