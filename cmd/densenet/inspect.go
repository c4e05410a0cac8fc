package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/google/subcommands"

	"github.com/ahmedtd/densenet/toolbox"
)

type InspectCommand struct {
	netFile string
}

var _ subcommands.Command = (*InspectCommand)(nil)

func (*InspectCommand) Name() string {
	return "inspect"
}

func (*InspectCommand) Synopsis() string {
	return "Print the topology and description of a network"
}

func (*InspectCommand) Usage() string {
	return ``
}

func (c *InspectCommand) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.netFile, "net", "net.aic", "Path to the network")
}

func (c *InspectCommand) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	net, err := toolbox.LoadFile(c.netFile)
	if err != nil {
		log.Printf("Error: %v", err)
		return subcommands.ExitFailure
	}
	describe(os.Stdout, net)
	return subcommands.ExitSuccess
}

func describe(w io.Writer, net *toolbox.Network) {
	fmt.Fprintf(w, "description: %q\n", net.Description())
	fmt.Fprintf(w, "layers: %d (inputs=%d outputs=%d)\n", net.NumLayers, net.NumInputs, net.NumOutputs)
	fmt.Fprintf(w, "  0: %d neurons (input)\n", net.NumInputs)
	for i, lay := range net.Layers.All() {
		fmt.Fprintf(w, "  %d: %d neurons %s\n", i+1, lay.OutputSize(), lay.Activation)
	}
}
