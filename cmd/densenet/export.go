package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/google/subcommands"

	"github.com/ahmedtd/densenet/toolbox"
)

type ExportCommand struct {
	netFile    string
	outputFile string
}

var _ subcommands.Command = (*ExportCommand)(nil)

func (*ExportCommand) Name() string {
	return "export"
}

func (*ExportCommand) Synopsis() string {
	return "Convert an .aic network to safetensors"
}

func (*ExportCommand) Usage() string {
	return ``
}

func (c *ExportCommand) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.netFile, "net", "net.aic", "Path to the network")
	f.StringVar(&c.outputFile, "output", "net.safetensors", "Path to write the safetensors file")
}

func (c *ExportCommand) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if err := c.executeErr(); err != nil {
		log.Printf("Error: %v", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func (c *ExportCommand) executeErr() error {
	net, err := toolbox.LoadFile(c.netFile)
	if err != nil {
		return fmt.Errorf("while loading network: %w", err)
	}

	f, err := os.Create(c.outputFile)
	if err != nil {
		return fmt.Errorf("while creating output file: %w", err)
	}
	defer f.Close()

	if err := toolbox.WriteSafeTensors(f, net); err != nil {
		return fmt.Errorf("while writing tensors: %w", err)
	}
	return f.Close()
}
