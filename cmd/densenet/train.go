package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"math/rand/v2"
	"os"
	"runtime/pprof"
	"slices"
	"strconv"
	"strings"

	"github.com/google/subcommands"

	"github.com/ahmedtd/densenet/internal/config"
	"github.com/ahmedtd/densenet/toolbox"
)

type TrainCommand struct {
	configFile string

	dataFile     string
	layers       string
	activations  string
	epochs       int
	learningRate float64
	earlyStop    optionalBool
	seed         uint64
	logEvery     int
	description  string
	outputFile   string

	fromCheckpointFile string
	cpuProfileFile     string
}

var _ subcommands.Command = (*TrainCommand)(nil)

func (*TrainCommand) Name() string {
	return "train"
}

func (*TrainCommand) Synopsis() string {
	return "Train a network and save it in .aic format"
}

func (*TrainCommand) Usage() string {
	return `train [--config=train.yaml] [flags]

Flags override the values read from the config file.
`
}

func (c *TrainCommand) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.configFile, "config", "", "Path to a YAML training config")

	f.StringVar(&c.dataFile, "data-file", "", "Path to the npz data set (arrays x and y)")
	f.StringVar(&c.layers, "layers", "", "Comma-separated neuron counts, input layer first")
	f.StringVar(&c.activations, "activations", "", "Comma-separated activations, one per non-input layer")
	f.IntVar(&c.epochs, "epochs", 0, "Number of epochs")
	f.Float64Var(&c.learningRate, "lr", 0, "Learning rate, in (0, 1]")
	f.Var(&c.earlyStop, "early-stop", "Hold out part of the data and stop when its error rises (--early-stop=false overrides the config)")
	f.Uint64Var(&c.seed, "seed", 0, "Seed for weight initialization and shuffling")
	f.IntVar(&c.logEvery, "log-every", 0, "Log progress every this many epochs")
	f.StringVar(&c.description, "description", "", "Description stored with the network")
	f.StringVar(&c.outputFile, "output", "", "Path to save the trained network (.aic)")

	f.StringVar(&c.fromCheckpointFile, "from-checkpoint", "", "Path to an .aic network to continue training")
	f.StringVar(&c.cpuProfileFile, "cpu-profile", "", "Write a CPU profile")
}

func (c *TrainCommand) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if err := c.executeErr(ctx); err != nil {
		log.Printf("Error: %v", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func (c *TrainCommand) executeErr(ctx context.Context) error {
	if c.cpuProfileFile != "" {
		f, err := os.Create(c.cpuProfileFile)
		if err != nil {
			return fmt.Errorf("while creating CPU profile file: %w", err)
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			return fmt.Errorf("while starting CPU profile: %w", err)
		}
		defer pprof.StopCPUProfile()
	}

	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}

	var net *toolbox.Network
	if c.fromCheckpointFile != "" {
		net, err = toolbox.LoadFile(c.fromCheckpointFile)
		if err != nil {
			return fmt.Errorf("while loading initial checkpoint: %w", err)
		}
		if err := checkTopology(cfg, net); err != nil {
			return err
		}
		cfg.Layers = net.LayerSizes()
		cfg.Activations = nil
		for _, a := range net.Activations() {
			cfg.Activations = append(cfg.Activations, a.String())
		}
		if cfg.Description == "" {
			cfg.Description = net.Description()
		}
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	x, y, err := loadDataset(cfg.DataFile)
	if err != nil {
		return fmt.Errorf("while loading data set: %w", err)
	}
	if y == nil {
		return fmt.Errorf("data set %s has no y array", cfg.DataFile)
	}
	log.Printf("Data loaded rows=%d inputs=%d outputs=%d", x.Rows, x.Cols, y.Cols)

	src := rand.NewPCG(cfg.Seed, cfg.Seed)
	if net == nil {
		acts, err := cfg.ActivationList()
		if err != nil {
			return err
		}
		net, err = toolbox.NewNetwork(cfg.Layers, acts, cfg.Description, src)
		if err != nil {
			return fmt.Errorf("while building network: %w", err)
		}
	} else {
		net.SetDescription(cfg.Description)
	}

	tc := cfg.TrainConfig()
	tc.Rand = rand.New(src)
	tc.Logger = log.Default()

	res, err := toolbox.Train(ctx, net, x, y, tc)
	if errors.Is(err, context.Canceled) {
		log.Printf("Training interrupted after %d epochs; saving partial result", res.EpochsCompleted)
	} else if err != nil {
		return fmt.Errorf("while training: %w", err)
	}

	log.Printf("training done epochs=%d stopped=%v init-mse=%f end-mse=%f min-mse=%f",
		res.EpochsCompleted,
		res.Stopped,
		res.InitMSE,
		res.EndMSE,
		res.MinMSE,
	)
	log.Printf("timings overall=%.1f forward=%.1f backprop=%.1f weightupdate=%.1f",
		res.Timings.Overall.Seconds(),
		res.Timings.Forward.Seconds(),
		res.Timings.Backpropagation.Seconds(),
		res.Timings.WeightUpdate.Seconds(),
	)

	if err := toolbox.SaveFile(cfg.Output, net); err != nil {
		return fmt.Errorf("while saving network: %w", err)
	}
	log.Printf("Network written to %s", cfg.Output)
	return nil
}

// loadConfig reads the config file, if any, and applies the flags on top.
func (c *TrainCommand) loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if c.configFile != "" {
		var err error
		cfg, err = config.Load(c.configFile)
		if err != nil {
			return nil, err
		}
	}

	layers, err := parseLayers(c.layers)
	if err != nil {
		return nil, err
	}
	cfg.ApplyOverrides(config.Overrides{
		DataFile:     c.dataFile,
		Layers:       layers,
		Activations:  splitList(c.activations),
		Epochs:       c.epochs,
		LearningRate: float32(c.learningRate),
		EarlyStop:    c.earlyStop.value,
		Seed:         c.seed,
		LogEvery:     c.logEvery,
		Description:  c.description,
		Output:       c.outputFile,
	})
	return cfg, nil
}

func splitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func parseLayers(s string) ([]int, error) {
	var sizes []int
	for _, p := range splitList(s) {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("while parsing --layers: %w", err)
		}
		sizes = append(sizes, n)
	}
	return sizes, nil
}

// checkTopology rejects configured layers or activations that disagree with a
// checkpoint being resumed.  Leaving them unset adopts the checkpoint's.
func checkTopology(cfg *config.Config, net *toolbox.Network) error {
	if len(cfg.Layers) > 0 && !slices.Equal(cfg.Layers, net.LayerSizes()) {
		return fmt.Errorf("layers %v conflict with checkpoint layers %v", cfg.Layers, net.LayerSizes())
	}
	if len(cfg.Activations) > 0 {
		acts, err := cfg.ActivationList()
		if err != nil {
			return err
		}
		if !slices.Equal(acts, net.Activations()) {
			return fmt.Errorf("activations %v conflict with checkpoint activations %v", acts, net.Activations())
		}
	}
	return nil
}

// optionalBool is a boolean flag that remembers whether it was given.
type optionalBool struct {
	value *bool
}

var _ flag.Value = (*optionalBool)(nil)

func (b *optionalBool) String() string {
	if b == nil || b.value == nil {
		return ""
	}
	return strconv.FormatBool(*b.value)
}

func (b *optionalBool) Set(s string) error {
	v, err := strconv.ParseBool(s)
	if err != nil {
		return err
	}
	b.value = &v
	return nil
}

func (b *optionalBool) IsBoolFlag() bool {
	return true
}
