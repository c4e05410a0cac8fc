package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/ahmedtd/densenet/toolbox"
)

// Config captures the knobs of a training run.
type Config struct {
	DataFile      string   `yaml:"data_file"`
	Layers        []int    `yaml:"layers"`
	Activations   []string `yaml:"activations"`
	Epochs        int      `yaml:"epochs"`
	LearningRate  float32  `yaml:"learning_rate"`
	EarlyStop     bool     `yaml:"early_stop"`
	TrainFraction float32  `yaml:"train_fraction"`
	Seed          uint64   `yaml:"seed"`
	LogEvery      int      `yaml:"log_every"`
	Description   string   `yaml:"description"`
	Output        string   `yaml:"output"`
}

// Overrides captures CLI supplied values.
type Overrides struct {
	DataFile     string
	Layers       []int
	Activations  []string
	Epochs       int
	LearningRate float32
	EarlyStop    *bool // Nil leaves the configured value alone.
	Seed         uint64
	LogEvery     int
	Description  string
	Output       string
}

// Default returns the settings used when no config file is given.
func Default() *Config {
	return &Config{
		Epochs:        1000,
		LearningRate:  0.1,
		TrainFraction: toolbox.DefaultTrainFraction,
		LogEvery:      100,
		Output:        "net" + toolbox.FileExtension,
	}
}

// Load reads a Config from YAML.  Fields missing from the file keep their
// Default values.  The result is not validated, so that overrides can fill
// in required fields first.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	cfg, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML from r on top of Default.  Unknown keys are an error.
func Parse(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return cfg, nil
}

// ApplyOverrides updates cfg using any non-zero override.
func (c *Config) ApplyOverrides(o Overrides) {
	if o.DataFile != "" {
		c.DataFile = o.DataFile
	}
	if len(o.Layers) > 0 {
		c.Layers = o.Layers
	}
	if len(o.Activations) > 0 {
		c.Activations = o.Activations
	}
	if o.Epochs > 0 {
		c.Epochs = o.Epochs
	}
	if o.LearningRate > 0 {
		c.LearningRate = o.LearningRate
	}
	if o.EarlyStop != nil {
		c.EarlyStop = *o.EarlyStop
	}
	if o.Seed != 0 {
		c.Seed = o.Seed
	}
	if o.LogEvery != 0 {
		c.LogEvery = o.LogEvery
	}
	if o.Description != "" {
		c.Description = o.Description
	}
	if o.Output != "" {
		c.Output = o.Output
	}
}

// Validate verifies the config is runnable.  It does not modify c.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if c.DataFile == "" {
		return errors.New("data_file must be set")
	}
	if len(c.Layers) < 2 {
		return fmt.Errorf("layers needs at least 2 entries (got %v)", c.Layers)
	}
	for i, s := range c.Layers {
		if s <= 0 {
			return fmt.Errorf("layers[%d] must be > 0 (got %d)", i, s)
		}
	}
	if len(c.Activations) != len(c.Layers)-1 {
		return fmt.Errorf("activations needs %d entries, one per non-input layer (got %d)", len(c.Layers)-1, len(c.Activations))
	}
	if _, err := c.ActivationList(); err != nil {
		return err
	}
	if c.Epochs < 0 {
		return fmt.Errorf("epochs must be >= 0 (got %d)", c.Epochs)
	}
	if !(c.LearningRate > 0 && c.LearningRate <= 1) {
		return fmt.Errorf("learning_rate must be in (0, 1] (got %v)", c.LearningRate)
	}
	if c.TrainFraction < 0 || c.TrainFraction >= 1 {
		return fmt.Errorf("train_fraction must be in [0, 1), 0 meaning the default (got %v)", c.TrainFraction)
	}
	if filepath.Ext(c.Output) != toolbox.FileExtension {
		return fmt.Errorf("output must end in %s (got %q)", toolbox.FileExtension, c.Output)
	}
	if c.LogEvery < 0 {
		return fmt.Errorf("log_every must be >= 0, 0 disabling progress logs (got %d)", c.LogEvery)
	}
	return nil
}

// ActivationList parses the configured activation names.
func (c *Config) ActivationList() ([]toolbox.Activation, error) {
	acts := make([]toolbox.Activation, 0, len(c.Activations))
	for i, name := range c.Activations {
		a, err := toolbox.ParseActivation(name)
		if err != nil {
			return nil, fmt.Errorf("activations[%d]: %w", i, err)
		}
		acts = append(acts, a)
	}
	return acts, nil
}

// TrainConfig converts c into the toolbox's training options.
func (c *Config) TrainConfig() toolbox.TrainConfig {
	return toolbox.TrainConfig{
		Epochs:        c.Epochs,
		LearningRate:  c.LearningRate,
		EarlyStop:     c.EarlyStop,
		TrainFraction: c.TrainFraction,
		LogEvery:      c.LogEvery,
	}
}
