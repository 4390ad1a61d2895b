// Copyright (C) The Epilogos Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package epilogos

import (
	"flag"
	"fmt"
	"os"
	"runtime"

	"github.com/meuleman/epilogos/saliency"
	"gopkg.in/yaml.v3"
)

// Config holds the settings shared by all subcommands. Zero Seed
// means "seed from the system entropy source".
type Config struct {
	Saliency      saliency.Level `yaml:"saliency"`
	States        int            `yaml:"states"`
	Workers       int            `yaml:"workers"`
	Trials        int            `yaml:"trials"`
	SampleSize    int            `yaml:"sampleSize"`
	Tag           string         `yaml:"tag"`
	Seed          uint64         `yaml:"seed"`
	BackgroundDir string         `yaml:"backgroundDir"`
	Reuse         bool           `yaml:"reuseBackground"`
	TopLoci       int            `yaml:"topLoci"`
	Autocorr      float64        `yaml:"autocorrelation"`
	FitAutocorr   bool           `yaml:"estimateAutocorrelation"`
	Alpha         float64        `yaml:"alpha"`
	WriteNumpy    bool           `yaml:"writeNumpy"`
}

func DefaultConfig() Config {
	return Config{
		Saliency:      saliency.S1,
		States:        18,
		Workers:       runtime.NumCPU(),
		Trials:        101,
		SampleSize:    10000,
		Tag:           "epilogos",
		BackgroundDir: ".",
		TopLoci:       1000,
		Autocorr:      0.987,
		Alpha:         0.1,
	}
}

// Flags registers cfg's fields on flags, using the current values as
// defaults.
func (cfg *Config) Flags(flags *flag.FlagSet) {
	flags.Var((*levelFlag)(&cfg.Saliency), "saliency", "saliency `level` (1, 2, or 3)")
	flags.IntVar(&cfg.States, "states", cfg.States, "number of chromatin states")
	flags.IntVar(&cfg.Workers, "workers", cfg.Workers, "number of concurrent workers")
	flags.IntVar(&cfg.Trials, "trials", cfg.Trials, "number of bootstrap fits of the null distribution")
	flags.IntVar(&cfg.SampleSize, "sample-size", cfg.SampleSize, "null distances drawn per bootstrap fit")
	flags.StringVar(&cfg.Tag, "tag", cfg.Tag, "name `tag` for output and intermediate files")
	flags.Uint64Var(&cfg.Seed, "seed", cfg.Seed, "random `seed` (0 = nondeterministic)")
	flags.StringVar(&cfg.BackgroundDir, "background-dir", cfg.BackgroundDir, "`directory` for stored background and partial files")
	flags.BoolVar(&cfg.Reuse, "reuse-background", cfg.Reuse, "load stored background instead of estimating it")
	flags.IntVar(&cfg.TopLoci, "top-loci", cfg.TopLoci, "number of bins reported in greatest hits")
	flags.Float64Var(&cfg.Autocorr, "autocorrelation", cfg.Autocorr, "autocorrelation used to estimate the effective number of bins")
	flags.BoolVar(&cfg.FitAutocorr, "estimate-autocorrelation", cfg.FitAutocorr, "estimate autocorrelation from the observed distances instead of using -autocorrelation")
	flags.Float64Var(&cfg.Alpha, "alpha", cfg.Alpha, "family-wise significance level")
	flags.BoolVar(&cfg.WriteNumpy, "numpy", cfg.WriteNumpy, "also write score tensors as .npy")
}

// Load reads a YAML config file into cfg. Fields absent from the file
// keep their current values.
func (cfg *Config) Load(fnm string) error {
	buf, err := os.ReadFile(fnm)
	if err != nil {
		return err
	}
	err = yaml.Unmarshal(buf, cfg)
	if err != nil {
		return fmt.Errorf("%s: %w", fnm, err)
	}
	return nil
}

func (cfg *Config) Validate() error {
	if err := cfg.Saliency.Validate(); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidConfiguration, err)
	}
	switch {
	case cfg.States < 1 || cfg.States > 255:
		return fmt.Errorf("%w: states=%d, must be 1..255", ErrInvalidConfiguration, cfg.States)
	case cfg.Workers < 1:
		return fmt.Errorf("%w: workers=%d, must be at least 1", ErrInvalidConfiguration, cfg.Workers)
	case cfg.Trials < 1:
		return fmt.Errorf("%w: trials=%d, must be at least 1", ErrInvalidConfiguration, cfg.Trials)
	case cfg.SampleSize < 1:
		return fmt.Errorf("%w: sample size=%d, must be at least 1", ErrInvalidConfiguration, cfg.SampleSize)
	case cfg.TopLoci < 0:
		return fmt.Errorf("%w: top loci=%d, must not be negative", ErrInvalidConfiguration, cfg.TopLoci)
	case cfg.Tag == "":
		return fmt.Errorf("%w: empty tag", ErrInvalidConfiguration)
	case !(cfg.Autocorr >= 0 && cfg.Autocorr < 1):
		return fmt.Errorf("%w: autocorrelation=%g, must be in [0,1)", ErrInvalidConfiguration, cfg.Autocorr)
	case !(cfg.Alpha > 0 && cfg.Alpha < 1):
		return fmt.Errorf("%w: alpha=%g, must be in (0,1)", ErrInvalidConfiguration, cfg.Alpha)
	}
	return nil
}

type levelFlag saliency.Level

func (l *levelFlag) String() string {
	if l == nil {
		return ""
	}
	return fmt.Sprintf("%d", int(*l))
}

func (l *levelFlag) Set(s string) error {
	var n int
	_, err := fmt.Sscanf(s, "%d", &n)
	if err != nil {
		return err
	}
	*l = levelFlag(n)
	return saliency.Level(n).Validate()
}

// parseConfig parses args into a Config. If -config is given, the file
// supplies defaults and flags given explicitly on the command line
// still take precedence.
func parseConfig(flags *flag.FlagSet, args []string) (*Config, error) {
	cfg := DefaultConfig()
	cfgFile := flags.String("config", "", "YAML config `file`")
	cfg.Flags(flags)
	err := flags.Parse(args)
	if err != nil {
		return nil, err
	}
	if *cfgFile != "" {
		err = cfg.Load(*cfgFile)
		if err != nil {
			return nil, err
		}
		err = flags.Parse(args)
		if err != nil {
			return nil, err
		}
	}
	return &cfg, nil
}
