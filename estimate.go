// Copyright (C) The Epilogos Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package epilogos

import (
	"flag"
	"fmt"
	"io"
	"strings"

	log "github.com/sirupsen/logrus"
)

// estimateCmd tallies input files into partial accumulators and
// stores them for a later "combine".
type estimateCmd struct{}

func (cmd *estimateCmd) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	return runCommand(cmd, prog, args, stdin, stdout, stderr)
}

func (cmd *estimateCmd) run(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	flags.Usage = func() {
		fmt.Fprintf(flags.Output(), "usage: %s [options] input-file-or-dir ...\n", prog)
		flags.PrintDefaults()
	}
	combine := flags.Bool("combine", false, "combine partials into the background after estimating")
	cfg, err := parseFlags(flags, args)
	if err != nil {
		return err
	}
	if flags.NArg() == 0 {
		return fmt.Errorf("%w: no input files", errUsage)
	}
	inputs, err := readInputs(flags.Args())
	if err != nil {
		return err
	}
	store := &PartialStore{Dir: cfg.BackgroundDir}
	var accs []*Accumulator
	for _, in := range inputs {
		if err := in.Matrix.Validate(cfg.States); err != nil {
			return fmt.Errorf("%s: %w", in.Name, err)
		}
		log.Printf("%s: %s", stageEstimating, in.Name)
		partials, err := EstimatePartials(cfg, in.Matrix)
		if err != nil {
			return fmt.Errorf("%s: %w", in.Name, err)
		}
		accs = append(accs, partials...)
	}
	for i, acc := range accs {
		err = store.WritePartial(cfg.Tag, i, len(accs), acc)
		if err != nil {
			return err
		}
	}
	log.Printf("stored %d partials for tag %q in %s", len(accs), cfg.Tag, cfg.BackgroundDir)
	if *combine {
		_, err = store.Combine(cfg.Tag)
		return err
	}
	return nil
}

// combineCmd merges stored partials into a background.
type combineCmd struct{}

func (cmd *combineCmd) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	return runCommand(cmd, prog, args, stdin, stdout, stderr)
}

func (cmd *combineCmd) run(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	cfg, err := parseFlags(flags, args)
	if err != nil {
		return err
	} else if flags.NArg() > 0 {
		return fmt.Errorf("%w: errant command line arguments after parsed flags: %v", errUsage, flags.Args())
	}
	store := &PartialStore{Dir: cfg.BackgroundDir}
	bg, err := store.Combine(cfg.Tag)
	if err != nil {
		if tags, _ := store.sortedTags(); len(tags) > 0 {
			log.Infof("partials present for tags: %s", strings.Join(tags, ", "))
		}
		return err
	}
	if bg.Level != cfg.Saliency || bg.States != cfg.States {
		log.Warnf("combined background is %s with %d states, but -saliency=%d -states=%d", bg.Level, bg.States, int(cfg.Saliency), cfg.States)
	}
	fmt.Fprintln(stdout, store.BackgroundPath(cfg.Tag, bg.Level, bg.States, bg.Cols))
	return nil
}
