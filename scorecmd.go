// Copyright (C) The Epilogos Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package epilogos

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
)

// scoreCmd scores every bin of each input against a background that
// is either loaded from the store or estimated from all inputs.
type scoreCmd struct{}

func (cmd *scoreCmd) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	return runCommand(cmd, prog, args, stdin, stdout, stderr)
}

func (cmd *scoreCmd) run(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	outputDir := flags.String("output-dir", ".", "output `directory`")
	cfg, err := parseFlags(flags, args)
	if err != nil {
		return err
	}
	if flags.NArg() == 0 {
		return fmt.Errorf("%w: no input files", errUsage)
	}
	err = os.MkdirAll(*outputDir, 0777)
	if err != nil {
		return err
	}
	inputs, err := readInputs(flags.Args())
	if err != nil {
		return err
	}
	matrices := make([]*StateMatrix, len(inputs))
	for i, in := range inputs {
		if err := in.Matrix.Validate(cfg.States); err != nil {
			return fmt.Errorf("%s: %w", in.Name, err)
		}
		matrices[i] = in.Matrix
	}

	store := &PartialStore{Dir: cfg.BackgroundDir}
	var bg *Background
	if cfg.Reuse {
		bg, err = store.LoadBackground(cfg.Tag, cfg.Saliency, cfg.States, matrices[0].Cols)
		if err != nil {
			return err
		}
		log.Printf("%s: loaded %s", stageBackgroundMerged, store.BackgroundPath(cfg.Tag, cfg.Saliency, cfg.States, matrices[0].Cols))
	} else {
		bg, err = EstimateBackground(cfg, matrices...)
		if err != nil {
			return err
		}
		if cfg.BackgroundDir != "" {
			err = store.SaveBackground(cfg.Tag, bg)
			if err != nil {
				return err
			}
		}
	}

	for _, in := range inputs {
		log.Printf("%s: %s", stageScoring, in.Name)
		sc, err := NewScorer(bg, in.Matrix.Cols)
		if err != nil {
			return fmt.Errorf("%s: %w", in.Name, err)
		}
		scores, err := ScoreMatrix(in.Matrix, sc, cfg.Workers)
		if err != nil {
			return fmt.Errorf("%s: %w", in.Name, err)
		}
		base := filepath.Join(*outputDir, fmt.Sprintf("scores.%s.%s", cfg.Tag, in.Name))
		err = writeScores(base+".txt.gz", in.Loci, scores)
		if err != nil {
			return err
		}
		if cfg.WriteNumpy {
			err = writeNumpyFloat64(base+".npy", scores.Values, []int{scores.Rows, scores.States})
			if err != nil {
				return err
			}
		}
	}
	log.Printf("%s: %d inputs scored at %s", stageWritten, len(inputs), cfg.Saliency)
	return nil
}
