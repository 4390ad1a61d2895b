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

// pairwiseCmd compares two groups of samples over the same bins.
type pairwiseCmd struct{}

func (cmd *pairwiseCmd) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	return runCommand(cmd, prog, args, stdin, stdout, stderr)
}

func (cmd *pairwiseCmd) run(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	pathA := flags.String("a", "", "group A state `file or directory`")
	pathB := flags.String("b", "", "group B state `file or directory`")
	outputDir := flags.String("output-dir", ".", "output `directory`")
	cfg, err := parseFlags(flags, args)
	if err != nil {
		return err
	} else if flags.NArg() > 0 {
		return fmt.Errorf("%w: errant command line arguments after parsed flags: %v", errUsage, flags.Args())
	} else if *pathA == "" || *pathB == "" {
		return fmt.Errorf("%w: both -a and -b are required", errUsage)
	}
	err = os.MkdirAll(*outputDir, 0777)
	if err != nil {
		return err
	}

	loci, a, b, err := readGroups(*pathA, *pathB)
	if err != nil {
		return err
	}

	store := &PartialStore{Dir: cfg.BackgroundDir}
	var bg *Background
	if cfg.Reuse {
		bg, err = store.LoadBackground(cfg.Tag, cfg.Saliency, cfg.States, a.Cols+b.Cols)
		if err != nil {
			return err
		}
	}
	cmp, err := Compare(cfg, a, b, bg, cfg.sources())
	if err != nil {
		return err
	}
	if bg == nil {
		err = store.SaveBackground(cfg.Tag, cmp.Background)
		if err != nil {
			return err
		}
	}
	return writeComparison(cfg, *outputDir, loci, cmp)
}

// readGroups reads both groups and pairs their inputs by name. The
// paired inputs are concatenated, in name order, into one matrix per
// group.
func readGroups(pathA, pathB string) ([]Locus, *StateMatrix, *StateMatrix, error) {
	inA, err := readInputs([]string{pathA})
	if err != nil {
		return nil, nil, nil, err
	}
	inB, err := readInputs([]string{pathB})
	if err != nil {
		return nil, nil, nil, err
	}
	byName := map[string]*Input{}
	for _, in := range inB {
		byName[in.Name] = in
	}
	if len(inA) != len(inB) {
		return nil, nil, nil, fmt.Errorf("%w: group A has %d inputs, group B has %d", ErrInvalidConfiguration, len(inA), len(inB))
	}
	var loci []Locus
	var ma, mb []*StateMatrix
	for _, ia := range inA {
		ib := byName[ia.Name]
		if ib == nil && len(inA) == 1 {
			ib = inB[0]
		}
		if ib == nil {
			return nil, nil, nil, fmt.Errorf("%w: %s has no counterpart in %s", ErrInvalidConfiguration, ia.Name, pathB)
		}
		if len(ia.Loci) != len(ib.Loci) {
			return nil, nil, nil, fmt.Errorf("%w: %s: %d bins in group A, %d in group B", ErrInvalidConfiguration, ia.Name, len(ia.Loci), len(ib.Loci))
		}
		for i := range ia.Loci {
			if ia.Loci[i] != ib.Loci[i] {
				return nil, nil, nil, fmt.Errorf("%w: %s: bin %d is %s in group A, %s in group B", ErrInvalidConfiguration, ia.Name, i, ia.Loci[i], ib.Loci[i])
			}
		}
		loci = append(loci, ia.Loci...)
		ma = append(ma, ia.Matrix)
		mb = append(mb, ib.Matrix)
	}
	a, err := stackRows(ma)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("group A: %w", err)
	}
	b, err := stackRows(mb)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("group B: %w", err)
	}
	return loci, a, b, nil
}

// stackRows appends the rows of ms into one matrix.
func stackRows(ms []*StateMatrix) (*StateMatrix, error) {
	out := &StateMatrix{Cols: ms[0].Cols}
	for _, m := range ms {
		if m.Cols != out.Cols {
			return nil, fmt.Errorf("%w: inputs have %d and %d samples", ErrInvalidConfiguration, out.Cols, m.Cols)
		}
		out.Rows += m.Rows
		out.Labels = append(out.Labels, m.Labels...)
	}
	return out, nil
}

func writeComparison(cfg *Config, dir string, loci []Locus, cmp *Comparison) error {
	path := func(format string) string {
		return filepath.Join(dir, fmt.Sprintf(format, cfg.Tag))
	}
	err := writeDelta(path("pairwiseDelta.%s.txt.gz"), loci, cmp.Delta)
	if err != nil {
		return err
	}
	err = writeMetrics(path("pairwiseMetrics.%s.txt.gz"), loci, cmp.Metrics)
	if err != nil {
		return err
	}
	err = writeFitResults(path("fitResults.%s.txt"), cmp.Fit)
	if err != nil {
		return err
	}
	err = writeNumpyFloat64(path("nullDistances.%s.npy"), cmp.Null, []int{len(cmp.Null)})
	if err != nil {
		return err
	}
	if cfg.WriteNumpy {
		for _, x := range []struct {
			group  string
			scores *Scores
		}{{"groupA", cmp.ScoresA}, {"groupB", cmp.ScoresB}} {
			fnm := filepath.Join(dir, fmt.Sprintf("scores.%s.%s.npy", cfg.Tag, x.group))
			err = writeNumpyFloat64(fnm, x.scores.Values, []int{x.scores.Rows, x.scores.States})
			if err != nil {
				return err
			}
		}
	}

	hits, err := TopLoci(loci, cmp.Metrics, cfg.TopLoci)
	if err != nil {
		return err
	}
	err = writeRegions(path("greatestHits.%s.txt"), hits)
	if err != nil {
		return err
	}
	rho := cfg.Autocorr
	if cfg.FitAutocorr {
		r, err := LagAutocorrelation(cmp.Delta.Distance)
		if err != nil || !(r >= 0 && r < 1) {
			log.Warnf("cannot use estimated autocorrelation (%v, %v), using %g", r, err, rho)
		} else {
			rho = r
		}
	}
	threshold := SignificanceThreshold(len(loci), rho, cfg.Alpha)
	sig, err := SignificantLoci(loci, cmp.Metrics, threshold)
	if err != nil {
		return err
	}
	err = writeRegions(path("significantLoci.%s.txt"), sig)
	if err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"bins":        len(loci),
		"rho":         rho,
		"threshold":   threshold,
		"significant": len(sig),
		"hits":        len(hits),
	}).Printf("%s: %s", stageWritten, dir)
	return nil
}
