// Copyright (C) The Epilogos Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package epilogos

import (
	"fmt"
	"math"

	"github.com/meuleman/epilogos/saliency"
	log "github.com/sirupsen/logrus"
	"golang.org/x/exp/rand"
)

// Delta holds per-bin score differences between two groups (A minus
// B) over the same bins.
type Delta struct {
	Rows     int
	States   int
	Diff     []float64 // rows x states
	Distance []float64
	Dominant []int // 1-based state with the largest |diff|
}

func (d *Delta) Row(i int) []float64 {
	return d.Diff[i*d.States : (i+1)*d.States]
}

// distance returns sign(sum(diff)) * sum(diff^2).
func distance(diff []float64) float64 {
	var sum, sq float64
	for _, x := range diff {
		sum += x
		sq += x * x
	}
	switch {
	case sum > 0:
		return sq
	case sum < 0:
		return -sq
	}
	return 0
}

// dominantDiff returns the 0-based index of the largest |diff|, ties
// going to the higher index.
func dominantDiff(diff []float64) int {
	best := 0
	for i, x := range diff {
		if math.Abs(x) >= math.Abs(diff[best]) {
			best = i
		}
	}
	return best
}

// ComputeDelta subtracts b's scores from a's.
func ComputeDelta(a, b *Scores) (*Delta, error) {
	if a.Rows != b.Rows || a.States != b.States {
		return nil, fmt.Errorf("%w: score matrices %dx%d and %dx%d", ErrInvalidConfiguration, a.Rows, a.States, b.Rows, b.States)
	}
	d := &Delta{
		Rows:     a.Rows,
		States:   a.States,
		Diff:     make([]float64, len(a.Values)),
		Distance: make([]float64, a.Rows),
		Dominant: make([]int, a.Rows),
	}
	for i := range d.Diff {
		d.Diff[i] = a.Values[i] - b.Values[i]
	}
	for i := 0; i < d.Rows; i++ {
		row := d.Row(i)
		d.Distance[i] = distance(row)
		d.Dominant[i] = dominantDiff(row) + 1
	}
	return d, nil
}

// quiescent reports whether row i has no score difference at all.
func (d *Delta) quiescent(i int) bool {
	for _, x := range d.Row(i) {
		if x != 0 {
			return false
		}
	}
	return true
}

// NullDistances returns one null distance per bin: the bin's labels
// from a and b are pooled, shuffled, split back into groups of the
// original sizes, and both halves are scored.
//
// Each partition draws from its own source, so results for a seeded
// Sources do not depend on the number of concurrent workers as long as
// the partitioning is the same.
func NullDistances(a, b *StateMatrix, sc *Scorer, workers int, sources Sources) ([]float64, error) {
	both, err := concatRows(a, b)
	if err != nil {
		return nil, err
	}
	return nullDistances(both, a.Cols, sc, workers, sources)
}

// nullDistances shuffles each row of both and splits it after the
// first split labels.
func nullDistances(both *StateMatrix, split int, sc *Scorer, workers int, sources Sources) ([]float64, error) {
	null := make([]float64, both.Rows)
	states := sc.States()
	_, err := runPartitions(Partitions(both.Rows, workers), workers, func(part Partition) (struct{}, error) {
		r := rand.New(sources(stageNullGenerating, part.Index))
		labels := make([]uint8, both.Cols)
		sa := make([]float64, states)
		sb := make([]float64, states)
		for i := part.Start; i < part.End; i++ {
			copy(labels, both.Row(i))
			shuffle(r, labels)
			if err := sc.Score(labels[:split], sa); err != nil {
				return struct{}{}, fmt.Errorf("row %d: %w", i, err)
			}
			if err := sc.Score(labels[split:], sb); err != nil {
				return struct{}{}, fmt.Errorf("row %d: %w", i, err)
			}
			for s := range sa {
				sa[s] -= sb[s]
			}
			null[i] = distance(sa)
		}
		return struct{}{}, nil
	})
	if err != nil {
		return nil, err
	}
	return null, nil
}

// nullPool returns the null distances of bins whose observed scores
// differ at all. Bins where both groups score identically (typically
// quiescent regions) would otherwise swamp the fit with a spike at
// zero.
func nullPool(d *Delta, null []float64) []float64 {
	pool := make([]float64, 0, len(null))
	for i, x := range null {
		if !d.quiescent(i) {
			pool = append(pool, x)
		}
	}
	return pool
}

// PairwiseMetric is the per-bin result of a comparison.
type PairwiseMetric struct {
	Dominant int
	Distance float64
	PValue   float64
}

type Comparison struct {
	Background *Background
	ScoresA    *Scores
	ScoresB    *Scores
	Delta      *Delta
	Null       []float64
	Fit        *NullFit
	Metrics    []PairwiseMetric
}

// Compare scores two groups of samples over the same bins against a
// shared background, builds the permutation null, fits it, and
// assigns a p-value to every bin. If bg is nil it is estimated from
// the union of a and b.
func Compare(cfg *Config, a, b *StateMatrix, bg *Background, sources Sources) (*Comparison, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Saliency == saliency.S3 {
		return nil, fmt.Errorf("%w: pairwise comparison is not supported at saliency level 3", ErrInvalidConfiguration)
	}
	if a.Rows != b.Rows {
		return nil, fmt.Errorf("%w: groups cover %d and %d bins", ErrInvalidConfiguration, a.Rows, b.Rows)
	}
	for _, m := range []*StateMatrix{a, b} {
		if err := m.Validate(cfg.States); err != nil {
			return nil, err
		}
	}
	both, err := concatRows(a, b)
	if err != nil {
		return nil, err
	}
	if bg == nil {
		// any pair a shuffled half can hold is a pair within its union bin
		bg, err = EstimateBackground(cfg, both)
		if err != nil {
			return nil, err
		}
	} else if bg.Level != cfg.Saliency || bg.States != cfg.States {
		return nil, fmt.Errorf("%w: background is %s with %d states, want %s with %d", ErrInvalidConfiguration, bg.Level, bg.States, cfg.Saliency, cfg.States)
	}
	cmp := &Comparison{Background: bg}

	log.Printf("%s: %d bins, %d vs %d samples", stageScoring, a.Rows, a.Cols, b.Cols)
	for _, x := range []struct {
		m   *StateMatrix
		out **Scores
	}{{a, &cmp.ScoresA}, {b, &cmp.ScoresB}} {
		sc, err := NewScorer(bg, x.m.Cols)
		if err != nil {
			return nil, err
		}
		*x.out, err = ScoreMatrix(x.m, sc, cfg.Workers)
		if err != nil {
			return nil, err
		}
	}
	cmp.Delta, err = ComputeDelta(cmp.ScoresA, cmp.ScoresB)
	if err != nil {
		return nil, err
	}
	log.Printf("%s", stageScoresMerged)

	log.Printf("%s", stageNullGenerating)
	nullScorer, err := NewScorer(bg, a.Cols)
	if err != nil {
		return nil, err
	}
	cmp.Null, err = nullDistances(both, a.Cols, nullScorer, cfg.Workers, sources)
	if err != nil {
		return nil, err
	}

	pool := nullPool(cmp.Delta, cmp.Null)
	log.Printf("%s: %d of %d null distances from non-quiescent bins", stageDistributionFit, len(pool), len(cmp.Null))
	cmp.Fit, err = FitNull(pool, cfg.Trials, cfg.SampleSize, cfg.Workers, sources)
	if err != nil {
		return nil, err
	}

	log.Printf("%s: %s", stagePValuing, cmp.Fit.Params)
	pvals := PValues(cmp.Delta.Distance, cmp.Fit.Params)
	cmp.Metrics = make([]PairwiseMetric, a.Rows)
	for i := range cmp.Metrics {
		cmp.Metrics[i] = PairwiseMetric{
			Dominant: cmp.Delta.Dominant[i],
			Distance: cmp.Delta.Distance[i],
			PValue:   pvals[i],
		}
	}
	return cmp, nil
}
