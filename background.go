// Copyright (C) The Epilogos Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package epilogos

import (
	"fmt"
	"math"

	"github.com/meuleman/epilogos/saliency"
	log "github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"
)

// Accumulator holds unnormalized saliency tallies for some number of
// bins. For S1 and S2 each bin contributes a probability distribution,
// so accumulators built from inputs with different sample counts can
// be added together. For S3 each bin contributes C(C-1) raw counts and
// Cols must agree.
type Accumulator struct {
	Level  saliency.Level
	States int
	Cols   int
	Rows   int64
	Counts []float64
}

func NewAccumulator(level saliency.Level, states, cols int) *Accumulator {
	return &Accumulator{
		Level:  level,
		States: states,
		Cols:   cols,
		Counts: make([]float64, saliency.Size(level, states, cols)),
	}
}

func (acc *Accumulator) AddRow(row []uint8) error {
	err := saliency.Tally(acc.Level, acc.States, row, acc.Counts)
	if err != nil {
		return err
	}
	acc.Rows++
	return nil
}

// Add adds other's tallies to acc.
func (acc *Accumulator) Add(other *Accumulator) error {
	if other.Level != acc.Level || other.States != acc.States {
		return fmt.Errorf("%w: %s/%d states vs %s/%d states", ErrPartialMerge, acc.Level, acc.States, other.Level, other.States)
	}
	if acc.Level == saliency.S3 && other.Cols != acc.Cols {
		return fmt.Errorf("%w: S3 partials with %d and %d samples", ErrPartialMerge, acc.Cols, other.Cols)
	}
	if len(other.Counts) != len(acc.Counts) {
		return fmt.Errorf("%w: %d cells vs %d cells", ErrPartialMerge, len(acc.Counts), len(other.Counts))
	}
	floats.Add(acc.Counts, other.Counts)
	acc.Rows += other.Rows
	return nil
}

// Normalize converts the tallies to a background distribution.
func (acc *Accumulator) Normalize() (*Background, error) {
	if acc.Rows == 0 {
		return nil, fmt.Errorf("%w: no bins were tallied", ErrPartialMerge)
	}
	denom := float64(acc.Rows)
	if acc.Level == saliency.S3 {
		denom *= saliency.PerBinTotal(acc.Level, acc.Cols)
	}
	freq := make([]float64, len(acc.Counts))
	copy(freq, acc.Counts)
	floats.Scale(1/denom, freq)
	bg := &Background{Level: acc.Level, States: acc.States, Cols: acc.Cols, Freq: freq}
	return bg, bg.Validate()
}

// Background is the expected frequency tensor for one saliency level.
// It is read-only once built. Cols is only meaningful for S3.
type Background struct {
	Level  saliency.Level
	States int
	Cols   int
	Freq   []float64
}

func (bg *Background) Shape() []int {
	return saliency.Shape(bg.Level, bg.States, bg.Cols)
}

const sumTolerance = 1e-6

func (bg *Background) Validate() error {
	if err := bg.Level.Validate(); err != nil {
		return err
	}
	if want := saliency.Size(bg.Level, bg.States, bg.Cols); len(bg.Freq) != want {
		return fmt.Errorf("%w: background has %d cells, want %d", saliency.ErrShapeMismatch, len(bg.Freq), want)
	}
	for _, f := range bg.Freq {
		if f < 0 || math.IsNaN(f) {
			return fmt.Errorf("invalid background frequency %g", f)
		}
	}
	if sum := floats.Sum(bg.Freq); math.Abs(sum-1) > sumTolerance {
		return fmt.Errorf("background frequencies sum to %g, not 1", sum)
	}
	return nil
}

// EstimatePartition tallies the rows of m in part.
func EstimatePartition(m *StateMatrix, part Partition, level saliency.Level, states int) (*Accumulator, error) {
	acc := NewAccumulator(level, states, m.Cols)
	for i := part.Start; i < part.End; i++ {
		err := acc.AddRow(m.Row(i))
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
	}
	return acc, nil
}

// EstimatePartials splits each matrix into cfg.Workers partitions and
// tallies them concurrently. The returned partials are ordered by
// matrix, then partition.
func EstimatePartials(cfg *Config, matrices ...*StateMatrix) ([]*Accumulator, error) {
	var all []*Accumulator
	for mi, m := range matrices {
		if m.Cols < saliency.MinSamples(cfg.Saliency) {
			return nil, fmt.Errorf("%w: input %d has %d samples, %s needs at least %d", ErrInvalidConfiguration, mi, m.Cols, cfg.Saliency, saliency.MinSamples(cfg.Saliency))
		}
		parts := Partitions(m.Rows, cfg.Workers)
		accs, err := runPartitions(parts, cfg.Workers, func(part Partition) (*Accumulator, error) {
			return EstimatePartition(m, part, cfg.Saliency, cfg.States)
		})
		if err != nil {
			return nil, err
		}
		all = append(all, accs...)
	}
	return all, nil
}

// EstimateBackground computes the background distribution over the
// union of all bins in matrices.
func EstimateBackground(cfg *Config, matrices ...*StateMatrix) (*Background, error) {
	log.Printf("%s: estimating %s background over %d inputs", stageEstimating, cfg.Saliency, len(matrices))
	accs, err := EstimatePartials(cfg, matrices...)
	if err != nil {
		return nil, err
	}
	merged, err := MergeAccumulators(accs)
	if err != nil {
		return nil, err
	}
	bg, err := merged.Normalize()
	if err != nil {
		return nil, err
	}
	log.Printf("%s: %d bins", stageBackgroundMerged, merged.Rows)
	return bg, nil
}
