// Copyright (C) The Epilogos Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package epilogos

import (
	"fmt"
	"math"
	"sync"

	"github.com/meuleman/epilogos/saliency"
	log "github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"
)

// Scorer computes per-state KL scores of single bins against a fixed
// background. It is safe for concurrent use.
type Scorer struct {
	bg    *Background
	cols  int
	table []float64 // S3 only: per-cell term for one observed pair, NaN where exp=0
	obs   sync.Pool // S1/S2: *[]float64 observed distribution scratch
}

// NewScorer returns a scorer for bins of cols samples.
func NewScorer(bg *Background, cols int) (*Scorer, error) {
	if err := bg.Validate(); err != nil {
		return nil, err
	}
	if cols < saliency.MinSamples(bg.Level) {
		return nil, fmt.Errorf("%w: %s scoring needs at least %d samples, got %d", ErrInvalidConfiguration, bg.Level, saliency.MinSamples(bg.Level), cols)
	}
	sc := &Scorer{bg: bg, cols: cols}
	sc.obs.New = func() interface{} {
		buf := make([]float64, len(bg.Freq))
		return &buf
	}
	if bg.Level == saliency.S3 {
		if bg.Cols != cols {
			return nil, fmt.Errorf("%w: S3 background has %d samples, input has %d", ErrInvalidConfiguration, bg.Cols, cols)
		}
		obs := 1 / saliency.PerBinTotal(saliency.S3, cols)
		sc.table = make([]float64, len(bg.Freq))
		for i, exp := range bg.Freq {
			if exp > 0 {
				sc.table[i] = obs * math.Log2(obs/exp)
			} else {
				sc.table[i] = math.NaN()
			}
		}
	}
	return sc, nil
}

func (sc *Scorer) States() int { return sc.bg.States }

func (sc *Scorer) Level() saliency.Level { return sc.bg.Level }

// Score writes the per-state score vector for row into out, which must
// have length States().
func (sc *Scorer) Score(row []uint8, out []float64) error {
	states := sc.bg.States
	if len(out) != states {
		return fmt.Errorf("%w: score vector has %d cells, want %d", saliency.ErrShapeMismatch, len(out), states)
	}
	if len(row) != sc.cols && sc.bg.Level == saliency.S3 {
		return fmt.Errorf("%w: row has %d samples, want %d", saliency.ErrShapeMismatch, len(row), sc.cols)
	}
	for i := range out {
		out[i] = 0
	}
	exp := sc.bg.Freq
	switch sc.bg.Level {
	case saliency.S1, saliency.S2:
		bufp := sc.obs.Get().(*[]float64)
		defer sc.obs.Put(bufp)
		obs := *bufp
		if err := saliency.Observed(sc.bg.Level, states, row, obs); err != nil {
			return err
		}
		if sc.bg.Level == saliency.S1 {
			for st, o := range obs {
				t, err := saliency.Term(o, exp[st])
				if err != nil {
					return fmt.Errorf("state %d: %w", st+1, err)
				}
				out[st] = t
			}
			return nil
		}
		// S2: the pair (a,b) is credited to state b
		for a := 0; a < states; a++ {
			for b := 0; b < states; b++ {
				t, err := saliency.Term(obs[a*states+b], exp[a*states+b])
				if err != nil {
					return fmt.Errorf("states %d,%d: %w", a+1, b+1, err)
				}
				out[b] += t
			}
		}
	case saliency.S3:
		cols := sc.cols
		for i, si := range row {
			if si < 1 || int(si) > states {
				return fmt.Errorf("%w: sample %d has state %d, want 1..%d", ErrInvalidState, i, si, states)
			}
		}
		for i, si := range row {
			for j, sj := range row {
				if i == j {
					continue
				}
				t := sc.table[saliency.Index3(cols, states, i, j, int(si)-1, int(sj)-1)]
				if math.IsNaN(t) {
					return fmt.Errorf("%w: samples %d,%d states %d,%d", ErrDivergenceDomain, i, j, si, sj)
				}
				out[sj-1] += t
			}
		}
	}
	return nil
}

// BinScore summarizes one bin. Dominant is a 1-based state index.
type BinScore struct {
	Dominant int
	Total    float64
	Scores   []float64
}

// argmaxHigh returns the index of the largest element of v, preferring
// the highest index among ties.
func argmaxHigh(v []float64) int {
	best := 0
	for i, x := range v {
		if x >= v[best] {
			best = i
		}
	}
	return best
}

// Scores is a rows x states matrix of per-state bin scores.
type Scores struct {
	Rows   int
	States int
	Values []float64
}

func (s *Scores) Row(i int) []float64 {
	return s.Values[i*s.States : (i+1)*s.States]
}

func (s *Scores) Bin(i int) BinScore {
	row := s.Row(i)
	return BinScore{
		Dominant: argmaxHigh(row) + 1,
		Total:    floats.Sum(row),
		Scores:   row,
	}
}

// ScoreMatrix scores every row of m. Each worker fills only its own
// partition's rows of the result.
func ScoreMatrix(m *StateMatrix, sc *Scorer, workers int) (*Scores, error) {
	out := &Scores{Rows: m.Rows, States: sc.States(), Values: make([]float64, m.Rows*sc.States())}
	_, err := runPartitions(Partitions(m.Rows, workers), workers, func(part Partition) (struct{}, error) {
		for i := part.Start; i < part.End; i++ {
			err := sc.Score(m.Row(i), out.Row(i))
			if err != nil {
				return struct{}{}, fmt.Errorf("row %d: %w", i, err)
			}
		}
		return struct{}{}, nil
	})
	if err != nil {
		return nil, err
	}
	log.Debugf("%s: scored %d bins", stageScoresMerged, m.Rows)
	return out, nil
}
