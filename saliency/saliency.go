// Copyright (C) The Epilogos Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

// Package saliency implements the combinatorial counting rules shared
// by background estimation and per-bin scoring.
//
// A bin is a vector of C chromatin state labels, one per sample, each
// in [1..K]. The saliency level selects what is counted in a bin:
//
//	S1  single states                                  shape K
//	S2  unordered state pairs over sample pairs        shape K x K
//	S3  (sample,state) pairs over ordered sample pairs shape C x C x K x K
//
// All tensors are flat row-major []float64 slices.
package saliency

import (
	"errors"
	"fmt"
)

type Level int

const (
	S1 Level = 1
	S2 Level = 2
	S3 Level = 3
)

var (
	ErrInvalidLevel  = errors.New("unsupported saliency level")
	ErrInvalidState  = errors.New("state label out of range")
	ErrTooFewSamples = errors.New("too few samples per bin")
	ErrShapeMismatch = errors.New("tensor shape mismatch")
)

func (l Level) Validate() error {
	switch l {
	case S1, S2, S3:
		return nil
	}
	return fmt.Errorf("%w: %d (must be 1, 2, or 3)", ErrInvalidLevel, int(l))
}

func (l Level) String() string {
	return fmt.Sprintf("S%d", int(l))
}

// Shape returns the dimensions of the tensor counted at level l. cols
// only matters for S3.
func Shape(l Level, states, cols int) []int {
	switch l {
	case S1:
		return []int{states}
	case S2:
		return []int{states, states}
	case S3:
		return []int{cols, cols, states, states}
	}
	return nil
}

// Size returns the number of cells in Shape(l, states, cols).
func Size(l Level, states, cols int) int {
	shape := Shape(l, states, cols)
	if shape == nil {
		return 0
	}
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}

// PerBinTotal returns the number of ways to pick the counted structure
// from one bin with cols labels: C for S1, C(C,2) for S2, C(C-1) for
// S3.
func PerBinTotal(l Level, cols int) float64 {
	c := float64(cols)
	switch l {
	case S1:
		return c
	case S2:
		return c * (c - 1) / 2
	case S3:
		return c * (c - 1)
	}
	return 0
}

// MinSamples is the smallest bin width for which level l is defined.
func MinSamples(l Level) int {
	if l == S1 {
		return 1
	}
	return 2
}

// Index3 returns the flat offset of cell (i, j, a, b) in an S3 tensor,
// with a and b 0-based state indices.
func Index3(cols, states, i, j, a, b int) int {
	return ((i*cols+j)*states+a)*states + b
}

// Counts fills counts[s-1] with the number of occurrences of state s
// in row.
func Counts(row []uint8, states int, counts []int) error {
	for i := range counts {
		counts[i] = 0
	}
	for col, s := range row {
		if s < 1 || int(s) > states {
			return fmt.Errorf("%w: sample %d has state %d, want 1..%d", ErrInvalidState, col, s, states)
		}
		counts[s-1]++
	}
	return nil
}

func checkRow(l Level, row []uint8) error {
	if err := l.Validate(); err != nil {
		return err
	}
	if len(row) < MinSamples(l) {
		return fmt.Errorf("%w: %s needs at least %d samples, bin has %d", ErrTooFewSamples, l, MinSamples(l), len(row))
	}
	return nil
}

// Tally adds one bin's contribution to acc, which must hold
// Size(l, states, len(row)) cells.
//
// For S1 and S2 the contribution is already a probability (it sums to
// 1 over the bin): count/C per state for S1; for S2 a pair of distinct
// states (a,b) with counts x and y adds x*y/C(C,2), split evenly over
// the symmetric cells (a,b) and (b,a), and a repeated state adds
// C(x,2)/C(C,2) to its diagonal cell. For S3 every ordered pair of
// distinct samples (i,j) adds 1 to cell (i, j, state(i), state(j)), so
// the bin contributes C(C-1) in total.
func Tally(l Level, states int, row []uint8, acc []float64) error {
	if err := checkRow(l, row); err != nil {
		return err
	}
	cols := len(row)
	if want := Size(l, states, cols); len(acc) != want {
		return fmt.Errorf("%w: accumulator has %d cells, %s with %d states and %d samples needs %d", ErrShapeMismatch, len(acc), l, states, cols, want)
	}
	total := PerBinTotal(l, cols)
	switch l {
	case S1:
		counts := make([]int, states)
		if err := Counts(row, states, counts); err != nil {
			return err
		}
		for s, n := range counts {
			if n > 0 {
				acc[s] += float64(n) / total
			}
		}
	case S2:
		counts := make([]int, states)
		if err := Counts(row, states, counts); err != nil {
			return err
		}
		for a, x := range counts {
			if x == 0 {
				continue
			}
			if x > 1 {
				acc[a*states+a] += float64(x*(x-1)/2) / total
			}
			for b := a + 1; b < states; b++ {
				y := counts[b]
				if y == 0 {
					continue
				}
				half := float64(x*y) / 2 / total
				acc[a*states+b] += half
				acc[b*states+a] += half
			}
		}
	case S3:
		for col, s := range row {
			if s < 1 || int(s) > states {
				return fmt.Errorf("%w: sample %d has state %d, want 1..%d", ErrInvalidState, col, s, states)
			}
		}
		for i, si := range row {
			for j, sj := range row {
				if i == j {
					continue
				}
				acc[Index3(cols, states, i, j, int(si)-1, int(sj)-1)]++
			}
		}
	}
	return nil
}

// Observed writes the bin's observed probability distribution into obs
// (zeroing it first). It sums to 1 over the support.
func Observed(l Level, states int, row []uint8, obs []float64) error {
	for i := range obs {
		obs[i] = 0
	}
	if err := Tally(l, states, row, obs); err != nil {
		return err
	}
	if l == S3 {
		w := 1 / PerBinTotal(l, len(row))
		for i, v := range obs {
			if v != 0 {
				obs[i] = v * w
			}
		}
	}
	return nil
}
