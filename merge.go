// Copyright (C) The Epilogos Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package epilogos

import (
	"fmt"

	log "github.com/sirupsen/logrus"
)

// Partition is a contiguous range of rows [Start, End) of one input
// matrix, processed by a single worker.
type Partition struct {
	Index int
	Start int
	End   int
}

// Partitions splits rows into at most n contiguous, non-empty ranges
// of nearly equal size.
func Partitions(rows, n int) []Partition {
	if n < 1 {
		n = 1
	}
	if n > rows {
		n = rows
	}
	var parts []Partition
	for i := 0; i < n; i++ {
		start, end := i*rows/n, (i+1)*rows/n
		if start == end {
			continue
		}
		parts = append(parts, Partition{Index: len(parts), Start: start, End: end})
	}
	return parts
}

// runPartitions calls fn for each partition, at most workers at a
// time, and returns the results ordered by partition index. The first
// error aborts the stage: partitions not yet started are skipped, and
// that error is returned once running workers have finished.
func runPartitions[T any](parts []Partition, workers int, fn func(Partition) (T, error)) ([]T, error) {
	out := make([]T, len(parts))
	thr := throttle{Max: workers}
	for _, part := range parts {
		part := part
		err := thr.Go(func() error {
			ret, err := fn(part)
			if err != nil {
				return fmt.Errorf("partition %d (rows %d-%d): %w", part.Index, part.Start, part.End, err)
			}
			out[part.Index] = ret
			return nil
		})
		if err != nil {
			break
		}
	}
	if err := thr.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// MergeAccumulators sums partial accumulators into a new one. The
// result does not depend on the order of accs.
func MergeAccumulators(accs []*Accumulator) (*Accumulator, error) {
	if len(accs) == 0 {
		return nil, fmt.Errorf("%w: no partials", ErrPartialMerge)
	}
	var merged *Accumulator
	for i, acc := range accs {
		if acc == nil {
			return nil, fmt.Errorf("%w: partial %d is missing", ErrPartialMerge, i)
		}
		if merged == nil {
			merged = NewAccumulator(acc.Level, acc.States, acc.Cols)
		}
		err := merged.Add(acc)
		if err != nil {
			return nil, fmt.Errorf("partial %d: %w", i, err)
		}
	}
	log.WithFields(log.Fields{
		"partials": len(accs),
		"rows":     merged.Rows,
		"level":    merged.Level,
	}).Debug("merged partial accumulators")
	return merged, nil
}
