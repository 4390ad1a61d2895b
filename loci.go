// Copyright (C) The Epilogos Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package epilogos

import (
	"fmt"
	"math"
	"sort"
)

// Region is a run of adjacent bins whose distances share a sign.
// Distance, Dominant and PValue come from the run's strongest bin.
type Region struct {
	Locus
	Bins     int
	Dominant int
	Distance float64
	PValue   float64
}

func (r Region) Sign() int { return sign(r.Distance) }

func sign(x float64) int {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	}
	return 0
}

// mergeBins turns selected bin indices (ascending) into regions,
// joining bins that are contiguous on the genome and have the same
// distance sign.
func mergeBins(loci []Locus, metrics []PairwiseMetric, idx []int) []Region {
	var out []Region
	for n, i := range idx {
		m := metrics[i]
		if n > 0 {
			prev := &out[len(out)-1]
			if idx[n-1] == i-1 &&
				loci[i].Chrom == prev.Chrom &&
				loci[i].Start == prev.End &&
				sign(m.Distance) == prev.Sign() {
				prev.End = loci[i].End
				prev.Bins++
				if math.Abs(m.Distance) > math.Abs(prev.Distance) {
					prev.Distance = m.Distance
					prev.Dominant = m.Dominant
				}
				if m.PValue < prev.PValue {
					prev.PValue = m.PValue
				}
				continue
			}
		}
		out = append(out, Region{
			Locus:    loci[i],
			Bins:     1,
			Dominant: m.Dominant,
			Distance: m.Distance,
			PValue:   m.PValue,
		})
	}
	return out
}

func checkLoci(loci []Locus, metrics []PairwiseMetric) error {
	if len(loci) != len(metrics) {
		return fmt.Errorf("%w: %d loci for %d bins", ErrInvalidConfiguration, len(loci), len(metrics))
	}
	return nil
}

// TopLoci returns the n bins with the largest |distance|, merged into
// regions and ordered by decreasing |distance|. Bins with zero
// distance are never reported.
func TopLoci(loci []Locus, metrics []PairwiseMetric, n int) ([]Region, error) {
	if err := checkLoci(loci, metrics); err != nil {
		return nil, err
	}
	var idx []int
	for i, m := range metrics {
		if m.Distance != 0 {
			idx = append(idx, i)
		}
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return math.Abs(metrics[idx[a]].Distance) > math.Abs(metrics[idx[b]].Distance)
	})
	if len(idx) > n {
		idx = idx[:n]
	}
	sort.Ints(idx)
	regions := mergeBins(loci, metrics, idx)
	sort.SliceStable(regions, func(a, b int) bool {
		return math.Abs(regions[a].Distance) > math.Abs(regions[b].Distance)
	})
	return regions, nil
}

// SignificantLoci returns the bins with p-value at or below threshold,
// merged into regions, in genome order.
func SignificantLoci(loci []Locus, metrics []PairwiseMetric, threshold float64) ([]Region, error) {
	if err := checkLoci(loci, metrics); err != nil {
		return nil, err
	}
	var idx []int
	for i, m := range metrics {
		if m.PValue <= threshold {
			idx = append(idx, i)
		}
	}
	return mergeBins(loci, metrics, idx), nil
}
