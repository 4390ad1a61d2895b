// Copyright (C) The Epilogos Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package epilogos

import (
	"fmt"
	"sort"

	"github.com/meuleman/epilogos/gennorm"
	"github.com/montanaflynn/stats"
	log "github.com/sirupsen/logrus"
	"golang.org/x/exp/rand"
	"golang.org/x/sync/errgroup"
)

// FitTrial is one bootstrap fit of the null distribution. NLL is
// measured on the full null pool, not just the trial's sample.
type FitTrial struct {
	Trial  int
	Params gennorm.Params
	NLL    float64
}

// NullFit is the outcome of FitNull. Trials are sorted by NLL and
// Params is Trials[Selected].Params.
type NullFit struct {
	Trials   []FitTrial
	Selected int
	Params   gennorm.Params
}

// bootstrapSample draws n values from pool without replacement. If
// pool has no more than n values, a copy of the whole pool is returned.
func bootstrapSample(r *rand.Rand, pool []float64, n int) []float64 {
	if len(pool) <= n {
		return append([]float64(nil), pool...)
	}
	// partial Fisher-Yates over a sparse index permutation
	swapped := make(map[int]int, n)
	at := func(i int) int {
		if j, ok := swapped[i]; ok {
			return j
		}
		return i
	}
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		j := i + r.Intn(len(pool)-i)
		vi, vj := at(i), at(j)
		swapped[j] = vi
		out[i] = pool[vj]
	}
	return out
}

// medianIndex returns the index selected from n trials sorted by NLL.
func medianIndex(n int) int {
	return (n - 1) / 2
}

// FitNull fits a generalized normal distribution to pool trials
// times, each time on a random subsample of sampleSize values, and
// selects the trial with the median NLL.
func FitNull(pool []float64, trials, sampleSize, workers int, sources Sources) (*NullFit, error) {
	if trials < 1 {
		return nil, fmt.Errorf("%w: trials=%d", ErrInvalidConfiguration, trials)
	}
	if len(pool) < 2 {
		return nil, fmt.Errorf("null distribution has %d non-quiescent bins, cannot fit", len(pool))
	}
	results := make([]FitTrial, trials)
	var eg errgroup.Group
	eg.SetLimit(workers)
	for t := 0; t < trials; t++ {
		t := t
		eg.Go(func() error {
			r := rand.New(sources(stageDistributionFit, t))
			sample := bootstrapSample(r, pool, sampleSize)
			params, err := gennorm.Fit(sample)
			if err != nil {
				return fmt.Errorf("fit trial %d: %w", t, err)
			}
			results[t] = FitTrial{Trial: t, Params: params, NLL: gennorm.NLL(params, pool)}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].NLL < results[j].NLL })
	sel := medianIndex(len(results))
	fit := &NullFit{Trials: results, Selected: sel, Params: results[sel].Params}

	nlls := make([]float64, len(results))
	for i, tr := range results {
		nlls[i] = tr.NLL
	}
	lo, _ := stats.Min(nlls)
	med, _ := stats.Median(nlls)
	hi, _ := stats.Max(nlls)
	log.WithFields(log.Fields{
		"trials":   trials,
		"pool":     len(pool),
		"nllMin":   lo,
		"nllMed":   med,
		"nllMax":   hi,
		"selected": results[sel].Trial,
	}).Infof("fit null distribution: %s", fit.Params)
	return fit, nil
}
