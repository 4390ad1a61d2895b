// Copyright (C) The Epilogos Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package epilogos

import (
	"fmt"

	"github.com/meuleman/epilogos/gennorm"
	"github.com/montanaflynn/stats"
)

// pvalue returns the two-sided p-value of x under the fitted null.
func pvalue(x float64, null gennorm.Params) float64 {
	var p float64
	if x <= null.Loc {
		p = 2 * null.CDF(x)
	} else {
		p = 2 * null.Survival(x)
	}
	if p > 1 {
		p = 1
	}
	return p
}

func PValues(distances []float64, null gennorm.Params) []float64 {
	out := make([]float64, len(distances))
	for i, x := range distances {
		out[i] = pvalue(x, null)
	}
	return out
}

// EffectiveBins estimates the number of independent bins among n
// bins whose scores have lag-1 autocorrelation rho.
func EffectiveBins(n int, rho float64) float64 {
	eff := float64(n) * (1 - rho) / (1 + rho)
	if eff < 1 {
		eff = 1
	}
	return eff
}

// SignificanceThreshold returns the Bonferroni-style p-value cutoff
// alpha/n*, with n* the effective number of bins.
func SignificanceThreshold(n int, rho, alpha float64) float64 {
	return alpha / EffectiveBins(n, rho)
}

// LagAutocorrelation returns the lag-1 autocorrelation of per-bin
// values in genome order.
func LagAutocorrelation(x []float64) (float64, error) {
	if len(x) < 3 {
		return 0, fmt.Errorf("need at least 3 bins to estimate autocorrelation, have %d", len(x))
	}
	return stats.Correlation(x[1:], x[:len(x)-1])
}
