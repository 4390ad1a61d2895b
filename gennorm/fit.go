// Copyright (C) The Epilogos Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package gennorm

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat"
)

var (
	ErrInsufficientData = errors.New("need at least 2 data points to fit")
	ErrDegenerate       = errors.New("data has zero variance")
	ErrNoConvergence    = errors.New("fit did not reach a finite optimum")
)

const maxFuncEvaluations = 4000

// Fit returns maximum likelihood estimates of the distribution
// parameters for data.
//
// The search runs Nelder-Mead over (log beta, loc, log scale) on
// standardized data, once from Laplace moment estimates and once from
// normal moment estimates, and keeps whichever optimum has the lower
// negative log likelihood.
func Fit(data []float64) (Params, error) {
	if len(data) < 2 {
		return Params{}, fmt.Errorf("%w (got %d)", ErrInsufficientData, len(data))
	}
	mean, std := stat.MeanStdDev(data, nil)
	if !(std > 0) || math.IsInf(std, 0) {
		return Params{}, ErrDegenerate
	}
	z := make([]float64, len(data))
	for i, x := range data {
		z[i] = (x - mean) / std
	}
	sorted := append([]float64(nil), z...)
	sort.Float64s(sorted)
	median := stat.Quantile(0.5, stat.Empirical, sorted, nil)
	var mad float64
	for _, v := range z {
		mad += math.Abs(v - median)
	}
	mad /= float64(len(z))
	if mad == 0 {
		mad = 1
	}

	n := float64(len(z))
	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			p := Params{Beta: math.Exp(x[0]), Loc: x[1], Scale: math.Exp(x[2])}
			return NLL(p, z) / n
		},
	}
	settings := &optimize.Settings{
		FuncEvaluations: maxFuncEvaluations,
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-10,
			Relative:   1e-10,
			Iterations: 100,
		},
	}

	best := Params{}
	bestNLL := math.Inf(1)
	var lastErr error
	for _, start := range []Params{
		{Beta: 1, Loc: median, Scale: mad},
		{Beta: 2, Loc: 0, Scale: math.Sqrt2},
	} {
		x0 := []float64{math.Log(start.Beta), start.Loc, math.Log(start.Scale)}
		res, err := optimize.Minimize(problem, x0, settings, &optimize.NelderMead{})
		if res == nil {
			lastErr = err
			continue
		}
		// Hitting the evaluation limit still leaves a usable
		// (if slightly imprecise) optimum.
		p := Params{Beta: math.Exp(res.X[0]), Loc: res.X[1], Scale: math.Exp(res.X[2])}
		if !p.Valid() || math.IsNaN(res.F) || math.IsInf(res.F, 0) {
			lastErr = err
			continue
		}
		if res.F < bestNLL {
			best, bestNLL = p, res.F
		}
	}
	if math.IsInf(bestNLL, 1) {
		if lastErr != nil {
			return Params{}, fmt.Errorf("%w: %s", ErrNoConvergence, lastErr)
		}
		return Params{}, ErrNoConvergence
	}
	return Params{
		Beta:  best.Beta,
		Loc:   mean + std*best.Loc,
		Scale: std * best.Scale,
	}, nil
}
