// Copyright (C) The Epilogos Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

// Package gennorm implements the generalized normal (exponential
// power) distribution, with density
//
//	beta / (2 scale Gamma(1/beta)) * exp(-|(x-loc)/scale|^beta)
//
// beta=2 is a normal distribution with standard deviation scale/sqrt(2);
// beta=1 is a Laplace distribution.
package gennorm

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mathext"
)

type Params struct {
	Beta  float64
	Loc   float64
	Scale float64
}

func (p Params) String() string {
	return fmt.Sprintf("beta=%g loc=%g scale=%g", p.Beta, p.Loc, p.Scale)
}

// Valid reports whether p describes a proper distribution.
func (p Params) Valid() bool {
	return p.Beta > 0 && p.Scale > 0 &&
		!math.IsInf(p.Beta, 0) && !math.IsInf(p.Scale, 0) &&
		!math.IsNaN(p.Loc) && !math.IsInf(p.Loc, 0)
}

func (p Params) LogProb(x float64) float64 {
	lg, _ := math.Lgamma(1 / p.Beta)
	z := math.Abs(x-p.Loc) / p.Scale
	return math.Log(p.Beta) - math.Log(2*p.Scale) - lg - math.Pow(z, p.Beta)
}

func (p Params) Prob(x float64) float64 {
	return math.Exp(p.LogProb(x))
}

// CDF returns P(X <= x).
func (p Params) CDF(x float64) float64 {
	z := (x - p.Loc) / p.Scale
	if math.IsInf(z, -1) {
		return 0
	} else if math.IsInf(z, 1) {
		return 1
	}
	t := math.Pow(math.Abs(z), p.Beta)
	if z < 0 {
		return 0.5 * mathext.GammaIncRegComp(1/p.Beta, t)
	}
	return 0.5 + 0.5*mathext.GammaIncReg(1/p.Beta, t)
}

// Survival returns P(X > x). Far in the upper tail it stays accurate
// where 1-CDF(x) would round to zero.
func (p Params) Survival(x float64) float64 {
	z := (x - p.Loc) / p.Scale
	if math.IsInf(z, 1) {
		return 0
	} else if math.IsInf(z, -1) {
		return 1
	}
	t := math.Pow(math.Abs(z), p.Beta)
	if z > 0 {
		return 0.5 * mathext.GammaIncRegComp(1/p.Beta, t)
	}
	return 0.5 + 0.5*mathext.GammaIncReg(1/p.Beta, t)
}

// Quantile is the inverse of CDF.
func (p Params) Quantile(q float64) float64 {
	switch {
	case q <= 0:
		return math.Inf(-1)
	case q >= 1:
		return math.Inf(1)
	case q == 0.5:
		return p.Loc
	}
	// |z|^beta ~ Gamma(1/beta), folded at loc
	y := math.Abs(2*q - 1)
	z := math.Pow(mathext.GammaIncRegInv(1/p.Beta, y), 1/p.Beta)
	if q < 0.5 {
		z = -z
	}
	return p.Loc + p.Scale*z
}

// NLL returns the negative log likelihood of data under p, or +Inf if
// p is not a valid parameterization.
func NLL(p Params, data []float64) float64 {
	if !p.Valid() {
		return math.Inf(1)
	}
	lg, _ := math.Lgamma(1 / p.Beta)
	norm := math.Log(p.Beta) - math.Log(2*p.Scale) - lg
	var sum float64
	for _, x := range data {
		sum += math.Pow(math.Abs(x-p.Loc)/p.Scale, p.Beta)
	}
	return sum - float64(len(data))*norm
}
