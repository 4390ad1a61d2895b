// Copyright (C) The Epilogos Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package saliency

import (
	"errors"
	"fmt"
	"math"
)

var ErrDivergenceDomain = errors.New("expected probability is zero where observed probability is positive")

// Term returns one cell's contribution to the Kullback-Leibler
// divergence of obs from exp, in bits. A zero observation contributes
// zero regardless of exp.
func Term(obs, exp float64) (float64, error) {
	if obs == 0 {
		return 0, nil
	}
	if !(exp > 0) {
		return 0, fmt.Errorf("%w (observed %g, expected %g)", ErrDivergenceDomain, obs, exp)
	}
	return obs * math.Log2(obs/exp), nil
}
