// Copyright (C) The Epilogos Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package epilogos

import (
	"errors"
	"syscall"

	"github.com/meuleman/epilogos/saliency"
)

var (
	ErrInvalidConfiguration = errors.New("invalid configuration")
	ErrMissingBackground    = errors.New("stored background not found")
	ErrPartialMerge         = errors.New("cannot merge partial accumulators")

	ErrDivergenceDomain = saliency.ErrDivergenceDomain
	ErrInvalidState     = saliency.ErrInvalidState
)

// isBusy reports whether err is EBUSY ("device or resource busy"),
// which some network filesystems return when closing a file that was
// written successfully.
func isBusy(err error) bool {
	return errors.Is(err, syscall.EBUSY)
}
