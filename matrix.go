// Copyright (C) The Epilogos Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package epilogos

import (
	"fmt"
)

// StateMatrix holds chromatin state labels for Rows bins and Cols
// samples, row-major. Labels are 1-based state indices.
type StateMatrix struct {
	Rows   int
	Cols   int
	Labels []uint8
}

func (m *StateMatrix) Row(i int) []uint8 {
	return m.Labels[i*m.Cols : (i+1)*m.Cols]
}

// Validate checks the matrix dimensions and that every label is a
// valid state.
func (m *StateMatrix) Validate(states int) error {
	if len(m.Labels) != m.Rows*m.Cols {
		return fmt.Errorf("%w: %d labels for %d rows x %d cols", ErrInvalidConfiguration, len(m.Labels), m.Rows, m.Cols)
	}
	for i, s := range m.Labels {
		if s < 1 || int(s) > states {
			return fmt.Errorf("%w: row %d col %d has state %d, want 1..%d", ErrInvalidState, i/m.Cols, i%m.Cols, s, states)
		}
	}
	return nil
}

// concatRows returns a matrix whose row i is a's row i followed by b's
// row i.
func concatRows(a, b *StateMatrix) (*StateMatrix, error) {
	if a.Rows != b.Rows {
		return nil, fmt.Errorf("%w: %d rows vs %d rows", ErrInvalidConfiguration, a.Rows, b.Rows)
	}
	cols := a.Cols + b.Cols
	out := &StateMatrix{Rows: a.Rows, Cols: cols, Labels: make([]uint8, a.Rows*cols)}
	for i := 0; i < a.Rows; i++ {
		row := out.Row(i)
		copy(row, a.Row(i))
		copy(row[a.Cols:], b.Row(i))
	}
	return out, nil
}

// Locus is a genome bin, 0-based half-open.
type Locus struct {
	Chrom string
	Start int64
	End   int64
}

func (l Locus) String() string {
	return fmt.Sprintf("%s:%d-%d", l.Chrom, l.Start, l.End)
}
