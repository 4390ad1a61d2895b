// Copyright (C) The Epilogos Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package epilogos

import (
	"errors"
	"math/rand"

	"github.com/meuleman/epilogos/saliency"
	"gonum.org/v1/gonum/floats"
	"gopkg.in/check.v1"
)

type backgroundSuite struct{}

var _ = check.Suite(&backgroundSuite{})

func (s *backgroundSuite) TestPartitions(c *check.C) {
	c.Check(Partitions(10, 3), check.DeepEquals, []Partition{
		{Index: 0, Start: 0, End: 3},
		{Index: 1, Start: 3, End: 6},
		{Index: 2, Start: 6, End: 10},
	})
	c.Check(Partitions(2, 8), check.HasLen, 2)
	c.Check(Partitions(0, 4), check.HasLen, 0)
	covered := 0
	for _, p := range Partitions(1001, 7) {
		c.Check(p.Start, check.Equals, covered)
		covered = p.End
	}
	c.Check(covered, check.Equals, 1001)
}

func (s *backgroundSuite) TestRunPartitionsFirstError(c *check.C) {
	parts := Partitions(100, 10)
	out, err := runPartitions(parts, 3, func(p Partition) (int, error) {
		return p.End - p.Start, nil
	})
	c.Assert(err, check.IsNil)
	c.Check(out, check.DeepEquals, []int{10, 10, 10, 10, 10, 10, 10, 10, 10, 10})

	boom := errors.New("boom")
	_, err = runPartitions(parts, 1, func(p Partition) (int, error) {
		if p.Index == 2 {
			return 0, boom
		}
		return 0, nil
	})
	c.Check(errors.Is(err, boom), check.Equals, true)
	c.Check(err, check.ErrorMatches, `partition 2 \(rows 20-30\): boom`)
}

func (s *backgroundSuite) TestMergeTwoPartitions(c *check.C) {
	// Two single-bin partitions with S1 counts [3,1] and [1,3] merge
	// to [4,4]; the result must match one pass over both bins.
	m := matrixOf([]uint8{1, 1, 1, 2}, []uint8{1, 2, 2, 2})
	p1, err := EstimatePartition(m, Partition{Index: 0, Start: 0, End: 1}, saliency.S1, 2)
	c.Assert(err, check.IsNil)
	p2, err := EstimatePartition(m, Partition{Index: 1, Start: 1, End: 2}, saliency.S1, 2)
	c.Assert(err, check.IsNil)
	c.Check(p1.Counts, check.DeepEquals, []float64{0.75, 0.25})
	c.Check(p2.Counts, check.DeepEquals, []float64{0.25, 0.75})
	merged, err := MergeAccumulators([]*Accumulator{p1, p2})
	c.Assert(err, check.IsNil)
	c.Check(merged.Rows, check.Equals, int64(2))
	bg, err := merged.Normalize()
	c.Assert(err, check.IsNil)
	c.Check(bg.Freq, check.DeepEquals, []float64{0.5, 0.5})

	single, err := EstimatePartition(m, Partition{Start: 0, End: 2}, saliency.S1, 2)
	c.Assert(err, check.IsNil)
	bg1, err := single.Normalize()
	c.Assert(err, check.IsNil)
	c.Check(bg1.Freq, check.DeepEquals, bg.Freq)
}

func (s *backgroundSuite) TestPartitioningDoesNotMatter(c *check.C) {
	rnd := rand.New(rand.NewSource(7))
	m := randomMatrix(rnd, 230, 6, 1, 5)
	for _, level := range []saliency.Level{saliency.S1, saliency.S2, saliency.S3} {
		cfg := testConfig(level, 5)
		cfg.Workers = 1
		want, err := EstimateBackground(cfg, m)
		c.Assert(err, check.IsNil)
		for _, workers := range []int{2, 7, 300} {
			cfg.Workers = workers
			got, err := EstimateBackground(cfg, m)
			c.Assert(err, check.IsNil)
			c.Check(allClose(got.Freq, want.Freq, 1e-12), check.Equals, true, check.Commentf("%s workers=%d", level, workers))
		}
		c.Check(closeTo(floats.Sum(want.Freq), 1, 1e-9), check.Equals, true)
		c.Check(want.Shape(), check.DeepEquals, saliency.Shape(level, 5, 6))
	}
}

func (s *backgroundSuite) TestMergeOrderIndependent(c *check.C) {
	rnd := rand.New(rand.NewSource(3))
	m := randomMatrix(rnd, 50, 4, 1, 3)
	var accs []*Accumulator
	for _, p := range Partitions(m.Rows, 5) {
		acc, err := EstimatePartition(m, p, saliency.S2, 3)
		c.Assert(err, check.IsNil)
		accs = append(accs, acc)
	}
	fwd, err := MergeAccumulators(accs)
	c.Assert(err, check.IsNil)
	rev := make([]*Accumulator, len(accs))
	for i, acc := range accs {
		rev[len(accs)-1-i] = acc
	}
	bwd, err := MergeAccumulators(rev)
	c.Assert(err, check.IsNil)
	c.Check(bwd.Rows, check.Equals, fwd.Rows)
	c.Check(allClose(bwd.Counts, fwd.Counts, 1e-12), check.Equals, true)
}

func (s *backgroundSuite) TestUnionOfDifferentWidths(c *check.C) {
	// S1/S2 partials from inputs with different sample counts merge.
	a := matrixOf([]uint8{1, 1, 2, 2})
	b := matrixOf([]uint8{1, 2})
	cfg := testConfig(saliency.S2, 2)
	bg, err := EstimateBackground(cfg, a, b)
	c.Assert(err, check.IsNil)
	c.Check(closeTo(floats.Sum(bg.Freq), 1, 1e-12), check.Equals, true)

	cfg = testConfig(saliency.S3, 2)
	_, err = EstimateBackground(cfg, a, b)
	c.Check(errors.Is(err, ErrPartialMerge), check.Equals, true)
}

func (s *backgroundSuite) TestMergeErrors(c *check.C) {
	_, err := MergeAccumulators(nil)
	c.Check(errors.Is(err, ErrPartialMerge), check.Equals, true)
	ok := NewAccumulator(saliency.S1, 3, 4)
	_, err = MergeAccumulators([]*Accumulator{ok, nil})
	c.Check(errors.Is(err, ErrPartialMerge), check.Equals, true)
	_, err = MergeAccumulators([]*Accumulator{ok, NewAccumulator(saliency.S2, 3, 4)})
	c.Check(errors.Is(err, ErrPartialMerge), check.Equals, true)
	_, err = MergeAccumulators([]*Accumulator{ok, NewAccumulator(saliency.S1, 4, 4)})
	c.Check(errors.Is(err, ErrPartialMerge), check.Equals, true)
	_, err = ok.Normalize()
	c.Check(errors.Is(err, ErrPartialMerge), check.Equals, true)
}

func (s *backgroundSuite) TestInvalidLabels(c *check.C) {
	m := matrixOf([]uint8{1, 2}, []uint8{3, 9})
	cfg := testConfig(saliency.S1, 3)
	_, err := EstimateBackground(cfg, m)
	c.Check(errors.Is(err, ErrInvalidState), check.Equals, true)
	c.Check(errors.Is(m.Validate(3), ErrInvalidState), check.Equals, true)

	cfg = testConfig(saliency.S2, 3)
	_, err = EstimateBackground(cfg, matrixOf([]uint8{1}, []uint8{2}))
	c.Check(errors.Is(err, ErrInvalidConfiguration), check.Equals, true)
}
