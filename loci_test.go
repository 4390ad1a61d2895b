// Copyright (C) The Epilogos Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package epilogos

import (
	"gopkg.in/check.v1"
)

type lociSuite struct{}

var _ = check.Suite(&lociSuite{})

func binLoci(chroms ...string) []Locus {
	var loci []Locus
	var pos int64
	for i, chr := range chroms {
		if i > 0 && chroms[i-1] != chr {
			pos = 0
		}
		loci = append(loci, Locus{Chrom: chr, Start: pos, End: pos + 200})
		pos += 200
	}
	return loci
}

func (s *lociSuite) TestSignificantMerge(c *check.C) {
	loci := binLoci("chr1", "chr1", "chr1", "chr1", "chr2", "chr2")
	metrics := []PairwiseMetric{
		{Dominant: 1, Distance: 2, PValue: 0.001},
		{Dominant: 3, Distance: 5, PValue: 0.0001},
		{Dominant: 2, Distance: -4, PValue: 0.001}, // sign change
		{Dominant: 2, Distance: 1, PValue: 0.5},    // not significant
		{Dominant: 4, Distance: 3, PValue: 0.01},   // new chromosome
		{Dominant: 4, Distance: 3, PValue: 0.01},
	}
	regions, err := SignificantLoci(loci, metrics, 0.05)
	c.Assert(err, check.IsNil)
	c.Assert(regions, check.HasLen, 3)
	c.Check(regions[0], check.DeepEquals, Region{
		Locus:    Locus{"chr1", 0, 400},
		Bins:     2,
		Dominant: 3,
		Distance: 5,
		PValue:   0.0001,
	})
	c.Check(regions[1].Sign(), check.Equals, -1)
	c.Check(regions[1].Locus, check.Equals, Locus{"chr1", 400, 600})
	c.Check(regions[2].Locus, check.Equals, Locus{"chr2", 0, 400})
	c.Check(regions[2].Bins, check.Equals, 2)
}

func (s *lociSuite) TestTopLoci(c *check.C) {
	loci := binLoci("chr1", "chr1", "chr1", "chr1", "chr1")
	metrics := []PairwiseMetric{
		{Distance: 1},
		{Distance: -9},
		{Distance: 0},
		{Distance: 7},
		{Distance: 6},
	}
	regions, err := TopLoci(loci, metrics, 3)
	c.Assert(err, check.IsNil)
	c.Assert(regions, check.HasLen, 2)
	c.Check(regions[0].Distance, check.Equals, -9.0)
	c.Check(regions[1].Locus, check.Equals, Locus{"chr1", 600, 1000})
	c.Check(regions[1].Distance, check.Equals, 7.0)

	regions, err = TopLoci(loci, metrics, 100)
	c.Assert(err, check.IsNil)
	c.Check(regions, check.HasLen, 3)

	_, err = TopLoci(loci[:2], metrics, 3)
	c.Check(err, check.NotNil)
}
