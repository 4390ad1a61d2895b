// Copyright (C) The Epilogos Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package epilogos

import (
	"errors"
	"math"
	"math/rand"
	"sort"

	"github.com/meuleman/epilogos/gennorm"
	"github.com/meuleman/epilogos/saliency"
	xrand "golang.org/x/exp/rand"
	"gopkg.in/check.v1"
)

type pairwiseSuite struct{}

var _ = check.Suite(&pairwiseSuite{})

func (s *pairwiseSuite) TestDistance(c *check.C) {
	c.Check(distance([]float64{1, -0.5}), check.Equals, 1.25)
	c.Check(distance([]float64{-1, 0.5}), check.Equals, -1.25)
	c.Check(distance([]float64{1, -1}), check.Equals, 0.0)
	c.Check(distance([]float64{0, 0}), check.Equals, 0.0)
	c.Check(dominantDiff([]float64{-2, 2}), check.Equals, 1)
	c.Check(dominantDiff([]float64{-3, 2, 0}), check.Equals, 0)
}

func (s *pairwiseSuite) TestDeltaAntisymmetric(c *check.C) {
	a := &Scores{Rows: 2, States: 3, Values: []float64{1, 0, 0.5, 0, 0.25, 0}}
	b := &Scores{Rows: 2, States: 3, Values: []float64{0, 2, 0.5, 0, 0.25, 0}}
	ab, err := ComputeDelta(a, b)
	c.Assert(err, check.IsNil)
	ba, err := ComputeDelta(b, a)
	c.Assert(err, check.IsNil)
	c.Check(ab.Distance, check.DeepEquals, []float64{-5, 0})
	for i := range ab.Distance {
		c.Check(ba.Distance[i], check.Equals, -ab.Distance[i])
		c.Check(ba.Dominant[i], check.Equals, ab.Dominant[i])
	}
	c.Check(ab.Dominant[0], check.Equals, 2)
	c.Check(ab.quiescent(0), check.Equals, false)
	c.Check(ab.quiescent(1), check.Equals, true)
	c.Check(nullPool(ab, []float64{0.3, 0.7}), check.DeepEquals, []float64{0.3})

	_, err = ComputeDelta(a, &Scores{Rows: 1, States: 3, Values: make([]float64, 3)})
	c.Check(errors.Is(err, ErrInvalidConfiguration), check.Equals, true)
}

func (s *pairwiseSuite) TestNullReproducible(c *check.C) {
	rnd := rand.New(rand.NewSource(9))
	a := randomMatrix(rnd, 150, 5, 1, 4)
	b := randomMatrix(rnd, 150, 7, 1, 4)
	both, err := concatRows(a, b)
	c.Assert(err, check.IsNil)
	bg, err := EstimateBackground(testConfig(saliency.S2, 4), both)
	c.Assert(err, check.IsNil)
	sc, err := NewScorer(bg, a.Cols)
	c.Assert(err, check.IsNil)

	run := func(seed uint64) []float64 {
		null, err := NullDistances(a, b, sc, 4, SeededSources(seed))
		c.Assert(err, check.IsNil)
		return null
	}
	first := run(123)
	c.Check(first, check.HasLen, 150)
	c.Check(run(123), check.DeepEquals, first)
	c.Check(run(124), check.Not(check.DeepEquals), first)
}

func (s *pairwiseSuite) TestShufflePreservesLabels(c *check.C) {
	r := xrand.New(SeededSources(1)(stageNullGenerating, 0))
	labels := []uint8{1, 1, 2, 3, 3, 3, 4}
	shuffled := append([]uint8(nil), labels...)
	shuffle(r, shuffled)
	sort.Slice(shuffled, func(i, j int) bool { return shuffled[i] < shuffled[j] })
	c.Check(shuffled, check.DeepEquals, labels)
}

func (s *pairwiseSuite) TestBootstrapSample(c *check.C) {
	pool := make([]float64, 1000)
	for i := range pool {
		pool[i] = float64(i)
	}
	r := xrand.New(SeededSources(5)(stageDistributionFit, 0))
	sample := bootstrapSample(r, pool, 100)
	c.Check(sample, check.HasLen, 100)
	seen := map[float64]bool{}
	for _, x := range sample {
		c.Check(seen[x], check.Equals, false, check.Commentf("%g drawn twice", x))
		c.Check(x >= 0 && x < 1000, check.Equals, true)
		seen[x] = true
	}
	c.Check(bootstrapSample(r, pool[:50], 100), check.DeepEquals, pool[:50])
}

func (s *pairwiseSuite) TestMedianSelection(c *check.C) {
	c.Check(medianIndex(101), check.Equals, 50)
	c.Check(medianIndex(4), check.Equals, 1)
	c.Check(medianIndex(1), check.Equals, 0)

	r := rand.New(rand.NewSource(1))
	pool := make([]float64, 3000)
	for i := range pool {
		pool[i] = r.NormFloat64()
	}
	fit, err := FitNull(pool, 7, 300, 3, SeededSources(77))
	c.Assert(err, check.IsNil)
	c.Check(fit.Trials, check.HasLen, 7)
	c.Check(fit.Selected, check.Equals, 3)
	c.Check(fit.Params, check.Equals, fit.Trials[3].Params)
	for i := 1; i < len(fit.Trials); i++ {
		c.Check(fit.Trials[i-1].NLL <= fit.Trials[i].NLL, check.Equals, true)
	}
	again, err := FitNull(pool, 7, 300, 1, SeededSources(77))
	c.Assert(err, check.IsNil)
	c.Check(again.Params, check.Equals, fit.Params)

	_, err = FitNull(pool[:1], 7, 300, 3, SeededSources(77))
	c.Check(err, check.NotNil)
}

func (s *pairwiseSuite) TestPValues(c *check.C) {
	null := gennorm.Params{Beta: 1.5, Loc: 0.2, Scale: 1}
	c.Check(pvalue(0.2, null), check.Equals, 1.0)
	c.Check(closeTo(pvalue(-0.8, null), pvalue(1.2, null), 1e-12), check.Equals, true)
	prev := 1.0
	for _, x := range []float64{0.5, 1, 2, 4, 8} {
		p := pvalue(0.2+x, null)
		c.Check(p < prev, check.Equals, true, check.Commentf("x=%g p=%g", x, p))
		c.Check(p > 0, check.Equals, true)
		prev = p
	}
	c.Check(PValues([]float64{0.2, 100}, null)[1] < 1e-20, check.Equals, true)
	c.Check(pvalue(math.Inf(1), null), check.Equals, 0.0)
}

func (s *pairwiseSuite) TestSignificanceThreshold(c *check.C) {
	c.Check(closeTo(SignificanceThreshold(1000, 0.987, 0.1), 0.1/(1000*0.013/1.987), 1e-12), check.Equals, true)
	c.Check(EffectiveBins(10, 0.99), check.Equals, 1.0)
	c.Check(SignificanceThreshold(10, 0, 0.05), check.Equals, 0.005)
}

func (s *pairwiseSuite) TestLagAutocorrelation(c *check.C) {
	smooth := make([]float64, 200)
	for i := range smooth {
		smooth[i] = math.Sin(float64(i) / 20)
	}
	rho, err := LagAutocorrelation(smooth)
	c.Assert(err, check.IsNil)
	c.Check(rho > 0.99, check.Equals, true, check.Commentf("rho=%g", rho))

	alternating := []float64{1, -1, 1, -1, 1, -1}
	rho, err = LagAutocorrelation(alternating)
	c.Assert(err, check.IsNil)
	c.Check(closeTo(rho, -1, 1e-9), check.Equals, true, check.Commentf("rho=%g", rho))

	_, err = LagAutocorrelation([]float64{1, 2})
	c.Check(err, check.NotNil)
}

func (s *pairwiseSuite) TestS3Rejected(c *check.C) {
	m := matrixOf([]uint8{1, 2}, []uint8{2, 1})
	_, err := Compare(testConfig(saliency.S3, 2), m, m, nil, SeededSources(1))
	c.Check(errors.Is(err, ErrInvalidConfiguration), check.Equals, true)
}

func (s *pairwiseSuite) TestCompareRejectsMismatch(c *check.C) {
	a := matrixOf([]uint8{1, 2}, []uint8{2, 1})
	b := matrixOf([]uint8{1, 2})
	_, err := Compare(testConfig(saliency.S1, 2), a, b, nil, SeededSources(1))
	c.Check(errors.Is(err, ErrInvalidConfiguration), check.Equals, true)
	bg := &Background{Level: saliency.S2, States: 2, Freq: []float64{0.25, 0.25, 0.25, 0.25}}
	_, err = Compare(testConfig(saliency.S1, 2), a, a, bg, SeededSources(1))
	c.Check(errors.Is(err, ErrInvalidConfiguration), check.Equals, true)
}

// plantedGroups returns 300 bins of random labels from states 2..4,
// except that group A is all state 1 in bins 100-109.
func plantedGroups() ([]Locus, *StateMatrix, *StateMatrix) {
	rnd := rand.New(rand.NewSource(42))
	a := randomMatrix(rnd, 300, 6, 2, 4)
	b := randomMatrix(rnd, 300, 6, 2, 4)
	for i := 100; i < 110; i++ {
		for j := range a.Row(i) {
			a.Row(i)[j] = 1
		}
	}
	loci := make([]Locus, 300)
	for i := range loci {
		loci[i] = Locus{Chrom: "chr1", Start: int64(i) * 200, End: int64(i+1) * 200}
	}
	return loci, a, b
}

func (s *pairwiseSuite) TestCompareEndToEnd(c *check.C) {
	loci, a, b := plantedGroups()
	for _, level := range []saliency.Level{saliency.S1, saliency.S2} {
		cfg := testConfig(level, 4)
		cmp, err := Compare(cfg, a, b, nil, SeededSources(cfg.Seed))
		c.Assert(err, check.IsNil)
		c.Check(cmp.Metrics, check.HasLen, 300)
		c.Check(cmp.Null, check.HasLen, 300)
		c.Check(cmp.Fit.Trials, check.HasLen, cfg.Trials)
		c.Check(cmp.Fit.Params.Valid(), check.Equals, true)
		for i, m := range cmp.Metrics {
			c.Check(m.PValue >= 0 && m.PValue <= 1, check.Equals, true, check.Commentf("bin %d p=%g", i, m.PValue))
			c.Check(m.Dominant >= 1 && m.Dominant <= 4, check.Equals, true)
		}
		for i := 100; i < 110; i++ {
			m := cmp.Metrics[i]
			c.Check(m.Distance > 0, check.Equals, true, check.Commentf("%s bin %d", level, i))
			c.Check(m.PValue < 0.05, check.Equals, true, check.Commentf("%s bin %d p=%g", level, i, m.PValue))
		}
		c.Check(cmp.Metrics[105].Dominant, check.Equals, 1)

		hits, err := TopLoci(loci, cmp.Metrics, 10)
		c.Assert(err, check.IsNil)
		c.Assert(hits, check.HasLen, 1)
		c.Check(hits[0].Start, check.Equals, int64(100*200))
		c.Check(hits[0].End, check.Equals, int64(110*200))
		c.Check(hits[0].Bins, check.Equals, 10)

		again, err := Compare(cfg, a, b, nil, SeededSources(cfg.Seed))
		c.Assert(err, check.IsNil)
		c.Check(again.Metrics, check.DeepEquals, cmp.Metrics)
	}
}

func (s *pairwiseSuite) TestS2DisjointGroupStates(c *check.C) {
	rows := make([][]uint8, 50)
	for i := range rows {
		rows[i] = []uint8{1, 1, 1}
	}
	ones := matrixOf(rows...)
	for i := range rows {
		rows[i] = []uint8{2, 2, 2}
	}
	twos := matrixOf(rows...)
	cfg := testConfig(saliency.S2, 2)

	// a background of the groups' bins taken separately never sees
	// state 1 next to state 2
	split, err := EstimateBackground(cfg, ones, twos)
	c.Assert(err, check.IsNil)
	sc, err := NewScorer(split, 3)
	c.Assert(err, check.IsNil)
	_, err = NullDistances(ones, twos, sc, cfg.Workers, SeededSources(1))
	c.Check(errors.Is(err, ErrDivergenceDomain), check.Equals, true)

	both, err := concatRows(ones, twos)
	c.Assert(err, check.IsNil)
	union, err := EstimateBackground(cfg, both)
	c.Assert(err, check.IsNil)
	sc, err = NewScorer(union, 3)
	c.Assert(err, check.IsNil)
	null, err := NullDistances(ones, twos, sc, cfg.Workers, SeededSources(1))
	c.Assert(err, check.IsNil)
	c.Check(null, check.HasLen, 50)

	rnd := rand.New(rand.NewSource(7))
	a := randomMatrix(rnd, 200, 4, 1, 2)
	b := randomMatrix(rnd, 200, 4, 3, 4)
	cfg = testConfig(saliency.S2, 4)
	cmp, err := Compare(cfg, a, b, nil, SeededSources(cfg.Seed))
	c.Assert(err, check.IsNil)
	c.Check(cmp.Background.Cols, check.Equals, 8)
	c.Check(cmp.Metrics, check.HasLen, 200)
	for i, m := range cmp.Metrics {
		c.Check(m.PValue >= 0 && m.PValue <= 1, check.Equals, true, check.Commentf("bin %d p=%g", i, m.PValue))
	}
}
