// Copyright (C) The Epilogos Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package epilogos

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/pgzip"
	log "github.com/sirupsen/logrus"
)

// closeOutput closes a finished output file. EBUSY is logged and
// ignored: the data has already been written.
func closeOutput(fnm string, c io.Closer) error {
	err := c.Close()
	if err != nil && isBusy(err) {
		log.Warnf("%s: ignoring error on close: %s", fnm, err)
		return nil
	}
	return err
}

// textOutput is a buffered, optionally gzip-compressed text file.
type textOutput struct {
	fnm  string
	f    *os.File
	gz   *pgzip.Writer
	bufw *bufio.Writer
}

func createText(fnm string) (*textOutput, error) {
	f, err := os.Create(fnm)
	if err != nil {
		return nil, err
	}
	out := &textOutput{fnm: fnm, f: f}
	var w io.Writer = f
	if strings.HasSuffix(fnm, ".gz") {
		out.gz = pgzip.NewWriter(f)
		w = out.gz
	}
	out.bufw = bufio.NewWriterSize(w, 4*1024*1024)
	return out, nil
}

func (out *textOutput) Write(p []byte) (int, error) {
	return out.bufw.Write(p)
}

// Close flushes and closes the file.
func (out *textOutput) Close() error {
	err := out.bufw.Flush()
	if err == nil && out.gz != nil {
		err = out.gz.Close()
	}
	if err != nil {
		out.f.Close()
		if isBusy(err) {
			log.Warnf("%s: ignoring error on flush: %s", out.fnm, err)
			return nil
		}
		return err
	}
	return closeOutput(out.fnm, out.f)
}

// ScoreWriter receives per-bin scores in bin order.
type ScoreWriter interface {
	WriteScore(locus Locus, score BinScore) error
	Close() error
}

// MetricWriter receives per-bin pairwise metrics in bin order.
type MetricWriter interface {
	WriteMetric(locus Locus, metric PairwiseMetric) error
	Close() error
}

type textScoreWriter struct {
	*textOutput
}

func NewScoreWriter(fnm string) (ScoreWriter, error) {
	out, err := createText(fnm)
	if err != nil {
		return nil, err
	}
	return textScoreWriter{out}, nil
}

// WriteScore writes "chrom start end dominant total s1 ... sK".
func (w textScoreWriter) WriteScore(l Locus, s BinScore) error {
	_, err := fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%.5f", l.Chrom, l.Start, l.End, s.Dominant, s.Total)
	if err != nil {
		return err
	}
	for _, x := range s.Scores {
		_, err = fmt.Fprintf(w, "\t%.5f", x)
		if err != nil {
			return err
		}
	}
	_, err = w.Write([]byte{'\n'})
	return err
}

type textMetricWriter struct {
	*textOutput
}

func NewMetricWriter(fnm string) (MetricWriter, error) {
	out, err := createText(fnm)
	if err != nil {
		return nil, err
	}
	return textMetricWriter{out}, nil
}

// WriteMetric writes "chrom start end dominant distance pvalue".
func (w textMetricWriter) WriteMetric(l Locus, m PairwiseMetric) error {
	_, err := fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%.5f\t%.5g\n", l.Chrom, l.Start, l.End, m.Dominant, m.Distance, m.PValue)
	return err
}

func writeScores(fnm string, loci []Locus, scores *Scores) error {
	w, err := NewScoreWriter(fnm)
	if err != nil {
		return err
	}
	for i := 0; i < scores.Rows; i++ {
		err = w.WriteScore(loci[i], scores.Bin(i))
		if err != nil {
			w.Close()
			return err
		}
	}
	return w.Close()
}

func writeMetrics(fnm string, loci []Locus, metrics []PairwiseMetric) error {
	w, err := NewMetricWriter(fnm)
	if err != nil {
		return err
	}
	for i, m := range metrics {
		err = w.WriteMetric(loci[i], m)
		if err != nil {
			w.Close()
			return err
		}
	}
	return w.Close()
}

// writeDelta writes "chrom start end d1 ... dK" per bin.
func writeDelta(fnm string, loci []Locus, d *Delta) error {
	out, err := createText(fnm)
	if err != nil {
		return err
	}
	for i := 0; i < d.Rows; i++ {
		fmt.Fprintf(out, "%s\t%d\t%d", loci[i].Chrom, loci[i].Start, loci[i].End)
		for _, x := range d.Row(i) {
			fmt.Fprintf(out, "\t%.5f", x)
		}
		fmt.Fprint(out, "\n")
	}
	return out.Close()
}

// writeFitResults writes one "trial beta loc scale nll" line per
// bootstrap trial in NLL order, marking the selected trial.
func writeFitResults(fnm string, fit *NullFit) error {
	out, err := createText(fnm)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, "#trial\tbeta\tloc\tscale\tnll\tselected")
	for i, tr := range fit.Trials {
		fmt.Fprintf(out, "%d\t%.16g\t%.16g\t%.16g\t%.16g\t%v\n", tr.Trial, tr.Params.Beta, tr.Params.Loc, tr.Params.Scale, tr.NLL, i == fit.Selected)
	}
	return out.Close()
}

// writeRegions writes "chrom start end dominant distance pvalue sign".
func writeRegions(fnm string, regions []Region) error {
	out, err := createText(fnm)
	if err != nil {
		return err
	}
	for _, r := range regions {
		sgn := "+"
		if r.Sign() < 0 {
			sgn = "-"
		}
		fmt.Fprintf(out, "%s\t%d\t%d\t%d\t%.5f\t%.5g\t%s\n", r.Chrom, r.Start, r.End, r.Dominant, r.Distance, r.PValue, sgn)
	}
	return out.Close()
}
