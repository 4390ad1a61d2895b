// Copyright (C) The Epilogos Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package epilogos

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/klauspost/pgzip"
	log "github.com/sirupsen/logrus"
)

// zopen opens fnm for reading. Files named *.gz are decompressed on
// the fly.
func zopen(fnm string) (io.ReadCloser, error) {
	f, err := os.Open(fnm)
	if err != nil {
		return nil, err
	}
	if !strings.HasSuffix(fnm, ".gz") {
		return f, nil
	}
	zr, err := pgzip.NewReader(bufio.NewReaderSize(f, 4<<20))
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %w", fnm, err)
	}
	return &gzipFile{Reader: zr, f: f}, nil
}

// gzipFile is a decompressing reader that owns its underlying file.
type gzipFile struct {
	*pgzip.Reader
	f *os.File
}

func (z *gzipFile) Close() error {
	err := z.Reader.Close()
	if cerr := z.f.Close(); err == nil {
		err = cerr
	}
	return err
}

// Input is one parsed state file.
type Input struct {
	Name   string
	Loci   []Locus
	Matrix *StateMatrix
}

// ReadStates parses tab-separated lines "chrom start end s1 ... sC".
// Every line must have the same number of samples.
func ReadStates(rdr io.Reader) ([]Locus, *StateMatrix, error) {
	scanner := bufio.NewScanner(rdr)
	scanner.Buffer(make([]byte, 1<<20), 1<<26)
	m := &StateMatrix{}
	var loci []Locus
	for lineno := 1; scanner.Scan(); lineno++ {
		line := scanner.Bytes()
		if len(line) == 0 || line[0] == '#' {
			continue
		}
		fields := bytes.Split(line, []byte{'\t'})
		if len(fields) < 4 {
			return nil, nil, fmt.Errorf("line %d: %d fields, need chrom, start, end and at least one state", lineno, len(fields))
		}
		start, err := strconv.ParseInt(string(fields[1]), 10, 64)
		if err != nil {
			return nil, nil, fmt.Errorf("line %d: start: %w", lineno, err)
		}
		end, err := strconv.ParseInt(string(fields[2]), 10, 64)
		if err != nil {
			return nil, nil, fmt.Errorf("line %d: end: %w", lineno, err)
		}
		cols := len(fields) - 3
		if m.Rows == 0 {
			m.Cols = cols
		} else if cols != m.Cols {
			return nil, nil, fmt.Errorf("line %d: %d samples, previous lines had %d", lineno, cols, m.Cols)
		}
		for i, f := range fields[3:] {
			s, err := strconv.ParseUint(string(bytes.TrimSpace(f)), 10, 8)
			if err != nil {
				return nil, nil, fmt.Errorf("line %d sample %d: %w", lineno, i, err)
			}
			m.Labels = append(m.Labels, uint8(s))
		}
		loci = append(loci, Locus{Chrom: string(fields[0]), Start: start, End: end})
		m.Rows++
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, err
	}
	return loci, m, nil
}

func ReadStateFile(fnm string) (*Input, error) {
	f, err := zopen(fnm)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	loci, m, err := ReadStates(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fnm, err)
	}
	log.WithFields(log.Fields{
		"filename": fnm,
		"rows":     m.Rows,
		"cols":     m.Cols,
	}).Infof("read states: %s", fnm)
	return &Input{Name: inputName(fnm), Loci: loci, Matrix: m}, f.Close()
}

// inputName strips the directory and compression/text suffixes.
func inputName(fnm string) string {
	name := filepath.Base(fnm)
	name = strings.TrimSuffix(name, ".gz")
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// inputFiles expands path to the list of regular files it names: the
// file itself, or the files in the directory, sorted by name.
func inputFiles(path string) ([]string, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !fi.IsDir() {
		return []string{path}, nil
	}
	ents, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, ent := range ents {
		if ent.IsDir() || strings.HasPrefix(ent.Name(), ".") {
			continue
		}
		files = append(files, filepath.Join(path, ent.Name()))
	}
	sort.Strings(files)
	if len(files) == 0 {
		return nil, fmt.Errorf("%s: no input files", path)
	}
	return files, nil
}

func readInputs(paths []string) ([]*Input, error) {
	var inputs []*Input
	for _, path := range paths {
		files, err := inputFiles(path)
		if err != nil {
			return nil, err
		}
		for _, fnm := range files {
			in, err := ReadStateFile(fnm)
			if err != nil {
				return nil, err
			}
			inputs = append(inputs, in)
		}
	}
	return inputs, nil
}
