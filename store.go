// Copyright (C) The Epilogos Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package epilogos

import (
	"bufio"
	"encoding/binary"
	"encoding/gob"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"github.com/klauspost/pgzip"
	"github.com/meuleman/epilogos/saliency"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/blake2b"
)

// PartialStore keeps partial accumulators and finished backgrounds in
// a directory, so estimation can be split across processes and the
// background reused by later runs.
type PartialStore struct {
	Dir string
}

type partialFile struct {
	Index    int
	Total    int
	Acc      Accumulator
	Checksum [blake2b.Size256]byte
}

func accumulatorChecksum(acc *Accumulator) [blake2b.Size256]byte {
	h, _ := blake2b.New256(nil)
	var buf [8]byte
	for _, x := range []int64{int64(acc.Level), int64(acc.States), int64(acc.Cols), acc.Rows} {
		binary.LittleEndian.PutUint64(buf[:], uint64(x))
		h.Write(buf[:])
	}
	for _, x := range acc.Counts {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(x))
		h.Write(buf[:])
	}
	var sum [blake2b.Size256]byte
	copy(sum[:], h.Sum(nil))
	return sum
}

func (ps *PartialStore) partialPath(tag string, index, total int) string {
	return filepath.Join(ps.Dir, fmt.Sprintf("partial.%s.%04d-of-%04d.gob.gz", tag, index, total))
}

// WritePartial stores partial index of total for tag.
func (ps *PartialStore) WritePartial(tag string, index, total int, acc *Accumulator) error {
	fnm := ps.partialPath(tag, index, total)
	f, err := os.Create(fnm)
	if err != nil {
		return err
	}
	defer f.Close()
	bufw := bufio.NewWriterSize(f, 1<<20)
	zw := pgzip.NewWriter(bufw)
	err = gob.NewEncoder(zw).Encode(partialFile{
		Index:    index,
		Total:    total,
		Acc:      *acc,
		Checksum: accumulatorChecksum(acc),
	})
	if err != nil {
		return err
	}
	err = zw.Close()
	if err != nil {
		return err
	}
	err = bufw.Flush()
	if err != nil {
		return err
	}
	log.Debugf("wrote partial %s (%d rows)", fnm, acc.Rows)
	return closeOutput(fnm, f)
}

func readPartial(fnm string) (*partialFile, error) {
	f, err := zopen(fnm)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrPartialMerge, err)
	}
	defer f.Close()
	var pf partialFile
	err = gob.NewDecoder(f).Decode(&pf)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %s", ErrPartialMerge, fnm, err)
	}
	if accumulatorChecksum(&pf.Acc) != pf.Checksum {
		return nil, fmt.Errorf("%w: %s: checksum mismatch", ErrPartialMerge, fnm)
	}
	return &pf, nil
}

var partialRe = regexp.MustCompile(`^partial\.(.+)\.(\d+)-of-(\d+)\.gob\.gz$`)

// partialFiles returns the partial files for tag, indexed by partial
// number, after checking that the set is complete.
func (ps *PartialStore) partialFiles(tag string) ([]string, error) {
	ents, err := os.ReadDir(ps.Dir)
	if err != nil {
		return nil, err
	}
	var files []string
	total := -1
	for _, ent := range ents {
		m := partialRe.FindStringSubmatch(ent.Name())
		if m == nil || m[1] != tag {
			continue
		}
		index, _ := strconv.Atoi(m[2])
		n, _ := strconv.Atoi(m[3])
		if total < 0 {
			total = n
			files = make([]string, total)
		} else if n != total {
			return nil, fmt.Errorf("%w: tag %q has partials from runs with %d and %d partitions", ErrPartialMerge, tag, total, n)
		}
		if index >= total {
			return nil, fmt.Errorf("%w: %s: index out of range", ErrPartialMerge, ent.Name())
		}
		files[index] = filepath.Join(ps.Dir, ent.Name())
	}
	if total <= 0 {
		return nil, fmt.Errorf("%w: no partials for tag %q in %s", ErrPartialMerge, tag, ps.Dir)
	}
	for i, fnm := range files {
		if fnm == "" {
			return nil, fmt.Errorf("%w: tag %q is missing partial %d of %d", ErrPartialMerge, tag, i, total)
		}
	}
	return files, nil
}

// Combine merges every stored partial for tag into a background,
// saves it, and deletes the partial files. Running it again for the
// same tag fails because the partials are gone.
func (ps *PartialStore) Combine(tag string) (*Background, error) {
	files, err := ps.partialFiles(tag)
	if err != nil {
		return nil, err
	}
	accs := make([]*Accumulator, len(files))
	for i, fnm := range files {
		pf, err := readPartial(fnm)
		if err != nil {
			return nil, err
		}
		if pf.Index != i || pf.Total != len(files) {
			return nil, fmt.Errorf("%w: %s claims to be partial %d of %d", ErrPartialMerge, fnm, pf.Index, pf.Total)
		}
		acc := pf.Acc
		accs[i] = &acc
	}
	merged, err := MergeAccumulators(accs)
	if err != nil {
		return nil, err
	}
	bg, err := merged.Normalize()
	if err != nil {
		return nil, err
	}
	err = ps.SaveBackground(tag, bg)
	if err != nil {
		return nil, err
	}
	for _, fnm := range files {
		err = os.Remove(fnm)
		if err != nil {
			return nil, err
		}
	}
	log.Printf("%s: combined %d partials (%d bins) for tag %q", stageBackgroundMerged, len(files), merged.Rows, tag)
	return bg, nil
}

// BackgroundPath returns the file name used for a stored background.
// S3 backgrounds also depend on the number of samples.
func (ps *PartialStore) BackgroundPath(tag string, level saliency.Level, states, cols int) string {
	name := fmt.Sprintf("background.s%d.k%d.%s.npy", int(level), states, tag)
	if level == saliency.S3 {
		name = fmt.Sprintf("background.s%d.k%d.c%d.%s.npy", int(level), states, cols, tag)
	}
	return filepath.Join(ps.Dir, name)
}

func (ps *PartialStore) SaveBackground(tag string, bg *Background) error {
	return writeNumpyFloat64(ps.BackgroundPath(tag, bg.Level, bg.States, bg.Cols), bg.Freq, bg.Shape())
}

// LoadBackground reads a background saved by SaveBackground. cols is
// only used for S3.
func (ps *PartialStore) LoadBackground(tag string, level saliency.Level, states, cols int) (*Background, error) {
	fnm := ps.BackgroundPath(tag, level, states, cols)
	freq, shape, err := readNumpyFloat64(fnm)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrMissingBackground, fnm)
	} else if err != nil {
		return nil, err
	}
	bg := &Background{Level: level, States: states, Cols: cols, Freq: freq}
	if want := bg.Shape(); !sameShape(shape, want) {
		return nil, fmt.Errorf("%s: shape %v, want %v", fnm, shape, want)
	}
	if err := bg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", fnm, err)
	}
	return bg, nil
}

func sameShape(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// sortedTags lists the tags that have partials in the store.
func (ps *PartialStore) sortedTags() ([]string, error) {
	ents, err := os.ReadDir(ps.Dir)
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	var tags []string
	for _, ent := range ents {
		if m := partialRe.FindStringSubmatch(ent.Name()); m != nil && !seen[m[1]] {
			seen[m[1]] = true
			tags = append(tags, m[1])
		}
	}
	sort.Strings(tags)
	return tags, nil
}
