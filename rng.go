// Copyright (C) The Epilogos Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package epilogos

import (
	"encoding/binary"
	"time"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/exp/rand"
)

// Sources returns an independent random source for one stream
// (typically a partition or trial index) of a named stage. Workers
// never share a source.
type Sources func(name stage, stream int) rand.Source

// SeededSources returns reproducible sources: the same seed, stage and
// stream always yield the same sequence, regardless of scheduling.
func SeededSources(seed uint64) Sources {
	return func(name stage, stream int) rand.Source {
		h := blake2b.Sum256([]byte(name))
		mixed := seed ^ binary.LittleEndian.Uint64(h[:8]) ^ (uint64(stream+1) * 0x9e3779b97f4a7c15)
		return rand.NewSource(mixed)
	}
}

// RandomSources returns nondeterministic sources.
func RandomSources() Sources {
	return func(stage, int) rand.Source {
		return rand.NewSource(uint64(time.Now().UnixNano()) ^ rand.Uint64())
	}
}

func (cfg *Config) sources() Sources {
	if cfg.Seed == 0 {
		return RandomSources()
	}
	return SeededSources(cfg.Seed)
}

// shuffle permutes labels in place (Fisher-Yates).
func shuffle(r *rand.Rand, labels []uint8) {
	for i := len(labels) - 1; i > 0; i-- {
		j := r.Intn(i + 1)
		labels[i], labels[j] = labels[j], labels[i]
	}
}
