// Copyright 2024 PingCAP, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// See the License for the specific language governing permissions and
// limitations under the License.

package frequency

import (
	"fmt"
	"strconv"
	"strings"

	cerrors "github.com/icrar/chiles02/pkg/errors"
)

// Pair is the half-open sub-band [Low, High) in MHz. Pair is a comparable
// value type, so two pairs are equal iff both bounds are equal and a Pair can
// be used as a map key.
type Pair struct {
	Low  int `json:"low"`
	High int `json:"high"`
}

// NewPair creates a Pair.
func NewPair(low, high int) Pair {
	return Pair{Low: low, High: high}
}

// String renders the pair the way object keys spell it, e.g. "940_944".
func (p Pair) String() string {
	return fmt.Sprintf("%d_%d", p.Low, p.High)
}

// Width returns High - Low.
func (p Pair) Width() int {
	return p.High - p.Low
}

// Contains reports whether f lies in [Low, High).
func (p Pair) Contains(f int) bool {
	return f >= p.Low && f < p.High
}

// ParsePair parses the "{low}_{high}" form.
func ParsePair(s string) (Pair, error) {
	low, high, ok := strings.Cut(s, "_")
	if !ok {
		return Pair{}, cerrors.ErrInvalidFrequencyPair.GenWithStackByArgs(s)
	}
	l, err := strconv.Atoi(low)
	if err != nil {
		return Pair{}, cerrors.ErrInvalidFrequencyPair.GenWithStackByArgs(s)
	}
	h, err := strconv.Atoi(high)
	if err != nil || h <= l {
		return Pair{}, cerrors.ErrInvalidFrequencyPair.GenWithStackByArgs(s)
	}
	return Pair{Low: l, High: h}, nil
}

// Partition splits [minFreq, maxFreq) into consecutive pairs of the given width.
//
// When the range does not divide evenly the last pair is truncated to end at
// maxFreq, so it is narrower than width. The range is never padded.
func Partition(minFreq, maxFreq, width int) ([]Pair, error) {
	if width <= 0 || minFreq >= maxFreq {
		return nil, cerrors.ErrInvalidFrequencyRange.GenWithStackByArgs(minFreq, maxFreq, width)
	}
	pairs := make([]Pair, 0, (maxFreq-minFreq+width-1)/width)
	for low := minFreq; low < maxFreq; low += width {
		high := low + width
		if high > maxFreq {
			high = maxFreq
		}
		pairs = append(pairs, Pair{Low: low, High: high})
	}
	return pairs, nil
}

// Chunk splits pairs into consecutive groups of at most size elements.
// A non-positive size yields a single group.
func Chunk(pairs []Pair, size int) [][]Pair {
	if len(pairs) == 0 {
		return nil
	}
	if size <= 0 || size >= len(pairs) {
		return [][]Pair{pairs}
	}
	groups := make([][]Pair, 0, (len(pairs)+size-1)/size)
	for start := 0; start < len(pairs); start += size {
		end := start + size
		if end > len(pairs) {
			end = len(pairs)
		}
		groups = append(groups, pairs[start:end])
	}
	return groups
}

// Set is a set of pairs.
type Set map[Pair]struct{}

// NewSet builds a Set from pairs.
func NewSet(pairs ...Pair) Set {
	s := make(Set, len(pairs))
	for _, p := range pairs {
		s[p] = struct{}{}
	}
	return s
}

// Has reports whether p is in the set.
func (s Set) Has(p Pair) bool {
	_, ok := s[p]
	return ok
}

// DefaultLowEdge is the band at the bottom of the spectrum whose partitions
// are routinely missing from the observations.
var DefaultLowEdge = Pair{Low: 940, High: 952}

// LowEdge returns the partitions of pairs whose Low lies inside band. With the
// default band and a width of 4 these are [940,944), [944,948) and [948,952).
func LowEdge(pairs []Pair, band Pair) Set {
	s := make(Set)
	for _, p := range pairs {
		if band.Contains(p.Low) {
			s[p] = struct{}{}
		}
	}
	return s
}
