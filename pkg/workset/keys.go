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

package workset

import (
	"strings"

	cerrors "github.com/icrar/chiles02/pkg/errors"
	"github.com/icrar/chiles02/pkg/frequency"
)

// Layout is a naming convention for partition outputs.
type Layout string

// Supported layouts.
const (
	// LayoutBandDay is {prefix}/{low}_{high}/{day}.{ext}.
	LayoutBandDay Layout = "band-day"
	// LayoutDayBand is {prefix}/{day}/{low}_{high}/{artifact}.
	LayoutDayBand Layout = "day-band"
)

// ParseLayout parses the configuration form of a layout.
func ParseLayout(s string) (Layout, error) {
	switch Layout(s) {
	case LayoutBandDay, LayoutDayBand:
		return Layout(s), nil
	default:
		return "", cerrors.ErrInvalidConfig.GenWithStackByArgs("unknown key layout " + s)
	}
}

// KeyScheme writes and parses the object keys of one pipeline stage. The
// builder uses ObjectKey to name outputs and the resolver uses Parse to read
// them back, so both sides always agree on the convention.
type KeyScheme struct {
	Prefix string
	Layout Layout
	// Ext is the day suffix for LayoutBandDay, without the dot.
	Ext string
	// Artifact is the file name for LayoutDayBand. Empty matches any artifact.
	Artifact string
}

// ListPrefix is the prefix to enumerate to find every output of the scheme.
func (s KeyScheme) ListPrefix() string {
	if s.Prefix == "" {
		return ""
	}
	return strings.TrimSuffix(s.Prefix, "/") + "/"
}

// ObjectKey returns the key the output of k is written to.
func (s KeyScheme) ObjectKey(k PartitionKey) string {
	var rest string
	switch s.Layout {
	case LayoutDayBand:
		rest = k.Day + "/" + k.Band.String() + "/" + s.Artifact
	default:
		rest = k.Band.String() + "/" + k.Day
		if s.Ext != "" {
			rest += "." + s.Ext
		}
	}
	return s.ListPrefix() + rest
}

// ProductKey returns the key of an output that covers every partition, such
// as a concatenated cube: {prefix}/{name}.{ext}.
func (s KeyScheme) ProductKey(name string) string {
	key := s.ListPrefix() + name
	if s.Ext != "" {
		key += "." + s.Ext
	}
	return key
}

// Parse extracts the partition encoded in key. It returns false for keys that
// do not follow the scheme.
func (s KeyScheme) Parse(key string) (PartitionKey, bool) {
	prefix := s.ListPrefix()
	if !strings.HasPrefix(key, prefix) {
		return PartitionKey{}, false
	}
	parts := strings.Split(key[len(prefix):], "/")

	var day, band string
	switch s.Layout {
	case LayoutDayBand:
		if len(parts) != 3 || (s.Artifact != "" && parts[2] != s.Artifact) {
			return PartitionKey{}, false
		}
		day, band = parts[0], parts[1]
	default:
		if len(parts) != 2 {
			return PartitionKey{}, false
		}
		band, day = parts[0], parts[1]
		if s.Ext != "" {
			var ok bool
			if day, ok = strings.CutSuffix(day, "."+s.Ext); !ok {
				return PartitionKey{}, false
			}
		}
	}
	if day == "" {
		return PartitionKey{}, false
	}
	pair, err := frequency.ParsePair(band)
	if err != nil {
		return PartitionKey{}, false
	}
	return PartitionKey{Day: day, Band: pair}, true
}
