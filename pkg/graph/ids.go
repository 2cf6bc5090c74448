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

package graph

import "fmt"

// IDAllocator hands out node ids of the form "{type}__{%06d}" with one
// counter per type. An allocator belongs to a single graph build and must not
// be shared between builds.
type IDAllocator struct {
	counters map[string]int
}

// NewIDAllocator creates an IDAllocator with every counter at zero.
func NewIDAllocator() *IDAllocator {
	return &IDAllocator{counters: make(map[string]int)}
}

// Next returns the next id for typ, starting at 1.
func (a *IDAllocator) Next(typ string) string {
	a.counters[typ]++
	return fmt.Sprintf("%s__%06d", typ, a.counters[typ])
}
