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
	"context"
	"sort"

	"github.com/icrar/chiles02/pkg/frequency"
)

// PartitionKey identifies one unit of completable work.
type PartitionKey struct {
	Day  string
	Band frequency.Pair
}

// WorkSet maps a day to the sub-bands still pending for it, in partition
// order. It is computed fresh on every run and never persisted.
type WorkSet map[string][]frequency.Pair

// Days returns the days of the work set in ascending order.
func (w WorkSet) Days() []string {
	days := make([]string, 0, len(w))
	for day := range w {
		days = append(days, day)
	}
	sort.Strings(days)
	return days
}

// Len returns the total number of pending partitions.
func (w WorkSet) Len() int {
	n := 0
	for _, pairs := range w {
		n += len(pairs)
	}
	return n
}

// Empty reports whether nothing is pending. An empty work set is a confirmed
// "nothing to do", never a substitute for a failed lookup.
func (w WorkSet) Empty() bool {
	return w.Len() == 0
}

// Keys flattens the work set, days ascending and bands in partition order.
func (w WorkSet) Keys() []PartitionKey {
	keys := make([]PartitionKey, 0, w.Len())
	for _, day := range w.Days() {
		for _, band := range w[day] {
			keys = append(keys, PartitionKey{Day: day, Band: band})
		}
	}
	return keys
}

// ObjectInfo describes one object in the remote store.
type ObjectInfo struct {
	Key  string
	Size int64
}

// ObjectLister enumerates the remote store. Implementations must return an
// error when the listing could not be completed; a nil error with an empty
// slice means the prefix is genuinely empty.
type ObjectLister interface {
	ListObjects(ctx context.Context, prefix string) ([]ObjectInfo, error)
}
