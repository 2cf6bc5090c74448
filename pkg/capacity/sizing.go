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

package capacity

import (
	"sort"

	cerrors "github.com/icrar/chiles02/pkg/errors"
)

// Item is one unit of outstanding work, weighed by its declared size.
type Item struct {
	Name string
	Size int64
}

// Bucket is a class of work handled by one instance type. An item belongs
// to the smallest bucket whose MaxSize holds it.
type Bucket struct {
	InstanceType     string
	MaxSize          int64
	ItemsPerInstance int
	SpotPrice        float64
}

// Size turns the outstanding items into per flavor instance counts. Each
// non-empty bucket asks for ceil(items / ItemsPerInstance) instances, so at
// least one. Items larger than every bucket go to the largest one. Buckets
// sharing an instance type and price are merged into one request.
func Size(items []Item, buckets []Bucket) ([]FlavorRequest, error) {
	if len(buckets) == 0 {
		return nil, cerrors.ErrInvalidConfig.GenWithStackByArgs("no size bucket configured")
	}
	sorted := make([]Bucket, len(buckets))
	copy(sorted, buckets)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].MaxSize < sorted[j].MaxSize })
	for _, b := range sorted {
		if b.ItemsPerInstance <= 0 || b.InstanceType == "" {
			return nil, cerrors.ErrInvalidConfig.GenWithStackByArgs(
				"size bucket " + b.InstanceType + " needs an instance type and positive items per instance")
		}
	}

	counts := make([]int, len(sorted))
	for _, item := range items {
		idx := sort.Search(len(sorted), func(i int) bool { return item.Size <= sorted[i].MaxSize })
		if idx == len(sorted) {
			idx = len(sorted) - 1
		}
		counts[idx]++
	}

	type flavorKey struct {
		instanceType string
		price        float64
	}
	var requests []FlavorRequest
	index := make(map[flavorKey]int)
	for i, b := range sorted {
		if counts[i] == 0 {
			continue
		}
		n := (counts[i] + b.ItemsPerInstance - 1) / b.ItemsPerInstance
		key := flavorKey{b.InstanceType, b.SpotPrice}
		if pos, ok := index[key]; ok {
			requests[pos].Count += n
			continue
		}
		index[key] = len(requests)
		requests = append(requests, FlavorRequest{InstanceType: b.InstanceType, Count: n, SpotPrice: b.SpotPrice})
	}
	return requests, nil
}
