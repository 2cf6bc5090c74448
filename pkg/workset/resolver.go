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
	"path"
	"sort"
	"strings"

	cerrors "github.com/icrar/chiles02/pkg/errors"
	"github.com/icrar/chiles02/pkg/frequency"
	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"go.uber.org/zap"
)

// Resolver computes the partitions that still have to be produced by
// comparing the required partitions against the outputs already present in
// the remote store.
type Resolver struct {
	lister  ObjectLister
	bucket  string
	scheme  KeyScheme
	bands   []frequency.Pair
	lowEdge frequency.Set
}

// NewResolver creates a Resolver. bands is the full partitioning of the
// spectrum and lowEdge the partitions tolerated as missing.
func NewResolver(
	lister ObjectLister, bucket string, scheme KeyScheme,
	bands []frequency.Pair, lowEdge frequency.Set,
) *Resolver {
	if lowEdge == nil {
		lowEdge = frequency.NewSet()
	}
	return &Resolver{
		lister:  lister,
		bucket:  bucket,
		scheme:  scheme,
		bands:   bands,
		lowEdge: lowEdge,
	}
}

// Completed returns the partitions that already have an output object.
func (r *Resolver) Completed(ctx context.Context) (map[PartitionKey]struct{}, error) {
	prefix := r.scheme.ListPrefix()
	objects, err := r.lister.ListObjects(ctx, prefix)
	if err != nil {
		return nil, wrapListError(err, r.bucket, prefix)
	}
	done := make(map[PartitionKey]struct{}, len(objects))
	for _, obj := range objects {
		key, ok := r.scheme.Parse(obj.Key)
		if !ok {
			log.Debug("ignore object not following the key layout",
				zap.String("key", obj.Key), zap.String("layout", string(r.scheme.Layout)))
			continue
		}
		done[key] = struct{}{}
	}
	return done, nil
}

// Resolve returns the pending partitions of days.
//
// A day is left out when the number of pending partitions outside the low
// edge is zero. Days with only low edge partitions missing are therefore
// treated as done, exactly like fully completed days.
func (r *Resolver) Resolve(ctx context.Context, days []string) (WorkSet, error) {
	done, err := r.Completed(ctx)
	if err != nil {
		return nil, errors.Trace(err)
	}

	stage := r.scheme.Prefix
	ws := make(WorkSet)
	for _, day := range days {
		var pending []frequency.Pair
		outstanding := 0
		for _, band := range r.bands {
			if _, ok := done[PartitionKey{Day: day, Band: band}]; ok {
				continue
			}
			pending = append(pending, band)
			if !r.lowEdge.Has(band) {
				outstanding++
			}
		}
		if outstanding <= 0 {
			if len(pending) > 0 {
				skippedDaysCounter.WithLabelValues(stage).Inc()
				log.Info("day is mostly done, skip it",
					zap.String("day", day), zap.Int("lowEdgeMissing", len(pending)))
			}
			continue
		}
		ws[day] = pending
	}

	pendingPartitionsGauge.WithLabelValues(stage).Set(float64(ws.Len()))
	log.Info("work set resolved",
		zap.String("bucket", r.bucket),
		zap.String("prefix", r.scheme.Prefix),
		zap.Int("days", len(days)),
		zap.Int("pendingDays", len(ws)),
		zap.Int("pendingPartitions", ws.Len()))
	return ws, nil
}

// ResolveProducts is Resolve for outputs that cover every partition at once,
// such as a concatenated cube. A product is pending with all its partitions
// until its product key exists.
func (r *Resolver) ResolveProducts(ctx context.Context, products []string) (WorkSet, error) {
	prefix := r.scheme.ListPrefix()
	objects, err := r.lister.ListObjects(ctx, prefix)
	if err != nil {
		return nil, wrapListError(err, r.bucket, prefix)
	}
	existing := make(map[string]struct{}, len(objects))
	for _, obj := range objects {
		existing[obj.Key] = struct{}{}
	}

	ws := make(WorkSet)
	for _, product := range products {
		if _, ok := existing[r.scheme.ProductKey(product)]; ok {
			continue
		}
		ws[product] = append([]frequency.Pair(nil), r.bands...)
	}
	pendingPartitionsGauge.WithLabelValues(r.scheme.Prefix).Set(float64(ws.Len()))
	log.Info("products resolved",
		zap.String("bucket", r.bucket),
		zap.String("prefix", r.scheme.Prefix),
		zap.Strings("products", products),
		zap.Strings("pending", ws.Days()))
	return ws, nil
}

// Day is one input observation.
type Day struct {
	Name string
	Size int64
}

// DiscoverDays lists the input observations directly under prefix whose name
// ends in ext. The result is sorted by name.
func DiscoverDays(ctx context.Context, lister ObjectLister, bucket, prefix, ext string) ([]Day, error) {
	listPrefix := KeyScheme{Prefix: prefix}.ListPrefix()
	objects, err := lister.ListObjects(ctx, listPrefix)
	if err != nil {
		return nil, wrapListError(err, bucket, listPrefix)
	}
	suffix := "." + strings.TrimPrefix(ext, ".")
	days := make([]Day, 0, len(objects))
	for _, obj := range objects {
		rest := strings.TrimPrefix(obj.Key, listPrefix)
		if strings.Contains(rest, "/") || !strings.HasSuffix(rest, suffix) {
			continue
		}
		days = append(days, Day{
			Name: strings.TrimSuffix(path.Base(rest), suffix),
			Size: obj.Size,
		})
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Name < days[j].Name })
	return days, nil
}

// DayNames returns the names of days.
func DayNames(days []Day) []string {
	names := make([]string, 0, len(days))
	for _, d := range days {
		names = append(names, d.Name)
	}
	return names
}

func wrapListError(err error, bucket, prefix string) error {
	if cerrors.Is(err, cerrors.ErrRemoteStoreUnavailable) {
		return errors.Trace(err)
	}
	return cerrors.WrapError(cerrors.ErrRemoteStoreUnavailable, err, bucket, prefix)
}
