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
	"strings"
	"testing"

	cerrors "github.com/icrar/chiles02/pkg/errors"
	"github.com/icrar/chiles02/pkg/frequency"
	"github.com/pingcap/errors"
	"github.com/stretchr/testify/require"
)

type memLister struct {
	objects []ObjectInfo
	err     error
	calls   int
}

func (m *memLister) ListObjects(_ context.Context, prefix string) ([]ObjectInfo, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	var res []ObjectInfo
	for _, o := range m.objects {
		if strings.HasPrefix(o.Key, prefix) {
			res = append(res, o)
		}
	}
	return res, nil
}

func (m *memLister) put(scheme KeyScheme, day string, bands ...frequency.Pair) {
	for _, b := range bands {
		m.objects = append(m.objects, ObjectInfo{
			Key:  scheme.ObjectKey(PartitionKey{Day: day, Band: b}),
			Size: 1,
		})
	}
}

func newTestResolver(t *testing.T, lister ObjectLister) (*Resolver, []frequency.Pair, KeyScheme) {
	bands, err := frequency.Partition(940, 1000, 4)
	require.NoError(t, err)
	scheme := KeyScheme{Prefix: "split_4", Layout: LayoutBandDay, Ext: "tar"}
	r := NewResolver(lister, "13b-266", scheme, bands, frequency.LowEdge(bands, frequency.DefaultLowEdge))
	return r, bands, scheme
}

func TestResolveMostlyDoneDayIsSkipped(t *testing.T) {
	t.Parallel()

	lister := &memLister{}
	r, bands, scheme := newTestResolver(t, lister)
	// everything except [940,944) and [944,948)
	lister.put(scheme, "2015_03_01", bands[2:]...)

	ws, err := r.Resolve(context.Background(), []string{"2015_03_01"})
	require.NoError(t, err)
	require.NotContains(t, ws, "2015_03_01")
	require.True(t, ws.Empty())
}

func TestResolveCompleteDayIsEmpty(t *testing.T) {
	t.Parallel()

	lister := &memLister{}
	r, bands, scheme := newTestResolver(t, lister)
	lister.put(scheme, "2015_03_01", bands...)

	ws, err := r.Resolve(context.Background(), []string{"2015_03_01"})
	require.NoError(t, err)
	require.Empty(t, ws["2015_03_01"])
	require.Equal(t, 0, ws.Len())
}

func TestResolvePendingKeepsLowEdge(t *testing.T) {
	t.Parallel()

	lister := &memLister{}
	r, bands, scheme := newTestResolver(t, lister)
	// missing the low edge plus one real partition
	lister.put(scheme, "2015_03_01", bands[3:10]...)
	lister.put(scheme, "2015_03_01", bands[11:]...)

	ws, err := r.Resolve(context.Background(), []string{"2015_03_01", "2015_03_02"})
	require.NoError(t, err)
	require.Equal(t, []string{"2015_03_01", "2015_03_02"}, ws.Days())
	require.Equal(t, []frequency.Pair{bands[0], bands[1], bands[2], bands[10]}, ws["2015_03_01"])
	require.Equal(t, bands, ws["2015_03_02"])
	require.Equal(t, 4+len(bands), ws.Len())

	keys := ws.Keys()
	require.Equal(t, PartitionKey{Day: "2015_03_01", Band: bands[0]}, keys[0])
	require.Equal(t, PartitionKey{Day: "2015_03_02", Band: bands[len(bands)-1]}, keys[len(keys)-1])
}

func TestResolveIgnoresForeignKeys(t *testing.T) {
	t.Parallel()

	lister := &memLister{objects: []ObjectInfo{
		{Key: "split_4/940_944/2015_03_01.csv"},
		{Key: "split_4/garbage/2015_03_01.tar"},
		{Key: "split_8/940_948/2015_03_01.tar"},
		{Key: "split_4/2015_03_01.tar"},
	}}
	r, bands, _ := newTestResolver(t, lister)

	ws, err := r.Resolve(context.Background(), []string{"2015_03_01"})
	require.NoError(t, err)
	require.Equal(t, bands, ws["2015_03_01"])
}

func TestResolveRemoteStoreFailure(t *testing.T) {
	t.Parallel()

	lister := &memLister{err: errors.New("access denied")}
	r, _, _ := newTestResolver(t, lister)

	ws, err := r.Resolve(context.Background(), []string{"2015_03_01"})
	require.Nil(t, ws)
	require.Error(t, err)
	require.True(t, cerrors.Is(err, cerrors.ErrRemoteStoreUnavailable))
	require.Equal(t, cerrors.ClassRemoteStore, cerrors.Classify(err))
	require.Contains(t, err.Error(), "s3://13b-266/split_4/")
}

func TestResolveListsOnce(t *testing.T) {
	t.Parallel()

	lister := &memLister{}
	r, _, _ := newTestResolver(t, lister)
	_, err := r.Resolve(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Equal(t, 1, lister.calls)
}

func TestDiscoverDays(t *testing.T) {
	t.Parallel()

	lister := &memLister{objects: []ObjectInfo{
		{Key: "observation_data/2015_03_02.tar", Size: 20},
		{Key: "observation_data/2015_03_01.tar", Size: 10},
		{Key: "observation_data/notes.txt", Size: 1},
		{Key: "observation_data/nested/2015_03_03.tar", Size: 1},
		{Key: "other/2015_03_04.tar", Size: 1},
	}}
	days, err := DiscoverDays(context.Background(), lister, "13b-266", "observation_data", "tar")
	require.NoError(t, err)
	require.Equal(t, []Day{{Name: "2015_03_01", Size: 10}, {Name: "2015_03_02", Size: 20}}, days)
	require.Equal(t, []string{"2015_03_01", "2015_03_02"}, DayNames(days))

	lister.err = errors.New("timeout")
	_, err = DiscoverDays(context.Background(), lister, "13b-266", "observation_data", ".tar")
	require.True(t, cerrors.Is(err, cerrors.ErrRemoteStoreUnavailable))
}

func TestResolveProducts(t *testing.T) {
	t.Parallel()

	lister := &memLister{objects: []ObjectInfo{
		{Key: "image_cube/cube_1.tar", Size: 100},
	}}
	bands, err := frequency.Partition(940, 1000, 4)
	require.NoError(t, err)
	scheme := KeyScheme{Prefix: "image_cube", Ext: "tar"}
	r := NewResolver(lister, "13b-266", scheme, bands, nil)

	ws, err := r.ResolveProducts(context.Background(), []string{"cube_1", "cube_2"})
	require.NoError(t, err)
	require.Equal(t, []string{"cube_2"}, ws.Days())
	require.Equal(t, bands, ws["cube_2"])

	lister.err = errors.New("timeout")
	_, err = r.ResolveProducts(context.Background(), []string{"cube_2"})
	require.True(t, cerrors.Is(err, cerrors.ErrRemoteStoreUnavailable))
}
