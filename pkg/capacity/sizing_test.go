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
	"testing"

	cerrors "github.com/icrar/chiles02/pkg/errors"
	"github.com/stretchr/testify/require"
)

const gb = int64(1) << 30

var testBuckets = []Bucket{
	{InstanceType: "i2.4xlarge", MaxSize: 1000 * gb, ItemsPerInstance: 2, SpotPrice: 1.2},
	{InstanceType: "i2.2xlarge", MaxSize: 500 * gb, ItemsPerInstance: 4, SpotPrice: 0.6},
}

func TestSizeRoundsUp(t *testing.T) {
	t.Parallel()

	items := []Item{
		{Name: "a", Size: 100 * gb},
		{Name: "b", Size: 200 * gb},
		{Name: "c", Size: 300 * gb},
		{Name: "d", Size: 400 * gb},
		{Name: "e", Size: 450 * gb},
		{Name: "f", Size: 600 * gb},
	}
	requests, err := Size(items, testBuckets)
	require.NoError(t, err)
	require.Equal(t, []FlavorRequest{
		{InstanceType: "i2.2xlarge", Count: 2, SpotPrice: 0.6},
		{InstanceType: "i2.4xlarge", Count: 1, SpotPrice: 1.2},
	}, requests)
}

func TestSizeFloorOfOne(t *testing.T) {
	t.Parallel()

	requests, err := Size([]Item{{Name: "a", Size: gb}}, testBuckets)
	require.NoError(t, err)
	require.Equal(t, []FlavorRequest{{InstanceType: "i2.2xlarge", Count: 1, SpotPrice: 0.6}}, requests)

	requests, err = Size(nil, testBuckets)
	require.NoError(t, err)
	require.Empty(t, requests)
}

func TestSizeOversizedGoesToLargest(t *testing.T) {
	t.Parallel()

	requests, err := Size([]Item{{Name: "huge", Size: 5000 * gb}, {Name: "huge2", Size: 5000 * gb}, {Name: "huge3", Size: 1001 * gb}}, testBuckets)
	require.NoError(t, err)
	require.Equal(t, []FlavorRequest{{InstanceType: "i2.4xlarge", Count: 2, SpotPrice: 1.2}}, requests)
}

func TestSizeMergesSameFlavor(t *testing.T) {
	t.Parallel()

	buckets := []Bucket{
		{InstanceType: "i2.2xlarge", MaxSize: 100 * gb, ItemsPerInstance: 1, SpotPrice: 0.6},
		{InstanceType: "i2.2xlarge", MaxSize: 200 * gb, ItemsPerInstance: 1, SpotPrice: 0.6},
	}
	requests, err := Size([]Item{{Size: 50 * gb}, {Size: 150 * gb}}, buckets)
	require.NoError(t, err)
	require.Equal(t, []FlavorRequest{{InstanceType: "i2.2xlarge", Count: 2, SpotPrice: 0.6}}, requests)
}

func TestSizeInvalidBuckets(t *testing.T) {
	t.Parallel()

	_, err := Size([]Item{{Size: 1}}, nil)
	require.True(t, cerrors.Is(err, cerrors.ErrInvalidConfig))

	_, err = Size([]Item{{Size: 1}}, []Bucket{{InstanceType: "i2.2xlarge", MaxSize: 1}})
	require.True(t, cerrors.Is(err, cerrors.ErrInvalidConfig))
}
