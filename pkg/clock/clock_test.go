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

package clock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMockMono(t *testing.T) {
	t.Parallel()

	clk := NewMock()
	start := clk.Mono()
	clk.Add(15 * time.Second)
	require.Equal(t, 15*time.Second, clk.Mono().Sub(start))
}

func TestSleepCanceled(t *testing.T) {
	t.Parallel()

	clk := NewMock()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Sleep(ctx, clk, time.Hour)
	}()
	cancel()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(10 * time.Second):
		require.FailNow(t, "sleep was not unblocked by cancel")
	}
}

func TestSleepFires(t *testing.T) {
	t.Parallel()

	clk := NewMock()
	done := make(chan error, 1)
	go func() {
		done <- Sleep(context.Background(), clk, 15*time.Second)
	}()
	var err error
	require.Eventually(t, func() bool {
		clk.Add(time.Second)
		select {
		case err = <-done:
			return true
		default:
			return false
		}
	}, 10*time.Second, time.Millisecond)
	require.NoError(t, err)
}

func TestSleepNonPositive(t *testing.T) {
	t.Parallel()

	require.NoError(t, Sleep(context.Background(), New(), 0))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, Sleep(ctx, New(), -time.Second), context.Canceled)
}
