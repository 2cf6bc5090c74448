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
	"time"

	bclock "github.com/benbjohnson/clock"
	"github.com/gavv/monotime"
)

type (
	// Timer is the timer returned by Clock.Timer.
	Timer = bclock.Timer
	// MonotonicTime is a reading of the monotonic clock.
	MonotonicTime time.Duration
)

var unixEpoch = time.Unix(0, 0)

// Clock abstracts wall and monotonic time so that waits can be driven by a
// mock in tests.
type Clock interface {
	bclock.Clock
	Mono() MonotonicTime
}

type withRealMono struct {
	bclock.Clock
}

func (r withRealMono) Mono() MonotonicTime {
	return MonotonicTime(monotime.Now())
}

// Mock is a Clock whose time only moves when Add or Set is called.
type Mock struct {
	*bclock.Mock
}

// Mono implements Clock.
func (r Mock) Mono() MonotonicTime {
	return MonotonicTime(r.Now().Sub(unixEpoch))
}

// New returns the real clock.
func New() Clock {
	return withRealMono{bclock.New()}
}

// NewMock returns a mock clock set to the unix epoch.
func NewMock() *Mock {
	return &Mock{bclock.NewMock()}
}

// Sub returns m - other.
func (m MonotonicTime) Sub(other MonotonicTime) time.Duration {
	return time.Duration(m - other)
}

// Sleep blocks for d on clk. It returns early with ctx.Err() if ctx is done first.
func Sleep(ctx context.Context, clk Clock, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := clk.Timer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
