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
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/icrar/chiles02/pkg/clock"
	cerrors "github.com/icrar/chiles02/pkg/errors"
	"github.com/icrar/chiles02/pkg/uuid"
	"github.com/pingcap/errors"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

type fakeChannel struct {
	mu       sync.Mutex
	batches  [][]Message
	errs     []error
	acked    []string
	released []string

	receives atomic.Int32
}

func (f *fakeChannel) Receive(ctx context.Context) ([]Message, error) {
	f.receives.Inc()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	if len(f.batches) == 0 {
		return nil, nil
	}
	batch := f.batches[0]
	f.batches = f.batches[1:]
	return batch, nil
}

func (f *fakeChannel) Ack(_ context.Context, msg Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acked = append(f.acked, msg.Handle)
	return nil
}

func (f *fakeChannel) Release(_ context.Context, msg Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released = append(f.released, msg.Handle)
	return nil
}

type fakeProvisioner struct {
	mu       sync.Mutex
	requests []CapacityRequest
	fail     string
}

func (f *fakeProvisioner) RequestCapacity(_ context.Context, req CapacityRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if req.Flavor.InstanceType == f.fail {
		return errors.New("InsufficientInstanceCapacity")
	}
	f.requests = append(f.requests, req)
	return nil
}

func readiness(handle, correlationID, instanceType, ip string) Message {
	return Message{
		ID:            handle,
		Handle:        handle,
		CorrelationID: correlationID,
		Readiness:     &NodeReadiness{InstanceType: instanceType, IPAddress: ip},
	}
}

// drive advances clk until the returned channel of run is closed.
func drive(t *testing.T, clk *clock.Mock, done <-chan struct{}) {
	require.Eventually(t, func() bool {
		clk.Add(time.Second)
		select {
		case <-done:
			return true
		default:
			return false
		}
	}, 10*time.Second, time.Millisecond)
}

func TestAwaitReadyTimesOutWithPartialResult(t *testing.T) {
	t.Parallel()

	ch := &fakeChannel{batches: [][]Message{
		{readiness("h1", "round-1", "i2.2xlarge", "10.0.0.1")},
		{
			readiness("h2", "round-1", "i2.2xlarge", "10.0.0.2"),
			// redelivery of the first message
			readiness("h3", "round-1", "i2.2xlarge", "10.0.0.1"),
			readiness("h4", "round-0", "i2.2xlarge", "10.0.0.9"),
		},
	}}
	clk := clock.NewMock()
	coord := NewCoordinator(&fakeProvisioner{}, ch, WithClock(clk), WithPollInterval(15*time.Second))
	round := &Round{CorrelationID: "round-1", Required: map[string]int{"i2.2xlarge": 3}}

	start := clk.Now()
	var (
		ready *Ready
		err   error
	)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ready, err = coord.AwaitReady(context.Background(), round, 30*time.Second)
	}()
	drive(t, clk, done)

	require.NoError(t, err)
	require.Equal(t, StateTimedOut, ready.State)
	require.Equal(t, StateTimedOut, round.State)
	require.False(t, ready.Satisfied())
	require.Equal(t, map[string][]string{"i2.2xlarge": {"10.0.0.1", "10.0.0.2"}}, ready.Nodes)
	require.Equal(t, 2, ready.Count())
	require.Equal(t, map[string]int{"i2.2xlarge": 1}, round.Shortfall(ready))
	require.GreaterOrEqual(t, clk.Now().Sub(start), 30*time.Second)
	require.GreaterOrEqual(t, ready.Elapsed, 30*time.Second)
	require.Equal(t, int32(3), ch.receives.Load())

	ch.mu.Lock()
	defer ch.mu.Unlock()
	require.Equal(t, []string{"h1", "h2", "h3"}, ch.acked)
	require.Equal(t, []string{"h4"}, ch.released)
}

func TestAwaitReadySatisfied(t *testing.T) {
	t.Parallel()

	ch := &fakeChannel{batches: [][]Message{{
		readiness("h1", "round-1", "i2.2xlarge", "10.0.0.1"),
		readiness("h2", "round-1", "i2.4xlarge", "10.0.0.2"),
		{ID: "h3", Handle: "h3", CorrelationID: "round-1"},
	}}}
	clk := clock.NewMock()
	coord := NewCoordinator(&fakeProvisioner{}, ch, WithClock(clk))
	round := &Round{CorrelationID: "round-1", Required: map[string]int{"i2.2xlarge": 1, "i2.4xlarge": 1}}

	ready, err := coord.AwaitReady(context.Background(), round, time.Minute)
	require.NoError(t, err)
	require.True(t, ready.Satisfied())
	require.Equal(t, StateSatisfied, round.State)
	require.Equal(t, 2, ready.Count())
	require.Empty(t, round.Shortfall(ready))
	require.Zero(t, ready.Elapsed)
	// the malformed message is consumed too
	require.Len(t, ch.acked, 3)
}

func TestAwaitReadyZeroReadyIsNotAnError(t *testing.T) {
	t.Parallel()

	ch := &fakeChannel{errs: []error{errors.New("throttled")}}
	clk := clock.NewMock()
	coord := NewCoordinator(&fakeProvisioner{}, ch, WithClock(clk), WithPollInterval(15*time.Second))
	round := &Round{CorrelationID: "round-1", Required: map[string]int{"i2.2xlarge": 1}}

	var (
		ready *Ready
		err   error
	)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ready, err = coord.AwaitReady(context.Background(), round, 45*time.Second)
	}()
	drive(t, clk, done)

	require.NoError(t, err)
	require.Equal(t, StateTimedOut, ready.State)
	require.Zero(t, ready.Count())
	require.Equal(t, int32(4), ch.receives.Load())
}

func TestAwaitReadyCanceled(t *testing.T) {
	t.Parallel()

	ch := &fakeChannel{batches: [][]Message{{readiness("h1", "round-1", "i2.2xlarge", "10.0.0.1")}}}
	clk := clock.NewMock()
	coord := NewCoordinator(&fakeProvisioner{}, ch, WithClock(clk))
	round := &Round{CorrelationID: "round-1", Required: map[string]int{"i2.2xlarge": 2}}

	ctx, cancel := context.WithCancel(context.Background())
	var (
		ready *Ready
		err   error
	)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ready, err = coord.AwaitReady(ctx, round, time.Hour)
	}()
	require.Eventually(t, func() bool { return ch.receives.Load() == 1 }, 10*time.Second, time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		require.FailNow(t, "AwaitReady was not unblocked by cancel")
	}

	require.Equal(t, context.Canceled, errors.Cause(err))
	require.Equal(t, []string{"10.0.0.1"}, ready.Nodes["i2.2xlarge"])
}

func TestProvision(t *testing.T) {
	t.Parallel()

	prov := &fakeProvisioner{}
	gen := uuid.NewMock()
	gen.Push("round-1")
	coord := NewCoordinator(prov, &fakeChannel{}, WithUUIDGenerator(gen))

	round, err := coord.Provision(context.Background(), Request{
		ImageID: "ami-7b1e4c1a",
		Flavors: []FlavorRequest{
			{InstanceType: "i2.2xlarge", Count: 2, SpotPrice: 0.6},
			{InstanceType: "i2.4xlarge", Count: 1, SpotPrice: 1.2},
			{InstanceType: "m4.large", Count: 0},
		},
		UserData: UserData(Bootstrap{Role: RoleNodeManager, Region: "us-west-2", QueueURL: "https://sqs/q"}),
		Tags:     map[string]string{"Owner": "kevin", "Name": "DFMS Node - Clean"},
	})
	require.NoError(t, err)
	require.Equal(t, "round-1", round.CorrelationID)
	require.Equal(t, StateRequested, round.State)
	require.Equal(t, map[string]int{"i2.2xlarge": 2, "i2.4xlarge": 1}, round.Required)
	require.Equal(t, 3, round.Total())

	prov.mu.Lock()
	defer prov.mu.Unlock()
	require.Len(t, prov.requests, 2)
	for _, req := range prov.requests {
		require.Equal(t, "ami-7b1e4c1a", req.ImageID)
		require.Equal(t, "round-1", req.Tags[CorrelationTag])
		require.Equal(t, "kevin", req.Tags["Owner"])
		require.True(t, strings.Contains(req.UserData, `"StringValue": "round-1"`))
	}
}

func TestProvisionFailure(t *testing.T) {
	t.Parallel()

	gen := uuid.NewMock()
	gen.Push("round-1")
	coord := NewCoordinator(&fakeProvisioner{fail: "i2.4xlarge"}, &fakeChannel{}, WithUUIDGenerator(gen))
	_, err := coord.Provision(context.Background(), Request{
		Flavors: []FlavorRequest{
			{InstanceType: "i2.2xlarge", Count: 2},
			{InstanceType: "i2.4xlarge", Count: 1},
		},
	})
	require.True(t, cerrors.Is(err, cerrors.ErrCapacityRequestFailed))
	require.Equal(t, cerrors.ClassCapacity, cerrors.Classify(err))
	require.Contains(t, err.Error(), "1 x i2.4xlarge")
}

func TestStateString(t *testing.T) {
	t.Parallel()

	require.Equal(t, "timed-out", StateTimedOut.String())
	require.Equal(t, "unknown(9)", State(9).String())
}
