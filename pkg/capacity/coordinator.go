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
	"time"

	"github.com/icrar/chiles02/pkg/clock"
	cerrors "github.com/icrar/chiles02/pkg/errors"
	"github.com/icrar/chiles02/pkg/uuid"
	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultPollInterval is the delay between two checks of the readiness
// channel.
const DefaultPollInterval = 15 * time.Second

// CorrelationTag is the tag and message attribute carrying the correlation id.
const CorrelationTag = "uuid"

// Coordinator requests capacity and waits for it to report ready.
//
// Messages are claimed by deleting them, so at most one coordinator may
// wait on a given correlation id.
type Coordinator struct {
	provisioner  Provisioner
	channel      ReadinessChannel
	clock        clock.Clock
	uuid         uuid.Generator
	pollInterval time.Duration
}

// Option customizes a Coordinator.
type Option func(*Coordinator)

// WithClock sets the clock driving the poll loop.
func WithClock(clk clock.Clock) Option {
	return func(c *Coordinator) { c.clock = clk }
}

// WithUUIDGenerator sets the generator of correlation ids.
func WithUUIDGenerator(gen uuid.Generator) Option {
	return func(c *Coordinator) { c.uuid = gen }
}

// WithPollInterval sets the delay between two checks. Non-positive values
// keep the default.
func WithPollInterval(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.pollInterval = d
		}
	}
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(p Provisioner, ch ReadinessChannel, opts ...Option) *Coordinator {
	c := &Coordinator{
		provisioner:  p,
		channel:      ch,
		clock:        clock.New(),
		uuid:         uuid.NewGenerator(),
		pollInterval: DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Provision issues one capacity request per flavor under a fresh
// correlation id. The request itself is never retried here.
func (c *Coordinator) Provision(ctx context.Context, req Request) (*Round, error) {
	round := &Round{
		CorrelationID: c.uuid.NewString(),
		Required:      make(map[string]int),
		State:         StateRequested,
	}

	userData := ""
	if req.UserData != nil {
		var err error
		if userData, err = req.UserData(round.CorrelationID); err != nil {
			return nil, errors.Trace(err)
		}
	}
	tags := make(map[string]string, len(req.Tags)+1)
	for k, v := range req.Tags {
		tags[k] = v
	}
	tags[CorrelationTag] = round.CorrelationID

	eg, egCtx := errgroup.WithContext(ctx)
	for _, flavor := range req.Flavors {
		if flavor.Count <= 0 {
			continue
		}
		round.Required[flavor.InstanceType] += flavor.Count
		flavor := flavor
		eg.Go(func() error {
			err := c.provisioner.RequestCapacity(egCtx, CapacityRequest{
				ImageID:       req.ImageID,
				Flavor:        flavor,
				UserData:      userData,
				Tags:          tags,
				CorrelationID: round.CorrelationID,
			})
			if err != nil {
				if cerrors.Is(err, cerrors.ErrCapacityRequestFailed) {
					return errors.Trace(err)
				}
				return cerrors.WrapError(cerrors.ErrCapacityRequestFailed, err, flavor.Count, flavor.InstanceType)
			}
			requestedNodesCounter.WithLabelValues(flavor.InstanceType).Add(float64(flavor.Count))
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	log.Info("capacity requested",
		zap.String("correlationID", round.CorrelationID),
		zap.Any("required", round.Required))
	return round, nil
}

// AwaitReady polls the readiness channel until every flavor of round has
// its required number of nodes or timeout elapses.
//
// Running out of time is not an error: the returned Ready is TimedOut and
// holds the nodes seen so far. If ctx is done first, the partial result is
// returned together with the context error.
func (c *Coordinator) AwaitReady(ctx context.Context, round *Round, timeout time.Duration) (*Ready, error) {
	start := c.clock.Mono()
	ready := &Ready{Nodes: make(map[string][]string), State: StatePolling}
	seen := make(map[string]struct{})
	round.State = StatePolling

	defer func() {
		ready.Elapsed = c.clock.Mono().Sub(start)
		waitDuration.Observe(ready.Elapsed.Seconds())
		for flavor, addrs := range ready.Nodes {
			readyNodesGauge.WithLabelValues(flavor).Set(float64(len(addrs)))
		}
	}()

	for {
		if err := c.check(ctx, round, ready, seen); err != nil {
			return ready, err
		}
		if satisfied(round.Required, ready.Nodes) {
			round.State, ready.State = StateSatisfied, StateSatisfied
			log.Info("all nodes reported ready",
				zap.String("correlationID", round.CorrelationID),
				zap.Int("count", ready.Count()),
				zap.Duration("elapsed", c.clock.Mono().Sub(start)))
			return ready, nil
		}

		remaining := timeout - c.clock.Mono().Sub(start)
		if remaining <= 0 {
			round.State, ready.State = StateTimedOut, StateTimedOut
			log.Warn("timed out waiting for nodes",
				zap.String("correlationID", round.CorrelationID),
				zap.Int("required", round.Total()),
				zap.Int("ready", ready.Count()))
			return ready, nil
		}
		wait := c.pollInterval
		if remaining < wait {
			wait = remaining
		}
		if err := clock.Sleep(ctx, c.clock, wait); err != nil {
			return ready, errors.Trace(err)
		}
	}
}

// check drains the messages currently available once.
func (c *Coordinator) check(ctx context.Context, round *Round, ready *Ready, seen map[string]struct{}) error {
	msgs, err := c.channel.Receive(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return errors.Trace(ctx.Err())
		}
		// a failed receive is retried on the next tick
		readinessMessageCounter.WithLabelValues("receive-error").Inc()
		log.Warn("receive readiness messages failed", zap.Error(err))
		return nil
	}

	var channelErr error
	for _, msg := range msgs {
		if msg.CorrelationID != round.CorrelationID {
			readinessMessageCounter.WithLabelValues("foreign").Inc()
			channelErr = multierr.Append(channelErr, c.channel.Release(ctx, msg))
			continue
		}
		channelErr = multierr.Append(channelErr, c.channel.Ack(ctx, msg))
		if msg.Readiness == nil || msg.Readiness.IPAddress == "" {
			readinessMessageCounter.WithLabelValues("malformed").Inc()
			log.Warn("drop malformed readiness message", zap.String("messageID", msg.ID))
			continue
		}
		addr := msg.Readiness.IPAddress
		if _, ok := seen[addr]; ok {
			readinessMessageCounter.WithLabelValues("duplicate").Inc()
			continue
		}
		seen[addr] = struct{}{}
		readinessMessageCounter.WithLabelValues("ready").Inc()
		flavor := msg.Readiness.InstanceType
		ready.Nodes[flavor] = append(ready.Nodes[flavor], addr)
		log.Info("node reported ready",
			zap.String("instanceType", flavor),
			zap.String("address", addr),
			zap.Int("ready", len(ready.Nodes[flavor])),
			zap.Int("required", round.Required[flavor]))
	}
	if channelErr != nil {
		log.Warn("readiness channel bookkeeping failed",
			zap.Error(cerrors.WrapError(cerrors.ErrReadinessChannel, channelErr, "ack")))
	}
	return nil
}

func satisfied(required map[string]int, nodes map[string][]string) bool {
	for flavor, n := range required {
		if len(nodes[flavor]) < n {
			return false
		}
	}
	return true
}

// Shortfall returns, per flavor, how many required nodes did not report.
func (r *Round) Shortfall(ready *Ready) map[string]int {
	missing := make(map[string]int)
	for flavor, n := range r.Required {
		if got := len(ready.Nodes[flavor]); got < n {
			missing[flavor] = n - got
		}
	}
	return missing
}
