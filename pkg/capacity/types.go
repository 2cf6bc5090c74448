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
	"fmt"
	"time"
)

// FlavorRequest asks for Count instances of one instance type at a maximum
// spot price.
type FlavorRequest struct {
	InstanceType string  `json:"instance_type"`
	Count        int     `json:"number_instances"`
	SpotPrice    float64 `json:"spot_price"`
}

// Request is one provisioning round: every flavor is started from the same
// image with the same bootstrap payload.
type Request struct {
	ImageID  string
	Flavors  []FlavorRequest
	UserData UserDataFunc
	Tags     map[string]string
}

// UserDataFunc renders the bootstrap payload for a round. It receives the
// correlation id the nodes must report back with.
type UserDataFunc func(correlationID string) (string, error)

// CapacityRequest is the request sent to the provisioner for one flavor.
type CapacityRequest struct {
	ImageID       string
	Flavor        FlavorRequest
	UserData      string
	Tags          map[string]string
	CorrelationID string
}

// NodeReadiness is the payload a node sends once it is ready to accept work.
type NodeReadiness struct {
	InstanceType string `json:"instance_type"`
	IPAddress    string `json:"ip_address"`
}

// Message is one notification taken from the readiness channel.
type Message struct {
	ID string
	// Handle identifies this delivery of the message for Ack and Release.
	Handle        string
	CorrelationID string
	// Readiness is nil when the body could not be decoded.
	Readiness *NodeReadiness
}

// Provisioner starts instances.
type Provisioner interface {
	RequestCapacity(ctx context.Context, req CapacityRequest) error
}

// ReadinessChannel is the at-least-once notification channel nodes report
// readiness on.
type ReadinessChannel interface {
	// Receive returns the messages currently available, possibly none.
	Receive(ctx context.Context) ([]Message, error)
	// Ack removes a consumed message from the channel.
	Ack(ctx context.Context, msg Message) error
	// Release makes a message that belongs to another round visible again.
	Release(ctx context.Context, msg Message) error
}

// State is the state of a provisioning round.
type State int

// States of a provisioning round.
const (
	StateRequested State = iota
	StatePolling
	StateSatisfied
	StateTimedOut
)

func (s State) String() string {
	switch s {
	case StateRequested:
		return "requested"
	case StatePolling:
		return "polling"
	case StateSatisfied:
		return "satisfied"
	case StateTimedOut:
		return "timed-out"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Round tracks one provisioning round.
type Round struct {
	CorrelationID string
	// Required is the number of nodes expected per instance type.
	Required map[string]int
	State    State
}

// Total returns the number of nodes required over all flavors.
func (r *Round) Total() int {
	n := 0
	for _, c := range r.Required {
		n += c
	}
	return n
}

// Ready is the outcome of waiting for a round. A timed out round is not an
// error: Nodes then holds whatever reported ready, possibly nothing.
type Ready struct {
	// Nodes maps an instance type to the addresses of its ready nodes, in
	// the order they reported.
	Nodes map[string][]string
	State State
	// Elapsed is the time spent waiting, on the monotonic clock.
	Elapsed time.Duration
}

// Count returns the number of ready nodes.
func (r *Ready) Count() int {
	n := 0
	for _, addrs := range r.Nodes {
		n += len(addrs)
	}
	return n
}

// Satisfied reports whether every required node reported ready.
func (r *Ready) Satisfied() bool {
	return r.State == StateSatisfied
}
