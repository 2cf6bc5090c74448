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

package graphbuilder

import (
	"sort"

	cerrors "github.com/icrar/chiles02/pkg/errors"
)

// ComputeNode is a node manager that reported ready.
type ComputeNode struct {
	Address string
	Flavor  string
	// Streams is the number of chains the node runs in parallel. It weighs
	// the node in scheduling.
	Streams int
}

type slot struct {
	node ComputeNode
	load int
}

// NodeScheduler places chains on compute nodes. It always picks the node
// with the lowest load relative to its streams, so nodes of the same flavor
// receive the same number of chains, give or take one. Ties are broken by
// flavor then address, which keeps graphs reproducible.
type NodeScheduler struct {
	slots []*slot
}

// NewNodeScheduler creates a scheduler over nodes. A non-positive Streams is
// treated as 1.
func NewNodeScheduler(nodes []ComputeNode) *NodeScheduler {
	slots := make([]*slot, 0, len(nodes))
	for _, n := range nodes {
		if n.Streams <= 0 {
			n.Streams = 1
		}
		slots = append(slots, &slot{node: n})
	}
	sort.SliceStable(slots, func(i, j int) bool {
		if slots[i].node.Flavor != slots[j].node.Flavor {
			return slots[i].node.Flavor < slots[j].node.Flavor
		}
		return slots[i].node.Address < slots[j].node.Address
	})
	return &NodeScheduler{slots: slots}
}

// NodesFromReady flattens a flavor to addresses map, as returned by the
// capacity coordinator, into compute nodes. streams gives the parallel
// streams of each flavor; flavors missing from it get defaultStreams.
func NodesFromReady(ready map[string][]string, streams map[string]int, defaultStreams int) []ComputeNode {
	var nodes []ComputeNode
	for flavor, addrs := range ready {
		s, ok := streams[flavor]
		if !ok {
			s = defaultStreams
		}
		for _, addr := range addrs {
			nodes = append(nodes, ComputeNode{Address: addr, Flavor: flavor, Streams: s})
		}
	}
	return nodes
}

// Schedule picks the node for the next chain and charges it one unit.
func (s *NodeScheduler) Schedule(what string) (ComputeNode, error) {
	if len(s.slots) == 0 {
		return ComputeNode{}, cerrors.ErrEmptyNodePool.GenWithStackByArgs(what)
	}
	best := s.slots[0]
	for _, sl := range s.slots[1:] {
		// sl.load/sl.streams < best.load/best.streams
		if sl.load*best.node.Streams < best.load*sl.node.Streams {
			best = sl
		}
	}
	best.load++
	return best.node, nil
}

// Primary returns the first node in scheduling order. It hosts the drops
// that belong to the whole run, like the barrier.
func (s *NodeScheduler) Primary() (ComputeNode, error) {
	if len(s.slots) == 0 {
		return ComputeNode{}, cerrors.ErrEmptyNodePool.GenWithStackByArgs("barrier")
	}
	return s.slots[0].node, nil
}

// Nodes returns every node in scheduling order.
func (s *NodeScheduler) Nodes() []ComputeNode {
	nodes := make([]ComputeNode, 0, len(s.slots))
	for _, sl := range s.slots {
		nodes = append(nodes, sl.node)
	}
	return nodes
}

// Loads returns the number of chains placed on each address.
func (s *NodeScheduler) Loads() map[string]int {
	loads := make(map[string]int, len(s.slots))
	for _, sl := range s.slots {
		loads[sl.node.Address] = sl.load
	}
	return loads
}
