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

package graph

import (
	"fmt"
	"sort"

	cerrors "github.com/icrar/chiles02/pkg/errors"
)

// Graph is an ordered set of nodes and the edges between them.
type Graph struct {
	nodes []*Node
	index map[string]*Node

	// Barrier is the id of the terminal barrier app, empty if there is none.
	Barrier string
}

// New creates an empty Graph.
func New() *Graph {
	return &Graph{index: make(map[string]*Node)}
}

// Add appends n. The id must be unused.
func (g *Graph) Add(n *Node) error {
	if _, ok := g.index[n.OID]; ok {
		return cerrors.ErrInvalidGraph.GenWithStackByArgs(fmt.Sprintf("duplicated id %s", n.OID))
	}
	g.nodes = append(g.nodes, n)
	g.index[n.OID] = n
	return nil
}

// Node returns the node with the given id.
func (g *Graph) Node(oid string) (*Node, bool) {
	n, ok := g.index[oid]
	return n, ok
}

// Nodes returns the nodes in insertion order. The slice must not be modified.
func (g *Graph) Nodes() []*Node {
	return g.nodes
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// Connect adds the edge from -> to. A non app node accepts at most one
// producing app.
func (g *Graph) Connect(from, to string) error {
	src, ok := g.index[from]
	if !ok {
		return cerrors.ErrNodeNotFound.GenWithStackByArgs(from)
	}
	dst, ok := g.index[to]
	if !ok {
		return cerrors.ErrNodeNotFound.GenWithStackByArgs(to)
	}
	if src.IsApp() && !dst.IsApp() {
		for _, in := range dst.Inputs {
			if in != from && g.index[in].IsApp() {
				return cerrors.ErrDuplicateProducer.GenWithStackByArgs(to, in, from)
			}
		}
	}
	src.Outputs = appendUnique(src.Outputs, to)
	dst.Inputs = appendUnique(dst.Inputs, from)
	return nil
}

// Roots returns the ids of nodes without inputs, in insertion order.
func (g *Graph) Roots() []string {
	var roots []string
	for _, n := range g.nodes {
		if len(n.Inputs) == 0 {
			roots = append(roots, n.OID)
		}
	}
	return roots
}

// Validate checks the structural guarantees of a built graph: edges are
// symmetric and join an app with a data node, there is no cycle, roots is
// exactly the set of nodes without inputs and only roots lack an input.
func (g *Graph) Validate(roots []string) error {
	if err := g.checkEdges(); err != nil {
		return err
	}

	rootSet := make(map[string]struct{}, len(roots))
	for _, r := range roots {
		if _, ok := g.index[r]; !ok {
			return invalid("root %s is not in the graph", r)
		}
		rootSet[r] = struct{}{}
	}
	for _, n := range g.nodes {
		_, isRoot := rootSet[n.OID]
		if len(n.Inputs) == 0 && !isRoot {
			return invalid("node %s has no input but is not a root", n.OID)
		}
		if len(n.Inputs) > 0 && isRoot {
			return invalid("root %s has inputs", n.OID)
		}
	}
	if len(rootSet) != len(roots) {
		return invalid("roots contain duplicates")
	}

	return g.checkAcyclic()
}

func (g *Graph) checkEdges() error {
	for _, n := range g.nodes {
		for _, out := range n.Outputs {
			dst, ok := g.index[out]
			if !ok {
				return invalid("node %s outputs to unknown node %s", n.OID, out)
			}
			if !contains(dst.Inputs, n.OID) {
				return invalid("edge %s -> %s is not mirrored in inputs", n.OID, out)
			}
			if n.IsApp() == dst.IsApp() {
				return invalid("edge %s -> %s joins two nodes of the same family", n.OID, out)
			}
		}
		for _, in := range n.Inputs {
			src, ok := g.index[in]
			if !ok {
				return invalid("node %s reads from unknown node %s", n.OID, in)
			}
			if !contains(src.Outputs, n.OID) {
				return invalid("edge %s -> %s is not mirrored in outputs", in, n.OID)
			}
		}
	}
	return nil
}

// checkAcyclic runs Kahn's algorithm.
func (g *Graph) checkAcyclic() error {
	indegree := make(map[string]int, len(g.nodes))
	queue := make([]string, 0, len(g.nodes))
	for _, n := range g.nodes {
		indegree[n.OID] = len(n.Inputs)
		if len(n.Inputs) == 0 {
			queue = append(queue, n.OID)
		}
	}
	visited := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		visited++
		for _, out := range g.index[id].Outputs {
			indegree[out]--
			if indegree[out] == 0 {
				queue = append(queue, out)
			}
		}
	}
	if visited != len(g.nodes) {
		var cyclic []string
		for id, d := range indegree {
			if d > 0 {
				cyclic = append(cyclic, id)
			}
		}
		sort.Strings(cyclic)
		return invalid("cycle through %v", cyclic)
	}
	return nil
}

// Hosts returns the distinct hosts nodes are placed on, sorted.
func (g *Graph) Hosts() []string {
	seen := make(map[string]struct{})
	for _, n := range g.nodes {
		if n.Host != "" {
			seen[n.Host] = struct{}{}
		}
	}
	hosts := make([]string, 0, len(seen))
	for h := range seen {
		hosts = append(hosts, h)
	}
	sort.Strings(hosts)
	return hosts
}

func contains(list []string, id string) bool {
	for _, v := range list {
		if v == id {
			return true
		}
	}
	return false
}

func invalid(format string, args ...interface{}) error {
	return cerrors.ErrInvalidGraph.GenWithStackByArgs(fmt.Sprintf(format, args...))
}
