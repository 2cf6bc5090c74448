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
	"fmt"
	"path"

	"github.com/icrar/chiles02/pkg/frequency"
	"github.com/icrar/chiles02/pkg/graph"
	"github.com/icrar/chiles02/pkg/uuid"
	"github.com/icrar/chiles02/pkg/workset"
	"github.com/pingcap/errors"
)

// Images are the docker images the apps run in.
type Images struct {
	Chiles02   string
	JavaS3Copy string
}

// Config is everything a build needs besides the work set.
type Config struct {
	Bucket string
	// Profile names the credentials the node managers use for S3.
	Profile string
	// Volume is the directory on the node managers bound into the apps.
	Volume    string
	SessionID string
	Nodes     []ComputeNode
	Images    Images

	// InputPrefix holds the observations for mstransform and the folders
	// copied by clean.
	InputPrefix string
	// Input names the per partition objects read by concatenation,
	// jpeg2000 and stats.
	Input workset.KeyScheme
	// Output names the per partition objects written by the build. The work
	// resolver must be configured with the same scheme.
	Output workset.KeyScheme

	Width      int
	Iterations int
	// GroupSize is the number of sub-bands chained in one clean group.
	GroupSize int

	// Shutdown adds a shutdown app on every node after its logs are copied.
	Shutdown bool
	// Tags are added to every app node.
	Tags map[string]string

	// UUID generates the uid of every node. Defaults to random uuids.
	UUID uuid.Generator
}

// CarryOver is the state a variant keeps per compute node between the
// chains it places there. Each of the node's streams remembers the final
// output of its last chain, and the next chain on that stream waits for it.
type CarryOver struct {
	tails []string
	next  int
}

// NewCarryOver creates a CarryOver with the given number of streams.
func NewCarryOver(streams int) *CarryOver {
	if streams <= 0 {
		streams = 1
	}
	return &CarryOver{tails: make([]string, streams)}
}

// Previous returns the tail of the stream the next chain runs on, or "" if
// the stream is still empty.
func (c *CarryOver) Previous() string {
	return c.tails[c.next%len(c.tails)]
}

// Advance records tail as the end of the chain just built and moves to the
// next stream.
func (c *CarryOver) Advance(tail string) {
	c.tails[c.next%len(c.tails)] = tail
	c.next++
}

// Streams returns the number of streams.
func (c *CarryOver) Streams() int {
	return len(c.tails)
}

// Context is the state of one build. It owns the graph under construction,
// the id counters and the placement of chains, and is never shared between
// builds.
type Context struct {
	cfg       *Config
	graph     *graph.Graph
	ids       *graph.IDAllocator
	uuid      uuid.Generator
	scheduler *NodeScheduler
	carry     map[string]*CarryOver
	outputs   []string
}

func newContext(cfg *Config, newCarry func(streams int) *CarryOver) *Context {
	gen := cfg.UUID
	if gen == nil {
		gen = uuid.NewGenerator()
	}
	sched := NewNodeScheduler(cfg.Nodes)
	carry := make(map[string]*CarryOver, len(cfg.Nodes))
	for _, n := range sched.Nodes() {
		carry[n.Address] = newCarry(n.Streams)
	}
	return &Context{
		cfg:       cfg,
		graph:     graph.New(),
		ids:       graph.NewIDAllocator(),
		uuid:      gen,
		scheduler: sched,
		carry:     carry,
	}
}

// Graph returns the graph under construction.
func (c *Context) Graph() *graph.Graph {
	return c.graph
}

// Schedule places a chain and returns its node with the node's carry-over.
func (c *Context) Schedule(what string) (ComputeNode, *CarryOver, error) {
	node, err := c.scheduler.Schedule(what)
	if err != nil {
		return ComputeNode{}, nil, errors.Trace(err)
	}
	return node, c.carry[node.Address], nil
}

// AddOutput registers the final output of a chain. The barrier waits for
// every registered output.
func (c *Context) AddOutput(oid string) {
	c.outputs = append(c.outputs, oid)
}

func (c *Context) add(n *graph.Node) (*graph.Node, error) {
	if err := c.graph.Add(n); err != nil {
		return nil, err
	}
	return n, nil
}

// Connect wires from -> to.
func (c *Context) Connect(from, to string) error {
	return errors.Trace(c.graph.Connect(from, to))
}

// Pipe wires in -> app -> out.
func (c *Context) Pipe(in, app, out string) error {
	if err := c.Connect(in, app); err != nil {
		return err
	}
	return c.Connect(app, out)
}

func (c *Context) newNode(oidType string, kind graph.Kind, host string) *graph.Node {
	return &graph.Node{
		OID:  c.ids.Next(oidType),
		UID:  c.uuid.NewString(),
		Kind: kind,
		Host: host,
	}
}

// S3 adds an S3 object drop.
func (c *Context) S3(host, bucket, key, oidType string) (*graph.Node, error) {
	n := c.newNode(oidType, graph.KindPlain, host)
	n.Data = &graph.DataSpec{
		Storage:        graph.StorageS3,
		Bucket:         bucket,
		Key:            key,
		Profile:        c.cfg.Profile,
		ExpireAfterUse: true,
	}
	return c.add(n)
}

// Directory adds a directory container under the volume.
func (c *Context) Directory(host, oidType string, expireAfterUse bool) (*graph.Node, error) {
	n := c.newNode(oidType, graph.KindContainer, host)
	n.Data = &graph.DataSpec{
		Container:      ContainerDirectory,
		Dirname:        path.Join(c.cfg.Volume, n.OID),
		ExpireAfterUse: expireAfterUse,
	}
	return c.add(n)
}

// File adds a plain file drop under the volume.
func (c *Context) File(host, oidType string) (*graph.Node, error) {
	n := c.newNode(oidType, graph.KindPlain, host)
	n.Data = &graph.DataSpec{
		Storage: graph.StorageFile,
		Dirname: path.Join(c.cfg.Volume, n.OID),
	}
	return c.add(n)
}

// Memory adds an in-memory drop.
func (c *Context) Memory(host, oidType string) (*graph.Node, error) {
	n := c.newNode(oidType, graph.KindPlain, host)
	n.Data = &graph.DataSpec{Storage: graph.StorageMemory}
	return c.add(n)
}

// JSON adds a json drop under the volume.
func (c *Context) JSON(host, oidType string) (*graph.Node, error) {
	n := c.newNode(oidType, graph.KindPlain, host)
	n.Data = &graph.DataSpec{
		Storage: graph.StorageJSON,
		Dirname: path.Join(c.cfg.Volume, n.OID),
	}
	return c.add(n)
}

// App adds an app drop of the given class.
func (c *Context) App(host, class, oidType string) (*graph.Node, error) {
	n := c.newNode(oidType, graph.KindApp, host)
	n.App = &graph.AppSpec{
		Class:               class,
		User:                defaultUser,
		InputErrorThreshold: defaultInputErrorThreshold,
	}
	c.tag(n)
	return c.add(n)
}

// DockerApp adds an app running command in image as root, bound to band.
func (c *Context) DockerApp(
	host, class, oidType, image, command string, band frequency.Pair,
) (*graph.Node, error) {
	n, err := c.App(host, class, oidType)
	if err != nil {
		return nil, err
	}
	n.App.Image = image
	n.App.Command = command
	n.App.User = "root"
	n.App.MinFrequency = band.Low
	n.App.MaxFrequency = band.High
	return n, nil
}

// Bash adds a bash shell app.
func (c *Context) Bash(host, command string) (*graph.Node, error) {
	n, err := c.App(host, ClassBashShell, "bash_shell_app")
	if err != nil {
		return nil, err
	}
	n.App.Command = command
	return n, nil
}

func (c *Context) tag(n *graph.Node) {
	if len(c.cfg.Tags) == 0 && c.cfg.SessionID == "" {
		return
	}
	n.Params = make(map[string]string, len(c.cfg.Tags)+1)
	for k, v := range c.cfg.Tags {
		n.Params[k] = v
	}
	if c.cfg.SessionID != "" {
		n.Params["session_id"] = c.cfg.SessionID
	}
}

// finish adds the barrier fed by every chain output, then per node the log
// copy and the optional shutdown, and validates the result.
func (c *Context) finish() (*Result, error) {
	primary, err := c.scheduler.Primary()
	if err != nil {
		return nil, errors.Trace(err)
	}
	barrier, err := c.App(primary.Address, ClassBarrier, "chiles02_barrier_app")
	if err != nil {
		return nil, err
	}
	for _, out := range c.outputs {
		if err := c.Connect(out, barrier.OID); err != nil {
			return nil, err
		}
	}
	done, err := c.Memory(primary.Address, "barrier_done")
	if err != nil {
		return nil, err
	}
	if err := c.Connect(barrier.OID, done.OID); err != nil {
		return nil, err
	}
	c.graph.Barrier = barrier.OID

	for _, node := range c.scheduler.Nodes() {
		copyLogs, err := c.App(node.Address, ClassCopyLogFiles, "copy_log_files_app")
		if err != nil {
			return nil, err
		}
		logKey := fmt.Sprintf("%s/%s.tar", c.logPrefix(), node.Address)
		logs, err := c.S3(node.Address, c.cfg.Bucket, logKey, "s3_out")
		if err != nil {
			return nil, err
		}
		if err := c.Pipe(done.OID, copyLogs.OID, logs.OID); err != nil {
			return nil, err
		}
		if c.cfg.Shutdown {
			shutdown, err := c.Bash(node.Address, shutdownCommand)
			if err != nil {
				return nil, err
			}
			if err := c.Connect(logs.OID, shutdown.OID); err != nil {
				return nil, err
			}
		}
	}

	roots := c.graph.Roots()
	if err := c.graph.Validate(roots); err != nil {
		return nil, errors.Trace(err)
	}
	return &Result{Graph: c.graph, Roots: roots, Barrier: barrier.OID}, nil
}

func (c *Context) logPrefix() string {
	if c.cfg.SessionID != "" {
		return c.cfg.SessionID
	}
	return "logs"
}

func setParams(n *graph.Node, params map[string]string) {
	if n.Params == nil {
		n.Params = make(map[string]string, len(params))
	}
	for k, v := range params {
		n.Params[k] = v
	}
}
