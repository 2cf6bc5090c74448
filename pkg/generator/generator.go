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

package generator

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/dustin/go-humanize"
	"github.com/icrar/chiles02/pkg/capacity"
	"github.com/icrar/chiles02/pkg/clock"
	"github.com/icrar/chiles02/pkg/config"
	cerrors "github.com/icrar/chiles02/pkg/errors"
	"github.com/icrar/chiles02/pkg/graph"
	"github.com/icrar/chiles02/pkg/graphbuilder"
	"github.com/icrar/chiles02/pkg/httputil"
	"github.com/icrar/chiles02/pkg/logutil"
	"github.com/icrar/chiles02/pkg/submit"
	"github.com/icrar/chiles02/pkg/uuid"
	"github.com/icrar/chiles02/pkg/workset"
	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	"go.uber.org/zap"
)

// Mode is how a run obtains its compute nodes.
type Mode string

// Run modes.
const (
	// ModeJSON builds against synthetic nodes and prints the graph.
	ModeJSON Mode = "json"
	// ModeCreate provisions node managers and a data island manager.
	ModeCreate Mode = "create"
	// ModeUse submits to a data island manager that is already running.
	ModeUse Mode = "use"
)

const sessionTimeLayout = "2006-01-02T15-04-05"

// Deps are the remote services a Generator talks to.
type Deps struct {
	Lister workset.ObjectLister
	// Provisioner, Channel and QueueURL are only needed by ModeCreate.
	Provisioner capacity.Provisioner
	Channel     capacity.ReadinessChannel
	QueueURL    string
	// SubmitOptions are applied to every engine client after the
	// configured ones.
	SubmitOptions []submit.Option
}

// Summary describes the outcome of a run.
type Summary struct {
	Pipeline          string              `json:"pipeline"`
	Mode              Mode                `json:"mode"`
	SessionID         string              `json:"session_id,omitempty"`
	PendingDays       int                 `json:"pending_days"`
	PendingPartitions int                 `json:"pending_partitions"`
	GraphNodes        int                 `json:"graph_nodes"`
	Roots             int                 `json:"roots"`
	Ready             map[string][]string `json:"ready,omitempty"`
	DataIslandManager string              `json:"data_island_manager,omitempty"`
	Submitted         bool                `json:"submitted"`
}

// Work is the resolved work set with the declared size of each of its days.
type Work struct {
	Set   workset.WorkSet
	Sizes map[string]int64
}

// Generator runs one pipeline: it resolves the pending work, obtains compute
// nodes, builds the graph and hands it to the engine.
type Generator struct {
	cfg      *config.Config
	pipeline string
	stage    config.StageConfig
	deps     Deps

	clock     clock.Clock
	user      string
	nodeUUID  uuid.Generator
	roundUUID uuid.Generator
	registry  *prometheus.Registry
}

// Option customizes a Generator.
type Option func(*Generator)

// WithClock sets the clock used for session ids and waits.
func WithClock(clk clock.Clock) Option {
	return func(g *Generator) { g.clock = clk }
}

// WithUser sets the owner recorded in session ids and instance tags.
func WithUser(user string) Option {
	return func(g *Generator) {
		if user != "" {
			g.user = user
		}
	}
}

// WithUUIDGenerators sets the generators of node uids and of provisioning
// correlation ids.
func WithUUIDGenerators(nodes, rounds uuid.Generator) Option {
	return func(g *Generator) {
		g.nodeUUID = nodes
		g.roundUUID = rounds
	}
}

// WithRegistry sets the registry pushed to the push gateway.
func WithRegistry(registry *prometheus.Registry) Option {
	return func(g *Generator) { g.registry = registry }
}

// NewRegistry returns a registry with the metrics of a run.
func NewRegistry() *prometheus.Registry {
	registry := prometheus.NewRegistry()
	workset.InitMetrics(registry)
	capacity.InitMetrics(registry)
	InitMetrics(registry)
	return registry
}

// New creates a Generator of pipeline.
func New(cfg *config.Config, pipeline string, deps Deps, opts ...Option) (*Generator, error) {
	stage, err := cfg.Stage(pipeline)
	if err != nil {
		return nil, err
	}
	if _, err := graphbuilder.Lookup(pipeline, graphbuilder.Config{}); err != nil {
		return nil, err
	}
	if deps.Lister == nil {
		return nil, cerrors.ErrInvalidConfig.GenWithStackByArgs("an object store is required")
	}
	g := &Generator{
		cfg:       cfg,
		pipeline:  pipeline,
		stage:     stage,
		deps:      deps,
		clock:     clock.New(),
		user:      os.Getenv("USER"),
		nodeUUID:  uuid.NewGenerator(),
		roundUUID: uuid.NewGenerator(),
	}
	if g.user == "" {
		g.user = "chiles02"
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// SessionID returns a new session id, {user}-{utc time}.
func (g *Generator) SessionID() string {
	return fmt.Sprintf("%s-%s", g.user, g.clock.Now().UTC().Format(sessionTimeLayout))
}

// ResolveWork computes the pending partitions of the pipeline.
func (g *Generator) ResolveWork(ctx context.Context) (*Work, error) {
	bands, err := g.cfg.Bands()
	if err != nil {
		return nil, err
	}
	scheme, err := g.stage.Output.Scheme()
	if err != nil {
		return nil, err
	}
	resolver := workset.NewResolver(g.deps.Lister, g.cfg.Storage.Bucket, scheme, bands, g.cfg.LowEdge(bands))

	sizes := make(map[string]int64)
	var names []string
	if g.stage.Days == config.DaysFromObservations {
		days, err := workset.DiscoverDays(ctx, g.deps.Lister, g.cfg.Storage.Bucket,
			g.cfg.Storage.Observations, g.cfg.Storage.ObservationExt)
		if err != nil {
			return nil, err
		}
		for _, d := range days {
			sizes[d.Name] = d.Size
		}
		names = workset.DayNames(days)
	} else {
		names = g.cfg.Storage.Products
	}

	var ws workset.WorkSet
	if g.stage.Products {
		ws, err = resolver.ResolveProducts(ctx, names)
	} else {
		ws, err = resolver.Resolve(ctx, names)
	}
	if err != nil {
		return nil, errors.Trace(err)
	}

	var total int64
	for _, day := range ws.Days() {
		total += sizes[day]
	}
	log.Info("work to do",
		zap.String("pipeline", g.pipeline),
		zap.Int("candidates", len(names)),
		zap.Int("days", len(ws)),
		zap.Int("partitions", ws.Len()),
		zap.String("inputSize", humanize.IBytes(uint64(total))))
	return &Work{Set: ws, Sizes: sizes}, nil
}

func (g *Generator) builderConfig(sessionID string, nodes []graphbuilder.ComputeNode) (graphbuilder.Config, error) {
	input, err := g.stage.Input.Scheme()
	if err != nil {
		return graphbuilder.Config{}, err
	}
	output, err := g.stage.Output.Scheme()
	if err != nil {
		return graphbuilder.Config{}, err
	}
	return graphbuilder.Config{
		Bucket:    g.cfg.Storage.Bucket,
		Profile:   g.cfg.AWS.Profile,
		Volume:    g.cfg.Graph.Volume,
		SessionID: sessionID,
		Nodes:     nodes,
		Images: graphbuilder.Images{
			Chiles02:   g.cfg.Graph.Chiles02Image,
			JavaS3Copy: g.cfg.Graph.JavaS3CopyImage,
		},
		InputPrefix: g.stage.InputPrefix,
		Input:       input,
		Output:      output,
		Width:       g.cfg.Frequency.Width,
		Iterations:  g.cfg.Graph.Iterations,
		GroupSize:   g.cfg.Graph.GroupSize,
		Shutdown:    g.cfg.Graph.Shutdown,
		Tags:        map[string]string{"pipeline": g.pipeline},
		UUID:        g.nodeUUID,
	}, nil
}

// Build builds the graph of ws over nodes.
func (g *Generator) Build(
	ws workset.WorkSet, sessionID string, nodes []graphbuilder.ComputeNode,
) (*graphbuilder.Result, error) {
	bcfg, err := g.builderConfig(sessionID, nodes)
	if err != nil {
		return nil, err
	}
	b, err := graphbuilder.Lookup(g.pipeline, bcfg)
	if err != nil {
		return nil, err
	}
	res, err := b.BuildGraph(ws)
	if err != nil {
		return nil, err
	}
	graphNodesGauge.WithLabelValues(g.pipeline).Set(float64(res.Graph.Len()))
	return res, nil
}

// JSONNodes returns the synthetic nodes graphs are built against in
// ModeJSON: graph.json-nodes nodes of every configured instance type.
func (g *Generator) JSONNodes() []graphbuilder.ComputeNode {
	flavors := make([]string, 0, len(g.cfg.Graph.Streams))
	for flavor := range g.cfg.Graph.Streams {
		flavors = append(flavors, flavor)
	}
	sort.Strings(flavors)
	if len(flavors) == 0 {
		flavors = []string{"default"}
	}
	count := g.cfg.Graph.JSONNodes
	if count <= 0 {
		count = 1
	}
	ready := make(map[string][]string, len(flavors))
	for _, flavor := range flavors {
		for i := 0; i < count; i++ {
			ready[flavor] = append(ready[flavor], fmt.Sprintf("node_%s_%d", flavor, i))
		}
	}
	return graphbuilder.NodesFromReady(ready, g.cfg.Graph.Streams, g.cfg.Graph.DefaultStreams)
}

// Run runs the pipeline in mode. out receives the graph in ModeJSON and
// dimHost is the data island manager of ModeUse.
func (g *Generator) Run(ctx context.Context, mode Mode, out io.Writer, dimHost string) (*Summary, error) {
	start := g.clock.Now()
	var (
		summary *Summary
		err     error
	)
	switch mode {
	case ModeJSON:
		summary, err = g.runJSON(ctx, out)
	case ModeCreate:
		summary, err = g.runCreate(ctx)
	case ModeUse:
		summary, err = g.runUse(ctx, dimHost)
	default:
		err = cerrors.ErrInvalidCliParameter.GenWithStack("unknown mode %s", mode)
	}

	result := "ok"
	switch {
	case logutil.IsCanceled(err):
		result = "canceled"
	case err != nil:
		result = string(cerrors.Classify(err))
	}
	elapsed := g.clock.Since(start)
	runCounter.WithLabelValues(g.pipeline, string(mode), result).Inc()
	runDuration.WithLabelValues(g.pipeline, string(mode)).Observe(elapsed.Seconds())
	log.Info("run finished",
		zap.String("pipeline", g.pipeline),
		zap.String("mode", string(mode)),
		zap.String("result", result),
		zap.Duration("elapsed", elapsed),
		logutil.ZapErrorFilter(err, context.Canceled))
	if perr := g.pushMetrics(); perr != nil {
		log.Warn("push metrics failed", zap.Error(perr))
	}
	return summary, err
}

func (g *Generator) newSummary(mode Mode, work *Work) *Summary {
	return &Summary{
		Pipeline:          g.pipeline,
		Mode:              mode,
		PendingDays:       len(work.Set),
		PendingPartitions: work.Set.Len(),
	}
}

func (g *Generator) runJSON(ctx context.Context, out io.Writer) (*Summary, error) {
	work, err := g.ResolveWork(ctx)
	if err != nil {
		return nil, err
	}
	summary := g.newSummary(ModeJSON, work)
	summary.SessionID = g.SessionID()
	res, err := g.Build(work.Set, summary.SessionID, g.JSONNodes())
	if err != nil {
		return nil, err
	}
	data, err := graph.MarshalIndent(res.Graph)
	if err != nil {
		return nil, err
	}
	if _, err := fmt.Fprintf(out, "%s\n", data); err != nil {
		return nil, errors.Trace(err)
	}
	summary.GraphNodes, summary.Roots = res.Graph.Len(), len(res.Roots)
	return summary, nil
}

// submitOptions returns the options of engine clients. Node probes are
// tried once, so they do not get the configured retries.
func (g *Generator) submitOptions(withRetry bool) []submit.Option {
	opts := []submit.Option{submit.WithHTTPClient(httputil.NewClient(g.cfg.Engine.Timeout.Duration()))}
	if withRetry {
		opts = append(opts, submit.WithRetry(g.cfg.Engine.MaxTries, 0))
	}
	return append(opts, g.deps.SubmitOptions...)
}

func (g *Generator) submit(
	ctx context.Context, summary *Summary, dimHost string,
	work *Work, nodes []graphbuilder.ComputeNode,
) error {
	summary.SessionID = g.SessionID()
	res, err := g.Build(work.Set, summary.SessionID, nodes)
	if err != nil {
		return err
	}
	summary.GraphNodes, summary.Roots = res.Graph.Len(), len(res.Roots)
	dim := submit.NewClient(dimHost, g.cfg.Engine.DIMPort, g.submitOptions(true)...)
	if err := dim.Submit(ctx, summary.SessionID, res.Graph, res.Roots); err != nil {
		return err
	}
	summary.DataIslandManager = dimHost
	summary.Submitted = true
	return nil
}

func (g *Generator) runUse(ctx context.Context, dimHost string) (*Summary, error) {
	if dimHost == "" {
		return nil, cerrors.ErrInvalidCliParameter.GenWithStack("use mode needs the data island manager host")
	}
	work, err := g.ResolveWork(ctx)
	if err != nil {
		return nil, err
	}
	summary := g.newSummary(ModeUse, work)
	if work.Set.Empty() {
		return summary, nil
	}
	dim := submit.NewClient(dimHost, g.cfg.Engine.DIMPort, g.submitOptions(true)...)
	hosts, err := submit.RunningNodes(ctx, dim, g.cfg.Engine.NMPort, g.submitOptions(false)...)
	if err != nil {
		return nil, err
	}
	summary.Ready = map[string][]string{"": hosts}
	nodes := graphbuilder.NodesFromReady(summary.Ready, nil, g.cfg.Graph.DefaultStreams)
	if err := g.submit(ctx, summary, dimHost, work, nodes); err != nil {
		return nil, err
	}
	return summary, nil
}

func (g *Generator) tags(role string) map[string]string {
	return map[string]string{
		"Owner": g.user,
		"Name":  fmt.Sprintf("DALiuGE %s - %s", role, g.pipeline),
	}
}

func (g *Generator) runCreate(ctx context.Context) (*Summary, error) {
	if g.deps.Provisioner == nil || g.deps.Channel == nil || g.deps.QueueURL == "" {
		return nil, cerrors.ErrInvalidConfig.GenWithStackByArgs("create mode needs a provisioner and a readiness queue")
	}
	work, err := g.ResolveWork(ctx)
	if err != nil {
		return nil, err
	}
	summary := g.newSummary(ModeCreate, work)
	if work.Set.Empty() {
		log.Info("nothing to do, no node is started", zap.String("pipeline", g.pipeline))
		return summary, nil
	}

	buckets, err := g.cfg.Capacity.Buckets()
	if err != nil {
		return nil, err
	}
	items := make([]capacity.Item, 0, len(work.Set))
	for _, day := range work.Set.Days() {
		items = append(items, capacity.Item{Name: day, Size: work.Sizes[day]})
	}
	flavors, err := capacity.Size(items, buckets)
	if err != nil {
		return nil, err
	}

	coord := capacity.NewCoordinator(g.deps.Provisioner, g.deps.Channel,
		capacity.WithClock(g.clock),
		capacity.WithUUIDGenerator(g.roundUUID),
		capacity.WithPollInterval(g.cfg.Capacity.PollInterval.Duration()))
	bootstrap := capacity.Bootstrap{
		Role:           capacity.RoleNodeManager,
		Region:         g.cfg.AWS.Region,
		QueueURL:       g.deps.QueueURL,
		Volume:         g.cfg.Graph.Volume,
		MaxRequestSize: g.cfg.Capacity.MaxRequestSize,
	}
	nodeManagers, err := g.provision(ctx, coord, capacity.Request{
		ImageID:  g.cfg.Capacity.AMI,
		Flavors:  flavors,
		UserData: capacity.UserData(bootstrap),
		Tags:     g.tags("NM"),
	}, "node manager")
	if err != nil {
		return nil, err
	}
	summary.Ready = nodeManagers.Nodes

	bootstrap.Role = capacity.RoleDataIslandManager
	bootstrap.Hosts = readyHosts(nodeManagers.Nodes)
	dimFlavor := g.cfg.Capacity.DataIslandManager
	dims, err := g.provision(ctx, coord, capacity.Request{
		ImageID: g.cfg.Capacity.AMI,
		Flavors: []capacity.FlavorRequest{{
			InstanceType: dimFlavor.InstanceType,
			Count:        1,
			SpotPrice:    dimFlavor.SpotPrice,
		}},
		UserData: capacity.UserData(bootstrap),
		Tags:     g.tags("DIM"),
	}, "data island manager")
	if err != nil {
		return nil, err
	}

	nodes := graphbuilder.NodesFromReady(nodeManagers.Nodes, g.cfg.Graph.Streams, g.cfg.Graph.DefaultStreams)
	dimHost := readyHosts(dims.Nodes)[0]
	if err := g.submit(ctx, summary, dimHost, work, nodes); err != nil {
		return nil, err
	}
	return summary, nil
}

// provision runs one provisioning round. A partial round is accepted, an
// empty one fails with ErrNotEnoughCapacity.
func (g *Generator) provision(
	ctx context.Context, coord *capacity.Coordinator, req capacity.Request, what string,
) (*capacity.Ready, error) {
	round, err := coord.Provision(ctx, req)
	if err != nil {
		return nil, err
	}
	ready, err := coord.AwaitReady(ctx, round, g.cfg.Capacity.Timeout.Duration())
	if err != nil {
		return nil, err
	}
	if ready.Count() == 0 {
		return nil, cerrors.ErrNotEnoughCapacity.GenWithStackByArgs(0, round.Total(), what)
	}
	if !ready.Satisfied() {
		log.Warn("continue with partial capacity",
			zap.String("role", what),
			zap.Int("ready", ready.Count()),
			zap.Any("missing", round.Shortfall(ready)),
			zap.Duration("waited", ready.Elapsed))
	}
	return ready, nil
}

// readyHosts flattens ready nodes, ordered by instance type and then by
// the order they reported in.
func readyHosts(nodes map[string][]string) []string {
	flavors := make([]string, 0, len(nodes))
	for flavor := range nodes {
		flavors = append(flavors, flavor)
	}
	sort.Strings(flavors)
	var hosts []string
	for _, flavor := range flavors {
		hosts = append(hosts, nodes[flavor]...)
	}
	return hosts
}

func (g *Generator) pushMetrics() error {
	if g.cfg.Metrics.PushGateway == "" || g.registry == nil {
		return nil
	}
	return errors.Trace(push.New(g.cfg.Metrics.PushGateway, g.cfg.Metrics.Job).
		Gatherer(g.registry).
		Grouping("user", g.user).
		Push())
}
