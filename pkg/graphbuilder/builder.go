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
	"github.com/icrar/chiles02/pkg/graph"
	"github.com/icrar/chiles02/pkg/workset"
	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"go.uber.org/zap"
)

// Result is a built graph with its entry points.
type Result struct {
	Graph *graph.Graph
	// Roots are the ids of the nodes without inputs, passed to deploy.
	Roots []string
	// Barrier is the id of the terminal barrier, empty for an empty graph.
	Barrier string
}

// Empty reports whether there is nothing to submit.
func (r *Result) Empty() bool {
	return r.Graph.Len() == 0
}

// Builder builds the physical graph of one pipeline stage.
type Builder interface {
	// Name is the pipeline name the builder is registered under.
	Name() string
	// BuildGraph builds the graph processing ws. An empty ws gives an empty
	// graph and no error.
	BuildGraph(ws workset.WorkSet) (*Result, error)
	// NewCarryOverState returns the per node state for a node with the given
	// number of parallel streams.
	NewCarryOverState(streams int) *CarryOver
}

// chainBuilder adds the chains of one build to ctx.
type chainBuilder interface {
	Builder
	buildChains(ctx *Context, ws workset.WorkSet) error
}

func build(b chainBuilder, cfg *Config, ws workset.WorkSet) (*Result, error) {
	if ws.Empty() {
		log.Info("nothing to do, skip building the graph", zap.String("pipeline", b.Name()))
		return &Result{Graph: graph.New()}, nil
	}
	ctx := newContext(cfg, b.NewCarryOverState)
	if err := b.buildChains(ctx, ws); err != nil {
		return nil, errors.Trace(err)
	}
	res, err := ctx.finish()
	if err != nil {
		return nil, err
	}
	log.Info("graph built",
		zap.String("pipeline", b.Name()),
		zap.Int("partitions", ws.Len()),
		zap.Int("nodes", res.Graph.Len()),
		zap.Int("roots", len(res.Roots)),
		zap.Any("chainsPerNode", ctx.scheduler.Loads()))
	return res, nil
}

type factory func(cfg Config) Builder

var registry = map[string]factory{
	"mstransform":   func(cfg Config) Builder { return &msTransform{cfg: cfg} },
	"clean":         func(cfg Config) Builder { return &clean{cfg: cfg} },
	"concatenation": func(cfg Config) Builder { return &concatenation{cfg: cfg} },
	"jpeg2000":      func(cfg Config) Builder { return &jpeg2000{cfg: cfg} },
	"stats":         func(cfg Config) Builder { return &stats{cfg: cfg} },
}

// Lookup returns the builder of the named pipeline.
func Lookup(name string, cfg Config) (Builder, error) {
	f, ok := registry[name]
	if !ok {
		return nil, cerrors.ErrUnknownPipeline.GenWithStackByArgs(name)
	}
	return f(cfg), nil
}

// Pipelines returns the registered pipeline names, sorted.
func Pipelines() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
