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
	"github.com/icrar/chiles02/pkg/workset"
)

// stats computes the visibility statistics of each uvsub output. The
// statistics land in a json drop on the node before being published.
type stats struct {
	cfg Config
}

func (b *stats) Name() string { return "stats" }

func (b *stats) NewCarryOverState(streams int) *CarryOver {
	return NewCarryOver(streams)
}

func (b *stats) BuildGraph(ws workset.WorkSet) (*Result, error) {
	return build(b, &b.cfg, ws)
}

func (b *stats) buildChains(ctx *Context, ws workset.WorkSet) error {
	for _, key := range ws.Keys() {
		node, carry, err := ctx.Schedule(key.Day + " " + key.Band.String())
		if err != nil {
			return err
		}
		host := node.Address

		uvsub, err := ctx.fetch(host, carry, b.cfg.Input.ObjectKey(key), key.Band)
		if err != nil {
			return err
		}
		app, err := ctx.DockerApp(host, ClassStats, "stats", b.cfg.Images.Chiles02, "stats", key.Band)
		if err != nil {
			return err
		}
		setParams(app, map[string]string{"day": key.Day})
		result, err := ctx.JSON(host, "json")
		if err != nil {
			return err
		}
		if err := ctx.Pipe(uvsub.OID, app.OID, result.OID); err != nil {
			return err
		}
		out, err := ctx.publish(host, result.OID, b.cfg.Output.ObjectKey(key), key.Band)
		if err != nil {
			return err
		}
		carry.Advance(out.OID)
		ctx.AddOutput(out.OID)
	}
	return nil
}
