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
	"strings"

	"github.com/icrar/chiles02/pkg/frequency"
	"github.com/icrar/chiles02/pkg/workset"
)

// msTransform splits the measurement set of each day into its sub-bands.
// The day is downloaded once and every pending sub-band is cut from that
// copy, then the working directories are removed.
type msTransform struct {
	cfg Config
}

func (b *msTransform) Name() string { return "mstransform" }

func (b *msTransform) NewCarryOverState(streams int) *CarryOver {
	return NewCarryOver(streams)
}

func (b *msTransform) BuildGraph(ws workset.WorkSet) (*Result, error) {
	return build(b, &b.cfg, ws)
}

func (b *msTransform) buildChains(ctx *Context, ws workset.WorkSet) error {
	input := workset.KeyScheme{Prefix: b.cfg.InputPrefix, Ext: "tar"}
	for _, day := range ws.Days() {
		node, carry, err := ctx.Schedule(day)
		if err != nil {
			return err
		}
		host := node.Address

		ms, err := ctx.fetch(host, carry, input.ProductKey(day), frequency.Pair{})
		if err != nil {
			return err
		}
		// the measurement set is shared by every split and removed by clean_up
		ms.Data.ExpireAfterUse = false

		dirs := []string{ms.Data.Dirname}
		var outputs []string
		for _, band := range ws[day] {
			split, err := ctx.transform(host, ms.OID, ClassMsTransform, "ms_transform",
				"mstransform", band, nil)
			if err != nil {
				return err
			}
			dirs = append(dirs, split.Data.Dirname)
			out, err := ctx.publish(host, split.OID,
				b.cfg.Output.ObjectKey(workset.PartitionKey{Day: day, Band: band}), band)
			if err != nil {
				return err
			}
			outputs = append(outputs, out.OID)
		}

		cleanUp, err := ctx.Bash(host, "rm -rf "+strings.Join(dirs, " "))
		if err != nil {
			return err
		}
		for _, out := range outputs {
			if err := ctx.Connect(out, cleanUp.OID); err != nil {
				return err
			}
		}
		done, err := ctx.Memory(host, "memory_drop")
		if err != nil {
			return err
		}
		if err := ctx.Connect(cleanUp.OID, done.OID); err != nil {
			return err
		}
		carry.Advance(done.OID)
		ctx.AddOutput(done.OID)
	}
	return nil
}
