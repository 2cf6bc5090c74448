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
	"strconv"

	"github.com/icrar/chiles02/pkg/frequency"
	"github.com/icrar/chiles02/pkg/workset"
)

// concatenation downloads the clean image of every sub-band of a product to
// one node and joins them into a single cube. Products run one after the
// other on their node.
type concatenation struct {
	cfg Config
}

func (b *concatenation) Name() string { return "concatenation" }

func (b *concatenation) NewCarryOverState(int) *CarryOver {
	return NewCarryOver(1)
}

func (b *concatenation) BuildGraph(ws workset.WorkSet) (*Result, error) {
	return build(b, &b.cfg, ws)
}

func (b *concatenation) buildChains(ctx *Context, ws workset.WorkSet) error {
	for _, product := range ws.Days() {
		node, carry, err := ctx.Schedule(product)
		if err != nil {
			return err
		}
		host := node.Address

		images := make([]string, 0, len(ws[product]))
		for _, band := range ws[product] {
			dir, err := ctx.fetch(host, carry,
				b.cfg.Input.ObjectKey(workset.PartitionKey{Day: product, Band: band}), band)
			if err != nil {
				return err
			}
			images = append(images, dir.OID)
		}

		concat, err := ctx.DockerApp(host, ClassConcatenate, "concatenate",
			b.cfg.Images.Chiles02, "imageconcat", frequency.Pair{})
		if err != nil {
			return err
		}
		setParams(concat, map[string]string{
			"iterations": strconv.Itoa(b.cfg.Iterations),
			"width":      strconv.Itoa(b.cfg.Width),
		})
		for _, img := range images {
			if err := ctx.Connect(img, concat.OID); err != nil {
				return err
			}
		}
		cube, err := ctx.Directory(host, "directory_container", true)
		if err != nil {
			return err
		}
		if err := ctx.Connect(concat.OID, cube.OID); err != nil {
			return err
		}
		out, err := ctx.publish(host, cube.OID, b.cfg.Output.ProductKey(product), frequency.Pair{})
		if err != nil {
			return err
		}
		carry.Advance(out.OID)
		ctx.AddOutput(out.OID)
	}
	return nil
}
