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

// clean images each sub-band from every uvsub output of that sub-band.
// Sub-bands are chained in groups: the first element of a group starts from
// a root file drop, or from the previous group of its stream, and each later
// element waits for the published output of the one before it.
type clean struct {
	cfg Config
}

func (b *clean) Name() string { return "clean" }

func (b *clean) NewCarryOverState(streams int) *CarryOver {
	return NewCarryOver(streams)
}

func (b *clean) BuildGraph(ws workset.WorkSet) (*Result, error) {
	return build(b, &b.cfg, ws)
}

func (b *clean) buildChains(ctx *Context, ws workset.WorkSet) error {
	params := map[string]string{
		"iterations": strconv.Itoa(b.cfg.Iterations),
		"width":      strconv.Itoa(b.cfg.Width),
	}
	for _, product := range ws.Days() {
		for _, group := range frequency.Chunk(ws[product], b.cfg.GroupSize) {
			node, carry, err := ctx.Schedule(product + " " + group[0].String())
			if err != nil {
				return err
			}
			host := node.Address

			prev := carry.Previous()
			if prev == "" {
				root, err := ctx.File(host, "file")
				if err != nil {
					return err
				}
				prev = root.OID
			}
			for _, band := range group {
				copyAll, err := ctx.DockerApp(host, ClassCopyAllFromS3Folder, "copy_all_from_s3",
					b.cfg.Images.JavaS3Copy, "copy_from_all_from_s3_folder", band)
				if err != nil {
					return err
				}
				setParams(copyAll, map[string]string{
					"bucket":    b.cfg.Bucket,
					"s3_folder": b.cfg.InputPrefix,
				})
				measurementSets, err := ctx.Directory(host, "directory_container", false)
				if err != nil {
					return err
				}
				if err := ctx.Pipe(prev, copyAll.OID, measurementSets.OID); err != nil {
					return err
				}
				result, err := ctx.transform(host, measurementSets.OID, ClassClean, "clean",
					"clean", band, params)
				if err != nil {
					return err
				}
				out, err := ctx.publish(host, result.OID,
					b.cfg.Output.ObjectKey(workset.PartitionKey{Day: product, Band: band}), band)
				if err != nil {
					return err
				}
				prev = out.OID
			}
			carry.Advance(prev)
			ctx.AddOutput(prev)
		}
	}
	return nil
}
