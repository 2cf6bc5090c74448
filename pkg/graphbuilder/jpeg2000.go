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

// jpeg2000 converts the clean image of each sub-band into a JPEG2000 file.
type jpeg2000 struct {
	cfg Config
}

func (b *jpeg2000) Name() string { return "jpeg2000" }

func (b *jpeg2000) NewCarryOverState(streams int) *CarryOver {
	return NewCarryOver(streams)
}

func (b *jpeg2000) BuildGraph(ws workset.WorkSet) (*Result, error) {
	return build(b, &b.cfg, ws)
}

func (b *jpeg2000) buildChains(ctx *Context, ws workset.WorkSet) error {
	for _, key := range ws.Keys() {
		node, carry, err := ctx.Schedule(key.Day + " " + key.Band.String())
		if err != nil {
			return err
		}
		host := node.Address

		image, err := ctx.fetch(host, carry, b.cfg.Input.ObjectKey(key), key.Band)
		if err != nil {
			return err
		}
		converted, err := ctx.transform(host, image.OID, ClassJpeg2000, "jpeg2000",
			"jpeg2000", key.Band, nil)
		if err != nil {
			return err
		}
		out, err := ctx.publish(host, converted.OID, b.cfg.Output.ObjectKey(key), key.Band)
		if err != nil {
			return err
		}
		carry.Advance(out.OID)
		ctx.AddOutput(out.OID)
	}
	return nil
}
