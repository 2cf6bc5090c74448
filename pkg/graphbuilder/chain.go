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
	"github.com/icrar/chiles02/pkg/frequency"
	"github.com/icrar/chiles02/pkg/graph"
)

// fetch adds s3 -> copy_from_s3 -> directory on host and returns the
// directory. The copy waits for the previous chain of the stream, if any.
func (c *Context) fetch(host string, carry *CarryOver, key string, band frequency.Pair) (*graph.Node, error) {
	in, err := c.S3(host, c.cfg.Bucket, key, "s3_in")
	if err != nil {
		return nil, err
	}
	copyFrom, err := c.DockerApp(host, ClassCopyFromS3, "copy_from_s3",
		c.cfg.Images.JavaS3Copy, "copy_from_s3", band)
	if err != nil {
		return nil, err
	}
	if prev := carry.Previous(); prev != "" {
		if err := c.Connect(prev, copyFrom.OID); err != nil {
			return nil, err
		}
	}
	dir, err := c.Directory(host, "directory_container", true)
	if err != nil {
		return nil, err
	}
	if err := c.Pipe(in.OID, copyFrom.OID, dir.OID); err != nil {
		return nil, err
	}
	return dir, nil
}

// transform adds in -> app -> out where out is a new directory.
func (c *Context) transform(
	host, in, class, oidType, command string, band frequency.Pair, params map[string]string,
) (*graph.Node, error) {
	app, err := c.DockerApp(host, class, oidType, c.cfg.Images.Chiles02, command, band)
	if err != nil {
		return nil, err
	}
	if len(params) > 0 {
		setParams(app, params)
	}
	out, err := c.Directory(host, "directory_container", true)
	if err != nil {
		return nil, err
	}
	if err := c.Pipe(in, app.OID, out.OID); err != nil {
		return nil, err
	}
	return out, nil
}

// publish adds in -> copy_to_s3 -> s3 and returns the s3 drop.
func (c *Context) publish(host, in, key string, band frequency.Pair) (*graph.Node, error) {
	copyTo, err := c.DockerApp(host, ClassCopyToS3, "copy_to_s3",
		c.cfg.Images.JavaS3Copy, "copy_to_s3", band)
	if err != nil {
		return nil, err
	}
	out, err := c.S3(host, c.cfg.Bucket, key, "s3_out")
	if err != nil {
		return nil, err
	}
	if err := c.Pipe(in, copyTo.OID, out.OID); err != nil {
		return nil, err
	}
	return out, nil
}
