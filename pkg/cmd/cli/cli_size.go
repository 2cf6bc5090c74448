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

package cli

import (
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/icrar/chiles02/pkg/cmd/factory"
	"github.com/spf13/cobra"
)

// sizeOptions defines flags for the `size` command.
type sizeOptions struct {
	prefix string
}

func newSizeOptions() *sizeOptions {
	return &sizeOptions{}
}

func (o *sizeOptions) complete(args []string) {
	if len(args) > 0 {
		o.prefix = args[0]
	}
}

// run the `size` command. Objects are summed per top level folder.
func (o *sizeOptions) run(cmd *cobra.Command, f factory.Factory) error {
	cfg, err := f.Config()
	if err != nil {
		return err
	}
	lister, err := f.ObjectStore()
	if err != nil {
		return err
	}
	objects, err := lister.ListObjects(cmd.Context(), o.prefix)
	if err != nil {
		return err
	}

	type folder struct {
		count int64
		size  int64
	}
	folders := make(map[string]*folder)
	var total folder
	for _, obj := range objects {
		name := strings.TrimPrefix(obj.Key, o.prefix)
		if i := strings.Index(name, "/"); i >= 0 {
			name = name[:i+1]
		}
		fd, ok := folders[name]
		if !ok {
			fd = &folder{}
			folders[name] = fd
		}
		fd.count++
		fd.size += obj.Size
		total.count++
		total.size += obj.Size
	}

	names := make([]string, 0, len(folders))
	for name := range folders {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fd := folders[name]
		cmd.Printf("%-40s %12s objects %10s\n", o.prefix+name,
			humanize.Comma(fd.count), humanize.IBytes(uint64(fd.size)))
	}
	cmd.Printf("s3://%s/%s: %s objects, %s\n", cfg.Storage.Bucket, o.prefix,
		humanize.Comma(total.count), humanize.IBytes(uint64(total.size)))
	return nil
}

// newCmdSize creates the `size` command.
func newCmdSize(f factory.Factory) *cobra.Command {
	o := newSizeOptions()

	command := &cobra.Command{
		Use:   "size [prefix]",
		Short: "Sum the size of the objects in the bucket",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			o.complete(args)
			return o.run(cmd, f)
		},
	}

	return command
}
