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
	"github.com/icrar/chiles02/pkg/cmd/factory"
	"github.com/icrar/chiles02/pkg/cmd/util"
	"github.com/icrar/chiles02/pkg/generator"
	"github.com/spf13/cobra"
)

// workOptions defines flags for the `work` command.
type workOptions struct {
	pipeline string
}

// pendingWork is the printed form of a work set.
type pendingWork struct {
	Pipeline   string              `json:"pipeline"`
	Days       int                 `json:"days"`
	Partitions int                 `json:"partitions"`
	Pending    map[string][]string `json:"pending"`
}

func newWorkOptions() *workOptions {
	return &workOptions{}
}

func (o *workOptions) complete(args []string) {
	o.pipeline = args[0]
}

// run the `work` command.
func (o *workOptions) run(cmd *cobra.Command, f factory.Factory) error {
	cfg, err := f.Config()
	if err != nil {
		return err
	}
	lister, err := f.ObjectStore()
	if err != nil {
		return err
	}
	g, err := generator.New(cfg, o.pipeline, generator.Deps{Lister: lister})
	if err != nil {
		return err
	}
	work, err := g.ResolveWork(cmd.Context())
	if err != nil {
		return err
	}
	res := pendingWork{
		Pipeline:   o.pipeline,
		Days:       len(work.Set),
		Partitions: work.Set.Len(),
		Pending:    make(map[string][]string, len(work.Set)),
	}
	for day, bands := range work.Set {
		for _, band := range bands {
			res.Pending[day] = append(res.Pending[day], band.String())
		}
	}
	return util.JSONPrint(cmd, res)
}

// newCmdWork creates the `work` command.
func newCmdWork(f factory.Factory) *cobra.Command {
	o := newWorkOptions()

	command := &cobra.Command{
		Use:   "work <pipeline>",
		Short: "Show the partitions a pipeline still has to produce",
		RunE: func(cmd *cobra.Command, args []string) error {
			o.complete(args)
			return o.run(cmd, f)
		},
	}
	pipelineArgs(command)

	return command
}
