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
	"io"
	"os"

	"github.com/icrar/chiles02/pkg/cmd/factory"
	"github.com/icrar/chiles02/pkg/cmd/util"
	"github.com/icrar/chiles02/pkg/generator"
	"github.com/pingcap/errors"
	"github.com/spf13/cobra"
)

// graphOptions defines flags for the `graph` commands.
type graphOptions struct {
	mode     generator.Mode
	pipeline string
	dimHost  string
	output   string
	user     string
}

// newGraphOptions creates new options for the `graph <mode>` command.
func newGraphOptions(mode generator.Mode) *graphOptions {
	return &graphOptions{mode: mode}
}

// addFlags receives a *cobra.Command reference and binds
// flags related to graph generation to it.
func (o *graphOptions) addFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.user, "user", "", "Owner recorded in the session id and instance tags, defaults to $USER")
	switch o.mode {
	case generator.ModeJSON:
		cmd.Flags().StringVarP(&o.output, "output", "o", "", "Write the graph to this file instead of stdout")
	case generator.ModeUse:
		cmd.Flags().StringVar(&o.dimHost, "dim-host", "", "Host of the running data island manager")
		_ = cmd.MarkFlagRequired("dim-host")
	}
}

// complete adapts from the command line args to the data required.
func (o *graphOptions) complete(args []string) {
	o.pipeline = args[0]
}

// run the `graph <mode>` command.
func (o *graphOptions) run(cmd *cobra.Command, f factory.Factory) error {
	ctx := cmd.Context()
	cfg, err := f.Config()
	if err != nil {
		return err
	}
	deps := generator.Deps{}
	if deps.Lister, err = f.ObjectStore(); err != nil {
		return err
	}
	if o.mode == generator.ModeCreate {
		if deps.Provisioner, err = f.Provisioner(); err != nil {
			return err
		}
		if deps.Channel, deps.QueueURL, err = f.ReadinessChannel(ctx); err != nil {
			return err
		}
	}
	g, err := generator.New(cfg, o.pipeline, deps,
		generator.WithUser(o.user),
		generator.WithRegistry(generator.NewRegistry()))
	if err != nil {
		return err
	}

	var out io.Writer = cmd.OutOrStdout()
	if o.output != "" {
		file, err := os.Create(o.output)
		if err != nil {
			return errors.Trace(err)
		}
		defer file.Close()
		out = file
	}
	summary, err := g.Run(ctx, o.mode, out, o.dimHost)
	if err != nil {
		return err
	}
	// the graph itself went to stdout
	if o.mode == generator.ModeJSON && o.output == "" {
		return nil
	}
	return util.JSONPrint(cmd, summary)
}

func newCmdGraphMode(f factory.Factory, mode generator.Mode, short string) *cobra.Command {
	o := newGraphOptions(mode)

	command := &cobra.Command{
		Use:   string(mode) + " <pipeline>",
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			o.complete(args)
			return o.run(cmd, f)
		},
	}
	pipelineArgs(command)
	o.addFlags(command)

	return command
}

// newCmdGraph creates the `graph` command.
func newCmdGraph(f factory.Factory) *cobra.Command {
	cmds := &cobra.Command{
		Use:   "graph",
		Short: "Generate the physical graph of a pipeline for the pending work",
	}
	cmds.AddCommand(newCmdGraphMode(f, generator.ModeJSON,
		"Print the graph built against synthetic nodes"))
	cmds.AddCommand(newCmdGraphMode(f, generator.ModeCreate,
		"Start spot instances, then submit the graph to them"))
	cmds.AddCommand(newCmdGraphMode(f, generator.ModeUse,
		"Submit the graph to a running data island manager"))
	return cmds
}
