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
	"github.com/icrar/chiles02/pkg/graphbuilder"
	"github.com/spf13/cobra"
)

// pipelineArgs accepts exactly one registered pipeline name.
func pipelineArgs(command *cobra.Command) {
	command.ValidArgs = graphbuilder.Pipelines()
	command.Args = cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs)
}

// AddCommands adds every subcommand of the generator to root.
func AddCommands(root *cobra.Command, f factory.Factory) {
	root.AddCommand(newCmdGraph(f))
	root.AddCommand(newCmdWork(f))
	root.AddCommand(newCmdSize(f))
	root.AddCommand(newCmdConfig(f))
	root.AddCommand(newCmdVersion())
}
