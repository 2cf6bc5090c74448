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

package cmd

import (
	"context"
	"os"

	"github.com/goccy/go-json"
	"github.com/icrar/chiles02/pkg/cmd/cli"
	"github.com/icrar/chiles02/pkg/cmd/factory"
	"github.com/icrar/chiles02/pkg/cmd/util"
	"github.com/icrar/chiles02/pkg/logutil"
	"github.com/icrar/chiles02/pkg/version"
	"github.com/pingcap/log"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// NewCmd creates the root command.
func NewCmd(f factory.Factory) *cobra.Command {
	var cancel context.CancelFunc
	return &cobra.Command{
		Use:   "chiles02",
		Short: "Build and submit the CHILES02 reduction graphs",
		Long: `chiles02 finds the work still pending in the S3 bucket, builds the
physical graph of a pipeline stage for it and submits the graph to a
DALiuGE data island manager, starting spot instances when asked to.`,
		CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
		SilenceErrors:     true,
		SilenceUsage:      true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := f.Config()
			if err != nil {
				return err
			}
			var ctx context.Context
			ctx, cancel = util.InitCmd(cmd, &cfg.Log)
			util.LogHTTPProxies()
			version.LogVersionInfo()
			if data, err := json.Marshal(cfg); err == nil {
				log.Info("load configuration", zap.String("config", logutil.HideSensitive(string(data))))
			}
			cmd.SetContext(ctx)
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if cancel != nil {
				cancel()
			}
		},
	}
}

// Run runs the root command.
func Run() {
	cf := factory.NewClientFlags()
	f := factory.NewFactory(cf)

	cmd := NewCmd(f)
	cmd.SetOut(os.Stdout)
	cmd.SetErr(os.Stderr)
	cf.AddFlags(cmd)
	cli.AddCommands(cmd, f)

	util.CheckErr(cmd.Execute())
}
