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

package factory

import (
	"os"
	"path/filepath"
	"testing"

	cerrors "github.com/icrar/chiles02/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestConfigOverrides(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "chiles02.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[storage]
bucket = "from-file"

[log]
level = "info"
`), 0o644))

	flags := NewClientFlags()
	flags.configFile = path
	flags.logLevel = "debug"
	flags.region = "ap-southeast-2"
	f := NewFactory(flags)

	cfg, err := f.Config()
	require.NoError(t, err)
	require.Equal(t, "from-file", cfg.Storage.Bucket)
	require.Equal(t, "debug", cfg.Log.Level)
	require.Equal(t, "ap-southeast-2", cfg.AWS.Region)
	require.Contains(t, cfg.Stages, "mstransform")

	// loaded once
	again, err := f.Config()
	require.NoError(t, err)
	require.Same(t, cfg, again)

	flags = NewClientFlags()
	flags.configFile = path
	flags.bucket = "from-flag"
	cfg, err = NewFactory(flags).Config()
	require.NoError(t, err)
	require.Equal(t, "from-flag", cfg.Storage.Bucket)
	require.Equal(t, "from-flag", flags.GetBucket())
}

func TestConfigUnknownOption(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "chiles02.toml")
	require.NoError(t, os.WriteFile(path, []byte("[storage]\nbukket = \"typo\"\n"), 0o644))

	flags := NewClientFlags()
	flags.configFile = path
	_, err := NewFactory(flags).Config()
	require.True(t, cerrors.Is(err, cerrors.ErrDecodeConfigFile))
	require.Equal(t, cerrors.ClassConfiguration, cerrors.Classify(err))
}
