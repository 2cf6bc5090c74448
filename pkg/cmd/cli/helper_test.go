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
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/icrar/chiles02/pkg/capacity"
	"github.com/icrar/chiles02/pkg/cmd/factory"
	"github.com/icrar/chiles02/pkg/config"
	"github.com/icrar/chiles02/pkg/workset"
	"github.com/pingcap/errors"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

const gib = int64(1) << 30

type memLister struct {
	objects []workset.ObjectInfo
}

func (m *memLister) ListObjects(_ context.Context, prefix string) ([]workset.ObjectInfo, error) {
	var res []workset.ObjectInfo
	for _, obj := range m.objects {
		if strings.HasPrefix(obj.Key, prefix) {
			res = append(res, obj)
		}
	}
	return res, nil
}

// fakeFactory serves an in memory bucket and has no cloud.
type fakeFactory struct {
	*factory.ClientFlags
	cfg    *config.Config
	lister *memLister
}

var _ factory.Factory = (*fakeFactory)(nil)

func newFakeFactory(t *testing.T, objects ...workset.ObjectInfo) *fakeFactory {
	cfg := config.NewDefaultConfig()
	cfg.Frequency.Max = 964
	require.NoError(t, cfg.Adjust())
	return &fakeFactory{
		ClientFlags: factory.NewClientFlags(),
		cfg:         cfg,
		lister:      &memLister{objects: objects},
	}
}

func (f *fakeFactory) Config() (*config.Config, error) {
	return f.cfg, nil
}

func (f *fakeFactory) ObjectStore() (workset.ObjectLister, error) {
	return f.lister, nil
}

func (f *fakeFactory) Provisioner() (capacity.Provisioner, error) {
	return nil, errors.New("no cloud in tests")
}

func (f *fakeFactory) ReadinessChannel(context.Context) (capacity.ReadinessChannel, string, error) {
	return nil, "", errors.New("no cloud in tests")
}

func execute(cmd *cobra.Command, args ...string) (string, error) {
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}
