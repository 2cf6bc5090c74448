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

package capacity

import (
	"testing"

	cerrors "github.com/icrar/chiles02/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestRenderUserDataNodeManager(t *testing.T) {
	t.Parallel()

	out, err := RenderUserData(Bootstrap{
		Role:           RoleNodeManager,
		Region:         "us-west-2",
		QueueURL:       "https://sqs.us-west-2.amazonaws.com/1/dfms-startup",
		CorrelationID:  "5d0f",
		MaxRequestSize: 50,
		LogLevel:       "vvv",
	})
	require.NoError(t, err)
	require.Contains(t, out, "#!/bin/bash")
	require.Contains(t, out, "dfmsNM")
	require.Contains(t, out, "--max-request-size 50 -vvv")
	require.NotContains(t, out, "dfmsDIM")
	require.Contains(t, out, "--queue-url https://sqs.us-west-2.amazonaws.com/1/dfms-startup")
	require.Contains(t, out, `"StringValue": "5d0f"`)
	require.Contains(t, out, "mkdir -p /mnt/dfms/dfms_root")
}

func TestRenderUserDataDataIslandManager(t *testing.T) {
	t.Parallel()

	b := Bootstrap{
		Role:     RoleDataIslandManager,
		Region:   "us-west-2",
		QueueURL: "https://sqs/q",
		Hosts:    []string{"10.0.0.1", "10.0.0.2"},
	}
	out, err := UserData(b)("5d0f")
	require.NoError(t, err)
	require.Contains(t, out, "dfmsDIM -H 0.0.0.0 -d --nodes 10.0.0.1,10.0.0.2 -v")
	require.NotContains(t, out, "dfmsNM")

	b.NeedNodeManager = true
	out, err = UserData(b)("5d0f")
	require.NoError(t, err)
	require.Contains(t, out, "dfmsNM")

	b.Hosts = nil
	_, err = UserData(b)("5d0f")
	require.True(t, cerrors.Is(err, cerrors.ErrInvalidConfig))

	_, err = RenderUserData(Bootstrap{Role: RoleNodeManager})
	require.True(t, cerrors.Is(err, cerrors.ErrInvalidConfig))
}
