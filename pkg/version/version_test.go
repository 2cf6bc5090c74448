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

package version

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRemoveVAndHash(t *testing.T) {
	t.Parallel()

	cases := []struct{ in, out string }{
		{"", ""},
		{"v1.2.0", "1.2.0"},
		{"v1.2.0-3-g1a2b3c4", "1.2.0"},
		{"v1.2.0-rc.1-12-g1a2b3c4d5-dirty", "1.2.0-rc.1"},
	}
	for _, c := range cases {
		require.Equal(t, c.out, removeVAndHash(c.in), c.in)
	}
}

func TestGetRawInfo(t *testing.T) {
	t.Parallel()

	info := GetRawInfo()
	require.Contains(t, info, "Release Version: "+ReleaseVersion)
	require.Contains(t, info, "Go Version: ")
}

func TestReleaseSemver(t *testing.T) {
	old := ReleaseVersion
	defer func() { ReleaseVersion = old }()

	ReleaseVersion = "v1.3.0-4-g1a2b3c4-dirty"
	require.Equal(t, "1.3.0", ReleaseSemver())
	require.Contains(t, GetRawInfo(), "Semantic Version: 1.3.0\n")

	ReleaseVersion = "None"
	require.Empty(t, ReleaseSemver())
	require.NotContains(t, GetRawInfo(), "Semantic Version")
}
