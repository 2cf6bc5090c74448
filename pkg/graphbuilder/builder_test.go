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
	"strings"
	"testing"

	cerrors "github.com/icrar/chiles02/pkg/errors"
	"github.com/icrar/chiles02/pkg/frequency"
	"github.com/icrar/chiles02/pkg/graph"
	"github.com/icrar/chiles02/pkg/uuid"
	"github.com/icrar/chiles02/pkg/workset"
	"github.com/stretchr/testify/require"
)

func testConfig(pool []ComputeNode) Config {
	return Config{
		Bucket:      "13b-266",
		Profile:     "aws-chiles02",
		Volume:      "/mnt/dfms/dfms_root",
		SessionID:   "kevin-2016-05-01T10-00-00",
		Nodes:       pool,
		Images:      Images{Chiles02: "icrar/chiles02:latest", JavaS3Copy: "icrar/java-s3-copy:latest"},
		InputPrefix: "observation_data",
		Input:       workset.KeyScheme{Prefix: "clean_4_10", Layout: workset.LayoutBandDay, Ext: "tar"},
		Output:      workset.KeyScheme{Prefix: "split_4", Layout: workset.LayoutBandDay, Ext: "tar"},
		Width:       4,
		Iterations:  10,
		GroupSize:   2,
		Shutdown:    true,
		Tags:        map[string]string{"Owner": "kevin"},
		UUID:        uuid.NewSequenceGenerator("uid"),
	}
}

func byType(g *graph.Graph, oidType string) []*graph.Node {
	var res []*graph.Node
	for _, n := range g.Nodes() {
		if strings.HasPrefix(n.OID, oidType+"__") {
			res = append(res, n)
		}
	}
	return res
}

func mustNode(t *testing.T, g *graph.Graph, oid string) *graph.Node {
	n, ok := g.Node(oid)
	require.True(t, ok, oid)
	return n
}

// checkResult asserts the properties every built graph must have.
func checkResult(t *testing.T, res *Result, pool []ComputeNode) {
	g := res.Graph
	require.NoError(t, g.Validate(res.Roots))

	var zeroInput []string
	seen := make(map[string]struct{})
	hosts := make(map[string]struct{})
	for _, n := range pool {
		hosts[n.Address] = struct{}{}
	}
	for _, n := range g.Nodes() {
		_, dup := seen[n.OID]
		require.False(t, dup, n.OID)
		seen[n.OID] = struct{}{}
		if len(n.Inputs) == 0 {
			zeroInput = append(zeroInput, n.OID)
		}
		if n.IsApp() {
			require.NotEmpty(t, n.Inputs, n.OID)
			require.Equal(t, "kevin", n.Params["Owner"])
		}
		require.Contains(t, hosts, n.Host, n.OID)
	}
	require.Equal(t, zeroInput, res.Roots)

	// the barrier waits for every chain and gates one log copy per node
	barrier := mustNode(t, g, res.Barrier)
	require.Equal(t, ClassBarrier, barrier.App.Class)
	require.Len(t, byType(g, "copy_log_files_app"), len(pool))
	for _, copyLogs := range byType(g, "copy_log_files_app") {
		logs := mustNode(t, g, copyLogs.Outputs[0])
		require.Equal(t, copyLogs.Host, logs.Host)
		require.True(t, strings.HasSuffix(logs.Data.Key, copyLogs.Host+".tar"))
	}

	raw, err := graph.Marshal(g)
	require.NoError(t, err)
	decoded, err := graph.Unmarshal(raw)
	require.NoError(t, err)
	require.Equal(t, g.Len(), decoded.Len())
	require.Equal(t, res.Roots, decoded.Roots())
}

func TestLookup(t *testing.T) {
	t.Parallel()

	require.Equal(t, []string{"clean", "concatenation", "jpeg2000", "mstransform", "stats"}, Pipelines())
	for _, name := range Pipelines() {
		b, err := Lookup(name, Config{})
		require.NoError(t, err)
		require.Equal(t, name, b.Name())
	}
	_, err := Lookup("uvsub", Config{})
	require.True(t, cerrors.Is(err, cerrors.ErrUnknownPipeline))
	require.Equal(t, cerrors.ClassConfiguration, cerrors.Classify(err))
}

func TestBuildEmptyWorkSet(t *testing.T) {
	t.Parallel()

	for _, name := range Pipelines() {
		b, err := Lookup(name, testConfig(nil))
		require.NoError(t, err)
		res, err := b.BuildGraph(workset.WorkSet{})
		require.NoError(t, err, name)
		require.True(t, res.Empty())
		require.Empty(t, res.Roots)
		require.Empty(t, res.Barrier)
	}
}

func TestBuildEmptyNodePool(t *testing.T) {
	t.Parallel()

	ws := workset.WorkSet{"2015_03_01": {frequency.NewPair(940, 944)}}
	for _, name := range Pipelines() {
		b, err := Lookup(name, testConfig(nil))
		require.NoError(t, err)
		_, err = b.BuildGraph(ws)
		require.True(t, cerrors.Is(err, cerrors.ErrEmptyNodePool), name)
		require.Equal(t, cerrors.ClassGraph, cerrors.Classify(err))
	}
}

func TestBuildMsTransform(t *testing.T) {
	t.Parallel()

	pool := nodes("i2.2xlarge", 2, 1)
	b, err := Lookup("mstransform", testConfig(pool))
	require.NoError(t, err)
	bands := []frequency.Pair{frequency.NewPair(952, 956), frequency.NewPair(956, 960), frequency.NewPair(960, 964)}
	ws := workset.WorkSet{"2015_03_01": bands}

	res, err := b.BuildGraph(ws)
	require.NoError(t, err)
	checkResult(t, res, pool)
	g := res.Graph

	require.Equal(t, 25, g.Len())
	require.Equal(t, []string{"s3_in__000001"}, res.Roots)
	require.Equal(t, "observation_data/2015_03_01.tar", mustNode(t, g, "s3_in__000001").Data.Key)

	transforms := byType(g, "ms_transform")
	require.Len(t, transforms, 3)
	for i, n := range transforms {
		require.Equal(t, bands[i].Low, n.App.MinFrequency)
		require.Equal(t, bands[i].High, n.App.MaxFrequency)
		require.Equal(t, []string{"directory_container__000001"}, n.Inputs)
	}

	var keys []string
	for _, n := range byType(g, "s3_out") {
		keys = append(keys, n.Data.Key)
	}
	require.Equal(t, []string{
		"split_4/952_956/2015_03_01.tar",
		"split_4/956_960/2015_03_01.tar",
		"split_4/960_964/2015_03_01.tar",
		"kevin-2016-05-01T10-00-00/10.0.1.0.tar",
		"kevin-2016-05-01T10-00-00/10.0.1.1.tar",
	}, keys)

	require.Equal(t, []string{"memory_drop__000001"}, mustNode(t, g, res.Barrier).Inputs)
	cleanUp := mustNode(t, g, "bash_shell_app__000001")
	require.Len(t, cleanUp.Inputs, 3)
	require.True(t, strings.HasPrefix(cleanUp.App.Command, "rm -rf /mnt/dfms/dfms_root/directory_container__000001"))
}

func TestBuildMsTransformCarryOver(t *testing.T) {
	t.Parallel()

	// one node with one stream runs the days one after the other
	pool := nodes("i2.2xlarge", 1, 1)
	b, err := Lookup("mstransform", testConfig(pool))
	require.NoError(t, err)
	band := []frequency.Pair{frequency.NewPair(952, 956)}
	res, err := b.BuildGraph(workset.WorkSet{"2015_03_01": band, "2015_03_02": band})
	require.NoError(t, err)
	checkResult(t, res, pool)

	copies := byType(res.Graph, "copy_from_s3")
	require.Len(t, copies, 2)
	require.Equal(t, []string{"s3_in__000001"}, copies[0].Inputs)
	require.ElementsMatch(t, []string{"memory_drop__000001", "s3_in__000002"}, copies[1].Inputs)
	require.Equal(t, []string{"s3_in__000001", "s3_in__000002"}, res.Roots)
	require.Len(t, mustNode(t, res.Graph, res.Barrier).Inputs, 2)
}

func TestBuildCleanChainsGroups(t *testing.T) {
	t.Parallel()

	pool := nodes("i2.2xlarge", 1, 1)
	cfg := testConfig(pool)
	cfg.Shutdown = false
	cfg.InputPrefix = "uvsub_4"
	cfg.Output = workset.KeyScheme{Prefix: "clean_4_10", Layout: workset.LayoutBandDay, Ext: "tar"}
	b, err := Lookup("clean", cfg)
	require.NoError(t, err)
	bands, err := frequency.Partition(940, 956, 4)
	require.NoError(t, err)

	res, err := b.BuildGraph(workset.WorkSet{"clean": bands})
	require.NoError(t, err)
	checkResult(t, res, pool)
	g := res.Graph

	// a single root file drop, later groups hang off the previous group
	require.Equal(t, []string{"file__000001"}, res.Roots)
	require.Empty(t, byType(g, "bash_shell_app"))

	copies := byType(g, "copy_all_from_s3")
	outs := byType(g, "s3_out")
	require.Len(t, copies, 4)
	require.Equal(t, []string{"file__000001"}, copies[0].Inputs)
	for i := 1; i < 4; i++ {
		require.Equal(t, []string{outs[i-1].OID}, copies[i].Inputs)
	}
	require.Equal(t, "clean_4_10/944_948/clean.tar", outs[1].Data.Key)
	require.Equal(t, "uvsub_4", copies[0].Params["s3_folder"])

	cleans := byType(g, "clean")
	require.Equal(t, "10", cleans[0].Params["iterations"])
	require.Equal(t, "4", cleans[0].Params["width"])
	// one output per group
	require.Equal(t, []string{outs[1].OID, outs[3].OID}, mustNode(t, g, res.Barrier).Inputs)
}

func TestBuildCleanParallelGroups(t *testing.T) {
	t.Parallel()

	pool := nodes("i2.2xlarge", 2, 1)
	b, err := Lookup("clean", testConfig(pool))
	require.NoError(t, err)
	bands, err := frequency.Partition(940, 956, 4)
	require.NoError(t, err)

	res, err := b.BuildGraph(workset.WorkSet{"clean": bands})
	require.NoError(t, err)
	checkResult(t, res, pool)
	require.Equal(t, []string{"file__000001", "file__000002"}, res.Roots)
	require.NotEqual(t, mustNode(t, res.Graph, "file__000001").Host, mustNode(t, res.Graph, "file__000002").Host)
}

func TestBuildConcatenation(t *testing.T) {
	t.Parallel()

	pool := nodes("i2.2xlarge", 2, 4)
	cfg := testConfig(pool)
	cfg.Output = workset.KeyScheme{Prefix: "concatenate_4_10", Ext: "tar"}
	b, err := Lookup("concatenation", cfg)
	require.NoError(t, err)
	bands, err := frequency.Partition(940, 952, 4)
	require.NoError(t, err)

	res, err := b.BuildGraph(workset.WorkSet{"clean": bands})
	require.NoError(t, err)
	checkResult(t, res, pool)
	g := res.Graph

	concat := byType(g, "concatenate")
	require.Len(t, concat, 1)
	require.Len(t, concat[0].Inputs, 3)
	require.Equal(t, "10", concat[0].Params["iterations"])
	require.Equal(t, "4", concat[0].Params["width"])
	require.Len(t, res.Roots, 3)
	require.Equal(t, "clean_4_10/940_944/clean.tar", mustNode(t, g, res.Roots[0]).Data.Key)
	require.Equal(t, "concatenate_4_10/clean.tar", byType(g, "s3_out")[0].Data.Key)
}

func TestBuildJpeg2000AndStats(t *testing.T) {
	t.Parallel()

	pool := nodes("i2.2xlarge", 2, 2)
	bands, err := frequency.Partition(940, 964, 4)
	require.NoError(t, err)
	ws := workset.WorkSet{"2015_03_01": bands[:3], "2015_03_02": bands[3:]}

	for _, name := range []string{"jpeg2000", "stats"} {
		cfg := testConfig(pool)
		cfg.Input = workset.KeyScheme{Prefix: "uvsub_4", Layout: workset.LayoutDayBand, Artifact: "uvsub.tar"}
		cfg.Output = workset.KeyScheme{Prefix: name + "_4", Layout: workset.LayoutDayBand, Artifact: name}
		b, err := Lookup(name, cfg)
		require.NoError(t, err)

		res, err := b.BuildGraph(ws)
		require.NoError(t, err)
		checkResult(t, res, pool)

		require.Len(t, res.Roots, 6, name)
		require.Len(t, mustNode(t, res.Graph, res.Barrier).Inputs, 6, name)
		require.Equal(t, "uvsub_4/2015_03_01/940_944/uvsub.tar", mustNode(t, res.Graph, res.Roots[0]).Data.Key)

		// 6 chains over 2 nodes with 2 streams each: the last two chains
		// wait for the first two
		copies := byType(res.Graph, "copy_from_s3")
		waiting := 0
		for _, c := range copies {
			if len(c.Inputs) == 2 {
				waiting++
			}
		}
		require.Equal(t, 2, waiting, name)
	}
}

func TestBuildIsReproducible(t *testing.T) {
	t.Parallel()

	pool := nodes("i2.2xlarge", 3, 2)
	bands, err := frequency.Partition(940, 980, 4)
	require.NoError(t, err)
	ws := workset.WorkSet{"2015_03_01": bands, "2015_03_02": bands[4:], "2015_03_03": bands[:2]}

	var dumps [][]byte
	for i := 0; i < 2; i++ {
		b, err := Lookup("mstransform", testConfig(pool))
		require.NoError(t, err)
		res, err := b.BuildGraph(ws)
		require.NoError(t, err)
		raw, err := graph.Marshal(res.Graph)
		require.NoError(t, err)
		dumps = append(dumps, raw)
	}
	require.Equal(t, string(dumps[0]), string(dumps[1]))
}
