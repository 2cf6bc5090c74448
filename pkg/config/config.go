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

package config

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/docker/go-units"
	"github.com/icrar/chiles02/pkg/capacity"
	"github.com/icrar/chiles02/pkg/cloud"
	cerrors "github.com/icrar/chiles02/pkg/errors"
	"github.com/icrar/chiles02/pkg/frequency"
	"github.com/icrar/chiles02/pkg/logutil"
	"github.com/icrar/chiles02/pkg/submit"
	"github.com/icrar/chiles02/pkg/workset"
	"github.com/imdario/mergo"
	"github.com/pingcap/errors"
)

// Where a pipeline takes the names of its work set from.
const (
	// DaysFromObservations lists the observations in the bucket.
	DaysFromObservations = "observations"
	// DaysFromProducts uses the configured product names.
	DaysFromProducts = "products"
)

// Config is the configuration of the generator.
type Config struct {
	AWS       cloud.Options          `toml:"aws" json:"aws"`
	Storage   StorageConfig          `toml:"storage" json:"storage"`
	Frequency FrequencyConfig        `toml:"frequency" json:"frequency"`
	Graph     GraphConfig            `toml:"graph" json:"graph"`
	Capacity  CapacityConfig         `toml:"capacity" json:"capacity"`
	Engine    EngineConfig           `toml:"engine" json:"engine"`
	Log       logutil.Config         `toml:"log" json:"log"`
	Metrics   MetricsConfig          `toml:"metrics" json:"metrics"`
	Stages    map[string]StageConfig `toml:"stage" json:"stage"`
}

// StorageConfig locates the data of the project.
type StorageConfig struct {
	Bucket string `toml:"bucket" json:"bucket"`
	// Observations is the prefix holding one {day}.{ext} object per
	// observation day.
	Observations   string   `toml:"observations" json:"observations"`
	ObservationExt string   `toml:"observation-ext" json:"observation-ext"`
	Products       []string `toml:"products" json:"products"`
}

// FrequencyConfig is the spectrum split into sub-bands.
type FrequencyConfig struct {
	Min   int `toml:"min" json:"min"`
	Max   int `toml:"max" json:"max"`
	Width int `toml:"width" json:"width"`
	// Sub-bands starting in [LowEdgeMin, LowEdgeMax) may stay missing
	// without a day being processed again.
	LowEdgeMin int `toml:"low-edge-min" json:"low-edge-min"`
	LowEdgeMax int `toml:"low-edge-max" json:"low-edge-max"`
}

// GraphConfig shapes the physical graphs.
type GraphConfig struct {
	Volume          string `toml:"volume" json:"volume"`
	Chiles02Image   string `toml:"chiles02-image" json:"chiles02-image"`
	JavaS3CopyImage string `toml:"java-s3-copy-image" json:"java-s3-copy-image"`
	Iterations      int    `toml:"iterations" json:"iterations"`
	GroupSize       int    `toml:"group-size" json:"group-size"`
	Shutdown        bool   `toml:"shutdown" json:"shutdown"`
	// Streams is the number of parallel chains per instance type.
	Streams        map[string]int `toml:"streams" json:"streams"`
	DefaultStreams int            `toml:"default-streams" json:"default-streams"`
	// JSONNodes is the number of synthetic nodes per instance type used to
	// build a graph without provisioning anything.
	JSONNodes int `toml:"json-nodes" json:"json-nodes"`
}

// CapacityConfig describes how nodes are started and awaited.
type CapacityConfig struct {
	AMI            string       `toml:"ami" json:"ami"`
	Queue          string       `toml:"queue" json:"queue"`
	PollInterval   TomlDuration `toml:"poll-interval" json:"poll-interval"`
	Timeout        TomlDuration `toml:"timeout" json:"timeout"`
	KeyName        string       `toml:"key-name" json:"key-name"`
	SecurityGroups []string     `toml:"security-groups" json:"security-groups"`
	MaxRequestSize int          `toml:"max-request-size" json:"max-request-size"`
	// NodeManagers are the size buckets the work is spread over.
	NodeManagers      []BucketConfig `toml:"node-manager" json:"node-manager"`
	DataIslandManager FlavorConfig   `toml:"data-island-manager" json:"data-island-manager"`
}

// BucketConfig is one size bucket. MaxSize is a human readable size such as
// "500GiB".
type BucketConfig struct {
	InstanceType     string  `toml:"instance-type" json:"instance-type"`
	MaxSize          string  `toml:"max-size" json:"max-size"`
	ItemsPerInstance int     `toml:"items-per-instance" json:"items-per-instance"`
	SpotPrice        float64 `toml:"spot-price" json:"spot-price"`
}

// FlavorConfig is one instance type at a price.
type FlavorConfig struct {
	InstanceType string  `toml:"instance-type" json:"instance-type"`
	SpotPrice    float64 `toml:"spot-price" json:"spot-price"`
}

// EngineConfig is how the execution engine is reached.
type EngineConfig struct {
	DIMPort  int          `toml:"dim-port" json:"dim-port"`
	NMPort   int          `toml:"nm-port" json:"nm-port"`
	Timeout  TomlDuration `toml:"timeout" json:"timeout"`
	MaxTries uint64       `toml:"max-tries" json:"max-tries"`
}

// MetricsConfig configures pushing the run metrics.
type MetricsConfig struct {
	PushGateway string `toml:"push-gateway" json:"push-gateway"`
	Job         string `toml:"job" json:"job"`
}

// StageConfig is where one pipeline reads and writes.
type StageConfig struct {
	Days        string    `toml:"days" json:"days"`
	InputPrefix string    `toml:"input-prefix" json:"input-prefix"`
	Input       KeyConfig `toml:"input" json:"input"`
	Output      KeyConfig `toml:"output" json:"output"`
	// Products resolves whole products instead of sub-bands.
	Products bool `toml:"products" json:"products"`
}

// KeyConfig is the configuration form of a workset.KeyScheme.
type KeyConfig struct {
	Prefix   string `toml:"prefix" json:"prefix"`
	Layout   string `toml:"layout" json:"layout"`
	Ext      string `toml:"ext" json:"ext"`
	Artifact string `toml:"artifact" json:"artifact"`
}

// Scheme converts k to a key scheme.
func (k KeyConfig) Scheme() (workset.KeyScheme, error) {
	layout := workset.LayoutBandDay
	if k.Layout != "" {
		var err error
		if layout, err = workset.ParseLayout(k.Layout); err != nil {
			return workset.KeyScheme{}, err
		}
	}
	return workset.KeyScheme{
		Prefix:   k.Prefix,
		Layout:   layout,
		Ext:      k.Ext,
		Artifact: k.Artifact,
	}, nil
}

// defaultNodeManagers are the size buckets used when the configuration
// defines none.
func defaultNodeManagers() []BucketConfig {
	return []BucketConfig{
		{InstanceType: "i2.2xlarge", MaxSize: "500GiB", ItemsPerInstance: 2, SpotPrice: 0.35},
		{InstanceType: "i2.4xlarge", MaxSize: "1TiB", ItemsPerInstance: 2, SpotPrice: 0.70},
	}
}

func defaultStreams() map[string]int {
	return map[string]int{"i2.2xlarge": 8, "i2.4xlarge": 16}
}

// NewDefaultConfig returns the default configuration. Stage defaults depend
// on the frequency width and the iterations and are filled in by Adjust.
// Node manager buckets and streams are left empty so that a decoded file
// replaces them instead of being merged into them; Adjust fills them in when
// the file defines none.
func NewDefaultConfig() *Config {
	return &Config{
		AWS: cloud.Options{Region: cloud.DefaultRegion},
		Storage: StorageConfig{
			Bucket:         "13b-266",
			Observations:   "observation_data",
			ObservationExt: "tar",
			Products:       []string{"cube"},
		},
		Frequency: FrequencyConfig{
			Min:        940,
			Max:        1424,
			Width:      4,
			LowEdgeMin: frequency.DefaultLowEdge.Low,
			LowEdgeMax: frequency.DefaultLowEdge.High,
		},
		Graph: GraphConfig{
			Volume:          "/mnt/dfms/dfms_root",
			Chiles02Image:   "sdp-docker-registry.icrar.uwa.edu.au:8080/kevin/chiles02:latest",
			JavaS3CopyImage: "sdp-docker-registry.icrar.uwa.edu.au:8080/kevin/java-s3-copy:latest",
			Iterations:      10,
			GroupSize:       4,
			DefaultStreams:  1,
			JSONNodes:       2,
		},
		Capacity: CapacityConfig{
			AMI:            "ami-7f8ef41f",
			Queue:          cloud.DefaultQueueName,
			PollInterval:   TomlDuration(capacity.DefaultPollInterval),
			Timeout:        TomlDuration(10 * time.Minute),
			MaxRequestSize: 10,
			DataIslandManager: FlavorConfig{InstanceType: "m4.large", SpotPrice: 0.10},
		},
		Engine: EngineConfig{
			DIMPort:  submit.DefaultDIMPort,
			NMPort:   submit.DefaultNMPort,
			Timeout:  TomlDuration(time.Minute),
			MaxTries: 5,
		},
		Log:     logutil.Config{Level: logutil.DefaultLogLevel},
		Metrics: MetricsConfig{Job: "chiles02"},
	}
}

// DefaultStage returns the default stage of a pipeline.
func DefaultStage(pipeline string, width, iterations int) (StageConfig, bool) {
	split := fmt.Sprintf("split_%d", width)
	uvsub := fmt.Sprintf("uvsub_%d", width)
	clean := fmt.Sprintf("clean_%d_%d", width, iterations)
	switch pipeline {
	case "mstransform":
		return StageConfig{
			Days:        DaysFromObservations,
			InputPrefix: "observation_data",
			Output:      KeyConfig{Prefix: split, Layout: string(workset.LayoutBandDay), Ext: "tar"},
		}, true
	case "clean":
		return StageConfig{
			Days:        DaysFromProducts,
			InputPrefix: uvsub,
			Output:      KeyConfig{Prefix: clean, Layout: string(workset.LayoutBandDay), Ext: "tar"},
		}, true
	case "concatenation":
		return StageConfig{
			Days:     DaysFromProducts,
			Products: true,
			Input:    KeyConfig{Prefix: clean, Layout: string(workset.LayoutBandDay), Ext: "tar"},
			Output:   KeyConfig{Prefix: fmt.Sprintf("concatenate_%d_%d", width, iterations), Ext: "tar"},
		}, true
	case "jpeg2000":
		return StageConfig{
			Days:   DaysFromProducts,
			Input:  KeyConfig{Prefix: clean, Layout: string(workset.LayoutBandDay), Ext: "tar"},
			Output: KeyConfig{Prefix: fmt.Sprintf("jpeg2000_%d", width), Layout: string(workset.LayoutDayBand), Artifact: pipeline},
		}, true
	case "stats":
		return StageConfig{
			Days:   DaysFromObservations,
			Input:  KeyConfig{Prefix: uvsub, Layout: string(workset.LayoutDayBand), Artifact: "uvsub.tar"},
			Output: KeyConfig{Prefix: fmt.Sprintf("%s_%d", pipeline, width), Layout: string(workset.LayoutDayBand), Artifact: pipeline},
		}, true
	default:
		return StageConfig{}, false
	}
}

// Adjust fills the values left empty with their defaults.
func (c *Config) Adjust() error {
	c.Log.Adjust()
	if err := c.AWS.Adjust(); err != nil {
		return errors.Trace(err)
	}
	if c.Stages == nil {
		c.Stages = make(map[string]StageConfig)
	}
	for _, name := range []string{"mstransform", "clean", "concatenation", "jpeg2000", "stats"} {
		def, _ := DefaultStage(name, c.Frequency.Width, c.Graph.Iterations)
		if def.Days == DaysFromObservations && def.InputPrefix != "" {
			def.InputPrefix = c.Storage.Observations
		}
		stage := c.Stages[name]
		if err := mergo.Merge(&stage, def); err != nil {
			return cerrors.WrapError(cerrors.ErrInvalidConfig, err, "stage "+name)
		}
		c.Stages[name] = stage
	}
	if len(c.Capacity.NodeManagers) == 0 {
		c.Capacity.NodeManagers = defaultNodeManagers()
	}
	if len(c.Graph.Streams) == 0 {
		c.Graph.Streams = defaultStreams()
	}
	if c.Graph.DefaultStreams <= 0 {
		c.Graph.DefaultStreams = 1
	}
	if c.Capacity.PollInterval <= 0 {
		c.Capacity.PollInterval = TomlDuration(capacity.DefaultPollInterval)
	}
	return nil
}

// Validate checks the configuration. It never reaches any remote service.
func (c *Config) Validate() error {
	if c.Storage.Bucket == "" {
		return invalid("storage.bucket is required")
	}
	if _, err := c.Bands(); err != nil {
		return err
	}
	if c.Frequency.LowEdgeMin > c.Frequency.LowEdgeMax {
		return invalid("frequency.low-edge-min is above frequency.low-edge-max")
	}
	if c.Graph.Iterations <= 0 {
		return invalid("graph.iterations must be positive")
	}
	if c.Graph.GroupSize < 0 {
		return invalid("graph.group-size must not be negative")
	}
	for flavor, streams := range c.Graph.Streams {
		if streams <= 0 {
			return invalid("graph.streams of " + flavor + " must be positive")
		}
	}
	if c.Capacity.Timeout < 0 {
		return invalid("capacity.timeout must not be negative")
	}
	if _, err := c.Capacity.Buckets(); err != nil {
		return err
	}
	if c.Engine.DIMPort <= 0 || c.Engine.NMPort <= 0 {
		return invalid("engine ports must be positive")
	}
	for _, name := range c.StageNames() {
		if err := c.Stages[name].validate(name); err != nil {
			return err
		}
	}
	return nil
}

func (s StageConfig) validate(name string) error {
	switch s.Days {
	case DaysFromObservations, DaysFromProducts:
	default:
		return invalid("stage." + name + ".days must be observations or products")
	}
	if _, err := s.Input.Scheme(); err != nil {
		return err
	}
	if _, err := s.Output.Scheme(); err != nil {
		return err
	}
	if s.Output.Prefix == "" {
		return invalid("stage." + name + ".output.prefix is required")
	}
	return nil
}

// StageNames returns the configured stages, sorted.
func (c *Config) StageNames() []string {
	names := make([]string, 0, len(c.Stages))
	for name := range c.Stages {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Stage returns the stage of pipeline.
func (c *Config) Stage(pipeline string) (StageConfig, error) {
	s, ok := c.Stages[pipeline]
	if !ok {
		return StageConfig{}, cerrors.ErrUnknownPipeline.GenWithStackByArgs(pipeline)
	}
	return s, nil
}

// Bands partitions the configured spectrum.
func (c *Config) Bands() ([]frequency.Pair, error) {
	return frequency.Partition(c.Frequency.Min, c.Frequency.Max, c.Frequency.Width)
}

// LowEdge returns the sub-bands tolerated as missing.
func (c *Config) LowEdge(bands []frequency.Pair) frequency.Set {
	return frequency.LowEdge(bands, frequency.Pair{Low: c.Frequency.LowEdgeMin, High: c.Frequency.LowEdgeMax})
}

// Buckets parses the size buckets.
func (c *CapacityConfig) Buckets() ([]capacity.Bucket, error) {
	buckets := make([]capacity.Bucket, 0, len(c.NodeManagers))
	for _, b := range c.NodeManagers {
		size, err := units.RAMInBytes(b.MaxSize)
		if err != nil {
			return nil, cerrors.WrapError(cerrors.ErrInvalidConfig, err,
				"max-size of "+b.InstanceType)
		}
		if b.InstanceType == "" || b.ItemsPerInstance <= 0 {
			return nil, invalid("capacity.node-manager needs an instance-type and positive items-per-instance")
		}
		buckets = append(buckets, capacity.Bucket{
			InstanceType:     b.InstanceType,
			MaxSize:          size,
			ItemsPerInstance: b.ItemsPerInstance,
			SpotPrice:        b.SpotPrice,
		})
	}
	return buckets, nil
}

// Redacted returns a copy of c safe to print.
func (c *Config) Redacted() *Config {
	clone := *c
	if clone.AWS.SecretAccessKey != "" {
		clone.AWS.SecretAccessKey = "******"
	}
	return &clone
}

func invalid(msg string) error {
	return cerrors.ErrInvalidConfig.GenWithStackByArgs(strings.TrimSpace(msg))
}
