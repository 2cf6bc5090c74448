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

package generator

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	graphNodesGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "chiles02",
			Subsystem: "generator",
			Name:      "graph_nodes",
			Help:      "number of nodes of the last generated graph",
		}, []string{"pipeline"})
	runCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chiles02",
			Subsystem: "generator",
			Name:      "runs_total",
			Help:      "generator runs by mode and outcome",
		}, []string{"pipeline", "mode", "result"})
	runDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "chiles02",
			Subsystem: "generator",
			Name:      "run_duration_seconds",
			Help:      "duration of a generator run",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 14),
		}, []string{"pipeline", "mode"})
)

// InitMetrics registers all metrics in this file.
func InitMetrics(registry *prometheus.Registry) {
	registry.MustRegister(graphNodesGauge)
	registry.MustRegister(runCounter)
	registry.MustRegister(runDuration)
}
