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
	"github.com/prometheus/client_golang/prometheus"
)

var (
	requestedNodesCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chiles02",
			Subsystem: "capacity",
			Name:      "requested_nodes_total",
			Help:      "number of instances requested",
		}, []string{"instance_type"})
	readyNodesGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "chiles02",
			Subsystem: "capacity",
			Name:      "ready_nodes",
			Help:      "number of instances that reported ready in the last round",
		}, []string{"instance_type"})
	readinessMessageCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chiles02",
			Subsystem: "capacity",
			Name:      "readiness_messages_total",
			Help:      "readiness messages received, by outcome",
		}, []string{"result"})
	waitDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "chiles02",
			Subsystem: "capacity",
			Name:      "wait_ready_duration_seconds",
			Help:      "time spent waiting for nodes to report ready",
			Buckets:   prometheus.ExponentialBuckets(15, 2, 8),
		})
)

// InitMetrics registers all metrics in this file.
func InitMetrics(registry *prometheus.Registry) {
	registry.MustRegister(requestedNodesCounter)
	registry.MustRegister(readyNodesGauge)
	registry.MustRegister(readinessMessageCounter)
	registry.MustRegister(waitDuration)
}
