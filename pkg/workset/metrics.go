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

package workset

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	pendingPartitionsGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "chiles02",
			Subsystem: "workset",
			Name:      "pending_partitions",
			Help:      "number of partitions still to be processed",
		}, []string{"stage"})
	skippedDaysCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chiles02",
			Subsystem: "workset",
			Name:      "mostly_done_days_total",
			Help:      "days skipped because only low edge partitions are missing",
		}, []string{"stage"})
)

// InitMetrics registers all metrics in this file.
func InitMetrics(registry *prometheus.Registry) {
	registry.MustRegister(pendingPartitionsGauge)
	registry.MustRegister(skippedDaysCounter)
}
