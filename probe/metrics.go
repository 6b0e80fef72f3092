// Copyright 2025 The mtuned Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package probe

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mtuned/mtuned/common"
)

var (
	probeAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: common.App,
			Name:      "probe_attempts_total",
			Help:      "Probe measurement attempts",
		},
		[]string{"iface"},
	)

	probeFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: common.App,
			Name:      "probe_failures_total",
			Help:      "Probe measurement attempts that produced no usable data",
		},
		[]string{"iface"},
	)

	optimizationRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: common.App,
			Name:      "optimization_runs_total",
			Help:      "Optimization runs by outcome",
		},
		[]string{"iface", "status"},
	)
)
