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

package flock

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mtuned/mtuned/common"
)

var (
	lockContention = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: common.App,
			Name:      "lock_contention_total",
			Help:      "Lock acquisition attempts that found the lock held",
		},
		[]string{"name"},
	)

	lockSteals = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: common.App,
			Name:      "lock_steals_total",
			Help:      "Stale locks forcibly reclaimed",
		},
		[]string{"name"},
	)

	lockTimeouts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: common.App,
			Name:      "lock_timeouts_total",
			Help:      "Lock acquisitions that exhausted the attempt budget",
		},
		[]string{"name"},
	)
)
