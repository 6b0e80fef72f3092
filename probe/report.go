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
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Report 一次调优运行的结果 候选按得分降序排列
type Report struct {
	RunID       string        `json:"runId"`
	Iface       string        `json:"iface"`
	OriginalMTU int           `json:"originalMtu"`
	Candidates  []Candidate   `json:"candidates"`
	FailedMTUs  []int         `json:"failedMtus"`
	StartedAt   time.Time     `json:"startedAt"`
	Elapsed     time.Duration `json:"elapsed"`
}

func newReport(iface string, originalMTU int) *Report {
	return &Report{
		RunID:       uuid.New().String(),
		Iface:       iface,
		OriginalMTU: originalMTU,
		StartedAt:   time.Now(),
	}
}

func (r *Report) finish(candidates []Candidate, failed []int) {
	rank(candidates)
	sort.Ints(failed)
	r.Candidates = candidates
	r.FailedMTUs = failed
	r.Elapsed = time.Since(r.StartedAt)
}

// Best 返回得分最高的候选 没有可用候选时返回零值
func (r *Report) Best() Candidate {
	if len(r.Candidates) == 0 {
		return Candidate{}
	}
	return r.Candidates[0]
}

// Render 渲染为对人友好的表格
func (r *Report) Render() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Run:      %s\n", r.RunID)
	fmt.Fprintf(&sb, "Iface:    %s (original mtu %d)\n", r.Iface, r.OriginalMTU)
	fmt.Fprintf(&sb, "Elapsed:  %s\n\n", r.Elapsed.Round(time.Millisecond))
	fmt.Fprintf(&sb, "%-6s %-12s %-16s %-10s %-8s\n", "MTU", "LATENCY(ms)", "THROUGHPUT(Mbps)", "LOSS(%)", "SCORE")

	for _, c := range r.Candidates {
		fmt.Fprintf(&sb, "%-6d %-12.2f %-16.2f %-10.2f %-8.4f\n",
			c.MTU, c.LatencyMs, c.ThroughputMbps, c.PacketLossPct, c.Score)
	}
	for _, mtu := range r.FailedMTUs {
		fmt.Fprintf(&sb, "%-6d %s\n", mtu, "failed")
	}

	if len(r.Candidates) > 0 {
		fmt.Fprintf(&sb, "\nBest: %d\n", r.Best().MTU)
	}
	return sb.String()
}
