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

// Package analyzer 从测量历史全量重建接口的统计模型
//
// 分析是确定性的 同一份历史重复分析产出一致的模型
// 模型仅是历史的缓存 任何时刻都可以重新推导
package analyzer

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/mtuned/mtuned/store"
)

const (
	// latencySpikeFactor 延迟尖刺阈值 相对样本自身均值
	latencySpikeFactor = 2.0

	// packetLossEventPct 丢包事件阈值
	packetLossEventPct = 1.0

	// throughputDropFactor 吞吐骤降阈值 相对样本自身均值
	throughputDropFactor = 0.5
)

// Analyzer 重建并持久化接口的统计模型
type Analyzer struct {
	store store.Store
}

func New(s store.Store) *Analyzer {
	return &Analyzer{store: s}
}

// Analyze 读取接口全部历史并重建模型 覆盖先前的模型
//
// 没有任何记录时返回 store.ErrNoData 且不写入任何内容
// 绝不会悄悄产出一个全零模型
func (a *Analyzer) Analyze(iface string) (store.Model, error) {
	records, err := a.store.History(iface)
	if err != nil {
		return store.Model{}, err
	}

	model := BuildModel(iface, records)
	if err := a.store.SaveModel(iface, model); err != nil {
		return store.Model{}, errors.Wrapf(err, "save model of %s", iface)
	}
	return model, nil
}

// BuildModel 由记录序列计算模型 纯函数
//
// 记录先按时间戳排序 并发采集场景下文件顺序不等于时间顺序
// 空记录集产出 SampleCount 为 0 的零值模型 不会被置信度打分接受
func BuildModel(iface string, records []store.Record) store.Model {
	if len(records) == 0 {
		return store.Model{Iface: iface}
	}

	sorted := make([]store.Record, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	n := len(sorted)
	latencies := make([]float64, 0, n)
	throughputs := make([]float64, 0, n)
	losses := make([]float64, 0, n)
	jitters := make([]float64, 0, n)
	mtus := make([]float64, 0, n)
	scores := make([]float64, 0, n)

	for _, r := range sorted {
		latencies = append(latencies, r.LatencyMs)
		throughputs = append(throughputs, r.ThroughputMbps)
		losses = append(losses, r.PacketLossPct)
		jitters = append(jitters, r.JitterMs)
		mtus = append(mtus, float64(r.MTU))
		scores = append(scores, PerformanceScore(r.LatencyMs, r.ThroughputMbps))
	}

	return store.Model{
		Iface:       iface,
		SampleCount: n,
		Latency:     store.Trend{Avg: mean(latencies), Slope: slope(latencies)},
		Throughput:  store.Trend{Avg: mean(throughputs), Slope: slope(throughputs)},
		PacketLoss:  store.Trend{Avg: mean(losses), Slope: slope(losses)},
		Stability:   Clamp01(1 - mean(jitters)/100),
		Optimal:     optimalConditions(sorted, scores),
		Anomalies:   countAnomalies(sorted, mean(latencies), mean(throughputs)),
		Correlations: store.Correlations{
			MTUVsPerformance: pearson(mtus, scores),
		},
	}
}

// countAnomalies 以固定阈值统计异常事件 阈值均相对样本自身均值
func countAnomalies(records []store.Record, meanLatency, meanThroughput float64) store.Anomalies {
	var anomalies store.Anomalies
	for _, r := range records {
		if r.LatencyMs > latencySpikeFactor*meanLatency {
			anomalies.LatencySpikes++
		}
		if r.PacketLossPct > packetLossEventPct {
			anomalies.PacketLossEvents++
		}
		if r.ThroughputMbps < throughputDropFactor*meanThroughput {
			anomalies.ThroughputDrops++
		}
	}
	return anomalies
}

// optimalConditions 找出得分最高的 MTU 与高性能时段
//
// 高性能时段为小时桶均分不低于全局均分的小时 按均分降序排列
func optimalConditions(records []store.Record, scores []float64) store.OptimalConditions {
	best := 0
	for i := range scores {
		if scores[i] > scores[best] {
			best = i
		}
	}

	type bucket struct {
		sum   float64
		count int
	}
	buckets := make(map[int]*bucket)
	for i, r := range records {
		hour := r.Timestamp.Hour()
		b, ok := buckets[hour]
		if !ok {
			b = &bucket{}
			buckets[hour] = b
		}
		b.sum += scores[i]
		b.count++
	}

	overall := mean(scores)
	type hourAvg struct {
		hour int
		avg  float64
	}
	var tops []hourAvg
	for hour, b := range buckets {
		if avg := b.sum / float64(b.count); avg >= overall {
			tops = append(tops, hourAvg{hour: hour, avg: avg})
		}
	}
	sort.Slice(tops, func(i, j int) bool {
		if tops[i].avg != tops[j].avg {
			return tops[i].avg > tops[j].avg
		}
		return tops[i].hour < tops[j].hour
	})

	hours := make([]int, 0, len(tops))
	for _, t := range tops {
		hours = append(hours, t.hour)
	}
	return store.OptimalConditions{
		MTU:      records[best].MTU,
		TopHours: hours,
	}
}
