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

package store

import (
	"time"
)

// Record 单条链路测量记录 追加后不可变更
type Record struct {
	Timestamp      time.Time `json:"timestamp"`
	Iface          string    `json:"iface"`
	LatencyMs      float64   `json:"latencyMs"`
	ThroughputMbps float64   `json:"throughputMbps"`
	PacketLossPct  float64   `json:"packetLossPct"`
	JitterMs       float64   `json:"jitterMs"`
	MTU            int       `json:"mtu"`
}

// Trend 单项指标的均值与粗略斜率
type Trend struct {
	Avg   float64 `json:"avg"`
	Slope float64 `json:"slope"`
}

// OptimalConditions 历史样本中表现最好的条件
type OptimalConditions struct {
	MTU      int   `json:"mtu"`
	TopHours []int `json:"topHours"`
}

// Anomalies 各类异常事件计数
type Anomalies struct {
	LatencySpikes    int `json:"latencySpikes"`
	PacketLossEvents int `json:"packetLossEvents"`
	ThroughputDrops  int `json:"throughputDrops"`
}

// Correlations 指标间相关性
type Correlations struct {
	MTUVsPerformance float64 `json:"mtuVsPerformance"`
}

// Model 接口的统计模型 由历史记录全量重建 本质是缓存而非数据源
//
// 字段均为确定性计算结果 不含时间戳 同一份历史重复分析产出完全一致
type Model struct {
	Iface        string            `json:"iface"`
	SampleCount  int               `json:"sampleCount"`
	Latency      Trend             `json:"latency"`
	Throughput   Trend             `json:"throughput"`
	PacketLoss   Trend             `json:"packetLoss"`
	Stability    float64           `json:"stability"`
	Optimal      OptimalConditions `json:"optimal"`
	Anomalies    Anomalies         `json:"anomalies"`
	Correlations Correlations      `json:"correlations"`
}

const (
	DirectionIncrease = "increase"
	DirectionDecrease = "decrease"
	DirectionMaintain = "maintain"
)

const (
	RiskLow    = "low"
	RiskMedium = "medium"
	RiskHigh   = "high"
)

// MTURange 建议的 MTU 闭区间
type MTURange struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// Contains 判断 mtu 是否落在区间内
func (r MTURange) Contains(mtu int) bool {
	return mtu >= r.Min && mtu <= r.Max
}

// Recommendation 调整建议
type Recommendation struct {
	Direction           string  `json:"direction"`
	ExpectedImprovement float64 `json:"expectedImprovement"`
	RiskLevel           string  `json:"riskLevel"`
}

// Prediction 接口的最新预测 仅保留最近一次
type Prediction struct {
	Iface          string         `json:"iface"`
	CurrentMTU     int            `json:"currentMtu"`
	OptimalRange   MTURange       `json:"optimalRange"`
	Confidence     float64        `json:"confidence"`
	Recommendation Recommendation `json:"recommendation"`
	GeneratedAt    time.Time      `json:"generatedAt"`
}
