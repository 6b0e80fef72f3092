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

package analyzer

import (
	"math"
)

const (
	// latencyCapMs 延迟归一化上限 超过该值的延迟得分为 0
	latencyCapMs = 100

	// throughputCapMbps 吞吐归一化上限 超过该值的吞吐得分为 1
	throughputCapMbps = 1000
)

// NormalizeLatency 将延迟归一化至 [0,1] 延迟越低得分越高
func NormalizeLatency(latencyMs float64) float64 {
	return (latencyCapMs - math.Min(latencyMs, latencyCapMs)) / latencyCapMs
}

// NormalizeThroughput 将吞吐归一化至 [0,1] 吞吐越高得分越高
func NormalizeThroughput(throughputMbps float64) float64 {
	return math.Min(throughputMbps, throughputCapMbps) / throughputCapMbps
}

// PerformanceScore 综合性能得分 取两项归一化指标的算术平均
func PerformanceScore(latencyMs, throughputMbps float64) float64 {
	return (NormalizeLatency(latencyMs) + NormalizeThroughput(throughputMbps)) / 2
}

// Clamp01 将 v 收敛至 [0,1]
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// slope 粗略趋势斜率 (last-first)/count 而非最小二乘拟合
func slope(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return (values[len(values)-1] - values[0]) / float64(len(values))
}

// pearson 相关系数 样本数不足或任一方差为 0 时返回 0
func pearson(xs, ys []float64) float64 {
	n := len(xs)
	if n < 2 || n != len(ys) {
		return 0
	}

	meanX := mean(xs)
	meanY := mean(ys)

	var cov, varX, varY float64
	for i := 0; i < n; i++ {
		dx := xs[i] - meanX
		dy := ys[i] - meanY
		cov += dx * dy
		varX += dx * dx
		varY += dy * dy
	}
	if varX == 0 || varY == 0 {
		return 0
	}
	return cov / math.Sqrt(varX*varY)
}
