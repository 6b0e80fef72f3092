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

package predict

import (
	"math"

	"github.com/pkg/errors"

	"github.com/mtuned/mtuned/analyzer"
	"github.com/mtuned/mtuned/store"
)

// ErrInvalidModel 代表模型字段缺失或超出取值域
var ErrInvalidModel = errors.New("invalid model")

// 各分量权重 和为 1 属可调策略而非正确性约束
// 打分函数对每个分量单调 稳定性更高 异常更少 相关性更强
// 数据更充分 置信度均不会降低
const (
	weightStability   = 0.45
	weightAnomaly     = 0.2
	weightCorrelation = 0.25
	weightSufficiency = 0.1

	// anomalyDecay 异常分量的指数衰减常数
	anomalyDecay = 5.0

	// sufficiencyBuckets 数据充分性饱和阈值 高性能时段达到该数量时分量为 1
	sufficiencyBuckets = 10.0
)

// Confidence 将模型映射为 [0,1] 的置信度
//
// 置信度决定决策引擎的激进程度 分数越高越敢于执行调整
func Confidence(model store.Model) (float64, error) {
	if err := validateModel(model); err != nil {
		return 0, err
	}

	total := model.Anomalies.LatencySpikes +
		model.Anomalies.PacketLossEvents +
		model.Anomalies.ThroughputDrops

	anomaly := 1.0
	if total > 0 {
		anomaly = math.Exp(-float64(total) / anomalyDecay)
	}

	correlation := math.Abs(model.Correlations.MTUVsPerformance)
	sufficiency := math.Min(float64(len(model.Optimal.TopHours))/sufficiencyBuckets, 1)

	score := weightStability*model.Stability +
		weightAnomaly*anomaly +
		weightCorrelation*correlation +
		weightSufficiency*sufficiency
	return analyzer.Clamp01(score), nil
}

func validateModel(model store.Model) error {
	switch {
	case model.SampleCount < 1:
		return errors.Wrap(ErrInvalidModel, "empty sample")
	case model.Stability < 0 || model.Stability > 1:
		return errors.Wrapf(ErrInvalidModel, "stability %f out of [0,1]", model.Stability)
	case model.Correlations.MTUVsPerformance < -1 || model.Correlations.MTUVsPerformance > 1:
		return errors.Wrapf(ErrInvalidModel, "correlation %f out of [-1,1]", model.Correlations.MTUVsPerformance)
	case model.Anomalies.LatencySpikes < 0 || model.Anomalies.PacketLossEvents < 0 || model.Anomalies.ThroughputDrops < 0:
		return errors.Wrap(ErrInvalidModel, "negative anomaly count")
	}
	return nil
}
