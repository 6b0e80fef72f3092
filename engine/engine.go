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

// Package engine 将预测转化为新的 MTU 值并驱动持续评估
package engine

import (
	"github.com/pkg/errors"

	"github.com/mtuned/mtuned/common"
	"github.com/mtuned/mtuned/logger"
	"github.com/mtuned/mtuned/predict"
	"github.com/mtuned/mtuned/store"
)

// actConfidence 执行调整所需的最低置信度
const actConfidence = 0.7

// Engine 调整决策引擎
//
// 纯决策 从不直接修改接口 应用新值是调用方的职责
type Engine struct {
	predictor *predict.Predictor
}

func New(predictor *predict.Predictor) *Engine {
	return &Engine{predictor: predictor}
}

// Adapt 基于最新预测决定接口的新 MTU
//
// 无论模型给出什么建议 返回值都会被无条件收敛至
// [MinMTU, MaxMTU] 该收敛是与模型正确性无关的硬性约束
func (e *Engine) Adapt(iface string, currentMTU int) (int, error) {
	if err := common.ValidateMTU(currentMTU); err != nil {
		return 0, err
	}

	prediction, err := e.predictor.Predict(iface, currentMTU)
	if err != nil {
		return 0, errors.Wrapf(err, "predict for %s", iface)
	}

	newMTU := e.decide(iface, currentMTU, prediction)
	return common.ClampMTU(newMTU), nil
}

func (e *Engine) decide(iface string, currentMTU int, p store.Prediction) int {
	if p.OptimalRange.Contains(currentMTU) {
		adaptations.WithLabelValues(iface, "noop").Inc()
		logger.Infof("mtu %d on %s already within optimal range [%d, %d]",
			currentMTU, iface, p.OptimalRange.Min, p.OptimalRange.Max)
		return currentMTU
	}

	if p.Confidence <= actConfidence || p.Recommendation.RiskLevel == store.RiskHigh {
		adaptations.WithLabelValues(iface, "hold").Inc()
		logger.Infof("holding mtu %d on %s: confidence %.4f, risk %s",
			currentMTU, iface, p.Confidence, p.Recommendation.RiskLevel)
		return currentMTU
	}

	// 移动到被违反的那一侧区间边界 小步收敛而非直接跳到最优点
	newMTU := p.OptimalRange.Max
	if currentMTU < p.OptimalRange.Min {
		newMTU = p.OptimalRange.Min
	}

	adaptations.WithLabelValues(iface, "adjust").Inc()
	logger.Infof("adapting mtu on %s: %d -> %d (confidence %.4f, expected improvement %.4f)",
		iface, currentMTU, newMTU, p.Confidence, p.Recommendation.ExpectedImprovement)
	return newMTU
}
