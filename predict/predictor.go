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
	"time"

	"github.com/pkg/errors"

	"github.com/mtuned/mtuned/analyzer"
	"github.com/mtuned/mtuned/common"
	"github.com/mtuned/mtuned/store"
)

const (
	// rangeDelta 建议区间半径 optimal±delta
	rangeDelta = 20

	// lowRiskConfidence 置信度不低于该值时风险为 low 否则为 medium
	//
	// high 风险从不由预测自动产生 该档位保留给外部的人工策略
	lowRiskConfidence = 0.8
)

// Predictor 将统计模型与当前 MTU 组合为预测
type Predictor struct {
	store store.Store
}

func New(s store.Store) *Predictor {
	return &Predictor{store: s}
}

// Predict 产出并持久化接口的最新预测 覆盖先前的预测
//
// 接口没有模型时返回 store.ErrNoData currentMTU 越界时返回校验错误
func (p *Predictor) Predict(iface string, currentMTU int) (store.Prediction, error) {
	if err := common.ValidateMTU(currentMTU); err != nil {
		return store.Prediction{}, err
	}

	model, err := p.store.LoadModel(iface)
	if err != nil {
		return store.Prediction{}, err
	}

	confidence, err := Confidence(model)
	if err != nil {
		return store.Prediction{}, errors.Wrapf(err, "score model of %s", iface)
	}

	optimal := model.Optimal.MTU
	prediction := store.Prediction{
		Iface:      iface,
		CurrentMTU: currentMTU,
		// 模型可能由损坏的历史推出越界的最优值 区间同样收敛
		OptimalRange: store.MTURange{
			Min: common.ClampMTU(optimal - rangeDelta),
			Max: common.ClampMTU(optimal + rangeDelta),
		},
		Confidence: confidence,
		Recommendation: store.Recommendation{
			Direction:           direction(currentMTU, optimal),
			ExpectedImprovement: expectedImprovement(confidence, currentMTU, optimal),
			RiskLevel:           riskLevel(confidence),
		},
		GeneratedAt: time.Now(),
	}

	if err := p.store.SavePrediction(iface, prediction); err != nil {
		return store.Prediction{}, errors.Wrapf(err, "save prediction of %s", iface)
	}
	return prediction, nil
}

func direction(current, optimal int) string {
	switch {
	case current < optimal:
		return store.DirectionIncrease
	case current > optimal:
		return store.DirectionDecrease
	}
	return store.DirectionMaintain
}

func riskLevel(confidence float64) string {
	if confidence >= lowRiskConfidence {
		return store.RiskLow
	}
	return store.RiskMedium
}

// expectedImprovement 置信度与归一化 MTU 距离的乘积 处于 [0,1]
//
// 当前值越接近最优值 可期待的收益越小 当前值即最优值时为 0
func expectedImprovement(confidence float64, current, optimal int) float64 {
	span := float64(common.MaxMTU - common.MinMTU)
	dist := math.Min(math.Abs(float64(current-optimal))/span, 1)
	return analyzer.Clamp01(confidence * dist)
}
