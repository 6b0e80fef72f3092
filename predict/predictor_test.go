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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mtuned/mtuned/common"
	"github.com/mtuned/mtuned/store"
)

func TestPredictRecommendsIncrease(t *testing.T) {
	s := store.NewMemStore()
	require.NoError(t, s.SaveModel("eth0", validModel()))

	p := New(s)
	prediction, err := p.Predict("eth0", 1400)
	require.NoError(t, err)

	assert.Equal(t, store.MTURange{Min: 1400, Max: 1440}, prediction.OptimalRange)
	assert.Equal(t, store.DirectionIncrease, prediction.Recommendation.Direction)
	assert.GreaterOrEqual(t, prediction.Confidence, 0.0)
	assert.LessOrEqual(t, prediction.Confidence, 1.0)
}

func TestPredictDirections(t *testing.T) {
	tests := []struct {
		current int
		want    string
	}{
		{current: 1400, want: store.DirectionIncrease},
		{current: 1440, want: store.DirectionDecrease},
		{current: 1420, want: store.DirectionMaintain},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			s := store.NewMemStore()
			require.NoError(t, s.SaveModel("eth0", validModel()))

			prediction, err := New(s).Predict("eth0", tt.current)
			require.NoError(t, err)
			assert.Equal(t, tt.want, prediction.Recommendation.Direction)
		})
	}
}

func TestPredictRiskLevel(t *testing.T) {
	s := store.NewMemStore()

	confident := validModel()
	confident.Stability = 1.0
	confident.Correlations.MTUVsPerformance = 1.0
	confident.Optimal.TopHours = []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}
	require.NoError(t, s.SaveModel("eth0", confident))

	prediction, err := New(s).Predict("eth0", 1400)
	require.NoError(t, err)
	assert.Equal(t, store.RiskLow, prediction.Recommendation.RiskLevel)

	shaky := validModel()
	shaky.Stability = 0.2
	shaky.Correlations.MTUVsPerformance = 0.1
	shaky.Optimal.TopHours = nil
	require.NoError(t, s.SaveModel("eth1", shaky))

	prediction, err = New(s).Predict("eth1", 1400)
	require.NoError(t, err)
	// high 风险从不自动产生
	assert.Equal(t, store.RiskMedium, prediction.Recommendation.RiskLevel)
}

func TestPredictRangeStaysInBounds(t *testing.T) {
	tests := []struct {
		name    string
		optimal int
		want    store.MTURange
	}{
		{name: "upper bound", optimal: 1500, want: store.MTURange{Min: 1480, Max: 1500}},
		{name: "lower bound", optimal: 1280, want: store.MTURange{Min: 1280, Max: 1300}},
		{name: "out of bounds model", optimal: 1600, want: store.MTURange{Min: 1500, Max: 1500}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := store.NewMemStore()
			model := validModel()
			model.Optimal.MTU = tt.optimal
			require.NoError(t, s.SaveModel("eth0", model))

			prediction, err := New(s).Predict("eth0", 1400)
			require.NoError(t, err)
			assert.Equal(t, tt.want, prediction.OptimalRange)
		})
	}
}

func TestPredictExpectedImprovementBounds(t *testing.T) {
	s := store.NewMemStore()
	require.NoError(t, s.SaveModel("eth0", validModel()))

	for _, current := range []int{1280, 1350, 1420, 1500} {
		prediction, err := New(s).Predict("eth0", current)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, prediction.Recommendation.ExpectedImprovement, 0.0)
		assert.LessOrEqual(t, prediction.Recommendation.ExpectedImprovement, 1.0)
	}
}

func TestPredictValidatesMTU(t *testing.T) {
	s := store.NewMemStore()
	require.NoError(t, s.SaveModel("eth0", validModel()))

	p := New(s)
	var verr *common.ValidationError
	_, err := p.Predict("eth0", 1200)
	assert.ErrorAs(t, err, &verr)
	_, err = p.Predict("eth0", 1600)
	assert.ErrorAs(t, err, &verr)
}

func TestPredictNoModel(t *testing.T) {
	p := New(store.NewMemStore())
	_, err := p.Predict("eth0", 1400)
	assert.ErrorIs(t, err, store.ErrNoData)
}

func TestPredictPersisted(t *testing.T) {
	s := store.NewMemStore()
	require.NoError(t, s.SaveModel("eth0", validModel()))

	prediction, err := New(s).Predict("eth0", 1400)
	require.NoError(t, err)

	saved, err := s.LoadPrediction("eth0")
	require.NoError(t, err)
	assert.Equal(t, prediction, saved)

	// 新预测覆盖旧预测
	next, err := New(s).Predict("eth0", 1440)
	require.NoError(t, err)
	saved, err = s.LoadPrediction("eth0")
	require.NoError(t, err)
	assert.Equal(t, next.CurrentMTU, saved.CurrentMTU)
}
