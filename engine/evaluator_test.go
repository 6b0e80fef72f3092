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

package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mtuned/mtuned/analyzer"
	"github.com/mtuned/mtuned/pinger"
	"github.com/mtuned/mtuned/predict"
	"github.com/mtuned/mtuned/store"
)

type fakeIfctl struct {
	mut  sync.Mutex
	mtu  int
	sets []int
}

func (f *fakeIfctl) MTU(string) (int, error) {
	f.mut.Lock()
	defer f.mut.Unlock()
	return f.mtu, nil
}

func (f *fakeIfctl) SetMTU(_ string, mtu int) error {
	f.mut.Lock()
	defer f.mut.Unlock()
	f.mtu = mtu
	f.sets = append(f.sets, mtu)
	return nil
}

type fakeMeasurer struct {
	sample pinger.Sample
}

func (f *fakeMeasurer) Measure(context.Context, string, string, int) (pinger.Sample, error) {
	return f.sample, nil
}

func TestEvaluatorCollectsAndAnalyzes(t *testing.T) {
	s := store.NewMemStore()
	ifctl := &fakeIfctl{mtu: 1400}
	measurer := &fakeMeasurer{sample: pinger.Sample{
		LatencyMs:      20,
		ThroughputMbps: 500,
		JitterMs:       1,
	}}

	ev := NewEvaluator(
		EvaluatorConfig{
			Iface:               "eth0",
			Target:              "198.51.100.1",
			Interval:            10 * time.Millisecond,
			AdaptationThreshold: 3,
		},
		New(predict.New(s)),
		analyzer.New(s),
		s,
		measurer,
		ifctl,
	)

	ev.Start()
	assert.Eventually(t, func() bool {
		records, err := s.History("eth0")
		return err == nil && len(records) >= 3
	}, 3*time.Second, 5*time.Millisecond)
	ev.Stop()

	// 每个周期都重建模型
	model, err := s.LoadModel("eth0")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, model.SampleCount, 3)

	// Stop 之后不再产生新记录
	records, err := s.History("eth0")
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)
	again, err := s.History("eth0")
	require.NoError(t, err)
	assert.Equal(t, len(records), len(again))
}

func TestEvaluatorStopIsGraceful(t *testing.T) {
	s := store.NewMemStore()
	ev := NewEvaluator(
		EvaluatorConfig{
			Iface:    "eth0",
			Target:   "198.51.100.1",
			Interval: 5 * time.Millisecond,
		},
		New(predict.New(s)),
		analyzer.New(s),
		s,
		&fakeMeasurer{sample: pinger.Sample{LatencyMs: 20, ThroughputMbps: 500}},
		&fakeIfctl{mtu: 1400},
	)

	ev.Start()
	time.Sleep(20 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		ev.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return")
	}
}
