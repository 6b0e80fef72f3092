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
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mtuned/mtuned/common"
	"github.com/mtuned/mtuned/internal/flock"
	"github.com/mtuned/mtuned/pinger"
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

func (f *fakeIfctl) lastSet() int {
	f.mut.Lock()
	defer f.mut.Unlock()
	if len(f.sets) == 0 {
		return 0
	}
	return f.sets[len(f.sets)-1]
}

// fakeMeasurer 只有 usable 集合内的 MTU 产出可用样本
type fakeMeasurer struct {
	usable map[int]pinger.Sample
}

func (f *fakeMeasurer) Measure(_ context.Context, _, _ string, payloadSize int) (pinger.Sample, error) {
	mtu := payloadSize + ipICMPOverhead
	sample, ok := f.usable[mtu]
	if !ok {
		return pinger.Sample{}, pinger.ErrUnavailable
	}
	return sample, nil
}

func testConfig(t *testing.T) Config {
	return Config{
		Target:      "198.51.100.1",
		SettleDelay: time.Millisecond,
		Lock: flock.Options{
			Dir:      t.TempDir(),
			TTL:      time.Minute,
			Attempts: 500,
			Backoff:  time.Millisecond,
		},
	}
}

func TestRunSelectsOnlySurvivingCandidate(t *testing.T) {
	ifctl := &fakeIfctl{mtu: 1500}
	measurer := &fakeMeasurer{usable: map[int]pinger.Sample{
		1420: {LatencyMs: 20, ThroughputMbps: 500, PacketLossPct: 0, JitterMs: 1},
	}}
	s := store.NewMemStore()

	c, err := NewCoordinator(testConfig(t), ifctl, measurer, s)
	require.NoError(t, err)

	report, err := c.Run(context.Background(), "eth0", TuningOptions{
		MinMTU:  1280,
		MaxMTU:  1500,
		Step:    20,
		Retries: 2,
		Workers: 4,
	})
	require.NoError(t, err)

	assert.Equal(t, 1420, report.Best().MTU)
	assert.Equal(t, 1500, report.OriginalMTU)
	assert.Len(t, report.Candidates, 1)
	assert.Len(t, report.FailedMTUs, 11)

	// 最优候选被应用到接口
	assert.Equal(t, 1420, ifctl.lastSet())

	// 成功的测量进入历史
	records, err := s.History("eth0")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 1420, records[0].MTU)
}

func TestRunRestoresOnTotalFailure(t *testing.T) {
	ifctl := &fakeIfctl{mtu: 1500}
	measurer := &fakeMeasurer{usable: map[int]pinger.Sample{}}

	c, err := NewCoordinator(testConfig(t), ifctl, measurer, store.NewMemStore())
	require.NoError(t, err)

	_, err = c.Run(context.Background(), "eth0", TuningOptions{
		MinMTU:  1400,
		MaxMTU:  1440,
		Step:    20,
		Retries: 1,
		Workers: 2,
	})
	assert.ErrorIs(t, err, ErrAllCandidatesFailed)
	assert.Equal(t, 1500, ifctl.lastSet())
}

func TestRunDryRunRestoresOriginal(t *testing.T) {
	ifctl := &fakeIfctl{mtu: 1500}
	measurer := &fakeMeasurer{usable: map[int]pinger.Sample{
		1420: {LatencyMs: 20, ThroughputMbps: 500, JitterMs: 1},
	}}

	cfg := testConfig(t)
	cfg.Options = common.Options{"dryRun": true}
	c, err := NewCoordinator(cfg, ifctl, measurer, store.NewMemStore())
	require.NoError(t, err)

	report, err := c.Run(context.Background(), "eth0", TuningOptions{
		MinMTU:  1400,
		MaxMTU:  1440,
		Step:    20,
		Retries: 1,
		Workers: 2,
	})
	require.NoError(t, err)

	// 候选照常测量打分 但最优值不落到接口上
	assert.Equal(t, 1420, report.Best().MTU)
	assert.Equal(t, 1500, ifctl.lastSet())
}

func TestRunTimeoutRestoresOriginal(t *testing.T) {
	ifctl := &fakeIfctl{mtu: 1500}

	cfg := testConfig(t)
	cfg.Options = common.Options{"timeout": time.Nanosecond}
	c, err := NewCoordinator(cfg, ifctl, &fakeMeasurer{}, store.NewMemStore())
	require.NoError(t, err)

	_, err = c.Run(context.Background(), "eth0", TuningOptions{
		MinMTU:  1400,
		MaxMTU:  1440,
		Step:    20,
		Retries: 1,
		Workers: 2,
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1500, ifctl.lastSet())
}

func TestRunRejectsMalformedRange(t *testing.T) {
	c, err := NewCoordinator(testConfig(t), &fakeIfctl{mtu: 1500}, &fakeMeasurer{}, store.NewMemStore())
	require.NoError(t, err)

	var verr *common.ValidationError
	_, err = c.Run(context.Background(), "eth0", TuningOptions{MinMTU: 1400, MaxMTU: 1300})
	assert.ErrorAs(t, err, &verr)
	_, err = c.Run(context.Background(), "eth0", TuningOptions{MinMTU: 1000, MaxMTU: 1400})
	assert.ErrorAs(t, err, &verr)
}

func TestRankPrefersLargerMTUOnTie(t *testing.T) {
	candidates := []Candidate{
		{MTU: 1400, Score: 0.9},
		{MTU: 1460, Score: 0.9},
		{MTU: 1420, Score: 0.95},
	}
	rank(candidates)

	assert.Equal(t, 1420, candidates[0].MTU)
	assert.Equal(t, 1460, candidates[1].MTU)
	assert.Equal(t, 1400, candidates[2].MTU)
}

func TestDecodeTuningOptions(t *testing.T) {
	options := common.NewOptions()
	options.Merge("minMtu", 1300)
	options.Merge("maxMtu", 1480)
	options.Merge("step", 10)

	opts, err := DecodeTuningOptions(options)
	require.NoError(t, err)
	assert.Equal(t, 1300, opts.MinMTU)
	assert.Equal(t, 1480, opts.MaxMTU)
	assert.Equal(t, 10, opts.Step)
	assert.Equal(t, 3, opts.Retries)
	assert.Equal(t, common.Concurrency(), opts.Workers)
}

func TestDecodeTuningOptionsDefaults(t *testing.T) {
	opts, err := DecodeTuningOptions(common.NewOptions())
	require.NoError(t, err)
	assert.Equal(t, common.MinMTU, opts.MinMTU)
	assert.Equal(t, common.MaxMTU, opts.MaxMTU)
	assert.Equal(t, 20, opts.Step)
}
