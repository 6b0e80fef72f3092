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
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*FileStore, string) {
	dir := t.TempDir()
	s, err := NewFileStore(Config{DataDir: dir})
	require.NoError(t, err)
	return s, dir
}

func record(ts time.Time, mtu int) Record {
	return Record{
		Timestamp:      ts,
		Iface:          "eth0",
		LatencyMs:      20,
		ThroughputMbps: 500,
		JitterMs:       1,
		MTU:            mtu,
	}
}

func TestFileStoreAppendOrder(t *testing.T) {
	s, _ := newTestStore(t)
	t0 := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, s.AppendHistory("eth0", record(t0, 1400)))
	require.NoError(t, s.AppendHistory("eth0", record(t0.Add(time.Minute), 1420)))
	require.NoError(t, s.AppendHistory("eth0", record(t0.Add(2*time.Minute), 1440)))

	records, err := s.History("eth0")
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, []int{1400, 1420, 1440}, []int{records[0].MTU, records[1].MTU, records[2].MTU})
}

func TestFileStoreNoData(t *testing.T) {
	s, _ := newTestStore(t)

	_, err := s.History("eth0")
	assert.ErrorIs(t, err, ErrNoData)
	_, err = s.LoadModel("eth0")
	assert.ErrorIs(t, err, ErrNoData)
	_, err = s.LoadPrediction("eth0")
	assert.ErrorIs(t, err, ErrNoData)
}

func TestFileStoreModelRoundTrip(t *testing.T) {
	s, _ := newTestStore(t)

	model := Model{
		Iface:       "eth0",
		SampleCount: 5,
		Latency:     Trend{Avg: 42.5, Slope: 2.5},
		Stability:   0.97,
		Optimal:     OptimalConditions{MTU: 1420, TopHours: []int{10, 11}},
	}
	require.NoError(t, s.SaveModel("eth0", model))

	loaded, err := s.LoadModel("eth0")
	require.NoError(t, err)
	assert.Equal(t, model, loaded)

	// 新模型覆盖旧模型
	model.SampleCount = 6
	require.NoError(t, s.SaveModel("eth0", model))
	loaded, err = s.LoadModel("eth0")
	require.NoError(t, err)
	assert.Equal(t, 6, loaded.SampleCount)
}

func TestFileStoreDetectsCorruption(t *testing.T) {
	s, dir := newTestStore(t)
	require.NoError(t, s.SaveModel("eth0", Model{Iface: "eth0", SampleCount: 1}))

	path := filepath.Join(dir, "eth0", "model.json")

	// 截断的文档
	require.NoError(t, os.WriteFile(path, []byte(`{"checksum":1,"payload":`), 0o644))
	_, err := s.LoadModel("eth0")
	assert.ErrorIs(t, err, ErrCorrupted)

	// checksum 不匹配
	require.NoError(t, os.WriteFile(path, []byte(`{"checksum":1,"payload":{"iface":"eth0"}}`), 0o644))
	_, err = s.LoadModel("eth0")
	assert.ErrorIs(t, err, ErrCorrupted)
}

func TestFileStoreNeverLeavesTempFiles(t *testing.T) {
	s, dir := newTestStore(t)
	require.NoError(t, s.SaveModel("eth0", Model{Iface: "eth0", SampleCount: 1}))

	entries, err := os.ReadDir(filepath.Join(dir, "eth0"))
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp")
	}
}

func TestFileStoreHistoryWindow(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(Config{DataDir: dir, MaxHistory: 3})
	require.NoError(t, err)

	t0 := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, s.AppendHistory("eth0", record(t0.Add(time.Duration(i)*time.Minute), 1400+i*10)))
	}

	records, err := s.History("eth0")
	require.NoError(t, err)
	require.Len(t, records, 3)
	// 裁剪最旧的记录
	assert.Equal(t, 1420, records[0].MTU)
	assert.Equal(t, 1440, records[2].MTU)
}

func TestFileStoreConcurrentAppend(t *testing.T) {
	s, _ := newTestStore(t)
	t0 := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = s.AppendHistory("eth0", record(t0.Add(time.Duration(i)*time.Second), 1400))
		}(i)
	}
	wg.Wait()

	records, err := s.History("eth0")
	require.NoError(t, err)
	assert.Len(t, records, 20)
}

func TestMemStoreIsolation(t *testing.T) {
	s := NewMemStore()
	require.NoError(t, s.AppendHistory("eth0", record(time.Now(), 1400)))

	records, err := s.History("eth0")
	require.NoError(t, err)
	records[0].MTU = 9999

	again, err := s.History("eth0")
	require.NoError(t, err)
	assert.Equal(t, 1400, again[0].MTU)
}
