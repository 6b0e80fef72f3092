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

package flock

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testOptions(dir string) Options {
	return Options{
		Dir:      dir,
		TTL:      time.Minute,
		Attempts: 5,
		Backoff:  time.Millisecond,
	}
}

func TestAcquireRelease(t *testing.T) {
	dir := t.TempDir()
	lock := New("eth0", testOptions(dir))

	require.NoError(t, lock.Acquire(context.Background()))
	_, err := os.Stat(filepath.Join(dir, "mtuned-eth0.lock"))
	require.NoError(t, err)

	require.NoError(t, lock.Release())
	_, err = os.Stat(filepath.Join(dir, "mtuned-eth0.lock"))
	assert.True(t, os.IsNotExist(err))

	// 重复释放不报错
	assert.NoError(t, lock.Release())
}

func TestAcquireTimesOutOnContention(t *testing.T) {
	dir := t.TempDir()

	holder := New("eth0", testOptions(dir))
	require.NoError(t, holder.Acquire(context.Background()))
	defer func() {
		require.NoError(t, holder.Release())
	}()

	// 持有者存活且租约未过期 竞争者在预算内必然超时
	contender := New("eth0", testOptions(dir))
	err := contender.Acquire(context.Background())
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestReclaimDeadOwner(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mtuned-eth0.lock")

	// pid 上限默认为 2^22 该值不可能对应存活进程
	b, err := json.Marshal(owner{
		PID:        1 << 30,
		Hostname:   "gone",
		AcquiredAt: time.Now(),
		ExpiresAt:  time.Now().Add(time.Hour),
	})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o644))

	lock := New("eth0", testOptions(dir))
	assert.NoError(t, lock.Acquire(context.Background()))
	require.NoError(t, lock.Release())
}

func TestReclaimExpiredLease(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mtuned-eth0.lock")

	// 持有者进程仍然存活 但租约已经过期
	b, err := json.Marshal(owner{
		PID:        os.Getpid(),
		Hostname:   "local",
		AcquiredAt: time.Now().Add(-2 * time.Hour),
		ExpiresAt:  time.Now().Add(-time.Hour),
	})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o644))

	lock := New("eth0", testOptions(dir))
	assert.NoError(t, lock.Acquire(context.Background()))
	require.NoError(t, lock.Release())
}

func TestReclaimMalformedLock(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mtuned-eth0.lock")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o644))

	lock := New("eth0", testOptions(dir))
	assert.NoError(t, lock.Acquire(context.Background()))
	require.NoError(t, lock.Release())
}

func TestStealRemovesInspectedContent(t *testing.T) {
	dir := t.TempDir()
	lock := New("eth0", testOptions(dir))

	stale, err := json.Marshal(owner{
		PID:        1 << 30,
		Hostname:   "gone",
		AcquiredAt: time.Now().Add(-2 * time.Hour),
		ExpiresAt:  time.Now().Add(-time.Hour),
	})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(lock.path, stale, 0o644))

	assert.True(t, lock.steal(stale))
	_, err = os.Stat(lock.path)
	assert.True(t, os.IsNotExist(err))
}

func TestStealPutsBackChangedLock(t *testing.T) {
	dir := t.TempDir()
	lock := New("eth0", testOptions(dir))

	// 判定失效之后持有者变更 回收必须把新锁原样放回
	fresh, err := json.Marshal(owner{
		PID:        os.Getpid(),
		Hostname:   "local",
		AcquiredAt: time.Now(),
		ExpiresAt:  time.Now().Add(time.Hour),
	})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(lock.path, fresh, 0o644))

	assert.False(t, lock.steal([]byte(`{"pid":1073741824}`)))
	b, err := os.ReadFile(lock.path)
	require.NoError(t, err)
	assert.Equal(t, fresh, b)
}

func TestAcquireRespectsContext(t *testing.T) {
	dir := t.TempDir()

	holder := New("eth0", testOptions(dir))
	require.NoError(t, holder.Acquire(context.Background()))
	defer func() {
		require.NoError(t, holder.Release())
	}()

	opts := testOptions(dir)
	opts.Backoff = 100 * time.Millisecond
	contender := New("eth0", opts)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := contender.Acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMutualExclusion(t *testing.T) {
	dir := t.TempDir()

	var mut sync.Mutex
	var active, maxActive int

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			opts := testOptions(dir)
			opts.Attempts = 1000
			lock := New("eth0", opts)
			if err := lock.Acquire(context.Background()); err != nil {
				return
			}

			mut.Lock()
			active++
			if active > maxActive {
				maxActive = active
			}
			mut.Unlock()

			time.Sleep(time.Millisecond)

			mut.Lock()
			active--
			mut.Unlock()
			_ = lock.Release()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxActive)
}
