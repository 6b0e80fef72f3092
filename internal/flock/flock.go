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

// Package flock 提供具名的跨进程互斥锁
//
// 修改接口 MTU 的探测操作必须全局串行 锁文件对所有进程可见
// 持有者记录 pid/hostname 以及租约过期时间 避免 PID 复用带来的误判
package flock

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"

	"github.com/mtuned/mtuned/logger"
)

// ErrTimeout 代表在重试预算内未能获取锁 调用方可自行决定是否重试整个操作
var ErrTimeout = errors.New("lock acquisition timed out")

type owner struct {
	PID        int       `json:"pid"`
	Hostname   string    `json:"hostname"`
	AcquiredAt time.Time `json:"acquiredAt"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

type Options struct {
	// Dir 锁文件目录 默认使用系统临时目录
	Dir string `config:"dir"`

	// TTL 租约时长 超过租约的锁视为过期 可被强制回收
	TTL time.Duration `config:"ttl"`

	// Attempts 获取锁的最大尝试次数
	Attempts int `config:"attempts"`

	// Backoff 相邻尝试之间的固定等待
	Backoff time.Duration `config:"backoff"`
}

func (o *Options) Validate() {
	if o.Dir == "" {
		o.Dir = os.TempDir()
	}
	if o.TTL <= 0 {
		o.TTL = 5 * time.Minute
	}
	if o.Attempts <= 0 {
		o.Attempts = 30
	}
	if o.Backoff <= 0 {
		o.Backoff = time.Second
	}
}

// Lock 接口粒度的互斥锁 一个实例对应一个锁文件
type Lock struct {
	name string
	path string
	opts Options
}

func New(name string, opts Options) *Lock {
	opts.Validate()
	return &Lock{
		name: name,
		path: filepath.Join(opts.Dir, "mtuned-"+name+".lock"),
		opts: opts,
	}
}

// Acquire 在重试预算内轮询获取锁 预算耗尽返回 ErrTimeout
func (l *Lock) Acquire(ctx context.Context) error {
	for attempt := 0; attempt < l.opts.Attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(l.opts.Backoff):
			}
		}

		ok, err := l.tryAcquire()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}

		lockContention.WithLabelValues(l.name).Inc()
		l.reclaimStale()
	}

	lockTimeouts.WithLabelValues(l.name).Inc()
	return errors.Wrapf(ErrTimeout, "lock %s after %d attempts", l.name, l.opts.Attempts)
}

// Release 无条件释放锁 包括获取后任何失败路径
func (l *Lock) Release() error {
	err := os.Remove(l.path)
	if err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "release lock %s", l.name)
	}
	return nil
}

func (l *Lock) tryAcquire() (bool, error) {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return false, nil
		}
		return false, errors.Wrapf(err, "create lock %s", l.name)
	}
	defer f.Close()

	hostname, _ := os.Hostname()
	now := time.Now()
	b, err := json.Marshal(owner{
		PID:        os.Getpid(),
		Hostname:   hostname,
		AcquiredAt: now,
		ExpiresAt:  now.Add(l.opts.TTL),
	})
	if err != nil {
		return false, err
	}
	if _, err := f.Write(b); err != nil {
		_ = os.Remove(l.path)
		return false, errors.Wrapf(err, "write lock %s", l.name)
	}
	return true, nil
}

// reclaimStale 回收失效的锁 下一轮尝试即可正常获取
//
// 两种失效情形 持有者进程已不存在 或租约已过期
func (l *Lock) reclaimStale() {
	b, err := os.ReadFile(l.path)
	if err != nil {
		return
	}

	var o owner
	if err := json.Unmarshal(b, &o); err != nil {
		if l.steal(b) {
			logger.Warnf("reclaimed malformed lock %s", l.path)
		}
		return
	}

	switch {
	case !processAlive(o.PID):
		if l.steal(b) {
			logger.Warnf("reclaimed lock %s: owner pid %d is gone", l.path, o.PID)
		}

	case time.Now().After(o.ExpiresAt):
		if l.steal(b) {
			logger.Warnf("reclaimed lock %s: lease held by pid %d expired at %s", l.path, o.PID, o.ExpiresAt.Format(time.RFC3339))
		}
	}
}

// steal 回收锁文件 只删除检查过的那份内容
//
// 判定失效与删除之间持有者可能释放并被他人重新获取
// 先原子地把文件移走 复核内容与判定时一致后才删除
// 内容已变更则将文件放回 link 在目标已被重新占用时失败
func (l *Lock) steal(inspected []byte) bool {
	tmp := fmt.Sprintf("%s.reclaim.%d", l.path, os.Getpid())
	if err := os.Rename(l.path, tmp); err != nil {
		return false
	}

	moved, err := os.ReadFile(tmp)
	if err == nil && !bytes.Equal(moved, inspected) {
		if err := os.Link(tmp, l.path); err == nil {
			_ = os.Remove(tmp)
			return false
		}
	}

	_ = os.Remove(tmp)
	lockSteals.WithLabelValues(l.name).Inc()
	return true
}

// processAlive 以 signal 0 探测进程存活 EPERM 意味着进程存在但属他人
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	return err == nil || errors.Is(err, syscall.EPERM)
}
