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

// Package probe 在候选 MTU 区间上并发执行测量并汇总打分
//
// worker 数量有界 且所有 worker 竞争同一把接口锁
// 任一时刻系统范围内只有一个探测在修改某接口的 MTU
package probe

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/mtuned/mtuned/analyzer"
	"github.com/mtuned/mtuned/ifacectl"
	"github.com/mtuned/mtuned/internal/flock"
	"github.com/mtuned/mtuned/internal/rescue"
	"github.com/mtuned/mtuned/logger"
	"github.com/mtuned/mtuned/pinger"
	"github.com/mtuned/mtuned/store"
)

// ErrAllCandidatesFailed 代表整个调优运行没有产出任何可用候选
//
// 属于该运行的致命错误 接口会被恢复为运行前的 MTU
var ErrAllCandidatesFailed = errors.New("all candidates failed")

// ipICMPOverhead IP header (20) + ICMP header (8)
const ipICMPOverhead = 28

// Candidate 单个候选 MTU 的测量结果 仅在一次运行内有效
type Candidate struct {
	MTU            int     `json:"mtu"`
	LatencyMs      float64 `json:"latencyMs"`
	ThroughputMbps float64 `json:"throughputMbps"`
	PacketLossPct  float64 `json:"packetLossPct"`
	Score          float64 `json:"score"`
}

// Coordinator 调度一次调优运行中的全部候选探测
type Coordinator struct {
	cfg      Config
	ifctl    ifacectl.Controller
	measurer pinger.Measurer
	store    store.Store
}

func NewCoordinator(cfg Config, ifctl ifacectl.Controller, measurer pinger.Measurer, s store.Store) (*Coordinator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Coordinator{
		cfg:      cfg,
		ifctl:    ifctl,
		measurer: measurer,
		store:    s,
	}, nil
}

// Run 执行一次完整的调优运行 返回按得分排序的报告
//
// 运行前记录接口原始 MTU 成功时应用最优候选
// 失败或取消时恢复原始值 两者必居其一
func (c *Coordinator) Run(ctx context.Context, iface string, opts TuningOptions) (*Report, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	// timeout 限定整个运行的时间预算 超时等同于取消
	if d, err := c.cfg.Options.GetDuration("timeout"); err == nil && d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	originalMTU, err := c.ifctl.MTU(iface)
	if err != nil {
		return nil, errors.Wrapf(err, "record original mtu of %s", iface)
	}

	report := newReport(iface, originalMTU)
	logger.Infof("optimization run %s started on %s: range [%d, %d] step %d, original mtu %d",
		report.RunID, iface, opts.MinMTU, opts.MaxMTU, opts.Step, originalMTU)

	candidates, failed, failures := c.probeAll(ctx, iface, opts)
	report.finish(candidates, failed)

	if err := ctx.Err(); err != nil {
		// 取消或超时的运行不应用任何候选
		optimizationRuns.WithLabelValues(iface, "cancelled").Inc()
		c.restore(iface, originalMTU)
		return report, err
	}

	if len(candidates) == 0 {
		optimizationRuns.WithLabelValues(iface, "failed").Inc()
		c.restore(iface, originalMTU)
		err := errors.Wrapf(ErrAllCandidatesFailed, "run %s on %s", report.RunID, iface)
		if failures.ErrorOrNil() != nil {
			err = errors.Wrap(err, failures.Error())
		}
		return report, err
	}

	best := report.Best()
	if dryRun, _ := c.cfg.Options.GetBool("dryRun"); dryRun {
		// dryRun 只测量打分 不把最优候选留在接口上
		optimizationRuns.WithLabelValues(iface, "dryrun").Inc()
		c.restore(iface, originalMTU)
		logger.Infof("dry run %s finished on %s: best mtu %d (score %.4f) not applied",
			report.RunID, iface, best.MTU, best.Score)
		return report, nil
	}

	if err := c.ifctl.SetMTU(iface, best.MTU); err != nil {
		optimizationRuns.WithLabelValues(iface, "failed").Inc()
		c.restore(iface, originalMTU)
		return report, errors.Wrapf(err, "apply best mtu %d to %s", best.MTU, iface)
	}

	optimizationRuns.WithLabelValues(iface, "ok").Inc()
	logger.Infof("optimization run %s finished on %s: best mtu %d (score %.4f), %d/%d candidates ok",
		report.RunID, iface, best.MTU, best.Score, len(candidates), len(candidates)+len(report.FailedMTUs))
	return report, nil
}

// probeAll 以有界并行度跑完全部候选 结果按完成顺序写入历史
func (c *Coordinator) probeAll(ctx context.Context, iface string, opts TuningOptions) ([]Candidate, []int, *multierror.Error) {
	jobs := make(chan int)
	go func() {
		defer close(jobs)
		for mtu := opts.MinMTU; mtu <= opts.MaxMTU; mtu += opts.Step {
			select {
			case jobs <- mtu:
			case <-ctx.Done():
				return
			}
		}
	}()

	var mut sync.Mutex
	var candidates []Candidate
	var failed []int
	var failures *multierror.Error

	var wg sync.WaitGroup
	for i := 0; i < opts.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer rescue.HandleCrash()

			for mtu := range jobs {
				cand, err := c.probeOne(ctx, iface, mtu, opts.Retries)
				mut.Lock()
				if err != nil {
					failed = append(failed, mtu)
					failures = multierror.Append(failures, errors.Wrapf(err, "mtu %d", mtu))
				} else {
					candidates = append(candidates, cand)
				}
				mut.Unlock()
			}
		}()
	}
	wg.Wait()

	return candidates, failed, failures
}

// probeOne 测量单个候选 MTU
//
// 持锁期间完成 MTU 修改与测量 保证测量结果对应设定的值
// 每个候选至多尝试 retries 次 全部失败则该候选被剔除 不影响其他候选
func (c *Coordinator) probeOne(ctx context.Context, iface string, mtu, retries int) (Candidate, error) {
	lock := flock.New(iface, c.cfg.Lock)
	if err := lock.Acquire(ctx); err != nil {
		return Candidate{}, err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			logger.Warnf("failed to release lock of %s: %v", iface, err)
		}
	}()

	var lastErr error
	for attempt := 0; attempt < retries; attempt++ {
		probeAttempts.WithLabelValues(iface).Inc()

		sample, err := c.attemptOnce(ctx, iface, mtu)
		if err == nil {
			c.record(iface, mtu, sample)
			return Candidate{
				MTU:            mtu,
				LatencyMs:      sample.LatencyMs,
				ThroughputMbps: sample.ThroughputMbps,
				PacketLossPct:  sample.PacketLossPct,
				Score:          analyzer.PerformanceScore(sample.LatencyMs, sample.ThroughputMbps),
			}, nil
		}

		probeFailures.WithLabelValues(iface).Inc()
		lastErr = err
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			break
		}
		logger.Debugf("probe attempt %d/%d at mtu %d on %s failed: %v", attempt+1, retries, mtu, iface, err)
	}
	return Candidate{}, lastErr
}

func (c *Coordinator) attemptOnce(ctx context.Context, iface string, mtu int) (pinger.Sample, error) {
	if err := c.ifctl.SetMTU(iface, mtu); err != nil {
		return pinger.Sample{}, err
	}

	select {
	case <-ctx.Done():
		return pinger.Sample{}, ctx.Err()
	case <-time.After(c.cfg.SettleDelay):
	}

	sample, err := c.measurer.Measure(ctx, iface, c.cfg.Target, mtu-ipICMPOverhead)
	if err != nil {
		return pinger.Sample{}, err
	}
	if sample.ThroughputMbps <= 0 || sample.PacketLossPct >= 100 {
		return pinger.Sample{}, errors.Wrapf(pinger.ErrUnavailable, "unusable sample at mtu %d", mtu)
	}
	return sample, nil
}

// record 将测量结果追加进历史 追加顺序即完成顺序
func (c *Coordinator) record(iface string, mtu int, sample pinger.Sample) {
	err := c.store.AppendHistory(iface, store.Record{
		Timestamp:      time.Now(),
		Iface:          iface,
		LatencyMs:      sample.LatencyMs,
		ThroughputMbps: sample.ThroughputMbps,
		PacketLossPct:  sample.PacketLossPct,
		JitterMs:       sample.JitterMs,
		MTU:            mtu,
	})
	if err != nil {
		logger.Warnf("failed to record measurement of %s: %v", iface, err)
	}
}

func (c *Coordinator) restore(iface string, mtu int) {
	if err := c.ifctl.SetMTU(iface, mtu); err != nil {
		logger.Errorf("failed to restore mtu %d on %s: %v", mtu, iface, err)
		return
	}
	logger.Infof("restored original mtu %d on %s", mtu, iface)
}

// rank 按得分降序排序 得分相同优先更大的 MTU 报文更少开销更低
func rank(candidates []Candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].MTU > candidates[j].MTU
	})
}
