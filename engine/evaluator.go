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
	"time"

	"github.com/mtuned/mtuned/analyzer"
	"github.com/mtuned/mtuned/ifacectl"
	"github.com/mtuned/mtuned/internal/wait"
	"github.com/mtuned/mtuned/logger"
	"github.com/mtuned/mtuned/pinger"
	"github.com/mtuned/mtuned/store"
)

// ipICMPOverhead IP header (20) + ICMP header (8)
const ipICMPOverhead = 28

type EvaluatorConfig struct {
	Enabled bool `config:"enabled"`

	// Iface 被评估的接口
	Iface string `config:"iface"`

	// Target 周期测量的参考端点
	Target string `config:"target"`

	// Interval 相邻评估周期之间的间隔
	Interval time.Duration `config:"interval"`

	// AdaptationThreshold 每累计多少个评估周期触发一次调整决策
	AdaptationThreshold int `config:"adaptationThreshold"`
}

func (c *EvaluatorConfig) Validate() {
	if c.Interval <= 0 {
		c.Interval = time.Minute
	}
	if c.AdaptationThreshold <= 0 {
		c.AdaptationThreshold = 3
	}
}

// Evaluator 持续评估循环
//
// 每个周期 采集当前指标 -> 追加历史 -> 重建模型
// 每累计 AdaptationThreshold 个周期执行一次调整决策
// 决策产生变化时应用到接口并清零周期计数
type Evaluator struct {
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	cfg      EvaluatorConfig
	engine   *Engine
	analyzer *analyzer.Analyzer
	store    store.Store
	measurer pinger.Measurer
	ifctl    ifacectl.Controller

	cycles int
}

func NewEvaluator(
	cfg EvaluatorConfig,
	engine *Engine,
	a *analyzer.Analyzer,
	s store.Store,
	measurer pinger.Measurer,
	ifctl ifacectl.Controller,
) *Evaluator {
	cfg.Validate()
	ctx, cancel := context.WithCancel(context.Background())
	return &Evaluator{
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
		cfg:      cfg,
		engine:   engine,
		analyzer: a,
		store:    s,
		measurer: measurer,
		ifctl:    ifctl,
	}
}

func (e *Evaluator) Start() {
	logger.Infof("evaluator started on %s: interval %s, adaptation threshold %d",
		e.cfg.Iface, e.cfg.Interval, e.cfg.AdaptationThreshold)

	go func() {
		defer close(e.done)
		wait.Tick(e.ctx, e.cfg.Interval, e.cycle)
	}()
}

// Stop 优雅停止 等待进行中的测量与存储写入完成
//
// 周期内的测量自身有超时上限 等待时长有界
func (e *Evaluator) Stop() {
	e.cancel()
	<-e.done
	logger.Infof("evaluator stopped on %s", e.cfg.Iface)
}

func (e *Evaluator) cycle() {
	evaluationCycles.WithLabelValues(e.cfg.Iface).Inc()

	currentMTU, err := e.ifctl.MTU(e.cfg.Iface)
	if err != nil {
		logger.Errorf("evaluation cycle on %s: %v", e.cfg.Iface, err)
		return
	}

	// 进行中的周期不随 Stop 中断 测量与写入完成后才退出
	sample, err := e.measurer.Measure(context.Background(), e.cfg.Iface, e.cfg.Target, currentMTU-ipICMPOverhead)
	if err != nil {
		logger.Warnf("evaluation cycle on %s: collect failed: %v", e.cfg.Iface, err)
		return
	}

	err = e.store.AppendHistory(e.cfg.Iface, store.Record{
		Timestamp:      time.Now(),
		Iface:          e.cfg.Iface,
		LatencyMs:      sample.LatencyMs,
		ThroughputMbps: sample.ThroughputMbps,
		PacketLossPct:  sample.PacketLossPct,
		JitterMs:       sample.JitterMs,
		MTU:            currentMTU,
	})
	if err != nil {
		logger.Errorf("evaluation cycle on %s: record failed: %v", e.cfg.Iface, err)
		return
	}

	if _, err := e.analyzer.Analyze(e.cfg.Iface); err != nil {
		logger.Errorf("evaluation cycle on %s: analyze failed: %v", e.cfg.Iface, err)
		return
	}

	e.cycles++
	if e.cycles < e.cfg.AdaptationThreshold {
		return
	}
	e.cycles = 0

	newMTU, err := e.engine.Adapt(e.cfg.Iface, currentMTU)
	if err != nil {
		logger.Errorf("evaluation cycle on %s: adapt failed: %v", e.cfg.Iface, err)
		return
	}
	if newMTU == currentMTU {
		return
	}

	if err := e.ifctl.SetMTU(e.cfg.Iface, newMTU); err != nil {
		logger.Errorf("evaluation cycle on %s: apply mtu %d failed: %v", e.cfg.Iface, newMTU, err)
		return
	}
	logger.Infof("applied mtu %d on %s", newMTU, e.cfg.Iface)
}
