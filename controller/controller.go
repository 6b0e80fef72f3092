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

// Package controller 装配并驱动所有组件
package controller

import (
	"context"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"github.com/mtuned/mtuned/analyzer"
	"github.com/mtuned/mtuned/common"
	"github.com/mtuned/mtuned/confengine"
	"github.com/mtuned/mtuned/engine"
	"github.com/mtuned/mtuned/ifacectl"
	"github.com/mtuned/mtuned/logger"
	"github.com/mtuned/mtuned/pinger"
	"github.com/mtuned/mtuned/predict"
	"github.com/mtuned/mtuned/probe"
	"github.com/mtuned/mtuned/server"
	"github.com/mtuned/mtuned/store"
)

type Controller struct {
	ctx       context.Context
	cancel    context.CancelFunc
	buildInfo common.BuildInfo

	store       store.Store
	coordinator *probe.Coordinator
	analyzer    *analyzer.Analyzer
	engine      *engine.Engine
	evaluator   *engine.Evaluator
	svr         *server.Server

	probeCfg probe.Config
}

func setupLogger(conf *confengine.Config) error {
	opts := logger.Options{
		Stdout:     true,
		Level:      string(logger.LevelInfo),
		Filename:   "mtuned.log",
		MaxSize:    100,
		MaxAge:     7,
		MaxBackups: 10,
	}
	if err := conf.UnpackChild("logger", &opts); err != nil {
		return err
	}
	logger.SetOptions(opts)
	return nil
}

func New(conf *confengine.Config, buildInfo common.BuildInfo) (*Controller, error) {
	if err := setupLogger(conf); err != nil {
		return nil, err
	}

	var storeCfg store.Config
	if err := conf.UnpackChild("store", &storeCfg); err != nil {
		return nil, err
	}
	perfStore, err := store.NewFileStore(storeCfg)
	if err != nil {
		return nil, err
	}

	var pingerCfg pinger.Config
	if err := conf.UnpackChild("pinger", &pingerCfg); err != nil {
		return nil, err
	}
	measurer := pinger.New(pingerCfg)

	var probeCfg probe.Config
	if err := conf.UnpackChild("probe", &probeCfg); err != nil {
		return nil, err
	}

	ifctl := ifacectl.New(nil)
	coordinator, err := probe.NewCoordinator(probeCfg, ifctl, measurer, perfStore)
	if err != nil {
		return nil, err
	}

	patternAnalyzer := analyzer.New(perfStore)
	decisionEngine := engine.New(predict.New(perfStore))

	var evaluator *engine.Evaluator
	var evalCfg engine.EvaluatorConfig
	if err := conf.UnpackChild("evaluator", &evalCfg); err != nil {
		return nil, err
	}
	if evalCfg.Enabled {
		if evalCfg.Iface == "" {
			return nil, errors.New("evaluator.iface is required")
		}
		if evalCfg.Target == "" {
			evalCfg.Target = probeCfg.Target
		}
		evaluator = engine.NewEvaluator(evalCfg, decisionEngine, patternAnalyzer, perfStore, measurer, ifctl)
	}

	svr, err := server.New(conf)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		ctx:         ctx,
		cancel:      cancel,
		buildInfo:   buildInfo,
		store:       perfStore,
		coordinator: coordinator,
		analyzer:    patternAnalyzer,
		engine:      decisionEngine,
		evaluator:   evaluator,
		svr:         svr,
		probeCfg:    probeCfg,
	}
	return c, nil
}

func (c *Controller) Start() error {
	buildInfoGauge.WithLabelValues(c.buildInfo.Version, c.buildInfo.GitHash, c.buildInfo.Time).Set(1)
	go c.trackUptime()

	if c.svr != nil {
		c.setupRoutes()
		go func() {
			err := c.svr.ListenAndServe()
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Errorf("failed to start server: %v", err)
			}
		}()
	}

	if c.evaluator != nil {
		c.evaluator.Start()
	}
	return nil
}

func (c *Controller) Stop() {
	c.cancel()
	if c.evaluator != nil {
		c.evaluator.Stop()
	}
	if c.svr != nil {
		if err := c.svr.Close(); err != nil {
			logger.Warnf("failed to close server: %v", err)
		}
	}
}

// Optimize 对指定接口执行一次调优运行
func (c *Controller) Optimize(ctx context.Context, iface string, opts probe.TuningOptions) (*probe.Report, error) {
	return c.coordinator.Run(ctx, iface, opts)
}

// TuningOptions 返回配置中声明的调优选项
func (c *Controller) TuningOptions() (probe.TuningOptions, error) {
	return probe.DecodeTuningOptions(c.probeCfg.Options)
}

func (c *Controller) trackUptime() {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			uptime.Set(float64(time.Now().Unix() - common.Started()))
		}
	}
}
