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
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"

	"github.com/mtuned/mtuned/common"
	"github.com/mtuned/mtuned/internal/flock"
)

// Config 探测层配置
type Config struct {
	// Target 测量参考端点 主机名或 IP
	Target string `config:"target"`

	// SettleDelay 修改 MTU 后等待链路收敛的时长
	SettleDelay time.Duration `config:"settleDelay"`

	// Lock 接口互斥锁配置
	Lock flock.Options `config:"lock"`

	// Options 面向单次调优的开放式选项 见 TuningOptions
	Options common.Options `config:"options"`
}

func (c *Config) Validate() error {
	if c.Target == "" {
		return errors.New("probe target is required")
	}
	if c.SettleDelay <= 0 {
		c.SettleDelay = 500 * time.Millisecond
	}
	c.Lock.Validate()
	return nil
}

// TuningOptions 单次调优运行的参数
type TuningOptions struct {
	MinMTU  int `mapstructure:"minMtu"`
	MaxMTU  int `mapstructure:"maxMtu"`
	Step    int `mapstructure:"step"`
	Retries int `mapstructure:"retries"`
	Workers int `mapstructure:"workers"`
}

func (o *TuningOptions) Validate() error {
	if o.MinMTU == 0 {
		o.MinMTU = common.MinMTU
	}
	if o.MaxMTU == 0 {
		o.MaxMTU = common.MaxMTU
	}
	if err := common.ValidateMTURange(o.MinMTU, o.MaxMTU); err != nil {
		return err
	}
	if o.Step <= 0 {
		o.Step = 20
	}
	if o.Retries <= 0 {
		o.Retries = 3
	}
	if o.Workers <= 0 {
		o.Workers = common.Concurrency()
	}
	return nil
}

// DecodeTuningOptions 将开放式选项解析为类型化参数
func DecodeTuningOptions(options common.Options) (TuningOptions, error) {
	var opts TuningOptions
	if err := mapstructure.Decode(options, &opts); err != nil {
		return opts, errors.Wrap(err, "decode tuning options")
	}
	err := opts.Validate()
	return opts, err
}
