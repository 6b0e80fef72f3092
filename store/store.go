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

// Package store 持久化接口级别的测量历史 统计模型与预测
//
// 历史记录只追加不修改 记录顺序即到达顺序
// 模型与预测为可覆盖的派生数据 任何时刻都能从历史重建
package store

import (
	"github.com/pkg/errors"
)

// ErrNoData 代表请求的接口没有任何数据
var ErrNoData = errors.New("no data for interface")

// ErrCorrupted 代表持久化状态无法读取或校验失败
//
// 触发该错误的操作立即失败 绝不允许以损坏的输出覆盖先前的有效状态
var ErrCorrupted = errors.New("store state corrupted")

// Store 性能数据存取抽象
type Store interface {
	// AppendHistory 追加一条测量记录
	AppendHistory(iface string, record Record) error

	// History 返回接口的全部历史记录 按追加顺序排列
	History(iface string) ([]Record, error)

	// SaveModel 写入统计模型 覆盖先前的模型
	SaveModel(iface string, model Model) error

	// LoadModel 读取最近一次统计模型
	LoadModel(iface string) (Model, error)

	// SavePrediction 写入预测 覆盖先前的预测
	SavePrediction(iface string, prediction Prediction) error

	// LoadPrediction 读取最近一次预测
	LoadPrediction(iface string) (Prediction, error)
}
