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

package common

const (
	// App 应用程序名称
	App = "mtuned"

	// Version 应用程序版本
	Version = "v0.0.1"

	// MinMTU 在线调优允许的 MTU 下限
	//
	// IPv6 要求链路至少支持 1280 bytes 的 MTU
	// 低于该值的探测与调整请求一律拒绝
	MinMTU = 1280

	// MaxMTU 在线调优允许的 MTU 上限
	//
	// 以太网标准 MTU 为 1500 更大的 Jumbo Frame (上限 9000)
	// 仅出现在静态配置校验中 不参与在线调优
	MaxMTU = 1500

	// StaticMaxMTU 静态配置校验允许的 MTU 上限
	StaticMaxMTU = 9000
)
