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

import (
	"runtime"
	"time"
)

var coreNums = runtime.NumCPU()

// Concurrency 默认的探测 worker 数量 与 CPU 核数对齐
//
// 即便多个 worker 并发执行 同一时刻也只有一个 worker
// 能持有接口锁并修改 MTU 其余 worker 处于等待状态
func Concurrency() int {
	return coreNums
}

var started int64

func init() {
	started = time.Now().Unix()
}

// Started 返回进程启动时间戳
func Started() int64 {
	return started
}
