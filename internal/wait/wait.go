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

package wait

import (
	"context"
	"time"

	"github.com/mtuned/mtuned/internal/rescue"
)

// Until 循环执行 f 直到 ctx 被取消
func Until(ctx context.Context, f func()) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		func() {
			defer rescue.HandleCrash()
			f()
		}()
	}
}

// Tick 以固定间隔执行 f 直到 ctx 被取消 每轮执行完毕后才开始计时
func Tick(ctx context.Context, interval time.Duration, f func()) {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-timer.C:
			func() {
				defer rescue.HandleCrash()
				f()
			}()
			timer.Reset(interval)
		}
	}
}
