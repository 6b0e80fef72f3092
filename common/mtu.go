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
	"fmt"
)

// ValidationError 代表输入校验失败 不产生任何副作用
type ValidationError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s (%v): %s", e.Field, e.Value, e.Reason)
}

// ValidateMTU 校验 MTU 是否处于在线调优允许的区间内
func ValidateMTU(mtu int) error {
	if mtu < MinMTU || mtu > MaxMTU {
		return &ValidationError{
			Field:  "mtu",
			Value:  mtu,
			Reason: fmt.Sprintf("must be in [%d, %d]", MinMTU, MaxMTU),
		}
	}
	return nil
}

// ValidateMTURange 校验探测区间 要求 min < max 且均处于合法区间内
func ValidateMTURange(min, max int) error {
	if err := ValidateMTU(min); err != nil {
		return err
	}
	if err := ValidateMTU(max); err != nil {
		return err
	}
	if min >= max {
		return &ValidationError{
			Field:  "mtuRange",
			Value:  fmt.Sprintf("[%d, %d]", min, max),
			Reason: "min must be less than max",
		}
	}
	return nil
}

// ClampMTU 将 MTU 收敛至在线调优允许的区间内
func ClampMTU(mtu int) int {
	if mtu < MinMTU {
		return MinMTU
	}
	if mtu > MaxMTU {
		return MaxMTU
	}
	return mtu
}
