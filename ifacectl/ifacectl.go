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

package ifacectl

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Controller 网络接口 MTU 读写抽象
type Controller interface {
	// MTU 返回接口当前生效的 MTU
	MTU(iface string) (int, error)

	// SetMTU 修改接口 MTU 立即生效
	SetMTU(iface string, mtu int) error
}

// linkController 基于 iproute2 的 Controller 实现
type linkController struct {
	runner Runner
}

func New(runner Runner) Controller {
	if runner == nil {
		runner = NewOSRunner()
	}
	return &linkController{runner: runner}
}

func (c *linkController) MTU(iface string) (int, error) {
	out, err := c.runner.Output("ip", "-o", "link", "show", "dev", iface)
	if err != nil {
		return 0, errors.Wrapf(err, "read mtu of %s", iface)
	}
	mtu, err := parseMTU(out)
	if err != nil {
		return 0, errors.Wrapf(err, "read mtu of %s", iface)
	}
	return mtu, nil
}

func (c *linkController) SetMTU(iface string, mtu int) error {
	err := c.runner.Run("ip", "link", "set", "dev", iface, "mtu", strconv.Itoa(mtu))
	if err != nil {
		return errors.Wrapf(err, "set mtu of %s to %d", iface, mtu)
	}
	return nil
}

// parseMTU 从 `ip -o link show` 单行输出中提取 mtu 字段
//
// 输出形如 `2: eth0: <BROADCAST,MULTICAST,UP> mtu 1500 qdisc fq state UP ...`
func parseMTU(line string) (int, error) {
	fields := strings.Fields(line)
	for i, f := range fields {
		if f != "mtu" || i+1 >= len(fields) {
			continue
		}
		mtu, err := strconv.Atoi(fields[i+1])
		if err != nil {
			return 0, errors.Errorf("malformed mtu field %q", fields[i+1])
		}
		return mtu, nil
	}
	return 0, errors.New("no mtu field in link output")
}
