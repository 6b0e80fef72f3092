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
	"bytes"
	"os/exec"
	"strings"

	"github.com/pkg/errors"
)

// Runner 命令执行抽象 测试中可替换为 fake 实现避免真实操作宿主机网络
type Runner interface {
	Run(name string, args ...string) error
	Output(name string, args ...string) (string, error)
}

// OSRunner 通过 os/exec 在宿主机上执行命令
type OSRunner struct{}

func NewOSRunner() *OSRunner {
	return &OSRunner{}
}

func (r *OSRunner) Run(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return errors.Errorf("%v: %s", err, msg)
		}
		return err
	}
	return nil
}

func (r *OSRunner) Output(name string, args ...string) (string, error) {
	cmd := exec.Command(name, args...)
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	if err := cmd.Run(); err != nil {
		return "", errors.New(strings.TrimSpace(buf.String()))
	}
	return strings.TrimSpace(buf.String()), nil
}
