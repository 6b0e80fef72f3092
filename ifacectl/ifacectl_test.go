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
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMTU(t *testing.T) {
	tests := []struct {
		line    string
		want    int
		wantErr bool
	}{
		{
			line: "2: eth0: <BROADCAST,MULTICAST,UP,LOWER_UP> mtu 1500 qdisc fq state UP mode DEFAULT group default qlen 1000",
			want: 1500,
		},
		{
			line: "1: lo: <LOOPBACK,UP,LOWER_UP> mtu 65536 qdisc noqueue state UNKNOWN",
			want: 65536,
		},
		{
			line:    "2: eth0: <BROADCAST> qdisc fq state UP",
			wantErr: true,
		},
		{
			line:    "2: eth0: <BROADCAST> mtu banana qdisc fq",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run("", func(t *testing.T) {
			got, err := parseMTU(tt.line)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

type scriptedRunner struct {
	output string
	err    error
	runs   [][]string
}

func (r *scriptedRunner) Run(name string, args ...string) error {
	r.runs = append(r.runs, append([]string{name}, args...))
	return r.err
}

func (r *scriptedRunner) Output(name string, args ...string) (string, error) {
	r.runs = append(r.runs, append([]string{name}, args...))
	return r.output, r.err
}

func TestControllerMTU(t *testing.T) {
	runner := &scriptedRunner{
		output: "2: eth0: <BROADCAST,MULTICAST,UP> mtu 1440 qdisc fq state UP",
	}
	ctl := New(runner)

	mtu, err := ctl.MTU("eth0")
	require.NoError(t, err)
	assert.Equal(t, 1440, mtu)
}

func TestControllerSetMTU(t *testing.T) {
	runner := &scriptedRunner{}
	ctl := New(runner)

	require.NoError(t, ctl.SetMTU("eth0", 1420))
	require.Len(t, runner.runs, 1)
	assert.Equal(t, "ip link set dev eth0 mtu 1420", strings.Join(runner.runs[0], " "))
}

func TestControllerSetMTUError(t *testing.T) {
	runner := &scriptedRunner{err: errors.New("RTNETLINK answers: operation not permitted")}
	ctl := New(runner)

	err := ctl.SetMTU("eth0", 1420)
	assert.ErrorContains(t, err, "operation not permitted")
}
