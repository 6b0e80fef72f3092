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

package cmd

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"text/template"
	"time"

	"github.com/spf13/cobra"

	"github.com/mtuned/mtuned/common"
	"github.com/mtuned/mtuned/confengine"
	"github.com/mtuned/mtuned/controller"
	"github.com/mtuned/mtuned/internal/sigs"
	"github.com/mtuned/mtuned/probe"
)

type tuneCmdConfig struct {
	Config  string
	Iface   string
	Target  string
	DataDir string
	MinMTU  int
	MaxMTU  int
	Step    int
	Retries int
	Jobs    int
	DryRun  bool
	Timeout time.Duration
}

// Yaml 由命令行参数渲染出等价的配置内容
func (c *tuneCmdConfig) Yaml() []byte {
	text := `
logger:
  stdout: true
  level: info
store:
  dataDir: {{ .DataDir }}
probe:
  target: {{ .Target }}
  options:
    dryRun: {{ .DryRun }}
    timeout: {{ .Timeout }}
`
	tpl, err := template.New("tune").Parse(text)
	if err != nil {
		panic(err)
	}

	var buf bytes.Buffer
	if err := tpl.Execute(&buf, c); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

func (c *tuneCmdConfig) tuningOptions() (probe.TuningOptions, error) {
	options := common.NewOptions()
	options.Merge("minMtu", c.MinMTU)
	options.Merge("maxMtu", c.MaxMTU)
	options.Merge("step", c.Step)
	options.Merge("retries", c.Retries)
	options.Merge("workers", c.Jobs)
	return probe.DecodeTuningOptions(options)
}

var tuneCmdCfg tuneCmdConfig

var tuneCmd = &cobra.Command{
	Use:   "tune",
	Short: "Run a one-shot MTU optimization on an interface",
	Run: func(cmd *cobra.Command, args []string) {
		var cfg *confengine.Config
		var err error
		if tuneCmdCfg.Config != "" {
			cfg, err = confengine.LoadConfigPath(tuneCmdCfg.Config)
		} else {
			cfg, err = confengine.LoadContent(tuneCmdCfg.Yaml())
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
			os.Exit(1)
		}

		ctr, err := controller.New(cfg, common.GetBuildInfo())
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to create controller: %v\n", err)
			os.Exit(1)
		}

		opts, err := tuneCmdCfg.tuningOptions()
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid tuning options: %v\n", err)
			os.Exit(1)
		}

		// 终止信号取消本次运行 接口会被恢复为原始 MTU
		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			<-sigs.Terminate()
			cancel()
		}()

		report, err := ctr.Optimize(ctx, tuneCmdCfg.Iface, opts)
		if report != nil {
			fmt.Print(report.Render())
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "optimization failed: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	tuneCmd.Flags().StringVar(&tuneCmdCfg.Config, "config", "", "Configuration file path (flags only when omitted)")
	tuneCmd.Flags().StringVar(&tuneCmdCfg.Iface, "iface", "", "Interface to tune")
	tuneCmd.Flags().StringVar(&tuneCmdCfg.Target, "target", "", "Measurement reference endpoint")
	tuneCmd.Flags().StringVar(&tuneCmdCfg.DataDir, "data-dir", "/var/lib/mtuned", "Data directory")
	tuneCmd.Flags().IntVar(&tuneCmdCfg.MinMTU, "min-mtu", common.MinMTU, "Lower bound of the candidate range")
	tuneCmd.Flags().IntVar(&tuneCmdCfg.MaxMTU, "max-mtu", common.MaxMTU, "Upper bound of the candidate range")
	tuneCmd.Flags().IntVar(&tuneCmdCfg.Step, "step", 20, "Candidate step")
	tuneCmd.Flags().IntVar(&tuneCmdCfg.Retries, "retries", 3, "Attempts per candidate")
	tuneCmd.Flags().IntVar(&tuneCmdCfg.Jobs, "jobs", 0, "Concurrent probe workers (0 = core count)")
	tuneCmd.Flags().BoolVar(&tuneCmdCfg.DryRun, "dry-run", false, "Measure and rank candidates without applying the best one")
	tuneCmd.Flags().DurationVar(&tuneCmdCfg.Timeout, "timeout", 0, "Time budget of the whole run (0 = unbounded)")
	_ = tuneCmd.MarkFlagRequired("iface")
	rootCmd.AddCommand(tuneCmd)
}
