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
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mtuned/mtuned/common"
	"github.com/mtuned/mtuned/confengine"
	"github.com/mtuned/mtuned/controller"
	"github.com/mtuned/mtuned/internal/sigs"
	"github.com/mtuned/mtuned/logger"
)

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Run mtuned as a continuous evaluation agent",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := confengine.LoadConfigPath(configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
			os.Exit(1)
		}

		ctr, err := controller.New(cfg, common.GetBuildInfo())
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to create controller: %v\n", err)
			os.Exit(1)
		}
		if err := ctr.Start(); err != nil {
			fmt.Fprintf(os.Stderr, "failed to start controller: %v\n", err)
			os.Exit(1)
		}

		reload := sigs.Reload()
		terminate := sigs.Terminate()
		for {
			select {
			case <-reload:
				// SIGHUP 重新读取配置并调整日志级别
				cfg, err := confengine.LoadConfigPath(configPath)
				if err != nil {
					logger.Errorf("failed to reload config: %v", err)
					continue
				}
				var opts logger.Options
				if err := cfg.UnpackChild("logger", &opts); err == nil && opts.Level != "" {
					logger.SetLoggerLevel(opts.Level)
					logger.Infof("logger level set to %s", opts.Level)
				}

			case <-terminate:
				ctr.Stop()
				return
			}
		}
	},
}

var configPath string

func init() {
	agentCmd.Flags().StringVar(&configPath, "config", "mtuned.yaml", "Configuration file path")
	rootCmd.AddCommand(agentCmd)
}
