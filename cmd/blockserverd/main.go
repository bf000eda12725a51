// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Command blockserverd runs a block server over an in-memory device.
package main

import (
	"fmt"
	"os"

	"code.hybscloud.com/blockserver/internal/config"
	"code.hybscloud.com/blockserver/pkg/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

var configPath string

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to the YAML configuration file")
	loadtestCmd.Flags().IntVar(&loadtestClients, "clients", 0, "number of concurrent clients (overrides config)")
	loadtestCmd.Flags().IntVar(&loadtestRequests, "requests", 0, "requests per client (overrides config)")
	rootCmd.AddCommand(loadtestCmd, configCmd)
}

var (
	rootCmd = &cobra.Command{
		Use:           "blockserverd",
		Short:         "Block server over an in-memory device",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	configCmd = &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(cfg)
		},
	}
)

func loadConfig() (*config.Config, error) {
	if configPath == "" {
		return config.Default(), nil
	}
	return config.LoadConfig(configPath)
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	return logger.NewLogger(&cfg.Logger)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
