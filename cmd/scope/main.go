// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/relabs-tech/inertial_scope/internal/app"
	"github.com/relabs-tech/inertial_scope/internal/config"
	"github.com/relabs-tech/inertial_scope/internal/logging"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "scope",
	Short: "Live oscilloscope for inertial sensor streams",
	Long: `scope connects to an inertial sensor device over WebSocket, keeps a
sliding window of every channel and renders the charts for the browser viewer.

Examples:
  scope run --config scope_config.txt
  scope groups`,
	SilenceUsage: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Connect to the device and serve the viewer",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.InitGlobal(configPath); err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		cfg := config.Get()

		logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, cfg.LogFile, true)
		if err != nil {
			return err
		}
		defer logger.Sync()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		logger.Info("starting inertial scope", zap.String("config", configPath))
		return app.RunScope(ctx, cfg, logger)
	},
}

var groupsCmd = &cobra.Command{
	Use:   "groups",
	Short: "List the configured channel groups",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		groups, err := cfg.Groups()
		if err != nil {
			return err
		}

		t := table.New().
			Border(lipgloss.NormalBorder()).
			Headers("KEY", "TITLE", "UNIT", "CHANNELS", "CAPACITY", "SCALE")
		for _, g := range groups {
			scale := g.Scale
			if g.DeviceScale {
				scale += " (device)"
			}
			t.Row(g.Key, g.Title, g.Unit, strings.Join(g.Labels, ","), fmt.Sprint(g.Capacity), scale)
		}
		fmt.Fprintln(cmd.OutOrStdout(), t.Render())
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "scope_config.txt", "configuration file")
	rootCmd.AddCommand(runCmd, groupsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
