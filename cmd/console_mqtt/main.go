// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"log"

	"github.com/relabs-tech/inertial_scope/internal/app"
	"github.com/relabs-tech/inertial_scope/internal/config"
	"github.com/relabs-tech/inertial_scope/internal/logging"
)

func main() {
	// Load configuration
	if err := config.InitGlobal("scope_config.txt"); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	cfg := config.Get()

	// The terminal belongs to the console; logs only go to LOG_FILE.
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, cfg.LogFile, false)
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer logger.Sync()

	if err := app.RunConsoleMQTT(cfg, logger); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
