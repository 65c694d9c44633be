// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/relabs-tech/inertial_scope/internal/app"
	"github.com/relabs-tech/inertial_scope/internal/config"
	"github.com/relabs-tech/inertial_scope/internal/logging"
)

func main() {
	log.Println("starting inertial-scope device simulator")

	// Load configuration
	if err := config.InitGlobal("scope_config.txt"); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	cfg := config.Get()

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, cfg.LogFile, true)
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sim := app.NewDeviceSim(logger.Named("devicesim"), app.DeviceSimOptions{
		Addr:       cfg.SimAddr,
		DeviceIP:   cfg.SimDeviceIP,
		SampleRate: cfg.SimSampleRate,
		ChunkSize:  cfg.SimChunkSize,
		FullScale:  cfg.SimFullScaleG,
	})
	if err := sim.Run(ctx); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
