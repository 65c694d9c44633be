// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/relabs-tech/inertial_scope/internal/chart"
	"github.com/relabs-tech/inertial_scope/internal/config"
	"github.com/relabs-tech/inertial_scope/internal/device"
	"github.com/relabs-tech/inertial_scope/internal/link"
)

// RunScope connects to the device, renders its stream and serves the
// viewer until ctx is cancelled.
func RunScope(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	groups, err := cfg.Groups()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	httpClient := &http.Client{Timeout: cfg.HTTPTimeout()}
	dev := device.NewClient(httpClient, cfg.DeviceAddr, cfg.ConfigPath, cfg.ConfigRequestsPerS, 1)

	store := NewFrameStore()
	pipeline := NewPipeline(logger.Named("pipeline"), PipelineOptions{
		Groups:        groups,
		Surface:       chart.Surface{Width: float64(cfg.ChartWidth), Height: float64(cfg.ChartHeight), PixelRatio: cfg.PixelRatio},
		GridLines:     cfg.GridLines,
		EventLogSize:  cfg.EventLogSize,
		FrameInterval: cfg.FrameInterval(),
		PauseSync:     cfg.PauseSync,
		Device:        cfg.DeviceAddr,
	}, store, dev)

	manager := link.NewManager(logger.Named("link"), link.Options{
		DataPath:       cfg.DataPath,
		ReconnectDelay: cfg.ReconnectDelay(),
		ReadTimeout:    cfg.ReadTimeout(),
	}, link.HTTPResolver{
		Client: httpClient,
		Origin: cfg.DeviceAddr,
		Path:   cfg.IdentityPath,
	}, link.WebsocketDialer{
		HandshakeTimeout: cfg.HandshakeTimeout(),
		ReadLimit:        cfg.ReadLimitBytes,
	}, pipeline)

	viewer := NewViewer(logger.Named("viewer"), pipeline, store, manager)
	srv := &http.Server{
		Addr:              cfg.ViewAddr,
		Handler:           viewer,
		ReadHeaderTimeout: 5 * time.Second,
	}
	ln, err := net.Listen("tcp", cfg.ViewAddr)
	if err != nil {
		return fmt.Errorf("viewer listen: %w", err)
	}

	errs := make(chan error, 4)
	go func() { errs <- pipeline.Run(ctx) }()
	go func() { errs <- manager.Run(ctx) }()
	go func() {
		logger.Info("viewer listening", zap.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- fmt.Errorf("viewer: %w", err)
			return
		}
		errs <- nil
	}()

	running := 3
	if cfg.MQTTBroker != "" {
		pub := NewStatusPublisher(logger.Named("mqtt"), StatusPublisherOptions{
			Broker:   cfg.MQTTBroker,
			ClientID: cfg.MQTTClientIDScope,
			Topic:    cfg.TopicStatus,
			Interval: cfg.StatusPublishInterval(),
		}, store)
		running++
		go func() { errs <- pub.Run(ctx) }()
	}

	logger.Info("scope started",
		zap.String("device", cfg.DeviceAddr),
		zap.Int("charts", len(groups)),
		zap.Duration("reconnect_delay", cfg.ReconnectDelay()),
	)

	// The first component to stop takes the others down.
	var first error
	select {
	case <-ctx.Done():
	case first = <-errs:
		running--
	}
	cancel()

	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("viewer shutdown", zap.Error(err))
	}
	for ; running > 0; running-- {
		<-errs
	}

	if first != nil && !errors.Is(first, context.Canceled) {
		return first
	}
	return nil
}
