// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/relabs-tech/inertial_scope/internal/metrics"
)

// StatusPublisherOptions configures the MQTT status mirror.
type StatusPublisherOptions struct {
	Broker   string
	ClientID string
	Topic    string
	Interval time.Duration
}

// StatusPublisher mirrors the scope status to an MQTT topic so consoles
// can follow the scope without talking to the device.
type StatusPublisher struct {
	logger *zap.Logger
	opts   StatusPublisherOptions
	store  *FrameStore

	publish func(topic string, payload []byte) error
	last    time.Time
}

// NewStatusPublisher creates a publisher reading from store.
func NewStatusPublisher(logger *zap.Logger, opts StatusPublisherOptions, store *FrameStore) *StatusPublisher {
	if opts.Interval <= 0 {
		opts.Interval = 500 * time.Millisecond
	}
	return &StatusPublisher{logger: logger, opts: opts, store: store}
}

// Run connects to the broker and publishes until ctx is cancelled. The
// broker being down is not fatal; paho keeps retrying in the background.
func (p *StatusPublisher) Run(ctx context.Context) error {
	if p.publish == nil {
		opts := mqtt.NewClientOptions().
			AddBroker(p.opts.Broker).
			SetClientID(p.opts.ClientID).
			SetAutoReconnect(true).
			SetConnectRetry(true).
			SetConnectRetryInterval(2 * time.Second).
			SetOnConnectHandler(func(mqtt.Client) {
				p.logger.Info("connected to MQTT broker", zap.String("broker", p.opts.Broker))
			}).
			SetConnectionLostHandler(func(_ mqtt.Client, err error) {
				p.logger.Warn("MQTT connection lost", zap.Error(err))
			})

		client := mqtt.NewClient(opts)
		client.Connect()
		defer client.Disconnect(250)

		p.publish = func(topic string, payload []byte) error {
			if !client.IsConnectionOpen() {
				return fmt.Errorf("not connected to %s", p.opts.Broker)
			}
			token := client.Publish(topic, 0, true, payload)
			if !token.WaitTimeout(p.opts.Interval) {
				return fmt.Errorf("publish to %s timed out", topic)
			}
			return token.Error()
		}
	}

	ticker := time.NewTicker(p.opts.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.publishOnce()
		}
	}
}

// publishOnce sends the current status if it changed since the last send.
func (p *StatusPublisher) publishOnce() {
	st := p.store.Status()
	if st.UpdatedAt.IsZero() || st.UpdatedAt.Equal(p.last) {
		return
	}
	payload, err := json.Marshal(st)
	if err != nil {
		p.logger.Error("status marshal failed", zap.Error(err))
		return
	}
	if err := p.publish(p.opts.Topic, payload); err != nil {
		metrics.RecordStatusPublish("error")
		p.logger.Debug("status publish failed", zap.Error(err))
		return
	}
	metrics.RecordStatusPublish("ok")
	p.last = st.UpdatedAt
}
