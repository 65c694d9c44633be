// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package device talks to the configuration endpoint of the streaming device.
package device

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/time/rate"

	"github.com/relabs-tech/inertial_scope/internal/metrics"
)

// Config is the device reply. Only the fields the device echoed are set.
type Config struct {
	FullScale *float64 `json:"full_scale_g,omitempty"`
	// IMUFullScale is how GET reports the sensor range on some firmware.
	IMUFullScale *float64 `json:"imu_full_scale_g,omitempty"`
	Paused       *bool    `json:"paused,omitempty"`
	Error        string   `json:"error,omitempty"`
}

// ConfigRequestError is a failed configuration request: transport failure,
// non-2xx status, or an error reported by the device.
type ConfigRequestError struct {
	Field  string
	Status int
	Reason string
	Err    error
}

func (e *ConfigRequestError) Error() string {
	msg := "config request"
	if e.Field != "" {
		msg += " " + e.Field
	}
	if e.Status != 0 {
		msg += fmt.Sprintf(" (HTTP %d)", e.Status)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigRequestError) Unwrap() error { return e.Err }

// Client sends configuration requests. Requests are rate limited; a request
// that cannot get a token before its context ends fails.
type Client struct {
	http    *http.Client
	url     string
	limiter *rate.Limiter
}

// NewClient creates a client for http://origin+path.
// perSecond <= 0 disables limiting.
func NewClient(httpClient *http.Client, origin, path string, perSecond float64, burst int) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	if burst < 1 {
		burst = 1
	}
	if !strings.HasPrefix(origin, "http://") && !strings.HasPrefix(origin, "https://") {
		origin = "http://" + origin
	}
	return &Client{http: httpClient, url: origin + path, limiter: rate.NewLimiter(limit, burst)}
}

// URL returns the configuration endpoint.
func (c *Client) URL() string { return c.url }

// Get reads the current device configuration.
func (c *Client) Get(ctx context.Context) (Config, error) {
	cfg, err := c.request(ctx, http.MethodGet, "get", nil, nil)
	if cfg.FullScale == nil {
		cfg.FullScale = cfg.IMUFullScale
	}
	return cfg, err
}

// SetScale asks the device for a new accelerometer full scale, in g.
func (c *Client) SetScale(ctx context.Context, g float64) (Config, error) {
	return c.request(ctx, http.MethodPost, "full_scale_g", map[string]any{"full_scale_g": g}, func(cfg Config) bool {
		return cfg.FullScale != nil
	})
}

// SetPause asks the device to pause or resume streaming.
func (c *Client) SetPause(ctx context.Context, pause bool) (Config, error) {
	return c.request(ctx, http.MethodPost, "pause", map[string]any{"pause": pause}, func(cfg Config) bool {
		return cfg.Paused != nil
	})
}

func (c *Client) request(ctx context.Context, method, field string, body any, echoed func(Config) bool) (Config, error) {
	cfg, err := c.do(ctx, method, field, body)
	if err == nil && echoed != nil && !echoed(cfg) {
		err = &ConfigRequestError{Field: field, Reason: "reply does not echo " + field}
	}
	if err != nil {
		metrics.RecordConfigRequest(field, "error")
		return Config{}, err
	}
	metrics.RecordConfigRequest(field, "ok")
	return cfg, nil
}

func (c *Client) do(ctx context.Context, method, field string, body any) (Config, error) {
	var cfg Config
	if err := c.limiter.Wait(ctx); err != nil {
		return cfg, &ConfigRequestError{Field: field, Reason: "rate limited", Err: err}
	}

	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return cfg, &ConfigRequestError{Field: field, Err: err}
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.url, rd)
	if err != nil {
		return cfg, &ConfigRequestError{Field: field, Err: err}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return cfg, &ConfigRequestError{Field: field, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return cfg, &ConfigRequestError{Field: field, Status: resp.StatusCode, Err: err}
	}
	// The device reports errors in the body, sometimes with a 200.
	decodeErr := json.Unmarshal(raw, &cfg)

	if resp.StatusCode/100 != 2 {
		reason := cfg.Error
		if reason == "" {
			reason = strings.TrimSpace(string(raw))
		}
		return Config{}, &ConfigRequestError{Field: field, Status: resp.StatusCode, Reason: reason}
	}
	if decodeErr != nil {
		return Config{}, &ConfigRequestError{Field: field, Status: resp.StatusCode, Reason: "malformed reply", Err: decodeErr}
	}
	if cfg.Error != "" {
		return Config{}, &ConfigRequestError{Field: field, Status: resp.StatusCode, Reason: cfg.Error}
	}
	return cfg, nil
}
