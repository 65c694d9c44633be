// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/relabs-tech/inertial_scope/internal/sim"
)

// Full scales the simulated IIS3DWB accepts, in g.
var simFullScales = []float64{2, 4, 8, 16}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// DeviceSimOptions configures the simulated device.
type DeviceSimOptions struct {
	Addr string
	// DeviceIP is reported by /api/stats; empty reports the host the
	// request was sent to.
	DeviceIP   string
	SampleRate int
	ChunkSize  int
	FullScale  float64
}

// DeviceSim serves the device wire protocol: a high-speed websocket stream
// of chunked three-axis samples plus the identity and config endpoints.
type DeviceSim struct {
	logger *zap.Logger
	opts   DeviceSimOptions
	router chi.Router

	mu        sync.Mutex
	fullScale float64
	paused    bool
	conns     map[*websocket.Conn]struct{}
	start     time.Time
}

// NewDeviceSim creates a simulator.
func NewDeviceSim(logger *zap.Logger, opts DeviceSimOptions) *DeviceSim {
	if opts.SampleRate < 1 {
		opts.SampleRate = 1000
	}
	if opts.ChunkSize < 1 {
		opts.ChunkSize = 50
	}
	if opts.FullScale <= 0 {
		opts.FullScale = 4
	}
	d := &DeviceSim{
		logger:    logger,
		opts:      opts,
		router:    chi.NewRouter(),
		fullScale: opts.FullScale,
		conns:     make(map[*websocket.Conn]struct{}),
		start:     time.Now(),
	}
	d.router.Get("/ws/data", d.handleStream)
	d.router.Get("/api/stats", d.handleStats)
	d.router.Get("/api/config", d.handleGetConfig)
	d.router.Post("/api/config", d.handleSetConfig)
	d.router.Post("/api/debug/drop", d.handleDrop)
	return d
}

// ServeHTTP implements http.Handler.
func (d *DeviceSim) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	d.router.ServeHTTP(w, r)
}

// Run serves on opts.Addr until ctx is cancelled.
func (d *DeviceSim) Run(ctx context.Context) error {
	srv := &http.Server{Addr: d.opts.Addr, Handler: d, ReadHeaderTimeout: 5 * time.Second}
	ln, err := net.Listen("tcp", d.opts.Addr)
	if err != nil {
		return fmt.Errorf("devicesim listen: %w", err)
	}
	d.logger.Info("device simulator listening",
		zap.String("addr", ln.Addr().String()),
		zap.Int("sample_rate", d.opts.SampleRate),
		zap.Int("chunk", d.opts.ChunkSize),
	)

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()

	select {
	case <-ctx.Done():
		d.dropAll()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

type simSummary struct {
	Batch int     `json:"batch"`
	SPS   float64 `json:"sps"`
	PPS   float64 `json:"pps"`
	MPS   float64 `json:"mps"`
	Chunk int     `json:"chunk"`
	FIFO  int     `json:"fifo"`
}

type simMessage struct {
	T      float64              `json:"t"`
	Chunks map[string][]float64 `json:"chunks"`
	Mag    float64              `json:"mag"`
	S      simSummary           `json:"s"`
}

func (d *DeviceSim) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		d.logger.Warn("websocket upgrade error", zap.Error(err))
		return
	}
	d.mu.Lock()
	d.conns[conn] = struct{}{}
	d.mu.Unlock()
	d.logger.Info("client connected", zap.String("remote", r.RemoteAddr))

	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		d.mu.Lock()
		delete(d.conns, conn)
		d.mu.Unlock()
		conn.Close()
		d.logger.Info("client disconnected", zap.String("remote", r.RemoteAddr))
	}()

	// The reader notices the peer going away.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	mps := float64(d.opts.SampleRate) / float64(d.opts.ChunkSize)
	limiter := rate.NewLimiter(rate.Limit(mps), 1)
	src := sim.NewSource(d.opts.SampleRate)

	for {
		if err := limiter.Wait(ctx); err != nil {
			return
		}
		fullScale, paused := d.state()
		if paused {
			continue
		}

		x, y, z := src.Chunk(d.opts.ChunkSize, fullScale)
		last := sim.Sample{X: x[len(x)-1], Y: y[len(y)-1], Z: z[len(z)-1]}
		msg := simMessage{
			T:      src.Elapsed(),
			Chunks: map[string][]float64{"x": x, "y": y, "z": z},
			Mag:    last.Magnitude(),
			S: simSummary{
				Batch: 1,
				SPS:   float64(d.opts.SampleRate),
				PPS:   float64(d.opts.SampleRate),
				MPS:   mps,
				Chunk: d.opts.ChunkSize,
			},
		}
		conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
		if err := conn.WriteJSON(msg); err != nil {
			d.logger.Debug("stream write failed", zap.Error(err))
			return
		}
	}
}

func (d *DeviceSim) state() (float64, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.fullScale, d.paused
}

func (d *DeviceSim) handleStats(w http.ResponseWriter, r *http.Request) {
	ip := d.opts.DeviceIP
	if ip == "" {
		ip = r.Host
	}
	writeSimJSON(w, http.StatusOK, map[string]any{
		"ip":     ip,
		"uptime": time.Since(d.start).Seconds(),
	})
}

func (d *DeviceSim) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	fs, paused := d.state()
	writeSimJSON(w, http.StatusOK, map[string]any{
		"full_scale_g":     fs,
		"imu_full_scale_g": fs,
		"paused":           paused,
	})
}

type simConfigRequest struct {
	FullScale *float64 `json:"full_scale_g"`
	Pause     *bool    `json:"pause"`
}

func (d *DeviceSim) handleSetConfig(w http.ResponseWriter, r *http.Request) {
	var req simConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeSimJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid JSON"})
		return
	}

	resp := map[string]any{}
	d.mu.Lock()
	defer d.mu.Unlock()

	if req.FullScale != nil {
		if !validFullScale(*req.FullScale) {
			writeSimJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid full scale value"})
			return
		}
		d.fullScale = *req.FullScale
		resp["full_scale_g"] = d.fullScale
		d.logger.Info("full scale changed", zap.Float64("g", d.fullScale))
	}
	if req.Pause != nil {
		d.paused = *req.Pause
		resp["paused"] = d.paused
		d.logger.Info("streaming paused", zap.Bool("paused", d.paused))
	}
	if len(resp) == 0 {
		writeSimJSON(w, http.StatusBadRequest, map[string]string{"error": "No configuration field"})
		return
	}
	writeSimJSON(w, http.StatusOK, resp)
}

// handleDrop closes every stream, as a device reboot would.
func (d *DeviceSim) handleDrop(w http.ResponseWriter, r *http.Request) {
	n := d.dropAll()
	writeSimJSON(w, http.StatusOK, map[string]int{"dropped": n})
}

func (d *DeviceSim) dropAll() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	for c := range d.conns {
		c.Close()
	}
	return len(d.conns)
}

func validFullScale(g float64) bool {
	for _, v := range simFullScales {
		if g == v {
			return true
		}
	}
	return false
}

func writeSimJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
