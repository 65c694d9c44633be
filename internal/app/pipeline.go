// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/relabs-tech/inertial_scope/internal/chart"
	"github.com/relabs-tech/inertial_scope/internal/config"
	"github.com/relabs-tech/inertial_scope/internal/device"
	"github.com/relabs-tech/inertial_scope/internal/link"
	"github.com/relabs-tech/inertial_scope/internal/metrics"
	"github.com/relabs-tech/inertial_scope/internal/ring"
	"github.com/relabs-tech/inertial_scope/internal/telemetry"
)

// ErrStopped is returned by commands sent after the pipeline exited.
var ErrStopped = errors.New("pipeline stopped")

// UnknownChartError names a chart key that is not configured.
type UnknownChartError struct{ Key string }

func (e *UnknownChartError) Error() string { return fmt.Sprintf("unknown chart %q", e.Key) }

// DeviceConfigurer is the device configuration endpoint.
type DeviceConfigurer interface {
	Get(ctx context.Context) (device.Config, error)
	SetScale(ctx context.Context, g float64) (device.Config, error)
	SetPause(ctx context.Context, pause bool) (device.Config, error)
}

// PipelineOptions configures a Pipeline.
type PipelineOptions struct {
	Groups        []config.ChannelGroup
	Surface       chart.Surface
	GridLines     int
	EventLogSize  int
	FrameInterval time.Duration
	// PauseSync sends pause requests to the device and applies its echo.
	PauseSync bool
	// Device is the host the scope was pointed at, shown until the device
	// reports its own address.
	Device string
	// StatusEvents is how many recent log entries go into Status.
	StatusEvents int
}

type scopeChart struct {
	group     config.ChannelGroup
	buffers   *ring.Group
	renderer  *chart.Renderer
	scheduler *chart.Scheduler
	sink      *telemetry.Sink
	mode      chart.Mode
	scale     float64
	rng       chart.DisplayRange
	scratch   [][]float64
}

// Pipeline owns every piece of mutable scope state. One goroutine (Run)
// applies inbound messages, link events, commands, device replies and frame
// ticks in arrival order; everything else talks to it through its inbox.
type Pipeline struct {
	logger *zap.Logger
	opts   PipelineOptions
	store  *FrameStore
	device DeviceConfigurer

	charts []*scopeChart
	byKey  map[string]*scopeChart
	ingest *telemetry.Ingest
	events *link.EventLog

	state       link.State
	identity    string
	statusDirty bool
	eventsDirty bool

	inbox  chan func()
	done   chan struct{}
	ticks  <-chan time.Time
	now    func() time.Time
	bgCtx  context.Context
	bgStop context.CancelFunc
}

// NewPipeline builds charts for every group. dev may be nil, in which case
// scale and pause selections apply locally.
func NewPipeline(logger *zap.Logger, opts PipelineOptions, store *FrameStore, dev DeviceConfigurer) *Pipeline {
	if opts.EventLogSize < 1 {
		opts.EventLogSize = 50
	}
	if opts.FrameInterval <= 0 {
		opts.FrameInterval = 16 * time.Millisecond
	}
	if opts.StatusEvents <= 0 {
		opts.StatusEvents = 10
	}
	if opts.GridLines <= 0 {
		opts.GridLines = 4
	}

	p := &Pipeline{
		logger: logger,
		opts:   opts,
		store:  store,
		device: dev,
		byKey:  make(map[string]*scopeChart, len(opts.Groups)),
		events: link.NewEventLog(opts.EventLogSize),
		state:  link.Connecting,
		inbox:  make(chan func(), 256),
		done:   make(chan struct{}),
		now:    time.Now,
	}
	p.bgCtx, p.bgStop = context.WithCancel(context.Background())

	sinks := make([]*telemetry.Sink, 0, len(opts.Groups))
	for _, g := range opts.Groups {
		c := p.newChart(g)
		p.charts = append(p.charts, c)
		p.byKey[g.Key] = c
		sinks = append(sinks, c.sink)
	}
	p.ingest = telemetry.NewIngest(logger.Named("ingest"), sinks)
	p.statusDirty = true
	return p
}

func (p *Pipeline) newChart(g config.ChannelGroup) *scopeChart {
	c := &scopeChart{
		group:   g,
		buffers: ring.NewGroup(len(g.Fields), g.Capacity),
		mode:    chart.Auto,
	}
	if g.Scale != "auto" {
		if v, err := chart.ParseScale(g.Scale); err == nil {
			c.mode, c.scale = chart.Manual, v
		}
	}

	c.scheduler = chart.NewScheduler(func() { p.draw(c) })
	style := chart.DefaultStyle(g.Labels, g.RGBA(), g.Capacity)
	style.GridLines = p.opts.GridLines
	c.renderer = chart.NewRenderer(style, p.opts.Surface, c.scheduler)
	c.renderer.SetTitle(chartTitle(g.Title, g.Unit))

	c.sink = &telemetry.Sink{
		Key:    g.Key,
		Fields: g.Fields,
		Group:  c.buffers,
		Name:   g.Title,
		Unit:   g.Unit,
		Redraw: func() { p.requestDraw(c) },
	}
	return c
}

func chartTitle(name, unit string) string {
	if unit == "" {
		return name
	}
	return fmt.Sprintf("%s (%s)", name, unit)
}

// Run processes the inbox and frame ticks until ctx is cancelled.
func (p *Pipeline) Run(ctx context.Context) error {
	defer close(p.done)
	defer p.bgStop()

	ticks := p.ticks
	if ticks == nil {
		ticker := time.NewTicker(p.opts.FrameInterval)
		defer ticker.Stop()
		ticks = ticker.C
	}

	// The first frame shows empty charts with the fallback range.
	for _, c := range p.charts {
		p.requestDraw(c)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case fn := <-p.inbox:
			fn()
		case <-ticks:
			p.frame()
		}
	}
}

// frame runs every chart's scheduler and republishes the status.
func (p *Pipeline) frame() {
	for _, c := range p.charts {
		c.scheduler.Frame()
	}
	p.publish()
}

func (p *Pipeline) requestDraw(c *scopeChart) {
	metrics.RecordDrawRequest(c.group.Key)
	c.scheduler.Request()
}

// draw renders the current buffer contents. It runs at frame time, so a
// burst of updates costs one draw.
func (p *Pipeline) draw(c *scopeChart) {
	start := time.Now()
	c.scratch = c.buffers.SnapshotInto(c.scratch)
	c.rng = chart.EstimateRange(c.scratch, c.mode, c.scale)
	c.renderer.Draw(c.scratch, c.rng)
	metrics.RecordDraw(c.group.Key, time.Since(start).Seconds())
	if p.store != nil {
		p.store.putFrame(c.group.Key, c.renderer.Image())
	}
	p.statusDirty = true
}

func (p *Pipeline) publish() {
	if p.store == nil || !p.statusDirty {
		return
	}
	var events []link.Entry
	if p.eventsDirty {
		events = p.events.Entries()
		p.eventsDirty = false
	}
	p.store.putStatus(p.status(), events)
	p.statusDirty = false
}

func (p *Pipeline) status() Status {
	host := p.identity
	if host == "" {
		host = p.opts.Device
	}
	st := Status{
		State:      p.state,
		StateText:  p.state.Text(),
		StateColor: p.state.Color(),
		Device:     host,
		Paused:     p.ingest.Paused(),
		Metrics:    p.ingest.Metrics(),
		Events:     p.events.Latest(p.opts.StatusEvents),
		UpdatedAt:  p.now(),
	}
	for _, c := range p.charts {
		st.Charts = append(st.Charts, ChartStatus{
			Key:      c.group.Key,
			Title:    c.renderer.Title(),
			Labels:   c.group.Labels,
			Mode:     c.mode.String(),
			Scale:    c.scale,
			Range:    c.rng,
			Samples:  c.buffers.Len(),
			Capacity: c.buffers.Cap(),
			Surface:  c.renderer.Surface(),
			Requests: c.scheduler.Requests(),
			Draws:    c.scheduler.Draws(),
		})
	}
	return st
}

// post hands fn to the pipeline goroutine. It gives up once the pipeline
// has stopped.
func (p *Pipeline) post(fn func()) bool {
	select {
	case p.inbox <- fn:
		return true
	case <-p.done:
		return false
	}
}

// call runs fn on the pipeline goroutine and waits for its result.
func (p *Pipeline) call(ctx context.Context, fn func() error) error {
	errc := make(chan error, 1)
	select {
	case p.inbox <- func() { errc <- fn() }:
	case <-ctx.Done():
		return ctx.Err()
	case <-p.done:
		return ErrStopped
	}
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-p.done:
		return ErrStopped
	}
}

// OnMessage implements link.Sink.
func (p *Pipeline) OnMessage(data []byte) {
	p.post(func() { p.handleMessage(data) })
}

// OnEvent implements link.Sink.
func (p *Pipeline) OnEvent(e link.Event) {
	p.post(func() { p.handleEvent(e) })
}

func (p *Pipeline) handleMessage(data []byte) {
	res, err := p.ingest.OnMessage(data)
	p.statusDirty = true
	if err != nil {
		return
	}
	if res.Identity != "" && res.Identity != p.identity {
		p.identity = res.Identity
		p.logger.Info("device identity", zap.String("ip", res.Identity))
	}
	for _, key := range res.Relabeled {
		c := p.byKey[key]
		c.renderer.SetTitle(chartTitle(c.sink.Name, c.sink.Unit))
		p.requestDraw(c)
	}
	if res.FullScale != nil {
		p.followDeviceScale(*res.FullScale)
	}
}

func (p *Pipeline) handleEvent(e link.Event) {
	p.addEvent(e.At, e.Message)
	if e.Info {
		return
	}
	p.state = e.State
	if e.State == link.Connected && p.device != nil {
		p.fetchDeviceConfig()
	}
}

func (p *Pipeline) addEvent(at time.Time, msg string) {
	if at.IsZero() {
		at = p.now()
	}
	p.events.Add(at, msg)
	p.eventsDirty = true
	p.statusDirty = true
}

// followDeviceScale applies a device-confirmed full scale to charts that
// follow the device and are in manual mode.
func (p *Pipeline) followDeviceScale(g float64) {
	if chart.ValidateScale(g) != nil {
		return
	}
	for _, c := range p.charts {
		if !c.group.DeviceScale || c.mode != chart.Manual || c.scale == g {
			continue
		}
		c.scale = g
		p.requestDraw(c)
	}
}

func (p *Pipeline) fetchDeviceConfig() {
	go func() {
		cfg, err := p.device.Get(p.bgCtx)
		p.post(func() {
			if err != nil {
				p.logger.Warn("device config lookup failed", zap.Error(err))
				return
			}
			if cfg.FullScale != nil {
				p.ingest.NoteFullScale(*cfg.FullScale)
				p.followDeviceScale(*cfg.FullScale)
				p.statusDirty = true
			}
		})
	}()
}

func (p *Pipeline) chart(key string) (*scopeChart, error) {
	c, ok := p.byKey[key]
	if !ok {
		return nil, &UnknownChartError{Key: key}
	}
	return c, nil
}

// TogglePause flips the pause state.
func (p *Pipeline) TogglePause(ctx context.Context) error {
	return p.call(ctx, func() error {
		p.setPause(!p.ingest.Paused())
		return nil
	})
}

// SetPause freezes or resumes the charts. Metrics keep updating while
// paused. With PauseSync the device decides and its echo is applied.
func (p *Pipeline) SetPause(ctx context.Context, pause bool) error {
	return p.call(ctx, func() error {
		p.setPause(pause)
		return nil
	})
}

func (p *Pipeline) setPause(pause bool) {
	if p.opts.PauseSync && p.device != nil {
		go func() {
			cfg, err := p.device.SetPause(p.bgCtx, pause)
			p.post(func() {
				if err == nil && cfg.Paused == nil {
					err = &device.ConfigRequestError{Field: "pause", Reason: "reply does not echo pause"}
				}
				if err != nil {
					p.addEvent(time.Time{}, "Pause request failed: "+err.Error())
					p.logger.Warn("pause request failed", zap.Error(err))
					return
				}
				p.applyPause(*cfg.Paused)
			})
		}()
		return
	}
	p.applyPause(pause)
}

func (p *Pipeline) applyPause(pause bool) {
	if p.ingest.Paused() == pause {
		return
	}
	p.ingest.SetPaused(pause)
	p.statusDirty = true
	if pause {
		p.addEvent(time.Time{}, "Stream paused")
		return
	}
	p.addEvent(time.Time{}, "Stream resumed")
	for _, c := range p.charts {
		p.requestDraw(c)
	}
}

// SelectScale sets the vertical scale of a chart: "auto" or a full scale
// such as "8". An invalid scale is rejected and the previous one kept. For
// charts that follow the device, a numeric scale is applied only once the
// device confirms it.
func (p *Pipeline) SelectScale(ctx context.Context, key, selection string) error {
	return p.call(ctx, func() error {
		c, err := p.chart(key)
		if err != nil {
			return err
		}

		if strings.EqualFold(strings.TrimSpace(selection), "auto") {
			c.mode, c.scale = chart.Auto, 0
			p.requestDraw(c)
			return nil
		}

		g, err := chart.ParseScale(selection)
		if err != nil {
			p.logger.Warn("scale rejected", zap.String("chart", key), zap.Error(err))
			return err
		}

		if !c.group.DeviceScale || p.device == nil {
			c.mode, c.scale = chart.Manual, g
			p.requestDraw(c)
			return nil
		}

		go func() {
			cfg, err := p.device.SetScale(p.bgCtx, g)
			p.post(func() { p.onScaleReply(c, cfg, err) })
		}()
		return nil
	})
}

func (p *Pipeline) onScaleReply(c *scopeChart, cfg device.Config, err error) {
	if err == nil && cfg.FullScale == nil {
		err = &device.ConfigRequestError{Field: "full_scale_g", Reason: "reply does not echo full_scale_g"}
	}
	if err != nil {
		p.addEvent(time.Time{}, "Failed to set full scale: "+err.Error())
		p.logger.Warn("full scale request failed", zap.String("chart", c.group.Key), zap.Error(err))
		return
	}
	g := *cfg.FullScale
	if chart.ValidateScale(g) != nil {
		p.addEvent(time.Time{}, fmt.Sprintf("Device confirmed unusable full scale %v", g))
		return
	}
	p.ingest.NoteFullScale(g)
	c.mode, c.scale = chart.Manual, g
	p.addEvent(time.Time{}, fmt.Sprintf("Full scale set to ±%g g", g))
	p.requestDraw(c)
}

// Clear empties one chart, or all charts when key is empty or "all".
func (p *Pipeline) Clear(ctx context.Context, key string) error {
	return p.call(ctx, func() error {
		if key == "" || key == "all" {
			for _, c := range p.charts {
				c.buffers.Clear()
				p.requestDraw(c)
			}
			return nil
		}
		c, err := p.chart(key)
		if err != nil {
			return err
		}
		c.buffers.Clear()
		p.requestDraw(c)
		return nil
	})
}

// Resize changes the drawing surface of a chart. The new frame is drawn on
// the next tick.
func (p *Pipeline) Resize(ctx context.Context, key string, s chart.Surface) error {
	if s.Width <= 0 || s.Height <= 0 {
		return fmt.Errorf("invalid surface %vx%v", s.Width, s.Height)
	}
	return p.call(ctx, func() error {
		c, err := p.chart(key)
		if err != nil {
			return err
		}
		c.renderer.Resize(s)
		p.statusDirty = true
		return nil
	})
}

// Window is the visible content of a chart.
type Window struct {
	Key      string
	Labels   []string
	Channels [][]float64
}

// Window copies the visible samples of a chart.
func (p *Pipeline) Window(ctx context.Context, key string) (Window, error) {
	var w Window
	err := p.call(ctx, func() error {
		c, err := p.chart(key)
		if err != nil {
			return err
		}
		w = Window{Key: key, Labels: c.group.Labels, Channels: c.buffers.Snapshot()}
		return nil
	})
	return w, err
}

// Keys lists the chart keys in display order.
func (p *Pipeline) Keys() []string {
	keys := make([]string, len(p.opts.Groups))
	for i, g := range p.opts.Groups {
		keys[i] = g.Key
	}
	return keys
}
