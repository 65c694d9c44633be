// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"html/template"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/relabs-tech/inertial_scope/internal/chart"
	"github.com/relabs-tech/inertial_scope/internal/metrics"
)

// Restarter drops the current device session and reconnects.
type Restarter interface {
	Restart()
}

// Viewer serves rendered charts, status and controls over HTTP.
type Viewer struct {
	logger    *zap.Logger
	pipeline  *Pipeline
	store     *FrameStore
	restarter Restarter
	router    chi.Router
	timeout   time.Duration
}

// NewViewer builds the viewer router. restarter may be nil.
func NewViewer(logger *zap.Logger, p *Pipeline, store *FrameStore, restarter Restarter) *Viewer {
	v := &Viewer{
		logger:    logger,
		pipeline:  p,
		store:     store,
		restarter: restarter,
		router:    chi.NewRouter(),
		timeout:   5 * time.Second,
	}
	v.setupMiddleware()
	v.setupRoutes()
	return v
}

// ServeHTTP implements http.Handler.
func (v *Viewer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	v.router.ServeHTTP(w, r)
}

func (v *Viewer) setupMiddleware() {
	v.router.Use(middleware.RequestID)
	v.router.Use(middleware.RealIP)
	v.router.Use(middleware.Recoverer)
	v.router.Use(v.observe)
}

func (v *Viewer) setupRoutes() {
	v.router.Get("/", v.handleIndex)
	v.router.Get("/charts/{key}.png", v.handleChart)
	v.router.Handle("/metrics", promhttp.Handler())

	v.router.Route("/api", func(r chi.Router) {
		r.Get("/status", v.handleStatus)
		r.Get("/events", v.handleEvents)
		r.Get("/export/{key}.csv", v.handleExport)

		r.Post("/pause", v.handlePause)
		r.Post("/scale", v.handleScale)
		r.Post("/clear", v.handleClear)
		r.Post("/resize", v.handleResize)
		r.Post("/reconnect", v.handleReconnect)
	})
}

// observe logs and counts every request by route pattern.
func (v *Viewer) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		duration := time.Since(start)
		metrics.RecordHTTPRequest(r.Method, route, ww.Status(), duration)
		v.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("route", route),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", duration),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func (v *Viewer) commandContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), v.timeout)
}

var indexPage = template.Must(template.New("index").Parse(`<!doctype html>
<html><head><meta charset="utf-8"><title>inertial scope</title>
<style>body{font-family:sans-serif;background:#f1f5f9;color:#0f172a;margin:16px}
img{display:block;margin:8px 0;border:1px solid #cbd5e1}#status{font-weight:bold}</style>
</head><body>
<div>Status: <span id="status">-</span> <button onclick="post('/api/pause',{})">Pause/Resume</button>
<button onclick="post('/api/reconnect',{})">Reconnect</button></div>
{{range .}}<img id="chart-{{.}}" data-key="{{.}}" src="/charts/{{.}}.png">{{end}}
<pre id="log"></pre>
<script>
function post(u,b){return fetch(u,{method:'POST',body:JSON.stringify(b)})}
function refresh(){
  document.querySelectorAll('img[data-key]').forEach(function(i){i.src='/charts/'+i.dataset.key+'.png?t='+Date.now()});
  fetch('/api/status').then(function(r){return r.json()}).then(function(s){
    var el=document.getElementById('status');el.textContent=s.state_text+' '+s.device;el.style.color=s.state_color;
    document.getElementById('log').textContent=(s.events||[]).map(function(e){return e.at.substr(11,8)+' '+e.message}).join('\n');
  });
}
setInterval(refresh,250);
</script></body></html>`))

func (v *Viewer) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexPage.Execute(w, v.pipeline.Keys()); err != nil {
		v.logger.Error("index render failed", zap.Error(err))
	}
}

func (v *Viewer) handleChart(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	var buf bytes.Buffer
	ok, err := v.store.EncodePNG(key, &buf)
	if err != nil {
		v.writeError(w, http.StatusInternalServerError, "png encode failed", err)
		return
	}
	if !ok {
		v.writeError(w, http.StatusNotFound, "no frame for chart "+key, nil)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(buf.Bytes())
}

func (v *Viewer) handleStatus(w http.ResponseWriter, r *http.Request) {
	v.writeJSON(w, http.StatusOK, v.store.Status())
}

func (v *Viewer) handleEvents(w http.ResponseWriter, r *http.Request) {
	v.writeJSON(w, http.StatusOK, v.store.Events())
}

type pauseRequest struct {
	Pause *bool `json:"pause"`
}

func (v *Viewer) handlePause(w http.ResponseWriter, r *http.Request) {
	var req pauseRequest
	if err := decodeBody(r.Body, &req); err != nil {
		v.writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	ctx, cancel := v.commandContext(r)
	defer cancel()

	var err error
	if req.Pause == nil {
		err = v.pipeline.TogglePause(ctx)
	} else {
		err = v.pipeline.SetPause(ctx, *req.Pause)
	}
	v.writeCommandResult(w, err)
}

type scaleRequest struct {
	Chart string `json:"chart"`
	Scale string `json:"scale"`
}

func (v *Viewer) handleScale(w http.ResponseWriter, r *http.Request) {
	var req scaleRequest
	if err := decodeBody(r.Body, &req); err != nil {
		v.writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	ctx, cancel := v.commandContext(r)
	defer cancel()
	v.writeCommandResult(w, v.pipeline.SelectScale(ctx, req.Chart, req.Scale))
}

type clearRequest struct {
	Chart string `json:"chart"`
}

func (v *Viewer) handleClear(w http.ResponseWriter, r *http.Request) {
	var req clearRequest
	if err := decodeBody(r.Body, &req); err != nil {
		v.writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	ctx, cancel := v.commandContext(r)
	defer cancel()
	v.writeCommandResult(w, v.pipeline.Clear(ctx, req.Chart))
}

type resizeRequest struct {
	Chart string `json:"chart"`
	chart.Surface
}

func (v *Viewer) handleResize(w http.ResponseWriter, r *http.Request) {
	var req resizeRequest
	if err := decodeBody(r.Body, &req); err != nil {
		v.writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	ctx, cancel := v.commandContext(r)
	defer cancel()
	v.writeCommandResult(w, v.pipeline.Resize(ctx, req.Chart, req.Surface))
}

func (v *Viewer) handleReconnect(w http.ResponseWriter, r *http.Request) {
	if v.restarter == nil {
		v.writeError(w, http.StatusServiceUnavailable, "no device link", nil)
		return
	}
	v.restarter.Restart()
	v.writeJSON(w, http.StatusAccepted, map[string]string{"status": "reconnecting"})
}

// handleExport writes the visible window of a chart as CSV, one row per
// sample index.
func (v *Viewer) handleExport(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	ctx, cancel := v.commandContext(r)
	defer cancel()

	win, err := v.pipeline.Window(ctx, key)
	if err != nil {
		v.writeCommandResult(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="`+key+`.csv"`)
	cw := csv.NewWriter(w)
	cw.Write(append([]string{"index"}, win.Labels...))

	n := 0
	if len(win.Channels) > 0 {
		n = len(win.Channels[0])
	}
	row := make([]string, len(win.Channels)+1)
	for i := 0; i < n; i++ {
		row[0] = strconv.Itoa(i)
		for c, ch := range win.Channels {
			row[c+1] = strconv.FormatFloat(ch[i], 'g', -1, 64)
		}
		cw.Write(row)
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		v.logger.Warn("csv export failed", zap.String("chart", key), zap.Error(err))
	}
}

func (v *Viewer) writeCommandResult(w http.ResponseWriter, err error) {
	var (
		scaleErr *chart.InvalidScaleError
		chartErr *UnknownChartError
	)
	switch {
	case err == nil:
		v.writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
	case errors.As(err, &scaleErr):
		v.writeError(w, http.StatusBadRequest, "invalid scale", err)
	case errors.As(err, &chartErr):
		v.writeError(w, http.StatusNotFound, "unknown chart", err)
	case errors.Is(err, ErrStopped):
		v.writeError(w, http.StatusServiceUnavailable, "pipeline stopped", err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		v.writeError(w, http.StatusServiceUnavailable, "pipeline busy", err)
	default:
		v.writeError(w, http.StatusBadRequest, "command failed", err)
	}
}

// decodeBody decodes a JSON body; an empty body leaves dst untouched.
func decodeBody(body io.Reader, dst any) error {
	err := json.NewDecoder(body).Decode(dst)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// writeJSON writes a JSON response
func (v *Viewer) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		v.logger.Error("failed to encode JSON response", zap.Error(err))
	}
}

// writeError writes an error response
func (v *Viewer) writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := map[string]any{"error": message, "status": status}
	if err != nil {
		resp["detail"] = err.Error()
		v.logger.Warn(message, zap.Int("status", status), zap.Error(err))
	}
	v.writeJSON(w, status, resp)
}
