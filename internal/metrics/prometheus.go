// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the scope pipeline
var (
	// Ingest
	messagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scope_messages_total",
			Help: "Total number of inbound telemetry messages by result",
		},
		[]string{"result"},
	)

	samplesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scope_samples_total",
			Help: "Total number of samples written into channel buffers",
		},
		[]string{"group"},
	)

	droppedBatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scope_dropped_batches_total",
			Help: "Total number of batches dropped because channel lengths differed",
		},
		[]string{"group"},
	)

	// Rendering
	drawRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scope_draw_requests_total",
			Help: "Total number of redraw requests",
		},
		[]string{"group"},
	)

	drawsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scope_draws_total",
			Help: "Total number of chart draws performed",
		},
		[]string{"group"},
	)

	drawDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scope_draw_duration_seconds",
			Help:    "Chart draw duration in seconds",
			Buckets: []float64{0.0005, 0.001, 0.002, 0.004, 0.008, 0.016, 0.033, 0.066},
		},
	)

	// Transport
	connectionState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "scope_connection_state",
			Help: "1 for the current connection state, 0 otherwise",
		},
		[]string{"state"},
	)

	connectAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scope_connect_attempts_total",
			Help: "Total number of transport connection attempts by result",
		},
		[]string{"result"},
	)

	// Device configuration round trips
	configRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scope_config_requests_total",
			Help: "Total number of device configuration requests",
		},
		[]string{"field", "status"},
	)

	// Viewer HTTP
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scope_http_requests_total",
			Help: "Total number of viewer HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scope_http_request_duration_seconds",
			Help:    "Viewer HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// MQTT status mirror
	statusPublishesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scope_status_publishes_total",
			Help: "Total number of status snapshots published over MQTT",
		},
		[]string{"result"},
	)
)

// RecordMessage records one inbound message ("ok" or "decode_error").
func RecordMessage(result string) {
	messagesTotal.WithLabelValues(result).Inc()
}

// RecordSamples records n samples written into a group.
func RecordSamples(group string, n int) {
	samplesTotal.WithLabelValues(group).Add(float64(n))
}

// RecordDroppedBatch records a batch dropped for a group.
func RecordDroppedBatch(group string) {
	droppedBatchesTotal.WithLabelValues(group).Inc()
}

// RecordDrawRequest records a redraw request for a group.
func RecordDrawRequest(group string) {
	drawRequestsTotal.WithLabelValues(group).Inc()
}

// RecordDraw records a completed draw and its duration in seconds.
func RecordDraw(group string, seconds float64) {
	drawsTotal.WithLabelValues(group).Inc()
	drawDuration.Observe(seconds)
}

// SetConnectionState marks state as current among all states.
func SetConnectionState(state string, all []string) {
	for _, s := range all {
		v := 0.0
		if s == state {
			v = 1
		}
		connectionState.WithLabelValues(s).Set(v)
	}
}

// RecordConnectAttempt records a dial attempt ("ok" or "error").
func RecordConnectAttempt(result string) {
	connectAttemptsTotal.WithLabelValues(result).Inc()
}

// RecordConfigRequest records a device configuration round trip.
func RecordConfigRequest(field, status string) {
	configRequestsTotal.WithLabelValues(field, status).Inc()
}

// RecordHTTPRequest records one viewer request.
func RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordStatusPublish records an MQTT status publish ("ok" or "error").
func RecordStatusPublish(result string) {
	statusPublishesTotal.WithLabelValues(result).Inc()
}
