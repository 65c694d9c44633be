// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package telemetry

import "time"

// MetricsSnapshot holds the last-known rate figures reported by the device
// plus local counters. Display only; rendering never reads it.
type MetricsSnapshot struct {
	MessagesPerSec    float64 `json:"messages_per_sec"`
	SamplesPerSec     float64 `json:"samples_per_sec"`
	PlotSamplesPerSec float64 `json:"plot_samples_per_sec"`
	QueueDepth        float64 `json:"queue_depth"`
	BatchSize         float64 `json:"batch_size"`
	ChunkSize         float64 `json:"chunk_size"`
	SensorCount       int     `json:"sensor_count"`
	Magnitude         float64 `json:"magnitude"`
	DeviceFullScale   float64 `json:"device_full_scale"`
	DeviceTime        float64 `json:"device_time"`

	MessagesReceived uint64    `json:"messages_received"`
	DecodeErrors     uint64    `json:"decode_errors"`
	DroppedBatches   uint64    `json:"dropped_batches"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func (m *MetricsSnapshot) applySummary(s *Summary) {
	set(&m.MessagesPerSec, s.MessagesPerSec)
	set(&m.PlotSamplesPerSec, s.PlotSamplesPerSec)
	set(&m.SamplesPerSec, s.SamplesPerSec)
	set(&m.QueueDepth, s.QueueDepth)
	set(&m.BatchSize, s.Batch)
	set(&m.ChunkSize, s.Chunk)
}

func (m *MetricsSnapshot) applyStatistics(s *Statistics) {
	set(&m.MessagesPerSec, s.MessagesPerSec)
	set(&m.SamplesPerSec, s.SamplesPerSec)
	set(&m.PlotSamplesPerSec, s.PlotSamplesPerSec)
	if s.SensorCount != nil {
		m.SensorCount = int(*s.SensorCount)
	}
}

func set(dst *float64, v *float64) {
	if v != nil {
		*dst = *v
	}
}
