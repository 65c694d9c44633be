// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package telemetry

import (
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/relabs-tech/inertial_scope/internal/metrics"
	"github.com/relabs-tech/inertial_scope/internal/ring"
)

// Sink is one channel group that inbound batches are routed into.
type Sink struct {
	// Key is the top-level message field carrying this group.
	Key string
	// Fields lists the payload field of each channel, in buffer order.
	Fields []string
	Group  *ring.Group
	// Redraw is called after every successful buffer mutation.
	Redraw func()

	// Name and Unit are the last values announced by the device.
	Name string
	Unit string
}

// Result summarizes what one message changed.
type Result struct {
	// Mutated lists the keys of groups that received samples.
	Mutated []string
	// Dropped lists the keys of groups whose batch was rejected.
	Dropped []string
	// Relabeled lists the keys of groups whose name or unit changed.
	Relabeled []string
	// Identity is the device address carried by the message, if any.
	Identity string
	// FullScale is the device-confirmed full scale, if echoed.
	FullScale *float64
}

// Ingest decodes inbound messages and routes samples into channel groups.
// Not safe for concurrent use; it belongs to the pipeline goroutine.
type Ingest struct {
	logger  *zap.Logger
	sinks   []*Sink
	byKey   map[string]*Sink
	paused  bool
	metrics MetricsSnapshot
	now     func() time.Time
}

// NewIngest creates an ingest routing into sinks.
func NewIngest(logger *zap.Logger, sinks []*Sink) *Ingest {
	in := &Ingest{
		logger: logger,
		sinks:  sinks,
		byKey:  make(map[string]*Sink, len(sinks)),
		now:    time.Now,
	}
	for _, s := range sinks {
		in.byKey[s.Key] = s
	}
	return in
}

// SetPaused freezes or resumes buffer updates. Metrics keep updating.
func (in *Ingest) SetPaused(paused bool) { in.paused = paused }

// Paused reports whether buffer updates are frozen.
func (in *Ingest) Paused() bool { return in.paused }

// Metrics returns the current metrics snapshot.
func (in *Ingest) Metrics() MetricsSnapshot { return in.metrics }

// NoteFullScale records a full scale confirmed outside the stream, such as
// a configuration reply.
func (in *Ingest) NoteFullScale(g float64) {
	in.metrics.DeviceFullScale = g
	in.metrics.UpdatedAt = in.now()
}

// Sink returns the sink registered under key.
func (in *Ingest) Sink(key string) (*Sink, bool) {
	s, ok := in.byKey[key]
	return s, ok
}

// OnMessage processes one raw message. A *DecodeError means the message
// was dropped whole; nothing else was changed except the error counter.
func (in *Ingest) OnMessage(raw []byte) (Result, error) {
	msg, err := Decode(raw)
	if err != nil {
		in.metrics.DecodeErrors++
		metrics.RecordMessage("decode_error")
		in.logger.Warn("dropping malformed message", zap.Error(err), zap.Int("bytes", len(raw)))
		return Result{}, err
	}
	metrics.RecordMessage("ok")
	return in.apply(msg), nil
}

func (in *Ingest) apply(msg *Message) Result {
	res := Result{Identity: msg.Identity, FullScale: msg.FullScale}

	// Metrics are applied regardless of pause.
	m := &in.metrics
	m.MessagesReceived++
	m.UpdatedAt = in.now()
	if msg.Summary != nil {
		m.applySummary(msg.Summary)
	}
	if msg.Statistics != nil {
		m.applyStatistics(msg.Statistics)
	}
	if msg.Statistics == nil || msg.Statistics.SensorCount == nil {
		m.SensorCount = activeGroups(msg)
	}
	set(&m.Magnitude, msg.Magnitude)
	set(&m.DeviceTime, msg.DeviceTime)
	set(&m.DeviceFullScale, msg.FullScale)

	for _, sink := range in.sinks {
		payload, ok := msg.Groups[sink.Key]
		if !ok {
			continue
		}
		if (payload.Name != "" && payload.Name != sink.Name) || (payload.Unit != "" && payload.Unit != sink.Unit) {
			if payload.Name != "" {
				sink.Name = payload.Name
			}
			if payload.Unit != "" {
				sink.Unit = payload.Unit
			}
			res.Relabeled = append(res.Relabeled, sink.Key)
		}
		if in.paused {
			continue
		}

		batch := make([][]float64, len(sink.Fields))
		for c, field := range sink.Fields {
			batch[c] = payload.Channels[field]
		}
		if batchLen(batch) == 0 {
			continue
		}
		if err := sink.Group.PushBatch(batch); err != nil {
			m.DroppedBatches++
			metrics.RecordDroppedBatch(sink.Key)
			if errors.Is(err, ring.ErrBatchMismatch) {
				in.logger.Warn("dropping misaligned batch", zap.String("group", sink.Key), zap.Error(err))
			}
			res.Dropped = append(res.Dropped, sink.Key)
			continue
		}
		metrics.RecordSamples(sink.Key, batchLen(batch)*len(batch))
		res.Mutated = append(res.Mutated, sink.Key)
		if sink.Redraw != nil {
			sink.Redraw()
		}
	}
	return res
}

// batchLen returns the longest channel length, so that an entirely empty
// batch is skipped while a partially empty one still fails alignment.
func batchLen(batch [][]float64) int {
	n := 0
	for _, ch := range batch {
		if len(ch) > n {
			n = len(ch)
		}
	}
	return n
}

// activeGroups counts group payloads that carry at least one sample.
func activeGroups(msg *Message) int {
	n := 0
	for _, p := range msg.Groups {
		for _, ch := range p.Channels {
			if len(ch) > 0 {
				n++
				break
			}
		}
	}
	return n
}
