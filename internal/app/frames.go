// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"image"
	"image/png"
	"io"
	"sync"
	"time"

	"github.com/relabs-tech/inertial_scope/internal/chart"
	"github.com/relabs-tech/inertial_scope/internal/link"
	"github.com/relabs-tech/inertial_scope/internal/telemetry"
)

// ChartStatus describes one chart for viewers.
type ChartStatus struct {
	Key      string             `json:"key"`
	Title    string             `json:"title"`
	Labels   []string           `json:"labels"`
	Mode     string             `json:"mode"`
	Scale    float64            `json:"scale,omitempty"`
	Range    chart.DisplayRange `json:"range"`
	Samples  int                `json:"samples"`
	Capacity int                `json:"capacity"`
	Surface  chart.Surface      `json:"surface"`
	Requests uint64             `json:"draw_requests"`
	Draws    uint64             `json:"draws"`
}

// Status is the pipeline state published to viewers.
type Status struct {
	State      link.State                `json:"state"`
	StateText  string                    `json:"state_text"`
	StateColor string                    `json:"state_color"`
	Device     string                    `json:"device"`
	Paused     bool                      `json:"paused"`
	Metrics    telemetry.MetricsSnapshot `json:"metrics"`
	Charts     []ChartStatus             `json:"charts"`
	Events     []link.Entry              `json:"events"`
	UpdatedAt  time.Time                 `json:"updated_at"`
}

// FrameStore holds the last drawn frame of every chart plus the latest
// status. It is the only pipeline state read outside the pipeline goroutine.
type FrameStore struct {
	mu     sync.RWMutex
	frames map[string]*image.RGBA
	status Status
	events []link.Entry
}

// NewFrameStore creates an empty store.
func NewFrameStore() *FrameStore {
	return &FrameStore{frames: make(map[string]*image.RGBA)}
}

func (s *FrameStore) putFrame(key string, src *image.RGBA) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dst := s.frames[key]
	if dst == nil || dst.Rect != src.Rect {
		dst = image.NewRGBA(src.Rect)
		s.frames[key] = dst
	}
	copy(dst.Pix, src.Pix)
}

func (s *FrameStore) putStatus(st Status, events []link.Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = st
	if events != nil {
		s.events = events
	}
}

// HasFrame reports whether key has been drawn at least once.
func (s *FrameStore) HasFrame(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.frames[key]
	return ok
}

// EncodePNG writes the last frame of key as PNG. It returns false when the
// chart has not been drawn yet.
func (s *FrameStore) EncodePNG(key string, w io.Writer) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	img, ok := s.frames[key]
	if !ok {
		return false, nil
	}
	return true, png.Encode(w, img)
}

// Status returns the latest published status.
func (s *FrameStore) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Events returns the whole event log, oldest first.
func (s *FrameStore) Events() []link.Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]link.Entry, len(s.events))
	copy(out, s.events)
	return out
}
