// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package chart

// Scheduler coalesces redraw requests into at most one draw per refresh
// tick. Request may be called for every incoming batch; the owner calls
// Frame once per display refresh. The draw runs against whatever state
// exists when Frame fires, never the state at request time.
//
// Scheduler is not safe for concurrent use: it belongs to the goroutine
// that owns the buffers it draws.
type Scheduler struct {
	draw    func()
	pending bool

	requests uint64
	draws    uint64
}

// NewScheduler returns an idle scheduler that calls draw on fired frames.
func NewScheduler(draw func()) *Scheduler {
	return &Scheduler{draw: draw}
}

// Request marks a draw as pending. It is a no-op while one is pending.
func (s *Scheduler) Request() {
	s.requests++
	s.pending = true
}

// Pending reports whether a draw will run on the next Frame.
func (s *Scheduler) Pending() bool { return s.pending }

// Frame runs the pending draw, if any, and reports whether it drew.
// The scheduler is idle again before draw is called, so a request made
// from inside draw schedules the next frame.
func (s *Scheduler) Frame() bool {
	if !s.pending {
		return false
	}
	s.pending = false
	s.draws++
	s.draw()
	return true
}

// Requests returns the number of Request calls.
func (s *Scheduler) Requests() uint64 { return s.requests }

// Draws returns the number of draws performed.
func (s *Scheduler) Draws() uint64 { return s.draws }
