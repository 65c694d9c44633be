// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package ring

import (
	"errors"
	"fmt"
)

// ErrBatchMismatch is returned when a batch does not carry one equally long
// slice per channel of the group.
var ErrBatchMismatch = errors.New("ring: batch channel lengths differ")

// Group is a set of sample buffers that share one capacity and are always
// the same length, so that index i refers to the same arrival on every axis.
type Group struct {
	capacity int
	channels []*Buffer[float64]
}

// NewGroup creates a group of n channels (at least one) of the given capacity.
func NewGroup(n, capacity int) *Group {
	if n < 1 {
		n = 1
	}
	g := &Group{channels: make([]*Buffer[float64], n)}
	for i := range g.channels {
		g.channels[i] = New[float64](capacity)
	}
	g.capacity = g.channels[0].Cap()
	return g
}

// PushBatch appends batch[c] to channel c for every channel. The write is
// all-or-nothing: when the channel count or any length differs the group is
// left untouched and ErrBatchMismatch is returned.
func (g *Group) PushBatch(batch [][]float64) error {
	if len(batch) != len(g.channels) {
		return fmt.Errorf("%w: got %d channels, want %d", ErrBatchMismatch, len(batch), len(g.channels))
	}
	n := len(batch[0])
	for c, values := range batch {
		if len(values) != n {
			return fmt.Errorf("%w: channel %d has %d samples, channel 0 has %d", ErrBatchMismatch, c, len(values), n)
		}
	}
	// Only the tail that can survive eviction needs to be written.
	from := 0
	if n > g.capacity {
		from = n - g.capacity
	}
	for c, values := range batch {
		for _, v := range values[from:] {
			g.channels[c].Push(v)
		}
	}
	return nil
}

// Len returns the shared length of all channels.
func (g *Group) Len() int { return g.channels[0].Len() }

// Cap returns the shared capacity.
func (g *Group) Cap() int { return g.capacity }

// NumChannels returns the channel count.
func (g *Group) NumChannels() int { return len(g.channels) }

// Channel returns the buffer of channel c.
func (g *Group) Channel(c int) *Buffer[float64] { return g.channels[c] }

// Snapshot copies every channel, oldest sample first.
func (g *Group) Snapshot() [][]float64 {
	out := make([][]float64, len(g.channels))
	for c, ch := range g.channels {
		out[c] = ch.Values()
	}
	return out
}

// SnapshotInto is Snapshot reusing the slices of dst, which it returns
// resized. Callers that redraw every frame keep dst between calls.
func (g *Group) SnapshotInto(dst [][]float64) [][]float64 {
	n := g.NumChannels()
	if cap(dst) < n {
		dst = make([][]float64, n)
	}
	dst = dst[:n]
	for c, ch := range g.channels {
		dst[c] = ch.AppendTo(dst[c][:0])
	}
	return dst
}

// Clear empties every channel.
func (g *Group) Clear() {
	for _, ch := range g.channels {
		ch.Clear()
	}
}
