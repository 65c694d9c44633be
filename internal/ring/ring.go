// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package ring provides the fixed-capacity FIFO buffers that hold the
// visible history of every channel.
package ring

// Buffer is a fixed-capacity FIFO. Pushing into a full buffer evicts the
// oldest element. Memory is allocated once at construction.
type Buffer[T any] struct {
	buf   []T
	start int
	len   int
}

// New creates a buffer holding at most capacity elements.
// A capacity below 1 is raised to 1.
func New[T any](capacity int) *Buffer[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Buffer[T]{buf: make([]T, capacity)}
}

// Push appends v, evicting the oldest element when the buffer is full.
func (b *Buffer[T]) Push(v T) {
	c := len(b.buf)
	if b.len < c {
		b.buf[(b.start+b.len)%c] = v
		b.len++
		return
	}
	b.buf[b.start] = v
	b.start = (b.start + 1) % c
}

// Len returns the number of retained elements.
func (b *Buffer[T]) Len() int { return b.len }

// Cap returns the fixed capacity.
func (b *Buffer[T]) Cap() int { return len(b.buf) }

// At returns the i-th element counted from the oldest.
func (b *Buffer[T]) At(i int) (T, bool) {
	var zero T
	if i < 0 || i >= b.len {
		return zero, false
	}
	return b.buf[(b.start+i)%len(b.buf)], true
}

// Values returns the retained elements oldest first.
// The returned slice is a copy and may be kept by the caller.
func (b *Buffer[T]) Values() []T {
	out := make([]T, b.len)
	b.Do(func(i int, v T) { out[i] = v })
	return out
}

// AppendTo appends the retained elements, oldest first, to dst.
func (b *Buffer[T]) AppendTo(dst []T) []T {
	b.Do(func(_ int, v T) { dst = append(dst, v) })
	return dst
}

// Do calls fn for each retained element, oldest first, without copying.
func (b *Buffer[T]) Do(fn func(i int, v T)) {
	c := len(b.buf)
	for i := 0; i < b.len; i++ {
		fn(i, b.buf[(b.start+i)%c])
	}
}

// Clear empties the buffer. Capacity is unchanged.
func (b *Buffer[T]) Clear() {
	var zero T
	for i := range b.buf {
		b.buf[i] = zero
	}
	b.start = 0
	b.len = 0
}
