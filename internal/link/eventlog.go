// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package link

import (
	"fmt"
	"time"

	"github.com/relabs-tech/inertial_scope/internal/ring"
)

// Entry is one timestamped line of the event log.
type Entry struct {
	At      time.Time `json:"at"`
	Message string    `json:"message"`
}

func (e Entry) String() string {
	return fmt.Sprintf("[%s] %s", e.At.Format("15:04:05"), e.Message)
}

// EventLog is a bounded log; past its capacity the oldest entry is evicted.
type EventLog struct {
	buf *ring.Buffer[Entry]
}

// NewEventLog creates a log keeping at most capacity entries.
func NewEventLog(capacity int) *EventLog {
	return &EventLog{buf: ring.New[Entry](capacity)}
}

// Add appends a message stamped with at.
func (l *EventLog) Add(at time.Time, message string) {
	l.buf.Push(Entry{At: at, Message: message})
}

// Len returns the number of entries.
func (l *EventLog) Len() int { return l.buf.Len() }

// Entries returns the entries oldest first.
func (l *EventLog) Entries() []Entry { return l.buf.Values() }

// Latest returns up to n entries, newest first.
func (l *EventLog) Latest(n int) []Entry {
	if n > l.buf.Len() {
		n = l.buf.Len()
	}
	out := make([]Entry, 0, n)
	for i := l.buf.Len() - 1; i >= 0 && len(out) < n; i-- {
		e, _ := l.buf.At(i)
		out = append(out, e)
	}
	return out
}
