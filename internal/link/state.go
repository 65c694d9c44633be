// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package link keeps the websocket session to the device alive.
package link

import (
	"fmt"
	"time"
)

// State is the connection state shown to the user.
type State int

const (
	Connecting State = iota
	Connected
	Error
	Disconnected
)

// States lists every state, in declaration order.
var States = []State{Connecting, Connected, Error, Disconnected}

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Error:
		return "error"
	case Disconnected:
		return "disconnected"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Text is the status caption.
func (s State) Text() string {
	switch s {
	case Connected:
		return "Connected"
	case Error:
		return "Error"
	case Disconnected:
		return "Disconnected"
	}
	return "Connecting..."
}

// Color is the status indicator color.
func (s State) Color() string {
	switch s {
	case Connected:
		return "#10b981"
	case Error:
		return "#ef4444"
	}
	return "#f59e0b"
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText decodes a state name.
func (s *State) UnmarshalText(b []byte) error {
	for _, st := range States {
		if st.String() == string(b) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown connection state %q", b)
}

// Event is emitted by the manager. Transitions carry the new state;
// Info events only annotate the log and leave the state alone.
type Event struct {
	State     State     `json:"state"`
	Info      bool      `json:"info,omitempty"`
	Message   string    `json:"message"`
	SessionID string    `json:"session_id,omitempty"`
	At        time.Time `json:"at"`
	Err       error     `json:"-"`
}
