// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package link

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/relabs-tech/inertial_scope/internal/metrics"
)

// Sink receives everything a session produces, in order, from the
// manager goroutine.
type Sink interface {
	OnEvent(Event)
	OnMessage(data []byte)
}

// Options configures a Manager.
type Options struct {
	// Scheme is "ws" or "wss".
	Scheme string
	// DataPath is the streaming endpoint, e.g. "/ws/data".
	DataPath string
	// ReconnectDelay is the constant pause between sessions.
	ReconnectDelay time.Duration
	// ReadTimeout closes a session that stays silent this long; 0 disables it.
	ReadTimeout time.Duration
}

// Manager owns the transport session lifecycle:
//
//	Connecting -> Connected -> Disconnected | Error -> (delay) -> Connecting
//
// It retries forever with a constant delay. Sessions never overlap: the
// next one starts only after the previous connection is closed.
type Manager struct {
	logger   *zap.Logger
	opts     Options
	resolver Resolver
	dialer   Dialer
	sink     Sink

	restart chan struct{}
	now     func() time.Time
	after   func(time.Duration) <-chan time.Time
}

// NewManager creates a manager. Run starts it.
func NewManager(logger *zap.Logger, opts Options, resolver Resolver, dialer Dialer, sink Sink) *Manager {
	if opts.Scheme == "" {
		opts.Scheme = "ws"
	}
	if opts.DataPath == "" {
		opts.DataPath = "/ws/data"
	}
	return &Manager{
		logger:   logger,
		opts:     opts,
		resolver: resolver,
		dialer:   dialer,
		sink:     sink,
		restart:  make(chan struct{}, 1),
		now:      time.Now,
		after:    time.After,
	}
}

// Restart drops the current session, or the pending reconnect delay, and
// connects again right away.
func (m *Manager) Restart() {
	select {
	case m.restart <- struct{}{}:
	default:
	}
}

// Run keeps sessions going until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) error {
	for {
		restarted := m.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if restarted {
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.restart:
			m.logger.Info("reconnect delay skipped by restart")
		case <-m.after(m.opts.ReconnectDelay):
		}
	}
}

// session runs one resolve/dial/read cycle and reports whether it ended
// because of Restart.
func (m *Manager) session(ctx context.Context) bool {
	// A restart requested before this session started is served by it.
	select {
	case <-m.restart:
	default:
	}

	id := uuid.NewString()
	log := m.logger.With(zap.String("session", id))

	host, err := m.resolver.Resolve(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		log.Warn("device address lookup failed, using origin", zap.String("host", host), zap.Error(err))
		m.info(id, fmt.Sprintf("Failed to get device IP: %v", err))
	} else {
		m.info(id, "Device IP: "+host)
	}

	url := m.opts.Scheme + "://" + host + m.opts.DataPath
	m.transition(id, Connecting, "Connecting to "+url, nil)

	conn, err := m.dialer.Dial(ctx, url)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		metrics.RecordConnectAttempt("error")
		terr := &TransportError{Op: "dial", URL: url, Err: err}
		log.Warn("connect failed", zap.Error(terr))
		m.transition(id, Error, "WebSocket error: "+err.Error(), terr)
		return false
	}
	metrics.RecordConnectAttempt("ok")
	log.Info("connected", zap.String("url", url))
	m.transition(id, Connected, "WebSocket connected from "+host, nil)

	// Closing the connection is the only way to unblock ReadMessage.
	done := make(chan struct{})
	restarted := make(chan bool, 1)
	go func() {
		r := false
		select {
		case <-ctx.Done():
		case <-m.restart:
			r = true
		case <-done:
		}
		conn.Close()
		restarted <- r
	}()

	readErr := m.readLoop(conn)
	close(done)
	wasRestart := <-restarted

	switch {
	case ctx.Err() != nil:
		m.transition(id, Disconnected, "WebSocket closed", nil)
	case wasRestart:
		m.transition(id, Disconnected, "WebSocket closed for reconnect", nil)
	case isClose(readErr):
		log.Info("session closed", zap.Error(readErr))
		m.transition(id, Disconnected, "WebSocket closed: "+readErr.Error(), &TransportError{Op: "read", URL: url, Err: readErr})
	default:
		terr := &TransportError{Op: "read", URL: url, Err: readErr}
		log.Warn("session failed", zap.Error(terr))
		m.transition(id, Error, "WebSocket error: "+readErr.Error(), terr)
	}
	return wasRestart
}

func (m *Manager) readLoop(conn Conn) error {
	for {
		if m.opts.ReadTimeout > 0 {
			if err := conn.SetReadDeadline(m.now().Add(m.opts.ReadTimeout)); err != nil {
				return err
			}
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		m.sink.OnMessage(data)
	}
}

func (m *Manager) transition(id string, state State, message string, err error) {
	metrics.SetConnectionState(state.String(), stateNames())
	m.sink.OnEvent(Event{State: state, Message: message, SessionID: id, At: m.now(), Err: err})
}

func (m *Manager) info(id, message string) {
	m.sink.OnEvent(Event{Info: true, Message: message, SessionID: id, At: m.now()})
}

// isClose reports whether err ended the session with a close of the
// connection rather than a socket failure.
func isClose(err error) bool {
	var ce *websocket.CloseError
	return errors.As(err, &ce)
}

func stateNames() []string {
	names := make([]string, len(States))
	for i, s := range States {
		names[i] = s.String()
	}
	return names
}
