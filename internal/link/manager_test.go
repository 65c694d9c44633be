package link

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeConn struct {
	msgs      chan []byte
	fail      chan error
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{msgs: make(chan []byte, 16), fail: make(chan error, 1), closed: make(chan struct{})}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case m := <-c.msgs:
		return websocket.TextMessage, m, nil
	case err := <-c.fail:
		return 0, nil, err
	case <-c.closed:
		return 0, nil, net.ErrClosed
	}
}

func (c *fakeConn) SetReadDeadline(time.Time) error { return nil }

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

type fakeDialer struct {
	conns chan *fakeConn
	err   error
	dials atomic.Int32
	urls  chan string
}

func (d *fakeDialer) Dial(ctx context.Context, url string) (Conn, error) {
	d.dials.Add(1)
	d.urls <- url
	if d.err != nil {
		return nil, d.err
	}
	select {
	case c := <-d.conns:
		return c, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type recordingSink struct {
	events chan Event
	msgs   chan []byte
}

func newRecordingSink() *recordingSink {
	return &recordingSink{events: make(chan Event, 64), msgs: make(chan []byte, 64)}
}

func (s *recordingSink) OnEvent(e Event)    { s.events <- e }
func (s *recordingSink) OnMessage(b []byte) { s.msgs <- b }

// nextTransition skips info events and returns the next state change.
func (s *recordingSink) nextTransition(t *testing.T) Event {
	t.Helper()
	for {
		select {
		case e := <-s.events:
			if !e.Info {
				return e
			}
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for transition")
		}
	}
}

func (s *recordingSink) assertQuiet(t *testing.T, d time.Duration) {
	t.Helper()
	select {
	case e := <-s.events:
		t.Fatalf("unexpected event %+v", e)
	case <-time.After(d):
	}
}

type managerFixture struct {
	m      *Manager
	dialer *fakeDialer
	sink   *recordingSink
	delays chan time.Duration
	tick   chan time.Time
	cancel context.CancelFunc
	done   chan error
}

func startManager(t *testing.T, dialErr error) *managerFixture {
	f := &managerFixture{
		dialer: &fakeDialer{conns: make(chan *fakeConn, 4), err: dialErr, urls: make(chan string, 16)},
		sink:   newRecordingSink(),
		delays: make(chan time.Duration, 4),
		tick:   make(chan time.Time),
		done:   make(chan error, 1),
	}
	f.m = NewManager(zaptest.NewLogger(t), Options{DataPath: "/ws/data", ReconnectDelay: 3 * time.Second},
		StaticResolver{Host: "192.168.4.1"}, f.dialer, f.sink)
	f.m.after = func(d time.Duration) <-chan time.Time {
		f.delays <- d
		return f.tick
	}

	ctx, cancel := context.WithCancel(context.Background())
	f.cancel = cancel
	go func() { f.done <- f.m.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-f.done:
		case <-time.After(2 * time.Second):
			t.Error("manager did not stop")
		}
	})
	return f
}

func TestManagerConnectsAndDeliversMessages(t *testing.T) {
	f := startManager(t, nil)
	conn := newFakeConn()
	f.dialer.conns <- conn

	first := <-f.sink.events
	assert.True(t, first.Info)
	assert.Equal(t, "Device IP: 192.168.4.1", first.Message)
	assert.NotEmpty(t, first.SessionID)

	assert.Equal(t, Connecting, f.sink.nextTransition(t).State)
	assert.Equal(t, "ws://192.168.4.1/ws/data", <-f.dialer.urls)
	assert.Equal(t, Connected, f.sink.nextTransition(t).State)

	conn.msgs <- []byte(`{"chunks":{}}`)
	select {
	case m := <-f.sink.msgs:
		assert.Equal(t, `{"chunks":{}}`, string(m))
	case <-time.After(2 * time.Second):
		t.Fatal("message not delivered")
	}
}

func TestManagerUnexpectedCloseReconnectsAfterFixedDelay(t *testing.T) {
	f := startManager(t, nil)
	first := newFakeConn()
	f.dialer.conns <- first

	require.Equal(t, Connecting, f.sink.nextTransition(t).State)
	require.Equal(t, Connected, f.sink.nextTransition(t).State)

	first.fail <- &websocket.CloseError{Code: websocket.CloseAbnormalClosure, Text: "unexpected EOF"}

	closed := f.sink.nextTransition(t)
	assert.Equal(t, Disconnected, closed.State)
	var terr *TransportError
	assert.True(t, errors.As(closed.Err, &terr))

	select {
	case d := <-f.delays:
		assert.Equal(t, 3*time.Second, d)
	case <-time.After(2 * time.Second):
		t.Fatal("reconnect delay not scheduled")
	}

	// Nothing happens until the delay elapses.
	f.sink.assertQuiet(t, 100*time.Millisecond)
	assert.Equal(t, int32(1), f.dialer.dials.Load())

	second := newFakeConn()
	f.dialer.conns <- second
	f.tick <- time.Now()

	assert.Equal(t, Connecting, f.sink.nextTransition(t).State)
	assert.Equal(t, Connected, f.sink.nextTransition(t).State)
	assert.Equal(t, int32(2), f.dialer.dials.Load())
}

func TestManagerDialFailureIsErrorAndRetriesForever(t *testing.T) {
	f := startManager(t, errors.New("connection refused"))

	for attempt := 0; attempt < 3; attempt++ {
		assert.Equal(t, Connecting, f.sink.nextTransition(t).State)
		failed := f.sink.nextTransition(t)
		assert.Equal(t, Error, failed.State)
		assert.Contains(t, failed.Message, "connection refused")

		assert.Equal(t, 3*time.Second, <-f.delays, "delay must not grow")
		f.tick <- time.Now()
	}
	assert.Equal(t, Connecting, f.sink.nextTransition(t).State)
}

func TestManagerSocketFailureIsError(t *testing.T) {
	f := startManager(t, nil)
	conn := newFakeConn()
	f.dialer.conns <- conn
	require.Equal(t, Connecting, f.sink.nextTransition(t).State)
	require.Equal(t, Connected, f.sink.nextTransition(t).State)

	conn.fail <- errors.New("i/o timeout")
	assert.Equal(t, Error, f.sink.nextTransition(t).State)
}

func TestManagerRestartSkipsPendingDelay(t *testing.T) {
	f := startManager(t, nil)
	first := newFakeConn()
	f.dialer.conns <- first
	require.Equal(t, Connecting, f.sink.nextTransition(t).State)
	require.Equal(t, Connected, f.sink.nextTransition(t).State)

	first.fail <- &websocket.CloseError{Code: websocket.CloseNormalClosure}
	require.Equal(t, Disconnected, f.sink.nextTransition(t).State)
	<-f.delays

	f.dialer.conns <- newFakeConn()
	f.m.Restart()

	assert.Equal(t, Connecting, f.sink.nextTransition(t).State)
	assert.Equal(t, Connected, f.sink.nextTransition(t).State)
}

func TestManagerRestartReplacesLiveSession(t *testing.T) {
	f := startManager(t, nil)
	first := newFakeConn()
	f.dialer.conns <- first
	require.Equal(t, Connecting, f.sink.nextTransition(t).State)
	require.Equal(t, Connected, f.sink.nextTransition(t).State)

	second := newFakeConn()
	f.dialer.conns <- second
	f.m.Restart()

	assert.Equal(t, Disconnected, f.sink.nextTransition(t).State)
	select {
	case <-first.closed:
	default:
		t.Fatal("old session must be closed before the new one opens")
	}
	assert.Equal(t, Connecting, f.sink.nextTransition(t).State)
	assert.Equal(t, Connected, f.sink.nextTransition(t).State)
	assert.Empty(t, f.delays, "restart must not wait for the reconnect delay")
}

func TestManagerStopsOnCancel(t *testing.T) {
	f := startManager(t, nil)
	f.dialer.conns <- newFakeConn()
	require.Equal(t, Connecting, f.sink.nextTransition(t).State)
	require.Equal(t, Connected, f.sink.nextTransition(t).State)

	f.cancel()
	select {
	case err := <-f.done:
		assert.ErrorIs(t, err, context.Canceled)
		f.done <- err
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
}
