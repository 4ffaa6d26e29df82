package server

import (
	"errors"
	"net"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ayusman/squatcoach/internal/app"
)

func dialHUD(t *testing.T, url string) *websocket.Conn {
	t.Helper()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(url, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readState(t *testing.T, conn *websocket.Conn) app.State {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var st app.State
	if err := conn.ReadJSON(&st); err != nil {
		t.Fatalf("read state: %v", err)
	}
	return st
}

func TestHUDHandler_Broadcast(t *testing.T) {
	fake := newFakeApp()
	hud := NewHUDHandler(fake, 10*time.Millisecond, discardLogger())
	defer hud.Close()

	ts := httptest.NewServer(hud)
	defer ts.Close()

	conn := dialHUD(t, ts.URL)

	first := readState(t, conn)
	if first.Reps != 2 || first.SessionID != "s-1" || !first.Enabled {
		t.Errorf("unexpected initial state %+v", first)
	}

	fake.setReps(3)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if st := readState(t, conn); st.Reps == 3 {
			return
		}
	}
	t.Error("updated rep count was never broadcast")
}

func TestHUDHandler_Clients(t *testing.T) {
	hud := NewHUDHandler(newFakeApp(), time.Hour, discardLogger())
	defer hud.Close()

	ts := httptest.NewServer(hud)
	defer ts.Close()

	conn := dialHUD(t, ts.URL)
	readState(t, conn)

	if n := hud.Clients(); n != 1 {
		t.Errorf("Clients() = %d, want 1", n)
	}

	conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hud.Clients() != 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if n := hud.Clients(); n != 0 {
		t.Errorf("Clients() after close = %d, want 0", n)
	}
}

func TestHUDHandler_Close(t *testing.T) {
	hud := NewHUDHandler(newFakeApp(), 10*time.Millisecond, discardLogger())
	ts := httptest.NewServer(hud)
	defer ts.Close()

	conn := dialHUD(t, ts.URL)
	readState(t, conn)

	hud.Close()
	hud.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, _, err := conn.ReadMessage()
		if err == nil {
			continue
		}
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			t.Error("Close() should drop client connections")
		}
		return
	}
}

// scriptedConn records writes and fails them when err is set.
type scriptedConn struct {
	mu     sync.Mutex
	err    error
	writes int
	closed bool
}

func (c *scriptedConn) SetWriteDeadline(time.Time) error { return nil }

func (c *scriptedConn) WriteMessage(int, []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.writes++
	return nil
}

func (c *scriptedConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func TestHUDHandler_DropsFailedClients(t *testing.T) {
	hud := NewHUDHandler(newFakeApp(), time.Hour, discardLogger())
	defer hud.Close()

	healthy := &scriptedConn{}
	broken := &scriptedConn{err: errors.New("broken pipe")}
	hud.mu.Lock()
	hud.clients[healthy] = &sync.Mutex{}
	hud.clients[broken] = &sync.Mutex{}
	hud.mu.Unlock()

	hud.push([]byte(`{}`))

	if hud.Clients() != 1 {
		t.Errorf("Clients() = %d, want 1", hud.Clients())
	}
	if !broken.closed {
		t.Error("failed client was not closed")
	}
	if healthy.closed || healthy.writes != 1 {
		t.Errorf("healthy client: closed=%v writes=%d", healthy.closed, healthy.writes)
	}

	hud.push([]byte(`{}`))
	if healthy.writes != 2 {
		t.Errorf("healthy client writes = %d, want 2", healthy.writes)
	}
}
