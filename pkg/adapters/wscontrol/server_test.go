package wscontrol

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/user/stepcast/pkg/adapters/logger"
	"github.com/user/stepcast/pkg/session"
)

// fakeController mimics a session's pause/resume rules.
type fakeController struct {
	mu       sync.Mutex
	status   string
	stops    int
	watchers []func(session.Snapshot)
}

func newFakeController() *fakeController {
	return &fakeController{status: "recording"}
}

func (f *fakeController) set(status string) {
	f.mu.Lock()
	f.status = status
	watchers := append([]func(session.Snapshot){}, f.watchers...)
	f.mu.Unlock()

	snap := f.Snapshot()
	for _, fn := range watchers {
		fn(snap)
	}
}

func (f *fakeController) Pause() error {
	if f.Snapshot().Status != "recording" {
		return session.ErrNotRecording
	}
	f.set("paused")
	return nil
}

func (f *fakeController) Resume() error {
	if f.Snapshot().Status != "paused" {
		return session.ErrNotPaused
	}
	f.set("recording")
	return nil
}

func (f *fakeController) Stop() {
	f.mu.Lock()
	f.stops++
	f.mu.Unlock()
	f.set("stopped")
}

func (f *fakeController) Snapshot() session.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return session.Snapshot{ID: "test", Status: f.status, Running: f.status != "stopped"}
}

func (f *fakeController) Watch(fn func(session.Snapshot)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.watchers = append(f.watchers, fn)
	return func() {}
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/control"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func read(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var msg Message
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	return msg
}

func send(t *testing.T, conn *websocket.Conn, command string) {
	t.Helper()
	if err := conn.WriteJSON(Request{ID: command + "-1", Command: command}); err != nil {
		t.Fatalf("write failed: %v", err)
	}
}

func setup(t *testing.T) (*fakeController, *Server, *httptest.Server) {
	t.Helper()
	ctrl := newFakeController()
	s := New(ctrl, logger.NewNoop())
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		s.Close()
		srv.Close()
	})
	return ctrl, s, srv
}

func TestServer_InitialStatus(t *testing.T) {
	_, _, srv := setup(t)
	conn := dial(t, srv)

	msg := read(t, conn)
	if msg.Type != TypeStatus || msg.Session == nil || msg.Session.Status != "recording" {
		t.Errorf("expected initial recording status, got %+v", msg)
	}
}

func TestServer_PauseResume(t *testing.T) {
	ctrl, _, srv := setup(t)
	conn := dial(t, srv)
	read(t, conn)

	send(t, conn, CommandPause)
	// The status push from Watch and the command result may arrive in either order.
	got := map[string]Message{}
	for i := 0; i < 2; i++ {
		msg := read(t, conn)
		got[msg.Type] = msg
	}
	if r := got[TypeResult]; !r.OK || r.ID != "pause-1" || r.Command != CommandPause {
		t.Errorf("unexpected result %+v", r)
	}
	if st := got[TypeStatus]; st.Session == nil || st.Session.Status != "paused" {
		t.Errorf("expected paused status push, got %+v", st)
	}

	send(t, conn, CommandPause)
	r := read(t, conn)
	if r.OK || r.Error != session.ErrNotRecording.Error() {
		t.Errorf("expected not-recording error, got %+v", r)
	}
	if st := read(t, conn); st.Type != TypeStatus || st.Session.Status != "paused" {
		t.Errorf("expected status after failed command, got %+v", st)
	}

	send(t, conn, CommandResume)
	for i := 0; i < 2; i++ {
		read(t, conn)
	}
	if ctrl.Snapshot().Status != "recording" {
		t.Errorf("expected recording after resume, got %s", ctrl.Snapshot().Status)
	}
}

func TestServer_StopBroadcastsToAllClients(t *testing.T) {
	ctrl, s, srv := setup(t)
	a := dial(t, srv)
	b := dial(t, srv)
	read(t, a)
	read(t, b)

	deadline := time.Now().Add(3 * time.Second)
	for s.Clients() != 2 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	send(t, a, CommandStop)

	for {
		msg := read(t, b)
		if msg.Type == TypeStatus && msg.Session.Status == "stopped" {
			break
		}
	}
	ctrl.mu.Lock()
	stops := ctrl.stops
	ctrl.mu.Unlock()
	if stops != 1 {
		t.Errorf("expected one stop, got %d", stops)
	}
}

func TestServer_BadRequests(t *testing.T) {
	_, _, srv := setup(t)
	conn := dial(t, srv)
	read(t, conn)

	conn.WriteMessage(websocket.TextMessage, []byte("{not json"))
	if msg := read(t, conn); msg.Type != TypeResult || !strings.HasPrefix(msg.Error, "invalid request") {
		t.Errorf("expected invalid request error, got %+v", msg)
	}

	send(t, conn, "rewind")
	if msg := read(t, conn); msg.Error != ErrUnknownCommand.Error() {
		t.Errorf("expected unknown command error, got %+v", msg)
	}
}

func TestServer_StatusCommandAndEndpoint(t *testing.T) {
	_, _, srv := setup(t)
	conn := dial(t, srv)
	read(t, conn)

	send(t, conn, CommandStatus)
	if r := read(t, conn); !r.OK {
		t.Errorf("expected ok result, got %+v", r)
	}
	if st := read(t, conn); st.Type != TypeStatus {
		t.Errorf("expected status, got %+v", st)
	}

	resp, err := http.Get(srv.URL + "/status")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var snap session.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		t.Fatal(err)
	}
	if snap.ID != "test" || snap.Status != "recording" {
		t.Errorf("unexpected snapshot %+v", snap)
	}
}

func TestServer_ServeStopsOnCancel(t *testing.T) {
	ctrl := newFakeController()
	s := New(ctrl, logger.NewNoop())

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	url := "ws://" + ln.Addr().String() + "/control"
	var conn *websocket.Conn
	deadline := time.Now().Add(3 * time.Second)
	for {
		conn, _, err = websocket.DefaultDialer.Dial(url, nil)
		if err == nil || time.Now().After(deadline) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()
	read(t, conn)

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Serve did not return")
	}

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	if _, _, err := conn.ReadMessage(); !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Errorf("expected a normal close, got %v", err)
	}
}
