package api

import (
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/thereceipt/printcounter/internal/controller"
)

func dialWS(t *testing.T, env *testEnv) *websocket.Conn {
	t.Helper()

	srv := httptest.NewServer(env.srv.Handler())
	t.Cleanup(srv.Close)

	u, _ := url.Parse(srv.URL)
	u.Scheme = "ws"
	u.Path = "/ws"

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) controller.Event {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev controller.Event
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read: %v", err)
	}
	return ev
}

func TestWebSocket_InitialStateAndPush(t *testing.T) {
	env := newTestEnv(t)
	conn := dialWS(t, env)

	ev := readEvent(t, conn)
	if ev.Type != controller.EventState || ev.Data.Mode != controller.ModeIdle {
		t.Fatalf("Unexpected initial event %+v", ev)
	}

	if err := env.ctrl.Increment(); err != nil {
		t.Fatalf("Increment failed: %v", err)
	}

	ev = readEvent(t, conn)
	if ev.Type != controller.EventState || ev.Data.Count != 1 {
		t.Errorf("Unexpected pushed event %+v", ev)
	}
}

func TestWebSocket_Command(t *testing.T) {
	env := newTestEnv(t)
	conn := dialWS(t, env)
	readEvent(t, conn)

	if err := conn.WriteJSON(WSMessage{Type: EventCommand, Command: "inc"}); err != nil {
		t.Fatalf("write: %v", err)
	}

	// The state push and the command response may arrive in either order
	var gotResponse bool
	for i := 0; i < 2; i++ {
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var msg WSMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read: %v", err)
		}
		if msg.Type == EventResponse {
			gotResponse = true
			if msg.Result == nil || !msg.Result.Success {
				t.Errorf("Unexpected result %+v", msg.Result)
			}
		}
	}
	if !gotResponse {
		t.Error("Expected a response message")
	}

	if err := conn.WriteJSON(WSMessage{Type: "nope"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg WSMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	if msg.Type != EventError {
		t.Errorf("Expected error message, got %+v", msg)
	}
}

func TestWebSocket_ClosedOnControllerClose(t *testing.T) {
	env := newTestEnv(t)
	conn := dialWS(t, env)
	readEvent(t, conn)

	env.ctrl.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Errorf("Expected going-away close, got %v", err)
	}
}
