package matchws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/cheese-arena/internal/room"
)

type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	hub := NewHub()
	mgr := room.NewManager(room.NewMemoryStore(), hub)
	srv := httptest.NewServer(NewHandler(hub, mgr, Options{PingInterval: -1}))
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := wsjson.Write(ctx, conn, map[string]any{"event": event, "data": data}); err != nil {
		t.Fatalf("write %s: %v", event, err)
	}
}

func expect(t *testing.T, conn *websocket.Conn, event string) json.RawMessage {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var f frame
	if err := wsjson.Read(ctx, conn, &f); err != nil {
		t.Fatalf("read (want %s): %v", event, err)
	}
	if f.Event != event {
		t.Fatalf("event = %s (%s), want %s", f.Event, f.Data, event)
	}
	return f.Data
}

func expectError(t *testing.T, conn *websocket.Conn, want string) {
	t.Helper()
	var msg string
	if err := json.Unmarshal(expect(t, conn, room.EventErrorMessage), &msg); err != nil {
		t.Fatalf("error payload: %v", err)
	}
	if msg != want {
		t.Fatalf("error_message = %q, want %q", msg, want)
	}
}

func createRoom(t *testing.T, conn *websocket.Conn, color string) string {
	t.Helper()
	send(t, conn, room.EventCreateRoom, map[string]string{"color": color})
	var created room.RoomCreated
	if err := json.Unmarshal(expect(t, conn, room.EventRoomCreated), &created); err != nil {
		t.Fatalf("room_created payload: %v", err)
	}
	if !room.ValidCode(created.RoomCode) {
		t.Fatalf("room code %q", created.RoomCode)
	}
	return created.RoomCode
}

func TestCreateJoinStartsGameForBoth(t *testing.T) {
	srv := newTestServer(t)
	a, b := dial(t, srv), dial(t, srv)

	code := createRoom(t, a, "white")
	send(t, b, room.EventJoinRoom, map[string]string{"roomCode": code})

	for _, conn := range []*websocket.Conn{a, b} {
		var start room.StartGame
		if err := json.Unmarshal(expect(t, conn, room.EventStartGame), &start); err != nil {
			t.Fatalf("start_game payload: %v", err)
		}
		if start.RoomCode != code || len(start.Players) != 2 {
			t.Fatalf("start_game = %+v", start)
		}
		if start.Players[0].Color != room.White || start.Players[1].Color != room.Black {
			t.Fatalf("colors = %s/%s", start.Players[0].Color, start.Players[1].Color)
		}
	}
}

func TestMoveRelayedToOpponentOnly(t *testing.T) {
	srv := newTestServer(t)
	a, b := dial(t, srv), dial(t, srv)

	code := createRoom(t, a, "black")
	send(t, b, room.EventJoinRoom, code)
	expect(t, a, room.EventStartGame)
	expect(t, b, room.EventStartGame)

	send(t, b, room.EventMove, map[string]any{
		"roomCode": code,
		"move":     map[string]string{"from": "e2", "to": "e4"},
	})
	var mv room.Move
	if err := json.Unmarshal(expect(t, a, room.EventMove), &mv); err != nil {
		t.Fatalf("move payload: %v", err)
	}
	if mv.From != "e2" || mv.To != "e4" {
		t.Fatalf("relayed move = %+v", mv)
	}

	// the sender gets nothing back; the next frame it sees is its own error
	send(t, b, room.EventJoinRoom, map[string]string{"roomCode": code})
	expectError(t, b, "You are already in a room")
}

func TestDisconnectNotifiesAndClosesRoom(t *testing.T) {
	srv := newTestServer(t)
	a, b := dial(t, srv), dial(t, srv)

	code := createRoom(t, a, "white")
	send(t, b, room.EventJoinRoom, map[string]string{"roomCode": code})
	expect(t, a, room.EventStartGame)
	expect(t, b, room.EventStartGame)

	if err := a.Close(websocket.StatusNormalClosure, "bye"); err != nil {
		t.Fatalf("close: %v", err)
	}
	expect(t, b, room.EventOpponentDisconnected)

	c := dial(t, srv)
	send(t, c, room.EventJoinRoom, map[string]string{"roomCode": code})
	expectError(t, c, "Invalid Room Code")
}

func TestJoinFullRoom(t *testing.T) {
	srv := newTestServer(t)
	a, b, c := dial(t, srv), dial(t, srv), dial(t, srv)

	code := createRoom(t, a, "white")
	send(t, b, room.EventJoinRoom, map[string]string{"roomCode": code})
	expect(t, b, room.EventStartGame)

	send(t, c, room.EventJoinRoom, map[string]string{"roomCode": code})
	expectError(t, c, "Room is full")
}

func TestMalformedMessagesKeepConnectionOpen(t *testing.T) {
	srv := newTestServer(t)
	a := dial(t, srv)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.Write(ctx, websocket.MessageText, []byte("{not json")); err != nil {
		t.Fatalf("write: %v", err)
	}
	expectError(t, a, "Malformed message")

	send(t, a, "teleport", nil)
	expectError(t, a, "Malformed message")

	send(t, a, room.EventCreateRoom, map[string]string{"color": "green"})
	expectError(t, a, "Color must be white or black")

	createRoom(t, a, "white")
}

func TestHubCountsConnections(t *testing.T) {
	hub := NewHub()
	mgr := room.NewManager(room.NewMemoryStore(), hub)
	srv := httptest.NewServer(NewHandler(hub, mgr, Options{PingInterval: -1}))
	defer srv.Close()

	a := dial(t, srv)
	createRoom(t, a, "white")
	if got := hub.Count(); got != 1 {
		t.Fatalf("Count = %d, want 1", got)
	}
	_ = a.Close(websocket.StatusNormalClosure, "")

	deadline := time.Now().Add(5 * time.Second)
	for hub.Count() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("connection never released")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
