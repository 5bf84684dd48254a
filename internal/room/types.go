package room

import (
	"context"
	"encoding/json"
	"time"
)

// State is the lifecycle of a room. A code with no stored room is simply absent.
type State string

const (
	StateAwaitingOpponent State = "awaiting_opponent"
	StateActive           State = "active"
	StateClosed           State = "closed"
)

type Color string

const (
	White Color = "white"
	Black Color = "black"
)

func (c Color) Valid() bool { return c == White || c == Black }

func (c Color) Opposite() Color {
	if c == White {
		return Black
	}
	return White
}

type Participant struct {
	ConnID string `json:"id"`
	Color  Color  `json:"color"`
}

// Move is the decoded form of a relayed move, kept for the room's move log.
type Move struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Promotion string `json:"promotion,omitempty"`
}

// Room is stored as JSON under room:<code>. Moves live in a separate list.
type Room struct {
	Code         string        `json:"code"`
	State        State         `json:"state"`
	Participants []Participant `json:"participants"`
	CreatedAt    time.Time     `json:"created_at"`
	Moves        []Move        `json:"-"`
}

func (r *Room) participant(connID string) (Participant, bool) {
	for _, p := range r.Participants {
		if p.ConnID == connID {
			return p, true
		}
	}
	return Participant{}, false
}

func (r *Room) others(connID string) []Participant {
	out := make([]Participant, 0, 1)
	for _, p := range r.Participants {
		if p.ConnID != connID {
			out = append(out, p)
		}
	}
	return out
}

func (r *Room) clone() *Room {
	c := *r
	c.Participants = append([]Participant(nil), r.Participants...)
	c.Moves = append([]Move(nil), r.Moves...)
	return &c
}

// Event names of the client/server contract.
const (
	EventCreateRoom           = "create_room"
	EventJoinRoom             = "join_room"
	EventRoomCreated          = "room_created"
	EventStartGame            = "start_game"
	EventMove                 = "move"
	EventOpponentDisconnected = "opponent_disconnected"
	EventErrorMessage         = "error_message"
)

type RoomCreated struct {
	RoomCode string `json:"roomCode"`
}

type StartGame struct {
	RoomCode string        `json:"roomCode"`
	Players  []Participant `json:"players"`
}

// Notifier delivers an event to one connection. Delivery is fire-and-forget.
type Notifier interface {
	Notify(connID, event string, data any)
}

// Archiver persists a room's move log when the room is torn down.
type Archiver interface {
	SaveMatch(ctx context.Context, r *Room) error
}

// Errors
var (
	ErrRoomNotFound   = errf("room not found")
	ErrRoomFull       = errf("room is full")
	ErrAlreadyInRoom  = errf("connection already in a room")
	ErrInvalidColor   = errf("color must be white or black")
	ErrNotParticipant = errf("connection is not in this room")
)

type staticErr string

func (e staticErr) Error() string { return string(e) }
func errf(s string) error         { return staticErr(s) }

func decodeMove(raw json.RawMessage) (Move, bool) {
	var mv Move
	if err := json.Unmarshal(raw, &mv); err != nil || mv.From == "" || mv.To == "" {
		return Move{}, false
	}
	return mv, true
}
