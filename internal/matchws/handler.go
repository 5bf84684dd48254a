package matchws

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"github.com/park285/cheese-arena/internal/msgcat"
	"github.com/park285/cheese-arena/internal/obslog"
	"github.com/park285/cheese-arena/internal/room"
)

const (
	readLimit           = 16 << 10
	teardownTimeout     = 5 * time.Second
	defaultPingInterval = 30 * time.Second
)

var errMalformed = errors.New("malformed message")

type inbound struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type createRoomData struct {
	Color string `json:"color"`
}

type joinRoomData struct {
	RoomCode string `json:"roomCode"`
}

type moveData struct {
	RoomCode string          `json:"roomCode"`
	Move     json.RawMessage `json:"move"`
}

type Options struct {
	// OriginPatterns lists extra hosts allowed to open cross-origin connections.
	OriginPatterns []string
	PingInterval   time.Duration
	Catalog        *msgcat.Catalog
}

// Handler upgrades GET /ws and runs the room protocol for each connection.
type Handler struct {
	hub   *Hub
	rooms *room.Manager
	cat   *msgcat.Catalog
	opts  Options
}

func NewHandler(hub *Hub, rooms *room.Manager, opts Options) *Handler {
	if opts.PingInterval == 0 {
		opts.PingInterval = defaultPingInterval
	}
	cat := opts.Catalog
	if cat == nil {
		cat = msgcat.Default()
	}
	return &Handler{hub: hub, rooms: rooms, cat: cat, opts: opts}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.opts.OriginPatterns,
	})
	if err != nil {
		obslog.L().Warn("ws_accept_failed", zap.String("remote", r.RemoteAddr), zap.Error(err))
		return
	}
	conn.SetReadLimit(readLimit)

	c := newClient(uuid.NewString(), conn)
	h.hub.add(c)
	obslog.L().Info("ws_connect", zap.String("conn_id", c.id), zap.String("remote", r.RemoteAddr))

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go c.writeLoop(ctx, h.opts.PingInterval)

	h.readLoop(ctx, c)

	h.hub.remove(c.id)
	c.shutdown(websocket.StatusNormalClosure, "")

	// the request context is already done here
	tctx, tcancel := context.WithTimeout(context.Background(), teardownTimeout)
	defer tcancel()
	if err := h.rooms.Disconnect(tctx, c.id); err != nil {
		obslog.L().Warn("ws_disconnect_teardown_failed", zap.String("conn_id", c.id), zap.Error(err))
	}
	obslog.L().Info("ws_disconnect", zap.String("conn_id", c.id))
}

func (h *Handler) readLoop(ctx context.Context, c *client) {
	for {
		typ, raw, err := c.conn.Read(ctx)
		if err != nil {
			if status := websocket.CloseStatus(err); status == -1 {
				obslog.L().Debug("ws_read_ended", zap.String("conn_id", c.id), zap.Error(err))
			}
			return
		}
		if typ != websocket.MessageText {
			h.reportError(c, errMalformed)
			continue
		}
		var env inbound
		if err := json.Unmarshal(raw, &env); err != nil || env.Event == "" {
			h.reportError(c, errMalformed)
			continue
		}
		if err := h.dispatch(ctx, c, env); err != nil {
			h.reportError(c, err)
		}
	}
}

func (h *Handler) dispatch(ctx context.Context, c *client, env inbound) error {
	switch env.Event {
	case room.EventCreateRoom:
		var d createRoomData
		if !decodeOrString(env.Data, &d, &d.Color) {
			return errMalformed
		}
		_, err := h.rooms.Create(ctx, c.id, room.Color(d.Color))
		return err

	case room.EventJoinRoom:
		var d joinRoomData
		if !decodeOrString(env.Data, &d, &d.RoomCode) {
			return errMalformed
		}
		_, err := h.rooms.Join(ctx, c.id, d.RoomCode)
		return err

	case room.EventMove:
		var d moveData
		if err := json.Unmarshal(env.Data, &d); err != nil || len(d.Move) == 0 || bytes.Equal(d.Move, []byte("null")) {
			return errMalformed
		}
		return h.rooms.RelayMove(ctx, c.id, d.RoomCode, d.Move)
	}
	return errMalformed
}

// decodeOrString accepts either the object form {"field": "..."} or a bare JSON string.
func decodeOrString(raw json.RawMessage, obj any, field *string) bool {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return false
	}
	if raw[0] == '"' {
		return json.Unmarshal(raw, field) == nil
	}
	return json.Unmarshal(raw, obj) == nil
}

func (h *Handler) reportError(c *client, err error) {
	key, fallback := "room.internal", "Something went wrong, please try again"
	switch {
	case errors.Is(err, room.ErrRoomNotFound):
		key, fallback = "room.not_found", "Invalid Room Code"
	case errors.Is(err, room.ErrRoomFull):
		key, fallback = "room.full", "Room is full"
	case errors.Is(err, room.ErrAlreadyInRoom):
		key, fallback = "room.already_joined", "You are already in a room"
	case errors.Is(err, room.ErrInvalidColor):
		key, fallback = "room.bad_color", "Color must be white or black"
	case errors.Is(err, room.ErrNotParticipant):
		key, fallback = "room.not_participant", "You are not in this room"
	case errors.Is(err, errMalformed):
		key, fallback = "room.malformed", "Malformed message"
	default:
		obslog.L().Error("ws_request_failed", zap.String("conn_id", c.id), zap.Error(err))
	}
	h.hub.Notify(c.id, room.EventErrorMessage, h.cat.Text(key, nil, fallback))
}
