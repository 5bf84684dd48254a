package room

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/park285/cheese-arena/internal/obslog"
)

const maxCodeAttempts = 32

type Option func(*Manager)

func WithArchiver(a Archiver) Option { return func(m *Manager) { m.archive = a } }

func WithCodeSource(src CodeSource) Option { return func(m *Manager) { m.codes = src } }

func WithClock(now func() time.Time) Option { return func(m *Manager) { m.now = now } }

// Manager is the server-side authority over rooms: it owns creation, joining,
// move relay and teardown, and tells connections what happened through the Notifier.
type Manager struct {
	store   Store
	notify  Notifier
	archive Archiver
	codes   CodeSource
	now     func() time.Time
	locks   *roomLocks
}

func NewManager(store Store, notify Notifier, opts ...Option) *Manager {
	m := &Manager{
		store:  store,
		notify: notify,
		codes:  randomCode,
		now:    time.Now,
		locks:  newRoomLocks(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create opens a room for connID playing color and tells the creator its code.
func (m *Manager) Create(ctx context.Context, connID string, color Color) (*Room, error) {
	color = Color(strings.ToLower(strings.TrimSpace(string(color))))
	if !color.Valid() {
		return nil, ErrInvalidColor
	}
	if err := m.ensureFree(ctx, connID); err != nil {
		return nil, err
	}

	for i := 0; i < maxCodeAttempts; i++ {
		code, err := m.codes()
		if err != nil {
			return nil, fmt.Errorf("generate room code: %w", err)
		}
		r := &Room{
			Code:         code,
			State:        StateAwaitingOpponent,
			Participants: []Participant{{ConnID: connID, Color: color}},
			CreatedAt:    m.now(),
		}
		ok, err := m.store.Reserve(ctx, r)
		if err != nil {
			return nil, err
		}
		if !ok {
			obslog.L().Debug("room_code_collision", zap.String("code", code))
			continue
		}
		if err := m.store.AddMember(ctx, connID, code); err != nil {
			if _, derr := m.store.Delete(ctx, code); derr != nil {
				obslog.L().Warn("room_create_rollback_failed", zap.String("code", code), zap.Error(derr))
			}
			return nil, err
		}
		obslog.L().Info("room_create", zap.String("code", code), zap.String("conn_id", connID), zap.String("color", string(color)))
		m.notify.Notify(connID, EventRoomCreated, RoomCreated{RoomCode: code})
		return r, nil
	}
	return nil, fmt.Errorf("failed to allocate room code")
}

// Join seats connID opposite the creator. Both participants receive start_game, creator first.
// Failed joins leave every room untouched.
func (m *Manager) Join(ctx context.Context, connID, code string) (*Room, error) {
	code = strings.TrimSpace(code)
	if !ValidCode(code) {
		return nil, ErrRoomNotFound
	}
	if err := m.ensureFree(ctx, connID); err != nil {
		return nil, err
	}
	unlock := m.locks.lock(code)
	defer unlock()

	r, err := m.store.Update(ctx, code, func(r *Room) error {
		if r.State != StateAwaitingOpponent || len(r.Participants) != 1 {
			return ErrRoomFull
		}
		r.Participants = append(r.Participants, Participant{
			ConnID: connID,
			Color:  r.Participants[0].Color.Opposite(),
		})
		r.State = StateActive
		return nil
	})
	if err != nil {
		obslog.L().Info("room_join_rejected", zap.String("code", code), zap.String("conn_id", connID), zap.Error(err))
		return nil, err
	}
	if err := m.store.AddMember(ctx, connID, code); err != nil {
		return nil, err
	}
	// another process sharing the store may have torn the room down since Update
	if cur, err := m.store.Load(ctx, code); err != nil || cur == nil {
		if rerr := m.store.RemoveMember(ctx, connID, code); rerr != nil {
			obslog.L().Warn("room_index_cleanup_failed", zap.String("code", code), zap.String("conn_id", connID), zap.Error(rerr))
		}
		if err != nil {
			return nil, err
		}
		obslog.L().Info("room_join_lost", zap.String("code", code), zap.String("conn_id", connID))
		return nil, ErrRoomNotFound
	}

	obslog.L().Info("room_join", zap.String("code", code), zap.String("conn_id", connID))
	start := StartGame{RoomCode: code, Players: r.Participants}
	for _, p := range r.Participants {
		m.notify.Notify(p.ConnID, EventStartGame, start)
	}
	return r, nil
}

// RelayMove forwards payload unchanged to the sender's opponent. Legality is not checked.
func (m *Manager) RelayMove(ctx context.Context, connID, code string, payload json.RawMessage) error {
	code = strings.TrimSpace(code)
	r, err := m.store.Load(ctx, code)
	if err != nil {
		return err
	}
	if r == nil {
		return ErrRoomNotFound
	}
	if _, ok := r.participant(connID); !ok {
		return ErrNotParticipant
	}

	if mv, ok := decodeMove(payload); ok {
		if err := m.store.AppendMove(ctx, code, mv); err != nil {
			obslog.L().Warn("room_move_log_failed", zap.String("code", code), zap.Error(err))
		}
	}
	for _, p := range r.others(connID) {
		m.notify.Notify(p.ConnID, EventMove, payload)
	}
	return nil
}

// Disconnect tears down every room connID belongs to and tells the remaining participant.
func (m *Manager) Disconnect(ctx context.Context, connID string) error {
	codes, err := m.store.Memberships(ctx, connID)
	if err != nil {
		return err
	}
	for _, code := range codes {
		m.teardown(ctx, connID, code)
	}
	return m.store.ClearMemberships(ctx, connID)
}

func (m *Manager) teardown(ctx context.Context, connID, code string) {
	unlock := m.locks.lock(code)
	defer unlock()

	r, err := m.store.Delete(ctx, code)
	if err != nil {
		obslog.L().Warn("room_teardown_failed", zap.String("code", code), zap.Error(err))
		return
	}
	if r == nil {
		return
	}
	r.State = StateClosed
	for _, p := range r.others(connID) {
		m.notify.Notify(p.ConnID, EventOpponentDisconnected, nil)
		if err := m.store.RemoveMember(ctx, p.ConnID, code); err != nil {
			obslog.L().Warn("room_index_cleanup_failed", zap.String("code", code), zap.String("conn_id", p.ConnID), zap.Error(err))
		}
	}
	obslog.L().Info("room_close", zap.String("code", code), zap.String("conn_id", connID), zap.Int("moves", len(r.Moves)))
	m.archiveRoom(ctx, r)
}

func (m *Manager) Get(ctx context.Context, code string) (*Room, error) {
	r, err := m.store.Load(ctx, strings.TrimSpace(code))
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, ErrRoomNotFound
	}
	return r, nil
}

// Live is the number of open rooms.
func (m *Manager) Live(ctx context.Context) (int, error) {
	return m.store.Count(ctx)
}

func (m *Manager) ensureFree(ctx context.Context, connID string) error {
	codes, err := m.store.Memberships(ctx, connID)
	if err != nil {
		return err
	}
	if len(codes) > 0 {
		return ErrAlreadyInRoom
	}
	return nil
}

func (m *Manager) archiveRoom(ctx context.Context, r *Room) {
	if m.archive == nil || len(r.Moves) == 0 {
		return
	}
	if err := m.archive.SaveMatch(ctx, r); err != nil {
		obslog.L().Warn("room_archive_failed", zap.String("code", r.Code), zap.Error(err))
	}
}
