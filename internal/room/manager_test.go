package room

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type sent struct {
	conn  string
	event string
	data  any
}

type recorder struct {
	mu  sync.Mutex
	out []sent
}

func (r *recorder) Notify(connID, event string, data any) {
	r.mu.Lock()
	r.out = append(r.out, sent{connID, event, data})
	r.mu.Unlock()
}

func (r *recorder) take() []sent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.out
	r.out = nil
	return out
}

type archiveSpy struct {
	mu    sync.Mutex
	rooms []*Room
}

func (a *archiveSpy) SaveMatch(_ context.Context, r *Room) error {
	a.mu.Lock()
	a.rooms = append(a.rooms, r)
	a.mu.Unlock()
	return nil
}

// storeFactories runs each test against both stores.
func storeFactories() map[string]func(t *testing.T) Store {
	return map[string]func(t *testing.T) Store{
		"memory": func(*testing.T) Store { return NewMemoryStore() },
		"redis": func(t *testing.T) Store {
			mr, err := miniredis.Run()
			if err != nil {
				t.Fatalf("miniredis: %v", err)
			}
			t.Cleanup(mr.Close)
			return NewRedisStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
		},
	}
}

func TestCreateJoinStartsGame(t *testing.T) {
	for name, newStore := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			rec := &recorder{}
			m := NewManager(newStore(t), rec)
			ctx := context.Background()

			r, err := m.Create(ctx, "A", White)
			if err != nil {
				t.Fatalf("Create: %v", err)
			}
			if !ValidCode(r.Code) || r.State != StateAwaitingOpponent {
				t.Fatalf("room = %+v", r)
			}
			out := rec.take()
			if len(out) != 1 || out[0].conn != "A" || out[0].event != EventRoomCreated {
				t.Fatalf("create notifications = %+v", out)
			}
			if out[0].data.(RoomCreated).RoomCode != r.Code {
				t.Fatalf("room_created payload = %+v", out[0].data)
			}

			joined, err := m.Join(ctx, "B", r.Code)
			if err != nil {
				t.Fatalf("Join: %v", err)
			}
			if joined.State != StateActive {
				t.Fatalf("state = %s", joined.State)
			}
			out = rec.take()
			if len(out) != 2 || out[0].conn != "A" || out[1].conn != "B" {
				t.Fatalf("start_game recipients = %+v", out)
			}
			start := out[0].data.(StartGame)
			want := []Participant{{"A", White}, {"B", Black}}
			if start.RoomCode != r.Code || len(start.Players) != 2 || start.Players[0] != want[0] || start.Players[1] != want[1] {
				t.Fatalf("start_game = %+v", start)
			}
		})
	}
}

func TestJoinerTakesOppositeOfBlackCreator(t *testing.T) {
	m := NewManager(NewMemoryStore(), &recorder{})
	ctx := context.Background()
	r, err := m.Create(ctx, "A", Black)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	joined, err := m.Join(ctx, "B", r.Code)
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	if joined.Participants[1].Color != White {
		t.Fatalf("joiner color = %s", joined.Participants[1].Color)
	}
}

func TestFailedJoinsDoNotMutate(t *testing.T) {
	for name, newStore := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			rec := &recorder{}
			m := NewManager(newStore(t), rec)
			ctx := context.Background()

			if _, err := m.Join(ctx, "C", "123456"); !errors.Is(err, ErrRoomNotFound) {
				t.Fatalf("join unknown = %v", err)
			}
			if _, err := m.Join(ctx, "C", "abc"); !errors.Is(err, ErrRoomNotFound) {
				t.Fatalf("join malformed = %v", err)
			}

			r, _ := m.Create(ctx, "A", White)
			if _, err := m.Join(ctx, "B", r.Code); err != nil {
				t.Fatalf("Join: %v", err)
			}
			rec.take()

			before, _ := m.Get(ctx, r.Code)
			if _, err := m.Join(ctx, "C", r.Code); !errors.Is(err, ErrRoomFull) {
				t.Fatalf("third join = %v", err)
			}
			after, _ := m.Get(ctx, r.Code)
			if len(after.Participants) != 2 || after.Participants[0] != before.Participants[0] || after.Participants[1] != before.Participants[1] {
				t.Fatalf("room mutated by failed join: %+v", after)
			}
			if out := rec.take(); len(out) != 0 {
				t.Fatalf("failed join notified: %+v", out)
			}

			// C can still create its own room afterwards
			if _, err := m.Create(ctx, "C", Black); err != nil {
				t.Fatalf("Create after failed join: %v", err)
			}
		})
	}
}

func TestSingleRoomMembership(t *testing.T) {
	m := NewManager(NewMemoryStore(), &recorder{})
	ctx := context.Background()
	r, _ := m.Create(ctx, "A", White)
	if _, err := m.Create(ctx, "A", Black); !errors.Is(err, ErrAlreadyInRoom) {
		t.Fatalf("second create = %v", err)
	}
	if _, err := m.Join(ctx, "A", r.Code); !errors.Is(err, ErrAlreadyInRoom) {
		t.Fatalf("self join = %v", err)
	}
}

func TestCreateRejectsBadColor(t *testing.T) {
	m := NewManager(NewMemoryStore(), &recorder{})
	if _, err := m.Create(context.Background(), "A", Color("green")); !errors.Is(err, ErrInvalidColor) {
		t.Fatalf("err = %v", err)
	}
	if r, err := m.Create(context.Background(), "A", Color(" White ")); err != nil || r.Participants[0].Color != White {
		t.Fatalf("normalized color rejected: %v", err)
	}
}

func TestCodeCollisionRegenerates(t *testing.T) {
	for name, newStore := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			seq := []string{"123456", "123456", "654321"}
			i := 0
			src := func() (string, error) {
				c := seq[i]
				i++
				return c, nil
			}
			m := NewManager(newStore(t), &recorder{}, WithCodeSource(src))
			ctx := context.Background()

			a, err := m.Create(ctx, "A", White)
			if err != nil {
				t.Fatalf("Create A: %v", err)
			}
			b, err := m.Create(ctx, "B", White)
			if err != nil {
				t.Fatalf("Create B: %v", err)
			}
			if a.Code != "123456" || b.Code != "654321" {
				t.Fatalf("codes = %s, %s", a.Code, b.Code)
			}
			if n, _ := m.Live(ctx); n != 2 {
				t.Fatalf("live = %d", n)
			}
		})
	}
}

func TestRelayMoveGoesToOpponentOnly(t *testing.T) {
	for name, newStore := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			rec := &recorder{}
			m := NewManager(newStore(t), rec)
			ctx := context.Background()
			r, _ := m.Create(ctx, "A", White)
			m.Join(ctx, "B", r.Code)
			rec.take()

			payload := json.RawMessage(`{"from":"e2","to":"e4","promotion":"q"}`)
			if err := m.RelayMove(ctx, "A", r.Code, payload); err != nil {
				t.Fatalf("RelayMove: %v", err)
			}
			out := rec.take()
			if len(out) != 1 || out[0].conn != "B" || out[0].event != EventMove {
				t.Fatalf("relay = %+v", out)
			}
			if string(out[0].data.(json.RawMessage)) != string(payload) {
				t.Fatalf("payload altered: %s", out[0].data)
			}

			if err := m.RelayMove(ctx, "C", r.Code, payload); !errors.Is(err, ErrNotParticipant) {
				t.Fatalf("outsider relay = %v", err)
			}
			if err := m.RelayMove(ctx, "A", "999999", payload); !errors.Is(err, ErrRoomNotFound) {
				t.Fatalf("unknown room relay = %v", err)
			}
		})
	}
}

func TestDisconnectTearsDownAndArchives(t *testing.T) {
	for name, newStore := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			rec := &recorder{}
			spy := &archiveSpy{}
			m := NewManager(newStore(t), rec, WithArchiver(spy))
			ctx := context.Background()
			r, _ := m.Create(ctx, "A", White)
			m.Join(ctx, "B", r.Code)
			m.RelayMove(ctx, "A", r.Code, json.RawMessage(`{"from":"e2","to":"e4"}`))
			m.RelayMove(ctx, "B", r.Code, json.RawMessage(`{"from":"e7","to":"e5"}`))
			rec.take()

			if err := m.Disconnect(ctx, "A"); err != nil {
				t.Fatalf("Disconnect: %v", err)
			}
			out := rec.take()
			if len(out) != 1 || out[0].conn != "B" || out[0].event != EventOpponentDisconnected {
				t.Fatalf("disconnect notifications = %+v", out)
			}
			if _, err := m.Get(ctx, r.Code); !errors.Is(err, ErrRoomNotFound) {
				t.Fatalf("room survived disconnect: %v", err)
			}
			if len(spy.rooms) != 1 || len(spy.rooms[0].Moves) != 2 || spy.rooms[0].Moves[1].To != "e5" {
				t.Fatalf("archived = %+v", spy.rooms)
			}
			if spy.rooms[0].State != StateClosed {
				t.Fatalf("archived state = %s", spy.rooms[0].State)
			}

			// B is free again and the departed A's second disconnect is a no-op
			if _, err := m.Create(ctx, "B", Black); err != nil {
				t.Fatalf("B create after teardown: %v", err)
			}
			if err := m.Disconnect(ctx, "A"); err != nil {
				t.Fatalf("repeat Disconnect: %v", err)
			}
			if out := rec.take(); len(out) != 1 || out[0].event != EventRoomCreated {
				t.Fatalf("unexpected notifications: %+v", out)
			}
		})
	}
}

func TestDisconnectWhileWaiting(t *testing.T) {
	rec := &recorder{}
	spy := &archiveSpy{}
	m := NewManager(NewMemoryStore(), rec, WithArchiver(spy))
	ctx := context.Background()
	r, _ := m.Create(ctx, "A", White)
	rec.take()

	if err := m.Disconnect(ctx, "A"); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	if out := rec.take(); len(out) != 0 {
		t.Fatalf("lonely room notified: %+v", out)
	}
	if len(spy.rooms) != 0 {
		t.Fatalf("empty move log archived")
	}
	if _, err := m.Join(ctx, "B", r.Code); !errors.Is(err, ErrRoomNotFound) {
		t.Fatalf("join closed room = %v", err)
	}
}

func TestConcurrentJoinsSeatOnlyOne(t *testing.T) {
	for name, newStore := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			m := NewManager(newStore(t), &recorder{})
			ctx := context.Background()
			r, _ := m.Create(ctx, "host", White)

			var wg sync.WaitGroup
			var mu sync.Mutex
			wins := 0
			for _, id := range []string{"j1", "j2", "j3", "j4", "j5"} {
				wg.Add(1)
				go func(id string) {
					defer wg.Done()
					if _, err := m.Join(ctx, id, r.Code); err == nil {
						mu.Lock()
						wins++
						mu.Unlock()
					}
				}(id)
			}
			wg.Wait()
			if wins != 1 {
				t.Fatalf("joins accepted = %d, want 1", wins)
			}
			got, _ := m.Get(ctx, r.Code)
			if len(got.Participants) != 2 {
				t.Fatalf("participants = %d", len(got.Participants))
			}
		})
	}
}

func TestRandomCodeRange(t *testing.T) {
	for i := 0; i < 200; i++ {
		c, err := randomCode()
		if err != nil {
			t.Fatalf("randomCode: %v", err)
		}
		if !ValidCode(c) {
			t.Fatalf("code out of range: %s", c)
		}
	}
}

func TestOpenRedisStore(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()

	ctx := context.Background()
	s, err := OpenRedisStore(ctx, "redis://"+mr.Addr()+"/0")
	if err != nil {
		t.Fatalf("OpenRedisStore: %v", err)
	}
	defer s.Close()
	if n, err := s.Count(ctx); err != nil || n != 0 {
		t.Fatalf("Count = %d, %v", n, err)
	}

	if _, err := OpenRedisStore(ctx, ""); err == nil {
		t.Fatalf("empty url should fail")
	}
	if _, err := OpenRedisStore(ctx, "http://"+mr.Addr()); err == nil {
		t.Fatalf("non-redis scheme should fail")
	}
}

// hookStore runs afterUpdate once, right after the first successful Update commits.
type hookStore struct {
	Store
	afterUpdate func()
}

func (s *hookStore) Update(ctx context.Context, code string, fn func(*Room) error) (*Room, error) {
	r, err := s.Store.Update(ctx, code, fn)
	if err == nil && s.afterUpdate != nil {
		hook := s.afterUpdate
		s.afterUpdate = nil
		hook()
	}
	return r, err
}

type failingIndexStore struct {
	Store
}

func (s failingIndexStore) AddMember(context.Context, string, string) error {
	return errors.New("index unavailable")
}

func TestCreatorDisconnectDuringJoin(t *testing.T) {
	for name, newStore := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			rec := &recorder{}
			store := &hookStore{Store: newStore(t)}
			m := NewManager(store, rec)
			ctx := context.Background()

			r, err := m.Create(ctx, "A", White)
			if err != nil {
				t.Fatalf("Create: %v", err)
			}
			rec.take()

			done := make(chan error, 1)
			store.afterUpdate = func() {
				go func() { done <- m.Disconnect(ctx, "A") }()
			}
			if _, err := m.Join(ctx, "B", r.Code); err != nil {
				t.Fatalf("Join: %v", err)
			}
			if err := <-done; err != nil {
				t.Fatalf("Disconnect: %v", err)
			}

			out := rec.take()
			var events []string
			for _, s := range out {
				events = append(events, s.conn+":"+s.event)
			}
			want := []string{"A:start_game", "B:start_game", "B:opponent_disconnected"}
			if len(events) != len(want) {
				t.Fatalf("events = %v, want %v", events, want)
			}
			for i := range want {
				if events[i] != want[i] {
					t.Fatalf("events = %v, want %v", events, want)
				}
			}
			if n, _ := m.Live(ctx); n != 0 {
				t.Fatalf("live rooms = %d", n)
			}
			if _, err := m.Create(ctx, "B", White); err != nil {
				t.Fatalf("B left half-seated: %v", err)
			}
			if n := m.locks.size(); n != 0 {
				t.Fatalf("room locks leaked: %d", n)
			}
		})
	}
}

func TestJoinLosesRoomTornDownElsewhere(t *testing.T) {
	for name, newStore := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			rec := &recorder{}
			store := &hookStore{Store: newStore(t)}
			m := NewManager(store, rec)
			// a second manager on the same store stands in for another server process
			other := NewManager(store, rec)
			ctx := context.Background()

			r, _ := m.Create(ctx, "A", White)
			rec.take()

			store.afterUpdate = func() {
				if err := other.Disconnect(ctx, "A"); err != nil {
					t.Errorf("Disconnect: %v", err)
				}
			}
			if _, err := m.Join(ctx, "B", r.Code); !errors.Is(err, ErrRoomNotFound) {
				t.Fatalf("Join = %v, want ErrRoomNotFound", err)
			}
			for _, s := range rec.take() {
				if s.event == EventStartGame {
					t.Fatalf("start_game sent for a closed room: %+v", s)
				}
			}
			if codes, _ := store.Memberships(ctx, "B"); len(codes) != 0 {
				t.Fatalf("B still indexed under %v", codes)
			}
			if _, err := m.Create(ctx, "B", White); err != nil {
				t.Fatalf("B create: %v", err)
			}
		})
	}
}

func TestCreateRollsBackWhenIndexFails(t *testing.T) {
	for name, newStore := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			rec := &recorder{}
			m := NewManager(failingIndexStore{Store: newStore(t)}, rec)
			ctx := context.Background()

			if _, err := m.Create(ctx, "A", White); err == nil {
				t.Fatalf("Create should fail when the index write fails")
			}
			if n, _ := m.Live(ctx); n != 0 {
				t.Fatalf("reserved room left behind: %d live", n)
			}
			if out := rec.take(); len(out) != 0 {
				t.Fatalf("notifications = %+v", out)
			}
		})
	}
}
