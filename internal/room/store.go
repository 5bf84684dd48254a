package room

import (
	"context"
	"sync"
)

// Store persists rooms and the connection → room index.
type Store interface {
	// Reserve saves r under r.Code only if no room holds that code.
	Reserve(ctx context.Context, r *Room) (bool, error)
	// Load returns nil, nil when the room does not exist.
	Load(ctx context.Context, code string) (*Room, error)
	// Update applies fn atomically. A missing room yields ErrRoomNotFound; an error from fn aborts without writing.
	Update(ctx context.Context, code string, fn func(*Room) error) (*Room, error)
	AppendMove(ctx context.Context, code string, mv Move) error
	// Delete removes the room and returns it with its moves, or nil if it was already gone.
	Delete(ctx context.Context, code string) (*Room, error)

	AddMember(ctx context.Context, connID, code string) error
	RemoveMember(ctx context.Context, connID, code string) error
	Memberships(ctx context.Context, connID string) ([]string, error)
	ClearMemberships(ctx context.Context, connID string) error

	Count(ctx context.Context) (int, error)
}

// MemoryStore keeps rooms in process. It is used when no Redis is configured.
type MemoryStore struct {
	mu      sync.Mutex
	rooms   map[string]*Room
	members map[string]map[string]struct{}
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rooms:   make(map[string]*Room),
		members: make(map[string]map[string]struct{}),
	}
}

func (s *MemoryStore) Reserve(_ context.Context, r *Room) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.rooms[r.Code]; exists {
		return false, nil
	}
	s.rooms[r.Code] = r.clone()
	return true, nil
}

func (s *MemoryStore) Load(_ context.Context, code string) (*Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[code]
	if !ok {
		return nil, nil
	}
	return r.clone(), nil
}

func (s *MemoryStore) Update(_ context.Context, code string, fn func(*Room) error) (*Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[code]
	if !ok {
		return nil, ErrRoomNotFound
	}
	next := r.clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	s.rooms[code] = next
	return next.clone(), nil
}

func (s *MemoryStore) AppendMove(_ context.Context, code string, mv Move) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[code]
	if !ok {
		return ErrRoomNotFound
	}
	r.Moves = append(r.Moves, mv)
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, code string) (*Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[code]
	if !ok {
		return nil, nil
	}
	delete(s.rooms, code)
	return r, nil
}

func (s *MemoryStore) AddMember(_ context.Context, connID, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.members[connID]
	if !ok {
		set = make(map[string]struct{})
		s.members[connID] = set
	}
	set[code] = struct{}{}
	return nil
}

func (s *MemoryStore) RemoveMember(_ context.Context, connID, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if set, ok := s.members[connID]; ok {
		delete(set, code)
		if len(set) == 0 {
			delete(s.members, connID)
		}
	}
	return nil
}

func (s *MemoryStore) Memberships(_ context.Context, connID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := s.members[connID]
	out := make([]string, 0, len(set))
	for code := range set {
		out = append(out, code)
	}
	return out, nil
}

func (s *MemoryStore) ClearMemberships(_ context.Context, connID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.members, connID)
	return nil
}

func (s *MemoryStore) Count(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rooms), nil
}
