package room

import "sync"

// roomLocks serialises mutations of a single room within this process.
// Entries are dropped once nobody holds or waits on them.
type roomLocks struct {
	mu    sync.Mutex
	byKey map[string]*roomLock
}

type roomLock struct {
	mu   sync.Mutex
	refs int
}

func newRoomLocks() *roomLocks {
	return &roomLocks{byKey: make(map[string]*roomLock)}
}

// lock blocks until code is free and returns the matching unlock.
func (l *roomLocks) lock(code string) func() {
	l.mu.Lock()
	rl, ok := l.byKey[code]
	if !ok {
		rl = &roomLock{}
		l.byKey[code] = rl
	}
	rl.refs++
	l.mu.Unlock()

	rl.mu.Lock()
	return func() {
		rl.mu.Unlock()
		l.mu.Lock()
		rl.refs--
		if rl.refs == 0 {
			delete(l.byKey, code)
		}
		l.mu.Unlock()
	}
}

func (l *roomLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.byKey)
}
