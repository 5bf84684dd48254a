package uci

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"sync"
)

// ErrPoolClosed is returned by Acquire after Close.
var ErrPoolClosed = errors.New("engine pool closed")

// Factory starts a ready session configured with opt.
type Factory func(ctx context.Context, opt Options) (*Session, error)

// Purpose separates review analysis from opponent play. Each purpose has its own session
// budget, so a long review never holds every engine while a player waits for a reply.
type Purpose string

const (
	ForReview   Purpose = "review"
	ForOpponent Purpose = "opponent"
)

type PoolConfig struct {
	BinaryPath string
	// Capacity caps live sessions per purpose. Missing or non-positive entries use a
	// CPU based default.
	Capacity map[Purpose]int
	// Factory overrides process spawning, e.g. for engines behind a socket.
	Factory Factory
}

// Pool leases engine sessions by purpose. Idle sessions are matched on their exact
// Options; when a purpose is at capacity an idle session configured differently is
// retired to make room instead of waiting for a match that may never come back.
type Pool struct {
	factory  Factory
	capacity map[Purpose]int

	mu     sync.Mutex
	lanes  map[Purpose]*lane
	leased map[*Session]leaseInfo
	closed bool
}

type leaseInfo struct {
	lane *lane
	opt  Options
}

func NewPool(cfg PoolConfig) (*Pool, error) {
	factory := cfg.Factory
	if factory == nil {
		if cfg.BinaryPath == "" {
			return nil, fmt.Errorf("binary path required")
		}
		if _, err := os.Stat(cfg.BinaryPath); err != nil {
			return nil, fmt.Errorf("stockfish binary check: %w", err)
		}
		path := cfg.BinaryPath
		factory = func(ctx context.Context, opt Options) (*Session, error) {
			return NewSession(ctx, path, opt)
		}
	}
	capacity := make(map[Purpose]int, len(cfg.Capacity))
	for purpose, n := range cfg.Capacity {
		capacity[purpose] = n
	}
	return &Pool{
		factory:  factory,
		capacity: capacity,
		lanes:    make(map[Purpose]*lane),
		leased:   make(map[*Session]leaseInfo),
	}, nil
}

// Acquire leases a ready session configured with opt, spawning one when the purpose has
// room. It blocks while the purpose is at capacity and every session is leased.
func (p *Pool) Acquire(ctx context.Context, purpose Purpose, opt Options) (*Session, error) {
	l, err := p.lane(purpose)
	if err != nil {
		return nil, err
	}
	for {
		session, wake := l.takeIdle(opt)
		if session != nil {
			if err := session.EnsureReady(ctx); err != nil {
				l.retire(session)
				continue
			}
			return p.lease(session, l, opt)
		}

		if l.reserve() {
			session, err := p.factory(ctx, opt)
			if err != nil {
				l.unreserve()
				return nil, err
			}
			return p.lease(session, l, opt)
		}

		if stale := l.takeAnyIdle(); stale != nil {
			l.retire(stale)
			continue
		}

		select {
		case <-wake:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Release returns a leased session. A non-nil err marks the session broken and it is closed.
func (p *Pool) Release(session *Session, err error) {
	if session == nil {
		return
	}
	p.mu.Lock()
	info, ok := p.leased[session]
	delete(p.leased, session)
	closed := p.closed
	p.mu.Unlock()

	if !ok {
		_ = session.Close()
		return
	}
	if err != nil || closed {
		info.lane.retire(session)
		return
	}
	info.lane.park(session, info.opt)
}

// Close shuts down idle sessions and refuses new leases. Leased sessions are closed as they
// are released.
func (p *Pool) Close() error {
	p.mu.Lock()
	p.closed = true
	lanes := make([]*lane, 0, len(p.lanes))
	for _, l := range p.lanes {
		lanes = append(lanes, l)
	}
	p.mu.Unlock()

	var errs []error
	for _, l := range lanes {
		for {
			session := l.takeAnyIdle()
			if session == nil {
				break
			}
			if err := session.Close(); err != nil {
				errs = append(errs, err)
			}
			l.unreserve()
		}
	}
	return errors.Join(errs...)
}

// Live reports the number of sessions currently owned by the pool, idle or leased.
func (p *Pool) Live() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, l := range p.lanes {
		n += l.live()
	}
	return n
}

// LiveFor reports the sessions owned by one purpose.
func (p *Pool) LiveFor(purpose Purpose) int {
	p.mu.Lock()
	l, ok := p.lanes[purpose]
	p.mu.Unlock()
	if !ok {
		return 0
	}
	return l.live()
}

func (p *Pool) lane(purpose Purpose) (*lane, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrPoolClosed
	}
	l, ok := p.lanes[purpose]
	if !ok {
		n := p.capacity[purpose]
		if n <= 0 {
			n = defaultCapacity()
		}
		l = newLane(n)
		p.lanes[purpose] = l
	}
	return l, nil
}

func (p *Pool) lease(session *Session, l *lane, opt Options) (*Session, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		l.retire(session)
		return nil, ErrPoolClosed
	}
	p.leased[session] = leaseInfo{lane: l, opt: opt}
	p.mu.Unlock()
	return session, nil
}

// lane owns the sessions of one purpose. total counts idle and leased sessions.
type lane struct {
	capacity int

	mu    sync.Mutex
	total int
	idle  map[Options][]*Session
	wake  chan struct{}
}

func newLane(capacity int) *lane {
	return &lane{
		capacity: capacity,
		idle:     make(map[Options][]*Session),
		wake:     make(chan struct{}),
	}
}

// takeIdle pops a session configured with opt. When there is none it returns the channel
// that is closed on the next park or retire.
func (l *lane) takeIdle(opt Options) (*Session, <-chan struct{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	list := l.idle[opt]
	if len(list) == 0 {
		return nil, l.wake
	}
	session := list[len(list)-1]
	if len(list) == 1 {
		delete(l.idle, opt)
	} else {
		l.idle[opt] = list[:len(list)-1]
	}
	return session, nil
}

func (l *lane) takeAnyIdle() *Session {
	l.mu.Lock()
	defer l.mu.Unlock()
	for opt, list := range l.idle {
		session := list[len(list)-1]
		if len(list) == 1 {
			delete(l.idle, opt)
		} else {
			l.idle[opt] = list[:len(list)-1]
		}
		return session
	}
	return nil
}

func (l *lane) reserve() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.total >= l.capacity {
		return false
	}
	l.total++
	return true
}

func (l *lane) unreserve() {
	l.mu.Lock()
	if l.total > 0 {
		l.total--
	}
	l.broadcastLocked()
	l.mu.Unlock()
}

func (l *lane) park(session *Session, opt Options) {
	l.mu.Lock()
	l.idle[opt] = append(l.idle[opt], session)
	l.broadcastLocked()
	l.mu.Unlock()
}

func (l *lane) retire(session *Session) {
	_ = session.Close()
	l.unreserve()
}

func (l *lane) broadcastLocked() {
	close(l.wake)
	l.wake = make(chan struct{})
}

func (l *lane) live() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.total
}

func defaultCapacity() int {
	cpu := runtime.NumCPU()
	if cpu < 2 {
		return 2
	}
	if cpu > 4 {
		return 4
	}
	return cpu
}
