package review

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/park285/cheese-arena/internal/obslog"
)

// ErrNoReview is returned by Wait when nothing has been started or the review was closed.
var ErrNoReview = errors.New("no review in progress")

// Reviewer owns at most one live review. Starting a new review cancels the previous run;
// results of a superseded run are discarded even if it finishes afterwards.
type Reviewer struct {
	pipeline *Pipeline

	mu      sync.Mutex
	gen     uint64
	cancel  context.CancelFunc
	done    chan struct{}
	session *Session
	err     error
}

func NewReviewer(p *Pipeline) *Reviewer {
	return &Reviewer{pipeline: p}
}

// Start begins reviewing moves and returns the generation tag of the new run.
func (r *Reviewer) Start(ctx context.Context, moves []MoveRecord) uint64 {
	r.mu.Lock()
	if r.cancel != nil {
		r.cancel()
	}
	r.gen++
	gen := r.gen
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	r.cancel = cancel
	r.done = done
	r.session = nil
	r.err = nil
	r.mu.Unlock()

	go func() {
		defer close(done)
		defer cancel()
		s, err := r.pipeline.Run(runCtx, moves)
		r.publish(gen, s, err)
	}()
	return gen
}

func (r *Reviewer) publish(gen uint64, s *Session, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if gen != r.gen {
		obslog.L().Debug("review_stale_result_dropped", zap.Uint64("gen", gen), zap.Uint64("current", r.gen))
		return
	}
	r.session = s
	r.err = err
	r.cancel = nil
}

// Wait blocks until the current run finishes and returns its result.
func (r *Reviewer) Wait(ctx context.Context) (*Session, error) {
	r.mu.Lock()
	gen, done := r.gen, r.done
	r.mu.Unlock()
	if done == nil {
		return nil, ErrNoReview
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-done:
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if gen != r.gen {
		return nil, context.Canceled
	}
	if r.session == nil && r.err == nil {
		return nil, ErrNoReview
	}
	return r.session, r.err
}

// Current returns the finished session of the latest run, if any.
func (r *Reviewer) Current() (*Session, uint64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session, r.gen, r.session != nil
}

// Close cancels any run in flight and discards the current session.
func (r *Reviewer) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	r.gen++
	r.session = nil
	r.err = nil
	r.done = nil
}
