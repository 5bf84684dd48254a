package review

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/park285/cheese-arena/internal/uci"
)

// gatedAnalyzer blocks its first query until the run is cancelled.
type gatedAnalyzer struct {
	once    sync.Once
	started chan struct{}
	mu      sync.Mutex
	calls   int
}

func (g *gatedAnalyzer) Analyze(ctx context.Context, fen string, depth int) (uci.SearchResponse, error) {
	first := false
	g.once.Do(func() { first = true })
	if first {
		close(g.started)
		<-ctx.Done()
		return uci.SearchResponse{}, ctx.Err()
	}
	g.mu.Lock()
	g.calls++
	g.mu.Unlock()
	return cp(25, ""), nil
}

func TestReviewerDropsSupersededRun(t *testing.T) {
	g := &gatedAnalyzer{started: make(chan struct{})}
	r := NewReviewer(NewPipeline(g, 12))
	ctx := context.Background()

	first := r.Start(ctx, mustMoves(t, []string{"e2e4", "e7e5", "g1f3"}))
	select {
	case <-g.started:
	case <-time.After(2 * time.Second):
		t.Fatalf("first run never queried the engine")
	}

	second := r.Start(ctx, mustMoves(t, []string{"d2d4"}))
	if second <= first {
		t.Fatalf("generation did not advance: %d -> %d", first, second)
	}

	waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	s, err := r.Wait(waitCtx)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if len(s.Moves) != 1 || len(s.Evaluations) != 2 {
		t.Fatalf("published session belongs to the wrong run: %d moves", len(s.Moves))
	}

	cur, gen, ok := r.Current()
	if !ok || cur != s || gen != second {
		t.Fatalf("Current = %p gen %d ok %v", cur, gen, ok)
	}
}

func TestReviewerCloseDiscards(t *testing.T) {
	r := NewReviewer(NewPipeline(nil, 12))
	r.Start(context.Background(), mustMoves(t, []string{"e2e4"}))
	if _, err := r.Wait(context.Background()); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	r.Close()
	if _, _, ok := r.Current(); ok {
		t.Fatalf("session survived Close")
	}
	if _, err := r.Wait(context.Background()); !errors.Is(err, ErrNoReview) {
		t.Fatalf("Wait after Close = %v", err)
	}
}
