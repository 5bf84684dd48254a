package review

import (
	"context"
	"runtime"
	"time"

	"go.uber.org/zap"

	"github.com/park285/cheese-arena/internal/chess/openingbook"
	"github.com/park285/cheese-arena/internal/obslog"
	"github.com/park285/cheese-arena/internal/uci"
)

const DefaultDepth = 12

// Analyzer evaluates a single position. Scores come back relative to the side to move.
type Analyzer interface {
	Analyze(ctx context.Context, fen string, depth int) (uci.SearchResponse, error)
}

type Progress struct {
	Done  int
	Total int
}

type Option func(*Pipeline)

// WithProgress registers a callback invoked after every recorded evaluation.
func WithProgress(fn func(Progress)) Option {
	return func(p *Pipeline) { p.progress = fn }
}

// Pipeline evaluates every position of a game strictly in order, one engine query at a time.
type Pipeline struct {
	engine   Analyzer
	depth    int
	progress func(Progress)
}

// NewPipeline builds a pipeline. A nil engine is allowed; every position then evaluates to 0.
func NewPipeline(engine Analyzer, depth int, opts ...Option) *Pipeline {
	if depth <= 0 {
		depth = DefaultDepth
	}
	p := &Pipeline{engine: engine, depth: depth}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run drains the analysis queue for moves and classifies the result.
// The returned session is complete: every evaluation slot is set.
func (p *Pipeline) Run(ctx context.Context, moves []MoveRecord) (*Session, error) {
	items, err := BuildQueue(moves)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	s := &Session{
		Moves:       moves,
		Positions:   make([]Position, len(items)),
		Evaluations: make([]Evaluation, len(items)),
	}

	degraded := false
	for i, it := range items {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		slot := it.Ply + 1
		s.Positions[slot] = it.Position

		if it.Manual != nil {
			s.Evaluations[slot] = *it.Manual
			p.report(i+1, len(items))
			runtime.Gosched()
			continue
		}

		ev, err := p.evaluate(ctx, it, &degraded)
		if err != nil {
			return nil, err
		}
		s.Evaluations[slot] = ev
		p.report(i+1, len(items))
	}

	s.identifyOpening()

	obslog.L().Info("review_done",
		zap.Int("moves", len(moves)),
		zap.Int("depth", p.depth),
		zap.Bool("degraded", degraded),
		zap.Duration("elapsed", time.Since(start)),
	)
	return s, nil
}

func (p *Pipeline) evaluate(ctx context.Context, it Item, degraded *bool) (Evaluation, error) {
	neutral := Evaluation{Kind: Centipawns}
	if p.engine == nil {
		*degraded = true
		return neutral, nil
	}

	resp, err := p.engine.Analyze(ctx, it.Position.FEN, p.depth)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Evaluation{}, ctxErr
		}
		if !*degraded {
			obslog.L().Warn("review_engine_unavailable", zap.Int("ply", it.Ply), zap.Error(err))
		}
		*degraded = true
		return neutral, nil
	}
	if !resp.HasScore {
		neutral.BestMove = resp.BestMove
		return neutral, nil
	}
	return FromEngine(resp.Score, it.Position.Turn, resp.BestMove), nil
}

func (p *Pipeline) report(done, total int) {
	if p.progress != nil {
		p.progress(Progress{Done: done, Total: total})
	}
}

func (s *Session) identifyOpening() {
	ucis := make([]string, len(s.Moves))
	for i, mv := range s.Moves {
		ucis[i] = mv.UCI
	}
	if op, ok := openingbook.Identify(ucis); ok {
		s.Opening = &Opening{Code: op.Code, Title: op.Title}
	}
}
