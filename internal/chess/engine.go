package chess

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	nchess "github.com/corentings/chess/v2"
	"go.uber.org/zap"

	"github.com/park285/cheese-arena/internal/chess/openingbook"
	"github.com/park285/cheese-arena/internal/obslog"
	"github.com/park285/cheese-arena/internal/uci"
)

// ErrEngineUnavailable is returned when no engine was configured.
var ErrEngineUnavailable = errors.New("engine unavailable")

type Config struct {
	BinaryPath   string
	PoolSize     int
	Threads      int
	HashMB       int
	QueryTimeout time.Duration
	Book         *openingbook.Book
}

type Engine struct {
	pool    *uci.Pool
	threads int
	hashMB  int
	timeout time.Duration
	book    *openingbook.Book
}

func NewEngine(cfg Config) (*Engine, error) {
	pool, err := uci.NewPool(uci.PoolConfig{
		BinaryPath: cfg.BinaryPath,
		Capacity: map[uci.Purpose]int{
			uci.ForReview:   cfg.PoolSize,
			uci.ForOpponent: cfg.PoolSize,
		},
	})
	if err != nil {
		return nil, err
	}
	return NewEngineWithPool(pool, cfg), nil
}

// NewEngineWithPool wraps an existing pool; cfg.BinaryPath and cfg.PoolSize are ignored.
func NewEngineWithPool(pool *uci.Pool, cfg Config) *Engine {
	return &Engine{
		pool:    pool,
		threads: cfg.Threads,
		hashMB:  cfg.HashMB,
		timeout: cfg.QueryTimeout,
		book:    cfg.Book,
	}
}

// Analyze runs a full-strength search of fen to depth.
func (e *Engine) Analyze(ctx context.Context, fen string, depth int) (uci.SearchResponse, error) {
	if e == nil || e.pool == nil {
		return uci.SearchResponse{}, ErrEngineUnavailable
	}
	return e.search(ctx, uci.ForReview, FullStrength(e.threads, e.hashMB), uci.SearchRequest{
		FEN:    fen,
		Limits: uci.Limits{Depth: depth},
	})
}

type PlayRequest struct {
	FEN   string
	Elo   int
	Depth int
}

type PlayResult struct {
	Move     string
	SAN      string
	FromBook bool
}

// PlayMove picks a reply for a strength-limited opponent. Book moves are preferred when a book is loaded.
func (e *Engine) PlayMove(ctx context.Context, req PlayRequest) (PlayResult, error) {
	if e == nil || e.pool == nil {
		return PlayResult{}, ErrEngineUnavailable
	}
	pos, err := positionFromFEN(req.FEN)
	if err != nil {
		return PlayResult{}, err
	}

	if hit, err := e.book.Lookup(req.FEN, nil); err != nil {
		obslog.L().Warn("book_lookup_failed", zap.String("fen", req.FEN), zap.Error(err))
	} else if hit.Move != "" {
		san, err := encodeSAN(pos, hit.Move)
		if err == nil {
			return PlayResult{Move: hit.Move, SAN: san, FromBook: true}, nil
		}
	}

	elo := req.Elo
	if elo < MinElo {
		elo = MinElo
	}
	if elo > MaxElo {
		elo = MaxElo
	}
	resp, err := e.search(ctx, uci.ForOpponent, OptionsForElo(elo, e.threads, e.hashMB), uci.SearchRequest{
		FEN:    req.FEN,
		Limits: uci.Limits{Depth: req.Depth},
	})
	if err != nil {
		return PlayResult{}, err
	}
	if resp.BestMove == "" {
		return PlayResult{}, fmt.Errorf("engine returned no move for %q", req.FEN)
	}

	move := withDefaultPromotion(pos, resp.BestMove)
	san, err := encodeSAN(pos, move)
	if err != nil {
		return PlayResult{}, err
	}
	return PlayResult{Move: move, SAN: san}, nil
}

// search leases a session for purpose. Opponent sessions start a fresh game each time since
// consecutive requests rarely come from the same game.
func (e *Engine) search(ctx context.Context, purpose uci.Purpose, opt uci.Options, req uci.SearchRequest) (uci.SearchResponse, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	session, err := e.pool.Acquire(ctx, purpose, opt)
	if err != nil {
		return uci.SearchResponse{}, err
	}
	var releaseErr error
	defer func() {
		e.pool.Release(session, releaseErr)
	}()

	if purpose == uci.ForOpponent {
		if err := session.NewGame(ctx); err != nil {
			releaseErr = err
			return uci.SearchResponse{}, err
		}
	}

	resp, err := session.Search(ctx, req)
	if err != nil {
		// a session that timed out is still usable; it drains its own stale output
		if !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
			releaseErr = err
		}
		return uci.SearchResponse{}, err
	}
	return resp, nil
}

func (e *Engine) Live() int {
	if e == nil || e.pool == nil {
		return 0
	}
	return e.pool.Live()
}

func (e *Engine) Close() error {
	if e == nil || e.pool == nil {
		return nil
	}
	return e.pool.Close()
}

func positionFromFEN(fen string) (*nchess.Position, error) {
	if strings.TrimSpace(fen) == "" || fen == "startpos" {
		return nchess.NewGame().Position(), nil
	}
	opt, err := nchess.FEN(fen)
	if err != nil {
		return nil, fmt.Errorf("parse fen %q: %w", fen, err)
	}
	return nchess.NewGame(opt).Position(), nil
}

// withDefaultPromotion appends a queen when a pawn reaches the last rank without a promotion piece.
func withDefaultPromotion(pos *nchess.Position, move string) string {
	if len(move) != 4 {
		return move
	}
	from, ok := squareOf(move[0:2])
	if !ok || pos.Board().Piece(from).Type() != nchess.Pawn {
		return move
	}
	if rank := move[3]; rank == '8' || rank == '1' {
		return move + "q"
	}
	return move
}

func squareOf(s string) (nchess.Square, bool) {
	if len(s) != 2 || s[0] < 'a' || s[0] > 'h' || s[1] < '1' || s[1] > '8' {
		return 0, false
	}
	file := int(s[0] - 'a')
	rank := int(s[1] - '1')
	return nchess.Square(rank*8 + file), true
}

func encodeSAN(pos *nchess.Position, move string) (string, error) {
	mv, err := (nchess.UCINotation{}).Decode(pos, move)
	if err != nil {
		return "", fmt.Errorf("decode move %q: %w", move, err)
	}
	return (nchess.AlgebraicNotation{}).Encode(pos, mv), nil
}
