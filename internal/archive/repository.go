package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/park285/cheese-arena/internal/room"
	"github.com/park285/cheese-arena/pkg/reviewdto"
)

const schema = `
CREATE TABLE IF NOT EXISTS arena_matches (
  room_code   TEXT        NOT NULL,
  white_conn  TEXT        NOT NULL,
  black_conn  TEXT        NOT NULL,
  moves_uci   JSONB       NOT NULL,
  pgn         TEXT        NOT NULL DEFAULT '',
  started_at  TIMESTAMPTZ NOT NULL,
  ended_at    TIMESTAMPTZ NOT NULL,
  duration_ms BIGINT      NOT NULL,
  PRIMARY KEY (room_code, started_at)
);
CREATE TABLE IF NOT EXISTS arena_reviews (
  review_id  TEXT PRIMARY KEY,
  pgn        TEXT        NOT NULL,
  opening    TEXT        NOT NULL DEFAULT '',
  white_acc  REAL        NOT NULL,
  black_acc  REAL        NOT NULL,
  report     JSONB       NOT NULL,
  created_at TIMESTAMPTZ NOT NULL
);`

// Repository stores finished matches and review reports in Postgres.
type Repository struct {
	db  *sql.DB
	now func() time.Time
}

func NewRepository(databaseURL string) (*Repository, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Repository{db: db, now: time.Now}, nil
}

// EnsureSchema creates the archive tables when they are missing.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	if r == nil || r.db == nil {
		return nil
	}
	_, err := r.db.ExecContext(ctx, schema)
	return err
}

func (r *Repository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// SaveMatch records a torn-down room's relayed moves. It satisfies room.Archiver.
func (r *Repository) SaveMatch(ctx context.Context, rm *room.Room) error {
	if r == nil || r.db == nil || rm == nil {
		return nil
	}
	white, black := seats(rm)
	movesRaw, err := json.Marshal(uciList(rm.Moves))
	if err != nil {
		return err
	}
	ended := r.now()
	duration := ended.Sub(rm.CreatedAt).Milliseconds()
	if duration < 0 {
		duration = 0
	}

	q := `INSERT INTO arena_matches (
        room_code, white_conn, black_conn, moves_uci, pgn, started_at, ended_at, duration_ms
      ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
      ON CONFLICT (room_code, started_at) DO UPDATE SET
        moves_uci=EXCLUDED.moves_uci,
        pgn=EXCLUDED.pgn,
        ended_at=EXCLUDED.ended_at,
        duration_ms=EXCLUDED.duration_ms`
	_, err = r.db.ExecContext(ctx, q,
		rm.Code, white, black, string(movesRaw), matchPGN(rm, ended),
		rm.CreatedAt, ended, duration,
	)
	return err
}

// SaveReview stores a finished review report with the PGN it was built from.
func (r *Repository) SaveReview(ctx context.Context, pgn string, rep *reviewdto.ReviewReport) error {
	if r == nil || r.db == nil || rep == nil {
		return nil
	}
	raw, err := json.Marshal(rep)
	if err != nil {
		return err
	}
	opening := ""
	if rep.Opening != nil {
		opening = strings.TrimSpace(rep.Opening.Code + " " + rep.Opening.Title)
	}
	q := `INSERT INTO arena_reviews (review_id, pgn, opening, white_acc, black_acc, report, created_at)
      VALUES ($1,$2,$3,$4,$5,$6,$7)
      ON CONFLICT (review_id) DO NOTHING`
	_, err = r.db.ExecContext(ctx, q,
		rep.ID, pgn, opening, rep.White.Accuracy, rep.Black.Accuracy, string(raw), r.now(),
	)
	return err
}

func seats(rm *room.Room) (white, black string) {
	for _, p := range rm.Participants {
		switch p.Color {
		case room.White:
			white = p.ConnID
		case room.Black:
			black = p.ConnID
		}
	}
	return white, black
}

func uciList(moves []room.Move) []string {
	out := make([]string, 0, len(moves))
	for _, mv := range moves {
		out = append(out, strings.ToLower(mv.From+mv.To+mv.Promotion))
	}
	return out
}
