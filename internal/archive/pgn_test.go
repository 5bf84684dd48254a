package archive

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/park285/cheese-arena/internal/room"
)

func matchRoom(moves ...room.Move) *room.Room {
	return &room.Room{
		Code:  "123456",
		State: room.StateClosed,
		Participants: []room.Participant{
			{ConnID: "a", Color: room.Black},
			{ConnID: "b", Color: room.White},
		},
		CreatedAt: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		Moves:     moves,
	}
}

func TestMatchPGNReplaysLegalMoves(t *testing.T) {
	rm := matchRoom(
		room.Move{From: "f2", To: "f3"},
		room.Move{From: "e7", To: "e5"},
		room.Move{From: "g2", To: "g4"},
		room.Move{From: "d8", To: "h4"},
	)
	pgn := matchPGN(rm, time.Date(2025, 3, 1, 12, 5, 0, 0, time.UTC))
	for _, want := range []string{
		`[White "b"]`,
		`[Black "a"]`,
		`[Date "2025.03.01"]`,
		`[Result "0-1"]`,
		"1. f3 e5 2. g4 Qh4# 0-1",
	} {
		if !strings.Contains(pgn, want) {
			t.Fatalf("pgn missing %q:\n%s", want, pgn)
		}
	}
}

func TestMatchPGNStopsAtIllegalMove(t *testing.T) {
	rm := matchRoom(
		room.Move{From: "e2", To: "e4"},
		room.Move{From: "e2", To: "e4"},
	)
	pgn := matchPGN(rm, time.Now())
	if !strings.HasSuffix(pgn, "1. e4 *") {
		t.Fatalf("pgn = %q", pgn)
	}

	if got := matchPGN(matchRoom(room.Move{From: "a1", To: "a8"}), time.Now()); got != "" {
		t.Fatalf("illegal first move should give empty pgn, got %q", got)
	}
}

func TestSeatsAndUCIList(t *testing.T) {
	rm := matchRoom(room.Move{From: "E7", To: "E8", Promotion: "Q"})
	white, black := seats(rm)
	if white != "b" || black != "a" {
		t.Fatalf("seats = %s/%s", white, black)
	}
	if got := uciList(rm.Moves); len(got) != 1 || got[0] != "e7e8q" {
		t.Fatalf("uciList = %v", got)
	}
}

func TestNilRepositoryIsNoop(t *testing.T) {
	var r *Repository
	if err := r.SaveMatch(context.Background(), matchRoom()); err != nil {
		t.Fatalf("SaveMatch: %v", err)
	}
	if err := r.SaveReview(context.Background(), "", nil); err != nil {
		t.Fatalf("SaveReview: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := NewRepository(" "); err == nil {
		t.Fatalf("empty DATABASE_URL should fail")
	}
}
