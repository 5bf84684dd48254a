package review

import (
	"errors"

	nchess "github.com/corentings/chess/v2"
)

// ErrInvalidPGN is returned when an imported game cannot be parsed or replayed.
var ErrInvalidPGN = errors.New("invalid PGN")

// Position is a snapshot of the board after a ply.
type Position struct {
	FEN       string
	Turn      nchess.Color
	Checkmate bool
	Draw      bool
}

type MoveRecord struct {
	From      string
	To        string
	Promotion string
	SAN       string
	UCI       string
	IsCapture bool
	IsCheck   bool
}

type EvalKind string

const (
	Centipawns EvalKind = "cp"
	Mate       EvalKind = "mate"
)

// Evaluation is stored White-positive. For Mate, Value is the distance to mate in moves;
// MateSign carries the winner (+1 White, -1 Black) and is required when Value is 0.
type Evaluation struct {
	Kind     EvalKind
	Value    int
	BestMove string
	MateSign int
}

// Winner returns +1 when White is winning by mate, -1 for Black and 0 for centipawn scores.
func (e Evaluation) Winner() int {
	if e.Kind != Mate {
		return 0
	}
	if e.MateSign != 0 {
		return e.MateSign
	}
	switch {
	case e.Value > 0:
		return 1
	case e.Value < 0:
		return -1
	}
	return 0
}

// Item is one unit of analysis work. Ply is -1 for the starting position.
// Manual holds an evaluation decided without the engine (terminal positions).
type Item struct {
	Position Position
	Ply      int
	Manual   *Evaluation
}

type Classification string

const (
	Brilliant  Classification = "brilliant"
	Great      Classification = "great"
	Best       Classification = "best"
	Excellent  Classification = "excellent"
	Good       Classification = "good"
	Book       Classification = "book"
	Inaccuracy Classification = "inaccuracy"
	Mistake    Classification = "mistake"
	Blunder    Classification = "blunder"
)

// Classifications lists every category in display order. Brilliant, Great and Book are
// counted in statistics but never assigned by Classify.
var Classifications = []Classification{
	Brilliant, Great, Best, Excellent, Good, Book, Inaccuracy, Mistake, Blunder,
}

// Session holds the result of one review run. Evaluations[0] is the starting position and
// Evaluations[i+1] the position after Moves[i].
type Session struct {
	Moves       []MoveRecord
	Positions   []Position
	Evaluations []Evaluation
	Opening     *Opening
}

type Opening struct {
	Code  string
	Title string
}

// Classify grades Moves[ply] from the evaluations around it and returns the loss in
// centipawns from the mover's side.
func (s *Session) Classify(ply int) (Classification, int) {
	return Classify(s.Evaluations[ply], s.Evaluations[ply+1], s.Mover(ply))
}

// ClassifyAll grades every move in order.
func (s *Session) ClassifyAll() []Classification {
	out := make([]Classification, len(s.Moves))
	for i := range s.Moves {
		out[i], _ = s.Classify(i)
	}
	return out
}

// Mover returns the side that played Moves[ply].
func (s *Session) Mover(ply int) nchess.Color {
	return s.Positions[ply].Turn
}
