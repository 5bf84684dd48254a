package review

import (
	"fmt"

	nchess "github.com/corentings/chess/v2"
)

type SideStats struct {
	Counts   map[Classification]int
	Accuracy float64
	Moves    int
}

type Summary struct {
	White SideStats
	Black SideStats
}

// Summarize recomputes per-side statistics from the session's evaluations.
func Summarize(s *Session) Summary {
	return summarizeThrough(s, len(s.Moves)-1)
}

// summarizeThrough covers moves 0..last inclusive.
func summarizeThrough(s *Session, last int) Summary {
	white := newSideStats()
	black := newSideStats()
	var whiteSum, blackSum float64

	for i := 0; i <= last && i < len(s.Moves); i++ {
		class, loss := s.Classify(i)
		side, sum := &white, &whiteSum
		if s.Mover(i) == nchess.Black {
			side, sum = &black, &blackSum
		}
		side.Counts[class]++
		side.Moves++
		*sum += MoveAccuracy(loss)
	}
	if white.Moves > 0 {
		white.Accuracy = whiteSum / float64(white.Moves)
	}
	if black.Moves > 0 {
		black.Accuracy = blackSum / float64(black.Moves)
	}
	return Summary{White: white, Black: black}
}

func newSideStats() SideStats {
	counts := make(map[Classification]int, len(Classifications))
	for _, c := range Classifications {
		counts[c] = 0
	}
	return SideStats{Counts: counts}
}

// View is what the board screen needs to render one step of a review.
type View struct {
	Index          int
	Score          string
	EvalBar        float64
	Classification Classification
	SuggestedMove  string
	Coach          string
	WhiteAccuracy  float64
	BlackAccuracy  float64
}

// ViewAt renders position index (0 = start, i = after Moves[i-1]).
func ViewAt(s *Session, coach *Coach, index int) (View, error) {
	if index < 0 || index >= len(s.Evaluations) {
		return View{}, fmt.Errorf("view index %d out of range [0,%d]", index, len(s.Evaluations)-1)
	}
	ev := s.Evaluations[index]
	v := View{
		Index:   index,
		Score:   FormatScore(ev),
		EvalBar: EvalBarFraction(ev),
	}
	if index == 0 {
		v.Coach = coach.Start()
		return v, nil
	}

	ply := index - 1
	class, _ := s.Classify(ply)
	v.Classification = class
	if isCritical(class) {
		v.SuggestedMove = bestMoveSAN(s, ply)
	}
	v.Coach = coach.Explain(s, ply)

	running := summarizeThrough(s, ply)
	v.WhiteAccuracy = running.White.Accuracy
	v.BlackAccuracy = running.Black.Accuracy
	return v, nil
}

// ViewFor renders the position state points at: the latest one while live, otherwise the
// reviewed index clamped to the game.
func ViewFor(s *Session, coach *Coach, state ViewState) (View, error) {
	return ViewAt(s, coach, state.Index(len(s.Moves)))
}

// FormatScore renders an evaluation from White's side: "+0.35", "-1.20", "M3", "-M2", "1-0".
func FormatScore(e Evaluation) string {
	if e.Kind != Mate {
		return fmt.Sprintf("%+.2f", float64(e.Value)/100)
	}
	n := e.Value
	if n < 0 {
		n = -n
	}
	switch e.Winner() {
	case 1:
		if n == 0 {
			return "1-0"
		}
		return fmt.Sprintf("M%d", n)
	case -1:
		if n == 0 {
			return "0-1"
		}
		return fmt.Sprintf("-M%d", n)
	}
	return "0.00"
}

// bestMoveSAN returns the engine's preferred move at the position before Moves[ply],
// in SAN when it decodes, else as given.
func bestMoveSAN(s *Session, ply int) string {
	best := s.Evaluations[ply].BestMove
	if best == "" {
		return ""
	}
	opt, err := nchess.FEN(s.Positions[ply].FEN)
	if err != nil {
		return best
	}
	pos := nchess.NewGame(opt).Position()
	mv, err := (nchess.UCINotation{}).Decode(pos, best)
	if err != nil {
		return best
	}
	return (nchess.AlgebraicNotation{}).Encode(pos, mv)
}
