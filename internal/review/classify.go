package review

import (
	"math"

	nchess "github.com/corentings/chess/v2"

	"github.com/park285/cheese-arena/internal/uci"
)

const mateScore = 10000

// loss thresholds, inclusive upper bounds
const (
	bestMaxLoss       = 10
	excellentMaxLoss  = 30
	goodMaxLoss       = 70
	inaccuracyMaxLoss = 130
	mistakeMaxLoss    = 300
)

// FromEngine converts a mover-relative engine score to a White-positive Evaluation.
func FromEngine(score uci.Score, turn nchess.Color, bestMove string) Evaluation {
	v := score.Value
	if turn == nchess.Black {
		v = -v
	}
	ev := Evaluation{Kind: Centipawns, Value: v, BestMove: bestMove}
	if score.Kind == uci.ScoreMate {
		ev.Kind = Mate
		if v == 0 {
			// "mate 0": the side to move is already mated
			ev.MateSign = 1
			if turn == nchess.White {
				ev.MateSign = -1
			}
		}
	}
	return ev
}

// Centipawn maps an evaluation onto a single White-positive scale. A mate in n scores
// ±(10000-n), so shorter mates are worth more and a delivered mate is ±10000.
func Centipawn(e Evaluation) int {
	if e.Kind != Mate {
		return e.Value
	}
	n := e.Value
	if n < 0 {
		n = -n
	}
	switch e.Winner() {
	case 1:
		return mateScore - n
	case -1:
		return -mateScore + n
	}
	return 0
}

// Classify grades a move by how much of the mover's advantage it gave up.
func Classify(before, after Evaluation, mover nchess.Color) (Classification, int) {
	b, a := Centipawn(before), Centipawn(after)
	loss := b - a
	if mover == nchess.Black {
		loss = a - b
	}
	if loss < 0 {
		loss = 0
	}

	switch {
	case loss <= bestMaxLoss:
		return Best, loss
	case loss <= excellentMaxLoss:
		return Excellent, loss
	case loss <= goodMaxLoss:
		return Good, loss
	case loss <= inaccuracyMaxLoss:
		return Inaccuracy, loss
	case loss <= mistakeMaxLoss:
		return Mistake, loss
	}
	return Blunder, loss
}

// MoveAccuracy is 100 for a lossless move, decreasing by one point per two centipawns.
func MoveAccuracy(loss int) float64 {
	return math.Max(0, 100-float64(loss)/2)
}

// EvalBarFraction is White's share of the evaluation bar in [0,1].
func EvalBarFraction(e Evaluation) float64 {
	if e.Kind == Mate {
		switch e.Winner() {
		case 1:
			return 1
		case -1:
			return 0
		}
		return 0.5
	}
	return 1 / (1 + math.Pow(10, -float64(e.Value)/400))
}

func isCritical(c Classification) bool {
	return c == Inaccuracy || c == Mistake || c == Blunder
}
