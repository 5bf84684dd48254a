package uci

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ScoreKind tells whether a score is a centipawn value or a distance to mate.
type ScoreKind string

const (
	ScoreCentipawns ScoreKind = "cp"
	ScoreMate       ScoreKind = "mate"
)

// Score is reported from the side to move's point of view, as UCI engines do.
type Score struct {
	Kind  ScoreKind
	Value int
}

type Candidate struct {
	Move      string
	Score     Score
	Depth     int
	Principal []string
}

func buildPositionCommand(fen string, moves []string) string {
	var sb strings.Builder
	if strings.TrimSpace(fen) == "" || fen == "startpos" {
		sb.WriteString("position startpos")
	} else {
		sb.WriteString("position fen ")
		sb.WriteString(strings.TrimSpace(fen))
	}
	if len(moves) > 0 {
		sb.WriteString(" moves ")
		sb.WriteString(strings.Join(moves, " "))
	}
	sb.WriteString("\n")
	return sb.String()
}

func buildGoTokens(l Limits) ([]string, error) {
	args := []string{"go"}
	if l.Depth > 0 {
		args = append(args, "depth", strconv.Itoa(l.Depth))
	}
	if l.MoveTimeMillis > 0 {
		args = append(args, "movetime", strconv.Itoa(l.MoveTimeMillis))
	}
	if l.NodeCap > 0 {
		args = append(args, "nodes", strconv.Itoa(l.NodeCap))
	}
	if len(args) == 1 {
		return nil, fmt.Errorf("no search limits specified")
	}
	return args, nil
}

// parseInfo extracts the multipv slot and the scored candidate from an "info" line.
// Lines without a score (currmove, string, nps-only) are rejected.
func parseInfo(line string) (int, Candidate, bool) {
	parts := strings.Fields(line)
	if len(parts) == 0 || parts[0] != "info" {
		return 0, Candidate{}, false
	}
	var (
		multipv  = 1
		cand     Candidate
		scoreSet bool
	)

	for i := 1; i < len(parts); i++ {
		switch parts[i] {
		case "multipv":
			if i+1 < len(parts) {
				if v, err := strconv.Atoi(parts[i+1]); err == nil {
					multipv = v
				}
				i++
			}
		case "depth":
			if i+1 < len(parts) {
				if v, err := strconv.Atoi(parts[i+1]); err == nil {
					cand.Depth = v
				}
				i++
			}
		case "score":
			if i+2 < len(parts) {
				v, err := strconv.Atoi(parts[i+2])
				if err == nil {
					switch parts[i+1] {
					case "cp":
						cand.Score = Score{Kind: ScoreCentipawns, Value: v}
						scoreSet = true
					case "mate":
						cand.Score = Score{Kind: ScoreMate, Value: v}
						scoreSet = true
					}
				}
				i += 2
			}
		case "lowerbound", "upperbound":
			// bound scores are provisional; the next exact line replaces them
		case "pv":
			if i+1 < len(parts) {
				cand.Principal = append([]string(nil), parts[i+1:]...)
				cand.Move = cand.Principal[0]
			}
			i = len(parts)
		}
	}

	if !scoreSet {
		return 0, Candidate{}, false
	}
	return multipv, cand, true
}

// parseBestMove returns the move and optional ponder move of a "bestmove" line.
// "bestmove (none)" is reported by engines on terminal positions and yields an empty move.
func parseBestMove(line string) (string, string) {
	parts := strings.Fields(line)
	if len(parts) < 2 || parts[0] != "bestmove" {
		return "", ""
	}
	best := parts[1]
	if best == "(none)" || best == "0000" {
		best = ""
	}
	ponder := ""
	if len(parts) >= 4 && parts[2] == "ponder" {
		ponder = parts[3]
	}
	return best, ponder
}

func collapseCandidates(m map[int]Candidate) []Candidate {
	if len(m) == 0 {
		return nil
	}
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	result := make([]Candidate, 0, len(keys))
	for _, k := range keys {
		result = append(result, m[k])
	}
	return result
}
