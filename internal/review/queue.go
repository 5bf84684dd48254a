package review

import (
	"fmt"
	"strings"

	nchess "github.com/corentings/chess/v2"
)

// BuildQueue replays moves from the standard start and produces one analysis item per
// position: the start (ply -1) followed by the position after every move.
// Terminal positions carry their evaluation so the engine is never asked about them.
func BuildQueue(moves []MoveRecord) ([]Item, error) {
	game := nchess.NewGame()
	items := make([]Item, 0, len(moves)+1)
	items = append(items, Item{Position: snapshot(game), Ply: -1})

	for i, mv := range moves {
		if err := game.PushNotationMove(mv.UCI, nchess.UCINotation{}, nil); err != nil {
			return nil, fmt.Errorf("apply move %d %q: %w", i+1, mv.UCI, err)
		}
		pos := snapshot(game)
		item := Item{Position: pos, Ply: i}
		switch {
		case pos.Checkmate:
			// the side to move has been mated
			sign := 1
			if pos.Turn == nchess.White {
				sign = -1
			}
			item.Manual = &Evaluation{Kind: Mate, Value: 0, MateSign: sign}
		case pos.Draw:
			item.Manual = &Evaluation{Kind: Centipawns, Value: 0}
		}
		items = append(items, item)
	}
	return items, nil
}

func snapshot(game *nchess.Game) Position {
	return Position{
		FEN:       game.FEN(),
		Turn:      game.Position().Turn(),
		Checkmate: game.Method() == nchess.Checkmate,
		Draw:      game.Outcome() == nchess.Draw || claimableDraw(game),
	}
}

// claimableDraw reports threefold repetition and the fifty-move rule, which the rules
// library only offers as claims. The engine sees a bare FEN and cannot detect either.
func claimableDraw(game *nchess.Game) bool {
	for _, m := range game.EligibleDraws() {
		if m == nchess.ThreefoldRepetition || m == nchess.FiftyMoveRule {
			return true
		}
	}
	return false
}

// MovesFromUCI validates a coordinate move list against the rules and fills in SAN and flags.
func MovesFromUCI(list []string) ([]MoveRecord, error) {
	game := nchess.NewGame()
	out := make([]MoveRecord, 0, len(list))
	for i, raw := range list {
		s := strings.ToLower(strings.TrimSpace(raw))
		if len(s) != 4 && len(s) != 5 {
			return nil, fmt.Errorf("move %d %q: not a coordinate move", i+1, raw)
		}
		pos := game.Position()
		mv, err := (nchess.UCINotation{}).Decode(pos, s)
		if err != nil {
			return nil, fmt.Errorf("move %d %q: %w", i+1, raw, err)
		}
		if err := game.Move(mv, nil); err != nil {
			return nil, fmt.Errorf("move %d %q: %w", i+1, raw, err)
		}
		san := (nchess.AlgebraicNotation{}).Encode(pos, mv)
		rec := MoveRecord{
			From:      s[0:2],
			To:        s[2:4],
			SAN:       san,
			UCI:       s,
			IsCapture: strings.Contains(san, "x"),
			IsCheck:   strings.ContainsAny(san, "+#"),
		}
		if len(s) == 5 {
			rec.Promotion = s[4:]
		}
		out = append(out, rec)
	}
	return out, nil
}

// ParseMoves reads the main line of a PGN game.
func ParseMoves(pgn string) ([]MoveRecord, error) {
	if strings.TrimSpace(pgn) == "" {
		return nil, fmt.Errorf("%w: empty input", ErrInvalidPGN)
	}
	opt, err := nchess.PGN(strings.NewReader(pgn))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPGN, err)
	}
	game := nchess.NewGame(opt)
	if len(game.Moves()) == 0 {
		return nil, fmt.Errorf("%w: no moves", ErrInvalidPGN)
	}

	ucis := make([]string, 0, len(game.Moves()))
	for _, mv := range game.Moves() {
		ucis = append(ucis, mv.String())
	}
	moves, err := MovesFromUCI(ucis)
	if err != nil {
		// games set up from a custom position cannot be replayed from the start
		return nil, fmt.Errorf("%w: %v", ErrInvalidPGN, err)
	}
	return moves, nil
}
