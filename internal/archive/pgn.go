package archive

import (
	"fmt"
	"strings"
	"time"

	nchess "github.com/corentings/chess/v2"

	"github.com/park285/cheese-arena/internal/room"
)

// matchPGN replays the relayed moves and renders them as PGN. Relayed moves are not
// validated by the server, so replay stops at the first illegal move and the game is
// left unterminated.
func matchPGN(rm *room.Room, ended time.Time) string {
	game := nchess.NewGame()
	san := make([]string, 0, len(rm.Moves))
	for _, mv := range rm.Moves {
		uci := strings.ToLower(mv.From + mv.To + mv.Promotion)
		pos := game.Position()
		decoded, err := (nchess.UCINotation{}).Decode(pos, uci)
		if err != nil {
			break
		}
		if err := game.Move(decoded, nil); err != nil {
			break
		}
		san = append(san, (nchess.AlgebraicNotation{}).Encode(pos, decoded))
	}
	if len(san) == 0 {
		return ""
	}

	result := "*"
	switch game.Outcome() {
	case nchess.WhiteWon:
		result = "1-0"
	case nchess.BlackWon:
		result = "0-1"
	case nchess.Draw:
		result = "1/2-1/2"
	}
	white, black := seats(rm)
	return buildPGN(pgnHeader{
		Date:   ended,
		White:  white,
		Black:  black,
		Site:   rm.Code,
		Result: result,
	}, san)
}

type pgnHeader struct {
	Date   time.Time
	White  string
	Black  string
	Site   string
	Result string
}

func buildPGN(h pgnHeader, san []string) string {
	var b strings.Builder
	date := h.Date
	if date.IsZero() {
		date = time.Now()
	}
	b.WriteString("[Event \"Arena match\"]\n")
	b.WriteString(fmt.Sprintf("[Site \"%s\"]\n", sanitizePGN(h.Site)))
	b.WriteString(fmt.Sprintf("[Date \"%04d.%02d.%02d\"]\n", date.Year(), int(date.Month()), date.Day()))
	b.WriteString(fmt.Sprintf("[White \"%s\"]\n", sanitizePGN(h.White)))
	b.WriteString(fmt.Sprintf("[Black \"%s\"]\n", sanitizePGN(h.Black)))
	b.WriteString(fmt.Sprintf("[Result \"%s\"]\n\n", h.Result))

	for i := 0; i < len(san); i += 2 {
		b.WriteString(fmt.Sprintf("%d. %s", i/2+1, strings.TrimSpace(san[i])))
		if i+1 < len(san) {
			b.WriteString(" ")
			b.WriteString(strings.TrimSpace(san[i+1]))
		}
		b.WriteString(" ")
	}
	b.WriteString(h.Result)
	return b.String()
}

func sanitizePGN(s string) string {
	s = strings.ReplaceAll(s, "\\", " ")
	s = strings.ReplaceAll(s, "\"", "'")
	return strings.TrimSpace(s)
}
