package review

import (
	nchess "github.com/corentings/chess/v2"

	"github.com/park285/cheese-arena/internal/msgcat"
)

// Coach turns classifications into short explanations using the message catalogue.
type Coach struct {
	cat *msgcat.Catalog
}

// NewCoach returns a coach backed by cat, or by the embedded catalogue when cat is nil.
func NewCoach(cat *msgcat.Catalog) *Coach {
	if cat == nil {
		cat = msgcat.Default()
	}
	return &Coach{cat: cat}
}

func (c *Coach) Start() string {
	return c.cat.Text("coach.start", nil, "")
}

// Explain describes Moves[ply]. Critical moves name the engine's choice at the position
// before the move was played.
func (c *Coach) Explain(s *Session, ply int) string {
	if ply < 0 || ply >= len(s.Moves) {
		return ""
	}
	san := s.Moves[ply].SAN
	after := s.Positions[ply+1]

	if after.Checkmate {
		winner := "White"
		if s.Mover(ply) == nchess.Black {
			winner = "Black"
		}
		return c.cat.Text("coach.checkmate", map[string]string{"SAN": san, "Winner": winner}, san+" is checkmate.")
	}
	if after.Draw {
		return c.cat.Text("coach.draw", map[string]string{"SAN": san}, san)
	}

	class, _ := s.Classify(ply)
	key := "coach." + string(class)
	data := map[string]string{"SAN": san}
	if isCritical(class) {
		best := bestMoveSAN(s, ply)
		if best == "" {
			key += "_nobest"
		} else {
			data["Best"] = best
		}
	}
	return c.cat.Text(key, data, san)
}
