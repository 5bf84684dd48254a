package api

import (
	"errors"
	"net/http"
	"strings"

	nchess "github.com/corentings/chess/v2"
	"go.uber.org/zap"

	"github.com/park285/cheese-arena/internal/chess"
	"github.com/park285/cheese-arena/internal/obslog"
	"github.com/park285/cheese-arena/pkg/reviewdto"
)

func (s *Server) handleEngineMove(w http.ResponseWriter, r *http.Request) {
	var req reviewdto.EngineMoveRequest
	if !decodeBody(w, r, &req) {
		return
	}
	fen := strings.TrimSpace(req.FEN)
	if fen == "" {
		writeError(w, http.StatusBadRequest, "invalid_fen", "fen is required")
		return
	}
	if _, err := nchess.FEN(fen); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_fen", err.Error())
		return
	}

	elo := req.Elo
	if strings.TrimSpace(req.Level) != "" {
		var err error
		if elo, err = chess.EloForLevel(req.Level); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_level", err.Error())
			return
		}
	}
	if elo == 0 {
		elo = s.deps.DefaultElo
	}

	if s.deps.Engine == nil {
		writeError(w, http.StatusServiceUnavailable, "engine_unavailable", chess.ErrEngineUnavailable.Error())
		return
	}
	res, err := s.deps.Engine.PlayMove(r.Context(), chess.PlayRequest{FEN: fen, Elo: elo, Depth: s.deps.PlayDepth})
	if err != nil {
		if errors.Is(err, chess.ErrEngineUnavailable) {
			writeError(w, http.StatusServiceUnavailable, "engine_unavailable", err.Error())
			return
		}
		obslog.L().Error("engine_move_failed", zap.String("fen", fen), zap.Int("elo", elo), zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "engine_failed", "engine did not return a move")
		return
	}
	writeJSON(w, http.StatusOK, reviewdto.EngineMoveResponse{Move: res.Move, SAN: res.SAN, FromBook: res.FromBook})
}
