package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/park285/cheese-arena/internal/obslog"
	"github.com/park285/cheese-arena/internal/review"
	"github.com/park285/cheese-arena/pkg/reviewdto"
)

const (
	maxReviewDepth     = 30
	archiveSaveTimeout = 5 * time.Second
)

func (s *Server) handleReview(w http.ResponseWriter, r *http.Request) {
	var req reviewdto.ReviewRequest
	if !decodeBody(w, r, &req) {
		return
	}
	moves, err := review.ParseMoves(req.PGN)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_pgn", err.Error())
		return
	}

	depth := s.deps.ReviewDepth
	if req.Depth > 0 {
		depth = min(req.Depth, maxReviewDepth)
	}

	var analyzer review.Analyzer
	if s.deps.Engine != nil {
		analyzer = s.deps.Engine
	}
	session, err := review.NewPipeline(analyzer, depth).Run(r.Context(), moves)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			writeError(w, http.StatusServiceUnavailable, "review_cancelled", "review did not finish")
			return
		}
		obslog.L().Error("review_failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "review_failed", "review failed")
		return
	}

	rep, err := BuildReport(uuid.NewString(), session, s.deps.Coach)
	if err != nil {
		obslog.L().Error("review_report_failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "review_failed", "review failed")
		return
	}
	if s.deps.Archive != nil {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), archiveSaveTimeout)
		if err := s.deps.Archive.SaveReview(ctx, strings.TrimSpace(req.PGN), rep); err != nil {
			obslog.L().Warn("review_archive_failed", zap.String("review_id", rep.ID), zap.Error(err))
		}
		cancel()
	}
	writeJSON(w, http.StatusOK, rep)
}

// BuildReport flattens a finished review into its wire form, rendering every step.
func BuildReport(id string, s *review.Session, coach *review.Coach) (*reviewdto.ReviewReport, error) {
	rep := &reviewdto.ReviewReport{
		ID:              id,
		Moves:           make([]reviewdto.Move, len(s.Moves)),
		Evaluations:     make([]reviewdto.Evaluation, len(s.Evaluations)),
		Classifications: make([]string, len(s.Moves)),
		Steps:           make([]reviewdto.Step, len(s.Evaluations)),
	}
	for i, mv := range s.Moves {
		rep.Moves[i] = reviewdto.Move{
			UCI:       mv.UCI,
			SAN:       mv.SAN,
			From:      mv.From,
			To:        mv.To,
			Promotion: mv.Promotion,
			Capture:   mv.IsCapture,
			Check:     mv.IsCheck,
		}
	}
	for i, ev := range s.Evaluations {
		rep.Evaluations[i] = reviewdto.Evaluation{
			Kind:     string(ev.Kind),
			Value:    ev.Value,
			Winner:   ev.Winner(),
			BestMove: ev.BestMove,
			Display:  review.FormatScore(ev),
		}
	}
	for i, c := range s.ClassifyAll() {
		rep.Classifications[i] = string(c)
	}
	for i := range s.Evaluations {
		v, err := review.ViewFor(s, coach, review.Reviewing(i))
		if err != nil {
			return nil, err
		}
		rep.Steps[i] = reviewdto.Step{
			Index:          v.Index,
			FEN:            s.Positions[i].FEN,
			Score:          v.Score,
			EvalBar:        v.EvalBar,
			Classification: string(v.Classification),
			SuggestedMove:  v.SuggestedMove,
			Coach:          v.Coach,
			WhiteAccuracy:  v.WhiteAccuracy,
			BlackAccuracy:  v.BlackAccuracy,
		}
	}

	sum := review.Summarize(s)
	rep.White = sideStats(sum.White)
	rep.Black = sideStats(sum.Black)
	if s.Opening != nil {
		rep.Opening = &reviewdto.Opening{Code: s.Opening.Code, Title: s.Opening.Title}
	}
	return rep, nil
}

func sideStats(st review.SideStats) reviewdto.SideStats {
	counts := make(map[string]int, len(st.Counts))
	for c, n := range st.Counts {
		counts[string(c)] = n
	}
	return reviewdto.SideStats{Counts: counts, Accuracy: st.Accuracy, Moves: st.Moves}
}
