package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/park285/cheese-arena/internal/chess"
	"github.com/park285/cheese-arena/internal/obslog"
	"github.com/park285/cheese-arena/internal/review"
	"github.com/park285/cheese-arena/internal/room"
	"github.com/park285/cheese-arena/pkg/reviewdto"
)

const maxBodyBytes = 1 << 20

// EngineService is the engine surface the HTTP API needs.
type EngineService interface {
	review.Analyzer
	PlayMove(ctx context.Context, req chess.PlayRequest) (chess.PlayResult, error)
	Live() int
}

// ReviewArchive persists finished review reports.
type ReviewArchive interface {
	SaveReview(ctx context.Context, pgn string, rep *reviewdto.ReviewReport) error
}

// ClientCounter reports live WebSocket connections.
type ClientCounter interface {
	Count() int
}

type Deps struct {
	Rooms   *room.Manager
	Clients ClientCounter
	WS      http.Handler
	Engine  EngineService
	Archive ReviewArchive
	Coach   *review.Coach

	ReviewDepth int
	PlayDepth   int
	DefaultElo  int
}

type Server struct {
	deps Deps
	mux  chi.Router
}

func NewServer(deps Deps) *Server {
	if deps.Coach == nil {
		deps.Coach = review.NewCoach(nil)
	}
	if deps.ReviewDepth <= 0 {
		deps.ReviewDepth = review.DefaultDepth
	}
	if deps.PlayDepth <= 0 {
		deps.PlayDepth = 10
	}
	if deps.DefaultElo <= 0 {
		deps.DefaultElo = 1500
	}
	s := &Server{deps: deps}
	s.mux = s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(accessLog)

	r.Get("/healthz", s.handleHealth)
	if s.deps.WS != nil {
		r.Handle("/ws", s.deps.WS)
	}
	r.Route("/api", func(r chi.Router) {
		r.Post("/review", s.handleReview)
		r.Post("/engine/move", s.handleEngineMove)
	})
	return r
}

func accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		obslog.L().Info("http_request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	h := reviewdto.Health{Status: "ok"}
	if s.deps.Rooms != nil {
		n, err := s.deps.Rooms.Live(r.Context())
		if err != nil {
			obslog.L().Warn("health_room_count_failed", zap.Error(err))
			h.Status = "degraded"
		}
		h.Rooms = n
	}
	if s.deps.Clients != nil {
		h.Clients = s.deps.Clients.Count()
	}
	if s.deps.Engine != nil {
		h.Engines = s.deps.Engine.Live()
	}
	writeJSON(w, http.StatusOK, h)
}
