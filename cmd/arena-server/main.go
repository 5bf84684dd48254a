package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/park285/cheese-arena/internal/api"
	"github.com/park285/cheese-arena/internal/archive"
	"github.com/park285/cheese-arena/internal/chess"
	"github.com/park285/cheese-arena/internal/chess/openingbook"
	appcfg "github.com/park285/cheese-arena/internal/config"
	"github.com/park285/cheese-arena/internal/matchws"
	"github.com/park285/cheese-arena/internal/msgcat"
	"github.com/park285/cheese-arena/internal/obslog"
	"github.com/park285/cheese-arena/internal/review"
	"github.com/park285/cheese-arena/internal/room"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer obslog.Sync()
	logger := obslog.L()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cat, err := msgcat.New(cfg.MessagesDir)
	if err != nil {
		logger.Fatal("message catalogue init error", zap.Error(err))
	}

	store, closeStore := openStore(ctx, cfg, logger)
	defer closeStore()

	var roomOpts []room.Option
	var reviews api.ReviewArchive
	if cfg.DatabaseURL != "" {
		repo, err := archive.NewRepository(cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("archive init error", zap.Error(err))
		}
		defer repo.Close()
		if err := repo.EnsureSchema(ctx); err != nil {
			logger.Fatal("archive schema error", zap.Error(err))
		}
		roomOpts = append(roomOpts, room.WithArchiver(repo))
		reviews = repo
	}

	hub := matchws.NewHub()
	rooms := room.NewManager(store, hub, roomOpts...)
	ws := matchws.NewHandler(hub, rooms, matchws.Options{
		OriginPatterns: cfg.AllowedOrigins,
		Catalog:        cat,
	})

	deps := api.Deps{
		Rooms:       rooms,
		Clients:     hub,
		WS:          ws,
		Archive:     reviews,
		Coach:       review.NewCoach(cat),
		ReviewDepth: cfg.ReviewDepth,
		PlayDepth:   cfg.PlayDepth,
		DefaultElo:  cfg.DefaultElo,
	}
	if engine := openEngine(cfg, logger); engine != nil {
		defer engine.Close()
		deps.Engine = engine
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.NewServer(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("arena_listen", zap.String("addr", cfg.ListenAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("arena_shutdown")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		logger.Warn("http shutdown error", zap.Error(err))
	}
}

// openStore picks Redis when REDIS_URL is set and the in-process store otherwise.
func openStore(ctx context.Context, cfg *appcfg.AppConfig, logger *zap.Logger) (room.Store, func()) {
	if cfg.RedisURL == "" {
		logger.Info("room_store", zap.String("kind", "memory"))
		return room.NewMemoryStore(), func() {}
	}
	rs, err := room.OpenRedisStore(ctx, cfg.RedisURL)
	if err != nil {
		logger.Fatal("redis init error", zap.Error(err))
	}
	logger.Info("room_store", zap.String("kind", "redis"))
	return rs, func() { _ = rs.Close() }
}

// openEngine returns nil when no engine is configured; reviews then run without one.
func openEngine(cfg *appcfg.AppConfig, logger *zap.Logger) *chess.Engine {
	if cfg.StockfishPath == "" {
		logger.Warn("engine_disabled", zap.String("reason", "STOCKFISH_PATH not set"))
		return nil
	}
	book, err := openingbook.Open(cfg.OpeningBookPath)
	if err != nil {
		logger.Warn("opening_book_unavailable", zap.String("path", cfg.OpeningBookPath), zap.Error(err))
		book = nil
	}
	engine, err := chess.NewEngine(chess.Config{
		BinaryPath:   cfg.StockfishPath,
		PoolSize:     cfg.EnginePoolSize,
		Threads:      cfg.EngineThreads,
		HashMB:       cfg.EngineHashMB,
		QueryTimeout: cfg.EngineQueryTimeout,
		Book:         book,
	})
	if err != nil {
		logger.Warn("engine_disabled", zap.String("path", cfg.StockfishPath), zap.Error(err))
		return nil
	}
	return engine
}
