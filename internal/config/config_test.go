package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != ":3000" {
		t.Fatalf("listen addr = %q", cfg.ListenAddr)
	}
	if cfg.ReviewDepth != 12 || cfg.PlayDepth != 10 {
		t.Fatalf("depths = %d/%d, want 12/10", cfg.ReviewDepth, cfg.PlayDepth)
	}
	if cfg.EngineQueryTimeout != 20*time.Second {
		t.Fatalf("timeout = %s", cfg.EngineQueryTimeout)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("LISTEN_ADDR", ":8080")
	t.Setenv("ALLOWED_ORIGINS", "localhost:3000, example.com ,")
	t.Setenv("REVIEW_DEPTH", "16")
	t.Setenv("ENGINE_QUERY_TIMEOUT", "5s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != ":8080" || cfg.ReviewDepth != 16 {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "example.com" {
		t.Fatalf("origins = %v", cfg.AllowedOrigins)
	}
	if cfg.EngineQueryTimeout != 5*time.Second {
		t.Fatalf("timeout = %s", cfg.EngineQueryTimeout)
	}
}

func TestLoadRejectsZeroDepth(t *testing.T) {
	t.Setenv("PLAY_DEPTH", "0")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for zero play depth")
	}
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "arena.yaml")
	if err := os.WriteFile(path, []byte("STOCKFISH_PATH: /usr/games/stockfish\nDEFAULT_ELO: 1800\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.StockfishPath != "/usr/games/stockfish" || cfg.DefaultElo != 1800 {
		t.Fatalf("file values not applied: %+v", cfg)
	}
}
