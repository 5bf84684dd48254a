package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type AppConfig struct {
	ListenAddr     string
	AllowedOrigins []string

	RedisURL    string
	DatabaseURL string

	StockfishPath      string
	EnginePoolSize     int
	EngineThreads      int
	EngineHashMB       int
	EngineQueryTimeout time.Duration
	ReviewDepth        int
	PlayDepth          int
	DefaultElo         int
	OpeningBookPath    string

	MessagesDir string
}

// Load reads the configuration from the environment and, when CONFIG_FILE is set, from that file.
// Environment variables win over file values.
func Load() (*AppConfig, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if path := strings.TrimSpace(v.GetString("CONFIG_FILE")); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}
	return fromViper(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("LISTEN_ADDR", ":3000")
	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("STOCKFISH_PATH", "")
	v.SetDefault("ENGINE_POOL_SIZE", 0)
	v.SetDefault("ENGINE_THREADS", 1)
	v.SetDefault("ENGINE_HASH_MB", 32)
	v.SetDefault("ENGINE_QUERY_TIMEOUT", "20s")
	v.SetDefault("REVIEW_DEPTH", 12)
	v.SetDefault("PLAY_DEPTH", 10)
	v.SetDefault("DEFAULT_ELO", 1500)
	v.SetDefault("OPENING_BOOK_PATH", "")
	v.SetDefault("MESSAGES_DIR", "")
}

func fromViper(v *viper.Viper) (*AppConfig, error) {
	cfg := &AppConfig{
		ListenAddr:         strings.TrimSpace(v.GetString("LISTEN_ADDR")),
		AllowedOrigins:     splitList(v.GetString("ALLOWED_ORIGINS")),
		RedisURL:           strings.TrimSpace(v.GetString("REDIS_URL")),
		DatabaseURL:        strings.TrimSpace(v.GetString("DATABASE_URL")),
		StockfishPath:      strings.TrimSpace(v.GetString("STOCKFISH_PATH")),
		EnginePoolSize:     v.GetInt("ENGINE_POOL_SIZE"),
		EngineThreads:      v.GetInt("ENGINE_THREADS"),
		EngineHashMB:       v.GetInt("ENGINE_HASH_MB"),
		EngineQueryTimeout: v.GetDuration("ENGINE_QUERY_TIMEOUT"),
		ReviewDepth:        v.GetInt("REVIEW_DEPTH"),
		PlayDepth:          v.GetInt("PLAY_DEPTH"),
		DefaultElo:         v.GetInt("DEFAULT_ELO"),
		OpeningBookPath:    strings.TrimSpace(v.GetString("OPENING_BOOK_PATH")),
		MessagesDir:        strings.TrimSpace(v.GetString("MESSAGES_DIR")),
	}

	if cfg.ListenAddr == "" {
		return nil, errors.New("LISTEN_ADDR must not be empty")
	}
	if cfg.ReviewDepth <= 0 || cfg.PlayDepth <= 0 {
		return nil, fmt.Errorf("search depths must be > 0 (review=%d, play=%d)", cfg.ReviewDepth, cfg.PlayDepth)
	}
	if cfg.EngineQueryTimeout <= 0 {
		return nil, fmt.Errorf("ENGINE_QUERY_TIMEOUT must be positive: %s", cfg.EngineQueryTimeout)
	}
	if cfg.EngineHashMB <= 0 {
		cfg.EngineHashMB = 32
	}
	return cfg, nil
}

func splitList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
