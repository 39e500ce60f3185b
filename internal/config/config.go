package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	GRPCAddr       string
	TLSCert        string
	TLSKey         string
	AuthToken      string
	AuditBuffer    int
	RateLimitRPS   int
	DataDir        string
	LogLevel       string
	Seed           string
	SeedFile       string
	SeedPassphrase string
}

func Load() Config {
	return Config{
		GRPCAddr:       envOr("CXEMU_GRPC_ADDR", ":50051"),
		TLSCert:        os.Getenv("CXEMU_TLS_CERT"),
		TLSKey:         os.Getenv("CXEMU_TLS_KEY"),
		AuthToken:      envOr("CXEMU_AUTH_TOKEN", "dev-token"),
		AuditBuffer:    envInt("CXEMU_AUDIT_BUFFER", 1024),
		RateLimitRPS:   envInt("CXEMU_RATE_LIMIT_RPS", 100),
		DataDir:        envOr("CXEMU_DATA_DIR", ""),
		LogLevel:       envOr("CXEMU_LOG_LEVEL", "info"),
		Seed:           os.Getenv("CXEMU_SEED"),
		SeedFile:       os.Getenv("CXEMU_SEED_FILE"),
		SeedPassphrase: os.Getenv("CXEMU_SEED_PASSPHRASE"),
	}
}

// SlogLevel maps LogLevel onto a slog level, defaulting to info.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
