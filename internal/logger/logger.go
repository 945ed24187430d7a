package logger

import (
	"log/slog"
	"os"
	"strings"

	"github.com/marketplace-ledger/settlement-engine/internal/config"
)

// NewLogger builds the process-wide JSON logger. Level comes from config;
// source locations are attached only at debug so close and settlement run
// logs stay compact.
func NewLogger(cfg *config.Config) *slog.Logger {
	level := parseLevel(cfg.Logging.Level)

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, opts))
	logger.Info("Logger initialized", "level", level.String())

	return logger
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
