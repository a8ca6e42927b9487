package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Config controls logger construction from the environment.
type Config struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`   // Level is one of debug, info, warn, error.
	Format string `env:"LOG_FORMAT" envDefault:"json"`  // Format is json for production aggregation or text for development.
	App    string `env:"LOG_APP_NAME" envDefault:""`    // App is attached as a static attribute when set.
}

// New builds a slog.Logger from the config, writing to w (os.Stderr when
// nil). Unknown levels and formats fall back to info/json rather than
// failing startup.
func New(cfg Config, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}

	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "text":
		handler = slog.NewTextHandler(w, opts)
	default:
		handler = slog.NewJSONHandler(w, opts)
	}

	log := slog.New(handler)
	if cfg.App != "" {
		log = log.With(slog.String("app", cfg.App))
	}
	return log
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
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
