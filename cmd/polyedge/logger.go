package main

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/alejandrodnm/polyedge/config"
)

// setupLogger instala el logger global. Si cfg.File está definido, escribe
// también a ese archivo con rotación. Devuelve la función de cierre.
func setupLogger(cfg config.LogConfig) func() {
	out, closer := logWriter(cfg)

	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}
	slog.SetDefault(slog.New(handler))

	return func() {
		if closer != nil {
			_ = closer.Close()
		}
	}
}

func logWriter(cfg config.LogConfig) (io.Writer, io.Closer) {
	if cfg.File == "" {
		return os.Stdout, nil
	}
	lj := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   true,
	}
	return io.MultiWriter(os.Stdout, lj), lj
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
