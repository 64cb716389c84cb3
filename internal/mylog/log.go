package mylog

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/phsym/console-slog"
	"github.com/samber/oops"
	slogmulti "github.com/samber/slog-multi"

	"voiceask/internal/config"
)

// Preinit installs a console logger usable before config is loaded.
func Preinit() {
	slog.SetDefault(slog.New(console.NewHandler(os.Stderr, &console.HandlerOptions{
		AddSource: true,
		Level:     slog.LevelDebug,
	})))
}

// Init installs the configured logger. The process default is left alone
// when the format or level is unknown.
func Init(cfg config.Server) error {
	if cfg.LogFormat != "console" && cfg.LogFormat != "json" {
		return oops.
			In("mylog").
			Code("invalid_log_config").
			Errorf("unknown log format %q", cfg.LogFormat)
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		return oops.
			In("mylog").
			Code("invalid_log_config").
			Wrapf(err, "unknown log level %q", cfg.LogLevel)
	}
	slog.SetDefault(slog.New(NewHandler(os.Stderr, cfg)))
	return nil
}

// NewHandler routes records to a console or JSON sink. Access log records
// (those carrying an http_status attr) pass at info whatever the level.
func NewHandler(w io.Writer, cfg config.Server) slog.Handler {
	level := ParseLevel(cfg.LogLevel)
	router := slogmulti.Router()

	if cfg.LogFormat == "json" {
		router = router.Add(slog.NewJSONHandler(w, &slog.HandlerOptions{
			AddSource: true,
			Level:     slog.LevelDebug,
		}), atLeast(level))
	} else {
		router = router.Add(console.NewHandler(w, &console.HandlerOptions{
			AddSource: cfg.Env == "development",
			Level:     slog.LevelDebug,
		}), atLeast(level))
	}

	return router.Handler()
}

func atLeast(level slog.Level) func(context.Context, slog.Record) bool {
	return func(_ context.Context, r slog.Record) bool {
		if r.Level >= level {
			return true
		}
		isAccess := false
		r.Attrs(func(attr slog.Attr) bool {
			if attr.Key == "http_status" {
				isAccess = true
				return false
			}
			return true
		})
		return isAccess && r.Level >= slog.LevelInfo
	}
}

func ParseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}
