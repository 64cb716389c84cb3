package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/samber/do"

	"voiceask/internal/api"
	"voiceask/internal/config"
	"voiceask/internal/livereload"
	"voiceask/internal/mylog"
)

func main() {
	// Load .env file if present (ignored if missing)
	_ = godotenv.Load()
	mylog.Preinit()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "error", err)
		os.Exit(1)
	}
	if err := mylog.Init(cfg.Server); err != nil {
		slog.Error("logging init failed", "error", err)
		os.Exit(1)
	}

	di := do.New()
	defer func() { _ = di.Shutdown() }()

	appCtx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	do.ProvideValue(di, cfg)
	provide(di)

	mux := http.NewServeMux()
	mux.Handle("/", api.NewRouter(do.MustInvoke[*api.Handlers](di), do.MustInvoke[http.Handler](di)))
	if cfg.IsDevelopment() {
		lr := do.MustInvoke[*livereload.Server](di)
		mux.HandleFunc(livereload.Path, lr.HandleWS)
		go func() {
			if err := lr.Watch(appCtx, cfg.Server.DevAssetsDir); err != nil {
				slog.Warn("live reload disabled", "dir", cfg.Server.DevAssetsDir, "error", err)
			}
		}()
	}

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           api.Middleware(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	// Graceful shutdown on SIGINT/SIGTERM
	go func() {
		<-appCtx.Done()
		slog.Info("shutdown signal received; stopping server...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}()

	slog.Info("server starting", "addr", srv.Addr, "env", cfg.Server.Env)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}
