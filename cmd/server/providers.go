package main

import (
	"context"
	"io/fs"
	"net/http"
	"os"

	"github.com/samber/do"
	"github.com/sashabaranov/go-openai"

	"voiceask/internal/api"
	"voiceask/internal/assistant"
	"voiceask/internal/config"
	"voiceask/internal/health"
	"voiceask/internal/livereload"
	"voiceask/internal/orchestrator"
	"voiceask/internal/realtime"
	"voiceask/internal/static"
	"voiceask/internal/store"
	"voiceask/internal/tts"
	"voiceask/web"
)

func provide(di *do.Injector) {
	do.Provide(di, newOpenAI)
	do.Provide(di, newAssistant)
	do.Provide(di, newSynthesizer)
	do.Provide(di, newJournal)
	do.Provide(di, newOrchestrator)
	do.Provide(di, newRealtime)
	do.Provide(di, newLiveReload)
	do.Provide(di, newSite)
	do.Provide(di, newHandlers)
}

func newOpenAI(di *do.Injector) (*openai.Client, error) {
	cfg := do.MustInvoke[config.Config](di)
	return assistant.NewOpenAIClient(assistant.Config{
		APIKey:      cfg.OpenAI.APIKey,
		BaseURL:     cfg.OpenAI.BaseURL,
		AssistantID: cfg.OpenAI.AssistantID,
		HTTPTimeout: cfg.OpenAI.HTTPTimeout,
	}), nil
}

func newAssistant(di *do.Injector) (*assistant.Client, error) {
	cfg := do.MustInvoke[config.Config](di)
	return assistant.New(do.MustInvoke[*openai.Client](di), cfg.OpenAI.AssistantID), nil
}

func newSynthesizer(di *do.Injector) (*tts.Synthesizer, error) {
	cfg := do.MustInvoke[config.Config](di)
	return tts.NewSynthesizer(do.MustInvoke[*openai.Client](di), tts.Config{
		Model:  cfg.Speech.Model,
		Voice:  cfg.Speech.Voice,
		Format: cfg.Speech.Format,
	}), nil
}

func newJournal(di *do.Injector) (*store.Store, error) {
	return store.New(), nil
}

func newOrchestrator(di *do.Injector) (*orchestrator.Orchestrator, error) {
	cfg := do.MustInvoke[config.Config](di)
	var synth orchestrator.Synthesizer
	if cfg.Speech.Enabled {
		synth = do.MustInvoke[*tts.Synthesizer](di)
	}
	opts := orchestrator.Options{
		VectorStoreID:       cfg.Fallback.VectorStoreID,
		GroundedMinLength:   cfg.Fallback.GroundedMinLength,
		SpeechMinLength:     cfg.Fallback.SpeechMinLength,
		Strategy:            orchestrator.Strategy(cfg.Fallback.Strategy),
		ClarificationPrompt: cfg.Fallback.ClarificationPrompt,
		Placeholder:         cfg.Fallback.Placeholder,
		PollInterval:        cfg.Fallback.PollInterval,
		PollMaxAttempts:     cfg.Fallback.PollMaxAttempts,
		PollTimeout:         cfg.Fallback.PollTimeout,
	}
	return orchestrator.New(opts, do.MustInvoke[*assistant.Client](di), synth, do.MustInvoke[*store.Store](di)), nil
}

func newRealtime(di *do.Injector) (*realtime.HTTPClient, error) {
	cfg := do.MustInvoke[config.Config](di)
	return realtime.NewClient(realtime.Config{
		APIKey:       cfg.OpenAI.APIKey,
		BaseURL:      cfg.OpenAI.BaseURL,
		Model:        cfg.Realtime.Model,
		Voice:        cfg.Realtime.Voice,
		Instructions: cfg.Realtime.Instructions,
		Timeout:      cfg.OpenAI.HTTPTimeout,
	})
}

func newLiveReload(di *do.Injector) (*livereload.Server, error) {
	return livereload.NewServer(livereload.NewRegistry()), nil
}

func newSite(di *do.Injector) (http.Handler, error) {
	cfg := do.MustInvoke[config.Config](di)
	if cfg.IsDevelopment() {
		return static.New(os.DirFS(cfg.Server.DevAssetsDir), static.Options{
			NoStore: true,
			Inject:  livereload.Script,
		}), nil
	}
	var assets fs.FS = web.FS
	if cfg.Server.StaticDir != "" {
		assets = os.DirFS(cfg.Server.StaticDir)
	}
	return static.New(assets, static.Options{}), nil
}

func newHandlers(di *do.Injector) (*api.Handlers, error) {
	cfg := do.MustInvoke[config.Config](di)
	vendor := do.MustInvoke[*openai.Client](di)
	ready := func(ctx context.Context) health.HealthStatus {
		return health.CheckAll(ctx, cfg, vendor)
	}
	return api.NewHandlers(
		cfg,
		do.MustInvoke[*orchestrator.Orchestrator](di),
		do.MustInvoke[*realtime.HTTPClient](di),
		do.MustInvoke[*store.Store](di),
		ready,
	), nil
}
