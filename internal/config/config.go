package config

import (
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/samber/oops"
	"github.com/spf13/viper"
)

type Config struct {
	Server   Server
	OpenAI   OpenAI
	Fallback Fallback
	Speech   Speech
	Realtime Realtime
}

type Server struct {
	Port         string `validate:"required,numeric"`
	Env          string `validate:"oneof=production development"`
	LogLevel     string `validate:"oneof=debug info warn error"`
	LogFormat    string `validate:"oneof=console json"`
	StaticDir    string
	DevAssetsDir string
	// EventsSecret signs per-user journal tokens. Empty leaves /events
	// open in development and disabled otherwise.
	EventsSecret   string
	EventsTokenTTL time.Duration `validate:"gt=0"`
}

type OpenAI struct {
	APIKey      string        `validate:"required"`
	BaseURL     string        `validate:"required,url"`
	AssistantID string        `validate:"required"`
	HTTPTimeout time.Duration `validate:"gt=0"`
}

type Fallback struct {
	// Empty skips the grounded pass.
	VectorStoreID       string
	GroundedMinLength   int    `validate:"min=1"`
	SpeechMinLength     int    `validate:"min=1"`
	Strategy            string `validate:"oneof=direct clarify"`
	ClarificationPrompt string
	Placeholder         string
	PollInterval        time.Duration `validate:"gt=0"`
	PollMaxAttempts     int           `validate:"min=1"`
	PollTimeout         time.Duration `validate:"gt=0"`
}

type Speech struct {
	Enabled bool
	Model   string `validate:"required_if=Enabled true"`
	Voice   string `validate:"required_if=Enabled true"`
	Format  string `validate:"oneof=mp3 opus aac flac wav pcm"`
}

type Realtime struct {
	Model        string `validate:"required"`
	Voice        string `validate:"required"`
	Instructions string
	ResponseMode string `validate:"oneof=compact raw"`
}

// IsDevelopment reports whether assets are served from disk with live reload.
func (c Config) IsDevelopment() bool { return c.Server.Env == "development" }

func (c Config) Addr() string { return ":" + c.Server.Port }

func Load() (Config, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.env", "production")
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.log_format", "console")
	v.SetDefault("server.dev_assets_dir", "web")
	v.SetDefault("server.events_token_ttl", "24h")

	v.SetDefault("openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("openai.http_timeout", "30s")

	v.SetDefault("fallback.grounded_min_length", 20)
	v.SetDefault("fallback.speech_min_length", 10)
	v.SetDefault("fallback.strategy", "direct")
	v.SetDefault("fallback.poll_interval", "1s")
	v.SetDefault("fallback.poll_max_attempts", 120)
	v.SetDefault("fallback.poll_timeout", "2m")

	v.SetDefault("speech.enabled", true)
	v.SetDefault("speech.model", "tts-1")
	v.SetDefault("speech.voice", "alloy")
	v.SetDefault("speech.format", "mp3")

	v.SetDefault("realtime.model", "gpt-4o-realtime-preview")
	v.SetDefault("realtime.voice", "verse")
	v.SetDefault("realtime.response_mode", "compact")

	// Map envs
	_ = v.BindEnv("server.port", "PORT")
	_ = v.BindEnv("server.env", "APP_ENV")
	_ = v.BindEnv("server.log_level", "LOG_LEVEL")
	_ = v.BindEnv("server.log_format", "LOG_FORMAT")
	_ = v.BindEnv("server.static_dir", "STATIC_DIR")
	_ = v.BindEnv("server.dev_assets_dir", "DEV_ASSETS_DIR")
	_ = v.BindEnv("server.events_secret", "EVENTS_TOKEN_SECRET")
	_ = v.BindEnv("server.events_token_ttl", "EVENTS_TOKEN_TTL")

	_ = v.BindEnv("openai.api_key", "OPENAI_API_KEY")
	_ = v.BindEnv("openai.base_url", "OPENAI_BASE_URL")
	_ = v.BindEnv("openai.assistant_id", "OPENAI_ASSISTANT_ID")
	_ = v.BindEnv("openai.http_timeout", "OPENAI_HTTP_TIMEOUT")

	_ = v.BindEnv("fallback.vector_store_id", "OPENAI_VECTOR_STORE_ID")
	_ = v.BindEnv("fallback.grounded_min_length", "GROUNDED_MIN_LENGTH")
	_ = v.BindEnv("fallback.speech_min_length", "SPEECH_MIN_LENGTH")
	_ = v.BindEnv("fallback.strategy", "FALLBACK_STRATEGY")
	_ = v.BindEnv("fallback.clarification_prompt", "CLARIFICATION_PROMPT")
	_ = v.BindEnv("fallback.placeholder", "NO_ANSWER_TEXT")
	_ = v.BindEnv("fallback.poll_interval", "RUN_POLL_INTERVAL")
	_ = v.BindEnv("fallback.poll_max_attempts", "RUN_POLL_MAX_ATTEMPTS")
	_ = v.BindEnv("fallback.poll_timeout", "RUN_POLL_TIMEOUT")

	_ = v.BindEnv("speech.enabled", "TTS_ENABLED")
	_ = v.BindEnv("speech.model", "TTS_MODEL")
	_ = v.BindEnv("speech.voice", "TTS_VOICE")
	_ = v.BindEnv("speech.format", "TTS_FORMAT")

	_ = v.BindEnv("realtime.model", "REALTIME_MODEL")
	_ = v.BindEnv("realtime.voice", "REALTIME_VOICE")
	_ = v.BindEnv("realtime.instructions", "REALTIME_INSTRUCTIONS")
	_ = v.BindEnv("realtime.response_mode", "REALTIME_TOKEN_RESPONSE")

	var c Config
	c.Server.Port = v.GetString("server.port")
	c.Server.Env = strings.ToLower(v.GetString("server.env"))
	c.Server.LogLevel = strings.ToLower(v.GetString("server.log_level"))
	c.Server.LogFormat = strings.ToLower(v.GetString("server.log_format"))
	c.Server.StaticDir = v.GetString("server.static_dir")
	c.Server.DevAssetsDir = v.GetString("server.dev_assets_dir")
	c.Server.EventsSecret = v.GetString("server.events_secret")
	c.Server.EventsTokenTTL = v.GetDuration("server.events_token_ttl")

	c.OpenAI.APIKey = v.GetString("openai.api_key")
	c.OpenAI.BaseURL = v.GetString("openai.base_url")
	c.OpenAI.AssistantID = v.GetString("openai.assistant_id")
	c.OpenAI.HTTPTimeout = v.GetDuration("openai.http_timeout")

	c.Fallback.VectorStoreID = v.GetString("fallback.vector_store_id")
	c.Fallback.GroundedMinLength = v.GetInt("fallback.grounded_min_length")
	c.Fallback.SpeechMinLength = v.GetInt("fallback.speech_min_length")
	c.Fallback.Strategy = strings.ToLower(v.GetString("fallback.strategy"))
	c.Fallback.ClarificationPrompt = v.GetString("fallback.clarification_prompt")
	c.Fallback.Placeholder = v.GetString("fallback.placeholder")
	c.Fallback.PollInterval = v.GetDuration("fallback.poll_interval")
	c.Fallback.PollMaxAttempts = v.GetInt("fallback.poll_max_attempts")
	c.Fallback.PollTimeout = v.GetDuration("fallback.poll_timeout")

	c.Speech.Enabled = v.GetBool("speech.enabled")
	c.Speech.Model = v.GetString("speech.model")
	c.Speech.Voice = v.GetString("speech.voice")
	c.Speech.Format = strings.ToLower(v.GetString("speech.format"))

	c.Realtime.Model = v.GetString("realtime.model")
	c.Realtime.Voice = v.GetString("realtime.voice")
	c.Realtime.Instructions = v.GetString("realtime.instructions")
	c.Realtime.ResponseMode = strings.ToLower(v.GetString("realtime.response_mode"))

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(c); err != nil {
		return Config{}, oops.
			In("config").
			Code("invalid_config").
			Errorf("failed to validate config: %w", err)
	}

	slog.Info("config loaded",
		"port", c.Server.Port,
		"env", c.Server.Env,
		"grounded", c.Fallback.VectorStoreID != "",
		"strategy", c.Fallback.Strategy,
		"tts", c.Speech.Enabled,
	)
	return c, nil
}
