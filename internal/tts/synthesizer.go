package tts

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/samber/oops"
	"github.com/sashabaranov/go-openai"

	"voiceask/internal/orchestrator"
)

// maxAudioBytes bounds how much audio is buffered for a single reply.
const maxAudioBytes = 16 << 20

type Config struct {
	Model  string
	Voice  string
	Format string
	Speed  float64
}

// Synthesizer turns reply text into audio with the vendor speech endpoint.
type Synthesizer struct {
	api *openai.Client
	cfg Config
}

var _ orchestrator.Synthesizer = (*Synthesizer)(nil)

func NewSynthesizer(api *openai.Client, cfg Config) *Synthesizer {
	if cfg.Model == "" {
		cfg.Model = string(openai.TTSModel1)
	}
	if cfg.Voice == "" {
		cfg.Voice = string(openai.VoiceAlloy)
	}
	if cfg.Format == "" {
		cfg.Format = string(openai.SpeechResponseFormatMp3)
	}
	return &Synthesizer{api: api, cfg: cfg}
}

func (s *Synthesizer) Synthesize(ctx context.Context, text string) (orchestrator.Audio, error) {
	start := time.Now()
	defer func() { ttsTotalDurationMS.Observe(float64(time.Since(start).Milliseconds())) }()

	resp, err := s.api.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(s.cfg.Model),
		Input:          text,
		Voice:          openai.SpeechVoice(s.cfg.Voice),
		ResponseFormat: openai.SpeechResponseFormat(s.cfg.Format),
		Speed:          s.cfg.Speed,
	})
	if err != nil {
		ttsSynthesisTotal.WithLabelValues("error").Inc()
		return orchestrator.Audio{}, s.fail(err, "create speech")
	}
	defer resp.Close()
	ttsVendorLatencyMS.Observe(float64(time.Since(start).Milliseconds()))

	data, err := io.ReadAll(io.LimitReader(resp, maxAudioBytes+1))
	if err != nil {
		ttsSynthesisTotal.WithLabelValues("error").Inc()
		return orchestrator.Audio{}, s.fail(err, "read speech")
	}
	if len(data) == 0 {
		ttsSynthesisTotal.WithLabelValues("empty").Inc()
		return orchestrator.Audio{}, s.fail(fmt.Errorf("empty audio"), "read speech")
	}
	if len(data) > maxAudioBytes {
		ttsSynthesisTotal.WithLabelValues("too_large").Inc()
		return orchestrator.Audio{}, s.fail(fmt.Errorf("audio exceeds %d bytes", maxAudioBytes), "read speech")
	}

	ttsSynthesisTotal.WithLabelValues("ok").Inc()
	ttsAudioBytes.Observe(float64(len(data)))
	return orchestrator.Audio{MIME: MIMEType(s.cfg.Format), Data: data}, nil
}

func (s *Synthesizer) fail(err error, op string) error {
	return oops.
		In("tts").
		Code("synthesis_failed").
		With("model", s.cfg.Model, "voice", s.cfg.Voice).
		Wrapf(fmt.Errorf("%w: %w", orchestrator.ErrSynthesisFailed, err), "%s", op)
}

// MIMEType maps a speech response format onto the content type used in data URIs.
func MIMEType(format string) string {
	switch format {
	case "mp3", "":
		return "audio/mpeg"
	case "opus":
		return "audio/ogg"
	case "aac":
		return "audio/aac"
	case "flac":
		return "audio/flac"
	case "wav":
		return "audio/wav"
	case "pcm":
		return "audio/pcm"
	default:
		return "application/octet-stream"
	}
}
