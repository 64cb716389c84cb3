// Package realtime brokers short-lived credentials for browser-to-vendor
// realtime voice sessions.
package realtime

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/samber/oops"

	"voiceask/internal/orchestrator"
)

//go:embed persona.txt
var DefaultInstructions string

//go:embed tools.json
var toolManifest []byte

// ErrNoCredential means the vendor answered without a usable client secret.
var ErrNoCredential = errors.New("realtime session has no client secret")

type Client interface {
	CreateSession(ctx context.Context) (Session, error)
}

// Session is the credential handed to the browser. Raw keeps the vendor
// object untouched for callers that forward it as-is.
type Session struct {
	Token     string
	ExpiresAt time.Time
	Raw       json.RawMessage
}

// ExpiresIn is the remaining lifetime in whole seconds, never negative.
func (s Session) ExpiresIn(now time.Time) int64 {
	if s.ExpiresAt.IsZero() {
		return 0
	}
	d := s.ExpiresAt.Sub(now)
	if d < 0 {
		return 0
	}
	return int64(d / time.Second)
}

type Config struct {
	APIKey       string
	BaseURL      string
	Model        string
	Voice        string
	Instructions string
	Timeout      time.Duration
}

type HTTPClient struct {
	http   *http.Client
	apiKey string
	base   string
	body   []byte
}

var _ Client = (*HTTPClient)(nil)

// NewClient renders the session request once; every call sends the same body.
func NewClient(cfg Config) (*HTTPClient, error) {
	instructions := strings.TrimSpace(cfg.Instructions)
	if instructions == "" {
		instructions = strings.TrimSpace(DefaultInstructions)
	}
	var tools []json.RawMessage
	if err := json.Unmarshal(toolManifest, &tools); err != nil {
		return nil, fmt.Errorf("realtime: parse tool manifest: %w", err)
	}
	body, err := json.Marshal(map[string]any{
		"model":        cfg.Model,
		"voice":        cfg.Voice,
		"instructions": instructions,
		"tools":        tools,
		"tool_choice":  "auto",
	})
	if err != nil {
		return nil, err
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = "https://api.openai.com/v1"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPClient{
		http:   &http.Client{Timeout: timeout},
		apiKey: cfg.APIKey,
		base:   base,
		body:   body,
	}, nil
}

// Base is the vendor endpoint root, used by readiness checks.
func (c *HTTPClient) Base() string { return c.base }

func (c *HTTPClient) CreateSession(ctx context.Context) (Session, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/realtime/sessions", bytes.NewReader(c.body))
	if err != nil {
		return Session{}, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return Session{}, oops.
			In("realtime").
			Code(string(orchestrator.KindUpstreamUnreachable)).
			Wrapf(fmt.Errorf("%w: %w", orchestrator.ErrUpstreamUnreachable, err), "create session")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Session{}, fmt.Errorf("realtime CreateSession: read body: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		return Session{}, oops.
			In("realtime").
			Code("upstream_api_error").
			With("status", resp.StatusCode).
			Errorf("realtime CreateSession: %s: %s", resp.Status, strings.TrimSpace(string(raw)))
	}

	var parsed struct {
		ClientSecret *struct {
			Value     string `json:"value"`
			ExpiresAt int64  `json:"expires_at"`
		} `json:"client_secret"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return Session{}, fmt.Errorf("realtime CreateSession: decode: %w", err)
	}
	if parsed.ClientSecret == nil || parsed.ClientSecret.Value == "" {
		return Session{}, oops.
			In("realtime").
			Code("no_credential").
			Wrapf(ErrNoCredential, "realtime CreateSession")
	}

	s := Session{Token: parsed.ClientSecret.Value, Raw: raw}
	if parsed.ClientSecret.ExpiresAt > 0 {
		s.ExpiresAt = time.Unix(parsed.ClientSecret.ExpiresAt, 0)
	}
	return s, nil
}
