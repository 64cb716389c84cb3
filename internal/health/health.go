package health

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/elliotchance/pie/v2"
	"github.com/sashabaranov/go-openai"
	"golang.org/x/sync/errgroup"

	"voiceask/internal/config"
)

type CheckResult struct {
	Name      string `json:"name"`
	OK        bool   `json:"ok"`
	LatencyMS int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

type HealthStatus struct {
	OK        bool          `json:"ok"`
	Checks    []CheckResult `json:"checks"`
	CheckedAt time.Time     `json:"checked_at"`
}

func (h HealthStatus) String() string {
	status := "OK"
	if !h.OK {
		status = "FAIL"
	}
	s := fmt.Sprintf("Health: %s\n", status)
	for _, c := range h.Checks {
		mark := "✓"
		if !c.OK {
			mark = "✗"
		}
		s += fmt.Sprintf("  %s %s (%dms)", mark, c.Name, c.LatencyMS)
		if c.Error != "" {
			s += fmt.Sprintf(" - %s", c.Error)
		}
		s += "\n"
	}
	return s
}

// Vendor is the slice of the vendor client readiness needs. *openai.Client satisfies it.
type Vendor interface {
	RetrieveAssistant(ctx context.Context, assistantID string) (openai.Assistant, error)
	RetrieveVectorStore(ctx context.Context, vectorStoreID string) (openai.VectorStore, error)
}

// CheckAll runs all readiness checks concurrently and returns combined status
func CheckAll(ctx context.Context, cfg config.Config, api Vendor) HealthStatus {
	probes := []func() CheckResult{
		func() CheckResult { return checkAssistant(ctx, cfg, api) },
	}
	if cfg.Fallback.VectorStoreID != "" {
		probes = append(probes, func() CheckResult { return checkVectorStore(ctx, cfg, api) })
	}
	probes = append(probes, func() CheckResult { return checkRealtime(cfg) })

	checks := make([]CheckResult, len(probes))
	var g errgroup.Group
	for i, probe := range probes {
		g.Go(func() error {
			checks[i] = probe()
			return nil
		})
	}
	_ = g.Wait()

	return HealthStatus{
		OK:        pie.All(checks, func(c CheckResult) bool { return c.OK }),
		Checks:    checks,
		CheckedAt: time.Now().UTC(),
	}
}

func checkAssistant(ctx context.Context, cfg config.Config, api Vendor) CheckResult {
	start := time.Now()
	result := CheckResult{Name: "assistant"}

	if cfg.OpenAI.AssistantID == "" {
		result.Error = "OPENAI_ASSISTANT_ID not set"
		result.LatencyMS = time.Since(start).Milliseconds()
		return result
	}

	_, err := api.RetrieveAssistant(ctx, cfg.OpenAI.AssistantID)
	result.LatencyMS = time.Since(start).Milliseconds()
	if err != nil {
		result.Error = describe(err, fmt.Sprintf("assistant %q not found", cfg.OpenAI.AssistantID))
		return result
	}

	result.OK = true
	return result
}

func checkVectorStore(ctx context.Context, cfg config.Config, api Vendor) CheckResult {
	start := time.Now()
	result := CheckResult{Name: "vector_store"}

	vs, err := api.RetrieveVectorStore(ctx, cfg.Fallback.VectorStoreID)
	result.LatencyMS = time.Since(start).Milliseconds()
	if err != nil {
		result.Error = describe(err, fmt.Sprintf("vector store %q not found", cfg.Fallback.VectorStoreID))
		return result
	}
	if vs.Status == "expired" {
		result.Error = fmt.Sprintf("vector store %q expired", vs.ID)
		return result
	}

	result.OK = true
	return result
}

// checkRealtime only validates local settings; minting a session here would spend a credential.
func checkRealtime(cfg config.Config) CheckResult {
	result := CheckResult{Name: "realtime"}
	switch {
	case cfg.OpenAI.APIKey == "":
		result.Error = "OPENAI_API_KEY not set"
	case cfg.Realtime.Model == "":
		result.Error = "REALTIME_MODEL not set"
	default:
		result.OK = true
	}
	return result
}

func describe(err error, notFound string) string {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case http.StatusUnauthorized:
			return "invalid API key (401)"
		case http.StatusNotFound:
			return notFound
		}
		return fmt.Sprintf("unexpected status %d: %s", apiErr.HTTPStatusCode, apiErr.Message)
	}
	return fmt.Sprintf("request failed: %v", err)
}
