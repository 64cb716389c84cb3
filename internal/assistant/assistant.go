// Package assistant adapts the OpenAI Assistants API (threads, messages and
// runs) to the orchestrator's Assistant boundary.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/samber/oops"
	"github.com/sashabaranov/go-openai"

	"voiceask/internal/orchestrator"
)

const fileSearchTool = "file_search"

type Config struct {
	APIKey      string
	BaseURL     string
	AssistantID string
	HTTPTimeout time.Duration
}

// Client is safe for concurrent use; build one per process.
type Client struct {
	api         *openai.Client
	assistantID string
}

var _ orchestrator.Assistant = (*Client)(nil)

// NewOpenAIClient builds the shared vendor client used by the assistant and speech adapters.
func NewOpenAIClient(cfg Config) *openai.Client {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	clientConfig.HTTPClient = &http.Client{
		Timeout: timeout,
	}
	return openai.NewClientWithConfig(clientConfig)
}

func New(api *openai.Client, assistantID string) *Client {
	return &Client{api: api, assistantID: assistantID}
}

func (c *Client) CreateThread(ctx context.Context, p orchestrator.ThreadParams) (string, error) {
	req := openai.ThreadRequest{}
	if p.VectorStoreID != "" {
		req.ToolResources = &openai.ToolResourcesRequest{
			FileSearch: &openai.FileSearchToolResourcesRequest{
				VectorStoreIDs: []string{p.VectorStoreID},
			},
		}
	}
	thread, err := c.api.CreateThread(ctx, req)
	if err != nil {
		return "", wrap(err, "create thread")
	}
	return thread.ID, nil
}

func (c *Client) AppendMessage(ctx context.Context, threadID, role, text string) error {
	req := openai.MessageRequest{Role: openai.ChatMessageRoleUser, Content: text}
	if role == orchestrator.RoleAssistant {
		req.Role = openai.ChatMessageRoleAssistant
	}
	_, err := c.api.CreateMessage(ctx, threadID, req)
	if err != nil {
		return wrap(err, "create message")
	}
	return nil
}

func (c *Client) CreateRun(ctx context.Context, threadID string, p orchestrator.RunParams) (orchestrator.Run, error) {
	req := openai.RunRequest{
		AssistantID:            c.assistantID,
		AdditionalInstructions: p.AdditionalInstructions,
	}
	if p.ForceFileSearch {
		req.Tools = []openai.Tool{{Type: fileSearchTool}}
		req.ToolChoice = map[string]string{"type": fileSearchTool}
	}
	run, err := c.api.CreateRun(ctx, threadID, req)
	if err != nil {
		return orchestrator.Run{}, wrap(err, "create run")
	}
	return toRun(run), nil
}

func (c *Client) GetRun(ctx context.Context, threadID, runID string) (orchestrator.Run, error) {
	run, err := c.api.RetrieveRun(ctx, threadID, runID)
	if err != nil {
		return orchestrator.Run{}, wrap(err, "retrieve run")
	}
	return toRun(run), nil
}

func (c *Client) SubmitToolOutputs(ctx context.Context, threadID, runID string, outputs []orchestrator.ToolOutput) (orchestrator.Run, error) {
	req := openai.SubmitToolOutputsRequest{ToolOutputs: make([]openai.ToolOutput, 0, len(outputs))}
	for _, out := range outputs {
		req.ToolOutputs = append(req.ToolOutputs, openai.ToolOutput{
			ToolCallID: out.ToolCallID,
			Output:     out.Output,
		})
	}
	run, err := c.api.SubmitToolOutputs(ctx, threadID, runID, req)
	if err != nil {
		return orchestrator.Run{}, wrap(err, "submit tool outputs")
	}
	return toRun(run), nil
}

func (c *Client) CancelRun(ctx context.Context, threadID, runID string) (orchestrator.Run, error) {
	run, err := c.api.CancelRun(ctx, threadID, runID)
	if err != nil {
		return orchestrator.Run{}, wrap(err, "cancel run")
	}
	return toRun(run), nil
}

// LatestReply reads the newest assistant message written by runID and joins its text parts.
func (c *Client) LatestReply(ctx context.Context, threadID, runID string) (string, error) {
	limit := 10
	order := "desc"
	list, err := c.api.ListMessage(ctx, threadID, &limit, &order, nil, nil, &runID)
	if err != nil {
		return "", wrap(err, "list messages")
	}
	for _, msg := range list.Messages {
		if msg.Role != orchestrator.RoleAssistant {
			continue
		}
		return messageText(msg), nil
	}
	return "", nil
}

func messageText(msg openai.Message) string {
	var b strings.Builder
	for _, part := range msg.Content {
		if part.Text == nil {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(part.Text.Value)
	}
	return strings.TrimSpace(b.String())
}

func toRun(r openai.Run) orchestrator.Run {
	out := orchestrator.Run{
		ID:     r.ID,
		Status: orchestrator.RunStatus(r.Status),
	}
	if r.LastError != nil {
		out.LastError = &orchestrator.RunError{
			Code:    string(r.LastError.Code),
			Message: r.LastError.Message,
		}
	}
	if r.RequiredAction != nil {
		out.RequiredAction = string(r.RequiredAction.Type)
		if r.RequiredAction.SubmitToolOutputs != nil {
			for _, tc := range r.RequiredAction.SubmitToolOutputs.ToolCalls {
				out.ToolCalls = append(out.ToolCalls, orchestrator.ToolCall{
					ID:        tc.ID,
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				})
			}
		}
	}
	return out
}

// wrap classifies vendor failures. Transport errors and vendor-side
// outages (5xx, 429) are unreachable; other API errors keep their detail.
func wrap(err error, op string) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && !unavailable(apiErr.HTTPStatusCode) {
		return oops.
			In("assistant").
			Code("upstream_api_error").
			With("op", op, "status", apiErr.HTTPStatusCode).
			Wrapf(err, "%s", op)
	}
	return oops.
		In("assistant").
		Code("upstream_unreachable").
		With("op", op).
		Wrapf(fmt.Errorf("%w: %w", orchestrator.ErrUpstreamUnreachable, err), "%s", op)
}

func unavailable(status int) bool {
	return status >= http.StatusInternalServerError || status == http.StatusTooManyRequests
}
