package orchestrator

import (
	"context"
	"encoding/base64"
	"time"
)

// RunStatus is the lifecycle state of a generation attempt on the assistant service.
type RunStatus string

const (
	RunQueued         RunStatus = "queued"
	RunInProgress     RunStatus = "in_progress"
	RunRequiresAction RunStatus = "requires_action"
	RunCancelling     RunStatus = "cancelling"
	RunCompleted      RunStatus = "completed"
	RunIncomplete     RunStatus = "incomplete"
	RunFailed         RunStatus = "failed"
	RunExpired        RunStatus = "expired"
	RunCancelled      RunStatus = "cancelled"
)

// Waiting reports whether the run has not reached a terminal status yet.
func (s RunStatus) Waiting() bool {
	switch s {
	case RunQueued, RunInProgress, RunRequiresAction, RunCancelling:
		return true
	}
	return false
}

// Failed reports whether the run terminated abnormally.
func (s RunStatus) Failed() bool {
	switch s {
	case RunFailed, RunExpired, RunCancelled:
		return true
	}
	return false
}

const RequiredActionSubmitToolOutputs = "submit_tool_outputs"

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

type ToolOutput struct {
	ToolCallID string
	Output     string
}

type RunError struct {
	Code    string
	Message string
}

// Run is a snapshot of one generation attempt as reported by the assistant service.
type Run struct {
	ID             string
	Status         RunStatus
	RequiredAction string
	ToolCalls      []ToolCall
	LastError      *RunError
}

type ThreadParams struct {
	// VectorStoreID attaches a document store to the thread's file search tool.
	VectorStoreID string
}

type RunParams struct {
	// ForceFileSearch restricts the run to the file search tool.
	ForceFileSearch        bool
	AdditionalInstructions string
}

// Assistant is the conversational-AI service boundary: threads, messages and runs.
type Assistant interface {
	CreateThread(ctx context.Context, p ThreadParams) (string, error)
	AppendMessage(ctx context.Context, threadID, role, text string) error
	CreateRun(ctx context.Context, threadID string, p RunParams) (Run, error)
	GetRun(ctx context.Context, threadID, runID string) (Run, error)
	SubmitToolOutputs(ctx context.Context, threadID, runID string, outputs []ToolOutput) (Run, error)
	// CancelRun asks the vendor to stop runID so the thread accepts a new run.
	CancelRun(ctx context.Context, threadID, runID string) (Run, error)
	// LatestReply returns the text of the most recent assistant message produced by runID.
	LatestReply(ctx context.Context, threadID, runID string) (string, error)
}

type Audio struct {
	MIME string
	Data []byte
}

// DataURI encodes the audio for transport inside a JSON response.
func (a Audio) DataURI() string {
	return "data:" + a.MIME + ";base64," + base64.StdEncoding.EncodeToString(a.Data)
}

type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (Audio, error)
}

type AttemptKind string

const (
	AttemptGrounded AttemptKind = "grounded"
	AttemptFallback AttemptKind = "fallback"
)

// Attempt records the outcome of a single generation attempt.
type Attempt struct {
	Kind      AttemptKind   `json:"kind"`
	RunID     string        `json:"run_id,omitempty"`
	Status    RunStatus     `json:"status,omitempty"`
	ReplyLen  int           `json:"reply_len"`
	Err       string        `json:"error,omitempty"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration_ns"`
}

// Recorder receives every attempt made on behalf of a user.
type Recorder interface {
	Record(userID string, a Attempt)
}

type AskInput struct {
	Text   string
	UserID string
}

type Result struct {
	Text     string
	Audio    *Audio
	ThreadID string
	Attempts []Attempt
}

type Strategy string

const (
	StrategyDirect  Strategy = "direct"
	StrategyClarify Strategy = "clarify"
)

const (
	DefaultGroundedMinLength = 20
	DefaultSpeechMinLength   = 10
	DefaultPollInterval      = time.Second
	DefaultPollMaxAttempts   = 120
	DefaultPollTimeout       = 2 * time.Minute

	DefaultPlaceholder          = "Sorry, I don't have an answer to that right now."
	DefaultClarificationPrompt  = "The attached documents did not answer the question. Answer from your general knowledge, and if the question is ambiguous, ask me one short clarifying question."
	DefaultGroundedInstructions = "Answer only with information found in the attached documents. If the documents do not contain the answer, reply with an empty message."
)

// Options is the fallback configuration. It is fixed for the lifetime of an Orchestrator.
type Options struct {
	VectorStoreID        string
	GroundedMinLength    int
	SpeechMinLength      int
	Strategy             Strategy
	ClarificationPrompt  string
	Placeholder          string
	GroundedInstructions string

	PollInterval    time.Duration
	PollMaxAttempts int
	PollTimeout     time.Duration
}

func (o Options) withDefaults() Options {
	if o.GroundedMinLength <= 0 {
		o.GroundedMinLength = DefaultGroundedMinLength
	}
	if o.SpeechMinLength <= 0 {
		o.SpeechMinLength = DefaultSpeechMinLength
	}
	if o.Strategy == "" {
		o.Strategy = StrategyDirect
	}
	if o.ClarificationPrompt == "" {
		o.ClarificationPrompt = DefaultClarificationPrompt
	}
	if o.Placeholder == "" {
		o.Placeholder = DefaultPlaceholder
	}
	if o.GroundedInstructions == "" {
		o.GroundedInstructions = DefaultGroundedInstructions
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.PollMaxAttempts <= 0 {
		o.PollMaxAttempts = DefaultPollMaxAttempts
	}
	if o.PollTimeout <= 0 {
		o.PollTimeout = DefaultPollTimeout
	}
	return o
}
