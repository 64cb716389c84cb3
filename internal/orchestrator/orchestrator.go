package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/samber/oops"
)

const (
	anonymousUser = "anonymous"
	cancelTimeout = 5 * time.Second
)

// Orchestrator answers a question in up to two passes: a grounded pass
// restricted to the configured document store, then an unrestricted
// fallback pass when the grounded reply is missing or too short.
//
// It holds no per-request state and is safe for concurrent use.
type Orchestrator struct {
	opts      Options
	assistant Assistant
	synth     Synthesizer
	recorder  Recorder
	log       *slog.Logger
}

// New builds an Orchestrator. synth and rec may be nil.
func New(opts Options, a Assistant, synth Synthesizer, rec Recorder) *Orchestrator {
	return &Orchestrator{
		opts:      opts.withDefaults(),
		assistant: a,
		synth:     synth,
		recorder:  rec,
		log:       slog.Default().With("component", "orchestrator"),
	}
}

func (o *Orchestrator) Options() Options { return o.opts }

func (o *Orchestrator) Ask(ctx context.Context, in AskInput) (Result, error) {
	text := strings.TrimSpace(in.Text)
	if text == "" {
		metricAskRequests.WithLabelValues(string(KindInvalidRequest)).Inc()
		return Result{}, oops.
			In("orchestrator").
			Code(string(KindInvalidRequest)).
			Wrapf(ErrInvalidRequest, "text is required")
	}
	userID := in.UserID
	if userID == "" {
		userID = anonymousUser
	}
	log := o.log.With("user_id", userID)

	threadID, err := o.assistant.CreateThread(ctx, ThreadParams{VectorStoreID: o.opts.VectorStoreID})
	if err != nil {
		return Result{}, o.fail(err, "create thread", "")
	}
	log = log.With("thread_id", threadID)
	if err := o.assistant.AppendMessage(ctx, threadID, RoleUser, text); err != nil {
		return Result{}, o.fail(err, "append user message", threadID)
	}

	res := Result{ThreadID: threadID}
	reply := ""
	accepted := false
	reason := "no_document_store"

	if o.opts.VectorStoreID != "" {
		var at Attempt
		reply, at = o.attempt(ctx, threadID, AttemptGrounded, RunParams{
			ForceFileSearch:        true,
			AdditionalInstructions: o.opts.GroundedInstructions,
		})
		o.record(userID, at, &res)
		switch {
		case at.Err != "":
			log.WarnContext(ctx, "grounded pass failed; falling back", "run_id", at.RunID, "error", at.Err)
			reason = "grounded_error"
		case replyLen(reply) == 0:
			reason = "empty"
		case replyLen(reply) < o.opts.GroundedMinLength:
			reason = "too_short"
		default:
			accepted = true
		}
	}

	if !accepted {
		metricFallbacks.WithLabelValues(reason).Inc()
		log.InfoContext(ctx, "running fallback pass", "reason", reason, "grounded_len", replyLen(reply))

		if o.opts.Strategy == StrategyClarify {
			if err := o.assistant.AppendMessage(ctx, threadID, RoleUser, o.opts.ClarificationPrompt); err != nil {
				return res, o.fail(err, "append clarification", threadID)
			}
		}

		var at Attempt
		reply, at, err = o.fallback(ctx, threadID)
		o.record(userID, at, &res)
		if err != nil {
			return res, o.fail(err, "fallback pass", threadID)
		}
	}
	res.Text = reply

	if audio := o.speak(ctx, log, reply); audio != nil {
		res.Audio = audio
	}

	metricAskRequests.WithLabelValues("ok").Inc()
	log.InfoContext(ctx, "answered", "attempts", len(res.Attempts), "reply_len", replyLen(reply), "audio", res.Audio != nil)
	return res, nil
}

// attempt runs one generation attempt and swallows its error into the
// returned Attempt. Used for the best-effort grounded pass.
func (o *Orchestrator) attempt(ctx context.Context, threadID string, kind AttemptKind, p RunParams) (string, Attempt) {
	reply, at, err := o.generate(ctx, threadID, kind, p)
	if err != nil {
		at.Err = err.Error()
		return "", at
	}
	return reply, at
}

func (o *Orchestrator) fallback(ctx context.Context, threadID string) (string, Attempt, error) {
	reply, at, err := o.generate(ctx, threadID, AttemptFallback, RunParams{})
	if err != nil {
		at.Err = err.Error()
		var xe *extractError
		if !errors.As(err, &xe) {
			return "", at, err
		}
		o.log.WarnContext(ctx, "reply extraction failed", "thread_id", threadID, "run_id", at.RunID, "error", err)
	}
	if reply == "" {
		return o.opts.Placeholder, at, nil
	}
	return reply, at, nil
}

func (o *Orchestrator) generate(ctx context.Context, threadID string, kind AttemptKind, p RunParams) (string, Attempt, error) {
	at := Attempt{Kind: kind, StartedAt: time.Now().UTC()}

	run, err := o.assistant.CreateRun(ctx, threadID, p)
	if err != nil {
		metricAttempts.WithLabelValues(string(kind), "create_error").Inc()
		at.Duration = time.Since(at.StartedAt)
		return "", at, err
	}
	at.RunID = run.ID

	run, err = o.wait(ctx, threadID, run)
	at.Status = run.Status
	if err != nil {
		metricAttempts.WithLabelValues(string(kind), statusLabel(run.Status, err)).Inc()
		if run.Status.Waiting() {
			o.cancel(ctx, threadID, run.ID)
		}
		at.Duration = time.Since(at.StartedAt)
		return "", at, err
	}
	metricAttempts.WithLabelValues(string(kind), string(run.Status)).Inc()

	reply, err := o.assistant.LatestReply(ctx, threadID, run.ID)
	at.Duration = time.Since(at.StartedAt)
	if err != nil {
		return "", at, &extractError{err: err}
	}
	reply = strings.TrimSpace(reply)
	at.ReplyLen = replyLen(reply)
	return reply, at, nil
}

// cancel stops a run abandoned while still active and waits for it to
// settle. A thread accepts no new run until its active one ends. Failures
// are only logged.
func (o *Orchestrator) cancel(ctx context.Context, threadID, runID string) {
	ctx, done := context.WithTimeout(context.WithoutCancel(ctx), cancelTimeout)
	defer done()
	log := o.log.With("thread_id", threadID, "run_id", runID)

	run, err := o.assistant.CancelRun(ctx, threadID, runID)
	for err == nil && run.Status.Waiting() {
		select {
		case <-ctx.Done():
			err = ctx.Err()
			continue
		case <-time.After(o.opts.PollInterval):
		}
		run, err = o.assistant.GetRun(ctx, threadID, runID)
	}
	if err != nil {
		metricRunCancels.WithLabelValues("error").Inc()
		log.WarnContext(ctx, "cancel abandoned run", "error", err)
		return
	}
	metricRunCancels.WithLabelValues("ok").Inc()
	log.DebugContext(ctx, "abandoned run cancelled", "status", string(run.Status))
}

type extractError struct{ err error }

func (e *extractError) Error() string { return "read reply: " + e.err.Error() }
func (e *extractError) Unwrap() error { return e.err }

func (o *Orchestrator) speak(ctx context.Context, log *slog.Logger, text string) *Audio {
	if o.synth == nil {
		return nil
	}
	if replyLen(text) < o.opts.SpeechMinLength {
		metricSynthesis.WithLabelValues("skipped").Inc()
		return nil
	}
	audio, err := o.synth.Synthesize(ctx, text)
	if err != nil {
		metricSynthesis.WithLabelValues("error").Inc()
		log.WarnContext(ctx, "speech synthesis failed; replying without audio", "error", err)
		return nil
	}
	metricSynthesis.WithLabelValues("ok").Inc()
	return &audio
}

func (o *Orchestrator) record(userID string, at Attempt, res *Result) {
	res.Attempts = append(res.Attempts, at)
	if o.recorder != nil {
		o.recorder.Record(userID, at)
	}
}

func (o *Orchestrator) fail(err error, op, threadID string) error {
	kind := Classify(err)
	metricAskRequests.WithLabelValues(string(kind)).Inc()
	return oops.
		In("orchestrator").
		Code(string(kind)).
		With("thread_id", threadID).
		Wrapf(err, "%s", op)
}

func statusLabel(s RunStatus, err error) string {
	if s.Failed() {
		return string(s)
	}
	return string(Classify(err))
}

// replyLen is the length used for both thresholds, in characters.
func replyLen(s string) int {
	return utf8.RuneCountInString(strings.TrimSpace(s))
}
