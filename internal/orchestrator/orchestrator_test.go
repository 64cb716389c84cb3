package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
)

type scriptedRun struct {
	createErr error
	snapshots []Run
	reply     string
	replyErr  error
	getErr    error
}

type fakeAssistant struct {
	mu        sync.Mutex
	calls     []string
	runParams []RunParams
	threadErr error
	scripts   []scriptedRun
	runs      map[string]*scriptedRun
	polls     map[string]int
	submitted [][]ToolOutput
	// exclusive rejects CreateRun while another run on the thread is active.
	exclusive bool
	// slowCancel answers CancelRun with cancelling; the next poll reports cancelled.
	slowCancel bool
	active     string
	cancelCtx  []error
}

func newFakeAssistant(scripts ...scriptedRun) *fakeAssistant {
	return &fakeAssistant{scripts: scripts, runs: map[string]*scriptedRun{}, polls: map[string]int{}}
}

func (f *fakeAssistant) called(c string) {
	f.mu.Lock()
	f.calls = append(f.calls, c)
	f.mu.Unlock()
}

func (f *fakeAssistant) CreateThread(ctx context.Context, p ThreadParams) (string, error) {
	f.called("thread:" + p.VectorStoreID)
	if f.threadErr != nil {
		return "", f.threadErr
	}
	return "thread_1", nil
}

func (f *fakeAssistant) AppendMessage(ctx context.Context, threadID, role, text string) error {
	f.called("message:" + role + ":" + text)
	return nil
}

func (f *fakeAssistant) CreateRun(ctx context.Context, threadID string, p RunParams) (Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	kind := "fallback"
	if p.ForceFileSearch {
		kind = "grounded"
	}
	f.calls = append(f.calls, "run:"+kind)
	f.runParams = append(f.runParams, p)
	if len(f.scripts) == 0 {
		return Run{}, errors.New("unexpected run")
	}
	s := f.scripts[0]
	f.scripts = f.scripts[1:]
	if s.createErr != nil {
		return Run{}, s.createErr
	}
	id := fmt.Sprintf("run_%d", len(f.runs)+1)
	if f.exclusive && f.active != "" {
		return Run{}, fmt.Errorf("400: thread already has an active run %s", f.active)
	}
	f.runs[id] = &s
	first := Run{Status: RunCompleted}
	if len(s.snapshots) > 0 {
		first = s.snapshots[0]
	}
	first.ID = id
	if first.Status.Waiting() {
		f.active = id
	}
	return first, nil
}

func (f *fakeAssistant) GetRun(ctx context.Context, threadID, runID string) (Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.runs[runID]
	if s.getErr != nil {
		return Run{}, s.getErr
	}
	f.polls[runID]++
	i := f.polls[runID]
	if i >= len(s.snapshots) {
		i = len(s.snapshots) - 1
	}
	r := s.snapshots[i]
	r.ID = runID
	if !r.Status.Waiting() && f.active == runID {
		f.active = ""
	}
	return r, nil
}

func (f *fakeAssistant) CancelRun(ctx context.Context, threadID, runID string) (Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "cancel:"+runID)
	f.cancelCtx = append(f.cancelCtx, ctx.Err())
	if f.slowCancel {
		f.runs[runID].snapshots = []Run{{Status: RunCancelled}}
		f.runs[runID].getErr = nil
		f.polls[runID] = 0
		return Run{ID: runID, Status: RunCancelling}, nil
	}
	if f.active == runID {
		f.active = ""
	}
	return Run{ID: runID, Status: RunCancelled}, nil
}

func (f *fakeAssistant) cancelled() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.calls {
		if strings.HasPrefix(c, "cancel:") {
			out = append(out, strings.TrimPrefix(c, "cancel:"))
		}
	}
	return out
}

func (f *fakeAssistant) SubmitToolOutputs(ctx context.Context, threadID, runID string, outputs []ToolOutput) (Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "submit:"+runID)
	f.submitted = append(f.submitted, outputs)
	return Run{ID: runID, Status: RunQueued}, nil
}

func (f *fakeAssistant) LatestReply(ctx context.Context, threadID, runID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.runs[runID]
	return s.reply, s.replyErr
}

func (f *fakeAssistant) runCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.runParams)
}

func (f *fakeAssistant) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type fakeSynth struct {
	calls int
	err   error
}

func (s *fakeSynth) Synthesize(ctx context.Context, text string) (Audio, error) {
	s.calls++
	if s.err != nil {
		return Audio{}, s.err
	}
	return Audio{MIME: "audio/mpeg", Data: []byte("mp3:" + text)}, nil
}

type memRecorder struct {
	got []Attempt
}

func (m *memRecorder) Record(userID string, a Attempt) { m.got = append(m.got, a) }

func testOptions(vectorStore string) Options {
	return Options{
		VectorStoreID:     vectorStore,
		GroundedMinLength: 20,
		SpeechMinLength:   10,
		PollInterval:      time.Millisecond,
		PollMaxAttempts:   50,
		PollTimeout:       5 * time.Second,
	}
}

func completed(reply string) scriptedRun {
	return scriptedRun{snapshots: []Run{{Status: RunQueued}, {Status: RunInProgress}, {Status: RunCompleted}}, reply: reply}
}

func TestAskBlankTextMakesNoUpstreamCalls(t *testing.T) {
	for _, text := range []string{"", "   ", "\n\t"} {
		fa := newFakeAssistant()
		synth := &fakeSynth{}
		o := New(testOptions("vs_1"), fa, synth, nil)

		_, err := o.Ask(context.Background(), AskInput{Text: text})
		if !errors.Is(err, ErrInvalidRequest) {
			t.Fatalf("text %q: expected ErrInvalidRequest, got %v", text, err)
		}
		if Classify(err) != KindInvalidRequest {
			t.Fatalf("expected invalid_request kind, got %q", Classify(err))
		}
		if n := len(fa.callLog()); n != 0 {
			t.Fatalf("expected no upstream calls, got %v", fa.callLog())
		}
		if synth.calls != 0 {
			t.Fatalf("expected no synthesis, got %d", synth.calls)
		}
	}
}

func TestGroundedReplyLongEnoughSkipsFallback(t *testing.T) {
	reply := strings.Repeat("d", 50)
	fa := newFakeAssistant(completed(reply))
	o := New(testOptions("vs_1"), fa, nil, nil)

	res, err := o.Ask(context.Background(), AskInput{Text: "What is diversification?"})
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if res.Text != reply {
		t.Fatalf("expected grounded reply verbatim, got %q", res.Text)
	}
	if fa.runCount() != 1 {
		t.Fatalf("expected exactly one attempt, got %d", fa.runCount())
	}
	if len(res.Attempts) != 1 || res.Attempts[0].Kind != AttemptGrounded {
		t.Fatalf("unexpected attempts %+v", res.Attempts)
	}
	if !fa.runParams[0].ForceFileSearch {
		t.Fatalf("grounded attempt must force file search")
	}
	calls := fa.callLog()
	if calls[0] != "thread:vs_1" || calls[1] != "message:user:What is diversification?" {
		t.Fatalf("unexpected call order %v", calls)
	}
}

func TestEmptyGroundedReplyRunsExactlyOneFallback(t *testing.T) {
	fa := newFakeAssistant(completed(""), completed("Hello! How can I help you today?"))
	o := New(testOptions("vs_1"), fa, nil, nil)

	res, err := o.Ask(context.Background(), AskInput{Text: "Hi"})
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if fa.runCount() != 2 {
		t.Fatalf("expected two attempts, got %d", fa.runCount())
	}
	if fa.runParams[1].ForceFileSearch {
		t.Fatalf("fallback attempt must be unconstrained")
	}
	if res.Text != "Hello! How can I help you today?" {
		t.Fatalf("unexpected reply %q", res.Text)
	}
	if res.Attempts[1].Kind != AttemptFallback {
		t.Fatalf("expected fallback attempt, got %+v", res.Attempts[1])
	}
}

func TestShortGroundedReplyFallsBack(t *testing.T) {
	fa := newFakeAssistant(completed("Too short."), completed("A complete answer from general knowledge."))
	o := New(testOptions("vs_1"), fa, nil, nil)

	res, err := o.Ask(context.Background(), AskInput{Text: "Explain bonds"})
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if fa.runCount() != 2 {
		t.Fatalf("expected fallback, got %d attempts", fa.runCount())
	}
	if res.Text != "A complete answer from general knowledge." {
		t.Fatalf("unexpected reply %q", res.Text)
	}
}

func TestGroundedReplyAtThresholdIsAccepted(t *testing.T) {
	reply := strings.Repeat("x", 20)
	fa := newFakeAssistant(completed(reply))
	o := New(testOptions("vs_1"), fa, nil, nil)

	res, err := o.Ask(context.Background(), AskInput{Text: "q"})
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if fa.runCount() != 1 || res.Text != reply {
		t.Fatalf("expected grounded reply at threshold to be accepted, runs=%d text=%q", fa.runCount(), res.Text)
	}
}

func TestFallbackEmptyReplyUsesPlaceholder(t *testing.T) {
	fa := newFakeAssistant(completed(""), completed("   "))
	o := New(testOptions("vs_1"), fa, nil, nil)

	res, err := o.Ask(context.Background(), AskInput{Text: "Hi"})
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if res.Text != DefaultPlaceholder {
		t.Fatalf("expected placeholder, got %q", res.Text)
	}
}

func TestFallbackExtractionErrorUsesPlaceholder(t *testing.T) {
	broken := completed("")
	broken.replyErr = errors.New("list messages: boom")
	fa := newFakeAssistant(broken)
	opts := testOptions("")
	opts.Placeholder = "No answer."
	o := New(opts, fa, nil, nil)

	res, err := o.Ask(context.Background(), AskInput{Text: "Hi"})
	if err != nil {
		t.Fatalf("extraction failure must not fail the request: %v", err)
	}
	if res.Text != "No answer." {
		t.Fatalf("expected placeholder, got %q", res.Text)
	}
}

func TestNoVectorStoreSkipsGroundedPass(t *testing.T) {
	fa := newFakeAssistant(completed("General knowledge answer here."))
	o := New(testOptions(""), fa, nil, nil)

	res, err := o.Ask(context.Background(), AskInput{Text: "What is diversification?"})
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if fa.runCount() != 1 || fa.runParams[0].ForceFileSearch {
		t.Fatalf("expected a single unconstrained attempt, got %+v", fa.runParams)
	}
	if len(res.Attempts) != 1 || res.Attempts[0].Kind != AttemptFallback {
		t.Fatalf("unexpected attempts %+v", res.Attempts)
	}
}

func TestClarifyStrategyAppendsBeforeFallbackRun(t *testing.T) {
	fa := newFakeAssistant(completed(""), completed("Could you tell me which market you mean?"))
	opts := testOptions("vs_1")
	opts.Strategy = StrategyClarify
	opts.ClarificationPrompt = "Please clarify."
	o := New(opts, fa, nil, nil)

	if _, err := o.Ask(context.Background(), AskInput{Text: "Hi"}); err != nil {
		t.Fatalf("ask: %v", err)
	}
	calls := fa.callLog()
	clarify, grounded, fallback := -1, -1, -1
	for i, c := range calls {
		switch c {
		case "message:user:Please clarify.":
			clarify = i
		case "run:grounded":
			grounded = i
		case "run:fallback":
			fallback = i
		}
	}
	if clarify == -1 {
		t.Fatalf("clarification not appended: %v", calls)
	}
	if !(grounded < clarify && clarify < fallback) {
		t.Fatalf("clarification must sit between the grounded and fallback runs: %v", calls)
	}
}

func TestClarifyStrategyNotUsedWhenGroundedAccepted(t *testing.T) {
	fa := newFakeAssistant(completed(strings.Repeat("a", 40)))
	opts := testOptions("vs_1")
	opts.Strategy = StrategyClarify
	o := New(opts, fa, nil, nil)

	if _, err := o.Ask(context.Background(), AskInput{Text: "Hi"}); err != nil {
		t.Fatalf("ask: %v", err)
	}
	for _, c := range fa.callLog() {
		if c == "message:user:"+DefaultClarificationPrompt {
			t.Fatalf("clarification appended although grounded reply was accepted")
		}
	}
}

func TestDirectStrategyNeverAppendsClarification(t *testing.T) {
	fa := newFakeAssistant(completed(""), completed("Fallback answer that is long enough."))
	o := New(testOptions("vs_1"), fa, nil, nil)

	if _, err := o.Ask(context.Background(), AskInput{Text: "Hi"}); err != nil {
		t.Fatalf("ask: %v", err)
	}
	messages := 0
	for _, c := range fa.callLog() {
		if strings.HasPrefix(c, "message:") {
			messages++
		}
	}
	if messages != 1 {
		t.Fatalf("expected only the user message, got %v", fa.callLog())
	}
}

func TestGroundedRunFailureIsSwallowed(t *testing.T) {
	failed := scriptedRun{snapshots: []Run{{Status: RunQueued}, {Status: RunFailed, LastError: &RunError{Code: "server_error", Message: "boom"}}}}
	fa := newFakeAssistant(failed, completed("Recovered with general knowledge."))
	rec := &memRecorder{}
	o := New(testOptions("vs_1"), fa, nil, rec)

	res, err := o.Ask(context.Background(), AskInput{Text: "Hi", UserID: "u1"})
	if err != nil {
		t.Fatalf("grounded failure must not surface: %v", err)
	}
	if res.Text != "Recovered with general knowledge." {
		t.Fatalf("unexpected reply %q", res.Text)
	}
	if len(rec.got) != 2 || rec.got[0].Err == "" || rec.got[0].Status != RunFailed {
		t.Fatalf("expected failed grounded attempt to be recorded, got %+v", rec.got)
	}
}

func TestGroundedTimeoutCancelsRunBeforeFallback(t *testing.T) {
	stuck := scriptedRun{snapshots: []Run{{Status: RunInProgress}}}
	fa := newFakeAssistant(stuck, completed("Diversification spreads risk across assets."))
	fa.exclusive = true
	opts := testOptions("vs_1")
	opts.PollMaxAttempts = 3
	o := New(opts, fa, nil, nil)

	res, err := o.Ask(context.Background(), AskInput{Text: "What is diversification?"})
	if err != nil {
		t.Fatalf("grounded timeout must not surface: %v (calls=%v)", err, fa.callLog())
	}
	if res.Text != "Diversification spreads risk across assets." {
		t.Fatalf("unexpected reply %q", res.Text)
	}
	if got := fa.cancelled(); len(got) != 1 || got[0] != "run_1" {
		t.Fatalf("expected the stuck grounded run to be cancelled, got %v", got)
	}
	if len(res.Attempts) != 2 || res.Attempts[0].Err == "" || res.Attempts[0].Status != RunInProgress {
		t.Fatalf("expected grounded timeout recorded, got %+v", res.Attempts)
	}
}

func TestGroundedPollErrorCancelsRunBeforeFallback(t *testing.T) {
	broken := scriptedRun{snapshots: []Run{{Status: RunQueued}}, getErr: fmt.Errorf("%w: reset by peer", ErrUpstreamUnreachable)}
	fa := newFakeAssistant(broken, completed("A general answer that is long enough."))
	fa.exclusive = true
	o := New(testOptions("vs_1"), fa, nil, nil)

	res, err := o.Ask(context.Background(), AskInput{Text: "Hi"})
	if err != nil {
		t.Fatalf("grounded poll error must not surface: %v", err)
	}
	if res.Text != "A general answer that is long enough." {
		t.Fatalf("unexpected reply %q", res.Text)
	}
	if got := fa.cancelled(); len(got) != 1 || got[0] != "run_1" {
		t.Fatalf("expected run_1 cancelled, got %v", got)
	}
}

func TestCancelWaitsForRunToSettle(t *testing.T) {
	stuck := scriptedRun{snapshots: []Run{{Status: RunInProgress}}}
	fa := newFakeAssistant(stuck, completed("A general answer that is long enough."))
	fa.exclusive = true
	fa.slowCancel = true
	opts := testOptions("vs_1")
	opts.PollMaxAttempts = 2
	o := New(opts, fa, nil, nil)

	res, err := o.Ask(context.Background(), AskInput{Text: "Hi"})
	if err != nil {
		t.Fatalf("fallback must start once the grounded run settles: %v (calls=%v)", err, fa.callLog())
	}
	if res.Text != "A general answer that is long enough." {
		t.Fatalf("unexpected reply %q", res.Text)
	}
}

func TestTerminalRunIsNotCancelled(t *testing.T) {
	failed := scriptedRun{snapshots: []Run{{Status: RunQueued}, {Status: RunFailed}}}
	fa := newFakeAssistant(failed, completed("Recovered with general knowledge."))
	fa.exclusive = true
	o := New(testOptions("vs_1"), fa, nil, nil)

	if _, err := o.Ask(context.Background(), AskInput{Text: "Hi"}); err != nil {
		t.Fatalf("ask: %v", err)
	}
	if got := fa.cancelled(); len(got) != 0 {
		t.Fatalf("a failed run needs no cancel, got %v", got)
	}
}

func TestGroundedCreateErrorIsSwallowed(t *testing.T) {
	fa := newFakeAssistant(scriptedRun{createErr: fmt.Errorf("%w: connection refused", ErrUpstreamUnreachable)}, completed("Fallback answer that is long enough."))
	o := New(testOptions("vs_1"), fa, nil, nil)

	res, err := o.Ask(context.Background(), AskInput{Text: "Hi"})
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if fa.runCount() != 2 || res.Attempts[0].RunID != "" {
		t.Fatalf("expected failed create then fallback, got %+v", res.Attempts)
	}
}

func TestFallbackRunFailurePropagates(t *testing.T) {
	failed := scriptedRun{snapshots: []Run{{Status: RunInProgress}, {Status: RunExpired}}}
	fa := newFakeAssistant(completed(""), failed)
	o := New(testOptions("vs_1"), fa, nil, nil)

	_, err := o.Ask(context.Background(), AskInput{Text: "Hi"})
	if err == nil {
		t.Fatalf("expected error")
	}
	if !errors.Is(err, ErrUpstreamRunFailed) || Classify(err) != KindUpstreamRunFailed {
		t.Fatalf("expected upstream_run_failed, got %v (%s)", err, Classify(err))
	}
	var rf *RunFailedError
	if !errors.As(err, &rf) || rf.Status != RunExpired {
		t.Fatalf("expected RunFailedError with expired status, got %v", err)
	}
	if fa.runCount() != 2 {
		t.Fatalf("a failed fallback must not be retried, got %d attempts", fa.runCount())
	}
}

func TestThreadCreationFailureIsFatal(t *testing.T) {
	fa := newFakeAssistant()
	fa.threadErr = fmt.Errorf("%w: dial tcp: i/o timeout", ErrUpstreamUnreachable)
	o := New(testOptions("vs_1"), fa, nil, nil)

	_, err := o.Ask(context.Background(), AskInput{Text: "Hi"})
	if Classify(err) != KindUpstreamUnreachable {
		t.Fatalf("expected upstream_unreachable, got %v", err)
	}
}

func TestShortFinalReplySkipsSynthesis(t *testing.T) {
	fa := newFakeAssistant(completed("Yes."))
	synth := &fakeSynth{}
	o := New(testOptions(""), fa, synth, nil)

	res, err := o.Ask(context.Background(), AskInput{Text: "Is it?"})
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if res.Audio != nil || synth.calls != 0 {
		t.Fatalf("expected no audio and no synthesis call, audio=%v calls=%d", res.Audio, synth.calls)
	}
}

func TestLongFinalReplyIsSynthesized(t *testing.T) {
	fa := newFakeAssistant(completed("Diversification spreads risk."))
	synth := &fakeSynth{}
	o := New(testOptions(""), fa, synth, nil)

	res, err := o.Ask(context.Background(), AskInput{Text: "What is diversification?"})
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if synth.calls != 1 || res.Audio == nil {
		t.Fatalf("expected one synthesis call with audio, calls=%d", synth.calls)
	}
	if !strings.HasPrefix(res.Audio.DataURI(), "data:audio/mpeg;base64,") {
		t.Fatalf("unexpected data uri %q", res.Audio.DataURI())
	}
}

func TestSynthesisFailureKeepsText(t *testing.T) {
	fa := newFakeAssistant(completed("Diversification spreads risk."))
	synth := &fakeSynth{err: ErrSynthesisFailed}
	o := New(testOptions(""), fa, synth, nil)

	res, err := o.Ask(context.Background(), AskInput{Text: "What is diversification?"})
	if err != nil {
		t.Fatalf("synthesis failure must not fail the request: %v", err)
	}
	if res.Text != "Diversification spreads risk." || res.Audio != nil {
		t.Fatalf("expected text without audio, got %+v", res)
	}
	if synth.calls != 1 {
		t.Fatalf("expected a synthesis attempt, got %d", synth.calls)
	}
}

func TestPollSubmitsEmptyToolOutputs(t *testing.T) {
	action := scriptedRun{
		snapshots: []Run{
			{Status: RunRequiresAction, RequiredAction: RequiredActionSubmitToolOutputs, ToolCalls: []ToolCall{{ID: "call_1", Name: "lookup"}}},
			{Status: RunCompleted},
		},
		reply: "Answer after a tool call.",
	}
	fa := newFakeAssistant(action)
	o := New(testOptions(""), fa, nil, nil)

	res, err := o.Ask(context.Background(), AskInput{Text: "Hi"})
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if res.Text != "Answer after a tool call." {
		t.Fatalf("unexpected reply %q", res.Text)
	}
	if len(fa.submitted) != 1 || len(fa.submitted[0]) != 0 {
		t.Fatalf("expected one empty submission, got %+v", fa.submitted)
	}
}

func TestPollGivesUpAfterMaxAttempts(t *testing.T) {
	stuck := scriptedRun{snapshots: []Run{{Status: RunInProgress}}}
	fa := newFakeAssistant(stuck)
	opts := testOptions("")
	opts.PollMaxAttempts = 3
	o := New(opts, fa, nil, nil)

	_, err := o.Ask(context.Background(), AskInput{Text: "Hi"})
	if !errors.Is(err, ErrRunTimeout) || Classify(err) != KindRunTimeout {
		t.Fatalf("expected run timeout, got %v", err)
	}
	if errors.Is(err, ErrUpstreamRunFailed) {
		t.Fatalf("timeout must be distinct from vendor failure")
	}
	if got := fa.polls["run_1"]; got != 3 {
		t.Fatalf("expected 3 polls, got %d", got)
	}
}

func TestPollGivesUpAfterTimeout(t *testing.T) {
	stuck := scriptedRun{snapshots: []Run{{Status: RunQueued}}}
	fa := newFakeAssistant(stuck)
	opts := testOptions("")
	opts.PollMaxAttempts = 1_000_000
	opts.PollTimeout = 20 * time.Millisecond
	o := New(opts, fa, nil, nil)

	_, err := o.Ask(context.Background(), AskInput{Text: "Hi"})
	if !errors.Is(err, ErrRunTimeout) {
		t.Fatalf("expected run timeout, got %v", err)
	}
}

func TestPollStopsWhenCallerCancels(t *testing.T) {
	stuck := scriptedRun{snapshots: []Run{{Status: RunInProgress}}}
	fa := newFakeAssistant(stuck)
	opts := testOptions("")
	opts.PollMaxAttempts = 1_000_000
	o := New(opts, fa, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err := o.Ask(ctx, AskInput{Text: "Hi"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if errors.Is(err, ErrRunTimeout) {
		t.Fatalf("cancellation must not be reported as a timeout")
	}
	if got := fa.cancelled(); len(got) != 1 || got[0] != "run_1" {
		t.Fatalf("expected the run to be cancelled upstream, got %v", got)
	}
	fa.mu.Lock()
	defer fa.mu.Unlock()
	if fa.cancelCtx[0] != nil {
		t.Fatalf("cancel must not inherit the caller's cancellation: %v", fa.cancelCtx[0])
	}
}

func TestRunStatusSets(t *testing.T) {
	for _, s := range []RunStatus{RunQueued, RunInProgress, RunRequiresAction, RunCancelling} {
		if !s.Waiting() || s.Failed() {
			t.Fatalf("%s should be waiting", s)
		}
	}
	for _, s := range []RunStatus{RunFailed, RunExpired, RunCancelled} {
		if s.Waiting() || !s.Failed() {
			t.Fatalf("%s should be failed", s)
		}
	}
	for _, s := range []RunStatus{RunCompleted, RunIncomplete} {
		if s.Waiting() || s.Failed() {
			t.Fatalf("%s should be terminal success", s)
		}
	}
}
