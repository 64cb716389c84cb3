package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/samber/oops"
)

// wait polls a run until it leaves the waiting set. Pending tool calls are
// answered with an empty output set. Polling is bounded by PollMaxAttempts
// and PollTimeout; cancellation of ctx stops it immediately.
func (o *Orchestrator) wait(ctx context.Context, threadID string, run Run) (Run, error) {
	start := time.Now()
	defer func() { metricRunPollMS.Observe(float64(time.Since(start).Milliseconds())) }()

	pollCtx, cancel := context.WithTimeout(ctx, o.opts.PollTimeout)
	defer cancel()

	ticker := time.NewTicker(o.opts.PollInterval)
	defer ticker.Stop()

	polls := 0
	for {
		switch {
		case run.Status == RunRequiresAction:
			if run.RequiredAction == RequiredActionSubmitToolOutputs {
				submitted, err := o.submitEmptyOutputs(pollCtx, threadID, run)
				if err != nil {
					return run, o.pollErr(ctx, pollCtx, run, err)
				}
				run = submitted
			}
		case run.Status.Waiting():
		case run.Status.Failed():
			fe := &RunFailedError{RunID: run.ID, Status: run.Status}
			if run.LastError != nil {
				fe.Code = run.LastError.Code
				fe.Message = run.LastError.Message
			}
			return run, fe
		default:
			return run, nil
		}

		if polls >= o.opts.PollMaxAttempts {
			return run, o.timeout(run)
		}

		select {
		case <-pollCtx.Done():
			return run, o.pollErr(ctx, pollCtx, run, pollCtx.Err())
		case <-ticker.C:
		}

		polls++
		next, err := o.assistant.GetRun(pollCtx, threadID, run.ID)
		if err != nil {
			return run, o.pollErr(ctx, pollCtx, run, err)
		}
		run = next
	}
}

func (o *Orchestrator) submitEmptyOutputs(ctx context.Context, threadID string, run Run) (Run, error) {
	if len(run.ToolCalls) > 0 {
		names := make([]string, 0, len(run.ToolCalls))
		for _, tc := range run.ToolCalls {
			names = append(names, tc.Name)
		}
		metricUnhandledToolCalls.Add(float64(len(run.ToolCalls)))
		o.log.WarnContext(ctx, "tool calls are not dispatched; submitting empty outputs",
			"thread_id", threadID, "run_id", run.ID, "tools", names)
	}
	return o.assistant.SubmitToolOutputs(ctx, threadID, run.ID, []ToolOutput{})
}

// pollErr separates caller cancellation from the poll deadline.
func (o *Orchestrator) pollErr(parent, pollCtx context.Context, run Run, err error) error {
	if parent.Err() != nil {
		return parent.Err()
	}
	if errors.Is(pollCtx.Err(), context.DeadlineExceeded) {
		return o.timeout(run)
	}
	return err
}

func (o *Orchestrator) timeout(run Run) error {
	return oops.
		In("orchestrator").
		Code(string(KindRunTimeout)).
		With("run_id", run.ID, "status", string(run.Status)).
		Wrapf(ErrRunTimeout, "run %s still %s", run.ID, run.Status)
}
