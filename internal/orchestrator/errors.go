package orchestrator

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrInvalidRequest      = errors.New("invalid request")
	ErrUpstreamRunFailed   = errors.New("upstream run failed")
	ErrUpstreamUnreachable = errors.New("upstream unreachable")
	ErrSynthesisFailed     = errors.New("speech synthesis failed")
	ErrRunTimeout          = errors.New("run did not finish in time")
)

// RunFailedError is returned when a run reaches failed, expired or cancelled.
type RunFailedError struct {
	RunID   string
	Status  RunStatus
	Code    string
	Message string
}

func (e *RunFailedError) Error() string {
	msg := fmt.Sprintf("run %s ended with status %s", e.RunID, e.Status)
	if e.Code != "" {
		msg += " (" + e.Code + ")"
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

func (e *RunFailedError) Is(target error) bool {
	return target == ErrUpstreamRunFailed
}

type Kind string

const (
	KindInvalidRequest      Kind = "invalid_request"
	KindUpstreamRunFailed   Kind = "upstream_run_failed"
	KindUpstreamUnreachable Kind = "upstream_unreachable"
	KindSynthesisFailed     Kind = "synthesis_failed"
	KindRunTimeout          Kind = "run_timeout"
	KindCanceled            Kind = "canceled"
	KindInternal            Kind = "internal"
)

// Classify maps an error chain onto the error taxonomy.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidRequest):
		return KindInvalidRequest
	case errors.Is(err, ErrRunTimeout):
		return KindRunTimeout
	case errors.Is(err, ErrUpstreamRunFailed):
		return KindUpstreamRunFailed
	case errors.Is(err, ErrSynthesisFailed):
		return KindSynthesisFailed
	case errors.Is(err, ErrUpstreamUnreachable):
		return KindUpstreamUnreachable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	default:
		return KindInternal
	}
}
