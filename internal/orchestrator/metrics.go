package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricAskRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ask_requests_total",
		Help: "Ask requests by outcome",
	}, []string{"outcome"})

	metricAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ask_attempts_total",
		Help: "Generation attempts by kind and terminal status",
	}, []string{"kind", "status"})

	metricFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ask_fallback_total",
		Help: "Fallback passes by the reason the grounded reply was rejected",
	}, []string{"reason"})

	metricRunPollMS = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ask_run_poll_duration_ms",
		Help:    "Time from run creation to terminal status",
		Buckets: prometheus.ExponentialBuckets(250, 1.6, 12),
	})

	metricRunCancels = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ask_run_cancels_total",
		Help: "Cancellations of runs abandoned while still active",
	}, []string{"status"})

	metricUnhandledToolCalls = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ask_unhandled_tool_calls_total",
		Help: "Tool calls answered with an empty output set",
	})

	metricSynthesis = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ask_synthesis_total",
		Help: "Speech synthesis outcomes for final replies",
	}, []string{"status"})
)
