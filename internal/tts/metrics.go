package tts

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ttsSynthesisTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tts_synthesis_total",
		Help: "Total TTS synthesis requests by status",
	}, []string{"status"})

	ttsTotalDurationMS = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tts_total_duration_ms",
		Help:    "Total TTS synthesis time in milliseconds",
		Buckets: prometheus.ExponentialBuckets(50, 1.6, 12),
	})

	ttsVendorLatencyMS = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tts_vendor_latency_ms",
		Help:    "Latency until the speech endpoint starts streaming audio",
		Buckets: prometheus.ExponentialBuckets(20, 1.6, 12),
	})

	ttsAudioBytes = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tts_audio_bytes",
		Help:    "Size of synthesized audio payloads",
		Buckets: prometheus.ExponentialBuckets(4096, 2, 10),
	})
)
