package bidi

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	outcomeSuccess   = "success"
	outcomeError     = "error"
	outcomeTimeout   = "timeout"
	outcomeCanceled  = "canceled"
	outcomeTransport = "transport"
	outcomeDecode    = "decode"
)

var (
	metricCommands = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bidi",
		Name:      "commands_total",
		Help:      "Commands sent, by method and outcome.",
	}, []string{"method", "outcome"})

	metricCommandDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "bidi",
		Name:      "command_duration_seconds",
		Help:      "Time from write to response, by method.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15),
	}, []string{"method"})

	metricPending = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "bidi",
		Name:      "pending_commands",
		Help:      "Commands waiting for a response across all clients.",
	})

	metricEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bidi",
		Name:      "events_total",
		Help:      "Events delivered to listeners, by method.",
	}, []string{"method"})

	metricEventsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bidi",
		Name:      "events_dropped_total",
		Help:      "Events dropped before delivery, by reason.",
	}, []string{"reason"})

	metricOrphanResponses = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "bidi",
		Name:      "orphan_responses_total",
		Help:      "Responses whose id had no pending command (late or unknown).",
	})
)
