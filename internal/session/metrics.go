package session

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "bidi",
		Subsystem: "manager",
		Name:      "active_sessions",
		Help:      "Sessions currently held in memory.",
	})

	metricSessionsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bidi",
		Subsystem: "manager",
		Name:      "sessions_created_total",
		Help:      "Session creation attempts, by outcome.",
	}, []string{"outcome"})

	metricSessionsClosed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bidi",
		Subsystem: "manager",
		Name:      "sessions_closed_total",
		Help:      "Sessions removed from the manager, by reason.",
	}, []string{"reason"})

	metricSessionsResumed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bidi",
		Subsystem: "manager",
		Name:      "sessions_resumed_total",
		Help:      "Resume requests, by where the session was found.",
	}, []string{"source"})
)
