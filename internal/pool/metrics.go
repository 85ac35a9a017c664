package pool

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricEndpointSessions = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "bidi",
		Subsystem: "pool",
		Name:      "endpoint_sessions",
		Help:      "Sessions placed on each endpoint.",
	}, []string{"endpoint"})

	metricEndpointHealthy = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "bidi",
		Subsystem: "pool",
		Name:      "endpoint_healthy",
		Help:      "1 when the last probe of the endpoint succeeded.",
	}, []string{"endpoint"})
)
