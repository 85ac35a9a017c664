package pool

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker"
)

// Endpoint is one remote end that accepts BiDi sessions
type Endpoint struct {
	url          string       // Endpoint as configured
	sessionCount atomic.Int64 // Sessions currently placed on this endpoint
	healthy      atomic.Bool  // Result of the last probe
	breaker      *gobreaker.CircuitBreaker

	mu           sync.RWMutex // Protects the probe fields below
	webSocketURL string       // URL resolved by the last successful probe
	lastCheck    time.Time
	lastErr      error
}

// EndpointMetrics contains metrics about one endpoint
type EndpointMetrics struct {
	URL          string    `json:"url"`
	WebSocketURL string    `json:"websocket_url,omitempty"`
	SessionCount int64     `json:"session_count"`
	Healthy      bool      `json:"healthy"`
	Breaker      string    `json:"breaker"`
	LastCheck    time.Time `json:"last_check,omitzero"`
	LastError    string    `json:"last_error,omitempty"`
}

func newEndpoint(url string, breaker *gobreaker.CircuitBreaker) *Endpoint {
	e := &Endpoint{url: url, breaker: breaker}
	// Endpoints count as healthy until a probe says otherwise
	e.healthy.Store(true)
	return e
}

// URL returns the configured endpoint
func (e *Endpoint) URL() string {
	return e.url
}

// IsHealthy reports the result of the last probe
func (e *Endpoint) IsHealthy() bool {
	return e.healthy.Load()
}

// IsAvailable reports whether new sessions may be placed on the endpoint:
// its last probe passed and its breaker is not open.
func (e *Endpoint) IsAvailable() bool {
	return e.IsHealthy() && e.breaker.State() != gobreaker.StateOpen
}

// GetSessionCount returns the number of sessions placed on the endpoint
func (e *Endpoint) GetSessionCount() int64 {
	return e.sessionCount.Load()
}

// IncrementSessions records a session placed on the endpoint
func (e *Endpoint) IncrementSessions() {
	count := e.sessionCount.Add(1)
	metricEndpointSessions.WithLabelValues(e.url).Set(float64(count))
}

// DecrementSessions records a session leaving the endpoint. The count never
// drops below zero.
func (e *Endpoint) DecrementSessions() {
	for {
		current := e.sessionCount.Load()
		if current <= 0 {
			return
		}
		if e.sessionCount.CompareAndSwap(current, current-1) {
			metricEndpointSessions.WithLabelValues(e.url).Set(float64(current - 1))
			return
		}
	}
}

// recordProbe stores the outcome of a health probe
func (e *Endpoint) recordProbe(webSocketURL string, err error) {
	e.mu.Lock()
	e.lastCheck = time.Now()
	e.lastErr = err
	if err == nil {
		e.webSocketURL = webSocketURL
	}
	e.mu.Unlock()

	e.healthy.Store(err == nil)
	if err == nil {
		metricEndpointHealthy.WithLabelValues(e.url).Set(1)
	} else {
		metricEndpointHealthy.WithLabelValues(e.url).Set(0)
	}
}

// GetMetrics returns a snapshot of the endpoint
func (e *Endpoint) GetMetrics() EndpointMetrics {
	e.mu.RLock()
	defer e.mu.RUnlock()

	metrics := EndpointMetrics{
		URL:          e.url,
		WebSocketURL: e.webSocketURL,
		SessionCount: e.sessionCount.Load(),
		Healthy:      e.healthy.Load(),
		Breaker:      e.breaker.State().String(),
		LastCheck:    e.lastCheck,
	}
	if e.lastErr != nil {
		metrics.LastError = e.lastErr.Error()
	}
	return metrics
}
