package pool

import (
	"errors"
	"log/slog"
)

var (
	// ErrNoEndpoints is returned when the pool is empty
	ErrNoEndpoints = errors.New("no endpoints in the pool")
	// ErrNoHealthyEndpoints is returned when every endpoint failed its probe
	ErrNoHealthyEndpoints = errors.New("no healthy endpoints in the pool")
)

// LoadBalancer places sessions on the endpoint with the fewest sessions
type LoadBalancer struct {
	pool *EndpointPool
}

// NewLoadBalancer creates a new load balancer
func NewLoadBalancer(pool *EndpointPool) *LoadBalancer {
	return &LoadBalancer{
		pool: pool,
	}
}

// SelectEndpoint returns the available endpoint with the least sessions
func (lb *LoadBalancer) SelectEndpoint() (*Endpoint, error) {
	endpoints := lb.pool.GetEndpoints()
	if len(endpoints) == 0 {
		return nil, ErrNoEndpoints
	}

	var selected *Endpoint
	var minSessions int64 = -1

	for _, e := range endpoints {
		if !e.IsAvailable() {
			slog.Warn("skipping unavailable endpoint", "endpoint", e.URL())
			continue
		}

		sessionCount := e.GetSessionCount()
		if minSessions == -1 || sessionCount < minSessions {
			minSessions = sessionCount
			selected = e
		}
	}

	if selected == nil {
		return nil, ErrNoHealthyEndpoints
	}

	slog.Debug("selected endpoint",
		"endpoint", selected.URL(),
		"current_sessions", selected.GetSessionCount())

	return selected, nil
}

// Acquire selects an endpoint and counts a new session on it
func (lb *LoadBalancer) Acquire() (string, error) {
	e, err := lb.SelectEndpoint()
	if err != nil {
		return "", err
	}
	e.IncrementSessions()
	return e.URL(), nil
}

// Retain counts a session that was placed on endpoint earlier, such as one
// resumed from Redis. Unknown endpoints are ignored.
func (lb *LoadBalancer) Retain(endpoint string) {
	if e, ok := lb.pool.Lookup(endpoint); ok {
		e.IncrementSessions()
	}
}

// Release uncounts a session leaving endpoint
func (lb *LoadBalancer) Release(endpoint string) {
	if e, ok := lb.pool.Lookup(endpoint); ok {
		e.DecrementSessions()
	}
}

// GetMetrics returns the metrics of the underlying pool
func (lb *LoadBalancer) GetMetrics() PoolMetrics {
	return lb.pool.GetMetrics()
}
