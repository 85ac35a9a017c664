package pool

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dhruvsoni1802/browser-bidi/internal/bidi"
)

// ProbeFunc checks that an endpoint accepts connections and returns the
// WebSocket URL sessions should dial.
type ProbeFunc func(ctx context.Context, endpoint string) (string, error)

// EndpointPool holds the remote ends sessions can be placed on
type EndpointPool struct {
	endpoints       []*Endpoint   // Configured endpoints, in configuration order
	probe           ProbeFunc     // Health probe
	probeTimeout    time.Duration // Deadline for a single probe
	breakerFailures uint32        // Consecutive dial failures that open a breaker
	breakerCooldown time.Duration // How long an open breaker refuses dials
	mu              sync.RWMutex  // Protects endpoints slice
}

// PoolMetrics contains metrics about the entire pool
type PoolMetrics struct {
	TotalEndpoints   int               `json:"total_endpoints"`
	HealthyEndpoints int               `json:"healthy_endpoints"`
	TotalSessions    int64             `json:"total_sessions"`
	Endpoints        []EndpointMetrics `json:"endpoints"`
}

// Option configures an EndpointPool
type Option func(*EndpointPool)

// WithProbe replaces the default reachability probe
func WithProbe(probe ProbeFunc) Option {
	return func(p *EndpointPool) {
		p.probe = probe
	}
}

// WithProbeTimeout bounds each probe
func WithProbeTimeout(d time.Duration) Option {
	return func(p *EndpointPool) {
		if d > 0 {
			p.probeTimeout = d
		}
	}
}

// NewEndpointPool creates a pool from configured endpoint URLs
func NewEndpointPool(urls []string, opts ...Option) (*EndpointPool, error) {
	if len(urls) == 0 {
		return nil, fmt.Errorf("at least one endpoint is required")
	}

	pool := &EndpointPool{
		endpoints:       make([]*Endpoint, 0, len(urls)),
		probe:           DefaultProbe,
		probeTimeout:    5 * time.Second,
		breakerFailures: defaultBreakerFailures,
		breakerCooldown: defaultBreakerCooldown,
	}
	for _, opt := range opts {
		opt(pool)
	}

	seen := make(map[string]bool, len(urls))
	for _, u := range urls {
		if seen[u] {
			return nil, fmt.Errorf("duplicate endpoint %q", u)
		}
		seen[u] = true
		pool.endpoints = append(pool.endpoints, newEndpoint(u, newBreaker(u, pool.breakerFailures, pool.breakerCooldown)))
		metricEndpointSessions.WithLabelValues(u).Set(0)
		metricEndpointHealthy.WithLabelValues(u).Set(1)
	}

	slog.Info("endpoint pool initialized", "size", len(urls))
	return pool, nil
}

// GetEndpoints returns a copy of all endpoints (for monitoring)
func (p *EndpointPool) GetEndpoints() []*Endpoint {
	p.mu.RLock()
	defer p.mu.RUnlock()

	// Return a copy to prevent external modification
	endpoints := make([]*Endpoint, len(p.endpoints))
	copy(endpoints, p.endpoints)
	return endpoints
}

// Lookup finds the endpoint configured as url
func (p *EndpointPool) Lookup(url string) (*Endpoint, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, e := range p.endpoints {
		if e.url == url {
			return e, true
		}
	}
	return nil, false
}

// GetEndpointCount returns the number of endpoints in the pool
func (p *EndpointPool) GetEndpointCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.endpoints)
}

// CheckHealth probes every endpoint concurrently and records the results.
// It returns the number of healthy endpoints.
func (p *EndpointPool) CheckHealth(ctx context.Context) int {
	endpoints := p.GetEndpoints()

	g, ctx := errgroup.WithContext(ctx)
	for _, e := range endpoints {
		g.Go(func() error {
			probeCtx, cancel := context.WithTimeout(ctx, p.probeTimeout)
			defer cancel()

			wsURL, err := p.probe(probeCtx, e.url)
			wasHealthy := e.IsHealthy()
			e.recordProbe(wsURL, err)

			switch {
			case err != nil && wasHealthy:
				slog.Warn("endpoint became unhealthy", "endpoint", e.url, "error", err)
			case err == nil && !wasHealthy:
				slog.Info("endpoint recovered", "endpoint", e.url)
			}
			// Probe failures are recorded, not propagated
			return nil
		})
	}
	g.Wait()

	healthy := 0
	for _, e := range endpoints {
		if e.IsHealthy() {
			healthy++
		}
	}
	return healthy
}

// StartHealthChecker probes the pool every interval until ctx is done
func (p *EndpointPool) StartHealthChecker(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		slog.Info("endpoint health checker started", "interval", interval)

		for {
			select {
			case <-ctx.Done():
				slog.Info("endpoint health checker stopped")
				return
			case <-ticker.C:
				healthy := p.CheckHealth(ctx)
				slog.Debug("endpoint health check completed", "healthy", healthy, "total", p.GetEndpointCount())
			}
		}
	}()
}

// GetMetrics returns metrics for the entire pool
func (p *EndpointPool) GetMetrics() PoolMetrics {
	p.mu.RLock()
	defer p.mu.RUnlock()

	// Calculate total sessions and collect endpoint metrics
	var totalSessions int64
	healthy := 0
	endpointMetrics := make([]EndpointMetrics, len(p.endpoints))

	for i, e := range p.endpoints {
		metrics := e.GetMetrics()
		endpointMetrics[i] = metrics
		totalSessions += metrics.SessionCount
		if metrics.Healthy {
			healthy++
		}
	}

	return PoolMetrics{
		TotalEndpoints:   len(p.endpoints),
		HealthyEndpoints: healthy,
		TotalSessions:    totalSessions,
		Endpoints:        endpointMetrics,
	}
}

// DefaultProbe resolves the endpoint's WebSocket URL and opens a TCP
// connection to its host.
func DefaultProbe(ctx context.Context, endpoint string) (string, error) {
	wsURL, err := bidi.ResolveWebSocketURL(ctx, endpoint)
	if err != nil {
		return "", err
	}

	u, err := url.Parse(wsURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse websocket url: %w", err)
	}
	host := u.Host
	if u.Port() == "" {
		if u.Scheme == "wss" {
			host = net.JoinHostPort(u.Hostname(), "443")
		} else {
			host = net.JoinHostPort(u.Hostname(), "80")
		}
	}

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", host)
	if err != nil {
		return "", fmt.Errorf("endpoint unreachable: %w", err)
	}
	conn.Close()
	return wsURL, nil
}
