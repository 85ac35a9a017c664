package session

import "errors"

const (
	// MaxSessionsPerAgent is the maximum number of active sessions per agent
	MaxSessionsPerAgent = 10

	// MaxTotalSessions is the global limit across all agents
	MaxTotalSessions = 100

	// DefaultSessionNamePrefix for auto-generated names
	DefaultSessionNamePrefix = "session"

	// DefaultEndpoint is dialed when no balancer is configured
	DefaultEndpoint = "ws://localhost:9222/session"
)

// Error definitions
var (
	ErrSessionLimitReached = errors.New("agent session limit reached")
	ErrSessionNameConflict = errors.New("session name already exists")
	ErrInvalidSessionName  = errors.New("invalid session name")
	ErrSessionNotFound     = errors.New("session not found")
	ErrContextNotFound     = errors.New("browsing context not found in session")
	ErrAgentRequired       = errors.New("agent_id is required")
	ErrNoPersistence       = errors.New("session persistence is not configured")
	ErrSessionUnavailable  = errors.New("session is not connected")
	ErrScriptException     = errors.New("script threw an exception")
)
