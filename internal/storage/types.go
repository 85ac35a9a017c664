package storage

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned when a session or name has no record
	ErrNotFound = errors.New("not found")

	// ErrNameTaken is returned when an agent already uses a session name
	ErrNameTaken = errors.New("session name already taken")
)

// SessionState represents persisted session data
type SessionState struct {
	SessionID    string    `json:"session_id"`
	SessionName  string    `json:"session_name"`
	AgentID      string    `json:"agent_id,omitempty"`
	Endpoint     string    `json:"endpoint"`
	WebSocketURL string    `json:"websocket_url"`
	BiDiSession  string    `json:"bidi_session"`
	UserContext  string    `json:"user_context"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
	Status       string    `json:"status"`

	// Browser state
	Contexts      []ContextState `json:"contexts,omitempty"`
	Subscriptions []string       `json:"subscriptions,omitempty"`
	Cookies       []Cookie       `json:"cookies,omitempty"`
}

// ContextState represents an open browsing context
type ContextState struct {
	ContextID string `json:"context_id"`
	URL       string `json:"url"`
}

// Cookie represents a browser cookie snapshot
type Cookie struct {
	Name     string `json:"name"`
	Value    string `json:"value"`
	Domain   string `json:"domain"`
	Path     string `json:"path"`
	Expiry   *int64 `json:"expiry,omitempty"` // Unix timestamp
	Secure   bool   `json:"secure"`
	HttpOnly bool   `json:"httpOnly"`
	SameSite string `json:"sameSite"`
}

//validation helper for named sessions
func (s *SessionState) Validate() error {
	if s.SessionID == "" {
		return fmt.Errorf("session_id is required")
	}
	if s.AgentID == "" {
		return fmt.Errorf("agent_id is required for named sessions")
	}
	if s.WebSocketURL == "" {
		return fmt.Errorf("websocket_url is required to resume a session")
	}
	// Session name is optional - will be auto-generated if not provided
	return nil
}

// auto-generate name if not provided
func (s *SessionState) EnsureSessionName() {
	if s.SessionName == "" {
		// Generate name like: "session-2026-02-08-1a2b3c4d"
		timestamp := s.CreatedAt.Format("2006-01-02")
		shortID := s.SessionID
		if len(shortID) > 8 {
			shortID = shortID[:8]
		}
		s.SessionName = fmt.Sprintf("session-%s-%s", timestamp, shortID)
	}
}
