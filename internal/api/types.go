package api

import (
	"time"

	"github.com/dhruvsoni1802/browser-bidi/internal/session"
	"github.com/dhruvsoni1802/browser-bidi/internal/storage"
)

// Request Types

// CreateSessionRequest for POST /sessions
type CreateSessionRequest struct {
	AgentID     string `json:"agent_id"`
	SessionName string `json:"session_name,omitempty"`
}

// CreateContextRequest for POST /sessions/{id}/contexts
type CreateContextRequest struct {
	URL string `json:"url,omitempty"` // Loaded after the tab opens
}

// NavigateRequest for POST /sessions/{id}/navigate
type NavigateRequest struct {
	ContextID string `json:"context_id,omitempty"` // Empty opens a new tab
	URL       string `json:"url"`
}

// ExecuteJSRequest for POST /sessions/{id}/execute
type ExecuteJSRequest struct {
	ContextID string `json:"context_id"`
	Script    string `json:"script"`
}

// ScreenshotRequest for POST /sessions/{id}/screenshot
type ScreenshotRequest struct {
	ContextID string `json:"context_id"`
}

// ResumeSessionRequest for POST /sessions/resume
type ResumeSessionRequest struct {
	AgentID     string `json:"agent_id"`
	SessionName string `json:"session_name"`
}

// RenameSessionRequest for PUT /sessions/{id}/rename
type RenameSessionRequest struct {
	SessionName string `json:"session_name"`
}

// RestoreCookiesRequest for POST /sessions/{id}/cookies/restore. Without
// cookies the stored snapshot is restored.
type RestoreCookiesRequest struct {
	Cookies []storage.Cookie `json:"cookies,omitempty"`
}

// Response Types

// CreateSessionResponse returned when session is created
type CreateSessionResponse struct {
	SessionID   string    `json:"session_id"`
	SessionName string    `json:"session_name"`
	AgentID     string    `json:"agent_id"`
	UserContext string    `json:"user_context"`
	Endpoint    string    `json:"endpoint"`
	CreatedAt   time.Time `json:"created_at"`
}

// ContextResponse returned when a browsing context is created
type ContextResponse struct {
	SessionID string `json:"session_id"`
	ContextID string `json:"context_id"`
	URL       string `json:"url"`
}

// NavigateResponse returned after navigation
type NavigateResponse struct {
	SessionID  string `json:"session_id"`
	ContextID  string `json:"context_id"`
	URL        string `json:"url"`
	Navigation string `json:"navigation,omitempty"`
}

// ExecuteJSResponse returned after JavaScript execution
type ExecuteJSResponse struct {
	SessionID string `json:"session_id"`
	ContextID string `json:"context_id"`
	Result    any    `json:"result"`
}

// ScreenshotResponse returned after screenshot capture
type ScreenshotResponse struct {
	SessionID  string `json:"session_id"`
	ContextID  string `json:"context_id"`
	Screenshot string `json:"screenshot"` // base64 encoded PNG
	Format     string `json:"format"`
	Size       int    `json:"size"` // Size in bytes (before encoding)
}

// GetPageContentResponse returned with page HTML
type GetPageContentResponse struct {
	SessionID string `json:"session_id"`
	ContextID string `json:"context_id"`
	Content   string `json:"content"`
	Length    int    `json:"length"` // Content length in bytes
}

// GetSessionResponse returned with session details
type GetSessionResponse struct {
	SessionID    string                 `json:"session_id"`
	SessionName  string                 `json:"session_name"`
	AgentID      string                 `json:"agent_id"`
	Endpoint     string                 `json:"endpoint"`
	BiDiSession  string                 `json:"bidi_session"`
	UserContext  string                 `json:"user_context"`
	Contexts     []storage.ContextState `json:"contexts"`
	ContextCount int                    `json:"context_count"`
	CreatedAt    time.Time              `json:"created_at"`
	LastActivity time.Time              `json:"last_activity"`
	Status       session.SessionStatus  `json:"status"`
}

// ListSessionsResponse returned with all sessions
type ListSessionsResponse struct {
	Sessions []SessionInfo `json:"sessions"`
	Count    int           `json:"count"`
}

// SessionInfo contains summary information about a session
type SessionInfo struct {
	SessionID    string                `json:"session_id"`
	SessionName  string                `json:"session_name"`
	AgentID      string                `json:"agent_id"`
	Endpoint     string                `json:"endpoint"`
	ContextCount int                   `json:"context_count"`
	CreatedAt    time.Time             `json:"created_at"`
	LastActivity time.Time             `json:"last_activity"`
	Status       session.SessionStatus `json:"status"`
}

// ListAgentSessionsResponse returned with an agent's sessions
type ListAgentSessionsResponse struct {
	AgentID  string           `json:"agent_id"`
	Sessions []SessionSummary `json:"sessions"`
	Count    int              `json:"count"`
}

// SessionSummary contains summary information about a session
type SessionSummary struct {
	SessionID    string                `json:"session_id"`
	SessionName  string                `json:"session_name"`
	Status       session.SessionStatus `json:"status"`
	ContextCount int                   `json:"context_count"`
	CreatedAt    time.Time             `json:"created_at"`
	LastActivity time.Time             `json:"last_activity"`
}

// ResumeSessionResponse for resuming a session
type ResumeSessionResponse struct {
	SessionID   string                 `json:"session_id"`
	SessionName string                 `json:"session_name"`
	Resumed     bool                   `json:"resumed"` // true if existed, false if created new
	Contexts    []storage.ContextState `json:"contexts"`
	CreatedAt   time.Time              `json:"created_at"`
}

// CookiesResponse returned by a cookie snapshot
type CookiesResponse struct {
	SessionID string           `json:"session_id"`
	Cookies   []storage.Cookie `json:"cookies"`
	Count     int              `json:"count"`
}

// RestoreCookiesResponse returned by a cookie restore
type RestoreCookiesResponse struct {
	SessionID string `json:"session_id"`
	Restored  int    `json:"restored"`
}

// SuccessResponse for operations that just need success confirmation
type SuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// Error Types

// ErrorResponse for all error cases
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error information
type ErrorDetail struct {
	Code      string `json:"code"`    // Machine-readable error code
	Message   string `json:"message"` // Human-readable message
	RequestID string `json:"request_id,omitempty"`
}

// Common error codes
const (
	ErrCodeSessionNotFound     = "SESSION_NOT_FOUND"
	ErrCodeContextNotFound     = "CONTEXT_NOT_FOUND"
	ErrCodeInvalidRequest      = "INVALID_REQUEST"
	ErrCodeSessionLimit        = "SESSION_LIMIT_REACHED"
	ErrCodeSessionNameConflict = "SESSION_NAME_CONFLICT"
	ErrCodeSessionUnavailable  = "SESSION_UNAVAILABLE"
	ErrCodeScriptException     = "SCRIPT_EXCEPTION"
	ErrCodePersistenceDisabled = "PERSISTENCE_DISABLED"
	ErrCodeNoEndpoint          = "NO_ENDPOINT_AVAILABLE"
	ErrCodeRemoteFailed        = "REMOTE_COMMAND_FAILED"
	ErrCodeTimeout             = "COMMAND_TIMEOUT"
	ErrCodeRateLimited         = "RATE_LIMITED"
	ErrCodeInternalError       = "INTERNAL_ERROR"
)
