package session

import (
	"slices"
	"sync"
	"time"

	"github.com/dhruvsoni1802/browser-bidi/internal/bidi"
	"github.com/dhruvsoni1802/browser-bidi/internal/storage"
)

// SessionStatus represents the current state of a session
type SessionStatus string

const (
	SessionActive       SessionStatus = "active"       // Session is running
	SessionDisconnected SessionStatus = "disconnected" // Transport lost, may be resumed
	SessionClosed       SessionStatus = "closed"       // Session was explicitly closed
	SessionExpired      SessionStatus = "expired"      // Session timed out
)

// Session represents an agent's isolated browsing session: one BiDi client,
// one user context and the browsing contexts opened inside it.
type Session struct {
	ID           string             // Unique session identifier
	AgentID      string             // Agent ID
	Endpoint     string             // Endpoint the session was placed on
	WebSocketURL string             // URL dialed for the BiDi connection
	BiDiSession  string             // Remote session id from session.new
	UserContext  bidi.UserContextID // Isolated user context owning the contexts
	CreatedAt    time.Time          // When session was created

	mu           sync.RWMutex
	name         string
	client       *bidi.Client
	contexts     map[string]string // context id -> last known URL
	order        []string          // context ids in creation order
	lastActivity time.Time
	status       SessionStatus
}

// Info is a point-in-time copy of a session, safe to hand out
type Info struct {
	ID           string
	Name         string
	AgentID      string
	Endpoint     string
	WebSocketURL string
	BiDiSession  string
	UserContext  string
	Contexts     []storage.ContextState
	CreatedAt    time.Time
	LastActivity time.Time
	Status       SessionStatus
}

func newSession(id, name, agentID string) *Session {
	now := time.Now()
	return &Session{
		ID:           id,
		AgentID:      agentID,
		CreatedAt:    now,
		name:         name,
		contexts:     make(map[string]string),
		lastActivity: now,
		status:       SessionActive,
	}
}

// Name returns the current session name
func (s *Session) Name() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.name
}

func (s *Session) setName(name string) {
	s.mu.Lock()
	s.name = name
	s.mu.Unlock()
}

// Client returns the BiDi client, nil once the session is closed
func (s *Session) Client() *bidi.Client {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.client
}

func (s *Session) setClient(client *bidi.Client) {
	s.mu.Lock()
	s.client = client
	s.mu.Unlock()
}

// Status returns the current session status
func (s *Session) Status() SessionStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

func (s *Session) setStatus(status SessionStatus) {
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()
}

// markDisconnected flips an active session whose client is still client to
// disconnected. It reports whether the status changed.
func (s *Session) markDisconnected(client *bidi.Client) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != client || s.status != SessionActive {
		return false
	}
	s.status = SessionDisconnected
	return true
}

// IsExpired checks if the session has been inactive too long
func (s *Session) IsExpired(timeout time.Duration) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return time.Since(s.lastActivity) > timeout
}

// UpdateActivity updates the last activity timestamp
func (s *Session) UpdateActivity() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

// AddContext tracks a new browsing context in this session
func (s *Session) AddContext(contextID, url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.contexts[contextID]; !ok {
		s.order = append(s.order, contextID)
	}
	s.contexts[contextID] = url
	s.lastActivity = time.Now()
}

// RemoveContext stops tracking a browsing context
func (s *Session) RemoveContext(contextID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.contexts[contextID]; !ok {
		return false
	}
	delete(s.contexts, contextID)
	s.order = slices.DeleteFunc(s.order, func(id string) bool { return id == contextID })
	s.lastActivity = time.Now()
	return true
}

// HasContext reports whether the context belongs to this session
func (s *Session) HasContext(contextID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.contexts[contextID]
	return ok
}

// ContextURL returns the last known URL of a tracked context
func (s *Session) ContextURL(contextID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	url, ok := s.contexts[contextID]
	return url, ok
}

// ContextIDs returns the tracked context ids in creation order
func (s *Session) ContextIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.order)
}

func (s *Session) contextStates() []storage.ContextState {
	states := make([]storage.ContextState, 0, len(s.order))
	for _, id := range s.order {
		states = append(states, storage.ContextState{ContextID: id, URL: s.contexts[id]})
	}
	return states
}

// Info returns a snapshot of the session
func (s *Session) Info() Info {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Info{
		ID:           s.ID,
		Name:         s.name,
		AgentID:      s.AgentID,
		Endpoint:     s.Endpoint,
		WebSocketURL: s.WebSocketURL,
		BiDiSession:  s.BiDiSession,
		UserContext:  s.UserContext.String(),
		Contexts:     s.contextStates(),
		CreatedAt:    s.CreatedAt,
		LastActivity: s.lastActivity,
		Status:       s.status,
	}
}

// subscribedEvents lists the event names the client is subscribed to
func (s *Session) subscribedEvents() []string {
	client := s.Client()
	if client == nil {
		return nil
	}
	var events []string
	for _, sub := range client.Events().Subscriptions() {
		events = append(events, sub.Events...)
	}
	slices.Sort(events)
	return slices.Compact(events)
}

// toState converts the session for persistence
func (s *Session) toState() *storage.SessionState {
	info := s.Info()
	return &storage.SessionState{
		SessionID:     info.ID,
		SessionName:   info.Name,
		AgentID:       info.AgentID,
		Endpoint:      info.Endpoint,
		WebSocketURL:  info.WebSocketURL,
		BiDiSession:   info.BiDiSession,
		UserContext:   info.UserContext,
		CreatedAt:     info.CreatedAt,
		LastActivity:  info.LastActivity,
		Status:        string(info.Status),
		Contexts:      info.Contexts,
		Subscriptions: s.subscribedEvents(),
	}
}

// infoFromState builds a listing entry for a session that is only persisted
func infoFromState(state *storage.SessionState) Info {
	return Info{
		ID:           state.SessionID,
		Name:         state.SessionName,
		AgentID:      state.AgentID,
		Endpoint:     state.Endpoint,
		WebSocketURL: state.WebSocketURL,
		BiDiSession:  state.BiDiSession,
		UserContext:  state.UserContext,
		Contexts:     state.Contexts,
		CreatedAt:    state.CreatedAt,
		LastActivity: state.LastActivity,
		Status:       SessionStatus(state.Status),
	}
}
