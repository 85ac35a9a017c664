package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dhruvsoni1802/browser-bidi/internal/bidi"
	"github.com/dhruvsoni1802/browser-bidi/internal/bidi/browsingcontext"
	bidisession "github.com/dhruvsoni1802/browser-bidi/internal/bidi/session"
	"github.com/dhruvsoni1802/browser-bidi/internal/storage"
)

// ResumeSessionByName resumes a session by agent ID and session name
func (m *Manager) ResumeSessionByName(ctx context.Context, agentID, sessionName string) (*Session, error) {
	if agentID == "" || sessionName == "" {
		return nil, fmt.Errorf("%w: agent_id and session_name are required", ErrInvalidSessionName)
	}

	// Try memory first
	if sess := m.findByName(agentID, sessionName); sess != nil {
		return m.resumeLive(ctx, sess)
	}

	if m.repo == nil {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionName)
	}

	sessionID, err := m.repo.GetSessionByName(ctx, agentID, sessionName)
	if isNotFound(err) {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionName)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up session name: %w", err)
	}

	return m.ResumeSession(ctx, sessionID)
}

// ResumeSession resumes a session by ID, from memory or from Redis
func (m *Manager) ResumeSession(ctx context.Context, sessionID string) (*Session, error) {
	if sess, err := m.GetSession(sessionID); err == nil {
		return m.resumeLive(ctx, sess)
	}

	if m.repo == nil {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}

	state, err := m.repo.GetSession(ctx, sessionID)
	if isNotFound(err) {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session from Redis: %w", err)
	}

	sess, err := m.resurrectSession(ctx, state)
	if err != nil {
		return nil, err
	}

	metricSessionsResumed.WithLabelValues("redis").Inc()
	slog.Info("resurrected session from Redis",
		"session_id", sess.ID,
		"session_name", sess.Name(),
		"agent_id", sess.AgentID)

	return sess, nil
}

// resumeLive reconnects an in-memory session whose transport was lost
func (m *Manager) resumeLive(ctx context.Context, sess *Session) (*Session, error) {
	if sess.Status() == SessionDisconnected {
		if err := m.reattach(ctx, sess, sess.Info().Contexts); err != nil {
			return nil, err
		}
		m.persist(ctx, sess)
	} else {
		m.touch(ctx, sess)
	}

	metricSessionsResumed.WithLabelValues("memory").Inc()
	slog.Info("resumed session from memory",
		"session_id", sess.ID,
		"session_name", sess.Name(),
		"agent_id", sess.AgentID)

	return sess, nil
}

// resurrectSession rebuilds a session from Redis state
func (m *Manager) resurrectSession(ctx context.Context, state *storage.SessionState) (*Session, error) {
	m.mu.RLock()
	total := len(m.sessions)
	m.mu.RUnlock()
	if total >= m.maxTotalSessions {
		return nil, fmt.Errorf("%w: global limit of %d sessions", ErrSessionLimitReached, m.maxTotalSessions)
	}

	sess := newSession(state.SessionID, state.SessionName, state.AgentID)
	sess.CreatedAt = state.CreatedAt
	sess.Endpoint = state.Endpoint
	sess.WebSocketURL = state.WebSocketURL
	sess.BiDiSession = state.BiDiSession
	if state.UserContext != "" {
		userContext, err := bidi.NewUserContextID(state.UserContext)
		if err != nil {
			return nil, fmt.Errorf("invalid stored user context: %w", err)
		}
		sess.UserContext = userContext
	}

	if err := m.reattach(ctx, sess, state.Contexts); err != nil {
		return nil, err
	}
	if m.balancer != nil {
		m.balancer.Retain(sess.Endpoint)
	}

	m.mu.Lock()
	if existing, ok := m.sessions[sess.ID]; ok {
		// Lost a race with a concurrent resume
		m.mu.Unlock()
		_ = sess.Client().Close()
		m.releaseEndpoint(sess.Endpoint)
		return existing, nil
	}
	m.sessions[sess.ID] = sess
	metricActiveSessions.Set(float64(len(m.sessions)))
	m.mu.Unlock()

	m.persist(ctx, sess)
	return sess, nil
}

// reattach dials the stored WebSocket URL, attaches to the BiDi session and
// keeps only the known contexts the browser still has.
func (m *Manager) reattach(ctx context.Context, sess *Session, known []storage.ContextState) error {
	if sess.BiDiSession == "" {
		return fmt.Errorf("%w: no BiDi session id recorded", ErrSessionUnavailable)
	}
	target := sess.WebSocketURL
	if target == "" {
		target = sess.Endpoint
	}

	client, err := m.dial(ctx, target)
	if err != nil {
		return fmt.Errorf("failed to reconnect to browser: %w", err)
	}
	if err := bidisession.New(client).Attach(sess.BiDiSession); err != nil {
		_ = client.Close()
		return fmt.Errorf("failed to attach to BiDi session: %w", err)
	}

	tree, err := browsingcontext.New(client).GetTree(ctx, browsingcontext.GetTreeParams{})
	if err != nil {
		_ = client.Close()
		return fmt.Errorf("%w: %w", ErrSessionUnavailable, err)
	}
	live := make(map[string]string, len(tree))
	for _, info := range tree {
		live[info.Context.String()] = info.URL
	}

	sess.mu.Lock()
	sess.contexts = make(map[string]string)
	sess.order = sess.order[:0]
	for _, c := range known {
		if url, ok := live[c.ContextID]; ok {
			sess.contexts[c.ContextID] = url
			sess.order = append(sess.order, c.ContextID)
		}
	}
	sess.client = client
	sess.status = SessionActive
	sess.lastActivity = time.Now()
	sess.mu.Unlock()

	m.trackContexts(sess, client)
	m.watch(sess, client)
	return nil
}

// ListAgentSessions returns all sessions for an agent, live or persisted
func (m *Manager) ListAgentSessions(ctx context.Context, agentID string) ([]Info, error) {
	if agentID == "" {
		return nil, ErrAgentRequired
	}

	m.mu.RLock()
	live := make(map[string]Info)
	for _, sess := range m.sessions {
		if sess.AgentID == agentID {
			live[sess.ID] = sess.Info()
		}
	}
	m.mu.RUnlock()

	infos := make([]Info, 0, len(live))
	for _, info := range live {
		infos = append(infos, info)
	}
	if m.repo == nil {
		return infos, nil
	}

	states, err := m.repo.ListAgentSessions(ctx, agentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list agent sessions: %w", err)
	}

	// Lightweight entries for sessions not resumed in this process
	for _, state := range states {
		if _, ok := live[state.SessionID]; !ok {
			infos = append(infos, infoFromState(state))
		}
	}

	return infos, nil
}

// RenameSession updates a session's name
func (m *Manager) RenameSession(ctx context.Context, sessionID, newName string) error {
	if sessionID == "" || newName == "" {
		return fmt.Errorf("%w: session_id and new_name are required", ErrInvalidSessionName)
	}

	sess, err := m.GetSession(sessionID)
	if err != nil {
		return err
	}

	oldName := sess.Name()
	if oldName == newName {
		return nil
	}
	if other := m.findByName(sess.AgentID, newName); other != nil {
		return fmt.Errorf("%w: %s", ErrSessionNameConflict, newName)
	}

	// Update in Redis
	if m.repo != nil {
		err := m.repo.RenameSession(ctx, sessionID, sess.AgentID, oldName, newName)
		if errors.Is(err, storage.ErrNameTaken) {
			return fmt.Errorf("%w: %s", ErrSessionNameConflict, newName)
		}
		if err != nil {
			return fmt.Errorf("failed to rename session in Redis: %w", err)
		}
	}

	// Update in memory
	sess.setName(newName)
	sess.UpdateActivity()

	slog.Info("session renamed",
		"session_id", sessionID,
		"old_name", oldName,
		"new_name", newName)

	return nil
}
