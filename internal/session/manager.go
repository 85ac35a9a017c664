package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dhruvsoni1802/browser-bidi/internal/bidi"
	"github.com/dhruvsoni1802/browser-bidi/internal/bidi/browser"
	"github.com/dhruvsoni1802/browser-bidi/internal/bidi/browsingcontext"
	bidisession "github.com/dhruvsoni1802/browser-bidi/internal/bidi/session"
	"github.com/dhruvsoni1802/browser-bidi/internal/storage"
)

// DialFunc opens a BiDi client on an endpoint or WebSocket URL
type DialFunc func(ctx context.Context, endpoint string) (*bidi.Client, error)

// DefaultDial dials with bidi.Dial
func DefaultDial(dialOpts bidi.DialOptions, clientOpts ...bidi.Option) DialFunc {
	return func(ctx context.Context, endpoint string) (*bidi.Client, error) {
		return bidi.Dial(ctx, endpoint, dialOpts, clientOpts...)
	}
}

// EndpointBalancer places sessions on remote ends and keeps their counts.
// *pool.LoadBalancer implements it.
type EndpointBalancer interface {
	Acquire() (string, error)
	Retain(endpoint string)
	Release(endpoint string)
}

// Repository persists session state. *storage.SessionRepository implements it.
type Repository interface {
	SaveSession(ctx context.Context, state *storage.SessionState) error
	GetSession(ctx context.Context, sessionID string) (*storage.SessionState, error)
	DeleteSession(ctx context.Context, sessionID string) error
	UpdateLastActivity(ctx context.Context, sessionID string) error
	UpdateStatus(ctx context.Context, sessionID, status string) error
	SaveContexts(ctx context.Context, sessionID string, contexts []storage.ContextState) error
	SaveCookies(ctx context.Context, sessionID string, cookies []storage.Cookie) error
	GetCookies(ctx context.Context, sessionID string) ([]storage.Cookie, error)
	GetSessionByName(ctx context.Context, agentID, sessionName string) (string, error)
	CheckSessionNameExists(ctx context.Context, agentID, sessionName string) (bool, error)
	RenameSession(ctx context.Context, sessionID, agentID, oldName, newName string) error
	CountAgentSessions(ctx context.Context, agentID string) (int, error)
	ListAgentSessions(ctx context.Context, agentID string) ([]*storage.SessionState, error)
}

var _ Repository = (*storage.SessionRepository)(nil)

// Options configures a Manager. Zero values fall back to the package defaults.
type Options struct {
	Endpoint            string           // Dialed when Balancer is nil
	Balancer            EndpointBalancer // Optional endpoint pool
	Repository          Repository       // Optional persistence
	Dial                DialFunc         // Defaults to bidi.Dial
	MaxSessions         int
	MaxSessionsPerAgent int
}

// Manager manages all active sessions and their BiDi connections
type Manager struct {
	sessions map[string]*Session
	mu       sync.RWMutex
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	repo     Repository
	balancer EndpointBalancer
	endpoint string
	dial     DialFunc

	// Session limits
	maxSessionsPerAgent int
	maxTotalSessions    int
}

// NewManager creates a new session manager
func NewManager(opts Options) *Manager {
	ctx, cancel := context.WithCancel(context.Background())

	m := &Manager{
		sessions:            make(map[string]*Session),
		ctx:                 ctx,
		cancel:              cancel,
		repo:                opts.Repository,
		balancer:            opts.Balancer,
		endpoint:            opts.Endpoint,
		dial:                opts.Dial,
		maxSessionsPerAgent: opts.MaxSessionsPerAgent,
		maxTotalSessions:    opts.MaxSessions,
	}
	if m.endpoint == "" {
		m.endpoint = DefaultEndpoint
	}
	if m.dial == nil {
		m.dial = DefaultDial(bidi.DialOptions{})
	}
	if m.maxSessionsPerAgent <= 0 {
		m.maxSessionsPerAgent = MaxSessionsPerAgent
	}
	if m.maxTotalSessions <= 0 {
		m.maxTotalSessions = MaxTotalSessions
	}
	return m
}

// CreateSession opens a BiDi session on the least loaded endpoint, gives it
// its own user context and registers it under agentID. An empty name is
// generated.
func (m *Manager) CreateSession(ctx context.Context, agentID, sessionName string) (*Session, error) {
	sess, err := m.createSession(ctx, agentID, sessionName)
	if err != nil {
		metricSessionsCreated.WithLabelValues("error").Inc()
		return nil, err
	}
	metricSessionsCreated.WithLabelValues("success").Inc()
	return sess, nil
}

func (m *Manager) createSession(ctx context.Context, agentID, sessionName string) (*Session, error) {
	// Validate agent ID is provided
	if agentID == "" {
		return nil, ErrAgentRequired
	}

	// Check session limits
	if err := m.checkSessionLimits(ctx, agentID); err != nil {
		return nil, err
	}

	// If name provided, check for conflicts
	if sessionName != "" {
		taken, err := m.nameTaken(ctx, agentID, sessionName)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, fmt.Errorf("%w: %s", ErrSessionNameConflict, sessionName)
		}
	}

	endpoint, err := m.acquireEndpoint()
	if err != nil {
		return nil, err
	}

	client, err := m.dial(ctx, endpoint)
	if err != nil {
		m.releaseEndpoint(endpoint)
		return nil, fmt.Errorf("failed to connect to %s: %w", endpoint, err)
	}

	sess := newSession(uuid.NewString(), sessionName, agentID)
	sess.Endpoint = endpoint
	sess.WebSocketURL = client.URL()
	if sess.WebSocketURL == "" {
		sess.WebSocketURL = endpoint
	}

	if err := m.establish(ctx, sess, client); err != nil {
		_ = client.Close()
		m.releaseEndpoint(endpoint)
		return nil, err
	}

	// Auto-generate name if not provided
	if sessionName == "" {
		sess.setName(generateSessionName(sess))
	}

	m.mu.Lock()
	if len(m.sessions) >= m.maxTotalSessions {
		m.mu.Unlock()
		m.teardown(ctx, sess)
		return nil, fmt.Errorf("%w: global limit of %d sessions", ErrSessionLimitReached, m.maxTotalSessions)
	}
	m.sessions[sess.ID] = sess
	metricActiveSessions.Set(float64(len(m.sessions)))
	m.mu.Unlock()

	m.watch(sess, client)
	m.persist(ctx, sess)

	slog.Info("session created",
		"session_id", sess.ID,
		"session_name", sess.Name(),
		"agent_id", agentID,
		"endpoint", endpoint,
		"bidi_session", sess.BiDiSession)

	return sess, nil
}

// establish runs session.new, creates the user context and subscribes to
// context destruction for it.
func (m *Manager) establish(ctx context.Context, sess *Session, client *bidi.Client) error {
	result, err := bidisession.New(client).NewSession(ctx, bidisession.CapabilitiesRequest{})
	if err != nil {
		return fmt.Errorf("failed to start BiDi session: %w", err)
	}
	sess.BiDiSession = result.SessionID

	userContext, err := browser.New(client).CreateUserContext(ctx, browser.CreateUserContextParams{})
	if err != nil {
		return fmt.Errorf("failed to create user context: %w", err)
	}
	sess.UserContext = userContext.UserContext

	m.trackContexts(sess, client)
	_, err = client.Events().Subscribe(ctx, bidi.SubscribeParams{
		Events:       []string{bidi.EventContextDestroyed},
		UserContexts: []bidi.UserContextID{sess.UserContext},
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to context events: %w", err)
	}

	sess.setClient(client)
	return nil
}

// trackContexts drops contexts the browser closed on its own
func (m *Manager) trackContexts(sess *Session, client *bidi.Client) {
	browsingcontext.OnContextDestroyed(client.Events(), func(info browsingcontext.Info) {
		if !sess.RemoveContext(info.Context.String()) {
			return
		}
		slog.Debug("browsing context destroyed",
			"session_id", sess.ID,
			"context_id", info.Context.String())
		ctx, cancel := context.WithTimeout(m.ctx, 5*time.Second)
		defer cancel()
		m.persistContexts(ctx, sess)
	})
}

// watch marks the session disconnected when its transport goes away
func (m *Manager) watch(sess *Session, client *bidi.Client) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		select {
		case <-m.ctx.Done():
			return
		case <-client.Done():
		}

		if !sess.markDisconnected(client) {
			return
		}
		slog.Warn("session transport lost",
			"session_id", sess.ID,
			"endpoint", sess.Endpoint)
		if m.repo != nil {
			ctx, cancel := context.WithTimeout(m.ctx, 5*time.Second)
			defer cancel()
			if err := m.repo.UpdateStatus(ctx, sess.ID, string(SessionDisconnected)); err != nil {
				slog.Warn("failed to update session status", "session_id", sess.ID, "error", err)
			}
		}
	}()
}

// GetSession retrieves a session by ID
func (m *Manager) GetSession(sessionID string) (*Session, error) {
	// Acquire read lock (allows multiple concurrent reads)
	m.mu.RLock()
	defer m.mu.RUnlock()

	// Look up session in map
	session, exists := m.sessions[sessionID]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}

	return session, nil
}

// DestroySession ends the BiDi session and removes every trace of it
func (m *Manager) DestroySession(ctx context.Context, sessionID string) error {
	return m.destroySession(ctx, sessionID, "destroyed")
}

func (m *Manager) destroySession(ctx context.Context, sessionID, reason string) error {
	m.mu.Lock()
	sess, exists := m.sessions[sessionID]
	if !exists {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	delete(m.sessions, sessionID)
	metricActiveSessions.Set(float64(len(m.sessions)))
	m.mu.Unlock()

	m.teardown(ctx, sess)

	// Delete from Redis (this handles name cleanup too)
	if m.repo != nil {
		if err := m.repo.DeleteSession(ctx, sessionID); err != nil {
			slog.Warn("failed to delete session from Redis", "session_id", sessionID, "error", err)
		}
	}

	metricSessionsClosed.WithLabelValues(reason).Inc()
	slog.Info("session destroyed",
		"session_id", sessionID,
		"session_name", sess.Name(),
		"agent_id", sess.AgentID,
		"reason", reason)

	return nil
}

// teardown removes the user context, ends the BiDi session and frees the
// endpoint slot. Remote failures are logged; the session is gone either way.
func (m *Manager) teardown(ctx context.Context, sess *Session) {
	sess.setStatus(SessionClosed)
	client := sess.Client()
	if client == nil {
		return
	}

	if client.State() == bidi.StateConnected {
		if !sess.UserContext.IsZero() {
			if err := browser.New(client).RemoveUserContext(ctx, sess.UserContext); err != nil {
				slog.Warn("failed to remove user context", "session_id", sess.ID, "error", err)
			}
		}
		if err := bidisession.New(client).Delete(ctx); err != nil {
			slog.Warn("failed to end BiDi session", "session_id", sess.ID, "error", err)
		}
	} else if err := client.Close(); err != nil {
		slog.Warn("failed to close BiDi client", "session_id", sess.ID, "error", err)
	}

	m.releaseEndpoint(sess.Endpoint)
}

// ListSessions returns all sessions held in memory
func (m *Manager) ListSessions() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sessions := make([]*Session, 0, len(m.sessions))
	for _, session := range m.sessions {
		sessions = append(sessions, session)
	}

	return sessions
}

// GetSessionCount returns the number of sessions held in memory
func (m *Manager) GetSessionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Close stops background workers and closes every connection in parallel.
// Persisted sessions are kept, marked disconnected, so they can be resumed.
func (m *Manager) Close(ctx context.Context) error {
	// Signal cleanup worker and watchers to stop
	m.cancel()

	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, sess := range m.sessions {
		sessions = append(sessions, sess)
	}
	m.sessions = make(map[string]*Session)
	metricActiveSessions.Set(0)
	m.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, sess := range sessions {
		g.Go(func() error {
			sess.setStatus(SessionDisconnected)
			if client := sess.Client(); client != nil {
				if err := client.Close(); err != nil {
					slog.Warn("failed to close BiDi client", "session_id", sess.ID, "error", err)
				}
			}
			m.releaseEndpoint(sess.Endpoint)
			if m.repo == nil {
				return nil
			}
			if err := m.repo.UpdateStatus(gctx, sess.ID, string(SessionDisconnected)); err != nil {
				return fmt.Errorf("session %s: %w", sess.ID, err)
			}
			return nil
		})
	}
	err := g.Wait()

	m.wg.Wait()
	slog.Info("session manager closed", "sessions", len(sessions))
	return err
}

// StartCleanupWorker starts a background worker to clean up expired sessions
func (m *Manager) StartCleanupWorker(interval, timeout time.Duration) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		slog.Info("cleanup worker started",
			"check_interval", interval,
			"session_timeout", timeout)

		for {
			select {
			case <-m.ctx.Done():
				slog.Info("cleanup worker stopping")
				return

			case <-ticker.C:
				m.cleanupExpiredSessions(timeout)
			}
		}
	}()
}

// cleanupExpiredSessions removes sessions inactive for longer than timeout
func (m *Manager) cleanupExpiredSessions(timeout time.Duration) {
	// Phase 1: Collect expired session IDs (read lock)
	m.mu.RLock()
	expiredIDs := make([]string, 0)
	for sessionID, session := range m.sessions {
		if session.IsExpired(timeout) {
			expiredIDs = append(expiredIDs, sessionID)
		}
	}
	m.mu.RUnlock()

	if len(expiredIDs) == 0 {
		return
	}

	// Phase 2: Destroy expired sessions (each acquires its own lock)
	slog.Info("cleaning up expired sessions",
		"count", len(expiredIDs),
		"timeout", timeout)

	ctx, cancel := context.WithTimeout(m.ctx, 30*time.Second)
	defer cancel()
	for _, sessionID := range expiredIDs {
		if err := m.destroySession(ctx, sessionID, "expired"); err != nil {
			slog.Warn("failed to destroy expired session",
				"session_id", sessionID,
				"error", err)
		}
	}
}

// checkSessionLimits enforces the global and per-agent limits
func (m *Manager) checkSessionLimits(ctx context.Context, agentID string) error {
	m.mu.RLock()
	totalSessions := len(m.sessions)
	agentSessions := 0
	for _, sess := range m.sessions {
		if sess.AgentID == agentID {
			agentSessions++
		}
	}
	m.mu.RUnlock()

	if totalSessions >= m.maxTotalSessions {
		return fmt.Errorf("%w: global limit of %d sessions", ErrSessionLimitReached, m.maxTotalSessions)
	}

	// Redis also counts sessions of this agent held by other processes
	if m.repo != nil {
		count, err := m.repo.CountAgentSessions(ctx, agentID)
		if err != nil {
			// Don't block on Redis error
			slog.Warn("failed to count agent sessions", "error", err)
		} else if count > agentSessions {
			agentSessions = count
		}
	}

	if agentSessions >= m.maxSessionsPerAgent {
		return fmt.Errorf("%w: agent has %d sessions (max %d)",
			ErrSessionLimitReached, agentSessions, m.maxSessionsPerAgent)
	}

	return nil
}

// nameTaken checks memory and then Redis for an agent's session name
func (m *Manager) nameTaken(ctx context.Context, agentID, sessionName string) (bool, error) {
	if m.findByName(agentID, sessionName) != nil {
		return true, nil
	}
	if m.repo == nil {
		return false, nil
	}
	exists, err := m.repo.CheckSessionNameExists(ctx, agentID, sessionName)
	if err != nil {
		return false, fmt.Errorf("failed to check session name: %w", err)
	}
	return exists, nil
}

func (m *Manager) findByName(agentID, sessionName string) *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, sess := range m.sessions {
		if sess.AgentID == agentID && sess.Name() == sessionName {
			return sess
		}
	}
	return nil
}

func (m *Manager) acquireEndpoint() (string, error) {
	if m.balancer == nil {
		return m.endpoint, nil
	}
	endpoint, err := m.balancer.Acquire()
	if err != nil {
		return "", fmt.Errorf("no available endpoint: %w", err)
	}
	return endpoint, nil
}

func (m *Manager) releaseEndpoint(endpoint string) {
	if m.balancer != nil {
		m.balancer.Release(endpoint)
	}
}

// generateSessionName builds names like "session-2026-02-08-1a2b3c4d"
func generateSessionName(session *Session) string {
	timestamp := session.CreatedAt.Format("2006-01-02")
	return fmt.Sprintf("%s-%s-%s", DefaultSessionNamePrefix, timestamp, session.ID[:8])
}

// persist saves the whole session state
func (m *Manager) persist(ctx context.Context, sess *Session) {
	if m.repo == nil {
		return
	}
	if err := m.repo.SaveSession(ctx, sess.toState()); err != nil {
		slog.Warn("failed to persist session to Redis", "session_id", sess.ID, "error", err)
	}
}

// persistContexts saves only the tracked contexts
func (m *Manager) persistContexts(ctx context.Context, sess *Session) {
	if m.repo == nil {
		return
	}
	if err := m.repo.SaveContexts(ctx, sess.ID, sess.Info().Contexts); err != nil {
		slog.Warn("failed to persist contexts", "session_id", sess.ID, "error", err)
	}
}

// touch records activity in memory and in Redis
func (m *Manager) touch(ctx context.Context, sess *Session) {
	sess.UpdateActivity()
	if m.repo == nil {
		return
	}
	if err := m.repo.UpdateLastActivity(ctx, sess.ID); err != nil {
		slog.Debug("failed to update last activity", "session_id", sess.ID, "error", err)
	}
}

// isNotFound reports whether a repository error means no record exists
func isNotFound(err error) bool {
	return errors.Is(err, storage.ErrNotFound)
}
