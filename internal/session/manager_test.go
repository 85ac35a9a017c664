package session

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhruvsoni1802/browser-bidi/internal/bidi"
	"github.com/dhruvsoni1802/browser-bidi/internal/bidi/browser"
	"github.com/dhruvsoni1802/browser-bidi/internal/bidi/browsingcontext"
	bidisession "github.com/dhruvsoni1802/browser-bidi/internal/bidi/session"
	"github.com/dhruvsoni1802/browser-bidi/internal/storage"
)

const testEndpoint = "ws://browser-1:9222/session"

func newTestManager(t *testing.T, opts Options) (*Manager, *fakeBrowser) {
	t.Helper()
	fake := newFakeBrowser(t)
	opts.Dial = fake.dial
	if opts.Endpoint == "" {
		opts.Endpoint = testEndpoint
	}
	m := NewManager(opts)
	t.Cleanup(func() { _ = m.Close(context.Background()) })
	return m, fake
}

func TestNewManagerDefaults(t *testing.T) {
	m := NewManager(Options{})
	defer m.Close(context.Background())

	assert.Equal(t, DefaultEndpoint, m.endpoint)
	assert.Equal(t, MaxTotalSessions, m.maxTotalSessions)
	assert.Equal(t, MaxSessionsPerAgent, m.maxSessionsPerAgent)
	assert.NotNil(t, m.dial)
	assert.Zero(t, m.GetSessionCount())
}

func TestCreateSession(t *testing.T) {
	m, fake := newTestManager(t, Options{})

	sess, err := m.CreateSession(context.Background(), "agent-1", "")
	require.NoError(t, err)

	assert.Equal(t, "bidi-1", sess.BiDiSession)
	assert.Equal(t, "uc-1", sess.UserContext.String())
	assert.Equal(t, testEndpoint, sess.Endpoint)
	assert.Equal(t, testEndpoint, sess.WebSocketURL)
	assert.Equal(t, SessionActive, sess.Status())
	assert.True(t, strings.HasPrefix(sess.Name(), DefaultSessionNamePrefix+"-"))
	assert.Equal(t, []string{testEndpoint}, fake.dials())
	assert.Equal(t, 1, m.GetSessionCount())

	server := fake.server(0)
	assert.Equal(t, []string{
		bidisession.MethodNew,
		browser.MethodCreateUserContext,
		bidi.MethodSessionSubscribe,
	}, methods(server))
	assert.JSONEq(t,
		`{"events":["browsingContext.contextDestroyed"],"userContexts":["uc-1"]}`,
		string(server.Commands()[2].Params))

	got, err := m.GetSession(sess.ID)
	require.NoError(t, err)
	assert.Same(t, sess, got)
}

func TestCreateSessionValidation(t *testing.T) {
	m, _ := newTestManager(t, Options{})

	_, err := m.CreateSession(context.Background(), "", "named")
	assert.ErrorIs(t, err, ErrAgentRequired)

	_, err = m.GetSession("missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestCreateSessionDialFailureReleasesEndpoint(t *testing.T) {
	balancer := newCountingBalancer(testEndpoint)
	m, fake := newTestManager(t, Options{Balancer: balancer})
	fake.dialErr = errors.New("connection refused")

	_, err := m.CreateSession(context.Background(), "agent-1", "")
	require.Error(t, err)
	assert.Zero(t, balancer.count(testEndpoint))
	assert.Zero(t, m.GetSessionCount())
}

func TestCreateSessionRemoteFailure(t *testing.T) {
	balancer := newCountingBalancer(testEndpoint)
	m, fake := newTestManager(t, Options{Balancer: balancer})

	// Fail session.new on the first dialed server
	m.dial = func(ctx context.Context, endpoint string) (*bidi.Client, error) {
		client, err := fake.dial(ctx, endpoint)
		if err == nil {
			fake.server(0).HandleError(bidisession.MethodNew, "session not created", "busy")
		}
		return client, err
	}

	_, err := m.CreateSession(context.Background(), "agent-1", "")
	require.ErrorIs(t, err, bidi.ErrRemoteCommandFailed)
	assert.Zero(t, balancer.count(testEndpoint))
	assert.Zero(t, m.GetSessionCount())
}

func TestSessionLimits(t *testing.T) {
	m, _ := newTestManager(t, Options{MaxSessions: 2, MaxSessionsPerAgent: 1})
	ctx := context.Background()

	_, err := m.CreateSession(ctx, "agent-1", "")
	require.NoError(t, err)

	_, err = m.CreateSession(ctx, "agent-1", "")
	assert.ErrorIs(t, err, ErrSessionLimitReached)

	_, err = m.CreateSession(ctx, "agent-2", "")
	require.NoError(t, err)

	_, err = m.CreateSession(ctx, "agent-3", "")
	assert.ErrorIs(t, err, ErrSessionLimitReached)
}

func TestSessionNameConflict(t *testing.T) {
	m, _ := newTestManager(t, Options{})
	ctx := context.Background()

	sess, err := m.CreateSession(ctx, "agent-1", "checkout")
	require.NoError(t, err)
	assert.Equal(t, "checkout", sess.Name())

	_, err = m.CreateSession(ctx, "agent-1", "checkout")
	assert.ErrorIs(t, err, ErrSessionNameConflict)

	_, err = m.CreateSession(ctx, "agent-2", "checkout")
	assert.NoError(t, err)
}

func TestDestroySession(t *testing.T) {
	balancer := newCountingBalancer(testEndpoint)
	repo := newMemRepo()
	m, fake := newTestManager(t, Options{Balancer: balancer, Repository: repo})
	ctx := context.Background()

	sess, err := m.CreateSession(ctx, "agent-1", "checkout")
	require.NoError(t, err)
	assert.Equal(t, 1, balancer.count(testEndpoint))
	state, persisted := repo.state(sess.ID)
	assert.True(t, persisted)
	assert.Equal(t, []string{bidi.EventContextDestroyed}, state.Subscriptions)

	require.NoError(t, m.DestroySession(ctx, sess.ID))

	assert.Equal(t, SessionClosed, sess.Status())
	assert.Zero(t, balancer.count(testEndpoint))
	assert.Zero(t, m.GetSessionCount())
	_, persisted = repo.state(sess.ID)
	assert.False(t, persisted)

	names := methods(fake.server(0))
	assert.Equal(t, []string{browser.MethodRemoveUserContext, bidisession.MethodEnd}, names[len(names)-2:])
	assert.JSONEq(t, `{"userContext":"uc-1"}`, string(fake.server(0).Commands()[len(names)-2].Params))

	assert.ErrorIs(t, m.DestroySession(ctx, sess.ID), ErrSessionNotFound)
}

func TestCleanupExpiredSessions(t *testing.T) {
	m, _ := newTestManager(t, Options{})
	ctx := context.Background()

	stale, err := m.CreateSession(ctx, "agent-1", "")
	require.NoError(t, err)
	fresh, err := m.CreateSession(ctx, "agent-2", "")
	require.NoError(t, err)

	stale.mu.Lock()
	stale.lastActivity = time.Now().Add(-time.Hour)
	stale.mu.Unlock()

	m.cleanupExpiredSessions(time.Minute)

	_, err = m.GetSession(stale.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = m.GetSession(fresh.ID)
	assert.NoError(t, err)
}

func TestCleanupWorkerStopsOnClose(t *testing.T) {
	m := NewManager(Options{Dial: newFakeBrowser(t).dial})
	m.StartCleanupWorker(10*time.Millisecond, time.Hour)

	done := make(chan struct{})
	go func() {
		_ = m.Close(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not stop the cleanup worker")
	}
}

func TestCloseKeepsPersistedSessions(t *testing.T) {
	repo := newMemRepo()
	fake := newFakeBrowser(t)
	m := NewManager(Options{Endpoint: testEndpoint, Dial: fake.dial, Repository: repo})
	ctx := context.Background()

	first, err := m.CreateSession(ctx, "agent-1", "one")
	require.NoError(t, err)
	second, err := m.CreateSession(ctx, "agent-1", "two")
	require.NoError(t, err)

	require.NoError(t, m.Close(ctx))
	assert.Zero(t, m.GetSessionCount())

	for _, sess := range []*Session{first, second} {
		state, ok := repo.state(sess.ID)
		require.True(t, ok)
		assert.Equal(t, string(SessionDisconnected), state.Status)
		assert.Equal(t, bidi.StateClosed, sess.Client().State())
	}
}

func TestTransportLossAndResume(t *testing.T) {
	repo := newMemRepo()
	m, fake := newTestManager(t, Options{Repository: repo})
	ctx := context.Background()

	sess, err := m.CreateSession(ctx, "agent-1", "checkout")
	require.NoError(t, err)
	contextID, err := m.CreateContext(ctx, sess.ID, "https://example.com/")
	require.NoError(t, err)

	fake.server(0).Drop()
	require.Eventually(t, func() bool { return sess.Status() == SessionDisconnected }, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		state, _ := repo.state(sess.ID)
		return state.Status == string(SessionDisconnected)
	}, 2*time.Second, 10*time.Millisecond)

	_, err = m.Evaluate(ctx, sess.ID, contextID, "1")
	assert.ErrorIs(t, err, ErrSessionUnavailable)

	fake.setLive(contextID)
	resumed, err := m.ResumeSessionByName(ctx, "agent-1", "checkout")
	require.NoError(t, err)
	assert.Same(t, sess, resumed)
	assert.Equal(t, SessionActive, sess.Status())
	assert.Equal(t, []string{testEndpoint, testEndpoint}, fake.dials())
	assert.Equal(t, []string{contextID}, sess.ContextIDs())
	assert.Equal(t, bidi.StateConnected, sess.Client().State())

	// The redialed connection attaches rather than starting a new session
	assert.Equal(t, []string{browsingcontext.MethodGetTree}, methods(fake.server(1)))

	value, err := m.Evaluate(ctx, sess.ID, contextID, "document.title")
	require.NoError(t, err)
	assert.Equal(t, "hello", value)
}

func TestResumeFromRepository(t *testing.T) {
	repo := newMemRepo()
	balancer := newCountingBalancer(testEndpoint)
	m, fake := newTestManager(t, Options{Repository: repo, Balancer: balancer})
	ctx := context.Background()

	stored := &storage.SessionState{
		SessionID:    "11111111-2222-3333-4444-555555555555",
		SessionName:  "research",
		AgentID:      "agent-1",
		Endpoint:     "http://browser-2:9222",
		WebSocketURL: "ws://browser-2:9222/session",
		BiDiSession:  "bidi-1",
		UserContext:  "uc-1",
		CreatedAt:    time.Now().Add(-time.Hour).Truncate(time.Second),
		Status:       string(SessionDisconnected),
		Contexts: []storage.ContextState{
			{ContextID: "ctx-a", URL: "https://a.example/"},
			{ContextID: "ctx-gone", URL: "https://gone.example/"},
		},
	}
	require.NoError(t, repo.SaveSession(ctx, stored))
	fake.setLive("ctx-a", "ctx-other")

	sess, err := m.ResumeSessionByName(ctx, "agent-1", "research")
	require.NoError(t, err)

	assert.Equal(t, stored.SessionID, sess.ID)
	assert.Equal(t, "research", sess.Name())
	assert.Equal(t, "uc-1", sess.UserContext.String())
	assert.True(t, stored.CreatedAt.Equal(sess.CreatedAt))
	assert.Equal(t, []string{"ws://browser-2:9222/session"}, fake.dials())
	assert.Equal(t, []string{"ctx-a"}, sess.ContextIDs())
	url, _ := sess.ContextURL("ctx-a")
	assert.Equal(t, "https://example.com/ctx-a", url)
	assert.Equal(t, 1, balancer.count("http://browser-2:9222"))

	state, _ := repo.state(sess.ID)
	assert.Equal(t, string(SessionActive), state.Status)

	again, err := m.ResumeSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Same(t, sess, again)
}

func TestResumeFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("without repository", func(t *testing.T) {
		m, _ := newTestManager(t, Options{})
		_, err := m.ResumeSessionByName(ctx, "agent-1", "nothing")
		assert.ErrorIs(t, err, ErrSessionNotFound)
		_, err = m.ResumeSessionByName(ctx, "", "nothing")
		assert.ErrorIs(t, err, ErrInvalidSessionName)
	})

	t.Run("unknown name", func(t *testing.T) {
		m, _ := newTestManager(t, Options{Repository: newMemRepo()})
		_, err := m.ResumeSessionByName(ctx, "agent-1", "nothing")
		assert.ErrorIs(t, err, ErrSessionNotFound)
	})

	t.Run("remote session gone", func(t *testing.T) {
		repo := newMemRepo()
		m, fake := newTestManager(t, Options{Repository: repo})
		require.NoError(t, repo.SaveSession(ctx, &storage.SessionState{
			SessionID:    "dead",
			SessionName:  "dead",
			AgentID:      "agent-1",
			WebSocketURL: testEndpoint,
			BiDiSession:  "bidi-1",
		}))
		m.dial = func(ctx context.Context, endpoint string) (*bidi.Client, error) {
			client, err := fake.dial(ctx, endpoint)
			if err == nil {
				fake.server(0).HandleError(browsingcontext.MethodGetTree, "invalid session id", "no such session")
			}
			return client, err
		}

		_, err := m.ResumeSession(ctx, "dead")
		assert.ErrorIs(t, err, ErrSessionUnavailable)
		assert.ErrorIs(t, err, bidi.ErrRemoteCommandFailed)
		assert.Zero(t, m.GetSessionCount())
	})
}

func TestRenameSession(t *testing.T) {
	repo := newMemRepo()
	m, _ := newTestManager(t, Options{Repository: repo})
	ctx := context.Background()

	first, err := m.CreateSession(ctx, "agent-1", "one")
	require.NoError(t, err)
	_, err = m.CreateSession(ctx, "agent-1", "two")
	require.NoError(t, err)

	assert.ErrorIs(t, m.RenameSession(ctx, first.ID, "two"), ErrSessionNameConflict)
	assert.ErrorIs(t, m.RenameSession(ctx, first.ID, ""), ErrInvalidSessionName)
	assert.ErrorIs(t, m.RenameSession(ctx, "missing", "three"), ErrSessionNotFound)

	require.NoError(t, m.RenameSession(ctx, first.ID, "three"))
	assert.Equal(t, "three", first.Name())

	id, err := repo.GetSessionByName(ctx, "agent-1", "three")
	require.NoError(t, err)
	assert.Equal(t, first.ID, id)
	_, err = repo.GetSessionByName(ctx, "agent-1", "one")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestListAgentSessions(t *testing.T) {
	repo := newMemRepo()
	m, _ := newTestManager(t, Options{Repository: repo})
	ctx := context.Background()

	live, err := m.CreateSession(ctx, "agent-1", "live")
	require.NoError(t, err)
	require.NoError(t, repo.SaveSession(ctx, &storage.SessionState{
		SessionID:   "stored-only",
		SessionName: "stored",
		AgentID:     "agent-1",
		Status:      string(SessionDisconnected),
	}))
	_, err = m.CreateSession(ctx, "agent-2", "other")
	require.NoError(t, err)

	infos, err := m.ListAgentSessions(ctx, "agent-1")
	require.NoError(t, err)
	require.Len(t, infos, 2)

	byID := map[string]Info{}
	for _, info := range infos {
		byID[info.ID] = info
	}
	assert.Equal(t, SessionActive, byID[live.ID].Status)
	assert.Equal(t, SessionDisconnected, byID["stored-only"].Status)

	_, err = m.ListAgentSessions(ctx, "")
	assert.ErrorIs(t, err, ErrAgentRequired)
}

func TestContextDestroyedEventUntracksContext(t *testing.T) {
	repo := newMemRepo()
	m, fake := newTestManager(t, Options{Repository: repo})
	ctx := context.Background()

	sess, err := m.CreateSession(ctx, "agent-1", "")
	require.NoError(t, err)
	contextID, err := m.CreateContext(ctx, sess.ID, "")
	require.NoError(t, err)
	require.True(t, sess.HasContext(contextID))

	fake.server(0).Emit(bidi.EventContextDestroyed, map[string]any{
		"context":     contextID,
		"url":         "about:blank",
		"userContext": "uc-1",
		"children":    []any{},
	})

	require.Eventually(t, func() bool { return !sess.HasContext(contextID) }, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		state, _ := repo.state(sess.ID)
		return len(state.Contexts) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSessionInfoSnapshot(t *testing.T) {
	sess := newSession("id-1", "name", "agent")
	sess.AddContext("ctx-1", "https://a/")
	sess.AddContext("ctx-2", "https://b/")
	sess.AddContext("ctx-1", "https://c/")

	info := sess.Info()
	assert.Equal(t, []storage.ContextState{
		{ContextID: "ctx-1", URL: "https://c/"},
		{ContextID: "ctx-2", URL: "https://b/"},
	}, info.Contexts)

	assert.True(t, sess.RemoveContext("ctx-1"))
	assert.False(t, sess.RemoveContext("ctx-1"))
	assert.Equal(t, []string{"ctx-2"}, sess.ContextIDs())

	state := sess.toState()
	raw, err := json.Marshal(state)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"context_id":"ctx-2"`)
}
