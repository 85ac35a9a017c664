package session

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/dhruvsoni1802/browser-bidi/internal/bidi"
	"github.com/dhruvsoni1802/browser-bidi/internal/bidi/biditest"
	"github.com/dhruvsoni1802/browser-bidi/internal/bidi/browser"
	"github.com/dhruvsoni1802/browser-bidi/internal/bidi/browsingcontext"
	"github.com/dhruvsoni1802/browser-bidi/internal/bidi/script"
	bidisession "github.com/dhruvsoni1802/browser-bidi/internal/bidi/session"
	bidistorage "github.com/dhruvsoni1802/browser-bidi/internal/bidi/storage"
	"github.com/dhruvsoni1802/browser-bidi/internal/storage"
)

// fakeBrowser hands out biditest clients that answer like a browser with one
// BiDi session and one user context.
type fakeBrowser struct {
	t        *testing.T
	mu       sync.Mutex
	dialed   []string
	servers  []*biditest.Server
	live     []string // contexts reported by getTree
	contexts atomic.Int64
	dialErr  error
}

func newFakeBrowser(t *testing.T) *fakeBrowser {
	return &fakeBrowser{t: t}
}

func (f *fakeBrowser) dial(_ context.Context, endpoint string) (*bidi.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.dialErr != nil {
		return nil, f.dialErr
	}
	client, server := biditest.NewClient(f.t)
	f.script(server)
	f.dialed = append(f.dialed, endpoint)
	f.servers = append(f.servers, server)
	return client, nil
}

func (f *fakeBrowser) server(i int) *biditest.Server {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.servers[i]
}

func (f *fakeBrowser) dials() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.dialed)
}

func (f *fakeBrowser) setLive(ids ...string) {
	f.mu.Lock()
	f.live = ids
	f.mu.Unlock()
}

func (f *fakeBrowser) tree() []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	contexts := make([]map[string]any, 0, len(f.live))
	for _, id := range f.live {
		contexts = append(contexts, map[string]any{
			"context":  id,
			"url":      "https://example.com/" + id,
			"children": []any{},
		})
	}
	return contexts
}

func (f *fakeBrowser) script(server *biditest.Server) {
	server.HandleResult(bidisession.MethodNew, map[string]any{"sessionId": "bidi-1", "capabilities": map[string]any{}})
	server.HandleResult(bidisession.MethodEnd, nil)
	server.HandleResult(bidi.MethodSessionSubscribe, map[string]any{"subscription": "sub-1"})
	server.HandleResult(browser.MethodCreateUserContext, map[string]any{"userContext": "uc-1"})
	server.HandleResult(browser.MethodRemoveUserContext, nil)
	server.HandleResult(browsingcontext.MethodClose, nil)
	server.Handle(browsingcontext.MethodCreate, func(json.RawMessage) (any, error) {
		return map[string]any{"context": fmt.Sprintf("ctx-%d", f.contexts.Add(1))}, nil
	})
	server.Handle(browsingcontext.MethodNavigate, func(params json.RawMessage) (any, error) {
		var p struct {
			URL string `json:"url"`
		}
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
		return map[string]any{"navigation": "nav-1", "url": p.URL}, nil
	})
	server.Handle(browsingcontext.MethodGetTree, func(json.RawMessage) (any, error) {
		return map[string]any{"contexts": f.tree()}, nil
	})
	server.HandleResult(browsingcontext.MethodCaptureScreenshot, map[string]any{
		"data": base64.StdEncoding.EncodeToString([]byte("png-bytes")),
	})
	server.HandleResult(script.MethodEvaluate, map[string]any{
		"type":   "success",
		"realm":  "realm-1",
		"result": map[string]any{"type": "string", "value": "hello"},
	})
	server.HandleResult(bidistorage.MethodGetCookies, map[string]any{
		"cookies": []any{map[string]any{
			"name":     "sid",
			"value":    map[string]any{"type": "string", "value": "42"},
			"domain":   "example.com",
			"path":     "/",
			"size":     5,
			"httpOnly": true,
			"secure":   true,
			"sameSite": "lax",
		}},
		"partitionKey": map[string]any{"userContext": "uc-1"},
	})
	server.HandleResult(bidistorage.MethodSetCookie, map[string]any{"partitionKey": map[string]any{}})
}

// methods lists the commands a server received, in order
func methods(server *biditest.Server) []string {
	var names []string
	for _, cmd := range server.Commands() {
		names = append(names, cmd.Method)
	}
	return names
}

// countingBalancer tracks sessions per endpoint
type countingBalancer struct {
	mu       sync.Mutex
	endpoint string
	counts   map[string]int
	err      error
}

func newCountingBalancer(endpoint string) *countingBalancer {
	return &countingBalancer{endpoint: endpoint, counts: make(map[string]int)}
}

func (b *countingBalancer) Acquire() (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return "", b.err
	}
	b.counts[b.endpoint]++
	return b.endpoint, nil
}

func (b *countingBalancer) Retain(endpoint string) {
	b.mu.Lock()
	b.counts[endpoint]++
	b.mu.Unlock()
}

func (b *countingBalancer) Release(endpoint string) {
	b.mu.Lock()
	b.counts[endpoint]--
	b.mu.Unlock()
}

func (b *countingBalancer) count(endpoint string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.counts[endpoint]
}

// memRepo is an in-memory Repository
type memRepo struct {
	mu       sync.Mutex
	sessions map[string]storage.SessionState
	names    map[string]map[string]string // agent -> name -> id
	cookies  map[string][]storage.Cookie
}

func newMemRepo() *memRepo {
	return &memRepo{
		sessions: make(map[string]storage.SessionState),
		names:    make(map[string]map[string]string),
		cookies:  make(map[string][]storage.Cookie),
	}
}

func (r *memRepo) SaveSession(_ context.Context, state *storage.SessionState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[state.SessionID] = *state
	if r.names[state.AgentID] == nil {
		r.names[state.AgentID] = make(map[string]string)
	}
	r.names[state.AgentID][state.SessionName] = state.SessionID
	if len(state.Cookies) > 0 {
		r.cookies[state.SessionID] = state.Cookies
	}
	return nil
}

func (r *memRepo) GetSession(_ context.Context, sessionID string) (*storage.SessionState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	state, ok := r.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", sessionID, storage.ErrNotFound)
	}
	state.Cookies = r.cookies[sessionID]
	return &state, nil
}

func (r *memRepo) DeleteSession(_ context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if state, ok := r.sessions[sessionID]; ok {
		delete(r.names[state.AgentID], state.SessionName)
	}
	delete(r.sessions, sessionID)
	delete(r.cookies, sessionID)
	return nil
}

func (r *memRepo) UpdateLastActivity(context.Context, string) error { return nil }

func (r *memRepo) UpdateStatus(_ context.Context, sessionID, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	state := r.sessions[sessionID]
	state.Status = status
	r.sessions[sessionID] = state
	return nil
}

func (r *memRepo) SaveContexts(_ context.Context, sessionID string, contexts []storage.ContextState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	state := r.sessions[sessionID]
	state.Contexts = contexts
	r.sessions[sessionID] = state
	return nil
}

func (r *memRepo) SaveCookies(_ context.Context, sessionID string, cookies []storage.Cookie) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cookies[sessionID] = cookies
	return nil
}

func (r *memRepo) GetCookies(_ context.Context, sessionID string) ([]storage.Cookie, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cookies[sessionID], nil
}

func (r *memRepo) GetSessionByName(_ context.Context, agentID, sessionName string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.names[agentID][sessionName]
	if !ok {
		return "", fmt.Errorf("session name '%s': %w", sessionName, storage.ErrNotFound)
	}
	return id, nil
}

func (r *memRepo) CheckSessionNameExists(_ context.Context, agentID, sessionName string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.names[agentID][sessionName]
	return ok, nil
}

func (r *memRepo) RenameSession(_ context.Context, sessionID, agentID, oldName, newName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if owner, ok := r.names[agentID][newName]; ok && owner != sessionID {
		return storage.ErrNameTaken
	}
	delete(r.names[agentID], oldName)
	r.names[agentID][newName] = sessionID
	state := r.sessions[sessionID]
	state.SessionName = newName
	r.sessions[sessionID] = state
	return nil
}

func (r *memRepo) CountAgentSessions(_ context.Context, agentID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.names[agentID]), nil
}

func (r *memRepo) ListAgentSessions(_ context.Context, agentID string) ([]*storage.SessionState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var states []*storage.SessionState
	for _, id := range slices.Sorted(maps.Values(r.names[agentID])) {
		state := r.sessions[id]
		states = append(states, &state)
	}
	return states, nil
}

func (r *memRepo) state(sessionID string) (storage.SessionState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	state, ok := r.sessions[sessionID]
	return state, ok
}
