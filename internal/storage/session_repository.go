package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const activeSessionsKey = "bidi:active:sessions"

func sessionKey(sessionID string) string { return "bidi:session:" + sessionID }

func sessionDataKey(sessionID, kind string) string {
	return fmt.Sprintf("bidi:session:%s:%s", sessionID, kind)
}

func agentSessionsKey(agentID string) string { return fmt.Sprintf("bidi:agent:%s:sessions", agentID) }

func agentNamesKey(agentID string) string { return fmt.Sprintf("bidi:agent:%s:session_names", agentID) }

// This struct handles session persistence in Redis
type SessionRepository struct {
	redis *RedisClient  // The Redis client to use for persistence
	ttl   time.Duration // Default TTL for sessions
}

// NewSessionRepository creates a new session repository
func NewSessionRepository(redisClient *RedisClient, ttl time.Duration) *SessionRepository {
	return &SessionRepository{
		redis: redisClient,
		ttl:   ttl,
	}
}

// SaveSession persists session state to Redis using a Hash plus JSON side keys
func (r *SessionRepository) SaveSession(ctx context.Context, state *SessionState) error {
	key := sessionKey(state.SessionID)

	// Build hash fields (basic metadata)
	fields := map[string]interface{}{
		"session_id":    state.SessionID,
		"session_name":  state.SessionName,
		"agent_id":      state.AgentID,
		"endpoint":      state.Endpoint,
		"websocket_url": state.WebSocketURL,
		"bidi_session":  state.BiDiSession,
		"user_context":  state.UserContext,
		"created_at":    state.CreatedAt.Format(time.RFC3339),
		"last_activity": state.LastActivity.Format(time.RFC3339),
		"status":        state.Status,
	}

	// Store hash, TTL and the active set in one transaction
	_, err := r.redis.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, fields)
		pipe.Expire(ctx, key, r.ttl)
		pipe.SAdd(ctx, activeSessionsKey, state.SessionID)
		if state.AgentID != "" {
			pipe.SAdd(ctx, agentSessionsKey(state.AgentID), state.SessionID)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}

	// Reserve the session name
	if state.AgentID != "" && state.SessionName != "" {
		if err := r.ReserveSessionName(ctx, state.AgentID, state.SessionName, state.SessionID); err != nil {
			slog.Warn("failed to reserve session name", "session_id", state.SessionID, "error", err)
		}
	}

	// Save contexts, subscriptions and cookies separately
	if err := r.SaveContexts(ctx, state.SessionID, state.Contexts); err != nil {
		slog.Warn("failed to save contexts", "session_id", state.SessionID, "error", err)
	}
	if err := r.SaveSubscriptions(ctx, state.SessionID, state.Subscriptions); err != nil {
		slog.Warn("failed to save subscriptions", "session_id", state.SessionID, "error", err)
	}
	if len(state.Cookies) > 0 {
		if err := r.SaveCookies(ctx, state.SessionID, state.Cookies); err != nil {
			slog.Warn("failed to save cookies", "session_id", state.SessionID, "error", err)
		}
	}

	slog.Debug("session saved to Redis", "session_id", state.SessionID)
	return nil
}

// GetSession retrieves session state from Redis
func (r *SessionRepository) GetSession(ctx context.Context, sessionID string) (*SessionState, error) {
	// Get all hash fields
	data, err := r.redis.client.HGetAll(ctx, sessionKey(sessionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	// Check if session exists (empty map means not found)
	if len(data) == 0 {
		return nil, fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}

	// Parse fields
	state := &SessionState{
		SessionID:    data["session_id"],
		SessionName:  data["session_name"],
		AgentID:      data["agent_id"],
		Endpoint:     data["endpoint"],
		WebSocketURL: data["websocket_url"],
		BiDiSession:  data["bidi_session"],
		UserContext:  data["user_context"],
		Status:       data["status"],
	}

	// Parse timestamps
	if createdAt, err := time.Parse(time.RFC3339, data["created_at"]); err == nil {
		state.CreatedAt = createdAt
	}
	if lastActivity, err := time.Parse(time.RFC3339, data["last_activity"]); err == nil {
		state.LastActivity = lastActivity
	}

	// Load contexts, subscriptions and cookies
	if state.Contexts, err = r.GetContexts(ctx, sessionID); err != nil {
		slog.Warn("failed to load contexts", "session_id", sessionID, "error", err)
	}
	if state.Subscriptions, err = r.GetSubscriptions(ctx, sessionID); err != nil {
		slog.Warn("failed to load subscriptions", "session_id", sessionID, "error", err)
	}
	if state.Cookies, err = r.GetCookies(ctx, sessionID); err != nil {
		slog.Warn("failed to load cookies", "session_id", sessionID, "error", err)
	}

	return state, nil
}

// ListActiveSessions returns all active session IDs
func (r *SessionRepository) ListActiveSessions(ctx context.Context) ([]string, error) {
	sessions, err := r.redis.client.SMembers(ctx, activeSessionsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list active sessions: %w", err)
	}
	return sessions, nil
}

// DeleteSession removes session from Redis
func (r *SessionRepository) DeleteSession(ctx context.Context, sessionID string) error {
	key := sessionKey(sessionID)

	// First, get session to know agent_id and session_name
	data, err := r.redis.client.HMGet(ctx, key, "agent_id", "session_name").Result()
	if err == nil {
		agentID, _ := data[0].(string)
		sessionName, _ := data[1].(string)

		// Release the session name
		if err := r.ReleaseSessionName(ctx, agentID, sessionName); err != nil {
			slog.Warn("failed to release session name", "error", err)
		}

		// Remove from agent's sessions set
		if agentID != "" {
			r.redis.client.SRem(ctx, agentSessionsKey(agentID), sessionID)
		}
	}

	// Delete main session hash and associated data
	err = r.redis.client.Del(ctx,
		key,
		sessionDataKey(sessionID, "contexts"),
		sessionDataKey(sessionID, "subscriptions"),
		sessionDataKey(sessionID, "cookies"),
	).Err()
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	// Remove from active sessions set
	r.redis.client.SRem(ctx, activeSessionsKey, sessionID)

	slog.Debug("session deleted from Redis", "session_id", sessionID)
	return nil
}
