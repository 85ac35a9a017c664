package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// UpdateLastActivity updates just the last activity timestamp
func (r *SessionRepository) UpdateLastActivity(ctx context.Context, sessionID string) error {
	key := sessionKey(sessionID)

	// Update single field
	err := r.redis.client.HSet(ctx, key, "last_activity", time.Now().Format(time.RFC3339)).Err()
	if err != nil {
		return fmt.Errorf("failed to update last activity: %w", err)
	}

	// Refresh TTL
	if err := r.redis.client.Expire(ctx, key, r.ttl).Err(); err != nil {
		slog.Warn("failed to refresh TTL", "error", err)
	}

	return nil
}

// UpdateStatus records a new session status
func (r *SessionRepository) UpdateStatus(ctx context.Context, sessionID, status string) error {
	if err := r.redis.client.HSet(ctx, sessionKey(sessionID), "status", status).Err(); err != nil {
		return fmt.Errorf("failed to update status: %w", err)
	}
	return nil
}

// saveJSON stores v as a JSON string under key with the repository TTL
func (r *SessionRepository) saveJSON(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	if err := r.redis.client.Set(ctx, key, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save %s: %w", key, err)
	}
	return nil
}

// loadJSON reads key into v. A missing key leaves v untouched.
func (r *SessionRepository) loadJSON(ctx context.Context, key string, v any) error {
	data, err := r.redis.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", key, err)
	}
	return nil
}

// SaveCookies stores a cookie snapshot as JSON string
func (r *SessionRepository) SaveCookies(ctx context.Context, sessionID string, cookies []Cookie) error {
	return r.saveJSON(ctx, sessionDataKey(sessionID, "cookies"), cookies)
}

// GetCookies retrieves the cookie snapshot
func (r *SessionRepository) GetCookies(ctx context.Context, sessionID string) ([]Cookie, error) {
	var cookies []Cookie
	err := r.loadJSON(ctx, sessionDataKey(sessionID, "cookies"), &cookies)
	return cookies, err
}

// SaveContexts stores the tracked browsing contexts
func (r *SessionRepository) SaveContexts(ctx context.Context, sessionID string, contexts []ContextState) error {
	return r.saveJSON(ctx, sessionDataKey(sessionID, "contexts"), contexts)
}

// GetContexts retrieves the tracked browsing contexts
func (r *SessionRepository) GetContexts(ctx context.Context, sessionID string) ([]ContextState, error) {
	var contexts []ContextState
	err := r.loadJSON(ctx, sessionDataKey(sessionID, "contexts"), &contexts)
	return contexts, err
}

// SaveSubscriptions stores the event names the session is subscribed to
func (r *SessionRepository) SaveSubscriptions(ctx context.Context, sessionID string, events []string) error {
	return r.saveJSON(ctx, sessionDataKey(sessionID, "subscriptions"), events)
}

// GetSubscriptions retrieves the subscribed event names
func (r *SessionRepository) GetSubscriptions(ctx context.Context, sessionID string) ([]string, error) {
	var events []string
	err := r.loadJSON(ctx, sessionDataKey(sessionID, "subscriptions"), &events)
	return events, err
}

// GetSessionByName retrieves session ID by agent + name
func (r *SessionRepository) GetSessionByName(ctx context.Context, agentID, sessionName string) (string, error) {
	sessionID, err := r.redis.client.HGet(ctx, agentNamesKey(agentID), sessionName).Result()
	if errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("session name '%s': %w", sessionName, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up session name '%s': %w", sessionName, err)
	}

	return sessionID, nil
}

// CheckSessionNameExists checks if a session name is already taken by an agent
func (r *SessionRepository) CheckSessionNameExists(ctx context.Context, agentID, sessionName string) (bool, error) {
	exists, err := r.redis.client.HExists(ctx, agentNamesKey(agentID), sessionName).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check session name: %w", err)
	}

	return exists, nil
}

// ReserveSessionName atomically reserves a session name for an agent
func (r *SessionRepository) ReserveSessionName(ctx context.Context, agentID, sessionName, sessionID string) error {
	key := agentNamesKey(agentID)

	// HSETNX only writes when the field is absent
	reserved, err := r.redis.client.HSetNX(ctx, key, sessionName, sessionID).Result()
	if err != nil {
		return fmt.Errorf("failed to reserve session name: %w", err)
	}

	if !reserved {
		owner, err := r.redis.client.HGet(ctx, key, sessionName).Result()
		if err != nil || owner != sessionID {
			return fmt.Errorf("session name '%s' for agent '%s': %w", sessionName, agentID, ErrNameTaken)
		}
	}

	// Set TTL on the hash
	if err := r.redis.client.Expire(ctx, key, r.ttl).Err(); err != nil {
		slog.Warn("failed to set TTL on session names", "error", err)
	}

	return nil
}

// ReleaseSessionName removes the name mapping when session is deleted
func (r *SessionRepository) ReleaseSessionName(ctx context.Context, agentID, sessionName string) error {
	if sessionName == "" || agentID == "" {
		return nil
	}

	return r.redis.client.HDel(ctx, agentNamesKey(agentID), sessionName).Err()
}

// RenameSession updates the session name
func (r *SessionRepository) RenameSession(ctx context.Context, sessionID, agentID, oldName, newName string) error {
	// Reserve the new name first so a conflict leaves the old one in place
	if err := r.ReserveSessionName(ctx, agentID, newName, sessionID); err != nil {
		return err
	}

	// Remove old name mapping
	if err := r.ReleaseSessionName(ctx, agentID, oldName); err != nil {
		slog.Warn("failed to release old session name", "error", err)
	}

	// Update session hash
	if err := r.redis.client.HSet(ctx, sessionKey(sessionID), "session_name", newName).Err(); err != nil {
		return fmt.Errorf("failed to update session name: %w", err)
	}

	slog.Info("session renamed",
		"session_id", sessionID,
		"old_name", oldName,
		"new_name", newName)

	return nil
}

// CountAgentSessions returns the number of active sessions for an agent
func (r *SessionRepository) CountAgentSessions(ctx context.Context, agentID string) (int, error) {
	count, err := r.redis.client.SCard(ctx, agentSessionsKey(agentID)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count agent sessions: %w", err)
	}

	return int(count), nil
}

// ListAgentSessions returns all sessions for an agent with details
func (r *SessionRepository) ListAgentSessions(ctx context.Context, agentID string) ([]*SessionState, error) {
	// Get all session IDs for this agent
	sessionIDs, err := r.redis.client.SMembers(ctx, agentSessionsKey(agentID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list agent sessions: %w", err)
	}

	// Fetch each session
	sessions := make([]*SessionState, 0, len(sessionIDs))
	for _, sessionID := range sessionIDs {
		state, err := r.GetSession(ctx, sessionID)
		if err != nil {
			slog.Warn("failed to load session",
				"session_id", sessionID,
				"error", err)
			continue
		}
		sessions = append(sessions, state)
	}

	return sessions, nil
}
