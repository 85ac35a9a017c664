package session

import (
	"context"
	"fmt"

	"github.com/dhruvsoni1802/browser-bidi/internal/bidi"
	"github.com/dhruvsoni1802/browser-bidi/internal/bidi/browsingcontext"
	"github.com/dhruvsoni1802/browser-bidi/internal/bidi/network"
	"github.com/dhruvsoni1802/browser-bidi/internal/bidi/script"
	bidistorage "github.com/dhruvsoni1802/browser-bidi/internal/bidi/storage"
	"github.com/dhruvsoni1802/browser-bidi/internal/storage"
)

// NavigateResult reports where a navigation ended up
type NavigateResult struct {
	ContextID  string
	URL        string
	Navigation string
}

// connected returns the session and its client, failing when the transport
// is gone.
func (m *Manager) connected(sessionID string) (*Session, *bidi.Client, error) {
	sess, err := m.GetSession(sessionID)
	if err != nil {
		return nil, nil, err
	}
	client := sess.Client()
	if client == nil || sess.Status() != SessionActive {
		return nil, nil, fmt.Errorf("%w: session %s is %s", ErrSessionUnavailable, sessionID, sess.Status())
	}
	return sess, client, nil
}

// tracked resolves a context id that must belong to the session
func (m *Manager) tracked(sessionID, contextID string) (*Session, *bidi.Client, bidi.BrowsingContextID, error) {
	sess, client, err := m.connected(sessionID)
	if err != nil {
		return nil, nil, bidi.BrowsingContextID{}, err
	}
	if !sess.HasContext(contextID) {
		return nil, nil, bidi.BrowsingContextID{}, fmt.Errorf("%w: %s", ErrContextNotFound, contextID)
	}
	id, err := bidi.NewBrowsingContextID(contextID)
	if err != nil {
		return nil, nil, bidi.BrowsingContextID{}, err
	}
	return sess, client, id, nil
}

// CreateContext opens a tab in the session's user context and, when url is
// set, loads it.
func (m *Manager) CreateContext(ctx context.Context, sessionID, url string) (string, error) {
	sess, client, err := m.connected(sessionID)
	if err != nil {
		return "", err
	}

	contexts := browsingcontext.New(client)
	id, err := contexts.Create(ctx, browsingcontext.CreateParams{
		Type:        browsingcontext.CreateTab,
		UserContext: sess.UserContext,
	})
	if err != nil {
		return "", fmt.Errorf("failed to create browsing context: %w", err)
	}

	current := "about:blank"
	if url != "" {
		result, err := contexts.Navigate(ctx, browsingcontext.NavigateParams{
			Context: id,
			URL:     url,
			Wait:    bidi.ReadinessComplete,
		})
		if err != nil {
			// Keep the context tracked so it can be closed
			sess.AddContext(id.String(), current)
			m.persistContexts(ctx, sess)
			return id.String(), fmt.Errorf("failed to navigate: %w", err)
		}
		current = result.URL
	}

	sess.AddContext(id.String(), current)
	m.persistContexts(ctx, sess)
	m.touch(ctx, sess)
	return id.String(), nil
}

// CloseContext closes a browsing context of the session
func (m *Manager) CloseContext(ctx context.Context, sessionID, contextID string) error {
	sess, client, id, err := m.tracked(sessionID, contextID)
	if err != nil {
		return err
	}

	if err := browsingcontext.New(client).Close(ctx, browsingcontext.CloseParams{Context: id}); err != nil {
		return fmt.Errorf("failed to close browsing context: %w", err)
	}

	sess.RemoveContext(contextID)
	m.persistContexts(ctx, sess)
	m.touch(ctx, sess)
	return nil
}

// Navigate loads url in a context of the session. An empty contextID opens a
// new tab first.
func (m *Manager) Navigate(ctx context.Context, sessionID, contextID, url string) (NavigateResult, error) {
	if contextID == "" {
		newID, err := m.CreateContext(ctx, sessionID, url)
		if err != nil {
			return NavigateResult{}, err
		}
		result := NavigateResult{ContextID: newID, URL: url}
		if sess, err := m.GetSession(sessionID); err == nil {
			if current, ok := sess.ContextURL(newID); ok {
				result.URL = current
			}
		}
		return result, nil
	}

	sess, client, id, err := m.tracked(sessionID, contextID)
	if err != nil {
		return NavigateResult{}, err
	}

	result, err := browsingcontext.New(client).Navigate(ctx, browsingcontext.NavigateParams{
		Context: id,
		URL:     url,
		Wait:    bidi.ReadinessComplete,
	})
	if err != nil {
		return NavigateResult{}, fmt.Errorf("failed to navigate: %w", err)
	}

	sess.AddContext(contextID, result.URL)
	m.persistContexts(ctx, sess)
	m.touch(ctx, sess)

	return NavigateResult{
		ContextID:  contextID,
		URL:        result.URL,
		Navigation: result.Navigation.String(),
	}, nil
}

// Evaluate runs an expression in a context, awaiting promises, and returns
// the result as plain Go values. A thrown exception wraps ErrScriptException.
func (m *Manager) Evaluate(ctx context.Context, sessionID, contextID, expression string) (any, error) {
	sess, client, id, err := m.tracked(sessionID, contextID)
	if err != nil {
		return nil, err
	}

	result, err := script.New(client).Evaluate(ctx, script.EvaluateParams{
		Expression:   expression,
		Target:       script.ContextTarget{Context: id},
		AwaitPromise: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to execute javascript: %w", err)
	}
	m.touch(ctx, sess)

	if result.Failed() {
		return nil, fmt.Errorf("%w: %w", ErrScriptException, result.Exception)
	}
	return script.Unwrap(result.Value), nil
}

// GetPageContent returns the serialized document of a context
func (m *Manager) GetPageContent(ctx context.Context, sessionID, contextID string) (string, error) {
	value, err := m.Evaluate(ctx, sessionID, contextID, "document.documentElement.outerHTML")
	if err != nil {
		return "", err
	}
	content, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("unexpected page content type %T", value)
	}
	return content, nil
}

// CaptureScreenshot captures a PNG of the context's viewport
func (m *Manager) CaptureScreenshot(ctx context.Context, sessionID, contextID string) ([]byte, error) {
	sess, client, id, err := m.tracked(sessionID, contextID)
	if err != nil {
		return nil, err
	}

	image, err := browsingcontext.New(client).CaptureScreenshot(ctx, browsingcontext.CaptureScreenshotParams{
		Context: id,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to capture screenshot: %w", err)
	}

	data, err := image.Bytes()
	if err != nil {
		return nil, fmt.Errorf("failed to decode screenshot: %w", err)
	}

	m.touch(ctx, sess)
	return data, nil
}

// partition scopes cookie commands to the session's user context
func partition(sess *Session) bidistorage.PartitionDescriptor {
	if sess.UserContext.IsZero() {
		return nil
	}
	return bidistorage.StorageKeyPartition{UserContext: sess.UserContext}
}

// SnapshotCookies reads every cookie of the session's user context and, when
// Redis is configured, stores the snapshot for a later restore.
func (m *Manager) SnapshotCookies(ctx context.Context, sessionID string) ([]storage.Cookie, error) {
	sess, client, err := m.connected(sessionID)
	if err != nil {
		return nil, err
	}

	result, err := bidistorage.New(client).GetCookies(ctx, bidistorage.GetCookiesParams{
		Partition: partition(sess),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get cookies: %w", err)
	}

	cookies := make([]storage.Cookie, 0, len(result.Cookies))
	for _, c := range result.Cookies {
		value, err := c.Value.Bytes()
		if err != nil {
			return nil, fmt.Errorf("cookie %s: %w", c.Name, err)
		}
		cookies = append(cookies, storage.Cookie{
			Name:     c.Name,
			Value:    string(value),
			Domain:   c.Domain,
			Path:     c.Path,
			Expiry:   c.Expiry,
			Secure:   c.Secure,
			HttpOnly: c.HTTPOnly,
			SameSite: c.SameSite,
		})
	}

	if m.repo != nil {
		if err := m.repo.SaveCookies(ctx, sessionID, cookies); err != nil {
			return nil, fmt.Errorf("failed to save cookie snapshot: %w", err)
		}
	}

	m.touch(ctx, sess)
	return cookies, nil
}

// RestoreCookies sets cookies in the session's user context. With no cookies
// given, the snapshot stored in Redis is used. It returns how many were set.
func (m *Manager) RestoreCookies(ctx context.Context, sessionID string, cookies []storage.Cookie) (int, error) {
	sess, client, err := m.connected(sessionID)
	if err != nil {
		return 0, err
	}

	if cookies == nil {
		if m.repo == nil {
			return 0, ErrNoPersistence
		}
		cookies, err = m.repo.GetCookies(ctx, sessionID)
		if err != nil {
			return 0, fmt.Errorf("failed to load cookie snapshot: %w", err)
		}
	}

	module := bidistorage.New(client)
	restored := 0
	for _, c := range cookies {
		httpOnly, secure := c.HttpOnly, c.Secure
		_, err := module.SetCookie(ctx, bidistorage.SetCookieParams{
			Cookie: bidistorage.PartialCookie{
				Name:     c.Name,
				Value:    network.StringBytes(c.Value),
				Domain:   c.Domain,
				Path:     c.Path,
				HTTPOnly: &httpOnly,
				Secure:   &secure,
				SameSite: c.SameSite,
				Expiry:   c.Expiry,
			},
			Partition: partition(sess),
		})
		if err != nil {
			return restored, fmt.Errorf("failed to set cookie %s: %w", c.Name, err)
		}
		restored++
	}

	m.touch(ctx, sess)
	return restored, nil
}
