// Package session issues session.* commands and drives the client's session
// state.
package session

import (
	"context"
	"errors"

	"github.com/dhruvsoni1802/browser-bidi/internal/bidi"
)

const (
	MethodStatus = "session.status"
	MethodNew    = "session.new"
	MethodEnd    = "session.end"
)

// Client is what the session module needs from a *bidi.Client.
type Client interface {
	bidi.Doer
	MarkConnected(sessionID string) error
	Events() *bidi.Dispatcher
	Close() error
}

type Module struct {
	client Client
}

func New(client Client) *Module {
	return &Module{client: client}
}

type StatusResult struct {
	Ready   bool   `json:"ready"`
	Message string `json:"message"`
}

// Status reports whether the remote end can create new sessions.
func (m *Module) Status(ctx context.Context) (StatusResult, error) {
	return bidi.Send[StatusResult](ctx, m.client, bidi.NewCommand(MethodStatus, struct{}{}))
}

// CapabilitiesRequest is the capabilities negotiation of session.new.
type CapabilitiesRequest struct {
	AlwaysMatch *Capabilities  `json:"alwaysMatch,omitempty"`
	FirstMatch  []Capabilities `json:"firstMatch,omitempty"`
}

type Capabilities struct {
	AcceptInsecureCerts     *bool          `json:"acceptInsecureCerts,omitempty"`
	BrowserName             string         `json:"browserName,omitempty"`
	BrowserVersion          string         `json:"browserVersion,omitempty"`
	PlatformName            string         `json:"platformName,omitempty"`
	Proxy                   *ProxyConfig   `json:"proxy,omitempty"`
	UnhandledPromptBehavior map[string]any `json:"unhandledPromptBehavior,omitempty"`
	WebSocketURL            *bool          `json:"webSocketUrl,omitempty"`
}

type ProxyConfig struct {
	ProxyType          string   `json:"proxyType"`
	ProxyAutoconfigURL string   `json:"proxyAutoconfigUrl,omitempty"`
	HTTPProxy          string   `json:"httpProxy,omitempty"`
	SSLProxy           string   `json:"sslProxy,omitempty"`
	SocksProxy         string   `json:"socksProxy,omitempty"`
	SocksVersion       int      `json:"socksVersion,omitempty"`
	NoProxy            []string `json:"noProxy,omitempty"`
}

type NewResult struct {
	SessionID    string `json:"sessionId"`
	Capabilities struct {
		AcceptInsecureCerts bool   `json:"acceptInsecureCerts"`
		BrowserName         string `json:"browserName"`
		BrowserVersion      string `json:"browserVersion"`
		PlatformName        string `json:"platformName"`
		SetWindowRect       bool   `json:"setWindowRect"`
		UserAgent           string `json:"userAgent"`
		WebSocketURL        string `json:"webSocketUrl,omitempty"`
	} `json:"capabilities"`
}

// NewSession creates a session and moves the client to the connected state.
func (m *Module) NewSession(ctx context.Context, capabilities CapabilitiesRequest) (NewResult, error) {
	if p := capabilities.AlwaysMatch; p != nil && p.Proxy != nil && p.Proxy.ProxyType == "" {
		return NewResult{}, bidi.InvalidParams(MethodNew, "capabilities.alwaysMatch.proxy.proxyType", "must not be empty")
	}
	result, err := bidi.Send[NewResult](ctx, m.client, bidi.NewCommand(MethodNew, struct {
		Capabilities CapabilitiesRequest `json:"capabilities"`
	}{capabilities}))
	if err != nil {
		return NewResult{}, err
	}
	if result.SessionID == "" {
		return NewResult{}, &bidi.DecodeError{Method: MethodNew, Err: bidi.Malformed("NewResult", "sessionId", "is missing")}
	}
	if err := m.client.MarkConnected(result.SessionID); err != nil {
		return NewResult{}, err
	}
	return result, nil
}

// Attach marks the client connected to a session created elsewhere, as when
// dialing the session-specific WebSocket URL returned by a classic
// WebDriver new-session call.
func (m *Module) Attach(sessionID string) error {
	if sessionID == "" {
		return bidi.InvalidParams(MethodNew, "sessionId", "must not be empty")
	}
	return m.client.MarkConnected(sessionID)
}

// Delete ends the session (session.end on the wire) and closes the client.
// The client is closed even when the command fails.
func (m *Module) Delete(ctx context.Context) error {
	err := bidi.Exec(ctx, m.client, bidi.NewCommand(MethodEnd, struct{}{}))
	// The remote end may drop the connection before answering.
	if errors.Is(err, bidi.ErrTransportClosed) {
		err = nil
	}
	if closeErr := m.client.Close(); err == nil {
		err = closeErr
	}
	return err
}

// Subscribe enables events for the whole session or the given contexts.
func (m *Module) Subscribe(ctx context.Context, params bidi.SubscribeParams) (bidi.SubscriptionID, error) {
	return m.client.Events().Subscribe(ctx, params)
}

func (m *Module) Unsubscribe(ctx context.Context, events ...string) error {
	return m.client.Events().Unsubscribe(ctx, events)
}

func (m *Module) UnsubscribeByID(ctx context.Context, ids ...bidi.SubscriptionID) error {
	return m.client.Events().UnsubscribeByID(ctx, ids...)
}
