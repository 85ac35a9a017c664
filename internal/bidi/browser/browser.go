// Package browser issues browser.* commands: user contexts and client
// windows.
package browser

import (
	"context"
	"fmt"

	"github.com/dhruvsoni1802/browser-bidi/internal/bidi"
)

const (
	MethodClose                = "browser.close"
	MethodCreateUserContext    = "browser.createUserContext"
	MethodGetUserContexts      = "browser.getUserContexts"
	MethodRemoveUserContext    = "browser.removeUserContext"
	MethodGetClientWindows     = "browser.getClientWindows"
	MethodSetClientWindowState = "browser.setClientWindowState"
)

type Module struct {
	doer bidi.Doer
}

func New(doer bidi.Doer) *Module {
	return &Module{doer: doer}
}

// Close shuts the browser down and ends every session on it.
func (m *Module) Close(ctx context.Context) error {
	return bidi.Exec(ctx, m.doer, bidi.NewCommand(MethodClose, struct{}{}))
}

type CreateUserContextParams struct {
	AcceptInsecureCerts *bool          `json:"acceptInsecureCerts,omitempty"`
	Proxy               map[string]any `json:"proxy,omitempty"`
}

type UserContextInfo struct {
	UserContext bidi.UserContextID `json:"userContext"`
}

func (m *Module) CreateUserContext(ctx context.Context, params CreateUserContextParams) (UserContextInfo, error) {
	info, err := bidi.Send[UserContextInfo](ctx, m.doer, bidi.NewCommand(MethodCreateUserContext, params))
	if err != nil {
		return UserContextInfo{}, err
	}
	if info.UserContext.IsZero() {
		return UserContextInfo{}, &bidi.DecodeError{Method: MethodCreateUserContext, Err: bidi.Malformed("UserContextInfo", "userContext", "is missing")}
	}
	return info, nil
}

func (m *Module) GetUserContexts(ctx context.Context) ([]UserContextInfo, error) {
	result, err := bidi.Send[struct {
		UserContexts []UserContextInfo `json:"userContexts"`
	}](ctx, m.doer, bidi.NewCommand(MethodGetUserContexts, struct{}{}))
	if err != nil {
		return nil, err
	}
	return result.UserContexts, nil
}

// RemoveUserContext closes every context in the user context and drops it.
// The default user context cannot be removed.
func (m *Module) RemoveUserContext(ctx context.Context, id bidi.UserContextID) error {
	if id.IsZero() {
		return bidi.InvalidParams(MethodRemoveUserContext, "userContext", "must not be empty")
	}
	if id == bidi.DefaultUserContext {
		return bidi.InvalidParams(MethodRemoveUserContext, "userContext", "cannot be the default user context")
	}
	return bidi.Exec(ctx, m.doer, bidi.NewCommand(MethodRemoveUserContext, UserContextInfo{UserContext: id}))
}

type ClientWindowState string

const (
	WindowFullscreen ClientWindowState = "fullscreen"
	WindowMaximized  ClientWindowState = "maximized"
	WindowMinimized  ClientWindowState = "minimized"
	WindowNormal     ClientWindowState = "normal"
)

type ClientWindowInfo struct {
	Active       bool                `json:"active"`
	ClientWindow bidi.ClientWindowID `json:"clientWindow"`
	Height       int                 `json:"height"`
	State        ClientWindowState   `json:"state"`
	Width        int                 `json:"width"`
	X            int                 `json:"x"`
	Y            int                 `json:"y"`
}

func (m *Module) GetClientWindows(ctx context.Context) ([]ClientWindowInfo, error) {
	result, err := bidi.Send[struct {
		ClientWindows []ClientWindowInfo `json:"clientWindows"`
	}](ctx, m.doer, bidi.NewCommand(MethodGetClientWindows, struct{}{}))
	if err != nil {
		return nil, err
	}
	return result.ClientWindows, nil
}

// SetClientWindowStateParams sets a named state, or a normal window with
// optional geometry.
type SetClientWindowStateParams struct {
	ClientWindow bidi.ClientWindowID `json:"clientWindow"`
	State        ClientWindowState   `json:"state"`
	Width        *int                `json:"width,omitempty"`
	Height       *int                `json:"height,omitempty"`
	X            *int                `json:"x,omitempty"`
	Y            *int                `json:"y,omitempty"`
}

func (p SetClientWindowStateParams) Validate() error {
	if p.ClientWindow.IsZero() {
		return bidi.InvalidParams(MethodSetClientWindowState, "clientWindow", "must not be empty")
	}
	switch p.State {
	case WindowFullscreen, WindowMaximized, WindowMinimized:
		if p.Width != nil || p.Height != nil || p.X != nil || p.Y != nil {
			return bidi.InvalidParams(MethodSetClientWindowState, "state", fmt.Sprintf("%s does not accept geometry", p.State))
		}
	case WindowNormal:
		for name, v := range map[string]*int{"width": p.Width, "height": p.Height} {
			if v != nil && *v <= 0 {
				return bidi.InvalidParams(MethodSetClientWindowState, name, "must be positive")
			}
		}
	default:
		return bidi.InvalidParams(MethodSetClientWindowState, "state", fmt.Sprintf("unsupported value %q", p.State))
	}
	return nil
}

func (m *Module) SetClientWindowState(ctx context.Context, params SetClientWindowStateParams) (ClientWindowInfo, error) {
	if err := params.Validate(); err != nil {
		return ClientWindowInfo{}, err
	}
	return bidi.Send[ClientWindowInfo](ctx, m.doer, bidi.NewCommand(MethodSetClientWindowState, params))
}
