// Package network issues network.* commands (interception, request and
// response overrides, cache behavior) and decodes network events.
package network

import (
	"context"
	"fmt"

	"github.com/dhruvsoni1802/browser-bidi/internal/bidi"
)

const (
	MethodAddIntercept     = "network.addIntercept"
	MethodRemoveIntercept  = "network.removeIntercept"
	MethodContinueRequest  = "network.continueRequest"
	MethodContinueResponse = "network.continueResponse"
	MethodContinueWithAuth = "network.continueWithAuth"
	MethodFailRequest      = "network.failRequest"
	MethodProvideResponse  = "network.provideResponse"
	MethodSetCacheBehavior = "network.setCacheBehavior"
)

type Module struct {
	doer bidi.Doer
}

func New(doer bidi.Doer) *Module {
	return &Module{doer: doer}
}

func requireRequest(method string, id bidi.RequestID) error {
	if id.IsZero() {
		return bidi.InvalidParams(method, "request", "must not be empty")
	}
	return nil
}

type AddInterceptParams struct {
	Phases      []InterceptPhase         `json:"phases"`
	Contexts    []bidi.BrowsingContextID `json:"contexts,omitempty"`
	URLPatterns []URLPattern             `json:"urlPatterns,omitempty"`
}

// AddIntercept blocks matching requests at the given phases until one of the
// continue/fail/provide commands releases them.
func (m *Module) AddIntercept(ctx context.Context, params AddInterceptParams) (bidi.InterceptID, error) {
	if len(params.Phases) == 0 {
		return bidi.InterceptID{}, bidi.InvalidParams(MethodAddIntercept, "phases", "must not be empty")
	}
	for _, p := range params.Phases {
		if err := p.validate(MethodAddIntercept); err != nil {
			return bidi.InterceptID{}, err
		}
	}
	for i, p := range params.URLPatterns {
		if p == nil {
			return bidi.InterceptID{}, bidi.InvalidParams(MethodAddIntercept, fmt.Sprintf("urlPatterns[%d]", i), "is nil")
		}
	}

	result, err := bidi.Send[struct {
		Intercept bidi.InterceptID `json:"intercept"`
	}](ctx, m.doer, bidi.NewCommand(MethodAddIntercept, params))
	if err != nil {
		return bidi.InterceptID{}, err
	}
	if result.Intercept.IsZero() {
		return bidi.InterceptID{}, &bidi.DecodeError{Method: MethodAddIntercept, Err: bidi.Malformed("AddInterceptResult", "intercept", "is missing")}
	}
	return result.Intercept, nil
}

func (m *Module) RemoveIntercept(ctx context.Context, id bidi.InterceptID) error {
	if id.IsZero() {
		return bidi.InvalidParams(MethodRemoveIntercept, "intercept", "must not be empty")
	}
	return bidi.Exec(ctx, m.doer, bidi.NewCommand(MethodRemoveIntercept, struct {
		Intercept bidi.InterceptID `json:"intercept"`
	}{id}))
}

type ContinueRequestParams struct {
	Request bidi.RequestID `json:"request"`
	Body    *BytesValue    `json:"body,omitempty"`
	Cookies []CookieHeader `json:"cookies,omitempty"`
	Headers []Header       `json:"headers,omitempty"`
	Method  string         `json:"method,omitempty"`
	URL     string         `json:"url,omitempty"`
}

func (m *Module) ContinueRequest(ctx context.Context, params ContinueRequestParams) error {
	if err := requireRequest(MethodContinueRequest, params.Request); err != nil {
		return err
	}
	return bidi.Exec(ctx, m.doer, bidi.NewCommand(MethodContinueRequest, params))
}

type ContinueResponseParams struct {
	Request      bidi.RequestID    `json:"request"`
	Cookies      []SetCookieHeader `json:"cookies,omitempty"`
	Credentials  *AuthCredentials  `json:"credentials,omitempty"`
	Headers      []Header          `json:"headers,omitempty"`
	ReasonPhrase string            `json:"reasonPhrase,omitempty"`
	StatusCode   int               `json:"statusCode,omitempty"`
}

func (m *Module) ContinueResponse(ctx context.Context, params ContinueResponseParams) error {
	if err := requireRequest(MethodContinueResponse, params.Request); err != nil {
		return err
	}
	if params.StatusCode != 0 && (params.StatusCode < 100 || params.StatusCode > 999) {
		return bidi.InvalidParams(MethodContinueResponse, "statusCode", "must be a three digit status")
	}
	return bidi.Exec(ctx, m.doer, bidi.NewCommand(MethodContinueResponse, params))
}

type AuthAction string

const (
	AuthDefault AuthAction = "default"
	AuthCancel  AuthAction = "cancel"
	AuthProvide AuthAction = "provideCredentials"
)

type ContinueWithAuthParams struct {
	Request     bidi.RequestID   `json:"request"`
	Action      AuthAction       `json:"action"`
	Credentials *AuthCredentials `json:"credentials,omitempty"`
}

// ContinueWithAuth answers an authRequired interception. Credentials are
// required exactly when Action is AuthProvide.
func (m *Module) ContinueWithAuth(ctx context.Context, params ContinueWithAuthParams) error {
	if err := requireRequest(MethodContinueWithAuth, params.Request); err != nil {
		return err
	}
	switch params.Action {
	case AuthProvide:
		if params.Credentials == nil {
			return bidi.InvalidParams(MethodContinueWithAuth, "credentials", "are required to provide credentials")
		}
	case AuthDefault, AuthCancel:
		if params.Credentials != nil {
			return bidi.InvalidParams(MethodContinueWithAuth, "credentials", fmt.Sprintf("are not accepted with action %q", params.Action))
		}
	default:
		return bidi.InvalidParams(MethodContinueWithAuth, "action", fmt.Sprintf("unsupported value %q", params.Action))
	}
	return bidi.Exec(ctx, m.doer, bidi.NewCommand(MethodContinueWithAuth, params))
}

func (m *Module) FailRequest(ctx context.Context, id bidi.RequestID) error {
	if err := requireRequest(MethodFailRequest, id); err != nil {
		return err
	}
	return bidi.Exec(ctx, m.doer, bidi.NewCommand(MethodFailRequest, struct {
		Request bidi.RequestID `json:"request"`
	}{id}))
}

type ProvideResponseParams struct {
	Request      bidi.RequestID    `json:"request"`
	Body         *BytesValue       `json:"body,omitempty"`
	Cookies      []SetCookieHeader `json:"cookies,omitempty"`
	Headers      []Header          `json:"headers,omitempty"`
	ReasonPhrase string            `json:"reasonPhrase,omitempty"`
	StatusCode   int               `json:"statusCode,omitempty"`
}

func (m *Module) ProvideResponse(ctx context.Context, params ProvideResponseParams) error {
	if err := requireRequest(MethodProvideResponse, params.Request); err != nil {
		return err
	}
	if params.StatusCode != 0 && (params.StatusCode < 100 || params.StatusCode > 999) {
		return bidi.InvalidParams(MethodProvideResponse, "statusCode", "must be a three digit status")
	}
	return bidi.Exec(ctx, m.doer, bidi.NewCommand(MethodProvideResponse, params))
}

// SetCacheBehavior applies to the given contexts, or to every context when
// none are given.
func (m *Module) SetCacheBehavior(ctx context.Context, behavior bidi.CacheBehavior, contexts ...bidi.BrowsingContextID) error {
	if err := behavior.Validate(); err != nil {
		return err
	}
	for i, c := range contexts {
		if c.IsZero() {
			return bidi.InvalidParams(MethodSetCacheBehavior, fmt.Sprintf("contexts[%d]", i), "must not be empty")
		}
	}
	return bidi.Exec(ctx, m.doer, bidi.NewCommand(MethodSetCacheBehavior, struct {
		CacheBehavior bidi.CacheBehavior       `json:"cacheBehavior"`
		Contexts      []bidi.BrowsingContextID `json:"contexts,omitempty"`
	}{behavior, contexts}))
}
