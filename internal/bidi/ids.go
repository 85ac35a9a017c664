package bidi

import (
	"encoding/json"
	"fmt"
)

// Kind marks which protocol identifier an ID carries. IDs of different kinds
// are distinct types and never convert implicitly.
type Kind interface {
	kindName() string
}

type (
	browsingContextKind struct{}
	userContextKind     struct{}
	realmKind           struct{}
	handleKind          struct{}
	sharedIDKind        struct{}
	internalIDKind      struct{}
	preloadScriptKind   struct{}
	interceptKind       struct{}
	requestKind         struct{}
	navigationKind      struct{}
	subscriptionKind    struct{}
	clientWindowKind    struct{}
	extensionKind       struct{}
)

func (browsingContextKind) kindName() string { return "browsing context id" }
func (userContextKind) kindName() string     { return "user context id" }
func (realmKind) kindName() string           { return "realm id" }
func (handleKind) kindName() string          { return "handle" }
func (sharedIDKind) kindName() string        { return "shared id" }
func (internalIDKind) kindName() string      { return "internal id" }
func (preloadScriptKind) kindName() string   { return "preload script id" }
func (interceptKind) kindName() string       { return "intercept id" }
func (requestKind) kindName() string         { return "request id" }
func (navigationKind) kindName() string      { return "navigation id" }
func (subscriptionKind) kindName() string    { return "subscription id" }
func (clientWindowKind) kindName() string    { return "client window id" }
func (extensionKind) kindName() string       { return "extension id" }

// ID is a validated, non-empty protocol identifier. The zero value means
// "absent" and is skipped by omitzero struct tags.
type ID[K Kind] struct {
	value string
}

type (
	BrowsingContextID = ID[browsingContextKind]
	UserContextID     = ID[userContextKind]
	RealmID           = ID[realmKind]
	Handle            = ID[handleKind]
	SharedID          = ID[sharedIDKind]
	InternalID        = ID[internalIDKind]
	PreloadScriptID   = ID[preloadScriptKind]
	InterceptID       = ID[interceptKind]
	RequestID         = ID[requestKind]
	NavigationID      = ID[navigationKind]
	SubscriptionID    = ID[subscriptionKind]
	ClientWindowID    = ID[clientWindowKind]
	ExtensionID       = ID[extensionKind]
)

func newID[K Kind](s string) (ID[K], error) {
	if s == "" {
		var k K
		return ID[K]{}, fmt.Errorf("%w: empty %s", ErrInvalidIdentifier, k.kindName())
	}
	return ID[K]{value: s}, nil
}

func NewBrowsingContextID(s string) (BrowsingContextID, error) {
	return newID[browsingContextKind](s)
}

func NewUserContextID(s string) (UserContextID, error) { return newID[userContextKind](s) }
func NewRealmID(s string) (RealmID, error)             { return newID[realmKind](s) }
func NewHandle(s string) (Handle, error)               { return newID[handleKind](s) }
func NewSharedID(s string) (SharedID, error)           { return newID[sharedIDKind](s) }
func NewInternalID(s string) (InternalID, error)       { return newID[internalIDKind](s) }
func NewPreloadScriptID(s string) (PreloadScriptID, error) {
	return newID[preloadScriptKind](s)
}
func NewInterceptID(s string) (InterceptID, error)       { return newID[interceptKind](s) }
func NewRequestID(s string) (RequestID, error)           { return newID[requestKind](s) }
func NewNavigationID(s string) (NavigationID, error)     { return newID[navigationKind](s) }
func NewSubscriptionID(s string) (SubscriptionID, error) { return newID[subscriptionKind](s) }
func NewClientWindowID(s string) (ClientWindowID, error) { return newID[clientWindowKind](s) }
func NewExtensionID(s string) (ExtensionID, error)       { return newID[extensionKind](s) }

// DefaultUserContext is the user context every browser starts with.
var DefaultUserContext = UserContextID{value: "default"}

func (id ID[K]) String() string { return id.value }

func (id ID[K]) IsZero() bool { return id.value == "" }

func (id ID[K]) MarshalJSON() ([]byte, error) {
	if id.value == "" {
		var k K
		return nil, fmt.Errorf("%w: empty %s", ErrInvalidIdentifier, k.kindName())
	}
	return json.Marshal(id.value)
}

// UnmarshalJSON treats null as absent and rejects empty strings.
func (id *ID[K]) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		var k K
		return fmt.Errorf("%w: %s is not a string", ErrInvalidIdentifier, k.kindName())
	}
	parsed, err := newID[K](s)
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// Must returns id or panics on err. It is meant for literals in tests and
// package-level variables.
func Must[K Kind](id ID[K], err error) ID[K] {
	if err != nil {
		panic(err)
	}
	return id
}
