// Package storage reads and writes cookies through the storage.* commands.
package storage

import (
	"context"
	"encoding/json"

	"github.com/dhruvsoni1802/browser-bidi/internal/bidi"
	"github.com/dhruvsoni1802/browser-bidi/internal/bidi/network"
)

const (
	MethodGetCookies    = "storage.getCookies"
	MethodSetCookie     = "storage.setCookie"
	MethodDeleteCookies = "storage.deleteCookies"
)

// PartitionDescriptor selects the cookie store: a browsing context's, or the
// one identified by a storage key.
type PartitionDescriptor interface {
	json.Marshaler
	partition()
}

type ContextPartition struct {
	Context bidi.BrowsingContextID
}

type StorageKeyPartition struct {
	UserContext  bidi.UserContextID
	SourceOrigin string
}

func (ContextPartition) partition()    {}
func (StorageKeyPartition) partition() {}

func (p ContextPartition) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type    string                 `json:"type"`
		Context bidi.BrowsingContextID `json:"context"`
	}{"context", p.Context})
}

func (p StorageKeyPartition) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type         string             `json:"type"`
		UserContext  bidi.UserContextID `json:"userContext,omitzero"`
		SourceOrigin string             `json:"sourceOrigin,omitempty"`
	}{"storageKey", p.UserContext, p.SourceOrigin})
}

// PartitionKey is the partition the remote end actually used.
type PartitionKey struct {
	UserContext  bidi.UserContextID `json:"userContext,omitzero"`
	SourceOrigin string             `json:"sourceOrigin,omitempty"`
}

// CookieFilter matches cookies on every non-empty field.
type CookieFilter struct {
	Name     string              `json:"name,omitempty"`
	Value    *network.BytesValue `json:"value,omitempty"`
	Domain   string              `json:"domain,omitempty"`
	Path     string              `json:"path,omitempty"`
	Size     *int                `json:"size,omitempty"`
	HTTPOnly *bool               `json:"httpOnly,omitempty"`
	Secure   *bool               `json:"secure,omitempty"`
	SameSite string              `json:"sameSite,omitempty"`
	Expiry   *int64              `json:"expiry,omitempty"`
}

// PartialCookie is a cookie to set. Name, Value and Domain are required.
type PartialCookie struct {
	Name     string             `json:"name"`
	Value    network.BytesValue `json:"value"`
	Domain   string             `json:"domain"`
	Path     string             `json:"path,omitempty"`
	HTTPOnly *bool              `json:"httpOnly,omitempty"`
	Secure   *bool              `json:"secure,omitempty"`
	SameSite string             `json:"sameSite,omitempty"`
	Expiry   *int64             `json:"expiry,omitempty"`
}

// FromCookie converts a cookie read with GetCookies into one SetCookie accepts.
func FromCookie(c network.Cookie) PartialCookie {
	return PartialCookie{
		Name:     c.Name,
		Value:    c.Value,
		Domain:   c.Domain,
		Path:     c.Path,
		HTTPOnly: &c.HTTPOnly,
		Secure:   &c.Secure,
		SameSite: c.SameSite,
		Expiry:   c.Expiry,
	}
}

type Module struct {
	doer bidi.Doer
}

func New(doer bidi.Doer) *Module {
	return &Module{doer: doer}
}

type GetCookiesParams struct {
	Filter    *CookieFilter       `json:"filter,omitempty"`
	Partition PartitionDescriptor `json:"partition,omitempty"`
}

type GetCookiesResult struct {
	Cookies      []network.Cookie `json:"cookies"`
	PartitionKey PartitionKey     `json:"partitionKey"`
}

func validatePartition(method string, p PartitionDescriptor) error {
	if p, ok := p.(ContextPartition); ok && p.Context.IsZero() {
		return bidi.InvalidParams(method, "partition.context", "must not be empty")
	}
	return nil
}

func (m *Module) GetCookies(ctx context.Context, params GetCookiesParams) (GetCookiesResult, error) {
	if err := validatePartition(MethodGetCookies, params.Partition); err != nil {
		return GetCookiesResult{}, err
	}
	return bidi.Send[GetCookiesResult](ctx, m.doer, bidi.NewCommand(MethodGetCookies, params))
}

type SetCookieParams struct {
	Cookie    PartialCookie       `json:"cookie"`
	Partition PartitionDescriptor `json:"partition,omitempty"`
}

func (m *Module) SetCookie(ctx context.Context, params SetCookieParams) (PartitionKey, error) {
	switch {
	case params.Cookie.Name == "":
		return PartitionKey{}, bidi.InvalidParams(MethodSetCookie, "cookie.name", "must not be empty")
	case params.Cookie.Domain == "":
		return PartitionKey{}, bidi.InvalidParams(MethodSetCookie, "cookie.domain", "must not be empty")
	case params.Cookie.Value.Type == "":
		return PartitionKey{}, bidi.InvalidParams(MethodSetCookie, "cookie.value", "is required")
	}
	if err := validatePartition(MethodSetCookie, params.Partition); err != nil {
		return PartitionKey{}, err
	}
	result, err := bidi.Send[struct {
		PartitionKey PartitionKey `json:"partitionKey"`
	}](ctx, m.doer, bidi.NewCommand(MethodSetCookie, params))
	return result.PartitionKey, err
}

type DeleteCookiesParams = GetCookiesParams

// DeleteCookies removes every cookie matching the filter; no filter clears
// the partition.
func (m *Module) DeleteCookies(ctx context.Context, params DeleteCookiesParams) (PartitionKey, error) {
	if err := validatePartition(MethodDeleteCookies, params.Partition); err != nil {
		return PartitionKey{}, err
	}
	result, err := bidi.Send[struct {
		PartitionKey PartitionKey `json:"partitionKey"`
	}](ctx, m.doer, bidi.NewCommand(MethodDeleteCookies, params))
	return result.PartitionKey, err
}
