package storage_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhruvsoni1802/browser-bidi/internal/bidi"
	"github.com/dhruvsoni1802/browser-bidi/internal/bidi/biditest"
	"github.com/dhruvsoni1802/browser-bidi/internal/bidi/network"
	"github.com/dhruvsoni1802/browser-bidi/internal/bidi/storage"
)

func TestGetCookies(t *testing.T) {
	client, server := biditest.NewClient(t)
	server.HandleResult(storage.MethodGetCookies, map[string]any{
		"cookies": []any{map[string]any{
			"name": "sid", "value": map[string]any{"type": "string", "value": "abc"},
			"domain": "example.com", "path": "/", "size": 6, "httpOnly": true,
			"secure": true, "sameSite": "lax",
		}},
		"partitionKey": map[string]any{"userContext": "default"},
	})

	result, err := storage.New(client).GetCookies(context.Background(), storage.GetCookiesParams{
		Filter:    &storage.CookieFilter{Domain: "example.com"},
		Partition: storage.ContextPartition{Context: bidi.Must(bidi.NewBrowsingContextID("ctx-1"))},
	})
	require.NoError(t, err)
	require.Len(t, result.Cookies, 1)
	assert.Equal(t, "sid", result.Cookies[0].Name)
	assert.Equal(t, bidi.DefaultUserContext, result.PartitionKey.UserContext)
	assert.JSONEq(t,
		`{"filter":{"domain":"example.com"},"partition":{"type":"context","context":"ctx-1"}}`,
		string(server.Commands()[0].Params))
}

func TestSetCookieRoundTripFromCookie(t *testing.T) {
	client, server := biditest.NewClient(t)
	server.HandleResult(storage.MethodSetCookie, map[string]any{"partitionKey": map[string]any{"sourceOrigin": "https://example.com"}})

	expiry := int64(1700000000)
	cookie := storage.FromCookie(network.Cookie{
		Name: "sid", Value: network.StringBytes("abc"), Domain: "example.com",
		Path: "/", HTTPOnly: true, SameSite: "strict", Expiry: &expiry,
	})
	key, err := storage.New(client).SetCookie(context.Background(), storage.SetCookieParams{
		Cookie:    cookie,
		Partition: storage.StorageKeyPartition{SourceOrigin: "https://example.com"},
	})
	require.NoError(t, err)
	assert.Equal(t, "https://example.com", key.SourceOrigin)
	assert.JSONEq(t, `{
		"cookie":{
			"name":"sid","value":{"type":"string","value":"abc"},"domain":"example.com",
			"path":"/","httpOnly":true,"secure":false,"sameSite":"strict","expiry":1700000000
		},
		"partition":{"type":"storageKey","sourceOrigin":"https://example.com"}
	}`, string(server.Commands()[0].Params))
}

func TestDeleteCookiesWithoutFilter(t *testing.T) {
	client, server := biditest.NewClient(t)
	server.HandleResult(storage.MethodDeleteCookies, map[string]any{"partitionKey": map[string]any{}})

	_, err := storage.New(client).DeleteCookies(context.Background(), storage.DeleteCookiesParams{})
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(server.Commands()[0].Params))
}

func TestValidationHappensBeforeSending(t *testing.T) {
	client, server := biditest.NewClient(t)
	m := storage.New(client)
	bg := context.Background()

	_, err := m.SetCookie(bg, storage.SetCookieParams{Cookie: storage.PartialCookie{Domain: "example.com", Value: network.StringBytes("x")}})
	assert.ErrorIs(t, err, bidi.ErrInvalidParams)
	_, err = m.SetCookie(bg, storage.SetCookieParams{Cookie: storage.PartialCookie{Name: "a", Value: network.StringBytes("x")}})
	assert.ErrorIs(t, err, bidi.ErrInvalidParams)
	_, err = m.SetCookie(bg, storage.SetCookieParams{Cookie: storage.PartialCookie{Name: "a", Domain: "example.com"}})
	assert.ErrorIs(t, err, bidi.ErrInvalidParams)
	_, err = m.GetCookies(bg, storage.GetCookiesParams{Partition: storage.ContextPartition{}})
	assert.ErrorIs(t, err, bidi.ErrInvalidParams)

	assert.Empty(t, server.Commands())
}

func TestRemoteFailure(t *testing.T) {
	client, server := biditest.NewClient(t)
	server.HandleError(storage.MethodGetCookies, "no such frame", "ctx-9 is gone")

	_, err := storage.New(client).GetCookies(context.Background(), storage.GetCookiesParams{
		Partition: storage.ContextPartition{Context: bidi.Must(bidi.NewBrowsingContextID("ctx-9"))},
	})
	require.ErrorIs(t, err, bidi.ErrRemoteCommandFailed)
}
