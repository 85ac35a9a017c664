package script_test

import (
	"context"
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhruvsoni1802/browser-bidi/internal/bidi"
	"github.com/dhruvsoni1802/browser-bidi/internal/bidi/biditest"
	"github.com/dhruvsoni1802/browser-bidi/internal/bidi/script"
)

var ctx1 = bidi.Must(bidi.NewBrowsingContextID("ctx-1"))

func marshal(t *testing.T, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return string(data)
}

func TestLocalValueEncoding(t *testing.T) {
	assert.JSONEq(t, `{"type":"undefined"}`, marshal(t, script.Undefined()))
	assert.JSONEq(t, `{"type":"string","value":"a"}`, marshal(t, script.String("a")))
	assert.JSONEq(t, `{"type":"number","value":3}`, marshal(t, script.Number(3)))
	assert.JSONEq(t, `{"type":"number","value":"NaN"}`, marshal(t, script.Number(math.NaN())))
	assert.JSONEq(t, `{"type":"number","value":"-0"}`, marshal(t, script.Number(math.Copysign(0, -1))))
	assert.JSONEq(t, `{"type":"regexp","value":{"pattern":"x","flags":"i"}}`, marshal(t, script.RegExp("x", "i")))
	assert.JSONEq(t, `{"type":"array","value":[]}`, marshal(t, script.Array()))
	assert.JSONEq(t,
		`{"type":"object","value":[["a",{"type":"boolean","value":true}]]}`,
		marshal(t, script.Object(script.Prop("a", script.Bool(true)))))
	assert.JSONEq(t,
		`{"type":"map","value":[[{"type":"number","value":1},{"type":"null"}]]}`,
		marshal(t, script.Map(script.MapEntry{Key: script.Number(1), Value: script.Null()})))
	assert.JSONEq(t,
		`{"type":"channel","value":{"channel":"events"}}`,
		marshal(t, script.ChannelValue{Channel: "events"}))

	_, err := json.Marshal(script.Object(script.MapEntry{Key: script.Number(1), Value: script.Null()}))
	assert.Error(t, err)
}

func TestReferences(t *testing.T) {
	node, err := script.DecodeRemoteValue(json.RawMessage(`{"type":"node","sharedId":"n-1","handle":"h-1"}`))
	require.NoError(t, err)
	ref, err := script.Reference(node)
	require.NoError(t, err)
	assert.JSONEq(t, `{"sharedId":"n-1","handle":"h-1"}`, marshal(t, ref))

	obj, err := script.DecodeRemoteValue(json.RawMessage(`{"type":"object","handle":"h-2"}`))
	require.NoError(t, err)
	ref, err = script.Reference(obj)
	require.NoError(t, err)
	assert.JSONEq(t, `{"handle":"h-2"}`, marshal(t, ref))

	_, err = script.Reference(&script.StringValue{Value: "x"})
	assert.ErrorIs(t, err, bidi.ErrInvalidParams)

	_, err = json.Marshal(script.SharedReference{})
	assert.Error(t, err)
}

func TestFromGo(t *testing.T) {
	v, err := script.FromGo(map[string]any{"b": []any{1, "x", nil}, "a": true})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"object","value":[
		["a",{"type":"boolean","value":true}],
		["b",{"type":"array","value":[{"type":"number","value":1},{"type":"string","value":"x"},{"type":"null"}]}]
	]}`, marshal(t, v))

	_, err = script.FromGo(struct{}{})
	assert.ErrorIs(t, err, bidi.ErrInvalidParams)
}

func TestEvaluate(t *testing.T) {
	client, server := biditest.NewClient(t)
	server.HandleResult(script.MethodEvaluate, map[string]any{
		"type":   "success",
		"realm":  "r-1",
		"result": map[string]any{"type": "string", "value": "Example Domain"},
	})

	m := script.New(client)
	result, err := m.Evaluate(context.Background(), script.EvaluateParams{
		Expression:   "document.title",
		Target:       script.ContextTarget{Context: ctx1},
		AwaitPromise: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "Example Domain", script.Unwrap(result.Value))

	cmds := server.Commands()
	require.Len(t, cmds, 1)
	assert.JSONEq(t, `{"expression":"document.title","target":{"context":"ctx-1"},"awaitPromise":true}`, string(cmds[0].Params))
}

func TestEvaluateValidatesBeforeSending(t *testing.T) {
	client, server := biditest.NewClient(t)
	m := script.New(client)

	_, err := m.Evaluate(context.Background(), script.EvaluateParams{Target: script.ContextTarget{Context: ctx1}})
	assert.ErrorIs(t, err, bidi.ErrInvalidParams)

	_, err = m.Evaluate(context.Background(), script.EvaluateParams{Expression: "1"})
	assert.ErrorIs(t, err, bidi.ErrInvalidParams)

	_, err = m.Evaluate(context.Background(), script.EvaluateParams{Expression: "1", Target: script.RealmTarget{}})
	assert.ErrorIs(t, err, bidi.ErrInvalidParams)

	_, err = m.CallFunction(context.Background(), script.CallFunctionParams{
		FunctionDeclaration: "(a) => a",
		Target:              script.ContextTarget{Context: ctx1},
		Arguments:           []script.LocalValue{nil},
	})
	assert.ErrorIs(t, err, bidi.ErrInvalidParams)

	assert.ErrorIs(t, m.Disown(context.Background(), script.ContextTarget{Context: ctx1}), bidi.ErrInvalidParams)
	assert.ErrorIs(t, m.RemovePreloadScript(context.Background(), bidi.PreloadScriptID{}), bidi.ErrInvalidParams)

	assert.Empty(t, server.Commands())
}

func TestCallFunctionWithArguments(t *testing.T) {
	client, server := biditest.NewClient(t)
	server.HandleResult(script.MethodCallFunction, map[string]any{
		"type":   "success",
		"realm":  "r-1",
		"result": map[string]any{"type": "number", "value": 3},
	})

	m := script.New(client)
	result, err := m.CallFunction(context.Background(), script.CallFunctionParams{
		FunctionDeclaration: "(a, b) => a + b",
		Target:              script.RealmTarget{Realm: bidi.Must(bidi.NewRealmID("r-1"))},
		Arguments:           []script.LocalValue{script.Number(1), script.Number(2)},
	})
	require.NoError(t, err)
	assert.Equal(t, 3.0, script.Unwrap(result.Value))

	assert.JSONEq(t, `{
		"functionDeclaration":"(a, b) => a + b",
		"awaitPromise":false,
		"target":{"realm":"r-1"},
		"arguments":[{"type":"number","value":1},{"type":"number","value":2}]
	}`, string(server.Commands()[0].Params))
}

func TestPreloadScriptLifecycle(t *testing.T) {
	client, server := biditest.NewClient(t)
	server.HandleResult(script.MethodAddPreloadScript, map[string]any{"script": "ps-1"})
	server.HandleResult(script.MethodRemovePreloadScript, map[string]any{})

	m := script.New(client)
	id, err := m.AddPreloadScript(context.Background(), script.AddPreloadScriptParams{
		FunctionDeclaration: "(send) => send('ready')",
		Arguments:           []script.ChannelValue{{Channel: "boot"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "ps-1", id.String())
	require.NoError(t, m.RemovePreloadScript(context.Background(), id))

	cmds := server.Commands()
	require.Len(t, cmds, 2)
	assert.JSONEq(t, `{"script":"ps-1"}`, string(cmds[1].Params))
}

func TestGetRealms(t *testing.T) {
	client, server := biditest.NewClient(t)
	server.HandleResult(script.MethodGetRealms, map[string]any{"realms": []any{
		map[string]any{"realm": "r-1", "origin": "https://example.com", "type": "window", "context": "ctx-1"},
		map[string]any{"realm": "r-2", "origin": "https://example.com", "type": "service-worker"},
	}})

	realms, err := script.New(client).GetRealms(context.Background(), script.GetRealmsParams{Context: ctx1})
	require.NoError(t, err)
	require.Len(t, realms, 2)
	assert.Equal(t, bidi.RealmServiceWorker, realms[1].Type)
	assert.JSONEq(t, `{"context":"ctx-1"}`, string(server.Commands()[0].Params))
}

func TestRemoteFailureSurfaces(t *testing.T) {
	client, server := biditest.NewClient(t)
	server.HandleError(script.MethodDisown, "no such handle", "handle h-9 is unknown")

	err := script.New(client).Disown(context.Background(),
		script.RealmTarget{Realm: bidi.Must(bidi.NewRealmID("r-1"))},
		bidi.Must(bidi.NewHandle("h-9")))
	var remote *bidi.RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, "no such handle", remote.Code)
}

func TestMessageEvents(t *testing.T) {
	client, server := biditest.NewClient(t)

	got := make(chan script.Message, 1)
	script.OnMessage(client.Events(), "boot", func(m script.Message) { got <- m })

	server.Emit(bidi.EventScriptMessage, map[string]any{
		"channel": "other",
		"data":    map[string]any{"type": "string", "value": "ignored"},
		"source":  map[string]any{"realm": "r-1"},
	})
	server.Emit(bidi.EventScriptMessage, map[string]any{
		"channel": "boot",
		"data":    map[string]any{"type": "string", "value": "ready"},
		"source":  map[string]any{"realm": "r-1", "context": "ctx-1"},
	})

	select {
	case m := <-got:
		assert.Equal(t, "ready", script.Unwrap(m.Data))
		assert.Equal(t, "ctx-1", m.Source.Context.String())
	case <-time.After(2 * time.Second):
		t.Fatal("message not delivered")
	}
}

func TestRealmCreatedEvent(t *testing.T) {
	client, server := biditest.NewClient(t)

	got := make(chan script.RealmInfo, 1)
	script.OnRealmCreated(client.Events(), func(info script.RealmInfo) { got <- info })
	server.Emit(bidi.EventRealmCreated, map[string]any{"realm": "r-5", "origin": "null", "type": "sharedWorkerRealmExotic"})
	server.Emit(bidi.EventRealmCreated, map[string]any{"realm": "r-6", "origin": "null", "type": "worker"})

	select {
	case info := <-got:
		assert.Equal(t, "r-6", info.Realm.String())
	case <-time.After(2 * time.Second):
		t.Fatal("realm event not delivered")
	}
}
