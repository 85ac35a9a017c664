package script

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhruvsoni1802/browser-bidi/internal/bidi"
)

func decode(t *testing.T, data string) RemoteValue {
	t.Helper()
	v, err := DecodeRemoteValue(json.RawMessage(data))
	require.NoError(t, err)
	return v
}

func TestDecodePrimitives(t *testing.T) {
	assert.IsType(t, &UndefinedValue{}, decode(t, `{"type":"undefined"}`))
	assert.IsType(t, &NullValue{}, decode(t, `{"type":"null"}`))
	assert.Equal(t, &StringValue{Value: "hi"}, decode(t, `{"type":"string","value":"hi"}`))
	assert.Equal(t, &BooleanValue{Value: true}, decode(t, `{"type":"boolean","value":true}`))
	assert.Equal(t, &BigIntValue{Value: "9007199254740993"}, decode(t, `{"type":"bigint","value":"9007199254740993"}`))
	assert.Equal(t, &NumberValue{Value: 1.5}, decode(t, `{"type":"number","value":1.5}`))

	assert.True(t, math.IsNaN(decode(t, `{"type":"number","value":"NaN"}`).(*NumberValue).Value))
	assert.True(t, math.IsInf(decode(t, `{"type":"number","value":"-Infinity"}`).(*NumberValue).Value, -1))
	negZero := decode(t, `{"type":"number","value":"-0"}`).(*NumberValue).Value
	assert.True(t, negZero == 0 && math.Signbit(negZero))
}

func TestDecodeComposite(t *testing.T) {
	v := decode(t, `{
		"type":"object",
		"handle":"h-1",
		"value":[
			["name",{"type":"string","value":"bidi"}],
			["tags",{"type":"array","value":[{"type":"number","value":1},{"type":"null"}]}],
			[{"type":"number","value":2},{"type":"boolean","value":false}]
		]
	}`)

	obj, ok := v.(*ObjectValue)
	require.True(t, ok)
	assert.Equal(t, TypeObject, obj.Type())
	assert.Equal(t, "h-1", obj.Ref().Handle.String())
	require.Len(t, obj.Value, 3)

	name, ok := obj.Get("name")
	require.True(t, ok)
	assert.Equal(t, &StringValue{Value: "bidi"}, name)

	tags, ok := obj.Get("tags")
	require.True(t, ok)
	arr := tags.(*ArrayValue)
	assert.Equal(t, TypeArray, arr.Type())
	require.Len(t, arr.Value, 2)
	assert.IsType(t, &NullValue{}, arr.Value[1])

	_, isString := obj.Value[2].StringKey()
	assert.False(t, isString)
	assert.Equal(t, &NumberValue{Value: 2}, obj.Value[2].Key)
}

func TestDecodeMapSetRegExpDateWindow(t *testing.T) {
	m := decode(t, `{"type":"map","value":[[{"type":"string","value":"k"},{"type":"date","value":"2024-01-01T00:00:00.000Z"}]]}`).(*ObjectValue)
	assert.Equal(t, TypeMap, m.Type())
	assert.Equal(t, &DateValue{Value: "2024-01-01T00:00:00.000Z"}, m.Value[0].Value)

	s := decode(t, `{"type":"set","value":[{"type":"regexp","value":{"pattern":"a+","flags":"g"}}]}`).(*ArrayValue)
	assert.Equal(t, TypeSet, s.Type())
	assert.Equal(t, &RegExpValue{Pattern: "a+", Flags: "g"}, s.Value[0])

	w := decode(t, `{"type":"window","value":{"context":"ctx-1"}}`).(*WindowValue)
	assert.Equal(t, "ctx-1", w.Context.String())

	p := decode(t, `{"type":"promise","handle":"p-1"}`).(*HandleValue)
	assert.Equal(t, TypePromise, p.Type())
	assert.Equal(t, "p-1", p.Handle.String())
}

func TestDecodeNode(t *testing.T) {
	v := decode(t, `{
		"type":"node",
		"sharedId":"node-1",
		"value":{
			"nodeType":1,
			"childNodeCount":1,
			"localName":"div",
			"namespaceURI":"http://www.w3.org/1999/xhtml",
			"attributes":{"id":"main"},
			"children":[{"type":"node","sharedId":"node-2","value":{"nodeType":3,"childNodeCount":0,"nodeValue":"hello"}}],
			"shadowRoot":null
		}
	}`)
	node := v.(*NodeValue)
	assert.Equal(t, "node-1", node.SharedID.String())
	require.NotNil(t, node.Value)
	assert.Equal(t, 1, node.Value.NodeType)
	assert.Equal(t, "div", node.Value.LocalName)
	assert.Equal(t, map[string]string{"id": "main"}, node.Value.Attributes)
	require.Len(t, node.Value.Children, 1)
	assert.Equal(t, "hello", node.Value.Children[0].Value.NodeValue)
	assert.Nil(t, node.Value.ShadowRoot)

	bare := decode(t, `{"type":"node","sharedId":"node-3"}`).(*NodeValue)
	assert.Nil(t, bare.Value)
}

func TestDecodeNodeRequiresCounts(t *testing.T) {
	_, err := DecodeRemoteValue(json.RawMessage(`{"type":"node","value":{"childNodeCount":0}}`))
	require.ErrorIs(t, err, bidi.ErrMalformedResult)
	assert.Contains(t, err.Error(), "nodeType")

	_, err = DecodeRemoteValue(json.RawMessage(`{"type":"node","value":{"nodeType":1}}`))
	require.ErrorIs(t, err, bidi.ErrMalformedResult)
	assert.Contains(t, err.Error(), "childNodeCount")

	_, err = DecodeRemoteValue(json.RawMessage(`{"type":"node","value":{"nodeType":1,"childNodeCount":1,"children":[{"type":"string","value":"x"}]}}`))
	assert.ErrorIs(t, err, bidi.ErrMalformedResult)
}

func TestDecodeUnknownTag(t *testing.T) {
	_, err := DecodeRemoteValue(json.RawMessage(`{"type":"sharedWorkerRealmExotic","value":{}}`))
	require.ErrorIs(t, err, bidi.ErrUnknownVariantTag)
	var tagErr *bidi.UnknownVariantTagError
	require.ErrorAs(t, err, &tagErr)
	assert.Equal(t, "RemoteValue", tagErr.Family)
	assert.Equal(t, "sharedWorkerRealmExotic", tagErr.Tag)

	// Nested unknown tags fail the whole decode.
	_, err = DecodeRemoteValue(json.RawMessage(`{"type":"array","value":[{"type":"string","value":"ok"},{"type":"sharedWorkerRealmExotic"}]}`))
	assert.ErrorIs(t, err, bidi.ErrUnknownVariantTag)
}

func TestDecodeMissingFields(t *testing.T) {
	for _, data := range []string{
		`{"value":"no type"}`,
		`{"type":"string"}`,
		`{"type":"number","value":"sometimes"}`,
		`{"type":"regexp","value":{"flags":"g"}}`,
		`{"type":"window","value":{}}`,
		`{"type":"object","value":[["only-key"]]}`,
	} {
		_, err := DecodeRemoteValue(json.RawMessage(data))
		assert.ErrorIs(t, err, bidi.ErrMalformedResult, data)
	}
}

func TestInternalIDResolvesToSameInstance(t *testing.T) {
	// obj = {self: obj, list: [obj]}
	data := `{
		"type":"object",
		"internalId":"1",
		"value":[
			["self",{"type":"object","internalId":"1"}],
			["list",{"type":"array","value":[{"type":"object","internalId":"1"}]}]
		]
	}`
	v := decode(t, data)
	obj := v.(*ObjectValue)

	self, ok := obj.Get("self")
	require.True(t, ok)
	assert.Same(t, obj, self)

	list, ok := obj.Get("list")
	require.True(t, ok)
	assert.Same(t, obj, list.(*ArrayValue).Value[0])

	assert.Equal(t, map[string]any{"self": "[circular]", "list": []any{"[circular]"}}, Unwrap(v))
}

func TestInternalIDTableIsPerDecode(t *testing.T) {
	data := `{"type":"array","internalId":"7","value":[{"type":"string","value":"x"}]}`
	first := decode(t, data)
	second := decode(t, data)
	assert.NotSame(t, first, second)
	assert.Equal(t, first, second)
}

func TestInternalIDTypeMismatch(t *testing.T) {
	_, err := DecodeRemoteValue(json.RawMessage(`{"type":"array","value":[
		{"type":"object","internalId":"2","value":[]},
		{"type":"map","internalId":"2"}
	]}`))
	assert.ErrorIs(t, err, bidi.ErrMalformedResult)
}

func TestDecodeEvaluateResult(t *testing.T) {
	ok, err := DecodeEvaluateResult(json.RawMessage(`{"type":"success","realm":"r-1","result":{"type":"number","value":42}}`))
	require.NoError(t, err)
	assert.False(t, ok.Failed())
	assert.Equal(t, "r-1", ok.Realm.String())
	assert.Equal(t, &NumberValue{Value: 42}, ok.Value)

	thrown, err := DecodeEvaluateResult(json.RawMessage(`{
		"type":"exception",
		"realm":"r-1",
		"exceptionDetails":{
			"columnNumber":4,"lineNumber":0,"text":"ReferenceError: x is not defined",
			"exception":{"type":"error","handle":"e-1"},
			"stackTrace":{"callFrames":[{"columnNumber":4,"functionName":"","lineNumber":0,"url":""}]}
		}
	}`))
	require.NoError(t, err)
	require.True(t, thrown.Failed())
	assert.Nil(t, thrown.Value)
	assert.Equal(t, TypeError, thrown.Exception.Exception.Type())
	assert.Len(t, thrown.Exception.StackTrace.CallFrames, 1)
	assert.Contains(t, thrown.Exception.Error(), "ReferenceError")

	_, err = DecodeEvaluateResult(json.RawMessage(`{"type":"pending","realm":"r-1"}`))
	assert.ErrorIs(t, err, bidi.ErrUnknownVariantTag)

	_, err = DecodeEvaluateResult(json.RawMessage(`{"type":"exception","realm":"r-1"}`))
	assert.ErrorIs(t, err, bidi.ErrMalformedResult)
}

func TestDecodeRealmInfo(t *testing.T) {
	info, err := DecodeRealmInfo(json.RawMessage(`{"realm":"r-1","origin":"https://example.com","type":"window","context":"ctx-1","sandbox":"iso"}`))
	require.NoError(t, err)
	assert.Equal(t, bidi.RealmWindow, info.Type)
	assert.Equal(t, "ctx-1", info.Context.String())
	assert.Equal(t, "iso", info.Sandbox)

	worker, err := DecodeRealmInfo(json.RawMessage(`{"realm":"r-2","origin":"null","type":"dedicated-worker","owners":["r-1"]}`))
	require.NoError(t, err)
	require.Len(t, worker.Owners, 1)

	_, err = DecodeRealmInfo(json.RawMessage(`{"realm":"r-3","origin":"","type":"sharedWorkerRealmExotic"}`))
	assert.ErrorIs(t, err, bidi.ErrUnknownVariantTag)

	_, err = DecodeRealmInfo(json.RawMessage(`{"realm":"r-4","origin":"","type":"window"}`))
	assert.ErrorIs(t, err, bidi.ErrMalformedResult)
}
