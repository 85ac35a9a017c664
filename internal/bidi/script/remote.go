// Package script holds the tagged value model of the protocol (remote values,
// local values, references, evaluation results, realms) and the script.*
// commands and events.
package script

import "github.com/dhruvsoni1802/browser-bidi/internal/bidi"

// RemoteValue is a value serialized by the remote end. The set of
// implementations is closed; switch on the concrete type to inspect one.
type RemoteValue interface {
	// Type is the wire "type" tag.
	Type() string
	// Ref returns the handle and internal id the value carries, if any.
	Ref() ObjectRef
	remoteValue()
}

// ObjectRef identifies a remote object. Handle is set when the value is owned by a
// handle; InternalID is set when the object occurs more than once in the same
// serialized tree.
type ObjectRef struct {
	Handle     bidi.Handle
	InternalID bidi.InternalID
}

func (r ObjectRef) Ref() ObjectRef { return r }
func (ObjectRef) remoteValue()     {}

// Primitive tags.
const (
	TypeUndefined = "undefined"
	TypeNull      = "null"
	TypeString    = "string"
	TypeNumber    = "number"
	TypeBoolean   = "boolean"
	TypeBigInt    = "bigint"
)

// Composite and object tags.
const (
	TypeSymbol         = "symbol"
	TypeArray          = "array"
	TypeObject         = "object"
	TypeFunction       = "function"
	TypeRegExp         = "regexp"
	TypeDate           = "date"
	TypeMap            = "map"
	TypeSet            = "set"
	TypeWeakMap        = "weakmap"
	TypeWeakSet        = "weakset"
	TypeGenerator      = "generator"
	TypeError          = "error"
	TypeProxy          = "proxy"
	TypePromise        = "promise"
	TypeTypedArray     = "typedarray"
	TypeArrayBuffer    = "arraybuffer"
	TypeNodeList       = "nodelist"
	TypeHTMLCollection = "htmlcollection"
	TypeNode           = "node"
	TypeWindow         = "window"
)

type UndefinedValue struct{}

type NullValue struct{}

type StringValue struct{ Value string }

// NumberValue holds a number, including NaN, -0 and the infinities that the
// wire carries as strings.
type NumberValue struct{ Value float64 }

type BooleanValue struct{ Value bool }

// BigIntValue keeps the decimal digits as sent.
type BigIntValue struct{ Value string }

func (*UndefinedValue) Type() string { return TypeUndefined }
func (*NullValue) Type() string      { return TypeNull }
func (*StringValue) Type() string    { return TypeString }
func (*NumberValue) Type() string    { return TypeNumber }
func (*BooleanValue) Type() string   { return TypeBoolean }
func (*BigIntValue) Type() string    { return TypeBigInt }

func (*UndefinedValue) Ref() ObjectRef { return ObjectRef{} }
func (*NullValue) Ref() ObjectRef      { return ObjectRef{} }
func (*StringValue) Ref() ObjectRef    { return ObjectRef{} }
func (*NumberValue) Ref() ObjectRef    { return ObjectRef{} }
func (*BooleanValue) Ref() ObjectRef   { return ObjectRef{} }
func (*BigIntValue) Ref() ObjectRef    { return ObjectRef{} }

func (*UndefinedValue) remoteValue() {}
func (*NullValue) remoteValue()      {}
func (*StringValue) remoteValue()    {}
func (*NumberValue) remoteValue()    {}
func (*BooleanValue) remoteValue()   {}
func (*BigIntValue) remoteValue()    {}

// Entry is one key/value pair of an object or map. Object keys are always
// *StringValue; map keys may be any RemoteValue.
type Entry struct {
	Key   RemoteValue
	Value RemoteValue
}

// StringKey returns the key as a string when it is one.
func (e Entry) StringKey() (string, bool) {
	if s, ok := e.Key.(*StringValue); ok {
		return s.Value, true
	}
	return "", false
}

// ArrayValue also represents set, nodelist and htmlcollection values, which
// share its shape; Kind holds the tag. Value is nil when the remote end did
// not serialize the children (depth limit or repeated reference).
type ArrayValue struct {
	ObjectRef
	Kind  string
	Value []RemoteValue
}

func (v *ArrayValue) Type() string { return v.Kind }

// ObjectValue also represents map values; Kind holds the tag.
type ObjectValue struct {
	ObjectRef
	Kind  string
	Value []Entry
}

func (v *ObjectValue) Type() string { return v.Kind }

// Get returns the value stored under a string key.
func (v *ObjectValue) Get(key string) (RemoteValue, bool) {
	for _, e := range v.Value {
		if k, ok := e.StringKey(); ok && k == key {
			return e.Value, true
		}
	}
	return nil, false
}

type RegExpValue struct {
	ObjectRef
	Pattern string
	Flags   string
}

func (*RegExpValue) Type() string { return TypeRegExp }

type DateValue struct {
	ObjectRef
	Value string
}

func (*DateValue) Type() string { return TypeDate }

// NodeValue is a DOM node. Value is nil when the node's properties were not
// serialized.
type NodeValue struct {
	ObjectRef
	SharedID bidi.SharedID
	Value    *NodeProperties
}

func (*NodeValue) Type() string { return TypeNode }

type NodeProperties struct {
	NodeType       int
	ChildNodeCount int
	Attributes     map[string]string
	Children       []*NodeValue
	LocalName      string
	Mode           string
	NamespaceURI   string
	NodeValue      string
	ShadowRoot     *NodeValue
}

// WindowValue is a WindowProxy.
type WindowValue struct {
	ObjectRef
	Context bidi.BrowsingContextID
}

func (*WindowValue) Type() string { return TypeWindow }

// HandleValue covers the object kinds that are only ever serialized by
// reference: symbol, function, weakmap, weakset, generator, error, proxy,
// promise, typedarray and arraybuffer.
type HandleValue struct {
	ObjectRef
	Kind string
}

func (v *HandleValue) Type() string { return v.Kind }
