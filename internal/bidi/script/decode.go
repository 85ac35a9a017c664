package script

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"

	"github.com/dhruvsoni1802/browser-bidi/internal/bidi"
)

const familyRemoteValue = "RemoteValue"

// maxDepth bounds recursion for trees without internal ids.
const maxDepth = 512

// decoder carries the internal id table of one decode operation. Values
// bearing an internal id seen earlier in the same operation resolve to the
// instance decoded first.
type decoder struct {
	seen  map[bidi.InternalID]RemoteValue
	depth int
}

func newDecoder() *decoder {
	return &decoder{seen: make(map[bidi.InternalID]RemoteValue)}
}

// DecodeRemoteValue decodes one RemoteValue tree.
func DecodeRemoteValue(data json.RawMessage) (RemoteValue, error) {
	return newDecoder().remote(data)
}

// DecodeRemoteValues decodes a list of values sharing one internal id table,
// as in the args of a console log entry.
func DecodeRemoteValues(items []json.RawMessage) ([]RemoteValue, error) {
	return newDecoder().list(items)
}

type wireValue struct {
	Type       string          `json:"type"`
	Handle     bidi.Handle     `json:"handle"`
	InternalID bidi.InternalID `json:"internalId"`
	SharedID   bidi.SharedID   `json:"sharedId"`
	Value      json.RawMessage `json:"value"`
}

func (d *decoder) remote(data json.RawMessage) (RemoteValue, error) {
	if isNull(data) {
		return nil, bidi.Malformed(familyRemoteValue, "value", "is missing")
	}
	if d.depth > maxDepth {
		return nil, bidi.Malformed(familyRemoteValue, "value", "is nested too deeply")
	}
	d.depth++
	defer func() { d.depth-- }()

	var w wireValue
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decode %s: %w", familyRemoteValue, err)
	}
	if w.Type == "" {
		return nil, bidi.Malformed(familyRemoteValue, "type", "is missing")
	}

	if !w.InternalID.IsZero() {
		if prev, ok := d.seen[w.InternalID]; ok {
			if prev.Type() != w.Type {
				return nil, bidi.Malformed(familyRemoteValue, "internalId",
					fmt.Sprintf("%s refers to a %s, not a %s", w.InternalID, prev.Type(), w.Type))
			}
			return prev, nil
		}
	}

	ref := ObjectRef{Handle: w.Handle, InternalID: w.InternalID}

	switch w.Type {
	case TypeUndefined:
		return &UndefinedValue{}, nil
	case TypeNull:
		return &NullValue{}, nil
	case TypeString:
		var s string
		if err := requireValue(w, &s); err != nil {
			return nil, err
		}
		return &StringValue{Value: s}, nil
	case TypeNumber:
		n, err := decodeNumber(w.Value)
		if err != nil {
			return nil, err
		}
		return &NumberValue{Value: n}, nil
	case TypeBoolean:
		var b bool
		if err := requireValue(w, &b); err != nil {
			return nil, err
		}
		return &BooleanValue{Value: b}, nil
	case TypeBigInt:
		var s string
		if err := requireValue(w, &s); err != nil {
			return nil, err
		}
		return &BigIntValue{Value: s}, nil

	case TypeArray, TypeSet, TypeNodeList, TypeHTMLCollection:
		v := &ArrayValue{ObjectRef: ref, Kind: w.Type}
		d.register(v)
		if isNull(w.Value) {
			return v, nil
		}
		var items []json.RawMessage
		if err := json.Unmarshal(w.Value, &items); err != nil {
			return nil, bidi.Malformed(familyRemoteValue, w.Type+".value", "is not a list")
		}
		values, err := d.list(items)
		if err != nil {
			return nil, err
		}
		v.Value = values
		return v, nil

	case TypeObject, TypeMap:
		v := &ObjectValue{ObjectRef: ref, Kind: w.Type}
		d.register(v)
		if isNull(w.Value) {
			return v, nil
		}
		entries, err := d.mapping(w.Type, w.Value)
		if err != nil {
			return nil, err
		}
		v.Value = entries
		return v, nil

	case TypeRegExp:
		v := &RegExpValue{ObjectRef: ref}
		var rx struct {
			Pattern *string `json:"pattern"`
			Flags   string  `json:"flags"`
		}
		if err := requireValue(w, &rx); err != nil {
			return nil, err
		}
		if rx.Pattern == nil {
			return nil, bidi.Malformed(familyRemoteValue, "regexp.value.pattern", "is missing")
		}
		v.Pattern, v.Flags = *rx.Pattern, rx.Flags
		d.register(v)
		return v, nil

	case TypeDate:
		v := &DateValue{ObjectRef: ref}
		if err := requireValue(w, &v.Value); err != nil {
			return nil, err
		}
		d.register(v)
		return v, nil

	case TypeNode:
		return d.node(w, ref)

	case TypeWindow:
		v := &WindowValue{ObjectRef: ref}
		var win struct {
			Context bidi.BrowsingContextID `json:"context"`
		}
		if err := requireValue(w, &win); err != nil {
			return nil, err
		}
		if win.Context.IsZero() {
			return nil, bidi.Malformed(familyRemoteValue, "window.value.context", "is missing")
		}
		v.Context = win.Context
		d.register(v)
		return v, nil

	case TypeSymbol, TypeFunction, TypeWeakMap, TypeWeakSet, TypeGenerator,
		TypeError, TypeProxy, TypePromise, TypeTypedArray, TypeArrayBuffer:
		v := &HandleValue{ObjectRef: ref, Kind: w.Type}
		d.register(v)
		return v, nil
	}

	return nil, &bidi.UnknownVariantTagError{Family: familyRemoteValue, Tag: w.Type}
}

func (d *decoder) register(v RemoteValue) {
	if id := v.Ref().InternalID; !id.IsZero() {
		d.seen[id] = v
	}
}

func (d *decoder) list(items []json.RawMessage) ([]RemoteValue, error) {
	values := make([]RemoteValue, 0, len(items))
	for i, item := range items {
		v, err := d.remote(item)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		values = append(values, v)
	}
	return values, nil
}

// mapping decodes [[key, value], ...] where a key is a plain string or a
// RemoteValue.
func (d *decoder) mapping(kind string, data json.RawMessage) ([]Entry, error) {
	var pairs [][]json.RawMessage
	if err := json.Unmarshal(data, &pairs); err != nil {
		return nil, bidi.Malformed(familyRemoteValue, kind+".value", "is not a list of pairs")
	}
	entries := make([]Entry, 0, len(pairs))
	for i, pair := range pairs {
		if len(pair) != 2 {
			return nil, bidi.Malformed(familyRemoteValue, kind+".value", fmt.Sprintf("entry %d has %d elements", i, len(pair)))
		}
		var key RemoteValue
		if k := bytes.TrimSpace(pair[0]); len(k) > 0 && k[0] == '"' {
			var s string
			if err := json.Unmarshal(k, &s); err != nil {
				return nil, fmt.Errorf("entry %d key: %w", i, err)
			}
			key = &StringValue{Value: s}
		} else {
			var err error
			if key, err = d.remote(pair[0]); err != nil {
				return nil, fmt.Errorf("entry %d key: %w", i, err)
			}
		}
		value, err := d.remote(pair[1])
		if err != nil {
			return nil, fmt.Errorf("entry %d value: %w", i, err)
		}
		entries = append(entries, Entry{Key: key, Value: value})
	}
	return entries, nil
}

type wireNode struct {
	NodeType       *int              `json:"nodeType"`
	ChildNodeCount *int              `json:"childNodeCount"`
	Attributes     map[string]string `json:"attributes"`
	Children       []json.RawMessage `json:"children"`
	LocalName      string            `json:"localName"`
	Mode           string            `json:"mode"`
	NamespaceURI   string            `json:"namespaceURI"`
	NodeValue      string            `json:"nodeValue"`
	ShadowRoot     json.RawMessage   `json:"shadowRoot"`
}

// node decodes a node value. When properties are present they must include
// nodeType and childNodeCount.
func (d *decoder) node(w wireValue, ref ObjectRef) (RemoteValue, error) {
	v := &NodeValue{ObjectRef: ref, SharedID: w.SharedID}
	d.register(v)
	if isNull(w.Value) {
		return v, nil
	}

	var wn wireNode
	if err := json.Unmarshal(w.Value, &wn); err != nil {
		return nil, fmt.Errorf("decode node properties: %w", err)
	}
	if wn.NodeType == nil {
		return nil, bidi.Malformed(familyRemoteValue, "node.value.nodeType", "is missing")
	}
	if wn.ChildNodeCount == nil {
		return nil, bidi.Malformed(familyRemoteValue, "node.value.childNodeCount", "is missing")
	}

	props := &NodeProperties{
		NodeType:       *wn.NodeType,
		ChildNodeCount: *wn.ChildNodeCount,
		Attributes:     wn.Attributes,
		LocalName:      wn.LocalName,
		Mode:           wn.Mode,
		NamespaceURI:   wn.NamespaceURI,
		NodeValue:      wn.NodeValue,
	}
	for i, raw := range wn.Children {
		child, err := d.childNode(raw)
		if err != nil {
			return nil, fmt.Errorf("node child %d: %w", i, err)
		}
		props.Children = append(props.Children, child)
	}
	if !isNull(wn.ShadowRoot) {
		root, err := d.childNode(wn.ShadowRoot)
		if err != nil {
			return nil, fmt.Errorf("node shadow root: %w", err)
		}
		props.ShadowRoot = root
	}
	v.Value = props
	return v, nil
}

func (d *decoder) childNode(raw json.RawMessage) (*NodeValue, error) {
	v, err := d.remote(raw)
	if err != nil {
		return nil, err
	}
	n, ok := v.(*NodeValue)
	if !ok {
		return nil, bidi.Malformed(familyRemoteValue, "node.value.children", "contains a "+v.Type())
	}
	return n, nil
}

func decodeNumber(raw json.RawMessage) (float64, error) {
	if isNull(raw) {
		return 0, bidi.Malformed(familyRemoteValue, "number.value", "is missing")
	}
	raw = bytes.TrimSpace(raw)
	if raw[0] != '"' {
		var f float64
		if err := json.Unmarshal(raw, &f); err != nil {
			return 0, bidi.Malformed(familyRemoteValue, "number.value", "is not a number")
		}
		return f, nil
	}
	var special string
	_ = json.Unmarshal(raw, &special)
	switch special {
	case "NaN":
		return math.NaN(), nil
	case "-0":
		return math.Copysign(0, -1), nil
	case "Infinity":
		return math.Inf(1), nil
	case "-Infinity":
		return math.Inf(-1), nil
	}
	return 0, bidi.Malformed(familyRemoteValue, "number.value", fmt.Sprintf("unknown special value %q", special))
}

func requireValue(w wireValue, dst any) error {
	if isNull(w.Value) {
		return bidi.Malformed(familyRemoteValue, w.Type+".value", "is missing")
	}
	if err := json.Unmarshal(w.Value, dst); err != nil {
		return bidi.Malformed(familyRemoteValue, w.Type+".value", err.Error())
	}
	return nil
}

func isNull(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}
