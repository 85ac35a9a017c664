package script

import (
	"encoding/json"
	"fmt"
	"maps"
	"math"
	"slices"
	"strconv"

	"github.com/dhruvsoni1802/browser-bidi/internal/bidi"
)

// LocalValue is a value sent to the remote end as a command argument.
type LocalValue interface {
	json.Marshaler
	localValue()
}

type primitive struct {
	typ   string
	value any
}

func (p primitive) localValue() {}

func (p primitive) MarshalJSON() ([]byte, error) {
	if p.value == nil {
		return json.Marshal(struct {
			Type string `json:"type"`
		}{p.typ})
	}
	return json.Marshal(struct {
		Type  string `json:"type"`
		Value any    `json:"value"`
	}{p.typ, p.value})
}

func Undefined() LocalValue      { return primitive{typ: TypeUndefined} }
func Null() LocalValue           { return primitive{typ: TypeNull} }
func String(s string) LocalValue { return primitive{typ: TypeString, value: s} }
func Bool(b bool) LocalValue     { return primitive{typ: TypeBoolean, value: b} }
func BigInt(s string) LocalValue { return primitive{typ: TypeBigInt, value: s} }
func Date(iso string) LocalValue { return primitive{typ: TypeDate, value: iso} }

// Number encodes NaN, -0 and the infinities as their special strings.
func Number(f float64) LocalValue {
	switch {
	case math.IsNaN(f):
		return primitive{typ: TypeNumber, value: "NaN"}
	case math.IsInf(f, 1):
		return primitive{typ: TypeNumber, value: "Infinity"}
	case math.IsInf(f, -1):
		return primitive{typ: TypeNumber, value: "-Infinity"}
	case f == 0 && math.Signbit(f):
		return primitive{typ: TypeNumber, value: "-0"}
	}
	return primitive{typ: TypeNumber, value: f}
}

// RegExp builds a regular expression value.
func RegExp(pattern, flags string) LocalValue {
	v := map[string]string{"pattern": pattern}
	if flags != "" {
		v["flags"] = flags
	}
	return primitive{typ: TypeRegExp, value: v}
}

type listValue struct {
	typ   string
	items []LocalValue
}

func (l listValue) localValue() {}

func (l listValue) MarshalJSON() ([]byte, error) {
	items := l.items
	if items == nil {
		items = []LocalValue{}
	}
	return json.Marshal(struct {
		Type  string       `json:"type"`
		Value []LocalValue `json:"value"`
	}{l.typ, items})
}

func Array(items ...LocalValue) LocalValue { return listValue{typ: TypeArray, items: items} }
func Set(items ...LocalValue) LocalValue   { return listValue{typ: TypeSet, items: items} }

// MapEntry is one entry of an object or map argument. Key must be a string
// or a LocalValue; object keys must be strings.
type MapEntry struct {
	Key   any
	Value LocalValue
}

// Prop is shorthand for a string-keyed entry.
func Prop(name string, value LocalValue) MapEntry {
	return MapEntry{Key: name, Value: value}
}

type mappingValue struct {
	typ     string
	entries []MapEntry
}

func (m mappingValue) localValue() {}

func (m mappingValue) MarshalJSON() ([]byte, error) {
	pairs := make([][2]any, 0, len(m.entries))
	for i, e := range m.entries {
		switch k := e.Key.(type) {
		case string:
		case LocalValue:
			if m.typ == TypeObject {
				return nil, fmt.Errorf("object entry %d: key must be a string", i)
			}
		default:
			return nil, fmt.Errorf("%s entry %d: unsupported key type %T", m.typ, i, k)
		}
		if e.Value == nil {
			return nil, fmt.Errorf("%s entry %d: value is nil", m.typ, i)
		}
		pairs = append(pairs, [2]any{e.Key, e.Value})
	}
	return json.Marshal(struct {
		Type  string   `json:"type"`
		Value [][2]any `json:"value"`
	}{m.typ, pairs})
}

func Object(entries ...MapEntry) LocalValue { return mappingValue{typ: TypeObject, entries: entries} }
func Map(entries ...MapEntry) LocalValue    { return mappingValue{typ: TypeMap, entries: entries} }

// ChannelValue asks the remote end to create a function that posts
// script.message events on Channel.
type ChannelValue struct {
	Channel              string
	SerializationOptions *SerializationOptions
	Ownership            bidi.ResultOwnership
}

func (ChannelValue) localValue() {}

func (c ChannelValue) MarshalJSON() ([]byte, error) {
	if c.Channel == "" {
		return nil, bidi.InvalidParams("", "channel", "must not be empty")
	}
	type props struct {
		Channel              string                `json:"channel"`
		SerializationOptions *SerializationOptions `json:"serializationOptions,omitempty"`
		Ownership            bidi.ResultOwnership  `json:"ownership,omitempty"`
	}
	return json.Marshal(struct {
		Type  string `json:"type"`
		Value props  `json:"value"`
	}{"channel", props{c.Channel, c.SerializationOptions, c.Ownership}})
}

// SharedReference refers to a node by its shared id.
type SharedReference struct {
	SharedID bidi.SharedID `json:"sharedId"`
	Handle   bidi.Handle   `json:"handle,omitzero"`
}

func (SharedReference) localValue() {}

func (r SharedReference) MarshalJSON() ([]byte, error) {
	if r.SharedID.IsZero() {
		return nil, bidi.InvalidParams("", "sharedId", "must not be empty")
	}
	type plain SharedReference
	return json.Marshal(plain(r))
}

// RemoteObjectReference refers to an object by its handle.
type RemoteObjectReference struct {
	Handle   bidi.Handle   `json:"handle"`
	SharedID bidi.SharedID `json:"sharedId,omitzero"`
}

func (RemoteObjectReference) localValue() {}

func (r RemoteObjectReference) MarshalJSON() ([]byte, error) {
	if r.Handle.IsZero() {
		return nil, bidi.InvalidParams("", "handle", "must not be empty")
	}
	type plain RemoteObjectReference
	return json.Marshal(plain(r))
}

// Reference builds the reference that points back at v: a SharedReference
// for nodes, a RemoteObjectReference for anything holding a handle.
func Reference(v RemoteValue) (LocalValue, error) {
	if n, ok := v.(*NodeValue); ok && !n.SharedID.IsZero() {
		return SharedReference{SharedID: n.SharedID, Handle: n.Handle}, nil
	}
	if h := v.Ref().Handle; !h.IsZero() {
		return RemoteObjectReference{Handle: h}, nil
	}
	return nil, bidi.InvalidParams("", "value", fmt.Sprintf("%s value carries neither a handle nor a shared id", v.Type()))
}

// FromGo converts plain Go values (nil, bool, numbers, strings, slices,
// string-keyed maps) into a LocalValue.
func FromGo(v any) (LocalValue, error) {
	switch x := v.(type) {
	case nil:
		return Null(), nil
	case LocalValue:
		return x, nil
	case bool:
		return Bool(x), nil
	case string:
		return String(x), nil
	case int:
		return Number(float64(x)), nil
	case int64:
		return Number(float64(x)), nil
	case float64:
		return Number(x), nil
	case json.Number:
		if i, err := strconv.ParseInt(string(x), 10, 64); err == nil && (i > 1<<53 || i < -(1<<53)) {
			return BigInt(string(x)), nil
		}
		f, err := x.Float64()
		if err != nil {
			return nil, fmt.Errorf("convert number %q: %w", string(x), err)
		}
		return Number(f), nil
	case []any:
		items := make([]LocalValue, 0, len(x))
		for i, item := range x {
			lv, err := FromGo(item)
			if err != nil {
				return nil, fmt.Errorf("item %d: %w", i, err)
			}
			items = append(items, lv)
		}
		return Array(items...), nil
	case map[string]any:
		entries := make([]MapEntry, 0, len(x))
		for _, k := range slices.Sorted(maps.Keys(x)) {
			lv, err := FromGo(x[k])
			if err != nil {
				return nil, fmt.Errorf("key %q: %w", k, err)
			}
			entries = append(entries, Prop(k, lv))
		}
		return Object(entries...), nil
	}
	return nil, bidi.InvalidParams("", "argument", fmt.Sprintf("unsupported Go type %T", v))
}
