package script

import (
	"fmt"
	"math"
)

// Unwrap converts a RemoteValue into plain Go values suitable for JSON
// encoding: nil, bool, float64, string, []any and map[string]any. Values
// with no plain equivalent (nodes, windows, handles) become descriptive
// maps. A value reached again through a cycle becomes the string
// "[circular]".
func Unwrap(v RemoteValue) any {
	return unwrap(v, make(map[RemoteValue]bool))
}

func unwrap(v RemoteValue, active map[RemoteValue]bool) any {
	switch x := v.(type) {
	case nil, *UndefinedValue, *NullValue:
		return nil
	case *StringValue:
		return x.Value
	case *BooleanValue:
		return x.Value
	case *BigIntValue:
		return x.Value
	case *NumberValue:
		if math.IsNaN(x.Value) || math.IsInf(x.Value, 0) {
			return fmt.Sprint(x.Value)
		}
		return x.Value
	case *DateValue:
		return x.Value
	case *RegExpValue:
		return "/" + x.Pattern + "/" + x.Flags
	}

	if active[v] {
		return "[circular]"
	}
	active[v] = true
	defer delete(active, v)

	switch x := v.(type) {
	case *ArrayValue:
		out := make([]any, 0, len(x.Value))
		for _, item := range x.Value {
			out = append(out, unwrap(item, active))
		}
		return out
	case *ObjectValue:
		out := make(map[string]any, len(x.Value))
		for _, e := range x.Value {
			key, ok := e.StringKey()
			if !ok {
				key = fmt.Sprint(unwrap(e.Key, active))
			}
			out[key] = unwrap(e.Value, active)
		}
		return out
	case *NodeValue:
		out := map[string]any{"type": TypeNode}
		if !x.SharedID.IsZero() {
			out["sharedId"] = x.SharedID.String()
		}
		if x.Value != nil {
			out["nodeType"] = x.Value.NodeType
			if x.Value.LocalName != "" {
				out["localName"] = x.Value.LocalName
			}
			if len(x.Value.Attributes) > 0 {
				out["attributes"] = x.Value.Attributes
			}
		}
		return out
	case *WindowValue:
		return map[string]any{"type": TypeWindow, "context": x.Context.String()}
	case *HandleValue:
		out := map[string]any{"type": x.Kind}
		if !x.Handle.IsZero() {
			out["handle"] = x.Handle.String()
		}
		return out
	}
	return nil
}
