package input

import (
	"encoding/json"
	"fmt"

	"github.com/dhruvsoni1802/browser-bidi/internal/bidi"
	"github.com/dhruvsoni1802/browser-bidi/internal/bidi/script"
)

// Source is one input device in a performActions call. Implementations:
// NoneSource, KeySource, PointerSource, WheelSource.
type Source interface {
	json.Marshaler
	sourceID() string
	validate(field string) error
}

type NoneSource struct {
	ID      string
	Actions []Pause
}

type KeySource struct {
	ID      string
	Actions []KeyAction
}

type PointerSource struct {
	ID string
	// PointerType is "mouse" (default), "pen" or "touch".
	PointerType string
	Actions     []PointerAction
}

type WheelSource struct {
	ID      string
	Actions []WheelAction
}

func (s NoneSource) sourceID() string    { return s.ID }
func (s KeySource) sourceID() string     { return s.ID }
func (s PointerSource) sourceID() string { return s.ID }
func (s WheelSource) sourceID() string   { return s.ID }

func marshalSource(tag, id string, params any, actions any) ([]byte, error) {
	return json.Marshal(struct {
		Type       string `json:"type"`
		ID         string `json:"id"`
		Parameters any    `json:"parameters,omitempty"`
		Actions    any    `json:"actions"`
	}{tag, id, params, actions})
}

func (s NoneSource) MarshalJSON() ([]byte, error) {
	return marshalSource("none", s.ID, nil, nonNil(s.Actions))
}

func (s KeySource) MarshalJSON() ([]byte, error) {
	return marshalSource("key", s.ID, nil, nonNil(s.Actions))
}

func (s WheelSource) MarshalJSON() ([]byte, error) {
	return marshalSource("wheel", s.ID, nil, nonNil(s.Actions))
}

func (s PointerSource) MarshalJSON() ([]byte, error) {
	var params any
	if s.PointerType != "" {
		params = struct {
			PointerType string `json:"pointerType"`
		}{s.PointerType}
	}
	return marshalSource("pointer", s.ID, params, nonNil(s.Actions))
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func (s NoneSource) validate(field string) error {
	for i, a := range s.Actions {
		if err := a.validate(fmt.Sprintf("%s.actions[%d]", field, i)); err != nil {
			return err
		}
	}
	return nil
}

func (s KeySource) validate(field string) error {
	for i, a := range s.Actions {
		if err := validateAction(a, fmt.Sprintf("%s.actions[%d]", field, i)); err != nil {
			return err
		}
	}
	return nil
}

func (s PointerSource) validate(field string) error {
	switch s.PointerType {
	case "", "mouse", "pen", "touch":
	default:
		return bidi.InvalidParams(MethodPerformActions, field+".parameters.pointerType", fmt.Sprintf("unsupported value %q", s.PointerType))
	}
	for i, a := range s.Actions {
		if err := validateAction(a, fmt.Sprintf("%s.actions[%d]", field, i)); err != nil {
			return err
		}
	}
	return nil
}

func (s WheelSource) validate(field string) error {
	for i, a := range s.Actions {
		if err := validateAction(a, fmt.Sprintf("%s.actions[%d]", field, i)); err != nil {
			return err
		}
	}
	return nil
}

type validator interface {
	validate(field string) error
}

func validateAction(a any, field string) error {
	if a == nil {
		return bidi.InvalidParams(MethodPerformActions, field, "is nil")
	}
	if v, ok := a.(validator); ok {
		return v.validate(field)
	}
	return nil
}

// KeyAction is Pause, KeyDown or KeyUp.
type KeyAction interface {
	json.Marshaler
	keyAction()
}

// PointerAction is Pause, PointerDown, PointerUp or PointerMove.
type PointerAction interface {
	json.Marshaler
	pointerAction()
}

// WheelAction is Pause or Scroll.
type WheelAction interface {
	json.Marshaler
	wheelAction()
}

// Pause idles the source for Duration milliseconds, or for one tick when nil.
type Pause struct {
	Duration *int
}

type KeyDown struct{ Value string }

type KeyUp struct{ Value string }

type PointerDown struct {
	Button int
}

type PointerUp struct {
	Button int
}

type PointerMove struct {
	X, Y     float64
	Duration *int
	Origin   Origin
}

type Scroll struct {
	X, Y           int
	DeltaX, DeltaY int
	Duration       *int
	Origin         Origin
}

func (Pause) keyAction()           {}
func (Pause) pointerAction()       {}
func (Pause) wheelAction()         {}
func (KeyDown) keyAction()         {}
func (KeyUp) keyAction()           {}
func (PointerDown) pointerAction() {}
func (PointerUp) pointerAction()   {}
func (PointerMove) pointerAction() {}
func (Scroll) wheelAction()        {}

func (a Pause) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type     string `json:"type"`
		Duration *int   `json:"duration,omitempty"`
	}{"pause", a.Duration})
}

func (a Pause) validate(field string) error {
	if a.Duration != nil && *a.Duration < 0 {
		return bidi.InvalidParams(MethodPerformActions, field+".duration", "must not be negative")
	}
	return nil
}

func marshalKey(tag, value string) ([]byte, error) {
	return json.Marshal(struct {
		Type  string `json:"type"`
		Value string `json:"value"`
	}{tag, value})
}

func (a KeyDown) MarshalJSON() ([]byte, error) { return marshalKey("keyDown", a.Value) }
func (a KeyUp) MarshalJSON() ([]byte, error)   { return marshalKey("keyUp", a.Value) }

func (a KeyDown) validate(field string) error { return validateKey(a.Value, field) }
func (a KeyUp) validate(field string) error   { return validateKey(a.Value, field) }

func validateKey(value, field string) error {
	if value == "" {
		return bidi.InvalidParams(MethodPerformActions, field+".value", "must not be empty")
	}
	return nil
}

func marshalButton(tag string, button int) ([]byte, error) {
	return json.Marshal(struct {
		Type   string `json:"type"`
		Button int    `json:"button"`
	}{tag, button})
}

func (a PointerDown) MarshalJSON() ([]byte, error) { return marshalButton("pointerDown", a.Button) }
func (a PointerUp) MarshalJSON() ([]byte, error)   { return marshalButton("pointerUp", a.Button) }

func (a PointerDown) validate(field string) error { return validateButton(a.Button, field) }
func (a PointerUp) validate(field string) error   { return validateButton(a.Button, field) }

func validateButton(button int, field string) error {
	if button < 0 {
		return bidi.InvalidParams(MethodPerformActions, field+".button", "must not be negative")
	}
	return nil
}

func (a PointerMove) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type     string  `json:"type"`
		X        float64 `json:"x"`
		Y        float64 `json:"y"`
		Duration *int    `json:"duration,omitempty"`
		Origin   Origin  `json:"origin,omitzero"`
	}{"pointerMove", a.X, a.Y, a.Duration, a.Origin})
}

func (a PointerMove) validate(field string) error {
	return a.Origin.validate(field + ".origin")
}

func (a Scroll) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type     string `json:"type"`
		X        int    `json:"x"`
		Y        int    `json:"y"`
		DeltaX   int    `json:"deltaX"`
		DeltaY   int    `json:"deltaY"`
		Duration *int   `json:"duration,omitempty"`
		Origin   Origin `json:"origin,omitzero"`
	}{"scroll", a.X, a.Y, a.DeltaX, a.DeltaY, a.Duration, a.Origin})
}

func (a Scroll) validate(field string) error {
	return a.Origin.validate(field + ".origin")
}

// Origin is the coordinate space of a move or scroll. The zero value is the
// remote end's default (the viewport).
type Origin struct {
	kind    string
	element script.SharedReference
}

var (
	OriginViewport = Origin{kind: "viewport"}
	OriginPointer  = Origin{kind: "pointer"}
)

// OriginElement measures coordinates from the center of an element.
func OriginElement(element script.SharedReference) Origin {
	return Origin{kind: "element", element: element}
}

func (o Origin) IsZero() bool { return o.kind == "" }

func (o Origin) MarshalJSON() ([]byte, error) {
	if o.kind != "element" {
		return json.Marshal(o.kind)
	}
	return json.Marshal(struct {
		Type    string                 `json:"type"`
		Element script.SharedReference `json:"element"`
	}{"element", o.element})
}

func (o Origin) validate(field string) error {
	if o.kind == "element" && o.element.SharedID.IsZero() {
		return bidi.InvalidParams(MethodPerformActions, field+".element.sharedId", "must not be empty")
	}
	return nil
}
