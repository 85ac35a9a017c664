package script

import (
	"encoding/json"
	"fmt"

	"github.com/dhruvsoni1802/browser-bidi/internal/bidi"
)

// EvaluateResult is the outcome of script.evaluate and script.callFunction.
// Exactly one of Value and Exception is set.
type EvaluateResult struct {
	Realm     bidi.RealmID
	Value     RemoteValue
	Exception *ExceptionDetails
}

// Failed reports whether the script threw.
func (r EvaluateResult) Failed() bool { return r.Exception != nil }

// ExceptionDetails describes a thrown exception.
type ExceptionDetails struct {
	ColumnNumber int
	LineNumber   int
	Exception    RemoteValue
	StackTrace   StackTrace
	Text         string
}

func (e *ExceptionDetails) Error() string {
	return fmt.Sprintf("script exception at %d:%d: %s", e.LineNumber, e.ColumnNumber, e.Text)
}

type StackTrace struct {
	CallFrames []StackFrame `json:"callFrames"`
}

type StackFrame struct {
	ColumnNumber int    `json:"columnNumber"`
	FunctionName string `json:"functionName"`
	LineNumber   int    `json:"lineNumber"`
	URL          string `json:"url"`
}

const (
	evaluateSuccess   = "success"
	evaluateException = "exception"
)

// DecodeEvaluateResult decodes a tagged success/exception result. Remote
// values in the result share one internal id table.
func DecodeEvaluateResult(data json.RawMessage) (EvaluateResult, error) {
	var w struct {
		Type             string          `json:"type"`
		Realm            bidi.RealmID    `json:"realm"`
		Result           json.RawMessage `json:"result"`
		ExceptionDetails *struct {
			ColumnNumber int             `json:"columnNumber"`
			LineNumber   int             `json:"lineNumber"`
			Exception    json.RawMessage `json:"exception"`
			StackTrace   StackTrace      `json:"stackTrace"`
			Text         string          `json:"text"`
		} `json:"exceptionDetails"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return EvaluateResult{}, fmt.Errorf("decode EvaluateResult: %w", err)
	}
	if w.Realm.IsZero() {
		return EvaluateResult{}, bidi.Malformed("EvaluateResult", "realm", "is missing")
	}

	d := newDecoder()
	switch w.Type {
	case evaluateSuccess:
		value, err := d.remote(w.Result)
		if err != nil {
			return EvaluateResult{}, fmt.Errorf("decode EvaluateResult: %w", err)
		}
		return EvaluateResult{Realm: w.Realm, Value: value}, nil

	case evaluateException:
		if w.ExceptionDetails == nil {
			return EvaluateResult{}, bidi.Malformed("EvaluateResult", "exceptionDetails", "is missing")
		}
		thrown, err := d.remote(w.ExceptionDetails.Exception)
		if err != nil {
			return EvaluateResult{}, fmt.Errorf("decode exception: %w", err)
		}
		return EvaluateResult{
			Realm: w.Realm,
			Exception: &ExceptionDetails{
				ColumnNumber: w.ExceptionDetails.ColumnNumber,
				LineNumber:   w.ExceptionDetails.LineNumber,
				Exception:    thrown,
				StackTrace:   w.ExceptionDetails.StackTrace,
				Text:         w.ExceptionDetails.Text,
			},
		}, nil

	case "":
		return EvaluateResult{}, bidi.Malformed("EvaluateResult", "type", "is missing")
	}
	return EvaluateResult{}, &bidi.UnknownVariantTagError{Family: "EvaluateResult", Tag: w.Type}
}

// RealmInfo describes a realm. Context and Sandbox are set for window realms,
// Owners for dedicated workers.
type RealmInfo struct {
	Realm   bidi.RealmID
	Origin  string
	Type    bidi.RealmType
	Context bidi.BrowsingContextID
	Sandbox string
	Owners  []bidi.RealmID
}

// DecodeRealmInfo decodes a RealmInfo, rejecting realm types the protocol
// does not define.
func DecodeRealmInfo(data json.RawMessage) (RealmInfo, error) {
	var w struct {
		Realm   bidi.RealmID           `json:"realm"`
		Origin  string                 `json:"origin"`
		Type    bidi.RealmType         `json:"type"`
		Context bidi.BrowsingContextID `json:"context"`
		Sandbox string                 `json:"sandbox"`
		Owners  []bidi.RealmID         `json:"owners"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return RealmInfo{}, fmt.Errorf("decode RealmInfo: %w", err)
	}
	if w.Type == "" {
		return RealmInfo{}, bidi.Malformed("RealmInfo", "type", "is missing")
	}
	if !w.Type.Known() {
		return RealmInfo{}, &bidi.UnknownVariantTagError{Family: "RealmInfo", Tag: string(w.Type)}
	}
	if w.Realm.IsZero() {
		return RealmInfo{}, bidi.Malformed("RealmInfo", "realm", "is missing")
	}
	if w.Type == bidi.RealmWindow && w.Context.IsZero() {
		return RealmInfo{}, bidi.Malformed("RealmInfo", "context", "is missing for a window realm")
	}
	return RealmInfo(w), nil
}

// Target selects where a script runs: a realm, or a browsing context
// (optionally in a named sandbox).
type Target interface {
	json.Marshaler
	target()
}

type RealmTarget struct {
	Realm bidi.RealmID
}

func (RealmTarget) target() {}

func (t RealmTarget) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Realm bidi.RealmID `json:"realm"`
	}{t.Realm})
}

type ContextTarget struct {
	Context bidi.BrowsingContextID
	Sandbox string
}

func (ContextTarget) target() {}

func (t ContextTarget) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Context bidi.BrowsingContextID `json:"context"`
		Sandbox string                 `json:"sandbox,omitempty"`
	}{t.Context, t.Sandbox})
}

func validateTarget(method string, t Target) error {
	switch t := t.(type) {
	case nil:
		return bidi.InvalidParams(method, "target", "is required")
	case RealmTarget:
		if t.Realm.IsZero() {
			return bidi.InvalidParams(method, "target.realm", "must not be empty")
		}
	case ContextTarget:
		if t.Context.IsZero() {
			return bidi.InvalidParams(method, "target.context", "must not be empty")
		}
	}
	return nil
}

// SerializationOptions tune how results are serialized by the remote end.
type SerializationOptions struct {
	MaxDomDepth       *int   `json:"maxDomDepth,omitempty"`
	MaxObjectDepth    *int   `json:"maxObjectDepth,omitempty"`
	IncludeShadowTree string `json:"includeShadowTree,omitempty"`
}
