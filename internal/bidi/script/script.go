package script

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dhruvsoni1802/browser-bidi/internal/bidi"
)

const (
	MethodEvaluate            = "script.evaluate"
	MethodCallFunction        = "script.callFunction"
	MethodAddPreloadScript    = "script.addPreloadScript"
	MethodRemovePreloadScript = "script.removePreloadScript"
	MethodDisown              = "script.disown"
	MethodGetRealms           = "script.getRealms"
)

// Module issues script.* commands.
type Module struct {
	doer bidi.Doer
}

func New(doer bidi.Doer) *Module {
	return &Module{doer: doer}
}

type EvaluateParams struct {
	Expression           string                `json:"expression"`
	Target               Target                `json:"target"`
	AwaitPromise         bool                  `json:"awaitPromise"`
	ResultOwnership      bidi.ResultOwnership  `json:"resultOwnership,omitempty"`
	SerializationOptions *SerializationOptions `json:"serializationOptions,omitempty"`
	UserActivation       bool                  `json:"userActivation,omitempty"`
}

// Evaluate runs an expression. A thrown exception is a successful command
// whose result has Exception set.
func (m *Module) Evaluate(ctx context.Context, params EvaluateParams) (EvaluateResult, error) {
	if strings.TrimSpace(params.Expression) == "" {
		return EvaluateResult{}, bidi.InvalidParams(MethodEvaluate, "expression", "must not be empty")
	}
	if err := validateTarget(MethodEvaluate, params.Target); err != nil {
		return EvaluateResult{}, err
	}
	if err := params.ResultOwnership.Validate(); err != nil {
		return EvaluateResult{}, err
	}
	return bidi.SendDecode(ctx, m.doer, bidi.NewCommand(MethodEvaluate, params), DecodeEvaluateResult)
}

type CallFunctionParams struct {
	FunctionDeclaration  string                `json:"functionDeclaration"`
	AwaitPromise         bool                  `json:"awaitPromise"`
	Target               Target                `json:"target"`
	Arguments            []LocalValue          `json:"arguments,omitempty"`
	This                 LocalValue            `json:"this,omitempty"`
	ResultOwnership      bidi.ResultOwnership  `json:"resultOwnership,omitempty"`
	SerializationOptions *SerializationOptions `json:"serializationOptions,omitempty"`
	UserActivation       bool                  `json:"userActivation,omitempty"`
}

func (m *Module) CallFunction(ctx context.Context, params CallFunctionParams) (EvaluateResult, error) {
	if strings.TrimSpace(params.FunctionDeclaration) == "" {
		return EvaluateResult{}, bidi.InvalidParams(MethodCallFunction, "functionDeclaration", "must not be empty")
	}
	if err := validateTarget(MethodCallFunction, params.Target); err != nil {
		return EvaluateResult{}, err
	}
	for i, arg := range params.Arguments {
		if arg == nil {
			return EvaluateResult{}, bidi.InvalidParams(MethodCallFunction, fmt.Sprintf("arguments[%d]", i), "is nil")
		}
	}
	if err := params.ResultOwnership.Validate(); err != nil {
		return EvaluateResult{}, err
	}
	return bidi.SendDecode(ctx, m.doer, bidi.NewCommand(MethodCallFunction, params), DecodeEvaluateResult)
}

type AddPreloadScriptParams struct {
	FunctionDeclaration string                   `json:"functionDeclaration"`
	Arguments           []ChannelValue           `json:"arguments,omitempty"`
	Contexts            []bidi.BrowsingContextID `json:"contexts,omitempty"`
	UserContexts        []bidi.UserContextID     `json:"userContexts,omitempty"`
	Sandbox             string                   `json:"sandbox,omitempty"`
}

func (m *Module) AddPreloadScript(ctx context.Context, params AddPreloadScriptParams) (bidi.PreloadScriptID, error) {
	if strings.TrimSpace(params.FunctionDeclaration) == "" {
		return bidi.PreloadScriptID{}, bidi.InvalidParams(MethodAddPreloadScript, "functionDeclaration", "must not be empty")
	}
	if len(params.Contexts) > 0 && len(params.UserContexts) > 0 {
		return bidi.PreloadScriptID{}, bidi.InvalidParams(MethodAddPreloadScript, "contexts", "cannot be combined with userContexts")
	}
	for i, ch := range params.Arguments {
		if ch.Channel == "" {
			return bidi.PreloadScriptID{}, bidi.InvalidParams(MethodAddPreloadScript, fmt.Sprintf("arguments[%d].channel", i), "must not be empty")
		}
	}

	result, err := bidi.Send[struct {
		Script bidi.PreloadScriptID `json:"script"`
	}](ctx, m.doer, bidi.NewCommand(MethodAddPreloadScript, params))
	if err != nil {
		return bidi.PreloadScriptID{}, err
	}
	if result.Script.IsZero() {
		return bidi.PreloadScriptID{}, &bidi.DecodeError{Method: MethodAddPreloadScript, Err: bidi.Malformed("AddPreloadScriptResult", "script", "is missing")}
	}
	return result.Script, nil
}

func (m *Module) RemovePreloadScript(ctx context.Context, id bidi.PreloadScriptID) error {
	if id.IsZero() {
		return bidi.InvalidParams(MethodRemovePreloadScript, "script", "must not be empty")
	}
	return bidi.Exec(ctx, m.doer, bidi.NewCommand(MethodRemovePreloadScript, struct {
		Script bidi.PreloadScriptID `json:"script"`
	}{id}))
}

// Disown releases handles so the remote end may collect their objects.
func (m *Module) Disown(ctx context.Context, target Target, handles ...bidi.Handle) error {
	if len(handles) == 0 {
		return bidi.InvalidParams(MethodDisown, "handles", "must not be empty")
	}
	for i, h := range handles {
		if h.IsZero() {
			return bidi.InvalidParams(MethodDisown, fmt.Sprintf("handles[%d]", i), "must not be empty")
		}
	}
	if err := validateTarget(MethodDisown, target); err != nil {
		return err
	}
	return bidi.Exec(ctx, m.doer, bidi.NewCommand(MethodDisown, struct {
		Handles []bidi.Handle `json:"handles"`
		Target  Target        `json:"target"`
	}{handles, target}))
}

type GetRealmsParams struct {
	Context bidi.BrowsingContextID `json:"context,omitzero"`
	Type    bidi.RealmType         `json:"type,omitempty"`
}

func (m *Module) GetRealms(ctx context.Context, params GetRealmsParams) ([]RealmInfo, error) {
	if params.Type != "" && !params.Type.Known() {
		return nil, bidi.InvalidParams(MethodGetRealms, "type", fmt.Sprintf("unsupported realm type %q", params.Type))
	}
	return bidi.SendDecode(ctx, m.doer, bidi.NewCommand(MethodGetRealms, params), decodeRealms)
}

func decodeRealms(data json.RawMessage) ([]RealmInfo, error) {
	var w struct {
		Realms []json.RawMessage `json:"realms"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, err
	}
	realms := make([]RealmInfo, 0, len(w.Realms))
	for i, raw := range w.Realms {
		info, err := DecodeRealmInfo(raw)
		if err != nil {
			return nil, fmt.Errorf("realm %d: %w", i, err)
		}
		realms = append(realms, info)
	}
	return realms, nil
}
