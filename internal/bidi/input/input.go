// Package input drives keyboards, pointers and wheels through input.* commands.
package input

import (
	"context"
	"fmt"

	"github.com/dhruvsoni1802/browser-bidi/internal/bidi"
	"github.com/dhruvsoni1802/browser-bidi/internal/bidi/script"
)

const (
	MethodPerformActions = "input.performActions"
	MethodReleaseActions = "input.releaseActions"
	MethodSetFiles       = "input.setFiles"
)

type Module struct {
	doer bidi.Doer
}

func New(doer bidi.Doer) *Module {
	return &Module{doer: doer}
}

type PerformActionsParams struct {
	Context bidi.BrowsingContextID `json:"context"`
	Actions []Source               `json:"actions"`
}

// PerformActions runs the sources tick by tick. Source ids must be unique
// within one call.
func (m *Module) PerformActions(ctx context.Context, params PerformActionsParams) error {
	if params.Context.IsZero() {
		return bidi.InvalidParams(MethodPerformActions, "context", "must not be empty")
	}
	seen := make(map[string]bool, len(params.Actions))
	for i, s := range params.Actions {
		field := fmt.Sprintf("actions[%d]", i)
		if s == nil {
			return bidi.InvalidParams(MethodPerformActions, field, "is nil")
		}
		id := s.sourceID()
		if id == "" {
			return bidi.InvalidParams(MethodPerformActions, field+".id", "must not be empty")
		}
		if seen[id] {
			return bidi.InvalidParams(MethodPerformActions, field+".id", fmt.Sprintf("duplicate source %q", id))
		}
		seen[id] = true
		if err := s.validate(field); err != nil {
			return err
		}
	}
	if params.Actions == nil {
		params.Actions = []Source{}
	}
	return bidi.Exec(ctx, m.doer, bidi.NewCommand(MethodPerformActions, params))
}

// ReleaseActions releases every key and button still held in the context.
func (m *Module) ReleaseActions(ctx context.Context, contextID bidi.BrowsingContextID) error {
	if contextID.IsZero() {
		return bidi.InvalidParams(MethodReleaseActions, "context", "must not be empty")
	}
	return bidi.Exec(ctx, m.doer, bidi.NewCommand(MethodReleaseActions, struct {
		Context bidi.BrowsingContextID `json:"context"`
	}{contextID}))
}

type SetFilesParams struct {
	Context bidi.BrowsingContextID `json:"context"`
	Element script.SharedReference `json:"element"`
	Files   []string               `json:"files"`
}

// SetFiles fills a file input. An empty Files clears it.
func (m *Module) SetFiles(ctx context.Context, params SetFilesParams) error {
	if params.Context.IsZero() {
		return bidi.InvalidParams(MethodSetFiles, "context", "must not be empty")
	}
	if params.Element.SharedID.IsZero() {
		return bidi.InvalidParams(MethodSetFiles, "element.sharedId", "must not be empty")
	}
	if params.Files == nil {
		params.Files = []string{}
	}
	return bidi.Exec(ctx, m.doer, bidi.NewCommand(MethodSetFiles, params))
}

// FileDialogOpened is the payload of input.fileDialogOpened.
type FileDialogOpened struct {
	Context  bidi.BrowsingContextID  `json:"context"`
	Element  *script.SharedReference `json:"element,omitempty"`
	Multiple bool                    `json:"multiple"`
}

func RegisterEvents(d *bidi.Dispatcher) {
	d.RegisterDecoder(bidi.EventFileDialogOpened, bidi.JSONDecoder[FileDialogOpened]())
}

func OnFileDialogOpened(d *bidi.Dispatcher, fn func(FileDialogOpened)) bidi.ListenerID {
	RegisterEvents(d)
	return bidi.On(d, bidi.EventFileDialogOpened, fn)
}
