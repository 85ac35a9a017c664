package browsingcontext

import (
	"github.com/dhruvsoni1802/browser-bidi/internal/bidi"
)

// NavigationInfo is the payload of the navigation lifecycle events.
type NavigationInfo struct {
	Context    bidi.BrowsingContextID `json:"context"`
	Navigation bidi.NavigationID      `json:"navigation"`
	Timestamp  int64                  `json:"timestamp"`
	URL        string                 `json:"url"`
}

type DownloadWillBegin struct {
	NavigationInfo
	SuggestedFilename string `json:"suggestedFilename"`
}

type HistoryUpdated struct {
	Context bidi.BrowsingContextID `json:"context"`
	URL     string                 `json:"url"`
}

type UserPromptOpened struct {
	Context      bidi.BrowsingContextID `json:"context"`
	Handler      string                 `json:"handler"`
	Message      string                 `json:"message"`
	Type         string                 `json:"type"`
	DefaultValue string                 `json:"defaultValue,omitempty"`
}

type UserPromptClosed struct {
	Context  bidi.BrowsingContextID `json:"context"`
	Accepted bool                   `json:"accepted"`
	Type     string                 `json:"type"`
	UserText string                 `json:"userText,omitempty"`
}

var navigationEvents = []string{
	bidi.EventNavigationStarted,
	bidi.EventFragmentNavigated,
	bidi.EventDOMContentLoaded,
	bidi.EventLoad,
	bidi.EventNavigationAborted,
	bidi.EventNavigationCommitted,
	bidi.EventNavigationFailed,
	bidi.EventDownloadEnd,
}

// RegisterEvents installs decoders for browsingContext.* events.
func RegisterEvents(d *bidi.Dispatcher) {
	d.RegisterDecoder(bidi.EventContextCreated, bidi.JSONDecoder[Info]())
	d.RegisterDecoder(bidi.EventContextDestroyed, bidi.JSONDecoder[Info]())
	for _, name := range navigationEvents {
		d.RegisterDecoder(name, bidi.JSONDecoder[NavigationInfo]())
	}
	d.RegisterDecoder(bidi.EventDownloadWillBegin, bidi.JSONDecoder[DownloadWillBegin]())
	d.RegisterDecoder(bidi.EventHistoryUpdated, bidi.JSONDecoder[HistoryUpdated]())
	d.RegisterDecoder(bidi.EventUserPromptOpened, bidi.JSONDecoder[UserPromptOpened]())
	d.RegisterDecoder(bidi.EventUserPromptClosed, bidi.JSONDecoder[UserPromptClosed]())
}

// OnContextCreated and OnContextDestroyed receive the context's Info.
func OnContextCreated(d *bidi.Dispatcher, fn func(Info)) bidi.ListenerID {
	RegisterEvents(d)
	return bidi.On(d, bidi.EventContextCreated, fn)
}

func OnContextDestroyed(d *bidi.Dispatcher, fn func(Info)) bidi.ListenerID {
	RegisterEvents(d)
	return bidi.On(d, bidi.EventContextDestroyed, fn)
}

// OnNavigation registers fn for one of the navigation lifecycle events,
// optionally restricted to a context.
func OnNavigation(d *bidi.Dispatcher, event string, contextID bidi.BrowsingContextID, fn func(NavigationInfo)) bidi.ListenerID {
	RegisterEvents(d)
	if contextID.IsZero() {
		return bidi.On(d, event, fn)
	}
	return bidi.OnContext(d, event, contextID, fn)
}

func OnUserPromptOpened(d *bidi.Dispatcher, fn func(UserPromptOpened)) bidi.ListenerID {
	RegisterEvents(d)
	return bidi.On(d, bidi.EventUserPromptOpened, fn)
}
