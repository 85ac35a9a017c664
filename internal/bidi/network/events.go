package network

import (
	"github.com/dhruvsoni1802/browser-bidi/internal/bidi"
)

// BaseParameters are shared by every network event.
type BaseParameters struct {
	Context       bidi.BrowsingContextID `json:"context,omitzero"`
	IsBlocked     bool                   `json:"isBlocked"`
	Navigation    bidi.NavigationID      `json:"navigation,omitzero"`
	RedirectCount int                    `json:"redirectCount"`
	Request       RequestData            `json:"request"`
	Timestamp     int64                  `json:"timestamp"`
	Intercepts    []bidi.InterceptID     `json:"intercepts,omitempty"`
}

type BeforeRequestSent struct {
	BaseParameters
	Initiator *Initiator `json:"initiator,omitempty"`
}

// ResponseEvent is the payload of responseStarted, responseCompleted and
// authRequired.
type ResponseEvent struct {
	BaseParameters
	Response ResponseData `json:"response"`
}

type FetchError struct {
	BaseParameters
	ErrorText string `json:"errorText"`
}

// RegisterEvents installs decoders for network.* events.
func RegisterEvents(d *bidi.Dispatcher) {
	d.RegisterDecoder(bidi.EventBeforeRequestSent, bidi.JSONDecoder[BeforeRequestSent]())
	d.RegisterDecoder(bidi.EventResponseStarted, bidi.JSONDecoder[ResponseEvent]())
	d.RegisterDecoder(bidi.EventResponseCompleted, bidi.JSONDecoder[ResponseEvent]())
	d.RegisterDecoder(bidi.EventAuthRequired, bidi.JSONDecoder[ResponseEvent]())
	d.RegisterDecoder(bidi.EventFetchError, bidi.JSONDecoder[FetchError]())
}

func OnBeforeRequestSent(d *bidi.Dispatcher, fn func(BeforeRequestSent)) bidi.ListenerID {
	RegisterEvents(d)
	return bidi.On(d, bidi.EventBeforeRequestSent, fn)
}

// OnResponse registers fn for responseStarted, responseCompleted or
// authRequired.
func OnResponse(d *bidi.Dispatcher, event string, fn func(ResponseEvent)) bidi.ListenerID {
	RegisterEvents(d)
	return bidi.On(d, event, fn)
}

func OnFetchError(d *bidi.Dispatcher, fn func(FetchError)) bidi.ListenerID {
	RegisterEvents(d)
	return bidi.On(d, bidi.EventFetchError, fn)
}
