package bidi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync/atomic"
)

// Commander is a command that can be handed to a Client. Only Command[P]
// implements it.
type Commander interface {
	CommandMethod() string
	CommandID() int64
	bind(id int64) error
}

// Command pairs a dot-namespaced method with its params. ID stays zero until
// a Client assigns it, immediately before the one and only transmission.
type Command[P any] struct {
	Method string
	Params P

	id    atomic.Int64
	bound atomic.Bool
}

// NewCommand builds an unsent command.
func NewCommand[P any](method string, params P) *Command[P] {
	return &Command[P]{Method: method, Params: params}
}

func (c *Command[P]) CommandMethod() string { return c.Method }

func (c *Command[P]) CommandID() int64 { return c.id.Load() }

func (c *Command[P]) bind(id int64) error {
	if !c.bound.CompareAndSwap(false, true) {
		return fmt.Errorf("%w: %s already carries id %d", ErrCommandAlreadySent, c.Method, c.id.Load())
	}
	c.id.Store(id)
	return nil
}

// MarshalJSON writes the outgoing wire envelope {"id","method","params"}.
func (c *Command[P]) MarshalJSON() ([]byte, error) {
	params, err := json.Marshal(c.Params)
	if err != nil {
		return nil, fmt.Errorf("marshal %s params: %w", c.Method, err)
	}
	if bytes.Equal(params, []byte("null")) {
		params = []byte("{}")
	}
	return json.Marshal(RawCommand{
		ID:     c.id.Load(),
		Method: c.Method,
		Params: params,
	})
}

// RawCommand is an outgoing command as it appears on the wire, with params
// left undecoded.
type RawCommand struct {
	ID     int64           `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

// Empty is the result of commands that return nothing meaningful. The remote
// end still answers with an (empty) object.
type Empty struct{}

func (e *Empty) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Malformed("EmptyResult", "result", "is not an object")
	}
	return nil
}

// messageHeader is the minimal envelope decoded from every inbound frame to
// decide between response correlation and event dispatch.
type messageHeader struct {
	ID     *int64 `json:"id"`
	Type   string `json:"type"`
	Method string `json:"method"`
}

// commandResponse covers both the success and the error envelope.
type commandResponse struct {
	ID         int64           `json:"id"`
	Type       string          `json:"type"`
	Result     json.RawMessage `json:"result,omitempty"`
	Error      string          `json:"error,omitempty"`
	Message    string          `json:"message,omitempty"`
	Stacktrace string          `json:"stacktrace,omitempty"`
}

// rawEvent is an inbound event before its params are decoded.
type rawEvent struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

const (
	responseSuccess = "success"
	responseError   = "error"
	responseEvent   = "event"
)
