package biditest

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dhruvsoni1802/browser-bidi/internal/bidi"
)

// Failure is returned by a Responder to answer with an error envelope.
type Failure struct {
	Code    string
	Message string
}

func (f *Failure) Error() string { return f.Code + ": " + f.Message }

// Responder computes the result for one command. Returning a *Failure sends
// an error envelope; any other error sends "unknown error".
type Responder func(params json.RawMessage) (any, error)

// Server is a scripted remote end. Commands with no registered responder are
// answered with an "unknown command" error; methods marked with Ignore are
// never answered.
type Server struct {
	t    testing.TB
	conn *Conn

	mu         sync.Mutex
	responders map[string]Responder
	ignored    map[string]bool
	commands   []bidi.RawCommand

	received chan bidi.RawCommand
	done     chan struct{}
}

// NewServer starts a remote end and returns it with the client side of the
// pipe.
func NewServer(t testing.TB) (*Server, *Conn) {
	t.Helper()
	clientSide, serverSide := NewPipe()
	s := &Server{
		t:          t,
		conn:       serverSide,
		responders: make(map[string]Responder),
		ignored:    make(map[string]bool),
		received:   make(chan bidi.RawCommand, 1024),
		done:       make(chan struct{}),
	}
	go s.serve()
	t.Cleanup(s.Close)
	return s, clientSide
}

// NewClient starts a remote end and a bidi.Client connected to it. Both are
// closed when the test ends.
func NewClient(t testing.TB, opts ...bidi.Option) (*bidi.Client, *Server) {
	t.Helper()
	s, conn := NewServer(t)
	client := bidi.NewClient(conn, opts...)
	t.Cleanup(func() { _ = client.Close() })
	return client, s
}

// Handle sets the responder for method.
func (s *Server) Handle(method string, fn Responder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responders[method] = fn
	delete(s.ignored, method)
}

// HandleResult answers every method command with result.
func (s *Server) HandleResult(method string, result any) {
	s.Handle(method, func(json.RawMessage) (any, error) { return result, nil })
}

// HandleError answers every method command with an error envelope.
func (s *Server) HandleError(method, code, message string) {
	s.Handle(method, func(json.RawMessage) (any, error) {
		return nil, &Failure{Code: code, Message: message}
	})
}

// Ignore makes the server swallow method commands without answering.
func (s *Server) Ignore(method string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ignored[method] = true
}

// Emit sends an event frame.
func (s *Server) Emit(method string, params any) {
	s.t.Helper()
	raw, err := json.Marshal(params)
	if err != nil {
		s.t.Fatalf("biditest: marshal %s params: %v", method, err)
	}
	s.SendJSON(map[string]any{
		"type":   "event",
		"method": method,
		"params": json.RawMessage(raw),
	})
}

// SendJSON marshals v and writes it as a text frame.
func (s *Server) SendJSON(v any) {
	s.t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		s.t.Fatalf("biditest: marshal frame: %v", err)
	}
	s.SendRaw(string(data))
}

// SendRaw writes a literal text frame.
func (s *Server) SendRaw(data string) {
	_ = s.conn.WriteText([]byte(data))
}

// Commands returns every command received so far.
func (s *Server) Commands() []bidi.RawCommand {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]bidi.RawCommand, len(s.commands))
	copy(out, s.commands)
	return out
}

// Next waits for the next received command.
func (s *Server) Next(timeout time.Duration) (bidi.RawCommand, error) {
	select {
	case cmd := <-s.received:
		return cmd, nil
	case <-time.After(timeout):
		return bidi.RawCommand{}, fmt.Errorf("biditest: no command within %s", timeout)
	}
}

// Drop closes the connection without waiting for the server to stop. It is
// safe to call from a Responder.
func (s *Server) Drop() {
	_ = s.conn.Close()
}

// Close drops the connection, as if the transport was lost, and waits for
// the server to stop.
func (s *Server) Close() {
	s.Drop()
	<-s.done
}

func (s *Server) serve() {
	defer close(s.done)
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}

		var cmd bidi.RawCommand
		if err := json.Unmarshal(data, &cmd); err != nil {
			s.t.Logf("biditest: unparseable command %q: %v", data, err)
			continue
		}

		s.mu.Lock()
		s.commands = append(s.commands, cmd)
		responder, ok := s.responders[cmd.Method]
		ignored := s.ignored[cmd.Method]
		s.mu.Unlock()

		select {
		case s.received <- cmd:
		default:
		}

		if ignored {
			continue
		}
		if !ok {
			s.reply(cmd.ID, nil, &Failure{Code: "unknown command", Message: cmd.Method})
			continue
		}
		result, err := responder(cmd.Params)
		s.reply(cmd.ID, result, err)
	}
}

func (s *Server) reply(id int64, result any, err error) {
	var envelope map[string]any
	if err != nil {
		failure, ok := err.(*Failure)
		if !ok {
			failure = &Failure{Code: "unknown error", Message: err.Error()}
		}
		envelope = map[string]any{
			"type":    "error",
			"id":      id,
			"error":   failure.Code,
			"message": failure.Message,
		}
	} else {
		if result == nil {
			result = struct{}{}
		}
		envelope = map[string]any{
			"type":   "success",
			"id":     id,
			"result": result,
		}
	}
	data, marshalErr := json.Marshal(envelope)
	if marshalErr != nil {
		s.t.Logf("biditest: marshal reply: %v", marshalErr)
		return
	}
	_ = s.conn.WriteText(data)
}
