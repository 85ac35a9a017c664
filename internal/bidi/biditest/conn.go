// Package biditest provides an in-memory transport and a scripted remote end
// for exercising BiDi clients without a browser.
package biditest

import (
	"errors"
	"sync"

	"github.com/gorilla/websocket"
)

// ErrClosed is returned by Conn operations after either end closed the pipe.
var ErrClosed = errors.New("biditest: connection closed")

type pipe struct {
	closeOnce sync.Once
	closed    chan struct{}
}

// Conn is one end of an in-memory duplex connection. It satisfies bidi.Conn.
type Conn struct {
	pipe  *pipe
	inbox chan frame
	peer  *Conn
}

type frame struct {
	messageType int
	data        []byte
}

// NewPipe returns two connected ends. Frames written on one are read from
// the other in order. Closing either end closes both.
func NewPipe() (*Conn, *Conn) {
	p := &pipe{closed: make(chan struct{})}
	a := &Conn{pipe: p, inbox: make(chan frame, 1024)}
	b := &Conn{pipe: p, inbox: make(chan frame, 1024)}
	a.peer, b.peer = b, a
	return a, b
}

func (c *Conn) ReadMessage() (int, []byte, error) {
	// Frames already delivered are readable even after close.
	select {
	case f := <-c.inbox:
		return f.messageType, f.data, nil
	default:
	}
	select {
	case f := <-c.inbox:
		return f.messageType, f.data, nil
	case <-c.pipe.closed:
		return 0, nil, ErrClosed
	}
}

func (c *Conn) WriteMessage(messageType int, data []byte) error {
	buf := make([]byte, len(data))
	copy(buf, data)
	select {
	case <-c.pipe.closed:
		return ErrClosed
	default:
	}
	select {
	case c.peer.inbox <- frame{messageType: messageType, data: buf}:
		return nil
	case <-c.pipe.closed:
		return ErrClosed
	}
}

// WriteText writes a text frame.
func (c *Conn) WriteText(data []byte) error {
	return c.WriteMessage(websocket.TextMessage, data)
}

func (c *Conn) Close() error {
	c.pipe.closeOnce.Do(func() { close(c.pipe.closed) })
	return nil
}

// Closed reports whether the pipe was closed.
func (c *Conn) Closed() bool {
	select {
	case <-c.pipe.closed:
		return true
	default:
		return false
	}
}
