package bidi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is a duplex channel carrying whole JSON text frames. *websocket.Conn
// satisfies it. ReadMessage is only ever called from the client's reader
// goroutine; WriteMessage calls are serialized by the client.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// DialOptions controls how Dial opens the WebSocket.
type DialOptions struct {
	HandshakeTimeout time.Duration
	Header           http.Header
	ReadLimit        int64
}

// Dial resolves endpoint, opens a WebSocket to it and starts a Client on the
// connection.
func Dial(ctx context.Context, endpoint string, dialOpts DialOptions, opts ...Option) (*Client, error) {
	wsURL, err := ResolveWebSocketURL(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to discover WebSocket URL: %w", err)
	}

	dialer := *websocket.DefaultDialer
	if dialOpts.HandshakeTimeout > 0 {
		dialer.HandshakeTimeout = dialOpts.HandshakeTimeout
	}

	conn, response, err := dialer.DialContext(ctx, wsURL, dialOpts.Header)
	if err != nil {
		if response != nil {
			return nil, fmt.Errorf("failed to dial %s (status %d): %w", wsURL, response.StatusCode, err)
		}
		return nil, fmt.Errorf("failed to dial %s: %w", wsURL, err)
	}
	if dialOpts.ReadLimit > 0 {
		conn.SetReadLimit(dialOpts.ReadLimit)
	}

	client := NewClient(conn, opts...)
	client.url = wsURL
	return client, nil
}

func isTextFrame(messageType int) bool {
	return messageType == websocket.TextMessage
}

const textFrame = websocket.TextMessage
