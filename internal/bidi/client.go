package bidi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// DefaultCommandTimeout applies when the caller's context has no deadline.
	DefaultCommandTimeout = 30 * time.Second

	tracerName = "github.com/dhruvsoni1802/browser-bidi/internal/bidi"
)

// State is the session lifecycle as seen by a Client.
type State int32

const (
	StateDisconnected State = iota // transport open, no BiDi session yet
	StateConnected                 // session.new succeeded or a session was attached
	StateClosed                    // session ended or transport lost
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Doer sends a command and waits for its raw result. *Client implements it.
type Doer interface {
	Do(ctx context.Context, cmd Commander) (json.RawMessage, error)
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger used for protocol anomalies.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithDefaultTimeout sets the timeout used when a caller's context carries
// no deadline. Zero disables it.
func WithDefaultTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.defaultTimeout = d
	}
}

// WithEventQueueSize bounds the per-method event queue. Zero means unbounded.
func WithEventQueueSize(n int) Option {
	return func(c *Client) {
		c.eventQueueSize = n
	}
}

// Client correlates commands with their responses over one Conn and hands
// everything else to its Dispatcher. It is safe for concurrent use.
type Client struct {
	conn           Conn
	url            string
	logger         *slog.Logger
	tracer         trace.Tracer
	defaultTimeout time.Duration
	eventQueueSize int

	writeMu sync.Mutex

	// mu guards the id counter, the pending table and the lifecycle fields.
	mu        sync.Mutex
	nextID    int64
	pending   map[int64]*pendingCall
	state     State
	sessionID string
	closeErr  error

	events    *Dispatcher
	done      chan struct{}
	closeOnce sync.Once
}

type pendingCall struct {
	method string
	reply  chan reply
}

type reply struct {
	response commandResponse
	err      error
	closed   error // Set when shutdown failed the slot
}

// NewClient starts the reader goroutine on conn and returns a Client in the
// Disconnected state.
func NewClient(conn Conn, opts ...Option) *Client {
	c := &Client{
		conn:           conn,
		logger:         slog.Default(),
		tracer:         otel.Tracer(tracerName),
		defaultTimeout: DefaultCommandTimeout,
		pending:        make(map[int64]*pendingCall),
		state:          StateDisconnected,
		done:           make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.events = newDispatcher(c, c.logger, c.eventQueueSize)

	go c.readLoop()
	return c
}

// Events returns the dispatcher fed by this client's reader.
func (c *Client) Events() *Dispatcher { return c.events }

// URL returns the WebSocket URL the client dialed, if any.
func (c *Client) URL() string { return c.url }

// Done is closed once the client reaches StateClosed.
func (c *Client) Done() <-chan struct{} { return c.done }

// State returns the current lifecycle state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SessionID returns the BiDi session id once connected.
func (c *Client) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// MarkConnected moves a Disconnected client to Connected. It is called by
// session.new and when attaching to a session the WebSocket URL is bound to.
func (c *Client) MarkConnected(sessionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateClosed {
		return ErrSessionClosed
	}
	c.state = StateConnected
	c.sessionID = sessionID
	return nil
}

// Pending reports whether a command with the given id is still waiting.
func (c *Client) Pending(id int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.pending[id]
	return ok
}

// PendingCount returns the number of outstanding commands.
func (c *Client) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Do assigns the next id to cmd, writes it and blocks until the matching
// response, the context deadline (or the default timeout), or transport loss.
func (c *Client) Do(ctx context.Context, cmd Commander) (json.RawMessage, error) {
	method := cmd.CommandMethod()

	call, id, err := c.register(cmd)
	if err != nil {
		return nil, err
	}

	ctx, span := c.tracer.Start(ctx, method, trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(attribute.Int64("bidi.command.id", id))
	defer span.End()

	result, err := c.roundTrip(ctx, cmd, call, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return result, err
}

func (c *Client) register(cmd Commander) (*pendingCall, int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateClosed {
		return nil, 0, c.closedError()
	}

	c.nextID++
	id := c.nextID
	if _, exists := c.pending[id]; exists {
		return nil, 0, fmt.Errorf("%w: %d", ErrDuplicateCorrelationID, id)
	}
	if err := cmd.bind(id); err != nil {
		return nil, 0, err
	}

	call := &pendingCall{method: cmd.CommandMethod(), reply: make(chan reply, 1)}
	c.pending[id] = call
	metricPending.Inc()
	return call, id, nil
}

func (c *Client) roundTrip(ctx context.Context, cmd Commander, call *pendingCall, id int64) (json.RawMessage, error) {
	method := call.method

	data, err := json.Marshal(cmd)
	if err != nil {
		c.abandon(id)
		return nil, fmt.Errorf("failed to marshal %s: %w", method, err)
	}

	if _, ok := ctx.Deadline(); !ok && c.defaultTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.defaultTimeout)
		defer cancel()
	}

	started := time.Now()
	c.writeMu.Lock()
	err = c.conn.WriteMessage(textFrame, data)
	c.writeMu.Unlock()
	if err != nil {
		c.abandon(id)
		metricCommands.WithLabelValues(method, outcomeTransport).Inc()
		c.shutdown(fmt.Errorf("%w: write failed: %v", ErrTransportClosed, err))
		return nil, fmt.Errorf("failed to send %s (id %d): %w", method, id, ErrTransportClosed)
	}

	c.logger.Debug("command sent", "method", method, "id", id)

	select {
	case r := <-call.reply:
		metricCommandDuration.WithLabelValues(method).Observe(time.Since(started).Seconds())
		return c.complete(method, id, r)

	case <-ctx.Done():
		if !c.abandon(id) {
			// The reader or shutdown claimed the slot first; either one
			// queues a reply before releasing the lock.
			return c.complete(method, id, <-call.reply)
		}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			metricCommands.WithLabelValues(method, outcomeTimeout).Inc()
			return nil, &CommandTimeoutError{Method: method, ID: id}
		}
		metricCommands.WithLabelValues(method, outcomeCanceled).Inc()
		return nil, fmt.Errorf("%s (id %d): %w", method, id, ctx.Err())

	case <-c.done:
		select {
		case r := <-call.reply:
			return c.complete(method, id, r)
		default:
		}
		metricCommands.WithLabelValues(method, outcomeTransport).Inc()
		return nil, c.abandonedError(method, id)
	}
}

func (c *Client) complete(method string, id int64, r reply) (json.RawMessage, error) {
	if r.closed != nil {
		metricCommands.WithLabelValues(method, outcomeTransport).Inc()
		return nil, c.abandonedError(method, id)
	}
	if r.err != nil {
		metricCommands.WithLabelValues(method, outcomeDecode).Inc()
		return nil, &DecodeError{Method: method, ID: id, Err: r.err}
	}

	resp := r.response
	if resp.Type == responseError {
		metricCommands.WithLabelValues(method, outcomeError).Inc()
		return nil, &RemoteError{
			ID:         id,
			Method:     method,
			Code:       resp.Error,
			Message:    resp.Message,
			Stacktrace: resp.Stacktrace,
		}
	}
	if len(resp.Result) == 0 {
		metricCommands.WithLabelValues(method, outcomeDecode).Inc()
		return nil, &DecodeError{Method: method, ID: id, Err: Malformed("CommandSuccess", "result", "is missing")}
	}

	metricCommands.WithLabelValues(method, outcomeSuccess).Inc()
	return resp.Result, nil
}

// abandon removes the pending slot for id. It returns false when the slot
// was already gone (claimed by the reader or failed by shutdown).
func (c *Client) abandon(id int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.pending[id]; !ok {
		return false
	}
	delete(c.pending, id)
	metricPending.Dec()
	return true
}

func (c *Client) readLoop() {
	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			c.shutdown(fmt.Errorf("%w: %v", ErrTransportClosed, err))
			return
		}
		if !isTextFrame(messageType) {
			c.logger.Warn("dropping non-text frame", "message_type", messageType)
			continue
		}
		c.route(data)
	}
}

// route classifies a frame from its minimal header before anything else is
// decoded: frames with an id are responses, frames with a method are events.
func (c *Client) route(data []byte) {
	var header messageHeader
	if err := json.Unmarshal(data, &header); err != nil {
		c.logger.Warn("dropping unparseable frame", "error", err)
		metricEventsDropped.WithLabelValues("unparseable").Inc()
		return
	}

	switch {
	case header.ID != nil:
		c.resolve(*header.ID, data)
	case header.Type == responseError:
		var resp commandResponse
		if err := json.Unmarshal(data, &resp); err != nil {
			c.logger.Error("remote end reported an undecodable error without an id", "error", err)
			return
		}
		c.logger.Error("remote end reported an error without an id",
			"error_code", resp.Error,
			"message", resp.Message)
	case header.Method != "":
		c.events.enqueue(header.Method, data)
	default:
		c.logger.Warn("dropping frame with neither id nor method")
		metricEventsDropped.WithLabelValues("unclassified").Inc()
	}
}

func (c *Client) resolve(id int64, data []byte) {
	c.mu.Lock()
	call, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
		metricPending.Dec()
	}
	c.mu.Unlock()

	if !ok {
		c.logger.Warn("dropping response with no pending command", "id", id)
		metricOrphanResponses.Inc()
		return
	}

	var r reply
	if err := json.Unmarshal(data, &r.response); err != nil {
		r.err = err
	} else if r.response.Type != responseSuccess && r.response.Type != responseError {
		r.err = &UnknownVariantTagError{Family: "CommandResponse", Tag: r.response.Type}
	}
	call.reply <- r
}

// Close ends the client. Pending commands fail with ErrTransportClosed and
// later calls to Do fail with ErrSessionClosed.
func (c *Client) Close() error {
	c.shutdown(ErrSessionClosed)
	return nil
}

func (c *Client) shutdown(cause error) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.state = StateClosed
		c.closeErr = cause
		abandoned := len(c.pending)
		for _, call := range c.pending {
			call.reply <- reply{closed: cause}
		}
		c.pending = make(map[int64]*pendingCall)
		c.mu.Unlock()

		metricPending.Sub(float64(abandoned))
		close(c.done)

		if err := c.conn.Close(); err != nil {
			c.logger.Debug("closing transport", "error", err)
		}
		c.events.close()

		if abandoned > 0 {
			c.logger.Warn("client closed with pending commands", "pending", abandoned, "cause", cause)
		} else {
			c.logger.Debug("client closed", "cause", cause)
		}
	})
}

func (c *Client) closedError() error {
	if c.closeErr == nil || errors.Is(c.closeErr, ErrSessionClosed) {
		return ErrSessionClosed
	}
	return fmt.Errorf("%w: %w", ErrSessionClosed, c.closeErr)
}

func (c *Client) abandonedError(method string, id int64) error {
	c.mu.Lock()
	cause := c.closeErr
	c.mu.Unlock()
	if errors.Is(cause, ErrTransportClosed) {
		return fmt.Errorf("%s (id %d): %w", method, id, cause)
	}
	return fmt.Errorf("%s (id %d): %w", method, id, ErrTransportClosed)
}

// Send issues cmd through d and decodes its result into R.
func Send[R any](ctx context.Context, d Doer, cmd Commander) (R, error) {
	return SendDecode(ctx, d, cmd, func(raw json.RawMessage) (R, error) {
		var result R
		err := json.Unmarshal(raw, &result)
		return result, err
	})
}

// SendDecode issues cmd through d and decodes its result with decode. Decode
// failures are reported to this caller only, as a *DecodeError.
func SendDecode[R any](ctx context.Context, d Doer, cmd Commander, decode func(json.RawMessage) (R, error)) (R, error) {
	var zero R
	raw, err := d.Do(ctx, cmd)
	if err != nil {
		return zero, err
	}
	result, err := decode(raw)
	if err != nil {
		return zero, &DecodeError{Method: cmd.CommandMethod(), ID: cmd.CommandID(), Err: err}
	}
	return result, nil
}

// Exec issues cmd and checks that the remote end answered with an (empty)
// result object.
func Exec(ctx context.Context, d Doer, cmd Commander) error {
	_, err := Send[Empty](ctx, d, cmd)
	return err
}
