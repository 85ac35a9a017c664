package bidi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"
	"slices"
	"strings"
	"sync"
)

// Event is an inbound event after its params were decoded.
type Event struct {
	Method string
	// Params is whatever the decoder registered for Method returned, or the
	// raw params (json.RawMessage) when no decoder is registered.
	Params any
	// Context is the browsing context the event concerns, when it names one.
	Context BrowsingContextID
	Raw     json.RawMessage
}

// Handler receives events on the dispatch goroutine of their method.
type Handler func(Event)

// Decoder turns raw event params into a typed value.
type Decoder func(json.RawMessage) (any, error)

// ListenerID identifies a registered handler for RemoveListener.
type ListenerID uint64

type listener struct {
	id      ListenerID
	context BrowsingContextID
	handler Handler
}

// Dispatcher fans events out to listeners and keeps track of remote
// subscriptions. Each method gets its own lane (queue plus goroutine) so
// events of one method are delivered in wire order while a slow handler
// never stalls the reader or other methods.
type Dispatcher struct {
	doer     Doer
	logger   *slog.Logger
	maxQueue int

	// mu guards the listener registry, decoders and lanes. It is never held
	// while a handler runs or a command is in flight.
	mu           sync.Mutex
	decoders     map[string]Decoder
	listeners    map[string][]listener
	nextListener ListenerID
	lanes        map[string]*lane
	closed       bool
	wg           sync.WaitGroup

	subMu         sync.Mutex
	subscriptions []Subscription
}

// Subscription is one successful session.subscribe call.
type Subscription struct {
	ID           SubscriptionID
	Events       []string
	Contexts     []BrowsingContextID
	UserContexts []UserContextID
}

func newDispatcher(doer Doer, logger *slog.Logger, maxQueue int) *Dispatcher {
	return &Dispatcher{
		doer:      doer,
		logger:    logger,
		maxQueue:  maxQueue,
		decoders:  make(map[string]Decoder),
		listeners: make(map[string][]listener),
		lanes:     make(map[string]*lane),
	}
}

// RegisterDecoder sets the params decoder for method. The first registration
// wins so that several facades sharing a client can each register their
// events without coordinating.
func (d *Dispatcher) RegisterDecoder(method string, decoder Decoder) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.decoders[method]; !ok {
		d.decoders[method] = decoder
	}
}

// AddListener registers handler for every event named method. Registration is
// independent of remote subscription state.
func (d *Dispatcher) AddListener(method string, handler Handler) ListenerID {
	return d.addListener(method, BrowsingContextID{}, handler)
}

// AddContextListener registers handler for events named method that concern
// the given browsing context.
func (d *Dispatcher) AddContextListener(method string, contextID BrowsingContextID, handler Handler) ListenerID {
	return d.addListener(method, contextID, handler)
}

func (d *Dispatcher) addListener(method string, contextID BrowsingContextID, handler Handler) ListenerID {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextListener++
	id := d.nextListener
	d.listeners[method] = append(d.listeners[method], listener{id: id, context: contextID, handler: handler})
	return id
}

// RemoveListener unregisters a handler. It reports whether one was removed.
func (d *Dispatcher) RemoveListener(id ListenerID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for method, ls := range d.listeners {
		for i, l := range ls {
			if l.id != id {
				continue
			}
			// Copy so snapshots held by running lanes stay intact.
			d.listeners[method] = slices.Delete(slices.Clone(ls), i, i+1)
			if len(d.listeners[method]) == 0 {
				delete(d.listeners, method)
			}
			return true
		}
	}
	return false
}

// ListenerCount returns how many handlers are registered for method.
func (d *Dispatcher) ListenerCount(method string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.listeners[method])
}

// enqueue is called by the reader with the complete event frame.
func (d *Dispatcher) enqueue(method string, frame []byte) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		metricEventsDropped.WithLabelValues("closed").Inc()
		return
	}
	l, ok := d.lanes[method]
	if !ok {
		l = newLane(d.maxQueue)
		d.lanes[method] = l
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			l.run(func(frame []byte) { d.deliver(method, frame) })
		}()
	}
	d.mu.Unlock()

	if !l.push(frame) {
		d.logger.Warn("event queue full, dropping event", "method", method, "limit", d.maxQueue)
		metricEventsDropped.WithLabelValues("queue_full").Inc()
	}
}

func (d *Dispatcher) deliver(method string, frame []byte) {
	var raw rawEvent
	if err := json.Unmarshal(frame, &raw); err != nil {
		d.logger.Warn("dropping undecodable event", "method", method, "error", err)
		metricEventsDropped.WithLabelValues("decode").Inc()
		return
	}

	d.mu.Lock()
	decoder := d.decoders[method]
	listeners := d.listeners[method]
	d.mu.Unlock()

	event := Event{Method: method, Raw: raw.Params, Context: extractContext(raw.Params)}
	if decoder == nil {
		event.Params = raw.Params
	} else {
		params, err := decoder(raw.Params)
		if err != nil {
			d.logger.Warn("dropping event with malformed params", "method", method, "error", err)
			metricEventsDropped.WithLabelValues("decode").Inc()
			return
		}
		event.Params = params
	}

	metricEvents.WithLabelValues(method).Inc()
	for _, l := range listeners {
		if !l.context.IsZero() && l.context != event.Context {
			continue
		}
		d.invoke(l, event)
	}
}

func (d *Dispatcher) invoke(l listener, event Event) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("event handler panicked",
				"method", event.Method,
				"listener", uint64(l.id),
				"panic", r,
				"stack", string(debug.Stack()))
		}
	}()
	l.handler(event)
}

// close stops accepting events and lets every lane drain what it already
// queued. It does not wait for handlers to finish.
func (d *Dispatcher) close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	for _, l := range d.lanes {
		l.stop()
	}
}

// Wait blocks until every lane has drained after the client closed.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// SubscribeParams are the params of session.subscribe.
type SubscribeParams struct {
	Events       []string            `json:"events"`
	Contexts     []BrowsingContextID `json:"contexts,omitempty"`
	UserContexts []UserContextID     `json:"userContexts,omitempty"`
}

// Validate checks that at least one non-empty event name is present and that
// contexts and user contexts are not combined.
func (p SubscribeParams) Validate() error {
	if len(p.Events) == 0 {
		return InvalidParams(MethodSessionSubscribe, "events", "must not be empty")
	}
	for _, e := range p.Events {
		if strings.TrimSpace(e) == "" {
			return InvalidParams(MethodSessionSubscribe, "events", "contains an empty name")
		}
	}
	if len(p.Contexts) > 0 && len(p.UserContexts) > 0 {
		return InvalidParams(MethodSessionSubscribe, "contexts", "cannot be combined with userContexts")
	}
	return nil
}

type subscribeResult struct {
	Subscription SubscriptionID `json:"subscription"`
}

// Subscribe issues session.subscribe and, on success, records the
// subscription. Remote ends predating subscription ids answer with an empty
// object, in which case the returned id is zero.
func (d *Dispatcher) Subscribe(ctx context.Context, params SubscribeParams) (SubscriptionID, error) {
	if err := params.Validate(); err != nil {
		return SubscriptionID{}, err
	}

	result, err := Send[subscribeResult](ctx, d.doer, NewCommand(MethodSessionSubscribe, params))
	if err != nil {
		return SubscriptionID{}, err
	}

	d.subMu.Lock()
	d.subscriptions = append(d.subscriptions, Subscription{
		ID:           result.Subscription,
		Events:       slices.Clone(params.Events),
		Contexts:     slices.Clone(params.Contexts),
		UserContexts: slices.Clone(params.UserContexts),
	})
	d.subMu.Unlock()
	return result.Subscription, nil
}

type unsubscribeByEvents struct {
	Events []string `json:"events"`
}

type unsubscribeByIDs struct {
	Subscriptions []SubscriptionID `json:"subscriptions"`
}

// Unsubscribe issues session.unsubscribe for event names and removes them
// from the local bookkeeping.
func (d *Dispatcher) Unsubscribe(ctx context.Context, events []string) error {
	if len(events) == 0 {
		return InvalidParams(MethodSessionUnsubscribe, "events", "must not be empty")
	}
	if err := Exec(ctx, d.doer, NewCommand(MethodSessionUnsubscribe, unsubscribeByEvents{Events: events})); err != nil {
		return err
	}

	d.subMu.Lock()
	defer d.subMu.Unlock()
	kept := d.subscriptions[:0]
	for _, s := range d.subscriptions {
		s.Events = slices.DeleteFunc(s.Events, func(e string) bool { return slices.Contains(events, e) })
		if len(s.Events) > 0 {
			kept = append(kept, s)
		}
	}
	d.subscriptions = kept
	return nil
}

// UnsubscribeByID issues session.unsubscribe for subscription ids.
func (d *Dispatcher) UnsubscribeByID(ctx context.Context, ids ...SubscriptionID) error {
	if len(ids) == 0 {
		return InvalidParams(MethodSessionUnsubscribe, "subscriptions", "must not be empty")
	}
	for _, id := range ids {
		if id.IsZero() {
			return InvalidParams(MethodSessionUnsubscribe, "subscriptions", "contains an empty id")
		}
	}
	if err := Exec(ctx, d.doer, NewCommand(MethodSessionUnsubscribe, unsubscribeByIDs{Subscriptions: ids})); err != nil {
		return err
	}

	d.subMu.Lock()
	defer d.subMu.Unlock()
	d.subscriptions = slices.DeleteFunc(d.subscriptions, func(s Subscription) bool {
		return slices.Contains(ids, s.ID)
	})
	return nil
}

// Subscriptions returns a copy of the active subscriptions.
func (d *Dispatcher) Subscriptions() []Subscription {
	d.subMu.Lock()
	defer d.subMu.Unlock()
	out := make([]Subscription, len(d.subscriptions))
	for i, s := range d.subscriptions {
		s.Events = slices.Clone(s.Events)
		s.Contexts = slices.Clone(s.Contexts)
		s.UserContexts = slices.Clone(s.UserContexts)
		out[i] = s
	}
	return out
}

// IsSubscribed reports whether event is covered by an active subscription,
// either by name or by its module ("network" covers "network.responseStarted").
func (d *Dispatcher) IsSubscribed(event string) bool {
	module, _, _ := strings.Cut(event, ".")
	d.subMu.Lock()
	defer d.subMu.Unlock()
	for _, s := range d.subscriptions {
		for _, e := range s.Events {
			if e == event || e == module {
				return true
			}
		}
	}
	return false
}

// On registers fn for method, receiving params already decoded as E.
// Events whose params are not an E are logged and skipped.
func On[E any](d *Dispatcher, method string, fn func(E)) ListenerID {
	return d.AddListener(method, typed(d, method, fn))
}

// OnContext is On restricted to one browsing context.
func OnContext[E any](d *Dispatcher, method string, contextID BrowsingContextID, fn func(E)) ListenerID {
	return d.AddContextListener(method, contextID, typed(d, method, fn))
}

func typed[E any](d *Dispatcher, method string, fn func(E)) Handler {
	return func(ev Event) {
		params, ok := ev.Params.(E)
		if !ok {
			d.logger.Warn("event params have unexpected type",
				"method", method,
				"type", fmt.Sprintf("%T", ev.Params))
			return
		}
		fn(params)
	}
}

// JSONDecoder decodes params with encoding/json into E.
func JSONDecoder[E any]() Decoder {
	return func(raw json.RawMessage) (any, error) {
		var e E
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, err
		}
		return e, nil
	}
}

// DecodeWith adapts a typed decode function to a Decoder.
func DecodeWith[E any](decode func(json.RawMessage) (E, error)) Decoder {
	return func(raw json.RawMessage) (any, error) {
		e, err := decode(raw)
		if err != nil {
			return nil, err
		}
		return e, nil
	}
}
