package client

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"tradeterm/internal/terminal"
)

// unsubscribeTimeout bounds the best-effort remote unsubscribe issued when a
// subscription is cancelled.
const unsubscribeTimeout = 2 * time.Second

// StreamSpec identifies a push stream to subscribe to.
type StreamSpec struct {
	Kind    string   `json:"kind"`
	Symbols []string `json:"symbols,omitempty"`
}

// EventHandler consumes events for one subscription. Handlers run on a
// dedicated goroutine per subscription: a slow handler delays only its own
// stream, never the connection read loop or other subscriptions.
type EventHandler func(ev terminal.Event)

type subscribeParams struct {
	ID      string   `json:"id"`
	Kind    string   `json:"kind"`
	Symbols []string `json:"symbols,omitempty"`
}

type unsubscribeParams struct {
	ID string `json:"id"`
}

// Subscription is a live stream subscription. Cancel is safe to call any
// number of times from any goroutine; after the first call no further
// events are queued, though one already-dequeued event may still reach the
// handler.
type Subscription struct {
	id        string
	spec      StreamSpec
	handler   EventHandler
	reg       *Registry
	queue     *eventQueue
	cancelled atomic.Bool
}

// ID returns the subscription's unique identifier. Incoming events carry it
// in their stream field.
func (s *Subscription) ID() string { return s.id }

// Spec returns the stream specification this subscription was created with.
func (s *Subscription) Spec() StreamSpec { return s.spec }

// Cancelled reports whether Cancel has been called.
func (s *Subscription) Cancelled() bool { return s.cancelled.Load() }

// Cancel detaches the subscription. The first call stops event delivery and
// notifies the terminal best-effort; subsequent calls are no-ops.
func (s *Subscription) Cancel() {
	if !s.cancelled.CompareAndSwap(false, true) {
		return
	}
	s.reg.remove(s.id)
	s.queue.close()
	s.reg.unsubscribeRemote(s.id)
}

// deliver drains the subscription's queue into the handler until the queue
// is closed.
func (s *Subscription) deliver() {
	for {
		ev, ok := s.queue.pop()
		if !ok {
			return
		}
		s.handler(ev)
	}
}

// Registry tracks active stream subscriptions for a connection and routes
// incoming events to them. It survives reconnects: subscriptions stay
// registered and are re-established on the new transport.
type Registry struct {
	mgr *Manager
	log *slog.Logger

	mu   sync.Mutex
	subs map[string]*Subscription
}

func newRegistry(mgr *Manager, log *slog.Logger) *Registry {
	return &Registry{
		mgr:  mgr,
		log:  log,
		subs: make(map[string]*Subscription),
	}
}

// Subscribe registers a handler for the given stream and tells the terminal
// to start pushing it. Events are delivered in arrival order on a goroutine
// owned by the returned Subscription.
func (r *Registry) Subscribe(ctx context.Context, spec StreamSpec, handler EventHandler) (*Subscription, error) {
	t, _ := r.mgr.current()
	if t == nil {
		return nil, &ConnectionError{Op: "subscribe", Err: errNotConnected}
	}

	id := uuid.NewString()
	params := subscribeParams{ID: id, Kind: spec.Kind, Symbols: spec.Symbols}
	if err := t.Call(ctx, terminal.MethodSubscribe, params, nil); err != nil {
		return nil, classifyCallError("subscribe", err)
	}

	s := &Subscription{
		id:      id,
		spec:    spec,
		handler: handler,
		reg:     r,
		queue:   newEventQueue(),
	}
	r.mu.Lock()
	r.subs[id] = s
	r.mu.Unlock()
	go s.deliver()

	r.log.Debug("stream subscribed", "id", id, "kind", spec.Kind, "symbols", spec.Symbols)
	return s, nil
}

// Active returns the number of live subscriptions.
func (r *Registry) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}

// CancelAll cancels every active subscription. Safe to call repeatedly.
func (r *Registry) CancelAll() {
	r.mu.Lock()
	snapshot := make([]*Subscription, 0, len(r.subs))
	for _, s := range r.subs {
		snapshot = append(snapshot, s)
	}
	r.mu.Unlock()

	for _, s := range snapshot {
		s.Cancel()
	}
}

// run routes events from one transport's event channel until it closes.
// Events for unknown or cancelled streams are dropped.
func (r *Registry) run(events <-chan terminal.Event) {
	for ev := range events {
		r.mu.Lock()
		s := r.subs[ev.Stream]
		r.mu.Unlock()
		if s == nil || s.Cancelled() {
			continue
		}
		s.queue.push(ev)
	}
}

func (r *Registry) remove(id string) {
	r.mu.Lock()
	delete(r.subs, id)
	r.mu.Unlock()
}

// unsubscribeRemote tells the terminal to stop pushing a stream. Failures
// are logged and ignored: the local subscription is already detached.
func (r *Registry) unsubscribeRemote(id string) {
	t, _ := r.mgr.current()
	if t == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), unsubscribeTimeout)
	defer cancel()
	if err := t.Call(ctx, terminal.MethodUnsubscribe, unsubscribeParams{ID: id}, nil); err != nil {
		r.log.Debug("unsubscribe failed", "id", id, "error", err)
	}
}

// resubscribe re-establishes every active subscription on a fresh transport
// after a reconnect, keeping the original subscription IDs so handlers stay
// attached. Failures are logged; the subscription stays registered in case
// a later reconnect succeeds.
func (r *Registry) resubscribe(t terminal.Transport) {
	r.mu.Lock()
	snapshot := make([]*Subscription, 0, len(r.subs))
	for _, s := range r.subs {
		snapshot = append(snapshot, s)
	}
	r.mu.Unlock()

	for _, s := range snapshot {
		if s.Cancelled() {
			continue
		}
		params := subscribeParams{ID: s.id, Kind: s.spec.Kind, Symbols: s.spec.Symbols}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := t.Call(ctx, terminal.MethodSubscribe, params, nil)
		cancel()
		if err != nil {
			r.log.Warn("resubscribe failed", "id", s.id, "kind", s.spec.Kind, "error", err)
			continue
		}
		r.log.Debug("stream resubscribed", "id", s.id, "kind", s.spec.Kind)
	}
}

// eventQueue is an unbounded FIFO of events. The read loop pushes without
// ever blocking; the subscription's delivery goroutine pops, blocking while
// the queue is empty.
type eventQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []terminal.Event
	closed bool
}

func newEventQueue() *eventQueue {
	q := &eventQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *eventQueue) push(ev terminal.Event) {
	q.mu.Lock()
	if !q.closed {
		q.items = append(q.items, ev)
		q.cond.Signal()
	}
	q.mu.Unlock()
}

// pop blocks until an event is available or the queue is closed. It drains
// remaining items before reporting closure.
func (q *eventQueue) pop() (terminal.Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.items) > 0 {
		ev := q.items[0]
		q.items = q.items[1:]
		return ev, true
	}
	return terminal.Event{}, false
}

func (q *eventQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.cond.Broadcast()
	q.mu.Unlock()
}

// DecodePayload unmarshals an event payload into v.
func DecodePayload(ev terminal.Event, v any) error {
	if len(ev.Payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(ev.Payload, v); err != nil {
		return &ProtocolError{Code: terminal.ErrCodeInternal, Message: "malformed event payload: " + err.Error()}
	}
	return nil
}
