package terminal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// ErrClosed is returned by calls issued on a transport whose connection has
// been torn down.
var ErrClosed = errors.New("terminal: transport closed")

// Transport is a single established connection to the terminal bridge. It
// multiplexes correlated unary calls and delivers server-push events on a
// single ordered feed. A Transport is not reconnectable: when the connection
// drops, the owner dials a new one.
type Transport interface {
	// Call sends a unary request and decodes the reply data into result
	// (when result is non-nil). It returns a *WireError when the terminal
	// answered with an error envelope, or a transport-level error when the
	// connection failed.
	Call(ctx context.Context, method string, params, result any) error

	// Events returns the server-push feed. The channel preserves the order
	// in which frames arrived and is closed when the connection ends.
	Events() <-chan Event

	// Close tears the connection down, failing all in-flight calls. It
	// waits at most the given timeout for the reader to drain.
	Close(timeout time.Duration) error
}

// Compile-time interface check.
var _ Transport = (*WSTransport)(nil)

// WSTransport implements Transport over a websocket connection.
type WSTransport struct {
	conn *websocket.Conn
	log  *slog.Logger

	writeMu sync.Mutex // guards conn writes

	pendingMu sync.Mutex
	pending   map[string]chan Response

	events    chan Event
	closed    chan struct{} // closed when the read loop exits
	closeOnce sync.Once
}

// Dial establishes a websocket connection to the terminal bridge endpoint
// and starts the read loop. The returned transport is ready for calls but
// not yet authenticated; the caller performs the login call.
func Dial(ctx context.Context, endpoint string, log *slog.Logger) (*WSTransport, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dialing %s (status %d): %w", endpoint, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dialing %s: %w", endpoint, err)
	}

	t := &WSTransport{
		conn:    conn,
		log:     log,
		pending: make(map[string]chan Response),
		events:  make(chan Event, 64),
		closed:  make(chan struct{}),
	}
	go t.readLoop()
	return t, nil
}

// Call implements Transport.
func (t *WSTransport) Call(ctx context.Context, method string, params, result any) error {
	req := Request{
		ID:     uuid.NewString(),
		Method: method,
	}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("encoding %s params: %w", method, err)
		}
		req.Params = raw
	}

	ch := make(chan Response, 1)
	t.pendingMu.Lock()
	t.pending[req.ID] = ch
	t.pendingMu.Unlock()
	defer func() {
		t.pendingMu.Lock()
		delete(t.pending, req.ID)
		t.pendingMu.Unlock()
	}()

	t.writeMu.Lock()
	err := t.conn.WriteJSON(req)
	t.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("sending %s: %w", method, err)
	}

	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", method, ctx.Err())
	case <-t.closed:
		return fmt.Errorf("%s: %w", method, ErrClosed)
	case resp := <-ch:
		if resp.Error != nil {
			return fmt.Errorf("%s: %w", method, resp.Error)
		}
		if result != nil {
			if err := json.Unmarshal(resp.Data, result); err != nil {
				return fmt.Errorf("decoding %s reply: %w", method, err)
			}
		}
		return nil
	}
}

// Events implements Transport.
func (t *WSTransport) Events() <-chan Event {
	return t.events
}

// Close implements Transport. It is safe to call more than once.
func (t *WSTransport) Close(timeout time.Duration) error {
	var err error
	t.closeOnce.Do(func() {
		t.writeMu.Lock()
		// Best-effort close handshake; the connection is torn down either way.
		_ = t.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		t.writeMu.Unlock()

		err = t.conn.Close()

		select {
		case <-t.closed:
		case <-time.After(timeout):
			err = fmt.Errorf("terminal: close timed out after %v", timeout)
		}
	})
	return err
}

// readLoop reads frames until the connection fails, routing replies to
// pending calls and events to the feed. On exit it closes the event feed and
// releases every waiting caller.
func (t *WSTransport) readLoop() {
	defer func() {
		close(t.closed)
		close(t.events)
	}()

	for {
		_, data, err := t.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				t.log.Debug("terminal read loop ended", "error", err)
			}
			return
		}

		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			t.log.Warn("discarding malformed terminal frame", "error", err)
			continue
		}

		switch {
		case f.ID != "":
			t.pendingMu.Lock()
			ch, ok := t.pending[f.ID]
			t.pendingMu.Unlock()
			if !ok {
				// Reply for a caller that already gave up (timeout).
				continue
			}
			ch <- Response{ID: f.ID, Data: f.Data, Error: f.Error}

		case f.Stream != "":
			t.events <- Event{Stream: f.Stream, Kind: f.Kind, Seq: f.Seq, Payload: f.Payload}

		default:
			t.log.Warn("discarding terminal frame with neither id nor stream")
		}
	}
}
