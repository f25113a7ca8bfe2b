// Package terminaltest provides a scripted in-process terminal bridge for
// tests: a websocket server that answers unary calls from registered
// handlers and pushes stream events on demand.
package terminaltest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"tradeterm/internal/terminal"
)

// Handler answers a single method call. Returning a non-nil *WireError
// produces an error envelope; otherwise data is marshalled into the reply.
type Handler func(params json.RawMessage) (any, *terminal.WireError)

// Server is a fake terminal bridge. By default it accepts login, ping,
// subscribe, and unsubscribe; every other method answers
// ErrCodeUnknownMethod until a handler is registered.
type Server struct {
	httpSrv  *httptest.Server
	upgrader websocket.Upgrader

	mu       sync.Mutex
	handlers map[string]Handler
	calls    map[string]int
	conns    map[*websocket.Conn]*sync.Mutex
}

// NewServer starts a fake terminal bridge listening on a loopback address.
func NewServer() *Server {
	s := &Server{
		handlers: make(map[string]Handler),
		calls:    make(map[string]int),
		conns:    make(map[*websocket.Conn]*sync.Mutex),
	}
	s.handlers[terminal.MethodLogin] = func(json.RawMessage) (any, *terminal.WireError) {
		return map[string]bool{"ok": true}, nil
	}
	s.handlers[terminal.MethodPing] = func(json.RawMessage) (any, *terminal.WireError) {
		return map[string]bool{"ok": true}, nil
	}
	s.handlers[terminal.MethodSubscribe] = func(json.RawMessage) (any, *terminal.WireError) {
		return map[string]bool{"ok": true}, nil
	}
	s.handlers[terminal.MethodUnsubscribe] = func(json.RawMessage) (any, *terminal.WireError) {
		return map[string]bool{"ok": true}, nil
	}
	s.httpSrv = httptest.NewServer(http.HandlerFunc(s.serve))
	return s
}

// URL returns the websocket endpoint of the fake bridge.
func (s *Server) URL() string {
	return "ws" + strings.TrimPrefix(s.httpSrv.URL, "http")
}

// Handle registers (or replaces) the handler for a method.
func (s *Server) Handle(method string, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[method] = h
}

// Calls returns how many times a method has been invoked.
func (s *Server) Calls(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[method]
}

// PushEvent sends a stream event frame to every connected client.
func (s *Server) PushEvent(ev terminal.Event) {
	s.mu.Lock()
	conns := make(map[*websocket.Conn]*sync.Mutex, len(s.conns))
	for c, mu := range s.conns {
		conns[c] = mu
	}
	s.mu.Unlock()

	for c, mu := range conns {
		mu.Lock()
		_ = c.WriteJSON(ev)
		mu.Unlock()
	}
}

// DropConnections force-closes every active connection, simulating a
// transport failure. The server keeps listening, so clients may reconnect.
func (s *Server) DropConnections() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.conns {
		c.Close()
		delete(s.conns, c)
	}
}

// Close shuts the fake bridge down.
func (s *Server) Close() {
	s.DropConnections()
	s.httpSrv.Close()
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	writeMu := &sync.Mutex{}

	s.mu.Lock()
	s.conns[conn] = writeMu
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		conn.Close()
	}()

	for {
		var req terminal.Request
		if err := conn.ReadJSON(&req); err != nil {
			return
		}

		s.mu.Lock()
		s.calls[req.Method]++
		h := s.handlers[req.Method]
		s.mu.Unlock()

		resp := terminal.Response{ID: req.ID}
		if h == nil {
			resp.Error = &terminal.WireError{
				Code:    terminal.ErrCodeUnknownMethod,
				Message: "unknown method " + req.Method,
			}
		} else {
			data, werr := h(req.Params)
			if werr != nil {
				resp.Error = werr
			} else if data != nil {
				raw, err := json.Marshal(data)
				if err != nil {
					resp.Error = &terminal.WireError{
						Code:    terminal.ErrCodeInternal,
						Message: err.Error(),
					}
				} else {
					resp.Data = raw
				}
			}
		}

		writeMu.Lock()
		err := conn.WriteJSON(resp)
		writeMu.Unlock()
		if err != nil {
			return
		}
	}
}
