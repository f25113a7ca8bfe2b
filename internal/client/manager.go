package client

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"tradeterm/internal/terminal"
)

// closeTimeout bounds how long teardown waits for the transport before
// force-terminating; shutdown must complete regardless.
const closeTimeout = 3 * time.Second

// aliveTimeout caps the health-check round trip.
const aliveTimeout = 3 * time.Second

var errNotConnected = errors.New("not connected")

// DialFunc establishes a transport to the terminal bridge. Tests substitute
// their own; production use dials a websocket.
type DialFunc func(ctx context.Context, endpoint string, log *slog.Logger) (terminal.Transport, error)

// ManagerOptions configures a Manager.
type ManagerOptions struct {
	Endpoint       string
	Credentials    Credentials
	ConnectTimeout time.Duration
	Reconnect      RetryPolicy
	Logger         *slog.Logger
	Dial           DialFunc
}

// Manager owns the Session and the transport: it opens, verifies, and
// re-establishes the connection, and tears it down in a fixed order on
// disconnect. At most one reconnect sequence is in flight at a time;
// concurrent callers observing a broken connection join the same attempt.
type Manager struct {
	log            *slog.Logger
	dial           DialFunc
	connectTimeout time.Duration
	reconnect      RetryPolicy

	mu        sync.Mutex
	sess      *Session
	transport terminal.Transport
	gen       uint64 // bumped on every successful (re)connect

	reconnecting  bool
	reconnectDone chan struct{}
	reconnectErr  error

	registry *Registry
}

type loginParams struct {
	Login    uint64 `json:"login"`
	Password string `json:"password"`
	Server   string `json:"server"`
}

// NewManager creates a Manager for the given endpoint and credentials. The
// connection is not established until Connect.
func NewManager(opts ManagerOptions) *Manager {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 15 * time.Second
	}
	if opts.Dial == nil {
		opts.Dial = func(ctx context.Context, endpoint string, log *slog.Logger) (terminal.Transport, error) {
			return terminal.Dial(ctx, endpoint, log)
		}
	}

	m := &Manager{
		log:            opts.Logger,
		dial:           opts.Dial,
		connectTimeout: opts.ConnectTimeout,
		reconnect:      opts.Reconnect.withDefaults(),
		sess: &Session{
			Endpoint:    opts.Endpoint,
			Credentials: opts.Credentials,
		},
	}
	m.registry = newRegistry(m, opts.Logger)
	return m
}

// Registry returns the stream-subscription registry bound to this
// connection.
func (m *Manager) Registry() *Registry {
	return m.registry
}

// Status returns a snapshot of the session.
func (m *Manager) Status() SessionInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	return SessionInfo{
		Endpoint: m.sess.Endpoint,
		Login:    m.sess.Credentials.Login,
		Server:   m.sess.Credentials.Server,
		Status:   m.sess.status,
		LastErr:  m.sess.lastErr,
	}
}

// Connect establishes the transport and authenticates within the manager's
// connect timeout (or the context deadline, whichever is sooner). On success
// the session transitions to Connected.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	switch m.sess.status {
	case StatusConnected:
		m.mu.Unlock()
		return nil
	case StatusConnecting, StatusReconnecting:
		m.mu.Unlock()
		return &ConnectionError{Op: "connect", Err: errors.New("connection attempt already in progress")}
	}
	m.sess.status = StatusConnecting
	m.mu.Unlock()

	t, err := m.dialAndLogin(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		m.sess.status = StatusDisconnected
		m.sess.lastErr = err
		return err
	}
	m.transport = t
	m.gen++
	m.sess.status = StatusConnected
	m.sess.lastErr = nil
	go m.registry.run(t.Events())

	m.log.Info("connected to terminal",
		"endpoint", m.sess.Endpoint, "login", m.sess.Credentials.Login)
	return nil
}

// Disconnect cancels every active stream subscription, tears the transport
// down, and transitions to Disconnected — in that order, so no event
// callback fires after teardown begins. Teardown errors are logged and
// swallowed: they must not block shutdown.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	t := m.transport
	if t == nil && m.sess.status == StatusDisconnected {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	m.registry.CancelAll()

	if t != nil {
		if err := t.Close(closeTimeout); err != nil {
			m.log.Warn("error during transport teardown", "error", err)
		}
	}

	m.mu.Lock()
	m.transport = nil
	m.sess.status = StatusDisconnected
	m.mu.Unlock()

	m.log.Info("disconnected from terminal", "endpoint", m.sess.Endpoint)
}

// IsAlive performs a lightweight round-trip to the terminal. It never
// returns an error: a timeout or failure simply reports not alive.
func (m *Manager) IsAlive(ctx context.Context) bool {
	t, _ := m.current()
	if t == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, aliveTimeout)
	defer cancel()
	return t.Call(ctx, terminal.MethodPing, nil, nil) == nil
}

// current returns the live transport (nil when disconnected) and the
// connection generation it belongs to. The generation lets callers that
// observed a failure tell whether someone else has already reconnected.
func (m *Manager) current() (terminal.Transport, uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transport, m.gen
}

// Reconnect re-establishes a broken connection. Only one reconnect sequence
// runs at a time: a caller arriving while one is in flight waits for its
// outcome instead of starting a second. observedGen is the generation the
// caller's failed call ran on; if the connection has already been replaced
// since, Reconnect returns immediately.
func (m *Manager) Reconnect(ctx context.Context, observedGen uint64) error {
	m.mu.Lock()
	if m.transport != nil && m.gen != observedGen && m.sess.status == StatusConnected {
		// Another caller already completed a reconnect.
		m.mu.Unlock()
		return nil
	}
	if m.reconnecting {
		done := m.reconnectDone
		m.mu.Unlock()
		select {
		case <-ctx.Done():
			return &ConnectionError{Op: "reconnect", Err: ctx.Err()}
		case <-done:
		}
		m.mu.Lock()
		err := m.reconnectErr
		m.mu.Unlock()
		return err
	}
	if m.sess.status == StatusDisconnected {
		m.mu.Unlock()
		return &ConnectionError{Op: "reconnect", Err: errNotConnected}
	}
	if m.sess.status == StatusFailed {
		// Failed is terminal until an explicit new Connect.
		err := m.sess.lastErr
		m.mu.Unlock()
		return &ConnectionError{Op: "reconnect", Err: err}
	}

	m.reconnecting = true
	m.reconnectDone = make(chan struct{})
	m.sess.status = StatusReconnecting
	old := m.transport
	m.transport = nil
	m.mu.Unlock()

	if old != nil {
		_ = old.Close(time.Second)
	}

	t, lastErr := m.runReconnectAttempts(ctx)

	m.mu.Lock()
	m.reconnecting = false
	done := m.reconnectDone
	if m.sess.status != StatusReconnecting {
		// A Disconnect raced the attempt; the session stays down and a
		// freshly dialed transport must not outlive it.
		m.reconnectErr = &ConnectionError{Op: "reconnect", Err: errNotConnected}
		err := m.reconnectErr
		m.mu.Unlock()
		close(done)
		if t != nil {
			_ = t.Close(time.Second)
		}
		return err
	}
	if t != nil {
		m.transport = t
		m.gen++
		m.sess.status = StatusConnected
		m.sess.lastErr = nil
		m.reconnectErr = nil
	} else {
		m.sess.status = StatusFailed
		m.sess.lastErr = lastErr
		m.reconnectErr = &ConnectionError{Op: "reconnect", Err: lastErr}
	}
	err := m.reconnectErr
	m.mu.Unlock()
	close(done)

	if t != nil {
		go m.registry.run(t.Events())
		m.registry.resubscribe(t)
		m.log.Info("reconnected to terminal", "endpoint", m.sess.Endpoint)
	}
	return err
}

// runReconnectAttempts dials and authenticates up to the policy's attempt
// bound with increasing backoff between attempts.
func (m *Manager) runReconnectAttempts(ctx context.Context) (terminal.Transport, error) {
	bo := m.reconnect.newBackOff()
	var lastErr error
	for attempt := 1; attempt <= m.reconnect.MaxAttempts; attempt++ {
		t, err := m.dialAndLogin(ctx)
		if err == nil {
			return t, nil
		}
		lastErr = err
		m.log.Warn("reconnect attempt failed",
			"attempt", attempt, "max_attempts", m.reconnect.MaxAttempts, "error", err)

		if attempt == m.reconnect.MaxAttempts {
			break
		}
		delay := bo.NextBackOff()
		if delay == backoff.Stop {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil, lastErr
}

// dialAndLogin establishes a transport and authenticates on it. The
// transport is closed again if authentication fails.
func (m *Manager) dialAndLogin(ctx context.Context) (terminal.Transport, error) {
	ctx, cancel := context.WithTimeout(ctx, m.connectTimeout)
	defer cancel()

	m.mu.Lock()
	endpoint := m.sess.Endpoint
	creds := m.sess.Credentials
	m.mu.Unlock()

	t, err := m.dial(ctx, endpoint, m.log)
	if err != nil {
		return nil, &ConnectionError{Op: "connect", Err: err}
	}

	params := loginParams{Login: creds.Login, Password: creds.Password, Server: creds.Server}
	if err := t.Call(ctx, terminal.MethodLogin, params, nil); err != nil {
		_ = t.Close(time.Second)
		return nil, classifyCallError("login", err)
	}
	return t, nil
}
