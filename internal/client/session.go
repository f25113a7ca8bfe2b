// Package client implements the resilient core of the tradeterm library:
// the connection lifecycle manager, the retrying request executor, and the
// stream-subscription registry. Everything that reaches the remote terminal
// goes through this package.
package client

// Status is the connection state of a Session.
type Status int

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusConnected
	StatusReconnecting
	StatusFailed
)

// String implements fmt.Stringer.
func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusReconnecting:
		return "reconnecting"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Credentials identify the trading account on the terminal's broker server.
type Credentials struct {
	Login    uint64
	Password string
	Server   string
}

// Session holds the connection state and the endpoint/credentials needed to
// (re)establish it. It is owned by the Manager: all mutation happens under
// the Manager's lock, so status transitions are strictly sequential.
type Session struct {
	Endpoint    string
	Credentials Credentials

	status  Status
	lastErr error
}

// SessionInfo is a point-in-time snapshot of a Session, safe to hand to
// callers.
type SessionInfo struct {
	Endpoint string
	Login    uint64
	Server   string
	Status   Status
	LastErr  error
}
