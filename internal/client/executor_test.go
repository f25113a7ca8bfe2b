package client

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"tradeterm/internal/terminal"
	"tradeterm/internal/terminal/terminaltest"
)

func newTestExecutor(t *testing.T, srv *terminaltest.Server) *Executor {
	t.Helper()
	m := newTestManager(t, srv)
	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	policy := RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond}
	return NewExecutor(m, policy, 5*time.Second, testLogger())
}

func TestExecutorDo(t *testing.T) {
	srv := terminaltest.NewServer()
	defer srv.Close()
	srv.Handle(terminal.MethodAccountInfo, func(json.RawMessage) (any, *terminal.WireError) {
		return map[string]any{"login": 1001, "balance": 2500.5}, nil
	})

	e := newTestExecutor(t, srv)
	var out struct {
		Login   uint64  `json:"login"`
		Balance float64 `json:"balance"`
	}
	if err := e.Do(context.Background(), terminal.MethodAccountInfo, nil, &out); err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if out.Login != 1001 || out.Balance != 2500.5 {
		t.Errorf("result = %+v, want login 1001 balance 2500.5", out)
	}
}

func TestExecutorRetriesTransient(t *testing.T) {
	srv := terminaltest.NewServer()
	defer srv.Close()
	var attempts atomic.Int32
	srv.Handle(terminal.MethodPositionsGet, func(json.RawMessage) (any, *terminal.WireError) {
		if attempts.Add(1) < 3 {
			return nil, &terminal.WireError{Code: terminal.ErrCodeBusy, Message: "busy"}
		}
		return []any{}, nil
	})

	e := newTestExecutor(t, srv)
	if err := e.Do(context.Background(), terminal.MethodPositionsGet, nil, nil); err != nil {
		t.Fatalf("Do() error = %v, want success after retries", err)
	}
	if got := attempts.Load(); got != 3 {
		t.Errorf("attempts = %d, want 3", got)
	}
}

func TestExecutorNoRetryOnProtocolError(t *testing.T) {
	srv := terminaltest.NewServer()
	defer srv.Close()
	srv.Handle(terminal.MethodOrderSend, func(json.RawMessage) (any, *terminal.WireError) {
		return nil, &terminal.WireError{Code: terminal.ErrCodeInvalidParams, Message: "missing volume"}
	})

	e := newTestExecutor(t, srv)
	err := e.Do(context.Background(), terminal.MethodOrderSend, nil, nil)
	var perr *ProtocolError
	if !errors.As(err, &perr) {
		t.Fatalf("Do() error = %v, want *ProtocolError", err)
	}
	if got := srv.Calls(terminal.MethodOrderSend); got != 1 {
		t.Errorf("order_send calls = %d, want 1 (no retry)", got)
	}
}

func TestExecutorUnknownSymbolIsValidationError(t *testing.T) {
	srv := terminaltest.NewServer()
	defer srv.Close()
	srv.Handle(terminal.MethodSymbolInfo, func(json.RawMessage) (any, *terminal.WireError) {
		return nil, &terminal.WireError{Code: terminal.ErrCodeUnknownSymbol, Message: "unknown symbol NOPE"}
	})

	e := newTestExecutor(t, srv)
	err := e.Do(context.Background(), terminal.MethodSymbolInfo, nil, nil)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Do() error = %v, want *ValidationError", err)
	}
	if got := srv.Calls(terminal.MethodSymbolInfo); got != 1 {
		t.Errorf("symbol_info calls = %d, want 1 (no retry)", got)
	}
}

func TestExecutorExhaustsAttempts(t *testing.T) {
	srv := terminaltest.NewServer()
	defer srv.Close()
	srv.Handle(terminal.MethodOrdersGet, func(json.RawMessage) (any, *terminal.WireError) {
		return nil, &terminal.WireError{Code: terminal.ErrCodeNoConnection, Message: "broker link down"}
	})

	e := newTestExecutor(t, srv)
	err := e.Do(context.Background(), terminal.MethodOrdersGet, nil, nil)
	var cerr *ConnectionError
	if !errors.As(err, &cerr) {
		t.Fatalf("Do() error = %v, want *ConnectionError", err)
	}
	if got := srv.Calls(terminal.MethodOrdersGet); got != 3 {
		t.Errorf("orders_get calls = %d, want 3 (attempt bound)", got)
	}
}

func TestExecutorNotConnected(t *testing.T) {
	srv := terminaltest.NewServer()
	defer srv.Close()

	m := newTestManager(t, srv) // never connected
	e := NewExecutor(m, RetryPolicy{}, time.Second, testLogger())
	err := e.Do(context.Background(), terminal.MethodPing, nil, nil)
	var cerr *ConnectionError
	if !errors.As(err, &cerr) {
		t.Fatalf("Do() error = %v, want *ConnectionError", err)
	}
}

func TestExecutorDefaultTimeout(t *testing.T) {
	srv := terminaltest.NewServer()
	defer srv.Close()
	block := make(chan struct{})
	defer close(block)
	srv.Handle(terminal.MethodCopyTicks, func(json.RawMessage) (any, *terminal.WireError) {
		<-block
		return nil, nil
	})

	m := newTestManager(t, srv)
	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	e := NewExecutor(m, RetryPolicy{MaxAttempts: 1}, 100*time.Millisecond, testLogger())

	start := time.Now()
	err := e.Do(context.Background(), terminal.MethodCopyTicks, nil, nil)
	if err == nil {
		t.Fatal("Do() error = nil, want timeout")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Do() took %v, want bounded by default timeout", elapsed)
	}
}
