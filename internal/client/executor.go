package client

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"tradeterm/internal/util"
)

// RetryPolicy bounds how a failing call or reconnect sequence is retried.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 5
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = 500 * time.Millisecond
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 10 * time.Second
	}
	return p
}

func (p RetryPolicy) newBackOff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.BaseDelay
	bo.MaxInterval = p.MaxDelay
	bo.MaxElapsedTime = 0
	bo.Reset()
	return bo
}

// Executor runs request/response calls against the terminal with a uniform
// timeout and transparent retry. Only transient connection failures are
// retried; a definitive terminal answer, however unwelcome, is returned on
// the first attempt. When every attempt fails the caller gets one typed
// error describing the last failure, never a partial result.
type Executor struct {
	mgr     *Manager
	policy  RetryPolicy
	timeout time.Duration
	log     *slog.Logger

	// Limiter, when set, throttles outgoing calls.
	Limiter *util.RateLimiter
}

// NewExecutor creates an Executor bound to the given connection manager.
// timeout applies to each Do call that arrives without its own deadline.
func NewExecutor(mgr *Manager, policy RetryPolicy, timeout time.Duration, log *slog.Logger) *Executor {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Executor{
		mgr:     mgr,
		policy:  policy.withDefaults(),
		timeout: timeout,
		log:     log,
	}
}

// Do invokes method with params and unmarshals the response into result
// (which may be nil). A transient failure triggers a reconnect and a retry
// with increasing backoff, up to the policy's attempt bound.
func (e *Executor) Do(ctx context.Context, method string, params, result any) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}
	if e.Limiter != nil {
		if err := e.Limiter.Wait(ctx); err != nil {
			return &ConnectionError{Op: method, Err: err}
		}
	}

	bo := e.policy.newBackOff()
	var lastErr error
	for attempt := 1; ; attempt++ {
		t, gen := e.mgr.current()
		if t == nil {
			if lastErr != nil {
				return lastErr
			}
			return &ConnectionError{Op: method, Err: errNotConnected}
		}

		err := t.Call(ctx, method, params, result)
		if err == nil {
			return nil
		}

		typed := classifyCallError(method, err)
		var ce *ConnectionError
		if !errors.As(typed, &ce) {
			return typed
		}
		lastErr = typed

		if attempt >= e.policy.MaxAttempts {
			return lastErr
		}
		delay := bo.NextBackOff()
		if delay == backoff.Stop {
			return lastErr
		}
		e.log.Debug("retrying call after transient failure",
			"method", method, "attempt", attempt, "delay", delay, "error", err)
		select {
		case <-ctx.Done():
			return lastErr
		case <-time.After(delay):
		}
		if rerr := e.mgr.Reconnect(ctx, gen); rerr != nil {
			return lastErr
		}
	}
}
