package trade

import (
	"context"
	"log/slog"
	"strings"

	"tradeterm/internal/domain"
)

// Filter selects positions and pending orders for a batch operation. Zero
// fields match everything: an empty symbol matches all symbols (comparison
// is case-insensitive), an empty side matches both sides, and an empty kind
// matches positions and pending orders alike.
type Filter struct {
	Symbol string
	Side   domain.Side
	Kind   domain.RecordKind
}

func (f Filter) matches(symbol string, side domain.Side) bool {
	if f.Symbol != "" && !strings.EqualFold(f.Symbol, symbol) {
		return false
	}
	if f.Side != "" && f.Side != side {
		return false
	}
	return true
}

// FailureRecord describes one item of a batch that could not be closed or
// cancelled.
type FailureRecord struct {
	Ticket uint64
	Symbol string
	Err    error
}

// BatchResult reports the outcome of a batch operation: how many items were
// closed or cancelled, and which ones failed. Individual failures never
// abort the batch.
type BatchResult struct {
	Closed   int
	Failures []FailureRecord
}

// BatchOperator closes or cancels the subset of open positions and pending
// orders matching a filter, continuing past per-item failures.
type BatchOperator struct {
	gw  *Gateway
	log *slog.Logger
}

func NewBatchOperator(gw *Gateway, log *slog.Logger) *BatchOperator {
	if log == nil {
		log = slog.Default()
	}
	return &BatchOperator{gw: gw, log: log}
}

// CloseMatching fetches the current positions and pending orders, applies
// the filter, and closes/cancels every match. A per-item failure is logged
// and recorded in the result; only a failure to enumerate the items at all
// returns an error.
func (b *BatchOperator) CloseMatching(ctx context.Context, f Filter) (BatchResult, error) {
	var result BatchResult

	if f.Kind == "" || f.Kind == domain.KindPosition {
		positions, err := b.gw.Positions(ctx)
		if err != nil {
			return result, err
		}
		for _, p := range positions {
			if !f.matches(p.Symbol, p.Side) {
				continue
			}
			if err := b.gw.Close(ctx, p.Ticket, 0); err != nil {
				b.log.Warn("batch close failed",
					"ticket", p.Ticket, "symbol", p.Symbol, "error", err)
				result.Failures = append(result.Failures, FailureRecord{Ticket: p.Ticket, Symbol: p.Symbol, Err: err})
				continue
			}
			result.Closed++
		}
	}

	if f.Kind == "" || f.Kind == domain.KindPendingOrder {
		orders, err := b.gw.PendingOrders(ctx)
		if err != nil {
			return result, err
		}
		for _, o := range orders {
			if !f.matches(o.Symbol, o.Side) {
				continue
			}
			if err := b.gw.Cancel(ctx, o.Ticket); err != nil {
				b.log.Warn("batch cancel failed",
					"ticket", o.Ticket, "symbol", o.Symbol, "error", err)
				result.Failures = append(result.Failures, FailureRecord{Ticket: o.Ticket, Symbol: o.Symbol, Err: err})
				continue
			}
			result.Closed++
		}
	}

	b.log.Info("batch operation finished",
		"closed", result.Closed, "failed", len(result.Failures),
		"symbol", f.Symbol, "kind", f.Kind)
	return result, nil
}
