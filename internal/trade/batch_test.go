package trade

import (
	"context"
	"errors"
	"testing"

	"tradeterm/internal/domain"
)

func threePositions() []domain.PositionRecord {
	return []domain.PositionRecord{
		{Ticket: 1, Symbol: "EURUSD", Side: domain.SideBuy, Volume: 0.1},
		{Ticket: 2, Symbol: "EURUSD", Side: domain.SideBuy, Volume: 0.2},
		{Ticket: 3, Symbol: "EURUSD", Side: domain.SideSell, Volume: 0.3},
	}
}

func TestCloseMatchingPartialFailure(t *testing.T) {
	ft := newFakeTerminal()
	ft.positions = threePositions()
	ft.closeErrs[2] = errors.New("position locked")
	b := NewBatchOperator(NewGateway(ft, nil, testLogger()), testLogger())

	result, err := b.CloseMatching(context.Background(), Filter{Symbol: "EURUSD", Kind: domain.KindPosition})
	if err != nil {
		t.Fatalf("CloseMatching() error = %v, want nil (per-item failures never abort)", err)
	}
	if result.Closed != 2 {
		t.Errorf("Closed = %d, want 2", result.Closed)
	}
	if len(result.Failures) != 1 {
		t.Fatalf("Failures = %d, want 1", len(result.Failures))
	}
	if result.Failures[0].Ticket != 2 {
		t.Errorf("failed ticket = %d, want 2", result.Failures[0].Ticket)
	}
}

func TestCloseMatchingFilters(t *testing.T) {
	tests := []struct {
		name       string
		filter     Filter
		wantClosed int
	}{
		{"symbol case-insensitive", Filter{Symbol: "eurusd", Kind: domain.KindPosition}, 3},
		{"side", Filter{Side: domain.SideSell, Kind: domain.KindPosition}, 1},
		{"symbol and side", Filter{Symbol: "EURUSD", Side: domain.SideBuy, Kind: domain.KindPosition}, 2},
		{"no match", Filter{Symbol: "USDJPY", Kind: domain.KindPosition}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ft := newFakeTerminal()
			ft.positions = threePositions()
			b := NewBatchOperator(NewGateway(ft, nil, testLogger()), testLogger())

			result, err := b.CloseMatching(context.Background(), tt.filter)
			if err != nil {
				t.Fatalf("CloseMatching() error = %v", err)
			}
			if result.Closed != tt.wantClosed {
				t.Errorf("Closed = %d, want %d", result.Closed, tt.wantClosed)
			}
		})
	}
}

func TestCloseMatchingCancelsPendingOrders(t *testing.T) {
	ft := newFakeTerminal()
	ft.positions = threePositions()
	ft.orders = []domain.PendingOrderRecord{
		{Ticket: 10, Symbol: "EURUSD", Side: domain.SideBuy, Type: domain.OrderTypeLimit, Volume: 0.1},
		{Ticket: 11, Symbol: "GBPUSD", Side: domain.SideSell, Type: domain.OrderTypeStop, Volume: 0.2},
	}
	b := NewBatchOperator(NewGateway(ft, nil, testLogger()), testLogger())

	result, err := b.CloseMatching(context.Background(), Filter{Kind: domain.KindPendingOrder})
	if err != nil {
		t.Fatalf("CloseMatching() error = %v", err)
	}
	if result.Closed != 2 {
		t.Errorf("Closed = %d, want 2 (only pending orders)", result.Closed)
	}

	// An empty kind sweeps both positions and pending orders.
	ft2 := newFakeTerminal()
	ft2.positions = threePositions()
	ft2.orders = ft.orders
	b2 := NewBatchOperator(NewGateway(ft2, nil, testLogger()), testLogger())
	result, err = b2.CloseMatching(context.Background(), Filter{})
	if err != nil {
		t.Fatalf("CloseMatching() error = %v", err)
	}
	if result.Closed != 5 {
		t.Errorf("Closed = %d, want 5 (3 positions + 2 pending)", result.Closed)
	}
}
