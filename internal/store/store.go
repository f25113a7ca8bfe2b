// Package store defines storage interfaces for persisting trade activity
// and market data: an order journal recording every gateway action and a
// tick store for recorded price streams.
package store

import (
	"context"
	"time"

	"tradeterm/internal/domain"
)

// OrderEntry is one journaled order action together with the terminal's
// verdict on it.
type OrderEntry struct {
	Ticket     uint64
	Symbol     string
	Side       domain.Side
	Type       domain.OrderType
	Action     string // "submit", "modify", "close", "cancel"
	Volume     float64
	Price      float64
	StopLoss   float64
	TakeProfit float64
	Retcode    int
	Comment    string
	Time       time.Time
}

// Journal persists an append-only record of order actions.
type Journal interface {
	// Record appends one order action.
	Record(ctx context.Context, e OrderEntry) error

	// Entries returns the most recent actions, newest first, up to limit.
	// An empty symbol matches all symbols.
	Entries(ctx context.Context, symbol string, limit int) ([]OrderEntry, error)
}

// TickStore persists and retrieves recorded tick data.
type TickStore interface {
	// WriteTicks persists a batch of ticks.
	WriteTicks(ctx context.Context, ticks []domain.Tick) error

	// ReadTicks returns ticks for the given symbol within [start, end].
	ReadTicks(ctx context.Context, symbol string, start, end time.Time) ([]domain.Tick, error)

	// ListSymbols returns all distinct symbols with recorded ticks.
	ListSymbols(ctx context.Context) ([]string, error)
}
