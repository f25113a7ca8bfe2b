// Package market provides instrument metadata access, price and volume
// normalization against broker constraints, and risk-based position sizing.
package market

import (
	"context"
	"time"

	"tradeterm/internal/domain"
	"tradeterm/internal/terminal"
)

// Caller executes unary terminal calls. *client.Executor satisfies it.
type Caller interface {
	Do(ctx context.Context, method string, params, result any) error
}

// Catalog reads instrument metadata and account state from the terminal.
// Metadata is fetched fresh on every call, never cached: broker constraints
// can change between calls and a stale step or digit count corrupts every
// downstream calculation.
type Catalog struct {
	caller Caller
}

func NewCatalog(c Caller) *Catalog {
	return &Catalog{caller: c}
}

type symbolParams struct {
	Symbol string `json:"symbol"`
}

type ticksParams struct {
	Symbol string    `json:"symbol"`
	From   time.Time `json:"from"`
	To     time.Time `json:"to"`
}

// SymbolInfo fetches the current trading constraints for symbol.
func (c *Catalog) SymbolInfo(ctx context.Context, symbol string) (domain.InstrumentMetadata, error) {
	var meta domain.InstrumentMetadata
	err := c.caller.Do(ctx, terminal.MethodSymbolInfo, symbolParams{Symbol: symbol}, &meta)
	return meta, err
}

// Select makes symbol visible in the terminal's market watch. Quotes and
// trade operations on a symbol require it to be selected first.
func (c *Catalog) Select(ctx context.Context, symbol string) error {
	return c.caller.Do(ctx, terminal.MethodSymbolSelect, symbolParams{Symbol: symbol}, nil)
}

// Account fetches a snapshot of the trading account.
func (c *Catalog) Account(ctx context.Context) (domain.AccountInfo, error) {
	var info domain.AccountInfo
	err := c.caller.Do(ctx, terminal.MethodAccountInfo, nil, &info)
	return info, err
}

// TicksRange fetches historical ticks for symbol in [from, to).
func (c *Catalog) TicksRange(ctx context.Context, symbol string, from, to time.Time) ([]domain.Tick, error) {
	var ticks []domain.Tick
	err := c.caller.Do(ctx, terminal.MethodCopyTicks, ticksParams{Symbol: symbol, From: from, To: to}, &ticks)
	return ticks, err
}
