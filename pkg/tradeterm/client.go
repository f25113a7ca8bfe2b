// Package tradeterm is the caller-facing surface of the trading-terminal
// client. Strategy and orchestrator code uses only this package: connection
// lifecycle, tick streams, normalization and risk sizing, order submission,
// and batch position operations.
package tradeterm

import (
	"context"
	"log/slog"
	"time"

	"tradeterm/internal/client"
	"tradeterm/internal/config"
	"tradeterm/internal/domain"
	"tradeterm/internal/market"
	"tradeterm/internal/store"
	"tradeterm/internal/terminal"
	"tradeterm/internal/trade"
	"tradeterm/internal/util"
)

// Re-exported domain types so callers don't import internal packages.
type (
	Tick               = domain.Tick
	AccountInfo        = domain.AccountInfo
	InstrumentMetadata = domain.InstrumentMetadata
	PositionRecord     = domain.PositionRecord
	PendingOrderRecord = domain.PendingOrderRecord
	NormalizedOrder    = domain.NormalizedOrder
	RiskRequest        = domain.RiskRequest
	HistoryOrder       = domain.HistoryOrder
	HistoryDeal        = domain.HistoryDeal
	Side               = domain.Side
	OrderType          = domain.OrderType
	RecordKind         = domain.RecordKind

	Filter       = trade.Filter
	BatchResult  = trade.BatchResult
	Subscription = client.Subscription
	SessionInfo  = client.SessionInfo
)

const (
	SideBuy  = domain.SideBuy
	SideSell = domain.SideSell

	OrderTypeMarket = domain.OrderTypeMarket
	OrderTypeLimit  = domain.OrderTypeLimit
	OrderTypeStop   = domain.OrderTypeStop

	KindPosition     = domain.KindPosition
	KindPendingOrder = domain.KindPendingOrder
)

// Client ties the connection manager, executor, normalization, and order
// gateway together behind one handle. All methods are safe for concurrent
// use.
type Client struct {
	mgr        *client.Manager
	exec       *client.Executor
	catalog    *market.Catalog
	normalizer *market.Normalizer
	sizer      *market.Sizer
	gateway    *trade.Gateway
	batch      *trade.BatchOperator
	log        *slog.Logger

	defaultSymbol string
}

// Option tweaks client construction.
type Option func(*options)

type options struct {
	journal store.Journal
	dial    client.DialFunc
}

// WithJournal enables order journaling to the given store.
func WithJournal(j store.Journal) Option {
	return func(o *options) { o.journal = j }
}

// WithDialFunc substitutes the transport dialer. Intended for tests.
func WithDialFunc(d client.DialFunc) Option {
	return func(o *options) { o.dial = d }
}

// New builds a Client from configuration. The connection is not opened
// until Connect.
func New(cfg *config.Config, log *slog.Logger, opts ...Option) *Client {
	if log == nil {
		log = slog.Default()
	}
	var o options
	for _, fn := range opts {
		fn(&o)
	}

	mgr := client.NewManager(client.ManagerOptions{
		Endpoint: cfg.Terminal.Endpoint,
		Credentials: client.Credentials{
			Login:    cfg.Terminal.Login,
			Password: cfg.Terminal.Password,
			Server:   cfg.Terminal.Server,
		},
		ConnectTimeout: cfg.Defaults.ConnectTimeout.Duration,
		Reconnect: client.RetryPolicy{
			MaxAttempts: cfg.Retry.MaxAttempts,
			BaseDelay:   cfg.Retry.BaseDelay.Duration,
			MaxDelay:    cfg.Retry.MaxDelay.Duration,
		},
		Logger: log,
		Dial:   o.dial,
	})
	exec := client.NewExecutor(mgr, client.RetryPolicy{
		MaxAttempts: cfg.Retry.MaxAttempts,
		BaseDelay:   cfg.Retry.BaseDelay.Duration,
		MaxDelay:    cfg.Retry.MaxDelay.Duration,
	}, cfg.Defaults.CallTimeout.Duration, log)
	if cfg.Retry.RateLimitPerMinute > 0 {
		exec.Limiter = util.NewRateLimiter(cfg.Retry.RateLimitPerMinute)
	}

	catalog := market.NewCatalog(exec)
	gateway := trade.NewGateway(exec, o.journal, log)
	return &Client{
		mgr:           mgr,
		exec:          exec,
		catalog:       catalog,
		normalizer:    market.NewNormalizer(catalog),
		sizer:         market.NewSizer(catalog),
		gateway:       gateway,
		batch:         trade.NewBatchOperator(gateway, log),
		log:           log,
		defaultSymbol: cfg.Defaults.Symbol,
	}
}

// ---------------------------------------------------------------------------
// Connection lifecycle
// ---------------------------------------------------------------------------

// Connect establishes and authenticates the terminal connection.
func (c *Client) Connect(ctx context.Context) error {
	return c.mgr.Connect(ctx)
}

// Disconnect cancels all subscriptions and tears down the connection.
// It never returns an error: teardown failures are logged and swallowed.
func (c *Client) Disconnect() {
	c.mgr.Disconnect()
}

// IsAlive reports whether the terminal answers a lightweight round-trip.
func (c *Client) IsAlive(ctx context.Context) bool {
	return c.mgr.IsAlive(ctx)
}

// Status returns a snapshot of the connection state.
func (c *Client) Status() SessionInfo {
	return c.mgr.Status()
}

// ---------------------------------------------------------------------------
// Streams
// ---------------------------------------------------------------------------

// SubscribeTicks streams live ticks for the given symbols to handler.
// Handler calls are ordered per subscription and run on a dedicated
// goroutine; cancel via the returned subscription or CancelAll.
func (c *Client) SubscribeTicks(ctx context.Context, symbols []string, handler func(Tick)) (*Subscription, error) {
	if len(symbols) == 0 && c.defaultSymbol != "" {
		symbols = []string{c.defaultSymbol}
	}
	return c.mgr.Registry().Subscribe(ctx,
		client.StreamSpec{Kind: "tick", Symbols: symbols},
		func(ev terminal.Event) {
			var tk Tick
			if err := client.DecodePayload(ev, &tk); err != nil {
				c.log.Warn("dropping malformed tick event", "stream", ev.Stream, "seq", ev.Seq, "error", err)
				return
			}
			handler(tk)
		})
}

// CancelAll cancels every active stream subscription.
func (c *Client) CancelAll() {
	c.mgr.Registry().CancelAll()
}

// ---------------------------------------------------------------------------
// Market data and normalization
// ---------------------------------------------------------------------------

// Account fetches a snapshot of the trading account.
func (c *Client) Account(ctx context.Context) (AccountInfo, error) {
	return c.catalog.Account(ctx)
}

// SymbolInfo fetches current trading constraints for symbol.
func (c *Client) SymbolInfo(ctx context.Context, symbol string) (InstrumentMetadata, error) {
	return c.catalog.SymbolInfo(ctx, c.symbolOrDefault(symbol))
}

// TicksRange fetches historical ticks for symbol in [from, to).
func (c *Client) TicksRange(ctx context.Context, symbol string, from, to time.Time) ([]Tick, error) {
	return c.catalog.TicksRange(ctx, c.symbolOrDefault(symbol), from, to)
}

// NormalizePrice rounds price to the instrument's quote precision.
func (c *Client) NormalizePrice(ctx context.Context, symbol string, price float64) (float64, error) {
	return c.normalizer.NormalizePrice(ctx, c.symbolOrDefault(symbol), price)
}

// NormalizeVolume clamps and step-aligns volume for the instrument.
func (c *Client) NormalizeVolume(ctx context.Context, symbol string, volume float64) (float64, error) {
	return c.normalizer.NormalizeVolume(ctx, c.symbolOrDefault(symbol), volume)
}

// CalculateVolume sizes a position so that the loss over stopLossPoints
// approximates riskAmount in account currency.
func (c *Client) CalculateVolume(ctx context.Context, symbol string, stopLossPoints, riskAmount float64) (float64, error) {
	return c.sizer.CalculateVolume(ctx, RiskRequest{
		Symbol:         c.symbolOrDefault(symbol),
		StopLossPoints: stopLossPoints,
		RiskAmount:     riskAmount,
	})
}

// ---------------------------------------------------------------------------
// Trading
// ---------------------------------------------------------------------------

// Submit normalizes and submits an order, returning the broker ticket.
func (c *Client) Submit(ctx context.Context, ord NormalizedOrder) (uint64, error) {
	ord.Symbol = c.symbolOrDefault(ord.Symbol)
	return c.gateway.Submit(ctx, ord)
}

// Buy submits a market buy order.
func (c *Client) Buy(ctx context.Context, symbol string, volume, stopLoss, takeProfit float64) (uint64, error) {
	return c.Submit(ctx, NormalizedOrder{
		Symbol:     symbol,
		Side:       SideBuy,
		Type:       OrderTypeMarket,
		Volume:     volume,
		StopLoss:   stopLoss,
		TakeProfit: takeProfit,
	})
}

// Sell submits a market sell order.
func (c *Client) Sell(ctx context.Context, symbol string, volume, stopLoss, takeProfit float64) (uint64, error) {
	return c.Submit(ctx, NormalizedOrder{
		Symbol:     symbol,
		Side:       SideSell,
		Type:       OrderTypeMarket,
		Volume:     volume,
		StopLoss:   stopLoss,
		TakeProfit: takeProfit,
	})
}

// Modify updates the stops of an open position or pending order.
func (c *Client) Modify(ctx context.Context, ticket uint64, stopLoss, takeProfit float64) error {
	return c.gateway.Modify(ctx, ticket, stopLoss, takeProfit)
}

// Close closes an open position, fully when volume is zero.
func (c *Client) Close(ctx context.Context, ticket uint64, volume float64) error {
	return c.gateway.Close(ctx, ticket, volume)
}

// Cancel removes a resting pending order.
func (c *Client) Cancel(ctx context.Context, ticket uint64) error {
	return c.gateway.Cancel(ctx, ticket)
}

// Positions returns all open positions.
func (c *Client) Positions(ctx context.Context) ([]PositionRecord, error) {
	return c.gateway.Positions(ctx)
}

// PendingOrders returns all resting pending orders.
func (c *Client) PendingOrders(ctx context.Context) ([]PendingOrderRecord, error) {
	return c.gateway.PendingOrders(ctx)
}

// CloseMatching closes/cancels everything matching the filter, continuing
// past per-item failures.
func (c *Client) CloseMatching(ctx context.Context, f Filter) (BatchResult, error) {
	return c.batch.CloseMatching(ctx, f)
}

// HistoryOrders returns completed orders in [from, to].
func (c *Client) HistoryOrders(ctx context.Context, from, to time.Time) ([]HistoryOrder, error) {
	return c.gateway.HistoryOrders(ctx, from, to)
}

// HistoryDeals returns executed deals in [from, to].
func (c *Client) HistoryDeals(ctx context.Context, from, to time.Time) ([]HistoryDeal, error) {
	return c.gateway.HistoryDeals(ctx, from, to)
}

func (c *Client) symbolOrDefault(symbol string) string {
	if symbol == "" {
		return c.defaultSymbol
	}
	return symbol
}
