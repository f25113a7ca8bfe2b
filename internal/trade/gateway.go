// Package trade implements the order gateway: it turns caller-supplied
// trading parameters into broker-legal requests, submits them, interprets
// the broker's return code, and applies batch operations over open
// positions and pending orders.
package trade

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"tradeterm/internal/client"
	"tradeterm/internal/domain"
	"tradeterm/internal/market"
	"tradeterm/internal/store"
	"tradeterm/internal/terminal"
)

// OrderRejected is the broker's explicit refusal of a trade request. It
// carries the original return code for diagnostics.
type OrderRejected struct {
	Code        int
	Description string
}

func (e *OrderRejected) Error() string {
	return fmt.Sprintf("order rejected: %s (retcode %d)", e.Description, e.Code)
}

// Gateway validates, normalizes, and submits trade requests. Every request
// passes through the normalization engine before it leaves the process: a
// rejected order never yields a ticket, and every action (accepted or
// rejected) is journaled when a journal is configured.
type Gateway struct {
	caller     market.Caller
	catalog    *market.Catalog
	normalizer *market.Normalizer
	journal    store.Journal
	log        *slog.Logger
}

// NewGateway creates a Gateway. journal may be nil to disable journaling.
func NewGateway(caller market.Caller, journal store.Journal, log *slog.Logger) *Gateway {
	if log == nil {
		log = slog.Default()
	}
	catalog := market.NewCatalog(caller)
	return &Gateway{
		caller:     caller,
		catalog:    catalog,
		normalizer: market.NewNormalizer(catalog),
		journal:    journal,
		log:        log,
	}
}

// Catalog returns the instrument catalog the gateway normalizes against.
func (g *Gateway) Catalog() *market.Catalog {
	return g.catalog
}

type orderSendParams struct {
	Symbol     string  `json:"symbol"`
	Side       string  `json:"side"`
	Type       string  `json:"type"`
	Volume     float64 `json:"volume"`
	Price      float64 `json:"price,omitempty"`
	StopLoss   float64 `json:"stop_loss,omitempty"`
	TakeProfit float64 `json:"take_profit,omitempty"`
	Comment    string  `json:"comment,omitempty"`
}

type orderModifyParams struct {
	Ticket     uint64  `json:"ticket"`
	StopLoss   float64 `json:"stop_loss"`
	TakeProfit float64 `json:"take_profit"`
}

type orderCloseParams struct {
	Ticket uint64  `json:"ticket"`
	Volume float64 `json:"volume,omitempty"`
}

type ticketParams struct {
	Ticket uint64 `json:"ticket"`
}

// Submit validates and normalizes ord, submits it, and returns the broker
// ticket. Any non-success return code comes back as *OrderRejected.
func (g *Gateway) Submit(ctx context.Context, ord domain.NormalizedOrder) (uint64, error) {
	if ord.Symbol == "" {
		return 0, client.Validationf("order symbol must not be empty")
	}
	if ord.Side != domain.SideBuy && ord.Side != domain.SideSell {
		return 0, client.Validationf("order side must be buy or sell, got %q", ord.Side)
	}
	switch ord.Type {
	case domain.OrderTypeMarket:
	case domain.OrderTypeLimit, domain.OrderTypeStop:
		if ord.Price <= 0 {
			return 0, client.Validationf("pending %s order requires a positive price, got %v", ord.Type, ord.Price)
		}
	case "":
		ord.Type = domain.OrderTypeMarket
	default:
		return 0, client.Validationf("unknown order type %q", ord.Type)
	}

	if err := g.catalog.Select(ctx, ord.Symbol); err != nil {
		return 0, err
	}

	volume, err := g.normalizer.NormalizeVolume(ctx, ord.Symbol, ord.Volume)
	if err != nil {
		return 0, err
	}
	ord.Volume = volume
	if ord.Type != domain.OrderTypeMarket {
		price, err := g.normalizer.NormalizePrice(ctx, ord.Symbol, ord.Price)
		if err != nil {
			return 0, err
		}
		ord.Price = price
	}

	params := orderSendParams{
		Symbol:     ord.Symbol,
		Side:       string(ord.Side),
		Type:       string(ord.Type),
		Volume:     ord.Volume,
		Price:      ord.Price,
		StopLoss:   ord.StopLoss,
		TakeProfit: ord.TakeProfit,
		Comment:    ord.Comment,
	}
	var result terminal.TradeResult
	if err := g.caller.Do(ctx, terminal.MethodOrderSend, params, &result); err != nil {
		return 0, err
	}

	g.journalAction(ctx, store.OrderEntry{
		Ticket:     result.Ticket,
		Symbol:     ord.Symbol,
		Side:       ord.Side,
		Type:       ord.Type,
		Action:     "submit",
		Volume:     ord.Volume,
		Price:      ord.Price,
		StopLoss:   ord.StopLoss,
		TakeProfit: ord.TakeProfit,
		Retcode:    result.Retcode,
		Comment:    ord.Comment,
	})

	if result.Retcode != terminal.RetcodeDone {
		return 0, rejection(result)
	}
	g.log.Info("order filled",
		"ticket", result.Ticket, "symbol", ord.Symbol, "side", ord.Side,
		"volume", ord.Volume, "price", result.Price)
	return result.Ticket, nil
}

// Modify updates the stop loss and take profit of an open position or
// pending order. Non-zero stop prices are digit-aligned against the
// ticket's instrument before submission.
func (g *Gateway) Modify(ctx context.Context, ticket uint64, stopLoss, takeProfit float64) error {
	if ticket == 0 {
		return client.Validationf("ticket must not be zero")
	}
	if stopLoss < 0 || takeProfit < 0 {
		return client.Validationf("stop prices must not be negative, got sl %v tp %v", stopLoss, takeProfit)
	}
	if stopLoss > 0 || takeProfit > 0 {
		symbol, err := g.symbolForTicket(ctx, ticket)
		if err != nil {
			return err
		}
		if stopLoss > 0 {
			if stopLoss, err = g.normalizer.NormalizePrice(ctx, symbol, stopLoss); err != nil {
				return err
			}
		}
		if takeProfit > 0 {
			if takeProfit, err = g.normalizer.NormalizePrice(ctx, symbol, takeProfit); err != nil {
				return err
			}
		}
	}
	params := orderModifyParams{Ticket: ticket, StopLoss: stopLoss, TakeProfit: takeProfit}
	var result terminal.TradeResult
	if err := g.caller.Do(ctx, terminal.MethodOrderModify, params, &result); err != nil {
		return err
	}
	g.journalAction(ctx, store.OrderEntry{
		Ticket:     ticket,
		Action:     "modify",
		StopLoss:   stopLoss,
		TakeProfit: takeProfit,
		Retcode:    result.Retcode,
	})
	if result.Retcode != terminal.RetcodeDone {
		return rejection(result)
	}
	return nil
}

// Close closes an open position, fully when volume is zero or partially
// otherwise. A partial volume is step-aligned against the position's
// instrument before submission.
func (g *Gateway) Close(ctx context.Context, ticket uint64, volume float64) error {
	if ticket == 0 {
		return client.Validationf("ticket must not be zero")
	}
	if volume < 0 {
		return client.Validationf("close volume must not be negative, got %v", volume)
	}
	if volume > 0 {
		symbol, err := g.symbolForTicket(ctx, ticket)
		if err != nil {
			return err
		}
		if volume, err = g.normalizer.NormalizeVolume(ctx, symbol, volume); err != nil {
			return err
		}
	}
	params := orderCloseParams{Ticket: ticket, Volume: volume}
	var result terminal.TradeResult
	if err := g.caller.Do(ctx, terminal.MethodOrderClose, params, &result); err != nil {
		return err
	}
	g.journalAction(ctx, store.OrderEntry{
		Ticket:  ticket,
		Action:  "close",
		Volume:  volume,
		Retcode: result.Retcode,
	})
	if result.Retcode != terminal.RetcodeDone {
		return rejection(result)
	}
	return nil
}

// Cancel removes a resting pending order.
func (g *Gateway) Cancel(ctx context.Context, ticket uint64) error {
	if ticket == 0 {
		return client.Validationf("ticket must not be zero")
	}
	var result terminal.TradeResult
	if err := g.caller.Do(ctx, terminal.MethodOrderCancel, ticketParams{Ticket: ticket}, &result); err != nil {
		return err
	}
	g.journalAction(ctx, store.OrderEntry{
		Ticket:  ticket,
		Action:  "cancel",
		Retcode: result.Retcode,
	})
	if result.Retcode != terminal.RetcodeDone {
		return rejection(result)
	}
	return nil
}

// Positions returns all currently open positions.
func (g *Gateway) Positions(ctx context.Context) ([]domain.PositionRecord, error) {
	var positions []domain.PositionRecord
	if err := g.caller.Do(ctx, terminal.MethodPositionsGet, nil, &positions); err != nil {
		return nil, err
	}
	return positions, nil
}

// PendingOrders returns all resting pending orders.
func (g *Gateway) PendingOrders(ctx context.Context) ([]domain.PendingOrderRecord, error) {
	var orders []domain.PendingOrderRecord
	if err := g.caller.Do(ctx, terminal.MethodOrdersGet, nil, &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// symbolForTicket resolves the instrument behind a ticket by scanning open
// positions first, then pending orders.
func (g *Gateway) symbolForTicket(ctx context.Context, ticket uint64) (string, error) {
	positions, err := g.Positions(ctx)
	if err != nil {
		return "", err
	}
	for _, p := range positions {
		if p.Ticket == ticket {
			return p.Symbol, nil
		}
	}
	orders, err := g.PendingOrders(ctx)
	if err != nil {
		return "", err
	}
	for _, o := range orders {
		if o.Ticket == ticket {
			return o.Symbol, nil
		}
	}
	return "", client.Validationf("ticket %d matches no open position or pending order", ticket)
}

func rejection(result terminal.TradeResult) *OrderRejected {
	desc := result.Comment
	if desc == "" {
		desc = terminal.RetcodeDescription(result.Retcode)
	}
	return &OrderRejected{Code: result.Retcode, Description: desc}
}

// journalAction records an order action best-effort. Journal failures are
// logged, never propagated: persistence problems must not fail a trade that
// the broker already accepted.
func (g *Gateway) journalAction(ctx context.Context, e store.OrderEntry) {
	if g.journal == nil {
		return
	}
	e.Time = time.Now()
	if err := g.journal.Record(ctx, e); err != nil {
		g.log.Warn("order journal write failed", "ticket", e.Ticket, "action", e.Action, "error", err)
	}
}
