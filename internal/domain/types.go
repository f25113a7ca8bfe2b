// Package domain defines the core value types shared across the tradeterm
// client: instrument metadata, ticks, positions, pending orders, and the
// normalized order shape handed to the order gateway.
package domain

import "time"

// Side indicates the direction of an order or position.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// OrderType distinguishes immediately-filled market orders from pending
// orders that activate at a specified price level.
type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
	OrderTypeStop   OrderType = "stop"
)

// RecordKind distinguishes open market positions from pending orders in
// listings and batch filters.
type RecordKind string

const (
	KindPosition     RecordKind = "position"
	KindPendingOrder RecordKind = "pending_order"
)

// InstrumentMetadata describes the broker-side trading constraints of a
// single instrument. It is fetched on demand and never cached across calls:
// each read reflects current broker state, and the value is treated as
// immutable for the duration of a single calculation.
type InstrumentMetadata struct {
	Symbol     string  `json:"symbol"`
	Point      float64 `json:"point"`  // smallest quote increment
	Digits     int     `json:"digits"` // quote decimal places
	VolumeMin  float64 `json:"volume_min"`
	VolumeMax  float64 `json:"volume_max"`
	VolumeStep float64 `json:"volume_step"`
	TickValue  float64 `json:"tick_value"` // account-currency value of one tick per lot
	TickSize   float64 `json:"tick_size"`  // price change corresponding to TickValue
}

// Tick is a single bid/ask update for an instrument.
type Tick struct {
	Symbol string    `json:"symbol"`
	Time   time.Time `json:"time"`
	Bid    float64   `json:"bid"`
	Ask    float64   `json:"ask"`
	Last   float64   `json:"last"`
	Volume int64     `json:"volume"`
}

// AccountInfo is a snapshot of the trading account's financial state.
type AccountInfo struct {
	Login      uint64  `json:"login"`
	Currency   string  `json:"currency"`
	Balance    float64 `json:"balance"`
	Equity     float64 `json:"equity"`
	Margin     float64 `json:"margin"`
	FreeMargin float64 `json:"free_margin"`
	Leverage   int     `json:"leverage"`
}

// PositionRecord is an open market position as reported by the terminal.
// The ticket is the sole identity used for later modification or closure.
type PositionRecord struct {
	Ticket     uint64    `json:"ticket"`
	Symbol     string    `json:"symbol"`
	Side       Side      `json:"side"`
	Volume     float64   `json:"volume"`
	OpenPrice  float64   `json:"open_price"`
	StopLoss   float64   `json:"stop_loss"`
	TakeProfit float64   `json:"take_profit"`
	Profit     float64   `json:"profit"`
	OpenedAt   time.Time `json:"opened_at"`
}

// PendingOrderRecord is a resting limit/stop order as reported by the
// terminal.
type PendingOrderRecord struct {
	Ticket     uint64    `json:"ticket"`
	Symbol     string    `json:"symbol"`
	Side       Side      `json:"side"`
	Type       OrderType `json:"type"`
	Volume     float64   `json:"volume"`
	Price      float64   `json:"price"`
	StopLoss   float64   `json:"stop_loss"`
	TakeProfit float64   `json:"take_profit"`
	PlacedAt   time.Time `json:"placed_at"`
}

// NormalizedOrder is a trade request whose volume is already step-aligned
// and whose price (for pending orders) is already digit-aligned. It is
// constructed by the normalization engine or risk sizer and consumed exactly
// once by the order gateway.
type NormalizedOrder struct {
	Symbol     string
	Side       Side
	Type       OrderType
	Volume     float64
	Price      float64 // zero for market orders
	StopLoss   float64
	TakeProfit float64
	Comment    string
}

// RiskRequest is the pure input to risk-based position sizing. It is never
// mutated.
type RiskRequest struct {
	Symbol         string
	StopLossPoints float64
	RiskAmount     float64 // account-currency loss accepted if the stop is hit
}

// HistoryOrder is a completed (filled, cancelled, or expired) order from the
// terminal's history.
type HistoryOrder struct {
	Ticket  uint64    `json:"ticket"`
	Symbol  string    `json:"symbol"`
	Side    Side      `json:"side"`
	Type    OrderType `json:"type"`
	Volume  float64   `json:"volume"`
	Price   float64   `json:"price"`
	State   string    `json:"state"`
	DoneAt  time.Time `json:"done_at"`
	Comment string    `json:"comment"`
}

// HistoryDeal is a single execution (fill) from the terminal's history.
type HistoryDeal struct {
	Ticket      uint64    `json:"ticket"`
	OrderTicket uint64    `json:"order_ticket"`
	Symbol      string    `json:"symbol"`
	Side        Side      `json:"side"`
	Volume      float64   `json:"volume"`
	Price       float64   `json:"price"`
	Profit      float64   `json:"profit"`
	Commission  float64   `json:"commission"`
	Swap        float64   `json:"swap"`
	Time        time.Time `json:"time"`
}
