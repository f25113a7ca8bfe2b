// Package terminal implements the wire contract of the trading-terminal
// bridge: JSON frames over a websocket. Unary calls are request/reply
// envelopes correlated by id; server-push streams deliver event frames
// tagged with the subscription id they belong to. The contract is defined by
// the bridge, not by this client — this package only honors it.
package terminal

import (
	"encoding/json"
	"fmt"
)

// ---------------------------------------------------------------------------
// Methods
// ---------------------------------------------------------------------------

const (
	MethodLogin         = "login"
	MethodPing          = "ping"
	MethodAccountInfo   = "account_info"
	MethodSymbolInfo    = "symbol_info"
	MethodSymbolSelect  = "symbol_select"
	MethodPositionsGet  = "positions_get"
	MethodOrdersGet     = "orders_get"
	MethodOrderSend     = "order_send"
	MethodOrderModify   = "order_modify"
	MethodOrderClose    = "order_close"
	MethodOrderCancel   = "order_cancel"
	MethodHistoryOrders = "history_orders"
	MethodHistoryDeals  = "history_deals"
	MethodCopyTicks     = "copy_ticks"
	MethodSubscribe     = "subscribe"
	MethodUnsubscribe   = "unsubscribe"
)

// ---------------------------------------------------------------------------
// Frames
// ---------------------------------------------------------------------------

// Request is a unary call envelope sent to the terminal.
type Request struct {
	ID     string          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Response is the terminal's reply to a Request with the same ID. Exactly
// one of Data and Error is set.
type Response struct {
	ID    string          `json:"id"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error *WireError      `json:"error,omitempty"`
}

// Event is a server-push frame belonging to one stream subscription. Events
// on the same stream arrive in the order the terminal emitted them; no
// ordering holds across streams.
type Event struct {
	Stream  string          `json:"stream"` // subscription id
	Kind    string          `json:"kind"`   // e.g. "tick", "deal"
	Seq     uint64          `json:"seq"`
	Payload json.RawMessage `json:"payload"`
}

// frame is the superset used to classify incoming messages: responses carry
// an id, events carry a stream.
type frame struct {
	ID      string          `json:"id,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   *WireError      `json:"error,omitempty"`
	Stream  string          `json:"stream,omitempty"`
	Kind    string          `json:"kind,omitempty"`
	Seq     uint64          `json:"seq,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ---------------------------------------------------------------------------
// Envelope errors
// ---------------------------------------------------------------------------

// Envelope error codes used by the bridge. Codes below 100 describe
// terminal-side conditions that may clear on their own; the transport layer
// treats them as transient. Codes of 100 and above are definitive
// rejections of the request.
const (
	ErrCodeInternal     = 1 // terminal internal failure
	ErrCodeNoConnection = 2 // terminal lost its broker connection
	ErrCodeBusy         = 3 // terminal busy, try again

	ErrCodeAuthFailed    = 100
	ErrCodeUnknownMethod = 101
	ErrCodeInvalidParams = 102
	ErrCodeUnknownSymbol = 103
	ErrCodeNotFound      = 104 // unknown ticket / subscription
)

// WireError is the error half of a Response envelope.
type WireError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *WireError) Error() string {
	return fmt.Sprintf("terminal error %d: %s", e.Code, e.Message)
}

// Transient reports whether the error describes a terminal-side condition
// worth retrying, as opposed to a definitive rejection of the request.
func (e *WireError) Transient() bool {
	return e.Code < 100
}

// ---------------------------------------------------------------------------
// Trade return codes
// ---------------------------------------------------------------------------

// Trade server return codes carried in TradeResult. RetcodeDone is the
// single success code; every other value is a rejection.
const (
	RetcodeRequote             = 10004
	RetcodeReject              = 10006
	RetcodeCancel              = 10007
	RetcodeDone                = 10009
	RetcodeInvalidRequest      = 10013
	RetcodeInvalidVolume       = 10014
	RetcodeInvalidPrice        = 10015
	RetcodeInvalidStops        = 10016
	RetcodeTradeDisabled       = 10017
	RetcodeMarketClosed        = 10018
	RetcodeNoMoney             = 10019
	RetcodePriceChanged        = 10020
	RetcodeNoQuotes            = 10021
	RetcodeTooManyRequests     = 10024
	RetcodeServerAutotradeOff  = 10026
	RetcodeClientAutotradeOff  = 10027
	RetcodePositionClosed      = 10031
)

var retcodeDescriptions = map[int]string{
	RetcodeRequote:            "requote",
	RetcodeReject:             "request rejected",
	RetcodeCancel:             "request canceled by trader",
	RetcodeDone:               "done",
	RetcodeInvalidRequest:     "invalid request",
	RetcodeInvalidVolume:      "invalid volume",
	RetcodeInvalidPrice:       "invalid price",
	RetcodeInvalidStops:       "invalid stops",
	RetcodeTradeDisabled:      "trading disabled",
	RetcodeMarketClosed:       "market closed",
	RetcodeNoMoney:            "insufficient funds",
	RetcodePriceChanged:       "price changed",
	RetcodeNoQuotes:           "no quotes",
	RetcodeTooManyRequests:    "too many requests",
	RetcodeServerAutotradeOff: "autotrading disabled by server",
	RetcodeClientAutotradeOff: "autotrading disabled by client terminal",
	RetcodePositionClosed:     "position already closed",
}

// RetcodeDescription returns a human-readable description of a trade return
// code. Codes the client does not know format as "retcode <n>".
func RetcodeDescription(code int) string {
	if d, ok := retcodeDescriptions[code]; ok {
		return d
	}
	return fmt.Sprintf("retcode %d", code)
}

// TradeResult is the terminal's answer to order_send / order_modify /
// order_close / order_cancel.
type TradeResult struct {
	Retcode int     `json:"retcode"`
	Ticket  uint64  `json:"ticket,omitempty"`
	Price   float64 `json:"price,omitempty"` // fill price for market orders
	Volume  float64 `json:"volume,omitempty"`
	Comment string  `json:"comment,omitempty"`
}
