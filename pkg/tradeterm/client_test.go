package tradeterm_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"tradeterm/internal/config"
	"tradeterm/internal/domain"
	"tradeterm/internal/terminal"
	"tradeterm/internal/terminal/terminaltest"
	"tradeterm/internal/trade"
	"tradeterm/pkg/tradeterm"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(endpoint string) *config.Config {
	return &config.Config{
		Terminal: config.Terminal{
			Endpoint: endpoint,
			Login:    1001,
			Password: "secret",
			Server:   "Demo-Server",
		},
		Defaults: config.Defaults{
			Symbol:         "EURUSD",
			CallTimeout:    config.Duration{Duration: 5 * time.Second},
			ConnectTimeout: config.Duration{Duration: 5 * time.Second},
		},
		Retry: config.Retry{
			MaxAttempts: 3,
			BaseDelay:   config.Duration{Duration: 10 * time.Millisecond},
			MaxDelay:    config.Duration{Duration: 50 * time.Millisecond},
		},
	}
}

var eurusdMeta = domain.InstrumentMetadata{
	Symbol: "EURUSD", Point: 0.00001, Digits: 5,
	VolumeMin: 0.01, VolumeMax: 100, VolumeStep: 0.01,
	TickValue: 1, TickSize: 0.00001,
}

func newBridge() *terminaltest.Server {
	srv := terminaltest.NewServer()
	srv.Handle(terminal.MethodSymbolInfo, func(json.RawMessage) (any, *terminal.WireError) {
		return eurusdMeta, nil
	})
	srv.Handle(terminal.MethodSymbolSelect, func(json.RawMessage) (any, *terminal.WireError) {
		return map[string]bool{"ok": true}, nil
	})
	return srv
}

func newConnectedClient(t *testing.T, srv *terminaltest.Server) *tradeterm.Client {
	t.Helper()
	c := tradeterm.New(testConfig(srv.URL()), testLogger())
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(c.Disconnect)
	return c
}

func TestClientTradingRoundTrip(t *testing.T) {
	srv := newBridge()
	defer srv.Close()
	srv.Handle(terminal.MethodOrderSend, func(json.RawMessage) (any, *terminal.WireError) {
		return terminal.TradeResult{Retcode: terminal.RetcodeDone, Ticket: 7001, Price: 1.1003}, nil
	})

	c := newConnectedClient(t, srv)
	ctx := context.Background()

	vol, err := c.NormalizeVolume(ctx, "EURUSD", 0.157)
	if err != nil {
		t.Fatalf("NormalizeVolume() error = %v", err)
	}
	if vol != 0.16 {
		t.Errorf("NormalizeVolume(0.157) = %v, want 0.16", vol)
	}

	price, err := c.NormalizePrice(ctx, "", 1.123456789) // default symbol
	if err != nil {
		t.Fatalf("NormalizePrice() error = %v", err)
	}
	if price != 1.12346 {
		t.Errorf("NormalizePrice(1.123456789) = %v, want 1.12346", price)
	}

	riskVol, err := c.CalculateVolume(ctx, "", 50, 20)
	if err != nil {
		t.Fatalf("CalculateVolume() error = %v", err)
	}
	if riskVol != 0.40 {
		t.Errorf("CalculateVolume(50, 20) = %v, want 0.40", riskVol)
	}

	ticket, err := c.Buy(ctx, "EURUSD", 0.16, 1.0950, 1.1100)
	if err != nil {
		t.Fatalf("Buy() error = %v", err)
	}
	if ticket != 7001 {
		t.Errorf("Buy() ticket = %d, want 7001", ticket)
	}
}

func TestClientOrderRejected(t *testing.T) {
	srv := newBridge()
	defer srv.Close()
	srv.Handle(terminal.MethodOrderSend, func(json.RawMessage) (any, *terminal.WireError) {
		return terminal.TradeResult{Retcode: terminal.RetcodeMarketClosed}, nil
	})

	c := newConnectedClient(t, srv)
	_, err := c.Sell(context.Background(), "EURUSD", 0.1, 0, 0)
	var rej *trade.OrderRejected
	if !errors.As(err, &rej) {
		t.Fatalf("Sell() error = %v, want *trade.OrderRejected", err)
	}
	if rej.Code != terminal.RetcodeMarketClosed {
		t.Errorf("Code = %d, want %d", rej.Code, terminal.RetcodeMarketClosed)
	}
}

func TestClientSubscribeTicks(t *testing.T) {
	srv := newBridge()
	defer srv.Close()

	c := newConnectedClient(t, srv)
	ticks := make(chan tradeterm.Tick, 1)
	sub, err := c.SubscribeTicks(context.Background(), []string{"EURUSD"}, func(tk tradeterm.Tick) {
		ticks <- tk
	})
	if err != nil {
		t.Fatalf("SubscribeTicks() error = %v", err)
	}

	srv.PushEvent(terminal.Event{
		Stream:  sub.ID(),
		Kind:    "tick",
		Seq:     1,
		Payload: json.RawMessage(`{"symbol":"EURUSD","bid":1.1001,"ask":1.1003}`),
	})
	select {
	case tk := <-ticks:
		if tk.Symbol != "EURUSD" || tk.Bid != 1.1001 || tk.Ask != 1.1003 {
			t.Errorf("tick = %+v, want EURUSD 1.1001/1.1003", tk)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("tick not delivered")
	}
}

func TestClientDisconnectCancelsSubscriptions(t *testing.T) {
	srv := newBridge()
	defer srv.Close()

	c := newConnectedClient(t, srv)
	sub1, err := c.SubscribeTicks(context.Background(), []string{"EURUSD"}, func(tradeterm.Tick) {})
	if err != nil {
		t.Fatalf("SubscribeTicks() [1] error = %v", err)
	}
	sub2, err := c.SubscribeTicks(context.Background(), []string{"GBPUSD"}, func(tradeterm.Tick) {})
	if err != nil {
		t.Fatalf("SubscribeTicks() [2] error = %v", err)
	}

	c.Disconnect()

	if !sub1.Cancelled() || !sub2.Cancelled() {
		t.Errorf("Cancelled() after Disconnect = %v, %v, want true, true",
			sub1.Cancelled(), sub2.Cancelled())
	}
}

func TestClientCloseMatching(t *testing.T) {
	srv := newBridge()
	defer srv.Close()
	srv.Handle(terminal.MethodPositionsGet, func(json.RawMessage) (any, *terminal.WireError) {
		return []domain.PositionRecord{
			{Ticket: 1, Symbol: "EURUSD", Side: domain.SideBuy, Volume: 0.1},
			{Ticket: 2, Symbol: "EURUSD", Side: domain.SideBuy, Volume: 0.2},
			{Ticket: 3, Symbol: "EURUSD", Side: domain.SideSell, Volume: 0.3},
		}, nil
	})
	srv.Handle(terminal.MethodOrderClose, func(params json.RawMessage) (any, *terminal.WireError) {
		var p struct {
			Ticket uint64 `json:"ticket"`
		}
		json.Unmarshal(params, &p)
		if p.Ticket == 2 {
			return nil, &terminal.WireError{Code: terminal.ErrCodeNotFound, Message: "position locked"}
		}
		return terminal.TradeResult{Retcode: terminal.RetcodeDone, Ticket: p.Ticket}, nil
	})
	srv.Handle(terminal.MethodOrdersGet, func(json.RawMessage) (any, *terminal.WireError) {
		return []domain.PendingOrderRecord{}, nil
	})

	c := newConnectedClient(t, srv)
	result, err := c.CloseMatching(context.Background(), tradeterm.Filter{
		Symbol: "EURUSD",
		Kind:   tradeterm.KindPosition,
	})
	if err != nil {
		t.Fatalf("CloseMatching() error = %v", err)
	}
	if result.Closed != 2 {
		t.Errorf("Closed = %d, want 2", result.Closed)
	}
	if len(result.Failures) != 1 || result.Failures[0].Ticket != 2 {
		t.Errorf("Failures = %+v, want one failure for ticket 2", result.Failures)
	}
}
