// Command-line front end for the trading-terminal client: account and
// position queries, market orders, and batch close operations.
//
// Usage:
//
//	tradeterm-cli <command> [options]
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"tradeterm/internal/config"
	"tradeterm/internal/store"
	"tradeterm/internal/util"
	"tradeterm/pkg/tradeterm"
)

const version = "0.1.0"

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: tradeterm-cli <command> [options]\n\n")
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "  version      Print the CLI version\n")
		fmt.Fprintf(os.Stderr, "  status       Check terminal connectivity and account state\n")
		fmt.Fprintf(os.Stderr, "  symbol       Show trading constraints for a symbol\n")
		fmt.Fprintf(os.Stderr, "  buy          Submit a market buy order\n")
		fmt.Fprintf(os.Stderr, "  sell         Submit a market sell order\n")
		fmt.Fprintf(os.Stderr, "  positions    List open positions and pending orders\n")
		fmt.Fprintf(os.Stderr, "  close-all    Close every position matching a filter\n")
		fmt.Fprintf(os.Stderr, "\n")
	}

	if len(os.Args) < 2 {
		flag.Usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "version":
		fmt.Printf("tradeterm-cli %s\n", version)

	case "status":
		runStatus()

	case "symbol":
		runSymbol(os.Args[2:])

	case "buy":
		runOrder(tradeterm.SideBuy, os.Args[2:])

	case "sell":
		runOrder(tradeterm.SideSell, os.Args[2:])

	case "positions":
		runPositions()

	case "close-all":
		runCloseAll(os.Args[2:])

	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		flag.Usage()
		os.Exit(1)
	}
}

// connect loads configuration, connects, and returns the client plus a
// teardown func.
func connect() (*tradeterm.Client, func()) {
	cfgPath := "config/tradeterm.yaml"
	if p := os.Getenv("TRADETERM_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.NewLogger(cfg.Logging.Level)
	util.SetDefault(logger)

	var opts []tradeterm.Option
	var journal *store.SQLiteJournal
	if cfg.Storage.SQLitePath != "" {
		journal, err = store.NewSQLiteJournal(cfg.Storage.SQLitePath)
		if err != nil {
			log.Fatalf("failed to open order journal: %v", err)
		}
		opts = append(opts, tradeterm.WithJournal(journal))
	}

	c := tradeterm.New(cfg, logger, opts...)
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Defaults.ConnectTimeout.Duration)
	defer cancel()
	if err := c.Connect(ctx); err != nil {
		log.Fatalf("failed to connect: %v", err)
	}

	return c, func() {
		c.Disconnect()
		if journal != nil {
			journal.Close()
		}
	}
}

func runStatus() {
	c, done := connect()
	defer done()
	ctx := context.Background()

	fmt.Printf("alive: %v\n", c.IsAlive(ctx))
	acct, err := c.Account(ctx)
	if err != nil {
		log.Fatalf("account query failed: %v", err)
	}
	fmt.Printf("login:       %d\n", acct.Login)
	fmt.Printf("currency:    %s\n", acct.Currency)
	fmt.Printf("balance:     %.2f\n", acct.Balance)
	fmt.Printf("equity:      %.2f\n", acct.Equity)
	fmt.Printf("free margin: %.2f\n", acct.FreeMargin)
}

func runSymbol(args []string) {
	fs := flag.NewFlagSet("symbol", flag.ExitOnError)
	symbol := fs.String("symbol", "", "instrument symbol (default from config)")
	fs.Parse(args)

	c, done := connect()
	defer done()

	meta, err := c.SymbolInfo(context.Background(), *symbol)
	if err != nil {
		log.Fatalf("symbol query failed: %v", err)
	}
	fmt.Printf("symbol:      %s\n", meta.Symbol)
	fmt.Printf("digits:      %d\n", meta.Digits)
	fmt.Printf("point:       %g\n", meta.Point)
	fmt.Printf("volume:      %g .. %g step %g\n", meta.VolumeMin, meta.VolumeMax, meta.VolumeStep)
	fmt.Printf("tick:        value %g size %g\n", meta.TickValue, meta.TickSize)
}

func runOrder(side tradeterm.Side, args []string) {
	fs := flag.NewFlagSet(string(side), flag.ExitOnError)
	symbol := fs.String("symbol", "", "instrument symbol (default from config)")
	volume := fs.Float64("volume", 0, "order volume in lots")
	sl := fs.Float64("sl", 0, "stop loss price")
	tp := fs.Float64("tp", 0, "take profit price")
	slPoints := fs.Float64("sl-points", 0, "stop distance in points, used with -risk")
	risk := fs.Float64("risk", 0, "account-currency risk; sizes the volume from -sl-points")
	fs.Parse(args)

	c, done := connect()
	defer done()
	ctx := context.Background()

	vol := *volume
	if *risk > 0 {
		var err error
		vol, err = c.CalculateVolume(ctx, *symbol, *slPoints, *risk)
		if err != nil {
			log.Fatalf("risk sizing failed: %v", err)
		}
		fmt.Printf("sized volume: %g\n", vol)
	}
	if vol <= 0 {
		log.Fatal("either -volume or -risk with -sl-points is required")
	}

	var ticket uint64
	var err error
	if side == tradeterm.SideBuy {
		ticket, err = c.Buy(ctx, *symbol, vol, *sl, *tp)
	} else {
		ticket, err = c.Sell(ctx, *symbol, vol, *sl, *tp)
	}
	if err != nil {
		log.Fatalf("order failed: %v", err)
	}
	fmt.Printf("filled: ticket %d\n", ticket)
}

func runPositions() {
	c, done := connect()
	defer done()
	ctx := context.Background()

	positions, err := c.Positions(ctx)
	if err != nil {
		log.Fatalf("positions query failed: %v", err)
	}
	for _, p := range positions {
		fmt.Printf("position %d  %-8s %-4s %.2f @ %.5f  sl %.5f tp %.5f  pnl %.2f\n",
			p.Ticket, p.Symbol, p.Side, p.Volume, p.OpenPrice, p.StopLoss, p.TakeProfit, p.Profit)
	}

	orders, err := c.PendingOrders(ctx)
	if err != nil {
		log.Fatalf("pending orders query failed: %v", err)
	}
	for _, o := range orders {
		fmt.Printf("pending  %d  %-8s %-4s %s %.2f @ %.5f  placed %s\n",
			o.Ticket, o.Symbol, o.Side, o.Type, o.Volume, o.Price, o.PlacedAt.Format(time.RFC3339))
	}
	if len(positions) == 0 && len(orders) == 0 {
		fmt.Println("no open positions or pending orders")
	}
}

func runCloseAll(args []string) {
	fs := flag.NewFlagSet("close-all", flag.ExitOnError)
	symbol := fs.String("symbol", "", "only close this symbol (empty = all)")
	side := fs.String("side", "", "only close this side: buy or sell (empty = both)")
	pending := fs.Bool("pending", false, "cancel pending orders instead of closing positions")
	fs.Parse(args)

	c, done := connect()
	defer done()

	kind := tradeterm.KindPosition
	if *pending {
		kind = tradeterm.KindPendingOrder
	}
	result, err := c.CloseMatching(context.Background(), tradeterm.Filter{
		Symbol: *symbol,
		Side:   tradeterm.Side(*side),
		Kind:   kind,
	})
	if err != nil {
		log.Fatalf("batch close failed: %v", err)
	}
	fmt.Printf("closed: %d\n", result.Closed)
	for _, f := range result.Failures {
		fmt.Printf("failed: ticket %d (%s): %v\n", f.Ticket, f.Symbol, f.Err)
	}
}
