// Tick recorder: subscribes to live tick streams and persists them to
// Parquet files, one file per symbol and day.
//
// Usage:
//
//	tradeterm-recorder [-symbols EURUSD,GBPUSD] [-flush 10s]
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"tradeterm/internal/config"
	"tradeterm/internal/domain"
	"tradeterm/internal/store"
	"tradeterm/internal/util"
	"tradeterm/pkg/tradeterm"
)

func main() {
	symbolsFlag := flag.String("symbols", "", "comma-separated symbols to record (default: config symbol)")
	flushEvery := flag.Duration("flush", 10*time.Second, "how often to flush buffered ticks to disk")
	flag.Parse()

	cfgPath := "config/tradeterm.yaml"
	if p := os.Getenv("TRADETERM_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if cfg.Storage.DataDir == "" {
		log.Fatal("storage.data_dir must be set to record ticks")
	}

	logger := util.NewLogger(cfg.Logging.Level)
	util.SetDefault(logger)

	var symbols []string
	if *symbolsFlag != "" {
		symbols = strings.Split(*symbolsFlag, ",")
	} else if cfg.Defaults.Symbol != "" {
		symbols = []string{cfg.Defaults.Symbol}
	} else {
		log.Fatal("no symbols: pass -symbols or set defaults.symbol in config")
	}

	tickStore := store.NewParquetTickStore(cfg.Storage.DataDir)
	c := tradeterm.New(cfg, logger)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Defaults.ConnectTimeout.Duration)
	err = c.Connect(ctx)
	cancel()
	if err != nil {
		log.Fatalf("failed to connect: %v", err)
	}
	defer c.Disconnect()

	var mu sync.Mutex
	var buf []domain.Tick
	_, err = c.SubscribeTicks(context.Background(), symbols, func(tk tradeterm.Tick) {
		mu.Lock()
		buf = append(buf, tk)
		mu.Unlock()
	})
	if err != nil {
		log.Fatalf("failed to subscribe: %v", err)
	}
	logger.Info("recording ticks", "symbols", symbols, "data_dir", cfg.Storage.DataDir)

	flush := func() {
		mu.Lock()
		batch := buf
		buf = nil
		mu.Unlock()
		if len(batch) == 0 {
			return
		}
		if err := tickStore.WriteTicks(context.Background(), batch); err != nil {
			logger.Error("tick flush failed", "ticks", len(batch), "error", err)
			// Put the batch back so the next flush retries it.
			mu.Lock()
			buf = append(batch, buf...)
			mu.Unlock()
			return
		}
		logger.Info("ticks flushed", "ticks", len(batch))
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	ticker := time.NewTicker(*flushEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			flush()
		case sig := <-stop:
			logger.Info("shutting down", "signal", sig.String())
			c.Disconnect()
			flush()
			return
		}
	}
}
