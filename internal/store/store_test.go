package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"tradeterm/internal/domain"
)

func TestParquetTickStorePath(t *testing.T) {
	ps := NewParquetTickStore("/data")
	ts := time.Date(2026, 3, 17, 0, 0, 0, 0, time.UTC)

	got := ps.tickPath("eurusd", ts)
	want := filepath.Join("/data", "ticks", "EURUSD", "2026-03-17.parquet")
	if got != want {
		t.Errorf("tickPath mismatch:\n  got  %s\n  want %s", got, want)
	}
}

func TestParquetTickStoreWriteRead(t *testing.T) {
	dir := t.TempDir()
	ps := NewParquetTickStore(dir)
	ctx := context.Background()

	base := time.Date(2026, 3, 17, 9, 0, 0, 0, time.UTC)
	ticks := []domain.Tick{
		{Symbol: "EURUSD", Time: base, Bid: 1.1001, Ask: 1.1003, Last: 1.1002, Volume: 3},
		{Symbol: "EURUSD", Time: base.Add(time.Second), Bid: 1.1002, Ask: 1.1004, Last: 1.1003, Volume: 1},
		{Symbol: "GBPUSD", Time: base, Bid: 1.2650, Ask: 1.2653, Last: 1.2651, Volume: 2},
	}
	if err := ps.WriteTicks(ctx, ticks); err != nil {
		t.Fatalf("WriteTicks() error = %v", err)
	}

	got, err := ps.ReadTicks(ctx, "EURUSD", base, base.Add(time.Minute))
	if err != nil {
		t.Fatalf("ReadTicks() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ReadTicks() returned %d ticks, want 2", len(got))
	}
	if got[0].Bid != 1.1001 || got[1].Bid != 1.1002 {
		t.Errorf("ReadTicks() bids = %v, %v, want 1.1001, 1.1002", got[0].Bid, got[1].Bid)
	}

	symbols, err := ps.ListSymbols(ctx)
	if err != nil {
		t.Fatalf("ListSymbols() error = %v", err)
	}
	if len(symbols) != 2 || symbols[0] != "EURUSD" || symbols[1] != "GBPUSD" {
		t.Errorf("ListSymbols() = %v, want [EURUSD GBPUSD]", symbols)
	}
}

func TestParquetTickStoreMergesExisting(t *testing.T) {
	dir := t.TempDir()
	ps := NewParquetTickStore(dir)
	ctx := context.Background()

	base := time.Date(2026, 3, 17, 9, 0, 0, 0, time.UTC)
	first := []domain.Tick{
		{Symbol: "EURUSD", Time: base, Bid: 1.1001, Ask: 1.1003},
	}
	second := []domain.Tick{
		// Same timestamp: replaces the first write.
		{Symbol: "EURUSD", Time: base, Bid: 1.1005, Ask: 1.1007},
		{Symbol: "EURUSD", Time: base.Add(time.Second), Bid: 1.1006, Ask: 1.1008},
	}
	if err := ps.WriteTicks(ctx, first); err != nil {
		t.Fatalf("WriteTicks() [first] error = %v", err)
	}
	if err := ps.WriteTicks(ctx, second); err != nil {
		t.Fatalf("WriteTicks() [second] error = %v", err)
	}

	got, err := ps.ReadTicks(ctx, "EURUSD", base, base.Add(time.Minute))
	if err != nil {
		t.Fatalf("ReadTicks() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ReadTicks() returned %d ticks, want 2 (merged, not appended)", len(got))
	}
	if got[0].Bid != 1.1005 {
		t.Errorf("merged tick bid = %v, want 1.1005 (incoming wins)", got[0].Bid)
	}
}

func TestSQLiteJournalRecordEntries(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "journal.db")
	j, err := NewSQLiteJournal(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteJournal() error = %v", err)
	}
	defer j.Close()
	ctx := context.Background()

	base := time.Date(2026, 3, 17, 10, 0, 0, 0, time.UTC)
	entries := []OrderEntry{
		{Ticket: 101, Symbol: "EURUSD", Side: domain.SideBuy, Type: domain.OrderTypeMarket,
			Action: "submit", Volume: 0.16, Price: 1.1003, Retcode: 10009, Time: base},
		{Ticket: 102, Symbol: "GBPUSD", Side: domain.SideSell, Type: domain.OrderTypeLimit,
			Action: "submit", Volume: 0.5, Price: 1.2700, Retcode: 10009, Time: base.Add(time.Second)},
		{Ticket: 101, Symbol: "EURUSD", Side: domain.SideBuy, Type: domain.OrderTypeMarket,
			Action: "close", Volume: 0.16, Retcode: 10009, Time: base.Add(2 * time.Second)},
	}
	for _, e := range entries {
		if err := j.Record(ctx, e); err != nil {
			t.Fatalf("Record(%+v) error = %v", e, err)
		}
	}

	all, err := j.Entries(ctx, "", 10)
	if err != nil {
		t.Fatalf("Entries() error = %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("Entries() returned %d entries, want 3", len(all))
	}
	// Newest first.
	if all[0].Action != "close" || all[0].Ticket != 101 {
		t.Errorf("Entries()[0] = %+v, want the close of ticket 101", all[0])
	}

	eur, err := j.Entries(ctx, "EURUSD", 10)
	if err != nil {
		t.Fatalf("Entries(EURUSD) error = %v", err)
	}
	if len(eur) != 2 {
		t.Errorf("Entries(EURUSD) returned %d entries, want 2", len(eur))
	}

	limited, err := j.Entries(ctx, "", 1)
	if err != nil {
		t.Fatalf("Entries(limit=1) error = %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("Entries(limit=1) returned %d entries, want 1", len(limited))
	}
}
