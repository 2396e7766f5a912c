package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func tempStorePath(t *testing.T) string {
	return filepath.Join(t.TempDir(), "pipeline.json")
}

func TestNewJSONStorage(t *testing.T) {
	path := tempStorePath(t)

	storage, err := NewJSONStorage(path)
	if err != nil {
		t.Fatalf("NewJSONStorage failed: %v", err)
	}

	if storage == nil {
		t.Fatal("Expected non-nil storage")
	}

	// Verify initial state
	if got := len(storage.CachedPrices()); got != 0 {
		t.Errorf("Expected 0 initial cached prices, got %d", got)
	}
	if storage.LatestRun() != nil {
		t.Error("Expected no latest run initially")
	}
}

func TestJSONStorageRoundTrip(t *testing.T) {
	path := tempStorePath(t)

	first, err := NewJSONStorage(path)
	if err != nil {
		t.Fatalf("NewJSONStorage failed: %v", err)
	}

	err = first.SetCachedPrice(PriceEntry{Symbol: "RELIANCE", Price: 2840.5, Source: "yahoo"})
	if err != nil {
		t.Fatalf("SetCachedPrice failed: %v", err)
	}
	err = first.RecordRun(RunSummary{RunID: "run-9", Kind: KindDeliverables, MatchRate: 97.5})
	if err != nil {
		t.Fatalf("RecordRun failed: %v", err)
	}

	// A second instance on the same path sees the persisted data.
	second, err := NewJSONStorage(path)
	if err != nil {
		t.Fatalf("Reopen failed: %v", err)
	}

	entry, ok := second.CachedPrice("reliance")
	if !ok {
		t.Fatal("Expected persisted price after reopen")
	}
	if entry.Price != 2840.5 {
		t.Errorf("Expected price 2840.5, got %v", entry.Price)
	}
	if entry.FetchedAt.IsZero() {
		t.Error("Expected FetchedAt to be stamped on save")
	}

	latest := second.LatestRun()
	if latest == nil {
		t.Fatal("Expected persisted latest run after reopen")
	}
	if latest.RunID != "run-9" || latest.Kind != KindDeliverables {
		t.Errorf("Unexpected latest run %+v", latest)
	}

	// The temp file from the atomic write must not linger.
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Errorf("Expected no leftover temp file, stat err = %v", err)
	}
}

func TestJSONStorageCorruptFile(t *testing.T) {
	path := tempStorePath(t)
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("writing corrupt file: %v", err)
	}

	if _, err := NewJSONStorage(path); err == nil {
		t.Fatal("Expected error for corrupt storage file")
	}
}

func TestPruneCacheDropsStaleEntries(t *testing.T) {
	storage, err := NewJSONStorage(tempStorePath(t))
	if err != nil {
		t.Fatalf("NewJSONStorage failed: %v", err)
	}

	err = storage.SetCachedPrices([]PriceEntry{
		{Symbol: "STALE", Price: 10, FetchedAt: time.Now().Add(-2 * time.Hour)},
		{Symbol: "FRESH", Price: 20, FetchedAt: time.Now()},
	})
	if err != nil {
		t.Fatalf("SetCachedPrices failed: %v", err)
	}

	if pruned := storage.PruneCache(time.Hour); pruned != 1 {
		t.Errorf("Expected 1 pruned entry, got %d", pruned)
	}
	if _, ok := storage.CachedPrice("STALE"); ok {
		t.Error("Expected stale entry to be gone")
	}
	if _, ok := storage.CachedPrice("FRESH"); !ok {
		t.Error("Expected fresh entry to survive")
	}
}

func TestRunHistoryCapped(t *testing.T) {
	storage, err := NewJSONStorage(tempStorePath(t))
	if err != nil {
		t.Fatalf("NewJSONStorage failed: %v", err)
	}

	for i := 0; i < maxRunHistory+5; i++ {
		summary := RunSummary{RunID: string(rune('a'+i%26)) + "-run", Kind: KindProcess, Positions: i}
		if err := storage.RecordRun(summary); err != nil {
			t.Fatalf("RecordRun %d failed: %v", i, err)
		}
	}

	history := storage.RunHistory()
	if len(history) != maxRunHistory {
		t.Fatalf("Expected history capped at %d, got %d", maxRunHistory, len(history))
	}
	// Oldest entries dropped, newest kept.
	if history[len(history)-1].Positions != maxRunHistory+4 {
		t.Errorf("Expected newest run retained, got %+v", history[len(history)-1])
	}
}

func TestCachedPricesSorted(t *testing.T) {
	storage, err := NewJSONStorage(tempStorePath(t))
	if err != nil {
		t.Fatalf("NewJSONStorage failed: %v", err)
	}

	err = storage.SetCachedPrices([]PriceEntry{
		{Symbol: "TATAMOTORS", Price: 712},
		{Symbol: "BAJAJ-AUTO", Price: 8950},
		{Symbol: "NIFTY", Price: 24500},
	})
	if err != nil {
		t.Fatalf("SetCachedPrices failed: %v", err)
	}

	got := storage.CachedPrices()
	want := []string{"BAJAJ-AUTO", "NIFTY", "TATAMOTORS"}
	if len(got) != len(want) {
		t.Fatalf("Expected %d entries, got %d", len(want), len(got))
	}
	for i, sym := range want {
		if got[i].Symbol != sym {
			t.Errorf("Entry %d: expected %s, got %s", i, sym, got[i].Symbol)
		}
	}
}
