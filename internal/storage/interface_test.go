package storage

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

// TestInterface tests the storage interface with both implementations
func TestInterface(t *testing.T) {
	// Test with MockStorage
	t.Run("MockStorage", func(t *testing.T) {
		storage := NewMockStorage()
		testInterface(t, storage)
	})

	// Test with JSONStorage (using temporary file)
	t.Run("JSONStorage", func(t *testing.T) {
		tmpDir := t.TempDir()
		tmpFile := fmt.Sprintf("%s/test_pipeline_%d.json", tmpDir, time.Now().UnixNano())

		storage, err := NewJSONStorage(tmpFile)
		if err != nil {
			t.Fatalf("Failed to create JSON storage: %v", err)
		}
		testInterface(t, storage)
	})
}

// testInterface runs common tests on any storage implementation
func testInterface(t *testing.T, storage Interface) {
	// Test initial state
	if run := storage.LatestRun(); run != nil {
		t.Error("Expected no latest run initially")
	}
	if _, ok := storage.CachedPrice("RELIANCE"); ok {
		t.Error("Expected empty price cache initially")
	}
	if _, err := storage.LastRunOfKind(KindProcess); !errors.Is(err, ErrNoRuns) {
		t.Errorf("Expected ErrNoRuns on empty history, got %v", err)
	}

	// Test quote cache round trip; keys are case-insensitive
	fetched := time.Date(2025, 6, 20, 15, 30, 0, 0, time.UTC)
	err := storage.SetCachedPrice(PriceEntry{Symbol: "Reliance", Price: 2840.5, Source: "yahoo", FetchedAt: fetched})
	if err != nil {
		t.Fatalf("Failed to cache price: %v", err)
	}

	entry, ok := storage.CachedPrice("RELIANCE")
	if !ok {
		t.Fatal("Expected cached price for RELIANCE")
	}
	if entry.Price != 2840.5 {
		t.Errorf("Expected price 2840.5, got %v", entry.Price)
	}
	if !entry.FetchedAt.Equal(fetched) {
		t.Errorf("Expected fetched-at %v, got %v", fetched, entry.FetchedAt)
	}

	// Batch writes land alongside single writes
	err = storage.SetCachedPrices([]PriceEntry{
		{Symbol: "NIFTY", Price: 24500},
		{Symbol: "TATAMOTORS", Price: 712.3},
	})
	if err != nil {
		t.Fatalf("Failed to cache price batch: %v", err)
	}
	if got := len(storage.CachedPrices()); got != 3 {
		t.Errorf("Expected 3 cached prices, got %d", got)
	}

	// Test run recording
	summary := RunSummary{
		RunID:     "run-1",
		Kind:      KindProcess,
		Account:   "AURIGIN",
		Positions: 42,
		Trades:    17,
	}
	if err := storage.RecordRun(summary); err != nil {
		t.Fatalf("Failed to record run: %v", err)
	}

	latest := storage.LatestRun()
	if latest == nil {
		t.Fatal("Expected latest run, got nil")
	}
	if latest.RunID != "run-1" {
		t.Errorf("Expected run ID run-1, got %s", latest.RunID)
	}
	if latest.Positions != 42 {
		t.Errorf("Expected 42 positions, got %d", latest.Positions)
	}

	byKind, err := storage.LastRunOfKind(KindProcess)
	if err != nil {
		t.Fatalf("LastRunOfKind failed: %v", err)
	}
	if byKind.RunID != "run-1" {
		t.Errorf("Expected run-1 by kind, got %s", byKind.RunID)
	}
	if _, err := storage.LastRunOfKind(KindExpiry); !errors.Is(err, ErrNoRuns) {
		t.Errorf("Expected ErrNoRuns for unseen kind, got %v", err)
	}
	if got := len(storage.RunHistory()); got != 1 {
		t.Errorf("Expected 1 run in history, got %d", got)
	}

	// Test unmapped backlog with dedupe on (source, symbol, expiry)
	expiry := time.Date(2025, 6, 26, 0, 0, 0, 0, time.UTC)
	err = storage.RecordUnmapped([]UnmappedRecord{
		{Source: "positions", Symbol: "NEWSYM", Expiry: expiry, Lots: 5},
	})
	if err != nil {
		t.Fatalf("Failed to record unmapped: %v", err)
	}
	err = storage.RecordUnmapped([]UnmappedRecord{
		{Source: "positions", Symbol: "NEWSYM", Expiry: expiry, Lots: 8},
		{Source: "trades", Symbol: "NEWSYM", Expiry: expiry, Lots: 2},
	})
	if err != nil {
		t.Fatalf("Failed to record unmapped: %v", err)
	}

	records := storage.UnmappedRecords()
	if len(records) != 2 {
		t.Fatalf("Expected 2 unmapped records after dedupe, got %d", len(records))
	}
	if records[0].Lots != 8 {
		t.Errorf("Expected repeat record to replace lots, got %v", records[0].Lots)
	}
	if records[0].SeenAt.IsZero() {
		t.Error("Expected SeenAt to be stamped")
	}

	if err := storage.ClearUnmapped(); err != nil {
		t.Fatalf("Failed to clear unmapped: %v", err)
	}
	if got := len(storage.UnmappedRecords()); got != 0 {
		t.Errorf("Expected empty backlog after clear, got %d", got)
	}

	// Mutate the returned copy; storage should be unaffected.
	latest.Positions = 999
	if storage.LatestRun().Positions == 999 {
		t.Error("LatestRun leaked internal state (mutation visible)")
	}
}

// TestMockStorageSpecificFeatures tests mock-specific features
func TestMockStorageSpecificFeatures(t *testing.T) {
	mock := NewMockStorage()

	// Test error injection
	testErr := &MockError{"test save error"}
	mock.SetSaveError(testErr)

	err := mock.Save()
	if err != testErr {
		t.Errorf("Expected injected save error, got %v", err)
	}

	// Test call counting
	mock.SetSaveError(nil) // Reset error
	if err := mock.Save(); err != nil {
		t.Errorf("Unexpected save error: %v", err)
	}
	if err := mock.Save(); err != nil {
		t.Errorf("Unexpected save error: %v", err)
	}

	if mock.GetSaveCallCount() != 3 { // 2 new + 1 from error test
		t.Errorf("Expected 3 save calls, got %d", mock.GetSaveCallCount())
	}

	mock.SetLoadError(testErr)
	if err := mock.Load(); err != testErr {
		t.Errorf("Expected injected load error, got %v", err)
	}
	if mock.GetLoadCallCount() != 1 {
		t.Errorf("Expected 1 load call, got %d", mock.GetLoadCallCount())
	}
}

// MockError is a simple error type for testing
type MockError struct {
	message string
}

func (e *MockError) Error() string {
	return e.message
}

// TestInterfaceCompliance ensures all implementations satisfy the interface
func TestInterfaceCompliance(t *testing.T) {
	// Test that both implementations satisfy the interface
	var _ Interface = (*MockStorage)(nil)
	var _ Interface = (*JSONStorage)(nil)

	// Test factory function
	tmpFile := fmt.Sprintf("%s/factory.json", t.TempDir())
	storage, err := NewStorage(tmpFile)
	if err != nil {
		t.Fatalf("Factory function failed: %v", err)
	}

	// Ensure factory returns the interface
	_ = storage
}
