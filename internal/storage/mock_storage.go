package storage

import (
	"time"
)

// MockStorage implements Interface for testing
type MockStorage struct {
	saveError     error
	loadError     error
	prices        map[string]PriceEntry
	latestRun     *RunSummary
	runs          []RunSummary
	unmapped      []UnmappedRecord
	saveCallCount int
	loadCallCount int
}

// NewMockStorage creates a new mock storage for testing
func NewMockStorage() *MockStorage {
	return &MockStorage{
		prices: make(map[string]PriceEntry),
	}
}

// Quote cache methods
func (m *MockStorage) CachedPrice(symbol string) (PriceEntry, bool) {
	entry, ok := m.prices[cacheKey(symbol)]
	return entry, ok
}

func (m *MockStorage) CachedPrices() []PriceEntry {
	out := make([]PriceEntry, 0, len(m.prices))
	for _, entry := range m.prices {
		out = append(out, entry)
	}
	return out
}

func (m *MockStorage) SetCachedPrice(entry PriceEntry) error {
	if entry.FetchedAt.IsZero() {
		entry.FetchedAt = time.Now()
	}
	m.prices[cacheKey(entry.Symbol)] = entry
	return nil
}

func (m *MockStorage) SetCachedPrices(entries []PriceEntry) error {
	for _, entry := range entries {
		if err := m.SetCachedPrice(entry); err != nil {
			return err
		}
	}
	return nil
}

func (m *MockStorage) PruneCache(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)
	pruned := 0
	for key, entry := range m.prices {
		if entry.FetchedAt.Before(cutoff) {
			delete(m.prices, key)
			pruned++
		}
	}
	return pruned
}

// Run history methods
func (m *MockStorage) LatestRun() *RunSummary {
	if m.latestRun == nil {
		return nil
	}
	run := *m.latestRun
	return &run
}

func (m *MockStorage) RecordRun(summary RunSummary) error {
	m.runs = append(m.runs, summary)
	m.latestRun = &summary
	return nil
}

func (m *MockStorage) RunHistory() []RunSummary {
	return m.runs
}

func (m *MockStorage) LastRunOfKind(kind string) (*RunSummary, error) {
	for i := len(m.runs) - 1; i >= 0; i-- {
		if m.runs[i].Kind == kind {
			run := m.runs[i]
			return &run, nil
		}
	}
	return nil, ErrNoRuns
}

// Unmapped-symbol backlog methods
func (m *MockStorage) RecordUnmapped(records []UnmappedRecord) error {
	for _, rec := range records {
		if rec.SeenAt.IsZero() {
			rec.SeenAt = time.Now()
		}
		m.unmapped = upsertUnmapped(m.unmapped, rec)
	}
	return nil
}

func (m *MockStorage) UnmappedRecords() []UnmappedRecord {
	return m.unmapped
}

func (m *MockStorage) ClearUnmapped() error {
	m.unmapped = nil
	return nil
}

// Data persistence methods (mocked)
func (m *MockStorage) Save() error {
	m.saveCallCount++
	return m.saveError
}

func (m *MockStorage) Load() error {
	m.loadCallCount++
	return m.loadError
}

// Mock control methods for testing
func (m *MockStorage) SetSaveError(err error) {
	m.saveError = err
}

func (m *MockStorage) SetLoadError(err error) {
	m.loadError = err
}

func (m *MockStorage) GetSaveCallCount() int {
	return m.saveCallCount
}

func (m *MockStorage) GetLoadCallCount() int {
	return m.loadCallCount
}

// Ensure MockStorage implements Interface
var _ Interface = (*MockStorage)(nil)
