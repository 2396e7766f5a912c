// Package storage persists pipeline artifacts between runs: the quote
// cache, run summaries for the dashboard, and the unmapped-symbol backlog.
package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// Run kinds recorded in summaries. They mirror the CLI subcommands.
const (
	KindProcess      = "process"
	KindDeliverables = "deliverables"
	KindExpiry       = "expiry"
	KindRecon        = "recon"
	KindBrokers      = "brokers"
)

// maxRunHistory bounds the run log so the storage file stays small.
const maxRunHistory = 50

// PriceEntry is one cached quote.
type PriceEntry struct {
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	Currency  string    `json:"currency,omitempty"`
	Source    string    `json:"source,omitempty"`
	FetchedAt time.Time `json:"fetched_at"`
}

// RunSummary records the outcome of one pipeline run.
type RunSummary struct {
	RunID      string    `json:"run_id"`
	Kind       string    `json:"kind"`
	Account    string    `json:"account,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	InputFiles []string  `json:"input_files,omitempty"`
	Positions  int       `json:"positions"`
	Trades     int       `json:"trades"`
	Reversals  int       `json:"reversals"`
	Malformed  int       `json:"malformed_rows"`
	Unmapped   int       `json:"unmapped_symbols"`
	MatchRate  float64   `json:"match_rate,omitempty"`
	Outputs    []string  `json:"outputs,omitempty"`
	Errors     []string  `json:"errors,omitempty"`
}

// UnmappedRecord is one symbol awaiting a mapping sheet entry. The backlog
// keeps one record per (source, symbol, expiry); repeats replace the
// earlier record.
type UnmappedRecord struct {
	Source string    `json:"source"`
	Symbol string    `json:"symbol"`
	Expiry time.Time `json:"expiry"`
	Lots   float64   `json:"lots"`
	SeenAt time.Time `json:"seen_at"`
}

// JSONStorage persists all pipeline artifacts in a single JSON file.
type JSONStorage struct {
	mu       sync.RWMutex
	filepath string
	data     *storeData
}

type storeData struct {
	PriceCache  map[string]PriceEntry `json:"price_cache"`
	LatestRun   *RunSummary           `json:"latest_run,omitempty"`
	Runs        []RunSummary          `json:"runs,omitempty"`
	Unmapped    []UnmappedRecord      `json:"unmapped,omitempty"`
	LastUpdated time.Time             `json:"last_updated"`
}

func newStoreData() *storeData {
	return &storeData{PriceCache: make(map[string]PriceEntry)}
}

// NewJSONStorage opens (or initializes) the storage file at filepath.
func NewJSONStorage(filepath string) (*JSONStorage, error) {
	s := &JSONStorage{
		filepath: filepath,
		data:     newStoreData(),
	}

	// Load existing data if file exists
	if _, err := os.Stat(filepath); err == nil {
		if err := s.Load(); err != nil {
			return nil, fmt.Errorf("loading storage: %w", err)
		}
	}

	return s, nil
}

func (s *JSONStorage) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.filepath)
	if err != nil {
		return err
	}

	data := newStoreData()
	if err := json.Unmarshal(raw, data); err != nil {
		return err
	}
	if data.PriceCache == nil {
		data.PriceCache = make(map[string]PriceEntry)
	}
	s.data = data

	return nil
}

func (s *JSONStorage) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

// saveLocked writes the file; the caller must hold the write lock.
func (s *JSONStorage) saveLocked() error {
	s.data.LastUpdated = time.Now()

	raw, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return err
	}

	// Write to temp file first
	tmpFile := s.filepath + ".tmp"
	if err := os.WriteFile(tmpFile, raw, 0o644); err != nil {
		return err
	}

	// Atomic rename
	return os.Rename(tmpFile, s.filepath)
}

// cacheKey normalizes cache lookups; quote symbols arrive in mixed case.
func cacheKey(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

func (s *JSONStorage) CachedPrice(symbol string) (PriceEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.data.PriceCache[cacheKey(symbol)]
	return entry, ok
}

func (s *JSONStorage) CachedPrices() []PriceEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]PriceEntry, 0, len(s.data.PriceCache))
	for _, entry := range s.data.PriceCache {
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

func (s *JSONStorage) SetCachedPrice(entry PriceEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putPrice(entry)
	return s.saveLocked()
}

func (s *JSONStorage) SetCachedPrices(entries []PriceEntry) error {
	if len(entries) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, entry := range entries {
		s.putPrice(entry)
	}
	return s.saveLocked()
}

func (s *JSONStorage) putPrice(entry PriceEntry) {
	key := cacheKey(entry.Symbol)
	if key == "" {
		return
	}
	if entry.FetchedAt.IsZero() {
		entry.FetchedAt = time.Now()
	}
	s.data.PriceCache[key] = entry
}

// PruneCache drops cached quotes older than maxAge and returns how many
// were removed. The caller decides when to Save.
func (s *JSONStorage) PruneCache(maxAge time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	pruned := 0
	for key, entry := range s.data.PriceCache {
		if entry.FetchedAt.Before(cutoff) {
			delete(s.data.PriceCache, key)
			pruned++
		}
	}
	return pruned
}

func (s *JSONStorage) LatestRun() *RunSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.data.LatestRun == nil {
		return nil
	}
	run := *s.data.LatestRun
	return &run
}

func (s *JSONStorage) RecordRun(summary RunSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data.Runs = append(s.data.Runs, summary)
	if len(s.data.Runs) > maxRunHistory {
		s.data.Runs = s.data.Runs[len(s.data.Runs)-maxRunHistory:]
	}
	s.data.LatestRun = &summary

	return s.saveLocked()
}

func (s *JSONStorage) RunHistory() []RunSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]RunSummary, len(s.data.Runs))
	copy(out, s.data.Runs)
	return out
}

// LastRunOfKind returns the most recent run of the given kind, or ErrNoRuns.
func (s *JSONStorage) LastRunOfKind(kind string) (*RunSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := len(s.data.Runs) - 1; i >= 0; i-- {
		if s.data.Runs[i].Kind == kind {
			run := s.data.Runs[i]
			return &run, nil
		}
	}
	return nil, ErrNoRuns
}

func (s *JSONStorage) RecordUnmapped(records []UnmappedRecord) error {
	if len(records) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for _, rec := range records {
		if rec.SeenAt.IsZero() {
			rec.SeenAt = now
		}
		s.data.Unmapped = upsertUnmapped(s.data.Unmapped, rec)
	}

	return s.saveLocked()
}

func upsertUnmapped(records []UnmappedRecord, rec UnmappedRecord) []UnmappedRecord {
	for i, existing := range records {
		if existing.Source == rec.Source && existing.Symbol == rec.Symbol && existing.Expiry.Equal(rec.Expiry) {
			records[i] = rec
			return records
		}
	}
	return append(records, rec)
}

func (s *JSONStorage) UnmappedRecords() []UnmappedRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]UnmappedRecord, len(s.data.Unmapped))
	copy(out, s.data.Unmapped)
	return out
}

// ClearUnmapped empties the backlog, typically after the mapping sheet has
// been extended.
func (s *JSONStorage) ClearUnmapped() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.Unmapped = nil
	return s.saveLocked()
}
