// Package positions holds the in-memory position book for one account run.
// Positions load from the parsed files, trades apply against them in file
// order, and snapshots come out sorted so downstream artifacts are stable.
package positions

import (
	"io"
	"log"
	"sort"
	"sync"

	"github.com/kpatel-quant/fnopipeline/internal/models"
)

// Store is the net position book keyed by Bloomberg ticker (identity key
// when no ticker was mapped). Safe for concurrent readers.
type Store struct {
	mu     sync.RWMutex
	byKey  map[string]models.Position
	logger *log.Logger
}

func NewStore(logger *log.Logger) *Store {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Store{
		byKey:  make(map[string]models.Position),
		logger: logger,
	}
}

// Load merges parsed positions into the book. The same contract appearing
// in several files (or several rows of one file) nets into one entry.
func (s *Store) Load(positions []models.Position) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range positions {
		key := p.StoreKey()
		if existing, ok := s.byKey[key]; ok {
			existing.Lots += p.Lots
			s.byKey[key] = existing
			continue
		}
		s.byKey[key] = p
	}
	s.logger.Printf("position book holds %d contracts after load", len(s.byKey))
}

// Lots returns the current net lots for a key, zero when the book has no
// entry. Strategy assignment decides FOLLOWING versus OPPOSING off this.
func (s *Store) Lots(key string) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.byKey[key].Lots
}

// Get returns the current entry for a key.
func (s *Store) Get(key string) (models.Position, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.byKey[key]
	return p, ok
}

// Apply adjusts the book by one processed trade, creating the entry when
// the trade opens a fresh contract.
func (s *Store) Apply(pt models.ProcessedTrade) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := pt.StoreKey()
	if existing, ok := s.byKey[key]; ok {
		existing.Lots += pt.Lots
		s.byKey[key] = existing
		return
	}
	s.byKey[key] = models.Position{
		InstrumentIdentity: pt.InstrumentIdentity,
		BloombergTicker:    pt.BloombergTicker,
		Underlying:         pt.Underlying,
		Account:            pt.Account,
		Lots:               pt.Lots,
		LotSize:            pt.LotSize,
	}
}

// Snapshot returns the non-flat positions sorted by key. Contracts traded
// flat during the run drop out, matching how the books are reported.
func (s *Store) Snapshot() []models.Position {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Position, 0, len(s.byKey))
	for _, p := range s.byKey {
		if p.Flat() {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StoreKey() < out[j].StoreKey()
	})
	return out
}

// Len counts all entries including flat ones.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byKey)
}
