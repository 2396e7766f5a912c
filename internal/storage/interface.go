package storage

import "time"

// Interface defines the contract for pipeline artifact persistence.
//
// Implementations must be safe for concurrent use - callers can assume all
// methods are goroutine-safe and can safely call these methods from multiple
// goroutines.
//
// The provided JSONStorage implementation uses sync.RWMutex to serialize
// access, ensuring all Interface methods are protected for concurrent
// readers and writers.
type Interface interface {
	// Quote cache
	CachedPrice(symbol string) (PriceEntry, bool)
	CachedPrices() []PriceEntry
	SetCachedPrice(entry PriceEntry) error
	SetCachedPrices(entries []PriceEntry) error
	PruneCache(maxAge time.Duration) int

	// Run history
	LatestRun() *RunSummary
	RecordRun(summary RunSummary) error
	RunHistory() []RunSummary
	LastRunOfKind(kind string) (*RunSummary, error)

	// Unmapped-symbol backlog
	RecordUnmapped(records []UnmappedRecord) error
	UnmappedRecords() []UnmappedRecord
	ClearUnmapped() error

	// Data persistence
	Save() error
	Load() error
}

// NewStorage creates a new storage implementation (currently JSON-based)
// In the future, this can be extended to support different storage backends
func NewStorage(filepath string) (Interface, error) {
	return NewJSONStorage(filepath)
}

// Ensure JSONStorage implements Interface
var _ Interface = (*JSONStorage)(nil)
