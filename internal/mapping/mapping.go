// Package mapping resolves raw exchange symbols to canonical tickers, lot
// sizes and underlying descriptors using the futures mapping sheet.
package mapping

import (
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kpatel-quant/fnopipeline/internal/models"
)

// Entry is one resolved mapping row.
type Entry struct {
	Symbol     string  `json:"symbol"`
	Ticker     string  `json:"ticker"`
	Underlying string  `json:"underlying"`
	Exchange   string  `json:"exchange"`
	LotSize    float64 `json:"lot_size"`
}

// indexRule carries the per-index ticker split: index futures and index
// options trade under different Bloomberg roots.
type indexRule struct {
	futuresTicker string
	optionsTicker string
}

// indexRules match the index families by any of their aliases.
var indexRules = map[string]indexRule{
	"NIFTY":      {"NZ", "NIFTY"},
	"NZ":         {"NZ", "NIFTY"},
	"BANKNIFTY":  {"AF1", "NSEBANK"},
	"AF1":        {"AF1", "NSEBANK"},
	"AF":         {"AF1", "NSEBANK"},
	"NSEBANK":    {"AF1", "NSEBANK"},
	"MIDCPNIFTY": {"RNS", "NMIDSELP"},
	"RNS":        {"RNS", "NMIDSELP"},
	"NMIDSELP":   {"RNS", "NMIDSELP"},
	"MCN":        {"RNS", "NMIDSELP"},
}

// Unmapped is one symbol that could not be resolved, with enough context to
// extend the mapping sheet.
type Unmapped struct {
	Source string
	Symbol string
	Expiry time.Time
	Lots   float64
}

// Table is the loaded mapping table. Lookups are case-sensitive first with
// an upper-cased fallback; resolution failures are collected, not fatal.
type Table struct {
	exact    map[string]Entry
	upper    map[string]Entry
	unmapped []Unmapped
	logger   *log.Logger
}

// NewTable builds a table from raw rows (header row optional). Expected
// columns: Symbol, Ticker, Underlying, Exchange, Lot_Size.
func NewTable(rows [][]string, logger *log.Logger) *Table {
	if logger == nil {
		logger = log.New(os.Stderr, "", log.LstdFlags)
	}
	t := &Table{
		exact:  make(map[string]Entry),
		upper:  make(map[string]Entry),
		logger: logger,
	}

	for i, row := range rows {
		if len(row) < 2 {
			continue
		}
		symbol := strings.TrimSpace(row[0])
		ticker := strings.TrimSpace(row[1])
		if symbol == "" || ticker == "" {
			continue
		}
		if i == 0 && strings.EqualFold(symbol, "symbol") {
			continue
		}

		e := Entry{Symbol: symbol, Ticker: ticker, LotSize: 1}
		if len(row) > 2 {
			e.Underlying = strings.TrimSpace(row[2])
		}
		if len(row) > 3 {
			e.Exchange = strings.TrimSpace(row[3])
		}
		if len(row) > 4 {
			if lot, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(row[4]), ",", ""), 64); err == nil && lot > 0 {
				e.LotSize = lot
			}
		}
		if e.Underlying == "" {
			e.Underlying = defaultUnderlying(symbol, ticker)
		}

		t.exact[symbol] = e
		t.upper[strings.ToUpper(symbol)] = e
	}

	return t
}

// LoadCSV reads the mapping sheet from a CSV file.
func LoadCSV(path string, logger *log.Logger) (*Table, error) {
	f, err := os.Open(path) // #nosec G304 -- mapping path is operator-supplied
	if err != nil {
		return nil, fmt.Errorf("opening mapping file: %w", err)
	}
	defer func() { _ = f.Close() }()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading mapping file: %w", err)
	}

	t := NewTable(rows, logger)
	if t.Len() == 0 {
		return nil, fmt.Errorf("mapping file %s contains no usable rows", path)
	}
	return t, nil
}

// Len returns the number of distinct symbols in the table.
func (t *Table) Len() int {
	return len(t.exact)
}

// Resolve looks a symbol up. Index families resolve by rule before the
// table is consulted because their futures and options trade under
// different roots. The boolean is false when the symbol is unknown; the
// caller decides whether to record it (RecordUnmapped).
func (t *Table) Resolve(symbol string, securityType models.SecurityType) (Entry, bool) {
	trimmed := strings.TrimSpace(symbol)
	if trimmed == "" {
		return Entry{}, false
	}

	if rule, ok := indexRules[strings.ToUpper(trimmed)]; ok {
		ticker := rule.optionsTicker
		if securityType == models.SecurityFutures {
			ticker = rule.futuresTicker
		}
		return Entry{
			Symbol:     trimmed,
			Ticker:     ticker,
			Underlying: fmt.Sprintf("%s INDEX", strings.ToUpper(trimmed)),
			LotSize:    indexLotSize(trimmed),
		}, true
	}

	if e, ok := t.exact[trimmed]; ok {
		return e, true
	}
	if e, ok := t.upper[strings.ToUpper(trimmed)]; ok {
		return e, true
	}
	return Entry{}, false
}

// RecordUnmapped remembers a resolution miss for the missing-mappings
// report. The run keeps going; unmapped rows are skipped, never guessed.
func (t *Table) RecordUnmapped(source, symbol string, expiry time.Time, lots float64) {
	t.unmapped = append(t.unmapped, Unmapped{Source: source, Symbol: symbol, Expiry: expiry, Lots: lots})
	t.logger.Printf("unmapped symbol %q from %s", symbol, source)
}

// UnmappedCount returns the number of recorded resolution misses.
func (t *Table) UnmappedCount() int {
	return len(t.unmapped)
}

// UnmappedSymbols returns a copy of the recorded resolution misses in
// record order.
func (t *Table) UnmappedSymbols() []Unmapped {
	out := make([]Unmapped, len(t.unmapped))
	copy(out, t.unmapped)
	return out
}

// EffectiveLotSize applies the lot size precedence: explicit row value,
// then mapping table, then 1.
func EffectiveLotSize(rowLot, tableLot float64) float64 {
	if rowLot > 0 {
		return rowLot
	}
	if tableLot > 0 {
		return tableLot
	}
	return 1
}

// defaultUnderlying fills the underlying descriptor when the sheet leaves it
// blank.
func defaultUnderlying(symbol, ticker string) string {
	if _, ok := indexRules[strings.ToUpper(symbol)]; ok || strings.Contains(strings.ToUpper(symbol), "NIFTY") {
		return fmt.Sprintf("%s INDEX", strings.ToUpper(symbol))
	}
	return fmt.Sprintf("%s IS Equity", ticker)
}

// indexLotSize is the fallback lot size for index families.
func indexLotSize(symbol string) float64 {
	if strings.Contains(strings.ToUpper(symbol), "NIFTY") {
		return 50
	}
	return 15
}
