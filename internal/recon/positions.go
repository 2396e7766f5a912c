// Package recon compares position books and trade populations between this
// system and external statements (PMS exports, broker files). Comparisons
// classify by ticker and never mutate either side.
package recon

import (
	"fmt"
	"io"
	"log"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/kpatel-quant/fnopipeline/internal/models"
)

// Status classifies one ticker across the two sides of a reconciliation.
type Status string

const (
	StatusMatched    Status = "MATCHED"
	StatusMismatch   Status = "MISMATCH"
	StatusMissingInA Status = "MISSING_IN_A"
	StatusMissingInB Status = "MISSING_IN_B"
)

// Line is one ticker's comparison. Diff is side A minus side B.
type Line struct {
	Ticker string  `json:"ticker"`
	LotsA  float64 `json:"lots_a"`
	LotsB  float64 `json:"lots_b"`
	Diff   float64 `json:"diff"`
	Status Status  `json:"status"`
}

// Summary is a full reconciliation pass over the ticker union of both
// sides. Lines are sorted by ticker.
type Summary struct {
	Stage      string  `json:"stage"`
	SideA      string  `json:"side_a"`
	SideB      string  `json:"side_b"`
	Lines      []Line  `json:"lines"`
	Matched    int     `json:"matched"`
	Mismatched int     `json:"mismatched"`
	MissingInA int     `json:"missing_in_a"`
	MissingInB int     `json:"missing_in_b"`
	MatchRate  float64 `json:"match_rate"`
}

// Discrepancies counts every line that is not matched.
func (s *Summary) Discrepancies() int {
	return s.Mismatched + s.MissingInA + s.MissingInB
}

// Engine reconciles lot maps. Tolerance is the absolute lot difference
// treated as equal; zero demands exact equality.
type Engine struct {
	tolerance float64
	logger    *log.Logger
}

func NewEngine(tolerance float64, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Engine{tolerance: tolerance, logger: logger}
}

// Reconcile walks the union of tickers on both sides and classifies each.
func (e *Engine) Reconcile(stage, sideA, sideB string, a, b map[string]float64) *Summary {
	s := &Summary{Stage: stage, SideA: sideA, SideB: sideB}

	tickers := make([]string, 0, len(a)+len(b))
	seen := make(map[string]bool, len(a)+len(b))
	for t := range a {
		tickers = append(tickers, t)
		seen[t] = true
	}
	for t := range b {
		if !seen[t] {
			tickers = append(tickers, t)
		}
	}
	sort.Strings(tickers)

	for _, t := range tickers {
		lotsA, inA := a[t]
		lotsB, inB := b[t]
		line := Line{Ticker: t, LotsA: lotsA, LotsB: lotsB, Diff: lotsA - lotsB}
		switch {
		case inA && inB && e.equal(lotsA, lotsB):
			line.Status = StatusMatched
			s.Matched++
		case inA && inB:
			line.Status = StatusMismatch
			s.Mismatched++
		case inA:
			line.Status = StatusMissingInB
			s.MissingInB++
		default:
			line.Status = StatusMissingInA
			s.MissingInA++
		}
		s.Lines = append(s.Lines, line)
	}

	if len(s.Lines) == 0 {
		s.MatchRate = 100
	} else {
		s.MatchRate = 100 * float64(s.Matched) / float64(len(s.Lines))
	}
	e.logger.Printf("%s recon %s vs %s: %d matched, %d discrepancies (rate %.1f%%)",
		stage, sideA, sideB, s.Matched, s.Discrepancies(), s.MatchRate)
	return s
}

func (e *Engine) equal(a, b float64) bool {
	return math.Abs(a-b) <= e.tolerance
}

// LotsByTicker folds a position snapshot into a ticker-keyed lot map.
// Flat positions drop out so they reconcile as absent, not as zero.
func LotsByTicker(positions []models.Position) map[string]float64 {
	out := make(map[string]float64, len(positions))
	for i := range positions {
		p := &positions[i]
		if p.Flat() {
			continue
		}
		out[p.StoreKey()] += p.Lots
	}
	return out
}

// ParseStatement reads a counterparty position export. The ticker column is
// whichever header mentions symbol or ticker, the lot column whichever
// mentions position, qty or quantity; files without a recognizable header
// fall back to the first two columns. Non-numeric lot cells are skipped.
func ParseStatement(rows [][]string) (map[string]float64, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("statement is empty")
	}

	symCol, lotCol := 0, 1
	start := 0
	for i, h := range rows[0] {
		hl := strings.ToLower(strings.TrimSpace(h))
		switch {
		case strings.Contains(hl, "symbol") || strings.Contains(hl, "ticker"):
			symCol = i
			start = 1
		case strings.Contains(hl, "position") || strings.Contains(hl, "qty") || strings.Contains(hl, "quantity"):
			lotCol = i
			start = 1
		}
	}

	out := make(map[string]float64)
	for i := start; i < len(rows); i++ {
		row := rows[i]
		if lotCol >= len(row) || symCol >= len(row) {
			continue
		}
		sym := strings.TrimSpace(row[symCol])
		if sym == "" {
			continue
		}
		lots, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(row[lotCol]), ",", ""), 64)
		if err != nil {
			continue
		}
		out[sym] += lots
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("statement has no parseable positions")
	}
	return out, nil
}
