package models

import (
	"fmt"
	"strings"
	"time"
)

// Side is the buy/sell marker from a trade file.
type Side string

const (
	// SideBuy adds lots to the book.
	SideBuy Side = "Buy"
	// SideSell removes lots from the book.
	SideSell Side = "Sell"
)

// Valid returns true if the Side is one of the defined constants
func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// Sign returns +1 for buys and -1 for sells.
func (s Side) Sign() float64 {
	if s == SideBuy {
		return 1
	}
	return -1
}

// ParseSide normalizes the B/S column of a trade file. Files spell it B,
// BUY, S, SELL and the occasional longer variant, so only the first letter
// decides.
func ParseSide(code string) (Side, error) {
	c := strings.ToUpper(strings.TrimSpace(code))
	switch {
	case strings.HasPrefix(c, "B"):
		return SideBuy, nil
	case strings.HasPrefix(c, "S"):
		return SideSell, nil
	default:
		return "", fmt.Errorf("unknown buy/sell code: %q", code)
	}
}

// StrategyLabel classifies a processed trade against the position it was
// applied to.
type StrategyLabel string

const (
	// StrategyFollowing marks a trade whose direction matches the existing
	// position (or opens a fresh one).
	StrategyFollowing StrategyLabel = "FOLLOWING"
	// StrategyOpposing marks a trade that reduces or closes the existing
	// position.
	StrategyOpposing StrategyLabel = "OPPOSING"
)

// Valid returns true if the StrategyLabel is one of the defined constants
func (l StrategyLabel) Valid() bool {
	return l == StrategyFollowing || l == StrategyOpposing
}

// Trade is one row of a trade file after parsing and mapping. Lots carry the
// B/S sign (buys positive, sells negative).
type Trade struct {
	InstrumentIdentity
	BloombergTicker string    `json:"bloomberg_ticker"`
	Underlying      string    `json:"underlying"`
	Account         string    `json:"account,omitempty"`
	CPCode          string    `json:"cp_code,omitempty"`
	TMCode          string    `json:"tm_code,omitempty"`
	Side            Side      `json:"side"`
	Lots            float64   `json:"lots"`
	LotSize         float64   `json:"lot_size"`
	Price           float64   `json:"price"`
	TradeDate       time.Time `json:"trade_date"`
	Brokerage       float64   `json:"brokerage,omitempty"`
	Taxes           float64   `json:"taxes,omitempty"`
	SourceRow       int       `json:"source_row"`

	// Raw preserves the original file row so outputs can re-emit it with
	// appended columns.
	Raw []string `json:"-"`
}

// Quantity returns the signed unit quantity (lots × lot size).
func (t *Trade) Quantity() float64 {
	return t.Lots * t.LotSize
}

// StoreKey returns the position-book key for the trade's contract, matching
// Position.StoreKey so trades land on the position they belong to.
func (t *Trade) StoreKey() string {
	if t.BloombergTicker != "" {
		return t.BloombergTicker
	}
	return t.Key()
}

// ProcessedTrade is a trade after strategy assignment. A split produces two
// ProcessedTrades sharing a ParentID whose lots sum to the original trade.
type ProcessedTrade struct {
	Trade
	Label    StrategyLabel `json:"label"`
	Book     BookCode      `json:"book"`
	Split    bool          `json:"split"`
	Opposite bool          `json:"opposite"`
	ParentID string        `json:"parent_id,omitempty"`
}
