// Package quotes resolves spot prices for underlyings. A live Yahoo client
// sits behind layers for caching, manual overrides, and circuit breaking;
// a static provider serves tests and offline runs.
package quotes

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrUnavailable is returned when no source can produce a price for a ticker.
var ErrUnavailable = errors.New("price unavailable")

// Quote sources reported in PriceQuote.Source.
const (
	SourceYahoo  = "yahoo"
	SourceManual = "manual"
	SourceCache  = "cache"
	SourceStatic = "static"
)

// PriceQuote is a resolved spot price.
type PriceQuote struct {
	Symbol    string
	Price     float64
	Currency  string
	Source    string
	FetchedAt time.Time
}

// Provider resolves one ticker to a spot price.
type Provider interface {
	GetPrice(ctx context.Context, ticker string) (PriceQuote, error)
}

// bloombergSuffixes are stripped before a ticker goes to a quote source.
// First match wins, so the compound suffix sits ahead of its tail.
var bloombergSuffixes = []string{
	" IS EQUITY",
	" EQUITY",
	" INDEX",
	"-EQ",
	"_EQ",
	".EQ",
	"-BE",
	".BE",
	"-BZ",
	".BZ",
}

// CleanTicker uppercases a ticker and strips Bloomberg-style suffixes so
// "TATAMOTORS IS Equity" and "TATAMOTORS" hit the same quote symbol.
func CleanTicker(ticker string) string {
	s := strings.ToUpper(strings.TrimSpace(ticker))
	for _, suffix := range bloombergSuffixes {
		if strings.HasSuffix(s, suffix) {
			s = strings.TrimSpace(strings.TrimSuffix(s, suffix))
			break
		}
	}
	return s
}
