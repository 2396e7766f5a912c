package quotes

import (
	"context"
	"fmt"
	"time"
)

// StaticProvider serves prices from a fixed table. Used by tests and by
// offline runs where a price sheet replaces live fetching.
type StaticProvider struct {
	prices map[string]float64
}

func NewStaticProvider(prices map[string]float64) *StaticProvider {
	normalized := make(map[string]float64, len(prices))
	for ticker, price := range prices {
		key := CleanTicker(ticker)
		if key == "" || price <= 0 {
			continue
		}
		normalized[key] = price
	}
	return &StaticProvider{prices: normalized}
}

func (s *StaticProvider) GetPrice(_ context.Context, ticker string) (PriceQuote, error) {
	key := CleanTicker(ticker)
	if price, ok := s.prices[key]; ok {
		return PriceQuote{Symbol: key, Price: price, Source: SourceStatic, FetchedAt: time.Now()}, nil
	}
	return PriceQuote{}, fmt.Errorf("%w: %s", ErrUnavailable, ticker)
}
