package quotes

import (
	"context"
	"errors"
	"io"
	"log"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kpatel-quant/fnopipeline/internal/storage"
)

// countingProvider records how often the live layer actually gets hit.
type countingProvider struct {
	calls int
	price float64
	err   error
}

func (c *countingProvider) GetPrice(_ context.Context, ticker string) (PriceQuote, error) {
	c.calls++
	if c.err != nil {
		return PriceQuote{}, c.err
	}
	return PriceQuote{
		Symbol:    CleanTicker(ticker),
		Price:     c.price,
		Source:    SourceYahoo,
		FetchedAt: time.Now(),
	}, nil
}

func discardLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func TestCachedProviderManualOverrideWins(t *testing.T) {
	inner := &countingProvider{price: 100}
	p := NewCachedProvider(inner, nil, discardLogger())
	p.SetManualPrices(map[string]float64{"RELIANCE IS Equity": 2980.5})

	q, err := p.GetPrice(context.Background(), "RELIANCE")
	require.NoError(t, err)
	assert.Equal(t, 2980.5, q.Price)
	assert.Equal(t, SourceManual, q.Source)
	assert.Zero(t, inner.calls)
}

func TestCachedProviderMemoizesLiveFetch(t *testing.T) {
	inner := &countingProvider{price: 690.5}
	p := NewCachedProvider(inner, nil, discardLogger())

	first, err := p.GetPrice(context.Background(), "TATAMOTORS IS Equity")
	require.NoError(t, err)
	second, err := p.GetPrice(context.Background(), "TATAMOTORS")
	require.NoError(t, err)

	assert.Equal(t, 1, inner.calls)
	assert.Equal(t, first.Price, second.Price)
}

func TestCachedProviderForceRefresh(t *testing.T) {
	inner := &countingProvider{price: 1498.2}
	p := NewCachedProvider(inner, nil, discardLogger())

	_, err := p.GetPrice(context.Background(), "INFY")
	require.NoError(t, err)

	p.ForceRefresh(true)
	_, err = p.GetPrice(context.Background(), "INFY")
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)

	p.ForceRefresh(false)
	_, err = p.GetPrice(context.Background(), "INFY")
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)
}

func TestCachedProviderOfflineWithoutManualPrice(t *testing.T) {
	p := NewCachedProvider(nil, nil, discardLogger())

	_, err := p.GetPrice(context.Background(), "RELIANCE")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestCachedProviderLiveErrorPassesThrough(t *testing.T) {
	boom := errors.New("quote endpoint down")
	p := NewCachedProvider(&countingProvider{err: boom}, nil, discardLogger())

	_, err := p.GetPrice(context.Background(), "RELIANCE")
	assert.ErrorIs(t, err, boom)
}

func TestCachedProviderPersistsAndWarmsFromStorage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	store, err := storage.NewStorage(path)
	require.NoError(t, err)

	inner := &countingProvider{price: 2985}
	p := NewCachedProvider(inner, store, discardLogger())
	_, err = p.GetPrice(context.Background(), "RIL IS Equity")
	require.NoError(t, err)

	entry, ok := store.CachedPrice("RIL")
	require.True(t, ok)
	assert.Equal(t, float64(2985), entry.Price)

	// A fresh provider over the same store serves the quote without going live.
	inner2 := &countingProvider{price: 9999}
	warmed := NewCachedProvider(inner2, store, discardLogger())
	q, err := warmed.GetPrice(context.Background(), "RIL")
	require.NoError(t, err)
	assert.Equal(t, float64(2985), q.Price)
	assert.Zero(t, inner2.calls)
}
