package quotes

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/kpatel-quant/fnopipeline/internal/storage"
)

// CacheConfig controls quote memoization.
type CacheConfig struct {
	TTL             time.Duration
	CleanupInterval time.Duration
}

// DefaultCacheConfig keeps intraday quotes warm without serving yesterday's
// close from a long-running process.
var DefaultCacheConfig = CacheConfig{
	TTL:             15 * time.Minute,
	CleanupInterval: 5 * time.Minute,
}

// CachedProvider layers manual overrides and a TTL cache over a live
// provider. Lookup precedence: manual price, then cache, then live fetch.
// A nil inner provider makes the layer fully offline.
type CachedProvider struct {
	inner  Provider
	cache  *gocache.Cache
	store  storage.Interface
	logger *log.Logger

	mu      sync.RWMutex
	manual  map[string]float64
	refresh bool
}

func NewCachedProvider(inner Provider, store storage.Interface, logger *log.Logger, config ...CacheConfig) *CachedProvider {
	cfg := DefaultCacheConfig
	if len(config) > 0 {
		if config[0].TTL > 0 {
			cfg.TTL = config[0].TTL
		}
		if config[0].CleanupInterval > 0 {
			cfg.CleanupInterval = config[0].CleanupInterval
		}
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	p := &CachedProvider{
		inner:  inner,
		cache:  gocache.New(cfg.TTL, cfg.CleanupInterval),
		store:  store,
		logger: logger,
		manual: make(map[string]float64),
	}
	p.warm(cfg.TTL)
	return p
}

// warm preloads persisted quotes that are still inside the TTL window.
func (p *CachedProvider) warm(ttl time.Duration) {
	if p.store == nil {
		return
	}

	warmed := 0
	for _, entry := range p.store.CachedPrices() {
		age := time.Since(entry.FetchedAt)
		if age < 0 || age >= ttl || entry.Price <= 0 {
			continue
		}
		source := entry.Source
		if source == "" {
			source = SourceCache
		}
		quote := PriceQuote{
			Symbol:    CleanTicker(entry.Symbol),
			Price:     entry.Price,
			Currency:  entry.Currency,
			Source:    source,
			FetchedAt: entry.FetchedAt,
		}
		p.cache.Set(quote.Symbol, quote, ttl-age)
		warmed++
	}
	if warmed > 0 {
		p.logger.Printf("warmed %d quotes from storage", warmed)
	}
}

// SetManualPrices replaces the override table. Keys are cleaned like any
// other ticker; zero and negative prices are dropped.
func (p *CachedProvider) SetManualPrices(prices map[string]float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.manual = make(map[string]float64, len(prices))
	for ticker, price := range prices {
		key := CleanTicker(ticker)
		if key == "" || price <= 0 {
			continue
		}
		p.manual[key] = price
	}
	p.logger.Printf("loaded %d manual prices", len(p.manual))
}

// ForceRefresh makes subsequent lookups skip the cache read. Fresh quotes
// still land in the cache, and manual overrides keep winning.
func (p *CachedProvider) ForceRefresh(on bool) {
	p.mu.Lock()
	p.refresh = on
	p.mu.Unlock()
}

func (p *CachedProvider) manualPrice(key string) (float64, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	price, ok := p.manual[key]
	return price, ok
}

func (p *CachedProvider) forceRefresh() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.refresh
}

func (p *CachedProvider) GetPrice(ctx context.Context, ticker string) (PriceQuote, error) {
	key := CleanTicker(ticker)
	if key == "" {
		return PriceQuote{}, fmt.Errorf("%w: empty ticker", ErrUnavailable)
	}

	if price, ok := p.manualPrice(key); ok {
		return PriceQuote{Symbol: key, Price: price, Source: SourceManual, FetchedAt: time.Now()}, nil
	}

	if !p.forceRefresh() {
		if hit, ok := p.cache.Get(key); ok {
			if quote, ok := hit.(PriceQuote); ok {
				return quote, nil
			}
		}
	}

	if p.inner == nil {
		return PriceQuote{}, fmt.Errorf("%w: %s (offline, no manual price)", ErrUnavailable, ticker)
	}

	quote, err := p.inner.GetPrice(ctx, ticker)
	if err != nil {
		return PriceQuote{}, err
	}

	p.cache.Set(key, quote, gocache.DefaultExpiration)
	if p.store != nil {
		entry := storage.PriceEntry{
			Symbol:    key,
			Price:     quote.Price,
			Currency:  quote.Currency,
			Source:    quote.Source,
			FetchedAt: quote.FetchedAt,
		}
		if err := p.store.SetCachedPrice(entry); err != nil {
			p.logger.Printf("persisting quote %s: %v", key, err)
		}
	}

	return quote, nil
}
