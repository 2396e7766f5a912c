// Package pipeline orchestrates the processing runs: it wires the parsers,
// the position book, strategy assignment, pricing, reconciliation and the
// report writers behind one entry point per run kind.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kpatel-quant/fnopipeline/internal/acm"
	"github.com/kpatel-quant/fnopipeline/internal/config"
	"github.com/kpatel-quant/fnopipeline/internal/mapping"
	"github.com/kpatel-quant/fnopipeline/internal/models"
	"github.com/kpatel-quant/fnopipeline/internal/parser"
	"github.com/kpatel-quant/fnopipeline/internal/positions"
	"github.com/kpatel-quant/fnopipeline/internal/quotes"
	"github.com/kpatel-quant/fnopipeline/internal/report"
	"github.com/kpatel-quant/fnopipeline/internal/storage"
)

// warmupConcurrency bounds parallel price fetches during cache warmup.
const warmupConcurrency = 4

// Pipeline holds the shared services every run kind uses.
type Pipeline struct {
	cfg    *config.Config
	store  storage.Interface
	prices quotes.Provider
	now    func() time.Time
	logger *log.Logger
}

// New wires a pipeline from config. The quote stack layers manual
// overrides and the persistent cache over the configured live provider;
// a static provider keeps the whole stack offline.
func New(cfg *config.Config, store storage.Interface, logger *log.Logger) *Pipeline {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	var inner quotes.Provider
	if cfg.Prices.Provider == "yahoo" {
		inner = quotes.NewCircuitBreakerProvider(quotes.NewYahooClient(logger), logger)
	}
	cached := quotes.NewCachedProvider(inner, store, logger, quotes.CacheConfig{TTL: cfg.PriceCacheTTL()})
	if len(cfg.Prices.Manual) > 0 {
		cached.SetManualPrices(cfg.Prices.Manual)
	}

	return &Pipeline{
		cfg:    cfg,
		store:  store,
		prices: cached,
		now:    time.Now,
		logger: logger,
	}
}

// Prices exposes the layered quote provider, mainly for the dashboard.
func (p *Pipeline) Prices() quotes.Provider { return p.prices }

// quoteSource adapts the quote provider to the price-source interfaces the
// calculators consume.
type quoteSource struct {
	provider quotes.Provider
	timeout  time.Duration
}

func (s quoteSource) Price(ctx context.Context, symbol string) (float64, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	q, err := s.provider.GetPrice(ctx, symbol)
	if err != nil {
		return 0, err
	}
	return q.Price, nil
}

func (p *Pipeline) priceSource() quoteSource {
	return quoteSource{provider: p.prices, timeout: p.cfg.PriceFetchTimeout()}
}

func (p *Pipeline) newReader() *parser.Reader {
	return parser.NewReader(p.cfg.Decryption.Passwords, p.logger)
}

func (p *Pipeline) loadMapping() (*mapping.Table, error) {
	return mapping.LoadCSV(p.cfg.Paths.MappingFile, p.logger)
}

// newWriter prefixes artifacts with the account's display name so the two
// counterparties never overwrite each other's files.
func (p *Pipeline) newWriter(account string) *report.Writer {
	prefix := p.cfg.AccountName(account)
	if prefix == "" || prefix == "Unknown" {
		prefix = account
	}
	return report.NewWriter(p.cfg.Paths.OutputDir, prefix, p.now(), p.logger)
}

func (p *Pipeline) acmSchema() (acm.Schema, error) {
	if p.cfg.ACM.SchemaFile != "" {
		return acm.LoadSchema(p.cfg.ACM.SchemaFile)
	}
	return acm.DefaultSchema(), nil
}

func (p *Pipeline) acmMapper() (*acm.Mapper, error) {
	schema, err := p.acmSchema()
	if err != nil {
		return nil, err
	}
	return acm.NewMapper(schema, p.cfg.ACMLocation(), p.logger)
}

// newRun starts a run summary; finishRun stamps, persists and logs it.
func (p *Pipeline) newRun(kind, account string) *storage.RunSummary {
	return &storage.RunSummary{
		RunID:     uuid.New().String(),
		Kind:      kind,
		Account:   account,
		StartedAt: p.now(),
	}
}

func (p *Pipeline) finishRun(run *storage.RunSummary) {
	run.FinishedAt = p.now()
	if err := p.store.RecordRun(*run); err != nil {
		p.logger.Printf("recording run %s: %v", run.RunID, err)
	}
	p.logger.Printf("run %s (%s) finished: %d positions, %d trades, %d outputs, %d errors",
		run.RunID, run.Kind, run.Positions, run.Trades, len(run.Outputs), len(run.Errors))
}

// loadBook reads every position file into a fresh book. Row-level problems
// land on the run summary, not in the error return.
func (p *Pipeline) loadBook(run *storage.RunSummary, reader *parser.Reader, mapper *mapping.Table, files []string, account string) (*positions.Store, error) {
	book := positions.NewStore(p.logger)
	posParser := parser.NewPositionParser(mapper, p.logger)

	for _, file := range files {
		rows, err := reader.ReadRows(file)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", file, err)
		}
		res, err := posParser.Parse(rows, file, account)
		if err != nil {
			return nil, err
		}
		run.InputFiles = append(run.InputFiles, file)
		run.Malformed += len(res.Malformed)
		for _, inc := range res.Incomplete {
			run.Errors = append(run.Errors, inc.Error())
		}
		book.Load(res.Positions)
	}
	run.Positions = book.Len()
	return book, nil
}

// loadTrades reads every trade file, preserving file order.
func (p *Pipeline) loadTrades(run *storage.RunSummary, reader *parser.Reader, mapper *mapping.Table, files []string, account string) ([]models.Trade, error) {
	tradeParser := parser.NewTradeParser(mapper, p.logger)

	var trades []models.Trade
	for _, file := range files {
		rows, err := reader.ReadRows(file)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", file, err)
		}
		res, err := tradeParser.Parse(rows, file, account)
		if err != nil {
			return nil, err
		}
		run.InputFiles = append(run.InputFiles, file)
		run.Malformed += len(res.Malformed)
		for _, inc := range res.Incomplete {
			run.Errors = append(run.Errors, inc.Error())
		}
		trades = append(trades, res.Trades...)
	}
	run.Trades = len(trades)
	return trades, nil
}

// warmPrices fetches every distinct underlying concurrently so the
// calculators run against a hot cache. Failures are ignored here; the
// calculators flag unpriced rows themselves.
func (p *Pipeline) warmPrices(ctx context.Context, snapshot []models.Position) {
	seen := make(map[string]bool)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(warmupConcurrency)

	for i := range snapshot {
		u := snapshot[i].Underlying
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		g.Go(func() error {
			if _, err := p.prices.GetPrice(gctx, u); err != nil {
				p.logger.Printf("warmup: no price for %s: %v", u, err)
			}
			return nil
		})
	}
	_ = g.Wait()
}

// flushUnmapped moves the mapping table's misses into the persistent
// backlog and writes the missing-mappings sheets.
func (p *Pipeline) flushUnmapped(run *storage.RunSummary, mapper *mapping.Table, w *report.Writer) {
	missing := mapper.MissingReport()
	run.Unmapped = len(missing)
	if len(missing) == 0 {
		return
	}

	records := make([]storage.UnmappedRecord, 0, len(missing))
	for _, m := range missing {
		records = append(records, storage.UnmappedRecord{
			Source: m.Sources,
			Symbol: m.Symbol,
			Expiry: m.Expiry,
			Lots:   m.Lots,
			SeenAt: p.now(),
		})
	}
	if err := p.store.RecordUnmapped(records); err != nil {
		p.logger.Printf("recording unmapped symbols: %v", err)
	}

	if path, err := w.MissingMappings(missing); err == nil {
		run.Outputs = append(run.Outputs, path)
	} else {
		run.Errors = append(run.Errors, err.Error())
	}
	if path, err := w.MappingTemplate(missing); err == nil {
		run.Outputs = append(run.Outputs, path)
	} else {
		run.Errors = append(run.Errors, err.Error())
	}
}

// output appends a written artifact, collecting the error instead of
// failing the run.
func (p *Pipeline) output(run *storage.RunSummary, path string, err error) {
	if err != nil {
		run.Errors = append(run.Errors, err.Error())
		return
	}
	run.Outputs = append(run.Outputs, path)
}
