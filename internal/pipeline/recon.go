package pipeline

import (
	"context"
	"fmt"

	"github.com/kpatel-quant/fnopipeline/internal/brokers"
	"github.com/kpatel-quant/fnopipeline/internal/models"
	"github.com/kpatel-quant/fnopipeline/internal/recon"
	"github.com/kpatel-quant/fnopipeline/internal/storage"
	"github.com/kpatel-quant/fnopipeline/internal/strategy"
)

// PMSReconInput names the files for a position reconciliation run. The
// statement is the external side; trades are optional and enable the
// post-trade pass.
type PMSReconInput struct {
	Account       string
	PositionFiles []string
	TradeFiles    []string
	StatementFile string
}

// RunPMSRecon compares the internal book against an external position
// statement, before and after the day's trades, and reports how the trades
// moved each discrepancy.
func (p *Pipeline) RunPMSRecon(ctx context.Context, in PMSReconInput) (*storage.RunSummary, error) {
	run := p.newRun(storage.KindRecon, in.Account)
	defer p.finishRun(run)

	mapper, err := p.loadMapping()
	if err != nil {
		run.Errors = append(run.Errors, err.Error())
		return run, err
	}
	reader := p.newReader()

	book, err := p.loadBook(run, reader, mapper, in.PositionFiles, in.Account)
	if err != nil {
		run.Errors = append(run.Errors, err.Error())
		return run, err
	}

	stmtRows, err := reader.ReadRows(in.StatementFile)
	if err != nil {
		run.Errors = append(run.Errors, err.Error())
		return run, err
	}
	external, err := recon.ParseStatement(stmtRows)
	if err != nil {
		run.Errors = append(run.Errors, err.Error())
		return run, err
	}
	run.InputFiles = append(run.InputFiles, in.StatementFile)

	engine := recon.NewEngine(p.cfg.Recon.LotTolerance, p.logger)
	pre := engine.Reconcile("PreTrade", "book", "statement", recon.LotsByTicker(book.Snapshot()), external)

	var post *recon.Summary
	var impact *recon.Impact
	if len(in.TradeFiles) > 0 {
		trades, err := p.loadTrades(run, reader, mapper, in.TradeFiles, in.Account)
		if err != nil {
			run.Errors = append(run.Errors, err.Error())
			return run, err
		}
		strategy.NewEngine(book, p.logger).Process(trades)
		post = engine.Reconcile("PostTrade", "book", "statement", recon.LotsByTicker(book.Snapshot()), external)
		impact = engine.Impact(pre, post)
	}

	run.MatchRate = pre.MatchRate
	if post != nil {
		run.MatchRate = post.MatchRate
	}
	if err := ctx.Err(); err != nil {
		run.Errors = append(run.Errors, err.Error())
		return run, err
	}

	w := p.newWriter(in.Account)
	path, err := w.ReconWorkbook(pre, post, impact)
	p.output(run, path, err)
	p.flushUnmapped(run, mapper, w)
	path, err = w.RunSummaryText(run)
	p.output(run, path, err)

	return run, nil
}

// BrokerReconInput names the files for a broker fill reconciliation run.
type BrokerReconInput struct {
	Account     string
	TradeFiles  []string
	BrokerFiles []string
}

// RunBrokerRecon matches clearing trades against executing-broker contract
// notes and writes the enhanced clearing file with the broker charges
// appended.
func (p *Pipeline) RunBrokerRecon(ctx context.Context, in BrokerReconInput) (*storage.RunSummary, error) {
	run := p.newRun(storage.KindBrokers, in.Account)
	defer p.finishRun(run)

	mapper, err := p.loadMapping()
	if err != nil {
		run.Errors = append(run.Errors, err.Error())
		return run, err
	}
	reader := p.newReader()

	trades, err := p.loadTrades(run, reader, mapper, in.TradeFiles, in.Account)
	if err != nil {
		run.Errors = append(run.Errors, err.Error())
		return run, err
	}

	brokerParser := brokers.NewParser(mapper, p.logger)
	var fills []models.BrokerTrade
	for _, file := range in.BrokerFiles {
		b, ok := brokers.Detect(file)
		if !ok {
			run.Errors = append(run.Errors, fmt.Sprintf("no broker recognized for %s", file))
			continue
		}
		rows, err := reader.ReadRows(file)
		if err != nil {
			run.Errors = append(run.Errors, err.Error())
			continue
		}
		res, err := brokerParser.Parse(rows, file, b)
		if err != nil {
			run.Errors = append(run.Errors, err.Error())
			continue
		}
		run.InputFiles = append(run.InputFiles, file)
		run.Malformed += len(res.Malformed)
		fills = append(fills, res.Fills...)
	}
	if err := ctx.Err(); err != nil {
		run.Errors = append(run.Errors, err.Error())
		return run, err
	}

	result := recon.NewTradeReconciler(p.cfg.Recon.PriceTolerance, p.logger).Match(trades, fills)
	run.MatchRate = result.MatchRate
	for _, u := range result.UnmatchedClearing {
		run.Errors = append(run.Errors, fmt.Sprintf("unmatched clearing trade %s: %s", u.BloombergTicker, u.Reason))
	}

	w := p.newWriter(in.Account)
	path, err := w.EnhancedClearing(result.Enhanced)
	p.output(run, path, err)
	p.flushUnmapped(run, mapper, w)
	path, err = w.RunSummaryText(run)
	p.output(run, path, err)

	return run, nil
}
