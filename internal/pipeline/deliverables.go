package pipeline

import (
	"context"

	"github.com/kpatel-quant/fnopipeline/internal/deliverables"
	"github.com/kpatel-quant/fnopipeline/internal/storage"
	"github.com/kpatel-quant/fnopipeline/internal/strategy"
)

// DeliverablesInput names the files for a deliverables run. TradeFiles may
// be empty, in which case only the PRE report is produced.
type DeliverablesInput struct {
	Account       string
	PositionFiles []string
	TradeFiles    []string
}

// RunDeliverables prices the book before and after the day's trades and
// writes the deliverable/intrinsic-value workbook.
func (p *Pipeline) RunDeliverables(ctx context.Context, in DeliverablesInput) (*storage.RunSummary, error) {
	run := p.newRun(storage.KindDeliverables, in.Account)
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

	preSnapshot := book.Snapshot()
	p.warmPrices(ctx, preSnapshot)

	calc := deliverables.NewCalculator(p.priceSource(), p.cfg.Prices.USDINRRate, p.logger)
	pre, err := calc.Build(ctx, in.Account, deliverables.StagePre, preSnapshot)
	if err != nil {
		run.Errors = append(run.Errors, err.Error())
		return run, err
	}
	run.Unmapped = mapper.UnmappedCount()

	var post *deliverables.Report
	if len(in.TradeFiles) > 0 {
		trades, err := p.loadTrades(run, reader, mapper, in.TradeFiles, in.Account)
		if err != nil {
			run.Errors = append(run.Errors, err.Error())
			return run, err
		}
		strategy.NewEngine(book, p.logger).Process(trades)

		post, err = calc.Build(ctx, in.Account, deliverables.StagePost, book.Snapshot())
		if err != nil {
			run.Errors = append(run.Errors, err.Error())
			return run, err
		}
	}

	w := p.newWriter(in.Account)
	path, err := w.DeliverablesWorkbook(pre, post, deliverables.Compare(pre, post))
	p.output(run, path, err)
	p.flushUnmapped(run, mapper, w)
	path, err = w.RunSummaryText(run)
	p.output(run, path, err)

	return run, nil
}
