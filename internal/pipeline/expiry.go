package pipeline

import (
	"context"

	"github.com/kpatel-quant/fnopipeline/internal/acm"
	"github.com/kpatel-quant/fnopipeline/internal/expiry"
	"github.com/kpatel-quant/fnopipeline/internal/storage"
	"github.com/kpatel-quant/fnopipeline/internal/strategy"
)

// ExpiryInput names the files for an expiry delivery run.
type ExpiryInput struct {
	Account       string
	PositionFiles []string
	TradeFiles    []string
}

// RunExpiry settles the expiring book into delivery legs, before and after
// the day's trades, and writes the delivery workbook plus the per-stage ACM
// uploads.
func (p *Pipeline) RunExpiry(ctx context.Context, in ExpiryInput) (*storage.RunSummary, error) {
	run := p.newRun(storage.KindExpiry, in.Account)
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

	gen := expiry.NewGenerator(p.priceSource(), p.logger)
	pre, err := gen.Build(ctx, preSnapshot)
	if err != nil {
		run.Errors = append(run.Errors, err.Error())
		return run, err
	}

	var post []*expiry.Group
	if len(in.TradeFiles) > 0 {
		trades, err := p.loadTrades(run, reader, mapper, in.TradeFiles, in.Account)
		if err != nil {
			run.Errors = append(run.Errors, err.Error())
			return run, err
		}
		strategy.NewEngine(book, p.logger).Process(trades)

		post, err = gen.Build(ctx, book.Snapshot())
		if err != nil {
			run.Errors = append(run.Errors, err.Error())
			return run, err
		}
	}

	acmMapper, err := p.acmMapper()
	if err != nil {
		run.Errors = append(run.Errors, err.Error())
		return run, err
	}
	preACM := acmMapper.Map(expiryLines(pre, in.Account))
	var postACM *acm.Result
	if post != nil {
		postACM = acmMapper.Map(expiryLines(post, in.Account))
	}

	for _, grp := range pre {
		for _, sk := range grp.Skipped {
			run.Errors = append(run.Errors, "no price for "+sk.BloombergTicker)
		}
	}

	w := p.newWriter(in.Account)
	path, err := w.ExpiryWorkbook(pre, post, preACM, postACM)
	p.output(run, path, err)
	path, err = w.ExpiryACM(preACM, "Pre")
	p.output(run, path, err)
	if postACM != nil {
		path, err = w.ExpiryACM(postACM, "Post")
		p.output(run, path, err)
	}
	p.flushUnmapped(run, mapper, w)
	path, err = w.RunSummaryText(run)
	p.output(run, path, err)

	return run, nil
}

func expiryLines(groups []*expiry.Group, cpCode string) []acm.Line {
	var lines []acm.Line
	for _, grp := range groups {
		lines = append(lines, acm.LinesFromExpiry(grp, cpCode)...)
	}
	return lines
}
