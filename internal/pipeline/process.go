package pipeline

import (
	"context"
	"fmt"

	"github.com/kpatel-quant/fnopipeline/internal/acm"
	"github.com/kpatel-quant/fnopipeline/internal/storage"
	"github.com/kpatel-quant/fnopipeline/internal/strategy"
)

// ProcessInput names the files for one account's processing run.
type ProcessInput struct {
	Account       string
	PositionFiles []string
	TradeFiles    []string
}

// RunProcess is the core daily run: load the begin-of-day book, assign the
// day's trades to their strategy books, and write the four numbered stage
// artifacts plus the ACM upload.
func (p *Pipeline) RunProcess(ctx context.Context, in ProcessInput) (*storage.RunSummary, error) {
	run := p.newRun(storage.KindProcess, in.Account)
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
	trades, err := p.loadTrades(run, reader, mapper, in.TradeFiles, in.Account)
	if err != nil {
		run.Errors = append(run.Errors, err.Error())
		return run, err
	}
	if err := ctx.Err(); err != nil {
		run.Errors = append(run.Errors, err.Error())
		return run, err
	}

	processed := strategy.NewEngine(book, p.logger).Process(trades)
	for i := range processed {
		if processed[i].Split {
			run.Reversals++
		}
	}
	run.Reversals /= 2 // each reversal contributed two split legs

	acmMapper, err := p.acmMapper()
	if err != nil {
		run.Errors = append(run.Errors, err.Error())
		return run, err
	}
	listed := acmMapper.Map(acm.LinesFromProcessed(processed))
	for _, issue := range listed.Issues {
		run.Errors = append(run.Errors, fmt.Sprintf("acm row %d: %s %s", issue.Row, issue.Column, issue.Reason))
	}

	w := p.newWriter(in.Account)
	path, err := w.ParsedTrades(trades)
	p.output(run, path, err)
	path, err = w.ProcessedTrades(processed)
	p.output(run, path, err)
	path, err = w.ListedTrades(listed)
	p.output(run, path, err)
	path, err = w.FinalPositions(book.Snapshot())
	p.output(run, path, err)
	p.flushUnmapped(run, mapper, w)
	path, err = w.RunSummaryText(run)
	p.output(run, path, err)

	return run, nil
}
