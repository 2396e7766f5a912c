// Package deliverables computes physical delivery obligations and intrinsic
// values for a position snapshot. The calculator runs twice per processing
// run, before and after trades are applied, so the two reports can be
// compared contract by contract.
package deliverables

import (
	"context"
	"io"
	"log"
	"math"
	"sort"
	"strings"

	"github.com/kpatel-quant/fnopipeline/internal/bbg"
	"github.com/kpatel-quant/fnopipeline/internal/models"
)

// Stage labels which side of trade processing a report describes.
type Stage string

const (
	StagePre  Stage = "PRE"
	StagePost Stage = "POST"
)

// PriceSource yields a spot price for an underlying. Implementations may
// fetch live, serve from cache or read operator overrides; an error means
// the price is unavailable and the row is flagged rather than failing the
// report.
type PriceSource interface {
	Price(ctx context.Context, symbol string) (float64, error)
}

// Row is the deliverable computation for one contract.
type Row struct {
	BloombergTicker string              `json:"bloomberg_ticker"`
	Symbol          string              `json:"symbol"`
	Underlying      string              `json:"underlying"`
	SecurityType    models.SecurityType `json:"security_type"`
	Expiry          string              `json:"expiry"`
	Strike          float64             `json:"strike"`
	Lots            float64             `json:"lots"`
	LotSize         float64             `json:"lot_size"`
	Spot            float64             `json:"spot"`
	PriceAvailable  bool                `json:"price_available"`
	ITM             bool                `json:"itm"`
	DeliverableLots float64             `json:"deliverable_lots"`
	DeliverableQty  float64             `json:"deliverable_qty"`
	IntrinsicINR    float64             `json:"intrinsic_inr"`
	IntrinsicUSD    float64             `json:"intrinsic_usd"`
}

// UnderlyingNet is the net delivery obligation across every contract on one
// underlying.
type UnderlyingNet struct {
	Underlying string  `json:"underlying"`
	Qty        float64 `json:"qty"`
}

// Report is a full deliverables run for one account and stage. Rows are
// sorted by ticker so repeated runs produce identical artifacts.
type Report struct {
	Account       string          `json:"account"`
	Stage         Stage           `json:"stage"`
	Rows          []Row           `json:"rows"`
	PerUnderlying []UnderlyingNet `json:"per_underlying"`
	TotalINR      float64         `json:"total_inr"`
	TotalUSD      float64         `json:"total_usd"`
	Priced        int             `json:"priced"`
	Unpriced      int             `json:"unpriced"`
}

// Calculator evaluates snapshots against spot prices.
type Calculator struct {
	prices PriceSource
	rate   float64
	logger *log.Logger
}

// NewCalculator builds a calculator converting intrinsic values at the
// given USD/INR rate.
func NewCalculator(prices PriceSource, usdinrRate float64, logger *log.Logger) *Calculator {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Calculator{prices: prices, rate: usdinrRate, logger: logger}
}

// Build evaluates every position in the snapshot. Missing prices flag the
// row and keep it out of the totals; only context cancellation aborts.
func (c *Calculator) Build(ctx context.Context, account string, stage Stage, snapshot []models.Position) (*Report, error) {
	rep := &Report{Account: account, Stage: stage}
	nets := make(map[string]float64)

	for i := range snapshot {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p := &snapshot[i]

		spot, ok := c.spot(ctx, p)
		row := Row{
			BloombergTicker: p.BloombergTicker,
			Symbol:          p.Symbol,
			Underlying:      p.Underlying,
			SecurityType:    p.SecurityType,
			Expiry:          p.Expiry.Format("2006-01-02"),
			Strike:          p.Strike,
			Lots:            p.Lots,
			LotSize:         p.LotSize,
			Spot:            spot,
			PriceAvailable:  ok,
		}

		c.evaluate(&row, p)

		if row.PriceAvailable || p.SecurityType == models.SecurityFutures {
			nets[row.Underlying] += row.DeliverableQty
		}
		if row.PriceAvailable {
			rep.Priced++
			rep.TotalINR += row.IntrinsicINR
			rep.TotalUSD += row.IntrinsicUSD
		} else {
			rep.Unpriced++
			c.logger.Printf("no price for %s (%s), deliverable flagged", p.Underlying, p.BloombergTicker)
		}

		rep.Rows = append(rep.Rows, row)
	}

	sort.Slice(rep.Rows, func(i, j int) bool {
		return rep.Rows[i].BloombergTicker < rep.Rows[j].BloombergTicker
	})
	for u, qty := range nets {
		rep.PerUnderlying = append(rep.PerUnderlying, UnderlyingNet{Underlying: u, Qty: qty})
	}
	sort.Slice(rep.PerUnderlying, func(i, j int) bool {
		return rep.PerUnderlying[i].Underlying < rep.PerUnderlying[j].Underlying
	})
	return rep, nil
}

// evaluate fills the delivery and intrinsic fields. Futures deliver their
// full quantity whatever the spot does; calls deliver when spot is above
// strike, puts deliver short when spot is below. At the money expires
// worthless.
func (c *Calculator) evaluate(row *Row, p *models.Position) {
	switch p.SecurityType {
	case models.SecurityFutures:
		row.DeliverableLots = p.Lots
	case models.SecurityCall:
		if row.PriceAvailable && row.Spot > p.Strike {
			row.ITM = true
			row.DeliverableLots = p.Lots
			row.IntrinsicINR = (row.Spot - p.Strike) * math.Abs(p.Lots) * p.LotSize
		}
	case models.SecurityPut:
		if row.PriceAvailable && row.Spot < p.Strike {
			row.ITM = true
			row.DeliverableLots = -p.Lots
			row.IntrinsicINR = (p.Strike - row.Spot) * math.Abs(p.Lots) * p.LotSize
		}
	}
	row.DeliverableQty = row.DeliverableLots * p.LotSize
	if c.rate > 0 {
		row.IntrinsicUSD = row.IntrinsicINR / c.rate
	}
}

// spot resolves the underlying price, trying the underlying descriptor,
// then the raw symbol, then the bare ticker root. Index symbols also try a
// space-stripped spelling.
func (c *Calculator) spot(ctx context.Context, p *models.Position) (float64, bool) {
	candidates := []string{p.Underlying, p.Symbol, bbg.BaseTicker(p.BloombergTicker)}
	if strings.Contains(p.Underlying, " ") {
		candidates = append(candidates, strings.ReplaceAll(p.Underlying, " ", ""))
	}
	for _, sym := range candidates {
		if sym == "" {
			continue
		}
		price, err := c.prices.Price(ctx, sym)
		if err == nil && price > 0 {
			return price, true
		}
	}
	return 0, false
}

// Comparison pairs the pre and post deliverable for one ticker.
type Comparison struct {
	BloombergTicker string  `json:"bloomberg_ticker"`
	PreQty          float64 `json:"pre_qty"`
	PostQty         float64 `json:"post_qty"`
	Delta           float64 `json:"delta"`
}

// Compare lines the two reports up by ticker. Contracts present in only
// one report show a zero on the other side.
func Compare(pre, post *Report) []Comparison {
	byTicker := make(map[string]*Comparison)
	if pre != nil {
		for _, r := range pre.Rows {
			c := ensureComparison(byTicker, r.BloombergTicker)
			c.PreQty += r.DeliverableQty
		}
	}
	if post != nil {
		for _, r := range post.Rows {
			c := ensureComparison(byTicker, r.BloombergTicker)
			c.PostQty += r.DeliverableQty
		}
	}

	out := make([]Comparison, 0, len(byTicker))
	for _, c := range byTicker {
		c.Delta = c.PostQty - c.PreQty
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].BloombergTicker < out[j].BloombergTicker
	})
	return out
}

func ensureComparison(m map[string]*Comparison, ticker string) *Comparison {
	c, ok := m[ticker]
	if !ok {
		c = &Comparison{BloombergTicker: ticker}
		m[ticker] = c
	}
	return c
}
