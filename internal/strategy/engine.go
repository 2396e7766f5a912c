// Package strategy assigns clearing trades to the FOLLOWING and OPPOSING
// books against the running position book. Trades process strictly in file
// order; each result is applied to the book before the next trade is
// classified, so an earlier trade's fill decides a later trade's side.
package strategy

import (
	"io"
	"log"
	"math"

	"github.com/google/uuid"

	"github.com/kpatel-quant/fnopipeline/internal/models"
	"github.com/kpatel-quant/fnopipeline/internal/positions"
	"github.com/kpatel-quant/fnopipeline/internal/util"
)

// flatEpsilon guards the flat check against float dust in lot balances.
const flatEpsilon = 1e-9

// Engine classifies trades against a position book.
type Engine struct {
	store  *positions.Store
	logger *log.Logger
	newID  func() string
}

func NewEngine(store *positions.Store, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Engine{
		store:  store,
		logger: logger,
		newID:  func() string { return uuid.New().String() },
	}
}

// Process classifies every trade and applies it to the book. A reversal
// yields two entries, the closing leg first, that share a parent id and sum
// to the original trade.
func (e *Engine) Process(trades []models.Trade) []models.ProcessedTrade {
	out := make([]models.ProcessedTrade, 0, len(trades))
	splits := 0
	for _, tr := range trades {
		legs := e.assign(tr)
		if len(legs) > 1 {
			splits++
		}
		for _, pt := range legs {
			e.store.Apply(pt)
			out = append(out, pt)
		}
	}
	e.logger.Printf("assigned %d trades (%d reversals split)", len(trades), splits)
	return out
}

func (e *Engine) assign(tr models.Trade) []models.ProcessedTrade {
	pos := e.store.Lots(tr.StoreKey())

	// Flat book or same direction: the whole trade follows.
	if math.Abs(pos) < flatEpsilon || pos*tr.Lots > 0 {
		return []models.ProcessedTrade{{
			Trade: tr,
			Label: models.StrategyFollowing,
			Book:  models.BookFor(tr.SecurityType, tr.Lots),
		}}
	}

	// Opposite direction within the position: the whole trade opposes and
	// settles into the book the position sits in. An exact close is a plain
	// OPPOSING trade, never a split with a zero remainder.
	if math.Abs(tr.Lots) <= math.Abs(pos) {
		return []models.ProcessedTrade{{
			Trade:    tr,
			Label:    models.StrategyOpposing,
			Book:     models.BookFor(tr.SecurityType, pos),
			Opposite: true,
		}}
	}

	// Reversal: close the position first, then open the remainder the other
	// way. Charges split pro rata by lots, rounded to 2dp with the rounding
	// remainder on the opening leg so the legs always sum to the original.
	parent := e.newID()
	closeLots := -pos
	openLots := tr.Lots + pos
	frac := math.Abs(closeLots) / math.Abs(tr.Lots)

	closeLeg := tr
	closeLeg.Lots = closeLots
	closeLeg.Brokerage = util.Round2(tr.Brokerage * frac)
	closeLeg.Taxes = util.Round2(tr.Taxes * frac)

	openLeg := tr
	openLeg.Lots = openLots
	openLeg.Brokerage = util.Round2(tr.Brokerage - closeLeg.Brokerage)
	openLeg.Taxes = util.Round2(tr.Taxes - closeLeg.Taxes)

	e.logger.Printf("split %s %s: %v lots close + %v lots open against %v held",
		tr.StoreKey(), tr.Side, closeLots, openLots, pos)

	return []models.ProcessedTrade{
		{
			Trade:    closeLeg,
			Label:    models.StrategyOpposing,
			Book:     models.BookFor(tr.SecurityType, pos),
			Split:    true,
			Opposite: true,
			ParentID: parent,
		},
		{
			Trade:    openLeg,
			Label:    models.StrategyFollowing,
			Book:     models.BookFor(tr.SecurityType, openLots),
			Split:    true,
			ParentID: parent,
		},
	}
}
