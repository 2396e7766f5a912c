package recon

import (
	"io"
	"log"
	"math"
	"strconv"
	"strings"

	"github.com/kpatel-quant/fnopipeline/internal/models"
)

// EnhancedTrade is a clearing trade annotated with the executing-broker data
// of its matched fill. Unmatched trades keep blank charge fields so the
// enhanced clearing file still carries every original row.
type EnhancedTrade struct {
	models.Trade
	Matched   bool    `json:"matched"`
	Comms     float64 `json:"comms"`
	BrokerTax float64 `json:"broker_tax"`
	TD        string  `json:"td"`
}

// UnmatchedTrade is a clearing trade (or broker fill) that found no partner,
// with the first matching criterion that failed against the other side.
type UnmatchedTrade struct {
	BloombergTicker string  `json:"bloomberg_ticker"`
	CPCode          string  `json:"cp_code"`
	BrokerCode      int     `json:"broker_code"`
	Side            string  `json:"side"`
	Quantity        float64 `json:"quantity"`
	Price           float64 `json:"price"`
	Reason          string  `json:"reason"`
}

// TradeReconResult is one clearing-versus-broker matching pass.
type TradeReconResult struct {
	Enhanced          []EnhancedTrade  `json:"enhanced"`
	UnmatchedClearing []UnmatchedTrade `json:"unmatched_clearing"`
	UnmatchedBroker   []UnmatchedTrade `json:"unmatched_broker"`
	MatchedCount      int              `json:"matched_count"`
	MatchRate         float64          `json:"match_rate"`
}

// TradeReconciler matches clearing trades against executing-broker fills.
// PriceTolerance is relative; the upstream files agree to five decimals, so
// the default is 1e-5.
type TradeReconciler struct {
	priceTolerance float64
	logger         *log.Logger
}

func NewTradeReconciler(priceTolerance float64, logger *log.Logger) *TradeReconciler {
	if priceTolerance <= 0 {
		priceTolerance = 1e-5
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &TradeReconciler{priceTolerance: priceTolerance, logger: logger}
}

// Match pairs each clearing trade with the first broker fill agreeing on
// ticker, CP code, broker code, side and quantity (and lots when both sides
// carry them), with price inside the relative tolerance. A consumed fill
// never matches twice, so duplicate fills surface as unmatched.
func (r *TradeReconciler) Match(clearing []models.Trade, fills []models.BrokerTrade) *TradeReconResult {
	res := &TradeReconResult{}
	used := make([]bool, len(fills))

	for i := range clearing {
		tr := &clearing[i]
		et := EnhancedTrade{Trade: *tr}

		idx := r.findFill(tr, fills, used)
		if idx >= 0 {
			used[idx] = true
			et.Matched = true
			et.Comms = fills[idx].Brokerage
			et.BrokerTax = fills[idx].Taxes
			et.TD = fills[idx].TradeDate
			res.MatchedCount++
		} else {
			res.UnmatchedClearing = append(res.UnmatchedClearing, UnmatchedTrade{
				BloombergTicker: tr.BloombergTicker,
				CPCode:          tr.CPCode,
				BrokerCode:      brokerCode(tr.TMCode),
				Side:            string(tr.Side),
				Quantity:        math.Abs(tr.Quantity()),
				Price:           tr.Price,
				Reason:          r.failureReason(tr, fills),
			})
		}
		res.Enhanced = append(res.Enhanced, et)
	}

	for i := range fills {
		if used[i] {
			continue
		}
		f := &fills[i]
		res.UnmatchedBroker = append(res.UnmatchedBroker, UnmatchedTrade{
			BloombergTicker: f.BloombergTicker,
			CPCode:          f.CPCode,
			BrokerCode:      f.BrokerCode,
			Side:            string(f.Side),
			Quantity:        f.Quantity,
			Price:           f.Price,
			Reason:          "no clearing trade consumed this fill",
		})
	}

	if len(clearing) > 0 {
		res.MatchRate = 100 * float64(res.MatchedCount) / float64(len(clearing))
	}
	r.logger.Printf("trade recon: %d/%d clearing trades matched (%.1f%%), %d broker fills unmatched",
		res.MatchedCount, len(clearing), res.MatchRate, len(res.UnmatchedBroker))
	return res
}

func (r *TradeReconciler) findFill(tr *models.Trade, fills []models.BrokerTrade, used []bool) int {
	for i := range fills {
		if used[i] {
			continue
		}
		f := &fills[i]
		if !sameTicker(tr.BloombergTicker, f.BloombergTicker) {
			continue
		}
		if !strings.EqualFold(strings.TrimSpace(tr.CPCode), strings.TrimSpace(f.CPCode)) {
			continue
		}
		if code := brokerCode(tr.TMCode); code != 0 && f.BrokerCode != 0 && code != f.BrokerCode {
			continue
		}
		if tr.Side != f.Side {
			continue
		}
		if math.Abs(tr.Quantity()) != f.Quantity {
			continue
		}
		if f.HasLots && math.Abs(tr.Lots) != math.Abs(f.Lots) {
			continue
		}
		if !r.priceClose(tr.Price, f.Price) {
			continue
		}
		return i
	}
	return -1
}

// failureReason walks the match criteria in order against every fill and
// reports the first one no fill survived. The diagnostics tell the operator
// which field to chase in the source files.
func (r *TradeReconciler) failureReason(tr *models.Trade, fills []models.BrokerTrade) string {
	pool := make([]*models.BrokerTrade, 0, len(fills))
	for i := range fills {
		pool = append(pool, &fills[i])
	}

	steps := []struct {
		name string
		keep func(f *models.BrokerTrade) bool
	}{
		{"ticker not in any broker file", func(f *models.BrokerTrade) bool {
			return sameTicker(tr.BloombergTicker, f.BloombergTicker)
		}},
		{"CP code differs", func(f *models.BrokerTrade) bool {
			return strings.EqualFold(strings.TrimSpace(tr.CPCode), strings.TrimSpace(f.CPCode))
		}},
		{"broker code differs", func(f *models.BrokerTrade) bool {
			code := brokerCode(tr.TMCode)
			return code == 0 || f.BrokerCode == 0 || code == f.BrokerCode
		}},
		{"side differs", func(f *models.BrokerTrade) bool { return tr.Side == f.Side }},
		{"quantity differs", func(f *models.BrokerTrade) bool { return math.Abs(tr.Quantity()) == f.Quantity }},
		{"price outside tolerance", func(f *models.BrokerTrade) bool { return r.priceClose(tr.Price, f.Price) }},
	}

	for _, step := range steps {
		next := pool[:0:0]
		for _, f := range pool {
			if step.keep(f) {
				next = append(next, f)
			}
		}
		if len(next) == 0 {
			return step.name
		}
		pool = next
	}
	return "fill already consumed by an earlier clearing trade"
}

func (r *TradeReconciler) priceClose(a, b float64) bool {
	if a == b {
		return true
	}
	base := math.Abs(a)
	if base == 0 {
		base = math.Abs(b)
	}
	if base == 0 {
		return true
	}
	return math.Abs(a-b)/base < r.priceTolerance
}

func sameTicker(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// brokerCode parses the clearing file's TM code column. Files pad the code
// with leading zeros; a blank or non-numeric cell reads as zero, which the
// matcher treats as "unknown, match anything".
func brokerCode(tmCode string) int {
	s := strings.TrimSpace(tmCode)
	if s == "" {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimLeft(s, "0"))
	if err != nil {
		return 0
	}
	return n
}
