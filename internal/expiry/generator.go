// Package expiry generates the physical delivery legs for expiring
// positions: a closing derivative leg per contract, plus cash legs where
// settlement moves stock. Index products cash-settle, single stocks deliver.
package expiry

import (
	"context"
	"io"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/kpatel-quant/fnopipeline/internal/bbg"
	"github.com/kpatel-quant/fnopipeline/internal/models"
	"github.com/kpatel-quant/fnopipeline/internal/util"
)

// Exchange levy rates applied to delivery legs. The futures rates apply to
// the cash consideration; the option rates to settlement/intrinsic value and
// strike respectively.
const (
	futuresSTTRate   = 0.001   // 0.1% of consideration
	futuresStampRate = 0.00002 // 0.002% of consideration
	optionSTTRate    = 0.00125 // 0.125% of settlement or intrinsic
	optionStampRate  = 0.00003 // 0.003% of settlement or strike
)

// Leg kinds. Derivative legs carry the position's security type; cash legs
// are stock deliveries.
const (
	KindCash = "CASH"
)

// Trade notes stamped on exercise and assignment legs.
const (
	NoteExercise   = "E"
	NoteAssignment = "A"
)

// PriceSource yields a spot price for an underlying.
type PriceSource interface {
	Price(ctx context.Context, symbol string) (float64, error)
}

// Leg is one generated delivery trade. Quantity is absolute: lots for
// derivative legs, units of stock for cash legs; Side carries the direction.
type Leg struct {
	Underlying string          `json:"underlying"`
	Symbol     string          `json:"symbol"`
	Expiry     string          `json:"expiry,omitempty"`
	Side       models.Side     `json:"side"`
	Book       models.BookCode `json:"book"`
	Quantity   float64         `json:"quantity"`
	Price      float64         `json:"price"`
	Kind       string          `json:"kind"`
	Strike     float64         `json:"strike,omitempty"`
	LotSize    float64         `json:"lot_size,omitempty"`
	TradeNote  string          `json:"trade_note,omitempty"`
	STT        float64         `json:"stt"`
	StampDuty  float64         `json:"stamp_duty"`
	Taxes      float64         `json:"taxes"`
}

// SkippedPosition is a position the generator could not settle.
type SkippedPosition struct {
	BloombergTicker string `json:"bloomberg_ticker"`
	Symbol          string `json:"symbol"`
	Reason          string `json:"reason"`
}

// CashRow is one line of the netted cash summary. RowType is "Trade" for
// individual legs and "NET DELIVERABLE" for the per-underlying net; the
// final row is the grand total across underlyings.
type CashRow struct {
	Underlying    string  `json:"underlying"`
	RowType       string  `json:"row_type"`
	Side          string  `json:"side"`
	Quantity      float64 `json:"quantity"`
	Price         float64 `json:"price,omitempty"`
	Consideration float64 `json:"consideration"`
	STT           float64 `json:"stt"`
	StampDuty     float64 `json:"stamp_duty"`
	Taxes         float64 `json:"taxes"`
	TradeNote     string  `json:"trade_note,omitempty"`
}

// Group is every delivery artifact for one expiry date.
type Group struct {
	Expiry      time.Time         `json:"expiry"`
	Derivatives []Leg             `json:"derivatives"`
	Cash        []Leg             `json:"cash"`
	CashSummary []CashRow         `json:"cash_summary"`
	Skipped     []SkippedPosition `json:"skipped"`
	Positions   int               `json:"positions"`
}

// Generator builds delivery legs from a position snapshot.
type Generator struct {
	prices PriceSource
	logger *log.Logger
}

func NewGenerator(prices PriceSource, logger *log.Logger) *Generator {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Generator{prices: prices, logger: logger}
}

// Build groups the snapshot by expiry date and settles each group. Groups
// come back sorted by expiry; positions without a price are skipped and
// reported, never silently dropped.
func (g *Generator) Build(ctx context.Context, snapshot []models.Position) ([]*Group, error) {
	byExpiry := make(map[time.Time]*Group)

	for i := range snapshot {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p := &snapshot[i]
		day := p.Expiry.Truncate(24 * time.Hour)

		grp, ok := byExpiry[day]
		if !ok {
			grp = &Group{Expiry: day}
			byExpiry[day] = grp
		}
		grp.Positions++

		spot, ok := g.spot(ctx, p)
		if !ok {
			grp.Skipped = append(grp.Skipped, SkippedPosition{
				BloombergTicker: p.BloombergTicker,
				Symbol:          p.Symbol,
				Reason:          "no price available",
			})
			continue
		}

		var deriv Leg
		var cash *Leg
		if p.SecurityType == models.SecurityFutures {
			deriv, cash = g.settleFutures(p, spot)
		} else {
			deriv, cash = g.settleOption(p, spot)
		}
		grp.Derivatives = append(grp.Derivatives, deriv)
		if cash != nil {
			grp.Cash = append(grp.Cash, *cash)
		}
	}

	out := make([]*Group, 0, len(byExpiry))
	for _, grp := range byExpiry {
		sort.Slice(grp.Derivatives, func(i, j int) bool { return grp.Derivatives[i].Symbol < grp.Derivatives[j].Symbol })
		sort.Slice(grp.Cash, func(i, j int) bool { return grp.Cash[i].Underlying < grp.Cash[j].Underlying })
		grp.CashSummary = summarizeCash(grp.Cash)
		out = append(out, grp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Expiry.Before(out[j].Expiry) })

	g.logger.Printf("expiry delivery: %d expiry dates from %d positions", len(out), len(snapshot))
	return out, nil
}

// settleFutures closes the futures contract at spot and, for single stocks,
// takes delivery of the underlying. Index futures cash-settle with no stock
// leg.
func (g *Generator) settleFutures(p *models.Position, spot float64) (Leg, *Leg) {
	deriv := Leg{
		Underlying: p.Underlying,
		Symbol:     p.BloombergTicker,
		Expiry:     p.Expiry.Format("02/01/2006"),
		Side:       closingSide(p.Lots),
		Book:       p.Book(),
		Quantity:   abs(p.Lots),
		Price:      spot,
		Kind:       string(models.SecurityFutures),
		LotSize:    p.LotSize,
	}

	if isIndexContract(p) {
		return deriv, nil
	}

	qty := abs(p.Lots) * p.LotSize
	stt := util.Round2(qty * spot * futuresSTTRate)
	stamp := util.Round2(qty * spot * futuresStampRate)
	cash := &Leg{
		Underlying: p.Underlying,
		Symbol:     p.Underlying,
		Side:       deliverySide(p.Lots),
		Book:       models.BookEquityLong,
		Quantity:   qty,
		Price:      spot,
		Kind:       KindCash,
		STT:        stt,
		StampDuty:  stamp,
		Taxes:      util.Round2(stt + stamp),
	}
	return deriv, cash
}

// settleOption expires the option. OTM contracts lapse at zero. ITM index
// options cash-settle at intrinsic and pay the settlement levies on the
// derivative leg; ITM stock options move stock at strike on a cash leg, with
// the long side paying STT on intrinsic and stamp duty on strike. Short
// assignments are untaxed.
func (g *Generator) settleOption(p *models.Position, spot float64) (Leg, *Leg) {
	index := isIndexContract(p)
	itm := optionITM(p.SecurityType, p.Strike, spot)
	intrinsic := optionIntrinsic(p.SecurityType, p.Strike, spot)

	deriv := Leg{
		Underlying: p.Underlying,
		Symbol:     p.BloombergTicker,
		Expiry:     p.Expiry.Format("02/01/2006"),
		Side:       closingSide(p.Lots),
		Book:       p.Book(),
		Quantity:   abs(p.Lots),
		Kind:       string(p.SecurityType),
		Strike:     p.Strike,
		LotSize:    p.LotSize,
	}

	if index && itm {
		deriv.Price = intrinsic
		settlement := abs(p.Lots) * p.LotSize * intrinsic
		deriv.STT = util.Round2(settlement * optionSTTRate)
		deriv.StampDuty = util.Round2(settlement * optionStampRate)
		deriv.Taxes = util.Round2(deriv.STT + deriv.StampDuty)
	}
	if itm && !index {
		if p.Lots > 0 {
			deriv.TradeNote = NoteExercise
		} else {
			deriv.TradeNote = NoteAssignment
		}
	}

	if !itm || index {
		return deriv, nil
	}

	// Physical delivery at strike for ITM stock options. Calls move stock
	// with the holder, puts against: a long put delivers stock out.
	qty := abs(p.Lots) * p.LotSize
	long := p.Lots > 0
	var side models.Side
	if p.SecurityType == models.SecurityCall {
		side = models.SideBuy
		if !long {
			side = models.SideSell
		}
	} else {
		side = models.SideSell
		if !long {
			side = models.SideBuy
		}
	}

	var stt, stamp float64
	if long {
		stt = util.Round2(qty * intrinsic * optionSTTRate)
		stamp = util.Round2(qty * p.Strike * optionStampRate)
	}

	note := NoteAssignment
	if long {
		note = NoteExercise
	}

	cash := &Leg{
		Underlying: p.Underlying,
		Symbol:     p.Underlying,
		Side:       side,
		Book:       models.BookEquityLong,
		Quantity:   qty,
		Price:      p.Strike,
		Kind:       KindCash,
		TradeNote:  note,
		STT:        stt,
		StampDuty:  stamp,
		Taxes:      util.Round2(stt + stamp),
	}
	return deriv, cash
}

// summarizeCash nets the cash legs per underlying. Buys count positive,
// sells negative; the trailing row totals every underlying.
func summarizeCash(cash []Leg) []CashRow {
	if len(cash) == 0 {
		return nil
	}

	underlyings := make([]string, 0)
	byUnderlying := make(map[string][]Leg)
	for _, leg := range cash {
		if _, ok := byUnderlying[leg.Underlying]; !ok {
			underlyings = append(underlyings, leg.Underlying)
		}
		byUnderlying[leg.Underlying] = append(byUnderlying[leg.Underlying], leg)
	}
	sort.Strings(underlyings)

	var rows []CashRow
	var grand CashRow
	grand.Underlying = "GRAND TOTAL"
	grand.RowType = "ALL POSITIONS"

	for _, u := range underlyings {
		var net CashRow
		net.Underlying = u
		net.RowType = "NET DELIVERABLE"
		net.Side = "NET"

		for _, leg := range byUnderlying[u] {
			consideration := leg.Quantity * leg.Price
			signed := leg.Quantity
			if leg.Side == models.SideSell {
				consideration = -consideration
				signed = -signed
			}
			rows = append(rows, CashRow{
				Underlying:    u,
				RowType:       "Trade",
				Side:          string(leg.Side),
				Quantity:      leg.Quantity,
				Price:         leg.Price,
				Consideration: util.Round2(consideration),
				STT:           leg.STT,
				StampDuty:     leg.StampDuty,
				Taxes:         leg.Taxes,
				TradeNote:     leg.TradeNote,
			})
			net.Quantity += signed
			net.Consideration += consideration
			net.STT += leg.STT
			net.StampDuty += leg.StampDuty
			net.Taxes += leg.Taxes
		}

		net.Consideration = util.Round2(net.Consideration)
		net.STT = util.Round2(net.STT)
		net.StampDuty = util.Round2(net.StampDuty)
		net.Taxes = util.Round2(net.Taxes)
		rows = append(rows, net)

		grand.Consideration += net.Consideration
		grand.STT += net.STT
		grand.StampDuty += net.StampDuty
		grand.Taxes += net.Taxes
	}

	grand.Consideration = util.Round2(grand.Consideration)
	grand.STT = util.Round2(grand.STT)
	grand.StampDuty = util.Round2(grand.StampDuty)
	grand.Taxes = util.Round2(grand.Taxes)
	return append(rows, grand)
}

// spot resolves the settlement price, trying the underlying descriptor, the
// raw symbol, then the bare ticker root.
func (g *Generator) spot(ctx context.Context, p *models.Position) (float64, bool) {
	for _, sym := range []string{p.Underlying, p.Symbol, bbg.BaseTicker(p.BloombergTicker)} {
		if sym == "" {
			continue
		}
		price, err := g.prices.Price(ctx, sym)
		if err == nil && price > 0 {
			return price, true
		}
	}
	return 0, false
}

func optionITM(securityType models.SecurityType, strike, spot float64) bool {
	switch securityType {
	case models.SecurityCall:
		return spot > strike
	case models.SecurityPut:
		return spot < strike
	default:
		return false
	}
}

func optionIntrinsic(securityType models.SecurityType, strike, spot float64) float64 {
	switch securityType {
	case models.SecurityCall:
		if spot > strike {
			return spot - strike
		}
	case models.SecurityPut:
		if strike > spot {
			return strike - spot
		}
	}
	return 0
}

// closingSide unwinds the derivative: sell out a long, buy back a short.
func closingSide(lots float64) models.Side {
	if lots > 0 {
		return models.SideSell
	}
	return models.SideBuy
}

// deliverySide is the stock direction for futures delivery: longs take
// stock in, shorts give it out.
func deliverySide(lots float64) models.Side {
	if lots > 0 {
		return models.SideBuy
	}
	return models.SideSell
}

func isIndexContract(p *models.Position) bool {
	if strings.HasSuffix(p.BloombergTicker, " Index") {
		return true
	}
	return bbg.IsIndex("", p.Symbol, p.Ticker)
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
