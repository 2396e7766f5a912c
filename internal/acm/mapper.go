package acm

import (
	"io"
	"log"
	"strconv"
	"time"

	"github.com/kpatel-quant/fnopipeline/internal/expiry"
	"github.com/kpatel-quant/fnopipeline/internal/models"
)

const (
	identifierTypeBBG = "Bloomberg Yellow Key"
	defaultVenue      = "NSE"

	tradeDateLayout  = "01/02/2006 15:04:05"
	settleDateLayout = "01/02/2006"
	brokerTDLayout   = "02/01/2006"
)

// Line is one upload row before rendering. The broker fields come from the
// executing-broker reconciliation and stay blank when no fill matched.
type Line struct {
	Trade           models.ProcessedTrade
	Comms           float64
	BrokerTaxes     float64
	BrokerTradeDate string
	ExecutingBroker string
	Notes           string
	InstrumentType  string
}

// Issue is a mandatory field missing from an emitted row. Rows with issues
// are still written; the operator fixes the upload, not the pipeline.
type Issue struct {
	Row    int    `json:"row"`
	Column string `json:"column"`
	Reason string `json:"reason"`
}

// Result is a rendered upload file.
type Result struct {
	Header []string   `json:"header"`
	Rows   [][]string `json:"rows"`
	Issues []Issue    `json:"issues,omitempty"`
}

// Mapper renders Lines against a schema. Timestamps are stamped in loc.
type Mapper struct {
	schema Schema
	loc    *time.Location
	logger *log.Logger
}

func NewMapper(schema Schema, loc *time.Location, logger *log.Logger) (*Mapper, error) {
	if err := schema.Validate(); err != nil {
		return nil, err
	}
	if loc == nil {
		loc = time.FixedZone("SGT", 8*60*60)
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Mapper{schema: schema, loc: loc, logger: logger}, nil
}

// Map renders every line against the schema and collects mandatory-field
// issues without dropping rows.
func (m *Mapper) Map(lines []Line) *Result {
	res := &Result{Header: append([]string(nil), m.schema.Columns...)}

	for i, line := range lines {
		row := make([]string, len(m.schema.Columns))
		for j, col := range m.schema.Columns {
			row[j] = m.cell(&line, col)
		}
		res.Rows = append(res.Rows, row)

		for j, col := range m.schema.Columns {
			if isMandatory(col) && row[j] == "" {
				res.Issues = append(res.Issues, Issue{
					Row:    i + 1,
					Column: col,
					Reason: "mandatory field is blank",
				})
			}
		}
	}

	if len(res.Issues) > 0 {
		m.logger.Printf("acm: %d rows rendered, %d mandatory-field issues", len(res.Rows), len(res.Issues))
	}
	return res
}

// LinesFromProcessed converts strategy-assigned trades to upload lines.
func LinesFromProcessed(trades []models.ProcessedTrade) []Line {
	lines := make([]Line, 0, len(trades))
	for _, pt := range trades {
		lines = append(lines, Line{Trade: pt})
	}
	return lines
}

// LinesFromExpiry converts one expiry group's delivery legs to upload
// lines. Delivery always unwinds an open position, so every line maps as an
// opposing trade: buys become BuyToCover and sells plain Sell.
func LinesFromExpiry(grp *expiry.Group, cpCode string) []Line {
	var lines []Line
	add := func(leg expiry.Leg) {
		pt := models.ProcessedTrade{
			Book:     leg.Book,
			Opposite: true,
		}
		pt.BloombergTicker = leg.Symbol
		pt.Underlying = leg.Underlying
		pt.CPCode = cpCode
		pt.Side = leg.Side
		pt.Lots = leg.Quantity * leg.Side.Sign()
		pt.LotSize = leg.LotSize
		pt.Price = leg.Price
		pt.Strike = leg.Strike
		pt.Taxes = leg.Taxes
		pt.TradeDate = grp.Expiry

		kind := leg.Kind
		if kind == expiry.KindCash {
			kind = "Equity"
			pt.LotSize = 1
		}
		lines = append(lines, Line{Trade: pt, Notes: leg.TradeNote, InstrumentType: kind})
	}
	for _, leg := range grp.Derivatives {
		add(leg)
	}
	for _, leg := range grp.Cash {
		add(leg)
	}
	return lines
}

func (m *Mapper) cell(line *Line, col string) string {
	tr := &line.Trade
	switch col {
	case ColTradeDate:
		return m.tradeTimestamp(line).Format(tradeDateLayout)
	case ColSettleDate:
		return m.tradeTimestamp(line).Format(settleDateLayout)
	case ColAccountID:
		return tr.CPCode
	case ColCounterparty:
		return tr.TMCode
	case ColIdentifier:
		return tr.BloombergTicker
	case ColIdentifierType:
		return identifierTypeBBG
	case ColQuantity:
		return formatFloat(abs(tr.Lots))
	case ColTradePrice, ColPrice:
		return formatFloat(tr.Price)
	case ColInstrumentType:
		if line.InstrumentType != "" {
			return line.InstrumentType
		}
		return string(tr.SecurityType)
	case ColStrikePrice:
		if tr.Strike > 0 {
			return formatFloat(tr.Strike)
		}
		return ""
	case ColLotSize:
		if tr.LotSize > 0 {
			return formatFloat(tr.LotSize)
		}
		return ""
	case ColStrategy:
		return string(tr.Book)
	case ColExecutingBroker:
		return line.ExecutingBroker
	case ColTradeVenue:
		return defaultVenue
	case ColNotes:
		return line.Notes
	case ColTransactionType:
		return transactionType(tr.Side, tr.Opposite)
	case ColBrokerage:
		return formatFloat(tr.Brokerage)
	case ColTaxes:
		return formatFloat(tr.Taxes)
	case ColComms:
		if line.Comms != 0 {
			return formatFloat(line.Comms)
		}
		return ""
	case ColBrokerTaxes:
		if line.BrokerTaxes != 0 {
			return formatFloat(line.BrokerTaxes)
		}
		return ""
	case ColBrokerTradeDate:
		return line.BrokerTradeDate
	default:
		return ""
	}
}

// tradeTimestamp prefers the executing broker's trade date, then the
// clearing file's, then the render time.
func (m *Mapper) tradeTimestamp(line *Line) time.Time {
	if line.BrokerTradeDate != "" {
		if t, err := time.ParseInLocation(brokerTDLayout, line.BrokerTradeDate, m.loc); err == nil {
			return t
		}
	}
	if !line.Trade.TradeDate.IsZero() {
		return line.Trade.TradeDate.In(m.loc)
	}
	return time.Now().In(m.loc)
}

// transactionType maps the book action to ACM's four verbs. Opposing buys
// cover shorts, opposing sells unwind longs; everything else opens.
func transactionType(side models.Side, opposite bool) string {
	if side == models.SideBuy {
		if opposite {
			return "BuyToCover"
		}
		return "Buy"
	}
	if opposite {
		return "Sell"
	}
	return "SellShort"
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func isMandatory(col string) bool {
	for _, m := range mandatoryColumns {
		if m == col {
			return true
		}
	}
	return false
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
