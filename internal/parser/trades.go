package parser

import (
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/kpatel-quant/fnopipeline/internal/bbg"
	"github.com/kpatel-quant/fnopipeline/internal/mapping"
	"github.com/kpatel-quant/fnopipeline/internal/models"
)

// sourceTrades labels unmapped symbols recorded by trade parsing.
const sourceTrades = "trades"

// Canonical trade-file column keys. Headers resolve to these through
// tradeAliases so reordered or renamed columns still land in the right
// field.
const (
	colCPCode     = "cp code"
	colTMCode     = "tm code"
	colScheme     = "scheme"
	colTMName     = "tm name"
	colInstr      = "instr"
	colSymbol     = "symbol"
	colExpiry     = "expiry dt"
	colLotSize    = "lot size"
	colStrike     = "strike price"
	colOptionType = "option type"
	colSide       = "b/s"
	colQty        = "qty"
	colLots       = "lots traded"
	colAvgPrice   = "avg price"
	colComms      = "comms"
	colTaxes      = "taxes"
	colTradeDate  = "td"
)

// defaultTradeColumns is the positional layout used when the file carries
// no header row.
var defaultTradeColumns = []string{
	colCPCode, colTMCode, colScheme, colTMName, colInstr, colSymbol,
	colExpiry, colLotSize, colStrike, colOptionType, colSide, colQty,
	colLots, colAvgPrice,
}

// tradeAliases maps normalized header spellings onto canonical keys.
var tradeAliases = map[string]string{
	"cp code":      colCPCode,
	"tm code":      colTMCode,
	"scheme":       colScheme,
	"tm name":      colTMName,
	"instr":        colInstr,
	"instrument":   colInstr,
	"symbol":       colSymbol,
	"expiry dt":    colExpiry,
	"expiry date":  colExpiry,
	"expiry":       colExpiry,
	"lot size":     colLotSize,
	"strike price": colStrike,
	"strike":       colStrike,
	"option type":  colOptionType,
	"opt type":     colOptionType,
	"b/s":          colSide,
	"buy/sell":     colSide,
	"side":         colSide,
	"qty":          colQty,
	"quantity":     colQty,
	"lots traded":  colLots,
	"lots":         colLots,
	"avg price":    colAvgPrice,
	"price":        colAvgPrice,
	"comms":        colComms,
	"brokerage":    colComms,
	"taxes":        colTaxes,
	"td":           colTradeDate,
	"trade date":   colTradeDate,
}

// tradeInstruments are the derivative series accepted from trade files.
// Rows carrying anything else (cash, currency) are skipped.
var tradeInstruments = map[string]bool{
	"OPTSTK": true,
	"OPTIDX": true,
	"FUTSTK": true,
	"FUTIDX": true,
}

// TradeResult carries the parsed trades of one file plus the rows set
// aside along the way.
type TradeResult struct {
	File       string
	Trades     []models.Trade
	Malformed  []*MalformedRowError
	Incomplete []*models.IncompleteIdentityError
}

// TradeParser reads trade files: one Trade per row, in file order, never
// aggregated. Position netting happens later, against the strategy books.
type TradeParser struct {
	mapper *mapping.Table
	logger *log.Logger
}

func NewTradeParser(mapper *mapping.Table, logger *log.Logger) *TradeParser {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &TradeParser{mapper: mapper, logger: logger}
}

// Parse extracts trades for the account. Returns an UnrecognizedFormatError
// when the grid is not a recognizable trade file; row-level problems are
// collected on the result.
func (p *TradeParser) Parse(rows [][]string, file, account string) (*TradeResult, error) {
	cols, start, ok := resolveTradeColumns(rows)
	if !ok {
		return nil, &UnrecognizedFormatError{File: file, Tried: []string{"MS trade"}}
	}

	res := &TradeResult{File: file}
	for i := start; i < len(rows); i++ {
		p.parseRow(res, cols, rows[i], i, account)
	}

	p.logger.Printf("parsed %d trades from %s (%d malformed, %d incomplete)",
		len(res.Trades), file, len(res.Malformed), len(res.Incomplete))
	return res, nil
}

// resolveTradeColumns maps canonical column keys to indexes. A first row
// matching at least three of the four signature headers becomes the header
// row; otherwise the file must be headerless in the default column order,
// confirmed by an instrument series in column 4.
func resolveTradeColumns(rows [][]string) (map[string]int, int, bool) {
	if len(rows) == 0 {
		return nil, 0, false
	}

	signature := []string{"Instr", "Symbol", "Expiry Dt", "Lots Traded"}
	matches := 0
	for _, want := range signature {
		for _, c := range rows[0] {
			if strings.Contains(c, want) {
				matches++
				break
			}
		}
	}
	if matches >= 3 {
		cols := make(map[string]int)
		for i, c := range rows[0] {
			key := normalizeHeader(c)
			if canonical, ok := tradeAliases[key]; ok {
				if _, seen := cols[canonical]; !seen {
					cols[canonical] = i
				}
			}
		}
		return cols, 1, true
	}

	// Headerless fallback: default column order, verified by content.
	for _, row := range rows {
		if len(row) < len(defaultTradeColumns) {
			continue
		}
		if tradeInstruments[strings.ToUpper(cell(row, 4))] {
			cols := make(map[string]int, len(defaultTradeColumns))
			for i, key := range defaultTradeColumns {
				cols[key] = i
			}
			return cols, 0, true
		}
	}
	return nil, 0, false
}

func normalizeHeader(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(s))), " ")
}

func (p *TradeParser) parseRow(res *TradeResult, cols map[string]int, row []string, rowIdx int, account string) {
	get := func(key string) string {
		i, ok := cols[key]
		if !ok {
			return ""
		}
		return cell(row, i)
	}

	instr := strings.ToUpper(get(colInstr))
	if !tradeInstruments[instr] {
		return
	}
	symbol := strings.ToUpper(get(colSymbol))
	if symbol == "" {
		return
	}

	lots, ok := p.number(res, rowIdx, "lots traded", get(colLots))
	if !ok {
		return
	}
	if lots == 0 {
		return
	}
	strike, ok := p.number(res, rowIdx, "strike price", get(colStrike))
	if !ok {
		return
	}
	rowLot, ok := p.number(res, rowIdx, "lot size", get(colLotSize))
	if !ok {
		return
	}
	price, ok := p.number(res, rowIdx, "avg price", get(colAvgPrice))
	if !ok {
		return
	}

	expiry, err := ParseExpiry(get(colExpiry))
	if err != nil {
		res.Malformed = append(res.Malformed, &MalformedRowError{
			File: res.File, Row: rowIdx + 1, Field: "expiry", Reason: err.Error(),
		})
		return
	}

	var secType models.SecurityType
	if strings.Contains(instr, "FUT") {
		secType = models.SecurityFutures
		strike = 0
	} else {
		secType, err = models.ParseSecurityType(get(colOptionType))
		if err != nil {
			res.Incomplete = append(res.Incomplete, &models.IncompleteIdentityError{
				Symbol: symbol, Missing: []string{"security type"},
			})
			return
		}
	}

	side, err := models.ParseSide(get(colSide))
	if err != nil {
		p.logger.Printf("skipping %s row %d: %v", res.File, rowIdx+1, err)
		return
	}

	id := models.InstrumentIdentity{
		Symbol:       symbol,
		SecurityType: secType,
		Expiry:       expiry,
		Strike:       strike,
	}
	if err := id.Validate(); err != nil {
		if inc, isInc := err.(*models.IncompleteIdentityError); isInc {
			res.Incomplete = append(res.Incomplete, inc)
		}
		return
	}

	signedLots := side.Sign() * lots

	entry, mapped := p.mapper.Resolve(symbol, secType)
	if !mapped {
		p.mapper.RecordUnmapped(sourceTrades, symbol, expiry, signedLots)
		return
	}
	id.Ticker = entry.Ticker

	trade := models.Trade{
		InstrumentIdentity: id,
		BloombergTicker:    bbg.TickerFor(id, bbg.IsIndex(instr, symbol, entry.Ticker)),
		Underlying:         entry.Underlying,
		Account:            account,
		CPCode:             get(colCPCode),
		TMCode:             get(colTMCode),
		Side:               side,
		Lots:               signedLots,
		LotSize:            mapping.EffectiveLotSize(rowLot, entry.LotSize),
		Price:              price,
		SourceRow:          rowIdx + 1,
		Raw:                append([]string(nil), row...),
	}

	// Enhanced columns appear after a broker reconciliation pass has
	// rewritten the trade file. All three are optional.
	if v := get(colComms); v != "" {
		if f, err := parseNumber(v); err == nil {
			trade.Brokerage = f
		}
	}
	if v := get(colTaxes); v != "" {
		if f, err := parseNumber(v); err == nil {
			trade.Taxes = f
		}
	}
	if v := get(colTradeDate); v != "" {
		if d, err := ParseExpiry(v); err == nil {
			trade.TradeDate = d
		} else {
			p.logger.Printf("unparseable trade date %q in %s row %d", v, res.File, rowIdx+1)
		}
	}

	res.Trades = append(res.Trades, trade)
}

// number parses a numeric cell, collecting a malformed-row record for
// non-numeric text. Empty cells count as zero.
func (p *TradeParser) number(res *TradeResult, rowIdx int, field, s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, true
	}
	v, err := parseNumber(s)
	if err != nil {
		res.Malformed = append(res.Malformed, &MalformedRowError{
			File: res.File, Row: rowIdx + 1, Field: field,
			Reason: fmt.Sprintf("non-numeric value %q", s),
		})
		return 0, false
	}
	return v, true
}
