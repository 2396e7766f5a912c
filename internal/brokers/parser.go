package brokers

import (
	"io"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/kpatel-quant/fnopipeline/internal/bbg"
	"github.com/kpatel-quant/fnopipeline/internal/mapping"
	"github.com/kpatel-quant/fnopipeline/internal/models"
	"github.com/kpatel-quant/fnopipeline/internal/parser"
)

const headerScanRows = 30

// Result is one parsed contract note.
type Result struct {
	Broker    string               `json:"broker"`
	Fills     []models.BrokerTrade `json:"fills"`
	Malformed []error              `json:"-"`
	Unmapped  int                  `json:"unmapped"`
}

// Parser turns contract-note row grids into normalized fills. The mapping
// table resolves each scrip to its Bloomberg root so fills carry the same
// tickers as the clearing file.
type Parser struct {
	mapper *mapping.Table
	logger *log.Logger
}

func NewParser(mapper *mapping.Table, logger *log.Logger) *Parser {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Parser{mapper: mapper, logger: logger}
}

// Parse reads one broker's contract note. Malformed rows are collected, not
// fatal; only a missing header row aborts the file.
func (p *Parser) Parse(rows [][]string, file string, b *Broker) (*Result, error) {
	headerIdx, cols := findHeader(rows, b.layout)
	if headerIdx < 0 {
		return nil, &parser.UnrecognizedFormatError{File: file, Tried: []string{b.Name + " contract note"}}
	}

	res := &Result{Broker: b.Name}
	for i := headerIdx + 1; i < len(rows); i++ {
		row := rows[i]
		scrip := field(row, cols, fieldScrip)
		if scrip == "" || strings.Contains(strings.ToLower(scrip), "total") {
			continue
		}

		fill, err := p.parseRow(row, cols, b, file, i+1)
		if err != nil {
			if err == errUnmapped {
				res.Unmapped++
				continue
			}
			res.Malformed = append(res.Malformed, err)
			continue
		}
		res.Fills = append(res.Fills, fill)
	}

	p.logger.Printf("%s: %d fills from %s (%d malformed, %d unmapped)",
		b.Name, len(res.Fills), file, len(res.Malformed), res.Unmapped)
	return res, nil
}

// errUnmapped marks rows skipped for a missing symbol mapping; they are
// tallied through the mapping table, not reported as malformed.
var errUnmapped = &parser.MalformedRowError{Reason: "symbol not in mapping table"}

func (p *Parser) parseRow(row []string, cols map[string]int, b *Broker, file string, rowNum int) (models.BrokerTrade, error) {
	malformed := func(fieldName, reason string) error {
		return &parser.MalformedRowError{File: file, Row: rowNum, Field: fieldName, Reason: reason}
	}

	scrip := field(row, cols, fieldScrip)
	symbol := strings.ToUpper(scrip)
	var expiry time.Time
	var strike float64
	var secType models.SecurityType

	expiryCell := field(row, cols, fieldExpiry)
	if t, err := parser.ParseExpiry(expiryCell); err == nil {
		expiry = t
	}

	if expiry.IsZero() && b.layout.OldScrip {
		s, e, st, k, err := parseOldScrip(scrip)
		if err != nil {
			return models.BrokerTrade{}, malformed(fieldScrip, err.Error())
		}
		symbol, expiry, secType, strike = s, e, st, k
	} else {
		if expiry.IsZero() {
			return models.BrokerTrade{}, malformed(fieldExpiry, "unparseable expiry: "+expiryCell)
		}
		if s := field(row, cols, fieldStrike); s != "" {
			if v, err := parseNumber(s); err == nil {
				strike = v
			}
		}
		var err error
		secType, err = securityType(field(row, cols, fieldCallPut), field(row, cols, fieldSegment), strike)
		if err != nil {
			return models.BrokerTrade{}, malformed(fieldCallPut, err.Error())
		}
	}

	side, err := models.ParseSide(field(row, cols, fieldSide))
	if err != nil {
		return models.BrokerTrade{}, malformed(fieldSide, err.Error())
	}
	qty, err := parseNumber(field(row, cols, fieldQty))
	if err != nil || qty <= 0 {
		return models.BrokerTrade{}, malformed(fieldQty, "unparseable quantity: "+field(row, cols, fieldQty))
	}
	price, err := parseNumber(field(row, cols, fieldPrice))
	if err != nil {
		return models.BrokerTrade{}, malformed(fieldPrice, "unparseable price: "+field(row, cols, fieldPrice))
	}

	entry, ok := p.mapper.Resolve(symbol, secType)
	if !ok {
		p.mapper.RecordUnmapped(file, symbol, expiry, qty)
		return models.BrokerTrade{}, errUnmapped
	}
	index := bbg.IsIndex("", symbol, entry.Ticker)
	id := models.InstrumentIdentity{
		Symbol:       symbol,
		Ticker:       entry.Ticker,
		SecurityType: secType,
		Expiry:       expiry,
		Strike:       strike,
	}

	fill := models.BrokerTrade{
		BloombergTicker: bbg.TickerFor(id, index),
		Broker:          b.Name,
		BrokerCode:      b.NSECode,
		CPCode:          field(row, cols, fieldCPCode),
		Side:            side,
		Quantity:        qty,
		Price:           price,
		TradeDate:       field(row, cols, fieldTradeDate),
		Symbol:          symbol,
	}
	if code := field(row, cols, fieldBrokerCode); code != "" {
		if n, err := strconv.Atoi(strings.TrimLeft(strings.TrimSpace(code), "0")); err == nil && n > 0 {
			fill.BrokerCode = n
		}
	}
	if v, err := parseNumber(field(row, cols, fieldBrokerage)); err == nil {
		fill.Brokerage = v
	}
	if v, err := parseNumber(field(row, cols, fieldTaxes)); err == nil {
		fill.Taxes = v
	}
	if s := field(row, cols, fieldLots); s != "" {
		if v, err := parseNumber(s); err == nil && v > 0 {
			fill.Lots = v
			fill.HasLots = true
		}
	}
	return fill, nil
}

// securityType classifies the contract from the option-type column, falling
// back to the segment descriptor for futures rows.
func securityType(callPut, segment string, strike float64) (models.SecurityType, error) {
	cp := strings.ToUpper(strings.TrimSpace(callPut))
	switch {
	case strings.HasPrefix(cp, "C"):
		return models.SecurityCall, nil
	case strings.HasPrefix(cp, "P"):
		return models.SecurityPut, nil
	}
	seg := strings.ToUpper(segment)
	if strings.Contains(seg, "FUT") {
		return models.SecurityFutures, nil
	}
	if cp == "" && strike == 0 {
		return models.SecurityFutures, nil
	}
	return "", &parser.MalformedRowError{Reason: "cannot classify contract: " + callPut + "/" + segment}
}

// findHeader locates the data header row and resolves every field the
// layout knows to its column index.
func findHeader(rows [][]string, layout Layout) (int, map[string]int) {
	for i := 0; i < len(rows) && i < headerScanRows; i++ {
		cols := resolveColumns(rows[i], layout)
		ok := true
		for _, req := range layout.Required {
			if _, found := cols[req]; !found {
				ok = false
				break
			}
		}
		if ok {
			return i, cols
		}
	}
	return -1, nil
}

func resolveColumns(header []string, layout Layout) map[string]int {
	cols := make(map[string]int)
	for j, h := range header {
		n := normalizeHeader(h)
		if n == "" {
			continue
		}
		for fieldKey, aliases := range layout.Aliases {
			if _, taken := cols[fieldKey]; taken {
				continue
			}
			for _, alias := range aliases {
				if n == normalizeHeader(alias) {
					cols[fieldKey] = j
					break
				}
			}
		}
	}
	return cols
}

func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	h = strings.ReplaceAll(h, ".", "")
	return strings.Join(strings.Fields(h), " ")
}

func field(row []string, cols map[string]int, key string) string {
	i, ok := cols[key]
	if !ok || i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func parseNumber(s string) (float64, error) {
	return strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(s), ",", ""), 64)
}
