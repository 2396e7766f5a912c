package parser

import (
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/kpatel-quant/fnopipeline/internal/bbg"
	"github.com/kpatel-quant/fnopipeline/internal/mapping"
	"github.com/kpatel-quant/fnopipeline/internal/models"
)

// sourcePositions labels unmapped symbols recorded by position parsing.
const sourcePositions = "positions"

// PositionResult carries everything a position file produced: the parsed
// positions plus the rows that had to be set aside. Malformed and
// incomplete rows never abort the file.
type PositionResult struct {
	File       string
	Format     Format
	Positions  []models.Position
	Malformed  []*MalformedRowError
	Incomplete []*models.IncompleteIdentityError
}

// PositionParser turns raw row grids into enriched positions. Symbol
// resolution and lot-size defaults come from the mapping table; unmapped
// symbols are recorded there for the missing-mappings report.
type PositionParser struct {
	mapper *mapping.Table
	logger *log.Logger
}

func NewPositionParser(mapper *mapping.Table, logger *log.Logger) *PositionParser {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &PositionParser{mapper: mapper, logger: logger}
}

// Parse detects the file format and extracts positions for the account.
// The returned error is fatal for the file (unrecognized format); row-level
// problems are collected on the result instead.
func (p *PositionParser) Parse(rows [][]string, file, account string) (*PositionResult, error) {
	format, err := DetectFormat(rows)
	if err != nil {
		var uf *UnrecognizedFormatError
		if errors.As(err, &uf) {
			uf.File = file
		}
		return nil, err
	}

	res := &PositionResult{File: file, Format: format}
	switch format {
	case FormatBOD:
		p.parseBOD(rows, res, account)
	case FormatContract:
		p.parseContract(rows, res, account)
	case FormatMS:
		p.parseMS(rows, res, account)
	}

	p.logger.Printf("parsed %d positions from %s (%s format, %d malformed, %d incomplete)",
		len(res.Positions), file, format, len(res.Malformed), len(res.Incomplete))
	return res, nil
}

// parseBOD reads the wide begin-of-day layout: symbol in column 1, series
// in 2, expiry in 3, strike in 4, option type in 5, lot size in 6 and the
// long/short lot balances in 13 and 14.
func (p *PositionParser) parseBOD(rows [][]string, res *PositionResult, account string) {
	start := findBODDataStart(rows)
	if start < 0 {
		return
	}
	for i := start; i < len(rows); i++ {
		row := rows[i]
		if len(row) < 15 {
			continue
		}
		symbol := cell(row, 1)
		if symbol == "" {
			continue
		}
		series := strings.ToUpper(cell(row, 2))
		if series == "" {
			series = "EQ"
		}

		strike, ok := p.number(res, i, "strike", cell(row, 4))
		if !ok {
			continue
		}
		long, ok := p.number(res, i, "long lots", cell(row, 13))
		if !ok {
			continue
		}
		short, ok := p.number(res, i, "short lots", cell(row, 14))
		if !ok {
			continue
		}
		lots := long - short
		if lots == 0 {
			continue
		}
		rowLot, ok := p.number(res, i, "lot size", cell(row, 6))
		if !ok {
			continue
		}

		expiry, err := ParseExpiry(cell(row, 3))
		if err != nil {
			res.Malformed = append(res.Malformed, &MalformedRowError{
				File: res.File, Row: i + 1, Field: "expiry", Reason: err.Error(),
			})
			continue
		}

		secType, err := bodSecurityType(series, cell(row, 5))
		if err != nil {
			res.Incomplete = append(res.Incomplete, &models.IncompleteIdentityError{
				Symbol: symbol, Missing: []string{"security type"},
			})
			continue
		}

		p.add(res, account, series, symbol, expiry, strike, secType, lots, rowLot)
	}
}

// bodSecurityType resolves the instrument class from the series column,
// falling back to the option-type column for plain series codes.
func bodSecurityType(series, optionCode string) (models.SecurityType, error) {
	switch {
	case strings.Contains(series, "FUT"):
		return models.SecurityFutures, nil
	case strings.Contains(series, "OPT"):
		return models.ParseSecurityType(optionCode)
	case strings.TrimSpace(optionCode) == "":
		return models.SecurityFutures, nil
	default:
		return models.ParseSecurityType(optionCode)
	}
}

// parseContract reads the layout keyed by a contract descriptor in column 3
// with lot size in column 5 and net lots in column 10.
func (p *PositionParser) parseContract(rows [][]string, res *PositionResult, account string) {
	for i, row := range rows {
		if len(row) < 12 {
			continue
		}
		if i == 0 && strings.Contains(strings.ToLower(cell(row, 5)), "lot size") {
			continue
		}
		cid := cell(row, 3)
		if !containsDescriptor(cid) {
			continue
		}

		lots, ok := p.number(res, i, "lots", cell(row, 10))
		if !ok {
			continue
		}
		if lots == 0 {
			continue
		}
		rowLot, ok := p.number(res, i, "lot size", cell(row, 5))
		if !ok {
			continue
		}

		parsed, err := ParseContractID(cid)
		if err != nil {
			res.Malformed = append(res.Malformed, &MalformedRowError{
				File: res.File, Row: i + 1, Field: "contract descriptor", Reason: err.Error(),
			})
			continue
		}

		p.add(res, account, parsed.Series, parsed.Symbol, parsed.Expiry, parsed.Strike, parsed.SecurityType, lots, rowLot)
	}
}

// parseMS reads the custodian statement layout: a fully qualified
// descriptor in column 0 and buy/sell lot balances in columns 19 and 20.
// Lot sizes come from the mapping table because the statement has none.
func (p *PositionParser) parseMS(rows [][]string, res *PositionResult, account string) {
	for i, row := range rows {
		if len(row) < 21 {
			continue
		}
		cid := cell(row, 0)
		if cid == "" || !strings.Contains(cid, "-") {
			continue
		}
		if msSummaryRow(cid) {
			continue
		}
		if !containsDescriptor(cid) {
			continue
		}

		long, ok := p.number(res, i, "buy lots", cell(row, 19))
		if !ok {
			continue
		}
		short, ok := p.number(res, i, "sell lots", cell(row, 20))
		if !ok {
			continue
		}
		lots := long - short
		if lots == 0 {
			continue
		}

		parsed, err := ParseContractID(cid)
		if err != nil {
			res.Malformed = append(res.Malformed, &MalformedRowError{
				File: res.File, Row: i + 1, Field: "contract descriptor", Reason: err.Error(),
			})
			continue
		}

		p.add(res, account, parsed.Series, parsed.Symbol, parsed.Expiry, parsed.Strike, parsed.SecurityType, lots, 0)
	}
}

// msSummaryRow filters subtotal and mark-to-market lines that share the
// descriptor column. Descriptor symbols can legitimately contain "NET", so
// that token alone is not treated as a summary marker.
func msSummaryRow(cid string) bool {
	low := strings.ToLower(cid)
	for _, kw := range []string{"total", "summary", "mtm"} {
		if strings.Contains(low, kw) {
			return true
		}
	}
	return false
}

// add enriches one raw row into a Position and appends it to the result.
// Rows whose symbol has no mapping are recorded for the missing-mappings
// report and dropped; rows with an incomplete identity are collected.
func (p *PositionParser) add(res *PositionResult, account, series, symbol string, expiry time.Time, strike float64, secType models.SecurityType, lots, rowLot float64) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if secType == models.SecurityFutures {
		strike = 0
	}

	id := models.InstrumentIdentity{
		Symbol:       symbol,
		SecurityType: secType,
		Expiry:       expiry,
		Strike:       strike,
	}
	if err := id.Validate(); err != nil {
		var inc *models.IncompleteIdentityError
		if errors.As(err, &inc) {
			res.Incomplete = append(res.Incomplete, inc)
		}
		return
	}

	entry, ok := p.mapper.Resolve(symbol, secType)
	if !ok {
		p.mapper.RecordUnmapped(sourcePositions, symbol, expiry, lots)
		return
	}
	id.Ticker = entry.Ticker

	index := bbg.IsIndex(series, symbol, entry.Ticker)
	res.Positions = append(res.Positions, models.Position{
		InstrumentIdentity: id,
		BloombergTicker:    bbg.TickerFor(id, index),
		Underlying:         entry.Underlying,
		Exchange:           entry.Exchange,
		Account:            account,
		Lots:               lots,
		LotSize:            mapping.EffectiveLotSize(rowLot, entry.LotSize),
	})
}

// number parses a numeric cell. Empty cells count as zero; non-numeric text
// is recorded as a malformed row and the caller skips it.
func (p *PositionParser) number(res *PositionResult, rowIdx int, field, s string) (float64, bool) {
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
