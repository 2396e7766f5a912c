// Package mock builds deterministic input fixtures: a mapping sheet, a
// begin-of-day position file, a clearing trade file, a broker contract note
// and a static price table. Integration runs and tests exercise the full
// pipeline on them without touching real files.
package mock

import (
	"time"
)

// Expiry is the contract month every fixture trades: June 2025, expiring on
// the monthly series date.
var Expiry = time.Date(2025, 6, 26, 0, 0, 0, 0, time.UTC)

// CPCode is the counterparty code the fixture account clears under.
const CPCode = "ECASL0000094"

// MappingRows is a small mapping sheet covering the fixture symbols.
func MappingRows() [][]string {
	return [][]string{
		{"Symbol", "Ticker", "Underlying", "Exchange", "Lot_Size"},
		{"RELIANCE", "RIL", "RIL IS Equity", "NSE", "250"},
		{"TATAMOTORS", "TTMT", "TTMT IS Equity", "NSE", "550"},
		{"INFY", "INFO", "INFO IS Equity", "NSE", "400"},
	}
}

// PositionRows is a begin-of-day position file: long Reliance futures, a
// short Nifty call and a long Tata put.
func PositionRows() [][]string {
	pad := func(cells ...string) []string {
		row := make([]string, 16)
		copy(row, cells)
		return row
	}
	expiry := Expiry.Format("02/01/2006")
	return [][]string{
		pad("", "Symbol", "Series", "Expiry", "Strike Price", "Option Type", "Lot Size"),
		{"1", "RELIANCE", "FUTSTK", expiry, "0", "", "250", "", "", "", "", "", "", "10", "0", ""},
		{"2", "NIFTY", "OPTIDX", expiry, "23000", "CE", "50", "", "", "", "", "", "", "0", "4", ""},
		{"3", "TATAMOTORS", "OPTSTK", expiry, "700", "PE", "550", "", "", "", "", "", "", "2", "0", ""},
	}
}

// TradeRows is a clearing trade file for the same book: a partial close of
// the Reliance futures, a reversal past flat on the Nifty call and a fresh
// Infosys future.
func TradeRows() [][]string {
	expiry := Expiry.Format("02/01/2006")
	return [][]string{
		{"CP Code", "TM Code", "Scheme", "TM Name", "Instr", "Symbol", "Expiry Dt", "Lot Size", "Strike Price", "Option Type", "B/S", "Qty", "Lots Traded", "Avg Price"},
		{CPCode, "07730", "FO", "ICICI SECURITIES", "FUTSTK", "RELIANCE", expiry, "250", "0", "", "S", "1000", "4", "2980.55"},
		{CPCode, "07730", "FO", "ICICI SECURITIES", "OPTIDX", "NIFTY", expiry, "50", "23000", "CE", "B", "300", "6", "151.25"},
		{CPCode, "08081", "FO", "KOTAK SECURITIES", "FUTSTK", "INFY", expiry, "400", "0", "", "B", "800", "2", "1495.00"},
	}
}

// BrokerRows is an ICICI contract note matching the first two clearing
// trades.
func BrokerRows() [][]string {
	expiry := Expiry.Format("02/01/2006")
	return [][]string{
		{"CP Code", "Broker Code", "Scrip Code", "Segment Type", "Expiry", "Strike Price", "Call / Put", "Buy / Sell", "Qty", "Mkt. Rate", "Pure Brokerage AMT", "Total Taxes", "Trade Date"},
		{CPCode, "07730", "RELIANCE", "STOCK FUTURE", expiry, "", "", "S", "1000", "2980.55", "112.30", "40.15", expiry},
		{CPCode, "07730", "NIFTY", "INDEX OPTION", expiry, "23000", "CE", "B", "300", "151.25", "18.00", "6.40", expiry},
	}
}

// PMSStatementRows is an external position statement for reconciliation.
// The Reliance line disagrees with the book by one lot.
func PMSStatementRows() [][]string {
	return [][]string{
		{"Ticker", "Lots"},
		{"RIL=M5 IS Equity", "5"},
		{"NIFTY 06/26/25 C23000 Index", "2"},
	}
}

// Prices is a static spot table for the fixture underlyings.
func Prices() map[string]float64 {
	return map[string]float64{
		"RIL IS Equity":  2985.00,
		"TTMT IS Equity": 690.50,
		"INFO IS Equity": 1498.20,
		"NIFTY":          23150.00,
	}
}
