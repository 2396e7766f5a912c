// Package bbg builds and dissects Bloomberg-style tickers for NSE
// derivatives. Tickers are the canonical instrument keys everywhere
// downstream, so the formats here must stay byte-stable.
package bbg

import (
	"fmt"
	"strings"
	"time"

	"github.com/kpatel-quant/fnopipeline/internal/models"
)

// monthCodes are the futures month letters keyed by calendar month.
var monthCodes = map[time.Month]string{
	time.January:   "F",
	time.February:  "G",
	time.March:     "H",
	time.April:     "J",
	time.May:       "K",
	time.June:      "M",
	time.July:      "N",
	time.August:    "Q",
	time.September: "U",
	time.October:   "V",
	time.November:  "X",
	time.December:  "Z",
}

// indexTickers are the tickers and raw symbols that identify index products.
var indexTickers = map[string]bool{
	"NZ":         true,
	"NBZ":        true,
	"AF1":        true,
	"RNS":        true,
	"NIFTY":      true,
	"BANKNIFTY":  true,
	"NSEBANK":    true,
	"NMIDSELP":   true,
	"MCN":        true,
	"MIDCPNIFTY": true,
}

// MonthCode returns the futures month letter for a month.
func MonthCode(m time.Month) string {
	return monthCodes[m]
}

// IsIndex reports whether the instrument is an index product. The exchange
// series wins when it carries the IDX marker; otherwise the mapped ticker and
// raw symbol are checked against the known index set.
func IsIndex(series, symbol, ticker string) bool {
	if strings.Contains(strings.ToUpper(series), "IDX") {
		return true
	}
	t := strings.ToUpper(strings.TrimSpace(ticker))
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if indexTickers[t] || indexTickers[s] {
		return true
	}
	return strings.Contains(s, "NIFTY")
}

// FuturesTicker renders a futures contract ticker:
// "NZM5 Index" for index futures, "RIL=M5 IS Equity" for single stock.
func FuturesTicker(ticker string, expiry time.Time, index bool) string {
	code := MonthCode(expiry.Month())
	year := expiry.Year() % 10
	if index {
		return fmt.Sprintf("%s%s%d Index", ticker, code, year)
	}
	return fmt.Sprintf("%s=%s%d IS Equity", ticker, code, year)
}

// OptionTicker renders an option contract ticker:
// "NIFTY 06/26/25 C23000 Index" or "RIL IS 06/26/25 P2500 Equity".
func OptionTicker(ticker string, expiry time.Time, securityType models.SecurityType, strike float64, index bool) string {
	cp := "C"
	if securityType == models.SecurityPut {
		cp = "P"
	}
	date := expiry.Format("01/02/06")
	if index {
		return fmt.Sprintf("%s %s %s%s Index", ticker, date, cp, FormatStrike(strike))
	}
	return fmt.Sprintf("%s IS %s %s%s Equity", ticker, date, cp, FormatStrike(strike))
}

// TickerFor renders the ticker for an instrument identity.
func TickerFor(id models.InstrumentIdentity, index bool) string {
	base := id.Ticker
	if base == "" {
		base = id.Symbol
	}
	if id.SecurityType == models.SecurityFutures {
		return FuturesTicker(base, id.Expiry, index)
	}
	return OptionTicker(base, id.Expiry, id.SecurityType, id.Strike, index)
}

// FormatStrike prints whole strikes without a decimal part (2500, not 2500.0)
// and fractional strikes as-is.
func FormatStrike(strike float64) string {
	if strike == float64(int64(strike)) {
		return fmt.Sprintf("%d", int64(strike))
	}
	return fmt.Sprintf("%g", strike)
}

// Underlying derives the underlying descriptor from a generated ticker.
// Equity tickers map to "<base> IS Equity", index tickers to "<base> Index".
func Underlying(bloombergTicker string) string {
	t := strings.TrimSpace(bloombergTicker)
	switch {
	case strings.Contains(t, "=") && strings.HasSuffix(t, " IS Equity"):
		return strings.SplitN(t, "=", 2)[0] + " IS Equity"
	case strings.Contains(t, " IS "):
		return strings.SplitN(t, " IS ", 2)[0] + " IS Equity"
	case strings.HasSuffix(t, " Index"):
		return strings.SplitN(t, " ", 2)[0] + " Index"
	default:
		return t
	}
}

// BaseTicker strips the contract decoration and returns the bare ticker the
// instrument trades under.
func BaseTicker(bloombergTicker string) string {
	u := Underlying(bloombergTicker)
	u = strings.TrimSuffix(u, " IS Equity")
	u = strings.TrimSuffix(u, " Index")
	return u
}
