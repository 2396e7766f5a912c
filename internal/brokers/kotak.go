package brokers

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/kpatel-quant/fnopipeline/internal/models"
)

// oldScripPattern matches the compact contract codes of older Kotak files:
// NIFTY23OCTFUT, ACC23OCT1800PE, RELIANCE24JAN2900.50CE.
var oldScripPattern = regexp.MustCompile(`^([A-Z][A-Z0-9&-]*?)(\d{2})(JAN|FEB|MAR|APR|MAY|JUN|JUL|AUG|SEP|OCT|NOV|DEC)(?:(FUT)|(\d+(?:\.\d+)?)(CE|PE))$`)

var monthsByCode = map[string]time.Month{
	"JAN": time.January, "FEB": time.February, "MAR": time.March,
	"APR": time.April, "MAY": time.May, "JUN": time.June,
	"JUL": time.July, "AUG": time.August, "SEP": time.September,
	"OCT": time.October, "NOV": time.November, "DEC": time.December,
}

// parseOldScrip unpacks a compact scrip code into its contract terms. The
// code carries only year and month, so the expiry is the monthly series
// date, the last Thursday.
func parseOldScrip(code string) (symbol string, expiry time.Time, secType models.SecurityType, strike float64, err error) {
	m := oldScripPattern.FindStringSubmatch(strings.ToUpper(strings.TrimSpace(code)))
	if m == nil {
		return "", time.Time{}, "", 0, fmt.Errorf("unrecognized scrip code %q", code)
	}

	symbol = m[1]
	year, _ := strconv.Atoi(m[2])
	expiry = lastThursday(2000+year, monthsByCode[m[3]])

	if m[4] == "FUT" {
		return symbol, expiry, models.SecurityFutures, 0, nil
	}
	strike, err = strconv.ParseFloat(m[5], 64)
	if err != nil {
		return "", time.Time{}, "", 0, fmt.Errorf("bad strike in scrip code %q", code)
	}
	if m[6] == "CE" {
		secType = models.SecurityCall
	} else {
		secType = models.SecurityPut
	}
	return symbol, expiry, secType, strike, nil
}

// lastThursday returns the monthly expiry date for a contract month.
func lastThursday(year int, month time.Month) time.Time {
	d := time.Date(year, month+1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)
	for d.Weekday() != time.Thursday {
		d = d.AddDate(0, 0, -1)
	}
	return d
}
