package parser

import (
	"strconv"
	"strings"
)

// Format identifies which clearing-file layout a position file uses.
type Format string

const (
	// FormatBOD is the wide begin-of-day layout with one column per field.
	FormatBOD Format = "BOD"
	// FormatContract is the layout keyed by a contract descriptor in column 3.
	FormatContract Format = "Contract"
	// FormatMS is the custodian statement layout keyed by a descriptor in
	// column 0 with buy/sell lot columns near the tail.
	FormatMS Format = "MS"
)

const (
	bodScanRows      = 100
	contractScanRows = 20
	msScanRows       = 50
)

// DetectFormat classifies a position-file row grid. Checks run in fixed
// priority order, BOD then Contract then MS, and the first positive
// signature wins. Each signature requires evidence unique to its layout, so
// the order never masks one format with another.
func DetectFormat(rows [][]string) (Format, error) {
	if isBOD(rows) {
		return FormatBOD, nil
	}
	if isContract(rows) {
		return FormatContract, nil
	}
	if isMS(rows) {
		return FormatMS, nil
	}
	return "", &UnrecognizedFormatError{
		Tried: []string{string(FormatBOD), string(FormatContract), string(FormatMS)},
	}
}

// isBOD looks for a wide row whose strike and lot columns are numeric and
// whose identity columns carry plain symbols rather than contract
// descriptors.
func isBOD(rows [][]string) bool {
	return findBODDataStart(rows) >= 0
}

// findBODDataStart returns the index of the first BOD data row, or -1.
func findBODDataStart(rows [][]string) int {
	for i, row := range rows {
		if i >= bodScanRows {
			break
		}
		if len(row) < 15 {
			continue
		}
		if bodHeaderRow(row) {
			continue
		}
		if !isNumeric(cell(row, 4)) {
			continue
		}
		if !numericOrEmpty(cell(row, 13)) || !numericOrEmpty(cell(row, 14)) {
			continue
		}
		if containsDescriptor(cell(row, 0)) || containsDescriptor(cell(row, 3)) {
			continue
		}
		return i
	}
	return -1
}

func bodHeaderRow(row []string) bool {
	c := strings.ToLower(cell(row, 4))
	for _, kw := range []string{"strike", "price", "column", "header"} {
		if strings.Contains(c, kw) {
			return true
		}
	}
	return false
}

// isContract looks for a contract descriptor in column 3 near the top of
// the file.
func isContract(rows [][]string) bool {
	for i, row := range rows {
		if i >= contractScanRows {
			break
		}
		if len(row) < 12 {
			continue
		}
		c := cell(row, 3)
		if containsDescriptor(c) && strings.Contains(c, "-") {
			return true
		}
	}
	return false
}

// isMS looks for a fully qualified descriptor in column 0 of a wide row.
// The descriptor carries series, symbol, expiry, type and strike, so it has
// at least four dashes.
func isMS(rows [][]string) bool {
	for i, row := range rows {
		if i >= msScanRows {
			break
		}
		if len(row) < 20 {
			continue
		}
		c := cell(row, 0)
		if containsDescriptor(c) && strings.Count(c, "-") >= 4 {
			return true
		}
	}
	return false
}

// cell returns the trimmed value at index i, or "" when the row is short.
func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// parseNumber parses a cell that may carry thousands separators.
func parseNumber(s string) (float64, error) {
	return strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(s), ",", ""), 64)
}

func isNumeric(s string) bool {
	if strings.TrimSpace(s) == "" {
		return false
	}
	_, err := parseNumber(s)
	return err == nil
}

func numericOrEmpty(s string) bool {
	if strings.TrimSpace(s) == "" {
		return true
	}
	_, err := parseNumber(s)
	return err == nil
}
