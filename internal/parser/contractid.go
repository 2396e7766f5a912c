package parser

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kpatel-quant/fnopipeline/internal/models"
)

// seriesMarkers are the NSE instrument series that open every contract
// descriptor, e.g. OPTSTK-BAJAJ-AUTO-26JUN2025-CE-6,500.
var seriesMarkers = []string{"FUTSTK", "OPTSTK", "FUTIDX", "OPTIDX"}

func containsDescriptor(s string) bool {
	u := strings.ToUpper(s)
	for _, m := range seriesMarkers {
		if strings.Contains(u, m) {
			return true
		}
	}
	return false
}

// ContractID is a decomposed NSE contract descriptor.
type ContractID struct {
	Series       string
	Symbol       string
	Expiry       time.Time
	SecurityType models.SecurityType
	Strike       float64
}

// ParseContractID splits a descriptor into its five fields. Symbols may
// themselves contain dashes (BAJAJ-AUTO), so the symbol is everything
// between the series and the expiry rather than a fixed segment.
func ParseContractID(s string) (ContractID, error) {
	s = strings.TrimSpace(s)
	// Some clearing exports append a stray " -0" after the strike.
	s = strings.TrimSuffix(s, " -0")
	parts := strings.Split(s, "-")
	if len(parts) < 5 {
		return ContractID{}, fmt.Errorf("contract descriptor %q has %d segments, want at least 5", s, len(parts))
	}

	series := strings.ToUpper(strings.TrimSpace(parts[0]))
	if !containsDescriptor(series) {
		return ContractID{}, fmt.Errorf("contract descriptor %q does not start with an instrument series", s)
	}

	rawStrike := strings.ReplaceAll(strings.TrimSpace(parts[len(parts)-1]), ",", "")
	strike, err := strconv.ParseFloat(rawStrike, 64)
	if err != nil {
		return ContractID{}, fmt.Errorf("contract descriptor %q: bad strike %q", s, parts[len(parts)-1])
	}

	expiry, err := ParseExpiry(parts[len(parts)-3])
	if err != nil {
		return ContractID{}, fmt.Errorf("contract descriptor %q: %w", s, err)
	}

	// Futures series dominate the type segment: FUTSTK rows stay futures
	// whatever the penultimate code says, and carry no strike.
	var secType models.SecurityType
	if strings.HasPrefix(series, "FUT") {
		secType = models.SecurityFutures
		strike = 0
	} else {
		secType, err = models.ParseSecurityType(strings.TrimSpace(parts[len(parts)-2]))
		if err != nil {
			return ContractID{}, fmt.Errorf("contract descriptor %q: %w", s, err)
		}
	}

	symbol := strings.ToUpper(strings.TrimSpace(strings.Join(parts[1:len(parts)-3], "-")))
	if symbol == "" {
		return ContractID{}, fmt.Errorf("contract descriptor %q has an empty symbol", s)
	}

	return ContractID{
		Series:       series,
		Symbol:       symbol,
		Expiry:       expiry,
		SecurityType: secType,
		Strike:       strike,
	}, nil
}
