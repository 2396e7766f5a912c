package models

import (
	"fmt"
	"strings"
	"time"
)

// SecurityType identifies the derivative contract class.
type SecurityType string

const (
	// SecurityFutures is a futures contract on a stock or index.
	SecurityFutures SecurityType = "Futures"
	// SecurityCall is a call option.
	SecurityCall SecurityType = "Call"
	// SecurityPut is a put option.
	SecurityPut SecurityType = "Put"
)

// Valid returns true if the SecurityType is one of the defined constants
func (s SecurityType) Valid() bool {
	switch s {
	case SecurityFutures, SecurityCall, SecurityPut:
		return true
	default:
		return false
	}
}

// IsOption reports whether the type is a call or a put.
func (s SecurityType) IsOption() bool {
	return s == SecurityCall || s == SecurityPut
}

// ParseSecurityType normalizes the instrument/series codes that appear in
// exchange files (FF, FUTSTK, CE, PE, CALL, PUT, ...) into a SecurityType.
func ParseSecurityType(code string) (SecurityType, error) {
	c := strings.ToUpper(strings.TrimSpace(code))
	switch {
	case c == "FF" || strings.Contains(c, "FUT"):
		return SecurityFutures, nil
	case c == "CE" || c == "C" || c == "CALL":
		return SecurityCall, nil
	case c == "PE" || c == "P" || c == "PUT":
		return SecurityPut, nil
	default:
		return "", fmt.Errorf("unknown security type code: %q", code)
	}
}

// InstrumentIdentity is the canonical key for a derivative contract. Two
// records with equal identity fields refer to the same contract regardless of
// which file format they were parsed from.
type InstrumentIdentity struct {
	Symbol       string       `json:"symbol"`
	Ticker       string       `json:"ticker"`
	SecurityType SecurityType `json:"security_type"`
	Expiry       time.Time    `json:"expiry"`
	Strike       float64      `json:"strike"`
}

// Key returns the canonical composite key for the identity. The mapped ticker
// is preferred over the raw symbol so the same contract collapses to one key
// across file formats.
func (id InstrumentIdentity) Key() string {
	base := id.Ticker
	if base == "" {
		base = id.Symbol
	}
	if id.SecurityType == SecurityFutures {
		return fmt.Sprintf("%s|%s|%s", base, id.SecurityType, id.Expiry.Format("2006-01-02"))
	}
	return fmt.Sprintf("%s|%s|%s|%g", base, id.SecurityType, id.Expiry.Format("2006-01-02"), id.Strike)
}

// Validate checks that the identity is complete enough to construct a
// contract. Options additionally require an expiry and a positive strike.
func (id InstrumentIdentity) Validate() error {
	var missing []string
	if strings.TrimSpace(id.Symbol) == "" && strings.TrimSpace(id.Ticker) == "" {
		missing = append(missing, "symbol")
	}
	if !id.SecurityType.Valid() {
		missing = append(missing, "security type")
	}
	if id.Expiry.IsZero() {
		missing = append(missing, "expiry")
	}
	if id.SecurityType.IsOption() && id.Strike <= 0 {
		missing = append(missing, "strike")
	}
	if len(missing) > 0 {
		return &IncompleteIdentityError{Symbol: id.Symbol, Missing: missing}
	}
	return nil
}

// IncompleteIdentityError reports an instrument identity that cannot be
// constructed from the source row. The owning trade or position is excluded
// from processing but the run continues.
type IncompleteIdentityError struct {
	Symbol  string
	Missing []string
}

func (e *IncompleteIdentityError) Error() string {
	return fmt.Sprintf("incomplete instrument identity for %q: missing %s", e.Symbol, strings.Join(e.Missing, ", "))
}
