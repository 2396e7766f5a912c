// Package acm renders processed trades and delivery legs into the ACM
// ListedTrades upload format.
package acm

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Column names the mapper knows how to populate. A custom schema may
// reorder or drop the optional ones; anything else renders blank.
const (
	ColTradeDate       = "Trade Date"
	ColSettleDate      = "Settle Date"
	ColAccountID       = "Account Id"
	ColCounterparty    = "Counterparty Code"
	ColIdentifier      = "Identifier"
	ColIdentifierType  = "Identifier Type"
	ColQuantity        = "Quantity"
	ColTradePrice      = "Trade Price"
	ColPrice           = "Price"
	ColInstrumentType  = "Instrument Type"
	ColStrikePrice     = "Strike Price"
	ColLotSize         = "Lot Size"
	ColStrategy        = "Strategy"
	ColExecutingBroker = "Executing Broker Name"
	ColTradeVenue      = "Trade Venue"
	ColNotes           = "Notes"
	ColTransactionType = "Transaction Type"
	ColBrokerage       = "Brokerage"
	ColTaxes           = "Taxes"
	ColComms           = "Comms"
	ColBrokerTaxes     = "Broker Taxes"
	ColBrokerTradeDate = "Broker Trade Date"
)

// DefaultColumns is the stock ListedTrades layout.
var DefaultColumns = []string{
	ColTradeDate,
	ColSettleDate,
	ColAccountID,
	ColCounterparty,
	ColIdentifier,
	ColIdentifierType,
	ColQuantity,
	ColTradePrice,
	ColPrice,
	ColInstrumentType,
	ColStrikePrice,
	ColLotSize,
	ColStrategy,
	ColExecutingBroker,
	ColTradeVenue,
	ColNotes,
	ColTransactionType,
	ColBrokerage,
	ColTaxes,
	ColComms,
	ColBrokerTaxes,
	ColBrokerTradeDate,
}

// mandatoryColumns must be present in every schema and non-blank in every
// emitted row.
var mandatoryColumns = []string{ColAccountID, ColIdentifier, ColQuantity, ColTransactionType}

// Schema is the ordered column list of the output file.
type Schema struct {
	Columns []string `yaml:"columns"`
}

// DefaultSchema returns the stock layout.
func DefaultSchema() Schema {
	cols := make([]string, len(DefaultColumns))
	copy(cols, DefaultColumns)
	return Schema{Columns: cols}
}

// LoadSchema reads a custom column layout from a YAML file.
func LoadSchema(path string) (Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Schema{}, fmt.Errorf("read schema file: %w", err)
	}
	var s Schema
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Schema{}, fmt.Errorf("parse schema file %s: %w", path, err)
	}
	if err := s.Validate(); err != nil {
		return Schema{}, fmt.Errorf("schema file %s: %w", path, err)
	}
	return s, nil
}

// Validate rejects schemas missing a mandatory column.
func (s Schema) Validate() error {
	if len(s.Columns) == 0 {
		return fmt.Errorf("schema has no columns")
	}
	have := make(map[string]bool, len(s.Columns))
	for _, c := range s.Columns {
		have[c] = true
	}
	for _, m := range mandatoryColumns {
		if !have[m] {
			return fmt.Errorf("schema is missing mandatory column %q", m)
		}
	}
	return nil
}
