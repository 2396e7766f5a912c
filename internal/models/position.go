package models

import (
	"math"
)

// closedEpsilon is the magnitude below which a lot balance is considered flat.
const closedEpsilon = 1e-9

// Direction is the sign of a position's lot balance.
type Direction string

const (
	// DirectionLong is a positive lot balance.
	DirectionLong Direction = "Long"
	// DirectionShort is a negative lot balance.
	DirectionShort Direction = "Short"
)

// BookCode is the downstream accounting book a position or trade leg settles
// into. The codes are fixed by the receiving accounting system.
type BookCode string

const (
	// BookFutureLong is the long-exposure derivatives book.
	BookFutureLong BookCode = "FULO"
	// BookFutureShort is the short-exposure derivatives book.
	BookFutureShort BookCode = "FUSH"
	// BookEquityLong is the cash equity book used for physical delivery legs.
	BookEquityLong BookCode = "EQLO2"
)

// BookFor returns the accounting book for a signed lot balance in the given
// security type. Long puts carry short exposure, so the put books are
// inverted.
func BookFor(securityType SecurityType, lots float64) BookCode {
	long := lots > 0
	if securityType == SecurityPut {
		long = !long
	}
	if long {
		return BookFutureLong
	}
	return BookFutureShort
}

// Position is a signed holding in a single contract. Lots are positive for
// long and negative for short; Quantity is lots scaled by the contract lot
// size.
type Position struct {
	InstrumentIdentity
	BloombergTicker string  `json:"bloomberg_ticker"`
	Underlying      string  `json:"underlying"`
	Exchange        string  `json:"exchange,omitempty"`
	Account         string  `json:"account,omitempty"`
	Lots            float64 `json:"lots"`
	LotSize         float64 `json:"lot_size"`
}

// Quantity returns the signed unit quantity (lots × lot size).
func (p *Position) Quantity() float64 {
	return p.Lots * p.LotSize
}

// Direction returns Long for a positive lot balance and Short otherwise.
func (p *Position) Direction() Direction {
	if p.Lots >= 0 {
		return DirectionLong
	}
	return DirectionShort
}

// Book returns the accounting book the position belongs to.
func (p *Position) Book() BookCode {
	return BookFor(p.SecurityType, p.Lots)
}

// Flat reports whether the position has been closed out.
func (p *Position) Flat() bool {
	return math.Abs(p.Lots) < closedEpsilon
}

// StoreKey returns the key the position store indexes this position under.
// The Bloomberg ticker is canonical once mapping has run; unmapped records
// fall back to the composite identity key.
func (p *Position) StoreKey() string {
	if p.BloombergTicker != "" {
		return p.BloombergTicker
	}
	return p.Key()
}
