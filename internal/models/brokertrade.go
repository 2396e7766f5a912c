package models

// BrokerTrade is a normalized executing-broker fill. Every broker file
// parser, whatever its source layout, emits this shape so the trade
// reconciler can match fills against the clearing file.
type BrokerTrade struct {
	BloombergTicker string  `json:"bloomberg_ticker"`
	Broker          string  `json:"broker"`
	BrokerCode      int     `json:"broker_code"`
	CPCode          string  `json:"cp_code"`
	Side            Side    `json:"side"`
	Quantity        float64 `json:"quantity"`
	Lots            float64 `json:"lots,omitempty"`
	HasLots         bool    `json:"has_lots,omitempty"`
	Price           float64 `json:"price"`
	Brokerage       float64 `json:"brokerage"`
	Taxes           float64 `json:"taxes"`
	TradeDate       string  `json:"trade_date"`
	Symbol          string  `json:"symbol,omitempty"`
}
