package brokers

// Field keys the parser reads out of a contract note, resolved to real
// columns through per-layout header aliases.
const (
	fieldCPCode     = "cp_code"
	fieldBrokerCode = "broker_code"
	fieldScrip      = "scrip"
	fieldSegment    = "segment"
	fieldExpiry     = "expiry"
	fieldStrike     = "strike"
	fieldCallPut    = "call_put"
	fieldSide       = "side"
	fieldQty        = "qty"
	fieldLots       = "lots"
	fieldPrice      = "price"
	fieldBrokerage  = "brokerage"
	fieldTaxes      = "taxes"
	fieldTradeDate  = "trade_date"
)

// Layout maps field keys to the header spellings a broker uses. Required
// names the fields whose headers identify the data header row; the rest are
// best-effort.
type Layout struct {
	Required []string
	Aliases  map[string][]string
	// OldScrip enables the compact scrip-code format where symbol, expiry,
	// strike and option type share one cell.
	OldScrip bool
}

var lotsAliases = []string{
	"Lots traded", "Lots Traded", "Lots", "Contract Lot(s)",
	"No Of Traded Lots", "No. of Contracts", "No of Lots",
}

var brokerCodeAliases = []string{
	"Broker Code", "BrokerNSECode", "Broker NSE Code", "TM Code", "TM_Code",
}

// iciciLayout is the strictest: ICICI's export always carries the full
// column set.
var iciciLayout = Layout{
	Required: []string{fieldScrip, fieldSide, fieldQty, fieldPrice},
	Aliases: map[string][]string{
		fieldCPCode:     {"CP Code", "CP_Code", "CPCode"},
		fieldBrokerCode: brokerCodeAliases,
		fieldScrip:      {"Scrip Code", "Scrip Name", "Scrip"},
		fieldSegment:    {"Segment Type", "Segment"},
		fieldExpiry:     {"Expiry", "Expiry Date"},
		fieldStrike:     {"Strike Price", "Strike"},
		fieldCallPut:    {"Call / Put", "Call/Put", "Option Type"},
		fieldSide:       {"Buy / Sell", "Buy/Sell", "B/S"},
		fieldQty:        {"Qty", "Quantity"},
		fieldLots:       lotsAliases,
		fieldPrice:      {"Mkt. Rate", "Mkt Rate", "Market Rate", "Rate"},
		fieldBrokerage:  {"Pure Brokerage AMT", "Pure Brokerage", "Brokerage"},
		fieldTaxes:      {"Total Taxes", "Taxes"},
		fieldTradeDate:  {"Trade Date", "Tr Date"},
	},
}

// kotakLayout accepts both Kotak vintages: the newer export with separate
// expiry/strike/option columns and the older one where the scrip code packs
// the whole contract.
var kotakLayout = Layout{
	Required: []string{fieldScrip, fieldSide, fieldQty},
	OldScrip: true,
	Aliases: map[string][]string{
		fieldCPCode:     {"CP Code", "Client Code", "CP_Code"},
		fieldBrokerCode: brokerCodeAliases,
		fieldScrip:      {"Scrip Code", "Scrip", "Symbol", "Security Name"},
		fieldSegment:    {"Segment", "Instrument", "Instrument Type"},
		fieldExpiry:     {"Expiry", "Expiry Date", "Exp Date"},
		fieldStrike:     {"Strike Price", "Strike"},
		fieldCallPut:    {"Option Type", "Call / Put", "Call/Put", "CE/PE"},
		fieldSide:       {"Buy/Sell", "Buy / Sell", "B/S", "Side"},
		fieldQty:        {"Qty", "Quantity", "Traded Qty"},
		fieldLots:       lotsAliases,
		fieldPrice:      {"Avg Rate", "Avg Price", "Rate", "Price", "Market Rate"},
		fieldBrokerage:  {"Brokerage", "Brokerage Amount", "Pure Brokerage"},
		fieldTaxes:      {"Total Taxes", "Taxes", "Total Tax"},
		fieldTradeDate:  {"Trade Date", "Date"},
	},
}

// genericLayout covers the brokers whose exports share the common
// header vocabulary.
var genericLayout = Layout{
	Required: []string{fieldScrip, fieldSide, fieldQty},
	Aliases: map[string][]string{
		fieldCPCode:     {"CP Code", "CP_Code", "CPCode", "Client Code"},
		fieldBrokerCode: brokerCodeAliases,
		fieldScrip:      {"Symbol", "Scrip Code", "Scrip Name", "Scrip", "Security Name", "Contract"},
		fieldSegment:    {"Segment", "Segment Type", "Instrument", "Instrument Type"},
		fieldExpiry:     {"Expiry", "Expiry Date", "Exp Date"},
		fieldStrike:     {"Strike Price", "Strike"},
		fieldCallPut:    {"Option Type", "Call / Put", "Call/Put", "CE/PE", "C/P"},
		fieldSide:       {"Buy/Sell", "Buy / Sell", "B/S", "Side", "Transaction Type"},
		fieldQty:        {"Qty", "Quantity", "Traded Qty", "Total Qty"},
		fieldLots:       lotsAliases,
		fieldPrice:      {"Price", "Avg Rate", "Avg Price", "Rate", "Trade Price", "Market Rate"},
		fieldBrokerage:  {"Brokerage", "Pure Brokerage AMT", "Brokerage Amount", "Comms"},
		fieldTaxes:      {"Taxes", "Total Taxes", "Tax Amount"},
		fieldTradeDate:  {"Trade Date", "Tr Date", "Date"},
	},
}
