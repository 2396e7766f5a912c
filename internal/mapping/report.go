package mapping

import (
	"sort"
	"strings"
	"time"
)

// MissingMapping is one grouped row of the missing-mappings report.
type MissingMapping struct {
	Sources         string
	Symbol          string
	Expiry          time.Time
	Lots            float64
	SuggestedTicker string
	Underlying      string
	Exchange        string
	LotSize         float64
}

// suggestedIndexTickers map well-known index symbols straight to their
// futures roots when suggesting a mapping row.
var suggestedIndexTickers = map[string]string{
	"NIFTY":      "NZ",
	"BANKNIFTY":  "AF1",
	"FINNIFTY":   "FINNIFTY",
	"MIDCPNIFTY": "RNS",
}

// strippableSuffixes are series decorations that sometimes leak into the
// symbol column of source files.
var strippableSuffixes = []string{"EQ", "FUT", "OPT", "CE", "PE"}

// MissingReport groups the recorded unmapped symbols into one actionable row
// per symbol: sources joined, lots summed, first-seen expiry kept, plus a
// suggested ticker for the mapping sheet.
func (t *Table) MissingReport() []MissingMapping {
	bySymbol := make(map[string]*MissingMapping)
	order := make([]string, 0)

	for _, u := range t.unmapped {
		m, ok := bySymbol[u.Symbol]
		if !ok {
			m = &MissingMapping{
				Symbol:          u.Symbol,
				Expiry:          u.Expiry,
				Sources:         u.Source,
				SuggestedTicker: SuggestTicker(u.Symbol),
				Underlying:      defaultUnderlying(u.Symbol, SuggestTicker(u.Symbol)),
				Exchange:        "NSE",
				LotSize:         1,
			}
			bySymbol[u.Symbol] = m
			order = append(order, u.Symbol)
			m.Lots += u.Lots
			continue
		}
		if !strings.Contains(m.Sources, u.Source) {
			m.Sources += ", " + u.Source
		}
		m.Lots += u.Lots
	}

	sort.Strings(order)
	out := make([]MissingMapping, 0, len(order))
	for _, sym := range order {
		out = append(out, *bySymbol[sym])
	}
	return out
}

// SuggestTicker proposes a mapping-sheet ticker for an unknown symbol:
// known index aliases map to their futures roots, series suffixes are
// stripped, everything else passes through unchanged.
func SuggestTicker(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if t, ok := suggestedIndexTickers[s]; ok {
		return t
	}
	for _, suffix := range strippableSuffixes {
		if strings.HasSuffix(s, suffix) && len(s) > len(suffix) {
			base := strings.TrimSpace(strings.TrimSuffix(s, suffix))
			if t, ok := suggestedIndexTickers[base]; ok {
				return t
			}
			return base
		}
	}
	return s
}
