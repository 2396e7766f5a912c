package acm

import (
	"io"
	"log"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kpatel-quant/fnopipeline/internal/expiry"
	"github.com/kpatel-quant/fnopipeline/internal/models"
)

func testMapper(t *testing.T) *Mapper {
	t.Helper()
	loc := time.FixedZone("SGT", 8*60*60)
	m, err := NewMapper(DefaultSchema(), loc, log.New(io.Discard, "", 0))
	require.NoError(t, err)
	return m
}

func processedTrade(side models.Side, lots float64, opposite bool) models.ProcessedTrade {
	pt := models.ProcessedTrade{
		Label:    models.StrategyFollowing,
		Book:     models.BookFutureLong,
		Opposite: opposite,
	}
	pt.Symbol = "RELIANCE"
	pt.SecurityType = models.SecurityFutures
	pt.BloombergTicker = "RIL=M5 IS Equity"
	pt.CPCode = "ECASL0000094"
	pt.TMCode = "7730"
	pt.Side = side
	pt.Lots = lots
	pt.LotSize = 250
	pt.Price = 2980.55
	pt.TradeDate = time.Date(2025, 6, 20, 0, 0, 0, 0, time.UTC)
	return pt
}

func columnIndex(t *testing.T, header []string, name string) int {
	t.Helper()
	for i, h := range header {
		if h == name {
			return i
		}
	}
	t.Fatalf("column %q not in header", name)
	return -1
}

func TestMapRendersDefaultSchema(t *testing.T) {
	m := testMapper(t)

	lines := LinesFromProcessed([]models.ProcessedTrade{processedTrade(models.SideBuy, 4, false)})
	lines[0].Comms = 120.5
	lines[0].BrokerTaxes = 43.21
	lines[0].BrokerTradeDate = "20/06/2025"

	res := m.Map(lines)

	require.Len(t, res.Rows, 1)
	require.Len(t, res.Header, len(DefaultColumns))
	assert.Empty(t, res.Issues)

	row := res.Rows[0]
	assert.Equal(t, "ECASL0000094", row[columnIndex(t, res.Header, ColAccountID)])
	assert.Equal(t, "RIL=M5 IS Equity", row[columnIndex(t, res.Header, ColIdentifier)])
	assert.Equal(t, "Bloomberg Yellow Key", row[columnIndex(t, res.Header, ColIdentifierType)])
	assert.Equal(t, "4", row[columnIndex(t, res.Header, ColQuantity)])
	assert.Equal(t, "2980.55", row[columnIndex(t, res.Header, ColTradePrice)])
	assert.Equal(t, "FULO", row[columnIndex(t, res.Header, ColStrategy)])
	assert.Equal(t, "NSE", row[columnIndex(t, res.Header, ColTradeVenue)])
	assert.Equal(t, "Buy", row[columnIndex(t, res.Header, ColTransactionType)])
	assert.Equal(t, "120.5", row[columnIndex(t, res.Header, ColComms)])
	assert.Equal(t, "20/06/2025", row[columnIndex(t, res.Header, ColBrokerTradeDate)])
	// Broker TD wins over the clearing trade date.
	assert.Equal(t, "06/20/2025 00:00:00", row[columnIndex(t, res.Header, ColTradeDate)])
	assert.Equal(t, "06/20/2025", row[columnIndex(t, res.Header, ColSettleDate)])
}

func TestTransactionTypeMapping(t *testing.T) {
	tests := []struct {
		side     models.Side
		opposite bool
		want     string
	}{
		{models.SideBuy, false, "Buy"},
		{models.SideBuy, true, "BuyToCover"},
		{models.SideSell, false, "SellShort"},
		{models.SideSell, true, "Sell"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, transactionType(tt.side, tt.opposite))
	}
}

func TestMapFlagsBlankMandatoryFields(t *testing.T) {
	m := testMapper(t)

	pt := processedTrade(models.SideBuy, 4, false)
	pt.CPCode = ""
	res := m.Map(LinesFromProcessed([]models.ProcessedTrade{pt}))

	// The row still renders; the issue names what to fix.
	require.Len(t, res.Rows, 1)
	require.Len(t, res.Issues, 1)
	assert.Equal(t, 1, res.Issues[0].Row)
	assert.Equal(t, ColAccountID, res.Issues[0].Column)
}

func TestLinesFromExpiryAlwaysUnwind(t *testing.T) {
	m := testMapper(t)

	grp := &expiry.Group{
		Expiry: time.Date(2025, 6, 26, 0, 0, 0, 0, time.UTC),
		Derivatives: []expiry.Leg{
			{
				Underlying: "RIL IS Equity",
				Symbol:     "RIL=M5 IS Equity",
				Side:       models.SideSell,
				Book:       models.BookFutureLong,
				Quantity:   3,
				Price:      2980,
				Kind:       string(models.SecurityFutures),
				LotSize:    250,
			},
		},
		Cash: []expiry.Leg{
			{
				Underlying: "RIL IS Equity",
				Symbol:     "RIL IS Equity",
				Side:       models.SideBuy,
				Book:       models.BookEquityLong,
				Quantity:   750,
				Price:      2980,
				Kind:       expiry.KindCash,
				TradeNote:  expiry.NoteExercise,
			},
		},
	}

	res := m.Map(LinesFromExpiry(grp, "ECASL0000094"))
	require.Len(t, res.Rows, 2)

	txCol := columnIndex(t, res.Header, ColTransactionType)
	assert.Equal(t, "Sell", res.Rows[0][txCol])
	assert.Equal(t, "BuyToCover", res.Rows[1][txCol])

	typeCol := columnIndex(t, res.Header, ColInstrumentType)
	assert.Equal(t, "Futures", res.Rows[0][typeCol])
	assert.Equal(t, "Equity", res.Rows[1][typeCol])
	assert.Equal(t, "E", res.Rows[1][columnIndex(t, res.Header, ColNotes)])
	assert.Equal(t, "750", res.Rows[1][columnIndex(t, res.Header, ColQuantity)])
}

func TestLoadSchemaRejectsMissingMandatory(t *testing.T) {
	dir := t.TempDir()

	path := filepath.Join(dir, "schema.yaml")
	require.NoError(t, os.WriteFile(path, []byte("columns:\n  - Trade Date\n  - Identifier\n"), 0o644))
	_, err := LoadSchema(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mandatory column")

	full := "columns:\n  - Account Id\n  - Identifier\n  - Quantity\n  - Transaction Type\n  - Notes\n"
	require.NoError(t, os.WriteFile(path, []byte(full), 0o644))
	s, err := LoadSchema(path)
	require.NoError(t, err)
	assert.Len(t, s.Columns, 5)
}
