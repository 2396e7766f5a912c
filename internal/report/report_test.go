package report

import (
	"encoding/csv"
	"io"
	"log"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/kpatel-quant/fnopipeline/internal/acm"
	"github.com/kpatel-quant/fnopipeline/internal/deliverables"
	"github.com/kpatel-quant/fnopipeline/internal/expiry"
	"github.com/kpatel-quant/fnopipeline/internal/models"
	"github.com/kpatel-quant/fnopipeline/internal/recon"
	"github.com/kpatel-quant/fnopipeline/internal/storage"
)

var testTime = time.Date(2025, 6, 26, 18, 30, 0, 0, time.UTC)

func testWriter(t *testing.T) *Writer {
	t.Helper()
	return NewWriter(t.TempDir(), "AURIGIN", testTime, log.New(io.Discard, "", 0))
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestParsedTradesCSV(t *testing.T) {
	w := testWriter(t)

	tr := models.Trade{
		BloombergTicker: "RIL=M5 IS Equity",
		Side:            models.SideBuy,
		Lots:            4,
		LotSize:         250,
		Price:           2980.55,
		CPCode:          "ECASL0000094",
		SourceRow:       3,
	}
	tr.Symbol = "RELIANCE"
	tr.SecurityType = models.SecurityFutures
	tr.Expiry = time.Date(2025, 6, 26, 0, 0, 0, 0, time.UTC)

	path, err := w.ParsedTrades([]models.Trade{tr})
	require.NoError(t, err)
	assert.Contains(t, path, "AURIGIN_1_parsed_trades_20250626_183000.csv")

	rows := readCSV(t, path)
	require.Len(t, rows, 2)
	assert.Equal(t, "Row", rows[0][0])
	assert.Equal(t, "RIL=M5 IS Equity", rows[1][2])
	assert.Equal(t, "1000", rows[1][9])
}

func TestEnhancedClearingCSV(t *testing.T) {
	w := testWriter(t)

	matched := recon.EnhancedTrade{Matched: true, Comms: 120.5, BrokerTax: 43.21, TD: "26/06/2025"}
	matched.BloombergTicker = "RIL=M5 IS Equity"
	matched.Side = models.SideBuy
	matched.Lots = 4
	matched.LotSize = 250
	unmatched := recon.EnhancedTrade{}
	unmatched.BloombergTicker = "NZM5 Index"
	unmatched.Side = models.SideSell

	path, err := w.EnhancedClearing([]recon.EnhancedTrade{matched, unmatched})
	require.NoError(t, err)
	assert.Contains(t, path, "AURIGIN_clearing_enhanced_20250626.csv")

	rows := readCSV(t, path)
	require.Len(t, rows, 3)
	assert.Equal(t, "120.5", rows[1][8])
	// Unmatched rows keep blank charges.
	assert.Equal(t, "", rows[2][8])
	assert.Equal(t, "", rows[2][10])
}

func TestListedTradesUsesSchemaHeader(t *testing.T) {
	w := testWriter(t)

	res := &acm.Result{
		Header: []string{"Account Id", "Identifier", "Quantity", "Transaction Type"},
		Rows:   [][]string{{"ECASL0000094", "RIL=M5 IS Equity", "4", "Buy"}},
	}
	path, err := w.ListedTrades(res)
	require.NoError(t, err)

	rows := readCSV(t, path)
	require.Len(t, rows, 2)
	assert.Equal(t, res.Header, rows[0])
}

func TestDeliverablesWorkbook(t *testing.T) {
	w := testWriter(t)

	pre := &deliverables.Report{
		Account: "AURIGIN",
		Stage:   deliverables.StagePre,
		Rows: []deliverables.Row{
			{BloombergTicker: "RIL=M5 IS Equity", Symbol: "RELIANCE", SecurityType: models.SecurityFutures,
				Lots: 3, LotSize: 250, Spot: 2980, PriceAvailable: true, DeliverableLots: 3, DeliverableQty: 750},
		},
		PerUnderlying: []deliverables.UnderlyingNet{{Underlying: "RIL IS Equity", Qty: 750}},
		Priced:        1,
	}
	cmp := []deliverables.Comparison{{BloombergTicker: "RIL=M5 IS Equity", PreQty: 750, PostQty: 500, Delta: -250}}

	path, err := w.DeliverablesWorkbook(pre, nil, cmp)
	require.NoError(t, err)

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	assert.ElementsMatch(t, []string{"PRE", "Comparison"}, f.GetSheetList())
	rows, err := f.GetRows("PRE")
	require.NoError(t, err)
	assert.Equal(t, "Bloomberg Ticker", rows[0][0])
	assert.Equal(t, "RIL=M5 IS Equity", rows[1][0])
}

func TestExpiryWorkbookSheets(t *testing.T) {
	w := testWriter(t)

	groups := []*expiry.Group{
		{
			Expiry: time.Date(2025, 6, 26, 0, 0, 0, 0, time.UTC),
			Derivatives: []expiry.Leg{
				{Underlying: "RIL IS Equity", Symbol: "RIL=M5 IS Equity", Kind: "Futures",
					Side: models.SideSell, Book: models.BookFutureLong, Quantity: 3, Price: 2980},
			},
			Skipped: []expiry.SkippedPosition{
				{BloombergTicker: "TATA=M5 IS Equity", Symbol: "TATAMOTORS", Reason: "no price available"},
			},
		},
	}
	acmRes := &acm.Result{Header: []string{"Account Id"}, Rows: [][]string{{"ECASL0000094"}}}

	path, err := w.ExpiryWorkbook(groups, nil, acmRes, nil)
	require.NoError(t, err)
	assert.Contains(t, path, "EXPIRY_DELIVERY_20250626.xlsx")

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	sheets := f.GetSheetList()
	assert.Contains(t, sheets, "PreTrade_Derivatives")
	assert.Contains(t, sheets, "PreTrade_Cash")
	assert.Contains(t, sheets, "PreTrade_Summary")
	assert.Contains(t, sheets, "PreTrade_ACM")
	assert.Contains(t, sheets, "Errors")
	assert.NotContains(t, sheets, "PostTrade_Derivatives")

	rows, err := f.GetRows("Errors")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "no price available", rows[1][4])
}

func TestRunSummaryText(t *testing.T) {
	w := testWriter(t)

	run := &storage.RunSummary{
		RunID:      "run-1",
		Kind:       storage.KindProcess,
		Account:    "AURIGIN",
		StartedAt:  testTime,
		FinishedAt: testTime.Add(12 * time.Second),
		Positions:  42,
		Trades:     17,
		Unmapped:   2,
		Outputs:    []string{"AURIGIN_1_parsed_trades.csv"},
	}
	path, err := w.RunSummaryText(run)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, "Run run-1 (process)")
	assert.Contains(t, text, "Positions: 42")
	assert.Contains(t, text, "Unmapped symbols: 2")
	assert.Contains(t, text, "AURIGIN_1_parsed_trades.csv")
}
