package parser

import (
	"errors"
	"testing"
	"time"

	"github.com/kpatel-quant/fnopipeline/internal/models"
)

var tradeHeader = []string{
	"CP Code", "TM Code", "Scheme", "TM Name", "Instr", "Symbol",
	"Expiry Dt", "Lot Size", "Strike Price", "Option Type", "B/S",
	"Qty", "Lots Traded", "Avg Price",
}

func tradeRow(instr, symbol, expiry, lotSize, strike, optType, side, qty, lots, price string) []string {
	return []string{
		"ECASL0000094", "10975", "FO", "IIFL SECURITIES LTD", instr, symbol,
		expiry, lotSize, strike, optType, side, qty, lots, price,
	}
}

func TestParseTrades(t *testing.T) {
	table := testTable(t)
	p := NewTradeParser(table, testLogger())

	rows := [][]string{
		tradeHeader,
		tradeRow("OPTSTK", "RELIANCE", "26/06/2025", "250", "2500", "CE", "B", "2500", "10", "12.5"),
		tradeRow("FUTSTK", "TATAMOTORS", "26/06/2025", "550", "0", "", "S", "2200", "4", "950.25"),
		tradeRow("FUTIDX", "NIFTY", "26/06/2025", "50", "0", "", "BUY", "100", "2", "23150.75"),
	}

	res, err := p.Parse(rows, "trades.xlsx", "AURIGIN")
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if len(res.Trades) != 3 {
		t.Fatalf("got %d trades, want 3", len(res.Trades))
	}

	buy := res.Trades[0]
	if buy.Side != models.SideBuy || buy.Lots != 10 {
		t.Errorf("buy side/lots = %s/%v, want Buy/10", buy.Side, buy.Lots)
	}
	if buy.BloombergTicker != "RIL IS 06/26/25 C2500 Equity" {
		t.Errorf("buy ticker = %q", buy.BloombergTicker)
	}
	if buy.Price != 12.5 || buy.LotSize != 250 {
		t.Errorf("buy price/lot = %v/%v", buy.Price, buy.LotSize)
	}
	if buy.CPCode != "ECASL0000094" || buy.TMCode != "10975" {
		t.Errorf("buy cp/tm = %q/%q", buy.CPCode, buy.TMCode)
	}
	if buy.SourceRow != 2 {
		t.Errorf("buy source row = %d, want 2", buy.SourceRow)
	}
	if len(buy.Raw) != len(tradeHeader) {
		t.Errorf("raw row not preserved: %d cells", len(buy.Raw))
	}

	sell := res.Trades[1]
	if sell.Side != models.SideSell || sell.Lots != -4 {
		t.Errorf("sell side/lots = %s/%v, want Sell/-4", sell.Side, sell.Lots)
	}
	if sell.BloombergTicker != "TTMT=M5 IS Equity" {
		t.Errorf("sell ticker = %q", sell.BloombergTicker)
	}

	idx := res.Trades[2]
	if idx.BloombergTicker != "NZM5 Index" {
		t.Errorf("index ticker = %q", idx.BloombergTicker)
	}
	if idx.Lots != 2 || idx.LotSize != 50 {
		t.Errorf("index lots/lot size = %v/%v, want 2/50", idx.Lots, idx.LotSize)
	}
}

func TestParseTradesKeepsFileOrder(t *testing.T) {
	table := testTable(t)
	p := NewTradeParser(table, testLogger())

	rows := [][]string{
		tradeHeader,
		tradeRow("FUTSTK", "RELIANCE", "26/06/2025", "250", "0", "", "B", "", "1", "100"),
		tradeRow("FUTSTK", "RELIANCE", "26/06/2025", "250", "0", "", "S", "", "1", "101"),
		tradeRow("FUTSTK", "RELIANCE", "26/06/2025", "250", "0", "", "B", "", "2", "102"),
	}

	res, err := p.Parse(rows, "trades.xlsx", "AURIGIN")
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if len(res.Trades) != 3 {
		t.Fatalf("got %d trades, want 3 unaggregated", len(res.Trades))
	}
	wantLots := []float64{1, -1, 2}
	for i, tr := range res.Trades {
		if tr.Lots != wantLots[i] {
			t.Errorf("trade %d lots = %v, want %v", i, tr.Lots, wantLots[i])
		}
	}
}

func TestParseTradesSkipsAndCollects(t *testing.T) {
	table := testTable(t)
	p := NewTradeParser(table, testLogger())

	rows := [][]string{
		tradeHeader,
		tradeRow("EQ", "RELIANCE", "26/06/2025", "1", "0", "", "B", "10", "1", "100"),
		tradeRow("FUTSTK", "RELIANCE", "26/06/2025", "250", "0", "", "B", "", "two", "100"),
		tradeRow("FUTSTK", "RELIANCE", "26/06/2025", "250", "0", "", "B", "", "0", "100"),
		tradeRow("OPTSTK", "RELIANCE", "26/06/2025", "250", "2500", "XX", "B", "", "1", "12"),
		tradeRow("FUTSTK", "RELIANCE", "26/06/2025", "250", "0", "", "?", "", "1", "100"),
		tradeRow("FUTSTK", "NEWLISTING", "26/06/2025", "100", "0", "", "B", "", "1", "100"),
		tradeRow("FUTSTK", "RELIANCE", "bad-date", "250", "0", "", "B", "", "1", "100"),
	}

	res, err := p.Parse(rows, "trades.xlsx", "AURIGIN")
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if len(res.Trades) != 0 {
		t.Fatalf("got %d trades, want 0", len(res.Trades))
	}
	if len(res.Malformed) != 2 {
		t.Fatalf("got %d malformed, want 2 (lots and expiry): %v", len(res.Malformed), res.Malformed)
	}
	if len(res.Incomplete) != 1 {
		t.Fatalf("got %d incomplete, want 1 for option type XX", len(res.Incomplete))
	}
	if table.UnmappedCount() != 1 {
		t.Errorf("unmapped = %d, want 1 for NEWLISTING", table.UnmappedCount())
	}
}

func TestParseTradesEnhancedColumns(t *testing.T) {
	table := testTable(t)
	p := NewTradeParser(table, testLogger())

	header := append(append([]string{}, tradeHeader...), "Comms", "Taxes", "TD")
	row := append(
		tradeRow("FUTSTK", "RELIANCE", "26/06/2025", "250", "0", "", "B", "", "2", "100"),
		"12.34", "56.78", "25/06/2025",
	)

	res, err := p.Parse([][]string{header, row}, "trades.xlsx", "AURIGIN")
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if len(res.Trades) != 1 {
		t.Fatalf("got %d trades, want 1", len(res.Trades))
	}
	tr := res.Trades[0]
	if tr.Brokerage != 12.34 || tr.Taxes != 56.78 {
		t.Errorf("brokerage/taxes = %v/%v", tr.Brokerage, tr.Taxes)
	}
	want := time.Date(2025, time.June, 25, 0, 0, 0, 0, time.UTC)
	if !tr.TradeDate.Equal(want) {
		t.Errorf("trade date = %v, want %v", tr.TradeDate, want)
	}
}

func TestParseTradesHeaderless(t *testing.T) {
	table := testTable(t)
	p := NewTradeParser(table, testLogger())

	rows := [][]string{
		tradeRow("FUTSTK", "RELIANCE", "26/06/2025", "250", "0", "", "B", "", "3", "100"),
	}

	res, err := p.Parse(rows, "trades.csv", "WAFRA")
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if len(res.Trades) != 1 {
		t.Fatalf("got %d trades, want 1", len(res.Trades))
	}
	if res.Trades[0].Lots != 3 {
		t.Errorf("lots = %v, want 3", res.Trades[0].Lots)
	}
}

func TestParseTradesUnrecognized(t *testing.T) {
	p := NewTradeParser(testTable(t), testLogger())

	_, err := p.Parse([][]string{{"random", "grid"}}, "odd.csv", "AURIGIN")
	if err == nil {
		t.Fatal("Parse succeeded on junk input")
	}
	var uf *UnrecognizedFormatError
	if !errors.As(err, &uf) {
		t.Fatalf("error %T, want *UnrecognizedFormatError", err)
	}
}

func TestResolveTradeColumnsReordered(t *testing.T) {
	header := []string{"Symbol", "Instr", "Lots Traded", "Expiry Dt", "B/S", "Lot Size", "Strike Price", "Option Type", "Avg Price"}
	cols, start, ok := resolveTradeColumns([][]string{header})
	if !ok {
		t.Fatal("resolveTradeColumns failed on reordered header")
	}
	if start != 1 {
		t.Errorf("start = %d, want 1", start)
	}
	if cols[colSymbol] != 0 || cols[colInstr] != 1 || cols[colLots] != 2 {
		t.Errorf("column map wrong: %v", cols)
	}
}
