package parser

import (
	"errors"
	"io"
	"log"
	"testing"

	"github.com/kpatel-quant/fnopipeline/internal/mapping"
	"github.com/kpatel-quant/fnopipeline/internal/models"
)

func testLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func testTable(t *testing.T) *mapping.Table {
	t.Helper()
	rows := [][]string{
		{"Symbol", "Ticker", "Underlying", "Exchange", "Lot_Size"},
		{"RELIANCE", "RIL", "RIL IS Equity", "NSE", "250"},
		{"TATAMOTORS", "TTMT", "", "NSE", "550"},
		{"BAJAJ-AUTO", "BJAUT", "BJAUT IS Equity", "NSE", "75"},
		{"NETWEB", "NETWEB", "NETWEB IS Equity", "NSE", "100"},
	}
	return mapping.NewTable(rows, testLogger())
}

func TestParseBODPositions(t *testing.T) {
	table := testTable(t)
	p := NewPositionParser(table, testLogger())

	rows := [][]string{
		bodHeader(),
		bodRow("RELIANCE", "FUTSTK", "26/06/2025", "0", "", "250", "10", "2"),
		bodRow("RELIANCE", "OPTSTK", "26/06/2025", "2500", "CE", "250", "0", "4"),
		bodRow("NIFTY", "FUTIDX", "26/06/2025", "0", "", "", "3", "0"),
		bodRow("TATAMOTORS", "FUTSTK", "26/06/2025", "0", "", "550", "5", "5"),
	}

	res, err := p.Parse(rows, "bod.xlsx", "AURIGIN")
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if res.Format != FormatBOD {
		t.Fatalf("format = %s, want BOD", res.Format)
	}
	if len(res.Positions) != 3 {
		t.Fatalf("got %d positions, want 3 (flat row dropped)", len(res.Positions))
	}

	fut := res.Positions[0]
	if fut.BloombergTicker != "RIL=M5 IS Equity" {
		t.Errorf("futures ticker = %q", fut.BloombergTicker)
	}
	if fut.Lots != 8 || fut.LotSize != 250 {
		t.Errorf("futures lots = %v lot size = %v, want 8 and 250", fut.Lots, fut.LotSize)
	}
	if fut.Account != "AURIGIN" || fut.Underlying != "RIL IS Equity" {
		t.Errorf("account/underlying = %q/%q", fut.Account, fut.Underlying)
	}

	opt := res.Positions[1]
	if opt.BloombergTicker != "RIL IS 06/26/25 C2500 Equity" {
		t.Errorf("option ticker = %q", opt.BloombergTicker)
	}
	if opt.Lots != -4 {
		t.Errorf("option lots = %v, want -4", opt.Lots)
	}

	idx := res.Positions[2]
	if idx.BloombergTicker != "NZM5 Index" {
		t.Errorf("index ticker = %q", idx.BloombergTicker)
	}
	if idx.LotSize != 50 {
		t.Errorf("index lot size = %v, want 50 from index rule", idx.LotSize)
	}
}

func TestParseBODCollectsBadRows(t *testing.T) {
	table := testTable(t)
	p := NewPositionParser(table, testLogger())

	rows := [][]string{
		bodRow("RELIANCE", "FUTSTK", "26/06/2025", "0", "", "250", "10", "0"),
		bodRow("RELIANCE", "FUTSTK", "26/06/2025", "0", "", "250", "ten", "0"),
		bodRow("RELIANCE", "FUTSTK", "garbage", "0", "", "250", "5", "0"),
		bodRow("RELIANCE", "OPTSTK", "26/06/2025", "2500", "", "250", "2", "0"),
		bodRow("NEWLISTING", "FUTSTK", "26/06/2025", "0", "", "100", "7", "0"),
	}

	res, err := p.Parse(rows, "bod.xlsx", "AURIGIN")
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if len(res.Positions) != 1 {
		t.Fatalf("got %d positions, want 1", len(res.Positions))
	}
	if len(res.Malformed) != 2 {
		t.Fatalf("got %d malformed rows, want 2: %v", len(res.Malformed), res.Malformed)
	}
	if res.Malformed[0].Field != "long lots" {
		t.Errorf("first malformed field = %q", res.Malformed[0].Field)
	}
	if res.Malformed[1].Field != "expiry" {
		t.Errorf("second malformed field = %q", res.Malformed[1].Field)
	}
	if len(res.Incomplete) != 1 {
		t.Fatalf("got %d incomplete identities, want 1", len(res.Incomplete))
	}
	if table.UnmappedCount() != 1 {
		t.Errorf("unmapped count = %d, want 1 for NEWLISTING", table.UnmappedCount())
	}
}

func TestParseContractPositions(t *testing.T) {
	table := testTable(t)
	p := NewPositionParser(table, testLogger())

	rows := [][]string{
		{"", "", "", "Contract", "", "Lot Size", "", "", "", "", "Net Lots", ""},
		contractRow("FUTSTK-TATAMOTORS-26JUN2025-FF-0", "550", "-3"),
		contractRow("OPTSTK-BAJAJ-AUTO-26JUN2025-PE-6,500", "75", "2"),
		contractRow("OPTSTK-BAJAJ-AUTO-26JUN2025-CE-7,000", "75", "0"),
		contractRow("OPTSTK-RELIANCE-NODATE-CE-2,500", "250", "1"),
	}

	res, err := p.Parse(rows, "contract.csv", "WAFRA")
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if res.Format != FormatContract {
		t.Fatalf("format = %s, want Contract", res.Format)
	}
	if len(res.Positions) != 2 {
		t.Fatalf("got %d positions, want 2", len(res.Positions))
	}

	if res.Positions[0].BloombergTicker != "TTMT=M5 IS Equity" {
		t.Errorf("futures ticker = %q", res.Positions[0].BloombergTicker)
	}
	if res.Positions[0].Lots != -3 {
		t.Errorf("lots = %v, want -3", res.Positions[0].Lots)
	}

	put := res.Positions[1]
	if put.BloombergTicker != "BJAUT IS 06/26/25 P6500 Equity" {
		t.Errorf("put ticker = %q", put.BloombergTicker)
	}
	if put.Strike != 6500 || put.LotSize != 75 {
		t.Errorf("strike/lot = %v/%v, want 6500/75", put.Strike, put.LotSize)
	}

	if len(res.Malformed) != 1 {
		t.Fatalf("got %d malformed rows, want 1 for the bad expiry", len(res.Malformed))
	}
}

func TestParseMSPositions(t *testing.T) {
	table := testTable(t)
	p := NewPositionParser(table, testLogger())

	rows := [][]string{
		msRow("OPTSTK-RELIANCE-26JUN2025-CE-2,500", "6", "1"),
		msRow("TOTAL - - - -", "99", "0"),
		msRow("FUTSTK-NETWEB-26JUN2025-FF-0", "2", "0"),
		msRow("FUTSTK-RELIANCE-26JUN2025-FF-0", "4", "4"),
	}

	res, err := p.Parse(rows, "ms.xlsx", "AURIGIN")
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if res.Format != FormatMS {
		t.Fatalf("format = %s, want MS", res.Format)
	}
	if len(res.Positions) != 2 {
		t.Fatalf("got %d positions, want 2: %+v", len(res.Positions), res.Positions)
	}

	opt := res.Positions[0]
	if opt.Lots != 5 {
		t.Errorf("lots = %v, want 5 (buy minus sell)", opt.Lots)
	}
	if opt.LotSize != 250 {
		t.Errorf("lot size = %v, want 250 from the mapping table", opt.LotSize)
	}

	// Symbols containing "NET" are real instruments, not netting summary
	// rows, and must survive the summary filter.
	if res.Positions[1].Symbol != "NETWEB" {
		t.Errorf("second position symbol = %q, want NETWEB", res.Positions[1].Symbol)
	}
}

func TestParseUnrecognizedFormat(t *testing.T) {
	p := NewPositionParser(testTable(t), testLogger())

	_, err := p.Parse([][]string{{"a", "b"}}, "mystery.csv", "AURIGIN")
	if err == nil {
		t.Fatal("Parse succeeded on junk input")
	}
	var uf *UnrecognizedFormatError
	if !errors.As(err, &uf) {
		t.Fatalf("error %T, want *UnrecognizedFormatError", err)
	}
	if uf.File != "mystery.csv" {
		t.Errorf("File = %q, want mystery.csv", uf.File)
	}
}

func TestBODSecurityType(t *testing.T) {
	tests := []struct {
		series  string
		optType string
		want    models.SecurityType
		wantErr bool
	}{
		{"FUTSTK", "", models.SecurityFutures, false},
		{"FUTIDX", "CE", models.SecurityFutures, false},
		{"OPTSTK", "CE", models.SecurityCall, false},
		{"OPTIDX", "PE", models.SecurityPut, false},
		{"OPTSTK", "", "", true},
		{"EQ", "", models.SecurityFutures, false},
		{"EQ", "PE", models.SecurityPut, false},
	}
	for _, tt := range tests {
		got, err := bodSecurityType(tt.series, tt.optType)
		if tt.wantErr {
			if err == nil {
				t.Errorf("bodSecurityType(%q, %q) succeeded, want error", tt.series, tt.optType)
			}
			continue
		}
		if err != nil {
			t.Errorf("bodSecurityType(%q, %q) error: %v", tt.series, tt.optType, err)
			continue
		}
		if got != tt.want {
			t.Errorf("bodSecurityType(%q, %q) = %s, want %s", tt.series, tt.optType, got, tt.want)
		}
	}
}
