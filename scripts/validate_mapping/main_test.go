package main

import (
	"os"
	"path/filepath"
	"testing"
)

func writeSheet(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "futures mapping.csv")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing sheet: %v", err)
	}
	return path
}

func TestValidateCleanSheet(t *testing.T) {
	path := writeSheet(t, "Symbol,Ticker,Underlying,Exchange,Lot_Size\n"+
		"RELIANCE,RIL,RIL IS Equity,NSE,250\n"+
		"ACC,ACC,ACC IS Equity,NSE,300\n")

	report, err := validate(path)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if len(report.Findings) != 0 {
		t.Fatalf("expected no findings, got %v", report.Findings)
	}
	if report.Loaded != 2 {
		t.Fatalf("expected 2 loaded symbols, got %d", report.Loaded)
	}
}

func TestValidateFlagsProblems(t *testing.T) {
	path := writeSheet(t, "Symbol,Ticker,Underlying,Exchange,Lot_Size\n"+
		"RELIANCE,RIL,RIL IS Equity,NSE,250\n"+
		"RELIANCE,RIL,RIL IS Equity,NSE,250\n"+ // duplicate
		"TATASTEEL,,,,425\n"+ // blank ticker
		"ACC,ACC,ACC IS Equity,NSE,-300\n") // bad lot size

	report, err := validate(path)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}

	errors, warnings := report.count()
	if errors != 2 {
		t.Errorf("expected 2 errors, got %d: %v", errors, report.Findings)
	}
	if warnings != 1 {
		t.Errorf("expected 1 warning, got %d: %v", warnings, report.Findings)
	}
}

func TestValidateEmptySheetFails(t *testing.T) {
	path := writeSheet(t, "Symbol,Ticker\n")
	if _, err := validate(path); err == nil {
		t.Fatal("expected error for sheet with no usable rows")
	}
}

func TestIndexFuturesTicker(t *testing.T) {
	tests := []struct {
		symbol   string
		expected string
	}{
		{"NIFTY", "NZ"},
		{"BANKNIFTY", "AF1"},
		{"MIDCPNIFTY", "RNS"},
		{"FINNIFTY", "NZ"},
	}
	for _, tt := range tests {
		if got := indexFuturesTicker(tt.symbol); got != tt.expected {
			t.Errorf("indexFuturesTicker(%q) = %q, want %q", tt.symbol, got, tt.expected)
		}
	}
}
