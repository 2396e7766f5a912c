package strategy

import (
	"io"
	"log"
	"testing"
	"time"

	"github.com/kpatel-quant/fnopipeline/internal/models"
	"github.com/kpatel-quant/fnopipeline/internal/positions"
)

var testExpiry = time.Date(2025, time.June, 26, 0, 0, 0, 0, time.UTC)

func testLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func callPosition(ticker string, lots float64) models.Position {
	return models.Position{
		InstrumentIdentity: models.InstrumentIdentity{
			Symbol: "RELIANCE", Ticker: "RIL",
			SecurityType: models.SecurityCall, Expiry: testExpiry, Strike: 2500,
		},
		BloombergTicker: ticker,
		Account:         "AURIGIN",
		Lots:            lots,
		LotSize:         250,
	}
}

func callTrade(ticker string, lots float64) models.Trade {
	side := models.SideBuy
	if lots < 0 {
		side = models.SideSell
	}
	return models.Trade{
		InstrumentIdentity: models.InstrumentIdentity{
			Symbol: "RELIANCE", Ticker: "RIL",
			SecurityType: models.SecurityCall, Expiry: testExpiry, Strike: 2500,
		},
		BloombergTicker: ticker,
		Account:         "AURIGIN",
		Side:            side,
		Lots:            lots,
		LotSize:         250,
	}
}

func putTrade(ticker string, lots float64) models.Trade {
	tr := callTrade(ticker, lots)
	tr.SecurityType = models.SecurityPut
	return tr
}

func TestProcessFollowsOnFlatBook(t *testing.T) {
	store := positions.NewStore(testLogger())
	e := NewEngine(store, testLogger())

	out := e.Process([]models.Trade{callTrade("RIL C", 10)})
	if len(out) != 1 {
		t.Fatalf("got %d legs, want 1", len(out))
	}
	if out[0].Label != models.StrategyFollowing {
		t.Errorf("label = %s, want FOLLOWING", out[0].Label)
	}
	if out[0].Book != models.BookFutureLong {
		t.Errorf("book = %s, want FULO", out[0].Book)
	}
	if out[0].Split || out[0].ParentID != "" {
		t.Errorf("fresh open marked as split: %+v", out[0])
	}
	if got := store.Lots("RIL C"); got != 10 {
		t.Errorf("book lots = %v, want 10", got)
	}
}

func TestProcessFollowsSameDirection(t *testing.T) {
	store := positions.NewStore(testLogger())
	store.Load([]models.Position{callPosition("RIL C", 5)})
	e := NewEngine(store, testLogger())

	out := e.Process([]models.Trade{callTrade("RIL C", 3)})
	if out[0].Label != models.StrategyFollowing {
		t.Errorf("label = %s, want FOLLOWING", out[0].Label)
	}
	if got := store.Lots("RIL C"); got != 8 {
		t.Errorf("book lots = %v, want 8", got)
	}
}

func TestProcessOpposesWithinPosition(t *testing.T) {
	store := positions.NewStore(testLogger())
	store.Load([]models.Position{callPosition("RIL C", 10)})
	e := NewEngine(store, testLogger())

	out := e.Process([]models.Trade{callTrade("RIL C", -4)})
	if len(out) != 1 {
		t.Fatalf("got %d legs, want 1", len(out))
	}
	if out[0].Label != models.StrategyOpposing || !out[0].Opposite {
		t.Errorf("label/opposite = %s/%v, want OPPOSING/true", out[0].Label, out[0].Opposite)
	}
	if out[0].Book != models.BookFutureLong {
		t.Errorf("book = %s, want FULO (the book the position sits in)", out[0].Book)
	}
	if got := store.Lots("RIL C"); got != 6 {
		t.Errorf("book lots = %v, want 6", got)
	}
}

func TestProcessExactCloseIsSingleOpposing(t *testing.T) {
	store := positions.NewStore(testLogger())
	store.Load([]models.Position{callPosition("RIL C", 7)})
	e := NewEngine(store, testLogger())

	out := e.Process([]models.Trade{callTrade("RIL C", -7)})
	if len(out) != 1 {
		t.Fatalf("exact close produced %d legs, want 1", len(out))
	}
	if out[0].Label != models.StrategyOpposing || out[0].Split {
		t.Errorf("exact close = %+v, want plain OPPOSING", out[0])
	}
	if got := store.Lots("RIL C"); got != 0 {
		t.Errorf("book lots = %v, want 0", got)
	}
	if len(store.Snapshot()) != 0 {
		t.Errorf("flat contract still in snapshot")
	}
}

func TestProcessSplitsReversal(t *testing.T) {
	store := positions.NewStore(testLogger())
	store.Load([]models.Position{callPosition("RIL C", 3)})
	e := NewEngine(store, testLogger())
	e.newID = func() string { return "parent-1" }

	tr := callTrade("RIL C", -10)
	tr.Brokerage = 10.01
	tr.Taxes = 5.55

	out := e.Process([]models.Trade{tr})
	if len(out) != 2 {
		t.Fatalf("got %d legs, want 2", len(out))
	}

	closeLeg, openLeg := out[0], out[1]
	if closeLeg.Label != models.StrategyOpposing || closeLeg.Lots != -3 {
		t.Errorf("close leg = %s %v lots, want OPPOSING -3", closeLeg.Label, closeLeg.Lots)
	}
	if openLeg.Label != models.StrategyFollowing || openLeg.Lots != -7 {
		t.Errorf("open leg = %s %v lots, want FOLLOWING -7", openLeg.Label, openLeg.Lots)
	}
	if closeLeg.Lots+openLeg.Lots != tr.Lots {
		t.Errorf("legs sum to %v, want %v", closeLeg.Lots+openLeg.Lots, tr.Lots)
	}
	if closeLeg.ParentID != "parent-1" || openLeg.ParentID != "parent-1" {
		t.Errorf("parent ids %q/%q, want shared parent-1", closeLeg.ParentID, openLeg.ParentID)
	}
	if !closeLeg.Split || !openLeg.Split {
		t.Error("legs not flagged as split")
	}

	// Close leg owns the long book, remainder opens the short book.
	if closeLeg.Book != models.BookFutureLong || openLeg.Book != models.BookFutureShort {
		t.Errorf("books = %s/%s, want FULO/FUSH", closeLeg.Book, openLeg.Book)
	}

	// 3 of 10 lots close: 30% of charges on the close leg, remainder on the
	// opening leg, summing exactly.
	if closeLeg.Brokerage != 3.00 {
		t.Errorf("close brokerage = %v, want 3.00", closeLeg.Brokerage)
	}
	if openLeg.Brokerage != 7.01 {
		t.Errorf("open brokerage = %v, want 7.01", openLeg.Brokerage)
	}
	if got := closeLeg.Taxes + openLeg.Taxes; got != 5.55 {
		t.Errorf("taxes sum = %v, want 5.55", got)
	}

	if got := store.Lots("RIL C"); got != -7 {
		t.Errorf("book lots = %v, want -7 after reversal", got)
	}
}

func TestProcessPutBooksInverted(t *testing.T) {
	store := positions.NewStore(testLogger())
	e := NewEngine(store, testLogger())

	// Long puts carry short exposure: opening buy books to FUSH.
	out := e.Process([]models.Trade{putTrade("RIL P", 5)})
	if out[0].Book != models.BookFutureShort {
		t.Errorf("long put book = %s, want FUSH", out[0].Book)
	}

	// Selling part of the long put book opposes within FUSH.
	out = e.Process([]models.Trade{putTrade("RIL P", -2)})
	if out[0].Label != models.StrategyOpposing || out[0].Book != models.BookFutureShort {
		t.Errorf("put close = %s/%s, want OPPOSING/FUSH", out[0].Label, out[0].Book)
	}
}

func TestProcessEarlierTradeDecidesLater(t *testing.T) {
	store := positions.NewStore(testLogger())
	e := NewEngine(store, testLogger())

	// Buy 5 flat, then sell 8: classification of the sell sees the +5 the
	// buy just created and splits.
	out := e.Process([]models.Trade{
		callTrade("RIL C", 5),
		callTrade("RIL C", -8),
	})
	if len(out) != 3 {
		t.Fatalf("got %d legs, want 3", len(out))
	}
	if out[0].Label != models.StrategyFollowing {
		t.Errorf("first leg = %s, want FOLLOWING", out[0].Label)
	}
	if out[1].Label != models.StrategyOpposing || out[1].Lots != -5 {
		t.Errorf("second leg = %s %v, want OPPOSING -5", out[1].Label, out[1].Lots)
	}
	if out[2].Label != models.StrategyFollowing || out[2].Lots != -3 {
		t.Errorf("third leg = %s %v, want FOLLOWING -3", out[2].Label, out[2].Lots)
	}
}

func TestProcessKeepsSourceOrderAcrossContracts(t *testing.T) {
	store := positions.NewStore(testLogger())
	e := NewEngine(store, testLogger())

	out := e.Process([]models.Trade{
		callTrade("A", 1),
		callTrade("B", 2),
		callTrade("A", 3),
	})
	if len(out) != 3 {
		t.Fatalf("got %d legs, want 3", len(out))
	}
	wantKeys := []string{"A", "B", "A"}
	for i, pt := range out {
		if pt.BloombergTicker != wantKeys[i] {
			t.Errorf("leg %d ticker = %q, want %q", i, pt.BloombergTicker, wantKeys[i])
		}
	}
}
