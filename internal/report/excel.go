package report

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"github.com/kpatel-quant/fnopipeline/internal/acm"
	"github.com/kpatel-quant/fnopipeline/internal/deliverables"
	"github.com/kpatel-quant/fnopipeline/internal/expiry"
	"github.com/kpatel-quant/fnopipeline/internal/recon"
)

// sheet appends rows to one worksheet, tracking the next free row.
type sheet struct {
	f    *excelize.File
	name string
	next int
}

func newSheet(f *excelize.File, name string) (*sheet, error) {
	if _, err := f.NewSheet(name); err != nil {
		return nil, fmt.Errorf("creating sheet %s: %w", name, err)
	}
	return &sheet{f: f, name: name, next: 1}, nil
}

func (s *sheet) row(cells ...interface{}) error {
	axis, err := excelize.CoordinatesToCellName(1, s.next)
	if err != nil {
		return err
	}
	s.next++
	return s.f.SetSheetRow(s.name, axis, &cells)
}

func (s *sheet) blank() { s.next++ }

func saveWorkbook(f *excelize.File, path string) error {
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}
	return f.SaveAs(path)
}

// DeliverablesWorkbook writes the pre/post deliverable reports and their
// comparison into one workbook.
func (w *Writer) DeliverablesWorkbook(pre, post *deliverables.Report, cmp []deliverables.Comparison) (string, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	for _, rep := range []*deliverables.Report{pre, post} {
		if rep == nil {
			continue
		}
		if err := writeDeliverablesSheet(f, rep); err != nil {
			return "", err
		}
	}

	if len(cmp) > 0 {
		s, err := newSheet(f, "Comparison")
		if err != nil {
			return "", err
		}
		if err := s.row("Bloomberg Ticker", "Pre Qty", "Post Qty", "Delta"); err != nil {
			return "", err
		}
		for _, c := range cmp {
			if err := s.row(c.BloombergTicker, c.PreQty, c.PostQty, c.Delta); err != nil {
				return "", err
			}
		}
	}

	path := w.path(fmt.Sprintf("%s_deliverables_%s.xlsx", w.prefix, w.stamp()))
	if err := saveWorkbook(f, path); err != nil {
		return "", err
	}
	w.logger.Printf("wrote %s", path)
	return path, nil
}

func writeDeliverablesSheet(f *excelize.File, rep *deliverables.Report) error {
	s, err := newSheet(f, string(rep.Stage))
	if err != nil {
		return err
	}
	if err := s.row("Bloomberg Ticker", "Symbol", "Underlying", "Type", "Expiry",
		"Strike", "Lots", "Lot Size", "Spot", "Priced", "ITM",
		"Deliverable Lots", "Deliverable Qty", "Intrinsic INR", "Intrinsic USD"); err != nil {
		return err
	}
	for _, r := range rep.Rows {
		spot := interface{}(r.Spot)
		if !r.PriceAvailable {
			spot = "N/A"
		}
		if err := s.row(r.BloombergTicker, r.Symbol, r.Underlying, string(r.SecurityType),
			r.Expiry, r.Strike, r.Lots, r.LotSize, spot, r.PriceAvailable, r.ITM,
			r.DeliverableLots, r.DeliverableQty, r.IntrinsicINR, r.IntrinsicUSD); err != nil {
			return err
		}
	}

	s.blank()
	if err := s.row("Underlying", "Net Deliverable Qty"); err != nil {
		return err
	}
	for _, n := range rep.PerUnderlying {
		if err := s.row(n.Underlying, n.Qty); err != nil {
			return err
		}
	}
	s.blank()
	return s.row("TOTAL", "", "", "", "", "", "", "", "", rep.Priced, rep.Unpriced, "", "", rep.TotalINR, rep.TotalUSD)
}

// ReconWorkbook writes the pre and post reconciliation passes plus the
// trade-impact sheet.
func (w *Writer) ReconWorkbook(pre, post *recon.Summary, impact *recon.Impact) (string, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	for _, sum := range []*recon.Summary{pre, post} {
		if sum == nil {
			continue
		}
		if err := writeReconSheet(f, sum); err != nil {
			return "", err
		}
	}

	if impact != nil {
		s, err := newSheet(f, "Impact")
		if err != nil {
			return "", err
		}
		if err := s.row("Ticker", "Pre Diff", "Post Diff", "Change", "Direction"); err != nil {
			return "", err
		}
		for _, l := range impact.Improved {
			if err := s.row(l.Ticker, l.PreDiff, l.PostDiff, l.Change, "IMPROVED"); err != nil {
				return "", err
			}
		}
		for _, l := range impact.Degraded {
			if err := s.row(l.Ticker, l.PreDiff, l.PostDiff, l.Change, "DEGRADED"); err != nil {
				return "", err
			}
		}
		for _, t := range impact.Unchanged {
			if err := s.row(t, "", "", "", "UNCHANGED"); err != nil {
				return "", err
			}
		}
		s.blank()
		if err := s.row("Match Rate Delta", impact.RateDelta); err != nil {
			return "", err
		}
	}

	path := w.path(fmt.Sprintf("%s_recon_%s.xlsx", w.prefix, w.stamp()))
	if err := saveWorkbook(f, path); err != nil {
		return "", err
	}
	w.logger.Printf("wrote %s", path)
	return path, nil
}

func writeReconSheet(f *excelize.File, sum *recon.Summary) error {
	s, err := newSheet(f, sum.Stage)
	if err != nil {
		return err
	}
	if err := s.row(fmt.Sprintf("%s vs %s", sum.SideA, sum.SideB)); err != nil {
		return err
	}
	if err := s.row("Ticker", "Lots A", "Lots B", "Diff", "Status"); err != nil {
		return err
	}
	for _, l := range sum.Lines {
		if err := s.row(l.Ticker, l.LotsA, l.LotsB, l.Diff, string(l.Status)); err != nil {
			return err
		}
	}
	s.blank()
	return s.row("Matched", sum.Matched, "Mismatched", sum.Mismatched,
		"Missing A", sum.MissingInA, "Missing B", sum.MissingInB,
		"Match Rate", sum.MatchRate)
}

// ExpiryWorkbook writes the delivery legs of both stages, their cash
// summaries, the ACM renderings and every skipped position.
func (w *Writer) ExpiryWorkbook(pre, post []*expiry.Group, preACM, postACM *acm.Result) (string, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	stages := []struct {
		label  string
		groups []*expiry.Group
		acmRes *acm.Result
	}{
		{"PreTrade", pre, preACM},
		{"PostTrade", post, postACM},
	}

	var errSheet *sheet
	for _, st := range stages {
		if st.groups == nil {
			continue
		}
		if err := writeExpiryStage(f, st.label, st.groups); err != nil {
			return "", err
		}
		if st.acmRes != nil {
			if err := writeACMSheet(f, st.label+"_ACM", st.acmRes); err != nil {
				return "", err
			}
		}
		for _, grp := range st.groups {
			for _, sk := range grp.Skipped {
				if errSheet == nil {
					var err error
					if errSheet, err = newSheet(f, "Errors"); err != nil {
						return "", err
					}
					if err := errSheet.row("Stage", "Expiry", "Bloomberg Ticker", "Symbol", "Reason"); err != nil {
						return "", err
					}
				}
				if err := errSheet.row(st.label, grp.Expiry.Format("02/01/2006"), sk.BloombergTicker, sk.Symbol, sk.Reason); err != nil {
					return "", err
				}
			}
		}
	}

	path := w.path(fmt.Sprintf("EXPIRY_DELIVERY_%s.xlsx", w.at.Format(dateLayout)))
	if err := saveWorkbook(f, path); err != nil {
		return "", err
	}
	w.logger.Printf("wrote %s", path)
	return path, nil
}

func writeExpiryStage(f *excelize.File, label string, groups []*expiry.Group) error {
	deriv, err := newSheet(f, label+"_Derivatives")
	if err != nil {
		return err
	}
	if err := deriv.row("Expiry", "Underlying", "Symbol", "Kind", "Side", "Book",
		"Quantity", "Price", "Strike", "Lot Size", "Trade Note", "STT", "Stamp Duty", "Taxes"); err != nil {
		return err
	}
	cash, err := newSheet(f, label+"_Cash")
	if err != nil {
		return err
	}
	if err := cash.row("Expiry", "Underlying", "Side", "Book", "Quantity",
		"Price", "Trade Note", "STT", "Stamp Duty", "Taxes"); err != nil {
		return err
	}
	summary, err := newSheet(f, label+"_Summary")
	if err != nil {
		return err
	}
	if err := summary.row("Expiry", "Underlying", "Row Type", "Side", "Quantity",
		"Price", "Consideration", "STT", "Stamp Duty", "Taxes", "Trade Note"); err != nil {
		return err
	}

	for _, grp := range groups {
		day := grp.Expiry.Format("02/01/2006")
		for _, leg := range grp.Derivatives {
			if err := deriv.row(day, leg.Underlying, leg.Symbol, leg.Kind, string(leg.Side),
				string(leg.Book), leg.Quantity, leg.Price, leg.Strike, leg.LotSize,
				leg.TradeNote, leg.STT, leg.StampDuty, leg.Taxes); err != nil {
				return err
			}
		}
		for _, leg := range grp.Cash {
			if err := cash.row(day, leg.Underlying, string(leg.Side), string(leg.Book),
				leg.Quantity, leg.Price, leg.TradeNote, leg.STT, leg.StampDuty, leg.Taxes); err != nil {
				return err
			}
		}
		for _, r := range grp.CashSummary {
			if err := summary.row(day, r.Underlying, r.RowType, r.Side, r.Quantity,
				r.Price, r.Consideration, r.STT, r.StampDuty, r.Taxes, r.TradeNote); err != nil {
				return err
			}
		}
	}
	return nil
}

func writeACMSheet(f *excelize.File, name string, res *acm.Result) error {
	s, err := newSheet(f, name)
	if err != nil {
		return err
	}
	header := make([]interface{}, len(res.Header))
	for i, h := range res.Header {
		header[i] = h
	}
	if err := s.row(header...); err != nil {
		return err
	}
	for _, r := range res.Rows {
		cells := make([]interface{}, len(r))
		for i, c := range r {
			cells[i] = c
		}
		if err := s.row(cells...); err != nil {
			return err
		}
	}
	return nil
}
