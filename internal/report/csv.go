// Package report writes the run artifacts: numbered CSV stages, the
// missing-mappings sheets, enhanced clearing files and the Excel workbooks.
// Every writer returns the path it wrote so run summaries can list outputs.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/kpatel-quant/fnopipeline/internal/acm"
	"github.com/kpatel-quant/fnopipeline/internal/mapping"
	"github.com/kpatel-quant/fnopipeline/internal/models"
	"github.com/kpatel-quant/fnopipeline/internal/recon"
)

const (
	stampLayout = "20060102_150405"
	dateLayout  = "20060102"
)

// Writer emits artifacts for one account's run into a single directory.
// Prefix is the account display name, so AURIGIN_1_parsed_trades_... and
// WAFRA_1_parsed_trades_... never collide.
type Writer struct {
	dir    string
	prefix string
	at     time.Time
	logger *log.Logger
}

func NewWriter(dir, prefix string, at time.Time, logger *log.Logger) *Writer {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Writer{dir: dir, prefix: prefix, at: at, logger: logger}
}

func (w *Writer) stamp() string { return w.at.Format(stampLayout) }

func (w *Writer) path(name string) string { return filepath.Join(w.dir, name) }

// ParsedTrades writes stage 1: every trade as parsed from the clearing file.
func (w *Writer) ParsedTrades(trades []models.Trade) (string, error) {
	header := []string{
		"Row", "Symbol", "Bloomberg Ticker", "Security Type", "Expiry",
		"Strike", "Side", "Lots", "Lot Size", "Quantity", "Price",
		"CP Code", "TM Code", "Brokerage", "Taxes",
	}
	rows := make([][]string, 0, len(trades))
	for i := range trades {
		t := &trades[i]
		rows = append(rows, []string{
			strconv.Itoa(t.SourceRow),
			t.Symbol,
			t.BloombergTicker,
			string(t.SecurityType),
			t.Expiry.Format("02/01/2006"),
			num(t.Strike),
			string(t.Side),
			num(t.Lots),
			num(t.LotSize),
			num(t.Quantity()),
			num(t.Price),
			t.CPCode,
			t.TMCode,
			num(t.Brokerage),
			num(t.Taxes),
		})
	}
	return w.writeCSV(fmt.Sprintf("%s_1_parsed_trades_%s.csv", w.prefix, w.stamp()), header, rows)
}

// ProcessedTrades writes stage 2: trades after strategy assignment, splits
// included.
func (w *Writer) ProcessedTrades(trades []models.ProcessedTrade) (string, error) {
	header := []string{
		"Bloomberg Ticker", "Side", "Lots", "Lot Size", "Price",
		"Strategy", "Book", "Split", "Parent Id", "Brokerage", "Taxes",
	}
	rows := make([][]string, 0, len(trades))
	for i := range trades {
		t := &trades[i]
		rows = append(rows, []string{
			t.BloombergTicker,
			string(t.Side),
			num(t.Lots),
			num(t.LotSize),
			num(t.Price),
			string(t.Label),
			string(t.Book),
			strconv.FormatBool(t.Split),
			t.ParentID,
			num(t.Brokerage),
			num(t.Taxes),
		})
	}
	return w.writeCSV(fmt.Sprintf("%s_2_processed_trades_%s.csv", w.prefix, w.stamp()), header, rows)
}

// ListedTrades writes stage 3: the ACM upload rows.
func (w *Writer) ListedTrades(res *acm.Result) (string, error) {
	return w.writeCSV(fmt.Sprintf("%s_3_listed_trades_%s.csv", w.prefix, w.stamp()), res.Header, res.Rows)
}

// FinalPositions writes stage 4: the position book after trades applied.
func (w *Writer) FinalPositions(snapshot []models.Position) (string, error) {
	header := []string{
		"Bloomberg Ticker", "Symbol", "Underlying", "Security Type",
		"Expiry", "Strike", "Lots", "Lot Size", "Quantity", "Direction", "Book",
	}
	rows := make([][]string, 0, len(snapshot))
	for i := range snapshot {
		p := &snapshot[i]
		rows = append(rows, []string{
			p.BloombergTicker,
			p.Symbol,
			p.Underlying,
			string(p.SecurityType),
			p.Expiry.Format("02/01/2006"),
			num(p.Strike),
			num(p.Lots),
			num(p.LotSize),
			num(p.Quantity()),
			string(p.Direction()),
			string(p.Book()),
		})
	}
	return w.writeCSV(fmt.Sprintf("%s_4_final_positions_%s.csv", w.prefix, w.stamp()), header, rows)
}

// MissingMappings writes the grouped resolution misses.
func (w *Writer) MissingMappings(missing []mapping.MissingMapping) (string, error) {
	header := []string{"Symbol", "Sources", "Expiry", "Lots", "Suggested Ticker"}
	rows := make([][]string, 0, len(missing))
	for _, m := range missing {
		expiry := ""
		if !m.Expiry.IsZero() {
			expiry = m.Expiry.Format("02/01/2006")
		}
		rows = append(rows, []string{m.Symbol, m.Sources, expiry, num(m.Lots), m.SuggestedTicker})
	}
	return w.writeCSV(fmt.Sprintf("MISSING_MAPPINGS_%s.csv", w.stamp()), header, rows)
}

// MappingTemplate writes ready-to-paste mapping sheet rows for the misses.
func (w *Writer) MappingTemplate(missing []mapping.MissingMapping) (string, error) {
	header := []string{"Symbol", "Ticker", "Underlying", "Exchange", "Lot_Size"}
	rows := make([][]string, 0, len(missing))
	for _, m := range missing {
		rows = append(rows, []string{m.Symbol, m.SuggestedTicker, m.Underlying, m.Exchange, num(m.LotSize)})
	}
	return w.writeCSV(fmt.Sprintf("MAPPING_TEMPLATE_%s.csv", w.stamp()), header, rows)
}

// EnhancedClearing re-emits the clearing rows with the matched broker
// charges appended. Unmatched rows keep blank charge cells.
func (w *Writer) EnhancedClearing(enhanced []recon.EnhancedTrade) (string, error) {
	header := []string{
		"Bloomberg Ticker", "Side", "Lots", "Quantity", "Price",
		"CP Code", "TM Code", "Matched", "Comms", "Broker Taxes", "TD",
	}
	rows := make([][]string, 0, len(enhanced))
	for i := range enhanced {
		e := &enhanced[i]
		comms, btax, td := "", "", ""
		if e.Matched {
			comms = num(e.Comms)
			btax = num(e.BrokerTax)
			td = formatTD(e.TD)
		}
		rows = append(rows, []string{
			e.BloombergTicker,
			string(e.Side),
			num(e.Lots),
			num(e.Quantity()),
			num(e.Price),
			e.CPCode,
			e.TMCode,
			strconv.FormatBool(e.Matched),
			comms,
			btax,
			td,
		})
	}
	name := fmt.Sprintf("%s_clearing_enhanced_%s.csv", w.prefix, w.at.Format(dateLayout))
	return w.writeCSV(name, header, rows)
}

// ExpiryACM writes the delivery-leg upload for one stage.
func (w *Writer) ExpiryACM(res *acm.Result, stage string) (string, error) {
	name := fmt.Sprintf("EXPIRY_ACM_%s_%sTrade.csv", w.at.Format(dateLayout), stage)
	return w.writeCSV(name, res.Header, res.Rows)
}

func (w *Writer) writeCSV(name string, header []string, rows [][]string) (string, error) {
	if err := os.MkdirAll(w.dir, 0o750); err != nil {
		return "", fmt.Errorf("creating output dir: %w", err)
	}
	path := w.path(name)
	f, err := os.Create(path) // #nosec G304 -- path built from operator config
	if err != nil {
		return "", fmt.Errorf("creating %s: %w", name, err)
	}
	defer func() { _ = f.Close() }()

	cw := csv.NewWriter(f)
	if err := cw.Write(header); err != nil {
		return "", err
	}
	if err := cw.WriteAll(rows); err != nil {
		return "", err
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return "", err
	}
	w.logger.Printf("wrote %s (%d rows)", name, len(rows))
	return path, nil
}

// formatTD normalizes a broker trade date to DD/MM/YYYY when it parses.
func formatTD(td string) string {
	if t, err := time.Parse("02/01/2006", td); err == nil {
		return t.Format("02/01/2006")
	}
	return td
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
