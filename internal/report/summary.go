package report

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kpatel-quant/fnopipeline/internal/storage"
)

// RunSummaryText writes the human-readable run summary the desk reads after
// each run.
func (w *Writer) RunSummaryText(run *storage.RunSummary) (string, error) {
	var b strings.Builder

	fmt.Fprintf(&b, "Run %s (%s)\n", run.RunID, run.Kind)
	if run.Account != "" {
		fmt.Fprintf(&b, "Account: %s\n", run.Account)
	}
	fmt.Fprintf(&b, "Started: %s\n", run.StartedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "Finished: %s (%s)\n", run.FinishedAt.Format("2006-01-02 15:04:05"),
		run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond))
	b.WriteString("\n")

	if len(run.InputFiles) > 0 {
		b.WriteString("Inputs:\n")
		for _, f := range run.InputFiles {
			fmt.Fprintf(&b, "  %s\n", f)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "Positions: %d\n", run.Positions)
	fmt.Fprintf(&b, "Trades: %d\n", run.Trades)
	if run.Reversals > 0 {
		fmt.Fprintf(&b, "Reversal splits: %d\n", run.Reversals)
	}
	if run.Malformed > 0 {
		fmt.Fprintf(&b, "Malformed rows skipped: %d\n", run.Malformed)
	}
	if run.Unmapped > 0 {
		fmt.Fprintf(&b, "Unmapped symbols: %d (see MISSING_MAPPINGS)\n", run.Unmapped)
	}
	if run.MatchRate > 0 {
		fmt.Fprintf(&b, "Match rate: %.2f%%\n", run.MatchRate)
	}

	if len(run.Outputs) > 0 {
		b.WriteString("\nOutputs:\n")
		for _, o := range run.Outputs {
			fmt.Fprintf(&b, "  %s\n", o)
		}
	}
	if len(run.Errors) > 0 {
		b.WriteString("\nErrors:\n")
		for _, e := range run.Errors {
			fmt.Fprintf(&b, "  %s\n", e)
		}
	}

	name := fmt.Sprintf("%s_run_summary_%s.txt", w.prefix, w.stamp())
	if err := os.MkdirAll(w.dir, 0o750); err != nil {
		return "", err
	}
	path := w.path(name)
	if err := os.WriteFile(path, []byte(b.String()), 0o600); err != nil {
		return "", fmt.Errorf("writing run summary: %w", err)
	}
	w.logger.Printf("wrote %s", name)
	return path, nil
}
