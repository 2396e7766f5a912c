// Command integration runs an end-to-end smoke test of the pipeline over
// synthesized fixture files in a temp directory. It exercises every run
// kind offline and exits non-zero on the first failure.
package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/kpatel-quant/fnopipeline/internal/config"
	"github.com/kpatel-quant/fnopipeline/internal/mock"
	"github.com/kpatel-quant/fnopipeline/internal/pipeline"
	"github.com/kpatel-quant/fnopipeline/internal/storage"
)

func main() {
	logger := log.New(os.Stdout, "[SMOKE] ", log.LstdFlags)

	if err := run(logger); err != nil {
		logger.Fatalf("smoke run failed: %v", err)
	}
	logger.Println("all runs completed")
}

func run(logger *log.Logger) error {
	dir, err := os.MkdirTemp("", "fnopipeline-smoke")
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir)

	cfg := config.Default()
	cfg.Prices.Provider = "static"
	cfg.Prices.Manual = mock.Prices()
	cfg.Paths.OutputDir = filepath.Join(dir, "output")
	cfg.Paths.StateDir = filepath.Join(dir, "state")
	cfg.Paths.MappingFile = filepath.Join(dir, "futures mapping.csv")

	fixtures := map[string][][]string{
		cfg.Paths.MappingFile:                     mock.MappingRows(),
		filepath.Join(dir, "bod_positions.csv"):   mock.PositionRows(),
		filepath.Join(dir, "clearing_trades.csv"): mock.TradeRows(),
		filepath.Join(dir, "pms_statement.csv"):   mock.PMSStatementRows(),
		filepath.Join(dir, "ICICI_note.csv"):      mock.BrokerRows(),
	}
	for path, rows := range fixtures {
		if err := writeCSV(path, rows); err != nil {
			return fmt.Errorf("writing fixture %s: %w", path, err)
		}
	}

	store, err := storage.NewStorage(filepath.Join(cfg.Paths.StateDir, "pipeline_state.json"))
	if err != nil {
		return err
	}
	pipe := pipeline.New(cfg, store, logger)

	ctx := context.Background()
	positions := []string{filepath.Join(dir, "bod_positions.csv")}
	trades := []string{filepath.Join(dir, "clearing_trades.csv")}

	steps := []struct {
		name string
		run  func() (*storage.RunSummary, error)
	}{
		{"process", func() (*storage.RunSummary, error) {
			return pipe.RunProcess(ctx, pipeline.ProcessInput{
				Account: mock.CPCode, PositionFiles: positions, TradeFiles: trades,
			})
		}},
		{"deliverables", func() (*storage.RunSummary, error) {
			return pipe.RunDeliverables(ctx, pipeline.DeliverablesInput{
				Account: mock.CPCode, PositionFiles: positions, TradeFiles: trades,
			})
		}},
		{"expiry", func() (*storage.RunSummary, error) {
			return pipe.RunExpiry(ctx, pipeline.ExpiryInput{
				Account: mock.CPCode, PositionFiles: positions, TradeFiles: trades,
			})
		}},
		{"recon", func() (*storage.RunSummary, error) {
			return pipe.RunPMSRecon(ctx, pipeline.PMSReconInput{
				Account: mock.CPCode, PositionFiles: positions, TradeFiles: trades,
				StatementFile: filepath.Join(dir, "pms_statement.csv"),
			})
		}},
		{"brokers", func() (*storage.RunSummary, error) {
			return pipe.RunBrokerRecon(ctx, pipeline.BrokerReconInput{
				Account: mock.CPCode, TradeFiles: trades,
				BrokerFiles: []string{filepath.Join(dir, "ICICI_note.csv")},
			})
		}},
	}

	for _, step := range steps {
		summary, err := step.run()
		if err != nil {
			return fmt.Errorf("%s: %w", step.name, err)
		}
		if summary.Unmapped > 0 {
			return fmt.Errorf("%s: %d unmapped symbols in fixture data", step.name, summary.Unmapped)
		}
		for _, out := range summary.Outputs {
			if _, err := os.Stat(out); err != nil {
				return fmt.Errorf("%s: missing output %s", step.name, out)
			}
		}
		logger.Printf("%s: %d outputs, %d errors", step.name, len(summary.Outputs), len(summary.Errors))
	}

	latest := store.LatestRun()
	if latest == nil || latest.Kind != storage.KindBrokers {
		return fmt.Errorf("latest run not recorded")
	}
	return nil
}

func writeCSV(path string, rows [][]string) error {
	f, err := os.Create(path) // #nosec G304 -- path is under our temp dir
	if err != nil {
		return err
	}
	defer f.Close()
	w := csv.NewWriter(f)
	if err := w.WriteAll(rows); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}
