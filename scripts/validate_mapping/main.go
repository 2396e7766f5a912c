// validate_mapping - A utility to sanity-check the futures mapping sheet
// before a processing run. It flags rows the loader would silently skip,
// duplicate symbols, suspect lot sizes and index aliases that the resolver
// would rewrite anyway.
package main

import (
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/kpatel-quant/fnopipeline/internal/mapping"
	"github.com/kpatel-quant/fnopipeline/internal/models"
)

// Finding is one validation problem with the row it came from.
type Finding struct {
	Row      int    `json:"row"`
	Symbol   string `json:"symbol,omitempty"`
	Severity string `json:"severity"` // error | warning
	Message  string `json:"message"`
}

// Report summarizes a validation pass over one mapping sheet.
type Report struct {
	File     string    `json:"file"`
	Rows     int       `json:"rows"`
	Loaded   int       `json:"loaded"`
	Findings []Finding `json:"findings"`
}

func main() {
	var (
		mappingPath = flag.String("mapping", "futures mapping.csv", "Path to the mapping sheet")
		jsonOutput  = flag.Bool("json", false, "Output results as JSON")
		strict      = flag.Bool("strict", false, "Exit non-zero on warnings as well as errors")
	)
	flag.Parse()

	report, err := validate(*mappingPath)
	if err != nil {
		log.Fatalf("Failed to validate mapping: %v", err)
	}

	if *jsonOutput {
		output, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			log.Fatalf("Failed to marshal JSON: %v", err)
		}
		fmt.Println(string(output))
	} else {
		printReport(report)
	}

	errors, warnings := report.count()
	if errors > 0 || (*strict && warnings > 0) {
		os.Exit(1)
	}
}

func validate(path string) (*Report, error) {
	f, err := os.Open(path) // #nosec G304 -- mapping path is operator-supplied
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	rows, err := r.ReadAll()
	if err != nil {
		return nil, err
	}

	report := &Report{File: path, Rows: len(rows)}
	seen := make(map[string]int)

	for i, row := range rows {
		rowNum := i + 1
		if len(row) < 2 {
			report.add(rowNum, "", "error", "fewer than 2 columns; row will be skipped")
			continue
		}
		symbol := strings.TrimSpace(row[0])
		ticker := strings.TrimSpace(row[1])
		if i == 0 && strings.EqualFold(symbol, "symbol") {
			continue
		}
		if symbol == "" || ticker == "" {
			report.add(rowNum, symbol, "error", "blank symbol or ticker; row will be skipped")
			continue
		}

		key := strings.ToUpper(symbol)
		if first, dup := seen[key]; dup {
			report.add(rowNum, symbol, "warning",
				fmt.Sprintf("duplicate of row %d; later row wins", first))
		}
		seen[key] = rowNum

		if len(row) > 4 {
			lotField := strings.ReplaceAll(strings.TrimSpace(row[4]), ",", "")
			if lotField != "" {
				if lot, err := strconv.ParseFloat(lotField, 64); err != nil {
					report.add(rowNum, symbol, "error",
						fmt.Sprintf("unparseable lot size %q; loader falls back to 1", row[4]))
				} else if lot <= 0 {
					report.add(rowNum, symbol, "error",
						fmt.Sprintf("non-positive lot size %v; loader falls back to 1", lot))
				} else if lot != float64(int64(lot)) {
					report.add(rowNum, symbol, "warning",
						fmt.Sprintf("fractional lot size %v", lot))
				}
			}
		} else {
			report.add(rowNum, symbol, "warning", "no lot size column; lot size defaults to 1")
		}

		if strings.Contains(key, "NIFTY") && !strings.EqualFold(ticker, indexFuturesTicker(key)) {
			report.add(rowNum, symbol, "warning",
				fmt.Sprintf("index alias: resolver rewrites ticker to %s for futures", indexFuturesTicker(key)))
		}
	}

	table, err := mapping.LoadCSV(path, log.New(io.Discard, "", 0))
	if err != nil {
		return nil, err
	}
	report.Loaded = table.Len()

	// Every loaded symbol should resolve back through the table.
	for symbol, rowNum := range seen {
		if _, ok := table.Resolve(symbol, models.SecurityFutures); !ok {
			report.add(rowNum, symbol, "error", "symbol does not resolve after loading")
		}
	}

	return report, nil
}

func indexFuturesTicker(symbol string) string {
	switch {
	case strings.Contains(symbol, "BANK"):
		return "AF1"
	case strings.Contains(symbol, "MIDCP"), strings.Contains(symbol, "MIDSEL"):
		return "RNS"
	default:
		return "NZ"
	}
}

func (r *Report) add(row int, symbol, severity, message string) {
	r.Findings = append(r.Findings, Finding{Row: row, Symbol: symbol, Severity: severity, Message: message})
}

func (r *Report) count() (errors, warnings int) {
	for _, f := range r.Findings {
		if f.Severity == "error" {
			errors++
		} else {
			warnings++
		}
	}
	return errors, warnings
}

func printReport(r *Report) {
	fmt.Printf("Mapping sheet: %s\n", r.File)
	fmt.Printf("Rows: %d, loaded symbols: %d\n\n", r.Rows, r.Loaded)

	if len(r.Findings) == 0 {
		fmt.Println("No issues found.")
		return
	}

	for _, f := range r.Findings {
		if f.Symbol != "" {
			fmt.Printf("  [%s] row %d (%s): %s\n", strings.ToUpper(f.Severity), f.Row, f.Symbol, f.Message)
		} else {
			fmt.Printf("  [%s] row %d: %s\n", strings.ToUpper(f.Severity), f.Row, f.Message)
		}
	}

	errors, warnings := r.count()
	fmt.Printf("\n%d error(s), %d warning(s)\n", errors, warnings)
}
