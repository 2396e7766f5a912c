package parser

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Reader loads clearing files into raw row grids. CSV and Excel inputs come
// out identically so the format detectors and parsers never care which one
// a counterparty sent.
type Reader struct {
	// Passwords are tried in order against encrypted workbooks.
	Passwords []string
	Logger    *log.Logger
}

func NewReader(passwords []string, logger *log.Logger) *Reader {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Reader{Passwords: passwords, Logger: logger}
}

// ReadRows loads the file at path as a grid of string cells. Rows may be
// ragged; callers guard on length before indexing.
func (r *Reader) ReadRows(path string) ([][]string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".txt":
		return r.readCSV(path)
	case ".xlsx", ".xlsm", ".xltx", ".xltm":
		return r.readExcel(path)
	default:
		return nil, fmt.Errorf("unsupported file type %q", filepath.Ext(path))
	}
}

func (r *Reader) readCSV(path string) ([][]string, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- operator-supplied input path
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	data = bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})

	cr := csv.NewReader(bytes.NewReader(data))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return rows, nil
}

func (r *Reader) readExcel(path string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		if !errors.Is(err, excelize.ErrWorkbookPassword) {
			return nil, fmt.Errorf("failed to open %s: %w", path, err)
		}
		f, err = r.openEncrypted(path)
		if err != nil {
			return nil, err
		}
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			r.Logger.Printf("warning: closing %s: %v", path, cerr)
		}
	}()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%s has no sheets", path)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q of %s: %w", sheets[0], path, err)
	}
	return rows, nil
}

// openEncrypted walks the configured password list. Every candidate failing
// is distinct from having none at all, so the caller can prompt usefully.
func (r *Reader) openEncrypted(path string) (*excelize.File, error) {
	name := filepath.Base(path)
	if len(r.Passwords) == 0 {
		return nil, fmt.Errorf("%s: %w", name, ErrPasswordRequired)
	}
	for _, pw := range r.Passwords {
		f, err := excelize.OpenFile(path, excelize.Options{Password: pw})
		if err == nil {
			r.Logger.Printf("decrypted %s", name)
			return f, nil
		}
		if !errors.Is(err, excelize.ErrWorkbookPassword) {
			return nil, fmt.Errorf("failed to open %s: %w", path, err)
		}
	}
	return nil, &WrongPasswordError{File: name}
}
