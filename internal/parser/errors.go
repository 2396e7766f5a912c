package parser

import (
	"errors"
	"fmt"
	"strings"
)

// ErrPasswordRequired is returned for an encrypted workbook when no
// candidate passwords are configured.
var ErrPasswordRequired = errors.New("file is encrypted and a password is required")

// WrongPasswordError is returned when an encrypted workbook rejects every
// candidate password. Fatal for the file; the run halts pending input.
type WrongPasswordError struct {
	File string
}

func (e *WrongPasswordError) Error() string {
	return fmt.Sprintf("wrong password for encrypted file %s", e.File)
}

// UnrecognizedFormatError is returned when no format signature matches the
// input. Tried lists the formats attempted, in detection order.
type UnrecognizedFormatError struct {
	File  string
	Tried []string
}

func (e *UnrecognizedFormatError) Error() string {
	return fmt.Sprintf("unrecognized format for %s (tried %s)", e.File, strings.Join(e.Tried, ", "))
}

// MalformedRowError reports a row that carried a non-numeric value where a
// quantity or price is required. The row is skipped and collected; the rest
// of the file still parses.
type MalformedRowError struct {
	File   string
	Row    int
	Field  string
	Reason string
}

func (e *MalformedRowError) Error() string {
	return fmt.Sprintf("%s row %d: malformed %s: %s", e.File, e.Row, e.Field, e.Reason)
}
