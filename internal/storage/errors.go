package storage

import "errors"

// ErrNoRuns is returned when no run summary matches a history query
var ErrNoRuns = errors.New("no runs recorded")
