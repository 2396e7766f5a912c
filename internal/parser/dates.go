package parser

import (
	"fmt"
	"strings"
	"time"
)

// expiryLayouts covers every expiry spelling seen across clearing files.
// Day-first layouts come before month-first so ambiguous dates resolve the
// way the NSE files write them. Month names match case-insensitively, so
// 26-JUN-2025 and 26-Jun-2025 both parse.
var expiryLayouts = []string{
	"02/01/2006",
	"2/1/2006",
	"02-01-2006",
	"02.01.2006",
	"2-Jan-2006",
	"02-Jan-2006",
	"2-Jan-06",
	"02/01/06",
	"2/1/06",
	"2006-01-02",
	"2006/01/02",
	"02Jan2006",
	"01/02/2006",
}

// ParseExpiry parses an expiry cell. It normalizes whitespace and trailing
// time components before trying each known layout.
func ParseExpiry(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty expiry")
	}
	// Excel serial exports sometimes carry a midnight time suffix.
	if i := strings.IndexAny(s, " \t"); i > 0 {
		s = s[:i]
	}
	for _, layout := range expiryLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable expiry %q", s)
}
