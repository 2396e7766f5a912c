// Package brokers parses executing-broker contract notes into normalized
// fills. Each broker exports its own spreadsheet layout; a registry keyed by
// filename decides which layout applies and which NSE trading-member code
// the fills carry.
package brokers

import (
	"path/filepath"
	"strings"
)

// Broker is one executing broker the desk trades through.
type Broker struct {
	Name    string
	NSECode int
	// filePatterns are lowercase substrings matched against the file name.
	filePatterns []string
	layout       Layout
}

// registry lists every supported broker. Nuvama is the renamed Edelweiss
// business: same NSE code, same file layout, different filenames.
var registry = []Broker{
	{
		Name:         "ICICI",
		NSECode:      7730,
		filePatterns: []string{"icici"},
		layout:       iciciLayout,
	},
	{
		Name:         "KOTAK",
		NSECode:      8081,
		filePatterns: []string{"kotak"},
		layout:       kotakLayout,
	},
	{
		Name:         "IIFL",
		NSECode:      10975,
		filePatterns: []string{"iifl"},
		layout:       genericLayout,
	},
	{
		Name:         "AXIS",
		NSECode:      13872,
		filePatterns: []string{"axis"},
		layout:       genericLayout,
	},
	{
		Name:         "EQUIRUS",
		NSECode:      13017,
		filePatterns: []string{"equirus"},
		layout:       genericLayout,
	},
	{
		Name:         "EDELWEISS",
		NSECode:      11933,
		filePatterns: []string{"edelweiss"},
		layout:       genericLayout,
	},
	{
		Name:         "NUVAMA",
		NSECode:      11933,
		filePatterns: []string{"nuvama"},
		layout:       genericLayout,
	},
	{
		Name:         "MORGAN",
		NSECode:      10542,
		filePatterns: []string{"morgan", "ms_"},
		layout:       genericLayout,
	},
	{
		Name:         "ANTIQUE",
		NSECode:      12987,
		filePatterns: []string{"antique"},
		layout:       genericLayout,
	},
}

// Detect picks the broker for a contract-note file by its name.
func Detect(path string) (*Broker, bool) {
	name := strings.ToLower(filepath.Base(path))
	for i := range registry {
		for _, pat := range registry[i].filePatterns {
			if strings.Contains(name, pat) {
				return &registry[i], true
			}
		}
	}
	return nil, false
}

// ByCode looks a broker up by its NSE trading-member code.
func ByCode(code int) (*Broker, bool) {
	for i := range registry {
		if registry[i].NSECode == code {
			return &registry[i], true
		}
	}
	return nil, false
}

// ByName looks a broker up by name, case-insensitively.
func ByName(name string) (*Broker, bool) {
	for i := range registry {
		if strings.EqualFold(registry[i].Name, name) {
			return &registry[i], true
		}
	}
	return nil, false
}

// Names returns every registered broker name.
func Names() []string {
	out := make([]string, len(registry))
	for i := range registry {
		out[i] = registry[i].Name
	}
	return out
}
