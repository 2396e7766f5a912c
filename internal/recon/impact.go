package recon

import (
	"math"
	"sort"
)

// ImpactLine tracks how the day's trades moved one ticker's discrepancy.
// Diffs are absolute; Change is post minus pre, so negative means the gap
// narrowed.
type ImpactLine struct {
	Ticker   string  `json:"ticker"`
	PreDiff  float64 `json:"pre_diff"`
	PostDiff float64 `json:"post_diff"`
	Change   float64 `json:"change"`
}

// Impact summarizes the pre-versus-post reconciliation movement.
type Impact struct {
	Improved  []ImpactLine `json:"improved"`
	Degraded  []ImpactLine `json:"degraded"`
	Unchanged []string     `json:"unchanged"`
	RateDelta float64      `json:"rate_delta"`
}

// Impact compares the mismatches of the pre-trade and post-trade passes.
// Tickers mismatched in either pass are classified by how their absolute
// difference moved; the tolerance band decides what counts as unchanged.
func (e *Engine) Impact(pre, post *Summary) *Impact {
	preDiffs := mismatchDiffs(pre)
	postDiffs := mismatchDiffs(post)

	tickers := make([]string, 0, len(preDiffs)+len(postDiffs))
	seen := make(map[string]bool)
	for t := range preDiffs {
		tickers = append(tickers, t)
		seen[t] = true
	}
	for t := range postDiffs {
		if !seen[t] {
			tickers = append(tickers, t)
		}
	}
	sort.Strings(tickers)

	out := &Impact{}
	if pre != nil && post != nil {
		out.RateDelta = post.MatchRate - pre.MatchRate
	}

	for _, t := range tickers {
		line := ImpactLine{Ticker: t, PreDiff: preDiffs[t], PostDiff: postDiffs[t]}
		line.Change = line.PostDiff - line.PreDiff
		switch {
		case math.Abs(line.Change) <= e.tolerance:
			out.Unchanged = append(out.Unchanged, t)
		case line.Change < 0:
			out.Improved = append(out.Improved, line)
		default:
			out.Degraded = append(out.Degraded, line)
		}
	}
	return out
}

func mismatchDiffs(s *Summary) map[string]float64 {
	out := make(map[string]float64)
	if s == nil {
		return out
	}
	for _, l := range s.Lines {
		if l.Status == StatusMismatch {
			out[l.Ticker] = math.Abs(l.Diff)
		}
	}
	return out
}
