package signal

import (
	"math"
	"sort"
	"time"
)

// RiskLevel is a qualitative volatility classification. Best-effort
// annotation only; it never gates sends.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// RiskBounds set the sample-to-sample movement thresholds, in percentage
// points of profit.
type RiskBounds struct {
	TightPct float64
	LoosePct float64
}

// DefaultRiskBounds matches the tuning of the predecessor heuristic.
var DefaultRiskBounds = RiskBounds{TightPct: 0.15, LoosePct: 0.5}

// EstimateRisk classifies volatility from the rolling samples: a negative
// latest profit is always high risk; otherwise the absolute move between
// the two most recent samples is compared against the bounds. Fewer than
// two samples yields medium (insufficient data, assume caution).
func EstimateRisk(p *PairState, bounds RiskBounds) RiskLevel {
	n := len(p.Samples)
	if n == 0 {
		return RiskMedium
	}
	if p.Samples[n-1].ProfitPct < 0 {
		return RiskHigh
	}
	if n < 2 {
		return RiskMedium
	}

	move := math.Abs(p.Samples[n-1].ProfitPct - p.Samples[n-2].ProfitPct)
	switch {
	case move <= bounds.TightPct:
		return RiskLow
	case move <= bounds.LoosePct:
		return RiskMedium
	default:
		return RiskHigh
	}
}

// WindowEstimate is a heuristic guess at how long the opportunity stays
// actionable.
type WindowEstimate struct {
	Duration time.Duration
	// Open reports whether the key is currently inside an above-threshold
	// interval (Duration is then the remaining time, floored at zero)
	// rather than a typical-duration guess.
	Open bool
}

// EstimateWindow derives the execution-window estimate from the interval
// history. The median, not the mean, resists outlier spikes and crashes.
func EstimateWindow(p *PairState, now time.Time, fallback time.Duration) WindowEstimate {
	typical := fallback
	if median, ok := medianSeconds(p.Window.Hist); ok {
		typical = median
	}

	if p.Window.AboveSince != 0 {
		elapsed := time.Duration(now.Unix()-p.Window.AboveSince) * time.Second
		remaining := typical - elapsed
		if remaining < 0 {
			remaining = 0
		}
		return WindowEstimate{Duration: remaining, Open: true}
	}
	return WindowEstimate{Duration: typical}
}

func medianSeconds(hist []int64) (time.Duration, bool) {
	if len(hist) == 0 {
		return 0, false
	}
	sorted := make([]int64, len(hist))
	copy(sorted, hist)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	mid := len(sorted) / 2
	var median int64
	if len(sorted)%2 == 1 {
		median = sorted[mid]
	} else {
		median = (sorted[mid-1] + sorted[mid]) / 2
	}
	return time.Duration(median) * time.Second, true
}
