package signal

import (
	"math"
	"strings"
	"time"
)

const (
	// maxSamples bounds the rolling profit history per key.
	maxSamples = 30
	// maxWindowHist bounds the closed above-threshold interval history.
	maxWindowHist = 20

	// neverSentProfit is the lastSentProfit sentinel before any alert has
	// fired, so the first qualifying observation always clears the growth
	// check.
	neverSentProfit = -999
)

// Sample is one observed best profit percentage at a point in time.
type Sample struct {
	At        int64   `json:"t"` // unix seconds
	ProfitPct float64 `json:"p"`
}

// Window tracks the open interval during which profit has stayed above the
// alert threshold, plus a bounded history of closed interval durations.
type Window struct {
	AboveSince  int64   `json:"aboveSince,omitempty"`  // unix seconds, 0 when closed
	LastAboveAt int64   `json:"lastAboveAt,omitempty"` // unix seconds
	Hist        []int64 `json:"hist,omitempty"`        // closed durations, seconds
}

// PairState is the per-(scope, asset, size) control record. Mutated once
// per tick in a fixed order: record sample, update window, evaluate gate,
// then lastSent fields only on send.
type PairState struct {
	Samples        []Sample `json:"samples,omitempty"`
	LastSentAt     int64    `json:"lastSentAt,omitempty"` // unix seconds
	LastSentProfit float64  `json:"lastSentProfit,omitempty"`
	Window         Window   `json:"window"`
}

// GlobalMeta tracks cross-key alert state.
type GlobalMeta struct {
	LastAnySentAt int64  `json:"lastAnySentAt,omitempty"` // unix seconds
	LastDemoRunID string `json:"lastDemoRunId,omitempty"`
}

// State is the logical schema of the persisted blob: every pair key plus
// the global record. It is owned by the gating subsystem and passed into
// the tick explicitly.
type State struct {
	Pairs map[string]*PairState `json:"pairs"`
	Meta  GlobalMeta            `json:"meta"`
}

// NewState returns an empty but valid state.
func NewState() *State {
	return &State{Pairs: make(map[string]*PairState)}
}

// Normalize repairs a state loaded from an untrusted blob.
func (s *State) Normalize() {
	if s.Pairs == nil {
		s.Pairs = make(map[string]*PairState)
	}
	for _, p := range s.Pairs {
		if len(p.Samples) > maxSamples {
			p.Samples = p.Samples[len(p.Samples)-maxSamples:]
		}
		if len(p.Window.Hist) > maxWindowHist {
			p.Window.Hist = p.Window.Hist[len(p.Window.Hist)-maxWindowHist:]
		}
	}
}

// Pair returns the state for a key, creating it when absent.
func (s *State) Pair(key string) *PairState {
	if s.Pairs == nil {
		s.Pairs = make(map[string]*PairState)
	}
	p, ok := s.Pairs[key]
	if !ok {
		p = &PairState{}
		s.Pairs[key] = p
	}
	return p
}

// Key builds a pair-state key from its parts, e.g. "polygon:LINK:100".
func Key(parts ...string) string {
	return strings.Join(parts, ":")
}

// lastProfit returns the profit at last send, or the sentinel when no
// alert has ever fired for this key.
func (p *PairState) lastProfit() float64 {
	if p.LastSentAt == 0 {
		return neverSentProfit
	}
	return p.LastSentProfit
}

// RecordSample appends an observation, dropping the oldest past the bound.
// Undefined (NaN/Inf) ticks are skipped so the risk estimator's sample math
// stays meaningful.
func (p *PairState) RecordSample(now time.Time, profitPct float64) {
	if math.IsNaN(profitPct) || math.IsInf(profitPct, 0) {
		return
	}
	p.Samples = append(p.Samples, Sample{At: now.Unix(), ProfitPct: profitPct})
	if len(p.Samples) > maxSamples {
		p.Samples = p.Samples[len(p.Samples)-maxSamples:]
	}
}

// UpdateWindow advances the above-threshold interval tracker. When profit
// drops below the threshold, the closed interval's duration is appended to
// the bounded history.
func (p *PairState) UpdateWindow(now time.Time, profitPct, minProfitPct float64) {
	above := !math.IsNaN(profitPct) && !math.IsInf(profitPct, 0) && profitPct >= minProfitPct
	ts := now.Unix()

	if above {
		if p.Window.AboveSince == 0 {
			p.Window.AboveSince = ts
		}
		p.Window.LastAboveAt = ts
		return
	}

	if p.Window.AboveSince != 0 {
		duration := p.Window.LastAboveAt - p.Window.AboveSince
		if duration < 0 {
			duration = 0
		}
		p.Window.Hist = append(p.Window.Hist, duration)
		if len(p.Window.Hist) > maxWindowHist {
			p.Window.Hist = p.Window.Hist[len(p.Window.Hist)-maxWindowHist:]
		}
		p.Window.AboveSince = 0
		p.Window.LastAboveAt = 0
	}
}

// MarkSent records a delivered alert as the new gating baseline.
func (p *PairState) MarkSent(now time.Time, profitPct float64) {
	p.LastSentAt = now.Unix()
	p.LastSentProfit = profitPct
}

// MarkAnySent records a delivered alert for the global rate floor.
func (m *GlobalMeta) MarkAnySent(now time.Time) {
	m.LastAnySentAt = now.Unix()
}
