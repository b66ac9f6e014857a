package signal

import (
	"math"
	"time"
)

// Reason codes explain every gate decision.
type Reason string

const (
	ReasonInvalid     Reason = "invalid"
	ReasonBelowMin    Reason = "below_min"
	ReasonBigJump     Reason = "big_jump"
	ReasonCooldown    Reason = "cooldown"
	ReasonNoGrowth    Reason = "no_growth"
	ReasonGrowth      Reason = "growth"
	ReasonGlobalFloor Reason = "global_floor"
)

// Decision is a send/no-send verdict plus its reason.
type Decision struct {
	Send   bool
	Reason Reason
}

// Thresholds tune the anti-spam gate.
type Thresholds struct {
	MinProfitPct          float64
	ProfitStepPct         float64
	Cooldown              time.Duration
	BigJumpBypassPct      float64
	MinIntervalBetweenAny time.Duration
}

// Gate is the stateful anti-spam decision logic. Decide is pure over the
// pair state; callers own the mutation order (record sample, update
// window, decide, mark sent).
type Gate struct {
	thresholds Thresholds
}

// NewGate builds a gate with the given thresholds.
func NewGate(thresholds Thresholds) *Gate {
	return &Gate{thresholds: thresholds}
}

// Thresholds exposes the configured thresholds.
func (g *Gate) Thresholds() Thresholds {
	return g.thresholds
}

// Decide evaluates the per-key rules in order: invalid, below threshold,
// big jump (bypasses cooldown), cooldown, insufficient growth, growth.
func (g *Gate) Decide(p *PairState, profitPct float64, now time.Time) Decision {
	if math.IsNaN(profitPct) || math.IsInf(profitPct, 0) || profitPct <= 0 {
		return Decision{Reason: ReasonInvalid}
	}
	if profitPct < g.thresholds.MinProfitPct {
		return Decision{Reason: ReasonBelowMin}
	}

	growth := profitPct - p.lastProfit()
	elapsed := now.Unix() - p.LastSentAt

	if growth >= g.thresholds.BigJumpBypassPct {
		return Decision{Send: true, Reason: ReasonBigJump}
	}
	if elapsed < int64(g.thresholds.Cooldown.Seconds()) {
		return Decision{Reason: ReasonCooldown}
	}
	if growth < g.thresholds.ProfitStepPct {
		return Decision{Reason: ReasonNoGrowth}
	}
	return Decision{Send: true, Reason: ReasonGrowth}
}

// AllowAny enforces the global rate floor across all keys. A per-key send
// suppressed here leaves the key's lastSent fields untouched; only the
// sample was recorded.
func (g *Gate) AllowAny(meta *GlobalMeta, now time.Time) bool {
	return now.Unix()-meta.LastAnySentAt >= int64(g.thresholds.MinIntervalBetweenAny.Seconds())
}
