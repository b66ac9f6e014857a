package route

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"arb-route-alerts/internal/venue"
)

// RefinerOptions bound the local search over trade size.
type RefinerOptions struct {
	Rounds        int
	MinStep       decimal.Decimal // absolute floor on the step size
	LowerFactor   decimal.Decimal // lower bound as a factor of the base size
	UpperFactor   decimal.Decimal // upper bound as a factor of the base size
	AbsoluteFloor decimal.Decimal
	AbsoluteCeil  decimal.Decimal
}

func (o RefinerOptions) withDefaults() RefinerOptions {
	if o.Rounds <= 0 {
		o.Rounds = 6
	}
	if o.MinStep.Sign() <= 0 {
		o.MinStep = decimal.NewFromInt(5)
	}
	if o.LowerFactor.Sign() <= 0 {
		o.LowerFactor = decimal.RequireFromString("0.4")
	}
	if o.UpperFactor.Sign() <= 0 {
		o.UpperFactor = decimal.RequireFromString("2.5")
	}
	if o.AbsoluteFloor.Sign() <= 0 {
		o.AbsoluteFloor = decimal.NewFromInt(10)
	}
	if o.AbsoluteCeil.Sign() <= 0 {
		o.AbsoluteCeil = decimal.NewFromInt(250_000)
	}
	return o
}

// Refinement extends a route result with the size that produced it.
type Refinement struct {
	Result
	Improved bool
}

// Refiner hill-climbs over trade size for an already-chosen venue pair. The
// winning pair is usually stable across nearby sizes, so refining size
// alone is a cheap approximation of the joint optimum.
type Refiner struct {
	finder *Finder
	opts   RefinerOptions
	logger zerolog.Logger
}

// NewRefiner constructs a size refiner around a route finder.
func NewRefiner(finder *Finder, opts RefinerOptions, logger zerolog.Logger) *Refiner {
	return &Refiner{
		finder: finder,
		opts:   opts.withDefaults(),
		logger: logger.With().Str("component", "size_refiner").Logger(),
	}
}

// Refine searches sizes near base.Size with base's venues fixed. Each round
// evaluates size-step and size+step (clamped to bounds) and moves to the
// best of the three; the step halves when neither neighbor improves, and
// the search stops below MinStep or when rounds are exhausted.
func (r *Refiner) Refine(ctx context.Context, venues []venue.Venue, asset, reference venue.Token, base Result) Refinement {
	if !base.Found() {
		return Refinement{Result: base}
	}

	lower := decimal.Max(base.Size.Mul(r.opts.LowerFactor), r.opts.AbsoluteFloor)
	upper := decimal.Min(base.Size.Mul(r.opts.UpperFactor), r.opts.AbsoluteCeil)

	bestSize := base.Size
	best := base
	step := decimal.Max(base.Size.Mul(decimal.RequireFromString("0.25")), r.opts.MinStep)

	for round := 0; round < r.opts.Rounds; round++ {
		if step.LessThan(r.opts.MinStep) {
			break
		}
		select {
		case <-ctx.Done():
			return Refinement{Result: best, Improved: best.ProfitPct > base.ProfitPct}
		default:
		}

		moved := false
		for _, candidate := range []decimal.Decimal{bestSize.Sub(step), bestSize.Add(step)} {
			candidate = clampSize(candidate, lower, upper)
			if candidate.Equal(bestSize) {
				continue
			}

			result, ok := r.finder.EvaluatePair(ctx, venues, base.BuyVenue, base.SellVenue, asset, reference, candidate)
			if !ok {
				continue
			}
			if result.ProfitPct > best.ProfitPct {
				best = result
				bestSize = candidate
				moved = true
			}
		}

		if !moved {
			step = step.Div(decimal.NewFromInt(2))
		}
	}

	if best.ProfitPct > base.ProfitPct {
		r.logger.Debug().
			Str("asset", asset.Symbol).
			Str("base_size", base.Size.String()).
			Str("refined_size", best.Size.String()).
			Float64("profit_pct", best.ProfitPct).
			Msg("size refinement improved route")
		return Refinement{Result: best, Improved: true}
	}
	return Refinement{Result: base}
}

func clampSize(size, lower, upper decimal.Decimal) decimal.Decimal {
	if size.LessThan(lower) {
		return lower
	}
	if size.GreaterThan(upper) {
		return upper
	}
	return size
}
