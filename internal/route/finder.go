package route

import (
	"context"
	"math"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"arb-route-alerts/internal/currency"
	"arb-route-alerts/internal/venue"
)

// noVenue marks the venue slots of the "no route" sentinel.
const noVenue = "-"

// Result is the outcome of evaluating venue pairs for one asset and size.
// ProfitPct is NaN when no pair produced a finite value.
type Result struct {
	ProfitPct float64
	BuyVenue  string
	SellVenue string
	GasCost   currency.Amount
	Size      decimal.Decimal
}

// Found reports whether the result names a usable route.
func (r Result) Found() bool {
	return !math.IsNaN(r.ProfitPct) && r.BuyVenue != noVenue
}

// NoRoute builds the sentinel result for an asset/size with no priceable pair.
func NoRoute(size decimal.Decimal, referenceDecimals int32) Result {
	return Result{
		ProfitPct: math.NaN(),
		BuyVenue:  noVenue,
		SellVenue: noVenue,
		GasCost:   currency.Zero(referenceDecimals),
		Size:      size,
	}
}

// Finder searches all ordered venue pairs for the best round trip. Venue
// counts are small, so the exhaustive search is cheap and exact.
type Finder struct {
	source venue.QuoteSource
	cost   CostModel
	logger zerolog.Logger
}

// NewFinder constructs a route finder.
func NewFinder(source venue.QuoteSource, cost CostModel, logger zerolog.Logger) *Finder {
	return &Finder{
		source: source,
		cost:   cost,
		logger: logger.With().Str("component", "route_finder").Logger(),
	}
}

// BestRoute evaluates every (buy, sell) pair with buy != sell and returns
// the best finite net profit. The buy leg is quoted once per buy venue and
// reused across all sell venues. Ties keep the first-found pair; the venue
// slice order is fixed by configuration, so repeated calls with identical
// quotes return the same pair.
func (f *Finder) BestRoute(ctx context.Context, venues []venue.Venue, asset, reference venue.Token, size decimal.Decimal) Result {
	best := NoRoute(size, reference.Decimals)
	sizeAmount := SizeToAmount(size, reference.Decimals)

	for _, buy := range venues {
		buyOut, err := f.source.Quote(ctx, venue.Request{
			Venue:     buy,
			Direction: venue.ToAsset,
			Asset:     asset,
			Reference: reference,
			Input:     sizeAmount,
		})
		if err != nil {
			f.logger.Debug().Err(err).
				Str("asset", asset.Symbol).
				Str("venue", buy.ID).
				Msg("buy leg failed")
			continue
		}

		netAsset := f.cost.BuyHaircut(buy, buyOut)

		for _, sell := range venues {
			if sell.ID == buy.ID {
				continue
			}

			pct, gas, ok := f.evaluateSellLeg(ctx, buy, sell, asset, reference, sizeAmount, netAsset)
			if !ok {
				continue
			}

			if !best.Found() || pct > best.ProfitPct {
				best = Result{
					ProfitPct: pct,
					BuyVenue:  buy.ID,
					SellVenue: sell.ID,
					GasCost:   gas,
					Size:      size,
				}
			}
		}
	}

	return best
}

// EvaluatePair re-runs the full quote/cost pipeline for a fixed venue pair
// at a given size. Used by the size refiner.
func (f *Finder) EvaluatePair(ctx context.Context, venues []venue.Venue, buyID, sellID string, asset, reference venue.Token, size decimal.Decimal) (Result, bool) {
	var buy, sell *venue.Venue
	for i := range venues {
		switch venues[i].ID {
		case buyID:
			buy = &venues[i]
		case sellID:
			sell = &venues[i]
		}
	}
	if buy == nil || sell == nil {
		return NoRoute(size, reference.Decimals), false
	}

	sizeAmount := SizeToAmount(size, reference.Decimals)
	buyOut, err := f.source.Quote(ctx, venue.Request{
		Venue:     *buy,
		Direction: venue.ToAsset,
		Asset:     asset,
		Reference: reference,
		Input:     sizeAmount,
	})
	if err != nil {
		return NoRoute(size, reference.Decimals), false
	}

	netAsset := f.cost.BuyHaircut(*buy, buyOut)
	pct, gas, ok := f.evaluateSellLeg(ctx, *buy, *sell, asset, reference, sizeAmount, netAsset)
	if !ok {
		return NoRoute(size, reference.Decimals), false
	}

	return Result{
		ProfitPct: pct,
		BuyVenue:  buy.ID,
		SellVenue: sell.ID,
		GasCost:   gas,
		Size:      size,
	}, true
}

func (f *Finder) evaluateSellLeg(ctx context.Context, buy, sell venue.Venue, asset, reference venue.Token, sizeAmount, netAsset currency.Amount) (float64, currency.Amount, bool) {
	sellOut, err := f.source.Quote(ctx, venue.Request{
		Venue:     sell,
		Direction: venue.ToReference,
		Asset:     asset,
		Reference: reference,
		Input:     netAsset,
	})
	if err != nil {
		f.logger.Debug().Err(err).
			Str("asset", asset.Symbol).
			Str("venue", sell.ID).
			Msg("sell leg failed")
		return 0, currency.Amount{}, false
	}

	netRef := f.cost.SellHaircut(sell, sellOut)
	gas := RoundTripGas(buy, sell, reference.Decimals)
	final, err := netRef.SubtractGas(gas)
	if err != nil {
		f.logger.Warn().Err(err).Str("asset", asset.Symbol).Msg("gas deduction failed")
		return 0, currency.Amount{}, false
	}

	pct := currency.NetProfitPct(sizeAmount, final)
	if math.IsNaN(pct) || math.IsInf(pct, 0) {
		return 0, currency.Amount{}, false
	}
	return pct, gas, true
}
