package route

import (
	"github.com/shopspring/decimal"

	"arb-route-alerts/internal/currency"
	"arb-route-alerts/internal/venue"
)

// CostModel converts raw venue outputs into realistic net amounts by
// applying slippage haircuts and simulated gas costs. Pure arithmetic over
// validated fixed-point amounts; it never fails.
type CostModel struct {
	BuySlippageBps  int64
	SellSlippageBps int64
	// AggregatorExtraSlippage applies the haircut to aggregator quotes on
	// top of what the aggregator already models internally. Off by default
	// to avoid double-counting; gas is always deducted regardless.
	AggregatorExtraSlippage bool
}

// BuyHaircut deducts buy-side slippage from a quoted asset output.
func (m CostModel) BuyHaircut(v venue.Venue, out currency.Amount) currency.Amount {
	return m.haircut(v, out, m.BuySlippageBps)
}

// SellHaircut deducts sell-side slippage from a quoted reference output.
func (m CostModel) SellHaircut(v venue.Venue, out currency.Amount) currency.Amount {
	return m.haircut(v, out, m.SellSlippageBps)
}

func (m CostModel) haircut(v venue.Venue, out currency.Amount, bps int64) currency.Amount {
	if v.Kind == venue.KindAggregator && !m.AggregatorExtraSlippage {
		return out
	}
	return out.ApplyHaircut(bps)
}

// RoundTripGas sums both legs' simulated gas in reference-currency units.
func RoundTripGas(buy, sell venue.Venue, referenceDecimals int32) currency.Amount {
	total := buy.GasCost.Add(sell.GasCost)
	if total.Sign() <= 0 {
		return currency.Zero(referenceDecimals)
	}
	return currency.FromDecimal(total, referenceDecimals)
}

// SizeToAmount converts a configured trade size in reference units to atoms.
func SizeToAmount(size decimal.Decimal, referenceDecimals int32) currency.Amount {
	return currency.FromDecimal(size, referenceDecimals)
}
