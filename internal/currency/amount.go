package currency

import (
	"fmt"
	"math"
	"math/big"

	"github.com/shopspring/decimal"
)

const bpsDenominator = 10_000

// Amount is an exact fixed-point quantity of one token, held as raw atoms
// plus the token's decimal scale. All haircut and gas arithmetic stays in
// integer atoms; conversion to a floating percentage happens only at the
// final profit step.
type Amount struct {
	raw      *big.Int
	decimals int32
}

// New builds an Amount from raw atoms. The raw value is copied.
func New(raw *big.Int, decimals int32) Amount {
	if raw == nil {
		raw = big.NewInt(0)
	}
	return Amount{raw: new(big.Int).Set(raw), decimals: decimals}
}

// Zero returns the zero Amount at the given scale.
func Zero(decimals int32) Amount {
	return Amount{raw: big.NewInt(0), decimals: decimals}
}

// FromDecimal converts a human-unit quantity into atoms, rounding toward zero.
func FromDecimal(value decimal.Decimal, decimals int32) Amount {
	atoms := value.Shift(decimals).Truncate(0)
	return Amount{raw: atoms.BigInt(), decimals: decimals}
}

// Raw returns a copy of the underlying atom count.
func (a Amount) Raw() *big.Int {
	if a.raw == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(a.raw)
}

// Decimals reports the scale of the amount.
func (a Amount) Decimals() int32 {
	return a.decimals
}

// IsZero reports whether the amount holds zero atoms.
func (a Amount) IsZero() bool {
	return a.raw == nil || a.raw.Sign() == 0
}

// Decimal converts the amount to human units.
func (a Amount) Decimal() decimal.Decimal {
	if a.raw == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(a.raw, -a.decimals)
}

// String renders the amount in human units.
func (a Amount) String() string {
	return a.Decimal().String()
}

// Cmp compares two amounts of the same scale.
func (a Amount) Cmp(b Amount) (int, error) {
	if a.decimals != b.decimals {
		return 0, fmt.Errorf("currency: scale mismatch %d vs %d", a.decimals, b.decimals)
	}
	return a.Raw().Cmp(b.raw), nil
}

// ApplyHaircut deducts a slippage haircut expressed in basis points,
// rounding down. The result is never larger than the input and never
// negative. Haircuts outside [0, 10000] are clamped.
func (a Amount) ApplyHaircut(bps int64) Amount {
	if bps <= 0 {
		return New(a.raw, a.decimals)
	}
	if bps >= bpsDenominator {
		return Zero(a.decimals)
	}
	kept := new(big.Int).Mul(a.Raw(), big.NewInt(bpsDenominator-bps))
	kept.Div(kept, big.NewInt(bpsDenominator))
	return Amount{raw: kept, decimals: a.decimals}
}

// SubtractGas deducts a fixed cost in the same currency, clamping at zero.
// Negative round trips surface as a profit percentage below -100%, never as
// a negative Amount.
func (a Amount) SubtractGas(gas Amount) (Amount, error) {
	if a.decimals != gas.decimals {
		return Amount{}, fmt.Errorf("currency: scale mismatch %d vs %d", a.decimals, gas.decimals)
	}
	remaining := new(big.Int).Sub(a.Raw(), gas.raw)
	if remaining.Sign() < 0 {
		return Zero(a.decimals), nil
	}
	return Amount{raw: remaining, decimals: a.decimals}, nil
}

// NetProfitPct computes (output - input) / input * 100 as a float. This is
// the only place fixed-point values become floating percentages. A zero
// input yields NaN, which callers must treat as "no route".
func NetProfitPct(input, output Amount) float64 {
	if input.IsZero() {
		return math.NaN()
	}
	in := input.Decimal()
	diff := output.Decimal().Sub(in)
	pct, _ := diff.Div(in).Mul(decimal.NewFromInt(100)).Float64()
	return pct
}

// SlippageToBps converts a percentage (e.g. 0.3 for 0.3%) into basis points.
func SlippageToBps(pct float64) int64 {
	return decimal.NewFromFloat(pct).Mul(decimal.NewFromInt(100)).IntPart()
}
