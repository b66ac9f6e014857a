package route

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"arb-route-alerts/internal/currency"
	"arb-route-alerts/internal/venue"
)

var (
	testAsset     = venue.Token{Symbol: "LINK", Address: common.HexToAddress("0x1"), Decimals: 18}
	testReference = venue.Token{Symbol: "USDC", Address: common.HexToAddress("0x2"), Decimals: 6}
)

// stubSource answers quotes from a function, counting calls per venue+leg.
type stubSource struct {
	quote func(req venue.Request) (currency.Amount, error)
	calls map[string]int
}

func newStubSource(quote func(req venue.Request) (currency.Amount, error)) *stubSource {
	return &stubSource{quote: quote, calls: make(map[string]int)}
}

func (s *stubSource) Quote(_ context.Context, req venue.Request) (currency.Amount, error) {
	s.calls[req.Venue.ID+"/"+req.Direction.String()]++
	return s.quote(req)
}

func testVenues(ids ...string) []venue.Venue {
	venues := make([]venue.Venue, 0, len(ids))
	for _, id := range ids {
		venues = append(venues, venue.Venue{ID: id, Kind: venue.KindConstantProduct, ChainID: 137})
	}
	return venues
}

// priceSource builds a stub where each venue has a fixed USDC-per-token
// price; buy legs convert size/price tokens, sell legs tokens*price USDC.
func priceSource(prices map[string]decimal.Decimal) *stubSource {
	return newStubSource(func(req venue.Request) (currency.Amount, error) {
		price, ok := prices[req.Venue.ID]
		if !ok {
			return currency.Amount{}, errors.New("no price")
		}
		if req.Direction == venue.ToAsset {
			tokens := req.Input.Decimal().Div(price)
			return currency.FromDecimal(tokens, req.Asset.Decimals), nil
		}
		usdc := req.Input.Decimal().Mul(price)
		return currency.FromDecimal(usdc, req.Reference.Decimals), nil
	})
}

func TestBestRoutePicksCheapestBuyRichestSell(t *testing.T) {
	src := priceSource(map[string]decimal.Decimal{
		"uni":   decimal.NewFromInt(10),
		"quick": decimal.NewFromInt(11),
		"odos":  decimal.RequireFromString("10.5"),
	})
	finder := NewFinder(src, CostModel{}, zerolog.Nop())

	best := finder.BestRoute(context.Background(), testVenues("uni", "quick", "odos"), testAsset, testReference, decimal.NewFromInt(100))
	if !best.Found() {
		t.Fatal("expected a route")
	}
	if best.BuyVenue != "uni" || best.SellVenue != "quick" {
		t.Fatalf("expected uni->quick, got %s->%s", best.BuyVenue, best.SellVenue)
	}
	// buy at 10, sell at 11: +10%
	if math.Abs(best.ProfitPct-10.0) > 0.01 {
		t.Fatalf("expected ~10%%, got %f", best.ProfitPct)
	}
}

func TestBestRouteTieBreakDeterministic(t *testing.T) {
	src := priceSource(map[string]decimal.Decimal{
		"a": decimal.NewFromInt(10),
		"b": decimal.NewFromInt(10),
		"c": decimal.NewFromInt(10),
	})
	finder := NewFinder(src, CostModel{}, zerolog.Nop())

	first := finder.BestRoute(context.Background(), testVenues("a", "b", "c"), testAsset, testReference, decimal.NewFromInt(100))
	for i := 0; i < 5; i++ {
		again := finder.BestRoute(context.Background(), testVenues("a", "b", "c"), testAsset, testReference, decimal.NewFromInt(100))
		if again.BuyVenue != first.BuyVenue || again.SellVenue != first.SellVenue {
			t.Fatalf("tie-break not deterministic: %s->%s vs %s->%s", first.BuyVenue, first.SellVenue, again.BuyVenue, again.SellVenue)
		}
	}
	if first.BuyVenue != "a" || first.SellVenue != "b" {
		t.Fatalf("ties must keep the first-found pair, got %s->%s", first.BuyVenue, first.SellVenue)
	}
}

func TestBestRouteBuyLegQuotedOncePerVenue(t *testing.T) {
	src := priceSource(map[string]decimal.Decimal{
		"a": decimal.NewFromInt(10),
		"b": decimal.NewFromInt(10),
		"c": decimal.NewFromInt(10),
	})
	finder := NewFinder(src, CostModel{}, zerolog.Nop())
	finder.BestRoute(context.Background(), testVenues("a", "b", "c"), testAsset, testReference, decimal.NewFromInt(100))

	for _, id := range []string{"a", "b", "c"} {
		if got := src.calls[id+"/to_asset"]; got != 1 {
			t.Fatalf("buy leg for %s quoted %d times, want 1", id, got)
		}
		if got := src.calls[id+"/to_reference"]; got != 2 {
			t.Fatalf("sell leg for %s quoted %d times, want 2", id, got)
		}
	}
}

func TestBestRouteAllSellLegsFail(t *testing.T) {
	src := newStubSource(func(req venue.Request) (currency.Amount, error) {
		if req.Direction == venue.ToReference {
			return currency.Amount{}, errors.New("no pool")
		}
		return currency.FromDecimal(decimal.NewFromInt(10), req.Asset.Decimals), nil
	})
	finder := NewFinder(src, CostModel{}, zerolog.Nop())

	best := finder.BestRoute(context.Background(), testVenues("a", "b"), testAsset, testReference, decimal.NewFromInt(100))
	if best.Found() {
		t.Fatal("expected no-route sentinel")
	}
	if !math.IsNaN(best.ProfitPct) {
		t.Fatalf("sentinel profit must be NaN, got %f", best.ProfitPct)
	}
	if best.BuyVenue != "-" || best.SellVenue != "-" {
		t.Fatalf("sentinel venues must be placeholders, got %s->%s", best.BuyVenue, best.SellVenue)
	}
}

func TestBestRouteAppliesHaircutsAndGas(t *testing.T) {
	src := priceSource(map[string]decimal.Decimal{
		"cheap": decimal.NewFromInt(10),
		"rich":  decimal.NewFromInt(11),
	})
	venues := testVenues("cheap", "rich")
	for i := range venues {
		venues[i].GasCost = decimal.RequireFromString("0.5")
	}

	cost := CostModel{BuySlippageBps: 30, SellSlippageBps: 30}
	finder := NewFinder(src, cost, zerolog.Nop())

	best := finder.BestRoute(context.Background(), venues, testAsset, testReference, decimal.NewFromInt(100))
	if !best.Found() {
		t.Fatal("expected a route")
	}
	// 100 USDC -> 10 tokens, *0.997 -> 9.97 tokens, *11 = 109.67 USDC,
	// *0.997 = 109.34101 USDC, minus 1 USDC gas = 108.34101 -> +8.34%
	if math.Abs(best.ProfitPct-8.34) > 0.02 {
		t.Fatalf("expected ~8.34%%, got %f", best.ProfitPct)
	}
	if best.GasCost.Decimal().Cmp(decimal.NewFromInt(1)) != 0 {
		t.Fatalf("expected 1 USDC total gas, got %s", best.GasCost)
	}
}

func TestCostModelSkipsAggregatorHaircutByDefault(t *testing.T) {
	agg := venue.Venue{ID: "odos", Kind: venue.KindAggregator}
	amm := venue.Venue{ID: "uni", Kind: venue.KindConstantProduct}
	in := currency.FromDecimal(decimal.NewFromInt(100), 6)

	cost := CostModel{SellSlippageBps: 30}
	if got := cost.SellHaircut(agg, in); got.Raw().Cmp(in.Raw()) != 0 {
		t.Fatalf("aggregator output must not take the extra haircut, got %s", got)
	}
	if got := cost.SellHaircut(amm, in); got.Raw().Cmp(in.Raw()) >= 0 {
		t.Fatal("amm output must take the haircut")
	}

	cost.AggregatorExtraSlippage = true
	if got := cost.SellHaircut(agg, in); got.Raw().Cmp(in.Raw()) >= 0 {
		t.Fatal("with the knob on, aggregator output must take the haircut too")
	}
}
