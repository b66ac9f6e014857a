package alerting

import (
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"arb-route-alerts/internal/signal"
	"arb-route-alerts/internal/venue"
)

func sampleAlert() Alert {
	return Alert{
		Scope:     "polygon",
		ChainID:   137,
		Asset:     venue.Token{Symbol: "LINK", Address: common.HexToAddress("0x53E0bca35eC356BD5ddDFebbD1Fc0fD03FaBad39"), Decimals: 18},
		Reference: venue.Token{Symbol: "USDC", Address: common.HexToAddress("0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174"), Decimals: 6},
		BuyVenue:  "uniswap_v3",
		SellVenue: "odos",
		BestPct:   1.62,
		BestSize:  decimal.NewFromInt(250),
		Lines: []SizeLine{
			{Size: decimal.NewFromInt(100), ProfitPct: 1.21},
			{Size: decimal.NewFromInt(250), ProfitPct: 1.62},
			{Size: decimal.NewFromInt(500), NoRoute: true},
		},
		RefinedSize: decimal.NewFromInt(280),
		RefinedPct:  1.70,
		Refined:     true,
		Window:      signal.WindowEstimate{Duration: 45 * time.Second, Open: true},
		Risk:        signal.RiskMedium,
	}
}

func TestComposeContainsContract(t *testing.T) {
	text := Compose(sampleAlert())

	for _, want := range []string{
		"LINK/USDC",
		"buy uniswap_v3 → sell odos",
		"+1.62%",
		"no route",
		"Refined size",
		"~45s remaining",
		"🟨 medium",
		"app.uniswap.org",
		"app.odos.xyz",
		"Legend",
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("message missing %q:\n%s", want, text)
		}
	}
}

func TestComposeDemoBanner(t *testing.T) {
	a := sampleAlert()
	a.Demo = true
	if !strings.Contains(Compose(a), "DEMO MESSAGE") {
		t.Fatal("demo alert must carry the demo banner")
	}
	if strings.Contains(Compose(sampleAlert()), "DEMO MESSAGE") {
		t.Fatal("regular alert must not carry the demo banner")
	}
}

func TestComposeEscapesHTML(t *testing.T) {
	a := sampleAlert()
	a.BuyVenue = "uni<swap>"
	text := Compose(a)
	if strings.Contains(text, "uni<swap>") {
		t.Fatal("venue names must be HTML escaped")
	}
	if !strings.Contains(text, "uni&lt;swap&gt;") {
		t.Fatal("expected escaped venue name")
	}
}

func TestProfitBadgeThresholds(t *testing.T) {
	cases := []struct {
		pct     float64
		noRoute bool
		want    string
	}{
		{3.5, false, "🔥"},
		{1.0, false, "🟢"},
		{0.4, false, "🟡"},
		{-0.2, false, "🔴"},
		{0, true, "⚪"},
	}
	for _, tc := range cases {
		if got := profitBadge(tc.pct, tc.noRoute); got != tc.want {
			t.Fatalf("badge(%f, %v) = %s, want %s", tc.pct, tc.noRoute, got, tc.want)
		}
	}
}
