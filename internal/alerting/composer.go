package alerting

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"arb-route-alerts/internal/signal"
	"arb-route-alerts/internal/venue"
)

// SizeLine is one per-trade-size row of the alert body.
type SizeLine struct {
	Size      decimal.Decimal
	ProfitPct float64
	NoRoute   bool
}

// Alert 封装一次机会告警的完整上下文。
type Alert struct {
	Scope       string
	ChainID     int64
	Asset       venue.Token
	Reference   venue.Token
	BuyVenue    string
	SellVenue   string
	BestPct     float64
	BestSize    decimal.Decimal
	Lines       []SizeLine
	RefinedSize decimal.Decimal
	RefinedPct  float64
	Refined     bool
	Window      signal.WindowEstimate
	Risk        signal.RiskLevel
	Demo        bool
}

// Badge thresholds, in percent profit. hotPct marks the top badge; the
// legend rendered at the bottom of every message must match these.
const (
	hotPct  = 3.0
	goodPct = 1.0
)

// Compose renders the alert as Telegram HTML: route, per-size breakdown,
// execution window, risk badge, and the badge legend.
func Compose(a Alert) string {
	b := strings.Builder{}

	if a.Demo {
		b.WriteString("🧪 <b>DEMO MESSAGE</b>\n\n")
	}

	b.WriteString(fmt.Sprintf("🔥 <b>ARBITRAGE SIGNAL</b> <b>%s/%s</b> <i>[%s]</i>\n\n",
		esc(a.Asset.Symbol), esc(a.Reference.Symbol), esc(a.Scope)))

	b.WriteString(fmt.Sprintf("<b>Route:</b> buy %s → sell %s\n", esc(a.BuyVenue), esc(a.SellVenue)))
	b.WriteString(fmt.Sprintf("<b>Best:</b> %s %s at size %s %s\n\n",
		profitBadge(a.BestPct, false), esc(fmtPct(a.BestPct)), esc(a.BestSize.String()), esc(a.Reference.Symbol)))

	for _, line := range a.Lines {
		if line.NoRoute {
			b.WriteString(fmt.Sprintf("%s %s: ⚪ no route\n", esc(line.Size.String()), esc(a.Reference.Symbol)))
			continue
		}
		b.WriteString(fmt.Sprintf("%s %s: %s %s\n",
			esc(line.Size.String()), esc(a.Reference.Symbol), profitBadge(line.ProfitPct, line.NoRoute), esc(fmtPct(line.ProfitPct))))
	}

	if a.Refined {
		b.WriteString(fmt.Sprintf("\n🎯 <b>Refined size:</b> %s %s → %s\n",
			esc(a.RefinedSize.String()), esc(a.Reference.Symbol), esc(fmtPct(a.RefinedPct))))
	}

	b.WriteString(fmt.Sprintf("\n⏱ <b>Window:</b> %s\n", esc(windowText(a.Window))))
	b.WriteString(fmt.Sprintf("⚠️ <b>Risk:</b> %s\n\n", riskBadge(a.Risk)))

	buyLink := uniswapSwapLink(a.ChainID, a.Reference.Address.Hex(), a.Asset.Address.Hex())
	sellLink := odosSwapLink(a.ChainID, a.Asset.Address.Hex(), a.Reference.Address.Hex())
	b.WriteString(fmt.Sprintf("<a href=\"%s\">Uniswap (%s→%s)</a>  |  <a href=\"%s\">Odos (%s→%s)</a>\n\n",
		esc(buyLink), esc(a.Reference.Symbol), esc(a.Asset.Symbol),
		esc(sellLink), esc(a.Asset.Symbol), esc(a.Reference.Symbol)))

	b.WriteString(fmt.Sprintf("<i>Legend: 🔥 ≥ %.1f%%, 🟢 ≥ %.1f%%, 🟡 > 0%%, 🔴 ≤ 0%%, ⚪ no route</i>", hotPct, goodPct))
	return b.String()
}

func profitBadge(pct float64, noRoute bool) string {
	switch {
	case noRoute:
		return "⚪"
	case pct >= hotPct:
		return "🔥"
	case pct >= goodPct:
		return "🟢"
	case pct > 0:
		return "🟡"
	default:
		return "🔴"
	}
}

func riskBadge(level signal.RiskLevel) string {
	switch level {
	case signal.RiskLow:
		return "🟩 low"
	case signal.RiskHigh:
		return "🟥 high"
	default:
		return "🟨 medium"
	}
}

func windowText(w signal.WindowEstimate) string {
	secs := int64(w.Duration / time.Second)
	if w.Open {
		return fmt.Sprintf("~%ds remaining (estimate)", secs)
	}
	return fmt.Sprintf("~%ds typical (estimate)", secs)
}

func fmtPct(pct float64) string {
	return fmt.Sprintf("%+.2f%%", pct)
}

func uniswapSwapLink(chainID int64, input, output string) string {
	return fmt.Sprintf("https://app.uniswap.org/swap?chain=%s&inputCurrency=%s&outputCurrency=%s",
		uniswapChainSlug(chainID), input, output)
}

// uniswapChainSlug maps chain ids to the slugs the Uniswap web app accepts.
func uniswapChainSlug(chainID int64) string {
	switch chainID {
	case 1:
		return "mainnet"
	case 10:
		return "optimism"
	case 56:
		return "bnb"
	case 137:
		return "polygon"
	case 8453:
		return "base"
	case 42161:
		return "arbitrum"
	default:
		return "mainnet"
	}
}

func odosSwapLink(chainID int64, tokenIn, tokenOut string) string {
	return fmt.Sprintf("https://app.odos.xyz/?chain=%d&tokenIn=%s&tokenOut=%s", chainID, tokenIn, tokenOut)
}

func esc(s string) string {
	replacer := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	return replacer.Replace(s)
}
