package app

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"arb-route-alerts/internal/currency"
	"arb-route-alerts/internal/service"
	sig "arb-route-alerts/internal/signal"
	"arb-route-alerts/internal/venue"
)

// SimulateAlert 用给定的买入/卖出价格跑一遍完整的告警流程。
// 状态保存在内存中, 不会污染真实的 state 文件或数据库。
func (a *App) SimulateAlert(ctx context.Context, buyPrice, sellPrice decimal.Decimal) error {
	if !a.Config.Alerting.Enabled {
		return errors.New("alerting 未启用")
	}

	notifier := a.newNotifier()
	if notifier == nil {
		return errors.New("未配置任何告警通道")
	}

	source := &staticQuoteSource{buyPrice: buyPrice, sellPrice: sellPrice}

	svc := a.newService(nil, source, &throwawayState{}, nil)

	bucket := time.Now().UTC().Truncate(a.Config.Scheduler.Interval)
	return svc.ProcessTick(ctx, bucket, service.TickOptions{})
}

// staticQuoteSource quotes every venue at the same fixed prices, expressed in
// reference units per asset unit.
type staticQuoteSource struct {
	buyPrice  decimal.Decimal
	sellPrice decimal.Decimal
}

func (s *staticQuoteSource) Quote(_ context.Context, req venue.Request) (currency.Amount, error) {
	if req.Direction == venue.ToAsset {
		if s.buyPrice.IsZero() {
			return currency.Amount{}, errors.New("buy price must be positive")
		}
		return currency.FromDecimal(req.Input.Decimal().Div(s.buyPrice), req.Asset.Decimals), nil
	}
	return currency.FromDecimal(req.Input.Decimal().Mul(s.sellPrice), req.Reference.Decimals), nil
}

// throwawayState is an in-memory state store for one simulated pass.
type throwawayState struct {
	state *sig.State
}

func (t *throwawayState) Load(context.Context) (*sig.State, error) {
	if t.state == nil {
		return sig.NewState(), nil
	}
	return t.state, nil
}

func (t *throwawayState) Save(_ context.Context, state *sig.State) error {
	t.state = state
	return nil
}

var _ venue.QuoteSource = (*staticQuoteSource)(nil)
