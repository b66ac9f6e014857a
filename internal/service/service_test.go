package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"arb-route-alerts/internal/config"
	"arb-route-alerts/internal/currency"
	"arb-route-alerts/internal/route"
	"arb-route-alerts/internal/signal"
	"arb-route-alerts/internal/venue"
)

// memoryStateStore keeps the blob in memory for tests.
type memoryStateStore struct {
	mu    sync.Mutex
	state *signal.State
	saves int
}

func (m *memoryStateStore) Load(context.Context) (*signal.State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == nil {
		return signal.NewState(), nil
	}
	return m.state, nil
}

func (m *memoryStateStore) Save(_ context.Context, state *signal.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = state
	m.saves++
	return nil
}

// recordingNotifier captures deliveries.
type recordingNotifier struct {
	mu       sync.Mutex
	messages []string
	chats    []string
}

func (r *recordingNotifier) Deliver(_ context.Context, chatID, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chats = append(r.chats, chatID)
	r.messages = append(r.messages, text)
	return nil
}

// spreadSource quotes a fixed buy/sell spread for every venue pair.
type spreadSource struct {
	buyPrice  decimal.Decimal
	sellPrice decimal.Decimal
	fail      bool
	failAsset string // fail quotes for this asset symbol only
}

func (s *spreadSource) Quote(_ context.Context, req venue.Request) (currency.Amount, error) {
	if s.fail || (s.failAsset != "" && req.Asset.Symbol == s.failAsset) {
		return currency.Amount{}, errors.New("venue down")
	}
	if req.Direction == venue.ToAsset {
		tokens := req.Input.Decimal().Div(s.buyPrice)
		return currency.FromDecimal(tokens, req.Asset.Decimals), nil
	}
	usdc := req.Input.Decimal().Mul(s.sellPrice)
	return currency.FromDecimal(usdc, req.Reference.Decimals), nil
}

func testConfig() *config.Config {
	return &config.Config{
		Scopes: []config.ScopeConfig{{
			Name:      "polygon",
			ChainID:   137,
			Reference: config.TokenConfig{Symbol: "USDC", Address: "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174", Decimals: 6},
			Assets: []config.TokenConfig{
				{Symbol: "LINK", Address: "0x53E0bca35eC356BD5ddDFebbD1Fc0fD03FaBad39", Decimals: 18},
			},
			Venues: []config.VenueConfig{
				{ID: "quickswap", Kind: string(venue.KindConstantProduct), Contract: "0x1"},
				{ID: "uniswap_v3", Kind: string(venue.KindConcentratedLiquidity), Contract: "0x2"},
			},
		}},
		TradeSizes: []float64{100, 250},
		Thresholds: config.ThresholdsConfig{
			MinProfitPct:          1.0,
			ProfitStepPct:         0.25,
			Cooldown:              600 * time.Second,
			BigJumpBypassPct:      1.0,
			MinIntervalBetweenAny: 60 * time.Second,
		},
		Venues: config.VenuesConfig{IncludeAggregators: true},
		Alerting: config.AlertingConfig{
			Enabled:       true,
			DefaultWindow: time.Minute,
			Telegram: config.TelegramConfig{
				Enabled: true,
				ChatIDs: []string{"chat-1", "chat-2"},
			},
		},
	}
}

func newTestService(cfg *config.Config, src venue.QuoteSource, store *memoryStateStore, notifier *recordingNotifier) *Service {
	finder := route.NewFinder(src, route.CostModel{}, zerolog.Nop())
	refiner := route.NewRefiner(finder, route.RefinerOptions{}, zerolog.Nop())
	gate := signal.NewGate(signal.Thresholds{
		MinProfitPct:          cfg.Thresholds.MinProfitPct,
		ProfitStepPct:         cfg.Thresholds.ProfitStepPct,
		Cooldown:              cfg.Thresholds.Cooldown,
		BigJumpBypassPct:      cfg.Thresholds.BigJumpBypassPct,
		MinIntervalBetweenAny: cfg.Thresholds.MinIntervalBetweenAny,
	})

	return New(cfg, Options{
		Finder:   finder,
		Refiner:  refiner,
		Gate:     gate,
		States:   store,
		Notifier: notifier,
	}, zerolog.Nop())
}

func TestProcessTickSendsAndPersists(t *testing.T) {
	cfg := testConfig()
	store := &memoryStateStore{}
	notifier := &recordingNotifier{}
	src := &spreadSource{buyPrice: decimal.NewFromInt(10), sellPrice: decimal.RequireFromString("10.2")}

	svc := newTestService(cfg, src, store, notifier)
	now := time.Unix(1_700_000_000, 0)
	svc.now = func() time.Time { return now }

	if err := svc.ProcessTick(context.Background(), now, TickOptions{}); err != nil {
		t.Fatalf("ProcessTick: %v", err)
	}

	// +2% spread clears the 1% threshold: one alert to both recipients.
	if len(notifier.chats) != 2 {
		t.Fatalf("expected delivery to both chats, got %v", notifier.chats)
	}
	if store.saves != 1 {
		t.Fatalf("state must be saved once per tick, got %d", store.saves)
	}

	primary := store.state.Pair(signal.Key("polygon", "LINK"))
	if primary.LastSentAt != now.Unix() {
		t.Fatalf("lastSentAt not updated: %+v", primary)
	}
	if store.state.Meta.LastAnySentAt != now.Unix() {
		t.Fatal("global meta not updated")
	}

	// Per-size keys record samples even though only the primary key gates.
	for _, size := range []string{"100", "250"} {
		pair := store.state.Pair(signal.Key("polygon", "LINK", size))
		if len(pair.Samples) != 1 {
			t.Fatalf("size %s should have one sample, got %d", size, len(pair.Samples))
		}
	}
}

func TestProcessTickCooldownSuppressesRepeat(t *testing.T) {
	cfg := testConfig()
	store := &memoryStateStore{}
	notifier := &recordingNotifier{}
	src := &spreadSource{buyPrice: decimal.NewFromInt(10), sellPrice: decimal.RequireFromString("10.2")}

	svc := newTestService(cfg, src, store, notifier)
	now := time.Unix(1_700_000_000, 0)
	svc.now = func() time.Time { return now }

	if err := svc.ProcessTick(context.Background(), now, TickOptions{}); err != nil {
		t.Fatalf("first tick: %v", err)
	}
	sent := len(notifier.messages)

	now = now.Add(90 * time.Second) // cooldown still active, no growth
	if err := svc.ProcessTick(context.Background(), now, TickOptions{}); err != nil {
		t.Fatalf("second tick: %v", err)
	}

	if len(notifier.messages) != sent {
		t.Fatalf("repeat observation must be suppressed, got %d new messages", len(notifier.messages)-sent)
	}

	// The suppressed tick still recorded its sample.
	primary := store.state.Pair(signal.Key("polygon", "LINK"))
	if len(primary.Samples) != 2 {
		t.Fatalf("expected 2 samples on the primary key, got %d", len(primary.Samples))
	}
}

func TestProcessTickSurvivesQuoteFailures(t *testing.T) {
	cfg := testConfig()
	store := &memoryStateStore{}
	notifier := &recordingNotifier{}
	src := &spreadSource{fail: true}

	svc := newTestService(cfg, src, store, notifier)
	now := time.Unix(1_700_000_000, 0)
	svc.now = func() time.Time { return now }

	if err := svc.ProcessTick(context.Background(), now, TickOptions{}); err != nil {
		t.Fatalf("quote failures must not abort the tick: %v", err)
	}
	if len(notifier.messages) != 0 {
		t.Fatal("no alert must fire when every route fails")
	}
	if store.saves != 1 {
		t.Fatal("state must still be saved")
	}
}

func TestProcessTickGlobalFloorAcrossAssets(t *testing.T) {
	cfg := testConfig()
	cfg.Scopes[0].Assets = append(cfg.Scopes[0].Assets,
		config.TokenConfig{Symbol: "AAVE", Address: "0xD6DF932A45C0f255f85145f286eA0b292B21C90B", Decimals: 18})

	store := &memoryStateStore{}
	notifier := &recordingNotifier{}
	src := &spreadSource{buyPrice: decimal.NewFromInt(10), sellPrice: decimal.RequireFromString("10.2")}

	svc := newTestService(cfg, src, store, notifier)
	now := time.Unix(1_700_000_000, 0)
	svc.now = func() time.Time { return now }

	if err := svc.ProcessTick(context.Background(), now, TickOptions{}); err != nil {
		t.Fatalf("ProcessTick: %v", err)
	}

	// Both assets qualify, but the global floor lets only the first through
	// within the same tick (2 recipients => 2 deliveries).
	if len(notifier.messages) != 2 {
		t.Fatalf("expected exactly one alert through the global floor, got %d deliveries", len(notifier.messages))
	}

	second := store.state.Pair(signal.Key("polygon", "AAVE"))
	if second.LastSentAt != 0 {
		t.Fatal("floor-suppressed key must keep lastSentAt untouched")
	}
	if len(second.Samples) != 1 {
		t.Fatal("floor-suppressed key must still record its sample")
	}
}

func TestProcessTickDemoSentOncePerRun(t *testing.T) {
	cfg := testConfig()
	store := &memoryStateStore{}
	notifier := &recordingNotifier{}
	src := &spreadSource{buyPrice: decimal.NewFromInt(10), sellPrice: decimal.RequireFromString("10.01")}

	svc := newTestService(cfg, src, store, notifier)
	now := time.Unix(1_700_000_000, 0)
	svc.now = func() time.Time { return now }

	// Spread is below threshold, so only the demo message goes out.
	if err := svc.ProcessTick(context.Background(), now, TickOptions{Demo: true, RunID: "run-1"}); err != nil {
		t.Fatalf("ProcessTick: %v", err)
	}
	if len(notifier.messages) != 2 {
		t.Fatalf("expected one demo broadcast to 2 chats, got %d", len(notifier.messages))
	}

	// Same run id: no second demo.
	if err := svc.ProcessTick(context.Background(), now.Add(time.Minute), TickOptions{Demo: true, RunID: "run-1"}); err != nil {
		t.Fatalf("ProcessTick: %v", err)
	}
	if len(notifier.messages) != 2 {
		t.Fatal("demo must fire at most once per run id")
	}
}

func TestProcessTickDemoFallsThroughToRoutableAsset(t *testing.T) {
	cfg := testConfig()
	cfg.Scopes[0].Assets = append(cfg.Scopes[0].Assets,
		config.TokenConfig{Symbol: "AAVE", Address: "0xD6DF932A45C0f255f85145f286eA0b292B21C90B", Decimals: 18})

	store := &memoryStateStore{}
	notifier := &recordingNotifier{}
	// First asset unroutable, spread below threshold: only the demo goes out,
	// attached to the first asset that produced a route.
	src := &spreadSource{buyPrice: decimal.NewFromInt(10), sellPrice: decimal.RequireFromString("10.01"), failAsset: "LINK"}

	svc := newTestService(cfg, src, store, notifier)
	now := time.Unix(1_700_000_000, 0)
	svc.now = func() time.Time { return now }

	if err := svc.ProcessTick(context.Background(), now, TickOptions{Demo: true, RunID: "run-9"}); err != nil {
		t.Fatalf("ProcessTick: %v", err)
	}

	if len(notifier.messages) != 2 {
		t.Fatalf("expected one demo broadcast to 2 chats, got %d", len(notifier.messages))
	}
	if !strings.Contains(notifier.messages[0], "DEMO MESSAGE") {
		t.Fatal("demo banner missing")
	}
	if !strings.Contains(notifier.messages[0], "AAVE") {
		t.Fatalf("demo should describe the first routable asset:\n%s", notifier.messages[0])
	}
}
