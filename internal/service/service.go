package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"arb-route-alerts/internal/alerting"
	"arb-route-alerts/internal/config"
	"arb-route-alerts/internal/route"
	"arb-route-alerts/internal/scheduler"
	"arb-route-alerts/internal/signal"
	"arb-route-alerts/internal/statestore"
	"arb-route-alerts/internal/venue"
)

// TickOptions parameterise a single pass.
type TickOptions struct {
	// Demo requests one demo alert for the first asset, sent at most once
	// per RunID regardless of gating.
	Demo  bool
	RunID string
}

// Service orchestrates route search, gating, alert delivery, and state
// persistence. One tick runs sequentially end to end; PairState and
// GlobalMeta are only touched by the tick currently holding them.
type Service struct {
	scheduler *scheduler.Scheduler
	finder    *route.Finder
	refiner   *route.Refiner
	gate      *signal.Gate
	states    statestore.Store
	samples   statestore.SampleStore
	audit     statestore.AlertAuditStore
	notifier  alerting.Notifier
	logger    zerolog.Logger

	scopes        []config.ScopeConfig
	sizes         []decimal.Decimal
	recipients    []string
	includeAggs   bool
	defaultWindow time.Duration
	alertsOn      bool
	locker        statestore.AdvisoryLocker
	lockKey       int64

	now func() time.Time
}

// Options bundle the service dependencies.
type Options struct {
	Scheduler *scheduler.Scheduler
	Finder    *route.Finder
	Refiner   *route.Refiner
	Gate      *signal.Gate
	States    statestore.Store
	Samples   statestore.SampleStore
	Audit     statestore.AlertAuditStore
	Notifier  alerting.Notifier
	Locker    statestore.AdvisoryLocker
}

// New constructs the watching service.
func New(cfg *config.Config, opts Options, logger zerolog.Logger) *Service {
	recipients := []string(nil)
	if cfg.Alerting.Telegram.Enabled {
		recipients = cfg.Alerting.Telegram.ChatIDs
	}

	return &Service{
		scheduler:     opts.Scheduler,
		finder:        opts.Finder,
		refiner:       opts.Refiner,
		gate:          opts.Gate,
		states:        opts.States,
		samples:       opts.Samples,
		audit:         opts.Audit,
		notifier:      opts.Notifier,
		logger:        logger.With().Str("component", "service").Logger(),
		scopes:        cfg.Scopes,
		sizes:         cfg.SizesAsDecimals(),
		recipients:    recipients,
		includeAggs:   cfg.Venues.IncludeAggregators,
		defaultWindow: cfg.Alerting.DefaultWindow,
		alertsOn:      cfg.Alerting.Enabled,
		locker:        opts.Locker,
		lockKey:       cfg.State.AdvisoryLockKey,
		now:           time.Now,
	}
}

// Run begins the aligned tick loop.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return s.scheduler.Run(ctx, func(ctx context.Context, bucket time.Time) error {
		return s.ProcessTick(ctx, bucket, TickOptions{})
	})
}

// ProcessTick runs one full pass: all scopes, assets, and sizes. State is
// loaded at tick start and saved at tick end; quote or delivery failures
// stay local to their unit of work and never abort the pass.
func (s *Service) ProcessTick(ctx context.Context, bucket time.Time, opts TickOptions) error {
	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return err
	}
	if !proceed {
		s.logger.Debug().Time("bucket", bucket).Msg("skip tick because advisory lock held elsewhere")
		return nil
	}
	if unlock != nil {
		defer unlock()
	}

	if s.states == nil {
		return fmt.Errorf("state store not configured")
	}
	state, err := s.states.Load(ctx)
	if err != nil {
		return fmt.Errorf("load state: %w", err)
	}

	demoPending := opts.Demo && opts.RunID != "" && state.Meta.LastDemoRunID != opts.RunID

	for _, scope := range s.scopes {
		venues := scope.VenueList(s.includeAggs)
		if len(venues) < 2 {
			s.logger.Warn().Str("scope", scope.Name).Msg("fewer than two venues after filtering, skipping scope")
			continue
		}

		reference := scope.Reference.Token()
		for _, assetCfg := range scope.Assets {
			asset := assetCfg.Token()
			outcome := s.evaluateAsset(ctx, scope, venues, asset, reference, state, bucket)

			if demoPending && outcome.best.Found() {
				s.sendDemo(ctx, scope, asset, reference, outcome)
				state.Meta.LastDemoRunID = opts.RunID
				demoPending = false
			}

			s.maybeAlert(ctx, scope, asset, reference, outcome, state)
		}
	}

	if err := s.states.Save(ctx, state); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}

// assetOutcome is everything one asset's evaluation produced this tick.
type assetOutcome struct {
	best       route.Result
	refinement route.Refinement
	lines      []alerting.SizeLine
	primary    *signal.PairState
}

func (s *Service) evaluateAsset(ctx context.Context, scope config.ScopeConfig, venues []venue.Venue, asset, reference venue.Token, state *signal.State, bucket time.Time) assetOutcome {
	now := s.now()
	minProfit := s.gate.Thresholds().MinProfitPct

	best := route.NoRoute(decimal.Zero, reference.Decimals)
	lines := make([]alerting.SizeLine, 0, len(s.sizes))

	for _, size := range s.sizes {
		result := s.finder.BestRoute(ctx, venues, asset, reference, size)

		key := signal.Key(scope.Name, asset.Symbol, size.String())
		pair := state.Pair(key)
		pair.RecordSample(now, result.ProfitPct)
		pair.UpdateWindow(now, result.ProfitPct, minProfit)

		lines = append(lines, alerting.SizeLine{
			Size:      size,
			ProfitPct: result.ProfitPct,
			NoRoute:   !result.Found(),
		})
		s.persistSample(ctx, scope, asset, result, bucket)

		if result.Found() && (!best.Found() || result.ProfitPct > best.ProfitPct) {
			best = result
		}
	}

	refinement := route.Refinement{Result: best}
	if best.Found() {
		refinement = s.refiner.Refine(ctx, venues, asset, reference, best)
	}

	primaryKey := signal.Key(scope.Name, asset.Symbol)
	primary := state.Pair(primaryKey)
	primary.RecordSample(now, refinement.ProfitPct)
	primary.UpdateWindow(now, refinement.ProfitPct, minProfit)

	if best.Found() {
		s.logger.Info().
			Str("scope", scope.Name).
			Str("asset", asset.Symbol).
			Str("route", best.BuyVenue+"->"+best.SellVenue).
			Float64("profit_pct", refinement.ProfitPct).
			Msg("asset evaluated")
	} else {
		s.logger.Debug().
			Str("scope", scope.Name).
			Str("asset", asset.Symbol).
			Msg("no route this tick")
	}

	return assetOutcome{best: best, refinement: refinement, lines: lines, primary: primary}
}

func (s *Service) maybeAlert(ctx context.Context, scope config.ScopeConfig, asset, reference venue.Token, outcome assetOutcome, state *signal.State) {
	if !s.alertsOn || s.notifier == nil || len(s.recipients) == 0 {
		return
	}

	now := s.now()
	decision := s.gate.Decide(outcome.primary, outcome.refinement.ProfitPct, now)
	if !decision.Send {
		s.logger.Debug().
			Str("scope", scope.Name).
			Str("asset", asset.Symbol).
			Str("reason", string(decision.Reason)).
			Msg("alert suppressed")
		return
	}

	if !s.gate.AllowAny(&state.Meta, now) {
		// Global floor suppression leaves lastSent untouched; only the
		// samples recorded above persist from this tick.
		s.logger.Info().
			Str("scope", scope.Name).
			Str("asset", asset.Symbol).
			Str("reason", string(signal.ReasonGlobalFloor)).
			Msg("alert suppressed")
		return
	}

	text := alerting.Compose(s.buildAlert(scope, asset, reference, outcome, false))
	delivered := alerting.Broadcast(ctx, s.notifier, s.recipients, text, s.logger)

	outcome.primary.MarkSent(now, outcome.refinement.ProfitPct)
	state.Meta.MarkAnySent(now)

	s.logger.Info().
		Str("scope", scope.Name).
		Str("asset", asset.Symbol).
		Str("reason", string(decision.Reason)).
		Int("delivered", len(delivered)).
		Msg("alert sent")

	if s.audit != nil {
		record := statestore.AlertAudit{
			SentAt:     now.UTC(),
			Scope:      scope.Name,
			Asset:      asset.Symbol,
			BuyVenue:   outcome.refinement.BuyVenue,
			SellVenue:  outcome.refinement.SellVenue,
			ProfitPct:  decimal.NewFromFloat(outcome.refinement.ProfitPct),
			Reason:     string(decision.Reason),
			Recipients: delivered,
		}
		if _, err := s.audit.InsertAlert(ctx, record); err != nil {
			s.logger.Error().Err(err).Msg("failed to persist alert record")
		}
	}
}

func (s *Service) sendDemo(ctx context.Context, scope config.ScopeConfig, asset, reference venue.Token, outcome assetOutcome) {
	if s.notifier == nil || len(s.recipients) == 0 {
		return
	}
	text := alerting.Compose(s.buildAlert(scope, asset, reference, outcome, true))
	alerting.Broadcast(ctx, s.notifier, s.recipients, text, s.logger)
	s.logger.Info().Str("scope", scope.Name).Str("asset", asset.Symbol).Msg("demo alert sent")
}

func (s *Service) buildAlert(scope config.ScopeConfig, asset, reference venue.Token, outcome assetOutcome, demo bool) alerting.Alert {
	now := s.now()
	return alerting.Alert{
		Scope:       scope.Name,
		ChainID:     scope.ChainID,
		Asset:       asset,
		Reference:   reference,
		BuyVenue:    outcome.refinement.BuyVenue,
		SellVenue:   outcome.refinement.SellVenue,
		BestPct:     outcome.refinement.ProfitPct,
		BestSize:    outcome.best.Size,
		Lines:       outcome.lines,
		RefinedSize: outcome.refinement.Size,
		RefinedPct:  outcome.refinement.ProfitPct,
		Refined:     outcome.refinement.Improved,
		Window:      signal.EstimateWindow(outcome.primary, now, s.defaultWindow),
		Risk:        signal.EstimateRisk(outcome.primary, signal.DefaultRiskBounds),
		Demo:        demo,
	}
}

func (s *Service) persistSample(ctx context.Context, scope config.ScopeConfig, asset venue.Token, result route.Result, bucket time.Time) {
	if s.samples == nil {
		return
	}

	profit := decimal.Zero
	if !math.IsNaN(result.ProfitPct) {
		profit = decimal.NewFromFloat(result.ProfitPct)
	}

	sample := statestore.OpportunitySample{
		Bucket:    bucket,
		Scope:     scope.Name,
		Asset:     asset.Symbol,
		BuyVenue:  result.BuyVenue,
		SellVenue: result.SellVenue,
		Size:      result.Size,
		ProfitPct: profit,
		GasCost:   result.GasCost.Decimal(),
		NoRoute:   !result.Found(),
	}
	if err := s.samples.InsertSample(ctx, sample); err != nil {
		s.logger.Error().Err(err).Time("bucket", bucket).Msg("failed to persist opportunity sample")
	}
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.lockKey == 0 || s.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.lockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
