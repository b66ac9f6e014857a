package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"arb-route-alerts/internal/alerting"
	"arb-route-alerts/internal/config"
	"arb-route-alerts/internal/currency"
	"arb-route-alerts/internal/route"
	"arb-route-alerts/internal/scheduler"
	"arb-route-alerts/internal/service"
	sig "arb-route-alerts/internal/signal"
	"arb-route-alerts/internal/statestore"
	"arb-route-alerts/internal/venue"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newQuoteSource() venue.QuoteSource {
	onchain := venue.NewOnchainSource(venue.OnchainOptions{
		RPCURLs: a.Config.RPCURLs(),
		Timeout: a.Config.Venues.RequestTimeout,
	}, a.Logger)

	aggregator := venue.NewAggregatorSource(venue.AggregatorOptions{
		Timeout:       a.Config.Venues.RequestTimeout,
		UserAgent:     a.Config.Venues.UserAgent,
		SlippageLimit: a.Config.Venues.AggregatorSlippageLimit,
	}, a.Logger)

	return venue.NewDispatcher(onchain, aggregator)
}

func (a *App) newFinder(source venue.QuoteSource) *route.Finder {
	cost := route.CostModel{
		BuySlippageBps:          currency.SlippageToBps(a.Config.Slippage.BuyPct),
		SellSlippageBps:         currency.SlippageToBps(a.Config.Slippage.SellPct),
		AggregatorExtraSlippage: a.Config.Slippage.AggregatorExtra,
	}
	return route.NewFinder(source, cost, a.Logger)
}

func (a *App) newGate() *sig.Gate {
	t := a.Config.Thresholds
	return sig.NewGate(sig.Thresholds{
		MinProfitPct:          t.MinProfitPct,
		ProfitStepPct:         t.ProfitStepPct,
		Cooldown:              t.Cooldown,
		BigJumpBypassPct:      t.BigJumpBypassPct,
		MinIntervalBetweenAny: t.MinIntervalBetweenAny,
	})
}

func (a *App) newNotifier() alerting.Notifier {
	if a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.APIBase, 10*time.Second, a.Logger)
	}
	return nil
}

// openStore selects the state backend. With a DSN configured it returns the
// Postgres store (which also carries the sample and alert audit trail);
// otherwise the plain JSON file store.
func (a *App) openStore(ctx context.Context) (statestore.Store, *statestore.PostgresStore, func(), error) {
	if a.Config.State.DSN != "" {
		pool, err := statestore.NewPool(ctx, statestore.PoolConfig{
			DSN:             a.Config.State.DSN,
			MaxOpenConns:    a.Config.State.MaxOpenConns,
			MaxIdleConns:    a.Config.State.MaxIdleConns,
			ConnMaxLifetime: a.Config.State.ConnMaxLifetime,
		})
		if err != nil {
			return nil, nil, nil, err
		}
		pg := statestore.NewPostgresStore(pool, a.Logger)
		return pg, pg, pg.Close, nil
	}

	file := statestore.NewFileStore(a.Config.State.Path, a.Logger)
	return file, nil, nil, nil
}

func (a *App) newService(sched *scheduler.Scheduler, source venue.QuoteSource, states statestore.Store, pg *statestore.PostgresStore) *service.Service {
	finder := a.newFinder(source)
	refiner := route.NewRefiner(finder, route.RefinerOptions{}, a.Logger)

	opts := service.Options{
		Scheduler: sched,
		Finder:    finder,
		Refiner:   refiner,
		Gate:      a.newGate(),
		States:    states,
		Notifier:  a.newNotifier(),
	}
	if pg != nil {
		opts.Samples = pg
		opts.Audit = pg
		opts.Locker = pg
	}
	return service.New(a.Config, opts, a.Logger)
}

// Run executes the long-running watching service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	states, pg, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if closeStore != nil {
		defer closeStore()
	}
	if pg == nil {
		a.Logger.Info().Str("path", a.Config.State.Path).Msg("using file state store; sample history disabled")
	}

	sched := scheduler.New(scheduler.Options{
		Interval:      a.Config.Scheduler.Interval,
		AlignToBucket: a.Config.Scheduler.AlignToBucket,
		StartupDelay:  a.Config.Scheduler.StartupDelay,
	}, a.Logger)

	svc := a.newService(sched, a.newQuoteSource(), states, pg)

	a.Logger.Info().Msg("starting watching service")
	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("watching service stopped")
	return nil
}

// ScanOptions configure a single one-shot pass.
type ScanOptions struct {
	Demo  bool
	RunID string
}

// ExportOptions hold parameters for exporting historical samples.
type ExportOptions struct {
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit  int
	Alerts bool
}
