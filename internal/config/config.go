package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-viper/mapstructure/v2"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"arb-route-alerts/internal/logging"
	"arb-route-alerts/internal/venue"
)

// Config materialises application configuration.
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Logging    logging.Config   `mapstructure:"logging"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	Scopes     []ScopeConfig    `mapstructure:"scopes"`
	TradeSizes []float64        `mapstructure:"trade_sizes"`
	Thresholds ThresholdsConfig `mapstructure:"thresholds"`
	Slippage   SlippageConfig   `mapstructure:"slippage"`
	Venues     VenuesConfig     `mapstructure:"venues"`
	Alerting   AlertingConfig   `mapstructure:"alerting"`
	State      StateConfig      `mapstructure:"state"`
	Export     ExportConfig     `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// SchedulerConfig governs tick cadence.
type SchedulerConfig struct {
	Interval      time.Duration `mapstructure:"interval"`
	AlignToBucket bool          `mapstructure:"align_to_bucket"`
	StartupDelay  time.Duration `mapstructure:"startup_delay"`
}

// ScopeConfig describes one chain scope: its RPC access, reference
// currency, watched assets, and venue list. Venue order is significant; it
// fixes the route search's tie-break.
type ScopeConfig struct {
	Name      string        `mapstructure:"name"`
	ChainID   int64         `mapstructure:"chain_id"`
	RPCURL    string        `mapstructure:"rpc_url"`
	Reference TokenConfig   `mapstructure:"reference"`
	Assets    []TokenConfig `mapstructure:"assets"`
	Venues    []VenueConfig `mapstructure:"venues"`
}

// TokenConfig identifies one ERC-20 token.
type TokenConfig struct {
	Symbol   string `mapstructure:"symbol"`
	Address  string `mapstructure:"address"`
	Decimals int32  `mapstructure:"decimals"`
}

// VenueConfig describes one venue instance.
type VenueConfig struct {
	ID       string  `mapstructure:"id"`
	Kind     string  `mapstructure:"kind"`
	Contract string  `mapstructure:"contract"`
	Endpoint string  `mapstructure:"endpoint"`
	GasCost  float64 `mapstructure:"gas_cost"` // reference units per leg
}

// ThresholdsConfig tunes the anti-spam gate.
type ThresholdsConfig struct {
	MinProfitPct          float64       `mapstructure:"min_profit_pct"`
	ProfitStepPct         float64       `mapstructure:"profit_step_pct"`
	Cooldown              time.Duration `mapstructure:"cooldown"`
	BigJumpBypassPct      float64       `mapstructure:"big_jump_bypass_pct"`
	MinIntervalBetweenAny time.Duration `mapstructure:"min_interval_between_any"`
}

// SlippageConfig sets the cost model haircuts.
type SlippageConfig struct {
	BuyPct  float64 `mapstructure:"buy_pct"`
	SellPct float64 `mapstructure:"sell_pct"`
	// AggregatorExtra applies the haircut to aggregator quotes on top of
	// what the aggregator models internally.
	AggregatorExtra bool `mapstructure:"aggregator_extra"`
}

// VenuesConfig governs venue backends.
type VenuesConfig struct {
	IncludeAggregators      bool          `mapstructure:"include_aggregators"`
	RequestTimeout          time.Duration `mapstructure:"request_timeout"`
	AggregatorSlippageLimit float64       `mapstructure:"aggregator_slippage_limit"`
	UserAgent               string        `mapstructure:"user_agent"`
}

// AlertingConfig defines alert routing.
type AlertingConfig struct {
	Enabled       bool           `mapstructure:"enabled"`
	DefaultWindow time.Duration  `mapstructure:"default_window"`
	Telegram      TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig 描述 Telegram 告警参数。
type TelegramConfig struct {
	Enabled  bool     `mapstructure:"enabled"`
	BotToken string   `mapstructure:"bot_token"`
	ChatIDs  []string `mapstructure:"chat_ids"`
	APIBase  string   `mapstructure:"api_base"`
}

// StateConfig selects the state backend: a JSON file path, or a Postgres
// DSN (which also enables the sample/alert audit trail).
type StateConfig struct {
	Path            string        `mapstructure:"path"`
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ARBWATCHER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "arbwatcher")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("scheduler.interval", "3m")
	v.SetDefault("scheduler.align_to_bucket", true)
	v.SetDefault("scheduler.startup_delay", "0s")

	v.SetDefault("trade_sizes", []float64{100, 250, 500})

	v.SetDefault("thresholds.min_profit_pct", 1.0)
	v.SetDefault("thresholds.profit_step_pct", 0.25)
	v.SetDefault("thresholds.cooldown", "600s")
	v.SetDefault("thresholds.big_jump_bypass_pct", 1.0)
	v.SetDefault("thresholds.min_interval_between_any", "60s")

	v.SetDefault("slippage.buy_pct", 0.3)
	v.SetDefault("slippage.sell_pct", 0.3)
	v.SetDefault("slippage.aggregator_extra", false)

	v.SetDefault("venues.include_aggregators", true)
	v.SetDefault("venues.request_timeout", "15s")
	v.SetDefault("venues.aggregator_slippage_limit", 0.3)
	v.SetDefault("venues.user_agent", "arbwatcher/1.0")

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.default_window", "60s")
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("state.path", "state.json")
	v.SetDefault("state.max_open_conns", 10)
	v.SetDefault("state.max_idle_conns", 5)
	v.SetDefault("state.conn_max_lifetime", "30m")
	v.SetDefault("state.advisory_lock_key", int64(0x61726277))

	v.SetDefault("export.max_data_points", 100000)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if len(c.TradeSizes) == 0 {
		return fmt.Errorf("trade_sizes must not be empty")
	}
	for _, size := range c.TradeSizes {
		if size <= 0 {
			return fmt.Errorf("trade_sizes entries must be greater than zero")
		}
	}
	if c.Thresholds.MinProfitPct < 0 {
		return fmt.Errorf("thresholds.min_profit_pct cannot be negative")
	}
	if c.Thresholds.ProfitStepPct < 0 {
		return fmt.Errorf("thresholds.profit_step_pct cannot be negative")
	}
	if c.Slippage.BuyPct < 0 || c.Slippage.SellPct < 0 {
		return fmt.Errorf("slippage percentages cannot be negative")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}

	for _, scope := range c.Scopes {
		if err := scope.validate(); err != nil {
			return err
		}
	}

	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token 必须配置")
		}
		if len(c.Alerting.Telegram.ChatIDs) == 0 {
			return fmt.Errorf("alerting.telegram.chat_ids 必须配置")
		}
	}
	return nil
}

func (s ScopeConfig) validate() error {
	if s.Name == "" {
		return fmt.Errorf("scope name must not be empty")
	}
	if s.ChainID <= 0 {
		return fmt.Errorf("scope %s: chain_id must be positive", s.Name)
	}
	if s.Reference.Address == "" {
		return fmt.Errorf("scope %s: reference token address required", s.Name)
	}
	if len(s.Assets) == 0 {
		return fmt.Errorf("scope %s: at least one asset required", s.Name)
	}
	if len(s.Venues) < 2 {
		return fmt.Errorf("scope %s: at least two venues required for a round trip", s.Name)
	}
	for _, vc := range s.Venues {
		switch venue.Kind(vc.Kind) {
		case venue.KindConstantProduct, venue.KindConcentratedLiquidity:
			if vc.Contract == "" {
				return fmt.Errorf("scope %s venue %s: contract address required", s.Name, vc.ID)
			}
		case venue.KindAggregator:
			if vc.Endpoint == "" {
				return fmt.Errorf("scope %s venue %s: endpoint required", s.Name, vc.ID)
			}
		default:
			return fmt.Errorf("scope %s venue %s: unknown kind %q", s.Name, vc.ID, vc.Kind)
		}
	}
	return nil
}

// Token converts a token config into the venue model.
func (t TokenConfig) Token() venue.Token {
	return venue.Token{
		Symbol:   t.Symbol,
		Address:  common.HexToAddress(t.Address),
		Decimals: t.Decimals,
	}
}

// VenueList materialises the scope's venues, optionally excluding
// aggregator-style entries.
func (s ScopeConfig) VenueList(includeAggregators bool) []venue.Venue {
	venues := make([]venue.Venue, 0, len(s.Venues))
	for _, vc := range s.Venues {
		kind := venue.Kind(vc.Kind)
		if kind == venue.KindAggregator && !includeAggregators {
			continue
		}
		venues = append(venues, venue.Venue{
			ID:       vc.ID,
			Kind:     kind,
			ChainID:  s.ChainID,
			Contract: common.HexToAddress(vc.Contract),
			Endpoint: vc.Endpoint,
			GasCost:  decimal.NewFromFloat(vc.GasCost),
		})
	}
	return venues
}

// RPCURLs maps chain ids to their configured RPC endpoints.
func (c *Config) RPCURLs() map[int64]string {
	urls := make(map[int64]string, len(c.Scopes))
	for _, scope := range c.Scopes {
		if scope.RPCURL != "" {
			urls[scope.ChainID] = scope.RPCURL
		}
	}
	return urls
}

// SizesAsDecimals converts the configured trade sizes.
func (c *Config) SizesAsDecimals() []decimal.Decimal {
	sizes := make([]decimal.Decimal, 0, len(c.TradeSizes))
	for _, size := range c.TradeSizes {
		sizes = append(sizes, decimal.NewFromFloat(size))
	}
	return sizes
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
