// Package config loads and validates the engine configuration from file and
// environment, and resolves it into the domain configs the components take.
package config

import (
	"strings"

	"github.com/spf13/viper"
	"github.com/yanun0323/errors"

	"github.com/ghwfluffy/coinbase-tradebot/internal/market"
	"github.com/ghwfluffy/coinbase-tradebot/internal/model"
	"github.com/ghwfluffy/coinbase-tradebot/internal/ramp"
	"github.com/ghwfluffy/coinbase-tradebot/internal/storage"
	"github.com/ghwfluffy/coinbase-tradebot/internal/trader"
)

const microsPerSecond = int64(1_000_000)

// Config is the file shape. Money values are decimal USD strings; durations
// are seconds.
type Config struct {
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Profiling ProfilingConfig `mapstructure:"profiling"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Broker    BrokerConfig    `mapstructure:"broker"`
	Feed      FeedConfig      `mapstructure:"feed"`
	Traders   []TraderConfig  `mapstructure:"traders"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
}

type ProfilingConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	ServerAddress string `mapstructure:"server_address"`
	AppName       string `mapstructure:"app_name"`
}

type DatabaseConfig struct {
	// Driver is postgres or memory.
	Driver   string `mapstructure:"driver"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"ssl_mode"`
}

type BrokerConfig struct {
	// Funds seeds the paper ledger's USD balance.
	Funds    string `mapstructure:"funds"`
	MakerBps uint32 `mapstructure:"maker_bps"`
	TakerBps uint32 `mapstructure:"taker_bps"`
}

// FundsCents resolves the paper ledger seed.
func (b BrokerConfig) FundsCents() model.Cents {
	return model.ParseUSD(b.Funds)
}

type FeedConfig struct {
	URL                   string `mapstructure:"url"`
	ProductID             string `mapstructure:"product_id"`
	ReconnectDelaySeconds int    `mapstructure:"reconnect_delay_seconds"`
	WalletPollSeconds     int    `mapstructure:"wallet_poll_seconds"`
}

type TraderConfig struct {
	Name            string `mapstructure:"name"`
	Kind            string `mapstructure:"kind"`
	Enabled         bool   `mapstructure:"enabled"`
	Bet             string `mapstructure:"bet"`
	MaxValue        string `mapstructure:"max_value"`
	PatienceSeconds int64  `mapstructure:"patience_seconds"`

	// Spread trader.
	SpreadBps     uint32 `mapstructure:"spread_bps"`
	BufferPercent uint32 `mapstructure:"buffer_percent"`
	MaxPairs      int    `mapstructure:"max_pairs"`

	// Static trader.
	BuyPrice  string `mapstructure:"buy_price"`
	SellPrice string `mapstructure:"sell_price"`

	// Time window trader.
	WindowSeconds int64  `mapstructure:"window_seconds"`
	MinSpreadBps  uint32 `mapstructure:"min_spread_bps"`
	PaddingBps    uint32 `mapstructure:"padding_bps"`

	Markets []MarketConfig `mapstructure:"markets"`
}

type MarketConfig struct {
	// Calendar is stock or bitcoin.
	Calendar     string       `mapstructure:"calendar"`
	Open         PeriodConfig `mapstructure:"open"`
	Closing      PeriodConfig `mapstructure:"closing"`
	Closed       PeriodConfig `mapstructure:"closed"`
	Opening      PeriodConfig `mapstructure:"opening"`
	Weekending   PeriodConfig `mapstructure:"weekending"`
	Weekend      PeriodConfig `mapstructure:"weekend"`
	WeekStarting PeriodConfig `mapstructure:"week_starting"`
}

type PeriodConfig struct {
	Hot           bool   `mapstructure:"hot"`
	PauseSeconds  int64  `mapstructure:"pause_seconds"`
	RampSeconds   int64  `mapstructure:"ramp_seconds"`
	RampGradeBps  uint32 `mapstructure:"ramp_grade_bps"`
	AcceptLossBps uint32 `mapstructure:"accept_loss_bps"`
}

// Load reads the config file (when path is empty, the usual search paths),
// applies GTB_-prefixed environment overrides, and validates.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("tradebot")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/tradebot")
	}

	v.SetEnvPrefix("GTB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, errors.Wrap(err, "read config")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "unmarshal config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.listen", ":9223")

	v.SetDefault("profiling.enabled", false)
	v.SetDefault("profiling.app_name", "tradebot")

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "tradebot")
	v.SetDefault("database.ssl_mode", "disable")

	v.SetDefault("broker.funds", "10000")
	v.SetDefault("broker.maker_bps", 40)
	v.SetDefault("broker.taker_bps", 60)

	v.SetDefault("feed.url", "wss://ws-feed.exchange.coinbase.com")
	v.SetDefault("feed.product_id", "BTC-USD")
	v.SetDefault("feed.reconnect_delay_seconds", 5)
	v.SetDefault("feed.wallet_poll_seconds", 30)
}

// Validate checks the pieces that would otherwise fail at trading time.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "memory":
	default:
		return errors.Errorf("unknown database driver %q", c.Database.Driver)
	}
	if c.Broker.FundsCents() <= 0 {
		return errors.Errorf("broker funds %q unusable", c.Broker.Funds)
	}

	seen := make(map[string]bool, len(c.Traders))
	for i := range c.Traders {
		t := &c.Traders[i]
		if t.Name == "" {
			return errors.Errorf("trader %d missing name", i)
		}
		if seen[t.Name] {
			return errors.Errorf("duplicate trader name %q", t.Name)
		}
		seen[t.Name] = true

		if _, err := t.Resolve(); err != nil {
			return err
		}
	}
	return nil
}

// Postgres resolves the database section into connection options.
func (c *Config) Postgres() storage.PostgresConfig {
	return storage.PostgresConfig{
		Host:     c.Database.Host,
		Port:     c.Database.Port,
		User:     c.Database.User,
		Password: c.Database.Password,
		Database: c.Database.Name,
		SSLMode:  c.Database.SSLMode,
	}
}

// Resolved is one trader section converted to domain config. Exactly one of
// the strategy fields is set, matching Kind.
type Resolved struct {
	Kind       string
	Spread     trader.SpreadConfig
	Static     trader.StaticConfig
	TimeWindow trader.TimeWindowConfig
}

// Resolve converts the trader section into its strategy config.
func (t *TraderConfig) Resolve() (Resolved, error) {
	base, err := t.base()
	if err != nil {
		return Resolved{}, err
	}

	switch t.Kind {
	case "spread":
		if t.SpreadBps == 0 {
			return Resolved{}, errors.Errorf("trader %q needs spread_bps", t.Name)
		}
		return Resolved{Kind: t.Kind, Spread: trader.SpreadConfig{
			TraderConfig:  base,
			SpreadBps:     t.SpreadBps,
			BufferPercent: t.BufferPercent,
			MaxPairs:      t.MaxPairs,
		}}, nil
	case "static":
		buy := model.ParseUSD(t.BuyPrice)
		sell := model.ParseUSD(t.SellPrice)
		if buy <= 0 || sell < buy {
			return Resolved{}, errors.Errorf("trader %q needs buy_price <= sell_price", t.Name)
		}
		return Resolved{Kind: t.Kind, Static: trader.StaticConfig{
			TraderConfig: base,
			BuyPrice:     buy,
			SellPrice:    sell,
		}}, nil
	case "time":
		if t.WindowSeconds <= 0 {
			return Resolved{}, errors.Errorf("trader %q needs window_seconds", t.Name)
		}
		return Resolved{Kind: t.Kind, TimeWindow: trader.TimeWindowConfig{
			TraderConfig:  base,
			WindowSeconds: t.WindowSeconds,
			MinSpreadBps:  t.MinSpreadBps,
			PaddingBps:    t.PaddingBps,
			MaxPairs:      t.MaxPairs,
		}}, nil
	default:
		return Resolved{}, errors.Errorf("trader %q has unknown kind %q", t.Name, t.Kind)
	}
}

func (t *TraderConfig) base() (ramp.TraderConfig, error) {
	bet := model.ParseUSD(t.Bet)
	if bet <= 0 {
		return ramp.TraderConfig{}, errors.Errorf("trader %q has no usable bet %q", t.Name, t.Bet)
	}
	base := ramp.TraderConfig{
		Name:           t.Name,
		Enabled:        t.Enabled,
		BetCents:       bet,
		MaxValue:       model.ParseUSD(t.MaxValue),
		PatiencePeriod: t.PatienceSeconds * microsPerSecond,
	}
	for _, m := range t.Markets {
		cal, err := parseCalendar(m.Calendar)
		if err != nil {
			return ramp.TraderConfig{}, errors.Wrapf(err, "trader %q", t.Name)
		}
		base.Markets = append(base.Markets, ramp.MarketTimeConfig{
			Calendar:     cal,
			Open:         m.Open.resolve(),
			Closing:      m.Closing.resolve(),
			Closed:       m.Closed.resolve(),
			Opening:      m.Opening.resolve(),
			Weekending:   m.Weekending.resolve(),
			Weekend:      m.Weekend.resolve(),
			WeekStarting: m.WeekStarting.resolve(),
		})
	}
	return base, nil
}

func (p PeriodConfig) resolve() ramp.PeriodConfig {
	return ramp.PeriodConfig{
		Hot:             p.Hot,
		PausePeriod:     p.PauseSeconds * microsPerSecond,
		PauseAcceptLoss: p.AcceptLossBps,
		RampPeriod:      p.RampSeconds * microsPerSecond,
		RampGrade:       p.RampGradeBps,
	}
}

func parseCalendar(s string) (market.Calendar, error) {
	switch strings.ToLower(s) {
	case "stock":
		return market.CalendarStock, nil
	case "bitcoin", "bitcoin_futures":
		return market.CalendarBitcoinFutures, nil
	default:
		return market.CalendarNone, errors.Errorf("unknown calendar %q", s)
	}
}
