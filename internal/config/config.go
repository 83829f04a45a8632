package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"spotplot/internal/logging"
	"spotplot/internal/pricing"
)

// Config materialises application configuration.
type Config struct {
	Spot      SpotConfig      `mapstructure:"spot"`
	Plot      PlotConfig      `mapstructure:"plot"`
	Logging   logging.Config  `mapstructure:"logging"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
}

// SpotConfig selects which spot market history is fetched and how it is clipped.
type SpotConfig struct {
	Region             string        `mapstructure:"region"`
	InstanceType       string        `mapstructure:"instance_type"`
	HistoryLengthDays  int           `mapstructure:"history_length_days"`
	AvailabilityZone   string        `mapstructure:"availability_zone"`
	OutliersMultiplier float64       `mapstructure:"outliers_multiplier"`
	ProductDescription string        `mapstructure:"product_description"`
	MaxResults         int32         `mapstructure:"max_results"`
	MaxPages           int           `mapstructure:"max_pages"`
	RequestTimeout     time.Duration `mapstructure:"request_timeout"`
}

// PlotConfig controls the rendered chart.
type PlotConfig struct {
	ImageName  string `mapstructure:"image_name"`
	Width      int    `mapstructure:"width"`
	Height     int    `mapstructure:"height"`
	TimeFormat string `mapstructure:"time_format"`
	ShowMean   bool   `mapstructure:"show_mean"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity for the price archive.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// SchedulerConfig governs the watch cadence.
type SchedulerConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	AlignToBucket   bool          `mapstructure:"align_to_bucket"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
}

// AlertingConfig routes run reports.
type AlertingConfig struct {
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig describes the Telegram report channel.
type TelegramConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	BotToken string        `mapstructure:"bot_token"`
	ChatID   string        `mapstructure:"chat_id"`
	APIBase  string        `mapstructure:"api_base"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SPOTPLOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("spotplot")
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
	v.SetDefault("spot.region", "us-west-1")
	v.SetDefault("spot.instance_type", "c3.xlarge")
	v.SetDefault("spot.history_length_days", 7)
	v.SetDefault("spot.availability_zone", "")
	v.SetDefault("spot.outliers_multiplier", 20.0)
	v.SetDefault("spot.product_description", "Linux/UNIX")
	v.SetDefault("spot.max_results", 1000)
	v.SetDefault("spot.max_pages", 1)
	v.SetDefault("spot.request_timeout", "0s")

	v.SetDefault("plot.image_name", "plot.png")
	v.SetDefault("plot.width", 1850)
	v.SetDefault("plot.height", 1050)
	v.SetDefault("plot.time_format", "2006-01-02 15:04")
	v.SetDefault("plot.show_mean", true)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("scheduler.interval", "1h")
	v.SetDefault("scheduler.align_to_bucket", true)
	v.SetDefault("scheduler.advisory_lock_key", int64(0x73706f74))
	v.SetDefault("scheduler.startup_delay", "0s")

	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")
	v.SetDefault("alerting.telegram.timeout", "10s")

	v.SetDefault("database.max_open_conns", 4)
	v.SetDefault("database.max_idle_conns", 1)
	v.SetDefault("database.conn_max_lifetime", "30m")
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
	if strings.TrimSpace(c.Spot.Region) == "" {
		return fmt.Errorf("spot.region is required")
	}
	if strings.TrimSpace(c.Spot.InstanceType) == "" {
		return fmt.Errorf("spot.instance_type is required")
	}
	if c.Spot.HistoryLengthDays <= 0 {
		return fmt.Errorf("spot.history_length_days must be greater than zero")
	}
	if c.Spot.OutliersMultiplier <= 0 {
		return fmt.Errorf("spot.outliers_multiplier must be greater than zero")
	}
	if c.Spot.MaxResults < 5 || c.Spot.MaxResults > 1000 {
		return fmt.Errorf("spot.max_results must be between 5 and 1000")
	}
	if c.Spot.MaxPages < 0 {
		return fmt.Errorf("spot.max_pages cannot be negative")
	}
	if strings.TrimSpace(c.Plot.ImageName) == "" {
		return fmt.Errorf("plot.image_name is required")
	}
	if c.Plot.Width <= 0 || c.Plot.Height <= 0 {
		return fmt.Errorf("plot.width and plot.height must be greater than zero")
	}
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token is required when telegram is enabled")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id is required when telegram is enabled")
		}
	}
	return nil
}

// FilterParameters returns the processor view of the spot settings.
func (c *Config) FilterParameters() pricing.FilterParameters {
	return pricing.FilterParameters{
		OutlierMultiplier: decimal.NewFromFloat(c.Spot.OutliersMultiplier),
		DaysLookback:      c.Spot.HistoryLengthDays,
		InstanceType:      c.Spot.InstanceType,
		TargetZone:        strings.TrimSpace(c.Spot.AvailabilityZone),
	}
}

