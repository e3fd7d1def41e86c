// Package config loads and validates application configuration from a
// YAML file with environment variable overrides.
package config

import (
	"fmt"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/arlenko/marketsentry/internal/indicator"
	"github.com/arlenko/marketsentry/internal/ladder"
	"github.com/arlenko/marketsentry/internal/models"
	"github.com/arlenko/marketsentry/internal/notify"
	"github.com/arlenko/marketsentry/internal/regime"
	"github.com/arlenko/marketsentry/internal/signal"
)

// Config represents the complete application configuration
type Config struct {
	Market   MarketConfig   `mapstructure:"market"`
	Fractal  FractalConfig  `mapstructure:"fractal"`
	Regime   RegimeConfig   `mapstructure:"regime"`
	Signal   SignalConfig   `mapstructure:"signal"`
	Ladder   LadderConfig   `mapstructure:"ladder"`
	Schedule ScheduleConfig `mapstructure:"schedule"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Email    EmailConfig    `mapstructure:"email"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// MarketConfig holds market data fetch configuration
type MarketConfig struct {
	Symbol         string        `mapstructure:"symbol"`
	VolSymbol      string        `mapstructure:"vol_symbol"`
	LookbackDays   int           `mapstructure:"lookback_days"`
	MinPoints      int           `mapstructure:"min_points"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
	Timeout        time.Duration `mapstructure:"timeout"`
}

// FractalConfig holds R/S analysis configuration
type FractalConfig struct {
	MaxLag    int `mapstructure:"max_lag"`
	MinPoints int `mapstructure:"min_points"`
}

// RegimeConfig holds HMM regime classifier configuration
type RegimeConfig struct {
	States          int     `mapstructure:"states"`
	Seed            int64   `mapstructure:"seed"`
	MaxIterations   int     `mapstructure:"max_iterations"`
	MinObservations int     `mapstructure:"min_observations"`
	Tolerance       float64 `mapstructure:"tolerance"`
}

// DirectionConfig holds threshold cutoffs for one signal direction.
// A zero cutoff disables that condition; an empty regime means no
// regime requirement.
type DirectionConfig struct {
	FractalMax float64 `mapstructure:"fractal_max"` // 0 = no filter
	FractalMin float64 `mapstructure:"fractal_min"` // 0 = no filter
	PutCallMin float64 `mapstructure:"put_call_min"` // 0 = no filter
	PutCallMax float64 `mapstructure:"put_call_max"` // 0 = no filter
	VIXMin     float64 `mapstructure:"vix_min"`      // 0 = no filter
	VIXMax     float64 `mapstructure:"vix_max"`      // 0 = no filter
	Regime     string  `mapstructure:"regime"`       // "" = no filter
}

// SignalConfig holds signal policy configuration
type SignalConfig struct {
	Long            DirectionConfig `mapstructure:"long"`
	Short           DirectionConfig `mapstructure:"short"`
	StopLossPct     float64         `mapstructure:"stop_loss_pct"`
	TargetPct       float64         `mapstructure:"target_pct"`
	PositionSizePct float64         `mapstructure:"position_size_pct"`
	LongSymbol      string          `mapstructure:"long_symbol"`
	ShortSymbol     string          `mapstructure:"short_symbol"`
}

// LadderConfig holds dip-buying ladder configuration
type LadderConfig struct {
	BaseUnit    float64 `mapstructure:"base_unit"`
	AnnualCap   float64 `mapstructure:"annual_cap"`
	DrawdownPct float64 `mapstructure:"drawdown_pct"`
	ResetPct    float64 `mapstructure:"reset_pct"`
}

// ScheduleConfig holds daemon cron schedules
type ScheduleConfig struct {
	SignalCron string `mapstructure:"signal_cron"`
	DipCron    string `mapstructure:"dip_cron"`
}

// StorageConfig holds storage and persistence configuration
type StorageConfig struct {
	MaxHistory int    `mapstructure:"max_history"`
	DBPath     string `mapstructure:"db_path"`
}

// TelegramConfig holds Telegram notification configuration
type TelegramConfig struct {
	BotToken       string        `mapstructure:"bot_token"`
	ChatID         string        `mapstructure:"chat_id"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
	Enabled        bool          `mapstructure:"enabled"`
}

// EmailConfig holds SMTP notification configuration
type EmailConfig struct {
	Host     string   `mapstructure:"host"`
	Port     int      `mapstructure:"port"`
	Username string   `mapstructure:"username"`
	Password string   `mapstructure:"password"`
	From     string   `mapstructure:"from"`
	To       []string `mapstructure:"to"`
	UseTLS   bool     `mapstructure:"use_tls"`
	Enabled  bool     `mapstructure:"enabled"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables.
// An empty path uses defaults and environment overrides only.
func Load(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("MARKETSENTRY")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Unknown keys are rejected so a typoed cutoff cannot silently
	// disable a filter.
	var cfg Config
	strict := func(dc *mapstructure.DecoderConfig) { dc.ErrorUnused = true }
	if err := v.Unmarshal(&cfg, strict); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	// Market defaults
	v.SetDefault("market.symbol", "SPY")
	v.SetDefault("market.vol_symbol", "^VIX")
	v.SetDefault("market.lookback_days", 120)
	v.SetDefault("market.min_points", 60)
	v.SetDefault("market.max_retries", 3)
	v.SetDefault("market.retry_delay_base", "2s")
	v.SetDefault("market.timeout", "30s")

	// Fractal defaults
	v.SetDefault("fractal.max_lag", 20)
	v.SetDefault("fractal.min_points", 60)

	// Regime defaults
	v.SetDefault("regime.states", 4)
	v.SetDefault("regime.seed", 42)
	v.SetDefault("regime.max_iterations", 100)
	v.SetDefault("regime.min_observations", 30)
	v.SetDefault("regime.tolerance", 1e-4)

	// Signal defaults
	v.SetDefault("signal.short.fractal_max", 1.15)
	v.SetDefault("signal.short.put_call_min", 1.2)
	v.SetDefault("signal.short.vix_min", 30.0)
	v.SetDefault("signal.short.regime", "Crisis")
	v.SetDefault("signal.long.fractal_max", 1.45)
	v.SetDefault("signal.long.put_call_max", 0.8)
	v.SetDefault("signal.long.vix_max", 20.0)
	v.SetDefault("signal.long.regime", "Bull")
	v.SetDefault("signal.stop_loss_pct", 0.015)
	v.SetDefault("signal.target_pct", 0.04)
	v.SetDefault("signal.position_size_pct", 2.0)
	v.SetDefault("signal.long_symbol", "SPXL")
	v.SetDefault("signal.short_symbol", "SPXS")

	// Ladder defaults
	v.SetDefault("ladder.base_unit", 10000.0)
	v.SetDefault("ladder.annual_cap", 300000.0)
	v.SetDefault("ladder.drawdown_pct", 0.05)
	v.SetDefault("ladder.reset_pct", 0.05)

	// Schedule defaults: after US market close, weekdays
	v.SetDefault("schedule.signal_cron", "30 16 * * 1-5")
	v.SetDefault("schedule.dip_cron", "35 16 * * 1-5")

	// Storage defaults
	v.SetDefault("storage.max_history", 1000)
	v.SetDefault("storage.db_path", "")

	// Telegram defaults
	v.SetDefault("telegram.max_retries", 3)
	v.SetDefault("telegram.retry_delay_base", "1s")
	v.SetDefault("telegram.enabled", false)

	// Email defaults
	v.SetDefault("email.port", 587)
	v.SetDefault("email.enabled", false)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	// Validate Market config
	if c.Market.Symbol == "" {
		return fmt.Errorf("market.symbol is required")
	}
	if c.Market.VolSymbol == "" {
		return fmt.Errorf("market.vol_symbol is required")
	}
	if c.Market.LookbackDays < c.Market.MinPoints {
		return fmt.Errorf("market.lookback_days must be at least market.min_points")
	}
	if c.Market.MinPoints < 2 {
		return fmt.Errorf("market.min_points must be at least 2")
	}

	// Validate Fractal config
	if c.Fractal.MaxLag < 3 {
		return fmt.Errorf("fractal.max_lag must be at least 3")
	}
	if c.Fractal.MinPoints < 2*c.Fractal.MaxLag {
		return fmt.Errorf("fractal.min_points must be at least twice fractal.max_lag")
	}

	// Validate Regime config
	if c.Regime.States < 2 {
		return fmt.Errorf("regime.states must be at least 2")
	}
	if c.Regime.MaxIterations < 1 {
		return fmt.Errorf("regime.max_iterations must be at least 1")
	}
	if c.Regime.MinObservations < c.Regime.States {
		return fmt.Errorf("regime.min_observations must be at least regime.states")
	}
	if c.Regime.Tolerance <= 0 {
		return fmt.Errorf("regime.tolerance must be positive")
	}

	// Validate Signal config
	for _, dir := range []struct {
		name string
		cfg  DirectionConfig
	}{{"signal.long", c.Signal.Long}, {"signal.short", c.Signal.Short}} {
		if dir.cfg.FractalMax < 0 || dir.cfg.FractalMin < 0 ||
			dir.cfg.PutCallMin < 0 || dir.cfg.PutCallMax < 0 ||
			dir.cfg.VIXMin < 0 || dir.cfg.VIXMax < 0 {
			return fmt.Errorf("%s cutoffs must not be negative", dir.name)
		}
		if dir.cfg.Regime != "" {
			if _, err := models.ParseRegimeLabel(dir.cfg.Regime); err != nil {
				return fmt.Errorf("%s.regime: %w", dir.name, err)
			}
		}
	}
	if c.Signal.StopLossPct <= 0 || c.Signal.StopLossPct >= 1 {
		return fmt.Errorf("signal.stop_loss_pct must be between 0 and 1")
	}
	if c.Signal.TargetPct <= 0 || c.Signal.TargetPct >= 1 {
		return fmt.Errorf("signal.target_pct must be between 0 and 1")
	}
	if c.Signal.PositionSizePct <= 0 || c.Signal.PositionSizePct > 100 {
		return fmt.Errorf("signal.position_size_pct must be between 0 and 100")
	}
	if c.Signal.LongSymbol == "" || c.Signal.ShortSymbol == "" {
		return fmt.Errorf("signal.long_symbol and signal.short_symbol are required")
	}

	// Validate Ladder config
	if c.Ladder.BaseUnit <= 0 {
		return fmt.Errorf("ladder.base_unit must be positive")
	}
	if c.Ladder.AnnualCap < c.Ladder.BaseUnit {
		return fmt.Errorf("ladder.annual_cap must be at least ladder.base_unit")
	}
	if c.Ladder.DrawdownPct <= 0 || c.Ladder.DrawdownPct >= 1 {
		return fmt.Errorf("ladder.drawdown_pct must be between 0 and 1")
	}
	if c.Ladder.ResetPct <= 0 || c.Ladder.ResetPct >= 1 {
		return fmt.Errorf("ladder.reset_pct must be between 0 and 1")
	}

	// Validate Schedule config
	if c.Schedule.SignalCron == "" || c.Schedule.DipCron == "" {
		return fmt.Errorf("schedule.signal_cron and schedule.dip_cron are required")
	}

	// Validate Storage config
	if c.Storage.MaxHistory < 1 {
		return fmt.Errorf("storage.max_history must be at least 1")
	}

	// Validate Telegram config
	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
	}

	// Validate Email config
	if c.Email.Enabled {
		if c.Email.Host == "" {
			return fmt.Errorf("email.host is required when email is enabled")
		}
		if c.Email.From == "" {
			return fmt.Errorf("email.from is required when email is enabled")
		}
		if len(c.Email.To) == 0 {
			return fmt.Errorf("email.to must contain at least one recipient when email is enabled")
		}
	}

	// Validate Logging config
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, console")
	}

	return nil
}

// SignalPolicy converts the signal section into an evaluation policy.
// Zero cutoffs become nil (disabled) conditions.
func (c *Config) SignalPolicy() signal.Policy {
	return signal.Policy{
		Long:            directionPolicy(c.Signal.Long),
		Short:           directionPolicy(c.Signal.Short),
		StopLossPct:     c.Signal.StopLossPct,
		TargetPct:       c.Signal.TargetPct,
		PositionSizePct: c.Signal.PositionSizePct,
		LongSymbol:      c.Signal.LongSymbol,
		ShortSymbol:     c.Signal.ShortSymbol,
	}
}

func directionPolicy(dc DirectionConfig) signal.DirectionPolicy {
	p := signal.DirectionPolicy{
		FractalMax: optional(dc.FractalMax),
		FractalMin: optional(dc.FractalMin),
		PutCallMin: optional(dc.PutCallMin),
		PutCallMax: optional(dc.PutCallMax),
		VIXMin:     optional(dc.VIXMin),
		VIXMax:     optional(dc.VIXMax),
	}
	if dc.Regime != "" {
		// Validate() already checked the label parses.
		label, _ := models.ParseRegimeLabel(dc.Regime)
		p.RequiredRegime = label
		p.UseRegime = true
	}
	return p
}

func optional(v float64) *float64 {
	if v == 0 {
		return nil
	}
	return &v
}

// FractalConfig converts the fractal section for the indicator package.
func (c *Config) FractalConfig() indicator.FractalConfig {
	return indicator.FractalConfig{
		MaxLag:    c.Fractal.MaxLag,
		MinPoints: c.Fractal.MinPoints,
	}
}

// RegimeConfig converts the regime section for the classifier.
func (c *Config) RegimeConfig() regime.Config {
	return regime.Config{
		States:          c.Regime.States,
		Seed:            c.Regime.Seed,
		MaxIterations:   c.Regime.MaxIterations,
		MinObservations: c.Regime.MinObservations,
		Tolerance:       c.Regime.Tolerance,
	}
}

// LadderConfig converts the ladder section for the tracker.
func (c *Config) LadderConfig() ladder.Config {
	return ladder.Config{
		BaseUnit:    c.Ladder.BaseUnit,
		AnnualCap:   c.Ladder.AnnualCap,
		DrawdownPct: c.Ladder.DrawdownPct,
		ResetPct:    c.Ladder.ResetPct,
	}
}

// EmailNotifyConfig converts the email section for the notifier.
func (c *Config) EmailNotifyConfig() notify.EmailConfig {
	return notify.EmailConfig{
		Host:     c.Email.Host,
		Port:     c.Email.Port,
		Username: c.Email.Username,
		Password: c.Email.Password,
		From:     c.Email.From,
		To:       c.Email.To,
		UseTLS:   c.Email.UseTLS,
	}
}
