package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Broker   BrokerConfig   `yaml:"broker"`
	Trading  TradingConfig  `yaml:"trading"`
	Telegram TelegramConfig `yaml:"telegram"`
	Web      WebConfig      `yaml:"web"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type BrokerConfig struct {
	MinIntervalMs  int    `yaml:"min_interval_ms"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	Exchange       string `yaml:"exchange"`
}

type TradingConfig struct {
	ConfidenceFloor   float64 `yaml:"confidence_floor"`
	DedupWindow       string  `yaml:"dedup_window"`
	UserConcurrency   int     `yaml:"user_concurrency"`
	RunSchedule       string  `yaml:"run_schedule"`
	ResolverSchedule  string  `yaml:"resolver_schedule"`
	StaleOrderTimeout string  `yaml:"stale_order_timeout"`
	SeedCash          float64 `yaml:"seed_cash"`
}

type TelegramConfig struct {
	Enabled  bool   `yaml:"enabled"`
	BotToken string `yaml:"bot_token"`
	ChatID   int64  `yaml:"chat_id"`
}

type WebConfig struct {
	Port int `yaml:"port"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	setDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

func setDefaults(cfg *Config) {
	if cfg.Database.Path == "" {
		cfg.Database.Path = "data/autotrader.db"
	}
	if cfg.Broker.MinIntervalMs == 0 {
		cfg.Broker.MinIntervalMs = 500
	}
	if cfg.Broker.TimeoutSeconds == 0 {
		cfg.Broker.TimeoutSeconds = 30
	}
	if cfg.Broker.Exchange == "" {
		cfg.Broker.Exchange = "NASD"
	}
	if cfg.Trading.ConfidenceFloor == 0 {
		cfg.Trading.ConfidenceFloor = 0.70
	}
	if cfg.Trading.DedupWindow == "" {
		cfg.Trading.DedupWindow = "24h"
	}
	if cfg.Trading.UserConcurrency == 0 {
		cfg.Trading.UserConcurrency = 4
	}
	if cfg.Trading.RunSchedule == "" {
		cfg.Trading.RunSchedule = "0 0 10 * * MON-FRI"
	}
	if cfg.Trading.ResolverSchedule == "" {
		cfg.Trading.ResolverSchedule = "0 */5 * * * *"
	}
	if cfg.Trading.StaleOrderTimeout == "" {
		cfg.Trading.StaleOrderTimeout = "24h"
	}
	if cfg.Trading.SeedCash == 0 {
		cfg.Trading.SeedCash = 1000000
	}
	if cfg.Web.Port == 0 {
		cfg.Web.Port = 8080
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

func (c *Config) Validate() error {
	if c.Trading.ConfidenceFloor < 0 || c.Trading.ConfidenceFloor > 1 {
		return fmt.Errorf("trading.confidence_floor must be within [0,1], got %v", c.Trading.ConfidenceFloor)
	}
	if _, err := time.ParseDuration(c.Trading.DedupWindow); err != nil {
		return fmt.Errorf("invalid trading.dedup_window %q: %w", c.Trading.DedupWindow, err)
	}
	if _, err := time.ParseDuration(c.Trading.StaleOrderTimeout); err != nil {
		return fmt.Errorf("invalid trading.stale_order_timeout %q: %w", c.Trading.StaleOrderTimeout, err)
	}
	if c.Trading.UserConcurrency < 1 {
		return fmt.Errorf("trading.user_concurrency must be at least 1")
	}
	if c.Broker.MinIntervalMs < 0 {
		return fmt.Errorf("broker.min_interval_ms must not be negative")
	}
	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == 0 {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
	}
	return nil
}

// MarketLocation returns the exchange timezone used for the trading-hours guard.
func (c *Config) MarketLocation() *time.Location {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		loc = time.FixedZone("EST", -5*60*60)
	}
	return loc
}

func (c *Config) MinBrokerInterval() time.Duration {
	return time.Duration(c.Broker.MinIntervalMs) * time.Millisecond
}

func (c *Config) BrokerTimeout() time.Duration {
	return time.Duration(c.Broker.TimeoutSeconds) * time.Second
}

func (c *Config) DedupWindowDuration() time.Duration {
	d, _ := time.ParseDuration(c.Trading.DedupWindow)
	return d
}

func (c *Config) StaleOrderTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.Trading.StaleOrderTimeout)
	return d
}
