package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the full runtime configuration.
type Config struct {
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Market    MarketConfig    `yaml:"market"`
	Agents    AgentsConfig    `yaml:"agents"`
	HTTP      HTTPConfig      `yaml:"http"`
	Storage   StorageConfig   `yaml:"storage"`
	Log       LogConfig       `yaml:"log"`
}

// SchedulerConfig controls the two clocks.
type SchedulerConfig struct {
	MarkToMarketSeconds int `yaml:"mark_to_market_seconds"`
	DecisionPollSeconds int `yaml:"decision_poll_seconds"`
	MaxConcurrentAgents int `yaml:"max_concurrent_agents"`
}

// MarketConfig holds the market-data source and the tradable universe.
type MarketConfig struct {
	BinanceBase string   `yaml:"binance_base"`
	Universe    []string `yaml:"universe"`
}

// AgentsConfig carries the provider API keys. These come from the
// environment (.env in development), never from the YAML file.
type AgentsConfig struct {
	AnthropicAPIKey string `yaml:"-"`
	OpenAIAPIKey    string `yaml:"-"`
	DeepSeekAPIKey  string `yaml:"-"`
	QwenAPIKey      string `yaml:"-"`
}

// HTTPConfig controls the HTTP surface. An empty AdminKey disables the
// admin endpoints.
type HTTPConfig struct {
	Listen   string `yaml:"listen"`
	AdminKey string `yaml:"-"` // ADMIN_API_KEY
}

// StorageConfig controls where data is persisted.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // SQLite file path, or ":memory:"
}

// LogConfig controls the log format and level.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load reads the YAML file and the .env file if present. Environment
// variables override YAML for the keys that map to them.
func Load(path string) (*Config, error) {
	// Load .env if present; missing file is fine.
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	return &cfg, nil
}

// MarkToMarketInterval is the revaluation sweep cadence.
func (c *Config) MarkToMarketInterval() time.Duration {
	return time.Duration(c.Scheduler.MarkToMarketSeconds) * time.Second
}

// DecisionPollInterval is how often due decision rounds are checked for.
func (c *Config) DecisionPollInterval() time.Duration {
	return time.Duration(c.Scheduler.DecisionPollSeconds) * time.Second
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("GAUNTLET_DB"); v != "" {
		cfg.Storage.DSN = v
	}
	if v := os.Getenv("GAUNTLET_LISTEN"); v != "" {
		cfg.HTTP.Listen = v
	}
	cfg.HTTP.AdminKey = os.Getenv("ADMIN_API_KEY")
	cfg.Agents.AnthropicAPIKey = os.Getenv("ANTHROPIC_API_KEY")
	cfg.Agents.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	cfg.Agents.DeepSeekAPIKey = os.Getenv("DEEPSEEK_API_KEY")
	cfg.Agents.QwenAPIKey = os.Getenv("QWEN_API_KEY")
}

func setDefaults(cfg *Config) {
	if cfg.Scheduler.MarkToMarketSeconds <= 0 {
		cfg.Scheduler.MarkToMarketSeconds = 60
	}
	if cfg.Scheduler.DecisionPollSeconds <= 0 {
		cfg.Scheduler.DecisionPollSeconds = 30
	}
	if cfg.Scheduler.MaxConcurrentAgents <= 0 {
		cfg.Scheduler.MaxConcurrentAgents = 4
	}
	if cfg.Market.BinanceBase == "" {
		cfg.Market.BinanceBase = "https://api.binance.com"
	}
	if len(cfg.Market.Universe) == 0 {
		cfg.Market.Universe = []string{"BTCUSDT", "ETHUSDT", "BNBUSDT", "SOLUSDT"}
	}
	if cfg.HTTP.Listen == "" {
		cfg.HTTP.Listen = ":8080"
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "gauntlet.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}
