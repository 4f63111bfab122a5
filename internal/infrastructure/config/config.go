package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

type Config struct {
	App struct {
		Currency           string `toml:"currency"`
		RefreshIntervalSec int    `toml:"refresh_interval_sec"`
		LogLevel           string `toml:"log_level"`
		LogPretty          bool   `toml:"log_pretty"`
	} `toml:"app"`

	Storage struct {
		Driver      string `toml:"driver"` // sqlite | postgres | memory
		SQLitePath  string `toml:"sqlite_path"`
		PostgresDSN string `toml:"postgres_dsn"`
	} `toml:"storage"`

	Redis struct {
		Enabled  bool   `toml:"enabled"`
		Addr     string `toml:"addr"`
		Password string `toml:"password"`
		DB       int    `toml:"db"`
		Prefix   string `toml:"prefix"`
		TTLSec   int    `toml:"ttl_sec"`
		Stream   string `toml:"stream"`
		Channel  string `toml:"channel"`
	} `toml:"redis"`

	Quotes struct {
		Provider        string `toml:"provider"` // alpaca | demo
		APIKey          string `toml:"api_key"`
		APISecret       string `toml:"api_secret"`
		Feed            string `toml:"feed"`
		TimeoutSec      int    `toml:"timeout_sec"`
		StreamEnabled   bool   `toml:"stream_enabled"`
		StreamURL       string `toml:"stream_url"`
		StreamMaxAgeSec int    `toml:"stream_max_age_sec"`
	} `toml:"quotes"`

	Alerts struct {
		IntervalSec   int `toml:"interval_sec"`
		Parallel      int `toml:"parallel"`
		NotifyDelayMs int `toml:"notify_delay_ms"`
	} `toml:"alerts"`

	Kafka struct {
		Enabled bool     `toml:"enabled"`
		Brokers []string `toml:"brokers"`
		Topic   string   `toml:"topic"`
	} `toml:"kafka"`

	HTTP struct {
		Addr string `toml:"addr"`
	} `toml:"http"`
}

// 覆盖配置文件的环境变量，可以写在 .env 中
const (
	EnvAPIKey        = "APCA_API_KEY_ID"
	EnvAPISecret     = "APCA_API_SECRET_KEY"
	EnvRedisPassword = "FOLIO_REDIS_PASSWORD"
	EnvPostgresDSN   = "FOLIO_POSTGRES_DSN"
)

// Load 读取 .env 和 toml 配置。path 为空时只用默认值和环境变量
func Load(path string) (*Config, error) {
	// .env 可选
	_ = godotenv.Load()

	var cfg Config
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("config %s: %w", path, err)
		}
	}
	applyEnv(&cfg, os.Getenv)
	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *Config, getenv func(string) string) {
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	set(&cfg.Quotes.APIKey, EnvAPIKey)
	set(&cfg.Quotes.APISecret, EnvAPISecret)
	set(&cfg.Redis.Password, EnvRedisPassword)
	set(&cfg.Storage.PostgresDSN, EnvPostgresDSN)
}

func applyDefaults(cfg *Config) {
	if cfg.App.Currency == "" {
		cfg.App.Currency = "USD"
	}
	cfg.App.Currency = strings.ToUpper(strings.TrimSpace(cfg.App.Currency))
	if cfg.App.RefreshIntervalSec <= 0 {
		cfg.App.RefreshIntervalSec = 60
	}
	if cfg.App.LogLevel == "" {
		cfg.App.LogLevel = "info"
	}

	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "sqlite"
	}
	cfg.Storage.Driver = strings.ToLower(strings.TrimSpace(cfg.Storage.Driver))
	if cfg.Storage.SQLitePath == "" {
		cfg.Storage.SQLitePath = "data/folio.db"
	}

	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}
	if cfg.Redis.Prefix == "" {
		cfg.Redis.Prefix = "folio"
	}
	if cfg.Redis.TTLSec <= 0 {
		cfg.Redis.TTLSec = 24 * 3600
	}

	if cfg.Quotes.Provider == "" {
		cfg.Quotes.Provider = "alpaca"
	}
	cfg.Quotes.Provider = strings.ToLower(strings.TrimSpace(cfg.Quotes.Provider))
	if cfg.Quotes.Feed == "" {
		cfg.Quotes.Feed = "iex"
	}
	if cfg.Quotes.TimeoutSec <= 0 {
		cfg.Quotes.TimeoutSec = 10
	}
	if cfg.Quotes.StreamMaxAgeSec <= 0 {
		cfg.Quotes.StreamMaxAgeSec = 120
	}

	if cfg.Alerts.IntervalSec <= 0 {
		cfg.Alerts.IntervalSec = 60
	}
	if cfg.Alerts.Parallel <= 0 {
		cfg.Alerts.Parallel = 8
	}

	if cfg.Kafka.Topic == "" {
		cfg.Kafka.Topic = "folio.notifications"
	}
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = ":8080"
	}
}

func validate(cfg *Config) error {
	switch cfg.Storage.Driver {
	case "sqlite", "memory":
	case "postgres":
		if strings.TrimSpace(cfg.Storage.PostgresDSN) == "" {
			return errors.New("storage.postgres_dsn empty but driver is postgres")
		}
	default:
		return fmt.Errorf("storage.driver %q unknown", cfg.Storage.Driver)
	}

	switch cfg.Quotes.Provider {
	case "alpaca", "demo":
	default:
		return fmt.Errorf("quotes.provider %q unknown", cfg.Quotes.Provider)
	}
	if cfg.Quotes.StreamEnabled && cfg.Quotes.Provider != "alpaca" {
		return errors.New("quotes.stream_enabled requires the alpaca provider")
	}

	cfg.Kafka.Brokers = normalizeList(cfg.Kafka.Brokers)
	if cfg.Kafka.Enabled && len(cfg.Kafka.Brokers) == 0 {
		return errors.New("kafka.brokers empty but enabled")
	}
	if cfg.Redis.Enabled && strings.TrimSpace(cfg.Redis.Addr) == "" {
		return errors.New("redis.addr empty but enabled")
	}
	if cfg.Alerts.NotifyDelayMs < 0 {
		return errors.New("alerts.notify_delay_ms is negative")
	}
	return nil
}

// HasCredentials 是否配置了 Alpaca 凭据；没有时行情退化为缓存和演示数据
func (c *Config) HasCredentials() bool {
	return c.Quotes.APIKey != "" && c.Quotes.APISecret != ""
}

func (c *Config) RefreshInterval() time.Duration {
	return time.Duration(c.App.RefreshIntervalSec) * time.Second
}

func (c *Config) QuoteTimeout() time.Duration {
	return time.Duration(c.Quotes.TimeoutSec) * time.Second
}

func (c *Config) StreamMaxAge() time.Duration {
	return time.Duration(c.Quotes.StreamMaxAgeSec) * time.Second
}

func (c *Config) AlertInterval() time.Duration {
	return time.Duration(c.Alerts.IntervalSec) * time.Second
}

func (c *Config) NotifyDelay() time.Duration {
	return time.Duration(c.Alerts.NotifyDelayMs) * time.Millisecond
}

func (c *Config) RedisTTL() time.Duration {
	return time.Duration(c.Redis.TTLSec) * time.Second
}

func normalizeList(in []string) []string {
	out := make([]string, 0, len(in))
	seen := map[string]struct{}{}
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
