package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the bot process.
type Config struct {
	Telegram  TelegramConfig  `yaml:"telegram"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Server    ServerConfig    `yaml:"server"`
	Followup  FollowupConfig  `yaml:"followup"`
	Broadcast BroadcastConfig `yaml:"broadcast"`
	Chains    ChainsConfig    `yaml:"chains"`
	Reports   ReportsConfig   `yaml:"reports"`
	Payment   PaymentConfig   `yaml:"payment"`
}

// TelegramConfig holds bot API credentials and the admin channel.
type TelegramConfig struct {
	Token          string `yaml:"token"`
	AdminChannelID int64  `yaml:"admin_channel_id"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the per-call API timeout as a duration.
func (c TelegramConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// DatabaseConfig holds the PostgreSQL connection settings.
type DatabaseConfig struct {
	URL          string `yaml:"url"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// RedisConfig holds the optional Redis settings used for tick locking.
// An empty address disables Redis; tick locks fall back to PG advisory locks.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// ServerConfig holds the admin HTTP API settings.
type ServerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// FollowupConfig holds the follow-up scheduler cadences.
type FollowupConfig struct {
	DiscoveryIntervalMinutes int `yaml:"discovery_interval_minutes"`
	DispatchIntervalMinutes  int `yaml:"dispatch_interval_minutes"`
	OnlyStartAgeHours        int `yaml:"only_start_age_hours"`
	ClickedPaymentAgeHours   int `yaml:"clicked_payment_age_hours"`
}

// DiscoveryInterval returns the discovery tick interval.
func (c FollowupConfig) DiscoveryInterval() time.Duration {
	return time.Duration(c.DiscoveryIntervalMinutes) * time.Minute
}

// DispatchInterval returns the dispatch tick interval.
func (c FollowupConfig) DispatchInterval() time.Duration {
	return time.Duration(c.DispatchIntervalMinutes) * time.Minute
}

// BroadcastConfig holds broadcast engine cadences and throttling.
type BroadcastConfig struct {
	PollIntervalMinutes int `yaml:"poll_interval_minutes"`
	AutoIntervalMinutes int `yaml:"auto_interval_minutes"`
	SendDelayMillis     int `yaml:"send_delay_millis"`
}

// PollInterval returns the one-shot broadcast poll interval.
func (c BroadcastConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMinutes) * time.Minute
}

// AutoInterval returns the auto-broadcast tick interval.
func (c BroadcastConfig) AutoInterval() time.Duration {
	return time.Duration(c.AutoIntervalMinutes) * time.Minute
}

// SendDelay returns the fixed pause between consecutive sends in one tick.
func (c BroadcastConfig) SendDelay() time.Duration {
	return time.Duration(c.SendDelayMillis) * time.Millisecond
}

// ChainsConfig holds the chain engine cadence.
type ChainsConfig struct {
	TickIntervalMinutes int `yaml:"tick_interval_minutes"`
}

// TickInterval returns the chain auto-advance interval.
func (c ChainsConfig) TickInterval() time.Duration {
	return time.Duration(c.TickIntervalMinutes) * time.Minute
}

// ReportsConfig holds the weekly admin report schedule.
type ReportsConfig struct {
	Enabled bool `yaml:"enabled"`
	// Weekday 0=Sunday .. 6=Saturday, Hour in 24h local time.
	Weekday int `yaml:"weekday"`
	Hour    int `yaml:"hour"`
}

// PaymentConfig holds the displayed price and transfer details.
type PaymentConfig struct {
	Amount  int    `yaml:"amount"`
	Details string `yaml:"details"`
}

// Load reads and parses the configuration file, applying defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// Set defaults
	if cfg.Telegram.TimeoutSeconds == 0 {
		cfg.Telegram.TimeoutSeconds = 30
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Followup.DiscoveryIntervalMinutes == 0 {
		cfg.Followup.DiscoveryIntervalMinutes = 60
	}
	if cfg.Followup.DispatchIntervalMinutes == 0 {
		cfg.Followup.DispatchIntervalMinutes = 5
	}
	if cfg.Followup.OnlyStartAgeHours == 0 {
		cfg.Followup.OnlyStartAgeHours = 24
	}
	if cfg.Followup.ClickedPaymentAgeHours == 0 {
		cfg.Followup.ClickedPaymentAgeHours = 2
	}
	if cfg.Broadcast.PollIntervalMinutes == 0 {
		cfg.Broadcast.PollIntervalMinutes = 5
	}
	if cfg.Broadcast.AutoIntervalMinutes == 0 {
		cfg.Broadcast.AutoIntervalMinutes = 15
	}
	if cfg.Broadcast.SendDelayMillis == 0 {
		cfg.Broadcast.SendDelayMillis = 50
	}
	if cfg.Chains.TickIntervalMinutes == 0 {
		cfg.Chains.TickIntervalMinutes = 5
	}
	if cfg.Reports.Hour == 0 {
		cfg.Reports.Hour = 20
	}
	if cfg.Payment.Amount == 0 {
		cfg.Payment.Amount = 499
	}

	return &cfg, nil
}

// LoadFromEnv loads configuration with environment variable overrides.
// A .env file (if present) is loaded first, so secrets can live in .env
// locally and in real env vars in production.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if token := os.Getenv("BOT_TOKEN"); token != "" {
		cfg.Telegram.Token = token
	}
	if v := os.Getenv("ADMIN_CHANNEL_ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Telegram.AdminChannelID = id
		}
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		cfg.Database.URL = dbURL
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Redis.Addr = addr
	}
	if pw := os.Getenv("REDIS_PASSWORD"); pw != "" {
		cfg.Redis.Password = pw
	}

	return cfg, nil
}
