// Package config loads runtime settings from the environment. Every knob
// has a default, so a bare `server` invocation monitors with an on-disk
// SQLite file and a `agent` invocation only needs SERVER_URL and API_KEY.
package config

import (
	"fmt"
	"net"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/spf13/viper"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Config struct {
	// server
	Addr             string `mapstructure:"addr"`
	DatabaseDriver   string `mapstructure:"database_driver"`
	DatabaseURL      string `mapstructure:"database_url"`
	SeedSites        bool   `mapstructure:"seed_sites"`
	MonitorUser      string `mapstructure:"monitor_user"`
	RateLimitPerMin  int    `mapstructure:"rate_limit_per_min"`
	AllowRemoteAdmin bool   `mapstructure:"allow_remote_admin"`

	// agent
	ServerURL string `mapstructure:"server_url"`
	APIKey    string `mapstructure:"api_key"`

	// scheduling and probing
	PollInterval time.Duration `mapstructure:"poll_interval"`
	BatchSize    int           `mapstructure:"batch_size"`
	CheckTimeout time.Duration `mapstructure:"check_timeout"`
	DownRecheck  time.Duration `mapstructure:"down_recheck"`
	UpRecheck    time.Duration `mapstructure:"up_recheck"`
	TLSVerify    bool          `mapstructure:"tls_verify"`

	// outputs and alerting
	SnapshotPath    string        `mapstructure:"snapshot_path"`
	LogDir          string        `mapstructure:"log_dir"`
	SlackWebhook    string        `mapstructure:"slack_webhook"`
	AlertCooldown   time.Duration `mapstructure:"alert_cooldown"`
	AlertOnRecovery bool          `mapstructure:"alert_on_recovery"`
}

func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("addr", ":3000")
	v.SetDefault("database_driver", DriverSQLite)
	v.SetDefault("database_url", "monitor.db")
	v.SetDefault("seed_sites", false)
	v.SetDefault("monitor_user", "monitor")
	v.SetDefault("rate_limit_per_min", 240)
	v.SetDefault("allow_remote_admin", false)

	v.SetDefault("server_url", "")
	v.SetDefault("api_key", "")

	v.SetDefault("poll_interval", time.Minute)
	v.SetDefault("batch_size", 5)
	v.SetDefault("check_timeout", 10*time.Second)
	v.SetDefault("down_recheck", time.Minute)
	v.SetDefault("up_recheck", 5*time.Minute)
	// Several of the monitored sites serve certificates that do not match
	// their canonical hostname; verification stays off unless asked for.
	v.SetDefault("tls_verify", false)

	v.SetDefault("snapshot_path", "status.json")
	v.SetDefault("log_dir", "logs")
	v.SetDefault("slack_webhook", "")
	v.SetDefault("alert_cooldown", 15*time.Minute)
	v.SetDefault("alert_on_recovery", true)

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Addr, validation.Required, validation.By(validateHostPort)),
		validation.Field(&c.DatabaseDriver,
			validation.Required,
			validation.In(DriverSQLite, DriverPostgres, DriverMemory),
		),
		validation.Field(&c.ServerURL, is.URL),
		validation.Field(&c.MonitorUser, validation.Required),
		validation.Field(&c.BatchSize, validation.Required, validation.Min(1)),
		validation.Field(&c.RateLimitPerMin, validation.Min(0)),
		validation.Field(&c.PollInterval, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.CheckTimeout, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.DownRecheck, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.UpRecheck, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.AlertCooldown, validation.Min(time.Duration(0))),
	)
}

func validateHostPort(value interface{}) error {
	s, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}
	if _, _, err := net.SplitHostPort(s); err != nil {
		return validation.NewError("validation_invalid_addr", "must be host:port or :port")
	}
	return nil
}
