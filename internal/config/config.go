// Package config loads DataMantri runtime configuration from an optional
// YAML file and the environment.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/good-yellow-bee/datamantri/internal/security"
)

// EnvPrefix prefixes every DataMantri-specific environment variable.
const EnvPrefix = "DATAMANTRI"

// Config represents the full runtime configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Log       LogConfig       `mapstructure:"log"`
	SMTP      SMTPConfig      `mapstructure:"smtp"`
	Twilio    TwilioConfig    `mapstructure:"twilio"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	History   HistoryConfig   `mapstructure:"history"`
	MasterKey string          `mapstructure:"master_key"`
}

// ServerConfig contains listener settings.
type ServerConfig struct {
	HTTPAddress    string `mapstructure:"http_address"`    // API listen address (default: :8080)
	MetricsAddress string `mapstructure:"metrics_address"` // Prometheus listen address, empty disables
}

// DatabaseConfig contains storage settings.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// SchedulerConfig controls the evaluation loop.
type SchedulerConfig struct {
	Interval     time.Duration `mapstructure:"interval"`
	AlertTimeout time.Duration `mapstructure:"alert_timeout"`
}

// LogConfig controls logging.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// SMTPConfig holds outbound mail settings.
type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

// TwilioConfig holds WhatsApp provider settings.
type TwilioConfig struct {
	AccountSID   string `mapstructure:"account_sid"`
	AuthToken    string `mapstructure:"auth_token"`
	WhatsAppFrom string `mapstructure:"whatsapp_from"`
	// MessagesPerSecond paces WhatsApp sends, 0 disables pacing.
	MessagesPerSecond float64 `mapstructure:"messages_per_second"`
}

// RateLimitConfig bounds how many notifications go out per window.
type RateLimitConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	MaxPerWindow int           `mapstructure:"max_per_window"`
	Window       time.Duration `mapstructure:"window"`
}

// HistoryConfig controls alert history retention.
type HistoryConfig struct {
	Retention time.Duration `mapstructure:"retention"` // 0 keeps everything
}

// legacyEnv maps config keys to the unprefixed variable names operators
// already use for mail and Twilio.
var legacyEnv = map[string]string{
	"smtp.host":            "SMTP_HOST",
	"smtp.port":            "SMTP_PORT",
	"smtp.username":        "SMTP_USERNAME",
	"smtp.password":        "SMTP_PASSWORD",
	"smtp.from":            "SMTP_FROM",
	"twilio.account_sid":   "TWILIO_ACCOUNT_SID",
	"twilio.auth_token":    "TWILIO_AUTH_TOKEN",
	"twilio.whatsapp_from": "TWILIO_WHATSAPP_FROM",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.http_address", ":8080")
	v.SetDefault("server.metrics_address", ":9090")
	v.SetDefault("database.path", "data/datamantri.db")
	v.SetDefault("scheduler.interval", 5*time.Minute)
	v.SetDefault("scheduler.alert_timeout", time.Minute)
	v.SetDefault("log.level", "info")
	v.SetDefault("smtp.host", "")
	v.SetDefault("smtp.port", 587)
	v.SetDefault("smtp.username", "")
	v.SetDefault("smtp.password", "")
	v.SetDefault("smtp.from", "")
	v.SetDefault("twilio.account_sid", "")
	v.SetDefault("twilio.auth_token", "")
	v.SetDefault("twilio.whatsapp_from", "")
	v.SetDefault("twilio.messages_per_second", 1.0)
	v.SetDefault("rate_limit.enabled", false)
	v.SetDefault("rate_limit.max_per_window", 10)
	v.SetDefault("rate_limit.window", time.Minute)
	v.SetDefault("history.retention", time.Duration(0))
	v.SetDefault("master_key", "")
}

// New returns a viper instance with defaults and environment bindings.
func New() *viper.Viper {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range legacyEnv {
		// Both the prefixed and the bare variable are honoured.
		_ = v.BindEnv(key, EnvPrefix+"_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env)
	}
	return v
}

// Load reads configuration from path (optional) and the environment. Files
// ending in .enc are decrypted with DATAMANTRI_MASTER_KEY.
func Load(path string) (*Config, error) {
	v := New()

	if path != "" {
		v.SetConfigType("yaml")
		if security.IsEncryptedFile(path) {
			content, err := security.ReadEncryptedFile(path, []byte(v.GetString("master_key")))
			if err != nil {
				return nil, fmt.Errorf("read config file: %w", err)
			}
			if err := v.ReadConfig(bytes.NewReader(content)); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		} else {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if _, _, err := net.SplitHostPort(c.Server.HTTPAddress); err != nil {
		errs = append(errs, fmt.Errorf("server.http_address %q: %w", c.Server.HTTPAddress, err))
	}
	if c.Server.MetricsAddress != "" {
		if _, _, err := net.SplitHostPort(c.Server.MetricsAddress); err != nil {
			errs = append(errs, fmt.Errorf("server.metrics_address %q: %w", c.Server.MetricsAddress, err))
		}
	}
	if c.Database.Path == "" {
		errs = append(errs, errors.New("database.path is required"))
	}
	if c.Scheduler.Interval <= 0 {
		errs = append(errs, errors.New("scheduler.interval must be positive"))
	}
	if c.Scheduler.AlertTimeout <= 0 {
		errs = append(errs, errors.New("scheduler.alert_timeout must be positive"))
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level %q must be one of debug, info, warn, error", c.Log.Level))
	}
	if c.SMTP.Port < 0 || c.SMTP.Port > 65535 {
		errs = append(errs, fmt.Errorf("smtp.port %d out of range", c.SMTP.Port))
	}
	if c.RateLimit.Enabled && c.RateLimit.MaxPerWindow <= 0 {
		errs = append(errs, errors.New("rate_limit.max_per_window must be positive when enabled"))
	}
	if c.Twilio.MessagesPerSecond < 0 {
		errs = append(errs, errors.New("twilio.messages_per_second must not be negative"))
	}
	if c.History.Retention < 0 {
		errs = append(errs, errors.New("history.retention must not be negative"))
	}

	return errors.Join(errs...)
}

// RequireMasterKey returns the master key or an error naming the variable.
func (c *Config) RequireMasterKey() ([]byte, error) {
	if c.MasterKey == "" {
		return nil, fmt.Errorf("%s_MASTER_KEY environment variable is required", EnvPrefix)
	}
	return []byte(c.MasterKey), nil
}
