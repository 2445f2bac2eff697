package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Auth          AuthConfig          `mapstructure:"auth"`
	Email         EmailConfig         `mapstructure:"email"`
	CORS          CORSConfig          `mapstructure:"cors"`
	RateLimit     RateLimitConfig     `mapstructure:"rate_limit"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Supabase      SupabaseConfig      `mapstructure:"supabase"`
	Queue         QueueConfig         `mapstructure:"queue"`
	Reminders     RemindersConfig     `mapstructure:"reminders"`
	VetoRateLimit VetoRateLimitConfig `mapstructure:"veto_rate_limit"`
	Debug         DebugConfig         `mapstructure:"debug"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// AuthConfig holds API key authentication settings.
type AuthConfig struct {
	APIKeys []string `mapstructure:"api_keys"`
}

// EmailConfig holds email provider settings.
type EmailConfig struct {
	Provider     string `mapstructure:"provider"`
	APIKey       string `mapstructure:"api_key"`
	FromAddress  string `mapstructure:"from_address"`
	FromName     string `mapstructure:"from_name"`
	AdminAddress string `mapstructure:"admin_address"`
}

// CORSConfig holds CORS policy settings.
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
}

// RateLimitConfig holds per-IP rate limiting settings for the admin API.
type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// SupabaseConfig holds Supabase project settings. An empty URL selects the
// in-memory subscription source instead (local development).
type SupabaseConfig struct {
	URL        string `mapstructure:"url"`
	ServiceKey string `mapstructure:"service_key"`
}

// QueueConfig holds run queue settings.
type QueueConfig struct {
	MaxRetry int `mapstructure:"max_retry"`
}

// RemindersConfig holds the reminder tier mapping and mail-merge settings.
// Tiers maps lead-time days (string keys for YAML/env compatibility) to the
// template id sent at that lead time.
type RemindersConfig struct {
	Tiers             map[string]string `mapstructure:"tiers"`
	Schedule          string            `mapstructure:"schedule"`
	VetoMarksNotified bool              `mapstructure:"veto_marks_notified"`
	SiteName          string            `mapstructure:"site_name"`
	SiteEmail         string            `mapstructure:"site_email"`
	LoginURL          string            `mapstructure:"login_url"`
	CancelURL         string            `mapstructure:"cancel_url"`
	CurrencySymbol    string            `mapstructure:"currency_symbol"`
	DateFormat        string            `mapstructure:"date_format"`
}

// VetoRateLimitConfig caps reminders per recipient via the Redis veto hook.
// MaxPerDay of 0 disables the hook.
type VetoRateLimitConfig struct {
	MaxPerDay int `mapstructure:"max_per_day"`
}

// DebugConfig selects where the per-run diagnostic log is flushed:
// "off", "file", or "email" (sent to email.admin_address).
type DebugConfig struct {
	Mode string `mapstructure:"mode"`
	File string `mapstructure:"file"`
}

// Load reads configuration from config.yaml and environment variables.
// Environment variables use the REMINDLY_ prefix and underscore separators.
// Example: REMINDLY_SERVER_PORT overrides server.port in config.yaml.
func Load() (*Config, error) {
	v := viper.New()

	// Config file settings
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// Load .env file if it exists
	_ = godotenv.Load()

	// Environment variable settings
	v.SetEnvPrefix("REMINDLY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("server.port", 8081)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("email.provider", "resend")
	v.SetDefault("rate_limit.requests_per_second", 10)
	v.SetDefault("rate_limit.burst", 20)
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("queue.max_retry", 0)
	v.SetDefault("reminders.tiers", map[string]string{"7": "membership_recurring"})
	v.SetDefault("reminders.schedule", "0 6 * * *") // daily, 06:00
	v.SetDefault("reminders.veto_marks_notified", true)
	v.SetDefault("reminders.site_name", "Remindly")
	v.SetDefault("reminders.currency_symbol", "$")
	v.SetDefault("reminders.date_format", "January 2, 2006")
	v.SetDefault("veto_rate_limit.max_per_day", 0)
	v.SetDefault("debug.mode", "off")
	v.SetDefault("debug.file", "remindly-run.log")

	// Read config file (optional — env vars can provide everything)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// Handle comma-separated API keys from env var
	if apiKeysStr := v.GetString("auth.api_keys"); apiKeysStr != "" && len(cfg.Auth.APIKeys) == 0 {
		keys := strings.Split(apiKeysStr, ",")
		for i := range keys {
			keys[i] = strings.TrimSpace(keys[i])
		}
		cfg.Auth.APIKeys = keys
	}

	return &cfg, nil
}
