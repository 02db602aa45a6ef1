package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Port           int           `mapstructure:"port"`
	Mode           string        `mapstructure:"mode"`
	DatabaseURL    string        `mapstructure:"database_url"`
	RedisURL       string        `mapstructure:"redis_url"`
	JWTSecret      string        `mapstructure:"jwt_secret"`
	TokenTTL       time.Duration `mapstructure:"token_ttl"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`

	WSSendBuffer     int           `mapstructure:"ws_send_buffer"`
	WSMaxMessageSize int64         `mapstructure:"ws_max_message_size"`
	WSPingPeriod     time.Duration `mapstructure:"ws_ping_period"`

	PreviewLength     int           `mapstructure:"preview_length"`
	HistoryLimit      int           `mapstructure:"history_limit"`
	EventRateLimit    int           `mapstructure:"event_rate_limit"`
	EventRateInterval time.Duration `mapstructure:"event_rate_interval"`

	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	LogLevel        string        `mapstructure:"log_level"`
	LogFormat       string        `mapstructure:"log_format"`
}

var keys = []string{
	"port", "mode", "database_url", "redis_url", "jwt_secret", "token_ttl", "allowed_origins",
	"ws_send_buffer", "ws_max_message_size", "ws_ping_period",
	"preview_length", "history_limit", "event_rate_limit", "event_rate_interval",
	"shutdown_timeout", "log_level", "log_format",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", 8080)
	v.SetDefault("mode", "release")
	v.SetDefault("token_ttl", "24h")
	v.SetDefault("allowed_origins", "")
	v.SetDefault("ws_send_buffer", 256)
	v.SetDefault("ws_max_message_size", 512*1024)
	v.SetDefault("ws_ping_period", "54s")
	v.SetDefault("preview_length", 80)
	v.SetDefault("history_limit", 50)
	v.SetDefault("event_rate_limit", 40)
	v.SetDefault("event_rate_interval", "1s")
	v.SetDefault("shutdown_timeout", "10s")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "console")
}

// Load reads .env.local or .env if present, then the environment.
// An optional config file (yaml, toml, json) overrides defaults; the
// environment overrides both.
func Load(file string) (*Config, error) {
	if err := godotenv.Load(".env.local"); err != nil {
		if err := godotenv.Load(); err != nil {
			log.Debug().Str("module", "config").Msg(".env not found, using environment variables")
		}
	}

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()
	// Unmarshal only sees keys viper knows about.
	for _, k := range keys {
		if err := v.BindEnv(k, strings.ToUpper(k)); err != nil {
			return nil, err
		}
	}

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
		log.Info().Str("module", "config").Str("file", file).Msg("config loaded")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.AllowedOrigins = splitList(v.GetString("allowed_origins"))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks the settings the server cannot start without.
func (c *Config) Validate() error {
	var errs []error
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is not set"))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is not set"))
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid PORT %d", c.Port))
	}
	if c.EventRateLimit <= 0 || c.EventRateInterval <= 0 {
		errs = append(errs, errors.New("EVENT_RATE_LIMIT and EVENT_RATE_INTERVAL must be positive"))
	}
	return errors.Join(errs...)
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}
