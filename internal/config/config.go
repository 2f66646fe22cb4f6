package config

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Environment string
	Host        string `toml:"host"`
	Port        int    `toml:"port"`

	// logging
	LogLevel    string `toml:"log_level"`
	LogsPath    string `toml:"logs_path"`
	LogToStdout bool   `toml:"log_to_stdout"`

	SentryEnabled bool `toml:"sentry_enabled"`

	// postgres
	PostgresHost   string `toml:"postgres_host"`
	PostgresPort   string `toml:"postgres_port"`
	PostgresDBName string `toml:"postgres_db_name"`

	// redis
	RedisHost string `toml:"redis_host"`
	RedisPort string `toml:"redis_port"`

	// prometheus metrics
	PrometheusMetricsHost string `toml:"prometheus_metrics_host"`
	PrometheusMetricsPort string `toml:"prometheus_metrics_port"`

	LoginRateLimitAllowedPerMin int `toml:"login_rate_limit_allowed_per_min"`
	// normalize/generate endpoints hit the LLM provider, keep them limited too
	LlmRateLimitAllowedPerMin int `toml:"llm_rate_limit_allowed_per_min"`

	// LLM provider
	LlmModel          string  `toml:"llm_model"`
	LlmAltProviderURL string  `toml:"llm_alt_provider_url"`
	LlmRequestTimeout int     `toml:"llm_request_timeout_seconds"`
	PlanMaxTokens     int     `toml:"plan_max_tokens"`
	PlanTemperature   float64 `toml:"plan_temperature"`

	// the calendar callback sends the browser back here
	FrontendURL string `toml:"frontend_url"`

	// google calendar
	CalendarRedirectURI    string `toml:"calendar_redirect_uri"`
	CalendarTimezone       string `toml:"calendar_timezone"`
	CalendarRequestTimeout int    `toml:"calendar_request_timeout_seconds"`
}

type Toml struct {
	Development *Config
	Production  *Config
}

func (t *Toml) Get(env string) (*Config, error) {
	switch strings.ToLower(env) {
	case "dev", "development", "ddev", "dockerdev":
		return t.Development, nil
	case "prod", "production":
		return t.Production, nil
	default:
		return nil, fmt.Errorf("unknown env: %s", env)
	}
}

func Load(env, path string) (*Config, error) {
	var confToml Toml
	if _, err := toml.DecodeFile(path, &confToml); err != nil {
		return nil, fmt.Errorf("decode config file: %w", err)
	}

	cfg, err := confToml.Get(env)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, fmt.Errorf("config for env %s is empty", env)
	}

	cfg.Environment = env
	cfg.applyDefaults()

	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.LlmModel == "" {
		c.LlmModel = "gpt-4o"
	}
	if c.LlmRequestTimeout <= 0 {
		c.LlmRequestTimeout = 60
	}
	if c.PlanMaxTokens <= 0 {
		c.PlanMaxTokens = 4000
	}
	if c.PlanTemperature <= 0 {
		c.PlanTemperature = 0.2
	}
	if c.CalendarTimezone == "" {
		c.CalendarTimezone = "UTC"
	}
	if c.CalendarRequestTimeout <= 0 {
		c.CalendarRequestTimeout = 30
	}
	if c.LoginRateLimitAllowedPerMin <= 0 {
		c.LoginRateLimitAllowedPerMin = 5
	}
	if c.LlmRateLimitAllowedPerMin <= 0 {
		c.LlmRateLimitAllowedPerMin = 10
	}
}
