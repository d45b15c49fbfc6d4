// Package config loads payments service configuration: the shared base
// plus redis, collaborator, kafka, rate, and policy settings.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	basecfg "github.com/paynow/paynow/libs/config"
)

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type CollaboratorsConfig struct {
	AccountsURL string        `mapstructure:"accounts_url"`
	RiskURL     string        `mapstructure:"risk_url"`
	CasesURL    string        `mapstructure:"cases_url"`
	Timeout     time.Duration `mapstructure:"timeout"`
	Attempts    int           `mapstructure:"attempts"`
	Backoff     time.Duration `mapstructure:"backoff"`
}

type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
}

type RateLimitConfig struct {
	Capacity     int     `mapstructure:"capacity"`
	RefillPerSec float64 `mapstructure:"refill_per_sec"`
}

type IdempotencyConfig struct {
	PendingTTL  time.Duration `mapstructure:"pending_ttl"`
	ResponseTTL time.Duration `mapstructure:"response_ttl"`
}

type PolicyConfig struct {
	HighAmount     float64 `mapstructure:"high_amount"`
	VeryHighAmount float64 `mapstructure:"very_high_amount"`
	HighRiskScore  int     `mapstructure:"high_risk_score"`
	ReasonWeight   int     `mapstructure:"reason_weight"`
}

type Config struct {
	App           basecfg.AppConfig   `mapstructure:"app"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Collaborators CollaboratorsConfig `mapstructure:"collaborators"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	RateLimit     RateLimitConfig     `mapstructure:"rate_limit"`
	Idempotency   IdempotencyConfig   `mapstructure:"idempotency"`
	Policy        PolicyConfig        `mapstructure:"policy"`
}

func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PAYNOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Collaborators.AccountsURL == "" || c.Collaborators.RiskURL == "" || c.Collaborators.CasesURL == "" {
		return fmt.Errorf("collaborator base URLs are required")
	}
	if c.RateLimit.Capacity <= 0 || c.RateLimit.RefillPerSec <= 0 {
		return fmt.Errorf("rate limit capacity and refill must be positive")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.service_name", "payments")
	v.SetDefault("app.env", "dev")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.metrics_path", "/metrics")
	v.SetDefault("app.service_key", "internal-service-key")
	v.SetDefault("app.http.host", "0.0.0.0")
	v.SetDefault("app.http.port", 8080)
	v.SetDefault("app.http.read_timeout", "5s")
	v.SetDefault("app.http.write_timeout", "10s")
	v.SetDefault("app.http.idle_timeout", "60s")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)

	v.SetDefault("collaborators.accounts_url", "http://localhost:8081")
	v.SetDefault("collaborators.risk_url", "http://localhost:8082")
	v.SetDefault("collaborators.cases_url", "http://localhost:8083")
	v.SetDefault("collaborators.timeout", "5s")
	v.SetDefault("collaborators.attempts", 3)
	v.SetDefault("collaborators.backoff", "200ms")

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})

	v.SetDefault("rate_limit.capacity", 10)
	v.SetDefault("rate_limit.refill_per_sec", 5.0)

	v.SetDefault("idempotency.pending_ttl", "5m")
	v.SetDefault("idempotency.response_ttl", "10m")

	v.SetDefault("policy.high_amount", 500.0)
	v.SetDefault("policy.very_high_amount", 1000.0)
	v.SetDefault("policy.high_risk_score", 80)
	v.SetDefault("policy.reason_weight", 8)
}
