// Package config loads risk service configuration.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	basecfg "github.com/paynow/paynow/libs/config"
)

type Config struct {
	App basecfg.AppConfig `mapstructure:"app"`
}

func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PAYNOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("app.service_name", "risk")
	v.SetDefault("app.env", "dev")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.metrics_path", "/metrics")
	v.SetDefault("app.service_key", "internal-service-key")
	v.SetDefault("app.http.host", "0.0.0.0")
	v.SetDefault("app.http.port", 8082)
	v.SetDefault("app.http.read_timeout", "5s")
	v.SetDefault("app.http.write_timeout", "10s")
	v.SetDefault("app.http.idle_timeout", "60s")

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
	return &cfg, nil
}
