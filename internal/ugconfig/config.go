// Package ugconfig loads the runtime configuration for the ugoite CLI and
// any embedding host: store URI, default space, the sandbox fuel budget,
// and the SQL session TTL. Remote object-store credentials are not loaded
// here; the s3/azblob/gcs backends read them from the environment.
package ugconfig

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
)

// Config is the resolved runtime configuration.
type Config struct {
	// StoreURI is the warehouse URI passed to objectstore.Open, e.g.
	// "memory://default", "file:///var/lib/ugoite", "s3://bucket/root".
	StoreURI string `mapstructure:"store_uri"`

	// DefaultSpace is used by CLI commands that don't take --space.
	DefaultSpace string `mapstructure:"default_space"`

	// SandboxFuelBudget bounds guest execution.
	SandboxFuelBudget uint64 `mapstructure:"sandbox_fuel_budget"`

	// SQLSessionTTLSeconds overrides sqlsession.DefaultTTL.
	SQLSessionTTLSeconds int `mapstructure:"sql_session_ttl_seconds"`
}

const (
	defaultStoreURI          = "memory://default"
	defaultSandboxFuelBudget = 10_000_000
	defaultSQLSessionTTL     = 900
)

// Load reads configuration from (in precedence order) explicit Set calls,
// UGOITE_-prefixed environment variables, an optional config file at
// configPath (if non-empty) or ./ugoite.yaml, then the defaults above.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("UGOITE")
	v.AutomaticEnv()

	v.SetDefault("store_uri", defaultStoreURI)
	v.SetDefault("default_space", "")
	v.SetDefault("sandbox_fuel_budget", defaultSandboxFuelBudget)
	v.SetDefault("sql_session_ttl_seconds", defaultSQLSessionTTL)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("ugoite")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			if configPath != "" && !os.IsNotExist(err) {
				return nil, fmt.Errorf("ugconfig: read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("ugconfig: unmarshal: %w", err)
	}
	return &cfg, nil
}
