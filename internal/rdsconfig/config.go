// Package rdsconfig loads the RDS cache's tunables from a config.yaml using
// a scoped viper instance (never viper's package-level singleton, so a
// caller embedding this cache into a larger program isn't forced to share
// its global config namespace — the same reasoning as the teacher's
// validateSyncConfig).
package rdsconfig

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/spf13/viper"
)

// Config is the RDS cache's tunable set, loaded from config.yaml's "rds"
// section.
type Config struct {
	// RebuildExpired forces every Prepare to drop and rebuild rather than
	// trust an existing, non-expired catalog row. Spec §4.3's rebuild_expired
	// knob; useful for tests and for forcing a cold rebuild after a schema
	// change to the underlying tag tables.
	RebuildExpired bool `mapstructure:"rebuild_expired"`

	// MaxBranches is the largest number of OR-branches a single query may
	// carry, guarding against a pathological query fanning out into an
	// unbounded number of builds. Zero means unbounded. Validate only checks
	// that it is non-negative; Coordinator.Prepare does not read it.
	MaxBranches int `mapstructure:"max_branches"`

	// Dialect selects the backend rdsstore.Open connects to: "sqlite",
	// "dolt" (embedded, CGO required), or "mysql" (Dolt sql-server).
	Dialect string `mapstructure:"dialect"`

	// Path is the SQLite database path (or empty for an in-memory database)
	// or, when Dialect is "dolt", the embedded Dolt database directory.
	Path string `mapstructure:"path"`

	// MySQL/Dolt server-mode connection settings, used when Dialect is
	// "mysql".
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
}

func defaults() Config {
	return Config{
		Dialect:  "sqlite",
		Host:     "127.0.0.1",
		Port:     3306,
		User:     "root",
		Database: "rds",
	}
}

// Load reads configPath (a YAML file) into a fresh Config, seeded with
// defaults and overridden by anything the file sets under the top-level
// "rds" key. A missing file is not an error: Load returns the defaults.
func Load(configPath string) (Config, error) {
	cfg := defaults()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return cfg, nil
		}
		// With SetConfigFile, viper reports a missing file as the
		// underlying os error rather than ConfigFileNotFoundError.
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("rdsconfig: read %s: %w", configPath, err)
	}

	sub := v.Sub("rds")
	if sub == nil {
		return cfg, nil
	}
	if err := sub.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("rdsconfig: unmarshal %s: %w", configPath, err)
	}
	return cfg, nil
}

// Validate reports a descriptive error for any setting Load accepted
// syntactically but that isn't semantically usable.
func (c Config) Validate() error {
	switch c.Dialect {
	case "sqlite", "dolt", "mysql":
	default:
		return fmt.Errorf("rdsconfig: dialect %q is invalid (valid values: sqlite, dolt, mysql)", c.Dialect)
	}
	if c.MaxBranches < 0 {
		return fmt.Errorf("rdsconfig: max_branches must be >= 0, got %d", c.MaxBranches)
	}
	return nil
}
