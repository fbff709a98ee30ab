// Package config loads the daemon configuration: a TOML file with
// environment overrides. A local .env file is honored first, so dev
// setups can keep secrets out of the shell profile.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Config is the full daemon configuration.
type Config struct {
	Server  Server  `toml:"server"`
	Store   Store   `toml:"store"`
	Ledgers Ledgers `toml:"ledgers"`
	Kafka   Kafka   `toml:"kafka"`
	Auth    Auth    `toml:"auth"`
}

// Server configures the HTTP listener.
type Server struct {
	Addr string `toml:"addr"`
}

// Store configures the remote ledger store and the local fallback.
type Store struct {
	// Driver is "postgres" or "memory".
	Driver string `toml:"driver"`

	// DSN is the postgres connection string.
	DSN string `toml:"dsn"`

	// SnapshotPath is the local SQLite file holding the last-known
	// window. Empty disables the degraded-startup fallback.
	SnapshotPath string `toml:"snapshot_path"`

	// Migrate runs schema setup on startup.
	Migrate bool `toml:"migrate"`
}

// Ledgers configures the two ledger instances. The branch-scoping
// asymmetry is deliberate: the credits screens always ran branch-scoped,
// the deposit screens did not.
type Ledgers struct {
	Branch                string `toml:"branch"`
	CreditsRequireBranch  bool   `toml:"credits_require_branch"`
	DepositsRequireBranch bool   `toml:"deposits_require_branch"`

	// WindowDays is the size of the query window fetched and synced,
	// counted back from today.
	WindowDays int `toml:"window_days"`
}

// Kafka configures the optional mutation event stream.
type Kafka struct {
	Enabled bool     `toml:"enabled"`
	Brokers []string `toml:"brokers"`
}

// Auth configures operator identification.
type Auth struct {
	// Secret verifies operator tokens.
	Secret string `toml:"secret"`

	// Token is this session's operator token; its name claim becomes
	// the default handled-by / recorded-by.
	Token string `toml:"token"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Server: Server{Addr: ":8080"},
		Store: Store{
			Driver:       "memory",
			SnapshotPath: "./data/snapshot.db",
			Migrate:      true,
		},
		Ledgers: Ledgers{
			CreditsRequireBranch:  true,
			DepositsRequireBranch: false,
			WindowDays:            31,
		},
	}
}

// Load reads the TOML file at path (if it exists) over the defaults, then
// applies environment overrides. A missing file is not an error.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, &cfg); err != nil {
				return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("TALLY_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("TALLY_STORE_DRIVER"); v != "" {
		c.Store.Driver = v
	}
	if v := os.Getenv("TALLY_STORE_DSN"); v != "" {
		c.Store.DSN = v
	}
	if v := os.Getenv("TALLY_SNAPSHOT_PATH"); v != "" {
		c.Store.SnapshotPath = v
	}
	if v := os.Getenv("TALLY_BRANCH"); v != "" {
		c.Ledgers.Branch = v
	}
	if v := os.Getenv("TALLY_KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
		c.Kafka.Enabled = true
	}
	if v := os.Getenv("TALLY_AUTH_SECRET"); v != "" {
		c.Auth.Secret = v
	}
	if v := os.Getenv("TALLY_TOKEN"); v != "" {
		c.Auth.Token = v
	}
}
