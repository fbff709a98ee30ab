package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Addr != ":8080" {
		t.Errorf("Addr = %q, want default :8080", cfg.Server.Addr)
	}
	if !cfg.Ledgers.CreditsRequireBranch || cfg.Ledgers.DepositsRequireBranch {
		t.Errorf("branch scoping defaults wrong: %+v", cfg.Ledgers)
	}
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tally.toml")
	content := `
[server]
addr = ":9000"

[store]
driver = "postgres"
dsn = "postgres://localhost/tally"

[ledgers]
branch = "downtown"
window_days = 7
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("TALLY_ADDR", ":7777")
	t.Setenv("TALLY_KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Addr != ":7777" {
		t.Errorf("env override lost: Addr = %q", cfg.Server.Addr)
	}
	if cfg.Store.Driver != "postgres" || cfg.Store.DSN != "postgres://localhost/tally" {
		t.Errorf("file values lost: %+v", cfg.Store)
	}
	if cfg.Ledgers.Branch != "downtown" || cfg.Ledgers.WindowDays != 7 {
		t.Errorf("ledger values lost: %+v", cfg.Ledgers)
	}
	if !cfg.Kafka.Enabled || len(cfg.Kafka.Brokers) != 2 {
		t.Errorf("kafka env parse wrong: %+v", cfg.Kafka)
	}
}
