package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"orderly/models"
)

// writeTempConfig writes content to a temporary YAML file and returns its path.
func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeTempConfig(t, `orderly:
  name: "TestApp"
  version: "1.0"
market:
  symbol: "ETH/BTC"
  depth: 5
exchanges:
  kraken:
    enabled: false
  gateio:
    enabled: false
    url: "wss://example.invalid/ws"
reader:
  idle_timeout: 5s
  ping_interval: 2s
distributor:
  queue_size: 4
server:
  grpc_port: 6000
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Orderly.Name != "TestApp" {
		t.Errorf("unexpected name: %s", cfg.Orderly.Name)
	}
	if cfg.Market.Symbol != "ETH/BTC" || cfg.Market.Depth != 5 {
		t.Errorf("unexpected market: %+v", cfg.Market)
	}
	// Unset values keep their defaults.
	if cfg.Market.ConnectorDepth != 10 {
		t.Errorf("unexpected connector depth: %d", cfg.Market.ConnectorDepth)
	}
	if cfg.Reader.IdleTimeout != 5*time.Second {
		t.Errorf("unexpected idle timeout: %s", cfg.Reader.IdleTimeout)
	}
	if cfg.Reader.Retry.MaxDelay != 30*time.Second {
		t.Errorf("unexpected max delay: %s", cfg.Reader.Retry.MaxDelay)
	}
	if cfg.Server.GRPCPort != 6000 {
		t.Errorf("unexpected port: %d", cfg.Server.GRPCPort)
	}

	venues := cfg.EnabledExchanges()
	want := []models.Exchange{models.Bitstamp, models.Binance, models.Coinbase}
	if len(venues) != len(want) {
		t.Fatalf("expected %d venues, got %d", len(want), len(venues))
	}
	for i, v := range venues {
		if v.Exchange != want[i] {
			t.Errorf("venue %d = %s, want %s", i, v.Exchange, want[i])
		}
	}
}

func TestLoadConfigMissingExplicitFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadConfigInvalid(t *testing.T) {
	cases := map[string]string{
		"bad symbol":   "market:\n  symbol: BTCUSDT\n",
		"zero depth":   "market:\n  depth: 0\n",
		"no exchanges": "exchanges:\n  bitstamp: {enabled: false}\n  binance: {enabled: false}\n  kraken: {enabled: false}\n  coinbase: {enabled: false}\n  gateio: {enabled: false}\n",
		"bad port":     "server:\n  grpc_port: 70000\n",
		"kafka":        "sinks:\n  kafka:\n    enabled: true\n",
		"redis":        "sinks:\n  redis:\n    enabled: true\n",
		"retry":        "reader:\n  retry:\n    base_delay: 10s\n    max_delay: 1s\n",
		"flat backoff": "reader:\n  retry:\n    multiplier: 1\n",
		"ping":         "reader:\n  idle_timeout: 10s\n  ping_interval: 10s\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := LoadConfig(writeTempConfig(t, content)); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestApplyOverrides(t *testing.T) {
	cfg := Default()
	err := cfg.Apply(Overrides{
		Symbol:   "ETH/USDT",
		Port:     7000,
		Disabled: []string{"kraken", "gate.io"},
	})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if cfg.Market.Symbol != "ETH/USDT" || cfg.Server.GRPCPort != 7000 {
		t.Errorf("overrides not applied: %+v %+v", cfg.Market, cfg.Server)
	}
	if cfg.Exchanges.Kraken.Enabled || cfg.Exchanges.Gateio.Enabled {
		t.Errorf("expected kraken and gateio disabled")
	}
	if len(cfg.EnabledExchanges()) != 3 {
		t.Errorf("expected 3 venues, got %d", len(cfg.EnabledExchanges()))
	}

	if err := cfg.Apply(Overrides{Disabled: []string{"ftx"}}); err == nil {
		t.Errorf("expected error for unknown exchange")
	}
	if err := cfg.Apply(Overrides{Disabled: []string{"bitstamp", "binance", "coinbase"}}); err == nil {
		t.Errorf("expected error when every venue is disabled")
	}
}

func TestAppEnvironment(t *testing.T) {
	t.Setenv(appEnvVar, " Prod ")
	if got := AppEnvironment(); got != EnvironmentProduction {
		t.Errorf("AppEnvironment() = %q, want production", got)
	}
	if !IsProductionLike(AppEnvironment()) {
		t.Errorf("production should be production-like")
	}

	t.Setenv(appEnvVar, "")
	if got := AppEnvironment(); got != EnvironmentDevelopment {
		t.Errorf("AppEnvironment() = %q, want development", got)
	}
	if IsProductionLike(EnvironmentDevelopment) {
		t.Errorf("development should not be production-like")
	}
}

func TestResolveEnvSpecificPath(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, "config.staging.yml")
	if err := os.WriteFile(envPath, []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}
	envPaths := map[string]string{EnvironmentStaging: envPath}

	t.Setenv(appEnvVar, "staging")
	if got := resolveEnvSpecificPath("", "default.yml", envPaths); got != envPath {
		t.Errorf("expected staging path, got %s", got)
	}
	if got := resolveEnvSpecificPath("custom.yml", "default.yml", envPaths); got != "custom.yml" {
		t.Errorf("explicit path should win, got %s", got)
	}

	t.Setenv(appEnvVar, "development")
	if got := resolveEnvSpecificPath("", "default.yml", envPaths); got != "default.yml" {
		t.Errorf("expected default path, got %s", got)
	}
}
