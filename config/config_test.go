package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"littercoin/crypto"
)

func TestLoadCreatesDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RPCAddress != ":8080" || cfg.OpsAddress != ":9090" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.Oracle.Mode != "manual" || cfg.Oracle.ManualPrice != "1.0" {
		t.Fatalf("unexpected oracle defaults: %+v", cfg.Oracle)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected config file persisted: %v", err)
	}
	if cfg.AdminKeystorePath == "" {
		t.Fatalf("expected keystore path recorded")
	}
	key, err := crypto.LoadFromKeystore(cfg.AdminKeystorePath, "")
	if err != nil {
		t.Fatalf("load keystore: %v", err)
	}
	if key.PubKey().Address().IsZero() {
		t.Fatalf("expected non-zero admin address")
	}

	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.AdminKeystorePath != cfg.AdminKeystorePath {
		t.Fatalf("keystore path changed on reload: %s vs %s", reloaded.AdminKeystorePath, cfg.AdminKeystorePath)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := "RPCAddress = \":8080\"\nBogusKey = true\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "unknown key") {
		t.Fatalf("expected unknown key error, got %v", err)
	}
}

func TestLoadExistingProvisionsKeystore(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := strings.Join([]string{
		`RPCAddress = ":7545"`,
		``,
		`[Oracle]`,
		`Mode = "manual"`,
		`ManualPrice = "0.25"`,
	}, "\n")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RPCAddress != ":7545" {
		t.Fatalf("configured address lost: %s", cfg.RPCAddress)
	}
	if cfg.OpsAddress != ":9090" || cfg.Environment != "development" {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
	if cfg.AdminKeystorePath == "" {
		t.Fatalf("expected keystore provisioned")
	}
	if _, err := os.Stat(cfg.AdminKeystorePath); err != nil {
		t.Fatalf("keystore file missing: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read config: %v", err)
	}
	if !strings.Contains(string(raw), "admin.keystore") {
		t.Fatalf("keystore path not persisted back:\n%s", raw)
	}
}

func TestValidateOracle(t *testing.T) {
	cfg := &Config{Oracle: Oracle{Mode: "coingecko"}}
	applyDefaults(cfg)
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for coingecko without asset")
	}
	cfg.Oracle.AssetID = "bitcoin"
	cfg.Oracle.Currency = "usd"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cfg.Oracle.Mode = "astrology"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected unknown mode error")
	}
}

func TestSecretResolution(t *testing.T) {
	cfg := &Config{
		RPCAuthTokenEnv:    "LITTERCOIN_TEST_TOKEN",
		AdminJWTSecretEnv:  "LITTERCOIN_TEST_JWT",
		AdminPassphraseEnv: "LITTERCOIN_TEST_PASS",
	}
	t.Setenv("LITTERCOIN_TEST_TOKEN", "tok")
	t.Setenv("LITTERCOIN_TEST_JWT", "jwt")
	t.Setenv("LITTERCOIN_TEST_PASS", "pass")
	if cfg.RPCAuthToken() != "tok" || cfg.AdminJWTSecret() != "jwt" || cfg.AdminPassphrase() != "pass" {
		t.Fatalf("env secrets not resolved")
	}
	empty := &Config{}
	if empty.RPCAuthToken() != "" {
		t.Fatalf("expected empty token without env name")
	}
}
