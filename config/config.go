package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"littercoin/crypto"

	"github.com/BurntSushi/toml"
)

// Oracle selects the price source backing the deposit path. Manual mode pins
// a fixed decimal price; coingecko mode polls the public simple price API.
type Oracle struct {
	Mode        string `toml:"Mode"`
	ManualPrice string `toml:"ManualPrice"`
	AssetID     string `toml:"AssetID"`
	Currency    string `toml:"Currency"`
	Endpoint    string `toml:"Endpoint"`
}

// Config is the on-disk daemon configuration. Secrets are never stored in the
// file itself; the *Env fields name the environment variables that carry them.
type Config struct {
	RPCAddress         string  `toml:"RPCAddress"`
	OpsAddress         string  `toml:"OpsAddress"`
	DataDir            string  `toml:"DataDir"`
	AdminKeystorePath  string  `toml:"AdminKeystorePath"`
	AdminPassphraseEnv string  `toml:"AdminPassphraseEnv"`
	ParamsFile         string  `toml:"ParamsFile"`
	RPCAuthTokenEnv    string  `toml:"RPCAuthTokenEnv"`
	AdminJWTSecretEnv  string  `toml:"AdminJWTSecretEnv"`
	AdminJWTIssuer     string  `toml:"AdminJWTIssuer"`
	RateLimitPerMinute float64 `toml:"RateLimitPerMinute"`
	RateLimitBurst     int     `toml:"RateLimitBurst"`
	Environment        string  `toml:"Environment"`
	OTLPEndpoint       string  `toml:"OTLPEndpoint"`
	Oracle             Oracle  `toml:"Oracle"`
}

// Load loads the configuration from the given path, creating a default file
// and a dev admin keystore on first run.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config file %s contains unknown key %q", path, undecoded[0].String())
	}

	if err := ensureKeystore(path, cfg); err != nil {
		return nil, err
	}

	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.RPCAddress) == "" {
		cfg.RPCAddress = ":8080"
	}
	if strings.TrimSpace(cfg.OpsAddress) == "" {
		cfg.OpsAddress = ":9090"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./littercoin-data"
	}
	if strings.TrimSpace(cfg.Environment) == "" {
		cfg.Environment = "development"
	}
	if strings.TrimSpace(cfg.Oracle.Mode) == "" {
		cfg.Oracle.Mode = "manual"
	}
}

// Validate rejects configurations the daemon cannot run with.
func (c *Config) Validate() error {
	switch strings.ToLower(strings.TrimSpace(c.Oracle.Mode)) {
	case "manual":
		if strings.TrimSpace(c.Oracle.ManualPrice) == "" {
			return fmt.Errorf("oracle: ManualPrice required in manual mode")
		}
	case "coingecko":
		if strings.TrimSpace(c.Oracle.AssetID) == "" || strings.TrimSpace(c.Oracle.Currency) == "" {
			return fmt.Errorf("oracle: AssetID and Currency required in coingecko mode")
		}
	default:
		return fmt.Errorf("oracle: unknown mode %q", c.Oracle.Mode)
	}
	if c.RateLimitPerMinute < 0 {
		return fmt.Errorf("RateLimitPerMinute must not be negative")
	}
	if c.RateLimitBurst < 0 {
		return fmt.Errorf("RateLimitBurst must not be negative")
	}
	return nil
}

// RPCAuthToken resolves the bearer token guarding mutating RPC methods.
func (c *Config) RPCAuthToken() string {
	return envValue(c.RPCAuthTokenEnv)
}

// AdminJWTSecret resolves the HS256 secret verifying admin tokens.
func (c *Config) AdminJWTSecret() string {
	return envValue(c.AdminJWTSecretEnv)
}

// AdminPassphrase resolves the keystore passphrase.
func (c *Config) AdminPassphrase() string {
	return envValue(c.AdminPassphraseEnv)
}

func envValue(name string) string {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return ""
	}
	return os.Getenv(trimmed)
}

func ensureKeystore(configPath string, cfg *Config) error {
	keystorePath := cfg.AdminKeystorePath
	if keystorePath == "" {
		keystorePath = defaultKeystorePath(configPath)
	}

	if _, err := os.Stat(keystorePath); os.IsNotExist(err) {
		key, genErr := crypto.GeneratePrivateKey()
		if genErr != nil {
			return genErr
		}
		if err := crypto.SaveToKeystore(keystorePath, key, envValue(cfg.AdminPassphraseEnv)); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	if cfg.AdminKeystorePath != keystorePath {
		cfg.AdminKeystorePath = keystorePath
		return persist(configPath, cfg)
	}

	return nil
}

// createDefault creates and saves a default configuration file together with
// a freshly generated admin keystore.
func createDefault(path string) (*Config, error) {
	cfg := &Config{
		RPCAddress:         ":8080",
		OpsAddress:         ":9090",
		DataDir:            "./littercoin-data",
		AdminPassphraseEnv: "LITTERCOIN_ADMIN_PASSPHRASE",
		RPCAuthTokenEnv:    "LITTERCOIN_RPC_TOKEN",
		AdminJWTSecretEnv:  "LITTERCOIN_ADMIN_JWT_SECRET",
		AdminJWTIssuer:     "littercoin",
		RateLimitPerMinute: 120,
		RateLimitBurst:     20,
		Environment:        "development",
		Oracle: Oracle{
			Mode:        "manual",
			ManualPrice: "1.0",
		},
	}

	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}
	keystorePath := defaultKeystorePath(path)
	if err := crypto.SaveToKeystore(keystorePath, key, envValue(cfg.AdminPassphraseEnv)); err != nil {
		return nil, err
	}
	cfg.AdminKeystorePath = keystorePath

	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

func defaultKeystorePath(configPath string) string {
	dir := filepath.Dir(configPath)
	if dir == "." || dir == "" {
		dir = ""
	}
	return filepath.Join(dir, "admin.keystore")
}
