package coin

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultMaxMintAmount = 100
	defaultMaxTransfers  = 1
	defaultDecimals      = 8
	defaultChainID       = 421001
	defaultMaxQuoteAge   = 300 * time.Second
)

// Params bundles the tunable thresholds of the coin ledger. A copy is
// persisted at bootstrap so restarts observe the same limits the ledger was
// opened with.
type Params struct {
	// MaxMintAmount caps how many coins a single voucher may create.
	MaxMintAmount uint64
	// MaxTransfers bounds the custody hops a coin may take after minting.
	MaxTransfers uint64
	// OracleDecimals is the fixed-point scale deposit pricing must use.
	OracleDecimals uint8
	// ChainID scopes mint vouchers to a single deployment.
	ChainID uint64
	// MaxQuoteAge rejects oracle quotes older than this horizon.
	MaxQuoteAge time.Duration
}

// DefaultParams returns the thresholds applied when no policy file overrides
// them.
func DefaultParams() Params {
	return Params{
		MaxMintAmount:  defaultMaxMintAmount,
		MaxTransfers:   defaultMaxTransfers,
		OracleDecimals: defaultDecimals,
		ChainID:        defaultChainID,
		MaxQuoteAge:    defaultMaxQuoteAge,
	}
}

// Normalise fills unset fields with their defaults.
func (p Params) Normalise() Params {
	normalized := p
	if normalized.MaxMintAmount == 0 {
		normalized.MaxMintAmount = defaultMaxMintAmount
	}
	if normalized.MaxTransfers == 0 {
		normalized.MaxTransfers = defaultMaxTransfers
	}
	if normalized.OracleDecimals == 0 {
		normalized.OracleDecimals = defaultDecimals
	}
	if normalized.ChainID == 0 {
		normalized.ChainID = defaultChainID
	}
	if normalized.MaxQuoteAge <= 0 {
		normalized.MaxQuoteAge = defaultMaxQuoteAge
	}
	return normalized
}

// Validate verifies the thresholds fall within a workable domain.
func (p Params) Validate() error {
	if p.MaxMintAmount == 0 {
		return fmt.Errorf("coin: max mint amount must be positive")
	}
	if p.MaxTransfers == 0 {
		return fmt.Errorf("coin: max transfers must be positive")
	}
	if p.OracleDecimals == 0 || p.OracleDecimals > 18 {
		return fmt.Errorf("coin: oracle decimals must be between 1 and 18")
	}
	if p.ChainID == 0 {
		return fmt.Errorf("coin: chain id must be positive")
	}
	if p.MaxQuoteAge <= 0 {
		return fmt.Errorf("coin: max quote age must be positive")
	}
	return nil
}

// paramsFile mirrors the YAML representation of the threshold policy.
type paramsFile struct {
	MaxMintAmount      uint64 `yaml:"max_mint_amount"`
	MaxTransfers       uint64 `yaml:"max_transfers"`
	OracleDecimals     uint8  `yaml:"oracle_decimals"`
	ChainID            uint64 `yaml:"chain_id"`
	MaxQuoteAgeSeconds uint64 `yaml:"max_quote_age_seconds"`
}

// LoadParamsFile reads a threshold policy from the provided YAML file. Missing
// fields fall back to defaults; unknown fields are rejected so typos surface
// at startup instead of silently running with defaults.
func LoadParamsFile(path string) (Params, error) {
	file, err := os.Open(path)
	if err != nil {
		return Params{}, fmt.Errorf("open params policy: %w", err)
	}
	defer file.Close()
	dec := yaml.NewDecoder(file)
	dec.KnownFields(true)
	var entry paramsFile
	if err := dec.Decode(&entry); err != nil {
		return Params{}, fmt.Errorf("decode params policy: %w", err)
	}
	params := Params{
		MaxMintAmount:  entry.MaxMintAmount,
		MaxTransfers:   entry.MaxTransfers,
		OracleDecimals: entry.OracleDecimals,
		ChainID:        entry.ChainID,
		MaxQuoteAge:    time.Duration(entry.MaxQuoteAgeSeconds) * time.Second,
	}.Normalise()
	if err := params.Validate(); err != nil {
		return Params{}, err
	}
	return params, nil
}

type storedParams struct {
	MaxMintAmount  uint64
	MaxTransfers   uint64
	OracleDecimals uint8
	ChainID        uint64
	MaxQuoteAgeSec uint64
}

func toStoredParams(p Params) storedParams {
	return storedParams{
		MaxMintAmount:  p.MaxMintAmount,
		MaxTransfers:   p.MaxTransfers,
		OracleDecimals: p.OracleDecimals,
		ChainID:        p.ChainID,
		MaxQuoteAgeSec: uint64(p.MaxQuoteAge / time.Second),
	}
}

func fromStoredParams(stored storedParams) Params {
	return Params{
		MaxMintAmount:  stored.MaxMintAmount,
		MaxTransfers:   stored.MaxTransfers,
		OracleDecimals: stored.OracleDecimals,
		ChainID:        stored.ChainID,
		MaxQuoteAge:    time.Duration(stored.MaxQuoteAgeSec) * time.Second,
	}
}
