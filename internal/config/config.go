// Package config loads the bridge coordinator's environment-variable
// configuration through github.com/spf13/viper, with one struct per
// concern: chain A, chain B, threshold scheme, database, validator, API.
//
// Every key in the enumerated environment-variable list is bound
// explicitly; anything else shaped like one of this program's own
// variables but not on that list is rejected at startup, so configuration
// mistakes fail fast instead of silently running with defaults.
package config

import (
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/bridgerelay/coordinator/internal/threshold"
)

// recognizedKeys is the fixed, enumerated set of environment variables this
// program understands. Config keys are case-insensitive in viper; this set
// is upper-case to match env var convention.
var recognizedKeys = map[string]bool{
	"A_RPC_URL": true, "A_WS_URL": true, "A_CHAIN_ID": true, "A_BRIDGE_CONTRACT": true,
	"A_CONFIRMATIONS": true, "A_GAS_LIMIT": true, "A_GAS_PRICE": true, "A_PRIVATE_KEY": true,
	"A_START_BLOCK": true,
	"B_WS_URL": true, "B_PALLET_NAME": true, "B_CONFIRMATIONS": true, "B_ACCOUNT_SEED": true,
	"B_START_BLOCK": true,
	"THRESHOLD_SCHEME": true, "THRESHOLD_K": true, "THRESHOLD_N": true,
	"SIGNATURE_TIMEOUT": true,
	"DATABASE_URL":      true,
	"POLL_INTERVAL":     true,
	"MAX_RETRIES":       true,
	"VALIDATOR_ID":      true, "VALIDATOR_PRIVATE_KEY": true, "VALIDATOR_ENABLED": true,
	"API_HOST": true, "API_PORT": true,
	"LOG_LEVEL": true,
}

// recognizedPrefixes flags which env vars are "ours" for the unknown-key
// check below, so unrelated environment variables (PATH, HOME, ...) never
// trip it.
var recognizedPrefixes = []string{"A_", "B_", "THRESHOLD_", "VALIDATOR_", "API_"}

// ChainAConfig is Chain-A's (EVM-style) wiring.
type ChainAConfig struct {
	RPCURL         string
	WSURL          string
	ChainID        *big.Int
	BridgeContract common.Address
	Confirmations  uint64
	GasLimit       uint64
	GasPrice       *big.Int
	PrivateKey     string
	StartBlock     uint64
}

// ChainBConfig is Chain-B's (parachain-style) wiring.
type ChainBConfig struct {
	WSURL         string
	PalletName    string
	Confirmations uint64
	AccountSeed   string
	StartBlock    uint64
}

// ThresholdConfigOpts is the (k,n) scheme plus the signature session
// timeout, bound together because THRESHOLD_K/THRESHOLD_N/SIGNATURE_TIMEOUT
// all describe the same signing-session lifecycle.
type ThresholdConfigOpts struct {
	Scheme           threshold.Scheme
	K                int
	N                int
	SignatureTimeout time.Duration
}

// ValidatorConfig describes this process's own participation in the
// threshold scheme. PrivateKey is never logged.
type ValidatorConfig struct {
	ID         threshold.ValidatorID
	PrivateKey string
	Enabled    bool
}

// APIConfig is the read façade's listen address.
type APIConfig struct {
	Host string
	Port int
}

// Config is the coordinator's fully resolved configuration.
type Config struct {
	ChainA       ChainAConfig
	ChainB       ChainBConfig
	Threshold    ThresholdConfigOpts
	DatabaseURL  string
	PollInterval time.Duration
	MaxRetries   int
	Validator    ValidatorConfig
	API          APIConfig
	LogLevel     string
}

// Load binds every recognized environment variable, applies defaults for
// the ones that are optional, and validates the result. It rejects any
// A_/B_/THRESHOLD_/VALIDATOR_/API_-prefixed environment variable that is
// not in the fixed list, rather than silently ignoring it.
func Load() (*Config, error) {
	if err := checkUnknownKeys(); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("A_CONFIRMATIONS", 12)
	v.SetDefault("A_GAS_LIMIT", 300000)
	v.SetDefault("A_GAS_PRICE", "20000000000")
	v.SetDefault("A_START_BLOCK", 0)
	v.SetDefault("B_CONFIRMATIONS", 1)
	v.SetDefault("B_START_BLOCK", 0)
	v.SetDefault("THRESHOLD_SCHEME", string(threshold.SchemeThreshold))
	v.SetDefault("SIGNATURE_TIMEOUT", 120)
	v.SetDefault("POLL_INTERVAL", 5)
	v.SetDefault("MAX_RETRIES", 10)
	v.SetDefault("VALIDATOR_ENABLED", false)
	v.SetDefault("API_HOST", "0.0.0.0")
	v.SetDefault("API_PORT", 8080)
	v.SetDefault("LOG_LEVEL", "info")

	for key := range recognizedKeys {
		_ = v.BindEnv(key)
	}

	chainID, ok := new(big.Int).SetString(v.GetString("A_CHAIN_ID"), 10)
	if !ok {
		chainID = big.NewInt(0)
	}
	gasPrice, ok := new(big.Int).SetString(v.GetString("A_GAS_PRICE"), 10)
	if !ok {
		gasPrice = big.NewInt(0)
	}

	cfg := &Config{
		ChainA: ChainAConfig{
			RPCURL:         v.GetString("A_RPC_URL"),
			WSURL:          v.GetString("A_WS_URL"),
			ChainID:        chainID,
			BridgeContract: common.HexToAddress(v.GetString("A_BRIDGE_CONTRACT")),
			Confirmations:  v.GetUint64("A_CONFIRMATIONS"),
			GasLimit:       v.GetUint64("A_GAS_LIMIT"),
			GasPrice:       gasPrice,
			PrivateKey:     v.GetString("A_PRIVATE_KEY"),
			StartBlock:     v.GetUint64("A_START_BLOCK"),
		},
		ChainB: ChainBConfig{
			WSURL:         v.GetString("B_WS_URL"),
			PalletName:    v.GetString("B_PALLET_NAME"),
			Confirmations: v.GetUint64("B_CONFIRMATIONS"),
			AccountSeed:   v.GetString("B_ACCOUNT_SEED"),
			StartBlock:    v.GetUint64("B_START_BLOCK"),
		},
		Threshold: ThresholdConfigOpts{
			Scheme:           threshold.Scheme(v.GetString("THRESHOLD_SCHEME")),
			K:                v.GetInt("THRESHOLD_K"),
			N:                v.GetInt("THRESHOLD_N"),
			SignatureTimeout: time.Duration(v.GetInt64("SIGNATURE_TIMEOUT")) * time.Second,
		},
		DatabaseURL:  v.GetString("DATABASE_URL"),
		PollInterval: time.Duration(v.GetInt64("POLL_INTERVAL")) * time.Second,
		MaxRetries:   v.GetInt("MAX_RETRIES"),
		Validator: ValidatorConfig{
			ID:         threshold.ValidatorID(v.GetString("VALIDATOR_ID")),
			PrivateKey: v.GetString("VALIDATOR_PRIVATE_KEY"),
			Enabled:    v.GetBool("VALIDATOR_ENABLED"),
		},
		API: APIConfig{
			Host: v.GetString("API_HOST"),
			Port: v.GetInt("API_PORT"),
		},
		LogLevel: v.GetString("LOG_LEVEL"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects an invalid threshold (k>n, k=0) or missing required env,
// failing fast at startup.
func (c *Config) Validate() error {
	if c.Threshold.K <= 0 {
		return errors.New("config: THRESHOLD_K must be positive")
	}
	if c.Threshold.N <= 0 {
		return errors.New("config: THRESHOLD_N must be positive")
	}
	if c.Threshold.K > c.Threshold.N {
		return errors.Errorf("config: THRESHOLD_K (%d) must not exceed THRESHOLD_N (%d)", c.Threshold.K, c.Threshold.N)
	}
	if c.Threshold.Scheme != threshold.SchemeThreshold && c.Threshold.Scheme != threshold.SchemeSimplified {
		return errors.Errorf("config: unrecognized THRESHOLD_SCHEME %q", c.Threshold.Scheme)
	}
	if c.DatabaseURL == "" {
		return errors.New("config: DATABASE_URL is required")
	}
	if c.ChainA.RPCURL == "" {
		return errors.New("config: A_RPC_URL is required")
	}
	if c.ChainB.WSURL == "" {
		return errors.New("config: B_WS_URL is required")
	}
	if c.Validator.Enabled && c.Validator.ID == "" {
		return errors.New("config: VALIDATOR_ID is required when VALIDATOR_ENABLED=true")
	}
	if c.Validator.Enabled && c.Validator.PrivateKey == "" {
		return errors.New("config: VALIDATOR_PRIVATE_KEY is required when VALIDATOR_ENABLED=true")
	}
	return nil
}

func checkUnknownKeys() error {
	for _, kv := range os.Environ() {
		name := kv[:strings.IndexByte(kv, '=')]
		if recognizedKeys[name] {
			continue
		}
		for _, prefix := range recognizedPrefixes {
			if strings.HasPrefix(name, prefix) {
				return fmt.Errorf("config: unrecognized environment variable %q", name)
			}
		}
	}
	return nil
}
