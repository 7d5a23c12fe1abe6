package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// SolanaConfig configures the account-model adapter.
type SolanaConfig struct {
	RPCUrl        string
	Commitment    string
	SkipPreflight bool
}

// EVMConfig configures the contract-call adapter.
type EVMConfig struct {
	RPCUrl      string
	ChainID     int64
	GasLimit    uint64 // 0 means estimate per transaction
	GasPriceWei int64  // 0 means ask the node
}

// Config holds the application configuration.
type Config struct {
	APIBaseURL string
	APIToken   string

	MinSellAmount float64
	PollInterval  time.Duration

	Solana SolanaConfig
	EVM    EVMConfig

	LogLevel string
}

// Load reads configuration from environment variables and an optional
// .stablesell.yaml in $HOME or the working directory.
func Load() (*Config, error) {
	viper.SetConfigName(".stablesell")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("$HOME")
	viper.AddConfigPath(".")

	viper.SetDefault("api_base_url", "https://api.stablesell.example.com")
	viper.SetDefault("min_sell_amount", 1.0)
	viper.SetDefault("poll_interval_seconds", 8)
	viper.SetDefault("solana.rpc_url", "https://api.mainnet-beta.solana.com")
	viper.SetDefault("solana.commitment", "confirmed")
	viper.SetDefault("solana.skip_preflight", false)
	viper.SetDefault("evm.chain_id", 137)
	viper.SetDefault("log_level", "info")

	viper.SetEnvPrefix("STABLESELL")
	viper.AutomaticEnv()

	// Config file is optional.
	_ = viper.ReadInConfig()

	cfg := &Config{
		APIBaseURL:    viper.GetString("api_base_url"),
		APIToken:      viper.GetString("api_token"),
		MinSellAmount: viper.GetFloat64("min_sell_amount"),
		PollInterval:  time.Duration(viper.GetInt("poll_interval_seconds")) * time.Second,
		Solana: SolanaConfig{
			RPCUrl:        viper.GetString("solana.rpc_url"),
			Commitment:    viper.GetString("solana.commitment"),
			SkipPreflight: viper.GetBool("solana.skip_preflight"),
		},
		EVM: EVMConfig{
			RPCUrl:      viper.GetString("evm.rpc_url"),
			ChainID:     viper.GetInt64("evm.chain_id"),
			GasLimit:    viper.GetUint64("evm.gas_limit"),
			GasPriceWei: viper.GetInt64("evm.gas_price_wei"),
		},
		LogLevel: viper.GetString("log_level"),
	}

	if cfg.APIToken == "" {
		return nil, fmt.Errorf("API token not found. Set STABLESELL_API_TOKEN or add api_token to .stablesell.yaml")
	}

	return cfg, nil
}
