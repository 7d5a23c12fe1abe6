package cmd

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/gagliardetto/solana-go/rpc"

	"stablesell/config"
	"stablesell/pkg/chain"
)

// buildRegistry wires one adapter per configured network.
func buildRegistry(cfg *config.Config) (*chain.Registry, error) {
	adapters := []chain.Adapter{}

	if cfg.Solana.RPCUrl != "" {
		solClient := rpc.New(cfg.Solana.RPCUrl)
		adapters = append(adapters, chain.NewSolanaAdapter(solClient,
			chain.WithCommitment(parseCommitment(cfg.Solana.Commitment)),
			chain.WithSkipPreflight(cfg.Solana.SkipPreflight),
		))
	}

	if cfg.EVM.RPCUrl != "" {
		evmClient, err := ethclient.Dial(cfg.EVM.RPCUrl)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to EVM RPC: %w", err)
		}
		opts := []chain.EVMOption{}
		if cfg.EVM.GasLimit > 0 {
			opts = append(opts, chain.WithGasLimit(cfg.EVM.GasLimit))
		}
		if cfg.EVM.GasPriceWei > 0 {
			opts = append(opts, chain.WithGasPrice(big.NewInt(cfg.EVM.GasPriceWei)))
		}
		adapters = append(adapters, chain.NewEVMAdapter(evmClient, cfg.EVM.ChainID, opts...))
	}

	if len(adapters) == 0 {
		return nil, fmt.Errorf("no networks configured: set solana.rpc_url and/or evm.rpc_url")
	}

	return chain.NewRegistry(adapters...), nil
}

func parseCommitment(s string) rpc.CommitmentType {
	switch strings.ToLower(s) {
	case "finalized":
		return rpc.CommitmentFinalized
	case "processed":
		return rpc.CommitmentProcessed
	default:
		return rpc.CommitmentConfirmed
	}
}

func newLogger(cfg *config.Config) *log.Logger {
	logger := log.Default()
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		logger.SetLevel(log.DebugLevel)
	case "warn", "warning":
		logger.SetLevel(log.WarnLevel)
	case "error":
		logger.SetLevel(log.ErrorLevel)
	default:
		logger.SetLevel(log.InfoLevel)
	}
	return logger
}
