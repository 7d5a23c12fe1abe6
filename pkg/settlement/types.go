// Package settlement defines the data model for the sell-settlement pipeline
// and the tracker that polls a settlement to a terminal state.
package settlement

import (
	"fmt"
	"strings"
	"time"
)

// Network identifies which chain adapter, address format, and fee convention
// apply to a wallet. Immutable once a wallet is selected.
type Network string

const (
	// NetworkSolana is the account-model chain: token balances live in
	// associated token accounts derived per owner/mint pair.
	NetworkSolana Network = "solana"

	// NetworkEVM is the contract-call chain: the token contract holds
	// balances directly and transfers are method invocations.
	NetworkEVM Network = "evm"
)

// ParseNetwork normalizes a network string from config or the API.
func ParseNetwork(s string) (Network, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "solana", "sol":
		return NetworkSolana, nil
	case "evm", "eth", "ethereum", "polygon", "bsc":
		return NetworkEVM, nil
	default:
		return "", fmt.Errorf("unsupported network: %q", s)
	}
}

// WalletRef identifies a selectable wallet from the external registry. It is
// a selection key only and carries no key material.
type WalletRef struct {
	ID      string  `json:"id"`
	Address string  `json:"address"`
	Network Network `json:"network"`
	Label   string  `json:"label"`
	Balance string  `json:"balance"`
}

// Quote carries the economic terms attached to a transaction plan. The
// server is authoritative for these; the client displays them verbatim.
type Quote struct {
	FiatToReceive string `json:"fiat_to_receive"`
	ExchangeRate  string `json:"exchange_rate"`
	SpreadPercent string `json:"spread_percent"`
}

// TransactionPlan is the server-issued blueprint for one unsigned transfer.
// A plan is single-use: it is consumed by exactly one signing attempt, and a
// new plan must be fetched whenever the amount or wallet changes.
type TransactionPlan struct {
	Network         Network `json:"network"`
	FromAddress     string  `json:"from_address"`
	ToAddress       string  `json:"to_address"`
	TokenAmount     string  `json:"token_amount"`
	TokenAmountRaw  uint64  `json:"token_amount_raw"`
	TokenIdentifier string  `json:"token_identifier"`
	Decimals        uint8   `json:"decimals"`

	// Account-model chains only: server-resolved associated token accounts.
	SourceTokenAccount string `json:"source_token_account"`
	DestTokenAccount   string `json:"destination_token_account"`
	DestAccountExists  bool   `json:"destination_account_exists"`

	Quote Quote `json:"quote"`
}

// Record is the client-side read-only mirror of a server-tracked settlement.
type Record struct {
	ID              string     `json:"id"`
	Status          string     `json:"status"`
	TokenAmount     string     `json:"token_amount"`
	FiatAmount      string     `json:"fiat_amount"`
	Network         Network    `json:"network"`
	TransactionHash string     `json:"transaction_hash,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}
