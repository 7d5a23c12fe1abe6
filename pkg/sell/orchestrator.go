// Package sell orchestrates one sell attempt end to end: fetch a fresh
// transaction plan, parse the user's key, sign and broadcast through the
// adapter matching the wallet's network, and report the receipt to the
// settlement service. Key material exists only for the span of one Confirm
// call and is zeroed on every exit path.
package sell

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"stablesell/pkg/chain"
	"stablesell/pkg/keymat"
	"stablesell/pkg/settlement"
)

var (
	// ErrAmountBelowMinimum is a local input error; nothing is sent to the
	// server for amounts the backend would reject anyway.
	ErrAmountBelowMinimum = errors.New("amount is below the minimum sell amount")

	// ErrPlanConsumed means the attempt's single-use plan was already spent.
	ErrPlanConsumed = errors.New("transaction plan already consumed; prepare a new attempt")

	// ErrInvalidAmount is returned for unparseable amount strings.
	ErrInvalidAmount = errors.New("invalid token amount")
)

// API is the slice of the settlement service the orchestrator uses.
// *client.Client satisfies it.
type API interface {
	FetchPlan(ctx context.Context, walletID, tokenAmount string, network settlement.Network) (*settlement.TransactionPlan, error)
	Submit(ctx context.Context, walletID, tokenAmount string, network settlement.Network, txHash string) (string, settlement.Status, error)
}

// Orchestrator drives sell attempts. Construct one per session; it holds no
// global state so tests build isolated instances.
type Orchestrator struct {
	api       API
	adapters  *chain.Registry
	minAmount float64
	log       *log.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithMinSellAmount sets the minimum accepted token amount.
func WithMinSellAmount(min float64) Option {
	return func(o *Orchestrator) {
		if min > 0 {
			o.minAmount = min
		}
	}
}

// WithLogger overrides the orchestrator's logger.
func WithLogger(l *log.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.log = l
		}
	}
}

// New creates an orchestrator over the given service client and adapters.
func New(api API, adapters *chain.Registry, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		api:      api,
		adapters: adapters,
		log:      log.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Attempt is one prepared sell: a wallet, an amount, and the single-use plan
// fetched for them. Editing the amount or switching wallets invalidates the
// attempt; the caller prepares a new one.
type Attempt struct {
	ID     string
	Wallet settlement.WalletRef
	Amount string
	Plan   *settlement.TransactionPlan

	orch *Orchestrator

	mu       sync.Mutex
	consumed bool
}

// Outcome is the result of a confirmed attempt. TxHash is set as soon as the
// broadcast succeeds, so a failed submission still leaves the user a handle
// to investigate on-chain.
type Outcome struct {
	SettlementID  string
	InitialStatus settlement.Status
	TxHash        string
}

// Prepare validates the amount and fetches exactly one transaction plan for
// this attempt.
func (o *Orchestrator) Prepare(ctx context.Context, wallet settlement.WalletRef, tokenAmount string) (*Attempt, error) {
	amount, err := strconv.ParseFloat(tokenAmount, 64)
	if err != nil || amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if o.minAmount > 0 && amount < o.minAmount {
		return nil, fmt.Errorf("%w: minimum is %v", ErrAmountBelowMinimum, o.minAmount)
	}

	plan, err := o.api.FetchPlan(ctx, wallet.ID, tokenAmount, wallet.Network)
	if err != nil {
		return nil, err
	}
	if plan.Network != wallet.Network {
		return nil, fmt.Errorf("plan is for network %q, wallet is on %q", plan.Network, wallet.Network)
	}

	attempt := &Attempt{
		ID:     uuid.NewString(),
		Wallet: wallet,
		Amount: tokenAmount,
		Plan:   plan,
		orch:   o,
	}
	o.log.Debug("prepared sell attempt",
		"attempt", attempt.ID,
		"wallet", wallet.ID,
		"network", wallet.Network,
		"amount", tokenAmount)
	return attempt, nil
}

// Confirm consumes the plan: parses the key, signs, broadcasts, and submits
// the receipt. Adapter failures surface their sentinel error without
// submitting anything. The parsed secret never outlives this call.
func (a *Attempt) Confirm(ctx context.Context, secretInput string, progress chain.ProgressFunc) (*Outcome, error) {
	a.mu.Lock()
	if a.consumed {
		a.mu.Unlock()
		return nil, ErrPlanConsumed
	}
	a.consumed = true
	a.mu.Unlock()

	o := a.orch

	secret, err := keymat.Parse(secretInput)
	if err != nil {
		return nil, err
	}
	defer secret.Zero()

	adapter, err := o.adapters.For(a.Plan.Network)
	if err != nil {
		return nil, err
	}

	signed, err := adapter.BuildAndSign(ctx, a.Plan, secret, progress)
	secret.Zero() // signing is done; nothing downstream may read the key
	if err != nil {
		o.log.Debug("signing failed", "attempt", a.ID, "error", err)
		return nil, err
	}

	txHash, err := adapter.Broadcast(ctx, signed)
	if err != nil {
		return nil, err
	}
	o.log.Info("transaction broadcast", "attempt", a.ID, "tx", txHash)

	settlementID, initial, err := o.api.Submit(ctx, a.Wallet.ID, a.Amount, a.Plan.Network, txHash)
	if err != nil {
		// The transfer is already on-chain; hand the hash back with the
		// error so the user can track it externally.
		return &Outcome{TxHash: txHash}, err
	}

	o.log.Info("settlement submitted", "attempt", a.ID, "settlement", settlementID, "status", initial)
	return &Outcome{
		SettlementID:  settlementID,
		InitialStatus: initial,
		TxHash:        txHash,
	}, nil
}
