// Package chain builds, signs, and broadcasts the token transfer that funds
// a sell. Each supported network has its own Adapter; a Registry dispatches
// by network tag so callers never branch on chain type themselves.
package chain

import (
	"context"
	"errors"
	"fmt"

	"stablesell/pkg/keymat"
	"stablesell/pkg/settlement"
)

// Sentinel errors shared by all adapters. Checked with errors.Is at the UI
// boundary, where each class gets its own affordance.
var (
	// ErrKeyAddressMismatch means the derived signer address does not match
	// the plan's from-address. Fatal to the attempt: the user selected a
	// wallet that does not belong to the supplied key.
	ErrKeyAddressMismatch = errors.New("key does not match the selected wallet address")

	// ErrInsufficientFundsForFee means the fee payer lacks native coin for
	// gas. Distinct from an insufficient token balance.
	ErrInsufficientFundsForFee = errors.New("insufficient funds for network fee")

	// ErrTransactionRejected means the node refused the transaction during
	// simulation or broadcast. Never retried automatically.
	ErrTransactionRejected = errors.New("transaction rejected by network")

	// ErrNetworkUnavailable is a transient transport failure. Eligible for a
	// user-initiated retry only: silently rebroadcasting with a stale
	// blockhash or nonce is unsafe.
	ErrNetworkUnavailable = errors.New("network unavailable")

	// ErrInvalidPlan means the server-supplied plan carries an address that
	// is not well-formed for the network.
	ErrInvalidPlan = errors.New("transaction plan contains a malformed address")
)

// ProgressFunc receives a human-readable note at each signing sub-step, for
// UI feedback. May be nil.
type ProgressFunc func(step string)

func notify(progress ProgressFunc, step string) {
	if progress != nil {
		progress(step)
	}
}

// SignedTx is a fully signed, serialized transaction ready to broadcast.
type SignedTx interface {
	// Hash returns the transaction identifier the network will know it by.
	Hash() string

	// Bytes returns the serialized wire form.
	Bytes() []byte
}

// Adapter knows how to build, sign, and broadcast a token transfer for one
// network. BuildAndSign must verify the derived signer address against the
// plan before producing a signature, and must never retain or emit the
// secret.
type Adapter interface {
	Network() settlement.Network
	BuildAndSign(ctx context.Context, plan *settlement.TransactionPlan, secret *keymat.Secret, progress ProgressFunc) (SignedTx, error)
	Broadcast(ctx context.Context, tx SignedTx) (string, error)
}

// Registry is the dispatch table from network tag to adapter.
type Registry struct {
	adapters map[settlement.Network]Adapter
}

// NewRegistry builds a registry from the given adapters.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[settlement.Network]Adapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.Network()] = a
	}
	return r
}

// For returns the adapter registered for the network.
func (r *Registry) For(n settlement.Network) (Adapter, error) {
	a, ok := r.adapters[n]
	if !ok {
		return nil, fmt.Errorf("no adapter registered for network %q", n)
	}
	return a, nil
}
