package chain

import (
	"context"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
	associatedtokenaccount "github.com/gagliardetto/solana-go/programs/associated-token-account"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/gagliardetto/solana-go/rpc"

	"stablesell/pkg/keymat"
	"stablesell/pkg/settlement"
)

// SolanaRPC is the slice of the Solana RPC surface this adapter needs.
// *rpc.Client satisfies it; tests supply a fake.
type SolanaRPC interface {
	GetRecentBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetRecentBlockhashResult, error)
	SendTransactionWithOpts(ctx context.Context, tx *solana.Transaction, opts rpc.TransactionOpts) (solana.Signature, error)
}

// SolanaAdapter signs and broadcasts SPL token transfers. Token balances
// live in associated token accounts, so a transfer to a recipient whose
// token account does not exist yet must create it in the same transaction,
// funded by the signer.
type SolanaAdapter struct {
	rpc           SolanaRPC
	commitment    rpc.CommitmentType
	skipPreflight bool
}

// SolanaOption configures a SolanaAdapter.
type SolanaOption func(*SolanaAdapter)

// WithCommitment sets the preflight commitment level.
func WithCommitment(c rpc.CommitmentType) SolanaOption {
	return func(a *SolanaAdapter) {
		if c != "" {
			a.commitment = c
		}
	}
}

// WithSkipPreflight disables broadcast simulation. Preflight is on by
// default; a simulation failure surfaces as ErrTransactionRejected instead
// of burning fees on-chain.
func WithSkipPreflight(skip bool) SolanaOption {
	return func(a *SolanaAdapter) { a.skipPreflight = skip }
}

// NewSolanaAdapter creates the account-model adapter.
func NewSolanaAdapter(client SolanaRPC, opts ...SolanaOption) *SolanaAdapter {
	a := &SolanaAdapter{
		rpc:        client,
		commitment: rpc.CommitmentConfirmed,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Network implements Adapter.
func (a *SolanaAdapter) Network() settlement.Network { return settlement.NetworkSolana }

type solanaSignedTx struct {
	tx  *solana.Transaction
	raw []byte
}

func (t *solanaSignedTx) Hash() string {
	if len(t.tx.Signatures) == 0 {
		return ""
	}
	return t.tx.Signatures[0].String()
}

func (t *solanaSignedTx) Bytes() []byte { return t.raw }

// BuildAndSign implements Adapter. The plan's token-account addresses are
// server-resolved and trusted, but their syntax is validated here; the
// blockhash is fetched immediately before signing because a stale one gets
// the transaction rejected on-chain.
func (a *SolanaAdapter) BuildAndSign(ctx context.Context, plan *settlement.TransactionPlan, secret *keymat.Secret, progress ProgressFunc) (SignedTx, error) {
	notify(progress, "Deriving keypair")

	raw := secret.Bytes()
	if len(raw) != 64 {
		return nil, fmt.Errorf("%w: secret is not an ed25519 keypair", keymat.ErrInvalidKeyEncoding)
	}
	priv := solana.PrivateKey(raw)
	pub := priv.PublicKey()

	if pub.String() != plan.FromAddress {
		return nil, ErrKeyAddressMismatch
	}

	notify(progress, "Validating token accounts")

	source, err := solana.PublicKeyFromBase58(plan.SourceTokenAccount)
	if err != nil {
		return nil, fmt.Errorf("%w: source token account", ErrInvalidPlan)
	}
	dest, err := solana.PublicKeyFromBase58(plan.DestTokenAccount)
	if err != nil {
		return nil, fmt.Errorf("%w: destination token account", ErrInvalidPlan)
	}
	owner, err := solana.PublicKeyFromBase58(plan.ToAddress)
	if err != nil {
		return nil, fmt.Errorf("%w: destination owner", ErrInvalidPlan)
	}
	mint, err := solana.PublicKeyFromBase58(plan.TokenIdentifier)
	if err != nil {
		return nil, fmt.Errorf("%w: token mint", ErrInvalidPlan)
	}

	instructions := []solana.Instruction{}

	// A transfer into a non-existent token account fails atomically, so the
	// account must be created first, funded by the signer.
	if !plan.DestAccountExists {
		notify(progress, "Adding token account creation")
		createIx := associatedtokenaccount.NewCreateInstruction(
			pub,   // payer
			owner, // wallet
			mint,
		).Build()
		instructions = append(instructions, createIx)
	}

	transferIx := token.NewTransferInstruction(
		plan.TokenAmountRaw,
		source,
		dest,
		pub,
		[]solana.PublicKey{},
	).Build()
	instructions = append(instructions, transferIx)

	notify(progress, "Fetching recent blockhash")
	recent, err := a.rpc.GetRecentBlockhash(ctx, a.commitment)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetworkUnavailable, err)
	}

	tx, err := solana.NewTransaction(
		instructions,
		recent.Value.Blockhash,
		solana.TransactionPayer(pub),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build transaction: %w", err)
	}

	notify(progress, "Signing transaction")
	_, err = tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(pub) {
			return &priv
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}

	serialized, err := tx.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize transaction: %w", err)
	}

	return &solanaSignedTx{tx: tx, raw: serialized}, nil
}

// Broadcast implements Adapter. Preflight simulation is enabled unless the
// adapter was configured otherwise; failures are never silently retried.
func (a *SolanaAdapter) Broadcast(ctx context.Context, signed SignedTx) (string, error) {
	st, ok := signed.(*solanaSignedTx)
	if !ok {
		return "", fmt.Errorf("signed transaction is not a solana transaction")
	}

	sig, err := a.rpc.SendTransactionWithOpts(ctx, st.tx, rpc.TransactionOpts{
		SkipPreflight:       a.skipPreflight,
		PreflightCommitment: a.commitment,
	})
	if err != nil {
		return "", classifySolanaError(err)
	}
	return sig.String(), nil
}

func classifySolanaError(err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "insufficient funds for fee"),
		strings.Contains(msg, "insufficient lamports"):
		return fmt.Errorf("%w: %v", ErrInsufficientFundsForFee, err)
	case strings.Contains(msg, "simulation failed"),
		strings.Contains(msg, "custom program error"),
		strings.Contains(msg, "blockhash not found"),
		strings.Contains(msg, "invalid"):
		return fmt.Errorf("%w: %v", ErrTransactionRejected, err)
	case strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "timeout"),
		strings.Contains(msg, "no such host"),
		strings.Contains(msg, "eof"):
		return fmt.Errorf("%w: %v", ErrNetworkUnavailable, err)
	default:
		return fmt.Errorf("%w: %v", ErrTransactionRejected, err)
	}
}
