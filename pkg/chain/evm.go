package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"stablesell/pkg/keymat"
	"stablesell/pkg/settlement"
)

// ERC20 transfer function ABI, the only contract surface the sell flow needs.
const erc20TransferABI = `[{"constant":false,"inputs":[{"name":"_to","type":"address"},{"name":"_value","type":"uint256"}],"name":"transfer","outputs":[{"name":"","type":"bool"}],"type":"function"}]`

var erc20ABI abi.ABI

func init() {
	parsed, err := abi.JSON(strings.NewReader(erc20TransferABI))
	if err != nil {
		panic(fmt.Sprintf("invalid ERC20 ABI: %v", err))
	}
	erc20ABI = parsed
}

// EVMRPC is the slice of the ethclient surface this adapter needs.
// *ethclient.Client satisfies it; tests supply a fake.
type EVMRPC interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
}

// EVMAdapter signs and broadcasts ERC-20 transfers. The token contract holds
// balances directly, so there is no account-creation step: a transfer is one
// contract method invocation.
type EVMAdapter struct {
	rpc      EVMRPC
	chainID  *big.Int
	gasLimit uint64   // 0 means estimate
	gasPrice *big.Int // nil means suggest
}

// EVMOption configures an EVMAdapter.
type EVMOption func(*EVMAdapter)

// WithGasLimit pins the gas limit instead of estimating.
func WithGasLimit(limit uint64) EVMOption {
	return func(a *EVMAdapter) { a.gasLimit = limit }
}

// WithGasPrice pins the gas price in wei instead of asking the node.
func WithGasPrice(wei *big.Int) EVMOption {
	return func(a *EVMAdapter) { a.gasPrice = wei }
}

// NewEVMAdapter creates the contract-call adapter for the given chain id.
func NewEVMAdapter(client EVMRPC, chainID int64, opts ...EVMOption) *EVMAdapter {
	a := &EVMAdapter{
		rpc:     client,
		chainID: big.NewInt(chainID),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Network implements Adapter.
func (a *EVMAdapter) Network() settlement.Network { return settlement.NetworkEVM }

type evmSignedTx struct {
	tx  *types.Transaction
	raw []byte
}

func (t *evmSignedTx) Hash() string  { return t.tx.Hash().Hex() }
func (t *evmSignedTx) Bytes() []byte { return t.raw }

// BuildAndSign implements Adapter. It packs the token contract's
// transfer(to, amount) call and signs it with the derived account.
func (a *EVMAdapter) BuildAndSign(ctx context.Context, plan *settlement.TransactionPlan, secret *keymat.Secret, progress ProgressFunc) (SignedTx, error) {
	notify(progress, "Deriving account")

	priv, err := crypto.ToECDSA(secret.Bytes())
	if err != nil {
		return nil, fmt.Errorf("%w: secret is not a secp256k1 key", keymat.ErrInvalidKeyEncoding)
	}
	from := crypto.PubkeyToAddress(priv.PublicKey)

	if !common.IsHexAddress(plan.FromAddress) {
		return nil, fmt.Errorf("%w: from address", ErrInvalidPlan)
	}
	if from != common.HexToAddress(plan.FromAddress) {
		return nil, ErrKeyAddressMismatch
	}

	if !common.IsHexAddress(plan.ToAddress) {
		return nil, fmt.Errorf("%w: destination address", ErrInvalidPlan)
	}
	if !common.IsHexAddress(plan.TokenIdentifier) {
		return nil, fmt.Errorf("%w: token contract address", ErrInvalidPlan)
	}
	to := common.HexToAddress(plan.ToAddress)
	tokenContract := common.HexToAddress(plan.TokenIdentifier)

	notify(progress, "Packing contract call")
	data, err := erc20ABI.Pack("transfer", to, new(big.Int).SetUint64(plan.TokenAmountRaw))
	if err != nil {
		return nil, fmt.Errorf("failed to pack transfer call: %w", err)
	}

	notify(progress, "Fetching nonce and gas terms")
	nonce, err := a.rpc.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetworkUnavailable, err)
	}

	gasPrice := a.gasPrice
	if gasPrice == nil {
		gasPrice, err = a.rpc.SuggestGasPrice(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNetworkUnavailable, err)
		}
	}

	gasLimit := a.gasLimit
	if gasLimit == 0 {
		estimated, err := a.rpc.EstimateGas(ctx, ethereum.CallMsg{
			From: from,
			To:   &tokenContract,
			Data: data,
		})
		if err != nil {
			return nil, classifyEVMError(err)
		}
		gasLimit = estimated * 120 / 100
	}

	tx := types.NewTransaction(nonce, tokenContract, big.NewInt(0), gasLimit, gasPrice, data)

	notify(progress, "Signing transaction")
	signed, err := types.SignTx(tx, types.NewEIP155Signer(a.chainID), priv)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}

	raw, err := signed.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize transaction: %w", err)
	}

	return &evmSignedTx{tx: signed, raw: raw}, nil
}

// Broadcast implements Adapter.
func (a *EVMAdapter) Broadcast(ctx context.Context, signed SignedTx) (string, error) {
	st, ok := signed.(*evmSignedTx)
	if !ok {
		return "", fmt.Errorf("signed transaction is not an EVM transaction")
	}

	if err := a.rpc.SendTransaction(ctx, st.tx); err != nil {
		return "", classifyEVMError(err)
	}
	return st.tx.Hash().Hex(), nil
}

func classifyEVMError(err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "insufficient funds"):
		return fmt.Errorf("%w: %v", ErrInsufficientFundsForFee, err)
	case strings.Contains(msg, "execution reverted"),
		strings.Contains(msg, "nonce too low"),
		strings.Contains(msg, "replacement transaction underpriced"),
		strings.Contains(msg, "already known"),
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
