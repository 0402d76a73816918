package settlement

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/vitwit/wakurelay/gas"
	"github.com/vitwit/wakurelay/logger"
	"github.com/vitwit/wakurelay/types"
)

// Executor submits a validated transaction on-chain.
type Executor interface {
	ExecuteTransaction(ctx context.Context, chain types.ChainRef, tx *types.PopulatedTransaction, details *types.TransactionGasDetails) (*types.SubmissionResult, error)
}

// Backend is the part of a chain client used for submission.
// *clients.EVMClient satisfies it.
type Backend interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SendTransaction(ctx context.Context, tx *ethtypes.Transaction) error
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

type chainState struct {
	backend Backend

	// guards nonce assignment and submission on this chain
	mu        sync.Mutex
	nextNonce uint64
	hasNonce  bool
}

// EVMExecutor signs relayed transactions with the relayer wallet and submits
// them. Submissions on the same chain are serialized so nonces never collide.
type EVMExecutor struct {
	key  *ecdsa.PrivateKey
	from common.Address

	mu     sync.RWMutex
	chains map[types.ChainRef]*chainState

	log logger.Logger
}

var _ Executor = (*EVMExecutor)(nil)

func NewEVMExecutor(key *ecdsa.PrivateKey, log logger.Logger) *EVMExecutor {
	if log == nil {
		log = logger.NoopLogger{}
	}
	return &EVMExecutor{
		key:    key,
		from:   crypto.PubkeyToAddress(key.PublicKey),
		chains: make(map[types.ChainRef]*chainState),
		log:    log.With(map[string]any{"component": "executor"}),
	}
}

// Address is the relayer wallet that pays for gas.
func (e *EVMExecutor) Address() common.Address {
	return e.from
}

func (e *EVMExecutor) AddChain(chain types.ChainRef, backend Backend) error {
	if !chain.IsEVM() {
		return types.NewError(types.ErrCodeUnsupportedChain, fmt.Sprintf("chain %s is not an EVM chain", chain), nil)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.chains[chain] = &chainState{backend: backend}
	return nil
}

func (e *EVMExecutor) chain(chain types.ChainRef) (*chainState, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	state, ok := e.chains[chain]
	if !ok {
		return nil, types.NewError(types.ErrCodeUnsupportedChain, fmt.Sprintf("no executor for chain %s", chain), nil)
	}
	return state, nil
}

// ExecuteTransaction implements Executor.
func (e *EVMExecutor) ExecuteTransaction(ctx context.Context, chain types.ChainRef, tx *types.PopulatedTransaction, details *types.TransactionGasDetails) (*types.SubmissionResult, error) {
	state, err := e.chain(chain)
	if err != nil {
		return nil, err
	}

	state.mu.Lock()
	defer state.mu.Unlock()

	pending, err := state.backend.PendingNonceAt(ctx, e.from)
	if err != nil {
		return nil, types.NewError(types.ErrCodeExecution, "failed to get nonce", err)
	}
	nonce := pending
	if state.hasNonce && state.nextNonce > nonce {
		nonce = state.nextNonce
	}

	unsigned, err := buildTransaction(chain, nonce, tx, details.Gas)
	if err != nil {
		return nil, types.NewError(types.ErrCodeExecution, "failed to build transaction", err)
	}

	signer := ethtypes.LatestSignerForChainID(new(big.Int).SetUint64(chain.ID))
	signed, err := ethtypes.SignTx(unsigned, signer, e.key)
	if err != nil {
		return nil, types.NewError(types.ErrCodeExecution, "failed to sign transaction", err)
	}

	if err := state.backend.SendTransaction(ctx, signed); err != nil {
		e.log.Error("transaction submission failed", map[string]any{
			"chain": chain.String(),
			"nonce": nonce,
			"token": details.TokenAddress,
			"err":   err,
		})
		return nil, types.NewError(types.ErrCodeExecution, "failed to send transaction", err)
	}

	state.nextNonce = nonce + 1
	state.hasNonce = true

	e.log.Info("transaction submitted", map[string]any{
		"chain":  chain.String(),
		"txHash": signed.Hash().Hex(),
		"nonce":  nonce,
		"token":  details.TokenAddress,
		"fee":    details.TokenFeeAmount.String(),
	})

	return &types.SubmissionResult{
		TxHash: signed.Hash().Hex(),
		Nonce:  nonce,
		Chain:  chain,
	}, nil
}

func buildTransaction(chain types.ChainRef, nonce uint64, tx *types.PopulatedTransaction, profile types.GasProfile) (*ethtypes.Transaction, error) {
	if profile == nil || profile.Estimate() == nil {
		return nil, fmt.Errorf("missing gas details")
	}
	limit := gas.CalculateGasLimit(profile.Estimate())
	if !limit.IsUint64() {
		return nil, fmt.Errorf("gas limit %s overflows", limit)
	}
	to := tx.To

	switch g := profile.(type) {
	case *types.LegacyGas:
		return ethtypes.NewTx(&ethtypes.LegacyTx{
			Nonce:    nonce,
			GasPrice: g.GasPrice,
			Gas:      limit.Uint64(),
			To:       &to,
			Value:    tx.ValueOrZero(),
			Data:     tx.Data,
		}), nil
	case *types.DynamicFeeGas:
		return ethtypes.NewTx(&ethtypes.DynamicFeeTx{
			ChainID:   new(big.Int).SetUint64(chain.ID),
			Nonce:     nonce,
			GasTipCap: g.MaxPriorityFeePerGas,
			GasFeeCap: g.MaxFeePerGas,
			Gas:       limit.Uint64(),
			To:        &to,
			Value:     tx.ValueOrZero(),
			Data:      tx.Data,
		}), nil
	default:
		return nil, fmt.Errorf("unknown gas profile %T", profile)
	}
}

// GasTokenBalance returns the relayer wallet's native balance on chain.
func (e *EVMExecutor) GasTokenBalance(ctx context.Context, chain types.ChainRef) (*big.Int, error) {
	state, err := e.chain(chain)
	if err != nil {
		return nil, err
	}
	balance, err := state.backend.BalanceAt(ctx, e.from, nil)
	if err != nil {
		e.log.Error("could not get gas token balance", map[string]any{
			"chain":  chain.String(),
			"wallet": e.from.Hex(),
			"err":    err,
		})
		return nil, fmt.Errorf("gas token balance on chain %s: %w", chain, err)
	}
	return balance, nil
}
