package gas

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/vitwit/wakurelay/logger"
	"github.com/vitwit/wakurelay/types"
	"golang.org/x/sync/errgroup"
)

// ChainBackend is the subset of an execution endpoint needed to price a
// transaction. *clients.EVMClient satisfies it.
type ChainBackend interface {
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*ethtypes.Header, error)
}

type chainEntry struct {
	backend ChainBackend
	model   types.GasModel
}

// Estimator produces a GasProfile for a pending transaction under the gas
// model configured for its chain.
type Estimator struct {
	mu      sync.RWMutex
	chains  map[types.ChainRef]chainEntry
	from    common.Address
	verbose bool
	log     logger.Logger
}

// NewEstimator creates an Estimator that estimates as if sent from the
// relayer wallet. With verbose set, underlying node errors are returned to
// callers instead of a generic GAS_ESTIMATE_ERROR.
func NewEstimator(from common.Address, verbose bool, log logger.Logger) *Estimator {
	if log == nil {
		log = logger.NoopLogger{}
	}
	return &Estimator{
		chains:  make(map[types.ChainRef]chainEntry),
		from:    from,
		verbose: verbose,
		log:     log.With(map[string]any{"component": "gas-estimator"}),
	}
}

func (e *Estimator) AddChain(chain types.ChainRef, model types.GasModel, backend ChainBackend) error {
	if !model.Valid() {
		return types.NewError(types.ErrCodeConfig, fmt.Sprintf("chain %s: unknown gas model %q", chain, model), nil)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.chains[chain] = chainEntry{backend: backend, model: model}
	return nil
}

func (e *Estimator) chain(chain types.ChainRef) (chainEntry, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	entry, ok := e.chains[chain]
	if !ok {
		return chainEntry{}, types.NewError(types.ErrCodeUnsupportedChain, chain.String(), nil)
	}
	return entry, nil
}

// EstimateGas runs the gas-unit estimate and the standard fee lookup
// concurrently and combines them.
func (e *Estimator) EstimateGas(ctx context.Context, chain types.ChainRef, tx *types.PopulatedTransaction) (types.GasProfile, error) {
	entry, err := e.chain(chain)
	if err != nil {
		return nil, err
	}

	var (
		estimate uint64
		standard types.GasProfile
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		estimate, err = entry.backend.EstimateGas(gctx, ethereum.CallMsg{
			From:  e.from,
			To:    &tx.To,
			Data:  tx.Data,
			Value: tx.ValueOrZero(),
		})
		return err
	})
	g.Go(func() error {
		var err error
		standard, err = standardGasDetails(gctx, entry.backend, entry.model)
		return err
	})

	if err := g.Wait(); err != nil {
		e.log.Error("gas estimate error", map[string]any{"chain": chain.String(), "to": tx.To.Hex(), "err": err})
		if e.verbose {
			return nil, types.NewError(types.ErrCodeGasEstimate, "could not estimate gas", err)
		}
		return nil, types.ErrGasEstimate
	}

	gasEstimate := new(big.Int).SetUint64(estimate)
	switch s := standard.(type) {
	case *types.LegacyGas:
		s.GasEstimate = gasEstimate
	case *types.DynamicFeeGas:
		s.GasEstimate = gasEstimate
	}
	return standard, nil
}

// standardGasDetails returns the chain's current pricing with no estimate
// filled in.
func standardGasDetails(ctx context.Context, backend ChainBackend, model types.GasModel) (types.GasProfile, error) {
	switch model {
	case types.GasModelLegacy:
		price, err := backend.SuggestGasPrice(ctx)
		if err != nil {
			return nil, fmt.Errorf("suggest gas price: %w", err)
		}
		return &types.LegacyGas{GasPrice: price}, nil

	case types.GasModelDynamicFee:
		head, err := backend.HeaderByNumber(ctx, nil)
		if err != nil {
			return nil, fmt.Errorf("latest header: %w", err)
		}
		if head.BaseFee == nil {
			return nil, fmt.Errorf("chain has no base fee")
		}
		tip, err := backend.SuggestGasTipCap(ctx)
		if err != nil {
			return nil, fmt.Errorf("suggest gas tip cap: %w", err)
		}
		maxFee := new(big.Int).Mul(head.BaseFee, big.NewInt(2))
		maxFee.Add(maxFee, tip)
		return &types.DynamicFeeGas{MaxFeePerGas: maxFee, MaxPriorityFeePerGas: tip}, nil

	default:
		return nil, fmt.Errorf("unknown gas model %q", model)
	}
}
