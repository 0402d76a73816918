package transaction

import (
	"context"
	"math/big"
	"time"

	"github.com/vitwit/wakurelay/gas"
	"github.com/vitwit/wakurelay/logger"
	"github.com/vitwit/wakurelay/metrics"
	"github.com/vitwit/wakurelay/settlement"
	"github.com/vitwit/wakurelay/types"
)

type GasEstimator interface {
	EstimateGas(ctx context.Context, chain types.ChainRef, tx *types.PopulatedTransaction) (types.GasProfile, error)
}

type FeeExtractor interface {
	UsesRelayAdapt(chain types.ChainRef, tx *types.PopulatedTransaction) (bool, error)
	ExtractPackagedFee(ctx context.Context, chain types.ChainRef, tx *types.PopulatedTransaction, useRelayAdapt bool) (*types.PackagedFee, error)
}

type FeeValidator interface {
	ValidateFee(chain types.ChainRef, tokenAddress string, maximumGas *big.Int, feeCacheID string, packagedFeeAmount *big.Int) error
}

// Pipeline turns a serialized proved transaction into a submission. It holds
// no state of its own, so a failed request can be retried with the same
// inputs.
type Pipeline struct {
	estimator GasEstimator
	extractor FeeExtractor
	validator FeeValidator
	executor  settlement.Executor
	log       logger.Logger
	metrics   metrics.Recorder
}

func NewPipeline(
	estimator GasEstimator,
	extractor FeeExtractor,
	validator FeeValidator,
	executor settlement.Executor,
	log logger.Logger,
	recorder metrics.Recorder,
) *Pipeline {
	if log == nil {
		log = logger.NoopLogger{}
	}
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	return &Pipeline{
		estimator: estimator,
		extractor: extractor,
		validator: validator,
		executor:  executor,
		log:       log.With(map[string]any{"component": "pipeline"}),
		metrics:   recorder,
	}
}

// ProcessTransaction runs deserialize, gas estimation, fee extraction, fee
// validation and gas detail assembly in that order, then hands the
// transaction to the executor. The first failing stage ends processing.
func (p *Pipeline) ProcessTransaction(ctx context.Context, chain types.ChainRef, feeCacheID string, serialized string) (*types.SubmissionResult, error) {
	start := time.Now()
	log := p.log.With(map[string]any{"chain": chain.String(), "feeCacheID": feeCacheID})

	res, err := p.process(ctx, log, chain, feeCacheID, serialized)

	code := "ok"
	if err != nil {
		code = types.ErrorCode(err)
		if code == "" {
			code = types.ErrCodeExecution
		}
	}
	labels := map[string]string{"chain": chain.String(), "code": code}
	p.metrics.IncCounter(metrics.TransactOutcome, labels)
	p.metrics.ObserveLatency(metrics.PipelineLatency, time.Since(start), labels)

	return res, err
}

func (p *Pipeline) process(ctx context.Context, log logger.Logger, chain types.ChainRef, feeCacheID string, serialized string) (*types.SubmissionResult, error) {
	tx, err := types.DeserializePopulatedTransaction(serialized)
	if err != nil {
		log.Warn("could not deserialize transaction", map[string]any{"err": err})
		return nil, err
	}

	estimate, err := p.estimator.EstimateGas(ctx, chain, tx)
	if err != nil {
		return nil, err
	}

	maximumGas, err := gas.CalculateMaximumGas(estimate)
	if err != nil {
		return nil, types.NewError(types.ErrCodeGasEstimate, "could not compute maximum gas", err)
	}
	log.Debug("maximum gas", map[string]any{"maximumGas": maximumGas.String(), "estimate": estimate})

	useRelayAdapt, err := p.extractor.UsesRelayAdapt(chain, tx)
	if err != nil {
		log.Warn("transaction is not for a protocol contract", map[string]any{"to": tx.To.Hex(), "err": err})
		return nil, err
	}

	fee, err := p.extractor.ExtractPackagedFee(ctx, chain, tx, useRelayAdapt)
	if err != nil {
		log.Info("no packaged fee", map[string]any{"relayAdapt": useRelayAdapt, "err": err})
		return nil, err
	}
	log = log.With(map[string]any{"token": fee.TokenAddress})

	if err := p.validator.ValidateFee(chain, fee.TokenAddress, maximumGas, feeCacheID, fee.Amount); err != nil {
		return nil, err
	}
	log.Debug("fee validated", map[string]any{"amount": fee.Amount.String()})

	details, err := gas.CreateTransactionGasDetails(chain, estimate, fee.TokenAddress, fee.Amount)
	if err != nil {
		return nil, types.NewError(types.ErrCodeGasEstimate, "could not assemble gas details", err)
	}

	res, err := p.executor.ExecuteTransaction(ctx, chain, tx, details)
	if err != nil {
		log.Error("execution failed", map[string]any{"err": err})
		if types.ErrorCode(err) == "" {
			return nil, types.NewError(types.ErrCodeExecution, "transaction execution failed", err)
		}
		return nil, err
	}

	log.Info("relayed transaction", map[string]any{"txHash": res.TxHash, "nonce": res.Nonce})
	return res, nil
}
