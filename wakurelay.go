// Package wakurelay implements a meta-transaction relayer that takes proved
// private transactions from a waku relay network, checks that they pay the
// advertised fee, and submits them on-chain.
package wakurelay

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/vitwit/wakurelay/clients"
	"github.com/vitwit/wakurelay/feecache"
	"github.com/vitwit/wakurelay/gas"
	"github.com/vitwit/wakurelay/logger"
	"github.com/vitwit/wakurelay/metrics"
	"github.com/vitwit/wakurelay/relay"
	"github.com/vitwit/wakurelay/settlement"
	"github.com/vitwit/wakurelay/transaction"
	"github.com/vitwit/wakurelay/types"
	"github.com/vitwit/wakurelay/utils"
	"github.com/vitwit/wakurelay/verification"
)

// Relayer wires the waku transport, the fee cache, the transaction pipeline
// and the chain clients into one running relayer.
type Relayer struct {
	cfg *types.RelayerConfig

	transport relay.Transport
	waku      *clients.WakuClient
	chains    map[types.ChainRef]clients.Client

	fees      *feecache.Cache
	refresher *feecache.Refresher
	pipeline  *transaction.Pipeline
	engine    *relay.Engine

	executor    settlement.Executor
	notes       verification.NoteDecoder
	priceSource feecache.PriceSource

	logger  logger.Logger
	metrics metrics.Recorder
}

// New builds a relayer from cfg. Dialing does not contact the waku node or
// the chain RPCs; Start does.
func New(cfg *types.RelayerConfig, opts ...Option) (*Relayer, error) {
	if cfg == nil {
		return nil, types.NewError(types.ErrCodeConfig, "missing configuration", nil)
	}

	// work on a copy so defaults never leak back into the caller's config
	copied := *cfg
	copied.Chains = append([]types.ChainConfig(nil), cfg.Chains...)
	cfg = &copied
	utils.ApplyDefaults(cfg)
	if err := utils.ValidateConfig(cfg); err != nil {
		return nil, err
	}

	r := &Relayer{
		cfg:     cfg,
		chains:  make(map[types.ChainRef]clients.Client, len(cfg.Chains)),
		logger:  logger.NoopLogger{},
		metrics: metrics.NoopRecorder{},
	}
	for _, opt := range opts {
		opt(r)
	}

	key, err := utils.PrivateKeyFromHex(cfg.SigningKey)
	if err != nil {
		return nil, types.NewError(types.ErrCodeConfig, "invalid signing key", err)
	}

	if r.notes == nil {
		viewingKey, err := verification.ViewingKeyFromHex(cfg.ViewingKey)
		if err != nil {
			return nil, types.NewError(types.ErrCodeConfig, "invalid viewing key", err)
		}
		r.notes = verification.NewBoxNoteDecoder(viewingKey)
	}
	if r.priceSource == nil {
		r.priceSource = feecache.StaticPriceSource{}
	}

	ctx := context.Background()
	if r.transport == nil {
		r.waku, err = clients.NewWakuClient(ctx, cfg.WakuURL, r.logger)
		if err != nil {
			return nil, types.NewError(types.ErrCodeTransport, "failed to create waku client", err)
		}
		r.transport = r.waku
	}

	var evmExecutor *settlement.EVMExecutor
	if r.executor == nil {
		evmExecutor = settlement.NewEVMExecutor(key, r.logger)
		r.executor = evmExecutor
	}

	estimator := gas.NewEstimator(utils.AddressFromPrivateKey(key), cfg.VerboseGasErrors, r.logger)
	extractor := verification.NewFeeExtractor(r.notes, r.logger)
	refs := make([]types.ChainRef, 0, len(cfg.Chains))

	for _, c := range cfg.Chains {
		ref := c.Ref()
		client, err := clients.NewEVMClient(ctx, ref, c.RPCUrl)
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("failed to create client for chain %s: %w", ref, err)
		}
		r.chains[ref] = client

		if err := estimator.AddChain(ref, c.GasModel, client); err != nil {
			r.Close()
			return nil, err
		}
		if evmExecutor != nil {
			if err := evmExecutor.AddChain(ref, client); err != nil {
				r.Close()
				return nil, err
			}
		}
		extractor.AddChain(ref, verification.Contracts{
			Proxy:      common.HexToAddress(c.ProxyContract),
			RelayAdapt: relayAdaptAddress(c.RelayAdaptContract),
		})
		refs = append(refs, ref)
	}

	cache, err := feecache.New(feecache.DefaultHistorySize)
	if err != nil {
		r.Close()
		return nil, err
	}
	r.fees = cache
	r.refresher = feecache.NewRefresher(cache, r.priceSource, cfg.Chains, cfg.FeeRefreshInterval, cfg.FeeExpiration, r.logger)

	validator := verification.NewFeeValidator(cache, r.logger)
	r.pipeline = transaction.NewPipeline(estimator, extractor, validator, r.executor, r.logger, r.metrics)

	r.engine = relay.NewEngine(r.transport, cache, relay.NewFeeSigner(key, cfg.RelayerAddress), relay.Options{
		PubSubTopic:       cfg.PubSubTopic,
		PollInterval:      cfg.PollInterval,
		BroadcastInterval: cfg.BroadcastInterval,
		FeeExpiration:     cfg.FeeExpiration,
		Chains:            refs,
	}, r.logger, r.metrics)
	r.engine.Register(relay.MethodTransact, relay.TransactHandler(r.pipeline))

	if balances, ok := r.executor.(settlement.BalanceReader); ok {
		availability, err := settlement.NewBalanceAvailability(balances, cfg.Chains, r.logger)
		if err != nil {
			r.Close()
			return nil, err
		}
		r.engine.SetAvailability(availability)
	}

	return r, nil
}

func relayAdaptAddress(s string) common.Address {
	if s == "" {
		return common.Address{}
	}
	return common.HexToAddress(s)
}

// Start checks every chain RPC, then runs the relay engine and the fee
// refresher until ctx is cancelled.
func (r *Relayer) Start(ctx context.Context) error {
	if err := r.VerifyChains(ctx); err != nil {
		return err
	}
	if r.waku != nil {
		if addrs, err := r.waku.GetDebugInfo(ctx); err == nil {
			r.logger.Info("waku node", map[string]any{"listenAddresses": addrs})
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return r.engine.Run(gctx)
	})
	g.Go(func() error {
		r.refresher.Run(gctx)
		return nil
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// VerifyChains confirms that every configured RPC serves the chain it is
// configured for.
func (r *Relayer) VerifyChains(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, client := range r.chains {
		g.Go(func() error {
			return client.VerifyChain(gctx)
		})
	}
	return g.Wait()
}

// ProcessTransaction runs one transact request through the pipeline
// without going through the relay network.
func (r *Relayer) ProcessTransaction(ctx context.Context, chain types.ChainRef, feeCacheID string, serialized string) (*types.SubmissionResult, error) {
	return r.pipeline.ProcessTransaction(ctx, chain, feeCacheID, serialized)
}

// RefreshFees recomputes unit fees for every chain now.
func (r *Relayer) RefreshFees(ctx context.Context) error {
	return r.refresher.RefreshAll(ctx)
}

// BroadcastFees publishes the current fees of every chain now.
func (r *Relayer) BroadcastFees(ctx context.Context) error {
	return r.engine.BroadcastFees(ctx)
}

// Fees returns the current fee snapshot of chain.
func (r *Relayer) Fees(chain types.ChainRef) (*feecache.Snapshot, error) {
	return r.fees.Current(chain)
}

// Chains lists the configured chains.
func (r *Relayer) Chains() []types.ChainRef {
	refs := make([]types.ChainRef, 0, len(r.cfg.Chains))
	for _, c := range r.cfg.Chains {
		refs = append(refs, c.Ref())
	}
	return refs
}

// Engine exposes the relay engine, e.g. to register extra methods.
func (r *Relayer) Engine() *relay.Engine {
	return r.engine
}

// Close closes all client connections
func (r *Relayer) Close() {
	for _, c := range r.chains {
		c.Close()
	}
	if r.waku != nil {
		r.waku.Close()
	}
}

// Version information
const (
	Version         = "0.1.0"
	ProtocolVersion = 2
)

// GetVersion returns version information
func GetVersion() map[string]interface{} {
	return map[string]interface{}{
		"library_version":  Version,
		"protocol_version": ProtocolVersion,
		"methods":          []string{relay.MethodTransact},
		"gas_models":       []string{string(types.GasModelLegacy), string(types.GasModelDynamicFee)},
	}
}
