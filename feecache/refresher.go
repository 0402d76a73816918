package feecache

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/shopspring/decimal"
	"github.com/vitwit/wakurelay/logger"
	"github.com/vitwit/wakurelay/types"
)

const (
	DefaultRefreshInterval = 30 * time.Second
	DefaultFeeExpiration   = 5 * time.Minute
)

// Price is a USD price observation.
type Price struct {
	USD       decimal.Decimal
	UpdatedAt time.Time
}

// ChainPrices holds the prices of a chain's gas token and fee tokens.
// Token keys are lowercase addresses.
type ChainPrices struct {
	GasToken Price
	Tokens   map[string]Price
}

// PriceSource supplies token prices. Price feeds themselves live outside
// the relayer.
type PriceSource interface {
	Prices(ctx context.Context, chain types.ChainConfig) (*ChainPrices, error)
}

// StaticPriceSource serves the prices written in the chain configuration.
// It is meant for test networks without a price feed.
type StaticPriceSource struct {
	Now func() time.Time
}

func (s StaticPriceSource) Prices(_ context.Context, chain types.ChainConfig) (*ChainPrices, error) {
	now := time.Now()
	if s.Now != nil {
		now = s.Now()
	}

	prices := &ChainPrices{
		GasToken: Price{USD: decimal.NewFromFloat(chain.GasToken.Price), UpdatedAt: now},
		Tokens:   make(map[string]Price, len(chain.Tokens)),
	}
	for _, t := range chain.Tokens {
		prices.Tokens[strings.ToLower(t.Address)] = Price{USD: decimal.NewFromFloat(t.Price), UpdatedAt: now}
	}
	return prices, nil
}

// Refresher periodically recomputes unit fees from a PriceSource and
// publishes them to the Cache.
type Refresher struct {
	cache    *Cache
	source   PriceSource
	chains   []types.ChainConfig
	interval time.Duration
	ttl      time.Duration
	log      logger.Logger
	now      func() time.Time
}

// NewRefresher creates a Refresher. Published snapshots live for one
// refresh interval plus feeExpiration, so any fee broadcast from a snapshot
// can be validated until its advertised expiration.
func NewRefresher(cache *Cache, source PriceSource, chains []types.ChainConfig, interval, feeExpiration time.Duration, log logger.Logger) *Refresher {
	if log == nil {
		log = logger.NoopLogger{}
	}
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	if feeExpiration <= 0 {
		feeExpiration = DefaultFeeExpiration
	}
	return &Refresher{
		cache:    cache,
		source:   source,
		chains:   chains,
		interval: interval,
		ttl:      interval + feeExpiration,
		log:      log.With(map[string]any{"component": "fee-refresher"}),
		now:      time.Now,
	}
}

// RefreshChain pulls prices for one chain and publishes a new snapshot.
// Tokens with a missing, zero or stale price are left out.
func (r *Refresher) RefreshChain(ctx context.Context, chain types.ChainConfig) (*Snapshot, error) {
	prices, err := r.source.Prices(ctx, chain)
	if err != nil {
		return nil, fmt.Errorf("chain %s: fetch prices: %w", chain.Ref(), err)
	}

	now := r.now()
	if r.stale(chain, prices.GasToken, now) {
		return nil, fmt.Errorf("chain %s: gas token price is stale", chain.Ref())
	}

	calc := NewUnitFeeCalculator(chain.Fees)
	fees := make(map[string]*big.Int, len(chain.Tokens))
	for _, token := range chain.Tokens {
		address := strings.ToLower(token.Address)
		price, ok := prices.Tokens[address]
		if !ok || r.stale(chain, price, now) {
			r.log.Warn("skipping token without fresh price", map[string]any{
				"chain": chain.Ref().String(),
				"token": address,
			})
			continue
		}

		fee, err := calc.UnitFee(token.TokenDecimals(), price.USD, prices.GasToken.USD)
		if err != nil {
			r.log.Warn("skipping token", map[string]any{"chain": chain.Ref().String(), "token": address, "err": err})
			continue
		}
		fees[address] = fee
	}

	snap := r.cache.Publish(chain.Ref(), fees, gasDecimals(chain), r.ttl)
	r.log.Debug("published unit fees", map[string]any{
		"chain":      chain.Ref().String(),
		"feeCacheID": snap.ID,
		"tokens":     len(fees),
	})
	return snap, nil
}

func (r *Refresher) stale(chain types.ChainConfig, p Price, now time.Time) bool {
	if !p.USD.IsPositive() {
		return true
	}
	return chain.PriceTTL > 0 && now.Sub(p.UpdatedAt) > chain.PriceTTL
}

// RefreshAll refreshes every chain. A failing chain does not stop the rest.
func (r *Refresher) RefreshAll(ctx context.Context) error {
	var result *multierror.Error
	for _, chain := range r.chains {
		if _, err := r.RefreshChain(ctx, chain); err != nil {
			r.log.Error("fee refresh failed", map[string]any{"chain": chain.Ref().String(), "err": err})
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// Run refreshes immediately, then once per interval until ctx is done.
func (r *Refresher) Run(ctx context.Context) {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		_ = r.RefreshAll(ctx)
		timer.Reset(r.interval)
	}
}

func gasDecimals(chain types.ChainConfig) int32 {
	if chain.GasToken.Decimals == 0 {
		return 18
	}
	return chain.GasToken.Decimals
}
