package settlement

import (
	"context"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
	"github.com/vitwit/wakurelay/logger"
	"github.com/vitwit/wakurelay/types"
	"github.com/vitwit/wakurelay/utils"
)

// BalanceReader reports the relayer wallet's gas token balance.
type BalanceReader interface {
	GasTokenBalance(ctx context.Context, chain types.ChainRef) (*big.Int, error)
}

// BalanceAvailability marks a chain unavailable while the relayer wallet
// holds less than the configured minimum gas balance.
type BalanceAvailability struct {
	balances BalanceReader
	minimums map[types.ChainRef]*big.Int
	log      logger.Logger
}

// NewBalanceAvailability converts each chain's whole-token minimum into base
// units. Chains with a zero minimum are always available.
func NewBalanceAvailability(balances BalanceReader, chains []types.ChainConfig, log logger.Logger) (*BalanceAvailability, error) {
	if log == nil {
		log = logger.NoopLogger{}
	}

	minimums := make(map[types.ChainRef]*big.Int, len(chains))
	for _, c := range chains {
		if c.GasToken.MinBalanceForAvailability <= 0 {
			continue
		}
		amount := decimal.NewFromFloat(c.GasToken.MinBalanceForAvailability).String()
		min, err := utils.ParseAmountWithDecimals(amount, c.GasToken.Decimals)
		if err != nil {
			return nil, types.NewError(types.ErrCodeConfig, fmt.Sprintf("chain %s: invalid minimum balance", c.Ref()), err)
		}
		minimums[c.Ref()] = min
	}

	return &BalanceAvailability{
		balances: balances,
		minimums: minimums,
		log:      log.With(map[string]any{"component": "availability"}),
	}, nil
}

func (a *BalanceAvailability) Available(ctx context.Context, chain types.ChainRef) (bool, error) {
	min, ok := a.minimums[chain]
	if !ok {
		return true, nil
	}

	balance, err := a.balances.GasTokenBalance(ctx, chain)
	if err != nil {
		return false, err
	}
	if balance.Cmp(min) < 0 {
		a.log.Warn("gas token balance below minimum", map[string]any{
			"chain":   chain.String(),
			"balance": balance.String(),
			"minimum": min.String(),
		})
		return false, nil
	}
	return true, nil
}
