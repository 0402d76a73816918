package gas

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/vitwit/wakurelay/types"
)

// CalculateGasLimit adds a 20% safety margin to a gas estimate, rounding up.
func CalculateGasLimit(estimate *big.Int) *big.Int {
	limit := new(big.Int).Mul(estimate, big.NewInt(12))
	limit.Add(limit, big.NewInt(9))
	return limit.Quo(limit, big.NewInt(10))
}

// EffectivePricePerUnit is the per-unit price used to bound a transaction's
// cost: gasPrice for legacy, maxFeePerGas + maxPriorityFeePerGas for
// dynamic fee.
func EffectivePricePerUnit(profile types.GasProfile) (*big.Int, error) {
	switch g := profile.(type) {
	case *types.LegacyGas:
		if g.GasPrice == nil {
			return nil, fmt.Errorf("legacy gas profile has no gas price")
		}
		return new(big.Int).Set(g.GasPrice), nil
	case *types.DynamicFeeGas:
		if g.MaxFeePerGas == nil || g.MaxPriorityFeePerGas == nil {
			return nil, fmt.Errorf("dynamic gas profile is missing fee fields")
		}
		return new(big.Int).Add(g.MaxFeePerGas, g.MaxPriorityFeePerGas), nil
	default:
		return nil, fmt.Errorf("unknown gas profile %T", profile)
	}
}

// CalculateMaximumGas is the most the relayer can pay for a transaction:
// the padded gas limit at the effective price.
func CalculateMaximumGas(profile types.GasProfile) (*big.Int, error) {
	price, err := EffectivePricePerUnit(profile)
	if err != nil {
		return nil, err
	}
	if profile.Estimate() == nil {
		return nil, fmt.Errorf("gas profile has no estimate")
	}
	return price.Mul(price, CalculateGasLimit(profile.Estimate())), nil
}

// CalculateTotalGas is the expected cost of a transaction without the
// gas limit margin.
func CalculateTotalGas(profile types.GasProfile) (*big.Int, error) {
	price, err := EffectivePricePerUnit(profile)
	if err != nil {
		return nil, err
	}
	if profile.Estimate() == nil {
		return nil, fmt.Errorf("gas profile has no estimate")
	}
	return price.Mul(price, profile.Estimate()), nil
}

// CreateTransactionGasDetails pairs the estimated gas fields with the token
// that pays for them. The gas fields are passed through unchanged.
func CreateTransactionGasDetails(chain types.ChainRef, profile types.GasProfile, tokenAddress string, tokenFeeAmount *big.Int) (*types.TransactionGasDetails, error) {
	var gas types.GasProfile
	switch g := profile.(type) {
	case *types.LegacyGas:
		gas = &types.LegacyGas{
			GasEstimate: new(big.Int).Set(g.GasEstimate),
			GasPrice:    new(big.Int).Set(g.GasPrice),
		}
	case *types.DynamicFeeGas:
		gas = &types.DynamicFeeGas{
			GasEstimate:          new(big.Int).Set(g.GasEstimate),
			MaxFeePerGas:         new(big.Int).Set(g.MaxFeePerGas),
			MaxPriorityFeePerGas: new(big.Int).Set(g.MaxPriorityFeePerGas),
		}
	default:
		return nil, fmt.Errorf("chain %s: unknown gas profile %T", chain, profile)
	}

	amount := new(big.Int)
	if tokenFeeAmount != nil {
		amount.Set(tokenFeeAmount)
	}

	return &types.TransactionGasDetails{
		Gas:            gas,
		TokenAddress:   strings.ToLower(tokenAddress),
		TokenFeeAmount: amount,
	}, nil
}
