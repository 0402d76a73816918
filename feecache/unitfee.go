package feecache

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
	"github.com/vitwit/wakurelay/types"
)

// UnitFeeCalculator converts USD prices into per-token unit fees for one
// chain.
type UnitFeeCalculator struct {
	settings types.FeeSettings
}

func NewUnitFeeCalculator(settings types.FeeSettings) UnitFeeCalculator {
	return UnitFeeCalculator{settings: settings}
}

// Multiplier is the factor applied on top of the break-even fee.
func (u UnitFeeCalculator) Multiplier() decimal.Decimal {
	return decimal.NewFromInt(1).
		Add(decimal.NewFromFloat(u.settings.Profit)).
		Add(decimal.NewFromFloat(u.settings.SlippageBuffer))
}

// UnitFee returns the amount of a token, in base units, that buys one whole
// gas token with profit and slippage added:
//
//	10^tokenDecimals * gasTokenPrice / tokenPrice * (1 + profit + slippage)
func (u UnitFeeCalculator) UnitFee(tokenDecimals int32, tokenPrice, gasTokenPrice decimal.Decimal) (*big.Int, error) {
	if !tokenPrice.IsPositive() {
		return nil, fmt.Errorf("token price must be positive, got %s", tokenPrice)
	}
	if !gasTokenPrice.IsPositive() {
		return nil, fmt.Errorf("gas token price must be positive, got %s", gasTokenPrice)
	}

	fee := decimal.New(1, tokenDecimals).
		Mul(gasTokenPrice).
		Mul(u.Multiplier()).
		Div(tokenPrice).
		Floor()
	return fee.BigInt(), nil
}
