package verification

import (
	"fmt"
	"math/big"

	"github.com/vitwit/wakurelay/feecache"
	"github.com/vitwit/wakurelay/logger"
	"github.com/vitwit/wakurelay/types"
)

// FeeLookup resolves a feeCacheID to the fee snapshot it was issued for.
type FeeLookup interface {
	Lookup(chain types.ChainRef, feeCacheID string) (*feecache.Snapshot, error)
}

// FeeValidator checks packaged fees against the snapshot a requester quoted.
type FeeValidator struct {
	fees FeeLookup
	log  logger.Logger
}

func NewFeeValidator(fees FeeLookup, log logger.Logger) *FeeValidator {
	if log == nil {
		log = logger.NoopLogger{}
	}
	return &FeeValidator{fees: fees, log: log.With(map[string]any{"component": "fee-validator"})}
}

// ValidateFee accepts when packagedFeeAmount, priced at the snapshot's unit
// fee, covers maximumGas. The comparison is exact:
//
//	packagedFeeAmount * 10^gasDecimals >= unitFee * maximumGas
func (v *FeeValidator) ValidateFee(chain types.ChainRef, tokenAddress string, maximumGas *big.Int, feeCacheID string, packagedFeeAmount *big.Int) error {
	fields := map[string]any{
		"chain":      chain.String(),
		"feeCacheID": feeCacheID,
		"token":      tokenAddress,
	}

	snap, err := v.fees.Lookup(chain, feeCacheID)
	if err != nil {
		v.log.Warn("fee cache lookup failed", fields)
		return err
	}

	unitFee, ok := snap.Fee(tokenAddress)
	if !ok {
		v.log.Warn("token not accepted for fees", fields)
		return types.NewError(types.ErrCodeInsufficientFee, fmt.Sprintf("token %s is not accepted for fees", tokenAddress), nil)
	}

	offered := new(big.Int).Mul(packagedFeeAmount, new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(snap.GasDecimals)), nil))
	required := new(big.Int).Mul(unitFee, maximumGas)

	if offered.Cmp(required) < 0 {
		fields["packagedFee"] = packagedFeeAmount.String()
		fields["maximumGas"] = maximumGas.String()
		v.log.Warn("insufficient relayer fee", fields)
		return types.ErrInsufficientFee
	}
	return nil
}

// RequiredFee is the smallest packaged fee ValidateFee accepts for
// maximumGas, rounded up.
func RequiredFee(unitFee, maximumGas *big.Int, gasDecimals int32) *big.Int {
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(gasDecimals)), nil)
	num := new(big.Int).Mul(unitFee, maximumGas)
	num.Add(num, new(big.Int).Sub(scale, big.NewInt(1)))
	return num.Quo(num, scale)
}
