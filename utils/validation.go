package utils

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/shopspring/decimal"
)

// ValidateAmount checks if an amount string is a valid decimal
func ValidateAmount(amount string) (*decimal.Decimal, error) {
	if amount == "" {
		return nil, fmt.Errorf("amount cannot be empty")
	}

	dec, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("invalid amount format: %w", err)
	}

	if dec.IsNegative() {
		return nil, fmt.Errorf("amount cannot be negative")
	}

	return &dec, nil
}

// ParseAmountWithDecimals parses a decimal amount string and converts to big.Int with specified decimals
func ParseAmountWithDecimals(amount string, decimals int32) (*big.Int, error) {
	dec, err := ValidateAmount(amount)
	if err != nil {
		return nil, err
	}

	return dec.Shift(decimals).Floor().BigInt(), nil
}

// FormatAmountFromBigInt formats a big.Int amount to decimal string with specified decimals
func FormatAmountFromBigInt(amount *big.Int, decimals int32) string {
	return decimal.NewFromBigInt(amount, -decimals).String()
}

// ParseHexAmount parses a 0x-prefixed hex quantity as used in fee broadcasts.
func ParseHexAmount(s string) (*big.Int, error) {
	n, err := hexutil.DecodeBig(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex amount %q: %w", s, err)
	}
	return n, nil
}

// ParseFees decodes the fee map of a fee broadcast.
func ParseFees(fees map[string]string) (map[string]*big.Int, error) {
	out := make(map[string]*big.Int, len(fees))
	for token, hex := range fees {
		if !ValidateAddress(token) {
			return nil, fmt.Errorf("invalid token address %q", token)
		}
		amount, err := ParseHexAmount(hex)
		if err != nil {
			return nil, err
		}
		out[NormalizeAddress(token)] = amount
	}
	return out, nil
}
