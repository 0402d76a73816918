package types

import (
	"fmt"
	"math/big"
)

// GasProfile carries the gas figures of one transaction under exactly one
// gas model. The only implementations are *LegacyGas and *DynamicFeeGas.
type GasProfile interface {
	Model() GasModel
	Estimate() *big.Int
	gasProfile()
}

// LegacyGas is the single-price (type 0) gas model.
type LegacyGas struct {
	GasEstimate *big.Int `json:"gasEstimate"`
	GasPrice    *big.Int `json:"gasPrice"`
}

// DynamicFeeGas is the base+priority fee (type 2) gas model.
type DynamicFeeGas struct {
	GasEstimate          *big.Int `json:"gasEstimate"`
	MaxFeePerGas         *big.Int `json:"maxFeePerGas"`
	MaxPriorityFeePerGas *big.Int `json:"maxPriorityFeePerGas"`
}

func (*LegacyGas) Model() GasModel     { return GasModelLegacy }
func (*DynamicFeeGas) Model() GasModel { return GasModelDynamicFee }

func (g *LegacyGas) Estimate() *big.Int     { return g.GasEstimate }
func (g *DynamicFeeGas) Estimate() *big.Int { return g.GasEstimate }

func (*LegacyGas) gasProfile()     {}
func (*DynamicFeeGas) gasProfile() {}

func (g *LegacyGas) String() string {
	return fmt.Sprintf("legacy{estimate=%s gasPrice=%s}", g.GasEstimate, g.GasPrice)
}

func (g *DynamicFeeGas) String() string {
	return fmt.Sprintf("dynamic{estimate=%s maxFee=%s priorityFee=%s}",
		g.GasEstimate, g.MaxFeePerGas, g.MaxPriorityFeePerGas)
}

// TransactionGasDetails pairs the final gas fields with the token that pays
// for them. It is what the execution collaborator receives.
type TransactionGasDetails struct {
	Gas            GasProfile
	TokenAddress   string
	TokenFeeAmount *big.Int
}
