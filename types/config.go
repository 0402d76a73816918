package types

import "time"

// RelayerConfig contains the process-wide relayer configuration.
type RelayerConfig struct {
	// URL of the local waku node JSON-RPC endpoint.
	WakuURL string `json:"wakuUrl" mapstructure:"wakuUrl" validate:"required,url"`

	// Pubsub topic the relayer subscribes to.
	PubSubTopic string `json:"pubsubTopic" mapstructure:"pubsubTopic" validate:"required"`

	PollInterval      time.Duration `json:"pollInterval" mapstructure:"pollInterval" validate:"gt=0"`
	BroadcastInterval time.Duration `json:"broadcastInterval" mapstructure:"broadcastInterval" validate:"gt=0"`

	// How long a broadcast fee stays valid for requesters.
	FeeExpiration time.Duration `json:"feeExpiration" mapstructure:"feeExpiration" validate:"gt=0"`

	// How often token prices are pulled and unit fees recomputed.
	FeeRefreshInterval time.Duration `json:"feeRefreshInterval" mapstructure:"feeRefreshInterval" validate:"gt=0"`

	// Keep raw gas estimation errors in RPC responses. Development only.
	VerboseGasErrors bool `json:"verboseGasErrors" mapstructure:"verboseGasErrors"`

	LogLevel    string `json:"logLevel" mapstructure:"logLevel" validate:"omitempty,oneof=debug info warn error"`
	MetricsAddr string `json:"metricsAddr" mapstructure:"metricsAddr"`

	// Hex secp256k1 key used to sign fee broadcasts and submit transactions.
	SigningKey string `json:"signingKey" mapstructure:"signingKey" validate:"required,hexadecimal"`

	// Hex curve25519 private key that output notes addressed to the relayer are sealed to.
	ViewingKey string `json:"viewingKey" mapstructure:"viewingKey" validate:"required,hexadecimal"`

	// Protocol address advertised in fee broadcasts.
	RelayerAddress string `json:"relayerAddress" mapstructure:"relayerAddress" validate:"required"`

	Chains []ChainConfig `json:"chains" mapstructure:"chains" validate:"required,min=1,dive"`
}

// ChainConfig contains the per-chain configuration.
type ChainConfig struct {
	ChainType ChainType `json:"chainType" mapstructure:"chainType"`
	ChainID   uint64    `json:"chainId" mapstructure:"chainId" validate:"required"`
	RPCUrl    string    `json:"rpcUrl" mapstructure:"rpcUrl" validate:"required"`
	GasModel  GasModel  `json:"gasModel" mapstructure:"gasModel" validate:"required,oneof=legacy dynamic"`

	ProxyContract      string `json:"proxyContract" mapstructure:"proxyContract" validate:"required,eth_addr"`
	RelayAdaptContract string `json:"relayAdaptContract" mapstructure:"relayAdaptContract" validate:"omitempty,eth_addr"`

	GasToken GasTokenConfig `json:"gasToken" mapstructure:"gasToken"`
	Fees     FeeSettings    `json:"fees" mapstructure:"fees"`
	Tokens   []TokenConfig  `json:"tokens" mapstructure:"tokens" validate:"dive"`

	// Maximum age of a token price before it is ignored by the fee refresher.
	PriceTTL time.Duration `json:"priceTTL" mapstructure:"priceTTL"`
}

// Ref returns the ChainRef of this chain.
func (c ChainConfig) Ref() ChainRef {
	return ChainRef{Type: c.ChainType, ID: c.ChainID}
}

// GasTokenConfig describes the chain's native gas token.
type GasTokenConfig struct {
	Symbol   string  `json:"symbol" mapstructure:"symbol" validate:"required"`
	Decimals int32   `json:"decimals" mapstructure:"decimals" validate:"gte=0,lte=36"`
	Price    float64 `json:"price" mapstructure:"price" validate:"gte=0"`

	// Whole gas tokens the relayer wallet must hold for fees to be broadcast
	// on this chain. Zero disables the check.
	MinBalanceForAvailability float64 `json:"minBalanceForAvailability" mapstructure:"minBalanceForAvailability" validate:"gte=0"`
}

// FeeSettings are fractions of the estimated gas fee added to every quote.
type FeeSettings struct {
	Profit         float64 `json:"profit" mapstructure:"profit" validate:"gte=0"`
	SlippageBuffer float64 `json:"slippageBuffer" mapstructure:"slippageBuffer" validate:"gte=0"`
}

// TokenConfig describes a fee token accepted on a chain.
type TokenConfig struct {
	Address string `json:"address" mapstructure:"address" validate:"required,eth_addr"`
	Symbol  string `json:"symbol" mapstructure:"symbol"`

	// Required: unit fees are scaled by 10^decimals, so a token quoted with
	// the wrong value is mispriced by orders of magnitude.
	Decimals *int32  `json:"decimals" mapstructure:"decimals" validate:"required,gte=0,lte=36"`
	Price    float64 `json:"price" mapstructure:"price" validate:"gte=0"`
}

// TokenDecimals returns the configured decimals. It is only meaningful on a
// validated config.
func (t TokenConfig) TokenDecimals() int32 {
	if t.Decimals == nil {
		return 0
	}
	return *t.Decimals
}

// Decimals returns a pointer to d for building TokenConfig literals.
func Decimals(d int32) *int32 {
	return &d
}
