package utils

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"github.com/vitwit/wakurelay/types"
)

const EnvPrefix = "RELAYER"

// Defaults applied before the config file and environment.
const (
	DefaultWakuURL            = "http://127.0.0.1:8546"
	DefaultPollInterval       = 5 * time.Second
	DefaultBroadcastInterval  = 30 * time.Second
	DefaultFeeExpiration      = 5 * time.Minute
	DefaultFeeRefreshInterval = 30 * time.Second
	DefaultPriceTTL           = 10 * time.Minute
	DefaultLogLevel           = "info"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
}

// LoadConfig reads the relayer configuration from path (YAML, JSON or TOML,
// by extension). RELAYER_* environment variables override file values, e.g.
// RELAYER_SIGNINGKEY. An empty path reads the environment only.
func LoadConfig(path string) (*types.RelayerConfig, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	// secrets usually come from the environment only
	for _, key := range []string{"signingKey", "viewingKey", "relayerAddress"} {
		_ = v.BindEnv(key)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, types.NewError(types.ErrCodeConfig, fmt.Sprintf("failed to read config %s", path), err)
		}
	}

	var cfg types.RelayerConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, types.NewError(types.ErrCodeConfig, "failed to decode config", err)
	}

	ApplyDefaults(&cfg)
	if err := ValidateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("wakuUrl", DefaultWakuURL)
	v.SetDefault("pubsubTopic", types.DefaultPubSubTopic)
	v.SetDefault("pollInterval", DefaultPollInterval)
	v.SetDefault("broadcastInterval", DefaultBroadcastInterval)
	v.SetDefault("feeExpiration", DefaultFeeExpiration)
	v.SetDefault("feeRefreshInterval", DefaultFeeRefreshInterval)
	v.SetDefault("verboseGasErrors", false)
	v.SetDefault("logLevel", DefaultLogLevel)
}

// ApplyDefaults fills every zero-valued setting that has a default, for
// configs built in code rather than loaded from a file.
func ApplyDefaults(cfg *types.RelayerConfig) {
	if cfg.WakuURL == "" {
		cfg.WakuURL = DefaultWakuURL
	}
	if cfg.PubSubTopic == "" {
		cfg.PubSubTopic = types.DefaultPubSubTopic
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.BroadcastInterval <= 0 {
		cfg.BroadcastInterval = DefaultBroadcastInterval
	}
	if cfg.FeeExpiration <= 0 {
		cfg.FeeExpiration = DefaultFeeExpiration
	}
	if cfg.FeeRefreshInterval <= 0 {
		cfg.FeeRefreshInterval = DefaultFeeRefreshInterval
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}
	ApplyChainDefaults(cfg)
}

// ApplyChainDefaults fills per-chain fields left empty.
func ApplyChainDefaults(cfg *types.RelayerConfig) {
	for i := range cfg.Chains {
		c := &cfg.Chains[i]
		if c.GasModel == "" {
			c.GasModel = types.GasModelDynamicFee
		}
		if c.GasToken.Decimals == 0 {
			c.GasToken.Decimals = 18
		}
		if c.PriceTTL == 0 {
			c.PriceTTL = DefaultPriceTTL
		}
	}
}

// ValidateConfig checks struct tags and the cross-field rules tags cannot
// express.
func ValidateConfig(cfg *types.RelayerConfig) error {
	if err := validate.Struct(cfg); err != nil {
		return types.NewError(types.ErrCodeConfig, fmt.Sprintf("validation failed: %v", err), err)
	}

	seen := make(map[types.ChainRef]bool, len(cfg.Chains))
	for _, c := range cfg.Chains {
		ref := c.Ref()
		if !ref.IsEVM() {
			return types.NewError(types.ErrCodeConfig, fmt.Sprintf("chain %s: only EVM chains are supported", ref), nil)
		}
		if seen[ref] {
			return types.NewError(types.ErrCodeConfig, fmt.Sprintf("chain %s configured twice", ref), nil)
		}
		seen[ref] = true

		tokens := make(map[string]bool, len(c.Tokens))
		for _, t := range c.Tokens {
			addr := NormalizeAddress(t.Address)
			if tokens[addr] {
				return types.NewError(types.ErrCodeConfig, fmt.Sprintf("chain %s: token %s configured twice", ref, t.Address), nil)
			}
			tokens[addr] = true
		}
	}
	return nil
}
