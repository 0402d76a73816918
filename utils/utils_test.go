package utils

import (
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitwit/wakurelay/types"
)

func TestSignAndVerifyMessage(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	msg := []byte(`{"fees":{}}`)
	sig, err := SignMessage(msg, key)
	require.NoError(t, err)

	ok, err := VerifyMessage(msg, sig, SigningPublicKey(key))
	require.NoError(t, err)
	assert.True(t, ok)

	other, err := crypto.GenerateKey()
	require.NoError(t, err)
	ok, err = VerifyMessage(msg, sig, SigningPublicKey(other))
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = VerifyMessage(msg, "0x1234", SigningPublicKey(key))
	assert.Error(t, err)
}

func TestPrivateKeyFromHex(t *testing.T) {
	key, err := PrivateKeyFromHex("0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318")
	require.NoError(t, err)
	assert.Equal(t, "0x2c7536E3605D9C16a7a3D7b1898e529396a65c23", AddressFromPrivateKey(key).Hex())
}

func TestAmounts(t *testing.T) {
	n, err := ParseAmountWithDecimals("0.15", 18)
	require.NoError(t, err)
	assert.Equal(t, "150000000000000000", n.String())

	assert.Equal(t, "1.5", FormatAmountFromBigInt(big.NewInt(1500000), 6))

	_, err = ParseAmountWithDecimals("-1", 18)
	assert.Error(t, err)

	fees, err := ParseFees(map[string]string{"0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48": "0x3e8"})
	require.NoError(t, err)
	assert.Equal(t, "1000", fees["0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48"].String())

	_, err = ParseFees(map[string]string{"0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48": "1000"})
	assert.Error(t, err)
}

const testConfig = `
wakuUrl: http://127.0.0.1:8546
relayerAddress: 0zk1qyrelayer
viewingKey: "0x0101010101010101010101010101010101010101010101010101010101010101"
feeExpiration: 2m
chains:
  - chainId: 1
    rpcUrl: http://127.0.0.1:8545
    gasModel: dynamic
    proxyContract: "0xFA7093CDD9EE6932B4eb2c9e1cde7CE00B1FA4b9"
    gasToken:
      symbol: ETH
      price: 3250
    fees:
      profit: 0.05
      slippageBuffer: 0.05
    tokens:
      - address: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"
        symbol: USDC
        decimals: 6
        price: 1
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "relayer.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("RELAYER_SIGNINGKEY", "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318")
	t.Setenv("RELAYER_POLLINTERVAL", "1s")

	cfg, err := LoadConfig(writeConfig(t, testConfig))
	require.NoError(t, err)

	assert.Equal(t, types.DefaultPubSubTopic, cfg.PubSubTopic)
	assert.Equal(t, time.Second, cfg.PollInterval)
	assert.Equal(t, DefaultBroadcastInterval, cfg.BroadcastInterval)
	assert.Equal(t, 2*time.Minute, cfg.FeeExpiration)
	assert.Equal(t, "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318", cfg.SigningKey)

	require.Len(t, cfg.Chains, 1)
	chain := cfg.Chains[0]
	assert.Equal(t, types.EVMChain(1), chain.Ref())
	assert.Equal(t, types.GasModelDynamicFee, chain.GasModel)
	assert.Equal(t, int32(18), chain.GasToken.Decimals)
	assert.Equal(t, DefaultPriceTTL, chain.PriceTTL)
	assert.Equal(t, 0.05, chain.Fees.SlippageBuffer)
	require.Len(t, chain.Tokens, 1)
	assert.Equal(t, int32(6), chain.Tokens[0].TokenDecimals())
}

func TestLoadConfig_Invalid(t *testing.T) {
	// no signing key anywhere
	_, err := LoadConfig(writeConfig(t, testConfig))
	require.Error(t, err)
	assert.Equal(t, types.ErrCodeConfig, types.ErrorCode(err))

	t.Setenv("RELAYER_SIGNINGKEY", "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318")
	_, err = LoadConfig(writeConfig(t, testConfig+`
  - chainId: 1
    rpcUrl: http://127.0.0.1:8545
    proxyContract: "0xFA7093CDD9EE6932B4eb2c9e1cde7CE00B1FA4b9"
    gasToken:
      symbol: ETH
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "configured twice")

	// a fee token without decimals would be priced at 10^0 base units
	noDecimals := strings.Replace(testConfig, "        decimals: 6\n", "", 1)
	require.NotEqual(t, testConfig, noDecimals)
	_, err = LoadConfig(writeConfig(t, noDecimals))
	require.Error(t, err)
	assert.Equal(t, types.ErrCodeConfig, types.ErrorCode(err))
	assert.Contains(t, err.Error(), "Decimals")
}
