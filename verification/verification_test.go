package verification

import (
	"context"
	"crypto/rand"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitwit/wakurelay/feecache"
	"github.com/vitwit/wakurelay/types"
	"golang.org/x/crypto/nacl/box"
)

var (
	proxy      = common.HexToAddress("0xFA7093CDD9EE6932B4eb2c9e1cde7CE00B1FA4b9")
	relayAdapt = common.HexToAddress("0x22af4EDBeA3De885dDa8f0a0653E6209e44e5B84")
	usdc       = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	weth       = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	chain      = types.EVMChain(1)
)

type keyPair struct {
	public  *[KeySize]byte
	private *[KeySize]byte
}

func newKeyPair(t *testing.T) keyPair {
	t.Helper()
	pub, priv, err := box.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return keyPair{public: pub, private: priv}
}

func provedTransaction(t *testing.T, receiver *[KeySize]byte, amount int64) Transaction {
	t.Helper()
	// a change note to some other wallet, then the relayer fee
	other := newKeyPair(t)
	change, err := SealNote(types.Note{TokenAddress: usdc, Amount: big.NewInt(5000)}, other.public)
	require.NoError(t, err)
	fee, err := SealNote(types.Note{TokenAddress: usdc, Amount: big.NewInt(amount)}, receiver)
	require.NoError(t, err)

	return Transaction{
		TreeNumber:  big.NewInt(0),
		Nullifiers:  [][32]byte{{1}},
		Commitments: [][32]byte{{2}, {3}},
		Ciphertexts: []CommitmentCiphertext{change, fee},
	}
}

func proxyTx(t *testing.T, txs ...Transaction) *types.PopulatedTransaction {
	t.Helper()
	data, err := PackTransact(txs)
	require.NoError(t, err)
	return &types.PopulatedTransaction{To: proxy, Data: data}
}

func relayAdaptTx(t *testing.T, txs ...Transaction) *types.PopulatedTransaction {
	t.Helper()
	data, err := PackRelay(txs, ActionData{
		Random:         [31]byte{9},
		RequireSuccess: true,
		MinGasLimit:    big.NewInt(2500000),
		Calls: []Call{{
			To:    weth,
			Data:  []byte{0x2e, 0x1a, 0x7d, 0x4d},
			Value: big.NewInt(0),
		}},
	})
	require.NoError(t, err)
	return &types.PopulatedTransaction{To: relayAdapt, Data: data}
}

func newExtractor(t *testing.T, relayer keyPair) *FeeExtractor {
	t.Helper()
	f := NewFeeExtractor(NewBoxNoteDecoder(relayer.private), nil)
	f.AddChain(chain, Contracts{Proxy: proxy, RelayAdapt: relayAdapt})
	return f
}

func TestExtractPackagedFee(t *testing.T) {
	relayer := newKeyPair(t)
	f := newExtractor(t, relayer)

	cases := map[string]*types.PopulatedTransaction{
		"proxy":       proxyTx(t, provedTransaction(t, relayer.public, 1000)),
		"relay-adapt": relayAdaptTx(t, provedTransaction(t, relayer.public, 1000)),
	}

	for name, tx := range cases {
		t.Run(name, func(t *testing.T) {
			adapt, err := f.UsesRelayAdapt(chain, tx)
			require.NoError(t, err)
			assert.Equal(t, name == "relay-adapt", adapt)

			fee, err := f.ExtractPackagedFee(context.Background(), chain, tx, adapt)
			require.NoError(t, err)
			assert.Equal(t, "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48", fee.TokenAddress)
			assert.Equal(t, "1000", fee.Amount.String())
		})
	}
}

func TestExtractPackagedFee_WrongReceiver(t *testing.T) {
	relayer := newKeyPair(t)
	someoneElse := newKeyPair(t)
	f := newExtractor(t, relayer)

	for _, tx := range []*types.PopulatedTransaction{
		proxyTx(t, provedTransaction(t, someoneElse.public, 1000)),
		relayAdaptTx(t, provedTransaction(t, someoneElse.public, 1000)),
	} {
		adapt, err := f.UsesRelayAdapt(chain, tx)
		require.NoError(t, err)

		_, err = f.ExtractPackagedFee(context.Background(), chain, tx, adapt)
		require.Error(t, err)
		assert.True(t, errors.Is(err, types.ErrNoRelayerPayment))
	}
}

func TestExtractPackagedFee_ShapeMismatch(t *testing.T) {
	relayer := newKeyPair(t)
	f := newExtractor(t, relayer)

	tx := proxyTx(t, provedTransaction(t, relayer.public, 1000))
	_, err := f.ExtractPackagedFee(context.Background(), chain, tx, true)
	assert.True(t, errors.Is(err, types.ErrInvalidTransaction))

	tx.To = common.HexToAddress("0x0000000000000000000000000000000000000bad")
	_, err = f.UsesRelayAdapt(chain, tx)
	assert.True(t, errors.Is(err, types.ErrInvalidTransaction))

	_, err = f.UsesRelayAdapt(types.EVMChain(10), tx)
	assert.True(t, errors.Is(err, types.ErrUnsupportedChain))
}

func TestDecodeActionData(t *testing.T) {
	relayer := newKeyPair(t)
	tx := relayAdaptTx(t, provedTransaction(t, relayer.public, 1))

	action, err := NewCalldataDecoder().DecodeActionData(tx.Data)
	require.NoError(t, err)
	assert.True(t, action.RequireSuccess)
	assert.Equal(t, "2500000", action.MinGasLimit.String())
	require.Len(t, action.Calls, 1)
	assert.Equal(t, weth, action.Calls[0].To)
}

func TestViewingPublicKey(t *testing.T) {
	kp := newKeyPair(t)
	pub, err := ViewingPublicKey(kp.private)
	require.NoError(t, err)
	assert.Equal(t, *kp.public, *pub)
}

func mustBig(t *testing.T, s string) *big.Int {
	t.Helper()
	n, ok := new(big.Int).SetString(s, 10)
	require.True(t, ok)
	return n
}

func newValidator(t *testing.T) (*FeeValidator, *feecache.Snapshot) {
	t.Helper()
	cache, err := feecache.New(8)
	require.NoError(t, err)

	// gas token at 3250 USD, both tokens at 1 USD, 10% on top
	snap := cache.Publish(chain, map[string]*big.Int{
		usdc.Hex(): mustBig(t, "3575000000"),
		weth.Hex(): mustBig(t, "3575000000000000000000"),
	}, 18, time.Minute)
	return NewFeeValidator(cache, nil), snap
}

func TestValidateFee(t *testing.T) {
	v, snap := newValidator(t)
	maximumGas := mustBig(t, "120000000000000000")

	// 18 and 6 decimal tokens normalize to the same base
	require.NoError(t, v.ValidateFee(chain, weth.Hex(), maximumGas, snap.ID, mustBig(t, "429000000000000000000")))
	require.NoError(t, v.ValidateFee(chain, usdc.Hex(), maximumGas, snap.ID, mustBig(t, "429000000")))

	err := v.ValidateFee(chain, usdc.Hex(), maximumGas, snap.ID, mustBig(t, "428999999"))
	assert.True(t, errors.Is(err, types.ErrInsufficientFee))

	err = v.ValidateFee(chain, weth.Hex(), maximumGas, snap.ID, mustBig(t, "428999999999999999999"))
	assert.True(t, errors.Is(err, types.ErrInsufficientFee))
}

func TestValidateFee_UnknownCacheOrToken(t *testing.T) {
	v, snap := newValidator(t)
	maximumGas := big.NewInt(1)

	err := v.ValidateFee(chain, usdc.Hex(), maximumGas, "not-an-id", big.NewInt(1000))
	assert.True(t, errors.Is(err, types.ErrStaleFeeCache))

	err = v.ValidateFee(chain, "0x0000000000000000000000000000000000000001", maximumGas, snap.ID, big.NewInt(1000))
	assert.True(t, errors.Is(err, types.ErrInsufficientFee))
}

func TestRequiredFee(t *testing.T) {
	assert.Equal(t, "429000000", RequiredFee(mustBig(t, "3575000000"), mustBig(t, "120000000000000000"), 18).String())
	assert.Equal(t, "1", RequiredFee(big.NewInt(1), big.NewInt(1), 18).String())
}
