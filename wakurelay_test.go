package wakurelay

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitwit/wakurelay/feecache"
	"github.com/vitwit/wakurelay/relay"
	"github.com/vitwit/wakurelay/types"
	"github.com/vitwit/wakurelay/verification"
)

const (
	testSigningKey = "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
	testViewingKey = "0x0101010101010101010101010101010101010101010101010101010101010101"
)

var (
	testProxy = common.HexToAddress("0xFA7093CDD9EE6932B4eb2c9e1cde7CE00B1FA4b9")
	testUSDC  = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	mainnet   = types.EVMChain(1)
)

// legacy chain quoting 100000 gas at 1 gwei
func newChainRPC(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     json.RawMessage `json:"id"`
			Method string          `json:"method"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
		switch req.Method {
		case "eth_estimateGas":
			resp["result"] = "0x186a0"
		case "eth_gasPrice":
			resp["result"] = "0x3b9aca00"
		case "eth_chainId":
			resp["result"] = "0x1"
		default:
			resp["error"] = map[string]any{"code": -32601, "message": "method not found"}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

type fakeTransport struct {
	mu        sync.Mutex
	published []types.RelayMessage
}

func (f *fakeTransport) Subscribe(context.Context, []string) (bool, error) { return true, nil }

func (f *fakeTransport) Publish(_ context.Context, msg types.RelayMessage, _ string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, msg)
	return true, nil
}

func (f *fakeTransport) GetMessages(context.Context, string, []string) ([]types.RelayMessage, error) {
	return nil, nil
}

type fakeExecutor struct {
	mu      sync.Mutex
	details []*types.TransactionGasDetails
}

func (f *fakeExecutor) ExecuteTransaction(_ context.Context, chain types.ChainRef, _ *types.PopulatedTransaction, details *types.TransactionGasDetails) (*types.SubmissionResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.details = append(f.details, details)
	return &types.SubmissionResult{TxHash: "0xabc", Nonce: uint64(len(f.details) - 1), Chain: chain}, nil
}

func testConfig(rpcURL string) *types.RelayerConfig {
	return &types.RelayerConfig{
		WakuURL:            "http://127.0.0.1:8546",
		PubSubTopic:        types.DefaultPubSubTopic,
		PollInterval:       time.Second,
		BroadcastInterval:  time.Minute,
		FeeExpiration:      time.Minute,
		FeeRefreshInterval: time.Minute,
		SigningKey:         testSigningKey,
		ViewingKey:         testViewingKey,
		RelayerAddress:     "0zk1qyrelayer",
		Chains: []types.ChainConfig{{
			ChainID:       1,
			RPCUrl:        rpcURL,
			GasModel:      types.GasModelLegacy,
			ProxyContract: testProxy.Hex(),
			GasToken:      types.GasTokenConfig{Symbol: "ETH", Decimals: 18, Price: 3250},
			Fees:          types.FeeSettings{Profit: 0.05, SlippageBuffer: 0.05},
			Tokens:        []types.TokenConfig{{Address: testUSDC.Hex(), Symbol: "USDC", Decimals: types.Decimals(6), Price: 1}},
		}},
	}
}

func newTestRelayer(t *testing.T) (*Relayer, *fakeTransport, *fakeExecutor) {
	t.Helper()
	transport := &fakeTransport{}
	executor := &fakeExecutor{}
	r, err := New(testConfig(newChainRPC(t).URL), WithTransport(transport), WithExecutor(executor))
	require.NoError(t, err)
	t.Cleanup(r.Close)
	return r, transport, executor
}

// serializedProof builds a proxy transaction paying amount USDC to the
// relayer's viewing key.
func serializedProof(t *testing.T, amount int64) string {
	t.Helper()
	priv, err := verification.ViewingKeyFromHex(testViewingKey)
	require.NoError(t, err)
	pub, err := verification.ViewingPublicKey(priv)
	require.NoError(t, err)

	fee, err := verification.SealNote(types.Note{TokenAddress: testUSDC, Amount: big.NewInt(amount)}, pub)
	require.NoError(t, err)
	data, err := verification.PackTransact([]verification.Transaction{{
		TreeNumber:  big.NewInt(0),
		Nullifiers:  [][32]byte{{1}},
		Commitments: [][32]byte{{2}},
		Ciphertexts: []verification.CommitmentCiphertext{fee},
	}})
	require.NoError(t, err)

	serialized, err := types.SerializePopulatedTransaction(&types.PopulatedTransaction{To: testProxy, Data: data})
	require.NoError(t, err)
	return serialized
}

func TestNew_RejectsBadKeys(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:8545")
	cfg.SigningKey = "0x1234"
	_, err := New(cfg, WithTransport(&fakeTransport{}))
	require.Error(t, err)
	assert.Equal(t, types.ErrCodeConfig, types.ErrorCode(err))

	_, err = New(nil)
	assert.Equal(t, types.ErrCodeConfig, types.ErrorCode(err))
}

func TestNew_AppliesDefaultsAndValidates(t *testing.T) {
	cfg := testConfig(newChainRPC(t).URL)
	cfg.PollInterval = 0
	cfg.BroadcastInterval = 0
	cfg.FeeExpiration = 0
	cfg.FeeRefreshInterval = 0

	r, err := New(cfg, WithTransport(&fakeTransport{}), WithExecutor(&fakeExecutor{}))
	require.NoError(t, err)
	t.Cleanup(r.Close)
	assert.Zero(t, cfg.FeeExpiration)

	ctx := context.Background()
	require.NoError(t, r.RefreshFees(ctx))
	snap, err := r.Fees(mainnet)
	require.NoError(t, err)
	assert.Equal(t, feecache.DefaultRefreshInterval+feecache.DefaultFeeExpiration, snap.Expiration.Sub(snap.CreatedAt))

	_, err = r.ProcessTransaction(ctx, mainnet, snap.ID, serializedProof(t, 429000))
	require.NoError(t, err)

	invalid := testConfig("http://127.0.0.1:8545")
	invalid.Chains[0].Tokens[0].Decimals = nil
	_, err = New(invalid, WithTransport(&fakeTransport{}))
	require.Error(t, err)
	assert.Equal(t, types.ErrCodeConfig, types.ErrorCode(err))
}

func TestRelayer_ProcessTransaction(t *testing.T) {
	r, _, executor := newTestRelayer(t)
	ctx := context.Background()

	require.NoError(t, r.RefreshFees(ctx))
	snap, err := r.Fees(mainnet)
	require.NoError(t, err)
	unitFee, ok := snap.Fee(testUSDC.Hex())
	require.True(t, ok)
	assert.Equal(t, "3575000000", unitFee.String())

	// 120000 gas at 1 gwei costs 0.429 USDC
	res, err := r.ProcessTransaction(ctx, mainnet, snap.ID, serializedProof(t, 429000))
	require.NoError(t, err)
	assert.Equal(t, "0xabc", res.TxHash)
	require.Len(t, executor.details, 1)
	assert.Equal(t, "429000", executor.details[0].TokenFeeAmount.String())

	_, err = r.ProcessTransaction(ctx, mainnet, snap.ID, serializedProof(t, 428999))
	require.Error(t, err)
	assert.Equal(t, types.ErrCodeInsufficientFee, types.ErrorCode(err))

	_, err = r.ProcessTransaction(ctx, mainnet, "nope", serializedProof(t, 429000))
	assert.Equal(t, types.ErrCodeStaleFeeCache, types.ErrorCode(err))

	_, err = r.ProcessTransaction(ctx, mainnet, snap.ID, "0xzz")
	assert.Equal(t, types.ErrCodeInvalidTransaction, types.ErrorCode(err))
}

func TestRelayer_TransactOverRelay(t *testing.T) {
	r, transport, _ := newTestRelayer(t)
	ctx := context.Background()

	require.NoError(t, r.RefreshFees(ctx))
	snap, err := r.Fees(mainnet)
	require.NoError(t, err)

	params, err := json.Marshal([]any{1, snap.ID, serializedProof(t, 500000)})
	require.NoError(t, err)
	body, err := json.Marshal(types.RPCRequest{JSONRPC: "2.0", ID: json.RawMessage(`7`), Method: relay.MethodTransact, Params: params})
	require.NoError(t, err)

	topic := relay.TransactContentTopic(mainnet)
	require.NoError(t, r.Engine().HandleMessage(ctx, types.NewUTF8Message(string(body), topic, time.Now())))

	require.Len(t, transport.published, 1)
	reply := transport.published[0]
	assert.Equal(t, topic, reply.ContentTopic)

	var resp struct {
		ID     json.RawMessage         `json:"id"`
		Result types.SubmissionResult `json:"result"`
		Error  *types.RPCError        `json:"error"`
	}
	require.NoError(t, json.Unmarshal(reply.Payload, &resp))
	assert.Nil(t, resp.Error)
	assert.Equal(t, "7", string(resp.ID))
	assert.Equal(t, "0xabc", resp.Result.TxHash)
}

func TestRelayer_BroadcastFees(t *testing.T) {
	r, transport, _ := newTestRelayer(t)
	ctx := context.Background()

	require.NoError(t, r.RefreshFees(ctx))
	require.NoError(t, r.BroadcastFees(ctx))

	require.Len(t, transport.published, 1)
	assert.Equal(t, relay.FeesContentTopic(mainnet), transport.published[0].ContentTopic)

	var msg types.FeeMessage
	require.NoError(t, json.Unmarshal(transport.published[0].Payload, &msg))
	data, err := relay.VerifyFeeMessage(&msg)
	require.NoError(t, err)
	assert.Equal(t, "0xd5162bc0", data.Fees["0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48"])
}

func TestRelayer_VerifyChains(t *testing.T) {
	r, _, _ := newTestRelayer(t)
	require.NoError(t, r.VerifyChains(context.Background()))
	assert.Equal(t, []types.ChainRef{mainnet}, r.Chains())
}
