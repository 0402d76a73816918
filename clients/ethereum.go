package clients

import (
	"context"
	"fmt"
	"math/big"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/vitwit/wakurelay/types"
)

var _ Client = (*EVMClient)(nil)

// EVMClient is the execution endpoint of one EVM chain. It serves gas
// estimation, fee suggestion, nonce lookup and submission.
type EVMClient struct {
	rpcURL string
	chain  types.ChainRef
	client *ethclient.Client
}

func NewEVMClient(ctx context.Context, chain types.ChainRef, rpcURL string) (*EVMClient, error) {
	if !chain.IsEVM() {
		return nil, types.NewError(types.ErrCodeUnsupportedChain, chain.String(), nil)
	}

	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Ethereum RPC: %w", err)
	}

	return &EVMClient{
		chain:  chain,
		rpcURL: rpcURL,
		client: client,
	}, nil
}

// GetChain implements Client.
func (e *EVMClient) GetChain() types.ChainRef {
	return e.chain
}

// VerifyChain checks that the endpoint serves the configured chain id.
func (e *EVMClient) VerifyChain(ctx context.Context) error {
	id, err := e.client.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("failed to query chain id: %w", err)
	}
	if !id.IsUint64() || id.Uint64() != e.chain.ID {
		return types.NewError(types.ErrCodeConfig,
			fmt.Sprintf("rpc %s serves chain %s, expected %d", e.rpcURL, id, e.chain.ID), nil)
	}
	return nil
}

// Close implements Client.
func (e *EVMClient) Close() {
	e.client.Close()
}

func (e *EVMClient) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	return e.client.EstimateGas(ctx, msg)
}

func (e *EVMClient) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return e.client.SuggestGasPrice(ctx)
}

func (e *EVMClient) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	return e.client.SuggestGasTipCap(ctx)
}

func (e *EVMClient) HeaderByNumber(ctx context.Context, number *big.Int) (*ethtypes.Header, error) {
	return e.client.HeaderByNumber(ctx, number)
}

func (e *EVMClient) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return e.client.PendingNonceAt(ctx, account)
}

func (e *EVMClient) SendTransaction(ctx context.Context, tx *ethtypes.Transaction) error {
	return e.client.SendTransaction(ctx, tx)
}

func (e *EVMClient) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	return e.client.BalanceAt(ctx, account, blockNumber)
}
