package verification

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/vitwit/wakurelay/logger"
	"github.com/vitwit/wakurelay/types"
)

// Contracts are the protocol contract addresses on one chain.
type Contracts struct {
	Proxy      common.Address
	RelayAdapt common.Address
}

// FeeExtractor recovers the fee a proved transaction pays to this relayer.
type FeeExtractor struct {
	mu        sync.RWMutex
	contracts map[types.ChainRef]Contracts
	decoder   *CalldataDecoder
	notes     NoteDecoder
	log       logger.Logger
}

func NewFeeExtractor(notes NoteDecoder, log logger.Logger) *FeeExtractor {
	if log == nil {
		log = logger.NoopLogger{}
	}
	return &FeeExtractor{
		contracts: make(map[types.ChainRef]Contracts),
		decoder:   NewCalldataDecoder(),
		notes:     notes,
		log:       log.With(map[string]any{"component": "fee-extractor"}),
	}
}

func (f *FeeExtractor) AddChain(chain types.ChainRef, contracts Contracts) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.contracts[chain] = contracts
}

// UsesRelayAdapt reports whether tx is addressed to the chain's relay-adapt
// contract. Any other recipient than the proxy is rejected.
func (f *FeeExtractor) UsesRelayAdapt(chain types.ChainRef, tx *types.PopulatedTransaction) (bool, error) {
	f.mu.RLock()
	contracts, ok := f.contracts[chain]
	f.mu.RUnlock()
	if !ok {
		return false, types.NewError(types.ErrCodeUnsupportedChain, chain.String(), nil)
	}

	switch {
	case tx.To == contracts.Proxy:
		return false, nil
	case contracts.RelayAdapt != (common.Address{}) && tx.To == contracts.RelayAdapt:
		return true, nil
	default:
		return false, types.NewError(types.ErrCodeInvalidTransaction,
			fmt.Sprintf("transaction recipient %s is not a protocol contract", tx.To.Hex()), nil)
	}
}

// ExtractPackagedFee decodes the proved transactions in tx and returns the
// first output note that decrypts to the relayer. Both calldata shapes carry
// the same transactions, so note handling is identical for them.
func (f *FeeExtractor) ExtractPackagedFee(ctx context.Context, chain types.ChainRef, tx *types.PopulatedTransaction, useRelayAdapt bool) (*types.PackagedFee, error) {
	txs, err := f.decoder.DecodeTransactions(tx.Data, useRelayAdapt)
	if err != nil {
		return nil, err
	}

	for i, t := range txs {
		notes, err := f.notes.DecryptNotes(ctx, chain, t.Ciphertexts)
		if err != nil {
			return nil, fmt.Errorf("decrypt notes of transaction %d: %w", i, err)
		}
		if len(notes) == 0 {
			continue
		}

		note := notes[0]
		if len(notes) > 1 {
			f.log.Warn("multiple notes to relayer, using first", map[string]any{
				"chain": chain.String(),
				"count": len(notes),
			})
		}
		return &types.PackagedFee{
			TokenAddress: strings.ToLower(note.TokenAddress.Hex()),
			Amount:       note.Amount,
		}, nil
	}

	return nil, types.ErrNoRelayerPayment
}
