package types

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// PopulatedTransaction is a calldata-complete transaction destined for the
// proxy or relay-adapt contract. Gas fields and nonce are filled by the
// relayer at submission.
type PopulatedTransaction struct {
	To    common.Address `json:"to"`
	Data  hexutil.Bytes  `json:"data"`
	Value *hexutil.Big   `json:"value,omitempty"`
}

// ValueOrZero returns the native value attached to the transaction.
func (t *PopulatedTransaction) ValueOrZero() *big.Int {
	if t.Value == nil {
		return new(big.Int)
	}
	return t.Value.ToInt()
}

// Validate checks the minimum shape needed to estimate and decode the transaction.
func (t *PopulatedTransaction) Validate() error {
	if t.To == (common.Address{}) {
		return NewError(ErrCodeInvalidTransaction, "transaction has no recipient", nil)
	}
	if len(t.Data) < 4 {
		return NewError(ErrCodeInvalidTransaction, "transaction calldata is too short", nil)
	}
	return nil
}

// DeserializePopulatedTransaction decodes the hex form sent by requesters: a
// hex string whose bytes are the JSON encoding of the transaction.
func DeserializePopulatedTransaction(serialized string) (*PopulatedTransaction, error) {
	raw, err := hexutil.Decode(serialized)
	if err != nil {
		return nil, NewError(ErrCodeInvalidTransaction, "serialized transaction is not hex", err)
	}

	var tx PopulatedTransaction
	if err := json.Unmarshal(raw, &tx); err != nil {
		return nil, NewError(ErrCodeInvalidTransaction, "serialized transaction is not valid JSON", err)
	}
	if err := tx.Validate(); err != nil {
		return nil, err
	}
	return &tx, nil
}

// SerializePopulatedTransaction is the inverse of DeserializePopulatedTransaction.
func SerializePopulatedTransaction(tx *PopulatedTransaction) (string, error) {
	raw, err := json.Marshal(tx)
	if err != nil {
		return "", fmt.Errorf("marshal transaction: %w", err)
	}
	return hexutil.Encode(raw), nil
}
