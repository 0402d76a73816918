package verification

import (
	"bytes"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/vitwit/wakurelay/types"
)

// CalldataDecoder unpacks the proved transactions carried in proxy and
// relay-adapt calldata.
type CalldataDecoder struct {
	abi abi.ABI
}

func NewCalldataDecoder() *CalldataDecoder {
	return &CalldataDecoder{abi: contractABI}
}

// DecodeTransactions returns the proved transactions in data. With
// relayAdapt set the calldata must be a relay call, otherwise a transact call.
func (d *CalldataDecoder) DecodeTransactions(data []byte, relayAdapt bool) ([]Transaction, error) {
	name := MethodTransact
	if relayAdapt {
		name = MethodRelay
	}
	method := d.abi.Methods[name]

	if len(data) < 4 || !bytes.Equal(data[:4], method.ID) {
		return nil, types.NewError(types.ErrCodeInvalidTransaction, fmt.Sprintf("calldata is not a %s call", name), nil)
	}

	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, types.NewError(types.ErrCodeInvalidTransaction, fmt.Sprintf("failed to unpack %s calldata", name), err)
	}
	if len(args) == 0 {
		return nil, types.NewError(types.ErrCodeInvalidTransaction, "calldata carries no transactions", nil)
	}

	txs := *abi.ConvertType(args[0], new([]Transaction)).(*[]Transaction)
	return txs, nil
}

// DecodeActionData returns the relay-adapt action data of a relay call.
func (d *CalldataDecoder) DecodeActionData(data []byte) (*ActionData, error) {
	method := d.abi.Methods[MethodRelay]
	if len(data) < 4 || !bytes.Equal(data[:4], method.ID) {
		return nil, types.NewError(types.ErrCodeInvalidTransaction, "calldata is not a relay call", nil)
	}

	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, types.NewError(types.ErrCodeInvalidTransaction, "failed to unpack relay calldata", err)
	}
	action := *abi.ConvertType(args[1], new(ActionData)).(*ActionData)
	return &action, nil
}

// PackTransact encodes a proxy transact call.
func PackTransact(txs []Transaction) ([]byte, error) {
	return contractABI.Pack(MethodTransact, txs)
}

// PackRelay encodes a relay-adapt relay call.
func PackRelay(txs []Transaction, action ActionData) ([]byte, error) {
	return contractABI.Pack(MethodRelay, txs, action)
}
