package verification

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// CommitmentCiphertext is an encrypted output note. Ciphertext is a nacl box
// (nonce prepended) sealed by EphemeralKey to the receiver's viewing key.
type CommitmentCiphertext struct {
	Ciphertext   []byte
	EphemeralKey [32]byte
	Memo         []byte
}

// Transaction is one proved transaction in a proxy or relay-adapt call.
type Transaction struct {
	TreeNumber  *big.Int
	Nullifiers  [][32]byte
	Commitments [][32]byte
	Ciphertexts []CommitmentCiphertext
}

// Call is a follow-up call made by the relay-adapt contract.
type Call struct {
	To    common.Address
	Data  []byte
	Value *big.Int
}

// ActionData is the relay-adapt wrapper around the proved transactions.
type ActionData struct {
	Random         [31]byte
	RequireSuccess bool
	MinGasLimit    *big.Int
	Calls          []Call
}

const (
	MethodTransact = "transact"
	MethodRelay    = "relay"
)

const contractABIJSON = `[
  {
    "type": "function",
    "name": "transact",
    "stateMutability": "nonpayable",
    "inputs": [
      {"name": "_transactions", "type": "tuple[]", "components": [
        {"name": "treeNumber", "type": "uint256"},
        {"name": "nullifiers", "type": "bytes32[]"},
        {"name": "commitments", "type": "bytes32[]"},
        {"name": "ciphertexts", "type": "tuple[]", "components": [
          {"name": "ciphertext", "type": "bytes"},
          {"name": "ephemeralKey", "type": "bytes32"},
          {"name": "memo", "type": "bytes"}
        ]}
      ]}
    ],
    "outputs": []
  },
  {
    "type": "function",
    "name": "relay",
    "stateMutability": "payable",
    "inputs": [
      {"name": "_transactions", "type": "tuple[]", "components": [
        {"name": "treeNumber", "type": "uint256"},
        {"name": "nullifiers", "type": "bytes32[]"},
        {"name": "commitments", "type": "bytes32[]"},
        {"name": "ciphertexts", "type": "tuple[]", "components": [
          {"name": "ciphertext", "type": "bytes"},
          {"name": "ephemeralKey", "type": "bytes32"},
          {"name": "memo", "type": "bytes"}
        ]}
      ]},
      {"name": "_actionData", "type": "tuple", "components": [
        {"name": "random", "type": "bytes31"},
        {"name": "requireSuccess", "type": "bool"},
        {"name": "minGasLimit", "type": "uint256"},
        {"name": "calls", "type": "tuple[]", "components": [
          {"name": "to", "type": "address"},
          {"name": "data", "type": "bytes"},
          {"name": "value", "type": "uint256"}
        ]}
      ]}
    ],
    "outputs": []
  }
]`

// ContractABI returns the parsed proxy and relay-adapt ABI.
func ContractABI() abi.ABI {
	return contractABI
}

var contractABI = mustParseABI(contractABIJSON)

func mustParseABI(s string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		panic(err)
	}
	return parsed
}
