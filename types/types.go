package types

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Payload is the byte body of a relay message. On the wire it is a hex
// string; decoding also accepts a JSON array of byte values, which is how
// some node versions return buffered messages.
type Payload []byte

func (p Payload) MarshalJSON() ([]byte, error) {
	return json.Marshal(common.Bytes2Hex(p))
}

func (p *Payload) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*p = nil
		return nil
	}

	if len(data) > 0 && data[0] == '[' {
		var ints []int
		if err := json.Unmarshal(data, &ints); err != nil {
			return fmt.Errorf("invalid payload byte array: %w", err)
		}
		raw := make([]byte, len(ints))
		for i, v := range ints {
			if v < 0 || v > 255 {
				return fmt.Errorf("invalid payload byte %d at %d", v, i)
			}
			raw[i] = byte(v)
		}
		*p = raw
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}
	s = strings.TrimPrefix(s, "0x")
	b, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}
	*p = b
	return nil
}

// RelayMessage is the unit of peer-to-peer transport.
type RelayMessage struct {
	ContentTopic string  `json:"contentTopic"`
	Payload      Payload `json:"payload"`
	Timestamp    int64   `json:"timestamp"`
}

// Age returns how long ago the message was stamped.
func (m RelayMessage) Age(now time.Time) time.Duration {
	return now.Sub(time.Unix(m.Timestamp, 0))
}

// NewUTF8Message builds an outbound message from a text body.
func NewUTF8Message(body string, contentTopic string, now time.Time) RelayMessage {
	return RelayMessage{
		ContentTopic: contentTopic,
		Payload:      Payload(body),
		Timestamp:    now.Unix(),
	}
}

const JSONRPCVersion = "2.0"

// RPCRequest is the application request carried in a relay message payload.
type RPCRequest struct {
	JSONRPC string          `json:"jsonrpc,omitempty"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

// RPCError is the JSON-RPC error object.
type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// RPCResponse is published back on the content topic a request arrived on.
type RPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// NewRPCResult builds a successful response.
func NewRPCResult(id json.RawMessage, result interface{}) *RPCResponse {
	return &RPCResponse{JSONRPC: JSONRPCVersion, ID: id, Result: result}
}

// NewRPCError builds an error response.
func NewRPCError(id json.RawMessage, code int, message string, data interface{}) *RPCResponse {
	return &RPCResponse{
		JSONRPC: JSONRPCVersion,
		ID:      id,
		Error:   &RPCError{Code: code, Message: message, Data: data},
	}
}

// PackagedFee is the relayer payment recovered from a proof transaction.
// TokenAddress is lowercase hex.
type PackagedFee struct {
	TokenAddress string   `json:"tokenAddress"`
	Amount       *big.Int `json:"amount"`
}

// Note is an output note that decrypted against the relayer's viewing key.
type Note struct {
	TokenAddress common.Address
	Amount       *big.Int
}

// FeeMessageData is the signed body of a fee broadcast.
type FeeMessageData struct {
	Fees          map[string]string `json:"fees"`
	FeeExpiration int64             `json:"feeExpiration"`
	FeesID        string            `json:"feesID"`
	Pubkey        string            `json:"pubkey"`
	SigningKey    string            `json:"signingKey"`
}

// FeeMessage is a signed fee broadcast. Data holds the UTF-8 JSON encoding of
// FeeMessageData and Signature is computed over exactly those bytes.
type FeeMessage struct {
	Data      hexutil.Bytes `json:"data"`
	Signature string        `json:"signature"`
}

// SubmissionResult is the handle returned by the execution collaborator.
type SubmissionResult struct {
	TxHash string   `json:"txHash"`
	Nonce  uint64   `json:"nonce"`
	Chain  ChainRef `json:"chain"`
}
