package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/vitwit/wakurelay/logger"
	"github.com/vitwit/wakurelay/types"
)

// JSON-RPC error codes used in responses.
const (
	RPCCodeInvalidParams = -32602
	RPCCodeServerError   = -32000
)

// MethodTransact is the method name for relay requests.
const MethodTransact = "transact"

// MethodHandler serves one RPC method. A nil response means nothing is
// published back.
type MethodHandler interface {
	Handle(ctx context.Context, params json.RawMessage, id json.RawMessage, log logger.Logger) *types.RPCResponse
}

// MethodHandlerFunc adapts a function to MethodHandler.
type MethodHandlerFunc func(ctx context.Context, params json.RawMessage, id json.RawMessage, log logger.Logger) *types.RPCResponse

func (f MethodHandlerFunc) Handle(ctx context.Context, params json.RawMessage, id json.RawMessage, log logger.Logger) *types.RPCResponse {
	return f(ctx, params, id, log)
}

// Registry maps method names to handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]MethodHandler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]MethodHandler)}
}

// Register adds or replaces the handler for name.
func (r *Registry) Register(name string, h MethodHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = h
}

func (r *Registry) Lookup(name string) (MethodHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	return h, ok
}

// Methods lists the registered method names in order.
func (r *Registry) Methods() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// TransactionProcessor is the transaction pipeline as seen by the transact
// method.
type TransactionProcessor interface {
	ProcessTransaction(ctx context.Context, chain types.ChainRef, feeCacheID string, serialized string) (*types.SubmissionResult, error)
}

// TransactParams are the positional params of a transact request:
// [chainID, feeCacheID, serializedTransaction].
type TransactParams struct {
	Chain                 types.ChainRef
	FeeCacheID            string
	SerializedTransaction string
}

// ParseTransactParams decodes transact params. The chain id may be a number
// or a string.
func ParseTransactParams(raw json.RawMessage) (*TransactParams, error) {
	var params []json.RawMessage
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, types.NewError(types.ErrCodeMalformedMessage, "transact params must be an array", err)
	}
	if len(params) != 3 {
		return nil, types.NewError(types.ErrCodeMalformedMessage, fmt.Sprintf("transact expects 3 params, got %d", len(params)), nil)
	}

	chain, err := parseChainParam(params[0])
	if err != nil {
		return nil, err
	}

	var p TransactParams
	p.Chain = chain
	if err := json.Unmarshal(params[1], &p.FeeCacheID); err != nil {
		return nil, types.NewError(types.ErrCodeMalformedMessage, "feeCacheID must be a string", err)
	}
	if err := json.Unmarshal(params[2], &p.SerializedTransaction); err != nil {
		return nil, types.NewError(types.ErrCodeMalformedMessage, "serialized transaction must be a string", err)
	}
	return &p, nil
}

func parseChainParam(raw json.RawMessage) (types.ChainRef, error) {
	var n uint64
	if err := json.Unmarshal(raw, &n); err == nil {
		return types.EVMChain(n), nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return types.ChainRef{}, types.NewError(types.ErrCodeMalformedMessage, "chainID must be a number or string", err)
	}
	if n, err := strconv.ParseUint(s, 0, 64); err == nil {
		return types.EVMChain(n), nil
	}
	chain, err := types.ParseChainRef(s)
	if err != nil {
		return types.ChainRef{}, types.NewError(types.ErrCodeMalformedMessage, "invalid chainID", err)
	}
	return chain, nil
}

// TransactHandler binds the transact method to a TransactionProcessor.
// Pipeline failures become JSON-RPC errors carrying the error code in data.
func TransactHandler(processor TransactionProcessor) MethodHandler {
	return MethodHandlerFunc(func(ctx context.Context, raw json.RawMessage, id json.RawMessage, log logger.Logger) *types.RPCResponse {
		params, err := ParseTransactParams(raw)
		if err != nil {
			log.Warn("invalid transact params", map[string]any{"err": err})
			return types.NewRPCError(id, RPCCodeInvalidParams, err.Error(), errorData(err))
		}

		log = log.With(map[string]any{"chain": params.Chain.String(), "feeCacheID": params.FeeCacheID})
		res, err := processor.ProcessTransaction(ctx, params.Chain, params.FeeCacheID, params.SerializedTransaction)
		if err != nil {
			log.Warn("transact failed", map[string]any{"err": err})
			return types.NewRPCError(id, RPCCodeServerError, err.Error(), errorData(err))
		}
		return types.NewRPCResult(id, res)
	})
}

func errorData(err error) map[string]string {
	code := types.ErrorCode(err)
	if code == "" {
		code = types.ErrCodeExecution
	}
	return map[string]string{"code": code}
}
