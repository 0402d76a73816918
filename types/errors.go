package types

import (
	"errors"
	"fmt"
)

// RelayError is the coded error used across the relayer. Two RelayErrors
// match under errors.Is when their codes are equal.
type RelayError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Cause   error  `json:"-"`
}

func (e *RelayError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *RelayError) Unwrap() error {
	return e.Cause
}

func (e *RelayError) Is(target error) bool {
	var t *RelayError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// Error codes
const (
	ErrCodeTransport          = "TRANSPORT_ERROR"
	ErrCodeMalformedMessage   = "MALFORMED_MESSAGE"
	ErrCodeUnknownMethod      = "UNKNOWN_METHOD"
	ErrCodeGasEstimate        = "GAS_ESTIMATE_ERROR"
	ErrCodeNoRelayerPayment   = "NO_RELAYER_PAYMENT"
	ErrCodeInsufficientFee    = "INSUFFICIENT_FEE"
	ErrCodeStaleFeeCache      = "STALE_FEE_CACHE"
	ErrCodeExecution          = "EXECUTION_ERROR"
	ErrCodeUnsupportedChain   = "UNSUPPORTED_CHAIN"
	ErrCodeConfig             = "CONFIG_ERROR"
	ErrCodeInvalidTransaction = "INVALID_TRANSACTION"
)

var (
	ErrTransport          = &RelayError{Code: ErrCodeTransport, Message: "transport error"}
	ErrMalformedMessage   = &RelayError{Code: ErrCodeMalformedMessage, Message: "malformed message"}
	ErrUnknownMethod      = &RelayError{Code: ErrCodeUnknownMethod, Message: "unknown method"}
	ErrGasEstimate        = &RelayError{Code: ErrCodeGasEstimate, Message: "could not estimate gas"}
	ErrNoRelayerPayment   = &RelayError{Code: ErrCodeNoRelayerPayment, Message: "no relayer payment included in transaction"}
	ErrInsufficientFee    = &RelayError{Code: ErrCodeInsufficientFee, Message: "insufficient relayer fee"}
	ErrStaleFeeCache      = &RelayError{Code: ErrCodeStaleFeeCache, Message: "unknown or expired fee cache id"}
	ErrExecution          = &RelayError{Code: ErrCodeExecution, Message: "transaction execution failed"}
	ErrUnsupportedChain   = &RelayError{Code: ErrCodeUnsupportedChain, Message: "unsupported chain"}
	ErrConfig             = &RelayError{Code: ErrCodeConfig, Message: "invalid configuration"}
	ErrInvalidTransaction = &RelayError{Code: ErrCodeInvalidTransaction, Message: "invalid transaction"}
)

// NewError builds a RelayError with the given code.
func NewError(code, message string, cause error) *RelayError {
	return &RelayError{Code: code, Message: message, Cause: cause}
}

// ErrorCode extracts the RelayError code from err, or "" when err is not coded.
func ErrorCode(err error) string {
	var re *RelayError
	if errors.As(err, &re) {
		return re.Code
	}
	return ""
}
