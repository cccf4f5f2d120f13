package protocol

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode identifies a transfer error kind across node boundaries
type ErrorCode string

const (
	CodeInsufficientBalance ErrorCode = "insufficient_balance"
	CodeUnauthorized        ErrorCode = "unauthorized"
	CodeAccountNotFound     ErrorCode = "account_not_found"
	CodeAccountExists       ErrorCode = "account_already_exists"
	CodeValueTooSmall       ErrorCode = "transfer_value_too_small"
	CodeUnderlyingTransfer  ErrorCode = "underlying_transfer_failure"
	CodeRemoteCall          ErrorCode = "remote_call_error"
	CodeOther               ErrorCode = "internal"
)

// TxError is the error type carried between nodes. Every operational
// failure maps to one of the codes above; the message adds detail except
// for authorization failures, which never say more than "unauthorized".
type TxError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

func (e *TxError) Error() string {
	return e.Message
}

// ErrInsufficientBalance reports a debit that would go negative
func ErrInsufficientBalance() *TxError {
	return &TxError{Code: CodeInsufficientBalance, Message: "insufficient balance"}
}

// ErrUnauthorized deliberately carries no detail about which check failed
func ErrUnauthorized() *TxError {
	return &TxError{Code: CodeUnauthorized, Message: "unauthorized"}
}

// ErrAccountNotFound is scoped to the node that failed the lookup
func ErrAccountNotFound(node, account string) *TxError {
	return &TxError{
		Code:    CodeAccountNotFound,
		Message: fmt.Sprintf("account %s does not exist on %s", account, node),
	}
}

func ErrAccountExists() *TxError {
	return &TxError{Code: CodeAccountExists, Message: "account already exists"}
}

func ErrValueTooSmall() *TxError {
	return &TxError{Code: CodeValueTooSmall, Message: "transfer value must exceed the fee"}
}

func ErrUnderlyingTransfer() *TxError {
	return &TxError{Code: CodeUnderlyingTransfer, Message: "underlying asset transfer failed"}
}

// ErrRemoteCall wraps a transport-level failure with code and message
func ErrRemoteCall(status int, message string) *TxError {
	return &TxError{
		Code:    CodeRemoteCall,
		Message: fmt.Sprintf("remote call rejected (code %d): %s", status, message),
	}
}

func ErrOther(message string) *TxError {
	return &TxError{Code: CodeOther, Message: message}
}

// CodeOf extracts the error code from err, or CodeOther for foreign errors
func CodeOf(err error) ErrorCode {
	var txErr *TxError
	if errors.As(err, &txErr) {
		return txErr.Code
	}
	return CodeOther
}

// HTTPStatus maps an error code to the status its node responds with
func HTTPStatus(code ErrorCode) int {
	switch code {
	case CodeInsufficientBalance, CodeValueTooSmall:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusForbidden
	case CodeAccountNotFound:
		return http.StatusNotFound
	case CodeAccountExists:
		return http.StatusConflict
	case CodeUnderlyingTransfer, CodeRemoteCall:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
