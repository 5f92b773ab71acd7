package service

import (
	"errors"
	"fmt"
)

// JSON-RPC 2.0 error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

var (
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrCustodyDisabled     = errors.New("custody integration is disabled")
	ErrUnknownGenerator    = errors.New("unknown deposit info generator")
)

// RPCError is returned by every action failure that should reach the caller
// with a JSON-RPC error code.
type RPCError struct {
	Code    int
	Message string
	Cause   error
}

func (e *RPCError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *RPCError) Unwrap() error {
	return e.Cause
}

func InvalidRequest(msg string) *RPCError {
	return &RPCError{Code: CodeInvalidRequest, Message: msg}
}

func InvalidParams(msg string) *RPCError {
	return &RPCError{Code: CodeInvalidParams, Message: msg}
}

// InternalError keeps cause for logs. Only msg is shown to the caller.
func InternalError(msg string, cause error) *RPCError {
	return &RPCError{Code: CodeInternalError, Message: msg, Cause: cause}
}

func BadRequest(msg string) *RPCError {
	return &RPCError{Code: CodeParseError, Message: msg}
}

func MethodNotFound(method string) *RPCError {
	return &RPCError{Code: CodeMethodNotFound, Message: fmt.Sprintf("RPC method[%s] handler is not found", method)}
}

func invalidParamsf(format string, args ...any) *RPCError {
	return InvalidParams(fmt.Sprintf(format, args...))
}

func invalidRequestf(format string, args ...any) *RPCError {
	return InvalidRequest(fmt.Sprintf(format, args...))
}

// AsRPCError converts any error into an RPCError. Errors that are not already
// RPC errors become internal errors carrying their text.
func AsRPCError(err error) *RPCError {
	if err == nil {
		return nil
	}
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		return rpcErr
	}
	return InternalError(err.Error(), err)
}
