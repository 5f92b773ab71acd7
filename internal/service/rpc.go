package service

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
)

const jsonRPCVersion = "2.0"

// Request is one JSON-RPC envelope.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// ResponseError is the error member of a JSON-RPC response.
type ResponseError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Response is one JSON-RPC response. Exactly one of Result and Error is set.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *ResponseError  `json:"error,omitempty"`
}

// TransactionsPage is the result of get_transactions.
type TransactionsPage struct {
	Records any `json:"records"`
}

// RPCService dispatches JSON-RPC batches to the engine.
type RPCService struct {
	engine     *Engine
	batchLimit int
}

func NewRPCService(engine *Engine, batchLimit int) *RPCService {
	return &RPCService{engine: engine, batchLimit: batchLimit}
}

// Handle processes reqs in order. Each envelope commits on its own, so a
// failed entry does not undo earlier ones.
func (s *RPCService) Handle(ctx context.Context, reqs []Request) []Response {
	if s.batchLimit > 0 && len(reqs) > s.batchLimit {
		err := BadRequest(fmt.Sprintf("RPC batch size limit[%d] exceeded", s.batchLimit))
		return []Response{errorResponse(nil, err)}
	}
	if len(reqs) == 0 {
		return []Response{errorResponse(nil, InvalidRequest("RPC batch is empty"))}
	}
	out := make([]Response, 0, len(reqs))
	for _, req := range reqs {
		out = append(out, s.handleOne(ctx, req))
	}
	return out
}

func (s *RPCService) handleOne(ctx context.Context, req Request) Response {
	if req.JSONRPC != jsonRPCVersion {
		return errorResponse(req.ID, InvalidRequest(fmt.Sprintf("Unsupported JSON-RPC protocol version[%s]", req.JSONRPC)))
	}
	if req.Method == "" {
		return errorResponse(req.ID, InvalidRequest("Method name can't be empty"))
	}

	method := Method(req.Method)
	if method == MethodGetTransactions {
		views, err := s.engine.ListTransactions(ctx, req.Params)
		if err != nil {
			return errorResponse(req.ID, s.logFailure(method, err))
		}
		return Response{JSONRPC: jsonRPCVersion, ID: req.ID, Result: TransactionsPage{Records: views}}
	}

	txn, err := s.engine.Handle(ctx, method, req.Params)
	if err != nil {
		return errorResponse(req.ID, s.logFailure(method, err))
	}
	return Response{JSONRPC: jsonRPCVersion, ID: req.ID, Result: txn.View()}
}

func (s *RPCService) logFailure(method Method, err error) *RPCError {
	rpcErr := AsRPCError(err)
	if rpcErr.Code == CodeInternalError {
		zap.L().Error("rpc action failed",
			zap.String("method", string(method)),
			zap.String("message", rpcErr.Message),
			zap.Error(rpcErr.Cause),
		)
	} else {
		zap.L().Info("rpc action rejected",
			zap.String("method", string(method)),
			zap.Int("code", rpcErr.Code),
			zap.String("message", rpcErr.Message),
		)
	}
	return rpcErr
}

func errorResponse(id json.RawMessage, err *RPCError) Response {
	return Response{
		JSONRPC: jsonRPCVersion,
		ID:      id,
		Error:   &ResponseError{Code: err.Code, Message: err.Message},
	}
}
