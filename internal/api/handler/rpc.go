package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/ayo6706/anchor-platform/internal/service"
)

const maxRPCBodyBytes = 1 << 20

// RPCDispatcher runs a batch of JSON-RPC envelopes.
type RPCDispatcher interface {
	Handle(ctx context.Context, reqs []service.Request) []service.Response
}

type RPCHandler struct {
	rpc RPCDispatcher
}

func NewRPCHandler(rpc RPCDispatcher) *RPCHandler {
	return &RPCHandler{rpc: rpc}
}

// Handle serves POST /rpc. The body is a single envelope or an array of
// envelopes, and the response mirrors that shape. JSON-RPC failures are
// reported in the response body with HTTP 200.
func (h *RPCHandler) Handle(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRPCBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			RespondError(w, r, http.StatusRequestEntityTooLarge, "request/body-too-large", "request body exceeds 1MB")
			return
		}
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Failed to read request body")
		return
	}

	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		RespondJSON(w, http.StatusOK, parseErrorResponse("Request body is empty"))
		return
	}

	if body[0] != '[' {
		var req service.Request
		if err := json.Unmarshal(body, &req); err != nil {
			RespondJSON(w, http.StatusOK, parseErrorResponse("Invalid JSON-RPC request"))
			return
		}
		resp := h.rpc.Handle(r.Context(), []service.Request{req})
		RespondJSON(w, http.StatusOK, resp[0])
		return
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		RespondJSON(w, http.StatusOK, parseErrorResponse("Invalid JSON-RPC batch"))
		return
	}
	reqs := make([]service.Request, 0, len(raw))
	for _, entry := range raw {
		var req service.Request
		if err := json.Unmarshal(entry, &req); err != nil {
			// An undecodable entry fails the envelope check with its own response.
			req = service.Request{}
		}
		reqs = append(reqs, req)
	}
	RespondJSON(w, http.StatusOK, h.rpc.Handle(r.Context(), reqs))
}

func parseErrorResponse(message string) service.Response {
	return service.Response{
		JSONRPC: "2.0",
		ID:      json.RawMessage("null"),
		Error:   &service.ResponseError{Code: service.CodeParseError, Message: message},
	}
}
