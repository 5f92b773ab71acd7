package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/ayo6706/anchor-platform/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rpcRequest(id int, method Method, params string) Request {
	return Request{
		JSONRPC: "2.0",
		ID:      json.RawMessage(`"` + string(rune('0'+id)) + `"`),
		Method:  string(method),
		Params:  json.RawMessage(params),
	}
}

func TestRPCServiceBatchLimit(t *testing.T) {
	env := newTestEnv(t)
	svc := NewRPCService(env.engine, 2)

	resp := svc.Handle(context.Background(), []Request{
		rpcRequest(1, MethodNotifyTransactionError, `{}`),
		rpcRequest(2, MethodNotifyTransactionError, `{}`),
		rpcRequest(3, MethodNotifyTransactionError, `{}`),
	})

	require.Len(t, resp, 1)
	require.NotNil(t, resp[0].Error)
	assert.Equal(t, CodeParseError, resp[0].Error.Code)
	assert.Equal(t, "RPC batch size limit[2] exceeded", resp[0].Error.Message)
}

func TestRPCServiceEmptyBatch(t *testing.T) {
	env := newTestEnv(t)
	svc := NewRPCService(env.engine, 10)

	resp := svc.Handle(context.Background(), nil)

	require.Len(t, resp, 1)
	assert.Equal(t, CodeInvalidRequest, resp[0].Error.Code)
}

func TestRPCServiceEnvelopeErrors(t *testing.T) {
	tests := []struct {
		name    string
		req     Request
		code    int
		message string
	}{
		{
			name:    "wrong version",
			req:     Request{JSONRPC: "1.0", ID: json.RawMessage(`1`), Method: "notify_trust_set"},
			code:    CodeInvalidRequest,
			message: "Unsupported JSON-RPC protocol version[1.0]",
		},
		{
			name:    "empty method",
			req:     Request{JSONRPC: "2.0", ID: json.RawMessage(`1`)},
			code:    CodeInvalidRequest,
			message: "Method name can't be empty",
		},
		{
			name:    "unknown method",
			req:     Request{JSONRPC: "2.0", ID: json.RawMessage(`1`), Method: "do_magic", Params: json.RawMessage(`{}`)},
			code:    CodeMethodNotFound,
			message: "RPC method[do_magic] handler is not found",
		},
		{
			name:    "malformed params",
			req:     Request{JSONRPC: "2.0", ID: json.RawMessage(`1`), Method: "notify_trust_set", Params: json.RawMessage(`[1,2]`)},
			code:    CodeParseError,
			message: "",
		},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t)
			svc := NewRPCService(env.engine, 10)

			resp := svc.Handle(context.Background(), []Request{tc.req})

			require.Len(t, resp, 1)
			assert.Equal(t, "2.0", resp[0].JSONRPC)
			assert.JSONEq(t, `1`, string(resp[0].ID))
			require.NotNil(t, resp[0].Error)
			assert.Nil(t, resp[0].Result)
			assert.Equal(t, tc.code, resp[0].Error.Code)
			if tc.message != "" {
				assert.Equal(t, tc.message, resp[0].Error.Message)
			}
		})
	}
}

func TestRPCServiceEntriesCommitIndependently(t *testing.T) {
	env := newTestEnv(t)
	env.store.put(sep24Deposit(domain.StatusPendingUserTransferStart, false))
	svc := NewRPCService(env.engine, 10)

	resp := svc.Handle(context.Background(), []Request{
		rpcRequest(1, MethodNotifyOffchainFundsReceived, `{"transaction_id":"txn-1","external_transaction_id":"EXT-1"}`),
		rpcRequest(2, MethodNotifyOffchainFundsReceived, `{"transaction_id":"txn-1"}`),
	})

	require.Len(t, resp, 2)
	require.Nil(t, resp[0].Error)
	view, ok := resp[0].Result.(domain.TransactionView)
	require.True(t, ok)
	assert.Equal(t, domain.StatusPendingAnchor, view.Status)
	assert.JSONEq(t, `"1"`, string(resp[0].ID))

	require.NotNil(t, resp[1].Error)
	assert.Equal(t, CodeInvalidRequest, resp[1].Error.Code)
	assert.JSONEq(t, `"2"`, string(resp[1].ID))

	assert.Equal(t, domain.StatusPendingAnchor, env.store.get(t, testTxnID).Status)
}

func TestRPCServiceResponseEncoding(t *testing.T) {
	env := newTestEnv(t)
	env.store.put(sep24Deposit(domain.StatusPendingAnchor, true))
	svc := NewRPCService(env.engine, 10)

	resp := svc.Handle(context.Background(), []Request{
		rpcRequest(1, MethodNotifyTransactionError, `{"transaction_id":"txn-1","message":"failed"}`),
	})
	body, err := json.Marshal(resp[0])
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(body, &decoded))
	assert.Equal(t, "2.0", decoded["jsonrpc"])
	assert.NotContains(t, decoded, "error")
	result := decoded["result"].(map[string]any)
	assert.Equal(t, "error", result["status"])
	assert.Equal(t, "failed", result["message"])
	assert.Equal(t, "24", result["sep"])
}

func TestGetTransactions(t *testing.T) {
	env := newTestEnv(t)
	for i, id := range []string{"a", "b", "c"} {
		txn := sep24Deposit(domain.StatusPendingAnchor, true)
		txn.ID = id
		txn.StartedAt = fixedNow.Add(time.Duration(i) * time.Minute)
		env.store.put(txn)
	}
	done := sep24Deposit(domain.StatusCompleted, true)
	done.ID = "d"
	env.store.put(done)
	other := sep31Receive(domain.StatusPendingReceiver, true)
	other.ID = "e"
	env.store.put(other)

	svc := NewRPCService(env.engine, 10)

	t.Run("filters and orders", func(t *testing.T) {
		resp := svc.Handle(context.Background(), []Request{
			rpcRequest(1, MethodGetTransactions, `{"sep":"24","statuses":["pending_anchor"],"order":"desc"}`),
		})
		require.Nil(t, resp[0].Error)
		page := resp[0].Result.(TransactionsPage)
		views := page.Records.([]domain.TransactionView)
		require.Len(t, views, 3)
		assert.Equal(t, "c", views[0].ID)
		assert.Equal(t, "a", views[2].ID)
	})

	t.Run("pages", func(t *testing.T) {
		views, err := env.engine.ListTransactions(context.Background(),
			json.RawMessage(`{"sep":"24","statuses":["pending_anchor"],"page_size":2,"page_number":1}`))
		require.NoError(t, err)
		require.Len(t, views, 1)
		assert.Equal(t, "c", views[0].ID)
	})

	t.Run("invalid filters", func(t *testing.T) {
		for raw, message := range map[string]string{
			`{"sep":"99"}`:                          "sep[99] is not supported",
			`{"sep":"24","statuses":["pending_x"]}`: "status[pending_x] is not supported for protocol[24]",
			`{"sep":"24","order_by":"amount"}`:      "order_by[amount] is not supported",
			`{"sep":"24","order":"sideways"}`:       "order[sideways] is not supported",
		} {
			_, err := env.engine.ListTransactions(context.Background(), json.RawMessage(raw))
			requireRPCError(t, err, CodeInvalidParams, message)
		}
	})
}
