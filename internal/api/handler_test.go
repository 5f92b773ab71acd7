package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ayo6706/anchor-platform/internal/api"
	"github.com/ayo6706/anchor-platform/internal/api/handler"
	"github.com/ayo6706/anchor-platform/internal/api/middleware"
	"github.com/ayo6706/anchor-platform/internal/config"
	"github.com/ayo6706/anchor-platform/internal/idempotency"
	"github.com/ayo6706/anchor-platform/internal/service"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	testJWTSecret   = "test-secret-0123456789-test-secret"
	testJWTIssuer   = "anchor-platform-test"
	testJWTAudience = "platform-api-test"
	testCaller      = "sep-server"
)

func TestMain(m *testing.M) {
	middleware.SetJWTSecret(testJWTSecret)
	middleware.SetJWTValidation(testJWTIssuer, testJWTAudience)
	os.Exit(m.Run())
}

// stubDispatcher echoes each envelope's method back as its result.
type stubDispatcher struct {
	mu    sync.Mutex
	calls [][]service.Request
}

func (d *stubDispatcher) Handle(_ context.Context, reqs []service.Request) []service.Response {
	d.mu.Lock()
	d.calls = append(d.calls, reqs)
	d.mu.Unlock()

	out := make([]service.Response, 0, len(reqs))
	for _, req := range reqs {
		switch req.Method {
		case "panic":
			panic("dispatcher exploded")
		case "":
			out = append(out, service.Response{
				JSONRPC: "2.0",
				ID:      req.ID,
				Error:   &service.ResponseError{Code: service.CodeInvalidRequest, Message: "Method name can't be empty"},
			})
		default:
			out = append(out, service.Response{
				JSONRPC: "2.0",
				ID:      req.ID,
				Result:  map[string]string{"method": req.Method},
			})
		}
	}
	return out
}

func (d *stubDispatcher) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.calls)
}

type stubPinger struct {
	err error
}

func (p stubPinger) Ping(context.Context) error { return p.err }

type testAPI struct {
	handler    http.Handler
	dispatcher *stubDispatcher
	idem       *idempotency.Store
}

func setupAPI(t *testing.T, rps int, health *handler.HealthHandler) *testAPI {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg := &config.Config{
		HTTPPort:        "0",
		JWTSecret:       testJWTSecret,
		JWTIssuer:       testJWTIssuer,
		JWTAudience:     testJWTAudience,
		RPCRateLimitRPS: rps,
		IdempotencyTTL:  time.Hour,
	}
	dispatcher := &stubDispatcher{}
	idem := idempotency.NewStore(client, cfg.IdempotencyTTL)
	router := api.NewRouter(cfg, zap.NewNop(), dispatcher, idem, health)
	return &testAPI{handler: router.Routes(), dispatcher: dispatcher, idem: idem}
}

func generateTestToken(subject string) string {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iss": testJWTIssuer,
		"aud": testJWTAudience,
		"sub": subject,
		"iat": now.Unix(),
		"nbf": now.Add(-30 * time.Second).Unix(),
		"exp": now.Add(time.Hour).Unix(),
	})
	tokenString, _ := token.SignedString(middleware.JWTSecret())
	return tokenString
}

func (a *testAPI) postRPC(t *testing.T, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/rpc", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+generateTestToken(testCaller))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	a.handler.ServeHTTP(w, req)
	return w
}

func TestRFC7807ProblemDetails(t *testing.T) {
	a := setupAPI(t, 1000, nil)

	req := httptest.NewRequest(http.MethodPost, "/rpc", strings.NewReader(`{}`))
	w := httptest.NewRecorder()
	a.handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Contains(t, w.Header().Get("Content-Type"), "application/problem+json")

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.NotEmpty(t, body["type"])
	assert.Equal(t, float64(http.StatusUnauthorized), body["status"])
	assert.NotEmpty(t, body["title"])
	assert.NotEmpty(t, body["detail"])
	assert.Equal(t, "/rpc", body["instance"])
	assert.NotEmpty(t, body["trace_id"])
	assert.Zero(t, a.dispatcher.callCount())
}

func TestAuthRejectsBadTokens(t *testing.T) {
	wrongSecret := func() string {
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"iss": testJWTIssuer,
			"aud": testJWTAudience,
			"sub": testCaller,
			"exp": time.Now().Add(time.Hour).Unix(),
		})
		s, _ := token.SignedString([]byte("another-secret-0123456789-another"))
		return s
	}
	wrongAudience := func() string {
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"iss": testJWTIssuer,
			"aud": "someone-else",
			"sub": testCaller,
			"exp": time.Now().Add(time.Hour).Unix(),
		})
		s, _ := token.SignedString(middleware.JWTSecret())
		return s
	}

	tests := []struct {
		name   string
		header string
	}{
		{name: "missing bearer prefix", header: generateTestToken(testCaller)},
		{name: "wrong secret", header: "Bearer " + wrongSecret()},
		{name: "wrong audience", header: "Bearer " + wrongAudience()},
		{name: "empty subject", header: "Bearer " + generateTestToken("")},
		{name: "garbage", header: "Bearer not-a-jwt"},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			a := setupAPI(t, 1000, nil)
			req := httptest.NewRequest(http.MethodPost, "/rpc", strings.NewReader(`{}`))
			req.Header.Set("Authorization", tc.header)
			w := httptest.NewRecorder()

			a.handler.ServeHTTP(w, req)

			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Zero(t, a.dispatcher.callCount())
		})
	}
}

func TestRPCSingleEnvelope(t *testing.T) {
	a := setupAPI(t, 1000, nil)

	w := a.postRPC(t, `{"jsonrpc":"2.0","id":"7","method":"notify_trust_set","params":{"transaction_id":"t1"}}`, nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Trace-ID"))
	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "2.0", resp["jsonrpc"])
	assert.Equal(t, "7", resp["id"])
	assert.Equal(t, map[string]any{"method": "notify_trust_set"}, resp["result"])

	require.Equal(t, 1, a.dispatcher.callCount())
	assert.JSONEq(t, `{"transaction_id":"t1"}`, string(a.dispatcher.calls[0][0].Params))
}

func TestRPCBatch(t *testing.T) {
	a := setupAPI(t, 1000, nil)

	w := a.postRPC(t, `[
		{"jsonrpc":"2.0","id":1,"method":"request_trust"},
		"not an envelope",
		{"jsonrpc":"2.0","id":3,"method":"do_stellar_payment"}
	]`, nil)

	require.Equal(t, http.StatusOK, w.Code)
	var resp []service.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp, 3)
	assert.JSONEq(t, `1`, string(resp[0].ID))
	assert.Nil(t, resp[0].Error)
	require.NotNil(t, resp[1].Error)
	assert.Equal(t, service.CodeInvalidRequest, resp[1].Error.Code)
	assert.JSONEq(t, `3`, string(resp[2].ID))
}

func TestRPCParseErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "empty body", body: "  "},
		{name: "broken object", body: `{"jsonrpc":`},
		{name: "broken batch", body: `[{"jsonrpc":"2.0"}`},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			a := setupAPI(t, 1000, nil)

			w := a.postRPC(t, tc.body, nil)

			require.Equal(t, http.StatusOK, w.Code)
			var resp map[string]any
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Nil(t, resp["id"])
			rpcErr := resp["error"].(map[string]any)
			assert.Equal(t, float64(service.CodeParseError), rpcErr["code"])
			assert.Zero(t, a.dispatcher.callCount())
		})
	}
}

func TestRPCBodyTooLarge(t *testing.T) {
	a := setupAPI(t, 1000, nil)
	body := `{"jsonrpc":"2.0","method":"request_trust","params":{"message":"` + strings.Repeat("x", 1<<20) + `"}}`

	w := a.postRPC(t, body, nil)

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "application/problem+json")
	assert.Zero(t, a.dispatcher.callCount())
}

func TestRPCRateLimitPerCaller(t *testing.T) {
	a := setupAPI(t, 1, nil)
	body := `{"jsonrpc":"2.0","id":1,"method":"request_trust"}`

	first := a.postRPC(t, body, nil)
	second := a.postRPC(t, body, nil)

	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, 1, a.dispatcher.callCount())
}

func TestRPCIdempotencyReplay(t *testing.T) {
	a := setupAPI(t, 1000, nil)
	body := `{"jsonrpc":"2.0","id":1,"method":"notify_offchain_funds_received"}`
	headers := map[string]string{middleware.IdempotencyKeyHeader: "key-1"}

	first := a.postRPC(t, body, headers)
	second := a.postRPC(t, body, headers)

	require.Equal(t, http.StatusOK, first.Code)
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, "redis", second.Header().Get("X-Idempotent-Replay"))
	assert.Equal(t, 1, a.dispatcher.callCount())

	conflict := a.postRPC(t, `{"jsonrpc":"2.0","id":2,"method":"notify_offchain_funds_received"}`, headers)
	assert.Equal(t, http.StatusConflict, conflict.Code)
	assert.Equal(t, 1, a.dispatcher.callCount())
}

func TestRPCWithoutIdempotencyKeyIsNotCached(t *testing.T) {
	a := setupAPI(t, 1000, nil)
	body := `{"jsonrpc":"2.0","id":1,"method":"request_trust"}`

	a.postRPC(t, body, nil)
	a.postRPC(t, body, nil)

	assert.Equal(t, 2, a.dispatcher.callCount())
}

func TestRPCPanicReleasesIdempotencyKey(t *testing.T) {
	a := setupAPI(t, 1000, nil)
	headers := map[string]string{middleware.IdempotencyKeyHeader: "key-panic"}

	w := a.postRPC(t, `{"jsonrpc":"2.0","id":1,"method":"panic"}`, headers)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	_, err := a.idem.Lookup(context.Background(), testCaller+":key-panic", "any")
	assert.True(t, errors.Is(err, idempotency.ErrNotFound))
}

func TestHealthEndpoints(t *testing.T) {
	tests := []struct {
		name   string
		db     error
		redis  error
		status int
	}{
		{name: "ready", status: http.StatusOK},
		{name: "database down", db: errors.New("db down"), status: http.StatusServiceUnavailable},
		{name: "redis down", redis: errors.New("redis down"), status: http.StatusServiceUnavailable},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			health := handler.NewHealthHandler(stubPinger{err: tc.db}, stubPinger{err: tc.redis})
			a := setupAPI(t, 1000, health)

			w := httptest.NewRecorder()
			a.handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

			assert.Equal(t, tc.status, w.Code)
		})
	}

	t.Run("live", func(t *testing.T) {
		a := setupAPI(t, 1000, handler.NewHealthHandler(stubPinger{err: errors.New("down")}, nil))
		w := httptest.NewRecorder()
		a.handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/live", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestDocsAndMetrics(t *testing.T) {
	a := setupAPI(t, 1000, nil)

	w := httptest.NewRecorder()
	a.handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/docs/openapi.yaml", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, bytes.Contains(w.Body.Bytes(), []byte("notify_trust_set")))

	w = httptest.NewRecorder()
	a.handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
