package ledger

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ayo6706/anchor-platform/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	usdcIssuer = "GDQOE23CFSUMSVQK4Y5JHPPYK73VYCNHZHA7ENKCV37P6SUEO6XQBKPP"
	userAcct   = "GBN4NNCDGJO4XW4KQU3CBIESUJWFVBUZPOKUZHT7W7WRB7CWOA7BXVQF"
)

func newHorizon(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/transactions/TX1", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"TX1","hash":"TX1","memo":"42","memo_type":"id","created_at":"2024-05-01T10:00:00Z","envelope_xdr":"AAAA","successful":true}`))
	})
	mux.HandleFunc("/transactions/TX1/operations", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "200", r.URL.Query().Get("limit"))
		_, _ = w.Write([]byte(`{"_embedded":{"records":[
			{"id":"op1","type":"payment","source_account":"` + userAcct + `","from":"` + userAcct + `","to":"GANCHOR","amount":"10.0000000","asset_type":"credit_alphanum4","asset_code":"USDC","asset_issuer":"` + usdcIssuer + `"},
			{"id":"op2","type":"manage_data","source_account":"` + userAcct + `"},
			{"id":"op3","type":"path_payment_strict_send","from":"` + userAcct + `","to":"GANCHOR","amount":"1","asset_type":"native"}
		]}}`))
	})
	mux.HandleFunc("/accounts/"+userAcct, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"balances":[{"asset_type":"credit_alphanum4","asset_code":"USDC","asset_issuer":"` + usdcIssuer + `"},{"asset_type":"native"}]}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestGetTransactionBuildsStellarRecord(t *testing.T) {
	srv := newHorizon(t)
	c := NewClient(srv.URL, time.Second)

	txn, ops, err := c.GetTransaction(context.Background(), "TX1")
	require.NoError(t, err)
	require.Len(t, ops, 3)

	rec := ToStellarTransaction(txn, ops)
	assert.Equal(t, "TX1", rec.ID)
	assert.Equal(t, "42", rec.Memo)
	assert.Equal(t, "AAAA", rec.Envelope)
	require.Len(t, rec.Payments, 2)
	assert.Equal(t, domain.Amount{Amount: "10.0000000", Asset: "stellar:USDC:" + usdcIssuer}, rec.Payments[0].Amount)
	assert.Equal(t, domain.PaymentTypePayment, rec.Payments[0].PaymentType)
	assert.Equal(t, userAcct, rec.Payments[0].SourceAccount)
	assert.Equal(t, "stellar:native", rec.Payments[1].Amount.Asset)
	assert.Equal(t, domain.PaymentTypePathPayment, rec.Payments[1].PaymentType)
}

func TestGetTransactionNotFound(t *testing.T) {
	srv := newHorizon(t)
	_, _, err := NewClient(srv.URL, time.Second).GetTransaction(context.Background(), "MISSING")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestIsTrustlineConfigured(t *testing.T) {
	srv := newHorizon(t)
	c := NewClient(srv.URL, time.Second)
	ctx := context.Background()

	ok, err := c.IsTrustlineConfigured(ctx, userAcct, "stellar:USDC:"+usdcIssuer)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.IsTrustlineConfigured(ctx, userAcct, "stellar:EURC:"+usdcIssuer)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = c.IsTrustlineConfigured(ctx, "GUNKNOWN", "stellar:native")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = c.IsTrustlineConfigured(ctx, "GUNKNOWN", "stellar:USDC:"+usdcIssuer)
	require.ErrorIs(t, err, ErrNotFound)
}
