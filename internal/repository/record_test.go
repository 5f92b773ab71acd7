package repository

import (
	"testing"
	"time"

	"github.com/ayo6706/anchor-platform/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordRoundTripKeepsVariant(t *testing.T) {
	received := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	txn := &domain.Transaction{
		ID:                 "abc",
		Kind:               domain.KindWithdrawal,
		Status:             domain.StatusPendingAnchor,
		AmountIn:           domain.Amount{Amount: "10", Asset: "stellar:USDC:GA"},
		TransferReceivedAt: &received,
		Refunds:            &domain.Refunds{Payments: []domain.RefundPayment{{ID: "r1", IDType: domain.RefundPaymentStellar}}},
		Details:            &domain.Sep24Details{WithdrawAnchorAccount: "GANCHOR", QuoteID: "q"},
	}

	payload, err := encodeTransaction(txn)
	require.NoError(t, err)

	got, err := decodeTransaction(domain.ProtocolSEP24, payload)
	require.NoError(t, err)
	assert.Equal(t, txn, got)
}

func TestEncodeRequiresDetails(t *testing.T) {
	_, err := encodeTransaction(&domain.Transaction{ID: "x"})
	require.Error(t, err)
}

func TestDecodeUnknownProtocol(t *testing.T) {
	_, err := decodeTransaction("99", []byte(`{}`))
	require.Error(t, err)
}
