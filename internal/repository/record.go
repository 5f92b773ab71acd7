package repository

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ayo6706/anchor-platform/internal/domain"
)

// transactionRecord is the JSONB payload persisted for every protocol table.
type transactionRecord struct {
	ID                    string                             `json:"id"`
	Kind                  domain.Kind                        `json:"kind"`
	Status                domain.Status                      `json:"status"`
	AmountIn              domain.Amount                      `json:"amount_in"`
	AmountOut             domain.Amount                      `json:"amount_out"`
	AmountFee             domain.Amount                      `json:"amount_fee"`
	AmountExpected        string                             `json:"amount_expected,omitempty"`
	FeeDetails            []domain.FeeDescription            `json:"fee_details,omitempty"`
	Memo                  string                             `json:"memo,omitempty"`
	MemoType              string                             `json:"memo_type,omitempty"`
	ExternalTransactionID string                             `json:"external_transaction_id,omitempty"`
	ToAccount             string                             `json:"to_account,omitempty"`
	FromAccount           string                             `json:"from_account,omitempty"`
	Message               string                             `json:"message,omitempty"`
	StartedAt             time.Time                          `json:"started_at"`
	UpdatedAt             time.Time                          `json:"updated_at"`
	TransferReceivedAt    *time.Time                         `json:"transfer_received_at,omitempty"`
	CompletedAt           *time.Time                         `json:"completed_at,omitempty"`
	UserActionRequiredBy  *time.Time                         `json:"user_action_required_by,omitempty"`
	StellarTransactions   []domain.StellarTransaction        `json:"stellar_transactions,omitempty"`
	Refunds               *domain.Refunds                    `json:"refunds,omitempty"`
	QuoteID               string                             `json:"quote_id,omitempty"`
	WithdrawAnchorAccount string                             `json:"withdraw_anchor_account,omitempty"`
	RequiredInfoMessage   string                             `json:"required_info_message,omitempty"`
	Instructions          map[string]domain.InstructionField `json:"instructions,omitempty"`
}

func encodeTransaction(t *domain.Transaction) ([]byte, error) {
	rec := transactionRecord{
		ID:                    t.ID,
		Kind:                  t.Kind,
		Status:                t.Status,
		AmountIn:              t.AmountIn,
		AmountOut:             t.AmountOut,
		AmountFee:             t.AmountFee,
		AmountExpected:        t.AmountExpected,
		FeeDetails:            t.FeeDetails,
		Memo:                  t.Memo,
		MemoType:              t.MemoType,
		ExternalTransactionID: t.ExternalTransactionID,
		ToAccount:             t.ToAccount,
		FromAccount:           t.FromAccount,
		Message:               t.Message,
		StartedAt:             t.StartedAt,
		UpdatedAt:             t.UpdatedAt,
		TransferReceivedAt:    t.TransferReceivedAt,
		CompletedAt:           t.CompletedAt,
		UserActionRequiredBy:  t.UserActionRequiredBy,
		StellarTransactions:   t.StellarTransactions,
		Refunds:               t.Refunds,
	}
	switch d := t.Details.(type) {
	case *domain.Sep6Details:
		rec.QuoteID = d.QuoteID
		rec.WithdrawAnchorAccount = d.WithdrawAnchorAccount
		rec.Instructions = d.Instructions
	case *domain.Sep24Details:
		rec.QuoteID = d.QuoteID
		rec.WithdrawAnchorAccount = d.WithdrawAnchorAccount
	case *domain.Sep31Details:
		rec.QuoteID = d.QuoteID
		rec.RequiredInfoMessage = d.RequiredInfoMessage
	default:
		return nil, fmt.Errorf("transaction %s has no protocol details", t.ID)
	}
	return json.Marshal(rec)
}

func decodeTransaction(p domain.Protocol, payload []byte) (*domain.Transaction, error) {
	var rec transactionRecord
	if err := json.Unmarshal(payload, &rec); err != nil {
		return nil, fmt.Errorf("decode transaction payload: %w", err)
	}
	t := &domain.Transaction{
		ID:                    rec.ID,
		Kind:                  rec.Kind,
		Status:                rec.Status,
		AmountIn:              rec.AmountIn,
		AmountOut:             rec.AmountOut,
		AmountFee:             rec.AmountFee,
		AmountExpected:        rec.AmountExpected,
		FeeDetails:            rec.FeeDetails,
		Memo:                  rec.Memo,
		MemoType:              rec.MemoType,
		ExternalTransactionID: rec.ExternalTransactionID,
		ToAccount:             rec.ToAccount,
		FromAccount:           rec.FromAccount,
		Message:               rec.Message,
		StartedAt:             rec.StartedAt,
		UpdatedAt:             rec.UpdatedAt,
		TransferReceivedAt:    rec.TransferReceivedAt,
		CompletedAt:           rec.CompletedAt,
		UserActionRequiredBy:  rec.UserActionRequiredBy,
		StellarTransactions:   rec.StellarTransactions,
		Refunds:               rec.Refunds,
	}
	switch p {
	case domain.ProtocolSEP6:
		t.Details = &domain.Sep6Details{
			QuoteID:               rec.QuoteID,
			WithdrawAnchorAccount: rec.WithdrawAnchorAccount,
			Instructions:          rec.Instructions,
		}
	case domain.ProtocolSEP24:
		t.Details = &domain.Sep24Details{
			QuoteID:               rec.QuoteID,
			WithdrawAnchorAccount: rec.WithdrawAnchorAccount,
		}
	case domain.ProtocolSEP31:
		t.Details = &domain.Sep31Details{
			QuoteID:             rec.QuoteID,
			RequiredInfoMessage: rec.RequiredInfoMessage,
		}
	default:
		return nil, fmt.Errorf("unknown protocol %q", p)
	}
	return t, nil
}
