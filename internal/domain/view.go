package domain

import "time"

// FeeDetails is the rendered fee breakdown.
type FeeDetails struct {
	Total   string           `json:"total"`
	Asset   string           `json:"asset"`
	Details []FeeDescription `json:"details,omitempty"`
}

// TransactionView is the JSON rendering returned to platform API callers and
// carried in events.
type TransactionView struct {
	ID                    string                      `json:"id"`
	Sep                   Protocol                    `json:"sep"`
	Kind                  Kind                        `json:"kind"`
	Status                Status                      `json:"status"`
	AmountExpected        *Amount                     `json:"amount_expected,omitempty"`
	AmountIn              *Amount                     `json:"amount_in,omitempty"`
	AmountOut             *Amount                     `json:"amount_out,omitempty"`
	FeeDetails            *FeeDetails                 `json:"fee_details,omitempty"`
	QuoteID               string                      `json:"quote_id,omitempty"`
	StartedAt             time.Time                   `json:"started_at"`
	UpdatedAt             time.Time                   `json:"updated_at"`
	CompletedAt           *time.Time                  `json:"completed_at,omitempty"`
	TransferReceivedAt    *time.Time                  `json:"transfer_received_at,omitempty"`
	UserActionRequiredBy  *time.Time                  `json:"user_action_required_by,omitempty"`
	Message               string                      `json:"message,omitempty"`
	Refunds               *Refunds                    `json:"refunds,omitempty"`
	StellarTransactions   []StellarTransaction        `json:"stellar_transactions,omitempty"`
	ExternalTransactionID string                      `json:"external_transaction_id,omitempty"`
	Memo                  string                      `json:"memo,omitempty"`
	MemoType              string                      `json:"memo_type,omitempty"`
	SourceAccount         string                      `json:"source_account,omitempty"`
	DestinationAccount    string                      `json:"destination_account,omitempty"`
	Instructions          map[string]InstructionField `json:"instructions,omitempty"`
}

// View renders the transaction for API responses.
func (t *Transaction) View() TransactionView {
	v := TransactionView{
		ID:                    t.ID,
		Sep:                   t.Protocol(),
		Kind:                  t.Kind,
		Status:                t.Status,
		QuoteID:               t.QuoteID(),
		StartedAt:             t.StartedAt,
		UpdatedAt:             t.UpdatedAt,
		CompletedAt:           t.CompletedAt,
		TransferReceivedAt:    t.TransferReceivedAt,
		UserActionRequiredBy:  t.UserActionRequiredBy,
		Message:               t.CurrentMessage(),
		Refunds:               t.Refunds,
		StellarTransactions:   t.StellarTransactions,
		ExternalTransactionID: t.ExternalTransactionID,
		Memo:                  t.Memo,
		MemoType:              t.MemoType,
		SourceAccount:         t.FromAccount,
		DestinationAccount:    t.ToAccount,
	}
	if t.AmountExpected != "" {
		v.AmountExpected = &Amount{Amount: t.AmountExpected, Asset: t.AmountIn.Asset}
	}
	if !t.AmountIn.IsEmpty() {
		in := t.AmountIn
		v.AmountIn = &in
	}
	if !t.AmountOut.IsEmpty() {
		out := t.AmountOut
		v.AmountOut = &out
	}
	if !t.AmountFee.IsEmpty() || len(t.FeeDetails) > 0 {
		v.FeeDetails = &FeeDetails{Total: t.AmountFee.Amount, Asset: t.AmountFee.Asset, Details: t.FeeDetails}
	}
	if d, ok := t.Details.(*Sep6Details); ok {
		v.Instructions = d.Instructions
	}
	return v
}
