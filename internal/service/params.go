package service

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ayo6706/anchor-platform/internal/domain"
)

// Method is the name an action is registered under.
type Method string

const (
	MethodRequestOffchainFunds           Method = "request_offchain_funds"
	MethodRequestOnchainFunds            Method = "request_onchain_funds"
	MethodNotifyOffchainFundsReceived    Method = "notify_offchain_funds_received"
	MethodNotifyOnchainFundsReceived     Method = "notify_onchain_funds_received"
	MethodNotifyOnchainFundsSent         Method = "notify_onchain_funds_sent"
	MethodNotifyOffchainFundsSent        Method = "notify_offchain_funds_sent"
	MethodNotifyOffchainFundsPending     Method = "notify_offchain_funds_pending"
	MethodNotifyOffchainFundsAvailable   Method = "notify_offchain_funds_available"
	MethodDoStellarPayment               Method = "do_stellar_payment"
	MethodDoStellarRefund                Method = "do_stellar_refund"
	MethodNotifyRefundPending            Method = "notify_refund_pending"
	MethodNotifyRefundSent               Method = "notify_refund_sent"
	MethodNotifyInteractiveFlowCompleted Method = "notify_interactive_flow_completed"
	MethodNotifyAmountsUpdated           Method = "notify_amounts_updated"
	MethodNotifyAmountsAssetsUpdated     Method = "notify_amounts_assets_updated"
	MethodNotifyCustomerInfoUpdated      Method = "notify_customer_info_updated"
	MethodNotifyTransactionOnHold        Method = "notify_transaction_on_hold"
	MethodRequestTrust                   Method = "request_trust"
	MethodNotifyTrustSet                 Method = "notify_trust_set"
	MethodNotifyTransactionError         Method = "notify_transaction_error"
	MethodNotifyTransactionExpired       Method = "notify_transaction_expired"
	MethodNotifyTransactionRecovery      Method = "notify_transaction_recovery"
	MethodGetTransactions                Method = "get_transactions"
)

// AmountParam is an amount with an explicit asset.
type AmountParam struct {
	Amount string `json:"amount"`
	Asset  string `json:"asset"`
}

func (a *AmountParam) toDomain() domain.Amount {
	return domain.Amount{Amount: a.Amount, Asset: a.Asset}
}

// ExpectedAmountParam carries only a value; the asset is taken from amount_in.
type ExpectedAmountParam struct {
	Amount string `json:"amount"`
}

// FeeDetailsParam is a fee total with its breakdown.
type FeeDetailsParam struct {
	Total   string                  `json:"total"`
	Asset   string                  `json:"asset"`
	Details []domain.FeeDescription `json:"details,omitempty"`
}

// RefundParam describes one refund payment.
type RefundParam struct {
	ID        string       `json:"id"`
	Amount    *AmountParam `json:"amount"`
	AmountFee *AmountParam `json:"amount_fee"`
}

// Params is the union of every action's parameters. Fields an action does not
// read are ignored.
type Params struct {
	TransactionID         string                             `json:"transaction_id"`
	Message               string                             `json:"message,omitempty"`
	AmountIn              *AmountParam                       `json:"amount_in,omitempty"`
	AmountOut             *AmountParam                       `json:"amount_out,omitempty"`
	AmountFee             *AmountParam                       `json:"amount_fee,omitempty"`
	FeeDetails            *FeeDetailsParam                   `json:"fee_details,omitempty"`
	AmountExpected        *ExpectedAmountParam               `json:"amount_expected,omitempty"`
	ExternalTransactionID string                             `json:"external_transaction_id,omitempty"`
	StellarTransactionID  string                             `json:"stellar_transaction_id,omitempty"`
	FundsReceivedAt       *time.Time                         `json:"funds_received_at,omitempty"`
	FundsSentAt           *time.Time                         `json:"funds_sent_at,omitempty"`
	UserActionRequiredBy  *time.Time                         `json:"user_action_required_by,omitempty"`
	Instructions          map[string]domain.InstructionField `json:"instructions,omitempty"`
	Memo                  *string                            `json:"memo,omitempty"`
	MemoType              *string                            `json:"memo_type,omitempty"`
	DestinationAccount    *string                            `json:"destination_account,omitempty"`
	Refund                *RefundParam                       `json:"refund,omitempty"`
	CustomerID            string                             `json:"customer_id,omitempty"`
	CustomerType          string                             `json:"customer_type,omitempty"`
	Success               *bool                              `json:"success,omitempty"`
}

// ListParams filters get_transactions.
type ListParams struct {
	SEP        string   `json:"sep"`
	Statuses   []string `json:"statuses,omitempty"`
	OrderBy    string   `json:"order_by,omitempty"`
	Order      string   `json:"order,omitempty"`
	PageSize   int32    `json:"page_size,omitempty"`
	PageNumber int32    `json:"page_number,omitempty"`
}

func decodeParams(raw json.RawMessage, out any) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return InvalidParams("params are required")
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return BadRequest(fmt.Sprintf("invalid params: %v", err))
	}
	return nil
}
