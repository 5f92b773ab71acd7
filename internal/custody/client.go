package custody

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/ayo6706/anchor-platform/internal/domain"
	"github.com/ayo6706/anchor-platform/internal/httpclient"
	"go.uber.org/zap"
)

var (
	ErrBadRequest         = errors.New("custody: bad request")
	ErrNotFound           = errors.New("custody: not found")
	ErrTooManyRequests    = errors.New("custody: too many requests")
	ErrServiceUnavailable = errors.New("custody: service unavailable")
)

// Transaction is the custody view of an anchor transaction.
type Transaction struct {
	ID                 string     `json:"id"`
	Sep                string     `json:"sep"`
	Kind               string     `json:"kind"`
	Status             string     `json:"status"`
	AmountExpected     string     `json:"amount_expected,omitempty"`
	AmountIn           string     `json:"amount_in,omitempty"`
	AmountInAsset      string     `json:"amount_in_asset,omitempty"`
	AmountOut          string     `json:"amount_out,omitempty"`
	AmountOutAsset     string     `json:"amount_out_asset,omitempty"`
	AmountFee          string     `json:"amount_fee,omitempty"`
	AmountFeeAsset     string     `json:"amount_fee_asset,omitempty"`
	RequestAssetCode   string     `json:"request_asset_code,omitempty"`
	RequestAssetIssuer string     `json:"request_asset_issuer,omitempty"`
	FromAccount        string     `json:"from_account,omitempty"`
	ToAccount          string     `json:"to_account,omitempty"`
	Memo               string     `json:"memo,omitempty"`
	MemoType           string     `json:"memo_type,omitempty"`
	StartedAt          time.Time  `json:"started_at"`
	TransferReceivedAt *time.Time `json:"transfer_received_at,omitempty"`
}

// RefundRequest asks custody to send a refund back to the user.
type RefundRequest struct {
	Amount         string `json:"amount"`
	AmountAsset    string `json:"amount_asset"`
	AmountFee      string `json:"amount_fee"`
	AmountFeeAsset string `json:"amount_fee_asset"`
	Memo           string `json:"memo,omitempty"`
	MemoType       string `json:"memo_type,omitempty"`
}

// PaymentResponse identifies the submitted custody payment.
type PaymentResponse struct {
	ID string `json:"id"`
}

// Client talks to the custody server.
type Client struct {
	http *httpclient.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{http: httpclient.New("custody", baseURL, timeout)}
}

// CreateTransaction registers txn with custody. Custody treats a repeated id as a no-op.
func (c *Client) CreateTransaction(ctx context.Context, txn *domain.Transaction) error {
	body := FromDomain(txn)
	if err := c.http.Do(ctx, http.MethodPost, "/transactions", body, nil); err != nil {
		return mapError(err)
	}
	zap.L().Debug("custody transaction created", zap.String("transaction_id", txn.ID))
	return nil
}

// CreatePayment submits the outbound ledger payment of txnID.
func (c *Client) CreatePayment(ctx context.Context, txnID string) (*PaymentResponse, error) {
	var resp PaymentResponse
	path := "/transactions/" + url.PathEscape(txnID) + "/payments"
	if err := c.http.Do(ctx, http.MethodPost, path, struct{}{}, &resp); err != nil {
		return nil, mapError(err)
	}
	return &resp, nil
}

// CreateRefund submits a ledger refund for txnID.
func (c *Client) CreateRefund(ctx context.Context, txnID string, req RefundRequest) (*PaymentResponse, error) {
	var resp PaymentResponse
	path := "/transactions/" + url.PathEscape(txnID) + "/refunds"
	if err := c.http.Do(ctx, http.MethodPost, path, req, &resp); err != nil {
		return nil, mapError(err)
	}
	return &resp, nil
}

func mapError(err error) error {
	var se *httpclient.StatusError
	if !errors.As(err, &se) {
		return err
	}
	switch se.StatusCode {
	case http.StatusBadRequest:
		return fmt.Errorf("%w: %s", ErrBadRequest, se.Body)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, se.Body)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", ErrTooManyRequests, se.Body)
	case http.StatusServiceUnavailable:
		return fmt.Errorf("%w: %s", ErrServiceUnavailable, se.Body)
	default:
		zap.L().Debug("unhandled custody status code", zap.Int("status", se.StatusCode))
		return err
	}
}

// FromDomain maps an anchor transaction to the custody payload.
func FromDomain(t *domain.Transaction) Transaction {
	out := Transaction{
		ID:                 t.ID,
		Sep:                string(t.Protocol()),
		Kind:               string(t.Kind),
		Status:             string(t.Status),
		AmountExpected:     t.AmountExpected,
		AmountIn:           t.AmountIn.Amount,
		AmountInAsset:      t.AmountIn.Asset,
		AmountOut:          t.AmountOut.Amount,
		AmountOutAsset:     t.AmountOut.Asset,
		AmountFee:          t.AmountFee.Amount,
		AmountFeeAsset:     t.AmountFee.Asset,
		FromAccount:        t.FromAccount,
		ToAccount:          t.ToAccount,
		Memo:               t.Memo,
		MemoType:           t.MemoType,
		StartedAt:          t.StartedAt,
		TransferReceivedAt: t.TransferReceivedAt,
	}
	requestAsset := t.AmountOut.Asset
	if t.Kind.IsWithdrawal() || t.Kind == domain.KindReceive {
		requestAsset = t.AmountIn.Asset
	}
	out.RequestAssetCode = domain.AssetCode(requestAsset)
	out.RequestAssetIssuer = domain.AssetIssuer(requestAsset)
	return out
}

// memoTypes lists the memo types each custody backend can attach to a transaction.
var memoTypes = map[string][]string{
	"none":       {domain.MemoTypeText, domain.MemoTypeID, domain.MemoTypeHash, domain.MemoTypeNone},
	"fireblocks": {domain.MemoTypeText, domain.MemoTypeID, domain.MemoTypeNone},
}

// IsMemoTypeSupported reports whether custodyType can carry memoType. An unset memo type is always supported.
func IsMemoTypeSupported(custodyType, memoType string) bool {
	if memoType == "" {
		return true
	}
	for _, mt := range memoTypes[custodyType] {
		if mt == memoType {
			return true
		}
	}
	return false
}
