package ledger

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/ayo6706/anchor-platform/internal/domain"
	"github.com/ayo6706/anchor-platform/internal/httpclient"
)

var ErrNotFound = errors.New("ledger: resource not found")

const operationsPageLimit = 200

// Transaction is a ledger transaction as reported by Horizon.
type Transaction struct {
	ID            string    `json:"id"`
	Hash          string    `json:"hash"`
	Memo          string    `json:"memo"`
	MemoType      string    `json:"memo_type"`
	CreatedAt     time.Time `json:"created_at"`
	EnvelopeXDR   string    `json:"envelope_xdr"`
	SourceAccount string    `json:"source_account"`
	Successful    bool      `json:"successful"`
}

// Operation is one operation of a ledger transaction.
type Operation struct {
	ID            string `json:"id"`
	Type          string `json:"type"`
	SourceAccount string `json:"source_account"`
	From          string `json:"from"`
	To            string `json:"to"`
	Amount        string `json:"amount"`
	AssetType     string `json:"asset_type"`
	AssetCode     string `json:"asset_code"`
	AssetIssuer   string `json:"asset_issuer"`
}

// Asset returns the operation's asset as a "stellar:" asset id.
func (o Operation) Asset() string {
	if o.AssetType == "native" {
		return "stellar:native"
	}
	return "stellar:" + o.AssetCode + ":" + o.AssetIssuer
}

// IsPayment reports whether the operation moves funds to a destination.
func (o Operation) IsPayment() bool {
	switch o.Type {
	case "payment", "path_payment_strict_send", "path_payment_strict_receive":
		return true
	}
	return false
}

type operationsPage struct {
	Embedded struct {
		Records []Operation `json:"records"`
	} `json:"_embedded"`
}

type accountResponse struct {
	Balances []struct {
		AssetType   string `json:"asset_type"`
		AssetCode   string `json:"asset_code"`
		AssetIssuer string `json:"asset_issuer"`
	} `json:"balances"`
}

// Client reads transactions and accounts from a Horizon server.
type Client struct {
	http *httpclient.Client
}

func NewClient(horizonURL string, timeout time.Duration) *Client {
	return &Client{http: httpclient.New("horizon", horizonURL, timeout)}
}

// GetTransaction returns the ledger transaction with the given hash and its operations.
func (c *Client) GetTransaction(ctx context.Context, hash string) (*Transaction, []Operation, error) {
	var txn Transaction
	if err := c.get(ctx, "/transactions/"+url.PathEscape(hash), &txn); err != nil {
		return nil, nil, fmt.Errorf("get ledger transaction %s: %w", hash, err)
	}
	var page operationsPage
	path := fmt.Sprintf("/transactions/%s/operations?limit=%d", url.PathEscape(hash), operationsPageLimit)
	if err := c.get(ctx, path, &page); err != nil {
		return nil, nil, fmt.Errorf("get ledger operations %s: %w", hash, err)
	}
	return &txn, page.Embedded.Records, nil
}

// IsTrustlineConfigured reports whether account can hold asset.
func (c *Client) IsTrustlineConfigured(ctx context.Context, account, asset string) (bool, error) {
	if asset == "stellar:native" {
		return true, nil
	}
	var acc accountResponse
	if err := c.get(ctx, "/accounts/"+url.PathEscape(account), &acc); err != nil {
		return false, fmt.Errorf("get account %s: %w", account, err)
	}
	code, issuer := domain.AssetCode(asset), domain.AssetIssuer(asset)
	for _, b := range acc.Balances {
		if b.AssetCode == code && b.AssetIssuer == issuer {
			return true, nil
		}
	}
	return false, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	err := c.http.Do(ctx, http.MethodGet, path, nil, out)
	var se *httpclient.StatusError
	if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	return err
}

// ToStellarTransaction builds the record stored on an anchor transaction.
func ToStellarTransaction(txn *Transaction, ops []Operation) domain.StellarTransaction {
	id := txn.Hash
	if id == "" {
		id = txn.ID
	}
	rec := domain.StellarTransaction{
		ID:        id,
		Memo:      txn.Memo,
		MemoType:  txn.MemoType,
		CreatedAt: txn.CreatedAt,
		Envelope:  txn.EnvelopeXDR,
		Payments:  []domain.StellarPayment{},
	}
	for _, op := range ops {
		if !op.IsPayment() {
			continue
		}
		paymentType := domain.PaymentTypePayment
		if op.Type != "payment" {
			paymentType = domain.PaymentTypePathPayment
		}
		source := op.From
		if source == "" {
			source = op.SourceAccount
		}
		rec.Payments = append(rec.Payments, domain.StellarPayment{
			ID:                 op.ID,
			Amount:             domain.Amount{Amount: op.Amount, Asset: op.Asset()},
			PaymentType:        paymentType,
			SourceAccount:      source,
			DestinationAccount: op.To,
		})
	}
	return rec
}
