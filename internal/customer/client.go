package customer

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/ayo6706/anchor-platform/internal/httpclient"
)

// Status is the KYC status reported by the business server.
type Status string

const (
	StatusAccepted   Status = "ACCEPTED"
	StatusProcessing Status = "PROCESSING"
	StatusNeedsInfo  Status = "NEEDS_INFO"
	StatusRejected   Status = "REJECTED"
)

// Customer is the business server's view of a customer.
type Customer struct {
	ID      string `json:"id"`
	Type    string `json:"type,omitempty"`
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
}

// Lookup identifies the customer to fetch.
type Lookup struct {
	ID            string
	Type          string
	TransactionID string
}

// Client calls the business callback API.
type Client struct {
	http *httpclient.Client
}

func NewClient(callbackURL string, timeout time.Duration) *Client {
	return &Client{http: httpclient.New("callback-api", callbackURL, timeout)}
}

// GetCustomer fetches a customer by id.
func (c *Client) GetCustomer(ctx context.Context, req Lookup) (*Customer, error) {
	q := url.Values{}
	q.Set("id", req.ID)
	if req.Type != "" {
		q.Set("type", req.Type)
	}
	if req.TransactionID != "" {
		q.Set("transaction_id", req.TransactionID)
	}
	var out Customer
	if err := c.http.Do(ctx, http.MethodGet, "/customer?"+q.Encode(), nil, &out); err != nil {
		return nil, fmt.Errorf("get customer %s: %w", req.ID, err)
	}
	switch out.Status {
	case StatusAccepted, StatusProcessing, StatusNeedsInfo, StatusRejected:
	default:
		return nil, fmt.Errorf("customer %s has unknown status %q", req.ID, out.Status)
	}
	return &out, nil
}
