package service

import (
	"context"

	"github.com/ayo6706/anchor-platform/internal/asset"
	"github.com/ayo6706/anchor-platform/internal/custody"
	"github.com/ayo6706/anchor-platform/internal/customer"
	"github.com/ayo6706/anchor-platform/internal/domain"
	"github.com/ayo6706/anchor-platform/internal/ledger"
	"github.com/ayo6706/anchor-platform/internal/repository"
)

// QueryStore defines the minimal data access contract required by services.
type QueryStore interface {
	Queries() repository.Querier
	RunInTx(ctx context.Context, fn func(q repository.Querier) error) error
}

// AssetService resolves registered assets.
type AssetService interface {
	GetAsset(id string) (asset.Info, error)
	ListStellarAssets() []asset.Info
}

// CustodyService submits transactions, payments and refunds to the custody backend.
type CustodyService interface {
	CreateTransaction(ctx context.Context, txn *domain.Transaction) error
	CreatePayment(ctx context.Context, txnID string) (*custody.PaymentResponse, error)
	CreateRefund(ctx context.Context, txnID string, req custody.RefundRequest) (*custody.PaymentResponse, error)
}

// LedgerClient reads ledger transactions and account trustlines.
type LedgerClient interface {
	GetTransaction(ctx context.Context, hash string) (*ledger.Transaction, []ledger.Operation, error)
	IsTrustlineConfigured(ctx context.Context, account, asset string) (bool, error)
}

// CustomerService looks up customers on the business server.
type CustomerService interface {
	GetCustomer(ctx context.Context, req customer.Lookup) (*customer.Customer, error)
}

// Locker serializes actions on the same transaction id.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(context.Context) error) error
}
