package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ayo6706/anchor-platform/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var ErrNotFound = errors.New("record not found")

// SearchOrder is the order in which protocol tables are probed for an id.
var SearchOrder = []domain.Protocol{domain.ProtocolSEP31, domain.ProtocolSEP24, domain.ProtocolSEP6}

// DBTX is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Querier is the data access contract used by services.
type Querier interface {
	GetTransaction(ctx context.Context, id string) (*domain.Transaction, error)
	GetTransactionForUpdate(ctx context.Context, id string) (*domain.Transaction, error)
	SaveTransaction(ctx context.Context, t *domain.Transaction) error
	ListTransactions(ctx context.Context, arg ListTransactionsParams) ([]*domain.Transaction, error)
	CreatePendingTrust(ctx context.Context, arg PendingTrust) error
	ListPendingTrusts(ctx context.Context, limit int32) ([]PendingTrust, error)
	DeletePendingTrust(ctx context.Context, id string) error
}

// PendingTrust is a deposit waiting for the destination account to trust its asset.
type PendingTrust struct {
	ID        string
	Asset     string
	Account   string
	CreatedAt time.Time
}

// ListTransactionsParams filters and pages a protocol table.
type ListTransactionsParams struct {
	Protocol   domain.Protocol
	Statuses   []domain.Status
	OrderBy    string
	Descending bool
	PageSize   int32
	PageNumber int32
}

type Queries struct {
	db DBTX
}

var _ Querier = (*Queries)(nil)

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

func (q *Queries) WithTx(tx pgx.Tx) *Queries {
	return &Queries{db: tx}
}

func tableFor(p domain.Protocol) (string, error) {
	switch p {
	case domain.ProtocolSEP6:
		return "sep6_transactions", nil
	case domain.ProtocolSEP24:
		return "sep24_transactions", nil
	case domain.ProtocolSEP31:
		return "sep31_transactions", nil
	default:
		return "", fmt.Errorf("unknown protocol %q", p)
	}
}

func (q *Queries) GetTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	return q.findTransaction(ctx, id, "")
}

// GetTransactionForUpdate locks the row until the surrounding transaction ends.
func (q *Queries) GetTransactionForUpdate(ctx context.Context, id string) (*domain.Transaction, error) {
	return q.findTransaction(ctx, id, " FOR UPDATE")
}

func (q *Queries) findTransaction(ctx context.Context, id, suffix string) (*domain.Transaction, error) {
	for _, p := range SearchOrder {
		table, _ := tableFor(p)
		var payload []byte
		err := q.db.QueryRow(ctx, `SELECT payload FROM `+table+` WHERE id = $1`+suffix, id).Scan(&payload)
		if errors.Is(err, pgx.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("get transaction from %s: %w", table, err)
		}
		return decodeTransaction(p, payload)
	}
	return nil, fmt.Errorf("transaction %s: %w", id, ErrNotFound)
}

func (q *Queries) SaveTransaction(ctx context.Context, t *domain.Transaction) error {
	table, err := tableFor(t.Protocol())
	if err != nil {
		return err
	}
	payload, err := encodeTransaction(t)
	if err != nil {
		return err
	}
	_, err = q.db.Exec(ctx, `
		INSERT INTO `+table+` (id, kind, status, payload, started_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE
		SET kind = EXCLUDED.kind,
		    status = EXCLUDED.status,
		    payload = EXCLUDED.payload,
		    updated_at = EXCLUDED.updated_at
	`, t.ID, string(t.Kind), string(t.Status), payload, t.StartedAt, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save transaction %s: %w", t.ID, err)
	}
	return nil
}

func (q *Queries) ListTransactions(ctx context.Context, arg ListTransactionsParams) ([]*domain.Transaction, error) {
	table, err := tableFor(arg.Protocol)
	if err != nil {
		return nil, err
	}
	orderColumn := "started_at"
	if arg.OrderBy == "updated_at" {
		orderColumn = "updated_at"
	}
	direction := "ASC"
	if arg.Descending {
		direction = "DESC"
	}
	pageSize := arg.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}

	var sb strings.Builder
	sb.WriteString(`SELECT payload FROM ` + table)
	args := []any{}
	if len(arg.Statuses) > 0 {
		statuses := make([]string, len(arg.Statuses))
		for i, s := range arg.Statuses {
			statuses[i] = string(s)
		}
		args = append(args, statuses)
		sb.WriteString(` WHERE status = ANY($1)`)
	}
	args = append(args, pageSize, int64(arg.PageNumber)*int64(pageSize))
	fmt.Fprintf(&sb, ` ORDER BY %s %s, id LIMIT $%d OFFSET $%d`, orderColumn, direction, len(args)-1, len(args))

	rows, err := q.db.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []*domain.Transaction
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		t, err := decodeTransaction(arg.Protocol, payload)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return out, nil
}

func (q *Queries) CreatePendingTrust(ctx context.Context, arg PendingTrust) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO transaction_pending_trust (id, asset, account, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING
	`, arg.ID, arg.Asset, arg.Account, arg.CreatedAt)
	if err != nil {
		return fmt.Errorf("create pending trust %s: %w", arg.ID, err)
	}
	return nil
}

func (q *Queries) ListPendingTrusts(ctx context.Context, limit int32) ([]PendingTrust, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, asset, account, created_at
		FROM transaction_pending_trust
		ORDER BY created_at
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending trusts: %w", err)
	}
	defer rows.Close()

	var out []PendingTrust
	for rows.Next() {
		var p PendingTrust
		if err := rows.Scan(&p.ID, &p.Asset, &p.Account, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan pending trust: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (q *Queries) DeletePendingTrust(ctx context.Context, id string) error {
	if _, err := q.db.Exec(ctx, `DELETE FROM transaction_pending_trust WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete pending trust %s: %w", id, err)
	}
	return nil
}
