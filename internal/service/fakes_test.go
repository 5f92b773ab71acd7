package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/ayo6706/anchor-platform/internal/asset"
	"github.com/ayo6706/anchor-platform/internal/config"
	"github.com/ayo6706/anchor-platform/internal/custody"
	"github.com/ayo6706/anchor-platform/internal/customer"
	"github.com/ayo6706/anchor-platform/internal/domain"
	"github.com/ayo6706/anchor-platform/internal/event"
	"github.com/ayo6706/anchor-platform/internal/ledger"
	"github.com/ayo6706/anchor-platform/internal/repository"
	"github.com/stretchr/testify/require"
)

const (
	usdc       = "stellar:USDC:GDQOE23CFSUMSVQK4Y5JHPPYK73VYCNHZHA7ENKCV37P6SUEO6XQBKPP"
	fiatUSD    = "iso4217:USD"
	userAcct   = "GBN4NNCDGJO4XW4KQU3CBIESUJWFVBUZPOKUZHT7W7WRB7CWOA7BXVQF"
	distAcct   = "GDQOE23CFSUMSVQK4Y5JHPPYK73VYCNHZHA7ENKCV37P6SUEO6XQBKPP"
	testTxnID  = "txn-1"
	testMethod = "test"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// memStore is an in-memory QueryStore. A failed RunInTx restores the snapshot
// taken when it started.
type memStore struct {
	mu     sync.Mutex
	txns   map[string]*domain.Transaction
	trusts map[string]repository.PendingTrust
	saves  int
}

func newMemStore() *memStore {
	return &memStore{
		txns:   make(map[string]*domain.Transaction),
		trusts: make(map[string]repository.PendingTrust),
	}
}

func (s *memStore) Queries() repository.Querier { return memQueries{s: s} }

func (s *memStore) RunInTx(_ context.Context, fn func(q repository.Querier) error) error {
	s.mu.Lock()
	txns := make(map[string]*domain.Transaction, len(s.txns))
	for id, t := range s.txns {
		txns[id] = t.Clone()
	}
	trusts := make(map[string]repository.PendingTrust, len(s.trusts))
	for id, pt := range s.trusts {
		trusts[id] = pt
	}
	saves := s.saves
	s.mu.Unlock()

	if err := fn(memQueries{s: s}); err != nil {
		s.mu.Lock()
		s.txns, s.trusts, s.saves = txns, trusts, saves
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *memStore) put(t *domain.Transaction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txns[t.ID] = t.Clone()
}

func (s *memStore) get(t *testing.T, id string) *domain.Transaction {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	txn, ok := s.txns[id]
	require.True(t, ok, "transaction %s not stored", id)
	return txn.Clone()
}

type memQueries struct {
	s *memStore
}

func (q memQueries) GetTransaction(_ context.Context, id string) (*domain.Transaction, error) {
	q.s.mu.Lock()
	defer q.s.mu.Unlock()
	t, ok := q.s.txns[id]
	if !ok {
		return nil, fmt.Errorf("transaction %s: %w", id, repository.ErrNotFound)
	}
	return t.Clone(), nil
}

func (q memQueries) GetTransactionForUpdate(ctx context.Context, id string) (*domain.Transaction, error) {
	return q.GetTransaction(ctx, id)
}

func (q memQueries) SaveTransaction(_ context.Context, t *domain.Transaction) error {
	q.s.mu.Lock()
	defer q.s.mu.Unlock()
	q.s.txns[t.ID] = t.Clone()
	q.s.saves++
	return nil
}

func (q memQueries) ListTransactions(_ context.Context, arg repository.ListTransactionsParams) ([]*domain.Transaction, error) {
	q.s.mu.Lock()
	defer q.s.mu.Unlock()
	wanted := domain.Statuses(arg.Statuses...)
	var out []*domain.Transaction
	for _, t := range q.s.txns {
		if t.Protocol() != arg.Protocol {
			continue
		}
		if len(wanted) > 0 && !wanted.Has(t.Status) {
			continue
		}
		out = append(out, t.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].StartedAt, out[j].StartedAt
		if arg.OrderBy == "updated_at" {
			a, b = out[i].UpdatedAt, out[j].UpdatedAt
		}
		if arg.Descending {
			return a.After(b)
		}
		return a.Before(b)
	})
	if arg.PageSize > 0 {
		start := int(arg.PageNumber * arg.PageSize)
		if start >= len(out) {
			return nil, nil
		}
		end := min(start+int(arg.PageSize), len(out))
		out = out[start:end]
	}
	return out, nil
}

func (q memQueries) CreatePendingTrust(_ context.Context, arg repository.PendingTrust) error {
	q.s.mu.Lock()
	defer q.s.mu.Unlock()
	q.s.trusts[arg.ID] = arg
	return nil
}

func (q memQueries) ListPendingTrusts(_ context.Context, limit int32) ([]repository.PendingTrust, error) {
	q.s.mu.Lock()
	defer q.s.mu.Unlock()
	out := make([]repository.PendingTrust, 0, len(q.s.trusts))
	for _, pt := range q.s.trusts {
		out = append(out, pt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > int(limit) {
		out = out[:limit]
	}
	return out, nil
}

func (q memQueries) DeletePendingTrust(_ context.Context, id string) error {
	q.s.mu.Lock()
	defer q.s.mu.Unlock()
	delete(q.s.trusts, id)
	return nil
}

type stubCustody struct {
	err          error
	transactions []string
	payments     []string
	refunds      []custody.RefundRequest
}

func (c *stubCustody) CreateTransaction(_ context.Context, txn *domain.Transaction) error {
	if c.err != nil {
		return c.err
	}
	c.transactions = append(c.transactions, txn.ID)
	return nil
}

func (c *stubCustody) CreatePayment(_ context.Context, id string) (*custody.PaymentResponse, error) {
	if c.err != nil {
		return nil, c.err
	}
	c.payments = append(c.payments, id)
	return &custody.PaymentResponse{ID: "payment-" + id}, nil
}

func (c *stubCustody) CreateRefund(_ context.Context, id string, req custody.RefundRequest) (*custody.PaymentResponse, error) {
	if c.err != nil {
		return nil, c.err
	}
	c.refunds = append(c.refunds, req)
	return &custody.PaymentResponse{ID: "refund-" + id}, nil
}

type ledgerEntry struct {
	txn *ledger.Transaction
	ops []ledger.Operation
}

type stubLedger struct {
	txns        map[string]ledgerEntry
	trustline   bool
	trustErr    error
	trustChecks int
}

func (l *stubLedger) GetTransaction(_ context.Context, hash string) (*ledger.Transaction, []ledger.Operation, error) {
	e, ok := l.txns[hash]
	if !ok {
		return nil, nil, fmt.Errorf("transaction %s: %w", hash, ledger.ErrNotFound)
	}
	return e.txn, e.ops, nil
}

func (l *stubLedger) IsTrustlineConfigured(context.Context, string, string) (bool, error) {
	l.trustChecks++
	return l.trustline, l.trustErr
}

// addPayment registers a one-payment ledger transaction from source.
func (l *stubLedger) addPayment(hash, source, amount string) {
	if l.txns == nil {
		l.txns = make(map[string]ledgerEntry)
	}
	l.txns[hash] = ledgerEntry{
		txn: &ledger.Transaction{
			ID:            hash,
			Hash:          hash,
			Memo:          "0042",
			MemoType:      domain.MemoTypeText,
			CreatedAt:     fixedNow.Add(-time.Minute),
			SourceAccount: source,
			Successful:    true,
		},
		ops: []ledger.Operation{{
			ID:            hash + "-op",
			Type:          "payment",
			SourceAccount: source,
			From:          source,
			To:            distAcct,
			Amount:        amount,
			AssetType:     "credit_alphanum4",
			AssetCode:     "USDC",
			AssetIssuer:   distAcct,
		}},
	}
}

type stubCustomers struct {
	customer *customer.Customer
	err      error
	lookups  []customer.Lookup
}

func (c *stubCustomers) GetCustomer(_ context.Context, req customer.Lookup) (*customer.Customer, error) {
	c.lookups = append(c.lookups, req)
	if c.err != nil {
		return nil, c.err
	}
	return c.customer, nil
}

// testEnv wires an engine to in-memory collaborators.
type testEnv struct {
	engine    *Engine
	store     *memStore
	custody   *stubCustody
	ledger    *stubLedger
	customers *stubCustomers
	events    *event.MemoryPublisher
}

type envOption func(*Dependencies)

func withCustody(d *Dependencies) { d.CustodyType = config.CustodyTypeFireblocks }

func withSelfGenerator(d *Dependencies) {
	gen, err := NewDepositInfoGenerator(config.DepositInfoSelf, d.Assets, distAcct)
	if err != nil {
		panic(err)
	}
	for p := range d.DepositInfo {
		d.DepositInfo[p] = gen
	}
}

func testAssets(t *testing.T) *asset.Registry {
	t.Helper()
	reg, err := asset.NewRegistry([]asset.Info{
		{ID: usdc, SignificantDecimals: 7, DepositEnabled: true, WithdrawEnabled: true},
		{ID: "stellar:native", SignificantDecimals: 7, DepositEnabled: true, WithdrawEnabled: true},
		{ID: fiatUSD, SignificantDecimals: 2, DepositEnabled: true, WithdrawEnabled: true},
	})
	require.NoError(t, err)
	return reg
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	env := &testEnv{
		store:     newMemStore(),
		custody:   &stubCustody{},
		ledger:    &stubLedger{},
		customers: &stubCustomers{},
		events:    event.NewMemoryPublisher(),
	}
	deps := Dependencies{
		Store:     env.store,
		Assets:    testAssets(t),
		Custody:   env.custody,
		Ledger:    env.ledger,
		Customers: env.customers,
		Events:    event.NewService(env.events).CreateSession(testMethod, event.QueueTransaction),
		DepositInfo: map[domain.Protocol]DepositInfoGenerator{
			domain.ProtocolSEP6:  NoneGenerator{},
			domain.ProtocolSEP24: NoneGenerator{},
			domain.ProtocolSEP31: NoneGenerator{},
		},
	}
	for _, opt := range opts {
		opt(&deps)
	}
	env.engine = NewEngine(deps)
	env.engine.now = func() time.Time { return fixedNow }
	seq := 0
	env.engine.newID = func() string {
		seq++
		return fmt.Sprintf("event-%d", seq)
	}
	return env
}

func (env *testEnv) published() []event.Event {
	return env.events.Events(event.QueueTransaction)
}

func (env *testEnv) call(method Method, params map[string]any) (*domain.Transaction, error) {
	if _, ok := params["transaction_id"]; !ok {
		params["transaction_id"] = testTxnID
	}
	raw, err := json.Marshal(params)
	if err != nil {
		panic(err)
	}
	return env.engine.Handle(context.Background(), method, raw)
}

func amount(value, assetID string) map[string]any {
	return map[string]any{"amount": value, "asset": assetID}
}

func received() *time.Time {
	t := fixedNow.Add(-time.Hour)
	return &t
}

// sep24Deposit is a deposit of 100.00 USD for 99.0000000 USDC.
func sep24Deposit(status domain.Status, fundsReceived bool) *domain.Transaction {
	t := &domain.Transaction{
		ID:             testTxnID,
		Kind:           domain.KindDeposit,
		Status:         status,
		AmountIn:       domain.Amount{Amount: "100.00", Asset: fiatUSD},
		AmountOut:      domain.Amount{Amount: "99.0000000", Asset: usdc},
		AmountFee:      domain.Amount{Amount: "1.00", Asset: fiatUSD},
		AmountExpected: "100.00",
		ToAccount:      userAcct,
		StartedAt:      fixedNow.Add(-24 * time.Hour),
		UpdatedAt:      fixedNow.Add(-24 * time.Hour),
		Details:        &domain.Sep24Details{},
	}
	if fundsReceived {
		t.TransferReceivedAt = received()
	}
	return t
}

// sep24Withdrawal is a withdrawal of 10 USDC for 9.50 USD.
func sep24Withdrawal(status domain.Status, fundsReceived bool) *domain.Transaction {
	t := &domain.Transaction{
		ID:        testTxnID,
		Kind:      domain.KindWithdrawal,
		Status:    status,
		AmountIn:  domain.Amount{Amount: "10", Asset: usdc},
		AmountOut: domain.Amount{Amount: "9.50", Asset: fiatUSD},
		AmountFee: domain.Amount{Amount: "0.5", Asset: usdc},
		StartedAt: fixedNow.Add(-24 * time.Hour),
		UpdatedAt: fixedNow.Add(-24 * time.Hour),
		Details:   &domain.Sep24Details{},
	}
	if fundsReceived {
		t.TransferReceivedAt = received()
	}
	return t
}

// sep6Deposit is a SEP-6 deposit of 100.00 USD.
func sep6Deposit(status domain.Status, fundsReceived bool) *domain.Transaction {
	t := sep24Deposit(status, fundsReceived)
	t.Details = &domain.Sep6Details{}
	return t
}

// sep31Receive is a SEP-31 receive of 100 USDC paid out as 99.00 USD.
func sep31Receive(status domain.Status, fundsReceived bool) *domain.Transaction {
	t := &domain.Transaction{
		ID:        testTxnID,
		Kind:      domain.KindReceive,
		Status:    status,
		AmountIn:  domain.Amount{Amount: "100", Asset: usdc},
		AmountOut: domain.Amount{Amount: "99.00", Asset: fiatUSD},
		AmountFee: domain.Amount{Amount: "1", Asset: usdc},
		StartedAt: fixedNow.Add(-24 * time.Hour),
		UpdatedAt: fixedNow.Add(-24 * time.Hour),
		Details:   &domain.Sep31Details{},
	}
	if fundsReceived {
		t.TransferReceivedAt = received()
	}
	return t
}

func requireRPCError(t *testing.T, err error, code int, message string) {
	t.Helper()
	require.Error(t, err)
	rpcErr := AsRPCError(err)
	require.Equal(t, code, rpcErr.Code, rpcErr.Message)
	if message != "" {
		require.Equal(t, message, rpcErr.Message)
	}
}
