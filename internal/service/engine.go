package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ayo6706/anchor-platform/internal/config"
	"github.com/ayo6706/anchor-platform/internal/custody"
	"github.com/ayo6706/anchor-platform/internal/domain"
	"github.com/ayo6706/anchor-platform/internal/event"
	"github.com/ayo6706/anchor-platform/internal/lock"
	"github.com/ayo6706/anchor-platform/internal/observability"
	"github.com/ayo6706/anchor-platform/internal/repository"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "github.com/ayo6706/anchor-platform/internal/service"

// Dependencies are the collaborators of the engine.
type Dependencies struct {
	Store       QueryStore
	Assets      AssetService
	Custody     CustodyService
	Ledger      LedgerClient
	Customers   CustomerService
	Events      event.Session
	Locker      Locker
	CustodyType string
	// DepositInfo maps each protocol to the generator used by request_onchain_funds.
	DepositInfo map[domain.Protocol]DepositInfoGenerator
}

// Engine executes RPC actions against stored transactions.
type Engine struct {
	store       QueryStore
	assets      AssetService
	custody     CustodyService
	ledger      LedgerClient
	customers   CustomerService
	events      event.Session
	locker      Locker
	custodyType string
	depositInfo map[domain.Protocol]DepositInfoGenerator
	actions     map[Method]*action
	// trustSettlement is run by the trustline worker only.
	trustSettlement *action

	now   func() time.Time
	newID func() string
}

func NewEngine(deps Dependencies) *Engine {
	e := &Engine{
		store:       deps.Store,
		assets:      deps.Assets,
		custody:     deps.Custody,
		ledger:      deps.Ledger,
		customers:   deps.Customers,
		events:      deps.Events,
		locker:      deps.Locker,
		custodyType: deps.CustodyType,
		depositInfo: deps.DepositInfo,
		now:         func() time.Time { return time.Now().UTC() },
		newID:       uuid.NewString,
	}
	if e.locker == nil {
		e.locker = lock.LocalLocker{}
	}
	if e.custody == nil {
		e.custody = disabledCustody{}
	}
	if e.custodyType == "" {
		e.custodyType = config.CustodyTypeNone
	}
	e.actions = newActionTable(e)
	e.trustSettlement = newTrustSettlement(e)
	return e
}

// disabledCustody stands in when no custody client is configured.
type disabledCustody struct{}

func (disabledCustody) CreateTransaction(context.Context, *domain.Transaction) error {
	return ErrCustodyDisabled
}

func (disabledCustody) CreatePayment(context.Context, string) (*custody.PaymentResponse, error) {
	return nil, ErrCustodyDisabled
}

func (disabledCustody) CreateRefund(context.Context, string, custody.RefundRequest) (*custody.PaymentResponse, error) {
	return nil, ErrCustodyDisabled
}

// CustodyEnabled reports whether payments are delegated to the custody service.
func (e *Engine) CustodyEnabled() bool {
	return e.custodyType != config.CustodyTypeNone
}

// Supports reports whether method is a registered action.
func (e *Engine) Supports(method Method) bool {
	_, ok := e.actions[method]
	return ok
}

// call carries the state of one action execution.
type call struct {
	ctx     context.Context
	method  Method
	params  *Params
	txn     *domain.Transaction
	route   *route
	q       repository.Querier
	changes changeSet
	now     time.Time

	// computed by validate and next hooks for apply
	depositInfo         *DepositInfo
	trustlineConfigured bool
	customer            *customerUpdate
	// events published after commit, in addition to the status event
	extra []event.Event
}

type customerUpdate struct {
	ID     string
	Status string
}

// Handle runs method against the transaction named in raw params and returns
// the transaction as persisted.
func (e *Engine) Handle(ctx context.Context, method Method, raw json.RawMessage) (*domain.Transaction, error) {
	act, ok := e.actions[method]
	if !ok {
		return nil, MethodNotFound(string(method))
	}
	var params Params
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	return e.run(ctx, act, params)
}

// SettleTrust advances a deposit parked in pending_trust once its destination
// trusts the asset. It is not reachable through RPC.
func (e *Engine) SettleTrust(ctx context.Context, id string) (*domain.Transaction, error) {
	success := true
	return e.run(ctx, e.trustSettlement, Params{TransactionID: id, Success: &success})
}

func (e *Engine) run(ctx context.Context, act *action, params Params) (*domain.Transaction, error) {
	method := act.method
	params.TransactionID = strings.TrimSpace(params.TransactionID)
	if params.TransactionID == "" {
		return nil, InvalidParams("transaction_id is required")
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, "rpc."+string(method), trace.WithSpanKind(trace.SpanKindInternal))
	defer span.End()
	span.SetAttributes(attribute.String("transaction_id", params.TransactionID))

	var (
		c        *call
		previous domain.Status
	)
	err := e.locker.WithLock(ctx, params.TransactionID, func(ctx context.Context) error {
		return e.store.RunInTx(ctx, func(q repository.Querier) error {
			txn, err := q.GetTransactionForUpdate(ctx, params.TransactionID)
			if errors.Is(err, repository.ErrNotFound) {
				return invalidRequestf("Transaction with id[%s] is not found", params.TransactionID)
			}
			if err != nil {
				return InternalError("Failed to load transaction", err)
			}
			previous = txn.Status
			c = &call{
				ctx:     ctx,
				method:  method,
				params:  &params,
				txn:     txn,
				q:       q,
				changes: changeSet{},
				now:     e.now(),
			}
			if err := e.execute(act, c); err != nil {
				return err
			}
			if err := q.SaveTransaction(ctx, c.txn); err != nil {
				return InternalError("Failed to save transaction", err)
			}
			return nil
		})
	})
	if err != nil {
		if errors.Is(err, lock.ErrBusy) {
			err = &RPCError{
				Code:    CodeInvalidRequest,
				Message: fmt.Sprintf("Transaction with id[%s] is being processed by another request", params.TransactionID),
				Cause:   err,
			}
		}
		observability.IncrementRPCAction(string(method), "error")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	txn := c.txn
	observability.IncrementRPCAction(string(method), "ok")
	observability.IncrementStatusTransition(string(txn.Protocol()), string(txn.Status))
	span.SetAttributes(
		attribute.String("protocol", string(txn.Protocol())),
		attribute.String("status", string(txn.Status)),
	)
	zap.L().Info("rpc action applied",
		zap.String("method", string(method)),
		zap.String("transaction_id", txn.ID),
		zap.String("protocol", string(txn.Protocol())),
		zap.String("previous_status", string(previous)),
		zap.String("status", string(txn.Status)),
		zap.Strings("changed", c.changes.Fields()),
	)

	if c.changes.Any() || previous != txn.Status {
		e.publish(ctx, e.transactionEvent(txn))
	}
	for _, ev := range c.extra {
		e.publish(ctx, ev)
	}
	return txn, nil
}

// execute guards, validates and applies act. Nothing on c.txn is modified
// before validate and next succeed.
func (e *Engine) execute(act *action, c *call) error {
	r, err := act.route(c.txn)
	if err != nil {
		return err
	}
	c.route = r

	if act.validate != nil {
		if err := act.validate(c); err != nil {
			return err
		}
	}

	next := r.next
	if act.next != nil {
		if next, err = act.next(c); err != nil {
			return err
		}
	}
	if !domain.LegalStatuses(c.txn.Protocol()).Has(next) {
		return InternalError(fmt.Sprintf("Action[%s] computed illegal status[%s]", act.method, next), nil)
	}
	if next.IsError() && strings.TrimSpace(c.params.Message) == "" {
		return InvalidParams("message is required")
	}

	if act.apply != nil {
		if err := act.apply(c); err != nil {
			return err
		}
	}
	if c.params.Message != "" && c.txn.SetMessage(c.params.Message) {
		c.changes.mark(FieldMessage)
	}

	c.txn.UpdatedAt = c.now
	c.txn.Status = next
	if next.IsTerminal() {
		if c.txn.CompletedAt == nil {
			t := c.now
			c.txn.CompletedAt = &t
		}
	} else {
		c.txn.CompletedAt = nil
	}
	return nil
}

func (e *Engine) transactionEvent(txn *domain.Transaction) event.Event {
	typ := event.TypeTransactionStatusChanged
	if txn.Status.IsError() {
		typ = event.TypeTransactionError
	}
	view := txn.View()
	return event.Event{
		ID:          e.newID(),
		Type:        typ,
		Sep:         string(txn.Protocol()),
		Transaction: &view,
	}
}

// publish never fails the action; the transition is already committed.
func (e *Engine) publish(ctx context.Context, ev event.Event) {
	if e.events == nil {
		return
	}
	if err := e.events.Publish(ctx, ev); err != nil {
		zap.L().Error("failed to publish event",
			zap.String("event_id", ev.ID),
			zap.String("type", string(ev.Type)),
			zap.Error(err),
		)
	}
}

// ListTransactions serves get_transactions. It reads without locking.
func (e *Engine) ListTransactions(ctx context.Context, raw json.RawMessage) ([]domain.TransactionView, error) {
	var params ListParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	protocol := domain.Protocol(strings.TrimSpace(params.SEP))
	legal := domain.LegalStatuses(protocol)
	if len(legal) == 0 {
		return nil, invalidParamsf("sep[%s] is not supported", params.SEP)
	}
	statuses := make([]domain.Status, 0, len(params.Statuses))
	for _, s := range params.Statuses {
		status := domain.Status(strings.ToLower(strings.TrimSpace(s)))
		if !legal.Has(status) {
			return nil, invalidParamsf("status[%s] is not supported for protocol[%s]", s, protocol)
		}
		statuses = append(statuses, status)
	}
	switch params.OrderBy {
	case "", "created_at", "started_at":
		params.OrderBy = "started_at"
	case "updated_at":
	default:
		return nil, invalidParamsf("order_by[%s] is not supported", params.OrderBy)
	}
	order := strings.ToLower(params.Order)
	if order != "" && order != "asc" && order != "desc" {
		return nil, invalidParamsf("order[%s] is not supported", params.Order)
	}
	if params.PageSize < 0 || params.PageNumber < 0 {
		return nil, InvalidParams("page_size and page_number must be non-negative")
	}

	txns, err := e.store.Queries().ListTransactions(ctx, repository.ListTransactionsParams{
		Protocol:   protocol,
		Statuses:   statuses,
		OrderBy:    params.OrderBy,
		Descending: order == "desc",
		PageSize:   params.PageSize,
		PageNumber: params.PageNumber,
	})
	if err != nil {
		return nil, InternalError("Failed to list transactions", err)
	}
	views := make([]domain.TransactionView, 0, len(txns))
	for _, t := range txns {
		views = append(views, t.View())
	}
	return views, nil
}
