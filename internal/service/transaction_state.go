package service

import (
	"fmt"

	"github.com/ayo6706/anchor-platform/internal/domain"
)

// route declares, for one protocol and a set of kinds, the statuses an action
// may start from and the status it moves to.
type route struct {
	protocol domain.Protocol
	kinds    []domain.Kind
	always   domain.StatusSet
	received domain.StatusSet
	pending  domain.StatusSet
	next     domain.Status
}

func on(p domain.Protocol, kinds ...domain.Kind) route {
	if len(kinds) == 0 {
		kinds = domain.LegalKinds(p)
	}
	return route{protocol: p, kinds: kinds}
}

// from adds statuses legal regardless of whether funds were received.
func (r route) from(s ...domain.Status) route {
	r.always = r.always.Union(domain.Statuses(s...))
	return r
}

// whenReceived adds statuses legal only after funds were received.
func (r route) whenReceived(s ...domain.Status) route {
	r.received = r.received.Union(domain.Statuses(s...))
	return r
}

// whenPending adds statuses legal only while funds were not received.
func (r route) whenPending(s ...domain.Status) route {
	r.pending = r.pending.Union(domain.Statuses(s...))
	return r
}

func (r route) to(next domain.Status) route {
	r.next = next
	return r
}

func (r route) matches(txn *domain.Transaction) bool {
	if r.protocol != txn.Protocol() {
		return false
	}
	for _, k := range r.kinds {
		if k == txn.Kind {
			return true
		}
	}
	return false
}

// supported returns the statuses the route accepts for txn.
func (r route) supported(txn *domain.Transaction) domain.StatusSet {
	if txn.FundsReceived() {
		return r.always.Union(r.received)
	}
	return r.always.Union(r.pending)
}

// action is one RPC method: its routes plus the hooks run by the engine.
// validate and next must not mutate the transaction.
type action struct {
	method   Method
	routes   []route
	validate func(*call) error
	next     func(*call) (domain.Status, error)
	apply    func(*call) error
}

// route returns the route txn is allowed to take, or a guard error.
func (a *action) route(txn *domain.Transaction) (*route, error) {
	for i := range a.routes {
		r := &a.routes[i]
		if r.matches(txn) && r.supported(txn).Has(txn.Status) {
			return r, nil
		}
	}
	return nil, invalidRequestf("Action[%s] is not supported for status[%s], kind[%s], protocol[%s] and funds received[%t]",
		a.method, txn.Status, txn.Kind, txn.Protocol(), txn.FundsReceived())
}

var (
	sep6  = domain.ProtocolSEP6
	sep24 = domain.ProtocolSEP24
	sep31 = domain.ProtocolSEP31

	deposits6    = []domain.Kind{domain.KindDeposit, domain.KindDepositExchange}
	withdrawals6 = []domain.Kind{domain.KindWithdrawal, domain.KindWithdrawalExchange}
)

// everywhere builds one route per protocol starting from each protocol's
// active statuses.
func everywhere(next func(domain.Protocol) domain.Status, build func(route, domain.StatusSet) route) []route {
	routes := make([]route, 0, 3)
	for _, p := range []domain.Protocol{sep6, sep24, sep31} {
		routes = append(routes, build(on(p), domain.ActiveStatuses(p)).to(next(p)))
	}
	return routes
}

func statusList(set domain.StatusSet) []domain.Status {
	out := make([]domain.Status, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	return out
}

func fixed(s domain.Status) func(domain.Protocol) domain.Status {
	return func(domain.Protocol) domain.Status { return s }
}

// recoveryStatus is the pending status a recovered transaction returns to.
func recoveryStatus(p domain.Protocol) domain.Status {
	if p == sep31 {
		return domain.StatusPendingReceiver
	}
	return domain.StatusPendingAnchor
}

const (
	incomplete                = domain.StatusIncomplete
	pendingUserTransferStart  = domain.StatusPendingUserTransferStart
	pendingUserTransferDone   = domain.StatusPendingUserTransferComplete
	pendingExternal           = domain.StatusPendingExternal
	pendingAnchor             = domain.StatusPendingAnchor
	pendingStellar            = domain.StatusPendingStellar
	pendingTrust              = domain.StatusPendingTrust
	pendingCustomerInfoUpdate = domain.StatusPendingCustomerInfoUpdate
	pendingSender             = domain.StatusPendingSender
	pendingReceiver           = domain.StatusPendingReceiver
	onHold                    = domain.StatusOnHold
	completed                 = domain.StatusCompleted
)

// newActionTable is the complete transition table. A status absent from every
// route of a method is an illegal source for it.
func newActionTable(e *Engine) map[Method]*action {
	actions := []*action{
		{
			method: MethodRequestOffchainFunds,
			routes: []route{
				on(sep6, deposits6...).from(incomplete).whenPending(pendingAnchor, pendingCustomerInfoUpdate).to(pendingUserTransferStart),
				on(sep24, domain.KindDeposit).from(incomplete).whenPending(pendingAnchor).to(pendingUserTransferStart),
			},
			validate: e.validateRequestOffchainFunds,
			apply:    e.applyRequestOffchainFunds,
		},
		{
			method: MethodRequestOnchainFunds,
			routes: []route{
				on(sep6, withdrawals6...).from(incomplete, pendingCustomerInfoUpdate).whenPending(pendingAnchor).to(pendingUserTransferStart),
				on(sep24, domain.KindWithdrawal).from(incomplete).whenPending(pendingAnchor).to(pendingUserTransferStart),
				on(sep31).whenPending(pendingReceiver).to(pendingSender),
			},
			validate: e.validateRequestOnchainFunds,
			apply:    e.applyRequestOnchainFunds,
		},
		{
			method: MethodNotifyOffchainFundsReceived,
			routes: []route{
				on(sep6, deposits6...).from(pendingUserTransferStart, onHold).whenReceived(pendingExternal).to(pendingAnchor),
				on(sep24, domain.KindDeposit).from(pendingUserTransferStart, onHold).whenReceived(pendingExternal).to(pendingAnchor),
			},
			validate: e.validateNotifyOffchainFundsReceived,
			apply:    e.applyNotifyOffchainFundsReceived,
		},
		{
			method: MethodNotifyOnchainFundsReceived,
			routes: []route{
				on(sep6, withdrawals6...).from(pendingUserTransferStart, onHold).to(pendingAnchor),
				on(sep24, domain.KindWithdrawal).from(pendingUserTransferStart, onHold).to(pendingAnchor),
				on(sep31).from(pendingSender).to(pendingReceiver),
			},
			validate: e.validateNotifyOnchainFundsReceived,
			apply:    e.applyNotifyOnchainFundsReceived,
		},
		{
			method: MethodNotifyOnchainFundsSent,
			routes: []route{
				on(sep6, deposits6...).from(pendingStellar).whenReceived(pendingAnchor).to(completed),
				on(sep24, domain.KindDeposit).from(pendingStellar).whenReceived(pendingAnchor).to(completed),
			},
			validate: requireStellarTransactionID,
			apply:    e.applyNotifyOnchainFundsSent,
		},
		{
			method: MethodNotifyOffchainFundsSent,
			routes: []route{
				on(sep6, deposits6...).from(pendingUserTransferStart).to(pendingExternal),
				on(sep24, domain.KindDeposit).from(pendingUserTransferStart).to(pendingExternal),
				on(sep6, withdrawals6...).from(pendingUserTransferDone, pendingExternal).whenReceived(pendingAnchor).to(completed),
				on(sep24, domain.KindWithdrawal).from(pendingUserTransferDone, pendingExternal).whenReceived(pendingAnchor).to(completed),
				on(sep31).from(pendingReceiver, pendingExternal).to(completed),
			},
			apply: e.applyNotifyOffchainFundsSent,
		},
		{
			method: MethodNotifyOffchainFundsPending,
			routes: []route{
				on(sep6, withdrawals6...).whenReceived(pendingAnchor).to(pendingExternal),
				on(sep24, domain.KindWithdrawal).whenReceived(pendingAnchor).to(pendingExternal),
				on(sep31).from(pendingReceiver).to(pendingExternal),
			},
			apply: applyExternalTransactionID,
		},
		{
			method: MethodNotifyOffchainFundsAvailable,
			routes: []route{
				on(sep6, withdrawals6...).whenReceived(pendingAnchor, onHold).to(pendingUserTransferDone),
				on(sep24, domain.KindWithdrawal).whenReceived(pendingAnchor, onHold).to(pendingUserTransferDone),
			},
			apply: applyExternalTransactionID,
		},
		{
			method: MethodDoStellarPayment,
			routes: []route{
				on(sep6, deposits6...).whenReceived(pendingAnchor),
				on(sep24, domain.KindDeposit).whenReceived(pendingAnchor),
			},
			validate: e.requireCustody(MethodDoStellarPayment),
			next:     e.nextDoStellarPayment,
			apply:    e.applyDoStellarPayment,
		},
		{
			method: MethodDoStellarRefund,
			routes: []route{
				on(sep6, withdrawals6...).whenReceived(pendingAnchor).to(pendingStellar),
				on(sep24, domain.KindWithdrawal).whenReceived(pendingAnchor).to(pendingStellar),
				on(sep31).from(pendingReceiver).to(pendingStellar),
			},
			validate: e.validateDoStellarRefund,
			apply:    e.applyDoStellarRefund,
		},
		{
			method: MethodNotifyRefundPending,
			routes: []route{
				on(sep6, deposits6...).from(pendingAnchor).to(pendingExternal),
				on(sep24, domain.KindDeposit).from(pendingAnchor).to(pendingExternal),
				on(sep6, withdrawals6...).from(pendingUserTransferDone, pendingExternal).to(pendingAnchor),
				on(sep24, domain.KindWithdrawal).from(pendingUserTransferDone, pendingExternal).to(pendingAnchor),
			},
			validate: e.validateNotifyRefundPending,
			apply:    e.applyNotifyRefundPending,
		},
		{
			method: MethodNotifyRefundSent,
			routes: []route{
				on(sep6, deposits6...).whenReceived(pendingExternal, pendingAnchor),
				on(sep24, domain.KindDeposit).whenReceived(pendingExternal, pendingAnchor),
				on(sep6, withdrawals6...).from(pendingStellar).whenReceived(pendingAnchor),
				on(sep24, domain.KindWithdrawal).from(pendingStellar).whenReceived(pendingAnchor),
				on(sep31).from(pendingStellar, pendingReceiver),
			},
			validate: e.validateNotifyRefundSent,
			next:     e.nextNotifyRefundSent,
			apply:    e.applyNotifyRefundSent,
		},
		{
			method: MethodNotifyInteractiveFlowCompleted,
			routes: []route{
				on(sep24).from(incomplete).to(pendingAnchor),
			},
			validate: e.validateNotifyInteractiveFlowCompleted,
			apply:    applyNotifyInteractiveFlowCompleted,
		},
		{
			method: MethodNotifyAmountsUpdated,
			routes: []route{
				on(sep6, withdrawals6...).whenReceived(pendingAnchor).to(pendingAnchor),
				on(sep24, domain.KindWithdrawal).whenReceived(pendingAnchor).to(pendingAnchor),
			},
			validate: e.validateNotifyAmountsUpdated,
			apply:    applyNotifyAmountsUpdated,
		},
		{
			method: MethodNotifyAmountsAssetsUpdated,
			routes: []route{
				on(sep6).from(incomplete, pendingAnchor, pendingCustomerInfoUpdate).to(pendingAnchor),
			},
			validate: e.validateNotifyAmountsAssetsUpdated,
			apply:    applyNotifyAmountsAssetsUpdated,
		},
		{
			method: MethodNotifyCustomerInfoUpdated,
			routes: []route{
				on(sep6).from(incomplete, pendingAnchor, pendingCustomerInfoUpdate),
				on(sep31).from(pendingReceiver, pendingCustomerInfoUpdate),
			},
			validate: e.validateNotifyCustomerInfoUpdated,
			next:     e.nextNotifyCustomerInfoUpdated,
			apply:    e.applyNotifyCustomerInfoUpdated,
		},
		{
			method: MethodNotifyTransactionOnHold,
			routes: []route{
				on(sep6, deposits6...).from(pendingUserTransferStart).to(onHold),
				on(sep24, domain.KindDeposit).from(pendingUserTransferStart).to(onHold),
				on(sep6, withdrawals6...).from(pendingUserTransferStart, pendingAnchor).to(onHold),
				on(sep24, domain.KindWithdrawal).from(pendingUserTransferStart, pendingAnchor).to(onHold),
			},
			apply: applyNotifyTransactionOnHold,
		},
		{
			method: MethodRequestTrust,
			routes: []route{
				on(sep24, domain.KindDeposit).whenReceived(pendingAnchor).to(pendingTrust),
			},
			validate: e.requireNoCustody(MethodRequestTrust),
		},
		{
			method: MethodNotifyTrustSet,
			routes: []route{
				on(sep24, domain.KindDeposit).from(pendingTrust),
			},
			validate: requireSuccess,
			next:     e.nextNotifyTrustSet,
			apply:    e.applyNotifyTrustSet,
		},
		{
			method: MethodNotifyTransactionError,
			routes: everywhere(fixed(domain.StatusError), func(r route, active domain.StatusSet) route {
				return r.from(statusList(active)...)
			}),
		},
		{
			method: MethodNotifyTransactionExpired,
			routes: everywhere(fixed(domain.StatusExpired), func(r route, active domain.StatusSet) route {
				return r.whenPending(statusList(active)...)
			}),
		},
		{
			method: MethodNotifyTransactionRecovery,
			routes: everywhere(recoveryStatus, func(r route, _ domain.StatusSet) route {
				return r.whenReceived(domain.StatusError, domain.StatusExpired)
			}),
		},
	}

	table := make(map[Method]*action, len(actions))
	for _, a := range actions {
		if _, dup := table[a.method]; dup {
			panic(fmt.Sprintf("duplicate action %s", a.method))
		}
		table[a.method] = a
	}
	return table
}

// methodSettleTrust names the worker-only settlement of a pending trust.
const methodSettleTrust Method = "settle_trust"

// newTrustSettlement covers every deposit do_stellar_payment can park in
// pending_trust, including SEP-6 ones that notify_trust_set does not accept.
func newTrustSettlement(e *Engine) *action {
	return &action{
		method: methodSettleTrust,
		routes: []route{
			on(sep6, deposits6...).from(pendingTrust),
			on(sep24, domain.KindDeposit).from(pendingTrust),
		},
		next:  e.nextNotifyTrustSet,
		apply: e.applyNotifyTrustSet,
	}
}
