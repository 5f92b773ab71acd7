package domain

// Protocol identifies the standard a transaction was created under.
type Protocol string

const (
	ProtocolSEP6  Protocol = "6"
	ProtocolSEP24 Protocol = "24"
	ProtocolSEP31 Protocol = "31"
)

// Kind is the direction of a transaction. Legal kinds depend on the protocol.
type Kind string

const (
	KindDeposit            Kind = "deposit"
	KindDepositExchange    Kind = "deposit-exchange"
	KindWithdrawal         Kind = "withdrawal"
	KindWithdrawalExchange Kind = "withdrawal-exchange"
	KindReceive            Kind = "receive"
)

// Status is the lifecycle position of a transaction.
type Status string

const (
	StatusIncomplete                   Status = "incomplete"
	StatusPendingUserTransferStart     Status = "pending_user_transfer_start"
	StatusPendingUserTransferComplete  Status = "pending_user_transfer_complete"
	StatusPendingExternal              Status = "pending_external"
	StatusPendingAnchor                Status = "pending_anchor"
	StatusPendingStellar               Status = "pending_stellar"
	StatusPendingTrust                 Status = "pending_trust"
	StatusPendingUser                  Status = "pending_user"
	StatusPendingCustomerInfoUpdate    Status = "pending_customer_info_update"
	StatusPendingTransactionInfoUpdate Status = "pending_transaction_info_update"
	StatusPendingSender                Status = "pending_sender"
	StatusPendingReceiver              Status = "pending_receiver"
	StatusOnHold                       Status = "on_hold"
	StatusCompleted                    Status = "completed"
	StatusRefunded                     Status = "refunded"
	StatusExpired                      Status = "expired"
	StatusNoMarket                     Status = "no_market"
	StatusTooSmall                     Status = "too_small"
	StatusTooLarge                     Status = "too_large"
	StatusError                        Status = "error"
)

// StatusSet is an unordered set of statuses.
type StatusSet map[Status]struct{}

// Statuses builds a StatusSet from the given values.
func Statuses(values ...Status) StatusSet {
	set := make(StatusSet, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}

// Has reports whether s is a member of the set.
func (set StatusSet) Has(s Status) bool {
	_, ok := set[s]
	return ok
}

// Union returns a new set holding the members of both sets.
func (set StatusSet) Union(other StatusSet) StatusSet {
	out := make(StatusSet, len(set)+len(other))
	for s := range set {
		out[s] = struct{}{}
	}
	for s := range other {
		out[s] = struct{}{}
	}
	return out
}

// Without returns a copy of the set with the given statuses removed.
func (set StatusSet) Without(values ...Status) StatusSet {
	out := make(StatusSet, len(set))
	for s := range set {
		out[s] = struct{}{}
	}
	for _, v := range values {
		delete(out, v)
	}
	return out
}

var (
	errorStatuses    = Statuses(StatusError, StatusExpired)
	terminalStatuses = Statuses(StatusCompleted, StatusRefunded)

	sep6Statuses = Statuses(
		StatusIncomplete,
		StatusPendingUserTransferStart,
		StatusPendingUserTransferComplete,
		StatusPendingExternal,
		StatusPendingAnchor,
		StatusPendingStellar,
		StatusPendingTrust,
		StatusPendingUser,
		StatusPendingCustomerInfoUpdate,
		StatusPendingTransactionInfoUpdate,
		StatusOnHold,
		StatusCompleted,
		StatusRefunded,
		StatusExpired,
		StatusNoMarket,
		StatusTooSmall,
		StatusTooLarge,
		StatusError,
	)

	sep24Statuses = sep6Statuses.Without(
		StatusPendingCustomerInfoUpdate,
		StatusPendingTransactionInfoUpdate,
	)

	sep31Statuses = Statuses(
		StatusPendingSender,
		StatusPendingStellar,
		StatusPendingCustomerInfoUpdate,
		StatusPendingTransactionInfoUpdate,
		StatusPendingReceiver,
		StatusPendingExternal,
		StatusCompleted,
		StatusRefunded,
		StatusExpired,
		StatusError,
	)
)

// IsError reports whether s belongs to the error class.
func (s Status) IsError() bool {
	return errorStatuses.Has(s)
}

// IsTerminal reports whether s is a terminal success status.
func (s Status) IsTerminal() bool {
	return terminalStatuses.Has(s)
}

// LegalStatuses returns the statuses a transaction of the given protocol may hold.
func LegalStatuses(p Protocol) StatusSet {
	switch p {
	case ProtocolSEP6:
		return sep6Statuses
	case ProtocolSEP24:
		return sep24Statuses
	case ProtocolSEP31:
		return sep31Statuses
	default:
		return StatusSet{}
	}
}

// ActiveStatuses returns the legal statuses of p that are neither terminal nor errors.
func ActiveStatuses(p Protocol) StatusSet {
	return LegalStatuses(p).Without(StatusCompleted, StatusRefunded, StatusError, StatusExpired)
}

// LegalKinds returns the kinds a transaction of the given protocol may have.
func LegalKinds(p Protocol) []Kind {
	switch p {
	case ProtocolSEP6:
		return []Kind{KindDeposit, KindDepositExchange, KindWithdrawal, KindWithdrawalExchange}
	case ProtocolSEP24:
		return []Kind{KindDeposit, KindWithdrawal}
	case ProtocolSEP31:
		return []Kind{KindReceive}
	default:
		return nil
	}
}

// IsDeposit reports whether k moves funds onto the ledger.
func (k Kind) IsDeposit() bool {
	return k == KindDeposit || k == KindDepositExchange
}

// IsWithdrawal reports whether k moves funds off the ledger.
func (k Kind) IsWithdrawal() bool {
	return k == KindWithdrawal || k == KindWithdrawalExchange
}
