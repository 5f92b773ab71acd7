package domain

import (
	"time"
)

// Transaction is the aggregate moved through its lifecycle by RPC actions.
// Protocol-specific data lives in Details.
type Transaction struct {
	ID                    string
	Kind                  Kind
	Status                Status
	AmountIn              Amount
	AmountOut             Amount
	AmountFee             Amount
	AmountExpected        string
	FeeDetails            []FeeDescription
	Memo                  string
	MemoType              string
	ExternalTransactionID string
	ToAccount             string
	FromAccount           string
	Message               string
	StartedAt             time.Time
	UpdatedAt             time.Time
	TransferReceivedAt    *time.Time
	CompletedAt           *time.Time
	UserActionRequiredBy  *time.Time
	StellarTransactions   []StellarTransaction
	Refunds               *Refunds
	Details               Details
}

// Details is the protocol variant of a transaction. It is implemented by
// *Sep6Details, *Sep24Details and *Sep31Details only.
type Details interface {
	Protocol() Protocol
	clone() Details
}

// Sep6Details holds fields only SEP-6 transactions carry.
type Sep6Details struct {
	WithdrawAnchorAccount string
	QuoteID               string
	Instructions          map[string]InstructionField
}

// Sep24Details holds fields only SEP-24 transactions carry.
type Sep24Details struct {
	WithdrawAnchorAccount string
	QuoteID               string
}

// Sep31Details holds fields only SEP-31 transactions carry.
type Sep31Details struct {
	QuoteID             string
	RequiredInfoMessage string
}

func (*Sep6Details) Protocol() Protocol  { return ProtocolSEP6 }
func (*Sep24Details) Protocol() Protocol { return ProtocolSEP24 }
func (*Sep31Details) Protocol() Protocol { return ProtocolSEP31 }

func (d *Sep6Details) clone() Details {
	c := *d
	if d.Instructions != nil {
		c.Instructions = make(map[string]InstructionField, len(d.Instructions))
		for k, v := range d.Instructions {
			c.Instructions[k] = v
		}
	}
	return &c
}

func (d *Sep24Details) clone() Details {
	c := *d
	return &c
}

func (d *Sep31Details) clone() Details {
	c := *d
	return &c
}

// InstructionField is one SEP-6 deposit instruction.
type InstructionField struct {
	Value       string `json:"value"`
	Description string `json:"description"`
}

// FeeDescription is one line item of a fee breakdown.
type FeeDescription struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Amount      string `json:"amount"`
}

// StellarTransaction records a ledger transaction linked to the anchor transaction.
type StellarTransaction struct {
	ID        string           `json:"id"`
	Memo      string           `json:"memo,omitempty"`
	MemoType  string           `json:"memo_type,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
	Envelope  string           `json:"envelope,omitempty"`
	Payments  []StellarPayment `json:"payments"`
}

// StellarPayment is a single payment operation inside a ledger transaction.
type StellarPayment struct {
	ID                 string `json:"id"`
	Amount             Amount `json:"amount"`
	PaymentType        string `json:"payment_type"`
	SourceAccount      string `json:"source_account"`
	DestinationAccount string `json:"destination_account"`
}

const (
	PaymentTypePayment     = "payment"
	PaymentTypePathPayment = "path_payment"
)

// Protocol returns the protocol of the transaction's variant.
func (t *Transaction) Protocol() Protocol {
	if t.Details == nil {
		return ""
	}
	return t.Details.Protocol()
}

// FundsReceived reports whether the anchor has recorded receipt of the user's funds.
func (t *Transaction) FundsReceived() bool {
	return t.TransferReceivedAt != nil
}

// QuoteID returns the firm quote attached to the transaction, if any.
func (t *Transaction) QuoteID() string {
	switch d := t.Details.(type) {
	case *Sep6Details:
		return d.QuoteID
	case *Sep24Details:
		return d.QuoteID
	case *Sep31Details:
		return d.QuoteID
	}
	return ""
}

// CurrentMessage returns the human-readable message in the protocol's message field.
func (t *Transaction) CurrentMessage() string {
	if d, ok := t.Details.(*Sep31Details); ok {
		return d.RequiredInfoMessage
	}
	return t.Message
}

// SetMessage writes msg into the protocol's message field and reports whether it changed.
func (t *Transaction) SetMessage(msg string) bool {
	if d, ok := t.Details.(*Sep31Details); ok {
		if d.RequiredInfoMessage == msg {
			return false
		}
		d.RequiredInfoMessage = msg
		return true
	}
	if t.Message == msg {
		return false
	}
	t.Message = msg
	return true
}

// UpsertStellarTransaction appends rec, or replaces the record with the same id in place.
func (t *Transaction) UpsertStellarTransaction(rec StellarTransaction) {
	for i := range t.StellarTransactions {
		if t.StellarTransactions[i].ID == rec.ID {
			t.StellarTransactions[i] = rec
			return
		}
	}
	t.StellarTransactions = append(t.StellarTransactions, rec)
}

// Clone returns a deep copy of the transaction.
func (t *Transaction) Clone() *Transaction {
	c := *t
	c.FeeDetails = append([]FeeDescription(nil), t.FeeDetails...)
	c.StellarTransactions = make([]StellarTransaction, len(t.StellarTransactions))
	for i, st := range t.StellarTransactions {
		st.Payments = append([]StellarPayment(nil), st.Payments...)
		c.StellarTransactions[i] = st
	}
	if t.StellarTransactions == nil {
		c.StellarTransactions = nil
	}
	c.TransferReceivedAt = cloneTime(t.TransferReceivedAt)
	c.CompletedAt = cloneTime(t.CompletedAt)
	c.UserActionRequiredBy = cloneTime(t.UserActionRequiredBy)
	if t.Refunds != nil {
		c.Refunds = t.Refunds.Clone()
	}
	if t.Details != nil {
		c.Details = t.Details.clone()
	}
	return &c
}

func cloneTime(v *time.Time) *time.Time {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
