package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// RefundPaymentIDType says where a refund payment was settled.
type RefundPaymentIDType string

const (
	RefundPaymentStellar  RefundPaymentIDType = "stellar"
	RefundPaymentExternal RefundPaymentIDType = "external"
)

// RefundPayment is one refund sent back to the user.
type RefundPayment struct {
	ID     string              `json:"id"`
	IDType RefundPaymentIDType `json:"id_type"`
	Amount Amount              `json:"amount"`
	Fee    Amount              `json:"fee"`
}

// Refunds aggregates every refund payment of a transaction. AmountRefunded and
// AmountFee are only ever produced by Recalculate.
type Refunds struct {
	AmountRefunded Amount          `json:"amount_refunded"`
	AmountFee      Amount          `json:"amount_fee"`
	Payments       []RefundPayment `json:"payments"`
}

// Clone returns a deep copy of the refunds.
func (r *Refunds) Clone() *Refunds {
	c := *r
	c.Payments = append([]RefundPayment(nil), r.Payments...)
	return &c
}

// Find returns the payment recorded under id.
func (r *Refunds) Find(id string) (RefundPayment, bool) {
	if r == nil {
		return RefundPayment{}, false
	}
	for _, p := range r.Payments {
		if p.ID == id {
			return p, true
		}
	}
	return RefundPayment{}, false
}

// Upsert appends p, or replaces the payment with the same id in place.
func (r *Refunds) Upsert(p RefundPayment) {
	for i := range r.Payments {
		if r.Payments[i].ID == p.ID {
			r.Payments[i] = p
			return
		}
	}
	r.Payments = append(r.Payments, p)
}

// Recalculate recomputes AmountRefunded (amount plus fee) and AmountFee over
// the payments at the asset's scale.
func (r *Refunds) Recalculate(asset string, scale int32) error {
	total := decimal.Zero
	fees := decimal.Zero
	for _, p := range r.Payments {
		amount, err := ScaledAmount(p.Amount.Amount, scale)
		if err != nil {
			return fmt.Errorf("refund payment %s amount: %w", p.ID, err)
		}
		fee, err := ScaledAmount(p.Fee.Amount, scale)
		if err != nil {
			return fmt.Errorf("refund payment %s fee: %w", p.ID, err)
		}
		total = total.Add(amount).Add(fee)
		fees = fees.Add(fee)
	}
	r.AmountRefunded = Amount{Amount: FormatAmount(total, scale), Asset: asset}
	r.AmountFee = Amount{Amount: FormatAmount(fees, scale), Asset: asset}
	return nil
}

// TotalWith returns the refunded total if p were upserted, without mutating r.
func (r *Refunds) TotalWith(p *RefundPayment, scale int32) (decimal.Decimal, error) {
	total := decimal.Zero
	if r != nil {
		for _, existing := range r.Payments {
			if p != nil && existing.ID == p.ID {
				continue
			}
			sum, err := SumAmounts(scale, existing.Amount.Amount, existing.Fee.Amount)
			if err != nil {
				return decimal.Zero, err
			}
			total = total.Add(sum)
		}
	}
	if p != nil {
		sum, err := SumAmounts(scale, p.Amount.Amount, p.Fee.Amount)
		if err != nil {
			return decimal.Zero, err
		}
		total = total.Add(sum)
	}
	return total, nil
}
