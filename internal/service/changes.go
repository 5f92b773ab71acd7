package service

import (
	"sort"
	"time"

	"github.com/ayo6706/anchor-platform/internal/domain"
	"github.com/shopspring/decimal"
)

// Field names a transaction field an action touched.
type Field string

const (
	FieldAmountIn              Field = "amount_in"
	FieldAmountOut             Field = "amount_out"
	FieldAmountFee             Field = "amount_fee"
	FieldFeeDetails            Field = "fee_details"
	FieldAmountExpected        Field = "amount_expected"
	FieldMessage               Field = "message"
	FieldExternalTransactionID Field = "external_transaction_id"
	FieldTransferReceivedAt    Field = "transfer_received_at"
	FieldStellarTransactions   Field = "stellar_transactions"
	FieldRefunds               Field = "refunds"
	FieldMemo                  Field = "memo"
	FieldToAccount             Field = "to_account"
	FieldFromAccount           Field = "from_account"
	FieldWithdrawAnchorAccount Field = "withdraw_anchor_account"
	FieldInstructions          Field = "instructions"
	FieldUserActionRequiredBy  Field = "user_action_required_by"
)

// changeSet is the explicit record of fields an action modified.
type changeSet map[Field]struct{}

func (c changeSet) mark(f Field) {
	c[f] = struct{}{}
}

func (c changeSet) Any() bool {
	return len(c) > 0
}

func (c changeSet) Has(f Field) bool {
	_, ok := c[f]
	return ok
}

// Fields returns the touched fields in a stable order.
func (c changeSet) Fields() []string {
	out := make([]string, 0, len(c))
	for f := range c {
		out = append(out, string(f))
	}
	sort.Strings(out)
	return out
}

func (c changeSet) setString(dst *string, v string, f Field) {
	if *dst != v {
		*dst = v
		c.mark(f)
	}
}

// setAmount leaves dst untouched when v has the same asset and value,
// so "9.5" and "9.50" do not count as a change.
func (c changeSet) setAmount(dst *domain.Amount, v domain.Amount, f Field) {
	if sameAmount(*dst, v) {
		return
	}
	*dst = v
	c.mark(f)
}

func sameAmount(a, b domain.Amount) bool {
	if a.Asset != b.Asset {
		return false
	}
	x, errX := decimal.NewFromString(a.Amount)
	y, errY := decimal.NewFromString(b.Amount)
	if errX != nil || errY != nil {
		return a.Amount == b.Amount
	}
	return x.Equal(y)
}

func (c changeSet) setTime(dst **time.Time, v time.Time, f Field) {
	if *dst != nil && (*dst).Equal(v) {
		return
	}
	t := v
	*dst = &t
	c.mark(f)
}

func (c changeSet) setFeeDetails(txn *domain.Transaction, fee *FeeDetailsParam) {
	c.setAmount(&txn.AmountFee, domain.Amount{Amount: fee.Total, Asset: fee.Asset}, FieldAmountFee)
	if !sameFeeDescriptions(txn.FeeDetails, fee.Details) {
		txn.FeeDetails = append([]domain.FeeDescription(nil), fee.Details...)
		c.mark(FieldFeeDetails)
	}
}

func sameFeeDescriptions(a, b []domain.FeeDescription) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
