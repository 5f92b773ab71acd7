package service

import (
	"github.com/ayo6706/anchor-platform/internal/domain"
	"github.com/shopspring/decimal"
)

// refundStatus compares the refunded total with amount_in at the asset's scale.
func refundStatus(total decimal.Decimal, amountIn string, scale int32) (domain.Status, error) {
	in, err := domain.ScaledAmount(amountIn, scale)
	if err != nil {
		return "", InvalidParams("amount_in is invalid")
	}
	total = domain.RoundHalfDown(total, scale)
	switch total.Cmp(in) {
	case 0:
		return domain.StatusRefunded, nil
	case -1:
		return domain.StatusPendingAnchor, nil
	default:
		return "", InvalidParams("Refund amount exceeds amount_in")
	}
}

func refundPayment(r *RefundParam, idType domain.RefundPaymentIDType) domain.RefundPayment {
	return domain.RefundPayment{
		ID:     r.ID,
		IDType: idType,
		Amount: r.Amount.toDomain(),
		Fee:    r.AmountFee.toDomain(),
	}
}

// refundIDType is external for deposits, whose refunds leave through the
// off-ledger rail, and stellar otherwise.
func refundIDType(txn *domain.Transaction) domain.RefundPaymentIDType {
	if txn.Kind.IsDeposit() {
		return domain.RefundPaymentExternal
	}
	return domain.RefundPaymentStellar
}

// upsertRefund records p on txn and recomputes the totals.
func upsertRefund(txn *domain.Transaction, p domain.RefundPayment, scale int32) error {
	if txn.Refunds == nil {
		txn.Refunds = &domain.Refunds{}
	}
	txn.Refunds.Upsert(p)
	return txn.Refunds.Recalculate(txn.AmountIn.Asset, scale)
}

// replaceRefunds drops every recorded payment and keeps p as the only one.
func replaceRefunds(txn *domain.Transaction, p domain.RefundPayment, scale int32) error {
	txn.Refunds = &domain.Refunds{}
	return upsertRefund(txn, p, scale)
}
