package service

import (
	"errors"
	"fmt"
	"maps"
	"strings"

	"github.com/ayo6706/anchor-platform/internal/custody"
	"github.com/ayo6706/anchor-platform/internal/customer"
	"github.com/ayo6706/anchor-platform/internal/domain"
	"github.com/ayo6706/anchor-platform/internal/event"
	"github.com/ayo6706/anchor-platform/internal/ledger"
	"github.com/ayo6706/anchor-platform/internal/repository"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// customerEventSep is the protocol tag of customer_updated events.
const customerEventSep = "12"

func requireStellarTransactionID(c *call) error {
	if strings.TrimSpace(c.params.StellarTransactionID) == "" {
		return InvalidParams("stellar_transaction_id is required")
	}
	return nil
}

func requireSuccess(c *call) error {
	if c.params.Success == nil {
		return InvalidParams("success is required")
	}
	return nil
}

func (e *Engine) requireCustody(method Method) func(*call) error {
	return func(*call) error {
		if !e.CustodyEnabled() {
			return invalidRequestf("RPC method[%s] requires enabled custody integration", method)
		}
		return nil
	}
}

func (e *Engine) requireNoCustody(method Method) func(*call) error {
	return func(*call) error {
		if e.CustodyEnabled() {
			return invalidRequestf("RPC method[%s] requires disabled custody integration", method)
		}
		return nil
	}
}

// custodyError maps a custody failure to an RPC error.
func custodyError(op, txnID string, err error) error {
	if errors.Is(err, custody.ErrBadRequest) {
		return invalidParamsf("Custody service rejected %s for transaction[%s]", op, txnID)
	}
	return InternalError(fmt.Sprintf("Failed to %s in custody service", op), err)
}

func (e *Engine) registerWithCustody(c *call) error {
	if !e.CustodyEnabled() {
		return nil
	}
	if err := e.custody.CreateTransaction(c.ctx, c.txn); err != nil {
		return custodyError("create transaction", c.txn.ID, err)
	}
	return nil
}

// applyRequestedAmounts writes amounts that carry their own asset.
func applyRequestedAmounts(c *call) {
	p, txn, ch := c.params, c.txn, c.changes
	if p.AmountIn != nil {
		ch.setAmount(&txn.AmountIn, p.AmountIn.toDomain(), FieldAmountIn)
	}
	if p.AmountOut != nil {
		ch.setAmount(&txn.AmountOut, p.AmountOut.toDomain(), FieldAmountOut)
	}
	if p.AmountFee != nil {
		ch.setAmount(&txn.AmountFee, p.AmountFee.toDomain(), FieldAmountFee)
	}
	if p.FeeDetails != nil {
		ch.setFeeDetails(txn, p.FeeDetails)
	}
	switch {
	case p.AmountExpected != nil:
		ch.setString(&txn.AmountExpected, p.AmountExpected.Amount, FieldAmountExpected)
	case p.AmountIn != nil:
		ch.setString(&txn.AmountExpected, p.AmountIn.Amount, FieldAmountExpected)
	}
	if p.UserActionRequiredBy != nil {
		ch.setTime(&txn.UserActionRequiredBy, *p.UserActionRequiredBy, FieldUserActionRequiredBy)
	}
}

// applyReceivedAmounts writes amount values while keeping the recorded assets.
func applyReceivedAmounts(c *call) {
	p, txn, ch := c.params, c.txn, c.changes
	if p.AmountIn != nil {
		ch.setAmount(&txn.AmountIn, domain.Amount{Amount: p.AmountIn.Amount, Asset: txn.AmountIn.Asset}, FieldAmountIn)
	}
	if p.AmountOut != nil {
		ch.setAmount(&txn.AmountOut, domain.Amount{Amount: p.AmountOut.Amount, Asset: txn.AmountOut.Asset}, FieldAmountOut)
	}
	if p.AmountFee != nil {
		ch.setAmount(&txn.AmountFee, domain.Amount{Amount: p.AmountFee.Amount, Asset: txn.AmountFee.Asset}, FieldAmountFee)
	}
	if p.FeeDetails != nil {
		ch.setFeeDetails(txn, p.FeeDetails)
	}
}

func setExternalTransactionID(c *call) {
	if c.params.ExternalTransactionID != "" {
		c.changes.setString(&c.txn.ExternalTransactionID, c.params.ExternalTransactionID, FieldExternalTransactionID)
	}
}

func applyExternalTransactionID(c *call) error {
	setExternalTransactionID(c)
	return nil
}

func markFundsReceived(c *call) {
	if c.txn.TransferReceivedAt == nil {
		c.changes.setTime(&c.txn.TransferReceivedAt, c.now, FieldTransferReceivedAt)
	}
}

// request_offchain_funds

func (e *Engine) validateRequestOffchainFunds(c *call) error {
	return e.validateFundsRequest(c.params, c.txn, offLedger)
}

func (e *Engine) applyRequestOffchainFunds(c *call) error {
	applyRequestedAmounts(c)
	if d, ok := c.txn.Details.(*domain.Sep6Details); ok && c.params.Instructions != nil {
		if !maps.Equal(d.Instructions, c.params.Instructions) {
			d.Instructions = maps.Clone(c.params.Instructions)
			c.changes.mark(FieldInstructions)
		}
	}
	return nil
}

// request_onchain_funds

func (e *Engine) validateRequestOnchainFunds(c *call) error {
	p, txn := c.params, c.txn
	if err := e.validateFundsRequest(p, txn, onLedger); err != nil {
		return err
	}
	gen, ok := e.depositInfo[txn.Protocol()]
	if !ok || gen == nil {
		return InternalError(fmt.Sprintf("Deposit info generator is not configured for protocol[%s]", txn.Protocol()), nil)
	}

	var supplied *DepositInfo
	if gen.AcceptsSupplied() {
		if p.Memo == nil || p.MemoType == nil {
			return InvalidParams("memo and memo_type are required")
		}
		memo, err := domain.ValidateMemo(*p.Memo, *p.MemoType)
		if err != nil {
			return invalidParamsf("Invalid memo or memo_type: %v", err)
		}
		if p.DestinationAccount == nil || strings.TrimSpace(*p.DestinationAccount) == "" {
			return InvalidParams("destination_account is required")
		}
		if err := domain.ValidateAccount(*p.DestinationAccount); err != nil {
			return invalidParamsf("Invalid destination_account: %v", err)
		}
		supplied = &DepositInfo{Account: *p.DestinationAccount, Memo: memo, MemoType: *p.MemoType}
	} else if p.Memo != nil || p.MemoType != nil || p.DestinationAccount != nil {
		return InvalidParams("Anchor is not configured to accept memo, memo_type and destination_account. " +
			"Please set configuration deposit_info_generator_type to 'none' if you want to enable this feature")
	}

	// the generator reads amount_in's asset, which may come from this request
	probe := txn.Clone()
	if p.AmountIn != nil {
		probe.AmountIn = p.AmountIn.toDomain()
	}
	info, err := gen.Generate(c.ctx, probe, supplied)
	if err != nil {
		return InternalError("Failed to generate deposit info", err)
	}
	if !custody.IsMemoTypeSupported(e.custodyType, info.MemoType) {
		return invalidParamsf("Memo type[%s] is not supported for custody type[%s]", info.MemoType, e.custodyType)
	}
	c.depositInfo = &info
	return nil
}

func (e *Engine) applyRequestOnchainFunds(c *call) error {
	applyRequestedAmounts(c)
	txn, ch, info := c.txn, c.changes, c.depositInfo
	ch.setString(&txn.Memo, info.Memo, FieldMemo)
	ch.setString(&txn.MemoType, info.MemoType, FieldMemo)
	switch d := txn.Details.(type) {
	case *domain.Sep6Details:
		ch.setString(&d.WithdrawAnchorAccount, info.Account, FieldWithdrawAnchorAccount)
	case *domain.Sep24Details:
		ch.setString(&d.WithdrawAnchorAccount, info.Account, FieldWithdrawAnchorAccount)
		ch.setString(&txn.ToAccount, info.Account, FieldToAccount)
	case *domain.Sep31Details:
		ch.setString(&txn.ToAccount, info.Account, FieldToAccount)
	}
	zap.L().Debug("deposit info assigned",
		zap.String("transaction_id", txn.ID),
		zap.String("memo_type", txn.MemoType),
		zap.String("memo", txn.Memo),
	)
	return e.registerWithCustody(c)
}

// notify_offchain_funds_received

func (e *Engine) validateNotifyOffchainFundsReceived(c *call) error {
	return e.validateReceivedAmounts(c.params, c.txn)
}

func (e *Engine) applyNotifyOffchainFundsReceived(c *call) error {
	setExternalTransactionID(c)
	if c.params.FundsReceivedAt != nil {
		c.changes.setTime(&c.txn.TransferReceivedAt, *c.params.FundsReceivedAt, FieldTransferReceivedAt)
	}
	markFundsReceived(c)
	applyReceivedAmounts(c)
	return e.registerWithCustody(c)
}

// notify_onchain_funds_received

func (e *Engine) validateNotifyOnchainFundsReceived(c *call) error {
	if err := requireStellarTransactionID(c); err != nil {
		return err
	}
	return e.validateReceivedAmounts(c.params, c.txn)
}

func (e *Engine) applyNotifyOnchainFundsReceived(c *call) error {
	lt, ops, err := e.recordStellarTransaction(c)
	if err != nil {
		return err
	}
	if c.txn.Protocol() == domain.ProtocolSEP31 {
		from := lt.SourceAccount
		if len(ops) > 0 && ops[0].SourceAccount != "" {
			from = ops[0].SourceAccount
		}
		c.changes.setString(&c.txn.FromAccount, from, FieldFromAccount)
	}
	applyReceivedAmounts(c)
	markFundsReceived(c)
	return nil
}

// recordStellarTransaction fetches the ledger transaction named in the request
// and stores it on the anchor transaction.
func (e *Engine) recordStellarTransaction(c *call) (*ledger.Transaction, []ledger.Operation, error) {
	id := strings.TrimSpace(c.params.StellarTransactionID)
	lt, ops, err := e.ledger.GetTransaction(c.ctx, id)
	if err != nil {
		zap.L().Error("failed to retrieve stellar transaction",
			zap.String("transaction_id", c.txn.ID),
			zap.String("stellar_transaction_id", id),
			zap.Error(err),
		)
		return nil, nil, InternalError(fmt.Sprintf("Failed to retrieve Stellar transaction by ID[%s]", id), err)
	}
	c.txn.UpsertStellarTransaction(ledger.ToStellarTransaction(lt, ops))
	c.changes.mark(FieldStellarTransactions)
	return lt, ops, nil
}

// notify_onchain_funds_sent

func (e *Engine) applyNotifyOnchainFundsSent(c *call) error {
	_, _, err := e.recordStellarTransaction(c)
	return err
}

// notify_offchain_funds_sent

func (e *Engine) applyNotifyOffchainFundsSent(c *call) error {
	setExternalTransactionID(c)
	if c.txn.Kind.IsDeposit() {
		if c.params.FundsSentAt != nil {
			c.changes.setTime(&c.txn.TransferReceivedAt, *c.params.FundsSentAt, FieldTransferReceivedAt)
		}
		markFundsReceived(c)
	}
	return nil
}

// do_stellar_payment

func (e *Engine) nextDoStellarPayment(c *call) (domain.Status, error) {
	ok, err := e.ledger.IsTrustlineConfigured(c.ctx, c.txn.ToAccount, c.txn.AmountOut.Asset)
	if err != nil {
		zap.L().Warn("trustline check failed, assuming it is not configured",
			zap.String("transaction_id", c.txn.ID),
			zap.String("account", c.txn.ToAccount),
			zap.Error(err),
		)
		ok = false
	}
	c.trustlineConfigured = ok
	if ok {
		return pendingStellar, nil
	}
	return pendingTrust, nil
}

func (e *Engine) applyDoStellarPayment(c *call) error {
	if c.trustlineConfigured {
		if _, err := e.custody.CreatePayment(c.ctx, c.txn.ID); err != nil {
			return custodyError("create payment", c.txn.ID, err)
		}
		return nil
	}
	err := c.q.CreatePendingTrust(c.ctx, repository.PendingTrust{
		ID:        c.txn.ID,
		Asset:     c.txn.AmountOut.Asset,
		Account:   c.txn.ToAccount,
		CreatedAt: c.now,
	})
	if err != nil {
		return InternalError("Failed to save pending trust", err)
	}
	return nil
}

// do_stellar_refund

func (e *Engine) validateDoStellarRefund(c *call) error {
	if err := e.requireCustody(MethodDoStellarRefund)(c); err != nil {
		return err
	}
	r := c.params.Refund
	if r == nil {
		return InvalidParams("refund is required")
	}
	if err := e.validateRefundParam(r, c.txn); err != nil {
		return err
	}
	scale, err := e.amountInScale(c.txn)
	if err != nil {
		return err
	}
	p := refundPayment(r, domain.RefundPaymentStellar)
	total, err := c.txn.Refunds.TotalWith(&p, scale)
	if err != nil {
		return InvalidParams("refund amounts are invalid")
	}
	_, err = refundStatus(total, c.txn.AmountIn.Amount, scale)
	return err
}

func (e *Engine) applyDoStellarRefund(c *call) error {
	r, txn := c.params.Refund, c.txn
	_, err := e.custody.CreateRefund(c.ctx, txn.ID, custody.RefundRequest{
		Amount:         r.Amount.Amount,
		AmountAsset:    r.Amount.Asset,
		AmountFee:      r.AmountFee.Amount,
		AmountFeeAsset: r.AmountFee.Asset,
		Memo:           txn.Memo,
		MemoType:       txn.MemoType,
	})
	if err != nil {
		return custodyError("create refund", txn.ID, err)
	}
	return nil
}

// notify_refund_pending

func (e *Engine) validateNotifyRefundPending(c *call) error {
	if !c.txn.Kind.IsDeposit() {
		return nil
	}
	r := c.params.Refund
	if r == nil {
		return InvalidParams("refund is required")
	}
	if err := e.validateRefundParam(r, c.txn); err != nil {
		return err
	}
	scale, err := e.amountInScale(c.txn)
	if err != nil {
		return err
	}
	p := refundPayment(r, domain.RefundPaymentExternal)
	total, err := c.txn.Refunds.TotalWith(&p, scale)
	if err != nil {
		return InvalidParams("refund amounts are invalid")
	}
	_, err = refundStatus(total, c.txn.AmountIn.Amount, scale)
	return err
}

func (e *Engine) applyNotifyRefundPending(c *call) error {
	if !c.txn.Kind.IsDeposit() {
		return nil
	}
	scale, err := e.amountInScale(c.txn)
	if err != nil {
		return err
	}
	if err := upsertRefund(c.txn, refundPayment(c.params.Refund, domain.RefundPaymentExternal), scale); err != nil {
		return InvalidParams("refund amounts are invalid")
	}
	c.changes.mark(FieldRefunds)
	return nil
}

// notify_refund_sent

func (e *Engine) validateNotifyRefundSent(c *call) error {
	p, txn := c.params, c.txn
	recorded := txn.Refunds != nil && len(txn.Refunds.Payments) > 0
	switch txn.Protocol() {
	case domain.ProtocolSEP6, domain.ProtocolSEP24:
		if p.Refund == nil && (txn.Status == pendingAnchor || !recorded) {
			return InvalidParams("refund is required")
		}
	case domain.ProtocolSEP31:
		if p.Refund == nil {
			return InvalidParams("refund is required")
		}
		if txn.Status == pendingReceiver && recorded {
			return invalidRequestf("Multiple refunds aren't supported for kind[%s], protocol[%s] and action[%s]",
				domain.KindReceive, domain.ProtocolSEP31, MethodNotifyRefundSent)
		}
	}
	if p.Refund != nil {
		return e.validateRefundParam(p.Refund, txn)
	}
	return nil
}

func (e *Engine) nextNotifyRefundSent(c *call) (domain.Status, error) {
	txn, r := c.txn, c.params.Refund
	scale, err := e.amountInScale(txn)
	if err != nil {
		return "", err
	}

	var payment *domain.RefundPayment
	if r != nil {
		p := refundPayment(r, refundIDType(txn))
		payment = &p
	}

	var total decimal.Decimal
	switch {
	case txn.Protocol() == domain.ProtocolSEP31:
		total, err = (*domain.Refunds)(nil).TotalWith(payment, scale)
	case txn.Refunds == nil || len(txn.Refunds.Payments) == 0:
		total, err = (*domain.Refunds)(nil).TotalWith(payment, scale)
	case txn.Status == pendingAnchor || payment == nil:
		total, err = txn.Refunds.TotalWith(payment, scale)
	default:
		// outside pending_anchor the refund must confirm one sent earlier
		if _, ok := txn.Refunds.Find(payment.ID); !ok {
			return "", InvalidParams("Invalid refund id")
		}
		total, err = txn.Refunds.TotalWith(payment, scale)
	}
	if err != nil {
		return "", InvalidParams("refund amounts are invalid")
	}

	next, err := refundStatus(total, txn.AmountIn.Amount, scale)
	if err != nil {
		return "", err
	}
	if next == pendingAnchor && txn.Protocol() == domain.ProtocolSEP31 {
		next = pendingReceiver
	}
	return next, nil
}

func (e *Engine) applyNotifyRefundSent(c *call) error {
	r := c.params.Refund
	if r == nil {
		return nil
	}
	scale, err := e.amountInScale(c.txn)
	if err != nil {
		return err
	}
	p := refundPayment(r, refundIDType(c.txn))
	if c.txn.Protocol() == domain.ProtocolSEP31 {
		err = replaceRefunds(c.txn, p, scale)
	} else {
		err = upsertRefund(c.txn, p, scale)
	}
	if err != nil {
		return InvalidParams("refund amounts are invalid")
	}
	c.changes.mark(FieldRefunds)
	return nil
}

// notify_interactive_flow_completed

func (e *Engine) validateNotifyInteractiveFlowCompleted(c *call) error {
	p := c.params
	switch {
	case p.AmountIn == nil:
		return InvalidParams("amount_in is required")
	case p.AmountOut == nil:
		return InvalidParams("amount_out is required")
	case p.AmountFee == nil:
		return InvalidParams("amount_fee is required")
	}
	in, out := offLedger, onLedger
	if c.txn.Kind.IsWithdrawal() {
		in, out = onLedger, offLedger
	}
	if err := e.validateAmountParam("amount_in", p.AmountIn, false, in); err != nil {
		return err
	}
	if err := e.validateAmountParam("amount_out", p.AmountOut, false, out); err != nil {
		return err
	}
	if err := e.validateAmountParam("amount_fee", p.AmountFee, true, in); err != nil {
		return err
	}
	return e.validateExpected(p.AmountExpected, p.AmountIn, c.txn)
}

func applyNotifyInteractiveFlowCompleted(c *call) error {
	applyRequestedAmounts(c)
	return nil
}

// notify_amounts_updated

func (e *Engine) validateNotifyAmountsUpdated(c *call) error {
	p, txn := c.params, c.txn
	if (p.AmountFee == nil) == (p.FeeDetails == nil) {
		return InvalidParams("Either amount_fee or fee_details must be set")
	}
	if p.AmountOut == nil {
		return InvalidParams("amount_out is required")
	}
	if err := e.validateAgainst("amount_out", p.AmountOut, txn.AmountOut.Asset, true); err != nil {
		return err
	}
	if err := e.validateAgainst("amount_fee", p.AmountFee, txn.AmountFee.Asset, true); err != nil {
		return err
	}
	return e.validateFeeDetails(p.FeeDetails, txn, anySide)
}

func applyNotifyAmountsUpdated(c *call) error {
	applyReceivedAmounts(c)
	return nil
}

// notify_amounts_assets_updated

func (e *Engine) validateNotifyAmountsAssetsUpdated(c *call) error {
	p := c.params
	switch {
	case p.AmountIn == nil:
		return InvalidParams("amount_in is required")
	case p.AmountOut == nil:
		return InvalidParams("amount_out is required")
	case p.AmountFee == nil:
		return InvalidParams("amount_fee is required")
	}
	if err := e.validateAmountParam("amount_in", p.AmountIn, false, anySide); err != nil {
		return err
	}
	if err := e.validateAmountParam("amount_out", p.AmountOut, false, anySide); err != nil {
		return err
	}
	return e.validateAmountParam("amount_fee", p.AmountFee, true, anySide)
}

func applyNotifyAmountsAssetsUpdated(c *call) error {
	p, txn, ch := c.params, c.txn, c.changes
	ch.setAmount(&txn.AmountIn, p.AmountIn.toDomain(), FieldAmountIn)
	ch.setAmount(&txn.AmountOut, p.AmountOut.toDomain(), FieldAmountOut)
	ch.setAmount(&txn.AmountFee, p.AmountFee.toDomain(), FieldAmountFee)
	return nil
}

// notify_customer_info_updated

func (e *Engine) validateNotifyCustomerInfoUpdated(c *call) error {
	if c.params.CustomerID != "" && e.customers == nil {
		return InternalError("Customer integration is not configured", nil)
	}
	return nil
}

func (e *Engine) nextNotifyCustomerInfoUpdated(c *call) (domain.Status, error) {
	ready := pendingAnchor
	if c.txn.Protocol() == domain.ProtocolSEP31 {
		ready = pendingReceiver
	}
	if c.params.CustomerID == "" {
		return ready, nil
	}
	cust, err := e.customers.GetCustomer(c.ctx, customer.Lookup{
		ID:            c.params.CustomerID,
		Type:          c.params.CustomerType,
		TransactionID: c.txn.ID,
	})
	if err != nil {
		return "", InternalError(fmt.Sprintf("Failed to retrieve customer[%s]", c.params.CustomerID), err)
	}
	c.customer = &customerUpdate{ID: cust.ID, Status: string(cust.Status)}
	switch cust.Status {
	case customer.StatusNeedsInfo:
		return pendingCustomerInfoUpdate, nil
	case customer.StatusRejected:
		return domain.StatusError, nil
	default:
		return ready, nil
	}
}

func (e *Engine) applyNotifyCustomerInfoUpdated(c *call) error {
	if c.customer == nil {
		return nil
	}
	c.extra = append(c.extra, event.Event{
		ID:       e.newID(),
		Type:     event.TypeCustomerUpdated,
		Sep:      customerEventSep,
		Customer: &event.Customer{ID: c.customer.ID, Status: c.customer.Status},
	})
	return nil
}

// notify_transaction_on_hold

func applyNotifyTransactionOnHold(c *call) error {
	markFundsReceived(c)
	return nil
}

// notify_trust_set

func (e *Engine) nextNotifyTrustSet(c *call) (domain.Status, error) {
	if e.CustodyEnabled() && *c.params.Success {
		return pendingStellar, nil
	}
	return pendingAnchor, nil
}

func (e *Engine) applyNotifyTrustSet(c *call) error {
	if !e.CustodyEnabled() || !*c.params.Success {
		return nil
	}
	if _, err := e.custody.CreatePayment(c.ctx, c.txn.ID); err != nil {
		return custodyError("create payment", c.txn.ID, err)
	}
	return nil
}
