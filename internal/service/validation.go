package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ayo6706/anchor-platform/internal/asset"
	"github.com/ayo6706/anchor-platform/internal/domain"
	"github.com/shopspring/decimal"
)

// direction constrains which side of the ledger an asset must live on.
type direction int

const (
	anySide direction = iota
	onLedger
	offLedger
)

func checkDirection(field, assetID string, want direction) error {
	switch want {
	case onLedger:
		if !domain.IsStellarAsset(assetID) {
			return invalidParamsf("%s.asset should be stellar asset", field)
		}
	case offLedger:
		if domain.IsStellarAsset(assetID) {
			return invalidParamsf("%s.asset should be non-stellar asset", field)
		}
	}
	return nil
}

// validateAmount checks value and asset of one amount field. Fee fields pass allowZero.
func (e *Engine) validateAmount(field string, a domain.Amount, allowZero bool) (asset.Info, error) {
	value := strings.TrimSpace(a.Amount)
	d, err := domain.ParseAmount(value)
	if err != nil {
		return asset.Info{}, invalidParamsf("%s.amount is invalid", field)
	}
	if allowZero {
		if d.IsNegative() {
			return asset.Info{}, invalidParamsf("%s.amount should be non-negative", field)
		}
	} else if !d.IsPositive() {
		return asset.Info{}, invalidParamsf("%s.amount should be positive", field)
	}
	if strings.TrimSpace(a.Asset) == "" {
		return asset.Info{}, invalidParamsf("%s.asset cannot be empty", field)
	}
	info, err := e.assets.GetAsset(a.Asset)
	if err != nil {
		if errors.Is(err, asset.ErrAssetNotFound) {
			return asset.Info{}, invalidParamsf("'%s' is not a supported asset.", a.Asset)
		}
		return asset.Info{}, InternalError("Failed to resolve asset", err)
	}
	if !domain.RoundHalfDown(d, info.SignificantDecimals).Equal(d) {
		return asset.Info{}, invalidParamsf("%s.amount has more than %d decimals for asset '%s'", field, info.SignificantDecimals, a.Asset)
	}
	return info, nil
}

// validateAmountParam validates an optional request amount with a direction constraint.
func (e *Engine) validateAmountParam(field string, a *AmountParam, allowZero bool, want direction) error {
	if a == nil {
		return nil
	}
	if err := checkDirection(field, a.Asset, want); err != nil {
		return err
	}
	_, err := e.validateAmount(field, a.toDomain(), allowZero)
	return err
}

// validateAgainst validates an optional request amount using the asset already on the transaction.
func (e *Engine) validateAgainst(field string, a *AmountParam, txnAsset string, allowZero bool) error {
	if a == nil {
		return nil
	}
	_, err := e.validateAmount(field, domain.Amount{Amount: a.Amount, Asset: txnAsset}, allowZero)
	return err
}

func (e *Engine) validateFeeDetails(fee *FeeDetailsParam, txn *domain.Transaction, want direction) error {
	if fee == nil {
		return nil
	}
	if err := checkDirection("fee_details", fee.Asset, want); err != nil {
		return err
	}
	info, err := e.validateAmount("fee_details", domain.Amount{Amount: fee.Total, Asset: fee.Asset}, true)
	if err != nil {
		return err
	}
	if txn != nil && txn.AmountFee.Asset != "" && txn.AmountFee.Asset != fee.Asset {
		return InvalidParams("fee_details.asset does not match transaction amount_fee asset")
	}
	if len(fee.Details) == 0 {
		return nil
	}
	sum := decimal.Zero
	for i, item := range fee.Details {
		d, err := domain.ParseAmount(item.Amount)
		if err != nil {
			return invalidParamsf("fee_details.details[%d].amount is invalid", i)
		}
		sum = sum.Add(d)
	}
	total, _ := domain.ParseAmount(fee.Total)
	if !domain.RoundHalfDown(total, info.SignificantDecimals).Equal(domain.RoundHalfDown(sum, info.SignificantDecimals)) {
		return InvalidParams("fee_details.total is not equal to the sum of (fee_details.details.amount)")
	}
	return nil
}

// validateExpected checks amount_expected against the asset of amount_in.
func (e *Engine) validateExpected(expected *ExpectedAmountParam, amountIn *AmountParam, txn *domain.Transaction) error {
	if expected == nil {
		return nil
	}
	assetID := txn.AmountIn.Asset
	if amountIn != nil {
		assetID = amountIn.Asset
	}
	_, err := e.validateAmount("amount_expected", domain.Amount{Amount: expected.Amount, Asset: assetID}, false)
	return err
}

// validateAmountOutRequired reports a missing amount_out for non-exchange or firm-quote transactions.
func validateAmountOutRequired(p *Params, txn *domain.Transaction) error {
	if p.AmountOut != nil || txn.AmountOut.Amount != "" {
		return nil
	}
	switch txn.Protocol() {
	case domain.ProtocolSEP6, domain.ProtocolSEP24:
		if txn.QuoteID() != "" {
			return InvalidParams("amount_out is required for transactions with firm quotes")
		}
		if txn.AmountIn.Asset == txn.AmountOut.Asset {
			return InvalidParams("amount_out is required for non-exchange transactions")
		}
	}
	return nil
}

// validateFundsRequest holds the amount rules shared by request_offchain_funds and
// request_onchain_funds. in is the side amount_in must live on.
func (e *Engine) validateFundsRequest(p *Params, txn *domain.Transaction, in direction) error {
	none := p.AmountIn == nil && p.AmountFee == nil && p.FeeDetails == nil && p.AmountExpected == nil
	all := p.AmountIn != nil && (p.AmountFee != nil || p.FeeDetails != nil)
	if !none && !all {
		return InvalidParams("All (amount_out is optional) or none of the amount_in, amount_out, and (fee_details or amount_fee) should be set")
	}
	if p.AmountFee != nil && p.FeeDetails != nil {
		return InvalidParams("Either fee_details or amount_fee should be set")
	}
	out := offLedger
	if in == offLedger {
		out = onLedger
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
	if err := e.validateFeeDetails(p.FeeDetails, txn, in); err != nil {
		return err
	}
	if err := e.validateExpected(p.AmountExpected, p.AmountIn, txn); err != nil {
		return err
	}
	if p.AmountIn == nil && txn.AmountIn.Amount == "" {
		return InvalidParams("amount_in is required")
	}
	if err := validateAmountOutRequired(p, txn); err != nil {
		return err
	}
	if p.AmountFee == nil && p.FeeDetails == nil && txn.AmountFee.Amount == "" {
		return InvalidParams("fee_details or amount_fee is required")
	}
	return nil
}

// validateReceivedAmounts accepts all, none or only amount_in, each checked
// against the assets already recorded on the transaction.
func (e *Engine) validateReceivedAmounts(p *Params, txn *domain.Transaction) error {
	hasFee := p.AmountFee != nil || p.FeeDetails != nil
	none := p.AmountIn == nil && p.AmountOut == nil && !hasFee
	all := p.AmountIn != nil && p.AmountOut != nil && hasFee
	onlyIn := p.AmountIn != nil && p.AmountOut == nil && !hasFee
	if !none && !all && !onlyIn {
		return InvalidParams("Invalid amounts combination provided: all, none or only amount_in should be set")
	}
	if p.AmountFee != nil && p.FeeDetails != nil {
		return InvalidParams("Either amount_fee or fee_details should be set")
	}
	if err := e.validateAgainst("amount_in", p.AmountIn, txn.AmountIn.Asset, false); err != nil {
		return err
	}
	if err := e.validateAgainst("amount_out", p.AmountOut, txn.AmountOut.Asset, false); err != nil {
		return err
	}
	if err := e.validateAgainst("amount_fee", p.AmountFee, txn.AmountFee.Asset, true); err != nil {
		return err
	}
	return e.validateFeeDetails(p.FeeDetails, txn, anySide)
}

// validateRefundParam checks a refund against the transaction's amount_in asset.
func (e *Engine) validateRefundParam(r *RefundParam, txn *domain.Transaction) error {
	if r.Amount == nil {
		return InvalidParams("refund.amount is required")
	}
	if r.AmountFee == nil {
		return InvalidParams("refund.amount_fee is required")
	}
	if _, err := e.validateAmount("refund.amount", domain.Amount{Amount: r.Amount.Amount, Asset: txn.AmountIn.Asset}, false); err != nil {
		return err
	}
	if _, err := e.validateAmount("refund.amount_fee", domain.Amount{Amount: r.AmountFee.Amount, Asset: txn.AmountIn.Asset}, true); err != nil {
		return err
	}
	if r.Amount.Asset != txn.AmountIn.Asset {
		return InvalidParams("refund.amount.asset does not match transaction amount_in_asset")
	}
	if r.AmountFee.Asset != txn.AmountIn.Asset {
		return InvalidParams("refund.amount_fee.asset does not match transaction amount_in_asset")
	}
	return nil
}

// amountInScale returns the significant decimals of the transaction's amount_in asset.
func (e *Engine) amountInScale(txn *domain.Transaction) (int32, error) {
	info, err := e.assets.GetAsset(txn.AmountIn.Asset)
	if err != nil {
		return 0, InternalError(fmt.Sprintf("Asset[%s] of transaction[%s] is not registered", txn.AmountIn.Asset, txn.ID), err)
	}
	return info.SignificantDecimals, nil
}
