package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ayo6706/anchor-platform/internal/domain"
	"github.com/ayo6706/anchor-platform/internal/lock"
	"github.com/ayo6706/anchor-platform/internal/observability"
	"github.com/ayo6706/anchor-platform/internal/repository"
	"go.uber.org/zap"
)

// TrustlineService settles deposits parked in pending_trust once the
// destination account trusts the asset.
type TrustlineService struct {
	engine  *Engine
	timeout time.Duration
}

func NewTrustlineService(engine *Engine, timeout time.Duration) *TrustlineService {
	return &TrustlineService{engine: engine, timeout: timeout}
}

// TrustlineResult counts what one batch did with its rows.
type TrustlineResult struct {
	Settled int
	Waiting int
	Dropped int
}

// ProcessPendingTrusts checks up to batchSize pending-trust rows. A configured
// trustline is settled through Engine.SettleTrust, which submits the custody
// payment and moves the transaction to pending_stellar.
func (s *TrustlineService) ProcessPendingTrusts(ctx context.Context, batchSize int32) (TrustlineResult, error) {
	var res TrustlineResult
	e := s.engine
	rows, err := e.store.Queries().ListPendingTrusts(ctx, batchSize)
	if err != nil {
		return res, fmt.Errorf("list pending trusts: %w", err)
	}
	observability.SetPendingTrustQueueSize(len(rows))

	registered := make(map[string]struct{})
	for _, a := range e.assets.ListStellarAssets() {
		registered[a.ID] = struct{}{}
	}

	now := e.now()
	var errs []error
	for _, row := range rows {
		if _, ok := registered[row.Asset]; !ok {
			zap.L().Warn("dropping pending trust for unregistered asset",
				zap.String("transaction_id", row.ID),
				zap.String("asset", row.Asset),
			)
			errs = appendErr(errs, s.drop(ctx, row.ID))
			res.Dropped++
			continue
		}
		if s.timeout > 0 && now.Sub(row.CreatedAt) > s.timeout {
			zap.L().Warn("pending trust timed out",
				zap.String("transaction_id", row.ID),
				zap.String("account", row.Account),
				zap.Duration("age", now.Sub(row.CreatedAt)),
			)
			errs = appendErr(errs, s.drop(ctx, row.ID))
			res.Dropped++
			continue
		}

		ok, err := e.ledger.IsTrustlineConfigured(ctx, row.Account, row.Asset)
		if err != nil {
			zap.L().Warn("trustline check failed",
				zap.String("transaction_id", row.ID),
				zap.String("account", row.Account),
				zap.Error(err),
			)
			res.Waiting++
			continue
		}
		if !ok {
			res.Waiting++
			continue
		}

		outcome, err := s.settle(ctx, row)
		if err != nil {
			errs = append(errs, err)
		}
		switch outcome {
		case trustSettled:
			res.Settled++
		case trustDiscarded:
			res.Dropped++
		default:
			res.Waiting++
		}
	}
	return res, errors.Join(errs...)
}

type trustOutcome int

const (
	trustRetry trustOutcome = iota
	trustSettled
	trustDiscarded
)

// settle moves the transaction of row out of pending_trust. The row is only
// discarded when the transaction is gone or has already left pending_trust.
func (s *TrustlineService) settle(ctx context.Context, row repository.PendingTrust) (trustOutcome, error) {
	_, err := s.engine.SettleTrust(ctx, row.ID)
	switch {
	case err == nil:
		return trustSettled, s.drop(ctx, row.ID)
	case errors.Is(err, lock.ErrBusy):
		return trustRetry, nil
	}

	txn, getErr := s.engine.store.Queries().GetTransaction(ctx, row.ID)
	switch {
	case errors.Is(getErr, repository.ErrNotFound):
		zap.L().Warn("discarding pending trust of missing transaction", zap.String("transaction_id", row.ID))
		return trustDiscarded, s.drop(ctx, row.ID)
	case getErr != nil:
		return trustRetry, errors.Join(
			fmt.Errorf("settle pending trust %s: %w", row.ID, err),
			fmt.Errorf("reload transaction %s: %w", row.ID, getErr),
		)
	case txn.Status != domain.StatusPendingTrust:
		zap.L().Info("discarding pending trust of settled transaction",
			zap.String("transaction_id", row.ID),
			zap.String("status", string(txn.Status)),
		)
		return trustDiscarded, s.drop(ctx, row.ID)
	}
	return trustRetry, fmt.Errorf("settle pending trust %s: %w", row.ID, err)
}

func (s *TrustlineService) drop(ctx context.Context, id string) error {
	if err := s.engine.store.Queries().DeletePendingTrust(ctx, id); err != nil {
		return fmt.Errorf("delete pending trust %s: %w", id, err)
	}
	return nil
}

func appendErr(errs []error, err error) []error {
	if err != nil {
		return append(errs, err)
	}
	return errs
}
