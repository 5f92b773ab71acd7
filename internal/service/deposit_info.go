package service

import (
	"context"
	"encoding/binary"
	"fmt"
	"strconv"

	"github.com/ayo6706/anchor-platform/internal/config"
	"github.com/ayo6706/anchor-platform/internal/domain"
	"github.com/google/uuid"
)

// DepositInfo is where the user sends on-ledger funds.
type DepositInfo struct {
	Account  string
	Memo     string
	MemoType string
}

// DepositInfoGenerator produces the deposit info of a transaction awaiting on-ledger funds.
type DepositInfoGenerator interface {
	// AcceptsSupplied reports whether the caller provides memo and destination itself.
	AcceptsSupplied() bool
	Generate(ctx context.Context, txn *domain.Transaction, supplied *DepositInfo) (DepositInfo, error)
}

// NewDepositInfoGenerator builds the generator configured for one protocol.
func NewDepositInfoGenerator(kind string, assets AssetService, distributionAccount string) (DepositInfoGenerator, error) {
	switch kind {
	case config.DepositInfoSelf:
		return &SelfGenerator{assets: assets, distributionAccount: distributionAccount}, nil
	case config.DepositInfoNone:
		return NoneGenerator{}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownGenerator, kind)
	}
}

// SelfGenerator assigns the anchor's distribution account and an id memo
// derived from the transaction id, so retried calls produce the same memo.
type SelfGenerator struct {
	assets              AssetService
	distributionAccount string
}

func (g *SelfGenerator) AcceptsSupplied() bool { return false }

func (g *SelfGenerator) Generate(_ context.Context, txn *domain.Transaction, _ *DepositInfo) (DepositInfo, error) {
	account := g.distributionAccount
	if info, err := g.assets.GetAsset(txn.AmountIn.Asset); err == nil && info.DistributionAccount != "" {
		account = info.DistributionAccount
	}
	if account == "" {
		return DepositInfo{}, fmt.Errorf("no distribution account for asset %s", txn.AmountIn.Asset)
	}
	return DepositInfo{
		Account:  account,
		Memo:     IDMemo(txn.ID),
		MemoType: domain.MemoTypeID,
	}, nil
}

// IDMemo maps a transaction id to a stable numeric memo.
func IDMemo(txnID string) string {
	u := uuid.NewSHA1(uuid.NameSpaceOID, []byte(txnID))
	return strconv.FormatUint(binary.BigEndian.Uint64(u[:8])>>1, 10)
}

// NoneGenerator passes through the memo and destination supplied by the caller.
type NoneGenerator struct{}

func (NoneGenerator) AcceptsSupplied() bool { return true }

func (NoneGenerator) Generate(_ context.Context, _ *domain.Transaction, supplied *DepositInfo) (DepositInfo, error) {
	if supplied == nil {
		return DepositInfo{}, fmt.Errorf("deposit info must be supplied by the caller")
	}
	return *supplied, nil
}
