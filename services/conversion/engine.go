package conversion

import (
	"context"
	"errors"
	"fmt"

	"smallbiznis-affiliate/pkg/logger"
	"smallbiznis-affiliate/services/commission"
	"smallbiznis-affiliate/services/internal/errkind"
	"smallbiznis-affiliate/services/ledger"
	"smallbiznis-affiliate/services/referral"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// LedgerAppender writes one ledger entry inside the caller's transaction.
type LedgerAppender interface {
	Append(ctx context.Context, tx *gorm.DB, p ledger.EntryParams) (*ledger.LedgerEntry, error)
}

// Engine turns a pending conversion into commission ledger entries for the
// direct affiliate and its upline.
type Engine struct {
	db     *gorm.DB
	ledger LedgerAppender
	walker *referral.Walker
	policy commission.Policy
}

type EngineParams struct {
	fx.In
	DB     *gorm.DB
	Ledger *ledger.Service
	Walker *referral.Walker
	Policy commission.Policy
}

func NewEngine(p EngineParams) *Engine {
	return &Engine{
		db:     p.DB,
		ledger: p.Ledger,
		walker: p.Walker,
		policy: p.Policy,
	}
}

// Distribute pays out conv at most once. Claiming the conversion, crediting
// the direct affiliate and crediting every payable upline tier happen in one
// transaction; on any error nothing is written and the conversion stays
// pending. Storage errors are not retried here.
func (e *Engine) Distribute(ctx context.Context, conv *Conversion) (DistributionResult, error) {
	if conv == nil {
		return DistributionResult{}, errkind.InvalidArgument("conversion is required")
	}

	opts := append(logger.TraceFields(ctx),
		zap.String("conversion_id", conv.ID),
		zap.String("affiliate_id", conv.AffiliateID),
	)

	if conv.Status != StatusPending {
		return DistributionResult{}, errkind.AlreadyProcessed(fmt.Sprintf("conversion %s is %s", conv.ID, conv.Status))
	}

	var shares []Share
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		shares = shares[:0]

		if err := claim(ctx, tx, conv.ID); err != nil {
			return err
		}

		conversionID := conv.ID
		credit := func(share Share) error {
			_, err := e.ledger.Append(ctx, tx, ledger.EntryParams{
				AccountID:    share.AccountID,
				ConversionID: &conversionID,
				Tier:         share.Tier,
				Type:         ledger.TypeCommission,
				Amount:       share.Amount,
				Description:  fmt.Sprintf("Tier %d commission for conversion %s", share.Tier, conv.Code),
				Metadata:     map[string]any{"conversion_code": conv.Code, "gross_amount": conv.Amount.String()},
			})
			if err != nil {
				return err
			}
			shares = append(shares, share)
			return nil
		}

		if err := credit(Share{AccountID: conv.AffiliateID, Tier: 0, Amount: conv.Amount}); err != nil {
			return err
		}

		upline, err := e.walker.WithTrx(tx).UplineOf(ctx, conv.AffiliateID, e.policy.MaxTiers())
		if err != nil {
			return err
		}

		for i, acc := range upline {
			tier := i + 1
			amount, ok := e.policy.Share(tier, conv.Amount)
			if !ok {
				continue
			}
			if err := credit(Share{AccountID: acc.ID, Tier: tier, Amount: amount}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		distributions.WithLabelValues("failed").Inc()
		if errors.Is(err, errkind.ErrReferralCycleDetected) || errors.Is(err, errkind.ErrUnknownAffiliate) {
			zap.L().With(opts...).Error("distribution needs manual intervention", zap.Error(err))
		} else {
			zap.L().With(opts...).Warn("distribution rolled back", zap.Error(err))
		}
		return DistributionResult{}, errkind.StorageFailure(err)
	}

	conv.Status = StatusApproved
	distributions.WithLabelValues("ok").Inc()
	sharesWritten.Add(float64(len(shares)))

	result := DistributionResult{ConversionID: conv.ID, Shares: shares}
	zap.L().With(opts...).Info("conversion distributed",
		zap.Int("shares", len(shares)),
		zap.String("total", result.Total().String()),
	)
	return result, nil
}

// claim flips the conversion from pending to approved. Losing the race (or a
// stale copy of an already processed conversion) affects no rows.
func claim(ctx context.Context, tx *gorm.DB, id string) error {
	res := tx.WithContext(ctx).Model(&Conversion{}).
		Where("id = ? AND status = ?", id, StatusPending).
		Update("status", StatusApproved)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errkind.AlreadyProcessed("conversion " + id + " is not pending")
	}
	return nil
}
