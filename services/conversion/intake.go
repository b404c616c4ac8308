package conversion

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"smallbiznis-affiliate/pkg/db/option"
	"smallbiznis-affiliate/pkg/db/pagination"
	"smallbiznis-affiliate/pkg/logger"
	"smallbiznis-affiliate/pkg/repository"
	"smallbiznis-affiliate/pkg/sequence"
	"smallbiznis-affiliate/services/account"
	"smallbiznis-affiliate/services/internal/errkind"
	"smallbiznis-affiliate/services/internal/money"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AffiliateResolver maps an affiliate code to its account.
type AffiliateResolver interface {
	Resolve(ctx context.Context, code string) (*account.Account, error)
}

type Service struct {
	db          *gorm.DB
	node        *snowflake.Node
	conversions repository.Repository[Conversion]
	resolver    AffiliateResolver
	codes       sequence.Generator
}

type ServiceParams struct {
	fx.In
	DB       *gorm.DB
	Node     *snowflake.Node
	Resolver *account.Resolver
	Codes    sequence.Generator `optional:"true"`
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:          p.DB,
		node:        p.Node,
		conversions: repository.ProvideStore[Conversion](p.DB),
		resolver:    p.Resolver,
		codes:       p.Codes,
	}
}

// Submit records a pending conversion for an active affiliate. An external
// order id is accepted at most once; the unique index on external_order_id
// settles concurrent submissions of the same order.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*Conversion, error) {
	opts := logger.TraceFields(ctx)

	if !req.Amount.IsPositive() {
		return nil, errkind.InvalidAmount("commission amount must be greater than zero")
	}
	if err := money.Check("commission amount", req.Amount); err != nil {
		return nil, err
	}

	acc, err := s.resolver.Resolve(ctx, req.AffiliateCode)
	if err != nil {
		return nil, err
	}
	if !acc.IsActive() {
		return nil, errkind.UnknownAffiliate("affiliate " + req.AffiliateCode + " is not active")
	}

	orderID := normalizeOrderID(req.ExternalOrderID)
	if orderID != nil {
		exist, err := s.conversions.FindOne(ctx, &Conversion{ExternalOrderID: orderID})
		if err != nil {
			zap.L().With(opts...).Error("failed to query conversion by order id", zap.Error(err))
			return nil, errkind.StorageFailure(err)
		}
		if exist != nil {
			conversionsDuplicate.Inc()
			return nil, duplicateOrder(*orderID)
		}
	}

	id := s.node.Generate().String()
	conv := &Conversion{
		ID:              id,
		Code:            s.nextCode(ctx, id),
		AffiliateID:     acc.ID,
		ExternalOrderID: orderID,
		Amount:          req.Amount,
		Status:          StatusPending,
	}

	if err := s.conversions.Create(ctx, conv); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			conversionsDuplicate.Inc()
			zap.L().With(opts...).Warn("concurrent duplicate order id", zap.Stringp("order_id", orderID))
			return nil, duplicateOrder(deref(orderID))
		}
		zap.L().With(opts...).Error("failed to create conversion", zap.Error(err))
		return nil, errkind.StorageFailure(err)
	}

	conversionsSubmitted.Inc()
	zap.L().With(opts...).Info("conversion accepted",
		zap.String("conversion_id", conv.ID),
		zap.String("affiliate_id", conv.AffiliateID),
		zap.String("amount", conv.Amount.String()),
	)
	return conv, nil
}

func (s *Service) nextCode(ctx context.Context, fallback string) string {
	if s.codes == nil {
		return fallback
	}
	code, err := s.codes.NextConversionCode(ctx)
	if err != nil {
		zap.L().With(logger.TraceFields(ctx)...).Warn("conversion code sequence unavailable", zap.Error(err))
		return fallback
	}
	return code
}

func (s *Service) Get(ctx context.Context, id string) (*Conversion, error) {
	conv, err := s.conversions.FindOne(ctx, &Conversion{ID: id})
	if err != nil {
		zap.L().With(logger.TraceFields(ctx)...).Error("failed to query conversion", zap.String("conversion_id", id), zap.Error(err))
		return nil, errkind.StorageFailure(err)
	}
	if conv == nil {
		return nil, errkind.NotFound("no conversion with id " + id)
	}
	return conv, nil
}

// Reverse cancels a pending conversion. Approved conversions have paid out
// and must be corrected with ledger adjustments instead.
func (s *Service) Reverse(ctx context.Context, id, reason string) (*Conversion, error) {
	conv, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if conv.Status != StatusPending {
		return nil, errkind.AlreadyProcessed(fmt.Sprintf("conversion %s is %s", id, conv.Status))
	}

	res := s.db.WithContext(ctx).Model(&Conversion{}).
		Where("id = ? AND status = ?", id, StatusPending).
		Updates(map[string]any{"status": StatusReversed, "reason": reason})
	if res.Error != nil {
		return nil, errkind.StorageFailure(res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, errkind.AlreadyProcessed("conversion " + id + " was processed concurrently")
	}

	conv.Status = StatusReversed
	conv.Reason = reason
	return conv, nil
}

// List pages through conversions, newest first.
func (s *Service) List(ctx context.Context, p ListParams) ([]*Conversion, *pagination.PageInfo, error) {
	page := pagination.Pagination{Cursor: p.Cursor, Limit: p.Limit}.Normalize()

	opts := []option.QueryOption{
		option.WithSortBy(option.QuerySortBy{SortBy: "id", OrderBy: "desc"}),
		option.WithLimit(page.Limit + 1),
	}
	if page.Cursor != "" {
		cursor, err := pagination.DecodeCursor(page.Cursor)
		if err != nil {
			return nil, nil, errkind.InvalidArgument(err.Error())
		}
		opts = append(opts, option.ApplyOperator(option.Condition{Field: "id", Operator: option.LT, Value: cursor.ID}))
	}

	conversions, err := s.conversions.Find(ctx, &Conversion{AffiliateID: p.AffiliateID, Status: p.Status}, opts...)
	if err != nil {
		zap.L().With(logger.TraceFields(ctx)...).Error("failed to list conversions", zap.Error(err))
		return nil, nil, errkind.StorageFailure(err)
	}

	conversions, info, err := pagination.Trim(conversions, page.Limit, func(c *Conversion) pagination.Cursor {
		return pagination.Cursor{ID: c.ID}
	})
	if err != nil {
		return nil, nil, errkind.StorageFailure(err)
	}
	return conversions, info, nil
}

func normalizeOrderID(id *string) *string {
	if id == nil {
		return nil
	}
	v := strings.TrimSpace(*id)
	if v == "" {
		return nil
	}
	return &v
}

func duplicateOrder(orderID string) error {
	return errkind.DuplicateConversion("a conversion for order " + orderID + " already exists")
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
