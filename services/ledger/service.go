package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"smallbiznis-affiliate/pkg/config"
	"smallbiznis-affiliate/pkg/db/option"
	"smallbiznis-affiliate/pkg/db/pagination"
	"smallbiznis-affiliate/pkg/logger"
	"smallbiznis-affiliate/pkg/repository"
	"smallbiznis-affiliate/pkg/sequence"
	"smallbiznis-affiliate/services/account"
	"smallbiznis-affiliate/services/internal/errkind"
	"smallbiznis-affiliate/services/internal/money"

	health "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Service struct {
	health.UnimplementedHealthServer

	db   *gorm.DB
	node *snowflake.Node

	loginBonus decimal.Decimal
	codes      sequence.Generator

	ledger   repository.Repository[LedgerEntry]
	accounts repository.Repository[account.Account]
}

type ServiceParams struct {
	fx.In
	DB     *gorm.DB
	Node   *snowflake.Node
	Config *config.Config
	Codes  sequence.Generator `optional:"true"`
}

func NewService(p ServiceParams) (*Service, error) {
	loginBonus := decimal.Zero
	if p.Config != nil && p.Config.Ledger.LoginBonusAmount != "" {
		v, err := decimal.NewFromString(p.Config.Ledger.LoginBonusAmount)
		if err != nil {
			return nil, fmt.Errorf("LEDGER.LOGIN_BONUS_AMOUNT: %w", err)
		}
		if v.IsNegative() || !money.Fits(v) {
			return nil, fmt.Errorf("LEDGER.LOGIN_BONUS_AMOUNT must be a non negative amount with at most %d decimal places, got %s", money.Scale, v)
		}
		loginBonus = v
	}

	return &Service{
		db:         p.DB,
		node:       p.Node,
		loginBonus: loginBonus,
		codes:      p.Codes,

		ledger:   repository.ProvideStore[LedgerEntry](p.DB),
		accounts: repository.ProvideStore[account.Account](p.DB),
	}, nil
}

// Append writes one entry inside tx and moves the cached balance of the
// account by the same amount. The account row stays locked until tx ends,
// which serializes the per-account chain. Withdrawals may not take the
// balance below zero.
func (s *Service) Append(ctx context.Context, tx *gorm.DB, p EntryParams) (*LedgerEntry, error) {
	if tx == nil {
		return nil, errkind.StorageFailure(errors.New("ledger append requires a transaction"))
	}
	if !validType(p.Type) {
		return nil, errkind.InvalidArgument("unsupported entry type " + p.Type)
	}
	if p.Amount.IsZero() {
		return nil, errkind.InvalidAmount("entry amount must not be zero")
	}
	if err := money.Check("entry amount", p.Amount); err != nil {
		return nil, err
	}

	opts := append(logger.TraceFields(ctx), zap.String("account_id", p.AccountID))

	acc, err := s.accounts.WithTrx(tx).FindOne(ctx, &account.Account{ID: p.AccountID}, option.WithLockingUpdate())
	if err != nil {
		zap.L().With(opts...).Error("failed to lock account", zap.Error(err))
		return nil, errkind.StorageFailure(err)
	}
	if acc == nil {
		return nil, errkind.UnknownAffiliate("no affiliate with id " + p.AccountID)
	}

	last, err := s.lastEntry(ctx, tx, p.AccountID)
	if err != nil {
		zap.L().With(opts...).Error("failed to query last entry", zap.Error(err))
		return nil, errkind.StorageFailure(err)
	}

	balance := acc.Balance.Add(p.Amount)
	if p.Type == TypeWithdrawal && balance.IsNegative() {
		return nil, errkind.InsufficientBalance(fmt.Sprintf("balance %s does not cover %s", acc.Balance, p.Amount.Neg()))
	}
	if err := money.Check("resulting balance", balance); err != nil {
		return nil, err
	}

	var metadata datatypes.JSON
	if len(p.Metadata) > 0 {
		b, err := json.Marshal(p.Metadata)
		if err != nil {
			return nil, errkind.InvalidArgument("metadata is not valid json: " + err.Error())
		}
		metadata = datatypes.JSON(b)
	}

	entry := &LedgerEntry{
		ID:           s.node.Generate().String(),
		AccountID:    p.AccountID,
		Sequence:     1,
		ConversionID: p.ConversionID,
		Tier:         p.Tier,
		Type:         p.Type,
		Status:       StatusCompleted,
		Amount:       p.Amount,
		ReferenceID:  p.ReferenceID,
		Description:  p.Description,
		Metadata:     metadata,
		PreviousHash: GenesisHash,
		CreatedAt:    entryTime(),
	}
	if last != nil {
		entry.Sequence = last.Sequence + 1
		entry.PreviousHash = last.Hash
	}
	entry.Hash = entry.GenerateHash()

	if err := s.ledger.WithTrx(tx).Create(ctx, entry); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			zap.L().With(opts...).Warn("duplicate ledger entry", zap.Error(err))
			return nil, errkind.DuplicateEntry("ledger entry already exists")
		}
		zap.L().With(opts...).Error("failed to insert ledger entry", zap.Error(err))
		return nil, errkind.StorageFailure(err)
	}

	if err := s.accounts.WithTrx(tx).Update(ctx, acc.ID, map[string]any{"balance": balance}); err != nil {
		zap.L().With(opts...).Error("failed to update cached balance", zap.Error(err))
		return nil, errkind.StorageFailure(err)
	}

	return entry, nil
}

func (s *Service) lastEntry(ctx context.Context, tx *gorm.DB, accountID string) (*LedgerEntry, error) {
	return s.ledger.WithTrx(tx).FindOne(ctx, &LedgerEntry{AccountID: accountID}, option.WithSortBy(
		option.QuerySortBy{
			SortBy:  "sequence",
			OrderBy: "desc",
			Allow:   map[string]bool{"sequence": true},
		},
	))
}

// post appends p in its own transaction. A reference id seen before is
// rejected up front; the unique index still guards concurrent replays.
func (s *Service) post(ctx context.Context, p EntryParams) (*LedgerEntry, error) {
	if p.ReferenceID != nil {
		exist, err := s.ledger.FindOne(ctx, &LedgerEntry{ReferenceID: p.ReferenceID})
		if err != nil {
			return nil, errkind.StorageFailure(err)
		}
		if exist != nil {
			zap.L().With(logger.TraceFields(ctx)...).Warn("reference_id already exists", zap.String("reference_id", *p.ReferenceID))
			return nil, errkind.DuplicateEntry("reference_id " + *p.ReferenceID + " already exists")
		}
	}

	var entry *LedgerEntry
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		e, err := s.Append(ctx, tx, p)
		if err != nil {
			return err
		}
		entry = e
		return nil
	})
	if err != nil {
		return nil, errkind.StorageFailure(err)
	}
	return entry, nil
}

func (s *Service) GrantBonus(ctx context.Context, accountID string, amount decimal.Decimal, referenceID, description string) (*LedgerEntry, error) {
	if !amount.IsPositive() {
		return nil, errkind.InvalidAmount("bonus amount must be greater than zero")
	}
	if referenceID == "" {
		return nil, errkind.InvalidArgument("reference_id is required for bonuses")
	}

	return s.post(ctx, EntryParams{
		AccountID:   accountID,
		Type:        TypeBonus,
		Amount:      amount,
		ReferenceID: &referenceID,
		Description: description,
	})
}

// GrantLoginBonus credits the configured login bonus once per account and UTC
// day. It returns (nil, nil) when the bonus is disabled.
func (s *Service) GrantLoginBonus(ctx context.Context, accountID string, day time.Time) (*LedgerEntry, error) {
	if !s.loginBonus.IsPositive() {
		return nil, nil
	}

	ref := LoginBonusReference(accountID, day)
	return s.post(ctx, EntryParams{
		AccountID:   accountID,
		Type:        TypeBonus,
		Amount:      s.loginBonus,
		ReferenceID: &ref,
		Description: "Daily login bonus",
		Metadata:    map[string]any{"day": day.UTC().Format("2006-01-02")},
	})
}

// Withdraw debits amount. An empty referenceID gets a fresh withdrawal code,
// so such a call is not idempotent.
func (s *Service) Withdraw(ctx context.Context, accountID string, amount decimal.Decimal, referenceID string) (*LedgerEntry, error) {
	if !amount.IsPositive() {
		return nil, errkind.InvalidAmount("withdrawal amount must be greater than zero")
	}
	if referenceID == "" {
		referenceID = s.withdrawalReference(ctx)
	}

	return s.post(ctx, EntryParams{
		AccountID:   accountID,
		Type:        TypeWithdrawal,
		Amount:      amount.Neg(),
		ReferenceID: &referenceID,
		Description: "Withdrawal",
	})
}

func (s *Service) withdrawalReference(ctx context.Context) string {
	if s.codes != nil {
		code, err := s.codes.NextWithdrawalCode(ctx)
		if err == nil {
			return code
		}
		zap.L().With(logger.TraceFields(ctx)...).Warn("withdrawal code sequence unavailable", zap.Error(err))
	}
	return "withdrawal:" + uuid.NewString()
}

// Adjust books an operator correction. Negative adjustments may leave the
// balance below zero, e.g. when clawing back a paid commission.
func (s *Service) Adjust(ctx context.Context, accountID string, amount decimal.Decimal, referenceID, description string) (*LedgerEntry, error) {
	if amount.IsZero() {
		return nil, errkind.InvalidAmount("adjustment amount must not be zero")
	}
	if referenceID == "" {
		return nil, errkind.InvalidArgument("reference_id is required for adjustments")
	}

	return s.post(ctx, EntryParams{
		AccountID:   accountID,
		Type:        TypeAdjustment,
		Amount:      amount,
		ReferenceID: &referenceID,
		Description: description,
	})
}

func (s *Service) Balance(ctx context.Context, accountID string) (decimal.Decimal, error) {
	acc, err := s.accounts.FindOne(ctx, &account.Account{ID: accountID})
	if err != nil {
		zap.L().With(logger.TraceFields(ctx)...).Error("failed to query balance", zap.Error(err))
		return decimal.Zero, errkind.StorageFailure(err)
	}
	if acc == nil {
		return decimal.Zero, errkind.UnknownAffiliate("no affiliate with id " + accountID)
	}
	return acc.Balance, nil
}

// ListEntries pages through the entries of an account, newest first.
func (s *Service) ListEntries(ctx context.Context, accountID string, page pagination.Pagination) ([]*LedgerEntry, *pagination.PageInfo, error) {
	page = page.Normalize()

	opts := []option.QueryOption{
		option.WithSortBy(option.QuerySortBy{SortBy: "sequence", OrderBy: "desc", Allow: map[string]bool{"sequence": true}}),
		option.WithLimit(page.Limit + 1),
	}
	if page.Cursor != "" {
		cursor, err := pagination.DecodeCursor(page.Cursor)
		if err != nil {
			return nil, nil, errkind.InvalidArgument(err.Error())
		}
		seq, err := strconv.ParseInt(cursor.ID, 10, 64)
		if err != nil {
			return nil, nil, errkind.InvalidArgument("invalid cursor")
		}
		opts = append(opts, option.ApplyOperator(option.Condition{Field: "sequence", Operator: option.LT, Value: seq}))
	}

	entries, err := s.ledger.Find(ctx, &LedgerEntry{AccountID: accountID}, opts...)
	if err != nil {
		zap.L().With(logger.TraceFields(ctx)...).Error("failed to query list entries", zap.Error(err))
		return nil, nil, errkind.StorageFailure(err)
	}

	entries, info, err := pagination.Trim(entries, page.Limit, func(e *LedgerEntry) pagination.Cursor {
		return pagination.Cursor{ID: strconv.FormatInt(e.Sequence, 10)}
	})
	if err != nil {
		return nil, nil, errkind.StorageFailure(err)
	}
	return entries, info, nil
}

// EntriesForConversion returns the commission entries written for one
// conversion, tier ascending.
func (s *Service) EntriesForConversion(ctx context.Context, conversionID string) ([]*LedgerEntry, error) {
	entries, err := s.ledger.Find(ctx, &LedgerEntry{ConversionID: &conversionID}, option.WithSortBy(
		option.QuerySortBy{SortBy: "tier", OrderBy: "asc", Allow: map[string]bool{"tier": true}},
	))
	if err != nil {
		return nil, errkind.StorageFailure(err)
	}
	return entries, nil
}

func (s *Service) chain(ctx context.Context, accountID string) ([]*LedgerEntry, error) {
	return s.ledger.Find(ctx, &LedgerEntry{AccountID: accountID}, option.WithSortBy(
		option.QuerySortBy{SortBy: "sequence", OrderBy: "asc", Allow: map[string]bool{"sequence": true}},
	))
}

// Reconcile recomputes the balance from the completed entries and compares it
// with the cached account balance.
func (s *Service) Reconcile(ctx context.Context, accountID string) (*ReconcileResult, error) {
	cached, err := s.Balance(ctx, accountID)
	if err != nil {
		return nil, err
	}

	entries, err := s.chain(ctx, accountID)
	if err != nil {
		return nil, errkind.StorageFailure(err)
	}

	computed := decimal.Zero
	for _, e := range entries {
		if e.Status == StatusCompleted {
			computed = computed.Add(e.Amount)
		}
	}

	res := &ReconcileResult{
		AccountID:  accountID,
		Cached:     cached,
		Computed:   computed,
		Entries:    len(entries),
		Consistent: cached.Equal(computed),
	}
	if !res.Consistent {
		zap.L().With(logger.TraceFields(ctx)...).Error("ledger balance drift",
			zap.String("account_id", accountID),
			zap.String("cached", cached.String()),
			zap.String("computed", computed.String()),
		)
	}
	return res, nil
}

// VerifyChain recomputes every hash of the account chain and checks the
// sequence has no gaps.
func (s *Service) VerifyChain(ctx context.Context, accountID string) (bool, error) {
	entries, err := s.chain(ctx, accountID)
	if err != nil {
		zap.L().With(logger.TraceFields(ctx)...).Error("failed to query Find entries", zap.Error(err))
		return false, errkind.StorageFailure(err)
	}
	return verify(entries), nil
}

func verify(entries []*LedgerEntry) bool {
	lastHash := GenesisHash
	for i, entry := range entries {
		if entry.Sequence != int64(i+1) {
			return false
		}
		if entry.PreviousHash != lastHash || entry.Hash != entry.GenerateHash() {
			return false
		}
		lastHash = entry.Hash
	}
	return true
}
