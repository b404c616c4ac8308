package account

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"

	"smallbiznis-affiliate/pkg/db/option"
	"smallbiznis-affiliate/pkg/logger"
	"smallbiznis-affiliate/pkg/repository"
	"smallbiznis-affiliate/services/internal/errkind"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Unbounded asks an UplineWalker to follow referrers up to the root.
const Unbounded = -1

// UplineWalker lists the referrers above an account, nearest first.
type UplineWalker interface {
	UplineOf(ctx context.Context, accountID string, maxDepth int) ([]Account, error)
}

// GraphMirror receives every account whose referrer changed so an external
// referral graph can be kept in step with the accounts table.
type GraphMirror interface {
	Mirror(ctx context.Context, acc Account) error
}

const (
	codeSuffixLen   = 4
	codeMaxBaseLen  = 24
	codeMaxAttempts = 3
	codeAlphabet    = "abcdefghijklmnopqrstuvwxyz0123456789"

	resyncBatch = 500
)

type Service struct {
	db       *gorm.DB
	node     *snowflake.Node
	accounts repository.Repository[Account]
	resolver *Resolver
	walker   UplineWalker
	mirror   GraphMirror
}

type ServiceParams struct {
	fx.In
	DB       *gorm.DB
	Node     *snowflake.Node
	Resolver *Resolver
	Walker   UplineWalker
	Mirror   GraphMirror `optional:"true"`
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:       p.DB,
		node:     p.Node,
		accounts: repository.ProvideStore[Account](p.DB),
		resolver: p.Resolver,
		walker:   p.Walker,
		mirror:   p.Mirror,
	}
}

// Create approves a new affiliate. The referrer, when given, must already
// exist; a brand new account cannot close a cycle. The account is written to
// the referral graph before the row commits, so a graph failure rejects the
// whole approval.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Account, error) {
	opts := logger.TraceFields(ctx)

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, errkind.InvalidArgument("name is required")
	}

	var referrerID *string
	if req.ReferrerCode != "" {
		ref, err := s.accounts.FindOne(ctx, &Account{Code: req.ReferrerCode})
		if err != nil {
			zap.L().With(opts...).Error("failed to query referrer", zap.Error(err))
			return nil, errkind.StorageFailure(err)
		}
		if ref == nil {
			return nil, errkind.UnknownAffiliate("no affiliate with code " + req.ReferrerCode)
		}
		referrerID = &ref.ID
	}

	for attempt := 0; attempt < codeMaxAttempts; attempt++ {
		code, err := generateCode(name)
		if err != nil {
			return nil, err
		}

		acc := &Account{
			ID:         s.node.Generate().String(),
			Code:       code,
			Name:       name,
			Balance:    decimal.Zero,
			ReferrerID: referrerID,
			Status:     StatusActive,
		}
		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := s.accounts.WithTrx(tx).Create(ctx, acc); err != nil {
				return err
			}
			return s.mirrorAccount(ctx, *acc)
		})
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			zap.L().With(opts...).Warn("affiliate code collision", zap.String("code", code))
			continue
		}
		if err != nil {
			zap.L().With(opts...).Error("failed to create account", zap.Error(err))
			return nil, errkind.StorageFailure(err)
		}

		zap.L().With(opts...).Info("affiliate approved", zap.String("account_id", acc.ID), zap.String("code", acc.Code))
		return acc, nil
	}

	return nil, errkind.StorageFailure(fmt.Errorf("no unique affiliate code for %q after %d attempts", name, codeMaxAttempts))
}

func (s *Service) Get(ctx context.Context, id string) (*Account, error) {
	acc, err := s.accounts.FindOne(ctx, &Account{ID: id})
	if err != nil {
		zap.L().With(logger.TraceFields(ctx)...).Error("failed to query account", zap.String("account_id", id), zap.Error(err))
		return nil, errkind.StorageFailure(err)
	}
	if acc == nil {
		return nil, errkind.UnknownAffiliate("no affiliate with id " + id)
	}
	return acc, nil
}

func (s *Service) GetByCode(ctx context.Context, code string) (*Account, error) {
	return s.resolver.Resolve(ctx, code)
}

func (s *Service) Suspend(ctx context.Context, id string) (*Account, error) {
	return s.setStatus(ctx, id, StatusSuspended)
}

func (s *Service) Activate(ctx context.Context, id string) (*Account, error) {
	return s.setStatus(ctx, id, StatusActive)
}

func (s *Service) setStatus(ctx context.Context, id, status string) (*Account, error) {
	acc, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if acc.Status == status {
		return acc, nil
	}

	if err := s.accounts.Update(ctx, id, map[string]any{"status": status}); err != nil {
		zap.L().With(logger.TraceFields(ctx)...).Error("failed to update account status", zap.String("account_id", id), zap.Error(err))
		return nil, errkind.StorageFailure(err)
	}

	acc.Status = status
	return acc, nil
}

// SetReferrer re-parents an account. An empty code detaches it. The new
// referrer may not be the account itself or any account below it. The check,
// the update and the graph write share one transaction that holds locks on
// the account and on every row of the new referrer's upline.
func (s *Service) SetReferrer(ctx context.Context, id, referrerCode string) (*Account, error) {
	var acc *Account
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		accounts := s.accounts.WithTrx(tx)

		current, err := accounts.FindOne(ctx, &Account{ID: id}, option.WithLockingUpdate())
		if err != nil {
			return err
		}
		if current == nil {
			return errkind.UnknownAffiliate("no affiliate with id " + id)
		}

		var referrerID *string
		if referrerCode != "" {
			ref, err := accounts.FindOne(ctx, &Account{Code: referrerCode})
			if err != nil {
				return err
			}
			if ref == nil {
				return errkind.UnknownAffiliate("no affiliate with code " + referrerCode)
			}
			if ref.ID == current.ID {
				return errkind.ReferralCycleDetected("an affiliate cannot refer itself")
			}
			if err := ensureNotAbove(ctx, accounts, ref.ID, current.ID); err != nil {
				return err
			}
			referrerID = &ref.ID
		}

		var value any
		if referrerID != nil {
			value = *referrerID
		}
		if err := accounts.Update(ctx, id, map[string]any{"referrer_id": value}); err != nil {
			return err
		}

		current.ReferrerID = referrerID
		if err := s.mirrorAccount(ctx, *current); err != nil {
			return err
		}
		acc = current
		return nil
	})
	if err != nil {
		zap.L().With(logger.TraceFields(ctx)...).Warn("failed to update referrer", zap.String("account_id", id), zap.Error(err))
		return nil, errkind.StorageFailure(err)
	}
	return acc, nil
}

// ensureNotAbove fails when id is start or one of its referrers. Every row on
// the way is locked until the transaction ends, so two re-parentings that
// touch the same chain run one after the other.
func ensureNotAbove(ctx context.Context, accounts repository.Repository[Account], start, id string) error {
	seen := make(map[string]struct{})
	for next := start; next != ""; {
		if next == id {
			return errkind.ReferralCycleDetected(fmt.Sprintf("%s is already below %s", start, id))
		}
		if _, ok := seen[next]; ok {
			return errkind.ReferralCycleDetected("the upline of " + start + " already loops")
		}
		seen[next] = struct{}{}

		acc, err := accounts.FindOne(ctx, &Account{ID: next}, option.WithLockingUpdate())
		if err != nil {
			return err
		}
		if acc == nil {
			return errkind.UnknownAffiliate("dangling referrer " + next)
		}
		next = ""
		if acc.HasReferrer() {
			next = *acc.ReferrerID
		}
	}
	return nil
}

// Upline returns at most depth referrers above id, nearest first.
func (s *Service) Upline(ctx context.Context, id string, depth int) ([]Account, error) {
	return s.walker.UplineOf(ctx, id, depth)
}

// ListDownline returns the accounts directly referred by id.
func (s *Service) ListDownline(ctx context.Context, id string) ([]*Account, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}

	accounts, err := s.accounts.Find(ctx, &Account{ReferrerID: &id}, option.WithSortBy(option.QuerySortBy{
		SortBy:  "created_at",
		OrderBy: "asc",
		Allow:   map[string]bool{"created_at": true},
	}))
	if err != nil {
		return nil, errkind.StorageFailure(err)
	}
	return accounts, nil
}

func (s *Service) mirrorAccount(ctx context.Context, acc Account) error {
	if s.mirror == nil {
		return nil
	}
	if err := s.mirror.Mirror(ctx, acc); err != nil {
		return fmt.Errorf("mirror account %s to referral graph: %w", acc.ID, err)
	}
	return nil
}

// ResyncGraph writes every account and its referrer edge to the referral
// graph again. It repairs a graph that missed writes or was restored from an
// older backup.
func (s *Service) ResyncGraph(ctx context.Context) (int, error) {
	if s.mirror == nil {
		return 0, errkind.InvalidArgument("no referral graph is configured")
	}

	synced := 0
	after := ""
	for {
		opts := []option.QueryOption{
			option.WithSortBy(option.QuerySortBy{SortBy: "id", OrderBy: "asc"}),
			option.WithLimit(resyncBatch),
		}
		if after != "" {
			opts = append(opts, option.ApplyOperator(option.Condition{Field: "id", Operator: option.GT, Value: after}))
		}

		batch, err := s.accounts.Find(ctx, &Account{}, opts...)
		if err != nil {
			return synced, errkind.StorageFailure(err)
		}
		for _, acc := range batch {
			if err := s.mirrorAccount(ctx, *acc); err != nil {
				return synced, errkind.StorageFailure(err)
			}
			synced++
		}
		if len(batch) < resyncBatch {
			zap.L().With(logger.TraceFields(ctx)...).Info("referral graph resynced", zap.Int("accounts", synced))
			return synced, nil
		}
		after = batch[len(batch)-1].ID
	}
}

func generateCode(name string) (string, error) {
	base := slug.Make(name)
	if len(base) > codeMaxBaseLen {
		base = strings.Trim(base[:codeMaxBaseLen], "-")
	}
	if base == "" {
		base = "aff"
	}

	buf := make([]byte, codeSuffixLen)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate affiliate code: %w", err)
	}
	for i, b := range buf {
		buf[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}

	return base + "-" + string(buf), nil
}
