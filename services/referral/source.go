package referral

import (
	"context"

	"smallbiznis-affiliate/pkg/repository"
	"smallbiznis-affiliate/services/account"

	"gorm.io/gorm"
)

// Source loads one node of the referral graph. A missing account is
// reported as (nil, nil).
type Source interface {
	Account(ctx context.Context, id string) (*account.Account, error)
	WithTrx(tx *gorm.DB) Source
}

// StoreSource reads referrer links straight from the accounts table.
type StoreSource struct {
	accounts repository.Repository[account.Account]
}

func NewStoreSource(accounts repository.Repository[account.Account]) *StoreSource {
	return &StoreSource{accounts: accounts}
}

func (s *StoreSource) Account(ctx context.Context, id string) (*account.Account, error) {
	return s.accounts.FindOne(ctx, &account.Account{ID: id})
}

func (s *StoreSource) WithTrx(tx *gorm.DB) Source {
	return &StoreSource{accounts: s.accounts.WithTrx(tx)}
}
