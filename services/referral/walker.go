// Package referral walks the referrer chain above an affiliate.
package referral

import (
	"context"
	"fmt"
	"iter"

	"smallbiznis-affiliate/services/account"
	"smallbiznis-affiliate/services/internal/errkind"

	"gorm.io/gorm"
)

type Walker struct {
	source Source
}

func NewWalker(source Source) *Walker {
	return &Walker{source: source}
}

// WithTrx binds the walker to tx so the walk sees the same snapshot as the
// caller's writes.
func (w *Walker) WithTrx(tx *gorm.DB) *Walker {
	return &Walker{source: w.source.WithTrx(tx)}
}

// Walk yields the referrers above accountID, nearest first, stopping at the
// root or after maxDepth hops (account.Unbounded for no limit). The start
// account is not yielded. An id seen twice ends the walk with
// ReferralCycleDetected; a missing account ends it with UnknownAffiliate.
// Each range over the returned sequence starts a fresh walk.
func (w *Walker) Walk(ctx context.Context, accountID string, maxDepth int) iter.Seq2[account.Account, error] {
	return func(yield func(account.Account, error) bool) {
		current, err := w.load(ctx, accountID)
		if err != nil {
			yield(account.Account{}, err)
			return
		}
		if current == nil {
			yield(account.Account{}, errkind.UnknownAffiliate("no affiliate with id "+accountID))
			return
		}

		visited := map[string]struct{}{current.ID: {}}
		for depth := 0; maxDepth < 0 || depth < maxDepth; depth++ {
			if !current.HasReferrer() {
				return
			}

			next := *current.ReferrerID
			if _, seen := visited[next]; seen {
				yield(account.Account{}, errkind.ReferralCycleDetected(
					fmt.Sprintf("referrer chain of %s revisits %s at depth %d", accountID, next, depth+1)))
				return
			}
			visited[next] = struct{}{}

			parent, err := w.load(ctx, next)
			if err != nil {
				yield(account.Account{}, err)
				return
			}
			if parent == nil {
				yield(account.Account{}, errkind.UnknownAffiliate(
					fmt.Sprintf("referrer %s of %s does not exist", next, current.ID)))
				return
			}

			if !yield(*parent, nil) {
				return
			}
			current = parent
		}
	}
}

// UplineOf collects Walk into a slice. On error no partial upline is returned.
func (w *Walker) UplineOf(ctx context.Context, accountID string, maxDepth int) ([]account.Account, error) {
	var upline []account.Account
	for acc, err := range w.Walk(ctx, accountID, maxDepth) {
		if err != nil {
			return nil, err
		}
		upline = append(upline, acc)
	}
	return upline, nil
}

func (w *Walker) load(ctx context.Context, id string) (*account.Account, error) {
	acc, err := w.source.Account(ctx, id)
	if err != nil {
		return nil, errkind.StorageFailure(err)
	}
	return acc, nil
}
