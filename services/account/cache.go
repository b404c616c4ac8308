package account

import (
	"context"
	"errors"
	"time"

	"smallbiznis-affiliate/pkg/rediskey"
	"smallbiznis-affiliate/pkg/repository"
	"smallbiznis-affiliate/services/internal/errkind"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

var (
	codeCacheHits = promauto.NewCounter(prometheus.CounterOpts{Name: "affiliate_code_cache_hits_total"})
	codeCacheMiss = promauto.NewCounter(prometheus.CounterOpts{Name: "affiliate_code_cache_miss_total"})
)

// Resolver maps affiliate codes to accounts. Codes never change once issued,
// so only the code -> id mapping is cached; the account row (and therefore its
// status) is always read from the store.
type Resolver struct {
	accounts repository.Repository[Account]
	rdb      *redis.Client
	ttl      time.Duration
	group    singleflight.Group
}

func NewResolver(accounts repository.Repository[Account], rdb *redis.Client, ttl time.Duration) *Resolver {
	return &Resolver{accounts: accounts, rdb: rdb, ttl: ttl}
}

func (r *Resolver) Resolve(ctx context.Context, code string) (*Account, error) {
	if code == "" {
		return nil, errkind.UnknownAffiliate("affiliate code is required")
	}

	if id, ok := r.cachedID(ctx, code); ok {
		acc, err := r.accounts.FindOne(ctx, &Account{ID: id})
		if err != nil {
			return nil, errkind.StorageFailure(err)
		}
		if acc != nil {
			codeCacheHits.Inc()
			return acc, nil
		}
		r.forget(ctx, code)
	}
	codeCacheMiss.Inc()

	v, err, _ := r.group.Do(code, func() (any, error) {
		acc, err := r.accounts.FindOne(ctx, &Account{Code: code})
		if err != nil {
			return nil, errkind.StorageFailure(err)
		}
		if acc == nil {
			return nil, errkind.UnknownAffiliate("no affiliate with code " + code)
		}
		r.remember(ctx, code, acc.ID)
		return acc, nil
	})
	if err != nil {
		return nil, err
	}

	acc := *v.(*Account)
	return &acc, nil
}

func (r *Resolver) cachedID(ctx context.Context, code string) (string, bool) {
	if r.rdb == nil {
		return "", false
	}
	id, err := r.rdb.Get(ctx, rediskey.BuildAffiliateCodeKey(code)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			zap.L().Warn("affiliate code cache read failed", zap.String("code", code), zap.Error(err))
		}
		return "", false
	}
	return id, id != ""
}

func (r *Resolver) remember(ctx context.Context, code, id string) {
	if r.rdb == nil {
		return
	}
	if err := r.rdb.Set(ctx, rediskey.BuildAffiliateCodeKey(code), id, r.ttl).Err(); err != nil {
		zap.L().Warn("affiliate code cache write failed", zap.String("code", code), zap.Error(err))
	}
}

func (r *Resolver) forget(ctx context.Context, code string) {
	if r.rdb == nil {
		return
	}
	_ = r.rdb.Del(ctx, rediskey.BuildAffiliateCodeKey(code)).Err()
}
