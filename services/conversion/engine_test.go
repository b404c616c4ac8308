package conversion

import (
	"context"
	"sync"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"smallbiznis-affiliate/pkg/config"
	"smallbiznis-affiliate/pkg/repository"
	"smallbiznis-affiliate/services/account"
	"smallbiznis-affiliate/services/commission"
	"smallbiznis-affiliate/services/internal/errkind"
	"smallbiznis-affiliate/services/ledger"
	"smallbiznis-affiliate/services/referral"
	"smallbiznis-affiliate/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fixture struct {
	db     *gorm.DB
	svc    *Service
	engine *Engine
	ledger *ledger.Service
}

func newFixture(t *testing.T, policy commission.Policy) *fixture {
	t.Helper()

	db := testutil.NewTestDB(t, &account.Account{}, &Conversion{}, &ledger.LedgerEntry{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	accounts := repository.ProvideStore[account.Account](db)
	led, err := ledger.NewService(ledger.ServiceParams{DB: db, Node: node, Config: &config.Config{}})
	require.NoError(t, err)

	return &fixture{
		db:  db,
		svc: NewService(ServiceParams{DB: db, Node: node, Resolver: account.NewResolver(accounts, nil, 0)}),
		engine: NewEngine(EngineParams{
			DB:     db,
			Ledger: led,
			Walker: referral.NewWalker(referral.NewStoreSource(accounts)),
			Policy: policy,
		}),
		ledger: led,
	}
}

func defaultPolicy() commission.Policy {
	return commission.MustPolicy(commission.Config{
		TierRates:            []decimal.Decimal{d("0.10"), d("0.05")},
		MaxTiers:             2,
		MinimumPayableAmount: d("1"),
		Precision:            2,
	})
}

// seed creates id with code "code-<id>" under referrer (empty for a root).
func (f *fixture) seed(t *testing.T, id, referrer string) {
	t.Helper()
	acc := &account.Account{
		ID:      id,
		Code:    "code-" + id,
		Name:    id,
		Balance: decimal.Zero,
		Status:  account.StatusActive,
	}
	if referrer != "" {
		acc.ReferrerID = &referrer
	}
	require.NoError(t, f.db.Create(acc).Error)
}

func (f *fixture) submit(t *testing.T, affiliate, amount string) *Conversion {
	t.Helper()
	conv, err := f.svc.Submit(context.Background(), SubmitRequest{AffiliateCode: "code-" + affiliate, Amount: d(amount)})
	require.NoError(t, err)
	return conv
}

func (f *fixture) balance(t *testing.T, id string) decimal.Decimal {
	t.Helper()
	b, err := f.ledger.Balance(context.Background(), id)
	require.NoError(t, err)
	return b
}

func (f *fixture) status(t *testing.T, id string) string {
	t.Helper()
	conv, err := f.svc.Get(context.Background(), id)
	require.NoError(t, err)
	return conv.Status
}

func TestDistributeThreeTiers(t *testing.T) {
	f := newFixture(t, defaultPolicy())
	f.seed(t, "u2", "")
	f.seed(t, "u1", "u2")
	f.seed(t, "dir", "u1")

	conv := f.submit(t, "dir", "100")
	res, err := f.engine.Distribute(context.Background(), conv)
	require.NoError(t, err)

	require.Equal(t, conv.ID, res.ConversionID)
	require.Len(t, res.Shares, 3)
	want := []Share{
		{AccountID: "dir", Tier: 0, Amount: d("100")},
		{AccountID: "u1", Tier: 1, Amount: d("10")},
		{AccountID: "u2", Tier: 2, Amount: d("5")},
	}
	for i, s := range res.Shares {
		require.Equal(t, want[i].AccountID, s.AccountID)
		require.Equal(t, want[i].Tier, s.Tier)
		require.True(t, want[i].Amount.Equal(s.Amount), "tier %d: %s", s.Tier, s.Amount)
	}
	require.True(t, res.Total().Equal(d("115")))

	require.Equal(t, StatusApproved, conv.Status)
	require.Equal(t, StatusApproved, f.status(t, conv.ID))

	require.True(t, f.balance(t, "dir").Equal(d("100")))
	require.True(t, f.balance(t, "u1").Equal(d("10")))
	require.True(t, f.balance(t, "u2").Equal(d("5")))

	entries, err := f.ledger.EntriesForConversion(context.Background(), conv.ID)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	for i, e := range entries {
		require.Equal(t, i, e.Tier)
		require.Equal(t, ledger.TypeCommission, e.Type)
	}

	for _, id := range []string{"dir", "u1", "u2"} {
		ok, err := f.ledger.VerifyChain(context.Background(), id)
		require.NoError(t, err)
		require.True(t, ok)
	}
}

func TestDistributeSkipsUnpayableShares(t *testing.T) {
	policy := commission.MustPolicy(commission.Config{
		TierRates: []decimal.Decimal{d("0.10"), d("0.05")},
		MaxTiers:  2,
		Precision: 2,
	})
	f := newFixture(t, policy)
	f.seed(t, "u2", "")
	f.seed(t, "u1", "u2")
	f.seed(t, "dir", "u1")

	// tier 2 would be 0.005, truncated to zero
	res, err := f.engine.Distribute(context.Background(), f.submit(t, "dir", "0.10"))
	require.NoError(t, err)
	require.Len(t, res.Shares, 2)
	require.Equal(t, "u1", res.Shares[1].AccountID)
	require.True(t, res.Shares[1].Amount.Equal(d("0.01")))
	require.True(t, f.balance(t, "u2").IsZero())
}

func TestDistributeSkipsTierBelowMinimum(t *testing.T) {
	f := newFixture(t, commission.MustPolicy(commission.Config{
		TierRates:            []decimal.Decimal{d("0.10"), d("0.005")},
		MaxTiers:             2,
		MinimumPayableAmount: d("1"),
		Precision:            2,
	}))
	f.seed(t, "u2", "")
	f.seed(t, "u1", "u2")
	f.seed(t, "dir", "u1")

	conv := f.submit(t, "dir", "100")
	res, err := f.engine.Distribute(context.Background(), conv)
	require.NoError(t, err)

	require.Equal(t, conv.ID, res.ConversionID)
	require.Len(t, res.Shares, 2)
	require.Equal(t, "dir", res.Shares[0].AccountID)
	require.Equal(t, 0, res.Shares[0].Tier)
	require.True(t, res.Shares[0].Amount.Equal(d("100")))
	require.Equal(t, "u1", res.Shares[1].AccountID)
	require.Equal(t, 1, res.Shares[1].Tier)
	require.True(t, res.Shares[1].Amount.Equal(d("10")))
	require.True(t, res.Total().Equal(d("110")))

	require.Equal(t, StatusApproved, f.status(t, conv.ID))
	require.True(t, f.balance(t, "u2").IsZero())

	entries, err := f.ledger.EntriesForConversion(context.Background(), conv.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
}

func TestDistributeFullPrecisionAmount(t *testing.T) {
	f := newFixture(t, commission.MustPolicy(commission.Config{
		TierRates: []decimal.Decimal{d("0.10")},
		MaxTiers:  1,
		Precision: 6,
	}))
	f.seed(t, "u1", "")
	f.seed(t, "dir", "u1")

	conv := f.submit(t, "dir", "12345678901234.123456")
	stored, err := f.svc.Get(context.Background(), conv.ID)
	require.NoError(t, err)
	require.Equal(t, "12345678901234.123456", stored.Amount.String())

	res, err := f.engine.Distribute(context.Background(), stored)
	require.NoError(t, err)
	require.Len(t, res.Shares, 2)
	require.True(t, res.Shares[1].Amount.Equal(d("1234567890123.412345")))

	entries, err := f.ledger.EntriesForConversion(context.Background(), conv.ID)
	require.NoError(t, err)
	require.Len(t, entries, len(res.Shares))
	for i, e := range entries {
		require.Equal(t, res.Shares[i].Amount.String(), e.Amount.String())
	}

	for _, id := range []string{"dir", "u1"} {
		ok, err := f.ledger.VerifyChain(context.Background(), id)
		require.NoError(t, err)
		require.True(t, ok, id)
	}
	require.True(t, f.balance(t, "dir").Equal(d("12345678901234.123456")))
}

func TestDistributeBelowMinimumStillPaysDirectAffiliate(t *testing.T) {
	f := newFixture(t, defaultPolicy())
	f.seed(t, "u1", "")
	f.seed(t, "dir", "u1")

	res, err := f.engine.Distribute(context.Background(), f.submit(t, "dir", "5"))
	require.NoError(t, err)
	require.Len(t, res.Shares, 1)
	require.Equal(t, 0, res.Shares[0].Tier)
	require.True(t, res.Shares[0].Amount.Equal(d("5")))
}

func TestDistributeStopsAtRoot(t *testing.T) {
	f := newFixture(t, commission.MustPolicy(commission.Config{
		TierRates: []decimal.Decimal{d("0.10"), d("0.05"), d("0.02")},
		MaxTiers:  3,
		Precision: 2,
	}))
	f.seed(t, "root", "")
	f.seed(t, "dir", "root")

	res, err := f.engine.Distribute(context.Background(), f.submit(t, "dir", "100"))
	require.NoError(t, err)
	require.Len(t, res.Shares, 2)
}

func TestDistributeTotalIsBounded(t *testing.T) {
	policy := commission.MustPolicy(commission.Config{
		TierRates: []decimal.Decimal{d("0.3"), d("0.2"), d("0.1")},
		MaxTiers:  3,
		Precision: 2,
	})
	f := newFixture(t, policy)
	f.seed(t, "a", "")
	f.seed(t, "b", "a")
	f.seed(t, "c", "b")
	f.seed(t, "dir", "c")

	for _, amount := range []string{"0.01", "1.37", "99.99", "1000"} {
		conv := f.submit(t, "dir", amount)
		res, err := f.engine.Distribute(context.Background(), conv)
		require.NoError(t, err)

		bound := conv.Amount.Mul(decimal.NewFromInt(1).Add(policy.SumOfRates()))
		require.True(t, res.Total().LessThanOrEqual(bound), "amount %s total %s", amount, res.Total())
	}
}

func TestDistributeTwiceIsAlreadyProcessed(t *testing.T) {
	f := newFixture(t, defaultPolicy())
	f.seed(t, "u1", "")
	f.seed(t, "dir", "u1")
	conv := f.submit(t, "dir", "100")

	_, err := f.engine.Distribute(context.Background(), conv)
	require.NoError(t, err)

	_, err = f.engine.Distribute(context.Background(), conv)
	require.ErrorIs(t, err, errkind.ErrAlreadyProcessed)

	require.True(t, f.balance(t, "dir").Equal(d("100")))
	require.True(t, f.balance(t, "u1").Equal(d("10")))
}

func TestDistributeStaleCopyLosesClaim(t *testing.T) {
	f := newFixture(t, defaultPolicy())
	f.seed(t, "dir", "")
	conv := f.submit(t, "dir", "100")

	stale, err := f.svc.Get(context.Background(), conv.ID)
	require.NoError(t, err)

	_, err = f.engine.Distribute(context.Background(), conv)
	require.NoError(t, err)

	require.Equal(t, StatusPending, stale.Status)
	_, err = f.engine.Distribute(context.Background(), stale)
	require.ErrorIs(t, err, errkind.ErrAlreadyProcessed)

	entries, err := f.ledger.EntriesForConversion(context.Background(), conv.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestDistributeReplaysPayOnce(t *testing.T) {
	f := newFixture(t, defaultPolicy())
	f.seed(t, "u1", "")
	f.seed(t, "dir", "u1")
	conv := f.submit(t, "dir", "100")

	var ok int
	for i := 0; i < 5; i++ {
		fresh, err := f.svc.Get(context.Background(), conv.ID)
		require.NoError(t, err)
		if _, err := f.engine.Distribute(context.Background(), fresh); err == nil {
			ok++
		} else {
			require.ErrorIs(t, err, errkind.ErrAlreadyProcessed)
		}
	}
	require.Equal(t, 1, ok)

	entries, err := f.ledger.EntriesForConversion(context.Background(), conv.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
}

func TestDistributeConcurrentClaims(t *testing.T) {
	f := newFixture(t, defaultPolicy())
	f.seed(t, "u1", "")
	f.seed(t, "dir", "u1")
	conv := f.submit(t, "dir", "100")

	const workers = 8
	copies := make([]*Conversion, workers)
	for i := range copies {
		c, err := f.svc.Get(context.Background(), conv.ID)
		require.NoError(t, err)
		copies[i] = c
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for _, c := range copies {
		wg.Add(1)
		go func(c *Conversion) {
			defer wg.Done()
			_, err := f.engine.Distribute(context.Background(), c)
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(c)
	}
	wg.Wait()

	require.Equal(t, 1, wins)
	require.True(t, f.balance(t, "dir").Equal(d("100")))
	require.True(t, f.balance(t, "u1").Equal(d("10")))
}

func TestDistributeCycleRollsBack(t *testing.T) {
	f := newFixture(t, commission.MustPolicy(commission.Config{
		TierRates: []decimal.Decimal{d("0.10"), d("0.05"), d("0.02"), d("0.01")},
		MaxTiers:  4,
		Precision: 2,
	}))
	f.seed(t, "a", "")
	f.seed(t, "b", "a")
	require.NoError(t, f.db.Model(&account.Account{}).Where("id = ?", "a").Update("referrer_id", "b").Error)
	f.seed(t, "dir", "a")

	conv := f.submit(t, "dir", "100")
	_, err := f.engine.Distribute(context.Background(), conv)
	require.ErrorIs(t, err, errkind.ErrReferralCycleDetected)

	require.Equal(t, StatusPending, conv.Status)
	require.Equal(t, StatusPending, f.status(t, conv.ID))

	entries, err := f.ledger.EntriesForConversion(context.Background(), conv.ID)
	require.NoError(t, err)
	require.Empty(t, entries)
	for _, id := range []string{"dir", "a", "b"} {
		require.True(t, f.balance(t, id).IsZero())
	}
}

func TestDistributeRejectsNilAndSettled(t *testing.T) {
	f := newFixture(t, defaultPolicy())

	_, err := f.engine.Distribute(context.Background(), nil)
	require.ErrorIs(t, err, errkind.ErrInvalidArgument)

	_, err = f.engine.Distribute(context.Background(), &Conversion{ID: "x", Status: StatusReversed})
	require.ErrorIs(t, err, errkind.ErrAlreadyProcessed)
}

func TestDistributionResultTotal(t *testing.T) {
	require.True(t, DistributionResult{}.Total().IsZero())
	res := DistributionResult{Shares: []Share{{Amount: d("1.5")}, {Amount: d("0.25")}}}
	require.True(t, res.Total().Equal(d("1.75")))
}
