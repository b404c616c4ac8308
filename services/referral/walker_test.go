package referral

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"smallbiznis-affiliate/pkg/repository"
	"smallbiznis-affiliate/services/account"
	"smallbiznis-affiliate/services/internal/errkind"
	"smallbiznis-affiliate/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

// mapSource is an in-memory Source that counts lookups.
type mapSource struct {
	accounts map[string]account.Account
	calls    int
	err      error
}

func (m *mapSource) Account(_ context.Context, id string) (*account.Account, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	acc, ok := m.accounts[id]
	if !ok {
		return nil, nil
	}
	return &acc, nil
}

func (m *mapSource) WithTrx(*gorm.DB) Source { return m }

func chain(links map[string]string) *mapSource {
	src := &mapSource{accounts: map[string]account.Account{}}
	for id, ref := range links {
		acc := account.Account{ID: id, Code: "code-" + id, Status: account.StatusActive}
		if ref != "" {
			r := ref
			acc.ReferrerID = &r
		}
		src.accounts[id] = acc
	}
	return src
}

func ids(accounts []account.Account) []string {
	out := make([]string, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, a.ID)
	}
	return out
}

func TestUplineOfNearestFirst(t *testing.T) {
	w := NewWalker(chain(map[string]string{"d": "u1", "u1": "u2", "u2": "u3", "u3": ""}))

	upline, err := w.UplineOf(context.Background(), "d", 10)
	require.NoError(t, err)
	require.Equal(t, []string{"u1", "u2", "u3"}, ids(upline))
}

func TestUplineOfStopsAtMaxDepth(t *testing.T) {
	w := NewWalker(chain(map[string]string{"d": "u1", "u1": "u2", "u2": "u3", "u3": ""}))

	upline, err := w.UplineOf(context.Background(), "d", 2)
	require.NoError(t, err)
	require.Equal(t, []string{"u1", "u2"}, ids(upline))

	upline, err = w.UplineOf(context.Background(), "d", 0)
	require.NoError(t, err)
	require.Empty(t, upline)
}

func TestUplineOfRootHasNoUpline(t *testing.T) {
	w := NewWalker(chain(map[string]string{"root": ""}))

	upline, err := w.UplineOf(context.Background(), "root", 5)
	require.NoError(t, err)
	require.Empty(t, upline)
}

func TestUplineOfDetectsCycle(t *testing.T) {
	w := NewWalker(chain(map[string]string{"a": "b", "b": "a"}))

	upline, err := w.UplineOf(context.Background(), "a", 10)
	require.Nil(t, upline)
	require.ErrorIs(t, err, errkind.ErrReferralCycleDetected)
}

func TestUplineOfDetectsSelfReferral(t *testing.T) {
	w := NewWalker(chain(map[string]string{"a": "a"}))

	_, err := w.UplineOf(context.Background(), "a", 10)
	require.ErrorIs(t, err, errkind.ErrReferralCycleDetected)
}

func TestUplineOfCycleBeyondDepthIsNotReached(t *testing.T) {
	w := NewWalker(chain(map[string]string{"d": "u1", "u1": "u2", "u2": "u1"}))

	upline, err := w.UplineOf(context.Background(), "d", 2)
	require.NoError(t, err)
	require.Equal(t, []string{"u1", "u2"}, ids(upline))

	_, err = w.UplineOf(context.Background(), "d", 3)
	require.ErrorIs(t, err, errkind.ErrReferralCycleDetected)
}

func TestUplineOfUnboundedTerminatesOnCycle(t *testing.T) {
	w := NewWalker(chain(map[string]string{"a": "b", "b": "c", "c": "a"}))

	_, err := w.UplineOf(context.Background(), "a", account.Unbounded)
	require.ErrorIs(t, err, errkind.ErrReferralCycleDetected)
}

func TestUplineOfUnknownStart(t *testing.T) {
	w := NewWalker(chain(map[string]string{}))

	_, err := w.UplineOf(context.Background(), "ghost", 3)
	require.ErrorIs(t, err, errkind.ErrUnknownAffiliate)
}

func TestUplineOfDanglingReferrer(t *testing.T) {
	w := NewWalker(chain(map[string]string{"d": "gone"}))

	_, err := w.UplineOf(context.Background(), "d", 3)
	require.ErrorIs(t, err, errkind.ErrUnknownAffiliate)
}

func TestUplineOfStorageFailure(t *testing.T) {
	src := chain(map[string]string{"d": ""})
	src.err = errors.New("connection reset")

	_, err := NewWalker(src).UplineOf(context.Background(), "d", 3)
	require.ErrorIs(t, err, errkind.ErrStorageFailure)
}

func TestWalkIsLazyAndRestartable(t *testing.T) {
	src := chain(map[string]string{"d": "u1", "u1": "u2", "u2": "u3", "u3": ""})
	w := NewWalker(src)
	seq := w.Walk(context.Background(), "d", 10)

	for acc, err := range seq {
		require.NoError(t, err)
		require.Equal(t, "u1", acc.ID)
		break
	}
	require.Equal(t, 2, src.calls)

	var all []string
	for acc, err := range seq {
		require.NoError(t, err)
		all = append(all, acc.ID)
	}
	require.Equal(t, []string{"u1", "u2", "u3"}, all)
}

func TestStoreSourceWalk(t *testing.T) {
	db := testutil.NewTestDB(t, &account.Account{})
	repo := repository.ProvideStore[account.Account](db)
	ctx := context.Background()

	ref := func(s string) *string { return &s }
	for _, acc := range []*account.Account{
		{ID: "root", Code: "root", Balance: decimal.Zero, Status: account.StatusActive},
		{ID: "mid", Code: "mid", Balance: decimal.Zero, Status: account.StatusActive, ReferrerID: ref("root")},
		{ID: "leaf", Code: "leaf", Balance: decimal.Zero, Status: account.StatusActive, ReferrerID: ref("mid")},
	} {
		require.NoError(t, repo.Create(ctx, acc))
	}

	w := NewWalker(NewStoreSource(repo))
	upline, err := w.UplineOf(ctx, "leaf", 5)
	require.NoError(t, err)
	require.Equal(t, []string{"mid", "root"}, ids(upline))

	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		upline, err := w.WithTrx(tx).UplineOf(ctx, "leaf", 1)
		require.NoError(t, err)
		require.Equal(t, []string{"mid"}, ids(upline))
		return nil
	}))
}
