package option

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type row struct {
	ID    string `gorm:"column:id;primaryKey"`
	Score int    `gorm:"column:score"`
}

func dryRun(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{DryRun: true})
	require.NoError(t, err)
	return db
}

func TestWithSortByHonoursAllowList(t *testing.T) {
	db := dryRun(t)

	stmt := WithSortBy(QuerySortBy{SortBy: "score", OrderBy: "desc", Allow: map[string]bool{"score": true}})(db.Model(&row{})).Find(&[]row{}).Statement
	require.Contains(t, stmt.SQL.String(), "ORDER BY `score` DESC")

	stmt = WithSortBy(QuerySortBy{SortBy: "secret", OrderBy: "asc"})(db.Model(&row{})).Find(&[]row{}).Statement
	require.Contains(t, stmt.SQL.String(), "ORDER BY `id`")
}

func TestApplyOperator(t *testing.T) {
	db := dryRun(t)

	stmt := ApplyOperator(Condition{Field: "score", Operator: GT, Value: 0})(db.Model(&row{})).Find(&[]row{}).Statement
	require.Contains(t, stmt.SQL.String(), "score > ?")

	stmt = ApplyOperator(Condition{Field: "score", Operator: Operator("LIKE"), Value: 0})(db.Model(&row{})).Find(&[]row{}).Statement
	require.NotContains(t, stmt.SQL.String(), "WHERE")
}
