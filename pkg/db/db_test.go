package db

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"

	"smallbiznis-affiliate/pkg/config"
)

func TestDialect(t *testing.T) {
	cfg := &config.Config{}
	cfg.Database.Host = "db"
	cfg.Database.Port = "5432"
	cfg.Database.DBNAME = "affiliate"

	cfg.Database.Type = "postgres"
	d, err := Dialect(cfg)
	require.NoError(t, err)
	require.IsType(t, &postgres.Dialector{}, d)
	require.Equal(t, "affiliate", getDBNameFromDialector(d))

	cfg.Database.Type = "mysql"
	d, err = Dialect(cfg)
	require.NoError(t, err)
	require.IsType(t, &mysql.Dialector{}, d)
	require.Equal(t, "affiliate", getDBNameFromDialector(d))

	cfg.Database.Type = "sqlite"
	d, err = Dialect(cfg)
	require.NoError(t, err)
	require.IsType(t, &SQLiteDialector{}, d)

	cfg.Database.Type = "oracle"
	_, err = Dialect(cfg)
	require.Error(t, err)
}

func TestExtractDBNameFromDSN(t *testing.T) {
	require.Equal(t, "ledger", extractDBNameFromDSN("host=x dbname=ledger sslmode=disable"))
	require.Equal(t, "ledger", extractDBNameFromDSN("u:p@tcp(h:3306)/ledger?parseTime=True"))
	require.Equal(t, "unknown", extractDBNameFromDSN("host=x"))
}
